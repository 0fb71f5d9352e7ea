package backup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"sort"
	"strings"

	"github.com/yourusername/unifi-ops/internal/audit"
	"github.com/yourusername/unifi-ops/internal/cache"
	"github.com/yourusername/unifi-ops/internal/logging"
	"github.com/yourusername/unifi-ops/internal/models"
	"github.com/yourusername/unifi-ops/internal/store"
	"github.com/yourusername/unifi-ops/internal/transport"
	"github.com/yourusername/unifi-ops/internal/validate"
)

// Registry lists, downloads, validates, and deletes backup artifacts.
// Listing is cache-eligible; mutations invalidate the site's backup
// family so subsequent listings are fresh.
type Registry struct {
	api    API
	cache  *cache.Cache
	ledger *store.DB
	audit  *audit.Logger
}

// NewRegistry wires a registry. cache, ledger, and auditLog may each be
// nil; the registry degrades to uncached, unrecorded operation.
func NewRegistry(api API, c *cache.Cache, ledger *store.DB, auditLog *audit.Logger) *Registry {
	if c == nil {
		c = cache.New(nil)
	}
	return &Registry{api: api, cache: c, ledger: ledger, audit: auditLog}
}

type listEnvelope struct {
	Data []models.BackupArtifact `json:"data"`
}

// listArtifacts fetches the artifact listing without caching. Shared
// with the orchestrator's completion poll, which must never see a stale
// listing.
func listArtifacts(ctx context.Context, api API, siteID string) ([]models.BackupArtifact, error) {
	resp, err := api.Get(ctx, backupsPath(siteID), nil)
	if err != nil {
		return nil, err
	}
	var env listEnvelope
	if err := resp.Decode(&env); err != nil {
		return nil, err
	}
	for i := range env.Data {
		if env.Data[i].SiteID == "" {
			env.Data[i].SiteID = siteID
		}
	}
	return env.Data, nil
}

// List returns the site's backup artifacts, newest first.
func (r *Registry) List(ctx context.Context, siteID string) ([]models.BackupArtifact, error) {
	if err := validate.SiteID(siteID); err != nil {
		return nil, err
	}
	raw, err := r.cache.GetOrFetch(ctx, cache.Key(backupsPath(siteID), nil), cache.TTLBackups,
		func(ctx context.Context) ([]byte, error) {
			artifacts, err := listArtifacts(ctx, r.api, siteID)
			if err != nil {
				return nil, err
			}
			return json.Marshal(artifacts)
		})
	if err != nil {
		return nil, err
	}

	var artifacts []models.BackupArtifact
	if err := json.Unmarshal(raw, &artifacts); err != nil {
		return nil, transport.WrapError(transport.KindServer, err, "decoding cached backup listing")
	}
	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].CreatedAt.After(artifacts[j].CreatedAt)
	})
	return artifacts, nil
}

// Details returns one artifact from the site's listing by filename.
func (r *Registry) Details(ctx context.Context, siteID, filename string) (*models.BackupArtifact, error) {
	if filename == "" {
		return nil, transport.NewError(transport.KindValidation, "filename must not be empty")
	}
	artifacts, err := r.List(ctx, siteID)
	if err != nil {
		return nil, err
	}
	for i := range artifacts {
		if artifacts[i].Filename == filename {
			return &artifacts[i], nil
		}
	}
	return nil, transport.NewError(transport.KindNotFound, "backup %s not found on site %s", filename, siteID)
}

// DownloadOptions control one artifact download.
type DownloadOptions struct {
	// Destination is a local path, s3:// URL, or sftp:// URL.
	Destination string
	// VerifyChecksum compares the content hash with the controller's
	// reported digest and rejects the download on mismatch.
	VerifyChecksum bool
}

// Download streams an artifact from the controller into the destination
// while hashing it. On checksum mismatch the stored copy is removed and
// the call fails; a corrupt file is never left claiming to be valid.
func (r *Registry) Download(ctx context.Context, siteID, filename string, opts DownloadOptions) (*models.DownloadResult, error) {
	if err := validate.SiteID(siteID); err != nil {
		return nil, err
	}
	if filename == "" {
		return nil, transport.NewError(transport.KindValidation, "filename must not be empty")
	}
	destCfg, err := ParseDestination(opts.Destination)
	if err != nil {
		return nil, transport.WrapError(transport.KindValidation, err, "invalid destination")
	}
	dest, err := NewDestination(destCfg)
	if err != nil {
		return nil, transport.WrapError(transport.KindConfiguration, err, "building destination")
	}
	if closer, ok := dest.(io.Closer); ok {
		defer closer.Close()
	}

	body, header, err := r.api.Stream(ctx, backupPath(siteID, filename), nil)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	hasher := sha256.New()
	size, err := dest.Store(filename, io.TeeReader(body, hasher))
	if err != nil {
		return nil, transport.WrapError(transport.KindServer, err, "storing artifact %s", filename)
	}

	sum := hex.EncodeToString(hasher.Sum(nil))
	reported := strings.TrimPrefix(strings.TrimSpace(header.Get(checksumHeader)), "sha256:")

	result := &models.DownloadResult{
		Filename:   filename,
		OutputPath: opts.Destination,
		SizeBytes:  size,
		Checksum:   sum,
		FetchedAt:  timeNow(),
	}

	if opts.VerifyChecksum {
		if reported == "" {
			dest.Delete(filename)
			return nil, transport.NewError(transport.KindIntegrity,
				"controller reported no checksum for %s, cannot verify", filename)
		}
		if !strings.EqualFold(sum, reported) {
			dest.Delete(filename)
			return nil, transport.NewError(transport.KindIntegrity,
				"checksum mismatch for %s: computed %s, controller reported %s", filename, sum, reported)
		}
		result.Verified = true
	}

	if r.ledger != nil {
		if err := r.ledger.RecordDownload(ctx, siteID, *result); err != nil {
			logging.L().Warn("ledger write failed", "error", err)
		}
	}

	logging.L().Info("artifact downloaded",
		"site", siteID,
		"filename", filename,
		"destination", dest.Type(),
		"bytes", size,
		"verified", result.Verified,
	)
	return result, nil
}

// Validate checks an artifact's checksum, structure, and version
// compatibility on the controller. Read-only and idempotent.
func (r *Registry) Validate(ctx context.Context, siteID, filename string) (*models.ValidationResult, error) {
	if filename == "" {
		return nil, transport.NewError(transport.KindValidation, "filename must not be empty")
	}
	resp, err := r.api.Post(ctx, backupPath(siteID, filename)+"/validate", nil)
	if err != nil {
		return nil, err
	}
	var result models.ValidationResult
	if err := resp.Decode(&result); err != nil {
		return nil, err
	}
	if result.Filename == "" {
		result.Filename = filename
	}
	return &result, nil
}

// DeleteOptions control one artifact deletion.
type DeleteOptions struct {
	Confirm bool
	// DryRun validates and audits without issuing the delete.
	DryRun bool
}

// Delete removes an artifact from the controller. Requires confirm
// unless it is a dry run.
func (r *Registry) Delete(ctx context.Context, siteID, filename string, opts DeleteOptions) error {
	if !opts.Confirm && !opts.DryRun {
		return transport.NewError(transport.KindValidation,
			"backup deletion requires confirm=true")
	}
	if filename == "" {
		return transport.NewError(transport.KindValidation, "filename must not be empty")
	}

	if opts.DryRun {
		if auditErr := r.audit.Log("backup.delete", siteID, map[string]any{
			"filename": filename,
			"dry_run":  true,
		}, nil); auditErr != nil {
			logging.L().Warn("audit write failed", "error", auditErr)
		}
		return nil
	}

	_, err := r.api.Delete(ctx, backupPath(siteID, filename), nil)
	if auditErr := r.audit.Log("backup.delete", siteID, map[string]any{
		"filename": filename,
	}, err); auditErr != nil {
		logging.L().Warn("audit write failed", "error", auditErr)
	}
	if err != nil {
		return err
	}

	if cerr := r.cache.Invalidate(ctx, backupsPath(siteID)); cerr != nil {
		logging.L().Warn("cache invalidation failed", "prefix", backupsPath(siteID), "error", cerr)
	}
	return nil
}

// EnforceRetention deletes artifacts whose retention days have elapsed
// and, when keep > 0, the oldest expirable artifacts beyond that count.
// Artifacts with indefinite retention are never touched. Returns the
// number deleted; individual delete failures are logged and skipped so
// one stuck artifact does not block the rest.
func (r *Registry) EnforceRetention(ctx context.Context, siteID string, keep int) (int, error) {
	artifacts, err := listArtifacts(ctx, r.api, siteID)
	if err != nil {
		return 0, err
	}

	now := timeNow()
	expired := map[string]bool{}
	var expirable []models.BackupArtifact
	for _, a := range artifacts {
		if a.RetentionDays == models.RetentionIndefinite {
			continue
		}
		expirable = append(expirable, a)
		if a.RetentionDays > 0 && now.After(a.CreatedAt.AddDate(0, 0, a.RetentionDays)) {
			expired[a.Filename] = true
		}
	}

	sort.Slice(expirable, func(i, j int) bool {
		return expirable[i].CreatedAt.After(expirable[j].CreatedAt)
	})
	if keep > 0 && len(expirable) > keep {
		for _, a := range expirable[keep:] {
			expired[a.Filename] = true
		}
	}
	if len(expired) == 0 {
		return 0, nil
	}

	deleted := 0
	for _, a := range expirable {
		if !expired[a.Filename] {
			continue
		}
		if err := r.Delete(ctx, siteID, a.Filename, DeleteOptions{Confirm: true}); err != nil {
			logging.L().Warn("retention delete failed",
				"site", siteID,
				"filename", a.Filename,
				"error", err,
			)
			continue
		}
		deleted++
	}

	logging.L().Info("retention enforced", "site", siteID, "keep", keep, "deleted", deleted)
	return deleted, nil
}
