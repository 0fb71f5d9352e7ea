package backup

import (
	"context"
	"time"

	"github.com/yourusername/unifi-ops/internal/audit"
	"github.com/yourusername/unifi-ops/internal/cache"
	"github.com/yourusername/unifi-ops/internal/logging"
	"github.com/yourusername/unifi-ops/internal/models"
	"github.com/yourusername/unifi-ops/internal/transport"
	"github.com/yourusername/unifi-ops/internal/validate"
)

// TriggerOptions control one backup creation request.
type TriggerOptions struct {
	Type          models.BackupType
	RetentionDays int
	Confirm       bool
	DryRun        bool
}

// Orchestrator triggers backup creation on the controller and waits for
// the artifact to materialize. Creation is asynchronous controller-side,
// so a trigger is a POST followed by polling the artifact listing.
type Orchestrator struct {
	api   API
	cache *cache.Cache
	audit *audit.Logger

	// restoreGuard reports whether an in-flight restore on the site has
	// moved past validation. Bound by NewRestorer.
	restoreGuard func(siteID string) (string, bool)

	pollInterval time.Duration
	pollTimeout  time.Duration
	now          func() time.Time
}

// NewOrchestrator wires an orchestrator. c and auditLog may be nil.
func NewOrchestrator(api API, c *cache.Cache, auditLog *audit.Logger) *Orchestrator {
	if c == nil {
		c = cache.New(nil)
	}
	return &Orchestrator{
		api:          api,
		cache:        c,
		audit:        auditLog,
		pollInterval: 2 * time.Second,
		pollTimeout:  5 * time.Minute,
		now:          time.Now,
	}
}

// SetPollPolicy overrides the completion-poll interval and ceiling.
func (o *Orchestrator) SetPollPolicy(interval, timeout time.Duration) {
	if interval > 0 {
		o.pollInterval = interval
	}
	if timeout > 0 {
		o.pollTimeout = timeout
	}
}

type triggerRequest struct {
	Type          string `json:"type"`
	RetentionDays int    `json:"retentionDays"`
}

type triggerResponse struct {
	Filename string `json:"filename"`
}

// Trigger creates a backup for a site. Validation happens before any
// network call; dry runs stop there and return a synthetic preview.
// Cancelling ctx abandons the wait only, never the server-side backup.
func (o *Orchestrator) Trigger(ctx context.Context, siteID string, opts TriggerOptions) (*models.BackupArtifact, error) {
	if err := validateTrigger(siteID, opts); err != nil {
		return nil, err
	}

	if opts.DryRun {
		return &models.BackupArtifact{
			SiteID:        siteID,
			Type:          opts.Type,
			RetentionDays: opts.RetentionDays,
			CreatedAt:     o.now().UTC(),
			DryRun:        true,
		}, nil
	}

	if o.restoreGuard != nil {
		if opID, busy := o.restoreGuard(siteID); busy {
			return nil, transport.NewError(transport.KindConflict,
				"restore %s is past validation on site %s, backup rejected", opID, siteID)
		}
	}

	return o.run(ctx, siteID, opts)
}

// run triggers the backup, audits the outcome, and refreshes the cached
// listing so a List immediately after the trigger sees the new artifact.
func (o *Orchestrator) run(ctx context.Context, siteID string, opts TriggerOptions) (*models.BackupArtifact, error) {
	artifact, err := o.trigger(ctx, siteID, opts)
	if auditErr := o.audit.Log("backup.trigger", siteID, map[string]any{
		"type":           string(opts.Type),
		"retention_days": opts.RetentionDays,
	}, err); auditErr != nil {
		logging.L().Warn("audit write failed", "error", auditErr)
	}
	if err == nil {
		if cerr := o.cache.Invalidate(ctx, backupsPath(siteID)); cerr != nil {
			logging.L().Warn("cache invalidation failed", "prefix", backupsPath(siteID), "error", cerr)
		}
	}
	return artifact, err
}

// triggerForRestore runs a confirmed backup on behalf of an in-flight
// restore. The conflict guard would otherwise reject the restore's own
// safety backup.
func (o *Orchestrator) triggerForRestore(ctx context.Context, siteID string, opts TriggerOptions) (*models.BackupArtifact, error) {
	if err := validateTrigger(siteID, opts); err != nil {
		return nil, err
	}
	return o.run(ctx, siteID, opts)
}

func (o *Orchestrator) trigger(ctx context.Context, siteID string, opts TriggerOptions) (*models.BackupArtifact, error) {
	startedAt := o.now()

	resp, err := o.api.Post(ctx, backupsPath(siteID), triggerRequest{
		Type:          string(opts.Type),
		RetentionDays: opts.RetentionDays,
	})
	if err != nil {
		return nil, err
	}

	var created triggerResponse
	if len(resp.Body) > 0 {
		if err := resp.Decode(&created); err != nil {
			return nil, err
		}
	}

	logging.L().Info("backup triggered",
		"site", siteID,
		"type", opts.Type,
		"filename", created.Filename,
	)

	return o.awaitArtifact(ctx, siteID, created.Filename, startedAt)
}

// awaitArtifact polls the listing until the new artifact appears. When
// the trigger response named no file, the first artifact created at or
// after the trigger is taken.
func (o *Orchestrator) awaitArtifact(ctx context.Context, siteID, filename string, since time.Time) (*models.BackupArtifact, error) {
	deadline := o.now().Add(o.pollTimeout)
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for {
		artifacts, err := listArtifacts(ctx, o.api, siteID)
		if err == nil {
			for i := range artifacts {
				a := &artifacts[i]
				if filename != "" && a.Filename == filename {
					return a, nil
				}
				if filename == "" && !a.CreatedAt.Before(since.Add(-time.Second)) {
					return a, nil
				}
			}
		} else if !transport.IsServer(err) && !transport.IsRateLimit(err) && !transport.IsTimeout(err) {
			return nil, err
		}

		if o.now().After(deadline) {
			return nil, transport.NewError(transport.KindTimeout,
				"backup for site %s not observed within %s", siteID, o.pollTimeout)
		}

		select {
		case <-ctx.Done():
			return nil, transport.WrapError(transport.KindTimeout, ctx.Err(),
				"abandoned waiting for backup on site %s", siteID)
		case <-ticker.C:
		}
	}
}

func validateTrigger(siteID string, opts TriggerOptions) error {
	if !opts.Confirm && !opts.DryRun {
		return transport.NewError(transport.KindValidation,
			"backup creation requires confirm=true")
	}
	if err := validate.SiteID(siteID); err != nil {
		return err
	}
	if !opts.Type.Valid() {
		return transport.NewError(transport.KindValidation,
			"backup type must be %q or %q, got %q", models.BackupNetwork, models.BackupSystem, opts.Type)
	}
	if opts.RetentionDays != models.RetentionIndefinite && opts.RetentionDays <= 0 {
		return transport.NewError(transport.KindValidation,
			"retention days must be %d (indefinite) or a positive integer, got %d",
			models.RetentionIndefinite, opts.RetentionDays)
	}
	return nil
}
