package backup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/unifi-ops/internal/audit"
	"github.com/yourusername/unifi-ops/internal/logging"
	"github.com/yourusername/unifi-ops/internal/models"
	"github.com/yourusername/unifi-ops/internal/store"
	"github.com/yourusername/unifi-ops/internal/transport"
	"github.com/yourusername/unifi-ops/internal/validate"
)

// preRestoreRetentionDays bounds how long an automatic safety backup is
// kept on the controller.
const preRestoreRetentionDays = 7

// RestoreOptions control one restore request.
type RestoreOptions struct {
	Confirm                bool
	CreatePreRestoreBackup bool
	// DryRun validates the target and reports what a restore would do
	// without claiming the site slot or changing controller state.
	DryRun bool
}

// Restorer walks a restore through its lifecycle: validate the target,
// optionally create a safety backup, then issue the restore. The safety
// backup is always recorded before the restore call goes out, so a
// rollback point exists before any risk is taken. One restore may run
// per site at a time; a second request is rejected, never queued.
type Restorer struct {
	api          API
	registry     *Registry
	orchestrator *Orchestrator
	ledger       *store.DB
	audit        *audit.Logger

	mu     sync.Mutex
	active map[string]*activeRestore
	now    func() time.Time
}

// activeRestore tracks one in-flight restore's slot. State is mirrored
// here under the restorer's lock so the orchestrator's conflict guard
// can read it without racing the operation itself.
type activeRestore struct {
	opID  string
	state models.RestoreState
}

// NewRestorer wires a restorer and binds the orchestrator's
// restore-conflict guard to it. ledger and auditLog may be nil.
func NewRestorer(api API, registry *Registry, orchestrator *Orchestrator, ledger *store.DB, auditLog *audit.Logger) *Restorer {
	r := &Restorer{
		api:          api,
		registry:     registry,
		orchestrator: orchestrator,
		ledger:       ledger,
		audit:        auditLog,
		active:       make(map[string]*activeRestore),
		now:          time.Now,
	}
	if orchestrator != nil {
		orchestrator.restoreGuard = r.blocksBackup
	}
	return r
}

type restoreRequest struct {
	Filename string `json:"filename"`
}

// Restore restores a site from the named artifact. The confirmation
// gate fires before any network call. The returned operation is always
// non-nil when an attempt was made, including failed ones; callers read
// its state, rollback eligibility, and pre-restore artifact from it.
func (r *Restorer) Restore(ctx context.Context, siteID, filename string, opts RestoreOptions) (*models.RestoreOperation, error) {
	if !opts.Confirm && !opts.DryRun {
		return nil, transport.NewError(transport.KindValidation,
			"restore requires confirm=true")
	}
	if err := validate.SiteID(siteID); err != nil {
		return nil, err
	}
	if filename == "" {
		return nil, transport.NewError(transport.KindValidation,
			"filename must not be empty")
	}

	op := &models.RestoreOperation{
		ID:                 uuid.NewString(),
		SiteID:             siteID,
		TargetFilename:     filename,
		State:              models.RestoreRequested,
		PreBackupRequested: opts.CreatePreRestoreBackup,
		StartedAt:          r.now().UTC(),
	}

	if opts.DryRun {
		return r.dryRun(ctx, op)
	}

	if err := r.claim(siteID, op.ID); err != nil {
		return nil, err
	}
	defer r.release(siteID, op.ID)

	err := r.run(ctx, op, opts)
	if auditErr := r.audit.Log("backup.restore", siteID, map[string]any{
		"filename":           filename,
		"pre_restore_backup": opts.CreatePreRestoreBackup,
		"state":              string(op.State),
	}, err); auditErr != nil {
		logging.L().Warn("audit write failed", "error", auditErr)
	}
	return op, err
}

// dryRun validates the target read-only and reports what a real restore
// would do. No slot is claimed and nothing is persisted to the ledger;
// only the audit log records the rehearsal.
func (r *Restorer) dryRun(ctx context.Context, op *models.RestoreOperation) (*models.RestoreOperation, error) {
	op.DryRun = true
	op.State = models.RestoreValidating

	result, err := r.registry.Validate(ctx, op.SiteID, op.TargetFilename)
	switch {
	case err != nil:
		op.Error = err.Error()
		op.State = models.RestoreFailed
	case !result.IsValid:
		op.Error = fmt.Sprintf("artifact failed validation: %v", result.Errors)
		op.State = models.RestoreRejected
		err = transport.NewError(transport.KindValidation,
			"artifact %s is not a valid restore target: %v", op.TargetFilename, result.Errors)
	default:
		op.State = models.RestoreValidated
	}
	done := r.now().UTC()
	op.FinishedAt = &done

	if auditErr := r.audit.Log("backup.restore", op.SiteID, map[string]any{
		"filename":           op.TargetFilename,
		"pre_restore_backup": op.PreBackupRequested,
		"dry_run":            true,
	}, err); auditErr != nil {
		logging.L().Warn("audit write failed", "error", auditErr)
	}
	return op, err
}

func (r *Restorer) run(ctx context.Context, op *models.RestoreOperation, opts RestoreOptions) error {
	r.transition(ctx, op, models.RestoreValidating)

	result, err := r.registry.Validate(ctx, op.SiteID, op.TargetFilename)
	if err != nil {
		return r.fail(ctx, op, err)
	}
	if !result.IsValid {
		op.Error = fmt.Sprintf("artifact failed validation: %v", result.Errors)
		r.finish(ctx, op, models.RestoreRejected)
		return transport.NewError(transport.KindValidation,
			"artifact %s is not a valid restore target: %v", op.TargetFilename, result.Errors)
	}
	r.transition(ctx, op, models.RestoreValidated)

	if opts.CreatePreRestoreBackup {
		r.transition(ctx, op, models.RestorePreBackup)
		pre, err := r.orchestrator.triggerForRestore(ctx, op.SiteID, TriggerOptions{
			Type:          models.BackupNetwork,
			RetentionDays: preRestoreRetentionDays,
			Confirm:       true,
		})
		if err != nil {
			return r.fail(ctx, op, transport.WrapError(transport.KindOf(err), err,
				"pre-restore backup failed, restore not attempted"))
		}
		// Recorded before the restore call is issued. This ordering is
		// the rollback guarantee.
		op.PreBackupFilename = pre.Filename
		r.persist(ctx, op)
	}

	r.transition(ctx, op, models.RestoreRestoring)
	_, err = r.api.Post(ctx, sitePath(op.SiteID, "/restore"), restoreRequest{
		Filename: op.TargetFilename,
	})
	if err != nil {
		op.CanRollback = op.PreBackupFilename != ""
		return r.fail(ctx, op, err)
	}

	// The controller restarts to apply the restore; initiation is the
	// terminal success here, not full convergence.
	r.finish(ctx, op, models.RestoreCompleted)
	logging.L().Info("restore initiated",
		"site", op.SiteID,
		"filename", op.TargetFilename,
		"pre_backup", op.PreBackupFilename,
	)
	return nil
}

// claim reserves the site's restore slot. Concurrent restores against
// one controller race unrecoverably, so the loser is rejected outright.
func (r *Restorer) claim(siteID, opID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if holder, busy := r.active[siteID]; busy {
		return transport.NewError(transport.KindConflict,
			"a restore is already in progress for site %s (operation %s)", siteID, holder.opID)
	}
	r.active[siteID] = &activeRestore{opID: opID, state: models.RestoreRequested}
	return nil
}

func (r *Restorer) release(siteID, opID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.active[siteID]; ok && a.opID == opID {
		delete(r.active, siteID)
	}
}

// blocksBackup reports whether an active restore on the site has moved
// past validation. A backup may still run alongside a restore that is
// merely validating; once the pre-backup or the restore itself is in
// flight, a concurrent backup would race it.
func (r *Restorer) blocksBackup(siteID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.active[siteID]
	if !ok {
		return "", false
	}
	if a.state == models.RestorePreBackup || a.state == models.RestoreRestoring {
		return a.opID, true
	}
	return "", false
}

func (r *Restorer) transition(ctx context.Context, op *models.RestoreOperation, next models.RestoreState) {
	op.State = next
	r.mu.Lock()
	if a, ok := r.active[op.SiteID]; ok && a.opID == op.ID {
		a.state = next
	}
	r.mu.Unlock()
	r.persist(ctx, op)
}

func (r *Restorer) finish(ctx context.Context, op *models.RestoreOperation, state models.RestoreState) {
	op.State = state
	done := r.now().UTC()
	op.FinishedAt = &done
	r.persist(ctx, op)
}

func (r *Restorer) fail(ctx context.Context, op *models.RestoreOperation, err error) error {
	op.Error = err.Error()
	r.finish(ctx, op, models.RestoreFailed)
	return err
}

// persist writes the operation's latest state to the ledger so history
// survives the process, even when a restore dies mid-flight.
func (r *Restorer) persist(ctx context.Context, op *models.RestoreOperation) {
	if r.ledger == nil {
		return
	}
	if err := r.ledger.SaveRestore(ctx, op); err != nil {
		logging.L().Warn("ledger write failed", "operation", op.ID, "error", err)
	}
}

// History returns past restore operations for a site, newest first.
func (r *Restorer) History(ctx context.Context, siteID string, limit int) ([]models.RestoreOperation, error) {
	if r.ledger == nil {
		return nil, nil
	}
	return r.ledger.Restores(ctx, siteID, limit)
}
