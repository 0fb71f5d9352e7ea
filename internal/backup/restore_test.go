package backup

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yourusername/unifi-ops/internal/models"
	"github.com/yourusername/unifi-ops/internal/transport"
)

// restoreHarness wires a restorer over one fake API with a controllable
// validation verdict and instant backup polling. The orchestrator is
// returned too so tests can trigger backups against in-flight restores.
func restoreHarness(api *fakeAPI) (*Restorer, *Orchestrator) {
	registry := NewRegistry(api, nil, nil, nil)
	orchestrator := NewOrchestrator(api, nil, nil)
	orchestrator.SetPollPolicy(time.Millisecond, time.Second)
	return NewRestorer(api, registry, orchestrator, nil, nil), orchestrator
}

// restoreAPI stubs the three endpoints a restore touches: validation,
// backup trigger + listing, and the restore call itself.
func restoreAPI(t *testing.T, valid bool) *fakeAPI {
	t.Helper()
	pre := models.BackupArtifact{
		Filename:      "pre_restore.unf",
		Type:          models.BackupNetwork,
		RetentionDays: preRestoreRetentionDays,
		CreatedAt:     time.Now(),
		IsValid:       true,
	}
	api := &fakeAPI{}
	api.onPost = func(path string, _ any) (*transport.Response, error) {
		switch {
		case strings.HasSuffix(path, "/validate"):
			return jsonResponse(fmt.Sprintf(`{"isValid":%v,"checksumOk":%v,"formatOk":true,"versionCompatible":true}`, valid, valid)), nil
		case strings.HasSuffix(path, "/backups"):
			return jsonResponse(`{"filename":"pre_restore.unf"}`), nil
		case strings.HasSuffix(path, "/restore"):
			return jsonResponse(`{}`), nil
		default:
			t.Fatalf("unexpected POST %s", path)
			return nil, nil
		}
	}
	api.onGet = func(string) (*transport.Response, error) {
		return jsonResponse(fmt.Sprintf(`{"data":[%s]}`, mustJSON(t, pre))), nil
	}
	return api
}

func TestRestoreRequiresConfirm(t *testing.T) {
	api := restoreAPI(t, true)
	r, _ := restoreHarness(api)

	_, err := r.Restore(context.Background(), "default", "backup.unf", RestoreOptions{})
	if !transport.IsValidation(err) {
		t.Errorf("err = %v, want validation error", err)
	}
	if api.callCount() != 0 {
		t.Errorf("unconfirmed restore issued %d network calls", api.callCount())
	}
}

func TestRestoreInvalidArtifactRejected(t *testing.T) {
	api := restoreAPI(t, false)
	r, _ := restoreHarness(api)

	op, err := r.Restore(context.Background(), "default", "corrupt.unf", RestoreOptions{
		Confirm:                true,
		CreatePreRestoreBackup: true,
	})
	if !transport.IsValidation(err) {
		t.Errorf("err = %v, want validation error", err)
	}
	if op.State != models.RestoreRejected {
		t.Errorf("state = %s, want rejected", op.State)
	}
	if op.PreBackupFilename != "" {
		t.Error("rejected restore created a pre-restore backup")
	}

	// The only network call should be the validation POST.
	for _, call := range api.calls {
		if strings.HasSuffix(call, "/restore") || strings.HasSuffix(call, "/backups") && strings.HasPrefix(call, "POST") {
			t.Errorf("rejected restore issued %s", call)
		}
	}
}

func TestRestoreWithPreBackupOrdering(t *testing.T) {
	api := restoreAPI(t, true)
	r, _ := restoreHarness(api)

	op, err := r.Restore(context.Background(), "default", "backup.unf", RestoreOptions{
		Confirm:                true,
		CreatePreRestoreBackup: true,
	})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if op.State != models.RestoreCompleted {
		t.Errorf("state = %s", op.State)
	}
	if op.PreBackupFilename != "pre_restore.unf" {
		t.Errorf("pre backup filename = %q", op.PreBackupFilename)
	}

	// The pre-restore backup POST must come before the restore POST.
	backupIdx, restoreIdx := -1, -1
	for i, call := range api.calls {
		if strings.HasPrefix(call, "POST") && strings.HasSuffix(call, "/backups") {
			backupIdx = i
		}
		if strings.HasSuffix(call, "/restore") {
			restoreIdx = i
		}
	}
	if backupIdx == -1 || restoreIdx == -1 {
		t.Fatalf("calls = %v", api.calls)
	}
	if backupIdx > restoreIdx {
		t.Errorf("restore call issued before pre-restore backup: %v", api.calls)
	}
}

func TestRestoreWithoutPreBackup(t *testing.T) {
	api := restoreAPI(t, true)
	r, _ := restoreHarness(api)

	op, err := r.Restore(context.Background(), "default", "backup.unf", RestoreOptions{Confirm: true})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if op.State != models.RestoreCompleted || op.PreBackupFilename != "" {
		t.Errorf("op = %+v", op)
	}
	for _, call := range api.calls {
		if strings.HasPrefix(call, "POST") && strings.HasSuffix(call, "/backups") {
			t.Errorf("pre-restore backup created without being requested: %v", api.calls)
		}
	}
}

func TestRestoreFailureExposesRollback(t *testing.T) {
	api := restoreAPI(t, true)
	inner := api.onPost
	api.onPost = func(path string, body any) (*transport.Response, error) {
		if strings.HasSuffix(path, "/restore") {
			return nil, transport.NewError(transport.KindServer, "controller rejected restore")
		}
		return inner(path, body)
	}
	r, _ := restoreHarness(api)

	op, err := r.Restore(context.Background(), "default", "backup.unf", RestoreOptions{
		Confirm:                true,
		CreatePreRestoreBackup: true,
	})
	if err == nil {
		t.Fatal("expected restore failure")
	}
	if op.State != models.RestoreFailed {
		t.Errorf("state = %s", op.State)
	}
	if !op.CanRollback || op.PreBackupFilename != "pre_restore.unf" {
		t.Errorf("rollback not exposed: %+v", op)
	}
}

func TestConcurrentRestoreSameSiteConflicts(t *testing.T) {
	api := restoreAPI(t, true)

	// Hold the first restore inside the restore call until released.
	// Later restores pass straight through.
	release := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once
	inner := api.onPost
	api.onPost = func(path string, body any) (*transport.Response, error) {
		if strings.HasSuffix(path, "/restore") {
			once.Do(func() {
				close(entered)
				<-release
			})
		}
		return inner(path, body)
	}
	r, _ := restoreHarness(api)
	ctx := context.Background()

	var wg sync.WaitGroup
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = r.Restore(ctx, "default", "backup.unf", RestoreOptions{Confirm: true})
	}()

	<-entered
	_, secondErr := r.Restore(ctx, "default", "backup.unf", RestoreOptions{Confirm: true})
	if !transport.IsConflict(secondErr) {
		t.Errorf("second restore err = %v, want conflict", secondErr)
	}

	close(release)
	wg.Wait()
	if firstErr != nil {
		t.Errorf("first restore err = %v", firstErr)
	}

	// The slot is released after the first finishes.
	if _, err := r.Restore(ctx, "default", "backup.unf", RestoreOptions{Confirm: true}); err != nil {
		t.Errorf("restore after release err = %v", err)
	}
}

func TestBackupDuringActiveRestoreConflicts(t *testing.T) {
	api := restoreAPI(t, true)

	// Hold the first restore at the restore call so it is mid-flight
	// when the backup trigger arrives.
	release := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once
	inner := api.onPost
	api.onPost = func(path string, body any) (*transport.Response, error) {
		if strings.HasSuffix(path, "/restore") {
			once.Do(func() {
				close(entered)
				<-release
			})
		}
		return inner(path, body)
	}
	r, o := restoreHarness(api)
	ctx := context.Background()

	var wg sync.WaitGroup
	var restoreErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, restoreErr = r.Restore(ctx, "default", "backup.unf", RestoreOptions{Confirm: true})
	}()

	<-entered
	_, err := o.Trigger(ctx, "default", TriggerOptions{Type: models.BackupNetwork, RetentionDays: 7, Confirm: true})
	if !transport.IsConflict(err) {
		t.Errorf("trigger during restore err = %v, want conflict", err)
	}

	// Another site is unaffected.
	if _, err := o.Trigger(ctx, "site-b", TriggerOptions{Type: models.BackupNetwork, RetentionDays: 7, Confirm: true}); err != nil {
		t.Errorf("trigger on other site err = %v", err)
	}

	close(release)
	wg.Wait()
	if restoreErr != nil {
		t.Fatalf("restore err = %v", restoreErr)
	}

	if _, err := o.Trigger(ctx, "default", TriggerOptions{Type: models.BackupNetwork, RetentionDays: 7, Confirm: true}); err != nil {
		t.Errorf("trigger after restore finished err = %v", err)
	}
}

func TestBackupAllowedWhileRestoreValidating(t *testing.T) {
	api := restoreAPI(t, true)

	// Hold the restore in its validation phase; backups may still run.
	release := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once
	inner := api.onPost
	api.onPost = func(path string, body any) (*transport.Response, error) {
		if strings.HasSuffix(path, "/validate") {
			once.Do(func() {
				close(entered)
				<-release
			})
		}
		return inner(path, body)
	}
	r, o := restoreHarness(api)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.Restore(ctx, "default", "backup.unf", RestoreOptions{Confirm: true})
	}()

	<-entered
	if _, err := o.Trigger(ctx, "default", TriggerOptions{Type: models.BackupNetwork, RetentionDays: 7, Confirm: true}); err != nil {
		t.Errorf("trigger during validation err = %v", err)
	}

	close(release)
	wg.Wait()
}

func TestRestoreWithPreBackupDuringRestoreSucceeds(t *testing.T) {
	// The restore's own safety backup runs while the site slot is held
	// and must not trip the backup conflict guard.
	api := restoreAPI(t, true)
	r, _ := restoreHarness(api)

	op, err := r.Restore(context.Background(), "default", "backup.unf", RestoreOptions{
		Confirm:                true,
		CreatePreRestoreBackup: true,
	})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if op.PreBackupFilename != "pre_restore.unf" {
		t.Errorf("pre backup filename = %q", op.PreBackupFilename)
	}
}

func TestRestoreDryRun(t *testing.T) {
	api := restoreAPI(t, true)
	r, _ := restoreHarness(api)

	op, err := r.Restore(context.Background(), "default", "backup.unf", RestoreOptions{DryRun: true})
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if !op.DryRun {
		t.Error("operation not marked as a dry run")
	}
	if op.State != models.RestoreValidated {
		t.Errorf("state = %s, want validated", op.State)
	}

	// Validation is the only network call; the controller is untouched.
	if len(api.calls) != 1 || !strings.HasSuffix(api.calls[0], "/validate") {
		t.Errorf("calls = %v, want a single validate", api.calls)
	}

	// The site slot is free afterwards.
	if _, err := r.Restore(context.Background(), "default", "backup.unf", RestoreOptions{Confirm: true}); err != nil {
		t.Errorf("restore after dry run err = %v", err)
	}
}

func TestRestoreDryRunInvalidArtifact(t *testing.T) {
	api := restoreAPI(t, false)
	r, _ := restoreHarness(api)

	op, err := r.Restore(context.Background(), "default", "corrupt.unf", RestoreOptions{DryRun: true})
	if !transport.IsValidation(err) {
		t.Errorf("err = %v, want validation error", err)
	}
	if op.State != models.RestoreRejected {
		t.Errorf("state = %s, want rejected", op.State)
	}
}

func TestConcurrentRestoreDifferentSites(t *testing.T) {
	api := restoreAPI(t, true)
	r, _ := restoreHarness(api)
	ctx := context.Background()

	if _, err := r.Restore(ctx, "site-a", "backup.unf", RestoreOptions{Confirm: true}); err != nil {
		t.Errorf("site-a: %v", err)
	}
	if _, err := r.Restore(ctx, "site-b", "backup.unf", RestoreOptions{Confirm: true}); err != nil {
		t.Errorf("site-b: %v", err)
	}
}
