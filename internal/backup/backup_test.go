package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yourusername/unifi-ops/internal/cache"
	"github.com/yourusername/unifi-ops/internal/models"
	"github.com/yourusername/unifi-ops/internal/transport"
)

// fakeAPI records every call and dispatches to per-route handlers.
type fakeAPI struct {
	mu    sync.Mutex
	calls []string

	onGet    func(path string) (*transport.Response, error)
	onPost   func(path string, body any) (*transport.Response, error)
	onDelete func(path string) (*transport.Response, error)
	onStream func(path string) (io.ReadCloser, http.Header, error)
}

func (f *fakeAPI) record(method, path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, method+" "+path)
}

func (f *fakeAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeAPI) Get(_ context.Context, path string, _ url.Values) (*transport.Response, error) {
	f.record("GET", path)
	if f.onGet == nil {
		return jsonResponse(`{"data":[]}`), nil
	}
	return f.onGet(path)
}

func (f *fakeAPI) Post(_ context.Context, path string, body any) (*transport.Response, error) {
	f.record("POST", path)
	if f.onPost == nil {
		return jsonResponse(`{}`), nil
	}
	return f.onPost(path, body)
}

func (f *fakeAPI) Delete(_ context.Context, path string, _ url.Values) (*transport.Response, error) {
	f.record("DELETE", path)
	if f.onDelete == nil {
		return jsonResponse(`{}`), nil
	}
	return f.onDelete(path)
}

func (f *fakeAPI) Stream(_ context.Context, path string, _ url.Values) (io.ReadCloser, http.Header, error) {
	f.record("STREAM", path)
	if f.onStream == nil {
		return io.NopCloser(strings.NewReader("")), http.Header{}, nil
	}
	return f.onStream(path)
}

func jsonResponse(body string) *transport.Response {
	return &transport.Response{StatusCode: 200, Header: http.Header{}, Body: []byte(body)}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestTriggerRequiresConfirm(t *testing.T) {
	api := &fakeAPI{}
	o := NewOrchestrator(api, nil, nil)

	_, err := o.Trigger(context.Background(), "default", TriggerOptions{
		Type:          models.BackupNetwork,
		RetentionDays: 7,
	})
	if !transport.IsValidation(err) {
		t.Errorf("err = %v, want validation error", err)
	}
	if api.callCount() != 0 {
		t.Errorf("unconfirmed trigger issued %d network calls", api.callCount())
	}
}

func TestTriggerValidation(t *testing.T) {
	api := &fakeAPI{}
	o := NewOrchestrator(api, nil, nil)
	ctx := context.Background()

	cases := []TriggerOptions{
		{Type: "incremental", RetentionDays: 7, Confirm: true},
		{Type: models.BackupNetwork, RetentionDays: 0, Confirm: true},
		{Type: models.BackupNetwork, RetentionDays: -2, Confirm: true},
	}
	for _, opts := range cases {
		if _, err := o.Trigger(ctx, "default", opts); !transport.IsValidation(err) {
			t.Errorf("Trigger(%+v) err = %v, want validation error", opts, err)
		}
	}
	if _, err := o.Trigger(ctx, "", TriggerOptions{Type: models.BackupNetwork, RetentionDays: 7, Confirm: true}); !transport.IsValidation(err) {
		t.Errorf("empty site err = %v, want validation error", err)
	}
	if api.callCount() != 0 {
		t.Errorf("invalid triggers issued %d network calls", api.callCount())
	}
}

func TestTriggerDryRun(t *testing.T) {
	api := &fakeAPI{}
	o := NewOrchestrator(api, nil, nil)

	artifact, err := o.Trigger(context.Background(), "default", TriggerOptions{
		Type:          models.BackupSystem,
		RetentionDays: models.RetentionIndefinite,
		DryRun:        true,
	})
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if !artifact.DryRun || artifact.Type != models.BackupSystem || artifact.RetentionDays != models.RetentionIndefinite {
		t.Errorf("preview = %+v", artifact)
	}
	if api.callCount() != 0 {
		t.Errorf("dry run issued %d network calls", api.callCount())
	}
}

func TestTriggerPollsUntilArtifactAppears(t *testing.T) {
	listings := 0
	created := models.BackupArtifact{
		Filename:      "backup_20260830.unf",
		Type:          models.BackupNetwork,
		RetentionDays: 7,
		CreatedAt:     time.Now(),
		IsValid:       true,
	}
	api := &fakeAPI{
		onPost: func(path string, _ any) (*transport.Response, error) {
			return jsonResponse(`{"filename":"backup_20260830.unf"}`), nil
		},
		onGet: func(path string) (*transport.Response, error) {
			listings++
			if listings < 2 {
				return jsonResponse(`{"data":[]}`), nil
			}
			return jsonResponse(fmt.Sprintf(`{"data":[%s]}`, mustJSON(t, created))), nil
		},
	}
	o := NewOrchestrator(api, nil, nil)
	o.SetPollPolicy(time.Millisecond, time.Second)

	artifact, err := o.Trigger(context.Background(), "default", TriggerOptions{
		Type:          models.BackupNetwork,
		RetentionDays: 7,
		Confirm:       true,
	})
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if artifact.Filename != created.Filename || artifact.Type != models.BackupNetwork || artifact.RetentionDays != 7 {
		t.Errorf("artifact = %+v", artifact)
	}
	if listings < 2 {
		t.Errorf("listing polled %d times, want at least 2", listings)
	}
}

func TestTriggerTimesOut(t *testing.T) {
	api := &fakeAPI{
		onPost: func(string, any) (*transport.Response, error) {
			return jsonResponse(`{"filename":"never.unf"}`), nil
		},
	}
	o := NewOrchestrator(api, nil, nil)
	o.SetPollPolicy(time.Millisecond, 10*time.Millisecond)

	_, err := o.Trigger(context.Background(), "default", TriggerOptions{
		Type:          models.BackupNetwork,
		RetentionDays: 7,
		Confirm:       true,
	})
	if !transport.IsTimeout(err) {
		t.Errorf("err = %v, want timeout", err)
	}
}

func TestTriggerRefreshesListing(t *testing.T) {
	var mu sync.Mutex
	triggered := false
	created := models.BackupArtifact{
		Filename:      "backup_new.unf",
		Type:          models.BackupNetwork,
		RetentionDays: 7,
		CreatedAt:     time.Now(),
		IsValid:       true,
	}
	api := &fakeAPI{
		onPost: func(string, any) (*transport.Response, error) {
			mu.Lock()
			triggered = true
			mu.Unlock()
			return jsonResponse(`{"filename":"backup_new.unf"}`), nil
		},
		onGet: func(string) (*transport.Response, error) {
			mu.Lock()
			defer mu.Unlock()
			if !triggered {
				return jsonResponse(`{"data":[]}`), nil
			}
			return jsonResponse(fmt.Sprintf(`{"data":[%s]}`, mustJSON(t, created))), nil
		},
	}
	shared := cache.New(cache.NewMemoryStore())
	r := NewRegistry(api, shared, nil, nil)
	o := NewOrchestrator(api, shared, nil)
	o.SetPollPolicy(time.Millisecond, time.Second)
	ctx := context.Background()

	// Warm the cache with the pre-trigger listing.
	if artifacts, err := r.List(ctx, "default"); err != nil || len(artifacts) != 0 {
		t.Fatalf("initial List = %v, %v", artifacts, err)
	}

	if _, err := o.Trigger(ctx, "default", TriggerOptions{
		Type:          models.BackupNetwork,
		RetentionDays: 7,
		Confirm:       true,
	}); err != nil {
		t.Fatalf("Trigger: %v", err)
	}

	// The trigger invalidated the listing, so the new artifact is
	// visible without waiting out the TTL.
	artifacts, err := r.List(ctx, "default")
	if err != nil {
		t.Fatalf("List after trigger: %v", err)
	}
	if len(artifacts) != 1 || artifacts[0].Filename != "backup_new.unf" {
		t.Errorf("listing after trigger = %+v, want the new artifact", artifacts)
	}
}

func TestListSortsNewestFirst(t *testing.T) {
	older := models.BackupArtifact{Filename: "a.unf", CreatedAt: time.Now().Add(-time.Hour)}
	newer := models.BackupArtifact{Filename: "b.unf", CreatedAt: time.Now()}
	api := &fakeAPI{
		onGet: func(string) (*transport.Response, error) {
			return jsonResponse(fmt.Sprintf(`{"data":[%s,%s]}`, mustJSON(t, older), mustJSON(t, newer))), nil
		},
	}
	r := NewRegistry(api, nil, nil, nil)

	artifacts, err := r.List(context.Background(), "default")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(artifacts) != 2 || artifacts[0].Filename != "b.unf" {
		t.Errorf("artifacts = %+v", artifacts)
	}
	if artifacts[0].SiteID != "default" {
		t.Errorf("site id not backfilled: %+v", artifacts[0])
	}
}

func TestDetails(t *testing.T) {
	artifact := models.BackupArtifact{Filename: "a.unf", Type: models.BackupNetwork, CreatedAt: time.Now()}
	api := &fakeAPI{
		onGet: func(string) (*transport.Response, error) {
			return jsonResponse(fmt.Sprintf(`{"data":[%s]}`, mustJSON(t, artifact))), nil
		},
	}
	r := NewRegistry(api, nil, nil, nil)
	ctx := context.Background()

	got, err := r.Details(ctx, "default", "a.unf")
	if err != nil {
		t.Fatalf("Details: %v", err)
	}
	if got.Filename != "a.unf" || got.SiteID != "default" {
		t.Errorf("artifact = %+v", got)
	}

	if _, err := r.Details(ctx, "default", "missing.unf"); !transport.IsNotFound(err) {
		t.Errorf("missing artifact err = %v, want not found", err)
	}
}

func TestValidateIsIdempotent(t *testing.T) {
	api := &fakeAPI{
		onPost: func(path string, _ any) (*transport.Response, error) {
			return jsonResponse(`{"isValid":true,"checksumOk":true,"formatOk":true,"versionCompatible":true}`), nil
		},
	}
	r := NewRegistry(api, nil, nil, nil)
	ctx := context.Background()

	first, err := r.Validate(ctx, "default", "backup.unf")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	second, err := r.Validate(ctx, "default", "backup.unf")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if first.IsValid != second.IsValid || first.ChecksumOK != second.ChecksumOK ||
		first.FormatOK != second.FormatOK || first.VersionCompatible != second.VersionCompatible {
		t.Errorf("results differ: %+v vs %+v", first, second)
	}
	if !first.IsValid || first.Filename != "backup.unf" {
		t.Errorf("result = %+v", first)
	}
}

func TestDeleteRequiresConfirm(t *testing.T) {
	api := &fakeAPI{}
	r := NewRegistry(api, nil, nil, nil)

	err := r.Delete(context.Background(), "default", "backup.unf", DeleteOptions{})
	if !transport.IsValidation(err) {
		t.Errorf("err = %v, want validation error", err)
	}
	if api.callCount() != 0 {
		t.Errorf("unconfirmed delete issued %d network calls", api.callCount())
	}
}

func TestDeleteDryRun(t *testing.T) {
	api := &fakeAPI{}
	r := NewRegistry(api, nil, nil, nil)

	err := r.Delete(context.Background(), "default", "backup.unf", DeleteOptions{DryRun: true})
	if err != nil {
		t.Fatalf("dry run delete: %v", err)
	}
	if api.callCount() != 0 {
		t.Errorf("dry run issued %d network calls", api.callCount())
	}
}

func TestEnforceRetention(t *testing.T) {
	now := time.Now()
	artifacts := []models.BackupArtifact{
		{Filename: "newest.unf", RetentionDays: 7, CreatedAt: now},
		{Filename: "middle.unf", RetentionDays: 7, CreatedAt: now.Add(-time.Hour)},
		{Filename: "oldest.unf", RetentionDays: 7, CreatedAt: now.Add(-2 * time.Hour)},
		{Filename: "keeper.unf", RetentionDays: models.RetentionIndefinite, CreatedAt: now.Add(-3 * time.Hour)},
	}
	var deleted []string
	api := &fakeAPI{
		onGet: func(string) (*transport.Response, error) {
			return jsonResponse(fmt.Sprintf(`{"data":%s}`, mustJSON(t, artifacts))), nil
		},
		onDelete: func(path string) (*transport.Response, error) {
			deleted = append(deleted, path)
			return jsonResponse(`{}`), nil
		},
	}
	r := NewRegistry(api, nil, nil, nil)

	n, err := r.EnforceRetention(context.Background(), "default", 2)
	if err != nil {
		t.Fatalf("EnforceRetention: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted %d artifacts, want 1", n)
	}
	if len(deleted) != 1 || !strings.Contains(deleted[0], "oldest.unf") {
		t.Errorf("deleted = %v, want only oldest.unf (indefinite retention untouched)", deleted)
	}
}

func TestEnforceRetentionAgeExpiry(t *testing.T) {
	now := time.Now()
	artifacts := []models.BackupArtifact{
		{Filename: "fresh.unf", RetentionDays: 7, CreatedAt: now.Add(-24 * time.Hour)},
		{Filename: "stale.unf", RetentionDays: 7, CreatedAt: now.Add(-10 * 24 * time.Hour)},
		{Filename: "forever.unf", RetentionDays: models.RetentionIndefinite, CreatedAt: now.Add(-365 * 24 * time.Hour)},
	}
	var deleted []string
	api := &fakeAPI{
		onGet: func(string) (*transport.Response, error) {
			return jsonResponse(fmt.Sprintf(`{"data":%s}`, mustJSON(t, artifacts))), nil
		},
		onDelete: func(path string) (*transport.Response, error) {
			deleted = append(deleted, path)
			return jsonResponse(`{}`), nil
		},
	}
	r := NewRegistry(api, nil, nil, nil)

	// No keep count: only age expiry applies.
	n, err := r.EnforceRetention(context.Background(), "default", 0)
	if err != nil {
		t.Fatalf("EnforceRetention: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted %d artifacts, want 1", n)
	}
	if len(deleted) != 1 || !strings.Contains(deleted[0], "stale.unf") {
		t.Errorf("deleted = %v, want only stale.unf", deleted)
	}
}
