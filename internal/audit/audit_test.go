package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLogWritesJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "audit.log")
	l, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	fixed := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	if err := l.Log("backup.trigger", "default", map[string]any{"type": "network", "retention_days": 7}, nil); err != nil {
		t.Fatalf("Log: %v", err)
	}
	if err := l.Log("backup.restore", "default", map[string]any{"filename": "x.unf"}, errors.New("conflict")); err != nil {
		t.Fatalf("Log: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening audit log: %v", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("line is not valid JSON: %v", err)
		}
		records = append(records, rec)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Operation != "backup.trigger" || !records[0].Success {
		t.Errorf("first record = %+v", records[0])
	}
	if !records[0].Timestamp.Equal(fixed) {
		t.Errorf("timestamp = %v", records[0].Timestamp)
	}
	if records[1].Success || records[1].Error != "conflict" {
		t.Errorf("second record = %+v", records[1])
	}
}

func TestNilLoggerDiscards(t *testing.T) {
	var l *Logger
	if err := l.Log("anything", "", nil, nil); err != nil {
		t.Errorf("nil logger should discard, got %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("nil close: %v", err)
	}
}
