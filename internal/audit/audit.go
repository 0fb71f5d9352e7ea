// Package audit appends one JSON line per mutating operation so that
// operator actions against the controller can be reconstructed later.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Record is one audit entry. Parameters never include credential
// material; callers pass only operation inputs.
type Record struct {
	Timestamp time.Time      `json:"timestamp"`
	Operation string         `json:"operation"`
	SiteID    string         `json:"site_id,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
}

// Logger writes audit records to a rotated JSONL file. Safe for
// concurrent use. A nil Logger discards records.
type Logger struct {
	mu  sync.Mutex
	out *lumberjack.Logger
	now func() time.Time
}

// New creates an audit logger writing to path, creating parent
// directories as needed.
func New(path string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("audit: creating log directory: %w", err)
	}
	return &Logger{
		out: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    50, // MB
			MaxBackups: 10,
			MaxAge:     90, // days
			Compress:   true,
		},
		now: time.Now,
	}, nil
}

// Log appends one record. Write failures are returned but callers
// typically only warn on them; an audit failure must not abort the
// operation it describes.
func (l *Logger) Log(operation, siteID string, params map[string]any, opErr error) error {
	if l == nil {
		return nil
	}
	rec := Record{
		Timestamp: l.now().UTC(),
		Operation: operation,
		SiteID:    siteID,
		Params:    params,
		Success:   opErr == nil,
	}
	if opErr != nil {
		rec.Error = opErr.Error()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("audit: encoding record: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.out.Write(data); err != nil {
		return fmt.Errorf("audit: writing record: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.out.Close()
}
