// Package backup implements the controller backup subsystem: triggering
// typed backup artifacts, listing and downloading them with checksum
// verification, validating them, and orchestrating restores behind a
// confirmation gate.
package backup

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/yourusername/unifi-ops/internal/transport"
)

// timeNow is swapped in tests that pin timestamps.
var timeNow = time.Now

// API is the slice of the transport client this package uses. Tests
// substitute a fake to assert which calls were (not) issued.
type API interface {
	Get(ctx context.Context, path string, query url.Values) (*transport.Response, error)
	Post(ctx context.Context, path string, body any) (*transport.Response, error)
	Delete(ctx context.Context, path string, query url.Values) (*transport.Response, error)
	Stream(ctx context.Context, path string, query url.Values) (io.ReadCloser, http.Header, error)
}

// checksumHeader carries the controller-computed artifact digest on
// download responses.
const checksumHeader = "X-Backup-Checksum"

func sitePath(siteID, suffix string) string {
	return fmt.Sprintf("/ea/sites/%s%s", url.PathEscape(siteID), suffix)
}

func backupsPath(siteID string) string {
	return sitePath(siteID, "/backups")
}

func backupPath(siteID, filename string) string {
	return sitePath(siteID, "/backups/"+url.PathEscape(filename))
}
