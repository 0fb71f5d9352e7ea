package webhooks

import (
	"context"
	"fmt"
	"net/url"

	"github.com/yourusername/unifi-ops/internal/cache"
	"github.com/yourusername/unifi-ops/internal/logging"
)

// event types the controller emits for resource changes.
const (
	EventDeviceChanged  = "device.changed"
	EventClientChanged  = "client.changed"
	EventNetworkChanged = "network.changed"
	EventBackupCreated  = "backup.created"
)

// familyPrefix maps an event type to the cache key family it stales.
var familyPrefix = map[string]string{
	EventDeviceChanged:  "/devices",
	EventClientChanged:  "/clients",
	EventNetworkChanged: "/networks",
	EventBackupCreated:  "/backups",
}

// RegisterCacheInvalidation wires the standard resource-change events to
// prefix invalidations against c.
func RegisterCacheInvalidation(r *Receiver, c *cache.Cache) {
	for eventType, suffix := range familyPrefix {
		suffix := suffix
		r.On(eventType, func(ctx context.Context, ev Event) {
			if ev.SiteID == "" {
				return
			}
			prefix := fmt.Sprintf("/ea/sites/%s%s", url.PathEscape(ev.SiteID), suffix)
			if err := c.Invalidate(ctx, prefix); err != nil {
				logging.L().Warn("webhook cache invalidation failed", "prefix", prefix, "error", err)
				return
			}
			logging.L().Debug("cache invalidated by webhook", "event", ev.Type, "prefix", prefix)
		})
	}
}
