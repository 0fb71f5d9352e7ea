// Package resources exposes the controller's resource catalog (sites,
// devices, clients, networks, vouchers, firewall zones) through the
// response cache. Reads are cache-eligible per resource volatility;
// mutations invalidate their resource family and are audited.
package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/yourusername/unifi-ops/internal/audit"
	"github.com/yourusername/unifi-ops/internal/cache"
	"github.com/yourusername/unifi-ops/internal/logging"
	"github.com/yourusername/unifi-ops/internal/models"
	"github.com/yourusername/unifi-ops/internal/transport"
	"github.com/yourusername/unifi-ops/internal/validate"
)

// API is the slice of the transport client this package uses.
type API interface {
	Get(ctx context.Context, path string, query url.Values) (*transport.Response, error)
	Post(ctx context.Context, path string, body any) (*transport.Response, error)
	Delete(ctx context.Context, path string, query url.Values) (*transport.Response, error)
}

// Service routes resource reads through the cache and audits mutations.
type Service struct {
	api   API
	cache *cache.Cache
	audit *audit.Logger
}

// New wires a resource service. c and auditLog may be nil.
func New(api API, c *cache.Cache, auditLog *audit.Logger) *Service {
	if c == nil {
		c = cache.New(nil)
	}
	return &Service{api: api, cache: c, audit: auditLog}
}

// ListOptions carry offset pagination for large collections.
type ListOptions struct {
	Offset int
	Limit  int
}

func (o ListOptions) query() (url.Values, map[string]string) {
	if o.Offset == 0 && o.Limit == 0 {
		return nil, nil
	}
	q := url.Values{}
	sig := map[string]string{}
	if o.Offset > 0 {
		q.Set("offset", strconv.Itoa(o.Offset))
		sig["offset"] = strconv.Itoa(o.Offset)
	}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
		sig["limit"] = strconv.Itoa(o.Limit)
	}
	return q, sig
}

func sitePath(siteID, suffix string) string {
	return fmt.Sprintf("/ea/sites/%s%s", url.PathEscape(siteID), suffix)
}

// fetchPage routes a paginated listing through the cache.
func fetchPage[T any](ctx context.Context, s *Service, path string, ttl time.Duration, opts ListOptions) (*models.Page[T], error) {
	query, sig := opts.query()
	raw, err := s.cache.GetOrFetch(ctx, cache.Key(path, sig), ttl, func(ctx context.Context) ([]byte, error) {
		resp, err := s.api.Get(ctx, path, query)
		if err != nil {
			return nil, err
		}
		return resp.Body, nil
	})
	if err != nil {
		return nil, err
	}

	var page models.Page[T]
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, transport.WrapError(transport.KindServer, err, "decoding listing %s", path)
	}
	return &page, nil
}

// Sites lists all sites visible to the credential.
func (s *Service) Sites(ctx context.Context) ([]models.Site, error) {
	page, err := fetchPage[models.Site](ctx, s, "/ea/sites", cache.TTLSites, ListOptions{})
	if err != nil {
		return nil, err
	}
	return page.Data, nil
}

// Devices lists a site's adopted devices.
func (s *Service) Devices(ctx context.Context, siteID string, opts ListOptions) (*models.Page[models.Device], error) {
	if err := listChecks(siteID, opts); err != nil {
		return nil, err
	}
	return fetchPage[models.Device](ctx, s, sitePath(siteID, "/devices"), cache.TTLDevices, opts)
}

// Clients lists stations connected to a site.
func (s *Service) Clients(ctx context.Context, siteID string, opts ListOptions) (*models.Page[models.NetworkClient], error) {
	if err := listChecks(siteID, opts); err != nil {
		return nil, err
	}
	return fetchPage[models.NetworkClient](ctx, s, sitePath(siteID, "/clients"), cache.TTLClients, opts)
}

// listChecks rejects bad identifiers and pagination before any network
// call or cache write happens on their behalf.
func listChecks(siteID string, opts ListOptions) error {
	if err := validate.SiteID(siteID); err != nil {
		return err
	}
	return validate.Pagination(opts.Offset, opts.Limit)
}

// Networks lists a site's configured networks.
func (s *Service) Networks(ctx context.Context, siteID string) ([]models.Network, error) {
	if err := validate.SiteID(siteID); err != nil {
		return nil, err
	}
	page, err := fetchPage[models.Network](ctx, s, sitePath(siteID, "/networks"), cache.TTLNetworks, ListOptions{})
	if err != nil {
		return nil, err
	}
	return page.Data, nil
}

// FirewallZones lists a site's firewall zones.
func (s *Service) FirewallZones(ctx context.Context, siteID string) ([]models.FirewallZone, error) {
	if err := validate.SiteID(siteID); err != nil {
		return nil, err
	}
	page, err := fetchPage[models.FirewallZone](ctx, s, sitePath(siteID, "/firewall/zones"), cache.TTLFirewall, ListOptions{})
	if err != nil {
		return nil, err
	}
	return page.Data, nil
}

// Vouchers lists a site's hotspot vouchers.
func (s *Service) Vouchers(ctx context.Context, siteID string) ([]models.Voucher, error) {
	if err := validate.SiteID(siteID); err != nil {
		return nil, err
	}
	page, err := fetchPage[models.Voucher](ctx, s, sitePath(siteID, "/hotspot/vouchers"), cache.TTLClients, ListOptions{})
	if err != nil {
		return nil, err
	}
	return page.Data, nil
}

// CreateVouchers generates vouchers from spec. Requires confirm.
func (s *Service) CreateVouchers(ctx context.Context, siteID string, spec models.VoucherSpec, confirm bool) ([]models.Voucher, error) {
	if !confirm {
		return nil, transport.NewError(transport.KindValidation,
			"voucher creation requires confirm=true")
	}
	if spec.Count < 1 {
		return nil, transport.NewError(transport.KindValidation,
			"voucher count must be at least 1, got %d", spec.Count)
	}
	if spec.TimeLimitMinutes < 1 {
		return nil, transport.NewError(transport.KindValidation,
			"voucher time limit must be at least 1 minute")
	}
	if err := validate.SiteID(siteID); err != nil {
		return nil, err
	}

	resp, err := s.api.Post(ctx, sitePath(siteID, "/hotspot/vouchers"), spec)
	s.auditLog("voucher.create", siteID, map[string]any{"count": spec.Count, "name": spec.Name}, err)
	if err != nil {
		return nil, err
	}

	var page models.Page[models.Voucher]
	if err := resp.Decode(&page); err != nil {
		return nil, err
	}
	s.invalidate(ctx, sitePath(siteID, "/hotspot/vouchers"))
	return page.Data, nil
}

// DeleteVoucher revokes one voucher. Requires confirm.
func (s *Service) DeleteVoucher(ctx context.Context, siteID, voucherID string, confirm bool) error {
	if !confirm {
		return transport.NewError(transport.KindValidation,
			"voucher deletion requires confirm=true")
	}
	if err := validate.SiteID(siteID); err != nil {
		return err
	}
	_, err := s.api.Delete(ctx, sitePath(siteID, "/hotspot/vouchers/"+url.PathEscape(voucherID)), nil)
	s.auditLog("voucher.delete", siteID, map[string]any{"voucher_id": voucherID}, err)
	if err != nil {
		return err
	}
	s.invalidate(ctx, sitePath(siteID, "/hotspot/vouchers"))
	return nil
}

type deviceAction struct {
	Action string `json:"action"`
}

// RestartDevice power-cycles a managed device. Requires confirm.
func (s *Service) RestartDevice(ctx context.Context, siteID, deviceID string, confirm bool) error {
	if !confirm {
		return transport.NewError(transport.KindValidation,
			"device restart requires confirm=true")
	}
	if err := validate.SiteID(siteID); err != nil {
		return err
	}
	_, err := s.api.Post(ctx, sitePath(siteID, "/devices/"+url.PathEscape(deviceID)+"/actions"),
		deviceAction{Action: "RESTART"})
	s.auditLog("device.restart", siteID, map[string]any{"device_id": deviceID}, err)
	if err != nil {
		return err
	}
	s.invalidate(ctx, sitePath(siteID, "/devices"))
	return nil
}

// BlockClient blocks a station from the network. Requires confirm.
func (s *Service) BlockClient(ctx context.Context, siteID, clientID string, confirm bool) error {
	return s.clientAction(ctx, siteID, clientID, "block", confirm)
}

// UnblockClient lifts a block. Requires confirm.
func (s *Service) UnblockClient(ctx context.Context, siteID, clientID string, confirm bool) error {
	return s.clientAction(ctx, siteID, clientID, "unblock", confirm)
}

func (s *Service) clientAction(ctx context.Context, siteID, clientID, action string, confirm bool) error {
	if !confirm {
		return transport.NewError(transport.KindValidation,
			"client %s requires confirm=true", action)
	}
	if err := validate.SiteID(siteID); err != nil {
		return err
	}
	// MAC addresses are normalized so the audit trail and the cache see
	// one spelling per client.
	ref, err := validate.ClientRef(clientID)
	if err != nil {
		return err
	}
	_, err = s.api.Post(ctx, sitePath(siteID, "/clients/"+url.PathEscape(ref)+"/"+action), nil)
	s.auditLog("client."+action, siteID, map[string]any{"client_id": ref}, err)
	if err != nil {
		return err
	}
	s.invalidate(ctx, sitePath(siteID, "/clients"))
	return nil
}

func (s *Service) invalidate(ctx context.Context, prefix string) {
	if err := s.cache.Invalidate(ctx, prefix); err != nil {
		logging.L().Warn("cache invalidation failed", "prefix", prefix, "error", err)
	}
}

func (s *Service) auditLog(op, siteID string, params map[string]any, opErr error) {
	if err := s.audit.Log(op, siteID, params, opErr); err != nil {
		logging.L().Warn("audit write failed", "error", err)
	}
}
