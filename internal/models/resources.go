package models

import "time"

// Site is a logical controller site.
type Site struct {
	ID          string `json:"id"`
	InternalRef string `json:"internalReference,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	DeviceCount int    `json:"deviceCount,omitempty"`
}

// Device is a managed network device (gateway, switch, access point).
type Device struct {
	ID         string    `json:"id"`
	SiteID     string    `json:"siteId,omitempty"`
	Name       string    `json:"name"`
	Model      string    `json:"model"`
	MAC        string    `json:"macAddress"`
	IP         string    `json:"ipAddress,omitempty"`
	State      string    `json:"state"`
	Adopted    bool      `json:"adopted"`
	Firmware   string    `json:"firmwareVersion,omitempty"`
	Uptime     int64     `json:"uptimeSec,omitempty"`
	LastSeenAt time.Time `json:"lastSeenAt,omitempty"`
}

// NetworkClient is a station connected to a site, wired or wireless.
type NetworkClient struct {
	ID        string    `json:"id"`
	SiteID    string    `json:"siteId,omitempty"`
	Name      string    `json:"name,omitempty"`
	Hostname  string    `json:"hostname,omitempty"`
	MAC       string    `json:"macAddress"`
	IP        string    `json:"ipAddress,omitempty"`
	Type      string    `json:"type,omitempty"` // WIRED, WIRELESS, VPN
	Blocked   bool      `json:"blocked,omitempty"`
	FirstSeen time.Time `json:"connectedAt,omitempty"`
}

// Network is a configured L2/L3 network (VLAN, corporate, guest).
type Network struct {
	ID      string `json:"id"`
	SiteID  string `json:"siteId,omitempty"`
	Name    string `json:"name"`
	Purpose string `json:"purpose,omitempty"`
	VLANID  int    `json:"vlanId,omitempty"`
	Subnet  string `json:"subnet,omitempty"`
	Enabled bool   `json:"enabled"`
}

// Voucher is a guest hotspot access voucher.
type Voucher struct {
	ID                   string    `json:"id"`
	SiteID               string    `json:"siteId,omitempty"`
	Code                 string    `json:"code"`
	Name                 string    `json:"name,omitempty"`
	AuthorizedGuestLimit int       `json:"authorizedGuestLimit,omitempty"`
	TimeLimitMinutes     int       `json:"timeLimitMinutes,omitempty"`
	CreatedAt            time.Time `json:"createdAt,omitempty"`
	ExpiresAt            time.Time `json:"expiresAt,omitempty"`
}

// VoucherSpec is the creation request for one or more vouchers.
type VoucherSpec struct {
	Count                int    `json:"count"`
	Name                 string `json:"name"`
	TimeLimitMinutes     int    `json:"timeLimitMinutes"`
	AuthorizedGuestLimit int    `json:"authorizedGuestLimit,omitempty"`
	DataUsageLimitMB     int    `json:"dataUsageLimitMBytes,omitempty"`
}

// FirewallZone groups networks for policy evaluation.
type FirewallZone struct {
	ID         string   `json:"id"`
	SiteID     string   `json:"siteId,omitempty"`
	Name       string   `json:"name"`
	NetworkIDs []string `json:"networkIds,omitempty"`
}

// Page is a generic offset-paginated listing envelope.
type Page[T any] struct {
	Offset     int `json:"offset"`
	Limit      int `json:"limit"`
	Count      int `json:"count"`
	TotalCount int `json:"totalCount"`
	Data       []T `json:"data"`
}
