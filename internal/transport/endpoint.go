package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// Mode selects how the client reaches the controller.
type Mode string

const (
	// ModeHosted talks to the vendor's multi-tenant cloud endpoint.
	ModeHosted Mode = "hosted"
	// ModeLocalProxy talks to a local gateway acting as an API proxy.
	ModeLocalProxy Mode = "local-proxy"
)

// Endpoint encapsulates everything mode-specific about reaching the
// controller: base URL, path prefix, auth headers and TLS policy. Call
// sites never branch on the mode themselves.
type Endpoint interface {
	// URL builds the absolute URL for an API path like
	// "/ea/sites/default/devices".
	URL(path string) string

	// Authorize attaches the mode's credential material to a request.
	Authorize(req *http.Request)

	// TLSConfig returns the TLS settings for this endpoint, or nil for
	// library defaults.
	TLSConfig() *tls.Config

	// Mode identifies the connection mode, for logging.
	Mode() Mode
}

// sessionAuthenticator is implemented by endpoints that can establish a
// session when header credentials are absent or rejected.
type sessionAuthenticator interface {
	canLogin() bool
	login(ctx context.Context, httpClient *http.Client) error
}

// hostedEndpoint targets the fixed cloud host and authenticates with an
// API key header.
type hostedEndpoint struct {
	baseURL string
	apiKey  string
}

// NewHostedEndpoint creates the cloud endpoint. baseURL defaults to the
// vendor API host when empty.
func NewHostedEndpoint(baseURL, apiKey string) Endpoint {
	if baseURL == "" {
		baseURL = "https://api.ui.com"
	}
	return &hostedEndpoint{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey}
}

func (e *hostedEndpoint) URL(path string) string {
	return e.baseURL + ensureLeadingSlash(path)
}

func (e *hostedEndpoint) Authorize(req *http.Request) {
	req.Header.Set("X-API-Key", e.apiKey)
}

func (e *hostedEndpoint) TLSConfig() *tls.Config { return nil }

func (e *hostedEndpoint) Mode() Mode { return ModeHosted }

// LocalOptions configure a local-proxy endpoint. APIKey is preferred;
// Username/Password fall back to a session login against the gateway.
type LocalOptions struct {
	Host      string
	Port      int
	APIKey    string
	Username  string
	Password  string
	VerifyTLS bool
}

// localEndpoint targets a caller-supplied gateway. Local gateways commonly
// use self-signed certificates, so TLS verification is an explicit choice
// carried on the endpoint rather than a silent default.
type localEndpoint struct {
	baseURL   string
	apiKey    string
	username  string
	password  string
	verifyTLS bool

	mu      sync.Mutex
	cookies []*http.Cookie
	csrf    string
}

// NewLocalEndpoint creates a local-proxy endpoint for a gateway. The
// /proxy/network prefix is applied to every API path.
func NewLocalEndpoint(opts LocalOptions) Endpoint {
	port := opts.Port
	if port == 0 {
		port = 443
	}
	return &localEndpoint{
		baseURL:   fmt.Sprintf("https://%s:%d", opts.Host, port),
		apiKey:    opts.APIKey,
		username:  opts.Username,
		password:  opts.Password,
		verifyTLS: opts.VerifyTLS,
	}
}

func (e *localEndpoint) URL(path string) string {
	return e.baseURL + "/proxy/network" + ensureLeadingSlash(path)
}

func (e *localEndpoint) Authorize(req *http.Request) {
	if e.apiKey != "" {
		req.Header.Set("X-API-Key", e.apiKey)
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range e.cookies {
		req.AddCookie(c)
	}
	if e.csrf != "" {
		req.Header.Set("X-Csrf-Token", e.csrf)
	}
}

func (e *localEndpoint) canLogin() bool {
	return e.apiKey == "" && e.username != "" && e.password != ""
}

// login establishes a gateway session and stores its cookie and CSRF
// token for subsequent requests.
func (e *localEndpoint) login(ctx context.Context, httpClient *http.Client) error {
	payload, err := json.Marshal(map[string]string{
		"username": e.username,
		"password": e.password,
	})
	if err != nil {
		return WrapError(KindConfiguration, err, "encoding login request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.baseURL+"/api/auth/login", bytes.NewReader(payload))
	if err != nil {
		return WrapError(KindConfiguration, err, "building login request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return normalizeNetError(err, http.MethodPost, "/api/auth/login")
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return NewError(KindAuthentication,
			"gateway login failed with status %d", resp.StatusCode)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.cookies = resp.Cookies()
	e.csrf = resp.Header.Get("X-Csrf-Token")
	return nil
}

func (e *localEndpoint) TLSConfig() *tls.Config {
	if e.verifyTLS {
		return nil
	}
	return &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- explicit operator opt-in for self-signed gateways
}

func (e *localEndpoint) Mode() Mode { return ModeLocalProxy }

func ensureLeadingSlash(p string) string {
	if strings.HasPrefix(p, "/") {
		return p
	}
	return "/" + p
}
