// Package webhooks receives controller event notifications so cached
// resource listings can be invalidated the moment the controller reports
// a change, instead of waiting out the TTL.
package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/unifi-ops/internal/logging"
)

// signatureHeader carries the hex HMAC-SHA256 of the raw body.
const signatureHeader = "X-Webhook-Signature"

// Event is one controller notification.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	SiteID    string          `json:"siteId"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Handler reacts to one event type. The receiver has already verified
// the signature and filtered duplicates.
type Handler func(ctx context.Context, ev Event)

// Receiver verifies, rate-limits, deduplicates, and dispatches webhook
// deliveries.
type Receiver struct {
	secret []byte

	mu       sync.Mutex
	handlers map[string][]Handler
	seen     map[string]time.Time
	dedupTTL time.Duration

	sources     map[string]*sourceWindow
	rateCeiling int
	rateWindow  time.Duration

	now func() time.Time
}

// sourceWindow tracks one sender's delivery count in the current window.
type sourceWindow struct {
	start time.Time
	count int
}

// NewReceiver builds a receiver. secret must match the controller's
// webhook signing secret; an empty secret refuses all deliveries rather
// than accepting unsigned ones.
func NewReceiver(secret string) *Receiver {
	return &Receiver{
		secret:      []byte(secret),
		handlers:    make(map[string][]Handler),
		seen:        make(map[string]time.Time),
		dedupTTL:    10 * time.Minute,
		sources:     make(map[string]*sourceWindow),
		rateCeiling: 120,
		rateWindow:  time.Minute,
		now:         time.Now,
	}
}

// On registers a handler for an event type. "*" matches every type.
func (r *Receiver) On(eventType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[eventType] = append(r.handlers[eventType], h)
}

// Router builds the gin engine serving the webhook endpoint.
func (r *Receiver) Router(debug bool) *gin.Engine {
	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.POST("/webhooks/controller", r.handleDelivery)

	return router
}

func (r *Receiver) handleDelivery(c *gin.Context) {
	if !r.allowSource(c.ClientIP()) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many deliveries"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	if !r.verify(body, c.GetHeader(signatureHeader)) {
		logging.L().Warn("webhook signature rejected", "remote", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event"})
		return
	}
	if ev.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "event id is required"})
		return
	}
	ev.Type = strings.ToLower(ev.Type)
	if !wellFormedType(ev.Type) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "event type must have the category.action form"})
		return
	}

	if r.duplicate(ev.ID) {
		// Replays acknowledge cleanly so the controller stops resending.
		c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
		return
	}

	r.dispatch(c.Request.Context(), ev)
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

// wellFormedType requires the controller's category.action event shape,
// e.g. "device.updated". Both segments must be present.
func wellFormedType(t string) bool {
	category, action, found := strings.Cut(t, ".")
	return found && category != "" && action != ""
}

// verify compares the delivery signature in constant time.
func (r *Receiver) verify(body []byte, signature string) bool {
	if len(r.secret) == 0 || signature == "" {
		return false
	}
	sig, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, r.secret)
	mac.Write(body)
	return hmac.Equal(sig, mac.Sum(nil))
}

// allowSource counts one delivery against the sender's fixed window and
// reports whether it fits. A noisy or hostile sender gets 429s without
// the body ever being read.
func (r *Receiver) allowSource(source string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	win := r.sources[source]
	if win == nil || now.Sub(win.start) >= r.rateWindow {
		win = &sourceWindow{start: now}
		r.sources[source] = win
	}
	if win.count >= r.rateCeiling {
		return false
	}
	win.count++
	return true
}

// duplicate records the event id and reports whether it was seen within
// the dedup window. Expired ids are swept on each call.
func (r *Receiver) duplicate(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for seenID, at := range r.seen {
		if now.Sub(at) > r.dedupTTL {
			delete(r.seen, seenID)
		}
	}

	if _, dup := r.seen[id]; dup {
		return true
	}
	r.seen[id] = now
	return false
}

func (r *Receiver) dispatch(ctx context.Context, ev Event) {
	r.mu.Lock()
	handlers := append(append([]Handler(nil), r.handlers[ev.Type]...), r.handlers["*"]...)
	r.mu.Unlock()

	logging.L().Debug("webhook dispatched", "id", ev.ID, "type", ev.Type, "site", ev.SiteID, "handlers", len(handlers))
	for _, h := range handlers {
		h(ctx, ev)
	}
}
