package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"fdc/internal/config"
	"fdc/internal/domain"
	"fdc/internal/events"
	"fdc/internal/repo"
)

const (
	defaultRelayInterval = 2 * time.Second
	defaultRelayTimeout  = 5 * time.Second
	defaultRelayBatch    = 100
)

// Relay posts new mission events to the configured webhooks. Each webhook keeps its
// own cursor; a failed delivery is retried from the same event on the next tick.
type Relay struct {
	repo     repo.Repo
	webhooks []config.Webhook
	interval time.Duration
	client   *http.Client
	logger   *slog.Logger

	mu      sync.Mutex
	cursors map[string]int64
}

// NewRelay returns nil when no webhooks are configured.
func NewRelay(r repo.Repo, cfg *config.Config, logger *slog.Logger) *Relay {
	if cfg == nil || len(cfg.Relay.Webhooks) == 0 {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.RelayInterval()
	if interval <= 0 {
		interval = defaultRelayInterval
	}
	return &Relay{
		repo:     r,
		webhooks: cfg.Relay.Webhooks,
		interval: interval,
		client:   &http.Client{Timeout: defaultRelayTimeout},
		logger:   logger.With("component", "relay"),
		cursors:  make(map[string]int64),
	}
}

// Run relays until ctx is cancelled.
func (d *Relay) Run(ctx context.Context) error {
	if d == nil {
		return nil
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		d.DispatchAll(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// DispatchAll runs one delivery pass over every webhook.
func (d *Relay) DispatchAll(ctx context.Context) {
	for _, hook := range d.webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		d.dispatchWebhook(ctx, hook)
	}
}

func (d *Relay) dispatchWebhook(ctx context.Context, hook config.Webhook) {
	cursor, err := d.cursorFor(ctx, hook)
	if err != nil {
		d.logger.Warn("init cursor failed", "webhook", hook.ID, "error", err)
		return
	}
	evts, err := d.repo.ListEvents(ctx, events.Filter{AfterID: cursor, Limit: defaultRelayBatch})
	if err != nil {
		d.logger.Warn("fetch events failed", "webhook", hook.ID, "error", err)
		return
	}
	filter := newEventFilter(hook.Events)
	for _, evt := range evts {
		if !filter.match(evt.Type) {
			d.setCursor(hook.ID, evt.ID)
			continue
		}
		if err := d.postEvent(ctx, hook, evt); err != nil {
			d.logger.Warn("delivery failed", "webhook", hook.ID, "url", hook.URL, "event", evt.ID, "error", err)
			return
		}
		d.setCursor(hook.ID, evt.ID)
	}
}

// cursorFor starts a webhook at the newest event, so only events raised after the
// relay starts are delivered.
func (d *Relay) cursorFor(ctx context.Context, hook config.Webhook) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.cursors[hook.ID]; ok {
		return cur, nil
	}
	cur, err := d.repo.LatestEventID(ctx)
	if err != nil {
		return 0, err
	}
	d.cursors[hook.ID] = cur
	return cur, nil
}

func (d *Relay) setCursor(id string, value int64) {
	d.mu.Lock()
	d.cursors[id] = value
	d.mu.Unlock()
}

type relayEvent struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	TS         string          `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
}

// Sign returns the hex HMAC-SHA256 of body under secret, as sent in X-Fdc-Signature.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func (d *Relay) postEvent(ctx context.Context, hook config.Webhook, evt domain.Event) error {
	payload := json.RawMessage("{}")
	if evt.Payload != "" && json.Valid([]byte(evt.Payload)) {
		payload = json.RawMessage(evt.Payload)
	}
	data, err := json.Marshal(relayEvent{
		ID:         evt.ID,
		Type:       evt.Type,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		TS:         evt.TS,
		Payload:    payload,
	})
	if err != nil {
		return err
	}
	client := d.client
	if hook.TimeoutSeconds > 0 {
		client = &http.Client{Timeout: time.Duration(hook.TimeoutSeconds) * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Fdc-Event", evt.Type)
	req.Header.Set("X-Fdc-Delivery", fmt.Sprintf("%d", evt.ID))
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Fdc-Signature", Sign(hook.Secret, data))
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(types []string) eventFilter {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		key := strings.TrimSpace(t)
		if key == "*" {
			return eventFilter{all: true}
		}
		if key != "" {
			set[key] = struct{}{}
		}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evt string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evt]
	return ok
}
