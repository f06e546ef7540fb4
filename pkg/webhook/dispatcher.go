// Package webhook forwards journaled session events to HTTP endpoints.
package webhook

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
	"slices"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rmax-ai/transformer-puzzle/pkg/store"
)

const (
	// CursorKey holds the journal position of the last dispatched event.
	CursorKey = "webhook_dispatcher_cursor"

	BatchSize      = 50
	PollInterval   = time.Second
	DefaultTimeout = 5 * time.Second
	MaxAttempts    = 3

	SignatureHeader = "X-Tpuzzle-Signature"
	EventIDHeader   = "X-Tpuzzle-Event-ID"
	EventTypeHeader = "X-Tpuzzle-Event-Type"
)

var DeliveriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tpuzzle_webhook_deliveries_total",
		Help: "Webhook deliveries by result",
	},
	[]string{"result"},
)

func init() {
	prometheus.MustRegister(DeliveriesTotal)
}

// Config is one subscriber. Events lists event types, "*" matches all.
type Config struct {
	URL    string   `yaml:"url" json:"url" validate:"required,http_url"`
	Events []string `yaml:"events" json:"events" validate:"required,min=1,dive,required"`
	// Secret signs each body with HMAC-SHA256 when set.
	Secret string `yaml:"secret" json:"-"`
}

var validate = validator.New()

// ValidateConfigs reports the first invalid subscriber.
func ValidateConfigs(hooks []Config) error {
	for i, h := range hooks {
		if err := validate.Struct(h); err != nil {
			return fmt.Errorf("webhook %d: %w", i, err)
		}
	}
	return nil
}

func (c Config) wants(t store.EventType) bool {
	return slices.Contains(c.Events, "*") || slices.Contains(c.Events, string(t))
}

// Source is the part of the journal the dispatcher reads.
type Source interface {
	ReadEventsAfter(ctx context.Context, after int64, limit int) ([]*store.Event, int64, error)
	LastSeq(ctx context.Context) (int64, error)
	GetSystemState(ctx context.Context, key string) (string, bool, error)
	SetSystemState(ctx context.Context, key, value string) error
}

type Dispatcher struct {
	source  Source
	hooks   []Config
	client  *http.Client
	logger  *slog.Logger
	retry   time.Duration
	cursor  int64
	started bool
}

type Option func(*Dispatcher)

func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.client = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithRetryDelay sets the pause before the second attempt. Later attempts
// wait proportionally longer.
func WithRetryDelay(delay time.Duration) Option {
	return func(d *Dispatcher) { d.retry = delay }
}

func NewDispatcher(source Source, hooks []Config, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		source: source,
		hooks:  hooks,
		client: &http.Client{Timeout: DefaultTimeout},
		logger: slog.Default(),
		retry:  time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run polls the journal until ctx is done.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.DispatchOnce(ctx); err != nil {
				d.logger.Error("webhook_batch_failed", "error", err)
			}
		}
	}
}

// DispatchOnce delivers the next batch of events and advances the cursor past
// it. Failed deliveries are logged and not retried on the next batch.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	if !d.started {
		if err := d.loadCursor(ctx); err != nil {
			return 0, err
		}
		d.started = true
	}

	events, last, err := d.source.ReadEventsAfter(ctx, d.cursor, BatchSize)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	for _, evt := range events {
		for _, h := range d.hooks {
			if !h.wants(evt.EventType) {
				continue
			}
			if err := d.send(ctx, h, evt); err != nil {
				DeliveriesTotal.WithLabelValues("failed").Inc()
				d.logger.Warn("webhook_delivery_failed", "url", h.URL, "event_id", evt.EventID, "error", err)
				continue
			}
			DeliveriesTotal.WithLabelValues("delivered").Inc()
		}
	}

	d.cursor = last
	if err := d.source.SetSystemState(ctx, CursorKey, strconv.FormatInt(last, 10)); err != nil {
		return len(events), err
	}
	return len(events), nil
}

// loadCursor resumes from the saved position. A first start skips history.
func (d *Dispatcher) loadCursor(ctx context.Context) error {
	val, ok, err := d.source.GetSystemState(ctx, CursorKey)
	if err != nil {
		return err
	}
	if ok {
		if d.cursor, err = strconv.ParseInt(val, 10, 64); err == nil {
			return nil
		}
		d.logger.Warn("webhook_cursor_invalid", "value", val)
	}
	d.cursor, err = d.source.LastSeq(ctx)
	return err
}

func (d *Dispatcher) send(ctx context.Context, h Config, evt *store.Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	var lastErr error
	for attempt := range MaxAttempts {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * d.retry):
			}
		}

		retry, err := d.post(ctx, h, evt, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			return err
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", MaxAttempts, lastErr)
}

// post makes one delivery attempt and reports whether a failure is worth
// retrying.
func (d *Dispatcher) post(ctx context.Context, h Config, evt *store.Event, body []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "tpuzzle-dispatcher/1.0")
	req.Header.Set(EventIDHeader, string(evt.EventID))
	req.Header.Set(EventTypeHeader, string(evt.EventType))
	if h.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(h.Secret, body))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return true, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return true, fmt.Errorf("webhook responded with status %d", resp.StatusCode)
	default:
		return false, fmt.Errorf("webhook responded with status %d", resp.StatusCode)
	}
}

// Sign returns the signature header value for body: "sha256=" and the hex
// HMAC-SHA256 under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
