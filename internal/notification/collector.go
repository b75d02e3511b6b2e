// Package notification queues display notifications and telemetry produced by
// on-device decisions and hands them to an injected transport in batches.
//
// Delivery is best-effort: a batch is dispatched asynchronously and the queues
// are cleared as soon as it is handed off, whether or not the send succeeds.
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/rafaeljc/bifrost/internal/delivery"
	"github.com/rafaeljc/bifrost/internal/observability"
)

// DefaultMaxInFlight caps concurrent sends when the config leaves it unset.
const DefaultMaxInFlight = 16

// Payload is what the transport receives: a minimal delivery request carrying
// the queued notifications and telemetry, plus the caller's opaque visitor state.
type Payload struct {
	Request *delivery.Request `json:"request"`
	Visitor any               `json:"visitor,omitempty"`
}

// Sender delivers a payload to the remote delivery API.
type Sender func(ctx context.Context, payload Payload) error

// TraceHook is invoked with every queued notification when tracing is on.
type TraceHook func(delivery.Notification)

// Config tunes the collector.
type Config struct {
	TelemetryEnabled bool
	// MaxInFlight caps concurrent sends. Batches beyond it are dropped.
	MaxInFlight int64
	// SendTimeout bounds a single send. Zero means no bound.
	SendTimeout time.Duration
}

// Collector deduplicates and batches notifications. It is safe for concurrent use.
type Collector struct {
	logger *slog.Logger
	send   Sender
	cfg    Config
	sem    *semaphore.Weighted
	now    func() time.Time

	mu            sync.Mutex
	seen          map[string]struct{}
	notifications []delivery.Notification
	telemetry     []delivery.TelemetryEntry

	wg sync.WaitGroup
}

// New creates a collector. A nil sender drops every batch.
// If logger is nil, it defaults to slog.Default().
func New(logger *slog.Logger, send Sender, cfg Config) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = DefaultMaxInFlight
	}

	return &Collector{
		logger: logger.With(slog.String("component", "notifications")),
		send:   send,
		cfg:    cfg,
		sem:    semaphore.NewWeighted(cfg.MaxInFlight),
		now:    time.Now,
		seen:   make(map[string]struct{}),
	}
}

// AddNotification queues one display notification for the event tokens of
// options not yet seen for mbox. Tokens already queued by this collector are
// skipped; when nothing new remains, nothing is queued.
//
// The set of seen (mbox, token) pairs lives as long as the collector.
func (c *Collector) AddNotification(mbox string, options []delivery.Option, hook TraceHook) {
	c.mu.Lock()

	var tokens []string
	for _, option := range options {
		if option.EventToken == "" {
			continue
		}
		key := fmt.Sprintf("%s-%s", mbox, option.EventToken)
		if _, ok := c.seen[key]; ok {
			observability.NotificationsDeduplicated.Inc()
			continue
		}
		c.seen[key] = struct{}{}
		tokens = append(tokens, option.EventToken)
	}
	observability.NotificationDedupSize.Set(float64(len(c.seen)))

	if len(tokens) == 0 {
		c.mu.Unlock()
		return
	}

	n := delivery.Notification{
		ID:           uuid.NewString(),
		ImpressionID: uuid.NewString(),
		Timestamp:    c.now().UnixMilli(),
		Type:         delivery.MetricDisplay,
		Tokens:       tokens,
		Mbox:         &delivery.NotificationMbox{Name: mbox},
	}
	c.notifications = append(c.notifications, n)
	c.mu.Unlock()

	observability.NotificationsQueued.Inc()
	if hook != nil {
		hook(n.Clone())
	}
}

// AddTelemetryEntry queues a telemetry entry for a request. It is a no-op
// when telemetry is disabled.
func (c *Collector) AddTelemetryEntry(requestID string, execution time.Duration) {
	if !c.cfg.TelemetryEnabled {
		return
	}

	entry := delivery.TelemetryEntry{
		RequestID: requestID,
		Timestamp: c.now().UnixMilli(),
		Execution: float64(execution.Microseconds()) / 1000,
		Features:  &delivery.TelemetryFeatures{DecisioningMethod: delivery.DecisioningMethodOnDevice},
	}

	c.mu.Lock()
	c.telemetry = append(c.telemetry, entry)
	c.mu.Unlock()
}

// Pending returns copies of the queued notifications and telemetry entries.
func (c *Collector) Pending() ([]delivery.Notification, []delivery.TelemetryEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	notifications := make([]delivery.Notification, len(c.notifications))
	for i, n := range c.notifications {
		notifications[i] = n.Clone()
	}
	return notifications, append([]delivery.TelemetryEntry(nil), c.telemetry...)
}

// SendNotifications flushes both queues in one batch on behalf of req. The
// batch carries req's visitor id, context and Experience Cloud data.
//
// The send runs in the background; the caller never waits for it or sees its
// error. Queues are cleared before the send starts.
func (c *Collector) SendNotifications(ctx context.Context, req *delivery.Request, visitor any) {
	c.mu.Lock()
	if len(c.notifications) == 0 && len(c.telemetry) == 0 {
		c.mu.Unlock()
		return
	}

	batch := &delivery.Request{
		Notifications: c.notifications,
	}
	if len(c.telemetry) > 0 {
		batch.Telemetry = &delivery.Telemetry{Entries: c.telemetry}
	}
	c.notifications = nil
	c.telemetry = nil
	c.mu.Unlock()

	if req != nil {
		clone := req.Clone()
		batch.ID = clone.ID
		batch.Context = clone.Context
		batch.ExperienceCloud = clone.ExperienceCloud
	}

	c.dispatch(ctx, Payload{Request: batch, Visitor: visitor})
}

func (c *Collector) dispatch(ctx context.Context, payload Payload) {
	if c.send == nil {
		c.logger.Debug("no notification sender configured, dropping batch",
			slog.Int("notifications", len(payload.Request.Notifications)),
		)
		observability.NotificationFlushesTotal.WithLabelValues("dropped").Inc()
		return
	}

	if !c.sem.TryAcquire(1) {
		c.logger.Warn("too many notification sends in flight, dropping batch",
			slog.Int64("max_in_flight", c.cfg.MaxInFlight),
			slog.Int("notifications", len(payload.Request.Notifications)),
		)
		observability.NotificationFlushesTotal.WithLabelValues("dropped").Inc()
		return
	}

	// Detached from the caller: the request that produced the batch may end first.
	sendCtx := context.WithoutCancel(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.sem.Release(1)

		if c.cfg.SendTimeout > 0 {
			var cancel context.CancelFunc
			sendCtx, cancel = context.WithTimeout(sendCtx, c.cfg.SendTimeout)
			defer cancel()
		}

		if err := c.send(sendCtx, payload); err != nil {
			c.logger.Warn("failed to send notifications",
				slog.Int("notifications", len(payload.Request.Notifications)),
				slog.String("error", err.Error()),
			)
			observability.NotificationFlushesTotal.WithLabelValues("error").Inc()
			return
		}
		observability.NotificationFlushesTotal.WithLabelValues("success").Inc()
	}()
}

// Wait blocks until every in-flight send has returned.
func (c *Collector) Wait() {
	c.wg.Wait()
}
