package artifact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/rafaeljc/bifrost/internal/delivery"
	"github.com/rafaeljc/bifrost/internal/events"
	"github.com/rafaeljc/bifrost/internal/geo"
	"github.com/rafaeljc/bifrost/internal/httpclient"
	"github.com/rafaeljc/bifrost/internal/observability"
	"github.com/rafaeljc/bifrost/internal/validation"
)

const tracerName = "github.com/rafaeljc/bifrost/internal/artifact"

var (
	// ErrNotAuthorized is returned when the CDN refuses the artifact (HTTP 403),
	// meaning on-device decisioning is not enabled for the account.
	ErrNotAuthorized = errors.New("on-device decisioning is not enabled for this account")

	// ErrUnexpectedStatus is wrapped by StatusError.
	ErrUnexpectedStatus = errors.New("unexpected artifact response status")

	// ErrNotModifiedWithoutCache is returned when the CDN answers 304 before any
	// artifact was cached.
	ErrNotModifiedWithoutCache = errors.New("artifact not modified but nothing is cached")
)

// StatusError reports an artifact response that is neither 200, 304 nor 403.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d", ErrUnexpectedStatus, e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	return ErrUnexpectedStatus
}

// Fetcher downloads the artifact.
type Fetcher interface {
	Get(ctx context.Context, url string, header http.Header) (*httpclient.Response, error)
}

// Update is handed to subscribers whenever a new artifact is downloaded.
type Update struct {
	Artifact *Artifact
	Geo      *delivery.Geo
}

// Listener receives updates. It runs on the polling goroutine and must not block.
type Listener func(Update)

// ProviderConfig configures a Provider.
type ProviderConfig struct {
	Location string
	// PollingInterval between downloads; 0 disables polling.
	PollingInterval time.Duration
	// Payload, when set, is used as the initial artifact instead of downloading it.
	Payload     []byte
	ClientCode  string
	Environment string
}

// Provider owns the artifact lifecycle: the initial load, conditional
// downloads on a timer and distribution of new snapshots.
//
// The current artifact is published through an atomic pointer; readers always
// see a complete snapshot. Downloads are serialized and the next one is only
// scheduled once the previous one finished.
type Provider struct {
	logger *slog.Logger
	client Fetcher
	bus    *events.Bus
	config ProviderConfig

	current atomic.Pointer[Artifact]
	geo     atomic.Pointer[delivery.Geo]

	fetchMu sync.Mutex
	etag    string

	mu        sync.Mutex
	timer     *time.Timer
	halted    bool
	closed    bool
	listeners map[int]Listener
	nextID    int
	trace     Trace

	ctx    context.Context
	cancel context.CancelFunc
}

// NewProvider creates a provider. The bus may be nil when nobody listens
// for events.
func NewProvider(logger *slog.Logger, client Fetcher, bus *events.Bus, cfg ProviderConfig) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Payload == nil {
		validation.AssertPresent(client, "artifact fetcher")
	}
	if bus == nil {
		bus = events.NewBus(logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Provider{
		logger:    logger,
		client:    client,
		bus:       bus,
		config:    cfg,
		listeners: make(map[int]Listener),
		trace: Trace{
			Location:        cfg.Location,
			PollingInterval: cfg.PollingInterval,
			ClientCode:      cfg.ClientCode,
			Environment:     cfg.Environment,
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Initialize loads the first artifact, from the configured payload or the
// CDN, and starts polling. A failed initial load is returned; polling is
// scheduled regardless so a later tick can recover.
func (p *Provider) Initialize(ctx context.Context) error {
	p.Subscribe(p.updateTrace)

	var err error
	if p.config.Payload != nil {
		err = p.load(p.config.Payload, nil)
	} else {
		_, err = p.Refresh(ctx)
	}

	p.scheduleNext()
	if err != nil {
		return fmt.Errorf("failed to load initial artifact: %w", err)
	}
	return nil
}

// Artifact returns the current snapshot, or nil before the first successful load.
func (p *Provider) Artifact() *Artifact {
	return p.current.Load()
}

// Geo returns the geo context the CDN reported with the last artifact.
func (p *Provider) Geo() *delivery.Geo {
	return p.geo.Load().Clone()
}

// Refresh downloads the artifact once. Failures are logged, reported on the
// bus and returned.
func (p *Provider) Refresh(ctx context.Context) (*Artifact, error) {
	p.fetchMu.Lock()
	defer p.fetchMu.Unlock()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "artifact.Refresh")
	defer span.End()
	span.SetAttributes(attribute.String("bifrost.artifact_location", p.config.Location))

	start := time.Now()
	a, err := p.fetch(ctx)
	observability.ArtifactFetchDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "artifact download failed")
		observability.ArtifactFetchesTotal.WithLabelValues("error").Inc()
		p.logger.Error("artifact download failed",
			slog.String("location", p.config.Location),
			slog.String("error", err.Error()),
		)
		p.bus.Publish(events.Event{
			Type: events.ArtifactDownloadFailed,
			Data: events.ArtifactDownloadError{Location: p.config.Location, Err: err},
		})
		return nil, err
	}
	return a, nil
}

func (p *Provider) fetch(ctx context.Context) (*Artifact, error) {
	header := http.Header{}
	if p.etag != "" {
		header.Set("If-None-Match", p.etag)
	}

	resp, err := p.client.Get(ctx, p.config.Location, header)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		if err := p.load(resp.Body, geo.FromHeaders(resp.Header)); err != nil {
			return nil, err
		}
		p.etag = resp.Header.Get("ETag")
		observability.ArtifactFetchesTotal.WithLabelValues("updated").Inc()
		p.bus.Publish(events.Event{
			Type: events.ArtifactDownloadSucceeded,
			Data: events.ArtifactDownloaded{Location: p.config.Location, Payload: p.current.Load().Raw()},
		})
		return p.current.Load(), nil

	case http.StatusNotModified:
		cached := p.current.Load()
		if cached == nil {
			return nil, ErrNotModifiedWithoutCache
		}
		observability.ArtifactFetchesTotal.WithLabelValues("not_modified").Inc()
		p.logger.Debug("artifact not modified", slog.String("etag", p.etag))
		return cached, nil

	case http.StatusForbidden:
		return nil, ErrNotAuthorized

	default:
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}
}

// load parses payload, publishes it and notifies subscribers.
func (p *Provider) load(payload []byte, g *delivery.Geo) error {
	a, err := Parse(payload)
	if err != nil {
		return err
	}

	if previous := p.current.Swap(a); previous != nil {
		observability.ArtifactInfo.DeleteLabelValues(previous.Version)
	}
	observability.ArtifactInfo.WithLabelValues(a.Version).Set(1)
	observability.ArtifactLastSuccess.SetToCurrentTime()

	if g != nil {
		p.geo.Store(g)
		p.bus.Publish(events.Event{Type: events.GeoLocationUpdated, Data: events.GeoUpdated{Geo: g.Clone()}})
	}

	p.logger.Info("artifact loaded",
		slog.String("version", a.Version),
		slog.Int("rules", a.RuleCount()),
	)

	p.notify(Update{Artifact: a, Geo: g.Clone()})
	return nil
}

func (p *Provider) notify(u Update) {
	p.mu.Lock()
	listeners := make([]Listener, 0, len(p.listeners))
	for _, l := range p.listeners {
		listeners = append(listeners, l)
	}
	p.mu.Unlock()

	for _, l := range listeners {
		l(u)
	}
}

// Subscribe registers a listener and returns its id.
func (p *Provider) Subscribe(l Listener) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextID++
	p.listeners[p.nextID] = l
	return p.nextID
}

// Unsubscribe removes a listener.
func (p *Provider) Unsubscribe(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.listeners, id)
}

func (p *Provider) updateTrace(u Update) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.trace.RetrievalCount++
	p.trace.LastRetrieved = time.Now()
	p.trace.Version = u.Artifact.Version
	p.trace.GeneratedAt = u.Artifact.Meta.GeneratedAt
	if u.Artifact.Meta.ClientCode != "" {
		p.trace.ClientCode = u.Artifact.Meta.ClientCode
	}
	if u.Artifact.Meta.Environment != "" {
		p.trace.Environment = u.Artifact.Meta.Environment
	}
}

// Trace returns the current provider snapshot.
func (p *Provider) Trace() Trace {
	p.mu.Lock()
	defer p.mu.Unlock()

	t := p.trace
	t.PollingHalted = p.halted
	return t
}

// PollingInterval is the effective interval between downloads.
func (p *Provider) PollingInterval() time.Duration {
	return p.config.PollingInterval
}

// Location is the resolved artifact URL.
func (p *Provider) Location() string {
	return p.config.Location
}

func (p *Provider) scheduleNext() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.config.PollingInterval <= 0 || p.config.Payload != nil && p.client == nil || p.halted || p.closed {
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(p.config.PollingInterval, p.poll)
}

func (p *Provider) poll() {
	// Errors are reported by Refresh; the artifact stays stale until the next tick.
	_, _ = p.Refresh(p.ctx)
	p.scheduleNext()
}

// StopPolling halts the timer. An in-flight download is not interrupted.
func (p *Provider) StopPolling() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.halted = true
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// ResumePolling clears the halted flag and re-arms the timer.
func (p *Provider) ResumePolling() {
	p.mu.Lock()
	wasHalted := p.halted
	p.halted = false
	p.mu.Unlock()

	if wasHalted {
		p.scheduleNext()
	}
}

// Close stops polling for good and cancels any in-flight download.
func (p *Provider) Close() {
	p.StopPolling()

	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.cancel()
}
