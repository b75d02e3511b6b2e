// Package engine is the on-device decisioning entry point. It wires the
// artifact provider, geo resolver, rule engine, notification collector and
// decision orchestrator together behind a small API.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/rafaeljc/bifrost/internal/artifact"
	"github.com/rafaeljc/bifrost/internal/decision"
	"github.com/rafaeljc/bifrost/internal/delivery"
	"github.com/rafaeljc/bifrost/internal/events"
	"github.com/rafaeljc/bifrost/internal/geo"
	"github.com/rafaeljc/bifrost/internal/httpclient"
	"github.com/rafaeljc/bifrost/internal/notification"
	"github.com/rafaeljc/bifrost/internal/observability"
	"github.com/rafaeljc/bifrost/internal/ruleengine"
	"github.com/rafaeljc/bifrost/internal/trace"
)

const tracerName = "github.com/rafaeljc/bifrost/internal/engine"

var (
	// ErrArtifactNotAvailable is returned by GetOffers before any artifact was loaded.
	ErrArtifactNotAvailable = errors.New("decisioning artifact is not available")

	// ErrUnsupportedArtifactVersion is returned when the artifact major version
	// is not the one this engine evaluates.
	ErrUnsupportedArtifactVersion = errors.New("unsupported artifact version")

	// ErrMissingClient is returned when Options.Client is empty.
	ErrMissingClient = errors.New("client is required")
)

// GetOffersOptions is one decisioning call.
type GetOffersOptions struct {
	Request *delivery.Request
	// Visitor is opaque caller state forwarded with notifications.
	Visitor any
}

// Engine answers delivery requests from the locally cached artifact.
// It is safe for concurrent use.
type Engine struct {
	logger       *slog.Logger
	opts         Options
	bus          *events.Bus
	provider     *artifact.Provider
	geo          *geo.Resolver
	allocator    *ruleengine.Allocator
	collector    *notification.Collector
	orchestrator *decision.Orchestrator
	tracer       oteltrace.Tracer
	now          func() time.Time

	stopEvents func()
	eventsDone chan struct{}
}

// New builds an engine without performing any I/O. Call Initialize before
// GetOffers.
func New(opts Options) (*Engine, error) {
	if opts.Client == "" {
		return nil, ErrMissingClient
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	opts.Notifications.TelemetryEnabled = !opts.DisableTelemetry

	logger := opts.Logger.With(slog.String("component", "engine"))
	environment := artifact.NormalizeEnvironment(opts.Environment, logger)

	allocator, err := ruleengine.NewAllocator(logger, opts.AllocationCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create allocator: %w", err)
	}

	client := httpclient.New(logger, opts.HTTP, opts.HTTPClient)
	bus := events.NewBus(logger)

	location := artifact.Location(artifact.LocationOptions{
		Override:       opts.ArtifactLocation,
		Client:         opts.Client,
		Environment:    environment,
		CDNEnvironment: opts.CDNEnvironment,
		CDNBasePath:    opts.CDNBasePath,
		PropertyToken:  opts.PropertyToken,
	})

	provider := artifact.NewProvider(logger, client, bus, artifact.ProviderConfig{
		Location:        location,
		PollingInterval: artifact.PollingInterval(opts.PollingIntervalSeconds),
		Payload:         opts.ArtifactPayload,
		ClientCode:      opts.Client,
		Environment:     environment,
	})

	collector := notification.New(logger, opts.SendNotification, opts.Notifications)

	e := &Engine{
		logger:       logger,
		opts:         opts,
		bus:          bus,
		provider:     provider,
		geo:          geo.NewResolver(logger, client, artifact.GeoEndpoint(opts.CDNBasePath, opts.CDNEnvironment), opts.GeoTimeout),
		allocator:    allocator,
		collector:    collector,
		orchestrator: decision.NewOrchestrator(logger, ruleengine.New(logger, allocator, opts.Client), collector, opts.Client),
		tracer:       otel.Tracer(tracerName),
		now:          opts.Clock,
	}
	e.forwardEvents()
	return e, nil
}

// Initialize creates an engine and loads the first artifact. The engine is
// closed when the initial load fails.
func Initialize(ctx context.Context, opts Options) (*Engine, error) {
	e, err := New(opts)
	if err != nil {
		return nil, err
	}
	if err := e.Initialize(ctx); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

// Initialize loads the first artifact and starts polling.
func (e *Engine) Initialize(ctx context.Context) error {
	ctx, span := e.tracer.Start(ctx, "engine.Initialize")
	defer span.End()

	if err := e.provider.Initialize(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "initial artifact load failed")
		return err
	}

	e.logger.InfoContext(ctx, "on-device decisioning engine initialized",
		slog.String("location", e.provider.Location()),
		slog.Duration("polling_interval", e.provider.PollingInterval()),
	)
	return nil
}

// forwardEvents relays bus events to the configured handler.
func (e *Engine) forwardEvents() {
	if e.opts.EventHandler == nil {
		return
	}

	ch, unsubscribe := e.bus.Subscribe(16)
	e.stopEvents = unsubscribe
	e.eventsDone = make(chan struct{})

	go func() {
		defer close(e.eventsDone)
		for ev := range ch {
			e.opts.EventHandler(ev)
		}
	}()
}

// GetOffers decides a delivery request on device.
func (e *Engine) GetOffers(ctx context.Context, opts GetOffersOptions) (*delivery.Response, error) {
	ctx, span := e.tracer.Start(ctx, "engine.GetOffers")
	defer span.End()

	start := e.now()
	resp, err := e.getOffers(ctx, opts)
	observability.DecisionDuration.Observe(e.now().Sub(start).Seconds())

	if err != nil {
		observability.DecisionsTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	observability.DecisionsTotal.WithLabelValues(strconv.Itoa(resp.Status)).Inc()
	span.SetAttributes(
		attribute.String("bifrost.request_id", resp.RequestID),
		attribute.Int("bifrost.status", resp.Status),
	)
	return resp, nil
}

func (e *Engine) getOffers(ctx context.Context, opts GetOffersOptions) (*delivery.Response, error) {
	a := e.provider.Artifact()
	if a == nil {
		return nil, ErrArtifactNotAvailable
	}
	if !a.Supported() {
		return nil, fmt.Errorf("%w: %s (supported major version %d)", ErrUnsupportedArtifactVersion, a.Version, artifact.SupportedMajorVersion)
	}

	req, err := delivery.Normalize(ctx, opts.Request, e.opts.LocationHint, func(ctx context.Context, g *delivery.Geo) *delivery.Geo {
		return e.geo.Resolve(ctx, a.GeoTargetingEnabled, g)
	})
	if err != nil {
		return nil, err
	}

	propertyToken := e.opts.PropertyToken
	if token := req.PropertyToken(); token != "" {
		propertyToken = token
	}

	return e.orchestrator.Run(ctx, decision.Input{
		Artifact:      a,
		Request:       req,
		PropertyToken: propertyToken,
		Trace:         trace.NewProvider(req, e.opts.Client, e.provider.Trace()),
		Visitor:       opts.Visitor,
	})
}

// IsReady reports whether an artifact is loaded.
func (e *Engine) IsReady() bool {
	return e.provider.Artifact() != nil
}

// HasRemoteDependency reports which parts of req need the remote service.
func (e *Engine) HasRemoteDependency(req *delivery.Request) (artifact.RemoteDependency, error) {
	return artifact.HasRemoteDependency(e.provider.Artifact(), req)
}

// RawArtifact returns the payload of the current artifact, or nil.
func (e *Engine) RawArtifact() []byte {
	a := e.provider.Artifact()
	if a == nil {
		return nil
	}
	return a.Raw()
}

// StopPolling halts artifact refreshes.
func (e *Engine) StopPolling() {
	e.provider.StopPolling()
}

// ResumePolling restarts artifact refreshes.
func (e *Engine) ResumePolling() {
	e.provider.ResumePolling()
}

var _ observability.Checker = (*Engine)(nil)

// Name implements observability.Checker.
func (e *Engine) Name() string {
	return "artifact"
}

// Check implements observability.Checker: the engine is ready once an
// artifact it can evaluate is loaded.
func (e *Engine) Check(_ context.Context) error {
	a := e.provider.Artifact()
	if a == nil {
		return ErrArtifactNotAvailable
	}
	if !a.Supported() {
		return fmt.Errorf("%w: %s", ErrUnsupportedArtifactVersion, a.Version)
	}
	return nil
}

// Close stops polling, waits for in-flight notification sends and releases
// the allocation memo.
func (e *Engine) Close() {
	e.provider.Close()
	e.collector.Wait()
	if e.stopEvents != nil {
		e.stopEvents()
		<-e.eventsDone
	}
	e.allocator.Close()
}
