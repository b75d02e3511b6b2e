package engine

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/rafaeljc/bifrost/internal/config"
	"github.com/rafaeljc/bifrost/internal/events"
	"github.com/rafaeljc/bifrost/internal/httpclient"
	"github.com/rafaeljc/bifrost/internal/notification"
)

// Options configures an Engine. Zero values are usable except for Client.
type Options struct {
	// Client is the account client code.
	Client         string
	OrganizationID string

	// PollingIntervalSeconds of 0 disables polling; other values are raised
	// to the minimum polling interval.
	PollingIntervalSeconds int

	// ArtifactLocation overrides the CDN-derived artifact URL.
	ArtifactLocation string
	// ArtifactPayload, when set, is used instead of downloading the artifact.
	ArtifactPayload []byte

	Environment    string
	CDNEnvironment string
	CDNBasePath    string
	PropertyToken  string
	LocationHint   string

	// DisableTelemetry turns off telemetry entries; telemetry is on by default.
	DisableTelemetry bool

	// AllocationCacheSize caps the memoized allocation buckets.
	AllocationCacheSize int

	HTTP          httpclient.Config
	GeoTimeout    time.Duration
	Notifications notification.Config

	// SendNotification delivers notification batches. Batches are dropped when nil.
	SendNotification notification.Sender
	// EventHandler receives artifact and geo events.
	EventHandler func(events.Event)
	// HTTPClient is the base client for CDN calls.
	HTTPClient *http.Client
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// OptionsFromConfig maps the environment configuration onto engine options.
// An artifact payload file, when configured, is read here.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	d := cfg.Decisioning

	opts := Options{
		Client:                 d.Client,
		OrganizationID:         d.OrganizationID,
		PollingIntervalSeconds: d.PollingIntervalSeconds,
		ArtifactLocation:       d.ArtifactLocation,
		Environment:            d.Environment,
		CDNEnvironment:         d.CDNEnvironment,
		CDNBasePath:            d.CDNBasePath,
		PropertyToken:          d.PropertyToken,
		LocationHint:           d.LocationHint,
		DisableTelemetry:       !d.TelemetryEnabled,
		AllocationCacheSize:    d.AllocationCacheSize,
		HTTP: httpclient.Config{
			Timeout:         cfg.HTTP.Timeout,
			MaxRetries:      cfg.HTTP.MaxRetries,
			InitialBackoff:  cfg.HTTP.InitialBackoff,
			MaxBackoff:      cfg.HTTP.MaxBackoff,
			RetryableStatus: cfg.HTTP.RetryableStatus,
		},
		GeoTimeout: cfg.Geo.Timeout,
		Notifications: notification.Config{
			MaxInFlight: cfg.Notifications.MaxInFlight,
			SendTimeout: cfg.Notifications.SendTimeout,
		},
	}

	if d.ArtifactPayloadFile != "" {
		payload, err := os.ReadFile(d.ArtifactPayloadFile)
		if err != nil {
			return Options{}, fmt.Errorf("failed to read artifact payload: %w", err)
		}
		opts.ArtifactPayload = payload
	}

	return opts, nil
}
