package config

import (
	"fmt"
	"time"
)

// DecisioningConfig holds the settings consumed by the on-device decisioning engine.
type DecisioningConfig struct {
	// Client is the account client code used in artifact paths and allocation hashing.
	Client         string `envconfig:"CLIENT" validate:"required"`
	OrganizationID string `envconfig:"ORGANIZATION_ID" validate:"required"`

	// PollingIntervalSeconds of 0 disables polling; any other value is clamped
	// to the engine's minimum polling interval.
	PollingIntervalSeconds int `envconfig:"POLLING_INTERVAL" default:"300" validate:"min=0"`

	// ArtifactLocation overrides the CDN-derived artifact URL.
	ArtifactLocation string `envconfig:"ARTIFACT_LOCATION"`

	// ArtifactPayloadFile points to a local rules.json used instead of a network fetch.
	ArtifactPayloadFile string `envconfig:"ARTIFACT_PAYLOAD_FILE"`

	// Environment is not validated here: unknown values fall back to production
	// with a warning when the artifact location is resolved.
	Environment    string `envconfig:"ENVIRONMENT" default:"production"`
	CDNEnvironment string `envconfig:"CDN_ENVIRONMENT" default:"production"`
	CDNBasePath    string `envconfig:"CDN_BASE_PATH"`

	PropertyToken string `envconfig:"PROPERTY_TOKEN"`
	LocationHint  string `envconfig:"LOCATION_HINT"`

	TelemetryEnabled bool `envconfig:"TELEMETRY_ENABLED" default:"true"`

	// AllocationCacheSize caps the memoized allocation buckets kept in memory.
	AllocationCacheSize int `envconfig:"ALLOCATION_CACHE_SIZE" default:"100000" validate:"min=1"`
}

// Validate checks the cross-field rules envconfig tags cannot express.
func (c *DecisioningConfig) Validate() error {
	if c.ArtifactLocation != "" {
		if _, err := parseAndValidateURL(c.ArtifactLocation, []string{"http", "https"}); err != nil {
			return fmt.Errorf("invalid artifact location: %w", err)
		}
	}

	if err := validateNoWhitespace(c.PropertyToken, "property token"); err != nil {
		return err
	}

	if err := validateNoWhitespace(c.CDNBasePath, "cdn base path"); err != nil {
		return err
	}

	return nil
}

// GeoConfig configures the IP-to-geo lookup performed for geo-targeted artifacts.
type GeoConfig struct {
	// Timeout bounds a single lookup; requests proceed without geo when it elapses.
	Timeout time.Duration `envconfig:"TIMEOUT" default:"2s" validate:"gt=0"`
}

// NotificationsConfig configures the fire-and-forget notification dispatch.
type NotificationsConfig struct {
	// MaxInFlight caps concurrently running notification sends.
	MaxInFlight int64 `envconfig:"MAX_IN_FLIGHT" default:"16" validate:"min=1"`

	// SendTimeout bounds a single send; 0 leaves it to the transport.
	SendTimeout time.Duration `envconfig:"SEND_TIMEOUT" default:"10s" validate:"min=0"`
}
