package artifact

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Environments an artifact can be published to.
const (
	EnvironmentProduction  = "production"
	EnvironmentStaging     = "staging"
	EnvironmentDevelopment = "development"
)

const (
	cdnHostProduction = "assets.adobetarget.com"
	cdnHostStaging    = "assets.staging.adobetarget.com"
	fileName          = "rules.json"
)

// Polling interval bounds.
const (
	DefaultPollingInterval = 300 * time.Second
	MinimumPollingInterval = 300 * time.Second
)

// PollingInterval resolves the effective polling interval from a configured
// number of seconds: 0 disables polling, anything else is raised to the floor.
func PollingInterval(seconds int) time.Duration {
	if seconds == 0 {
		return 0
	}
	return max(time.Duration(seconds)*time.Second, MinimumPollingInterval)
}

// NormalizeEnvironment returns env when it is a known environment, or
// production otherwise (logging a warning).
func NormalizeEnvironment(env string, logger *slog.Logger) string {
	switch env {
	case EnvironmentProduction, EnvironmentStaging, EnvironmentDevelopment:
		return env
	case "":
		return EnvironmentProduction
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("invalid environment, falling back to production",
		slog.String("environment", env),
		slog.Any("valid", []string{EnvironmentProduction, EnvironmentStaging, EnvironmentDevelopment}),
	)
	return EnvironmentProduction
}

// CDNBase returns the scheme-qualified CDN base URL. An explicit base path
// wins over the host derived from the CDN environment.
func CDNBase(cdnBasePath, cdnEnvironment string) string {
	if cdnBasePath != "" {
		base := strings.TrimRight(cdnBasePath, "/")
		if !strings.Contains(base, "://") {
			base = "https://" + base
		}
		return base
	}

	host := cdnHostProduction
	switch cdnEnvironment {
	case EnvironmentStaging, EnvironmentDevelopment:
		host = cdnHostStaging
	}
	return "https://" + host
}

// LocationOptions are the inputs of artifact location resolution.
type LocationOptions struct {
	// Override is used verbatim when set.
	Override       string
	Client         string
	Environment    string
	CDNEnvironment string
	CDNBasePath    string
	PropertyToken  string
}

// Location resolves the artifact URL:
// {cdnBase}/{client}/{environment}/v{major}/{propertyToken?}/rules.json
func Location(opts LocationOptions) string {
	if opts.Override != "" {
		return opts.Override
	}

	parts := []string{
		CDNBase(opts.CDNBasePath, opts.CDNEnvironment),
		opts.Client,
		opts.Environment,
		fmt.Sprintf("v%d", SupportedMajorVersion),
	}
	if opts.PropertyToken != "" {
		parts = append(parts, opts.PropertyToken)
	}
	parts = append(parts, fileName)
	return strings.Join(parts, "/")
}

// GeoEndpoint is the CDN geo lookup URL: {cdnBase}/v{major}/geo.
func GeoEndpoint(cdnBasePath, cdnEnvironment string) string {
	return fmt.Sprintf("%s/v%d/geo", CDNBase(cdnBasePath, cdnEnvironment), SupportedMajorVersion)
}
