package config

import (
	"bytes"
	"log/slog"
	"maps"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// minimalRequiredConfig provides the account identifiers needed for all tests
func minimalRequiredConfig() map[string]string {
	return map[string]string{
		"BIFROST_DECISIONING_CLIENT":          "acmeclient",
		"BIFROST_DECISIONING_ORGANIZATION_ID": "ABC123@AdobeOrg",
	}
}

// mergeEnvVars merges additional env vars with minimal required config
func mergeEnvVars(additional map[string]string) map[string]string {
	result := minimalRequiredConfig()
	maps.Copy(result, additional)
	return result
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		want    func(t *testing.T, cfg *Config)
		wantErr bool
	}{
		{
			name:    "Should use defaults when only required env vars are set",
			envVars: minimalRequiredConfig(),
			want: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "bifrost", cfg.App.Name)
				assert.Equal(t, "dev", cfg.App.Version)
				assert.Equal(t, "development", cfg.App.Environment)
				assert.Equal(t, "info", cfg.App.LogLevel)
				assert.Equal(t, "text", cfg.App.LogFormat)
				assert.Equal(t, 30*time.Second, cfg.App.ShutdownTimeout)

				assert.Equal(t, "acmeclient", cfg.Decisioning.Client)
				assert.Equal(t, 300, cfg.Decisioning.PollingIntervalSeconds)
				assert.Equal(t, "production", cfg.Decisioning.Environment)
				assert.Equal(t, "production", cfg.Decisioning.CDNEnvironment)
				assert.True(t, cfg.Decisioning.TelemetryEnabled)
				assert.Equal(t, 100000, cfg.Decisioning.AllocationCacheSize)

				assert.Equal(t, 10*time.Second, cfg.HTTP.Timeout)
				assert.Equal(t, 10, cfg.HTTP.MaxRetries)
				assert.Equal(t, []int{408, 429, 500, 502, 503, 504}, cfg.HTTP.RetryableStatus)
				assert.Equal(t, 2*time.Second, cfg.Geo.Timeout)
				assert.Equal(t, int64(16), cfg.Notifications.MaxInFlight)
			},
		},
		{
			name: "Should load all custom environment variables correctly",
			envVars: mergeEnvVars(map[string]string{
				"BIFROST_APP_NAME":                          "edge-decisions",
				"BIFROST_APP_ENV":                           "staging",
				"BIFROST_APP_LOG_LEVEL":                     "debug",
				"BIFROST_APP_LOG_FORMAT":                    "json",
				"BIFROST_DECISIONING_POLLING_INTERVAL":      "0",
				"BIFROST_DECISIONING_ARTIFACT_LOCATION":     "https://cdn.example.com/acme/rules.json",
				"BIFROST_DECISIONING_ENVIRONMENT":           "staging",
				"BIFROST_DECISIONING_PROPERTY_TOKEN":        "prop-1",
				"BIFROST_DECISIONING_LOCATION_HINT":         "35",
				"BIFROST_DECISIONING_TELEMETRY_ENABLED":     "false",
				"BIFROST_HTTP_RETRYABLE_STATUS":             "503,504",
				"BIFROST_HTTP_MAX_RETRIES":                  "2",
				"BIFROST_GEO_TIMEOUT":                       "750ms",
				"BIFROST_NOTIFICATIONS_MAX_IN_FLIGHT":       "4",
				"BIFROST_DECISIONING_CDN_BASE_PATH":         "assets.example.net",
				"BIFROST_DECISIONING_ARTIFACT_PAYLOAD_FILE": "/etc/bifrost/rules.json",
			}),
			want: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "edge-decisions", cfg.App.Name)
				assert.Equal(t, "json", cfg.App.LogFormat)
				assert.Equal(t, 0, cfg.Decisioning.PollingIntervalSeconds)
				assert.Equal(t, "https://cdn.example.com/acme/rules.json", cfg.Decisioning.ArtifactLocation)
				assert.Equal(t, "staging", cfg.Decisioning.Environment)
				assert.Equal(t, "prop-1", cfg.Decisioning.PropertyToken)
				assert.Equal(t, "35", cfg.Decisioning.LocationHint)
				assert.False(t, cfg.Decisioning.TelemetryEnabled)
				assert.Equal(t, []int{503, 504}, cfg.HTTP.RetryableStatus)
				assert.Equal(t, 2, cfg.HTTP.MaxRetries)
				assert.Equal(t, 750*time.Millisecond, cfg.Geo.Timeout)
				assert.Equal(t, int64(4), cfg.Notifications.MaxInFlight)
				assert.Equal(t, "assets.example.net", cfg.Decisioning.CDNBasePath)
				assert.Equal(t, "/etc/bifrost/rules.json", cfg.Decisioning.ArtifactPayloadFile)
			},
		},
		{
			name: "Should accept an unknown target environment (resolved later with a warning)",
			envVars: mergeEnvVars(map[string]string{
				"BIFROST_DECISIONING_ENVIRONMENT": "qa",
			}),
			want: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "qa", cfg.Decisioning.Environment)
			},
		},
		{
			name:    "Should fail validation when client is missing",
			envVars: map[string]string{"BIFROST_DECISIONING_ORGANIZATION_ID": "ABC123@AdobeOrg"},
			wantErr: true,
		},
		{
			name: "Should fail validation on negative polling interval",
			envVars: mergeEnvVars(map[string]string{
				"BIFROST_DECISIONING_POLLING_INTERVAL": "-5",
			}),
			wantErr: true,
		},
		{
			name: "Should fail validation on artifact location without http scheme",
			envVars: mergeEnvVars(map[string]string{
				"BIFROST_DECISIONING_ARTIFACT_LOCATION": "ftp://cdn.example.com/rules.json",
			}),
			wantErr: true,
		},
		{
			name: "Should fail validation on property token with whitespace",
			envVars: mergeEnvVars(map[string]string{
				"BIFROST_DECISIONING_PROPERTY_TOKEN": "prop 1",
			}),
			wantErr: true,
		},
		{
			name: "Should fail validation when max backoff is lower than initial backoff",
			envVars: mergeEnvVars(map[string]string{
				"BIFROST_HTTP_INITIAL_BACKOFF": "2s",
				"BIFROST_HTTP_MAX_BACKOFF":     "1s",
			}),
			wantErr: true,
		},
		{
			name: "Should fail validation on out of range retryable status",
			envVars: mergeEnvVars(map[string]string{
				"BIFROST_HTTP_RETRYABLE_STATUS": "503,700",
			}),
			wantErr: true,
		},
		{
			name: "Should fail validation on invalid app environment value",
			envVars: mergeEnvVars(map[string]string{
				"BIFROST_APP_ENV": "invalid",
			}),
			wantErr: true,
		},
		{
			name: "Should fail validation on invalid log format",
			envVars: mergeEnvVars(map[string]string{
				"BIFROST_APP_LOG_FORMAT": "xml",
			}),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// t.Setenv automatically prevents parallel execution and cleans up after the test
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			cfg, err := Load()

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			if tt.want != nil {
				tt.want(t, cfg)
			}
		})
	}
}

func TestLogConfig(t *testing.T) {
	for key, value := range minimalRequiredConfig() {
		t.Setenv(key, value)
	}
	cfg, err := Load()
	require.NoError(t, err)

	var buf bytes.Buffer
	cfg.LogConfig(slog.New(slog.NewTextHandler(&buf, nil)))

	out := buf.String()
	assert.Contains(t, out, "configuration loaded")
	assert.Contains(t, out, "client=acmeclient")
	assert.NotContains(t, out, "ABC123@AdobeOrg", "organization id is not logged")
}
