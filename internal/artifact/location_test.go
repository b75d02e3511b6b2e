package artifact

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLocation(t *testing.T) {
	tests := []struct {
		name string
		opts LocationOptions
		want string
	}{
		{
			name: "Should use the override verbatim",
			opts: LocationOptions{Override: "https://example.com/rules.json", Client: "ignored"},
			want: "https://example.com/rules.json",
		},
		{
			name: "Should derive the production CDN location",
			opts: LocationOptions{Client: "acme", Environment: "production"},
			want: "https://assets.adobetarget.com/acme/production/v1/rules.json",
		},
		{
			name: "Should use the staging CDN and include the property token",
			opts: LocationOptions{Client: "acme", Environment: "staging", CDNEnvironment: "staging", PropertyToken: "prop-1"},
			want: "https://assets.staging.adobetarget.com/acme/staging/v1/prop-1/rules.json",
		},
		{
			name: "Should add a scheme to a custom base path",
			opts: LocationOptions{Client: "acme", Environment: "development", CDNBasePath: "cdn.example.com/"},
			want: "https://cdn.example.com/acme/development/v1/rules.json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Location(tt.opts))
		})
	}
}

func TestGeoEndpoint(t *testing.T) {
	assert.Equal(t, "https://assets.adobetarget.com/v1/geo", GeoEndpoint("", ""))
	assert.Equal(t, "http://localhost:8080/v1/geo", GeoEndpoint("http://localhost:8080", ""))
}

func TestPollingInterval(t *testing.T) {
	tests := []struct {
		name    string
		seconds int
		want    time.Duration
	}{
		{name: "Should disable polling for zero", seconds: 0, want: 0},
		{name: "Should clamp short intervals to the floor", seconds: 10, want: MinimumPollingInterval},
		{name: "Should keep longer intervals", seconds: 600, want: 10 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PollingInterval(tt.seconds))
		})
	}
}

func TestNormalizeEnvironment(t *testing.T) {
	t.Run("Should keep known environments", func(t *testing.T) {
		assert.Equal(t, EnvironmentStaging, NormalizeEnvironment("staging", nil))
		assert.Equal(t, EnvironmentProduction, NormalizeEnvironment("", nil))
	})

	t.Run("Should fall back to production and warn", func(t *testing.T) {
		// Arrange
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))

		// Act
		got := NormalizeEnvironment("qa", logger)

		// Assert
		assert.Equal(t, EnvironmentProduction, got)
		assert.Contains(t, buf.String(), "invalid environment")
		assert.Contains(t, buf.String(), "qa")
	})
}
