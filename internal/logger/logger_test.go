package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/bifrost/internal/config"
)

func TestNewWithWriter(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.AppConfig
		logDebug  bool
		wantJSON  bool
		wantDebug bool
	}{
		{
			name:     "Should emit JSON when format is json",
			cfg:      config.AppConfig{Name: "bifrost", Version: "1.2.3", Environment: "production", LogLevel: "info", LogFormat: "json"},
			wantJSON: true,
		},
		{
			name:      "Should emit text and honor debug level",
			cfg:       config.AppConfig{Name: "bifrost", Version: "dev", Environment: "development", LogLevel: "debug", LogFormat: "text"},
			logDebug:  true,
			wantDebug: true,
		},
		{
			name:     "Should fall back to JSON and INFO on unknown values",
			cfg:      config.AppConfig{Name: "bifrost", Environment: "staging", LogLevel: "loud", LogFormat: "xml"},
			logDebug: true,
			wantJSON: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			var buf bytes.Buffer
			log := NewWithWriter(&tt.cfg, &buf)

			// Act
			if tt.logDebug {
				log.Debug("debug line")
			}
			log.Info("info line")

			// Assert
			out := buf.String()
			assert.Contains(t, out, "info line")
			assert.Equal(t, tt.wantDebug, bytes.Contains(buf.Bytes(), []byte("debug line")))

			if tt.wantJSON {
				lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
				var record map[string]any
				require.NoError(t, json.Unmarshal(lines[len(lines)-1], &record))
				assert.Equal(t, tt.cfg.Name, record["service"])
				assert.Equal(t, tt.cfg.Environment, record["env"])
			}
		})
	}
}

func TestNewWithWriter_NilConfigPanics(t *testing.T) {
	assert.Panics(t, func() { NewWithWriter(nil, &bytes.Buffer{}) })
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	parent := slog.New(slog.NewTextHandler(&buf, nil))

	Component(parent, "artifact").Info("hello")

	assert.Contains(t, buf.String(), "component=artifact")
	assert.NotNil(t, Component(nil, "x"), "Should fall back to slog.Default() when parent is nil")
}
