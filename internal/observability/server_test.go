package observability_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/bifrost/internal/config"
	"github.com/rafaeljc/bifrost/internal/logger"
	"github.com/rafaeljc/bifrost/internal/observability"
)

type fakeArtifact struct {
	payload atomic.Pointer[[]byte]
}

func (f *fakeArtifact) RawArtifact() []byte {
	if p := f.payload.Load(); p != nil {
		return *p
	}
	return nil
}

func testConfig(port string) *config.ObservabilityConfig {
	// Non-default paths make sure the configuration is honored.
	return &config.ObservabilityConfig{
		Enabled:       true,
		Port:          port,
		Timeout:       time.Second,
		LivenessPath:  "/alive",
		ReadinessPath: "/check-deps",
		MetricsPath:   "/telemetry",
		ArtifactPath:  "/rules",
	}
}

func TestServer_Start(t *testing.T) {
	// Arrange
	ctx := context.Background()
	freePort, err := getFreePort()
	require.NoError(t, err)

	server := observability.NewServer(logger.Discard(), testConfig(fmt.Sprintf("%d", freePort)), nil)

	// Act
	server.Start()
	defer func() { _ = server.Shutdown(ctx) }()

	// Assert
	baseURL := fmt.Sprintf("http://localhost:%d", freePort)
	require.Eventually(t, func() bool {
		resp, err := http.Get(baseURL + "/alive")
		if err == nil {
			resp.Body.Close()
			return resp.StatusCode == http.StatusOK
		}
		return false
	}, 5*time.Second, 100*time.Millisecond, "Server failed to start")

	resp, err := http.Get(baseURL + "/rules")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "artifact route requires a source")
}

func TestServer_Endpoints(t *testing.T) {
	ready := atomic.Bool{}
	checker := observability.CheckerFunc{
		CheckerName: "artifact",
		Fn: func(context.Context) error {
			if !ready.Load() {
				return errors.New("decisioning artifact is not available")
			}
			return nil
		},
	}
	source := &fakeArtifact{}

	server := observability.NewServer(logger.Discard(), testConfig("0"), source, checker)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	readiness := func(t *testing.T) (int, map[string]any) {
		resp, err := http.Get(ts.URL + "/check-deps")
		require.NoError(t, err)
		defer resp.Body.Close()

		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		return resp.StatusCode, body["status"].(map[string]any)
	}

	t.Run("Liveness should return 200 OK on custom path", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/alive")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, "ok", string(body))
	})

	t.Run("Readiness should fail (503) before the artifact loads", func(t *testing.T) {
		status, checks := readiness(t)

		assert.Equal(t, http.StatusServiceUnavailable, status)
		assert.Contains(t, checks["artifact"], "down")
	})

	t.Run("Artifact should return 404 before the artifact loads", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/rules")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("Readiness should return 200 OK once ready", func(t *testing.T) {
		ready.Store(true)

		status, checks := readiness(t)

		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "up", checks["artifact"])
	})

	t.Run("Artifact should serve the loaded payload", func(t *testing.T) {
		payload := []byte(`{"version":"1.0.0"}`)
		source.payload.Store(&payload)

		resp, err := http.Get(ts.URL + "/rules")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		body, _ := io.ReadAll(resp.Body)
		assert.JSONEq(t, string(payload), string(body))
	})

	t.Run("Metrics should be exposed on custom path", func(t *testing.T) {
		observability.DecisionsTotal.WithLabelValues("200").Add(0)

		resp, err := http.Get(ts.URL + "/telemetry")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body, _ := io.ReadAll(resp.Body)
		assert.Contains(t, string(body), "go_goroutines")
		assert.Contains(t, string(body), "bifrost_")
	})
}

func TestServer_ShutdownWithoutStart(t *testing.T) {
	server := observability.NewServer(logger.Discard(), testConfig("0"), nil)

	assert.NoError(t, server.Shutdown(context.Background()))
}

// getFreePort asks the kernel for a free TCP port.
func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}
	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
