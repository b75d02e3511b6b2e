package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/bifrost/internal/delivery"
	"github.com/rafaeljc/bifrost/internal/httpclient"
	"github.com/rafaeljc/bifrost/internal/observability"
	"github.com/rafaeljc/bifrost/internal/testsupport"
)

const geoPayload = `{"ipAddress":"12.21.1.40","latitude":37.75,"longitude":-122.4,"countryCode":"US","stateCode":"CA","city":"SAN FRANCISCO"}`

func newGeoServer(t *testing.T, status int, gotIP *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gotIP != nil {
			*gotIP = r.Header.Get(HeaderForwardedIP)
		}
		w.WriteHeader(status)
		if status == http.StatusOK {
			_, _ = w.Write([]byte(geoPayload))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newResolver(url string) *Resolver {
	client := httpclient.New(nil, httpclient.Config{Timeout: time.Second, InitialBackoff: time.Millisecond}, nil)
	return NewResolver(nil, client, url, time.Second)
}

func TestResolver_Resolve(t *testing.T) {
	lat := 1.0

	tests := []struct {
		name      string
		enabled   bool
		requested *delivery.Geo
		status    int
		wantCity  string
		wantNil   bool
		wantIP    string
		wantCall  bool
	}{
		{
			name:      "Should pass geo through when targeting is disabled",
			enabled:   false,
			requested: &delivery.Geo{IPAddress: "12.21.1.40"},
			status:    http.StatusOK,
		},
		{
			name:      "Should not look up when location fields are supplied",
			enabled:   true,
			requested: &delivery.Geo{IPAddress: "12.21.1.40", Latitude: &lat, City: "PORTLAND"},
			status:    http.StatusOK,
			wantCity:  "PORTLAND",
		},
		{
			name:      "Should look up by forwarded IP",
			enabled:   true,
			requested: &delivery.Geo{IPAddress: "12.21.1.40"},
			status:    http.StatusOK,
			wantCity:  "SAN FRANCISCO",
			wantIP:    "12.21.1.40",
			wantCall:  true,
		},
		{
			name:      "Should look up without forwarded IP for the unknown sentinel",
			enabled:   true,
			requested: &delivery.Geo{IPAddress: UnknownIPAddress},
			status:    http.StatusOK,
			wantCity:  "SAN FRANCISCO",
			wantCall:  true,
		},
		{
			name:      "Should return no geo when the lookup fails",
			enabled:   true,
			requested: &delivery.Geo{IPAddress: "12.21.1.40"},
			status:    http.StatusNotFound,
			wantNil:   true,
			wantIP:    "12.21.1.40",
			wantCall:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			called := false
			var gotIP string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				gotIP = r.Header.Get(HeaderForwardedIP)
				w.WriteHeader(tt.status)
				if tt.status == http.StatusOK {
					_, _ = w.Write([]byte(geoPayload))
				}
			}))
			defer srv.Close()

			// Act
			got := newResolver(srv.URL).Resolve(context.Background(), tt.enabled, tt.requested)

			// Assert
			assert.Equal(t, tt.wantCall, called)
			assert.Equal(t, tt.wantIP, gotIP)
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			if tt.wantCity != "" {
				assert.Equal(t, tt.wantCity, got.City)
			}
			if !tt.wantCall {
				assert.Same(t, tt.requested, got)
			}
		})
	}
}

func TestResolver_ResolveMerge(t *testing.T) {
	t.Run("Should keep caller fields the lookup does not return", func(t *testing.T) {
		// Arrange
		srv := newGeoServer(t, http.StatusOK, nil)
		requested := &delivery.Geo{IPAddress: "12.21.1.40", Zip: "94107"}

		// Act
		got := newResolver(srv.URL).Resolve(context.Background(), true, requested)

		// Assert
		require.NotNil(t, got)
		assert.Equal(t, "94107", got.Zip)
		assert.Equal(t, "SAN FRANCISCO", got.City)
		assert.Equal(t, "US", got.CountryCode)
		assert.Equal(t, "12.21.1.40", got.IPAddress)
		require.NotNil(t, got.Latitude)
		assert.InDelta(t, 37.75, *got.Latitude, 1e-9)
		assert.Equal(t, &delivery.Geo{IPAddress: "12.21.1.40", Zip: "94107"}, requested, "requested geo must not be mutated")
	})

	t.Run("Should keep the requested IP when the lookup returns none", func(t *testing.T) {
		// Arrange
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"city":"PORTLAND"}`))
		}))
		defer srv.Close()

		// Act
		got := newResolver(srv.URL).Resolve(context.Background(), true, &delivery.Geo{IPAddress: "12.21.1.40"})

		// Assert
		require.NotNil(t, got)
		assert.Equal(t, "12.21.1.40", got.IPAddress)
		assert.Equal(t, "PORTLAND", got.City)
	})

	t.Run("Should drop the unknown sentinel when the lookup returns no IP", func(t *testing.T) {
		// Arrange
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"city":"PORTLAND"}`))
		}))
		defer srv.Close()

		// Act
		got := newResolver(srv.URL).Resolve(context.Background(), true, &delivery.Geo{IPAddress: UnknownIPAddress})

		// Assert
		require.NotNil(t, got)
		assert.Empty(t, got.IPAddress)
		assert.Equal(t, "PORTLAND", got.City)
	})
}

func TestResolver_LookupMetrics(t *testing.T) {
	srv := newGeoServer(t, http.StatusOK, nil)
	resolver := newResolver(srv.URL)

	testsupport.AssertDelta(t, observability.GeoLookupsTotal.WithLabelValues("success"), 1, func() {
		g, err := resolver.Lookup(context.Background(), "12.21.1.40")
		require.NoError(t, err)
		assert.Equal(t, "US", g.CountryCode)
		assert.Equal(t, "CA", g.StateCode)
		require.NotNil(t, g.Longitude)
		assert.Equal(t, -122.4, *g.Longitude)
	})
}

func TestFromHeaders(t *testing.T) {
	t.Run("Should map every geo header", func(t *testing.T) {
		h := http.Header{}
		h.Set(HeaderForwardedIP, "12.21.1.40")
		h.Set(HeaderLatitude, "37.75")
		h.Set(HeaderLongitude, "-122.4")
		h.Set(HeaderCountryCode, "US")
		h.Set(HeaderRegionCode, "CA")
		h.Set(HeaderCity, "SAN FRANCISCO")

		g := FromHeaders(h)

		require.NotNil(t, g)
		assert.Equal(t, "12.21.1.40", g.IPAddress)
		assert.Equal(t, 37.75, *g.Latitude)
		assert.Equal(t, -122.4, *g.Longitude)
		assert.Equal(t, "US", g.CountryCode)
		assert.Equal(t, "CA", g.StateCode)
		assert.Equal(t, "SAN FRANCISCO", g.City)
	})

	t.Run("Should ignore malformed coordinates", func(t *testing.T) {
		h := http.Header{}
		h.Set(HeaderLatitude, "north")
		h.Set(HeaderCity, "X")

		g := FromHeaders(h)

		require.NotNil(t, g)
		assert.Nil(t, g.Latitude)
	})

	t.Run("Should return nil without geo headers", func(t *testing.T) {
		assert.Nil(t, FromHeaders(http.Header{"Content-Type": []string{"application/json"}}))
		assert.Nil(t, FromHeaders(nil))
	})
}
