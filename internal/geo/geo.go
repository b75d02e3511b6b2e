// Package geo resolves the geo context of a request, either from headers
// supplied by the edge or through the CDN geo lookup endpoint.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/rafaeljc/bifrost/internal/delivery"
	"github.com/rafaeljc/bifrost/internal/httpclient"
	"github.com/rafaeljc/bifrost/internal/observability"
	"github.com/rafaeljc/bifrost/internal/validation"
)

// UnknownIPAddress asks for a lookup of the calling host's own address.
const UnknownIPAddress = "unknownIpAddress"

// Headers carrying geo data, set by the CDN or an upstream edge.
const (
	HeaderLatitude    = "x-geo-latitude"
	HeaderLongitude   = "x-geo-longitude"
	HeaderCountryCode = "x-geo-country-code"
	HeaderRegionCode  = "x-geo-region-code"
	HeaderCity        = "x-geo-city"
	HeaderForwardedIP = "x-forwarded-for"
)

// DefaultTimeout bounds a lookup when none is configured.
const DefaultTimeout = 2 * time.Second

// FromHeaders builds a geo context from geo headers. It returns nil when no
// geo header is present.
func FromHeaders(h http.Header) *delivery.Geo {
	if h == nil {
		return nil
	}

	g := &delivery.Geo{
		IPAddress:   h.Get(HeaderForwardedIP),
		CountryCode: h.Get(HeaderCountryCode),
		StateCode:   h.Get(HeaderRegionCode),
		City:        h.Get(HeaderCity),
		Latitude:    parseCoordinate(h.Get(HeaderLatitude)),
		Longitude:   parseCoordinate(h.Get(HeaderLongitude)),
	}
	if g.IPAddress == "" && !g.HasLocation() {
		return nil
	}
	return g
}

func parseCoordinate(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// Fetcher performs the lookup call.
type Fetcher interface {
	Get(ctx context.Context, url string, header http.Header) (*httpclient.Response, error)
}

// Resolver looks up geo context on behalf of requests.
type Resolver struct {
	logger   *slog.Logger
	client   Fetcher
	endpoint string
	timeout  time.Duration
}

// NewResolver creates a resolver for the given geo endpoint.
func NewResolver(logger *slog.Logger, client Fetcher, endpoint string, timeout time.Duration) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	validation.AssertPresent(client, "geo fetcher")
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Resolver{
		logger:   logger,
		client:   client,
		endpoint: endpoint,
		timeout:  timeout,
	}
}

// Resolve returns the geo context to evaluate a request with.
//
// With geo targeting disabled, or when the caller already supplied location
// fields, the requested geo is returned unchanged. A lookup happens only for
// an IP address without location (UnknownIPAddress included); the result is
// the requested geo with the looked up fields merged over it. A failed lookup
// yields nil and is logged.
func (r *Resolver) Resolve(ctx context.Context, enabled bool, requested *delivery.Geo) *delivery.Geo {
	if !enabled || requested == nil || requested.IPAddress == "" || requested.HasLocation() {
		return requested
	}

	found, err := r.Lookup(ctx, requested.IPAddress)
	if err != nil {
		r.logger.Warn("geo lookup failed, continuing without geo",
			slog.String("ip_address", requested.IPAddress),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return merge(requested, found)
}

// merge overlays the looked up fields on a copy of the requested geo, so
// fields only the caller knows (zip) survive the lookup.
func merge(requested, found *delivery.Geo) *delivery.Geo {
	out := requested.Clone()
	if out.IPAddress == UnknownIPAddress {
		out.IPAddress = ""
	}
	if found.IPAddress != "" {
		out.IPAddress = found.IPAddress
	}
	if found.Latitude != nil {
		out.Latitude = found.Latitude
	}
	if found.Longitude != nil {
		out.Longitude = found.Longitude
	}
	if found.CountryCode != "" {
		out.CountryCode = found.CountryCode
	}
	if found.StateCode != "" {
		out.StateCode = found.StateCode
	}
	if found.City != "" {
		out.City = found.City
	}
	if found.Zip != "" {
		out.Zip = found.Zip
	}
	return out
}

// Lookup calls the geo endpoint for an IP address.
func (r *Resolver) Lookup(ctx context.Context, ip string) (*delivery.Geo, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	header := http.Header{}
	if ip != "" && ip != UnknownIPAddress {
		header.Set(HeaderForwardedIP, ip)
	}

	resp, err := r.client.Get(ctx, r.endpoint, header)
	if err != nil {
		observability.GeoLookupsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("geo request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		observability.GeoLookupsTotal.WithLabelValues("error").Inc()
		return nil, &httpclient.StatusError{StatusCode: resp.StatusCode}
	}

	var g delivery.Geo
	if err := json.Unmarshal(resp.Body, &g); err != nil {
		observability.GeoLookupsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to decode geo response: %w", err)
	}

	observability.GeoLookupsTotal.WithLabelValues("success").Inc()
	return &g, nil
}
