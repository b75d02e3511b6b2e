package testsupport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// GeoPayload is served by FakeCDN on the geo endpoint.
const GeoPayload = `{"ipAddress":"12.21.1.40","latitude":37.75,"longitude":-122.4,"countryCode":"US","stateCode":"CA","city":"SAN FRANCISCO"}`

// FakeCDN serves an artifact with ETag handling plus the geo endpoint.
type FakeCDN struct {
	Server *httptest.Server

	mu             sync.Mutex
	payload        []byte
	etag           string
	status         int
	header         http.Header
	requests       int
	ifNoneMatch    []string
	geoRequests    int
	geoForwardedIP string
}

// NewFakeCDN starts a server closed at the end of the test.
func NewFakeCDN(t *testing.T) *FakeCDN {
	t.Helper()

	c := &FakeCDN{header: http.Header{}}
	c.Server = httptest.NewServer(http.HandlerFunc(c.serve))
	t.Cleanup(c.Server.Close)
	return c
}

// SetArtifact changes the served payload and ETag ("" sends no ETag).
func (c *FakeCDN) SetArtifact(payload []byte, etag string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payload = payload
	c.etag = etag
	c.status = 0
}

// FailWith makes artifact requests answer with status.
func (c *FakeCDN) FailWith(status int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = status
}

// SetHeader adds a header to artifact responses.
func (c *FakeCDN) SetHeader(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.header.Set(key, value)
}

// ArtifactURL is the location of the served artifact.
func (c *FakeCDN) ArtifactURL() string {
	return c.Server.URL + "/someClientId/production/v1/rules.json"
}

// Requests returns the number of artifact requests served.
func (c *FakeCDN) Requests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests
}

// IfNoneMatch returns the If-None-Match header of every artifact request.
func (c *FakeCDN) IfNoneMatch() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ifNoneMatch...)
}

// GeoRequests returns the number of geo lookups and the last forwarded IP.
func (c *FakeCDN) GeoRequests() (int, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.geoRequests, c.geoForwardedIP
}

func (c *FakeCDN) serve(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if strings.HasSuffix(r.URL.Path, "/geo") {
		c.geoRequests++
		c.geoForwardedIP = r.Header.Get("x-forwarded-for")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(GeoPayload))
		return
	}

	c.requests++
	c.ifNoneMatch = append(c.ifNoneMatch, r.Header.Get("If-None-Match"))

	if c.status != 0 {
		w.WriteHeader(c.status)
		return
	}
	if c.etag != "" && r.Header.Get("If-None-Match") == c.etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	for k, values := range c.header {
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}
	if c.etag != "" {
		w.Header().Set("ETag", c.etag)
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(c.payload)
}
