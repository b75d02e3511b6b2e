package targeting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/bifrost/internal/delivery"
	"github.com/rafaeljc/bifrost/internal/jsonlogic"
)

func TestParseBrowser(t *testing.T) {
	tests := []struct {
		name         string
		userAgent    string
		wantBrowser  string
		wantVersion  int
		wantPlatform string
	}{
		{
			name:         "Should detect desktop chrome on mac",
			userAgent:    "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			wantBrowser:  "chrome",
			wantVersion:  120,
			wantPlatform: "mac",
		},
		{
			name:         "Should prefer edge over the chrome it embeds",
			userAgent:    "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.2210.91",
			wantBrowser:  "edge",
			wantVersion:  120,
			wantPlatform: "windows",
		},
		{
			name:         "Should detect desktop safari",
			userAgent:    "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
			wantBrowser:  "safari",
			wantVersion:  17,
			wantPlatform: "mac",
		},
		{
			name:         "Should detect mobile safari on iOS",
			userAgent:    "Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
			wantBrowser:  "mobile safari",
			wantVersion:  17,
			wantPlatform: "ios",
		},
		{
			name:         "Should detect firefox on linux",
			userAgent:    "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
			wantBrowser:  "firefox",
			wantVersion:  121,
			wantPlatform: "linux",
		},
		{
			name:         "Should detect chrome on android",
			userAgent:    "Mozilla/5.0 (Linux; Android 10; K) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
			wantBrowser:  "chrome",
			wantVersion:  120,
			wantPlatform: "android",
		},
		{
			name:         "Should detect IE 11 through trident",
			userAgent:    "Mozilla/5.0 (Windows NT 10.0; Trident/7.0; rv:11.0) like Gecko",
			wantBrowser:  "ie",
			wantVersion:  11,
			wantPlatform: "windows",
		},
		{
			name:         "Should detect legacy MSIE",
			userAgent:    "Mozilla/5.0 (compatible; MSIE 10.0; Windows NT 6.1; Trident/6.0)",
			wantBrowser:  "ie",
			wantVersion:  10,
			wantPlatform: "windows",
		},
		{
			name:         "Should report unknown for unmatched agents",
			userAgent:    "curl/8.4.0",
			wantBrowser:  Unknown,
			wantVersion:  -1,
			wantPlatform: Unknown,
		},
		{
			name:         "Should report unknown for an empty agent",
			wantBrowser:  Unknown,
			wantVersion:  -1,
			wantPlatform: Unknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Act
			browser := ParseBrowser(tt.userAgent)
			platform := ParsePlatform(tt.userAgent)

			// Assert
			assert.Equal(t, tt.wantBrowser, browser.Name)
			assert.Equal(t, tt.wantVersion, browser.Version)
			assert.Equal(t, tt.wantPlatform, platform)
		})
	}
}

func TestParseURL(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want PageContext
	}{
		{
			name: "Should split a multi-label public suffix",
			raw:  "https://www.Example.co.uk/path/Page?Q=1#Frag",
			want: PageContext{
				URL:            "https://www.Example.co.uk/path/Page?Q=1#Frag",
				Domain:         "www.Example.co.uk",
				Subdomain:      "www",
				TopLevelDomain: "co.uk",
				Path:           "/path/Page",
				Query:          "Q=1",
				Fragment:       "Frag",
			},
		},
		{
			name: "Should keep nested subdomains",
			raw:  "http://a.b.example.com/",
			want: PageContext{URL: "http://a.b.example.com/", Domain: "a.b.example.com", Subdomain: "a.b", TopLevelDomain: "com", Path: "/"},
		},
		{
			name: "Should keep the case of a mixed-case host",
			raw:  "http://WWW.TARGET.COM/About/?m=1&z=2#Part1",
			want: PageContext{
				URL:            "http://WWW.TARGET.COM/About/?m=1&z=2#Part1",
				Domain:         "WWW.TARGET.COM",
				Subdomain:      "WWW",
				TopLevelDomain: "COM",
				Path:           "/About/",
				Query:          "m=1&z=2",
				Fragment:       "Part1",
			},
		},
		{
			name: "Should leave the subdomain empty for a registrable host",
			raw:  "https://target.com",
			want: PageContext{URL: "https://target.com", Domain: "target.com", TopLevelDomain: "com"},
		},
		{
			name: "Should fall back to the bare host when no suffix applies",
			raw:  "http://localhost:8080/a",
			want: PageContext{URL: "http://localhost:8080/a", Domain: "localhost", Path: "/a"},
		},
		{
			name: "Should keep IP hosts whole",
			raw:  "http://127.0.0.1/x",
			want: PageContext{URL: "http://127.0.0.1/x", Domain: "127.0.0.1", Path: "/x"},
		},
		{
			name: "Should return empty fields without a URL",
			raw:  "",
			want: PageContext{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseURL(tt.raw))
		})
	}
}

func TestBuild(t *testing.T) {
	// Arrange
	lat := 37.75
	now := time.Date(2024, time.January, 7, 13, 5, 0, 0, time.UTC) // Sunday
	req := &delivery.Request{
		Context: &delivery.Context{
			Channel:   delivery.ChannelWeb,
			UserAgent: "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
			Address:   &delivery.Address{URL: "https://shop.Example.com/Cart", ReferringURL: "https://google.com/search?q=x"},
			Geo:       &delivery.Geo{CountryCode: "US", StateCode: "CA", City: "SAN FRANCISCO", Latitude: &lat},
		},
	}

	// Act
	vars := Build(req, now)

	// Assert
	assert.Equal(t, now.UnixMilli(), vars["current_timestamp"])
	assert.Equal(t, "1305", vars["current_time"])
	assert.Equal(t, 7, vars["current_day"])
	assert.Equal(t, "firefox", vars["user.browserType"])
	assert.Equal(t, 121, vars["user.browserVersion"])
	assert.Equal(t, "linux", vars["user.platform"])
	assert.Equal(t, "en", vars["user.locale"])
	assert.Equal(t, "shop.Example.com", vars["page.domain"])
	assert.Equal(t, "shop.example.com", vars["page.domain_lc"])
	assert.Equal(t, "shop", vars["page.subdomain"])
	assert.Equal(t, "/Cart", vars["page.path"])
	assert.Equal(t, "/cart", vars["page.path_lc"])
	assert.Equal(t, "google.com", vars["referring.domain"])
	assert.Equal(t, "q=x", vars["referring.query"])
	assert.Equal(t, "US", vars["geo.country"])
	assert.Equal(t, "CA", vars["geo.region"])
	assert.Equal(t, 37.75, vars["geo.latitude"])
	assert.NotContains(t, vars, "geo.longitude")
}

func TestBuild_PageDomainCase(t *testing.T) {
	req := &delivery.Request{Context: &delivery.Context{
		Address: &delivery.Address{URL: "http://WWW.TARGET.COM/About/?m=1&z=2#Part1"},
	}}

	vars := Build(req, time.Now())

	assert.Equal(t, "WWW.TARGET.COM", vars["page.domain"])
	assert.Equal(t, "www.target.com", vars["page.domain_lc"])
	assert.Equal(t, "WWW", vars["page.subdomain"])
	assert.Equal(t, "www", vars["page.subdomain_lc"])
	assert.Equal(t, "COM", vars["page.topLevelDomain"])
	assert.Equal(t, "com", vars["page.topLevelDomain_lc"])

	expr, err := jsonlogic.Parse([]byte(`{"==":[{"var":"page.domain_lc"},"www.target.com"]}`))
	require.NoError(t, err)
	assert.True(t, expr.Match(vars))
}

func TestBuild_EmptyRequest(t *testing.T) {
	vars := Build(&delivery.Request{}, time.Date(2024, time.January, 8, 0, 0, 0, 0, time.UTC))

	assert.Equal(t, 1, vars["current_day"], "Monday is day 1")
	assert.Equal(t, "", vars["page.url"])
	assert.Equal(t, "", vars["referring.domain_lc"])
	assert.Equal(t, Unknown, vars["user.browserType"])
	assert.NotContains(t, vars, "geo.city")
}

func TestScoped(t *testing.T) {
	// Arrange
	base := Build(&delivery.Request{Context: &delivery.Context{Address: &delivery.Address{URL: "https://a.com/home"}}}, time.Now())
	details := &delivery.RequestDetails{
		Address:    &delivery.Address{URL: "https://b.com/Product"},
		Parameters: map[string]string{"Color": "Red"},
	}

	// Act
	scoped := Scoped(base, details)

	// Assert
	assert.Equal(t, "b.com", scoped["page.domain"])
	assert.Equal(t, "Red", scoped["mbox.Color"])
	assert.Equal(t, "red", scoped["mbox.Color_lc"])
	assert.Equal(t, "a.com", base["page.domain"], "the request context must not change")
	assert.NotContains(t, base, "mbox.Color")

	expr, err := jsonlogic.Parse([]byte(`{"and":[{"==":[{"var":"mbox.Color_lc"},"red"]},{"in":["product",{"var":"page.path_lc"}]}]}`))
	assert.NoError(t, err)
	assert.True(t, expr.Match(scoped))
}
