package targeting

import (
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// PageContext is the decomposition of a page or referring URL.
type PageContext struct {
	URL            string
	Domain         string
	Subdomain      string
	TopLevelDomain string
	Path           string
	Query          string
	Fragment       string
}

// ParseURL splits a URL into its targeting fields. Domain is the full host;
// the public suffix list splits it into subdomain and top-level domain.
// Hosts the list cannot resolve (IPs, localhost) only fill Domain. Fields keep
// the case of the input. Empty or invalid input yields empty fields.
func ParseURL(raw string) PageContext {
	if raw == "" {
		return PageContext{}
	}

	u, err := url.Parse(raw)
	if err != nil {
		return PageContext{URL: raw}
	}

	page := PageContext{
		URL:      raw,
		Domain:   u.Hostname(),
		Path:     u.Path,
		Query:    u.RawQuery,
		Fragment: u.Fragment,
	}

	host := page.Domain
	if host == "" || net.ParseIP(host) != nil {
		return page
	}

	lower := strings.ToLower(host)
	if len(lower) != len(host) {
		// Non-ASCII case folding shifted the offsets.
		host = lower
	}

	registrable, err := publicsuffix.EffectiveTLDPlusOne(lower)
	if err != nil {
		return page
	}
	suffix, _ := publicsuffix.PublicSuffix(lower)

	page.TopLevelDomain = host[len(host)-len(suffix):]
	if rest := len(host) - len(registrable); rest > 0 {
		page.Subdomain = host[:rest-1]
	}
	return page
}

// vars writes the page fields under prefix, each with a lowercase mirror.
func (p PageContext) vars(prefix string, into map[string]any) {
	fields := map[string]string{
		"url":            p.URL,
		"domain":         p.Domain,
		"subdomain":      p.Subdomain,
		"topLevelDomain": p.TopLevelDomain,
		"path":           p.Path,
		"query":          p.Query,
		"fragment":       p.Fragment,
	}
	for name, value := range fields {
		key := prefix + "." + name
		into[key] = value
		into[key+"_lc"] = strings.ToLower(value)
	}
}
