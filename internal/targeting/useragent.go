package targeting

import (
	"regexp"
	"strconv"
	"strings"
)

// Unknown is the browser type and platform reported when nothing matches.
const Unknown = "unknown"

// Browser is the result of user-agent parsing.
type Browser struct {
	Name    string
	Version int
}

type browserMatcher struct {
	name    string
	pattern *regexp.Regexp
	// group holding the version, 0 when the browser carries no version.
	versionGroup int
}

// Matchers are tried in order; more specific engines come first since their
// user agents also advertise the engines they are built on.
var browserMatchers = []browserMatcher{
	{name: "edge", pattern: regexp.MustCompile(`(?i)(edge|edgios|edga|edg)/((\d+)?[\w.]+)`), versionGroup: 2},
	{name: "mobile safari", pattern: regexp.MustCompile(`(?i)version/([\w.]+).+?mobile/\w+\s(safari)`), versionGroup: 1},
	{name: "safari", pattern: regexp.MustCompile(`(?i)version/([\w.]+).+?(mobile\s?safari|safari)`), versionGroup: 1},
	{name: "chrome", pattern: regexp.MustCompile(`(?i)(chrome)/v?([\w.]+)`), versionGroup: 2},
	{name: "firefox", pattern: regexp.MustCompile(`(?i)(firefox)/([\w.-]+)$`), versionGroup: 2},
	{name: "ie", pattern: regexp.MustCompile(`(?i)(?:ms|\()(ie)\s([\w.]+)`), versionGroup: 2},
	{name: "ie", pattern: regexp.MustCompile(`(?i)(trident).+rv[:\s]([\w.]+).+like\sgecko`), versionGroup: 2},
}

type platformMatcher struct {
	name    string
	pattern *regexp.Regexp
}

var platformMatchers = []platformMatcher{
	{name: "windows", pattern: regexp.MustCompile(`(?i)windows`)},
	{name: "ios", pattern: regexp.MustCompile(`(?i)iphone|ipad|ipod`)},
	{name: "mac", pattern: regexp.MustCompile(`(?i)macintosh|mac os x`)},
	{name: "android", pattern: regexp.MustCompile(`(?i)android`)},
	{name: "linux", pattern: regexp.MustCompile(`(?i)linux`)},
}

// ParseBrowser extracts the browser family and major version.
// Unrecognized agents yield Unknown and -1.
func ParseBrowser(userAgent string) Browser {
	for _, m := range browserMatchers {
		groups := m.pattern.FindStringSubmatch(userAgent)
		if groups == nil {
			continue
		}
		return Browser{Name: m.name, Version: majorVersion(groups[m.versionGroup])}
	}
	return Browser{Name: Unknown, Version: -1}
}

// ParsePlatform returns the operating system family, or Unknown.
func ParsePlatform(userAgent string) string {
	for _, m := range platformMatchers {
		if m.pattern.MatchString(userAgent) {
			return m.name
		}
	}
	return Unknown
}

func majorVersion(version string) int {
	major, _, _ := strings.Cut(version, ".")
	n, err := strconv.Atoi(major)
	if err != nil {
		return -1
	}
	return n
}
