// Package targeting builds the variables rule conditions are evaluated
// against: time, user agent, page and referring URLs, geo and mbox parameters.
package targeting

import (
	"maps"
	"strings"
	"time"

	"github.com/rafaeljc/bifrost/internal/delivery"
	"github.com/rafaeljc/bifrost/internal/jsonlogic"
)

// defaultLocale is reported for every visitor.
const defaultLocale = "en"

// Build creates the request-level decisioning context. Geo must already be
// resolved on req.Context.
func Build(req *delivery.Request, now time.Time) jsonlogic.Data {
	vars := make(jsonlogic.Data, 64)

	utc := now.UTC()
	vars["current_timestamp"] = utc.UnixMilli()
	vars["current_time"] = utc.Format("1504")
	vars["current_day"] = isoWeekday(utc)

	var rc delivery.Context
	if req != nil && req.Context != nil {
		rc = *req.Context
	}

	browser := ParseBrowser(rc.UserAgent)
	vars["user.browserType"] = browser.Name
	vars["user.browserVersion"] = browser.Version
	vars["user.platform"] = ParsePlatform(rc.UserAgent)
	vars["user.locale"] = defaultLocale

	OverlayAddress(vars, rc.Address)
	geoVars(rc.Geo, vars)

	return vars
}

// isoWeekday numbers days from Monday (1) to Sunday (7).
func isoWeekday(t time.Time) int {
	if d := t.Weekday(); d != time.Sunday {
		return int(d)
	}
	return 7
}

// OverlayAddress (re)writes the page and referring variables from addr.
// A nil address writes empty values.
func OverlayAddress(vars jsonlogic.Data, addr *delivery.Address) {
	var a delivery.Address
	if addr != nil {
		a = *addr
	}
	ParseURL(a.URL).vars("page", vars)
	ParseURL(a.ReferringURL).vars("referring", vars)
}

// OverlayParameters writes mbox parameters with their lowercase mirrors.
func OverlayParameters(vars jsonlogic.Data, params map[string]string) {
	for k, v := range params {
		vars["mbox."+k] = v
		vars["mbox."+k+"_lc"] = strings.ToLower(v)
	}
}

// Scoped returns a copy of the request context for a single rule evaluation.
func Scoped(base jsonlogic.Data, details *delivery.RequestDetails) jsonlogic.Data {
	vars := maps.Clone(base)
	if vars == nil {
		vars = make(jsonlogic.Data)
	}
	if details == nil {
		return vars
	}
	if details.Address != nil {
		OverlayAddress(vars, details.Address)
	}
	OverlayParameters(vars, details.Parameters)
	return vars
}

func geoVars(g *delivery.Geo, vars jsonlogic.Data) {
	if g == nil {
		return
	}
	vars["geo.country"] = g.CountryCode
	vars["geo.region"] = g.StateCode
	vars["geo.city"] = g.City
	if g.Latitude != nil {
		vars["geo.latitude"] = *g.Latitude
	}
	if g.Longitude != nil {
		vars["geo.longitude"] = *g.Longitude
	}
}
