package delivery

import "maps"

// Clone returns a deep copy of the request. The engine only ever works on
// clones so the caller's request is never mutated.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}

	out := *r
	out.ID = r.ID.Clone()
	out.Context = r.Context.Clone()
	if r.Property != nil {
		p := *r.Property
		out.Property = &p
	}
	if r.Trace != nil {
		t := *r.Trace
		t.Usage = maps.Clone(r.Trace.Usage)
		out.Trace = &t
	}
	if r.ExperienceCloud != nil {
		ec := *r.ExperienceCloud
		if ec.AudienceManager != nil {
			am := *ec.AudienceManager
			ec.AudienceManager = &am
		}
		if ec.Analytics != nil {
			an := *ec.Analytics
			ec.Analytics = &an
		}
		out.ExperienceCloud = &ec
	}
	if r.Execute != nil {
		out.Execute = &ExecuteRequest{
			PageLoad: r.Execute.PageLoad.Clone(),
			Mboxes:   cloneMboxRequests(r.Execute.Mboxes),
		}
	}
	if r.Prefetch != nil {
		views := make([]ViewRequest, len(r.Prefetch.Views))
		for i, v := range r.Prefetch.Views {
			views[i] = v
			views[i].RequestDetails = *v.RequestDetails.Clone()
		}
		if r.Prefetch.Views == nil {
			views = nil
		}
		out.Prefetch = &PrefetchRequest{
			PageLoad: r.Prefetch.PageLoad.Clone(),
			Views:    views,
			Mboxes:   cloneMboxRequests(r.Prefetch.Mboxes),
		}
	}
	if r.Notifications != nil {
		out.Notifications = make([]Notification, len(r.Notifications))
		for i, n := range r.Notifications {
			out.Notifications[i] = n.Clone()
		}
	}
	if r.Telemetry != nil {
		out.Telemetry = &Telemetry{Entries: append([]TelemetryEntry(nil), r.Telemetry.Entries...)}
	}
	return &out
}

// Clone returns a deep copy of the visitor id.
func (v *VisitorID) Clone() *VisitorID {
	if v == nil {
		return nil
	}
	out := *v
	out.CustomerIDs = append([]CustomerID(nil), v.CustomerIDs...)
	return &out
}

// Clone returns a deep copy of the context.
func (c *Context) Clone() *Context {
	if c == nil {
		return nil
	}
	out := *c
	if c.Address != nil {
		a := *c.Address
		out.Address = &a
	}
	out.Geo = c.Geo.Clone()
	if c.Browser != nil {
		b := *c.Browser
		out.Browser = &b
	}
	if c.TimeOffsetInMinutes != nil {
		offset := *c.TimeOffsetInMinutes
		out.TimeOffsetInMinutes = &offset
	}
	return &out
}

// Clone returns a deep copy of the geo object.
func (g *Geo) Clone() *Geo {
	if g == nil {
		return nil
	}
	out := *g
	if g.Latitude != nil {
		lat := *g.Latitude
		out.Latitude = &lat
	}
	if g.Longitude != nil {
		lon := *g.Longitude
		out.Longitude = &lon
	}
	return &out
}

// Clone returns a deep copy of the request details.
func (d *RequestDetails) Clone() *RequestDetails {
	if d == nil {
		return nil
	}
	out := *d
	if d.Address != nil {
		a := *d.Address
		out.Address = &a
	}
	out.Parameters = maps.Clone(d.Parameters)
	out.ProfileParameters = maps.Clone(d.ProfileParameters)
	if d.Order != nil {
		o := *d.Order
		o.PurchasedProductIDs = append([]string(nil), d.Order.PurchasedProductIDs...)
		out.Order = &o
	}
	if d.Product != nil {
		p := *d.Product
		out.Product = &p
	}
	return &out
}

// Clone returns a deep copy of the notification.
func (n Notification) Clone() Notification {
	out := n
	out.Tokens = append([]string(nil), n.Tokens...)
	if n.Mbox != nil {
		m := *n.Mbox
		out.Mbox = &m
	}
	if n.View != nil {
		v := *n.View
		out.View = &v
	}
	return out
}

func cloneMboxRequests(in []MboxRequest) []MboxRequest {
	if in == nil {
		return nil
	}
	out := make([]MboxRequest, len(in))
	for i, m := range in {
		out[i] = m
		out[i].RequestDetails = *m.RequestDetails.Clone()
	}
	return out
}

// CloneValue deep-copies a JSON-like value (maps, slices and scalars as
// produced by encoding/json). Option content is copied this way before it
// leaves the engine so callers cannot mutate the shared artifact.
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = CloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = CloneValue(item)
		}
		return out
	default:
		return v
	}
}
