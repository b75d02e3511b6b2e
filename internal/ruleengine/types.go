// Package ruleengine evaluates artifact rules against a decisioning context:
// traffic allocation, visitor id resolution and rule matching, with matched
// consequences threaded through a post-processing pipeline.
package ruleengine

import (
	"slices"

	"github.com/rafaeljc/bifrost/internal/artifact"
	"github.com/rafaeljc/bifrost/internal/delivery"
	"github.com/rafaeljc/bifrost/internal/jsonlogic"
)

// RequestType is the kind of request item a rule is evaluated for.
type RequestType string

const (
	RequestTypeMbox     RequestType = "mbox"
	RequestTypeView     RequestType = "view"
	RequestTypePageLoad RequestType = "pageLoad"
)

// Detail is a single requested item: an mbox, a view or the page load.
type Detail struct {
	delivery.RequestDetails

	// Index is set for mboxes only.
	Index *int
	Name  string
	Key   string
}

// MboxDetail adapts an mbox request.
func MboxDetail(m delivery.MboxRequest) Detail {
	index := m.Index
	return Detail{RequestDetails: m.RequestDetails, Index: &index, Name: m.Name}
}

// ViewDetail adapts a view request.
func ViewDetail(v delivery.ViewRequest) Detail {
	return Detail{RequestDetails: v.RequestDetails, Name: v.Name, Key: v.Key}
}

// PageLoadDetail adapts page load details, named after the global mbox.
func PageLoadDetail(d *delivery.RequestDetails, globalMbox string) Detail {
	var details delivery.RequestDetails
	if d != nil {
		details = *d
	}
	return Detail{RequestDetails: details, Name: globalMbox}
}

// Decision is a matched rule consequence on its way through the pipeline.
type Decision struct {
	Index   *int
	Name    string
	Key     string
	Options []delivery.Option
	Metrics []delivery.Metric
	Trace   map[string]any
}

// Tracer records evaluation details when request tracing is enabled.
type Tracer interface {
	TraceRuleEvaluated(rule *artifact.Rule, vars jsonlogic.Data, requestType RequestType, detail Detail, matched bool)
	TraceNotification(rule *artifact.Rule, notification delivery.Notification)
	Payload() map[string]any
}

// PostProcessor is one pipeline stage. Stages return the decision to hand to
// the next stage and must not mutate rule.
type PostProcessor func(rule *artifact.Rule, decision Decision, requestType RequestType, detail Detail, tracer Tracer) Decision

// newDecision deep-copies a rule consequence so later stages never touch the
// shared artifact.
func newDecision(rule *artifact.Rule, detail Detail, requestType RequestType) Decision {
	c := rule.Consequence

	d := Decision{
		Name:    c.Name,
		Key:     c.Key,
		Options: CloneOptions(c.Options),
		Metrics: CloneMetrics(c.Metrics),
	}
	if requestType == RequestTypeMbox && detail.Index != nil {
		index := *detail.Index
		d.Index = &index
	}
	return d
}

// CloneOptions deep-copies options.
func CloneOptions(in []delivery.Option) []delivery.Option {
	if in == nil {
		return nil
	}
	out := make([]delivery.Option, len(in))
	for i, o := range in {
		out[i] = o
		out[i].Content = delivery.CloneValue(o.Content)
		if o.ResponseTokens != nil {
			out[i].ResponseTokens = delivery.CloneValue(o.ResponseTokens).(map[string]any)
		}
	}
	return out
}

// CloneMetrics deep-copies metrics.
func CloneMetrics(in []delivery.Metric) []delivery.Metric {
	if in == nil {
		return nil
	}
	out := make([]delivery.Metric, len(in))
	for i, m := range in {
		out[i] = m
		out[i].Selectors = slices.Clone(m.Selectors)
	}
	return out
}
