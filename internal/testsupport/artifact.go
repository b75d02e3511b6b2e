package testsupport

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

// ArtifactBuilder assembles artifact payloads for tests.
type ArtifactBuilder struct {
	doc    map[string]any
	mboxes map[string][]any
	views  map[string][]any
}

// NewArtifact starts a version 1 artifact with no rules.
func NewArtifact() *ArtifactBuilder {
	return &ArtifactBuilder{
		doc: map[string]any{
			"version":             "1.0.0",
			"meta":                map[string]any{"clientCode": "someClientId", "environment": "production", "generatedAt": "2024-01-01T00:00:00.000Z"},
			"globalMbox":          "target-global-mbox",
			"geoTargetingEnabled": false,
			"responseTokens":      []string{"activity.id", "activity.name", "experience.name", "option.id", "geo.city"},
			"remoteMboxes":        []string{},
			"localMboxes":         []string{},
			"remoteViews":         []string{},
			"localViews":          []string{},
		},
		mboxes: map[string][]any{},
		views:  map[string][]any{},
	}
}

// Set overrides a top-level field.
func (b *ArtifactBuilder) Set(key string, value any) *ArtifactBuilder {
	b.doc[key] = value
	return b
}

// WithMboxRule appends a rule to an mbox and lists the mbox as local.
func (b *ArtifactBuilder) WithMboxRule(mbox string, rule map[string]any) *ArtifactBuilder {
	if _, ok := b.mboxes[mbox]; !ok {
		b.doc["localMboxes"] = append(b.doc["localMboxes"].([]string), mbox)
	}
	b.mboxes[mbox] = append(b.mboxes[mbox], rule)
	return b
}

// WithViewRule appends a rule to a view and lists the view as local.
func (b *ArtifactBuilder) WithViewRule(view string, rule map[string]any) *ArtifactBuilder {
	if _, ok := b.views[view]; !ok {
		b.doc["localViews"] = append(b.doc["localViews"].([]string), view)
	}
	b.views[view] = append(b.views[view], rule)
	return b
}

// JSON renders the payload.
func (b *ArtifactBuilder) JSON(t *testing.T) []byte {
	t.Helper()

	doc := make(map[string]any, len(b.doc)+1)
	for k, v := range b.doc {
		doc[k] = v
	}
	doc["rules"] = map[string]any{"mboxes": b.mboxes, "views": b.views}

	out, err := json.Marshal(doc)
	require.NoError(t, err)
	return out
}

// Rule builds a rule with activity meta. A nil condition always matches.
func Rule(key string, activityID int, condition any, consequence map[string]any) map[string]any {
	rule := map[string]any{
		"ruleKey":     key,
		"activityId":  activityID,
		"consequence": consequence,
		"meta": map[string]any{
			"activity.id":       activityID,
			"activity.name":     "Activity " + key,
			"activity.type":     "landing",
			"experience.id":     0,
			"experience.name":   "Experience A",
			"location.name":     "location",
			"option.id":         2,
			"option.name":       "Offer2",
			"offer.id":          246,
			"offer.name":        "/offers/246",
			"audience.ids":      []any{},
			"decisioningMethod": "on-device",
		},
	}
	if condition != nil {
		rule["condition"] = condition
	}
	return rule
}

// Consequence builds a rule consequence.
func Consequence(name string, options []any, metrics []any) map[string]any {
	return map[string]any{"name": name, "options": options, "metrics": metrics}
}

// Option builds a consequence option.
func Option(optionType string, content any, eventToken string) map[string]any {
	o := map[string]any{"type": optionType, "content": content}
	if eventToken != "" {
		o["eventToken"] = eventToken
	}
	return o
}

// Metric builds a consequence metric.
func Metric(metricType, eventToken string) map[string]any {
	return map[string]any{"type": metricType, "eventToken": eventToken}
}

// AllocationBelow is a condition matching visitors allocated below pct.
func AllocationBelow(pct float64) map[string]any {
	return map[string]any{"<": []any{map[string]any{"var": "allocation"}, pct}}
}
