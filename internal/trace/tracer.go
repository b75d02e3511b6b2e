// Package trace collects per-request diagnostics: which activities were
// evaluated, which matched, and with which context.
package trace

import (
	"fmt"
	"maps"
	"slices"

	"github.com/rafaeljc/bifrost/internal/artifact"
	"github.com/rafaeljc/bifrost/internal/delivery"
	"github.com/rafaeljc/bifrost/internal/jsonlogic"
	"github.com/rafaeljc/bifrost/internal/ruleengine"
)

// Provider holds the request-wide trace inputs. It is nil when the request
// did not ask for tracing.
type Provider struct {
	clientCode    string
	artifactTrace map[string]any
	environment   string
	profile       map[string]any
}

// NewProvider returns a provider for req, or nil when req carries no trace
// request.
func NewProvider(req *delivery.Request, clientCode string, artifactTrace artifact.Trace) *Provider {
	if req == nil || req.Trace == nil {
		return nil
	}

	profile := map[string]any{}
	if req.ID != nil {
		profile["visitorId"] = map[string]any{
			"tntId":                   req.ID.TntID,
			"thirdPartyId":            req.ID.ThirdPartyID,
			"marketingCloudVisitorId": req.ID.MarketingCloudVisitorID,
			"customerIds":             req.ID.CustomerIDs,
		}
	}

	return &Provider{
		clientCode:    clientCode,
		artifactTrace: artifactTrace.Map(),
		environment:   artifactTrace.Environment,
		profile:       profile,
	}
}

// NewRequestTracer creates the tracer for one requested item. It returns nil
// when tracing is disabled.
func (p *Provider) NewRequestTracer() *RequestTracer {
	if p == nil {
		return nil
	}
	return &RequestTracer{
		provider:  p,
		request:   map[string]any{},
		campaigns: map[string]map[string]any{},
		targets:   map[string]*campaignTarget{},
	}
}

type campaignTarget struct {
	context                 jsonlogic.Data
	campaignID              string
	campaignType            any
	matchedSegmentIDs       []any
	unmatchedSegmentIDs     []any
	matchedRuleConditions   []any
	unmatchedRuleConditions []any
}

// RequestTracer implements ruleengine.Tracer. All methods are safe on a nil
// receiver.
type RequestTracer struct {
	provider      *Provider
	request       map[string]any
	campaignOrder []string
	campaigns     map[string]map[string]any
	targets       map[string]*campaignTarget
	targetOrder   []string
}

var _ ruleengine.Tracer = (*RequestTracer)(nil)

// TraceRequest records the item being decided.
func (t *RequestTracer) TraceRequest(mode string, requestType ruleengine.RequestType, detail ruleengine.Detail, vars jsonlogic.Data) {
	if t == nil {
		return
	}

	item := map[string]any{"type": mode}
	if detail.Name != "" {
		item["name"] = detail.Name
	}
	if detail.Key != "" {
		item["key"] = detail.Key
	}
	if detail.Index != nil {
		item["index"] = *detail.Index
	}
	if len(detail.Parameters) > 0 {
		item["parameters"] = maps.Clone(detail.Parameters)
	}

	t.request = map[string]any{
		"pageURL":           vars["page.url"],
		"host":              vars["page.domain"],
		string(requestType): item,
	}
}

// TraceRuleEvaluated implements ruleengine.Tracer.
func (t *RequestTracer) TraceRuleEvaluated(rule *artifact.Rule, vars jsonlogic.Data, _ ruleengine.RequestType, _ ruleengine.Detail, matched bool) {
	if t == nil {
		return
	}

	id := activityKey(rule)
	if matched {
		t.addCampaign(id, rule)
	}
	t.addCampaignTarget(id, rule, vars, matched)
}

func (t *RequestTracer) addCampaign(id string, rule *artifact.Rule) {
	if _, seen := t.campaigns[id]; seen {
		return
	}

	offers := []any{}
	if offer, ok := rule.Meta["offer.id"]; ok {
		offers = append(offers, offer)
	}

	t.campaignOrder = append(t.campaignOrder, id)
	t.campaigns[id] = map[string]any{
		"id":           rule.Meta["activity.id"],
		"campaignType": rule.Meta["activity.type"],
		"branchId":     rule.Meta["experience.id"],
		"offers":       offers,
		"environment":  t.provider.environment,
	}
}

func (t *RequestTracer) addCampaignTarget(id string, rule *artifact.Rule, vars jsonlogic.Data, matched bool) {
	target, ok := t.targets[id]
	if !ok {
		target = &campaignTarget{
			context:      vars,
			campaignID:   id,
			campaignType: rule.Meta["activity.type"],
		}
		t.targets[id] = target
		t.targetOrder = append(t.targetOrder, id)
	}

	audiences, _ := rule.Meta["audience.ids"].([]any)
	condition := rule.Condition.Raw()
	if matched {
		target.matchedSegmentIDs = appendUnique(target.matchedSegmentIDs, audiences...)
		target.matchedRuleConditions = append(target.matchedRuleConditions, condition)
		return
	}
	target.unmatchedSegmentIDs = appendUnique(target.unmatchedSegmentIDs, audiences...)
	target.unmatchedRuleConditions = append(target.unmatchedRuleConditions, condition)
}

// TraceNotification implements ruleengine.Tracer.
func (t *RequestTracer) TraceNotification(rule *artifact.Rule, notification delivery.Notification) {
	if t == nil {
		return
	}

	campaign, ok := t.campaigns[activityKey(rule)]
	if !ok {
		return
	}
	list, _ := campaign["notifications"].([]delivery.Notification)
	campaign["notifications"] = append(list, notification.Clone())
}

// Payload implements ruleengine.Tracer. It returns nil on a nil receiver.
func (t *RequestTracer) Payload() map[string]any {
	if t == nil {
		return nil
	}

	campaigns := make([]any, 0, len(t.campaignOrder))
	for _, id := range t.campaignOrder {
		campaigns = append(campaigns, maps.Clone(t.campaigns[id]))
	}

	targets := make([]any, 0, len(t.targetOrder))
	for _, id := range t.targetOrder {
		target := t.targets[id]
		targets = append(targets, map[string]any{
			"context":                 map[string]any(target.context),
			"campaignId":              target.campaignID,
			"campaignType":            target.campaignType,
			"matchedSegmentIds":       slices.Clone(target.matchedSegmentIDs),
			"unmatchedSegmentIds":     slices.Clone(target.unmatchedSegmentIDs),
			"matchedRuleConditions":   slices.Clone(target.matchedRuleConditions),
			"unmatchedRuleConditions": slices.Clone(target.unmatchedRuleConditions),
		})
	}

	return map[string]any{
		"clientCode":               t.provider.clientCode,
		"artifact":                 maps.Clone(t.provider.artifactTrace),
		"profile":                  maps.Clone(t.provider.profile),
		"request":                  maps.Clone(t.request),
		"campaigns":                campaigns,
		"evaluatedCampaignTargets": targets,
	}
}

func activityKey(rule *artifact.Rule) string {
	if id := rule.Activity(); id != "" {
		return id
	}
	return fmt.Sprintf("rule:%s", rule.RuleKey)
}

func appendUnique(list []any, items ...any) []any {
	for _, item := range items {
		if !slices.Contains(list, item) {
			list = append(list, item)
		}
	}
	return list
}
