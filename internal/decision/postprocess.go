package decision

import (
	"fmt"
	"maps"
	"regexp"
	"strconv"
	"strings"

	"github.com/rafaeljc/bifrost/internal/artifact"
	"github.com/rafaeljc/bifrost/internal/delivery"
	"github.com/rafaeljc/bifrost/internal/notification"
	"github.com/rafaeljc/bifrost/internal/ruleengine"
)

// decisioningMethodToken is always present in option response tokens.
const decisioningMethodToken = "activity.decisioningMethod"

// Notifier queues display notifications for execute decisions.
type Notifier interface {
	AddNotification(mbox string, options []delivery.Option, hook notification.TraceHook)
}

// prepareNotification queues the display notification of an executed
// decision. It runs first so the event tokens are still present.
func prepareNotification(n Notifier) ruleengine.PostProcessor {
	return func(rule *artifact.Rule, d ruleengine.Decision, _ ruleengine.RequestType, _ ruleengine.Detail, tracer ruleengine.Tracer) ruleengine.Decision {
		var hook notification.TraceHook
		if tracer != nil {
			hook = func(note delivery.Notification) { tracer.TraceNotification(rule, note) }
		}
		n.AddNotification(d.Name, d.Options, hook)
		return d
	}
}

// shapeExecute drops empty options, strips event tokens and keeps click
// metrics only. Display is implicit for executed decisions.
func shapeExecute(_ *artifact.Rule, d ruleengine.Decision, _ ruleengine.RequestType, _ ruleengine.Detail, _ ruleengine.Tracer) ruleengine.Decision {
	options := make([]delivery.Option, 0, len(d.Options))
	for _, o := range d.Options {
		if o.Type == "" && o.Content == nil {
			continue
		}
		o.EventToken = ""
		options = append(options, o)
	}

	var metrics []delivery.Metric
	for _, m := range d.Metrics {
		if m.Type == delivery.MetricClick {
			metrics = append(metrics, m)
		}
	}

	d.Options = options
	d.Metrics = metrics
	return d
}

// shapePrefetch gives every option an event token, borrowed from the display
// metric at the same position when missing. Only views keep their metrics.
func shapePrefetch(_ *artifact.Rule, d ruleengine.Decision, requestType ruleengine.RequestType, _ ruleengine.Detail, _ ruleengine.Tracer) ruleengine.Decision {
	options := make([]delivery.Option, len(d.Options))
	for i, o := range d.Options {
		if o.EventToken == "" && i < len(d.Metrics) && d.Metrics[i].Type == delivery.MetricDisplay {
			o.EventToken = d.Metrics[i].EventToken
		}
		options[i] = o
	}
	d.Options = options

	if requestType != ruleengine.RequestTypeView {
		d.Metrics = nil
	}
	return d
}

// trimPageLoad removes the per-mbox fields; page load decisions are merged
// into a single response.
func trimPageLoad(_ *artifact.Rule, d ruleengine.Decision, _ ruleengine.RequestType, _ ruleengine.Detail, _ ruleengine.Tracer) ruleengine.Decision {
	d.Index = nil
	d.Name = ""
	d.Trace = nil
	return d
}

// addTrace stamps the tracer payload on the decision.
func addTrace(_ *artifact.Rule, d ruleengine.Decision, _ ruleengine.RequestType, _ ruleengine.Detail, tracer ruleengine.Tracer) ruleengine.Decision {
	if tracer == nil {
		d.Trace = nil
		return d
	}
	d.Trace = tracer.Payload()
	return d
}

// geoTokens maps response token keys to the geo field they expose.
var geoTokens = []struct {
	key   string
	value func(*delivery.Geo) any
}{
	{"geo.city", func(g *delivery.Geo) any { return nonEmpty(g.City) }},
	{"geo.country", func(g *delivery.Geo) any { return nonEmpty(g.CountryCode) }},
	{"geo.state", func(g *delivery.Geo) any { return nonEmpty(g.StateCode) }},
	{"geo.latitude", func(g *delivery.Geo) any { return deref(g.Latitude) }},
	{"geo.longitude", func(g *delivery.Geo) any { return deref(g.Longitude) }},
}

func nonEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func deref(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

// addResponseTokens attaches response tokens to every option: the rule meta
// entries the artifact whitelists, the request geo when whitelisted, and the
// decisioning method.
func addResponseTokens(geo *delivery.Geo, whitelist []string) ruleengine.PostProcessor {
	base := map[string]any{decisioningMethodToken: delivery.DecisioningMethodOnDevice}
	if geo != nil {
		allowed := make(map[string]bool, len(whitelist))
		for _, key := range whitelist {
			allowed[key] = true
		}
		for _, t := range geoTokens {
			if v := t.value(geo); v != nil && allowed[t.key] {
				base[t.key] = v
			}
		}
	}

	return func(rule *artifact.Rule, d ruleengine.Decision, _ ruleengine.RequestType, _ ruleengine.Detail, _ ruleengine.Tracer) ruleengine.Decision {
		fromMeta := make(map[string]any, len(whitelist))
		for _, key := range whitelist {
			if v, ok := rule.Meta[key]; ok {
				fromMeta[key] = v
			}
		}

		options := make([]delivery.Option, len(d.Options))
		for i, o := range d.Options {
			tokens := maps.Clone(fromMeta)
			maps.Copy(tokens, base)
			o.ResponseTokens = tokens
			options[i] = o
		}
		d.Options = options
		return d
	}
}

var macroPattern = regexp.MustCompile(`\$\{([a-zA-Z0-9_.]*?)\}`)

var macroAliases = map[string]string{
	"campaign": "activity",
	"recipe":   "experience",
}

// replaceMacros substitutes ${...} placeholders in html and action content.
// Unresolved placeholders are left as they are.
func replaceMacros(rule *artifact.Rule, d ruleengine.Decision, _ ruleengine.RequestType, detail ruleengine.Detail, _ ruleengine.Tracer) ruleengine.Decision {
	resolve := macroResolver(rule, detail)

	options := make([]delivery.Option, len(d.Options))
	for i, o := range d.Options {
		switch o.Type {
		case delivery.OptionHTML:
			if s, ok := o.Content.(string); ok {
				o.Content = expandMacros(s, resolve)
			}
		case delivery.OptionActions:
			o.Content = expandActions(o.Content, resolve)
		}
		options[i] = o
	}
	d.Options = options
	return d
}

func expandMacros(s string, resolve func(string) (string, bool)) string {
	return macroPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := macroPattern.FindStringSubmatch(match)[1]
		if v, ok := resolve(name); ok {
			return v
		}
		return match
	})
}

// expandActions substitutes macros in the content of each action.
func expandActions(content any, resolve func(string) (string, bool)) any {
	actions, ok := content.([]any)
	if !ok {
		return content
	}
	out := make([]any, len(actions))
	for i, a := range actions {
		action, ok := a.(map[string]any)
		if !ok {
			out[i] = a
			continue
		}
		action = maps.Clone(action)
		if s, ok := action["content"].(string); ok {
			action["content"] = expandMacros(s, resolve)
		}
		out[i] = action
	}
	return out
}

// macroResolver looks a macro up in the rule meta, then the requested item
// (name, key, index), then its parameters.
func macroResolver(rule *artifact.Rule, detail ruleengine.Detail) func(string) (string, bool) {
	item := map[string]any{}
	if detail.Name != "" {
		item["name"] = detail.Name
	}
	if detail.Key != "" {
		item["key"] = detail.Key
	}
	if detail.Index != nil {
		item["index"] = *detail.Index
	}

	return func(name string) (string, bool) {
		key := macroKey(name)
		if v, ok := rule.Meta[key]; ok {
			return stringify(v), true
		}
		if v, ok := item[key]; ok {
			return stringify(v), true
		}
		if v, ok := detail.Parameters[key]; ok {
			return v, true
		}
		return "", false
	}
}

// macroKey normalizes a macro name: aliases are applied, only the last two
// segments are kept and a literal "mbox" segment is dropped.
func macroKey(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		if alias, ok := macroAliases[strings.ToLower(p)]; ok {
			parts[i] = alias
		}
	}
	if len(parts) > 2 {
		parts = parts[len(parts)-2:]
	}

	kept := parts[:0]
	for _, p := range parts {
		if p != "mbox" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ".")
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}
