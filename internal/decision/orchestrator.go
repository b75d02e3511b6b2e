// Package decision assembles delivery responses from artifact rules: it drives
// rule evaluation for every requested mbox, view and page load, shapes the
// matched consequences per request mode and finalizes the response status.
package decision

import (
	"cmp"
	"context"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/rafaeljc/bifrost/internal/artifact"
	"github.com/rafaeljc/bifrost/internal/delivery"
	"github.com/rafaeljc/bifrost/internal/jsonlogic"
	"github.com/rafaeljc/bifrost/internal/notification"
	"github.com/rafaeljc/bifrost/internal/ruleengine"
	"github.com/rafaeljc/bifrost/internal/targeting"
	"github.com/rafaeljc/bifrost/internal/trace"
	"github.com/rafaeljc/bifrost/internal/validation"
)

// Request modes, as reported in traces.
const (
	modeExecute  = "execute"
	modePrefetch = "prefetch"
)

// Collector is the notification queue the orchestrator feeds and flushes.
type Collector interface {
	Notifier
	AddTelemetryEntry(requestID string, execution time.Duration)
	SendNotifications(ctx context.Context, req *delivery.Request, visitor any)
}

var _ Collector = (*notification.Collector)(nil)

// Input is one normalized decisioning request.
type Input struct {
	Artifact *artifact.Artifact
	// Request must already be normalized: visitor id, request id and geo set.
	Request *delivery.Request
	// PropertyToken scopes the rules; empty matches unscoped rules only.
	PropertyToken string
	// Trace is nil when the request did not ask for tracing.
	Trace *trace.Provider
	// Visitor is opaque caller state forwarded with notifications.
	Visitor any
}

// Orchestrator evaluates whole requests. It is safe for concurrent use.
type Orchestrator struct {
	logger     *slog.Logger
	rules      *ruleengine.Engine
	collector  Collector
	clientCode string
	now        func() time.Time
}

// NewOrchestrator creates an Orchestrator.
// If logger is nil, it defaults to slog.Default().
func NewOrchestrator(logger *slog.Logger, rules *ruleengine.Engine, collector Collector, clientCode string) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	validation.AssertNotNil(rules, "rule engine")
	validation.AssertPresent(collector, "notification collector")

	return &Orchestrator{
		logger:     logger,
		rules:      rules,
		collector:  collector,
		clientCode: clientCode,
		now:        time.Now,
	}
}

// Run evaluates the execute and prefetch parts of in.Request against
// in.Artifact. The response status is 206 when part of the request can only
// be answered remotely. Queued notifications are flushed before returning.
func (o *Orchestrator) Run(ctx context.Context, in Input) (*delivery.Response, error) {
	start := o.now()
	req := in.Request

	dependency, err := artifact.HasRemoteDependency(in.Artifact, req)
	if err != nil {
		return nil, err
	}

	var geo *delivery.Geo
	if req.Context != nil {
		geo = req.Context.Geo
	}
	tokens := addResponseTokens(geo, in.Artifact.ResponseTokens)

	r := &run{
		Orchestrator: o,
		in:           in,
		vars:         targeting.Build(req, start),
		visitor:      req.ID,
		execute:      []ruleengine.PostProcessor{prepareNotification(o.collector), shapeExecute, tokens, replaceMacros, addTrace},
		prefetch:     []ruleengine.PostProcessor{shapePrefetch, tokens, replaceMacros, addTrace},
	}

	resp := &delivery.Response{
		Status:    http.StatusOK,
		RequestID: req.RequestID,
		ID:        req.ID.Clone(),
		Client:    o.clientCode,
		Meta:      &delivery.ResponseMeta{DecisioningMethod: delivery.DecisioningMethodOnDevice},
	}
	if req.Execute != nil {
		resp.Execute = r.runExecute(req.Execute)
	}
	if req.Prefetch != nil {
		resp.Prefetch = r.runPrefetch(req.Prefetch)
	}

	if dependency.RemoteNeeded {
		resp.Status = http.StatusPartialContent
		resp.Meta.RemoteMboxes = dependency.RemoteMboxes
		resp.Meta.RemoteViews = dependency.RemoteViews
	}

	o.collector.AddTelemetryEntry(req.RequestID, o.now().Sub(start))
	o.collector.SendNotifications(ctx, req, in.Visitor)

	o.logger.DebugContext(ctx, "request decided on device",
		slog.String("request_id", req.RequestID),
		slog.Int("status", resp.Status),
		slog.Any("remote_mboxes", dependency.RemoteMboxes),
		slog.Any("remote_views", dependency.RemoteViews),
	)
	return resp, nil
}

// run holds the state of a single Run call.
type run struct {
	*Orchestrator
	in       Input
	vars     jsonlogic.Data
	visitor  *delivery.VisitorID
	execute  []ruleengine.PostProcessor
	prefetch []ruleengine.PostProcessor
}

func (r *run) runExecute(req *delivery.ExecuteRequest) *delivery.ExecuteResponse {
	out := &delivery.ExecuteResponse{}
	if req.PageLoad != nil {
		out.PageLoad = r.pageLoad(modeExecute, req.PageLoad, r.execute)
	}
	for _, m := range req.Mboxes {
		for _, d := range r.mbox(modeExecute, ruleengine.RequestTypeMbox, ruleengine.MboxDetail(m), r.execute) {
			out.Mboxes = append(out.Mboxes, toMboxResponse(d))
		}
	}
	return out
}

func (r *run) runPrefetch(req *delivery.PrefetchRequest) *delivery.PrefetchResponse {
	out := &delivery.PrefetchResponse{}
	if req.PageLoad != nil {
		out.PageLoad = r.pageLoad(modePrefetch, req.PageLoad, r.prefetch)
	}
	for _, m := range req.Mboxes {
		for _, d := range r.mbox(modePrefetch, ruleengine.RequestTypeMbox, ruleengine.MboxDetail(m), r.prefetch) {
			out.Mboxes = append(out.Mboxes, toMboxResponse(d))
		}
	}
	for _, v := range req.Views {
		for _, d := range r.view(ruleengine.ViewDetail(v)) {
			out.Views = append(out.Views, toView(d))
		}
	}
	slices.SortStableFunc(out.Views, func(a, b delivery.View) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return out
}

// tracer returns the tracer for one requested item, or nil when tracing is off.
func (r *run) tracer(mode string, requestType ruleengine.RequestType, detail ruleengine.Detail) ruleengine.Tracer {
	t := r.in.Trace.NewRequestTracer()
	if t == nil {
		return nil
	}
	t.TraceRequest(mode, requestType, detail, r.vars)
	return t
}

// mbox evaluates the rules of one mbox. The global mbox collects every
// matching rule (once per rule key); any other mbox stops at the first
// match and yields a blank decision when nothing matches.
func (r *run) mbox(mode string, requestType ruleengine.RequestType, detail ruleengine.Detail, pipeline []ruleengine.PostProcessor) []ruleengine.Decision {
	return r.mboxWithTracer(requestType, detail, pipeline, r.tracer(mode, requestType, detail))
}

func (r *run) mboxWithTracer(requestType ruleengine.RequestType, detail ruleengine.Detail, pipeline []ruleengine.PostProcessor, tracer ruleengine.Tracer) []ruleengine.Decision {
	isGlobal := detail.Name == r.in.Artifact.GlobalMbox
	rules := r.in.Artifact.MboxRules(detail.Name)
	matched := make(map[string]bool)

	var out []ruleengine.Decision
	for i := range rules {
		rule := &rules[i]
		if !rule.AppliesTo(r.in.PropertyToken) || isGlobal && matched[rule.RuleKey] {
			continue
		}

		d := r.rules.ProcessRule(rule, r.vars, r.visitor, requestType, detail, pipeline, tracer)
		if d == nil {
			continue
		}
		out = append(out, *d)
		matched[rule.RuleKey] = true
		if !isGlobal {
			break
		}
	}

	if len(out) == 0 && !isGlobal {
		blank := ruleengine.Decision{Name: detail.Name}
		if detail.Index != nil {
			index := *detail.Index
			blank.Index = &index
		}
		if tracer != nil {
			blank.Trace = tracer.Payload()
		}
		out = append(out, blank)
	}
	return out
}

// pageLoad evaluates the global mbox for page load details and merges every
// match into one response: options are concatenated, metrics are keyed by
// event token (last one wins) and sorted by it.
func (r *run) pageLoad(mode string, details *delivery.RequestDetails, pipeline []ruleengine.PostProcessor) *delivery.PageLoadResponse {
	detail := ruleengine.PageLoadDetail(details, r.in.Artifact.GlobalMbox)
	tracer := r.tracer(mode, ruleengine.RequestTypePageLoad, detail)

	stages := append(slices.Clone(pipeline), trimPageLoad)
	decisions := r.mboxWithTracer(ruleengine.RequestTypePageLoad, detail, stages, tracer)

	out := &delivery.PageLoadResponse{}
	metrics := make(map[string]delivery.Metric)
	for _, d := range decisions {
		out.Options = append(out.Options, d.Options...)
		for _, m := range d.Metrics {
			metrics[m.EventToken] = m
		}
	}
	for _, token := range sortedKeys(metrics) {
		out.Metrics = append(out.Metrics, metrics[token])
	}
	if tracer != nil {
		out.Trace = tracer.Payload()
	}
	return out
}

// view evaluates one view request, or every view when it has no name.
// Matches for the same view are merged.
func (r *run) view(detail ruleengine.Detail) []ruleengine.Decision {
	tracer := r.tracer(modePrefetch, ruleengine.RequestTypeView, detail)
	rules := r.in.Artifact.ViewRules(detail.Name)
	matched := make(map[string]bool)

	var order []string
	byName := make(map[string]ruleengine.Decision)
	for i := range rules {
		rule := &rules[i]
		if !rule.AppliesTo(r.in.PropertyToken) || matched[rule.RuleKey] {
			continue
		}

		d := r.rules.ProcessRule(rule, r.vars, r.visitor, ruleengine.RequestTypeView, detail, r.prefetch, tracer)
		if d == nil {
			continue
		}
		matched[rule.RuleKey] = true

		prev, ok := byName[d.Name]
		if !ok {
			order = append(order, d.Name)
			byName[d.Name] = *d
			continue
		}
		prev.Options = append(prev.Options, d.Options...)
		prev.Metrics = append(prev.Metrics, d.Metrics...)
		byName[d.Name] = prev
	}

	out := make([]ruleengine.Decision, 0, len(order))
	for _, name := range order {
		out = append(out, byName[name])
	}
	return out
}

func toMboxResponse(d ruleengine.Decision) delivery.MboxResponse {
	return delivery.MboxResponse{
		Index:   d.Index,
		Name:    d.Name,
		Options: d.Options,
		Metrics: d.Metrics,
		Trace:   d.Trace,
	}
}

func toView(d ruleengine.Decision) delivery.View {
	return delivery.View{
		Name:    d.Name,
		Key:     d.Key,
		Options: d.Options,
		Metrics: d.Metrics,
		Trace:   d.Trace,
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
