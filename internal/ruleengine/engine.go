package ruleengine

import (
	"log/slog"

	"github.com/rafaeljc/bifrost/internal/artifact"
	"github.com/rafaeljc/bifrost/internal/delivery"
	"github.com/rafaeljc/bifrost/internal/jsonlogic"
	"github.com/rafaeljc/bifrost/internal/observability"
	"github.com/rafaeljc/bifrost/internal/targeting"
	"github.com/rafaeljc/bifrost/internal/validation"
)

// Engine evaluates single rules.
type Engine struct {
	logger     *slog.Logger
	allocator  *Allocator
	clientCode string
}

// New creates an Engine. The allocator is mandatory.
// If logger is nil, it defaults to slog.Default().
func New(logger *slog.Logger, allocator *Allocator, clientCode string) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	validation.AssertNotNil(allocator, "allocator")

	return &Engine{
		logger:     logger,
		allocator:  allocator,
		clientCode: clientCode,
	}
}

// ProcessRule evaluates rule for one requested item.
//
// The rule sees a copy of the request context overlaid with the item's
// address, its mbox parameters and the visitor's allocation for the rule's
// activity. The tracer (if any) records the outcome whether or not the rule
// matched. On match the consequence is copied, stamped with the item index
// and run through pipeline; nil is returned otherwise.
func (e *Engine) ProcessRule(
	rule *artifact.Rule,
	base jsonlogic.Data,
	visitor *delivery.VisitorID,
	requestType RequestType,
	detail Detail,
	pipeline []PostProcessor,
	tracer Tracer,
) *Decision {
	vars := targeting.Scoped(base, &detail.RequestDetails)
	vars["allocation"] = e.allocator.Allocation(e.clientCode, rule.Activity(), visitor, rule.Salt())

	matched := rule.Condition.Match(vars)
	if tracer != nil {
		tracer.TraceRuleEvaluated(rule, vars, requestType, detail, matched)
	}
	if !matched {
		observability.RulesEvaluatedTotal.WithLabelValues("unmatched").Inc()
		return nil
	}
	observability.RulesEvaluatedTotal.WithLabelValues("matched").Inc()

	e.logger.Debug("rule matched",
		slog.String("rule_key", rule.RuleKey),
		slog.String("request_type", string(requestType)),
		slog.String("name", detail.Name),
	)

	decision := newDecision(rule, detail, requestType)
	for _, stage := range pipeline {
		decision = stage(rule, decision, requestType, detail, tracer)
	}
	return &decision
}
