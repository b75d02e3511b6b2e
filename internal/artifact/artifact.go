// Package artifact models the on-device decisioning ruleset and owns its
// lifecycle: location resolution, conditional download, polling and
// distribution of new snapshots to subscribers.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/rafaeljc/bifrost/internal/delivery"
	"github.com/rafaeljc/bifrost/internal/jsonlogic"
)

// SupportedMajorVersion is the artifact schema major version this engine evaluates.
const SupportedMajorVersion = 1

// DefaultGlobalMbox is used when an artifact does not name its global mbox.
const DefaultGlobalMbox = "target-global-mbox"

// ErrInvalidArtifact is returned when a payload cannot be decoded or compiled.
var ErrInvalidArtifact = errors.New("invalid artifact")

// Meta describes how and for whom the artifact was generated.
type Meta struct {
	GeneratedAt string `json:"generatedAt,omitempty"`
	ClientCode  string `json:"clientCode,omitempty"`
	Environment string `json:"environment,omitempty"`
}

// Consequence is the response template a rule yields on match.
type Consequence struct {
	Name    string            `json:"name,omitempty"`
	Key     string            `json:"key,omitempty"`
	Options []delivery.Option `json:"options,omitempty"`
	Metrics []delivery.Metric `json:"metrics,omitempty"`
}

// Rule is one targeting rule. Condition is compiled while decoding.
type Rule struct {
	RuleKey        string          `json:"ruleKey"`
	ActivityID     json.Number     `json:"activityId,omitempty"`
	PropertyTokens []string        `json:"propertyTokens,omitempty"`
	Seed           string          `json:"seed,omitempty"`
	Condition      *jsonlogic.Expr `json:"condition"`
	Consequence    Consequence     `json:"consequence"`
	Meta           map[string]any  `json:"meta,omitempty"`
}

// AppliesTo reports whether the rule is in scope for a property token.
// Unscoped rules apply to every property.
func (r *Rule) AppliesTo(propertyToken string) bool {
	return len(r.PropertyTokens) == 0 || slices.Contains(r.PropertyTokens, propertyToken)
}

// Activity returns the activity id used for allocation, falling back to the
// "activity.id" meta entry.
func (r *Rule) Activity() string {
	if r.ActivityID != "" {
		return r.ActivityID.String()
	}
	switch v := r.Meta["activity.id"].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

// Salt is the allocation salt for the rule.
func (r *Rule) Salt() string {
	if r.Seed != "" {
		return r.Seed
	}
	return "0"
}

// Rules groups rules by the mbox or view they decide.
type Rules struct {
	Mboxes map[string][]Rule `json:"mboxes"`
	Views  map[string][]Rule `json:"views"`
}

// Artifact is an immutable ruleset snapshot. Refreshes produce a new value;
// a snapshot is never modified after Parse returns.
type Artifact struct {
	Version             string   `json:"version"`
	Meta                Meta     `json:"meta"`
	GlobalMbox          string   `json:"globalMbox"`
	GeoTargetingEnabled bool     `json:"geoTargetingEnabled"`
	ResponseTokens      []string `json:"responseTokens"`
	RemoteMboxes        []string `json:"remoteMboxes"`
	LocalMboxes         []string `json:"localMboxes"`
	RemoteViews         []string `json:"remoteViews"`
	LocalViews          []string `json:"localViews"`
	Rules               Rules    `json:"rules"`

	raw []byte
}

// Parse decodes an artifact payload and compiles every rule condition.
func Parse(payload []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(payload, &a); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArtifact, err)
	}
	if a.Version == "" {
		return nil, fmt.Errorf("%w: missing version", ErrInvalidArtifact)
	}
	if a.GlobalMbox == "" {
		a.GlobalMbox = DefaultGlobalMbox
	}
	a.raw = slices.Clone(payload)
	return &a, nil
}

// MajorVersion returns the leading component of Version, or -1 when unparsable.
func (a *Artifact) MajorVersion() int {
	major, _, _ := strings.Cut(a.Version, ".")
	n, err := strconv.Atoi(major)
	if err != nil {
		return -1
	}
	return n
}

// Supported reports whether this engine can evaluate the artifact.
func (a *Artifact) Supported() bool {
	return a.MajorVersion() == SupportedMajorVersion
}

// Raw returns a copy of the payload the artifact was parsed from.
func (a *Artifact) Raw() json.RawMessage {
	return slices.Clone(a.raw)
}

// MboxRules returns the ordered rules for an mbox.
func (a *Artifact) MboxRules(name string) []Rule {
	return a.Rules.Mboxes[name]
}

// ViewRules returns the ordered rules for one view, or for every view when
// name is empty (views ordered by name).
func (a *Artifact) ViewRules(name string) []Rule {
	if name != "" {
		return a.Rules.Views[name]
	}

	names := make([]string, 0, len(a.Rules.Views))
	for n := range a.Rules.Views {
		names = append(names, n)
	}
	sort.Strings(names)

	var out []Rule
	for _, n := range names {
		out = append(out, a.Rules.Views[n]...)
	}
	return out
}

// RuleCount returns the total number of rules across mboxes and views.
func (a *Artifact) RuleCount() int {
	n := 0
	for _, rules := range a.Rules.Mboxes {
		n += len(rules)
	}
	for _, rules := range a.Rules.Views {
		n += len(rules)
	}
	return n
}
