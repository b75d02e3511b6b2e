package artifact

import "time"

// Trace is a snapshot of the provider state, reported in request traces.
type Trace struct {
	Location        string
	PollingInterval time.Duration
	PollingHalted   bool
	Version         string
	RetrievalCount  int
	LastRetrieved   time.Time
	ClientCode      string
	Environment     string
	GeneratedAt     string
}

// Map renders the trace in the delivery API trace format.
func (t Trace) Map() map[string]any {
	m := map[string]any{
		"artifactLocation":       t.Location,
		"pollingInterval":        t.PollingInterval.Milliseconds(),
		"pollingHalted":          t.PollingHalted,
		"artifactVersion":        t.Version,
		"artifactRetrievalCount": t.RetrievalCount,
		"clientCode":             t.ClientCode,
		"environment":            t.Environment,
		"generatedAt":            t.GeneratedAt,
	}
	if !t.LastRetrieved.IsZero() {
		m["artifactLastRetrieved"] = t.LastRetrieved.UTC().Format(time.RFC3339Nano)
	}
	return m
}
