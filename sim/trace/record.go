// Package trace provides step-trace recording for simulation runs.
// This package has no dependencies on sim/; it stores pure data types.
package trace

// TransitionKind names the transition function an atomic model executed.
type TransitionKind string

const (
	KindInternal  TransitionKind = "internal"
	KindExternal  TransitionKind = "external"
	KindConfluent TransitionKind = "confluent"
)

// TransitionRecord captures one transition of one atomic model.
type TransitionRecord struct {
	ModelURI string
	Kind     TransitionKind
	Clock    float64  // simulated instant, in the architecture time unit
	Elapsed  float64  // time since the model's previous transition
	Events   []string // applied external events (nil for internal transitions)
}

// SelectionRecord captures a tie-break among simultaneously imminent
// submodels of a coupled model.
type SelectionRecord struct {
	CoupledURI string
	Clock      float64
	Candidates []string
	Chosen     string
}

// DeliveryRecord captures an event delivered from one atomic model to a
// peer atomic model.
type DeliveryRecord struct {
	From      string
	To        string
	EventType string
	Clock     float64
}
