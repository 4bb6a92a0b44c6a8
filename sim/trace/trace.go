package trace

// TraceLevel controls the verbosity of step tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelTransitions captures every transition and every select decision.
	TraceLevelTransitions TraceLevel = "transitions"
	// TraceLevelDeliveries additionally captures each event delivery between
	// atomic models.
	TraceLevelDeliveries TraceLevel = "deliveries"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:        true,
	TraceLevelTransitions: true,
	TraceLevelDeliveries:  true,
	"":                    true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
	// MaxRecords bounds each record slice; 0 means unbounded. Records past
	// the bound are counted in Dropped.
	MaxRecords int
}

// SimulationTrace collects step records during one simulation run.
type SimulationTrace struct {
	Config      TraceConfig
	Transitions []TransitionRecord
	Selections  []SelectionRecord
	Deliveries  []DeliveryRecord
	Dropped     int
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	return &SimulationTrace{
		Config:      config,
		Transitions: make([]TransitionRecord, 0),
		Selections:  make([]SelectionRecord, 0),
		Deliveries:  make([]DeliveryRecord, 0),
	}
}

func (st *SimulationTrace) full(n int) bool {
	if st.Config.MaxRecords > 0 && n >= st.Config.MaxRecords {
		st.Dropped++
		return true
	}
	return false
}

// RecordTransition appends a transition record.
func (st *SimulationTrace) RecordTransition(record TransitionRecord) {
	if st.full(len(st.Transitions)) {
		return
	}
	st.Transitions = append(st.Transitions, record)
}

// RecordSelection appends a select decision record.
func (st *SimulationTrace) RecordSelection(record SelectionRecord) {
	if st.full(len(st.Selections)) {
		return
	}
	st.Selections = append(st.Selections, record)
}

// RecordDelivery appends a delivery record. Deliveries are only kept at
// TraceLevelDeliveries.
func (st *SimulationTrace) RecordDelivery(record DeliveryRecord) {
	if st.Config.Level != TraceLevelDeliveries || st.full(len(st.Deliveries)) {
		return
	}
	st.Deliveries = append(st.Deliveries, record)
}
