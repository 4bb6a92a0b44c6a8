package trace

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalTransitions  int
	InternalCount     int
	ExternalCount     int
	ConfluentCount    int
	SelectionCount    int
	DeliveryCount     int
	UniqueModels      int
	LastClock         float64
	ModelDistribution map[string]int // model URI → count of transitions
	WinDistribution   map[string]int // model URI → count of select decisions won
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		ModelDistribution: make(map[string]int),
		WinDistribution:   make(map[string]int),
	}
	if st == nil {
		return summary
	}

	summary.TotalTransitions = len(st.Transitions)
	for _, tr := range st.Transitions {
		switch tr.Kind {
		case KindInternal:
			summary.InternalCount++
		case KindExternal:
			summary.ExternalCount++
		case KindConfluent:
			summary.ConfluentCount++
		}
		summary.ModelDistribution[tr.ModelURI]++
		if tr.Clock > summary.LastClock {
			summary.LastClock = tr.Clock
		}
	}

	summary.SelectionCount = len(st.Selections)
	for _, s := range st.Selections {
		summary.WinDistribution[s.Chosen]++
	}
	summary.DeliveryCount = len(st.Deliveries)

	summary.UniqueModels = len(summary.ModelDistribution)

	return summary
}
