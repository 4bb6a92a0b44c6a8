package sim

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireConfigError(t *testing.T, err error, contains string) {
	t.Helper()
	var ce *ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Reason, contains)
}

func TestNewCoupledModel_RejectsMalformedSpecs(t *testing.T) {
	tests := []struct {
		name string
		spec CoupledSpec
		want string
	}{
		{"no submodels", CoupledSpec{URI: "c", TimeUnit: Seconds}, "no submodels"},
		{"duplicate submodel", CoupledSpec{URI: "c", TimeUnit: Seconds, Submodels: []string{"a", "a"}}, "listed twice"},
		{"unknown policy", CoupledSpec{URI: "c", TimeUnit: Seconds, Submodels: []string{"a"}, SelectPolicy: "coin"}, "unknown select policy"},
		{"reexported twice", CoupledSpec{URI: "c", TimeUnit: Seconds, Submodels: []string{"a"},
			Reexported: []ReexportedEvent{{Source: pingSource("a"), Type: pingType}, {Source: pingSource("a"), Type: pingType}}}, "reexported twice"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewCoupledModel(tc.spec)
			requireConfigError(t, err, tc.want)
		})
	}
}

func TestNewSimulator_ConfigurationErrors(t *testing.T) {
	coupled := func(spec CoupledSpec) *CoupledModel {
		spec.URI = "root"
		spec.TimeUnit = Seconds
		c, err := NewCoupledModel(spec)
		require.NoError(t, err)
		return c
	}
	tests := []struct {
		name   string
		root   string
		models func() []Model
		want   string
	}{
		{
			name:   "uri collision",
			root:   "root",
			models: func() []Model {
				return []Model{coupled(CoupledSpec{Submodels: []string{"a"}}),
					newTestModel("a", Infinity, ""), newTestModel("a", Infinity, "")}
			},
			want: "collision",
		},
		{
			name:   "missing root",
			root:   "nowhere",
			models: func() []Model { return []Model{newTestModel("a", Infinity, "")} },
			want:   "root model is not part",
		},
		{
			name:   "dangling submodel",
			root:   "root",
			models: func() []Model { return []Model{coupled(CoupledSpec{Submodels: []string{"ghost"}})} },
			want:   "dangling submodel",
		},
		{
			name:   "unreachable model",
			root:   "root",
			models: func() []Model {
				return []Model{coupled(CoupledSpec{Submodels: []string{"a"}}),
					newTestModel("a", Infinity, ""), newTestModel("stray", Infinity, "")}
			},
			want: "not reachable",
		},
		{
			name:   "dangling sink",
			root:   "root",
			models: func() []Model {
				return []Model{coupled(CoupledSpec{Submodels: []string{"a"},
					Connections: map[EventSource][]EventSink{pingSource("a"): {{ModelURI: "ghost", Type: pingType}}}}),
					newTestModel("a", Infinity, pingType)}
			},
			want: "dangling event sink",
		},
		{
			name:   "sink does not import",
			root:   "root",
			models: func() []Model {
				return []Model{coupled(CoupledSpec{Submodels: []string{"a", "b"},
					Connections: map[EventSource][]EventSink{pingSource("a"): {{ModelURI: "b", Type: pingType}}}}),
					newTestModel("a", Infinity, pingType), newTestModel("b", Infinity, "")}
			},
			want: "does not import",
		},
		{
			name:   "type change without converter",
			root:   "root",
			models: func() []Model {
				return []Model{coupled(CoupledSpec{Submodels: []string{"a", "b"},
					Connections: map[EventSource][]EventSink{pingSource("a"): {{ModelURI: "b", Type: pongType}}}}),
					newTestModel("a", Infinity, pingType), newTestModel("b", Infinity, "", pongType)}
			},
			want: "without a converter",
		},
		{
			name:   "source does not export",
			root:   "root",
			models: func() []Model {
				return []Model{coupled(CoupledSpec{Submodels: []string{"a", "b"},
					Connections: map[EventSource][]EventSink{pingSource("a"): {{ModelURI: "b", Type: pingType}}}}),
					newTestModel("a", Infinity, ""), newTestModel("b", Infinity, "", pingType)}
			},
			want: "does not export",
		},
		{
			name:   "self connection",
			root:   "root",
			models: func() []Model {
				return []Model{coupled(CoupledSpec{Submodels: []string{"a"},
					Connections: map[EventSource][]EventSink{pingSource("a"): {{ModelURI: "a", Type: pingType}}}}),
					newTestModel("a", Infinity, pingType, pingType)}
			},
			want: "connected to itself",
		},
		{
			name:   "unbound imported variable",
			root:   "root",
			models: func() []Model {
				return []Model{coupled(CoupledSpec{Submodels: []string{"c"}}), newDoubler("c")}
			},
			want: "is not bound",
		},
		{
			name:   "variable type mismatch",
			root:   "root",
			models: func() []Model {
				return []Model{coupled(CoupledSpec{Submodels: []string{"s", "w"},
					Bindings: []VariableBinding{{
						Source: VariableEndpoint{ModelURI: "w", Name: "word"},
						Sinks:  []VariableEndpoint{{ModelURI: "s", Name: "x"}},
					}}}),
					newDoubler("s"), newWordSource("w")}
			},
			want: "has type",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, err := NewSimulator(tc.root, tc.models())
			requireConfigError(t, err, tc.want)
			assert.Nil(t, s)
		})
	}
}

func TestCoupledModel_UseBeforeAssembly_IsViolation(t *testing.T) {
	c, err := NewCoupledModel(CoupledSpec{URI: "c", TimeUnit: Seconds, Submodels: []string{"a"}})
	require.NoError(t, err)
	requireViolation(t, func() { c.IsDescendant("a") })
}

func TestCoupledModel_EventSinks_UnknownType_IsViolation(t *testing.T) {
	s, _, _ := newPair(t)
	root, ok := s.Model("root")
	require.True(t, ok)
	cv := requireViolation(t, func() { root.(*CoupledModel).EventSinks(stopType) })
	assert.Equal(t, "root", cv.ModelURI)
}

func TestCoupledModel_Queries(t *testing.T) {
	s, _, _ := newPair(t)
	m, _ := s.Model("root")
	root := m.(*CoupledModel)

	assert.Equal(t, []string{"a", "b"}, root.Submodels())
	assert.True(t, root.IsSubmodel("a"))
	assert.False(t, root.IsSubmodel("root"))
	assert.True(t, root.IsDescendant("b"))
	assert.False(t, root.IsDescendant("root"))
	assert.Equal(t, []EventSink{{ModelURI: "b", Type: pingType}}, root.Connections(pingSource("a")))
	assert.Empty(t, root.ExportedEventTypes())
	d, ok := root.Descendant("a")
	require.True(t, ok)
	assert.Equal(t, "a", d.URI())
}

func TestCoupledModel_Select_RejectsNonCandidates(t *testing.T) {
	// GIVEN a selector that answers with a URI outside the candidates
	rogue := func([]string, *rand.Rand) string { return "b" }
	c, err := NewCoupledModel(CoupledSpec{URI: "c", TimeUnit: Seconds, Submodels: []string{"a", "b", "z"}, Selector: rogue})
	require.NoError(t, err)

	// WHEN selecting among a and z THEN the answer is refused
	requireViolation(t, func() { c.Select([]string{"a", "z"}) })
	// AND candidates must be submodels
	requireViolation(t, func() { c.Select([]string{"a", "nope"}) })
	assert.Equal(t, "z", c.Select([]string{"z"}))
}

func TestCoupledModel_Select_BeforeAssembly_UsesLowestURI(t *testing.T) {
	// GIVEN a coupled model with the default random policy, never assembled
	c, err := NewCoupledModel(CoupledSpec{URI: "c", TimeUnit: Seconds, Submodels: []string{"a", "b", "z"}})
	require.NoError(t, err)

	// WHEN breaking a tie THEN the lowest URI wins instead of drawing from a missing stream
	assert.Equal(t, "b", c.Select([]string{"z", "b"}))
	assert.Equal(t, "a", c.Select([]string{"z", "b", "a"}))
}

func TestCoupledModel_Select_ProducerBeforeConsumer(t *testing.T) {
	for seed := int64(0); seed < 20; seed++ {
		// GIVEN a consumer c importing x from producer p, both imminent
		root, err := NewCoupledModel(CoupledSpec{
			URI: "root", TimeUnit: Seconds, Submodels: []string{"c", "p"},
			Bindings: []VariableBinding{{
				Source: VariableEndpoint{ModelURI: "p", Name: "x"},
				Sinks:  []VariableEndpoint{{ModelURI: "c", Name: "x"}},
			}},
		})
		require.NoError(t, err)
		_, err = NewSimulator("root", []Model{root, newProducer("p", 2), newDoubler("c")}, WithSeed(seed))
		require.NoError(t, err)

		// THEN the random policy never picks the consumer
		assert.Equal(t, "p", root.Select([]string{"c", "p"}), "seed %d", seed)
	}
}

func TestHybridFilter_AllDependent_KeepsCandidates(t *testing.T) {
	deps := map[string]map[string]bool{"a": {"b": true}, "b": {"a": true}}
	assert.Equal(t, []string{"a", "b"}, hybridFilter([]string{"a", "b"}, deps))
	assert.Equal(t, []string{"b"}, hybridFilter([]string{"a", "b"}, map[string]map[string]bool{"a": {"b": true}}))
}

func TestSelectors(t *testing.T) {
	assert.Equal(t, "a", LowestURISelector([]string{"c", "a", "b"}, nil))
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		assert.Contains(t, []string{"a", "b", "c"}, RandomSelector([]string{"a", "b", "c"}, rng))
	}
	_, err := SelectorByName("")
	assert.NoError(t, err)
	_, err = SelectorByName("fair")
	assert.Error(t, err)
}
