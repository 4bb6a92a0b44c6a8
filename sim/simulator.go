// sim/simulator.go
package sim

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/inference-sim/devsim/sim/trace"
)

// DefaultFixpointIterations bounds fixpoint variable initialisation when
// WithFixpointInitialisation is given a non-positive bound.
const DefaultFixpointIterations = 100

// OutputHandler receives the events exported by the root model.
type OutputHandler func(Event)

// Option configures a Simulator.
type Option func(*Simulator)

// WithSeed seeds the tie-break streams of every coupled model.
func WithSeed(seed int64) Option {
	return func(s *Simulator) { s.seed = seed }
}

// WithTrace records transitions, selections and deliveries into st.
func WithTrace(st *trace.SimulationTrace) Option {
	return func(s *Simulator) { s.trace = st }
}

// WithOutputHandler hands every root output event to h. Root outputs are
// also kept and returned by Outputs.
func WithOutputHandler(h OutputHandler) Option {
	return func(s *Simulator) { s.onOutput = h }
}

// WithHostNotifier installs the host callback of every atomic model.
func WithHostNotifier(n HostNotifier) Option {
	return func(s *Simulator) { s.host = n }
}

// WithFixpointInitialisation initialises HIOA variables by repeated passes
// until every exported variable has a value, at most maxIterations passes.
func WithFixpointInitialisation(maxIterations int) Option {
	return func(s *Simulator) {
		if maxIterations <= 0 {
			maxIterations = DefaultFixpointIterations
		}
		s.fixpointIterations = maxIterations
	}
}

// WithRunID overrides the generated run identifier.
func WithRunID(id string) Option {
	return func(s *Simulator) { s.runID = id }
}

// Simulator assembles an architecture into an engine tree and drives it
// through one run: parameters, initialisation, steps, end, finalisation.
//
// Contract violations raised inside the kernel are recovered at every public
// method and returned as *ContractViolation; the run is then aborted and any
// further call returns ErrRunAborted. A failed parameter hand-off or variable
// initialisation is fatal too: every later call returns that same error.
//
// Thread-safety: NOT thread-safe. Independent Simulators may run in parallel.
type Simulator struct {
	arena *arena
	root  Engine
	rc    *runContext

	seed               int64
	runID              string
	trace              *trace.SimulationTrace
	onOutput           OutputHandler
	host               HostNotifier
	fixpointIterations int

	paramsSet bool
	stepping  bool
	aborted   error
	configErr error
	current   Time
	end       Time
	stepCount int
	outputs   []Event
}

// NewSimulator assembles the models into an engine tree rooted at rootURI.
// models must contain the root and every descendant, each exactly once.
// Malformed architectures are reported as *ConfigurationError.
func NewSimulator(rootURI string, models []Model, opts ...Option) (s *Simulator, err error) {
	defer func() {
		if r := recover(); r != nil {
			recoverViolation(r, &err)
			s = nil
		}
	}()

	s = &Simulator{}
	for _, opt := range opts {
		opt(s)
	}
	if s.runID == "" {
		s.runID = uuid.NewString()
	}

	a, err := newArena(rootURI, models)
	if err != nil {
		return nil, err
	}
	rootModel := a.nodes[a.root].model
	if err := a.validateCouplings(rootModel.TimeUnit()); err != nil {
		return nil, err
	}

	s.arena = a
	s.rc = &runContext{
		runID:        s.runID,
		arena:        a,
		rng:          NewPartitionedRNG(NewSimulationKey(s.seed)),
		trace:        s.trace,
		onRootOutput: s.collectOutput,
	}
	s.root = s.buildEngine(a.root)

	if err := a.resolveRoutes(); err != nil {
		return nil, err
	}
	if err := a.bindVariables(); err != nil {
		return nil, err
	}
	logrus.WithField("run", s.runID).Infof("assembled %s with %d models", rootURI, len(a.nodes))
	return s, nil
}

// buildEngine creates and binds the engines of the subtree at i, bottom-up.
func (s *Simulator) buildEngine(i int) Engine {
	node := &s.arena.nodes[i]
	switch m := node.model.(type) {
	case AtomicModel:
		e := NewAtomicEngine()
		e.rc = s.rc
		e.SetSimulatedModel(m)
		m.atomicBase().host = s.host
		node.engine = e
		return e
	case *CoupledModel:
		children := make([]Engine, 0, len(node.children))
		for _, c := range node.children {
			children = append(children, s.buildEngine(c))
		}
		m.arena = s.arena
		m.index = i
		m.rng = s.rc.rng.ForSubsystem(SubsystemSelect(m.uri))
		c := NewCoordinatorEngine()
		c.rc = s.rc
		c.SetSimulatedModel(m, children)
		node.engine = c
		return c
	}
	Violation(node.model.URI(), "unsupported model type %T", node.model)
	return nil
}

// SetSimulationRunParameters hands params to every model. It must precede
// Initialise and may be called once.
func (s *Simulator) SetSimulationRunParameters(params RunParameters) (err error) {
	if err := s.guard(); err != nil {
		return err
	}
	defer s.recoverRun(&err)
	if s.paramsSet {
		return &ContractViolation{ModelURI: s.root.URI(), Condition: "run parameters already set"}
	}
	if params == nil {
		params = RunParameters{}
	}
	if err := s.root.SetSimulationRunParameters(params); err != nil {
		s.failConfiguration(err)
		return err
	}
	s.paramsSet = true
	return nil
}

// Initialise prepares a run over [start, start+duration). If run parameters
// were never set, models are handed an empty map so that any required
// parameter is reported as missing before a step executes.
func (s *Simulator) Initialise(start Time, duration Duration) (err error) {
	if err := s.guard(); err != nil {
		return err
	}
	defer s.recoverRun(&err)
	if !s.paramsSet {
		if err := s.SetSimulationRunParameters(RunParameters{}); err != nil {
			return err
		}
	}
	assertf(!duration.IsInfinite(), s.root.URI(), "run duration must be finite")
	s.root.InitialiseSimulation(start, duration)
	if err := s.initialiseVariables(); err != nil {
		s.failConfiguration(err)
		return err
	}
	s.current = start
	s.end = start.Add(duration)
	logrus.WithField("run", s.runID).Infof("initialised %s: start %s, end %s, next event %s",
		s.root.URI(), start, s.end, s.NextEventTime())
	return nil
}

func (s *Simulator) initialiseVariables() error {
	atomics := s.arena.atomicIndices()
	if s.fixpointIterations == 0 {
		for _, i := range atomics {
			if vi, ok := s.arena.nodes[i].model.(VariableInitialiser); ok {
				vi.InitialiseVariables()
			}
		}
		if missing := s.uninitialisedVariables(atomics); len(missing) > 0 {
			return configErrorf(s.root.URI(), "variables %s are not initialised; fixpoint initialisation is disabled",
				strings.Join(missing, ", "))
		}
		return nil
	}
	for _, i := range atomics {
		model := s.arena.nodes[i].model
		if _, ok := model.(FixpointVariableInitialiser); ok {
			continue
		}
		if vi, ok := model.(VariableInitialiser); ok {
			vi.InitialiseVariables()
		}
	}
	prev := -1
	for iter := 0; iter < s.fixpointIterations; iter++ {
		done, total := 0, 0
		for _, i := range atomics {
			fi, ok := s.arena.nodes[i].model.(FixpointVariableInitialiser)
			if !ok {
				continue
			}
			d, t := fi.FixpointInitialiseVariables()
			done += d
			total += t
		}
		if done == total {
			logrus.WithField("run", s.runID).Debugf("variables initialised after %d passes", iter+1)
			return nil
		}
		if done == prev {
			break
		}
		prev = done
	}
	missing := s.uninitialisedVariables(atomics)
	return fmt.Errorf("%w: uninitialised %s", ErrFixpointNotReached, strings.Join(missing, ", "))
}

func (s *Simulator) uninitialisedVariables(atomics []int) []string {
	var missing []string
	for _, i := range atomics {
		missing = append(missing, s.arena.nodes[i].model.(AtomicModel).atomicBase().uninitialisedVariables()...)
	}
	return missing
}

// NextEventTime returns the instant of the next step: the earlier of the
// root's forecast internal event and its earliest pending external event.
func (s *Simulator) NextEventTime() Time {
	return MinTime(s.root.TimeOfNextEvent(), s.root.NextExternalTime())
}

// Step executes the next event if it occurs before the end of the run.
// done is true when no event remains before the end.
func (s *Simulator) Step() (done bool, err error) {
	if err := s.guard(); err != nil {
		return false, err
	}
	defer s.recoverRun(&err)
	state := s.root.State()
	assertf(state == Initialised || state == Running, s.root.URI(), "Step not allowed in state %s", state)

	t := s.NextEventTime()
	if !t.LessThan(s.end) {
		return true, nil
	}
	s.stepping = true
	defer func() { s.stepping = false }()
	if s.root.TimeOfNextEvent().Equal(t) {
		s.root.InternalEventStep()
	} else {
		s.root.ExternalEventStep(t)
	}
	s.current = t
	s.stepCount++
	return false, nil
}

// Run steps until the end of the run or until ctx is cancelled, then ends
// and finalises the run. On cancellation the run is ended at the current
// simulated time and ctx.Err() is returned.
func (s *Simulator) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			if err := s.End(s.current); err != nil {
				return err
			}
			if err := s.Finalise(); err != nil {
				return err
			}
			return ctx.Err()
		}
		done, err := s.Step()
		if err != nil {
			return err
		}
		if done {
			break
		}
	}
	if err := s.End(s.end); err != nil {
		return err
	}
	return s.Finalise()
}

// Inject delivers an externally produced event of a root-imported type to
// its atomic sinks. It must not be called while a step executes.
func (s *Simulator) Inject(ev Event) (err error) {
	if err := s.guard(); err != nil {
		return err
	}
	defer s.recoverRun(&err)
	assertf(!s.stepping, s.root.URI(), "Inject called during a step")
	state := s.root.State()
	assertf(state == Initialised || state == Running, s.root.URI(), "Inject not allowed in state %s", state)
	assertf(s.arena.imports(s.arena.root, ev.Type()), s.root.URI(), "root does not import %s", ev.Type())
	assertf(ev.TimeOfOccurrence().GreaterThanOrEqual(s.current), s.root.URI(),
		"injected event %s precedes the current time %s", describeEvent(ev), s.current)

	for _, r := range s.arena.routesInto(s.arena.root, ev.Type(), nil, nil) {
		converted := r.converter.apply(ev)
		assertf(converted.Type() == r.sinkType, s.root.URI(),
			"converter produced %s where %s was expected", converted.Type(), r.sinkType)
		r.target.PlanExternalEventStep(r.target.uri, []Event{converted})
	}
	return nil
}

// End stops the run at t.
func (s *Simulator) End(t Time) (err error) {
	if err := s.guard(); err != nil {
		return err
	}
	defer s.recoverRun(&err)
	s.root.EndSimulation(t)
	logrus.WithField("run", s.runID).Infof("ended %s at %s after %d steps", s.root.URI(), t, s.stepCount)
	return nil
}

// Finalise releases every model exactly once.
func (s *Simulator) Finalise() (err error) {
	if err := s.guard(); err != nil {
		return err
	}
	defer s.recoverRun(&err)
	s.root.FinaliseSimulation()
	logrus.WithField("run", s.runID).Infof("finalised %s", s.root.URI())
	return nil
}

func (s *Simulator) RunID() string     { return s.runID }
func (s *Simulator) CurrentTime() Time { return s.current }
func (s *Simulator) EndTime() Time     { return s.end }
func (s *Simulator) StepCount() int    { return s.stepCount }
func (s *Simulator) Root() Engine      { return s.root }

// Aborted returns the violation that aborted the run, nil if none.
func (s *Simulator) Aborted() error { return s.aborted }

// ConfigurationFailure returns the latched parameter or variable
// initialisation error, nil if none.
func (s *Simulator) ConfigurationFailure() error { return s.configErr }

// Outputs returns the events exported by the root model so far.
func (s *Simulator) Outputs() []Event {
	return append([]Event(nil), s.outputs...)
}

// Engine returns the engine driving the model uri.
func (s *Simulator) Engine(uri string) (Engine, bool) {
	i, ok := s.arena.lookup(uri)
	if !ok {
		return nil, false
	}
	return s.arena.nodes[i].engine, true
}

// Model returns the model named uri.
func (s *Simulator) Model(uri string) (Model, bool) {
	i, ok := s.arena.lookup(uri)
	if !ok {
		return nil, false
	}
	return s.arena.nodes[i].model, true
}

// === internals ===

func (s *Simulator) collectOutput(ev Event) {
	s.outputs = append(s.outputs, ev)
	if s.onOutput != nil {
		s.onOutput(ev)
	}
}

func (rc *runContext) emitRootOutput(ev Event) {
	if rc == nil || rc.onRootOutput == nil {
		logrus.Debugf("root output %s dropped", describeEvent(ev))
		return
	}
	rc.onRootOutput(ev)
}

func (s *Simulator) guard() error {
	if s.aborted != nil {
		return fmt.Errorf("%w: %v", ErrRunAborted, s.aborted)
	}
	return s.configErr
}

// failConfiguration latches err so that the run can neither initialise nor
// step afterwards.
func (s *Simulator) failConfiguration(err error) {
	if s.configErr != nil {
		return
	}
	s.configErr = err
	logrus.WithField("run", s.runID).Errorf("run configuration failed: %v", err)
}

// recoverRun turns a contract violation into *err and aborts the run.
func (s *Simulator) recoverRun(err *error) {
	r := recover()
	if r == nil {
		var cv *ContractViolation
		if *err != nil && errors.As(*err, &cv) {
			s.abort(cv)
		}
		return
	}
	recoverViolation(r, err)
	s.abort(*err)
}

func (s *Simulator) abort(err error) {
	if s.aborted != nil {
		return
	}
	s.aborted = err
	logrus.WithField("run", s.runID).Errorf("run aborted: %v", err)
}
