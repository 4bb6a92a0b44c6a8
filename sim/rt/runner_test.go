package rt_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/inference-sim/devsim/sim"
	"github.com/inference-sim/devsim/sim/library"
	"github.com/inference-sim/devsim/sim/rt"
)

// recordingTimer fires at once and remembers the requested delays.
type recordingTimer struct {
	delays []time.Duration
}

func (t *recordingTimer) After(d time.Duration) <-chan time.Time {
	t.delays = append(t.delays, d)
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

func newPipeline(count int) (*sim.Simulator, *library.Sink) {
	gen := library.NewGenerator("gen", sim.Seconds)
	sink := library.NewSink("sink", sim.Seconds)
	root, err := sim.NewCoupledModel(sim.CoupledSpec{
		URI:       "pipeline",
		TimeUnit:  sim.Seconds,
		Submodels: []string{"gen", "sink"},
		Connections: map[sim.EventSource][]sim.EventSink{
			{ModelURI: "gen", Type: library.JobType}: {{ModelURI: "sink", Type: library.JobType}},
		},
	})
	Expect(err).NotTo(HaveOccurred())
	s, err := sim.NewSimulator("pipeline", []sim.Model{root, gen, sink})
	Expect(err).NotTo(HaveOccurred())
	Expect(s.SetSimulationRunParameters(sim.RunParameters{
		"gen:period": 10.0,
		"gen:count":  count,
	})).To(Succeed())
	Expect(s.Initialise(sim.ZeroTime(sim.Seconds), sim.NewDuration(100, sim.Seconds))).To(Succeed())
	return s, sink
}

var _ = Describe("Runner", func() {
	var epoch time.Time

	BeforeEach(func() {
		epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	})

	It("waits for the wall-clock instant of every step", func() {
		s, sink := newPipeline(3)
		clock, err := rt.NewAcceleratedClock("clock", sim.Seconds, epoch, sim.ZeroTime(sim.Seconds), 10,
			rt.WithNow(func() time.Time { return epoch }))
		Expect(err).NotTo(HaveOccurred())
		timer := &recordingTimer{}

		runner := rt.NewRunner(s, clock, rt.WithTimer(timer))
		Expect(runner.Run(context.Background())).To(Succeed())

		Expect(timer.delays).To(Equal([]time.Duration{time.Second, 2 * time.Second, 3 * time.Second}))
		Expect(sink.Received()).To(HaveLen(3))
		Expect(runner.MissedDeadlines()).To(BeZero())
		Expect(s.Root().State()).To(Equal(sim.Finalised))
	})

	It("runs late steps at once and reports them", func() {
		s, sink := newPipeline(2)
		late := epoch.Add(time.Hour)
		clock, err := rt.NewAcceleratedClock("clock", sim.Seconds, epoch, sim.ZeroTime(sim.Seconds), 1,
			rt.WithNow(func() time.Time { return late }))
		Expect(err).NotTo(HaveOccurred())
		var reported []*rt.MissedDeadlineError

		runner := rt.NewRunner(s, clock, rt.WithTimer(&recordingTimer{}),
			rt.WithMissedDeadlineHandler(func(e *rt.MissedDeadlineError) { reported = append(reported, e) }))
		Expect(runner.Run(context.Background())).To(Succeed())

		Expect(runner.MissedDeadlines()).To(Equal(2))
		Expect(reported).To(HaveLen(2))
		Expect(sink.Received()).To(HaveLen(2))
	})

	It("ends the run at the current simulated time when cancelled", func() {
		s, sink := newPipeline(0)
		clock, err := rt.NewAcceleratedClock("clock", sim.Seconds, epoch, sim.ZeroTime(sim.Seconds), 1,
			rt.WithNow(func() time.Time { return epoch }))
		Expect(err).NotTo(HaveOccurred())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err = rt.NewRunner(s, clock, rt.WithTimer(&recordingTimer{})).Run(ctx)

		Expect(err).To(MatchError(context.Canceled))
		Expect(sink.Received()).To(BeEmpty())
		Expect(s.Root().State()).To(Equal(sim.Finalised))
	})
})
