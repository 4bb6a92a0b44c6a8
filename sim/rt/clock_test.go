package rt_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/inference-sim/devsim/sim"
	"github.com/inference-sim/devsim/sim/rt"
)

var _ = Describe("AcceleratedClock", func() {
	var (
		epoch time.Time
		now   time.Time
		clock *rt.AcceleratedClock
	)

	BeforeEach(func() {
		epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
		now = epoch
		var err error
		clock, err = rt.NewAcceleratedClock("clock", sim.Seconds, epoch, sim.ZeroTime(sim.Seconds), 60,
			rt.WithNow(func() time.Time { return now }))
		Expect(err).NotTo(HaveOccurred())
	})

	It("divides simulated spans by the acceleration factor", func() {
		delay, err := clock.NanoDelayUntilInstant(sim.NewTime(60, sim.Seconds))
		Expect(err).NotTo(HaveOccurred())
		Expect(delay).To(Equal(time.Second))
	})

	It("maps wall-clock instants back to simulated time", func() {
		now = epoch.Add(2 * time.Second)
		Expect(clock.CurrentSimulatedTime().Equal(sim.NewTime(120, sim.Seconds))).To(BeTrue())
	})

	It("maps instants before the start to the start time", func() {
		Expect(clock.SimulatedTimeOfInstant(epoch.Add(-time.Hour)).Equal(sim.ZeroTime(sim.Seconds))).To(BeTrue())
	})

	It("round-trips simulated instants through wall-clock instants", func() {
		at, err := clock.InstantOfSimulatedTime(sim.NewTime(90, sim.Seconds))
		Expect(err).NotTo(HaveOccurred())
		Expect(at).To(Equal(epoch.Add(1500 * time.Millisecond)))
		Expect(clock.SimulatedTimeOfInstant(at).Equal(sim.NewTime(90, sim.Seconds))).To(BeTrue())
	})

	It("reports instants already in the past as missed deadlines", func() {
		now = epoch.Add(3 * time.Second)
		delay, err := clock.NanoDelayUntilInstant(sim.NewTime(60, sim.Seconds))
		Expect(delay).To(BeZero())
		var missed *rt.MissedDeadlineError
		Expect(err).To(BeAssignableToTypeOf(missed))
		Expect(err.(*rt.MissedDeadlineError).Late).To(Equal(2 * time.Second))
	})

	It("refuses the infinite instant", func() {
		_, err := clock.NanoDelayUntilInstant(sim.TimeInfinity)
		Expect(err).To(MatchError(rt.ErrInfiniteInstant))
	})

	It("rejects a non-positive acceleration", func() {
		_, err := rt.NewAcceleratedClock("bad", sim.Seconds, epoch, sim.ZeroTime(sim.Seconds), 0)
		Expect(err).To(HaveOccurred())
	})

	Describe("WaitUntilStart", func() {
		It("returns at once when the start instant has passed", func() {
			now = epoch.Add(time.Minute)
			Expect(clock.DelayUntilStart()).To(BeZero())
			Expect(clock.WaitUntilStart(context.Background())).To(Succeed())
		})

		It("gives up when the context is cancelled", func() {
			now = epoch.Add(-time.Hour)
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			Expect(clock.WaitUntilStart(ctx)).To(MatchError(context.Canceled))
		})
	})
})

var _ = Describe("ClockRegistry", func() {
	It("provisions clocks by URI", func() {
		reg := rt.NewClockRegistry()
		c, err := rt.NewAcceleratedClock("house", sim.Seconds, time.Now(), sim.ZeroTime(sim.Seconds), 1)
		Expect(err).NotTo(HaveOccurred())

		Expect(reg.Register(c)).To(Succeed())
		Expect(reg.Register(c)).NotTo(Succeed())

		got, ok := reg.Get("house")
		Expect(ok).To(BeTrue())
		Expect(got).To(BeIdenticalTo(c))
		Expect(reg.URIs()).To(Equal([]string{"house"}))

		reg.Remove("house")
		_, ok = reg.Get("house")
		Expect(ok).To(BeFalse())
	})
})
