package library

import "github.com/inference-sim/devsim/sim"

// The thermal set is a small hybrid system: a Room integrates its
// temperature from the power of a Heater, and a Thermostat samples the
// temperature and switches the heater with hysteresis.
//
// Variables:
//
//	heater.power        float64, W        read by the room
//	room.temperature    float64, °C       read by the thermostat
//	thermostat.heating  bool              read by the heater at t0

const (
	PowerVariable       = "power"
	TemperatureVariable = "temperature"
	HeatingVariable     = "heating"
)

// Heater is switched on and off by events and exports its power.
//
//	<uri>:power  required, power in W when on
type Heater struct {
	*sim.AtomicBase
	rated   float64
	on      bool
	power   *sim.Variable[float64]
	heating *sim.Import[bool]
}

func NewHeater(uri string, unit sim.TimeUnit) *Heater {
	h := &Heater{
		AtomicBase: sim.NewAtomicBase(sim.AtomicSpec{
			URI:      uri,
			TimeUnit: unit,
			Imported: []sim.EventType{SwitchOnType, SwitchOffType},
		}),
		power:   sim.NewVariable[float64](PowerVariable),
		heating: sim.NewImport[bool](HeatingVariable),
	}
	h.ExportVariable(h.power)
	h.ImportVariable(h.heating)
	return h
}

func (h *Heater) SetSimulationRunParameters(params sim.RunParameters) error {
	rated, err := params.Float64(h.URI(), "power")
	if err != nil {
		return err
	}
	if rated < 0 {
		return &sim.ConfigurationError{ModelURI: h.URI(), Reason: "power must be non-negative"}
	}
	h.rated = rated
	return nil
}

func (h *Heater) InitialiseState(sim.Time) { h.on = false }

func (h *Heater) TimeAdvance() sim.Duration { return sim.Infinity }

func (h *Heater) InternalTransition(sim.Duration) {
	sim.Violation(h.URI(), "heater has no internal events")
}

// FixpointInitialiseVariables waits for the thermostat's initial decision.
func (h *Heater) FixpointInitialiseVariables() (int, int) {
	if h.power.IsInitialised() {
		return 1, 1
	}
	if !h.heating.IsInitialised() {
		return 0, 1
	}
	h.on = h.heating.Value()
	h.power.Set(h.output(), h.CurrentStateTime())
	return 1, 1
}

func (h *Heater) switchTo(on bool, at sim.Time) {
	if h.on == on {
		sim.Violation(h.URI(), "heater switched %s twice", onOff(on))
	}
	h.on = on
	h.power.Set(h.output(), at)
	h.Logger().Debugf("switched %s at %s", onOff(on), at)
}

func (h *Heater) output() float64 {
	if h.on {
		return h.rated
	}
	return 0
}

// IsOn reports whether the heater is heating.
func (h *Heater) IsOn() bool { return h.on }

// Room integrates its temperature with an explicit Euler step:
//
//	dT/dt = power/capacity - loss*(T - outside)
//
// Run parameters (all required): initial-temperature, outside-temperature
// (°C), capacity (J/°C), loss (1/time unit) and step (integration step in
// the architecture time unit).
type Room struct {
	*sim.AtomicBase
	initial  float64
	outside  float64
	capacity float64
	loss     float64
	step     sim.Duration

	current     float64
	temperature *sim.Variable[float64]
	power       *sim.Import[float64]
}

func NewRoom(uri string, unit sim.TimeUnit) *Room {
	r := &Room{
		AtomicBase:  sim.NewAtomicBase(sim.AtomicSpec{URI: uri, TimeUnit: unit}),
		temperature: sim.NewVariable[float64](TemperatureVariable),
		power:       sim.NewImport[float64](PowerVariable),
	}
	r.ExportVariable(r.temperature)
	r.ImportVariable(r.power)
	return r
}

func (r *Room) SetSimulationRunParameters(params sim.RunParameters) error {
	var err error
	uri := r.URI()
	if r.initial, err = params.Float64(uri, "initial-temperature"); err != nil {
		return err
	}
	if r.outside, err = params.Float64(uri, "outside-temperature"); err != nil {
		return err
	}
	if r.capacity, err = params.Float64(uri, "capacity"); err != nil {
		return err
	}
	if r.loss, err = params.Float64(uri, "loss"); err != nil {
		return err
	}
	if r.step, err = params.Duration(uri, "step", r.TimeUnit()); err != nil {
		return err
	}
	if r.capacity <= 0 || r.step.IsZero() {
		return &sim.ConfigurationError{ModelURI: uri, Reason: "capacity and step must be positive"}
	}
	return nil
}

func (r *Room) InitialiseState(sim.Time) { r.current = r.initial }

func (r *Room) TimeAdvance() sim.Duration { return r.step }

func (r *Room) FixpointInitialiseVariables() (int, int) {
	if !r.temperature.IsInitialised() {
		r.temperature.Set(r.current, r.CurrentStateTime())
	}
	return 1, 1
}

func (r *Room) InternalTransition(elapsed sim.Duration) {
	dt := elapsed.Value()
	r.current += dt * (r.power.Value()/r.capacity - r.loss*(r.current-r.outside))
	r.temperature.Set(r.current, r.CurrentStateTime())
}

// Temperature returns the current room temperature.
func (r *Room) Temperature() float64 { return r.current }

// Thermostat samples the room temperature every period and switches the
// heater on below low and off above high. Switches are pushed to the host
// as "heating" notifications.
//
//	<uri>:low, <uri>:high  required thresholds, low < high
//	<uri>:period           required sampling period
type Thermostat struct {
	*sim.AtomicBase
	low, high float64
	period    sim.Duration

	heatingOn   bool
	heating     *sim.Variable[bool]
	temperature *sim.Import[float64]
}

func NewThermostat(uri string, unit sim.TimeUnit) *Thermostat {
	t := &Thermostat{
		AtomicBase: sim.NewAtomicBase(sim.AtomicSpec{
			URI:      uri,
			TimeUnit: unit,
			Exported: []sim.EventType{SwitchOnType, SwitchOffType},
		}),
		heating:     sim.NewVariable[bool](HeatingVariable),
		temperature: sim.NewImport[float64](TemperatureVariable),
	}
	t.ExportVariable(t.heating)
	t.ImportVariable(t.temperature)
	return t
}

func (t *Thermostat) SetSimulationRunParameters(params sim.RunParameters) error {
	var err error
	uri := t.URI()
	if t.low, err = params.Float64(uri, "low"); err != nil {
		return err
	}
	if t.high, err = params.Float64(uri, "high"); err != nil {
		return err
	}
	if t.period, err = params.Duration(uri, "period", t.TimeUnit()); err != nil {
		return err
	}
	if t.low >= t.high || t.period.IsZero() {
		return &sim.ConfigurationError{ModelURI: uri, Reason: "need low < high and a positive period"}
	}
	return nil
}

func (t *Thermostat) InitialiseState(sim.Time) { t.heatingOn = false }

func (t *Thermostat) TimeAdvance() sim.Duration { return t.period }

// FixpointInitialiseVariables decides the initial heating state once the
// room temperature is known.
func (t *Thermostat) FixpointInitialiseVariables() (int, int) {
	if t.heating.IsInitialised() {
		return 1, 1
	}
	if !t.temperature.IsInitialised() {
		return 0, 1
	}
	t.heatingOn = t.temperature.Value() < t.low
	t.heating.Set(t.heatingOn, t.CurrentStateTime())
	return 1, 1
}

// decide returns the heating state wanted for the current temperature.
func (t *Thermostat) decide() bool {
	temp := t.temperature.Value()
	switch {
	case temp < t.low:
		return true
	case temp > t.high:
		return false
	}
	return t.heatingOn
}

func (t *Thermostat) Output(current sim.Time) []sim.Event {
	want := t.decide()
	if want == t.heatingOn {
		return nil
	}
	if want {
		return []sim.Event{NewSwitchOn(current)}
	}
	return []sim.Event{NewSwitchOff(current)}
}

func (t *Thermostat) InternalTransition(sim.Duration) {
	want := t.decide()
	if want == t.heatingOn {
		return
	}
	t.heatingOn = want
	t.heating.Set(want, t.CurrentStateTime())
	t.NotifyHost(HeatingVariable, want)
	t.Logger().Debugf("heating %s at %s (%.2f°C)", onOff(want), t.CurrentStateTime(), t.temperature.Value())
}

// IsHeating reports the thermostat's current decision.
func (t *Thermostat) IsHeating() bool { return t.heatingOn }

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
