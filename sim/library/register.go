// register.go wires the library models into the sim/arch registry. This
// init() runs when any package imports sim/library.
package library

import (
	"github.com/inference-sim/devsim/sim"
	"github.com/inference-sim/devsim/sim/arch"
)

const (
	KindGenerator  = "generator"
	KindSink       = "sink"
	KindHeater     = "heater"
	KindRoom       = "room"
	KindThermostat = "thermostat"

	ConverterSwitchToReport = "switch-to-report"
)

func init() {
	arch.RegisterModel(KindGenerator, func(uri string, unit sim.TimeUnit) sim.AtomicModel { return NewGenerator(uri, unit) })
	arch.RegisterModel(KindSink, func(uri string, unit sim.TimeUnit) sim.AtomicModel { return NewSink(uri, unit) })
	arch.RegisterModel(KindHeater, func(uri string, unit sim.TimeUnit) sim.AtomicModel { return NewHeater(uri, unit) })
	arch.RegisterModel(KindRoom, func(uri string, unit sim.TimeUnit) sim.AtomicModel { return NewRoom(uri, unit) })
	arch.RegisterModel(KindThermostat, func(uri string, unit sim.TimeUnit) sim.AtomicModel { return NewThermostat(uri, unit) })
	arch.RegisterConverter(ConverterSwitchToReport, SwitchToReport)
}
