// Package sim provides the DEVS discrete-event simulation kernel.
//
// # Reading Guide
//
// Start with these files to understand the kernel:
//   - time.go: Time and Duration values, tolerance comparisons, the infinity sentinel
//   - model.go: the atomic model contract and its optional capabilities
//   - coupled.go: coupled models, event routing maps and the select tie-break
//   - atomic_engine.go, coordinator.go: the two engines of the DEVS protocol
//   - simulator.go: assembly of an architecture and the run driver
//
// # Architecture
//
// An architecture is a tree of models identified by URI. Leaves are atomic
// models; inner nodes are coupled models. Each model is driven by exactly one
// engine: an AtomicEngine for atomic models, a CoordinatorEngine for coupled
// ones. Events produced by an atomic model are routed once, at assembly, to
// the atomic engines that consume them, so delivery never climbs through the
// coordinators of shared ancestors. Coordinators only learn that a child has
// pending work.
//
// Hybrid (HIOA) models share continuous variables through Variable and
// Import: a variable has a single writer and any number of readers.
//
// Sub-packages build on the kernel:
//   - sim/arch/: declarative architectures, YAML loading and model registry
//   - sim/rt/: accelerated clocks and the real-time runner
//   - sim/library/: reusable models (generator, sink, thermal hybrid set)
//   - sim/trace/: transition trace recording
//
// Model kinds register their factories with sim/arch via init() functions,
// the same way sim/library does.
//
// # Errors
//
// Contract violations panic with *ContractViolation inside the kernel; the
// Simulator recovers them and aborts the run. Malformed architectures surface
// as *ConfigurationError when the Simulator is built, and missing run
// parameters as *MissingParameterError during Initialise.
package sim
