// register.go holds the model-kind and converter registries. Packages that
// provide models call RegisterModel from their init() functions, which
// breaks the import cycle between sim/arch (descriptor owner) and the model
// packages. Production code imports sim/library directly; tests register
// their own kinds.
package arch

import (
	"fmt"
	"sort"
	"sync"

	"github.com/inference-sim/devsim/sim"
)

// ModelFactory creates a fresh atomic model of one registered kind.
type ModelFactory func(uri string, unit sim.TimeUnit) sim.AtomicModel

var (
	registryMu sync.RWMutex
	models     = map[string]ModelFactory{}
	converters = map[string]sim.EventConverter{}
)

// RegisterModel makes a model kind available to architectures. Registering
// the same kind twice panics.
func RegisterModel(kind string, factory ModelFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if kind == "" || factory == nil {
		panic("arch: RegisterModel with empty kind or nil factory")
	}
	if _, dup := models[kind]; dup {
		panic(fmt.Sprintf("arch: model kind %q registered twice", kind))
	}
	models[kind] = factory
}

// RegisterConverter makes a named event converter available to couplings.
// Registering the same name twice panics.
func RegisterConverter(name string, c sim.EventConverter) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if name == "" || c == nil {
		panic("arch: RegisterConverter with empty name or nil converter")
	}
	if _, dup := converters[name]; dup {
		panic(fmt.Sprintf("arch: converter %q registered twice", name))
	}
	converters[name] = c
}

// ModelKinds returns the registered model kinds, sorted.
func ModelKinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	kinds := make([]string, 0, len(models))
	for k := range models {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

func lookupModel(kind string) (ModelFactory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := models[kind]
	return f, ok
}

func lookupConverter(name string) (sim.EventConverter, bool) {
	if name == "" {
		return nil, true
	}
	registryMu.RLock()
	defer registryMu.RUnlock()
	c, ok := converters[name]
	return c, ok
}
