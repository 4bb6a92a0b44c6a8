package sim

import "sort"

// arena indexes every model and engine of one simulation tree by URI.
// Parent/child relations are stored as indices so that models never hold
// references to their ancestors.
type arena struct {
	nodes []arenaNode
	index map[string]int
	root  int
}

type arenaNode struct {
	model    Model
	engine   Engine
	parent   int // -1 for the root
	children []int
}

// newArena indexes models and checks the tree shape: unique URIs, no
// dangling submodel reference, a single parent per model, every model
// reachable from the root.
func newArena(rootURI string, models []Model) (*arena, error) {
	a := &arena{index: make(map[string]int, len(models)), root: -1}
	for _, m := range models {
		if m == nil {
			return nil, configErrorf("", "nil model in architecture")
		}
		if _, dup := a.index[m.URI()]; dup {
			return nil, configErrorf(m.URI(), "model URI collision")
		}
		a.index[m.URI()] = len(a.nodes)
		a.nodes = append(a.nodes, arenaNode{model: m, parent: -1})
	}
	root, ok := a.index[rootURI]
	if !ok {
		return nil, configErrorf(rootURI, "root model is not part of the architecture")
	}
	a.root = root

	for i := range a.nodes {
		cm, ok := a.nodes[i].model.(*CoupledModel)
		if !ok {
			continue
		}
		for _, sub := range cm.submodels {
			j, ok := a.index[sub]
			if !ok {
				return nil, configErrorf(cm.uri, "dangling submodel reference %q", sub)
			}
			if j == i {
				return nil, configErrorf(cm.uri, "model lists itself as a submodel")
			}
			if p := a.nodes[j].parent; p >= 0 {
				return nil, configErrorf(sub, "model has two parents: %s and %s", a.nodes[p].model.URI(), cm.uri)
			}
			a.nodes[j].parent = i
			a.nodes[i].children = append(a.nodes[i].children, j)
		}
	}
	if p := a.nodes[root].parent; p >= 0 {
		return nil, configErrorf(rootURI, "root model is a submodel of %s", a.nodes[p].model.URI())
	}
	reached := make([]bool, len(a.nodes))
	var walk func(int)
	walk = func(i int) {
		reached[i] = true
		for _, c := range a.nodes[i].children {
			walk(c)
		}
	}
	walk(root)
	var orphans []string
	for i, ok := range reached {
		if !ok {
			orphans = append(orphans, a.nodes[i].model.URI())
		}
	}
	if len(orphans) > 0 {
		sort.Strings(orphans)
		return nil, configErrorf(rootURI, "models not reachable from the root: %v", orphans)
	}
	return a, nil
}

func (a *arena) lookup(uri string) (int, bool) {
	i, ok := a.index[uri]
	return i, ok
}

func (a *arena) uri(i int) string { return a.nodes[i].model.URI() }

// isAncestor reports whether anc is idx or one of its ancestors.
func (a *arena) isAncestor(anc, idx int) bool {
	for i := idx; i >= 0; i = a.nodes[i].parent {
		if i == anc {
			return true
		}
	}
	return false
}

// childOnPath returns the child of anc whose subtree contains idx.
func (a *arena) childOnPath(anc, idx int) int {
	for i := idx; i >= 0; i = a.nodes[i].parent {
		if a.nodes[i].parent == anc {
			return i
		}
	}
	return -1
}

// lca returns the lowest common ancestor of i and j.
func (a *arena) lca(i, j int) int {
	for x := i; x >= 0; x = a.nodes[x].parent {
		if a.isAncestor(x, j) {
			return x
		}
	}
	return a.root
}

// atomicIndices returns the indices of all atomic models in URI order.
func (a *arena) atomicIndices() []int {
	var out []int
	for i, n := range a.nodes {
		if n.model.Kind() == AtomicKind {
			out = append(out, i)
		}
	}
	sort.Slice(out, func(x, y int) bool { return a.uri(out[x]) < a.uri(out[y]) })
	return out
}

// === Declaration checks ===

func (a *arena) imports(i int, t EventType) bool {
	switch m := a.nodes[i].model.(type) {
	case AtomicModel:
		return m.atomicBase().IsImported(t)
	case *CoupledModel:
		return m.IsImported(t)
	}
	return false
}

func (a *arena) exports(i int, t EventType) bool {
	switch m := a.nodes[i].model.(type) {
	case AtomicModel:
		return m.atomicBase().IsExported(t)
	case *CoupledModel:
		return m.IsExported(t)
	}
	return false
}

// validateCouplings checks every import, reexport and connection of every
// coupled model against the declared event interfaces.
func (a *arena) validateCouplings(unit TimeUnit) error {
	for _, n := range a.nodes {
		if n.model.TimeUnit() != unit {
			return configErrorf(n.model.URI(), "time unit %s differs from the architecture unit %s", n.model.TimeUnit(), unit)
		}
		cm, ok := n.model.(*CoupledModel)
		if !ok {
			continue
		}
		checkSink := func(sink EventSink, incoming EventType) error {
			if !cm.IsSubmodel(sink.ModelURI) {
				return configErrorf(cm.uri, "dangling event sink %q", sink.ModelURI)
			}
			j := a.index[sink.ModelURI]
			if !a.imports(j, sink.Type) {
				return configErrorf(cm.uri, "sink %s does not import %s", sink.ModelURI, sink.Type)
			}
			if sink.Type != incoming && sink.Converter == nil {
				return configErrorf(cm.uri, "sink %s.%s receives %s without a converter", sink.ModelURI, sink.Type, incoming)
			}
			return nil
		}
		for t, sinks := range cm.imported {
			if len(sinks) == 0 {
				return configErrorf(cm.uri, "imported event %s has no sink", t)
			}
			for _, s := range sinks {
				if err := checkSink(s, t); err != nil {
					return err
				}
			}
		}
		for src, r := range cm.reexported {
			if !cm.IsSubmodel(src.ModelURI) {
				return configErrorf(cm.uri, "reexport from unknown submodel %q", src.ModelURI)
			}
			if !a.exports(a.index[src.ModelURI], src.Type) {
				return configErrorf(cm.uri, "submodel %s does not export %s", src.ModelURI, src.Type)
			}
			if r.Type == "" {
				return configErrorf(cm.uri, "reexport of %s.%s has no type", src.ModelURI, src.Type)
			}
			if r.Type != src.Type && r.Converter == nil {
				return configErrorf(cm.uri, "reexport of %s.%s as %s without a converter", src.ModelURI, src.Type, r.Type)
			}
		}
		for src, sinks := range cm.connections {
			if !cm.IsSubmodel(src.ModelURI) {
				return configErrorf(cm.uri, "connection from unknown submodel %q", src.ModelURI)
			}
			if !a.exports(a.index[src.ModelURI], src.Type) {
				return configErrorf(cm.uri, "submodel %s does not export %s", src.ModelURI, src.Type)
			}
			for _, s := range sinks {
				if s.ModelURI == src.ModelURI {
					return configErrorf(cm.uri, "submodel %s is connected to itself", src.ModelURI)
				}
				if err := checkSink(s, src.Type); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// === Routing ===

// route is one resolved destination of an atomic model export: either a
// peer atomic engine or, when target is nil, the output of the root model.
type route struct {
	target    *AtomicEngine
	sinkType  EventType
	converter EventConverter
}

// routesFrom follows an export of model src upward through reexports and
// sideways through connections, down to the atomic sinks.
func (a *arena) routesFrom(src int, t EventType, conv EventConverter, out []route) []route {
	p := a.nodes[src].parent
	if p < 0 {
		return append(out, route{sinkType: t, converter: conv})
	}
	cm := a.nodes[p].model.(*CoupledModel)
	key := EventSource{ModelURI: a.uri(src), Type: t}
	for _, sink := range cm.connections[key] {
		out = a.routesInto(a.index[sink.ModelURI], sink.Type, conv.compose(sink.Converter), out)
	}
	if r, ok := cm.reexported[key]; ok {
		out = a.routesFrom(p, r.Type, conv.compose(r.Converter), out)
	}
	return out
}

// routesInto follows an import of model dst down to its atomic sinks.
func (a *arena) routesInto(dst int, t EventType, conv EventConverter, out []route) []route {
	switch m := a.nodes[dst].model.(type) {
	case AtomicModel:
		return append(out, route{target: a.nodes[dst].engine.(*AtomicEngine), sinkType: t, converter: conv})
	case *CoupledModel:
		for _, sink := range m.imported[t] {
			out = a.routesInto(a.index[sink.ModelURI], sink.Type, conv.compose(sink.Converter), out)
		}
	}
	return out
}

// resolveRoutes computes, once, the peer destinations of every export of
// every atomic model.
func (a *arena) resolveRoutes() error {
	for _, i := range a.atomicIndices() {
		e := a.nodes[i].engine.(*AtomicEngine)
		base := e.model.atomicBase()
		e.routes = make(map[EventType][]route)
		for _, t := range base.ExportedEventTypes() {
			routes := a.routesFrom(i, t, nil, nil)
			for _, r := range routes {
				if r.target == e {
					return configErrorf(base.uri, "export %s is routed back to its own model", t)
				}
			}
			e.routes[t] = routes
		}
	}
	return nil
}

// === Variables ===

// bindVariables resolves every variable binding to its exporting and
// importing atomic models, records inter-submodel dependencies for the
// hybrid-aware select default, and checks that every import is bound.
func (a *arena) bindVariables() error {
	for ci, n := range a.nodes {
		cm, ok := n.model.(*CoupledModel)
		if !ok {
			continue
		}
		for _, b := range cm.bindings {
			srcIdx, srcVar, err := a.exportedVariable(ci, b.Source)
			if err != nil {
				return err
			}
			if len(b.Sinks) == 0 {
				return configErrorf(cm.uri, "binding of %s has no sink", b.Source)
			}
			for _, sink := range b.Sinks {
				sinkIdx, sinkVar, err := a.importedVariable(ci, sink)
				if err != nil {
					return err
				}
				if err := sinkVar.bind(srcVar); err != nil {
					return configErrorf(cm.uri, "binding %s -> %s: %v", b.Source, sink, err)
				}
				if sinkIdx == srcIdx {
					continue
				}
				l := a.lca(srcIdx, sinkIdx)
				lm := a.nodes[l].model.(*CoupledModel)
				lm.addDependency(a.uri(a.childOnPath(l, sinkIdx)), a.uri(a.childOnPath(l, srcIdx)))
			}
		}
	}
	for _, i := range a.atomicIndices() {
		base := a.nodes[i].model.(AtomicModel).atomicBase()
		for name, v := range base.importedVars {
			if !v.IsBound() {
				return configErrorf(base.uri, "imported variable %q is not bound", name)
			}
		}
	}
	return nil
}

func (a *arena) exportedVariable(scope int, ep VariableEndpoint) (int, ExportedVariable, error) {
	i, base, err := a.variableOwner(scope, ep)
	if err != nil {
		return 0, nil, err
	}
	v, ok := base.exportedVars[ep.Name]
	if !ok {
		return 0, nil, configErrorf(a.uri(scope), "%s does not export variable %q", ep.ModelURI, ep.Name)
	}
	return i, v, nil
}

func (a *arena) importedVariable(scope int, ep VariableEndpoint) (int, ImportedVariable, error) {
	i, base, err := a.variableOwner(scope, ep)
	if err != nil {
		return 0, nil, err
	}
	v, ok := base.importedVars[ep.Name]
	if !ok {
		return 0, nil, configErrorf(a.uri(scope), "%s does not import variable %q", ep.ModelURI, ep.Name)
	}
	return i, v, nil
}

func (a *arena) variableOwner(scope int, ep VariableEndpoint) (int, *AtomicBase, error) {
	i, ok := a.index[ep.ModelURI]
	if !ok || i == scope || !a.isAncestor(scope, i) {
		return 0, nil, configErrorf(a.uri(scope), "variable endpoint %s is not a descendant", ep)
	}
	am, ok := a.nodes[i].model.(AtomicModel)
	if !ok {
		return 0, nil, configErrorf(a.uri(scope), "variable endpoint %s is not an atomic model", ep)
	}
	return i, am.atomicBase(), nil
}
