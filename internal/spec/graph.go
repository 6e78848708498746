package spec

import (
	"sort"
)

// Graph is the cross-reference graph between operations and models. It is
// immutable once built and safe for concurrent reads.
type Graph struct {
	models  map[string]*ModelDescriptor
	ops     []*OperationDescriptor
	deps    map[string][]string          // model -> models it references
	strong  map[string]map[string]bool   // model -> referenced models linked strongly
	rdeps   map[string][]string          // model -> models referencing it
	usedIn  map[string][]string          // model -> operations referencing it directly
	lineage map[string][]string          // model -> operations reaching it transitively
	opRefs  map[string]map[string]Role   // operation -> model -> slot
}

// BuildGraph indexes ops and models. Edges to models absent from models are
// ignored; callers remove dangling references beforehand.
func BuildGraph(ops []*OperationDescriptor, models map[string]*ModelDescriptor) *Graph {
	g := &Graph{
		models:  models,
		ops:     ops,
		deps:    make(map[string][]string, len(models)),
		strong:  make(map[string]map[string]bool, len(models)),
		rdeps:   make(map[string][]string, len(models)),
		usedIn:  make(map[string][]string, len(models)),
		lineage: make(map[string][]string, len(models)),
		opRefs:  make(map[string]map[string]Role, len(ops)),
	}

	for name, m := range models {
		seen := make(map[string]bool)
		g.strong[name] = make(map[string]bool)
		for _, e := range m.Edges() {
			if _, ok := models[e.To]; !ok || e.To == name {
				continue
			}
			if e.Strong {
				g.strong[name][e.To] = true
			}
			if seen[e.To] {
				continue
			}
			seen[e.To] = true
			g.deps[name] = append(g.deps[name], e.To)
			g.rdeps[e.To] = append(g.rdeps[e.To], name)
		}
	}
	for _, list := range g.deps {
		sort.Strings(list)
	}
	for _, list := range g.rdeps {
		sort.Strings(list)
	}

	for _, op := range ops {
		refs := make(map[string]Role)
		slots := []struct {
			name string
			role Role
		}{
			{op.QueryParamsRef, RoleQuery},
			{op.RequestBodyRef, RoleIn},
			{op.ResponseBodyRef, RoleOut},
		}
		for _, s := range slots {
			if s.name == "" {
				continue
			}
			if _, ok := models[s.name]; !ok {
				continue
			}
			if _, dup := refs[s.name]; !dup {
				refs[s.name] = s.role
				g.usedIn[s.name] = append(g.usedIn[s.name], op.OperationID)
			}
		}
		g.opRefs[op.OperationID] = refs
	}

	for name := range models {
		g.lineage[name] = g.computeLineage(name)
	}
	return g
}

// computeLineage walks reverse edges from name and collects every operation
// that reaches it, in operation order.
func (g *Graph) computeLineage(name string) []string {
	visited := map[string]bool{name: true}
	queue := []string{name}
	reached := make(map[string]bool)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, id := range g.usedIn[cur] {
			reached[id] = true
		}
		for _, parent := range g.rdeps[cur] {
			if !visited[parent] {
				visited[parent] = true
				queue = append(queue, parent)
			}
		}
	}
	var out []string
	for _, op := range g.ops {
		if reached[op.OperationID] {
			out = append(out, op.OperationID)
		}
	}
	return out
}

// UsedIn returns the operations that reference model directly, in
// declaration order.
func (g *Graph) UsedIn(model string) []string { return g.usedIn[model] }

// Lineage returns every operation that reaches model through any chain of
// references, in declaration order.
func (g *Graph) Lineage(model string) []string { return g.lineage[model] }

// Dependencies returns the models referenced by model, sorted.
func (g *Graph) Dependencies(model string) []string { return g.deps[model] }

// Dependents returns the models referencing model, sorted.
func (g *Graph) Dependents(model string) []string { return g.rdeps[model] }

// OperationModels returns the models an operation references directly, with
// the slot each one fills.
func (g *Graph) OperationModels(id string) map[string]Role { return g.opRefs[id] }

// Edges lists model-to-model edges sorted by source and target, followed by
// operation edges in operation order.
func (g *Graph) Edges() []ReferenceEdge {
	names := make([]string, 0, len(g.deps))
	for n := range g.deps {
		names = append(names, n)
	}
	sort.Strings(names)
	var out []ReferenceEdge
	for _, from := range names {
		for _, to := range g.deps[from] {
			out = append(out, ReferenceEdge{From: from, To: to, Strong: g.strong[from][to]})
		}
	}
	for _, op := range g.ops {
		for _, name := range op.ModelRefs() {
			if role, ok := g.opRefs[op.OperationID][name]; ok {
				out = append(out, ReferenceEdge{From: op.OperationID, To: name, Operation: op.OperationID, Role: role})
			}
		}
	}
	return out
}

// Order returns every model such that dependencies precede dependents,
// breaking ties by name. Weak links are ignored only between models on the
// same cycle, so a model still follows everything it reaches outside its own
// cycle. A cycle of strong links is an error.
func (g *Graph) Order() ([]string, error) {
	all := make([]string, 0, len(g.models))
	for n := range g.models {
		all = append(all, n)
	}
	sort.Strings(all)

	order := kahn(all, func(n string) []string { return g.deps[n] })
	if len(order) == len(all) {
		return order, nil
	}

	comp := components(all, func(n string) []string { return g.deps[n] })
	order = kahn(all, func(n string) []string {
		var out []string
		for _, d := range g.deps[n] {
			if comp[d] != comp[n] || g.strong[n][d] {
				out = append(out, d)
			}
		}
		return out
	})
	if len(order) == len(all) {
		return order, nil
	}

	placed := make(map[string]bool, len(order))
	for _, n := range order {
		placed[n] = true
	}
	var cycle []string
	for _, n := range all {
		if !placed[n] {
			cycle = append(cycle, n)
		}
	}
	return order, &CyclicSchemaError{Cycle: cycle}
}

// components labels every node with the index of its strongly connected
// component (Tarjan).
func components(nodes []string, depsOf func(string) []string) map[string]int {
	index := make(map[string]int, len(nodes))
	low := make(map[string]int, len(nodes))
	onStack := make(map[string]bool, len(nodes))
	comp := make(map[string]int, len(nodes))
	var stack []string
	next, label := 0, 0

	var visit func(n string)
	visit = func(n string) {
		index[n] = next
		low[n] = next
		next++
		stack = append(stack, n)
		onStack[n] = true
		for _, d := range depsOf(n) {
			if _, seen := index[d]; !seen {
				visit(d)
				low[n] = min(low[n], low[d])
			} else if onStack[d] {
				low[n] = min(low[n], index[d])
			}
		}
		if low[n] != index[n] {
			return
		}
		for {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[top] = false
			comp[top] = label
			if top == n {
				break
			}
		}
		label++
	}
	for _, n := range nodes {
		if _, seen := index[n]; !seen {
			visit(n)
		}
	}
	return comp
}

// kahn topologically sorts nodes, considering only dependencies inside nodes.
// Nodes left on a cycle are omitted from the result.
func kahn(nodes []string, depsOf func(string) []string) []string {
	in := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		in[n] = true
	}
	indeg := make(map[string]int, len(nodes))
	dependents := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		for _, d := range depsOf(n) {
			if !in[d] || d == n {
				continue
			}
			indeg[n]++
			dependents[d] = append(dependents[d], n)
		}
	}

	var ready []string
	for _, n := range nodes {
		if indeg[n] == 0 {
			ready = append(ready, n)
		}
	}
	sort.Strings(ready)

	out := make([]string, 0, len(nodes))
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		out = append(out, n)
		for _, dep := range dependents[n] {
			indeg[dep]--
			if indeg[dep] == 0 {
				i := sort.SearchStrings(ready, dep)
				ready = append(ready, "")
				copy(ready[i+1:], ready[i:])
				ready[i] = dep
			}
		}
	}
	return out
}
