package core

import "sort"

// DependencyGraph indexes merge specs by source and by derived table.
type DependencyGraph struct {
	specs      map[string]MergeSpec
	dependents map[string][]string // source -> derived
	sources    map[string][]string // derived -> sources
}

// NewDependencyGraph builds a graph from stored merge specs.
func NewDependencyGraph(specs []MergeSpec) *DependencyGraph {
	g := &DependencyGraph{
		specs:      make(map[string]MergeSpec, len(specs)),
		dependents: make(map[string][]string),
		sources:    make(map[string][]string),
	}
	for _, spec := range specs {
		g.add(spec)
	}
	return g
}

func (g *DependencyGraph) add(spec MergeSpec) {
	g.remove(spec.DerivedID)
	g.specs[spec.DerivedID] = spec
	for _, e := range spec.Edges() {
		g.dependents[e.SourceID] = append(g.dependents[e.SourceID], e.DerivedID)
		g.sources[e.DerivedID] = append(g.sources[e.DerivedID], e.SourceID)
	}
	for src := range g.dependents {
		sort.Strings(g.dependents[src])
	}
}

func (g *DependencyGraph) remove(derivedID string) {
	for _, src := range g.sources[derivedID] {
		deps := g.dependents[src][:0]
		for _, d := range g.dependents[src] {
			if d != derivedID {
				deps = append(deps, d)
			}
		}
		g.dependents[src] = deps
	}
	delete(g.sources, derivedID)
	delete(g.specs, derivedID)
}

// Spec returns the merge that builds derivedID.
func (g *DependencyGraph) Spec(derivedID string) (MergeSpec, bool) {
	s, ok := g.specs[derivedID]
	return s, ok
}

// Dependents returns the tables built directly from id, sorted.
func (g *DependencyGraph) Dependents(id string) []string {
	return append([]string(nil), g.dependents[id]...)
}

// Affected returns every table that depends on id directly or
// transitively, sorted.
func (g *DependencyGraph) Affected(id string) []string {
	seen := map[string]bool{}
	stack := append([]string(nil), g.dependents[id]...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[n] || n == id {
			continue
		}
		seen[n] = true
		stack = append(stack, g.dependents[n]...)
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// CheckAdd reports a CycleError if adding spec would make any table
// depend on itself. The graph is not modified.
func (g *DependencyGraph) CheckAdd(spec MergeSpec) error {
	trial := &DependencyGraph{
		specs:      make(map[string]MergeSpec, len(g.specs)+1),
		dependents: make(map[string][]string, len(g.dependents)),
		sources:    make(map[string][]string, len(g.sources)),
	}
	for id, s := range g.specs {
		trial.specs[id] = s
	}
	for k, v := range g.dependents {
		trial.dependents[k] = append([]string(nil), v...)
	}
	for k, v := range g.sources {
		trial.sources[k] = append([]string(nil), v...)
	}
	trial.add(spec)

	if path := trial.findCycle(spec.DerivedID); path != nil {
		return &CycleError{Path: path}
	}
	return nil
}

// findCycle walks dependents from start with a DFS and returns the path
// back to start if one exists.
func (g *DependencyGraph) findCycle(start string) []string {
	visited := map[string]bool{}
	var path []string

	var visit func(n string) bool
	visit = func(n string) bool {
		path = append(path, n)
		for _, d := range g.dependents[n] {
			if d == start {
				path = append(path, d)
				return true
			}
			if visited[d] {
				continue
			}
			visited[d] = true
			if visit(d) {
				return true
			}
		}
		path = path[:len(path)-1]
		return false
	}

	if visit(start) {
		return path
	}
	return nil
}

// Tiers orders the tables affected by a change to id with Kahn's
// algorithm. Tables in the same tier do not depend on each other and can
// be rebuilt concurrently; every tier only depends on id and earlier tiers.
func (g *DependencyGraph) Tiers(id string) ([][]string, error) {
	affected := g.Affected(id)
	if len(affected) == 0 {
		return nil, nil
	}
	inSet := make(map[string]bool, len(affected))
	for _, n := range affected {
		inSet[n] = true
	}

	inDegree := make(map[string]int, len(affected))
	for _, n := range affected {
		for _, src := range g.sources[n] {
			if inSet[src] {
				inDegree[n]++
			}
		}
	}

	var queue []string
	for _, n := range affected {
		if inDegree[n] == 0 {
			queue = append(queue, n)
		}
	}

	var tiers [][]string
	processed := 0
	for len(queue) > 0 {
		sort.Strings(queue)
		tiers = append(tiers, queue)
		processed += len(queue)

		var next []string
		for _, n := range queue {
			for _, d := range g.dependents[n] {
				if !inSet[d] {
					continue
				}
				inDegree[d]--
				if inDegree[d] == 0 {
					next = append(next, d)
				}
			}
		}
		queue = next
	}

	if processed != len(affected) {
		return nil, &CycleError{Path: append([]string{id}, affected...)}
	}
	return tiers, nil
}
