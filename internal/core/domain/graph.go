// Package domain contains the core domain models of the library build pipeline.
package domain

import (
	"iter"
	"strings"

	"go.trai.ch/zerr"
)

// Graph represents the dependency graph of library targets.
// Edges come from ${target.output} references.
type Graph struct {
	targets        map[InternedString]Target
	declared       []InternedString
	executionOrder []InternedString
}

// NewGraph creates a new empty Graph.
func NewGraph() *Graph {
	return &Graph{
		targets: make(map[InternedString]Target),
	}
}

// AddTarget adds a target to the graph.
// It returns an error if a target with the same name already exists.
func (g *Graph) AddTarget(t *Target) error {
	if _, exists := g.targets[t.Name]; exists {
		return zerr.With(ErrTargetAlreadyExists, "target", t.Name.String())
	}
	g.targets[t.Name] = *t
	g.declared = append(g.declared, t.Name)
	return nil
}

// Target returns the target with the given name.
func (g *Graph) Target(name string) (Target, bool) {
	t, ok := g.targets[NewInternedString(name)]
	return t, ok
}

// Validate checks every reference and computes the execution order.
// Targets keep their declared order unless they reference a later target,
// in which case the referenced target is moved in front of them.
func (g *Graph) Validate() error {
	g.executionOrder = make([]InternedString, 0, len(g.targets))
	visited := make(map[InternedString]int) // 0: unvisited, 1: visiting, 2: visited
	var path []InternedString

	var visit func(u InternedString) error
	visit = func(u InternedString) error {
		visited[u] = 1
		path = append(path, u)

		target := g.targets[u]
		for _, ref := range target.References() {
			dep := NewInternedString(ref.Target)
			producer, exists := g.targets[dep]
			if !exists {
				err := zerr.With(ErrUnknownTarget, "target", u.String())
				return zerr.With(err, "reference", ref.Target)
			}
			if _, ok := producer.Outputs[ref.Output]; !ok {
				err := zerr.With(ErrUnknownOutput, "target", u.String())
				return zerr.With(err, "output", ref.Target+"."+ref.Output)
			}
			if dep == u {
				continue
			}
			if visited[dep] == 1 {
				return g.buildCycleError(path, dep)
			}
			if visited[dep] == 0 {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}

		visited[u] = 2
		path = path[:len(path)-1]
		g.executionOrder = append(g.executionOrder, u)
		return nil
	}

	for _, name := range g.declared {
		if visited[name] == 0 {
			if err := visit(name); err != nil {
				return err
			}
		}
	}

	return nil
}

// buildCycleError constructs an error with cycle path metadata.
func (g *Graph) buildCycleError(path []InternedString, dep InternedString) error {
	startIdx := 0
	for i, node := range path {
		if node == dep {
			startIdx = i
			break
		}
	}
	parts := make([]string, 0, len(path)-startIdx+1)
	for _, node := range path[startIdx:] {
		parts = append(parts, node.String())
	}
	parts = append(parts, dep.String())
	return zerr.With(ErrCycleDetected, "cycle", strings.Join(parts, " -> "))
}

// Walk returns an iterator that yields targets in execution order.
// It assumes Validate() has been called and returned nil.
func (g *Graph) Walk() iter.Seq[Target] {
	return func(yield func(Target) bool) {
		for _, name := range g.executionOrder {
			if !yield(g.targets[name]) {
				return
			}
		}
	}
}

// Select returns the named targets in execution order.
// An empty selection returns every target.
func (g *Graph) Select(names []string) ([]Target, error) {
	wanted := make(map[InternedString]bool, len(names))
	for _, n := range names {
		name := NewInternedString(n)
		if _, ok := g.targets[name]; !ok {
			return nil, zerr.With(ErrTargetNotFound, "target", n)
		}
		wanted[name] = true
	}

	out := make([]Target, 0, len(g.executionOrder))
	for t := range g.Walk() {
		if len(wanted) == 0 || wanted[t.Name] {
			out = append(out, t)
		}
	}
	return out, nil
}
