package diff

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/ridoystarlord/schemasync/schema"
)

var ErrSchemaCycle = errors.New("diff: foreign key cycle")

// CycleError reports a foreign-key cycle among tables. Path starts and ends
// with the same table.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("diff: foreign key cycle: %s", strings.Join(e.Path, " -> "))
}

func (e *CycleError) Is(target error) bool { return target == ErrSchemaCycle }

// Graph is a table dependency graph. An edge parent -> child means child
// holds a foreign key to parent. Node order is insertion order.
type Graph struct {
	order   []string
	edges   map[string][]string // parent -> children (dependents)
	parents map[string][]string // child -> parents (dependencies)
}

func NewGraph() *Graph {
	return &Graph{
		edges:   make(map[string][]string),
		parents: make(map[string][]string),
	}
}

// DependencyGraph builds the graph of foreign keys among tables. References
// to tables outside the set and self references are ignored.
func DependencyGraph(tables []*schema.TableSpec) *Graph {
	g := NewGraph()
	for _, t := range tables {
		g.AddNode(t.Name)
	}
	for _, t := range tables {
		for _, fk := range t.ForeignKeys {
			_ = g.AddEdge(fk.Table, t.Name)
		}
	}
	return g
}

func (g *Graph) AddNode(id string) {
	if _, exists := g.edges[id]; exists {
		return
	}
	g.order = append(g.order, id)
	g.edges[id] = []string{}
	g.parents[id] = []string{}
}

// AddEdge adds a directed edge from parent to child (child depends on
// parent). Self references are ignored.
func (g *Graph) AddEdge(parentID, childID string) error {
	// Ensure both nodes exist
	if _, exists := g.edges[parentID]; !exists {
		return fmt.Errorf("parent node %q does not exist", parentID)
	}
	if _, exists := g.edges[childID]; !exists {
		return fmt.Errorf("child node %q does not exist", childID)
	}
	if parentID == childID {
		return nil
	}

	if !slices.Contains(g.edges[parentID], childID) {
		g.edges[parentID] = append(g.edges[parentID], childID)
	}
	if !slices.Contains(g.parents[childID], parentID) {
		g.parents[childID] = append(g.parents[childID], parentID)
	}
	return nil
}

func (g *Graph) Parents(id string) []string { return slices.Clone(g.parents[id]) }

func (g *Graph) NodeCount() int { return len(g.order) }

// HasCycle reports whether the graph contains a cycle, along with its path.
func (g *Graph) HasCycle() (bool, []string) {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	path := make(map[string]string)

	var cyclePath []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		recStack[id] = true

		for _, childID := range g.edges[id] {
			if !visited[childID] {
				path[childID] = id
				if dfs(childID) {
					return true
				}
			} else if recStack[childID] {
				// Found cycle, reconstruct path
				cyclePath = []string{childID}
				for curr := id; curr != childID; curr = path[curr] {
					cyclePath = append([]string{curr}, cyclePath...)
				}
				cyclePath = append([]string{childID}, cyclePath...)
				return true
			}
		}

		recStack[id] = false
		return false
	}

	for _, id := range g.order {
		if !visited[id] && dfs(id) {
			return true, cyclePath
		}
	}
	return false, nil
}

// TopologicalSort returns the nodes with dependencies before dependents.
// Among nodes that are ready at the same time insertion order wins.
func (g *Graph) TopologicalSort() ([]string, error) {
	if hasCycle, cyclePath := g.HasCycle(); hasCycle {
		return nil, &CycleError{Path: cyclePath}
	}

	pending := make(map[string]int, len(g.order))
	for _, id := range g.order {
		pending[id] = len(g.parents[id])
	}
	placed := make(map[string]bool, len(g.order))
	result := make([]string, 0, len(g.order))
	for len(result) < len(g.order) {
		for _, id := range g.order {
			if placed[id] || pending[id] > 0 {
				continue
			}
			placed[id] = true
			result = append(result, id)
			for _, child := range g.edges[id] {
				pending[child]--
			}
			break
		}
	}
	return result, nil
}
