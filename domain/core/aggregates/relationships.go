package aggregates

import (
	"sort"

	"topicgraph/domain/core/valueobjects"
)

// Neighbor is one weighted edge out of a topic
type Neighbor struct {
	Key      valueobjects.TopicKey `json:"key"`
	Strength int                   `json:"strength"`
}

// RelationshipGraph is a symmetric weighted co-occurrence graph.
// Every mutation writes both directions, so weight(a,b) == weight(b,a) holds
// after each call returns.
type RelationshipGraph struct {
	rows map[valueobjects.TopicKey]*adjacency
}

// adjacency keeps neighbor weights plus first-seen order for tie breaking
type adjacency struct {
	weights map[valueobjects.TopicKey]int
	order   []valueobjects.TopicKey
}

func newAdjacency() *adjacency {
	return &adjacency{weights: make(map[valueobjects.TopicKey]int)}
}

func (a *adjacency) add(key valueobjects.TopicKey, by int) {
	if _, ok := a.weights[key]; !ok {
		a.order = append(a.order, key)
	}
	a.weights[key] += by
}

func (a *adjacency) remove(key valueobjects.TopicKey) int {
	w, ok := a.weights[key]
	if !ok {
		return 0
	}
	delete(a.weights, key)
	for i, k := range a.order {
		if k == key {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
	return w
}

// replace moves the weight stored under from onto to. When to is new it takes
// from's position in the order; otherwise the weights are summed in place.
func (a *adjacency) replace(from, to valueobjects.TopicKey) {
	w, ok := a.weights[from]
	if !ok {
		return
	}
	if _, exists := a.weights[to]; exists {
		a.remove(from)
		a.weights[to] += w
		return
	}
	delete(a.weights, from)
	a.weights[to] = w
	for i, k := range a.order {
		if k == from {
			a.order[i] = to
			break
		}
	}
}

// NewRelationshipGraph creates an empty graph
func NewRelationshipGraph() *RelationshipGraph {
	return &RelationshipGraph{rows: make(map[valueobjects.TopicKey]*adjacency)}
}

func (g *RelationshipGraph) row(key valueobjects.TopicKey) *adjacency {
	r, ok := g.rows[key]
	if !ok {
		r = newAdjacency()
		g.rows[key] = r
	}
	return r
}

// Strengthen adds by to the edge between a and b in both directions
func (g *RelationshipGraph) Strengthen(a, b valueobjects.TopicKey, by int) {
	if a == b || by <= 0 {
		return
	}
	g.row(a).add(b, by)
	g.row(b).add(a, by)
}

// Weight returns the strength of the edge a→b, zero when absent
func (g *RelationshipGraph) Weight(a, b valueobjects.TopicKey) int {
	r, ok := g.rows[a]
	if !ok {
		return 0
	}
	return r.weights[b]
}

// Neighbors returns every neighbor of key in first-seen order
func (g *RelationshipGraph) Neighbors(key valueobjects.TopicKey) []Neighbor {
	r, ok := g.rows[key]
	if !ok {
		return nil
	}
	out := make([]Neighbor, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, Neighbor{Key: k, Strength: r.weights[k]})
	}
	return out
}

// TopNeighbors returns up to n neighbors by descending strength.
// Equal strengths keep first-seen order.
func (g *RelationshipGraph) TopNeighbors(key valueobjects.TopicKey, n int) []Neighbor {
	neighbors := g.Neighbors(key)
	sort.SliceStable(neighbors, func(i, j int) bool {
		return neighbors[i].Strength > neighbors[j].Strength
	})
	if n >= 0 && len(neighbors) > n {
		neighbors = neighbors[:n]
	}
	return neighbors
}

// Fold moves every edge of source onto target and removes source from the graph.
// Edges between source and target disappear; collisions sum their strengths.
func (g *RelationshipGraph) Fold(source, target valueobjects.TopicKey) {
	if source == target {
		return
	}

	if srcRow, ok := g.rows[source]; ok {
		delete(g.rows, source)
		for _, nb := range srcRow.order {
			if nb == target {
				continue
			}
			g.row(target).add(nb, srcRow.weights[nb])
		}
	}

	for key, r := range g.rows {
		if _, ok := r.weights[source]; !ok {
			continue
		}
		if key == target {
			r.remove(source)
			continue
		}
		r.replace(source, target)
	}

	if r, ok := g.rows[target]; ok && len(r.weights) == 0 {
		delete(g.rows, target)
	}
}

// Adjacency exports the graph as nested maps
func (g *RelationshipGraph) Adjacency() map[string]map[string]int {
	out := make(map[string]map[string]int, len(g.rows))
	for key, r := range g.rows {
		inner := make(map[string]int, len(r.weights))
		for nb, w := range r.weights {
			inner[string(nb)] = w
		}
		out[string(key)] = inner
	}
	return out
}

// NeighborOrder exports each row's neighbors in first-seen order
func (g *RelationshipGraph) NeighborOrder() map[string][]string {
	out := make(map[string][]string, len(g.rows))
	for key, r := range g.rows {
		row := make([]string, len(r.order))
		for i, nb := range r.order {
			row[i] = string(nb)
		}
		out[string(key)] = row
	}
	return out
}

// restoreRow installs a persisted row. order lists neighbors in first-seen
// order; neighbors missing from it are appended in key order.
func (g *RelationshipGraph) restoreRow(key valueobjects.TopicKey, weights map[string]int, order []valueobjects.TopicKey) {
	if len(weights) == 0 {
		return
	}
	r := g.row(key)
	for _, nb := range order {
		if _, seen := r.weights[nb]; seen || nb == key {
			continue
		}
		if w, ok := weights[string(nb)]; ok && w > 0 {
			r.add(nb, w)
		}
	}
	rest := make([]string, 0, len(weights))
	for nb := range weights {
		if _, ok := r.weights[valueobjects.TopicKey(nb)]; !ok {
			rest = append(rest, nb)
		}
	}
	sort.Strings(rest)
	for _, nb := range rest {
		if weights[nb] > 0 && valueobjects.TopicKey(nb) != key {
			r.add(valueobjects.TopicKey(nb), weights[nb])
		}
	}
}
