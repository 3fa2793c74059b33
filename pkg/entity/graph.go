// Package entity maintains the session-scoped graph of resolved CRM
// references threaded between domains.
package entity

import (
	"encoding/json"
	"time"

	"github.com/advisorkit/maestro/pkg/models"
)

// DefaultMaxHistoryPerType bounds each type's history.
const DefaultMaxHistoryPerType = 10

type indexKey struct {
	Type models.EntityType
	ID   string
}

// Graph holds the latest entity per type, a bounded most-recent-first
// history per type, and an index by (type, id). It is not safe for
// concurrent writers; the run coordinator is the single writer.
type Graph struct {
	maxHistory int
	history    map[models.EntityType][]models.EntityRef
	index      map[indexKey]struct{}
}

// NewGraph creates an empty graph with the given history bound.
func NewGraph(maxHistory int) *Graph {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistoryPerType
	}
	return &Graph{
		maxHistory: maxHistory,
		history:    make(map[models.EntityType][]models.EntityRef),
		index:      make(map[indexKey]struct{}),
	}
}

// Store inserts or updates an entity. An existing (type, id) is updated in
// place and promoted to the front of the history; a new entity is prepended.
// History beyond the bound evicts the oldest entries from history and index.
func (g *Graph) Store(e models.EntityRef) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	hist := g.history[e.Type]
	for i := range hist {
		if hist[i].ID == e.ID {
			// Update in place, then move to front.
			copy(hist[1:i+1], hist[:i])
			hist[0] = e
			g.history[e.Type] = hist
			return
		}
	}

	hist = append([]models.EntityRef{e}, hist...)
	g.index[indexKey{e.Type, e.ID}] = struct{}{}

	for len(hist) > g.maxHistory {
		oldest := hist[len(hist)-1]
		delete(g.index, indexKey{oldest.Type, oldest.ID})
		hist = hist[:len(hist)-1]
	}
	g.history[e.Type] = hist
}

// GetLatest returns the most recently stored entity of a type.
func (g *Graph) GetLatest(t models.EntityType) (models.EntityRef, bool) {
	hist := g.history[t]
	if len(hist) == 0 {
		return models.EntityRef{}, false
	}
	return hist[0], true
}

// GetByID returns the entity with the given (type, id) if present.
func (g *Graph) GetByID(t models.EntityType, id string) (models.EntityRef, bool) {
	if _, ok := g.index[indexKey{t, id}]; !ok {
		return models.EntityRef{}, false
	}
	for _, e := range g.history[t] {
		if e.ID == id {
			return e, true
		}
	}
	return models.EntityRef{}, false
}

// History returns up to limit entities of a type, most recent first.
// limit <= 0 returns the full bounded history.
func (g *Graph) History(t models.EntityType, limit int) []models.EntityRef {
	hist := g.history[t]
	if limit <= 0 || limit > len(hist) {
		limit = len(hist)
	}
	out := make([]models.EntityRef, limit)
	copy(out, hist[:limit])
	return out
}

// Search returns all entities of a type matching the predicate, most recent
// first.
func (g *Graph) Search(t models.EntityType, pred func(models.EntityRef) bool) []models.EntityRef {
	var out []models.EntityRef
	for _, e := range g.history[t] {
		if pred(e) {
			out = append(out, e)
		}
	}
	return out
}

// All returns the latest entity of every populated type.
func (g *Graph) All() []models.EntityRef {
	var out []models.EntityRef
	for _, hist := range g.history {
		if len(hist) > 0 {
			out = append(out, hist[0])
		}
	}
	return out
}

// Merge combines two graphs into a new one. Histories are interleaved per
// type with the right-hand side winning on (type, id) conflicts; the latest
// pointer per type goes to the entry with the most recent CreatedAt, with
// the right side winning ties.
func Merge(a, b *Graph) *Graph {
	maxHistory := a.maxHistory
	if b.maxHistory > maxHistory {
		maxHistory = b.maxHistory
	}
	out := NewGraph(maxHistory)

	// Store left oldest-first, then right oldest-first: right-hand entries
	// update left entries in place, and recency ordering is preserved.
	for _, g := range []*Graph{a, b} {
		for t := range g.history {
			hist := g.history[t]
			for i := len(hist) - 1; i >= 0; i-- {
				out.Store(hist[i])
			}
		}
	}

	// Latest per type: most recent CreatedAt wins across both sides.
	for t := range out.history {
		hist := out.history[t]
		best := 0
		for i := 1; i < len(hist); i++ {
			if hist[i].CreatedAt.After(hist[best].CreatedAt) {
				best = i
			}
		}
		if best != 0 {
			e := hist[best]
			copy(hist[1:best+1], hist[:best])
			hist[0] = e
		}
	}
	return out
}

// graphJSON is the serialized checkpoint form.
type graphJSON struct {
	MaxHistory int                                      `json:"max_history"`
	History    map[models.EntityType][]models.EntityRef `json:"history"`
}

// MarshalJSON serializes the graph for checkpointing.
func (g *Graph) MarshalJSON() ([]byte, error) {
	return json.Marshal(graphJSON{MaxHistory: g.maxHistory, History: g.history})
}

// UnmarshalJSON restores a checkpointed graph.
func (g *Graph) UnmarshalJSON(data []byte) error {
	var raw graphJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.MaxHistory <= 0 {
		raw.MaxHistory = DefaultMaxHistoryPerType
	}
	g.maxHistory = raw.MaxHistory
	g.history = raw.History
	if g.history == nil {
		g.history = make(map[models.EntityType][]models.EntityRef)
	}
	g.index = make(map[indexKey]struct{})
	for t, hist := range g.history {
		for _, e := range hist {
			g.index[indexKey{t, e.ID}] = struct{}{}
		}
	}
	return nil
}
