package graph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/advisorkit/maestro/pkg/models"
)

// Result is what a node returns: continue along the edges, or suspend the
// run with a structured resumable value. Suspension is an explicit return
// shape, not an exception.
type Result struct {
	Interrupt *models.Interrupt
}

// Continue proceeds to the next node.
func Continue() *Result { return &Result{} }

// Suspend pauses the run and surfaces the interrupt to the caller. Resume
// re-enters at the suspended node with the decision channels populated.
func Suspend(i *models.Interrupt) *Result { return &Result{Interrupt: i} }

// NodeFunc executes one node against the shared state.
type NodeFunc[S HasCore] func(ctx context.Context, s S) (*Result, error)

// Router picks the outgoing edge of a conditional node. Exactly one edge is
// taken per execution.
type Router[S HasCore] func(s S) string

type node[S HasCore] struct {
	fn     NodeFunc[S]
	next   string
	router Router[S]
}

// Graph is a compiled domain state machine: a single entry node, directed
// edges (static or conditional), and a terminal node that formats the
// response.
type Graph[S HasCore] struct {
	name     string
	entry    string
	terminal string
	nodes    map[string]*node[S]

	// failFast, when set, bubbles matching node errors to the caller
	// instead of routing them to the terminal formatter. Used for auth
	// failures, which no domain can recover from.
	failFast func(error) bool
}

// New creates a graph. The terminal node must format the response; any node
// error routes directly to it.
func New[S HasCore](name, entry, terminal string) *Graph[S] {
	return &Graph[S]{
		name:     name,
		entry:    entry,
		terminal: terminal,
		nodes:    make(map[string]*node[S]),
	}
}

// AddNode registers a node function under an id.
func (g *Graph[S]) AddNode(id string, fn NodeFunc[S]) *Graph[S] {
	g.nodes[id] = &node[S]{fn: fn}
	return g
}

// SetNext wires a static edge.
func (g *Graph[S]) SetNext(from, to string) *Graph[S] {
	g.nodes[from].next = to
	return g
}

// SetFailFast registers the error predicate that bypasses terminal
// formatting.
func (g *Graph[S]) SetFailFast(pred func(error) bool) *Graph[S] {
	g.failFast = pred
	return g
}

// SetRouter wires a conditional edge.
func (g *Graph[S]) SetRouter(from string, r Router[S]) *Graph[S] {
	g.nodes[from].router = r
	return g
}

// Validate checks the topology: entry and terminal exist, every edge
// target exists, every non-terminal node has an outgoing edge.
func (g *Graph[S]) Validate() error {
	if _, ok := g.nodes[g.entry]; !ok {
		return fmt.Errorf("graph %s: entry node %q not registered", g.name, g.entry)
	}
	if _, ok := g.nodes[g.terminal]; !ok {
		return fmt.Errorf("graph %s: terminal node %q not registered", g.name, g.terminal)
	}
	for id, n := range g.nodes {
		if id == g.terminal {
			continue
		}
		if n.next == "" && n.router == nil {
			return fmt.Errorf("graph %s: node %q has no outgoing edge", g.name, id)
		}
		if n.next != "" {
			if _, ok := g.nodes[n.next]; !ok {
				return fmt.Errorf("graph %s: node %q targets unknown node %q", g.name, id, n.next)
			}
		}
	}
	return nil
}

// Outcome reports how a run ended.
type Outcome struct {
	// Suspended is set when a node yielded an interrupt; NodeID is where to
	// resume.
	Suspended bool
	NodeID    string
	Interrupt *models.Interrupt
}

// Run executes the graph from its entry node.
func (g *Graph[S]) Run(ctx context.Context, s S) (*Outcome, error) {
	return g.run(ctx, s, g.entry)
}

// Resume re-enters the graph at the previously suspended node. The caller
// must populate the decision channels first.
func (g *Graph[S]) Resume(ctx context.Context, s S, nodeID string) (*Outcome, error) {
	if _, ok := g.nodes[nodeID]; !ok {
		return nil, fmt.Errorf("graph %s: cannot resume at unknown node %q", g.name, nodeID)
	}
	return g.run(ctx, s, nodeID)
}

func (g *Graph[S]) run(ctx context.Context, s S, start string) (*Outcome, error) {
	log := slog.With("graph", g.name)
	cur := start

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, ok := g.nodes[cur]
		if !ok {
			return nil, fmt.Errorf("graph %s: unknown node %q", g.name, cur)
		}

		res, err := n.fn(ctx, s)
		if err != nil {
			if g.failFast != nil && g.failFast(err) {
				return nil, err
			}
			// A failed node sets the error channel and routes directly to
			// the terminal formatter; siblings and later plan steps are
			// unaffected.
			log.Warn("Node failed", "node", cur, "error", err)
			s.Core().SetError(err.Error())
			if cur != g.terminal {
				if _, terr := g.nodes[g.terminal].fn(ctx, s); terr != nil {
					return nil, fmt.Errorf("terminal node failed after %q: %w", cur, terr)
				}
			}
			return &Outcome{}, nil
		}

		if res != nil && res.Interrupt != nil {
			log.Info("Run suspended", "node", cur, "interrupt", res.Interrupt.Type)
			return &Outcome{Suspended: true, NodeID: cur, Interrupt: res.Interrupt}, nil
		}

		if cur == g.terminal {
			return &Outcome{}, nil
		}

		next := n.next
		if n.router != nil {
			next = n.router(s)
		}
		if next == "" {
			return nil, fmt.Errorf("graph %s: node %q produced no successor", g.name, cur)
		}
		cur = next
	}
}
