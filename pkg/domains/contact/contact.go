// Package contact implements the contact-resolution domain as its own
// subgraph: cache check, name extraction, CRM search, scoring, and
// disambiguation.
package contact

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/advisorkit/maestro/pkg/bsa"
	"github.com/advisorkit/maestro/pkg/graph"
	"github.com/advisorkit/maestro/pkg/models"
	"github.com/advisorkit/maestro/pkg/resolver"
)

// Node ids.
const (
	nodeCheckCache     = "check_cache"
	nodeExtractName    = "extract_name"
	nodeSearch         = "search_bsa"
	nodeScoreMatches   = "score_matches"
	nodeDisambiguate   = "disambiguate"
	nodeCacheResult    = "cache_result"
	nodeCreateEntity   = "create_entity"
	nodeFormatResponse = "format_response"
)

// State is the contact channel bundle.
type State struct {
	graph.CoreState

	Name       string                   `json:"name,omitempty"`
	CacheHit   bool                     `json:"cache_hit,omitempty"`
	Candidates []models.ScoredCandidate `json:"candidates,omitempty"`
	Resolved   *models.EntityRef        `json:"resolved,omitempty"`
	SkippedRef bool                     `json:"skipped_ref,omitempty"`
}

// Deps are the collaborators the contact graph needs.
type Deps struct {
	Resolver *resolver.ContactResolver
}

var namePattern = regexp.MustCompile(`\b(?:find|look up|lookup|who is|with|for|about)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)`)

// Build compiles the contact graph.
func Build(deps *Deps) *graph.Graph[*State] {
	g := graph.New[*State]("contact", nodeCheckCache, nodeFormatResponse)

	g.AddNode(nodeCheckCache, deps.checkCache)
	g.AddNode(nodeExtractName, deps.extractName)
	g.AddNode(nodeSearch, deps.search)
	g.AddNode(nodeScoreMatches, deps.scoreMatches)
	g.AddNode(nodeDisambiguate, deps.disambiguate)
	g.AddNode(nodeCacheResult, deps.cacheResult)
	g.AddNode(nodeCreateEntity, deps.createEntity)
	g.AddNode(nodeFormatResponse, deps.formatResponse)

	g.SetRouter(nodeCheckCache, func(s *State) string {
		if s.CacheHit {
			return nodeCreateEntity
		}
		return nodeExtractName
	})
	g.SetNext(nodeExtractName, nodeSearch)
	g.SetNext(nodeSearch, nodeScoreMatches)
	g.SetNext(nodeScoreMatches, nodeDisambiguate)
	g.SetRouter(nodeDisambiguate, func(s *State) string {
		if s.Resolved == nil {
			return nodeFormatResponse
		}
		return nodeCacheResult
	})
	g.SetNext(nodeCacheResult, nodeCreateEntity)
	g.SetNext(nodeCreateEntity, nodeFormatResponse)
	g.SetFailFast(bsa.IsAuthError)

	return g
}

// checkCache marks CacheHit when the state already carries a resolved
// contact. It does not query the resolver cache itself.
func (d *Deps) checkCache(_ context.Context, s *State) (*graph.Result, error) {
	// The resolver cache is keyed by normalized name; resolution happens
	// in the search path. Cache hits are detected there — this node exists
	// to keep resumed runs from re-extracting a clarified name.
	if s.Resolved != nil {
		s.CacheHit = true
	}
	return graph.Continue(), nil
}

// extractName pulls the person reference out of the query.
func (d *Deps) extractName(_ context.Context, s *State) (*graph.Result, error) {
	if s.ClarifiedName != "" {
		s.Name = s.ClarifiedName
		s.ClarifiedName = ""
		return graph.Continue(), nil
	}
	if s.Name != "" {
		return graph.Continue(), nil
	}
	if m := namePattern.FindStringSubmatch(s.Query); m != nil {
		s.Name = m[1]
		return graph.Continue(), nil
	}
	// Short queries are taken as a bare name ("John Smith").
	trimmed := strings.TrimSpace(s.Query)
	if len(strings.Fields(trimmed)) <= 3 && trimmed != "" {
		s.Name = trimmed
		return graph.Continue(), nil
	}
	return nil, fmt.Errorf("could not extract a contact name from the request")
}

// search queries the CRM through the resolver.
func (d *Deps) search(ctx context.Context, s *State) (*graph.Result, error) {
	res, err := d.Resolver.Resolve(ctx, s.Name, s.MemoryContext)
	if err != nil {
		if errors.Is(err, resolver.ErrNoMatches) {
			// Disambiguation turns the empty candidate set into a
			// clarification suspension.
			s.Candidates = nil
			return graph.Continue(), nil
		}
		return nil, err
	}
	if res.Entity != nil {
		s.Resolved = res.Entity
	}
	s.Candidates = res.Candidates
	return graph.Continue(), nil
}

// scoreMatches is satisfied by the resolver's composite scoring; the node
// keeps the candidate channel ordered best-first.
func (d *Deps) scoreMatches(_ context.Context, s *State) (*graph.Result, error) {
	return graph.Continue(), nil
}

// disambiguate yields a suspension when the candidate set is ambiguous, a
// clarification when it is empty, and passes through otherwise. On resume
// it consumes the decision channel matching the suspension it raised.
func (d *Deps) disambiguate(ctx context.Context, s *State) (*graph.Result, error) {
	if s.Resolved != nil || s.SkippedRef {
		return graph.Continue(), nil
	}

	// Decisions from a prior suspension of this node.
	switch {
	case s.SelectionID != "":
		entity, err := d.Resolver.ResolveByID(ctx, s.SelectionID)
		s.SelectionID = ""
		if err != nil {
			return nil, err
		}
		s.Resolved = entity
		return graph.Continue(), nil

	case s.SkipUnresolved:
		s.SkipUnresolved = false
		s.SkippedRef = true
		return graph.Continue(), nil

	case s.ClarifiedName != "":
		name := s.ClarifiedName
		s.ClarifiedName = ""
		s.Name = name
		res, err := d.Resolver.Resolve(ctx, name, s.MemoryContext)
		if errors.Is(err, resolver.ErrNoMatches) {
			s.Candidates = nil
		} else if err != nil {
			return nil, err
		} else {
			s.Resolved = res.Entity
			s.Candidates = res.Candidates
			if s.Resolved != nil {
				return graph.Continue(), nil
			}
		}
	}

	if len(s.Candidates) == 0 {
		return graph.Suspend(&models.Interrupt{
			Type:          models.InterruptContactClarification,
			OriginalQuery: s.Name,
			AllowSkip:     true,
		}), nil
	}

	res, err := resolver.Disambiguate(s.Candidates, models.InterruptContactDisambiguation, s.Name)
	if err != nil {
		return nil, err
	}
	if res.Interrupt != nil {
		return graph.Suspend(res.Interrupt), nil
	}
	s.Resolved = res.Entity
	return graph.Continue(), nil
}

// cacheResult records the resolution for the session.
func (d *Deps) cacheResult(_ context.Context, s *State) (*graph.Result, error) {
	if s.Resolved != nil {
		d.Resolver.CacheResult(s.Name, *s.Resolved)
	}
	return graph.Continue(), nil
}

// createEntity publishes the resolved contact onto the entity channel.
func (d *Deps) createEntity(_ context.Context, s *State) (*graph.Result, error) {
	if s.Resolved != nil {
		s.StoreEntity(*s.Resolved)
	}
	return graph.Continue(), nil
}

// formatResponse writes the final per-domain response.
func (d *Deps) formatResponse(_ context.Context, s *State) (*graph.Result, error) {
	switch {
	case s.Error != "":
		s.Response = "Error: " + s.Error
	case s.SkippedRef:
		s.Response = fmt.Sprintf("Could not find %q; continuing without them.", s.Name)
	case s.Resolved != nil:
		s.Response = fmt.Sprintf("Found %s", s.Resolved.Name)
		if s.Resolved.Company != "" {
			s.Response += " (" + s.Resolved.Company + ")"
		}
		s.Response += "."
	default:
		s.Response = fmt.Sprintf("Could not find %q.", s.Name)
	}
	return graph.Continue(), nil
}
