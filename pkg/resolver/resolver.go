// Package resolver turns free-text person references into CRM contact and
// user records, with scored ranking and disambiguation suspensions.
package resolver

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/advisorkit/maestro/pkg/models"
)

// ErrNoMatches indicates the search produced zero candidates.
var ErrNoMatches = errors.New("resolver: no matches")

// Cache defaults.
const (
	DefaultCacheSize = 50
	DefaultCacheTTL  = time.Hour
	// fuzzyPrefixLen is how much of the query the prefix fallback keeps.
	fuzzyPrefixLen = 4
)

// Options tunes a resolver instance.
type Options struct {
	SearchLimit    int
	FuzzyThreshold float64
	CacheSize      int
	CacheTTL       time.Duration
}

func (o *Options) applyDefaults() {
	if o.SearchLimit <= 0 {
		o.SearchLimit = 10
	}
	if o.FuzzyThreshold <= 0 {
		o.FuzzyThreshold = 0.3
	}
	if o.CacheSize <= 0 {
		o.CacheSize = DefaultCacheSize
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = DefaultCacheTTL
	}
}

// Resolution is the outcome of a resolve call: either a picked entity or a
// disambiguation suspension.
type Resolution struct {
	Entity    *models.EntityRef
	Interrupt *models.Interrupt
	// Candidates holds the scored set behind the decision, for suggestions.
	Candidates []models.ScoredCandidate
}

// Disambiguate applies the auto-pick rule to scored candidates:
//   - one candidate: pick it
//   - zero: ErrNoMatches
//   - top score more than twice the second, or top >= 80 with second < 50:
//     pick the top
//   - otherwise suspend with the top five candidates.
func Disambiguate(candidates []models.ScoredCandidate, interruptType models.InterruptType, originalQuery string) (*Resolution, error) {
	switch len(candidates) {
	case 0:
		return nil, ErrNoMatches
	case 1:
		e := candidates[0].Entity
		return &Resolution{Entity: &e, Candidates: candidates}, nil
	}

	sorted := make([]models.ScoredCandidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	top, second := sorted[0], sorted[1]
	if top.Score > second.Score*2 || (top.Score >= 80 && second.Score < 50) {
		e := top.Entity
		return &Resolution{Entity: &e, Candidates: sorted}, nil
	}

	limit := 5
	if len(sorted) < limit {
		limit = len(sorted)
	}
	return &Resolution{
		Interrupt: &models.Interrupt{
			Type:          interruptType,
			Candidates:    sorted[:limit],
			OriginalQuery: originalQuery,
		},
		Candidates: sorted,
	}, nil
}

// normalizeQuery is the cache key transform.
func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// newCache builds the session-scoped result cache.
func newCache(opts Options) *expirable.LRU[string, models.EntityRef] {
	return expirable.NewLRU[string, models.EntityRef](opts.CacheSize, nil, opts.CacheTTL)
}

// selfReference reports whether the query refers to the bound user.
func selfReference(q string) bool {
	switch strings.ToLower(strings.TrimSpace(q)) {
	case "me", "myself", "i":
		return true
	}
	return false
}

// searcher abstracts the exact + fuzzy candidate search shared by the
// contact and user resolvers.
type searcher interface {
	search(ctx context.Context, query string, limit int) ([]models.EntityRef, error)
}

// searchWithFallback issues the exact search and, when it comes back empty,
// a prefix search filtered by name similarity.
func searchWithFallback(ctx context.Context, s searcher, query string, opts Options) ([]models.EntityRef, error) {
	exact, err := s.search(ctx, query, opts.SearchLimit)
	if err != nil {
		return nil, err
	}
	if len(exact) > 0 {
		return exact, nil
	}

	prefix := query
	if len(prefix) > fuzzyPrefixLen {
		prefix = prefix[:fuzzyPrefixLen]
	}
	fuzzy, err := s.search(ctx, prefix, opts.SearchLimit)
	if err != nil {
		return nil, err
	}

	var filtered []models.EntityRef
	for _, c := range fuzzy {
		if NameSimilarity(c.Name, query) >= opts.FuzzyThreshold {
			filtered = append(filtered, c)
		}
	}
	return filtered, nil
}
