package resolver

import (
	"context"
	"fmt"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/advisorkit/maestro/pkg/bsa"
	"github.com/advisorkit/maestro/pkg/memory"
	"github.com/advisorkit/maestro/pkg/models"
)

// ContactResolver resolves contact references against the CRM.
type ContactResolver struct {
	gateway bsa.Gateway
	opts    Options
	cache   *expirable.LRU[string, models.EntityRef]
}

// NewContactResolver creates a resolver over gateway with its own cache.
func NewContactResolver(gateway bsa.Gateway, opts Options) *ContactResolver {
	opts.applyDefaults()
	return &ContactResolver{
		gateway: gateway,
		opts:    opts,
		cache:   newCache(opts),
	}
}

func (r *ContactResolver) search(ctx context.Context, query string, limit int) ([]models.EntityRef, error) {
	contacts, err := r.gateway.SearchContacts(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("contact search failed: %w", err)
	}
	out := make([]models.EntityRef, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, c.EntityRef())
	}
	return out, nil
}

// Resolve turns a name reference into a contact, consulting the cache
// first. A multi-way tie yields a disambiguation interrupt; zero candidates
// yield ErrNoMatches with the resolution carrying fuzzy suggestions.
func (r *ContactResolver) Resolve(ctx context.Context, query string, mem []memory.Memory) (*Resolution, error) {
	key := normalizeQuery(query)
	if cached, ok := r.cache.Get(key); ok {
		e := cached
		return &Resolution{Entity: &e}, nil
	}

	candidates, err := searchWithFallback(ctx, r, query, r.opts)
	if err != nil {
		return nil, err
	}

	scored := ScoreCandidates(candidates, ScoringContext{Query: query, MemoryContext: mem})
	res, err := Disambiguate(scored, models.InterruptContactDisambiguation, query)
	if err != nil {
		return nil, err
	}

	if res.Entity != nil {
		r.cache.Add(key, *res.Entity)
	}
	return res, nil
}

// ResolveByID fetches a specific contact, used on disambiguation resume.
func (r *ContactResolver) ResolveByID(ctx context.Context, id string) (*models.EntityRef, error) {
	contact, err := r.gateway.GetContact(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("contact lookup failed: %w", err)
	}
	e := contact.EntityRef()
	return &e, nil
}

// CacheResult records a resolved contact under the original query, used
// after clarification resumes.
func (r *ContactResolver) CacheResult(query string, e models.EntityRef) {
	r.cache.Add(normalizeQuery(query), e)
}
