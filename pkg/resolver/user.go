package resolver

import (
	"context"
	"fmt"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/advisorkit/maestro/pkg/bsa"
	"github.com/advisorkit/maestro/pkg/memory"
	"github.com/advisorkit/maestro/pkg/models"
)

// UserResolver resolves internal user references, including the
// self-references "me", "myself", and "I".
type UserResolver struct {
	gateway bsa.Gateway
	opts    Options
	cache   *expirable.LRU[string, models.EntityRef]
}

// NewUserResolver creates a resolver over gateway with its own cache.
func NewUserResolver(gateway bsa.Gateway, opts Options) *UserResolver {
	opts.applyDefaults()
	return &UserResolver{
		gateway: gateway,
		opts:    opts,
		cache:   newCache(opts),
	}
}

func (r *UserResolver) search(ctx context.Context, query string, limit int) ([]models.EntityRef, error) {
	users, err := r.gateway.SearchUsers(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("user search failed: %w", err)
	}
	out := make([]models.EntityRef, 0, len(users))
	for _, u := range users {
		out = append(out, u.EntityRef())
	}
	return out, nil
}

// Resolve turns a reference into a user. Self-references short-circuit to
// the session's bound user.
func (r *UserResolver) Resolve(ctx context.Context, query string, mem []memory.Memory) (*Resolution, error) {
	if selfReference(query) {
		return r.ResolveMe(ctx)
	}

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
	res, err := Disambiguate(scored, models.InterruptUserDisambiguation, query)
	if err != nil {
		return nil, err
	}

	if res.Entity != nil {
		r.cache.Add(key, *res.Entity)
	}
	return res, nil
}

// ResolveMe returns the user bound to the session.
func (r *UserResolver) ResolveMe(ctx context.Context) (*Resolution, error) {
	user, err := r.gateway.GetCurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("current user lookup failed: %w", err)
	}
	e := user.EntityRef()
	return &Resolution{Entity: &e}, nil
}
