package coordinator

import (
	"sync"

	"github.com/advisorkit/maestro/pkg/bsa"
	"github.com/advisorkit/maestro/pkg/entity"
	"github.com/advisorkit/maestro/pkg/resolver"
)

// gatewayRef lets the session swap the underlying gateway between runs
// (each run carries its own credential binding) while the resolvers keep a
// stable handle.
type gatewayRef struct {
	mu sync.RWMutex
	gw bsa.Gateway
}

func (r *gatewayRef) set(gw bsa.Gateway) {
	r.mu.Lock()
	r.gw = gw
	r.mu.Unlock()
}

func (r *gatewayRef) get() bsa.Gateway {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gw
}

// session holds the per-thread state that survives between runs: the
// entity graph and the resolver caches. Single writer per run — the
// coordinator goroutine owning it.
type session struct {
	entities *entity.Graph
	contacts *resolver.ContactResolver
	users    *resolver.UserResolver
	gateway  *gatewayRef
}

// sessions is the in-process session registry. Entries are created on the
// first message of a thread and discarded when the thread ends.
type sessions struct {
	mu   sync.Mutex
	byID map[string]*session
}

func newSessions() *sessions {
	return &sessions{byID: make(map[string]*session)}
}

// get returns the session for a thread, creating it on first use.
func (s *sessions) get(threadID string, gw bsa.Gateway, opts resolver.Options, maxHistory int) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.byID[threadID]; ok {
		sess.gateway.set(gw)
		return sess
	}
	ref := &gatewayRef{gw: gw}
	delegate := &refGateway{ref: ref}
	sess := &session{
		entities: entity.NewGraph(maxHistory),
		contacts: resolver.NewContactResolver(delegate, opts),
		users:    resolver.NewUserResolver(delegate, opts),
		gateway:  ref,
	}
	s.byID[threadID] = sess
	return sess
}

// drop discards a thread's session state.
func (s *sessions) drop(threadID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, threadID)
}
