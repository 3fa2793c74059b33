package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/advisorkit/maestro/pkg/bsa"
)

func newStubWithContacts(contacts ...bsa.Contact) *bsa.StubGateway {
	stub := bsa.NewStubGateway()
	stub.Contacts = contacts
	return stub
}

func TestContactResolver_SingleMatch(t *testing.T) {
	stub := newStubWithContacts(bsa.Contact{ID: "C1", Name: "John Smith"})
	r := NewContactResolver(stub, Options{})

	res, err := r.Resolve(context.Background(), "John Smith", nil)
	require.NoError(t, err)
	require.NotNil(t, res.Entity)
	assert.Equal(t, "C1", res.Entity.ID)
}

func TestContactResolver_NoMatches(t *testing.T) {
	stub := newStubWithContacts(bsa.Contact{ID: "C1", Name: "John Smith"})
	r := NewContactResolver(stub, Options{})

	_, err := r.Resolve(context.Background(), "Zzzz", nil)
	assert.ErrorIs(t, err, ErrNoMatches)
}

func TestContactResolver_AmbiguousYieldsInterrupt(t *testing.T) {
	stub := newStubWithContacts(
		bsa.Contact{ID: "C1", Name: "John Smith"},
		bsa.Contact{ID: "C2", Name: "John Smythe"},
	)
	r := NewContactResolver(stub, Options{})

	res, err := r.Resolve(context.Background(), "John", nil)
	require.NoError(t, err)
	assert.Nil(t, res.Entity)
	require.NotNil(t, res.Interrupt)
	assert.GreaterOrEqual(t, len(res.Interrupt.Candidates), 2)
}

func TestContactResolver_CacheHitSkipsSearch(t *testing.T) {
	stub := newStubWithContacts(bsa.Contact{ID: "C1", Name: "John Smith"})
	r := NewContactResolver(stub, Options{})

	_, err := r.Resolve(context.Background(), "John Smith", nil)
	require.NoError(t, err)
	searches := stub.CallCount("search_contacts")

	res, err := r.Resolve(context.Background(), "  john   smith ", nil)
	require.NoError(t, err)
	require.NotNil(t, res.Entity)
	assert.Equal(t, "C1", res.Entity.ID)
	assert.Equal(t, searches, stub.CallCount("search_contacts"), "cached query must not search again")
}

func TestContactResolver_FuzzyFallback(t *testing.T) {
	// Exact search for "Jonathan Smith" misses, but the 4-char prefix
	// "Jona" matches and similarity clears the threshold.
	stub := newStubWithContacts(bsa.Contact{ID: "C1", Name: "Jonathan Smythe"})
	r := NewContactResolver(stub, Options{})

	res, err := r.Resolve(context.Background(), "Jonathan Smith", nil)
	require.NoError(t, err)
	require.NotNil(t, res.Entity)
	assert.Equal(t, "C1", res.Entity.ID)
}

func TestUserResolver_SelfReference(t *testing.T) {
	stub := bsa.NewStubGateway()
	stub.Me = bsa.User{ID: "U-7", Name: "Pat Advisor"}
	r := NewUserResolver(stub, Options{})

	for _, ref := range []string{"me", "Myself", "I"} {
		res, err := r.Resolve(context.Background(), ref, nil)
		require.NoError(t, err)
		require.NotNil(t, res.Entity, ref)
		assert.Equal(t, "U-7", res.Entity.ID)
	}
	assert.Equal(t, 0, stub.CallCount("search_users"))
}

func TestUserResolver_Search(t *testing.T) {
	stub := bsa.NewStubGateway()
	stub.Users = []bsa.User{{ID: "U1", Name: "Dana Assistant"}}
	r := NewUserResolver(stub, Options{})

	res, err := r.Resolve(context.Background(), "Dana Assistant", nil)
	require.NoError(t, err)
	require.NotNil(t, res.Entity)
	assert.Equal(t, "U1", res.Entity.ID)
}

func TestContactResolver_ResolveByID(t *testing.T) {
	stub := newStubWithContacts(bsa.Contact{ID: "C9", Name: "Jane Doe", Company: "Acme"})
	r := NewContactResolver(stub, Options{})

	e, err := r.ResolveByID(context.Background(), "C9")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", e.Name)
	assert.Equal(t, "Acme", e.Company)
}
