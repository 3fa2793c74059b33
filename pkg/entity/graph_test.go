package entity

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/advisorkit/maestro/pkg/models"
)

func contactRef(id, name string) models.EntityRef {
	return models.EntityRef{Type: models.EntityContact, ID: id, Name: name}
}

func TestGraph_StoreAndGetLatest(t *testing.T) {
	g := NewGraph(10)
	g.Store(contactRef("C1", "John Smith"))

	latest, ok := g.GetLatest(models.EntityContact)
	require.True(t, ok)
	assert.Equal(t, "C1", latest.ID)
	assert.False(t, latest.CreatedAt.IsZero(), "Store must stamp CreatedAt")
}

func TestGraph_LatestAlwaysHeadOfHistory(t *testing.T) {
	g := NewGraph(10)
	for i := 0; i < 15; i++ {
		g.Store(contactRef(fmt.Sprintf("C%d", i), "Contact"))

		latest, ok := g.GetLatest(models.EntityContact)
		require.True(t, ok)
		hist := g.History(models.EntityContact, 0)
		require.NotEmpty(t, hist)
		assert.Equal(t, hist[0].ID, latest.ID)
		assert.LessOrEqual(t, len(hist), 10)
	}
}

func TestGraph_GetByIDRoundTrip(t *testing.T) {
	g := NewGraph(10)
	e := contactRef("C1", "John Smith")
	e.CreatedAt = time.Now()
	g.Store(e)

	got, ok := g.GetByID(models.EntityContact, "C1")
	require.True(t, ok)
	assert.Equal(t, e.Name, got.Name)
	assert.Equal(t, e.ID, got.ID)
}

func TestGraph_UpdateInPlaceDoesNotDuplicate(t *testing.T) {
	g := NewGraph(10)
	g.Store(contactRef("C1", "John"))
	g.Store(contactRef("C2", "Jane"))
	g.Store(contactRef("C1", "John Smith"))

	hist := g.History(models.EntityContact, 0)
	assert.Len(t, hist, 2)

	got, ok := g.GetByID(models.EntityContact, "C1")
	require.True(t, ok)
	assert.Equal(t, "John Smith", got.Name)

	// The updated entity moves to the front.
	latest, _ := g.GetLatest(models.EntityContact)
	assert.Equal(t, "C1", latest.ID)
}

func TestGraph_EvictionRemovesFromIndex(t *testing.T) {
	g := NewGraph(3)
	for i := 0; i < 5; i++ {
		g.Store(contactRef(fmt.Sprintf("C%d", i), "X"))
	}

	// C0 and C1 evicted.
	_, ok := g.GetByID(models.EntityContact, "C0")
	assert.False(t, ok)
	_, ok = g.GetByID(models.EntityContact, "C1")
	assert.False(t, ok)
	_, ok = g.GetByID(models.EntityContact, "C4")
	assert.True(t, ok)
	assert.Len(t, g.History(models.EntityContact, 0), 3)
}

func TestGraph_Search(t *testing.T) {
	g := NewGraph(10)
	g.Store(contactRef("C1", "John Smith"))
	g.Store(contactRef("C2", "Jane Doe"))

	found := g.Search(models.EntityContact, func(e models.EntityRef) bool {
		return e.Name == "Jane Doe"
	})
	require.Len(t, found, 1)
	assert.Equal(t, "C2", found[0].ID)
}

func TestMerge_RightWinsOnConflict(t *testing.T) {
	a := NewGraph(10)
	a.Store(models.EntityRef{Type: models.EntityContact, ID: "C1", Name: "Old Name", CreatedAt: time.Now().Add(-time.Hour)})

	b := NewGraph(10)
	b.Store(models.EntityRef{Type: models.EntityContact, ID: "C1", Name: "New Name", CreatedAt: time.Now()})

	merged := Merge(a, b)
	got, ok := merged.GetByID(models.EntityContact, "C1")
	require.True(t, ok)
	assert.Equal(t, "New Name", got.Name)
}

func TestMerge_TypesSurviveFromBothSides(t *testing.T) {
	a := NewGraph(10)
	a.Store(contactRef("C1", "John"))

	b := NewGraph(10)
	b.Store(models.EntityRef{Type: models.EntityTask, ID: "T1", Subject: "Follow up"})

	merged := Merge(a, b)
	_, ok := merged.GetLatest(models.EntityContact)
	assert.True(t, ok)
	_, ok = merged.GetLatest(models.EntityTask)
	assert.True(t, ok)
}

func TestMerge_MostRecentCreatedAtWinsLatest(t *testing.T) {
	now := time.Now()

	a := NewGraph(10)
	a.Store(models.EntityRef{Type: models.EntityAppointment, ID: "A1", Subject: "Newer", CreatedAt: now})

	b := NewGraph(10)
	b.Store(models.EntityRef{Type: models.EntityAppointment, ID: "A2", Subject: "Older", CreatedAt: now.Add(-time.Hour)})

	merged := Merge(a, b)
	latest, ok := merged.GetLatest(models.EntityAppointment)
	require.True(t, ok)
	assert.Equal(t, "A1", latest.ID)
}

func TestGraph_JSONRoundTrip(t *testing.T) {
	g := NewGraph(5)
	g.Store(contactRef("C1", "John Smith"))
	g.Store(models.EntityRef{Type: models.EntityAppointment, ID: "A1", Subject: "Planning"})

	data, err := json.Marshal(g)
	require.NoError(t, err)

	restored := NewGraph(5)
	require.NoError(t, json.Unmarshal(data, restored))

	// Referencing a stored entity after restore yields the same snapshot.
	got, ok := restored.GetByID(models.EntityAppointment, "A1")
	require.True(t, ok)
	assert.Equal(t, "Planning", got.Subject)

	contact, ok := restored.GetByID(models.EntityContact, "C1")
	require.True(t, ok)
	assert.Equal(t, "John Smith", contact.Name)
}
