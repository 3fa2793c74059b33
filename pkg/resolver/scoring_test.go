package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/advisorkit/maestro/pkg/memory"
	"github.com/advisorkit/maestro/pkg/models"
)

func TestNameSimilarity_Boundaries(t *testing.T) {
	// Exact match.
	assert.Equal(t, 1.0, NameSimilarity("John Smith", "John Smith"))
	assert.Equal(t, 1.0, NameSimilarity("john", "JOHN"))

	// Empty input.
	assert.Equal(t, 0.0, NameSimilarity("", "john"))
	assert.Equal(t, 0.0, NameSimilarity("john", ""))

	// Substring relationship.
	assert.GreaterOrEqual(t, NameSimilarity("john", "johnson"), 0.5)
	assert.Equal(t, 0.9, NameSimilarity("john", "johnson"))
	assert.Equal(t, 0.9, NameSimilarity("John Smith", "John"))
}

func TestNameSimilarity_TokenOverlap(t *testing.T) {
	// Shared token out of two.
	sim := NameSimilarity("John Smith", "John Doe")
	assert.InDelta(t, 0.5, sim, 0.01)

	// Partial token credit for 3+ char containment.
	sim = NameSimilarity("Rob Banks", "Robert Banks")
	assert.Greater(t, sim, 0.5)

	// No overlap at all.
	assert.Equal(t, 0.0, NameSimilarity("Alice Jones", "Bob Wu"))
}

func TestScoreCandidates_Weights(t *testing.T) {
	candidates := []models.EntityRef{
		{Type: models.EntityContact, ID: "C1", Name: "John Smith", Company: "Acme"},
		{Type: models.EntityContact, ID: "C2", Name: "John Doe"},
	}

	scored := ScoreCandidates(candidates, ScoringContext{Query: "John Smith from acme"})
	byID := map[string]float64{}
	for _, s := range scored {
		byID[s.Entity.ID] = s.Score
	}

	// C1: name 0.9 substring (query contains the name... full containment)
	// plus company substring match.
	assert.Greater(t, byID["C1"], byID["C2"])
	assert.GreaterOrEqual(t, byID["C1"], 30.0+0.9*40.0-0.01)
}

func TestScoreCandidates_MemoryBonus(t *testing.T) {
	candidates := []models.EntityRef{
		{Type: models.EntityContact, ID: "C1", Name: "John Smith"},
		{Type: models.EntityContact, ID: "C2", Name: "John Smythe"},
	}

	mem := []memory.Memory{{Text: "Scheduled a call with John Smith last week"}}
	scored := ScoreCandidates(candidates, ScoringContext{Query: "John", MemoryContext: mem})

	byID := map[string]float64{}
	for _, s := range scored {
		byID[s.Entity.ID] = s.Score
	}
	assert.InDelta(t, 30.0, byID["C1"]-byID["C2"], 0.01)
}

func TestDisambiguate_SingleCandidate(t *testing.T) {
	res, err := Disambiguate([]models.ScoredCandidate{
		{Entity: models.EntityRef{ID: "C1", Name: "John"}, Score: 40},
	}, models.InterruptContactDisambiguation, "john")
	assert.NoError(t, err)
	assert.NotNil(t, res.Entity)
	assert.Equal(t, "C1", res.Entity.ID)
}

func TestDisambiguate_NoCandidates(t *testing.T) {
	_, err := Disambiguate(nil, models.InterruptContactDisambiguation, "zzzz")
	assert.ErrorIs(t, err, ErrNoMatches)
}

func TestDisambiguate_ClearWinnerAutoPicks(t *testing.T) {
	// Top more than twice the second: auto-pick, no interrupt.
	res, err := Disambiguate([]models.ScoredCandidate{
		{Entity: models.EntityRef{ID: "C1"}, Score: 70},
		{Entity: models.EntityRef{ID: "C2"}, Score: 30},
	}, models.InterruptContactDisambiguation, "john")
	assert.NoError(t, err)
	assert.Nil(t, res.Interrupt)
	assert.Equal(t, "C1", res.Entity.ID)
}

func TestDisambiguate_StrongAbsoluteScoreAutoPicks(t *testing.T) {
	// top >= 80 and second < 50.
	res, err := Disambiguate([]models.ScoredCandidate{
		{Entity: models.EntityRef{ID: "C1"}, Score: 85},
		{Entity: models.EntityRef{ID: "C2"}, Score: 45},
	}, models.InterruptContactDisambiguation, "john")
	assert.NoError(t, err)
	assert.Nil(t, res.Interrupt)
	assert.Equal(t, "C1", res.Entity.ID)
}

func TestDisambiguate_AmbiguousSuspends(t *testing.T) {
	res, err := Disambiguate([]models.ScoredCandidate{
		{Entity: models.EntityRef{ID: "C1"}, Score: 60},
		{Entity: models.EntityRef{ID: "C2"}, Score: 55},
	}, models.InterruptContactDisambiguation, "john")
	assert.NoError(t, err)
	assert.Nil(t, res.Entity)
	assert.NotNil(t, res.Interrupt)
	assert.Equal(t, models.InterruptContactDisambiguation, res.Interrupt.Type)
	assert.Len(t, res.Interrupt.Candidates, 2)
	assert.Equal(t, "john", res.Interrupt.OriginalQuery)
}

func TestDisambiguate_TopFiveOnly(t *testing.T) {
	var candidates []models.ScoredCandidate
	for i := 0; i < 8; i++ {
		candidates = append(candidates, models.ScoredCandidate{
			Entity: models.EntityRef{ID: string(rune('A' + i))},
			Score:  50 + float64(i),
		})
	}
	res, err := Disambiguate(candidates, models.InterruptContactDisambiguation, "j")
	assert.NoError(t, err)
	assert.NotNil(t, res.Interrupt)
	assert.Len(t, res.Interrupt.Candidates, 5)
	// Sorted best-first.
	assert.Equal(t, "H", res.Interrupt.Candidates[0].Entity.ID)
}
