package resolver

import (
	"strings"

	"github.com/advisorkit/maestro/pkg/memory"
	"github.com/advisorkit/maestro/pkg/models"
)

// Composite score weights (out of 100).
const (
	weightName   = 40.0
	weightRole   = 30.0
	weightRecent = 30.0
)

// NameSimilarity scores two names in [0, 1]:
//   - exact match (case-insensitive): 1.0
//   - one is a substring of the other: 0.9
//   - otherwise token overlap, where a partial token match (one token
//     containing the other, 3+ chars) earns half credit.
func NameSimilarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 0.9
	}

	tokensA := strings.Fields(a)
	tokensB := strings.Fields(b)
	max := len(tokensA)
	if len(tokensB) > max {
		max = len(tokensB)
	}
	if max == 0 {
		return 0
	}

	var credit float64
	for _, ta := range tokensA {
		best := 0.0
		for _, tb := range tokensB {
			switch {
			case ta == tb:
				best = 1
			case best < 0.5 && len(ta) >= 3 && len(tb) >= 3 &&
				(strings.Contains(ta, tb) || strings.Contains(tb, ta)):
				best = 0.5
			}
			if best == 1 {
				break
			}
		}
		credit += best
	}
	return credit / float64(max)
}

// ScoringContext carries the query and session memory used for scoring.
type ScoringContext struct {
	Query         string
	MemoryContext []memory.Memory
}

// ScoreCandidates ranks candidates by the composite score:
// 40% name similarity, 30% role/company/email-domain substring match,
// 30% recent-interaction bonus from memory.
func ScoreCandidates(candidates []models.EntityRef, sctx ScoringContext) []models.ScoredCandidate {
	query := strings.ToLower(sctx.Query)
	out := make([]models.ScoredCandidate, 0, len(candidates))

	for _, c := range candidates {
		score := weightName * NameSimilarity(c.Name, sctx.Query)

		if roleMatch(c, query) {
			score += weightRole
		}
		if recentInteraction(c, sctx.MemoryContext) {
			score += weightRecent
		}

		out = append(out, models.ScoredCandidate{Entity: c, Score: score})
	}
	return out
}

// roleMatch reports whether the query mentions the candidate's title,
// company, or email domain.
func roleMatch(c models.EntityRef, query string) bool {
	if c.Title != "" && strings.Contains(query, strings.ToLower(c.Title)) {
		return true
	}
	if c.Company != "" && strings.Contains(query, strings.ToLower(c.Company)) {
		return true
	}
	if c.Email != "" {
		if at := strings.IndexByte(c.Email, '@'); at >= 0 && at+1 < len(c.Email) {
			domain := strings.ToLower(c.Email[at+1:])
			if strings.Contains(query, domain) {
				return true
			}
		}
	}
	return false
}

// recentInteraction reports whether the candidate appears in recalled
// session memory.
func recentInteraction(c models.EntityRef, memories []memory.Memory) bool {
	if c.Name == "" {
		return false
	}
	name := strings.ToLower(c.Name)
	for _, m := range memories {
		if strings.Contains(strings.ToLower(m.Text), name) {
			return true
		}
	}
	return false
}
