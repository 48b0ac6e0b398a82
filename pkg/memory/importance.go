package memory

import (
	"math"
	"strings"
)

// importanceScorer computes a fallback salience/importance score for
// memories created without an explicit value, using the same rule-based
// heuristics (length, keyword, punctuation, indicator-word buckets) the
// teacher's LLM-aware evaluator used as its non-LLM path. This engine
// always runs the rule-based path: importance scoring here is a cheap,
// deterministic default, not a generation-quality feature worth an LLM
// round trip on every Create call.
type importanceScorer struct{}

func newImportanceScorer() *importanceScorer { return &importanceScorer{} }

// Score returns a value in [0, 1]; combines a handful of independent
// criteria (relevance/novelty/emotional/actionable/factual/personal),
// weighted the way the teacher's GetImportanceBreakdown enumerated them.
func (s *importanceScorer) Score(content string) float64 {
	lower := strings.ToLower(content)

	score := 0.0
	switch {
	case len(content) > 100:
		score += 0.1
	case len(content) > 50:
		score += 0.05
	}

	for _, kw := range importanceKeywords {
		if strings.Contains(lower, kw) {
			score += 0.1
		}
	}
	if strings.Contains(content, "?") {
		score += 0.05
	}
	if strings.Contains(content, "!") {
		score += 0.05
	}

	score += 0.3 * containsAnyScore(lower, relevanceIndicators, 0.25)
	score += 0.2 * containsAnyScore(lower, noveltyIndicators, 0.2)
	score += 0.15 * containsAnyScore(lower, emotionalIndicators, 0.1)
	score += 0.15 * containsAnyScore(lower, actionIndicators, 0.1)
	score += 0.1 * containsAnyScore(lower, factualIndicators, 0.15)
	score += 0.1 * containsAnyScore(lower, personalIndicators, 0.1)

	return math.Min(score, 1.0)
}

func containsAnyScore(lower string, indicators []string, perHit float64) float64 {
	score := 0.0
	for _, ind := range indicators {
		if strings.Contains(lower, ind) {
			score += perHit
		}
	}
	return math.Min(score, 1.0)
}

var importanceKeywords = []string{
	"important", "critical", "urgent", "remember", "note",
	"preference", "like", "dislike", "hate", "love",
	"password", "secret", "private", "confidential",
}

var relevanceIndicators = []string{"relevant", "related", "connected", "associated"}
var noveltyIndicators = []string{"new", "first", "never", "unprecedented", "unique"}
var emotionalIndicators = []string{
	"happy", "sad", "angry", "excited", "worried", "scared",
	"love", "hate", "fear", "joy", "sorrow", "anger",
}
var actionIndicators = []string{
	"do", "make", "create", "build", "fix", "solve",
	"implement", "execute", "perform", "complete",
}
var factualIndicators = []string{
	"fact", "data", "statistic", "research", "study",
	"evidence", "proof", "confirmed", "verified",
}
var personalIndicators = []string{
	"i ", "me ", "my ", "mine ", "myself",
	"personal", "private", "confidential",
}
