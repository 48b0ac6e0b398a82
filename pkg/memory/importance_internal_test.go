package memory

import "testing"

func TestImportanceScorerRangeAndOrdering(t *testing.T) {
	s := newImportanceScorer()

	plain := s.Score("We went to the store yesterday afternoon.")
	urgent := s.Score("URGENT: remember this critical password is confidential, never share it!")

	if plain < 0 || plain > 1 {
		t.Fatalf("plain score out of range: %v", plain)
	}
	if urgent < 0 || urgent > 1 {
		t.Fatalf("urgent score out of range: %v", urgent)
	}
	if urgent <= plain {
		t.Fatalf("expected urgent content to score higher than plain content: urgent=%v plain=%v", urgent, plain)
	}
}

func TestContainsAnyScoreCaps(t *testing.T) {
	score := containsAnyScore("new first never unprecedented unique", noveltyIndicators, 0.5)
	if score > 1.0 {
		t.Fatalf("expected score capped at 1.0, got %v", score)
	}
}
