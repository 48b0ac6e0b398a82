// Package similarity implements the cognitive memory engine's weighted
// multi-factor similarity calculator (C4): keyword Jaccard, tag Jaccard,
// semantic-vector cosine, category match, and exponential temporal decay,
// combined into one composite score per spec.md §4.4. It is grounded on
// the teacher's pkg/intelligence/dedup.go (CosineSimilarity, vector
// normalization) generalized from a single duplicate-detection factor to
// a five-factor weighted sum, plus pkg/intelligence/ebbinghaus.go's
// exponential-decay shape reused here for temporal proximity instead of
// memory-strength decay.
package similarity

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Weights holds the five factor weights. They are expected to sum to 1.0
// and each to be finite and non-negative; New does not check this, and
// config.Validate checks only the search strategy weights, not these.
type Weights struct {
	Keyword  float64
	Tag      float64
	Content  float64
	Category float64
	Temporal float64
}

// DefaultWeights returns the spec's default factor weights.
func DefaultWeights() Weights {
	return Weights{
		Keyword:  0.30,
		Tag:      0.25,
		Content:  0.20,
		Category: 0.15,
		Temporal: 0.10,
	}
}

// DefaultHalfLife is the default temporal-proximity half-life (~11.5
// minutes), from which the decay constant lambda is derived.
const DefaultHalfLife = 11*time.Minute + 30*time.Second

// Input is one memory's similarity-relevant facets.
type Input struct {
	ID       int64
	Keywords []string
	Tags      []string
	Category  string
	Vector    []float64 // semantic-sector embedding; nil if unavailable
	HasVector bool
	Occurred  time.Time
}

// Factors is the per-factor breakdown behind one composite score, used
// for findSimilar's optional human-readable explanation.
type Factors struct {
	Keyword  float64
	Tag      float64
	Content  float64
	Category float64
	Temporal float64
}

// Calculator computes composite and per-factor similarity between
// memories. It is safe for concurrent use; all state is read-only after
// construction.
type Calculator struct {
	weights Weights
	lambda  float64 // decay constant for temporal proximity, per second
}

// New constructs a Calculator. halfLife <= 0 selects DefaultHalfLife.
func New(weights Weights, halfLife time.Duration) *Calculator {
	if halfLife <= 0 {
		halfLife = DefaultHalfLife
	}
	lambda := math.Ln2 / halfLife.Seconds()
	return &Calculator{weights: weights, lambda: lambda}
}

// Composite computes the weighted composite similarity between a and b,
// in [0,1]. Identical ids always return 1.0. Missing inputs (no vector,
// empty category) contribute 0 to their factor rather than causing
// failure.
func (c *Calculator) Composite(a, b Input) float64 {
	if a.ID == b.ID {
		return 1.0
	}
	f := c.Breakdown(a, b)
	return c.weights.Keyword*f.Keyword +
		c.weights.Tag*f.Tag +
		c.weights.Content*f.Content +
		c.weights.Category*f.Category +
		c.weights.Temporal*f.Temporal
}

// Breakdown computes the raw per-factor scores (unweighted) between a
// and b, for findSimilar's includeExplanation path.
func (c *Calculator) Breakdown(a, b Input) Factors {
	return Factors{
		Keyword:  jaccard(a.Keywords, b.Keywords),
		Tag:      jaccard(a.Tags, b.Tags),
		Content:  cosineOrZero(a.Vector, a.HasVector, b.Vector, b.HasVector),
		Category: categoryMatch(a.Category, b.Category),
		Temporal: c.temporalProximity(a.Occurred, b.Occurred),
	}
}

// Explain renders a short human-readable description of a Factors
// breakdown, for findSimilar(includeExplanation=true).
func Explain(f Factors) string {
	return fmt.Sprintf("keyword=%.0f%%, tag=%.0f%%, content=%.0f%%, category=%.0f%%, temporal=%.0f%%",
		f.Keyword*100, f.Tag*100, f.Content*100, f.Category*100, f.Temporal*100)
}

func (c *Calculator) temporalProximity(a, b time.Time) float64 {
	if a.IsZero() || b.IsZero() {
		return 0
	}
	delta := a.Sub(b)
	if delta < 0 {
		delta = -delta
	}
	return math.Exp(-c.lambda * delta.Seconds())
}

func categoryMatch(a, b string) float64 {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" || b == "" {
		return 0
	}
	if strings.EqualFold(a, b) {
		return 1
	}
	return 0
}

// jaccard computes the Jaccard index of two string sets after
// lower-casing and deduplication. Two empty sets yield 0, matching the
// spec's "missing inputs contribute 0" rule.
func jaccard(a, b []string) float64 {
	sa := toSet(a)
	sb := toSet(b)
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}
	intersection := 0
	for k := range sa {
		if sb[k] {
			intersection++
		}
	}
	union := len(sa) + len(sb) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		it = strings.ToLower(strings.TrimSpace(it))
		if it != "" {
			set[it] = true
		}
	}
	return set
}

func cosineOrZero(a []float64, hasA bool, b []float64, hasB bool) float64 {
	if !hasA || !hasB || len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	return Cosine(a, b)
}

// Cosine computes cosine similarity between two equal-length vectors,
// clamped to [0,1] (embeddings are not guaranteed non-negative, but the
// engine treats similarity as a [0,1] score per spec.md §4.1).
func Cosine(a, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		sim = 0
	}
	if sim > 1 {
		sim = 1
	}
	return sim
}

// Ranked is one findSimilar result.
type Ranked struct {
	ID         int64
	Score      float64
	Factors    Factors
	Explained  string
}

// FindSimilar computes composite similarity between target and every
// candidate, filters to score >= minSimilarity, sorts descending by
// score with id ascending as a deterministic tiebreak, and returns at
// most limit results. Per-pair results are computed once per call
// (the caller is expected to invoke FindSimilar once per request, so no
// separate memoization cache is needed beyond this single pass).
func (c *Calculator) FindSimilar(target Input, candidates []Input, limit int, minSimilarity float64, includeExplanation bool) []Ranked {
	out := make([]Ranked, 0, len(candidates))
	for _, cand := range candidates {
		if cand.ID == target.ID {
			continue
		}
		factors := c.Breakdown(target, cand)
		score := c.weights.Keyword*factors.Keyword +
			c.weights.Tag*factors.Tag +
			c.weights.Content*factors.Content +
			c.weights.Category*factors.Category +
			c.weights.Temporal*factors.Temporal
		if score < minSimilarity {
			continue
		}
		r := Ranked{ID: cand.ID, Score: score, Factors: factors}
		if includeExplanation {
			r.Explained = Explain(factors)
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
