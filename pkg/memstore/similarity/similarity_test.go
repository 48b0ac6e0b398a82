package similarity_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cogmem/engine/pkg/memstore/similarity"
)

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, similarity.Cosine([]float64{1, 0, 0}, []float64{1, 0, 0}), 1e-9)
	assert.InDelta(t, 0.0, similarity.Cosine([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.Equal(t, 0.0, similarity.Cosine(nil, []float64{1, 2}))
}

func TestCompositeIdenticalIDs(t *testing.T) {
	calc := similarity.New(similarity.DefaultWeights(), similarity.DefaultHalfLife)
	in := similarity.Input{ID: 7, Occurred: time.Now()}
	assert.Equal(t, 1.0, calc.Composite(in, in))
}

func TestCompositeDecaysWithTime(t *testing.T) {
	calc := similarity.New(similarity.DefaultWeights(), similarity.DefaultHalfLife)
	now := time.Now()
	a := similarity.Input{ID: 1, Keywords: []string{"alpha"}, Occurred: now}
	near := similarity.Input{ID: 2, Keywords: []string{"alpha"}, Occurred: now.Add(time.Minute)}
	far := similarity.Input{ID: 3, Keywords: []string{"alpha"}, Occurred: now.Add(48 * time.Hour)}

	scoreNear := calc.Composite(a, near)
	scoreFar := calc.Composite(a, far)
	assert.Greater(t, scoreNear, scoreFar)
}

func TestFindSimilarFiltersAndRanks(t *testing.T) {
	calc := similarity.New(similarity.DefaultWeights(), similarity.DefaultHalfLife)
	now := time.Now()
	target := similarity.Input{ID: 1, Keywords: []string{"budget", "travel"}, Tags: []string{"finance"}, Category: "money", Occurred: now}
	candidates := []similarity.Input{
		{ID: 2, Keywords: []string{"budget", "travel"}, Tags: []string{"finance"}, Category: "money", Occurred: now},
		{ID: 3, Keywords: []string{"unrelated"}, Category: "weather", Occurred: now.Add(-200 * time.Hour)},
	}

	ranked := calc.FindSimilar(target, candidates, 5, 0.2, true)
	require.NotEmpty(t, ranked)
	assert.Equal(t, int64(2), ranked[0].ID)
	assert.NotEmpty(t, ranked[0].Explained)
}

func TestJaccardViaBreakdown(t *testing.T) {
	calc := similarity.New(similarity.DefaultWeights(), similarity.DefaultHalfLife)
	a := similarity.Input{ID: 1, Keywords: []string{"a", "b"}, Occurred: time.Now()}
	b := similarity.Input{ID: 2, Keywords: []string{"a", "b"}, Occurred: time.Now()}
	factors := calc.Breakdown(a, b)
	assert.InDelta(t, 1.0, factors.Keyword, 1e-9)
}
