package memory_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cogmem/engine/pkg/memory"
	"github.com/cogmem/engine/pkg/model"
)

func TestConsolidateGroupsSimilarEpisodicMemories(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := eng.Create(ctx, memory.CreateInput{
			UserID:  "ivan",
			Content: fmt.Sprintf("Ivan went running along the river trail this morning, lap %d of his routine.", i),
			Sector:  model.SectorEpisodic,
		})
		require.NoError(t, err)
	}

	report, err := eng.Consolidate(ctx, "ivan")
	require.NoError(t, err)
	require.NotEmpty(t, report.Clusters)

	cluster := report.Clusters[0]
	assert.Len(t, cluster.MemberIDs, 5)
	assert.NotEmpty(t, cluster.Topic)

	summary, err := eng.Retrieve(ctx, cluster.SummaryMemoryID, "ivan")
	require.NoError(t, err)
	assert.Equal(t, model.SectorSemantic, summary.PrimarySector)
}

func TestConsolidateSkipsWhenBelowMinClusterSize(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Create(ctx, memory.CreateInput{
		UserID:  "judy",
		Content: "Judy tried a new bakery downtown and loved the sourdough bread.",
		Sector:  model.SectorEpisodic,
	})
	require.NoError(t, err)

	report, err := eng.Consolidate(ctx, "judy")
	require.NoError(t, err)
	assert.Empty(t, report.Clusters)
}
