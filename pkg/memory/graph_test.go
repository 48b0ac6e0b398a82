package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cogmem/engine/pkg/memory"
	"github.com/cogmem/engine/pkg/model"
)

func TestGetGraphReturnsCenterNode(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	mem1, err := eng.Create(ctx, memory.CreateInput{
		UserID:  "erin",
		Content: "Erin prefers tea over coffee in the mornings before work.",
		Sector:  model.SectorEpisodic,
	})
	require.NoError(t, err)

	mem2, err := eng.Create(ctx, memory.CreateInput{
		UserID:  "erin",
		Content: "Erin prefers tea over coffee, especially green tea, every morning.",
		Sector:  model.SectorEpisodic,
	})
	require.NoError(t, err)

	graph, err := eng.GetGraph(ctx, memory.GraphQuery{
		UserID:         "erin",
		CenterMemoryID: mem1.ID,
		HasCenter:      true,
		Depth:          2,
	})
	require.NoError(t, err)
	require.NotEmpty(t, graph.Nodes)

	var ids []int64
	for _, n := range graph.Nodes {
		ids = append(ids, n.ID)
	}
	assert.Contains(t, ids, mem1.ID)
	_ = mem2
}

func TestDeleteLinksForMemoryClearsEdges(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	mem1, err := eng.Create(ctx, memory.CreateInput{
		UserID:  "frank",
		Content: "Frank is planning a budget trip to the mountains this fall.",
		Sector:  model.SectorEpisodic,
	})
	require.NoError(t, err)

	require.NoError(t, eng.DeleteLinksForMemory(ctx, mem1.ID))

	graph, err := eng.GetGraph(ctx, memory.GraphQuery{
		UserID:         "frank",
		CenterMemoryID: mem1.ID,
		HasCenter:      true,
		Depth:          1,
	})
	require.NoError(t, err)
	assert.Empty(t, graph.Edges)
}
