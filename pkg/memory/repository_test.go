package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cogmem/engine/pkg/memory"
	"github.com/cogmem/engine/pkg/model"
)

func TestCreateAndRetrieve(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	mem, err := eng.Create(ctx, memory.CreateInput{
		UserID:  "alice",
		Content: "Alice prefers dark mode across every application she uses daily.",
		Sector:  model.SectorEpisodic,
		Tags:    []string{"preference"},
	})
	require.NoError(t, err)
	assert.NotZero(t, mem.ID)
	assert.Greater(t, mem.Salience, 0.0)

	got, err := eng.Retrieve(ctx, mem.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, mem.Content, got.Content)
}

func TestCreateRejectsShortContent(t *testing.T) {
	eng := newTestEngine(t)
	_, err := eng.Create(context.Background(), memory.CreateInput{
		UserID:  "alice",
		Content: "short",
		Sector:  model.SectorEpisodic,
	})
	assert.Error(t, err)
}

func TestCreateRejectsForeignUser(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	mem, err := eng.Create(ctx, memory.CreateInput{
		UserID:  "alice",
		Content: "Alice keeps a detailed journal of her morning runs and diet.",
		Sector:  model.SectorEpisodic,
	})
	require.NoError(t, err)

	_, err = eng.Retrieve(ctx, mem.ID, "bob")
	assert.Error(t, err)
}

func TestUpdateRegeneratesEmbeddingsOnContentChange(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	mem, err := eng.Create(ctx, memory.CreateInput{
		UserID:  "alice",
		Content: "Alice's passport needs renewal before her trip next spring.",
		Sector:  model.SectorEpisodic,
	})
	require.NoError(t, err)

	newContent := "Alice's passport was renewed early this year without issue."
	res, err := eng.Update(ctx, memory.UpdateInput{
		MemoryID: mem.ID,
		UserID:   "alice",
		Content:  &newContent,
	})
	require.NoError(t, err)
	assert.True(t, res.EmbeddingsRegenerated)
	assert.Equal(t, newContent, res.Memory.Content)
}

func TestDeleteSoftAndHard(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	mem, err := eng.Create(ctx, memory.CreateInput{
		UserID:  "alice",
		Content: "Alice is allergic to peanuts and shellfish, noted by her doctor.",
		Sector:  model.SectorEpisodic,
	})
	require.NoError(t, err)

	require.NoError(t, eng.Delete(ctx, mem.ID, "alice", true))
	softDeleted, err := eng.Retrieve(ctx, mem.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, 0.0, softDeleted.Strength)

	require.NoError(t, eng.Delete(ctx, mem.ID, "alice", false))
	_, err = eng.Retrieve(ctx, mem.ID, "alice")
	assert.Error(t, err)
}

func TestBatchCreateAndRetrieve(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	items := []memory.CreateInput{
		{Content: "First standalone memory about a weekend hiking trip.", Sector: model.SectorEpisodic},
		{Content: "Second standalone memory about a favorite recipe for soup.", Sector: model.SectorEpisodic},
	}
	results, err := eng.BatchCreate(ctx, "carol", "session-1", items)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.NoError(t, r.Err)
		assert.NotNil(t, r.Memory)
	}

	ids := []int64{results[0].Memory.ID, results[1].Memory.ID, 999999}
	batch, err := eng.BatchRetrieve(ctx, "carol", ids)
	require.NoError(t, err)
	assert.Len(t, batch.Found, 2)
	assert.Len(t, batch.NotFound, 1)
}

func TestGetStatsReflectsCreatedMemories(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Create(ctx, memory.CreateInput{
		UserID:  "dave",
		Content: "Dave wants a reminder to water the office plants every Friday.",
		Sector:  model.SectorEpisodic,
	})
	require.NoError(t, err)

	stats, err := eng.GetStats(ctx, "dave")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.CountsBySector[model.SectorEpisodic])
}
