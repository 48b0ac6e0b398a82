package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cogmem/engine/pkg/memory"
	"github.com/cogmem/engine/pkg/memstore"
	"github.com/cogmem/engine/pkg/model"
)

func TestSearchRequiresCriteria(t *testing.T) {
	eng := newTestEngine(t)
	_, err := eng.Search(context.Background(), memory.SearchQuery{UserID: "gail"})
	assert.Error(t, err)
}

func TestSearchByTextFindsCreatedMemory(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	mem, err := eng.Create(ctx, memory.CreateInput{
		UserID:  "gail",
		Content: "Gail needs to renew her passport before the trip to Japan.",
		Sector:  model.SectorEpisodic,
	})
	require.NoError(t, err)

	resp, err := eng.Search(ctx, memory.SearchQuery{
		UserID:  "gail",
		Text:    "passport renew",
		HasText: true,
		Limit:   5,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)

	var found bool
	for _, r := range resp.Results {
		if r.Memory.ID == mem.ID {
			found = true
		}
	}
	assert.True(t, found)
}

func TestSearchByMetadataFiltersByTag(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Create(ctx, memory.CreateInput{
		UserID:  "heidi",
		Content: "Heidi's favorite color is teal, she mentioned it twice this week.",
		Sector:  model.SectorEpisodic,
		Tags:    []string{"favorites"},
	})
	require.NoError(t, err)

	resp, err := eng.Search(ctx, memory.SearchQuery{
		UserID: "heidi",
		Metadata: &memstore.MetadataFilter{
			Tags: []string{"favorites"},
		},
		HasMetadata: true,
		Limit:       5,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Results)
}
