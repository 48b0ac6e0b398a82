package memory_test

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/cogmem/engine/pkg/config"
	"github.com/cogmem/engine/pkg/memory"
	"github.com/cogmem/engine/pkg/model"
	"github.com/cogmem/engine/pkg/store/sqlite"
)

const testDims = 8

// fakeEmbedder produces deterministic, content-derived vectors so that
// semantically similar strings land close together in cosine space
// without a real embedding model.
type fakeEmbedder struct{ dims int }

func (f *fakeEmbedder) Dimensions() int { return f.dims }
func (f *fakeEmbedder) Close() error    { return nil }

func (f *fakeEmbedder) Embed(ctx context.Context, text string, sector model.Sector) ([]float64, error) {
	vec := make([]float64, f.dims)
	for i, r := range text {
		vec[i%f.dims] += float64(r)
	}
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		norm = 1
	}
	for i := range vec {
		vec[i] /= norm
	}
	return vec, nil
}

func (f *fakeEmbedder) EmbedAllSectors(ctx context.Context, text string) (map[model.Sector][]float64, error) {
	out := make(map[model.Sector][]float64, len(model.Sectors))
	for _, s := range model.Sectors {
		v, _ := f.Embed(ctx, text, s)
		out[s] = v
	}
	return out, nil
}

// fakeSummarizer joins the cluster's contents with a topic prefix
// instead of calling out to a real language model.
type fakeSummarizer struct{}

func (fakeSummarizer) Close() error { return nil }
func (fakeSummarizer) Summarize(ctx context.Context, instruction string, contents []string, topic string) (string, error) {
	return fmt.Sprintf("summary of %q covering %d memories", topic, len(contents)), nil
}

func newTestEngine(t *testing.T) *memory.Engine {
	t.Helper()
	dir := t.TempDir()
	store, err := sqlite.Open(&sqlite.Config{Path: dir + "/test.db"})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	cfg := &config.Config{
		Store:         config.StoreConfig{Provider: "sqlite", EmbeddingDims: testDims},
		Search:        config.DefaultSearchConfig(),
		Consolidation: config.DefaultConsolidationConfig(),
	}

	eng, err := memory.New(store, &fakeEmbedder{dims: testDims}, fakeSummarizer{}, cfg, nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return eng
}
