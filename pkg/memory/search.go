package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cogmem/engine/pkg/analytics"
	"github.com/cogmem/engine/pkg/cache"
	"github.com/cogmem/engine/pkg/engineerr"
	"github.com/cogmem/engine/pkg/memstore"
	"github.com/cogmem/engine/pkg/memstore/fulltext"
	"github.com/cogmem/engine/pkg/memstore/similarity"
	"github.com/cogmem/engine/pkg/model"
	"github.com/cogmem/engine/pkg/storelog"
)

// SearchQuery is the input to Search: any combination of the four
// strategy-selecting fields (Text, Embedding, Metadata, SimilarTo) plus
// the scalar filters and paging controls common to all of them.
type SearchQuery struct {
	UserID string

	Text     string
	HasText  bool
	Language string

	Embedding    []float64
	Sector       model.Sector
	HasEmbedding bool

	Metadata    *memstore.MetadataFilter
	HasMetadata bool

	SimilarTo    int64
	HasSimilarTo bool

	MinStrength float64
	MinSalience float64
	Limit       int
	Offset      int
}

// ScoredResult is one hydrated, composite-scored search hit.
type ScoredResult struct {
	Memory       *model.Memory
	Rank         int
	Composite    float64
	SubScores    map[string]float64
	Explanation  string
}

// SearchResponse is the full payload of Search.
type SearchResponse struct {
	Results   []ScoredResult
	Total     int
	Elapsed   time.Duration
	CacheHit  bool
}

type strategyResult struct {
	name    string
	scores  map[int64]float64
	matched map[int64][]string
}

// cachedSearch is the unit stored in the result cache: the ranked ids
// plus everything needed to reproduce identical SubScores/Explanation on
// a cache hit, so two calls against the same query shape return the same
// response body within one TTL (spec.md §8, invariant 6).
type cachedSearch struct {
	ids            []memstore.ScoredID
	subScoresByID  map[int64]map[string]float64
	matchedByID    map[int64][]string
	strategiesUsed []string
}

// cacheKey captures every field of SearchQuery except Limit/Offset, so
// successive pages of the same logical query share a cache entry (spec.md
// §4.7).
func cacheKey(q SearchQuery) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "u=%s|t=%v:%s:%s|e=%v:%s:%v|m=%v:%+v|s=%v:%d|ms=%.4f|msl=%.4f",
		q.UserID,
		q.HasText, q.Text, q.Language,
		q.HasEmbedding, q.Sector, q.Embedding,
		q.HasMetadata, q.Metadata,
		q.HasSimilarTo, q.SimilarTo,
		q.MinStrength, q.MinSalience)
	return sb.String()
}

// searchEngine bundles the stateful pieces a multi-request Search call
// needs: a bounded result cache and an analytics buffer, both guarded
// internally.
type searchEngine struct {
	mu       sync.Mutex
	resCache *cache.ResultCache[string, cachedSearch]
	analyt   *analytics.Buffer
	initOnce sync.Once
}

func (e *Engine) lazySearchState() *searchEngine {
	e.searchStateOnce.Do(func() {
		e.searchState = &searchEngine{
			resCache: cache.New[string, cachedSearch](e.searchCfg.CacheSize, time.Duration(e.searchCfg.CacheTTLSeconds)*time.Second),
			analyt:   analytics.NewBuffer(e.searchCfg.AnalyticsRetentionDays, e.searchCfg.AnalyticsEnabled),
		}
	})
	return e.searchState
}

// Search validates the query, determines applicable strategies (text →
// C3, embedding → C1, metadata → C2, similarTo → C4), runs them
// concurrently under a deadline, composes a weighted score, hydrates and
// filters the results, and records an analytics entry, per spec.md §4.7.
func (e *Engine) Search(ctx context.Context, q SearchQuery) (*SearchResponse, error) {
	const op = "Search.Search"
	start := time.Now()
	state := e.lazySearchState()

	if !q.HasText && !q.HasEmbedding && !q.HasMetadata && !q.HasSimilarTo {
		return nil, engineerr.New(op, engineerr.KindValidation, engineerr.ErrNoSearchCriteria, nil)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = e.searchCfg.DefaultLimit
	}
	if limit > e.searchCfg.MaxLimit {
		limit = e.searchCfg.MaxLimit
	}
	if q.Offset < 0 {
		return nil, engineerr.New(op, engineerr.KindValidation, nil, map[string]interface{}{"offset": q.Offset})
	}
	if q.HasMetadata {
		if q.Metadata == nil {
			return nil, engineerr.New(op, engineerr.KindValidation, engineerr.ErrNoSearchCriteria, map[string]interface{}{"field": "metadata"})
		}
		if err := q.Metadata.Validate(); err != nil {
			return nil, err
		}
	}

	key := cacheKey(q)
	var ids []memstore.ScoredID
	var strategiesUsed []string
	matchedByID := make(map[int64][]string)
	subScoresByID := make(map[int64]map[string]float64)
	cacheHit := false
	if cached, ok := state.resCache.Get(key); ok {
		ids = cached.ids
		subScoresByID = cached.subScoresByID
		matchedByID = cached.matchedByID
		strategiesUsed = cached.strategiesUsed
		cacheHit = true
	}

	compositeScores := make(map[int64]float64)
	weightSum := make(map[int64]float64)

	if !cacheHit {
		deadline := time.Duration(e.searchCfg.MaxExecutionTimeMs) * time.Millisecond
		execCtx, cancel := context.WithTimeout(ctx, deadline)
		defer cancel()

		grp, grpCtx := errgroup.WithContext(execCtx)
		results := make(chan strategyResult, 4)

		if q.HasText {
			strategiesUsed = append(strategiesUsed, "fulltext")
			grp.Go(func() error {
				results <- e.runFullText(grpCtx, q)
				return nil
			})
		}
		if q.HasEmbedding {
			strategiesUsed = append(strategiesUsed, "vector")
			grp.Go(func() error {
				results <- e.runVector(grpCtx, q)
				return nil
			})
		}
		if q.HasMetadata {
			strategiesUsed = append(strategiesUsed, "metadata")
			grp.Go(func() error {
				results <- e.runMetadata(grpCtx, q)
				return nil
			})
		}
		if q.HasSimilarTo {
			strategiesUsed = append(strategiesUsed, "similarity")
			grp.Go(func() error {
				results <- e.runSimilarTo(grpCtx, q)
				return nil
			})
		}

		done := make(chan struct{})
		go func() {
			_ = grp.Wait()
			close(results)
			close(done)
		}()

		select {
		case <-execCtx.Done():
			if execCtx.Err() == context.DeadlineExceeded {
				return nil, engineerr.New(op, engineerr.KindTimeout, execCtx.Err(), map[string]interface{}{"duration": time.Since(start)})
			}
		case <-done:
		}

		weights := map[string]float64{
			"fulltext":   e.searchCfg.WeightFullText,
			"vector":     e.searchCfg.WeightVector,
			"metadata":   e.searchCfg.WeightMetadata,
			"similarity": e.searchCfg.WeightSimilarity,
		}
		for r := range results {
			w := weights[r.name]
			for id, score := range r.scores {
				compositeScores[id] += w * score
				weightSum[id] += w
				if subScoresByID[id] == nil {
					subScoresByID[id] = make(map[string]float64)
				}
				subScoresByID[id][r.name] = score
			}
			for id, terms := range r.matched {
				matchedByID[id] = append(matchedByID[id], terms...)
			}
		}

		ids = make([]memstore.ScoredID, 0, len(compositeScores))
		for id, sum := range compositeScores {
			ws := weightSum[id]
			if ws <= 0 {
				continue
			}
			ids = append(ids, memstore.ScoredID{MemoryID: id, Score: sum / ws})
		}
		sort.Slice(ids, func(i, j int) bool {
			if ids[i].Score != ids[j].Score {
				return ids[i].Score > ids[j].Score
			}
			return ids[i].MemoryID < ids[j].MemoryID
		})
		state.resCache.Set(key, cachedSearch{
			ids:            ids,
			subScoresByID:  subScoresByID,
			matchedByID:    matchedByID,
			strategiesUsed: strategiesUsed,
		})
	}

	total := len(ids)
	end := q.Offset + limit
	if end > total {
		end = total
	}
	pageStart := q.Offset
	if pageStart > total {
		pageStart = total
	}
	page := ids[pageStart:end]

	out := make([]ScoredResult, 0, len(page))
	for i, sid := range page {
		mem, err := e.store.GetMemory(ctx, sid.MemoryID, q.UserID)
		if err != nil {
			continue
		}
		if mem.Strength < q.MinStrength || mem.Salience < q.MinSalience {
			continue
		}
		out = append(out, ScoredResult{
			Memory:      mem,
			Rank:        q.Offset + i + 1,
			Composite:   sid.Score,
			SubScores:   subScoresByID[sid.MemoryID],
			Explanation: explain(subScoresByID[sid.MemoryID], matchedByID[sid.MemoryID]),
		})
	}

	elapsed := time.Since(start)
	state.analyt.Append(analytics.Record{
		QueryID:     fmt.Sprintf("%d", e.snow.Generate().Int64()),
		UserID:      q.UserID,
		QueryShape:  key,
		Strategies:  strategiesUsed,
		ElapsedMs:   elapsed.Milliseconds(),
		ResultCount: len(out),
		CacheHit:    cacheHit,
		Timestamp:   time.Now(),
	})
	e.log.Record(storelog.Op{
		Name: op, UserID: q.UserID, Elapsed: elapsed,
		Strategies: strategiesUsed, CacheHit: cacheHit, ResultCount: len(out),
	})

	return &SearchResponse{Results: out, Total: total, Elapsed: elapsed, CacheHit: cacheHit}, nil
}

// explain renders a short human-readable justification for a result:
// matched terms and per-strategy percentages, per spec.md §4.7's
// "explanations" requirement.
func explain(subScores map[string]float64, matchedTerms []string) string {
	var parts []string
	if len(matchedTerms) > 0 {
		parts = append(parts, fmt.Sprintf("matched: %s", strings.Join(matchedTerms, ", ")))
	}
	names := make([]string, 0, len(subScores))
	for name := range subScores {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%.0f%%", name, subScores[name]*100))
	}
	return strings.Join(parts, "; ")
}

// SearchAnalytics returns the aggregated analytics for every search call
// recorded so far (bounded to the configured retention window), per
// spec.md §4.7's aggregation endpoint.
func (e *Engine) SearchAnalytics(topN int) analytics.Aggregate {
	return e.lazySearchState().analyt.Aggregate(topN)
}

func (e *Engine) runFullText(ctx context.Context, q SearchQuery) strategyResult {
	res := strategyResult{name: "fulltext", scores: map[int64]float64{}, matched: map[int64][]string{}}
	parsed, err := fulltext.Parse(q.Text, 0)
	if err != nil {
		return res
	}
	rendered := fulltext.Render(parsed, e.store.Dialect())
	hits, _, _, err := e.store.FullTextSearch(ctx, memstore.FullTextQuery{
		UserID:      q.UserID,
		Rendered:    rendered,
		Language:    q.Language,
		RankingMode: memstore.RankTF,
		MinStrength: q.MinStrength,
		MinSalience: q.MinSalience,
		MaxResults:  e.searchCfg.MaxLimit,
	})
	if err != nil {
		return res
	}
	maxRank := 0.0
	for _, h := range hits {
		if h.Rank > maxRank {
			maxRank = h.Rank
		}
	}
	for _, h := range hits {
		score := 1.0
		if maxRank > 0 {
			score = h.Rank / maxRank
		}
		res.scores[h.MemoryID] = score
		res.matched[h.MemoryID] = parsed.MatchedTerms
	}
	return res
}

func (e *Engine) runVector(ctx context.Context, q SearchQuery) strategyResult {
	res := strategyResult{name: "vector", scores: map[int64]float64{}, matched: map[int64][]string{}}
	sector := q.Sector
	if sector == "" {
		sector = model.SectorSemantic
	}
	hits, err := e.store.VectorSearch(ctx, q.Embedding, sector, e.namespace, q.UserID, e.searchCfg.MaxLimit, 0)
	if err != nil {
		return res
	}
	for _, h := range hits {
		res.scores[h.MemoryID] = h.Score
	}
	return res
}

func (e *Engine) runMetadata(ctx context.Context, q SearchQuery) strategyResult {
	res := strategyResult{name: "metadata", scores: map[int64]float64{}, matched: map[int64][]string{}}
	filter := *q.Metadata
	filter.UserID = q.UserID
	ids, _, err := e.store.FilterMetadata(ctx, filter)
	if err != nil {
		return res
	}
	for _, id := range ids {
		res.scores[id] = 1.0 // metadata match is boolean: matched or absent
	}
	return res
}

func (e *Engine) runSimilarTo(ctx context.Context, q SearchQuery) strategyResult {
	res := strategyResult{name: "similarity", scores: map[int64]float64{}, matched: map[int64][]string{}}
	target, err := e.store.GetMemory(ctx, q.SimilarTo, q.UserID)
	if err != nil {
		return res
	}
	targetMeta, _ := e.store.GetMetadata(ctx, target.ID)
	targetVec, _ := e.store.GetEmbeddings(ctx, target.ID, []model.Sector{model.SectorSemantic})

	targetInput := similarity.Input{ID: target.ID, Occurred: target.CreatedAt}
	if targetMeta != nil {
		targetInput.Keywords = targetMeta.Keywords
		targetInput.Tags = targetMeta.Tags
		targetInput.Category = targetMeta.Category
	}
	if v, ok := targetVec[model.SectorSemantic]; ok {
		targetInput.Vector = v
		targetInput.HasVector = true
	}

	// Candidate pool: nearest semantic neighbours of the target, a
	// proxy for "everything else" that keeps this bounded without a
	// full per-user table scan.
	candidates := []similarity.Input{}
	if targetInput.HasVector {
		neighbours, err := e.store.VectorSearch(ctx, targetInput.Vector, model.SectorSemantic, e.namespace, q.UserID, e.searchCfg.MaxLimit, 0)
		if err == nil {
			for _, n := range neighbours {
				if n.MemoryID == target.ID {
					continue
				}
				cm, err := e.store.GetMemory(ctx, n.MemoryID, q.UserID)
				if err != nil {
					continue
				}
				cmd, _ := e.store.GetMetadata(ctx, n.MemoryID)
				cv, _ := e.store.GetEmbeddings(ctx, n.MemoryID, []model.Sector{model.SectorSemantic})
				ci := similarity.Input{ID: cm.ID, Occurred: cm.CreatedAt}
				if cmd != nil {
					ci.Keywords = cmd.Keywords
					ci.Tags = cmd.Tags
					ci.Category = cmd.Category
				}
				if v, ok := cv[model.SectorSemantic]; ok {
					ci.Vector = v
					ci.HasVector = true
				}
				candidates = append(candidates, ci)
			}
		}
	}

	ranked := e.similarity.FindSimilar(targetInput, candidates, e.searchCfg.MaxLimit, 0, false)
	for _, r := range ranked {
		res.scores[r.ID] = r.Score
	}
	return res
}
