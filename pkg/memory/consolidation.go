package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/cogmem/engine/pkg/engineerr"
	"github.com/cogmem/engine/pkg/memstore/similarity"
	"github.com/cogmem/engine/pkg/model"
	"github.com/cogmem/engine/pkg/storelog"
	"github.com/cogmem/engine/pkg/summarizer"
)

// ClusterOutcome reports one accepted cluster's consolidation result.
type ClusterOutcome struct {
	SummaryMemoryID int64
	MemberIDs       []int64
	AvgSimilarity   float64
	Topic           string
}

// ConsolidationReport is the payload of Consolidate.
type ConsolidationReport struct {
	Clusters []ClusterOutcome
	Skipped  int // members considered but not placed in any accepted cluster
}

// Consolidate runs the greedy near-clique clustering algorithm over a
// user's unconsolidated episodic memories, summarises each accepted
// cluster via the external summariser, and atomically folds it into a
// new semantic summary memory, per spec.md §4.8. Per-user calls are
// serialized so two concurrent runs for the same user never race on the
// same "used" set.
func (e *Engine) Consolidate(ctx context.Context, userID string) (*ConsolidationReport, error) {
	const op = "Consolidation.Consolidate"
	start := time.Now()

	lock := e.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	cfg := e.consolidationCfg

	candidates, fellBack, err := e.store.ListUnconsolidated(ctx, userID, model.SectorEpisodic, cfg.BatchSize)
	if err != nil {
		err = engineerr.New(op, engineerr.KindConsolidation, err, nil)
		e.log.Record(storelog.Op{Name: op, UserID: userID, Elapsed: time.Since(start), Err: err})
		return nil, err
	}
	if fellBack {
		e.log.Warn(op, "schema lacks consolidated_into/embedding_status columns; falling back to all episodic memories", map[string]interface{}{"userID": userID})
	}

	members := make([]clusterMember, 0, len(candidates))
	for _, m := range candidates {
		vecs, err := e.store.GetEmbeddings(ctx, m.ID, []model.Sector{model.SectorSemantic})
		if err != nil {
			continue
		}
		v, ok := vecs[model.SectorSemantic]
		if !ok || len(v) == 0 {
			continue // step 2: drop those without a semantic embedding
		}
		members = append(members, clusterMember{mem: m, vec: v})
	}

	n := len(members)
	if n == 0 {
		return &ConsolidationReport{}, nil
	}

	// Step 3: upper-triangular cosine similarity matrix, keyed by
	// sorted (i, j) index pair.
	sim := make([][]float64, n)
	for i := range sim {
		sim[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			s := similarity.Cosine(members[i].vec, members[j].vec)
			sim[i][j] = s
			sim[j][i] = s
		}
	}

	// Step 4: greedy near-clique clustering.
	neighbourCount := make([]int, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j && sim[i][j] >= cfg.SimilarityThreshold {
				neighbourCount[i]++
			}
		}
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		if neighbourCount[order[a]] != neighbourCount[order[b]] {
			return neighbourCount[order[a]] > neighbourCount[order[b]]
		}
		return order[a] < order[b]
	})

	used := make([]bool, n)
	var clusters [][]int
	for _, seed := range order {
		if used[seed] {
			continue
		}
		cluster := []int{seed}
		for _, cand := range order {
			if cand == seed || used[cand] {
				continue
			}
			qualifies := true
			for _, member := range cluster {
				if sim[cand][member] < cfg.SimilarityThreshold {
					qualifies = false
					break
				}
			}
			if qualifies {
				cluster = append(cluster, cand)
			}
		}
		if len(cluster) >= cfg.MinClusterSize {
			for _, idx := range cluster {
				used[idx] = true
			}
			clusters = append(clusters, cluster)
		}
	}

	report := &ConsolidationReport{}
	for _, cluster := range clusters {
		outcome, err := e.consolidateOne(ctx, userID, cluster, members, sim, cfg.StrengthReductionFactor, cfg.SimilarityThreshold)
		if err != nil {
			// one cluster's failure rolls back only that cluster; the
			// run proceeds independently with the rest.
			e.log.Warn(op, "cluster consolidation failed", map[string]interface{}{"error": err.Error(), "size": len(cluster)})
			continue
		}
		report.Clusters = append(report.Clusters, *outcome)
	}

	placed := 0
	for _, c := range clusters {
		placed += len(c)
	}
	report.Skipped = n - placed

	e.log.Record(storelog.Op{Name: op, UserID: userID, Elapsed: time.Since(start)})
	return report, nil
}

// clusterMember pairs one candidate memory with its semantic-sector
// embedding vector, for the duration of one Consolidate run.
type clusterMember struct {
	mem *model.Memory
	vec []float64
}

func (e *Engine) consolidateOne(ctx context.Context, userID string, cluster []int, members []clusterMember, sim [][]float64, strengthReductionFactor, threshold float64) (*ClusterOutcome, error) {
	const op = "Consolidation.consolidateOne"

	// Step 5: average intra-cluster similarity, centroid selection,
	// topic extraction.
	avgSim := make(map[int]float64, len(cluster))
	var totalSim float64
	var pairCount int
	for _, i := range cluster {
		var sum float64
		for _, j := range cluster {
			if i == j {
				continue
			}
			sum += sim[i][j]
			if i < j {
				totalSim += sim[i][j]
				pairCount++
			}
		}
		if len(cluster) > 1 {
			avgSim[i] = sum / float64(len(cluster)-1)
		}
	}
	centroidIdx := cluster[0]
	bestAvg := -1.0
	for _, i := range cluster {
		if avgSim[i] > bestAvg {
			bestAvg = avgSim[i]
			centroidIdx = i
		}
	}
	overallAvg := 0.0
	if pairCount > 0 {
		overallAvg = totalSim / float64(pairCount)
	}

	centroid := members[centroidIdx].mem
	topic := extractTopic(centroid.Content)

	// Step 6: summarise in creation order.
	sorted := append([]int(nil), cluster...)
	sort.Slice(sorted, func(a, b int) bool {
		return members[sorted[a]].mem.CreatedAt.Before(members[sorted[b]].mem.CreatedAt)
	})
	contents := make([]string, len(sorted))
	memberIDs := make([]int64, len(sorted))
	for i, idx := range sorted {
		contents[i] = members[idx].mem.Content
		memberIDs[i] = members[idx].mem.ID
	}

	summaryText, err := e.summarizer.Summarize(ctx, summarizer.DefaultInstruction, contents, topic)
	if err != nil {
		return nil, engineerr.New(op, engineerr.KindConsolidation, err, map[string]interface{}{"topic": topic})
	}

	// Step 7: atomic transaction — insert summary, consolidation links,
	// strength reduction, consolidated_into, history row.
	summary := &model.Memory{
		ID:               e.snow.Generate().Int64(),
		Content:          summaryText,
		UserID:           userID,
		PrimarySector:    model.SectorSemantic,
		CreatedAt:        time.Now(),
		LastAccessed:     time.Now(),
		Salience:         0.8,
		Strength:         1.0,
		DecayRate:        0.01,
		EmbeddingStatus:  model.EmbeddingPending,
		ConsolidatedFrom: memberIDs,
	}

	vectors, err := e.embedder.EmbedAllSectors(ctx, summaryText)
	if err != nil {
		return nil, engineerr.New(op, engineerr.KindConsolidation, err, nil)
	}
	summary.EmbeddingStatus = model.EmbeddingComplete

	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return nil, engineerr.New(op, engineerr.KindStorage, err, nil)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	if err := tx.InsertMemory(ctx, summary); err != nil {
		return nil, engineerr.New(op, engineerr.KindTransaction, err, nil)
	}
	if err := tx.StoreEmbeddings(ctx, summary.ID, e.namespace, vectors); err != nil {
		return nil, engineerr.New(op, engineerr.KindTransaction, err, nil)
	}
	if err := tx.UpsertSearchVector(ctx, summary.ID, summaryText, "english"); err != nil {
		return nil, engineerr.New(op, engineerr.KindTransaction, err, nil)
	}

	if err := consolidationLinksTx(ctx, tx, summary.ID, memberIDs); err != nil {
		return nil, engineerr.New(op, engineerr.KindTransaction, err, nil)
	}

	for _, idx := range cluster {
		m := members[idx].mem
		m.Strength *= strengthReductionFactor
		summaryID := summary.ID
		m.ConsolidatedInto = &summaryID
		if err := tx.UpdateMemory(ctx, m); err != nil {
			return nil, engineerr.New(op, engineerr.KindTransaction, err, nil)
		}
	}

	historyRec := model.ConsolidationHistoryRecord{
		ID:                    uuid.NewString(),
		UserID:                userID,
		SummaryMemoryID:       summary.ID,
		ConsolidatedMemoryIDs: memberIDs,
		SimilarityThreshold:   threshold,
		ClusterSize:           len(cluster),
		ConsolidatedAt:        time.Now(),
	}
	if err := tx.InsertConsolidationHistory(ctx, historyRec); err != nil {
		return nil, engineerr.New(op, engineerr.KindTransaction, err, nil)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, engineerr.New(op, engineerr.KindTransaction, err, nil)
	}
	committed = true

	return &ClusterOutcome{
		SummaryMemoryID: summary.ID,
		MemberIDs:       memberIDs,
		AvgSimilarity:   overallAvg,
		Topic:           topic,
	}, nil
}

// extractTopic derives a short topic string from a memory's content: the
// first sentence, truncated to a handful of words, as a cheap stand-in
// for a dedicated keyphrase extractor.
func extractTopic(content string) string {
	const maxWords = 8
	runes := []rune(content)
	end := len(runes)
	for i, r := range runes {
		if r == '.' || r == '\n' || r == '!' || r == '?' {
			end = i
			break
		}
	}
	sentence := string(runes[:end])

	words := splitWords(sentence)
	if len(words) > maxWords {
		words = words[:maxWords]
	}
	return joinWords(words)
}

func splitWords(s string) []string {
	var out []string
	var cur []rune
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' {
			if len(cur) > 0 {
				out = append(out, string(cur))
				cur = nil
			}
			continue
		}
		cur = append(cur, r)
	}
	if len(cur) > 0 {
		out = append(out, string(cur))
	}
	return out
}

func joinWords(words []string) string {
	out := ""
	for i, w := range words {
		if i > 0 {
			out += " "
		}
		out += w
	}
	return out
}
