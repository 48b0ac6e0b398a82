// Package analytics implements the integrated search engine's (C7)
// analytics buffer: an append-only, time-trimmed, internally synchronized
// record of search calls, plus an aggregation query over it. Grounded on
// the teacher's pattern of small, mutex-guarded in-process state (see
// pkg/core.Client's mu sync.RWMutex) generalized from "guard one client"
// to "guard one append-only ring".
package analytics

import (
	"sort"
	"sync"
	"time"
)

// Record is one search call's analytics entry.
type Record struct {
	QueryID     string
	UserID      string
	QueryShape  string
	Strategies  []string
	ElapsedMs   int64
	ResultCount int
	CacheHit    bool
	Timestamp   time.Time
}

// Buffer is a bounded-by-age, append-only store of search Records.
type Buffer struct {
	mu            sync.Mutex
	records       []Record
	retention     time.Duration
	enabled       bool
}

// NewBuffer creates a Buffer that prunes records older than
// retentionDays. If enabled is false, Append is a no-op (analytics
// disabled).
func NewBuffer(retentionDays int, enabled bool) *Buffer {
	return &Buffer{
		records:   make([]Record, 0, 256),
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		enabled:   enabled,
	}
}

// Append records one search call and prunes entries past retention.
func (b *Buffer) Append(r Record) {
	if !b.enabled {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.records = append(b.records, r)
	b.prune(time.Now())
}

// prune drops records older than the retention window. Callers must hold b.mu.
func (b *Buffer) prune(now time.Time) {
	if b.retention <= 0 {
		return
	}
	cutoff := now.Add(-b.retention)
	i := 0
	for ; i < len(b.records); i++ {
		if b.records[i].Timestamp.After(cutoff) {
			break
		}
	}
	if i > 0 {
		b.records = append([]Record(nil), b.records[i:]...)
	}
}

// Aggregate summarizes the buffered records.
type Aggregate struct {
	TotalSearches      int
	MeanLatencyMs      float64
	P50LatencyMs       float64
	P95LatencyMs       float64
	P99LatencyMs       float64
	CacheHitRate       float64
	StrategyHistogram  map[string]int
	MeanResultCount    float64
	TopQueries         []QueryCount
}

// QueryCount is one entry of the top-queries histogram.
type QueryCount struct {
	QueryShape string
	Count      int
}

// Aggregate computes summary statistics over all currently buffered
// records.
func (b *Buffer) Aggregate(topN int) Aggregate {
	b.mu.Lock()
	records := append([]Record(nil), b.records...)
	b.mu.Unlock()

	agg := Aggregate{StrategyHistogram: map[string]int{}}
	if len(records) == 0 {
		return agg
	}

	agg.TotalSearches = len(records)

	latencies := make([]float64, len(records))
	var sumLatency, sumResults float64
	var cacheHits int
	queryCounts := map[string]int{}

	for i, r := range records {
		latencies[i] = float64(r.ElapsedMs)
		sumLatency += float64(r.ElapsedMs)
		sumResults += float64(r.ResultCount)
		if r.CacheHit {
			cacheHits++
		}
		for _, s := range r.Strategies {
			agg.StrategyHistogram[s]++
		}
		queryCounts[r.QueryShape]++
	}

	sort.Float64s(latencies)
	agg.MeanLatencyMs = sumLatency / float64(len(records))
	agg.P50LatencyMs = percentile(latencies, 0.50)
	agg.P95LatencyMs = percentile(latencies, 0.95)
	agg.P99LatencyMs = percentile(latencies, 0.99)
	agg.CacheHitRate = float64(cacheHits) / float64(len(records))
	agg.MeanResultCount = sumResults / float64(len(records))

	agg.TopQueries = topQueries(queryCounts, topN)

	return agg
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topQueries(counts map[string]int, topN int) []QueryCount {
	out := make([]QueryCount, 0, len(counts))
	for shape, count := range counts {
		out = append(out, QueryCount{QueryShape: shape, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].QueryShape < out[j].QueryShape
	})
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out
}
