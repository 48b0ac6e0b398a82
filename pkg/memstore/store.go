// Package memstore defines the persistence contract for the cognitive
// memory engine: the relational/vector store interface that both backends
// (PostgreSQL+pgvector, SQLite+FTS5) implement, spanning the memory table,
// five-vector embedding table, metadata table, link table, and the
// consolidation-history audit table described in spec.md §6. This
// generalizes the teacher's pkg/storage.VectorStore (one interface, one
// table) to the five-table, transaction-carrying contract this engine
// needs, keeping the same "one interface, many backends" shape.
package memstore

import (
	"context"
	"time"

	"github.com/cogmem/engine/pkg/engineerr"
	"github.com/cogmem/engine/pkg/memstore/fulltext"
	"github.com/cogmem/engine/pkg/model"
)

// Store is the top-level handle to a configured backend. It has no
// transaction state of its own; every read/write happens through a Tx
// obtained from BeginTx (or, for the handful of reads that don't need
// transactional isolation, through the convenience methods below).
type Store interface {
	// BeginTx acquires an exclusive connection from the pool and starts a
	// transaction. Every exit path (commit, rollback, panic recovery at
	// the caller) must release the connection.
	BeginTx(ctx context.Context) (Tx, error)

	// Reader exposes the read-only operations usable outside a
	// transaction, for the integrated search engine's fan-out (C7) where
	// four independent strategies run concurrently against a read-only
	// snapshot of the data.
	Reader

	// Dialect reports which boolean-query syntax this backend's
	// FullTextSearch expects, so callers render a parsed query (see
	// pkg/memstore/fulltext) with the matching Render dialect instead of
	// assuming one backend.
	Dialect() fulltext.Dialect

	// Close releases the connection pool.
	Close() error
}

// Reader groups every read path that does not require read-your-writes
// transactional isolation: searches, filters, graph/timeline assembly.
type Reader interface {
	GetMemory(ctx context.Context, id int64, userID string) (*model.Memory, error)
	GetMetadata(ctx context.Context, memoryID int64) (*model.MetadataRecord, error)

	// VectorSearch implements C1's vectorSimilaritySearch: cosine
	// similarity over one sector's vectors, sorted descending, ties
	// broken by id ascending, filtered to score >= minSimilarity.
	VectorSearch(ctx context.Context, query []float64, sector model.Sector, namespace string, userID string, k int, minSimilarity float64) ([]ScoredID, error)

	GetEmbeddings(ctx context.Context, memoryID int64, sectors []model.Sector) (map[model.Sector][]float64, error)

	// FilterMetadata implements C2's filter operation.
	FilterMetadata(ctx context.Context, f MetadataFilter) ([]int64, int, error)

	// FullTextSearch implements C3's execution against the derived search
	// vector index. query is the already-rendered, backend-specific
	// boolean/phrase query (see pkg/memstore/fulltext).
	FullTextSearch(ctx context.Context, q FullTextQuery) ([]FullTextHit, int, bool, error)

	GetLinks(ctx context.Context, memoryID int64, typeFilter []model.LinkType) ([]model.Link, error)

	ListUnconsolidated(ctx context.Context, userID string, sector model.Sector, limit int) ([]*model.Memory, bool, error)

	GetStats(ctx context.Context, userID string) (Stats, error)
	GetTimeline(ctx context.Context, f TimelineFilter) ([]TimelineEvent, error)
}

// Tx is a single transactional unit of work. Every top-level write
// operation in the repository (C6), graph builder (C5), and consolidation
// engine (C8) runs inside exactly one Tx, committed or rolled back on
// every exit path.
type Tx interface {
	Reader

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	InsertMemory(ctx context.Context, m *model.Memory) error
	UpdateMemory(ctx context.Context, m *model.Memory) error
	DeleteMemory(ctx context.Context, id int64, userID string) error
	TouchAccess(ctx context.Context, id int64) error

	UpsertMetadata(ctx context.Context, md *model.MetadataRecord) error

	// StoreEmbeddings implements C1's storeEmbeddings: writes all
	// supplied sector vectors for one memory within this transaction.
	StoreEmbeddings(ctx context.Context, memoryID int64, namespace string, vectors map[model.Sector][]float64) error
	DeleteEmbeddings(ctx context.Context, memoryID int64) error

	// UpsertSearchVector implements the derived full-text index update,
	// always performed in the same transaction as a content write.
	UpsertSearchVector(ctx context.Context, memoryID int64, content, language string) error

	// UpsertLink implements C5's ON CONFLICT semantics: insert, or
	// update weight/type in place if (source, target) already exists.
	UpsertLink(ctx context.Context, link model.Link) error
	DeleteLinksForMemory(ctx context.Context, memoryID int64) error

	InsertConsolidationHistory(ctx context.Context, rec model.ConsolidationHistoryRecord) error
}

// ScoredID pairs a memory id with a similarity/relevance score.
type ScoredID struct {
	MemoryID int64
	Score    float64
}

// MetadataFilter carries C2's filter predicate.
type MetadataFilter struct {
	UserID string

	Keywords        []string
	KeywordOperator BoolOperator
	Tags            []string
	TagOperator     BoolOperator
	Categories      []string

	ImportanceMin, ImportanceMax float64
	HasImportanceRange           bool

	CreatedAfter, CreatedBefore   *time.Time
	AccessedAfter, AccessedBefore *time.Time

	Limit, Offset int
}

// Validate rejects an inverted importance range or an inverted
// created/accessed date pair before any I/O, per spec.md §4.2's
// documented C2 error case. The returned error's Context names the
// offending field.
func (f MetadataFilter) Validate() error {
	const op = "MetadataFilter.Validate"
	if f.HasImportanceRange && f.ImportanceMin > f.ImportanceMax {
		return engineerr.New(op, engineerr.KindValidation, engineerr.ErrInvalidFilterRange, map[string]interface{}{
			"field": "importance", "min": f.ImportanceMin, "max": f.ImportanceMax,
		})
	}
	if f.CreatedAfter != nil && f.CreatedBefore != nil && f.CreatedAfter.After(*f.CreatedBefore) {
		return engineerr.New(op, engineerr.KindValidation, engineerr.ErrInvalidFilterRange, map[string]interface{}{
			"field": "created", "after": *f.CreatedAfter, "before": *f.CreatedBefore,
		})
	}
	if f.AccessedAfter != nil && f.AccessedBefore != nil && f.AccessedAfter.After(*f.AccessedBefore) {
		return engineerr.New(op, engineerr.KindValidation, engineerr.ErrInvalidFilterRange, map[string]interface{}{
			"field": "accessed", "after": *f.AccessedAfter, "before": *f.AccessedBefore,
		})
	}
	return nil
}

// BoolOperator is AND or OR, used for keyword/tag set matching.
type BoolOperator string

const (
	OpAND BoolOperator = "AND"
	OpOR  BoolOperator = "OR"
)

// FullTextQuery carries C3's parsed, backend-rendered query plus the
// scalar filters that accompany a text search call.
type FullTextQuery struct {
	UserID       string
	Rendered     string // backend-specific rendered boolean/phrase expression
	Language     string
	RankingMode  RankingMode
	MinStrength  float64
	MinSalience  float64
	MaxResults   int
	Offset       int
}

// RankingMode selects between term-frequency rank and cover-density rank.
type RankingMode string

const (
	RankTF RankingMode = "rank"
	RankCD RankingMode = "rank_cd"
)

// FullTextHit is one full-text search result row.
type FullTextHit struct {
	MemoryID  int64
	Content   string
	Rank      float64
	CreatedAt time.Time
	Salience  float64
	Strength  float64
}

// Stats is the payload for C6's getStats.
type Stats struct {
	CountsBySector      map[model.Sector]int
	TotalCapacity       int
	ConsolidationPending int
	RecentActivity      []TimelineEvent
}

// TimelineFilter carries C6's getTimeline parameters.
type TimelineFilter struct {
	UserID          string
	From, To        *time.Time
	EmotionalFilter string
	Limit, Offset   int
}

// TimelineEvent is one entry of the C6 getTimeline stream.
type TimelineEvent struct {
	MemoryID  int64
	EventType string // always "create"; the backends record no other event type
	Timestamp time.Time
	Sector    model.Sector
	Salience  float64
}
