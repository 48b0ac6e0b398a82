// Package postgres implements memstore.Store on PostgreSQL with the
// pgvector extension for cosine similarity search and native
// tsvector/tsquery for full-text search. It generalizes the teacher's
// pkg/storage/postgres.Client (lib/pq, database/sql, hand-formatted
// "[0.1,0.2]" vector strings, one flat table) to pgx/v5's pgxpool,
// the pgvector-go Vector type (grounded on the wider example pack's use
// of github.com/pgvector/pgvector-go alongside pgx), and the five-table
// schema this engine needs.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/cogmem/engine/pkg/memstore"
	"github.com/cogmem/engine/pkg/memstore/fulltext"
	"github.com/cogmem/engine/pkg/model"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, letting every
// Reader helper function work identically whether called on the Store
// or inside a Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// Store implements memstore.Store over a pgxpool.Pool.
type Store struct {
	pool *pgxpool.Pool
	dims int
}

// Config configures the PostgreSQL backend.
type Config struct {
	DSN string
	// Dims is the embedding vector dimensionality, used when creating the
	// embeddings table's pgvector column.
	Dims int
}

// Open connects to Postgres, ensures the pgvector extension and schema
// exist, and returns a ready Store.
func Open(ctx context.Context, cfg *Config) (*Store, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres.Open: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("postgres.Open: %w", err)
	}

	dims := cfg.Dims
	if dims <= 0 {
		dims = 1536
	}
	s := &Store{pool: pool, dims: dims}
	if err := s.initSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS memories (
	id BIGINT PRIMARY KEY,
	user_id TEXT NOT NULL,
	session_id TEXT,
	content TEXT NOT NULL,
	primary_sector TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	last_accessed TIMESTAMPTZ NOT NULL,
	access_count BIGINT NOT NULL DEFAULT 0,
	salience DOUBLE PRECISION NOT NULL DEFAULT 0.5,
	strength DOUBLE PRECISION NOT NULL DEFAULT 1.0,
	decay_rate DOUBLE PRECISION NOT NULL DEFAULT 0.05,
	embedding_status TEXT NOT NULL DEFAULT 'pending',
	consolidated_into BIGINT,
	consolidated_from BIGINT[],
	search_vector TSVECTOR
);
CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id);
CREATE INDEX IF NOT EXISTS idx_memories_user_sector ON memories(user_id, primary_sector);
CREATE INDEX IF NOT EXISTS idx_memories_search ON memories USING GIN(search_vector);

CREATE TABLE IF NOT EXISTS embeddings (
	memory_id BIGINT NOT NULL,
	sector TEXT NOT NULL,
	namespace TEXT NOT NULL,
	vector vector(%d) NOT NULL,
	PRIMARY KEY (memory_id, sector, namespace)
);
CREATE INDEX IF NOT EXISTS idx_embeddings_vector ON embeddings USING hnsw (vector vector_cosine_ops);

CREATE TABLE IF NOT EXISTS metadata (
	memory_id BIGINT PRIMARY KEY,
	keywords TEXT[],
	tags TEXT[],
	category TEXT,
	context TEXT,
	importance DOUBLE PRECISION NOT NULL DEFAULT 0,
	is_atomic BOOLEAN NOT NULL DEFAULT FALSE,
	parent_id BIGINT
);
CREATE INDEX IF NOT EXISTS idx_metadata_category ON metadata(category);

CREATE TABLE IF NOT EXISTS links (
	source_id BIGINT NOT NULL,
	target_id BIGINT NOT NULL,
	type TEXT NOT NULL,
	weight DOUBLE PRECISION NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	traversal_count BIGINT NOT NULL DEFAULT 0,
	PRIMARY KEY (source_id, target_id)
);
CREATE INDEX IF NOT EXISTS idx_links_target ON links(target_id);

CREATE TABLE IF NOT EXISTS consolidation_history (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	summary_memory_id BIGINT NOT NULL,
	consolidated_memory_ids BIGINT[] NOT NULL,
	similarity_threshold DOUBLE PRECISION NOT NULL,
	cluster_size INT NOT NULL,
	consolidated_at TIMESTAMPTZ NOT NULL
);
`, s.dims)
	_, err := s.pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("postgres.initSchema: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Dialect reports Postgres's tsquery syntax, the boolean-query rendering
// this backend's FullTextSearch expects.
func (s *Store) Dialect() fulltext.Dialect {
	return fulltext.DialectPostgres
}

// BeginTx starts a new transaction.
func (s *Store) BeginTx(ctx context.Context) (memstore.Tx, error) {
	pgxTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("postgres.BeginTx: %w", err)
	}
	return &tx{db: pgxTx}, nil
}

func (s *Store) GetMemory(ctx context.Context, id int64, userID string) (*model.Memory, error) {
	return getMemory(ctx, s.pool, id, userID)
}
func (s *Store) GetMetadata(ctx context.Context, memoryID int64) (*model.MetadataRecord, error) {
	return getMetadata(ctx, s.pool, memoryID)
}
func (s *Store) VectorSearch(ctx context.Context, query []float64, sector model.Sector, namespace, userID string, k int, minSimilarity float64) ([]memstore.ScoredID, error) {
	return vectorSearch(ctx, s.pool, query, sector, namespace, userID, k, minSimilarity)
}
func (s *Store) GetEmbeddings(ctx context.Context, memoryID int64, sectors []model.Sector) (map[model.Sector][]float64, error) {
	return getEmbeddings(ctx, s.pool, memoryID, sectors)
}
func (s *Store) FilterMetadata(ctx context.Context, f memstore.MetadataFilter) ([]int64, int, error) {
	return filterMetadata(ctx, s.pool, f)
}
func (s *Store) FullTextSearch(ctx context.Context, q memstore.FullTextQuery) ([]memstore.FullTextHit, int, bool, error) {
	return fullTextSearch(ctx, s.pool, q)
}
func (s *Store) GetLinks(ctx context.Context, memoryID int64, typeFilter []model.LinkType) ([]model.Link, error) {
	return getLinks(ctx, s.pool, memoryID, typeFilter)
}
func (s *Store) ListUnconsolidated(ctx context.Context, userID string, sector model.Sector, limit int) ([]*model.Memory, bool, error) {
	return listUnconsolidated(ctx, s.pool, userID, sector, limit)
}
func (s *Store) GetStats(ctx context.Context, userID string) (memstore.Stats, error) {
	return getStats(ctx, s.pool, userID)
}
func (s *Store) GetTimeline(ctx context.Context, f memstore.TimelineFilter) ([]memstore.TimelineEvent, error) {
	return getTimeline(ctx, s.pool, f)
}

// tx implements memstore.Tx over a pgx.Tx.
type tx struct {
	db pgx.Tx
}

func (t *tx) Commit(ctx context.Context) error   { return t.db.Commit(ctx) }
func (t *tx) Rollback(ctx context.Context) error { return t.db.Rollback(ctx) }

func (t *tx) GetMemory(ctx context.Context, id int64, userID string) (*model.Memory, error) {
	return getMemory(ctx, t.db, id, userID)
}
func (t *tx) GetMetadata(ctx context.Context, memoryID int64) (*model.MetadataRecord, error) {
	return getMetadata(ctx, t.db, memoryID)
}
func (t *tx) VectorSearch(ctx context.Context, query []float64, sector model.Sector, namespace, userID string, k int, minSimilarity float64) ([]memstore.ScoredID, error) {
	return vectorSearch(ctx, t.db, query, sector, namespace, userID, k, minSimilarity)
}
func (t *tx) GetEmbeddings(ctx context.Context, memoryID int64, sectors []model.Sector) (map[model.Sector][]float64, error) {
	return getEmbeddings(ctx, t.db, memoryID, sectors)
}
func (t *tx) FilterMetadata(ctx context.Context, f memstore.MetadataFilter) ([]int64, int, error) {
	return filterMetadata(ctx, t.db, f)
}
func (t *tx) FullTextSearch(ctx context.Context, q memstore.FullTextQuery) ([]memstore.FullTextHit, int, bool, error) {
	return fullTextSearch(ctx, t.db, q)
}
func (t *tx) GetLinks(ctx context.Context, memoryID int64, typeFilter []model.LinkType) ([]model.Link, error) {
	return getLinks(ctx, t.db, memoryID, typeFilter)
}
func (t *tx) ListUnconsolidated(ctx context.Context, userID string, sector model.Sector, limit int) ([]*model.Memory, bool, error) {
	return listUnconsolidated(ctx, t.db, userID, sector, limit)
}
func (t *tx) GetStats(ctx context.Context, userID string) (memstore.Stats, error) {
	return getStats(ctx, t.db, userID)
}
func (t *tx) GetTimeline(ctx context.Context, f memstore.TimelineFilter) ([]memstore.TimelineEvent, error) {
	return getTimeline(ctx, t.db, f)
}

func (t *tx) InsertMemory(ctx context.Context, m *model.Memory) error {
	_, err := t.db.Exec(ctx, `
		INSERT INTO memories (id, user_id, session_id, content, primary_sector, created_at, last_accessed, access_count, salience, strength, decay_rate, embedding_status, consolidated_into, consolidated_from)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		m.ID, m.UserID, m.SessionID, m.Content, string(m.PrimarySector), m.CreatedAt, m.LastAccessed, m.AccessCount, m.Salience, m.Strength, m.DecayRate, string(m.EmbeddingStatus), m.ConsolidatedInto, m.ConsolidatedFrom)
	return err
}

func (t *tx) UpdateMemory(ctx context.Context, m *model.Memory) error {
	_, err := t.db.Exec(ctx, `
		UPDATE memories SET content=$1, salience=$2, strength=$3, decay_rate=$4, embedding_status=$5, consolidated_into=$6
		WHERE id=$7 AND user_id=$8`,
		m.Content, m.Salience, m.Strength, m.DecayRate, string(m.EmbeddingStatus), m.ConsolidatedInto, m.ID, m.UserID)
	return err
}

func (t *tx) DeleteMemory(ctx context.Context, id int64, userID string) error {
	_, err := t.db.Exec(ctx, `DELETE FROM memories WHERE id=$1 AND user_id=$2`, id, userID)
	return err
}

func (t *tx) TouchAccess(ctx context.Context, id int64) error {
	_, err := t.db.Exec(ctx, `UPDATE memories SET access_count = access_count + 1, last_accessed = $2 WHERE id = $1`, id, time.Now())
	return err
}

func (t *tx) UpsertMetadata(ctx context.Context, md *model.MetadataRecord) error {
	_, err := t.db.Exec(ctx, `
		INSERT INTO metadata (memory_id, keywords, tags, category, context, importance, is_atomic, parent_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (memory_id) DO UPDATE SET keywords=excluded.keywords, tags=excluded.tags, category=excluded.category, context=excluded.context, importance=excluded.importance, is_atomic=excluded.is_atomic, parent_id=excluded.parent_id`,
		md.MemoryID, md.Keywords, md.Tags, md.Category, md.Context, md.Importance, md.IsAtomic, md.ParentID)
	return err
}

func (t *tx) StoreEmbeddings(ctx context.Context, memoryID int64, namespace string, vectors map[model.Sector][]float64) error {
	for sector, vec := range vectors {
		v := pgvector.NewVector(toFloat32(vec))
		_, err := t.db.Exec(ctx, `
			INSERT INTO embeddings (memory_id, sector, namespace, vector) VALUES ($1, $2, $3, $4)
			ON CONFLICT (memory_id, sector, namespace) DO UPDATE SET vector=excluded.vector`,
			memoryID, string(sector), namespace, v)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *tx) DeleteEmbeddings(ctx context.Context, memoryID int64) error {
	_, err := t.db.Exec(ctx, `DELETE FROM embeddings WHERE memory_id=$1`, memoryID)
	return err
}

func (t *tx) UpsertSearchVector(ctx context.Context, memoryID int64, content, language string) error {
	regconfig := language
	if regconfig == "" {
		regconfig = "english"
	}
	_, err := t.db.Exec(ctx, `UPDATE memories SET search_vector = to_tsvector($2::regconfig, $3) WHERE id = $1`, memoryID, regconfig, content)
	return err
}

func (t *tx) UpsertLink(ctx context.Context, link model.Link) error {
	if link.SourceID == link.TargetID {
		return fmt.Errorf("postgres.UpsertLink: self-loop on memory %d", link.SourceID)
	}
	createdAt := link.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := t.db.Exec(ctx, `
		INSERT INTO links (source_id, target_id, type, weight, created_at, traversal_count)
		VALUES ($1, $2, $3, $4, $5, 0)
		ON CONFLICT (source_id, target_id) DO UPDATE SET type=excluded.type, weight=excluded.weight`,
		link.SourceID, link.TargetID, string(link.Type), link.Weight, createdAt)
	return err
}

func (t *tx) DeleteLinksForMemory(ctx context.Context, memoryID int64) error {
	_, err := t.db.Exec(ctx, `DELETE FROM links WHERE source_id=$1 OR target_id=$1`, memoryID)
	return err
}

func (t *tx) InsertConsolidationHistory(ctx context.Context, rec model.ConsolidationHistoryRecord) error {
	_, err := t.db.Exec(ctx, `
		INSERT INTO consolidation_history (id, user_id, summary_memory_id, consolidated_memory_ids, similarity_threshold, cluster_size, consolidated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.UserID, rec.SummaryMemoryID, rec.ConsolidatedMemoryIDs, rec.SimilarityThreshold, rec.ClusterSize, rec.ConsolidatedAt)
	return err
}

func toFloat32(vec []float64) []float32 {
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(v)
	}
	return out
}
