// Package sqlite implements memstore.Store on top of modernc.org/sqlite,
// a pure-Go, cgo-free SQLite driver (grounded on the wider example pack's
// preference for modernc.org/sqlite over the teacher's cgo-dependent
// mattn/go-sqlite3 — see DESIGN.md). It generalizes the teacher's
// pkg/storage/sqlite.Client (one table, JSON-encoded embedding column,
// in-memory cosine similarity) to the five-table schema this engine
// needs, and adds an FTS5 virtual table for full-text search, which the
// teacher's SQLite backend never implemented.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cogmem/engine/pkg/memstore"
	"github.com/cogmem/engine/pkg/memstore/fulltext"
	"github.com/cogmem/engine/pkg/memstore/similarity"
	"github.com/cogmem/engine/pkg/model"
)

// Store implements memstore.Store over a single SQLite database file.
type Store struct {
	db *sql.DB
}

// Config configures the SQLite backend.
type Config struct {
	// Path is the database file path; ":memory:" is accepted for tests.
	Path string
}

// Open creates or opens the database at cfg.Path and ensures the schema
// exists.
func Open(cfg *Config) (*Store, error) {
	if cfg.Path != ":memory:" {
		if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("sqlite.Open: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", cfg.Path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("sqlite.Open: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; one conn avoids SQLITE_BUSY churn

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("sqlite.Open: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memories (
			id INTEGER PRIMARY KEY,
			user_id TEXT NOT NULL,
			session_id TEXT,
			content TEXT NOT NULL,
			primary_sector TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			last_accessed DATETIME NOT NULL,
			access_count INTEGER NOT NULL DEFAULT 0,
			salience REAL NOT NULL DEFAULT 0.5,
			strength REAL NOT NULL DEFAULT 1.0,
			decay_rate REAL NOT NULL DEFAULT 0.05,
			embedding_status TEXT NOT NULL DEFAULT 'pending',
			consolidated_into INTEGER,
			consolidated_from TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_user_sector ON memories(user_id, primary_sector)`,
		`CREATE TABLE IF NOT EXISTS embeddings (
			memory_id INTEGER NOT NULL,
			sector TEXT NOT NULL,
			namespace TEXT NOT NULL,
			vector TEXT NOT NULL,
			PRIMARY KEY (memory_id, sector, namespace)
		)`,
		`CREATE TABLE IF NOT EXISTS metadata (
			memory_id INTEGER PRIMARY KEY,
			keywords TEXT,
			tags TEXT,
			category TEXT,
			context TEXT,
			importance REAL NOT NULL DEFAULT 0,
			is_atomic INTEGER NOT NULL DEFAULT 0,
			parent_id INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS links (
			source_id INTEGER NOT NULL,
			target_id INTEGER NOT NULL,
			type TEXT NOT NULL,
			weight REAL NOT NULL,
			created_at DATETIME NOT NULL,
			traversal_count INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (source_id, target_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_links_target ON links(target_id)`,
		`CREATE TABLE IF NOT EXISTS consolidation_history (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			summary_memory_id INTEGER NOT NULL,
			consolidated_memory_ids TEXT NOT NULL,
			similarity_threshold REAL NOT NULL,
			cluster_size INTEGER NOT NULL,
			consolidated_at DATETIME NOT NULL
		)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(content, tokenize='porter')`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite.initSchema: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Dialect reports FTS5's MATCH syntax, the boolean-query rendering this
// backend's FullTextSearch expects.
func (s *Store) Dialect() fulltext.Dialect {
	return fulltext.DialectSQLiteFTS5
}

// BeginTx starts a new transaction.
func (s *Store) BeginTx(ctx context.Context) (memstore.Tx, error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite.BeginTx: %w", err)
	}
	return &tx{db: sqlTx}, nil
}

// queryer is satisfied by both *sql.DB and *sql.Tx, letting every Reader
// method work identically whether called on the Store or inside a Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (s *Store) q() queryer { return s.db }

func (s *Store) GetMemory(ctx context.Context, id int64, userID string) (*model.Memory, error) {
	return getMemory(ctx, s.q(), id, userID)
}
func (s *Store) GetMetadata(ctx context.Context, memoryID int64) (*model.MetadataRecord, error) {
	return getMetadata(ctx, s.q(), memoryID)
}
func (s *Store) VectorSearch(ctx context.Context, query []float64, sector model.Sector, namespace, userID string, k int, minSimilarity float64) ([]memstore.ScoredID, error) {
	return vectorSearch(ctx, s.q(), query, sector, namespace, userID, k, minSimilarity)
}
func (s *Store) GetEmbeddings(ctx context.Context, memoryID int64, sectors []model.Sector) (map[model.Sector][]float64, error) {
	return getEmbeddings(ctx, s.q(), memoryID, sectors)
}
func (s *Store) FilterMetadata(ctx context.Context, f memstore.MetadataFilter) ([]int64, int, error) {
	return filterMetadata(ctx, s.q(), f)
}
func (s *Store) FullTextSearch(ctx context.Context, q memstore.FullTextQuery) ([]memstore.FullTextHit, int, bool, error) {
	return fullTextSearch(ctx, s.q(), q)
}
func (s *Store) GetLinks(ctx context.Context, memoryID int64, typeFilter []model.LinkType) ([]model.Link, error) {
	return getLinks(ctx, s.q(), memoryID, typeFilter)
}
func (s *Store) ListUnconsolidated(ctx context.Context, userID string, sector model.Sector, limit int) ([]*model.Memory, bool, error) {
	return listUnconsolidated(ctx, s.q(), userID, sector, limit)
}
func (s *Store) GetStats(ctx context.Context, userID string) (memstore.Stats, error) {
	return getStats(ctx, s.q(), userID)
}
func (s *Store) GetTimeline(ctx context.Context, f memstore.TimelineFilter) ([]memstore.TimelineEvent, error) {
	return getTimeline(ctx, s.q(), f)
}

// tx implements memstore.Tx over a single *sql.Tx.
type tx struct {
	db *sql.Tx
}

func (t *tx) q() queryer { return t.db }

func (t *tx) Commit(ctx context.Context) error   { return t.db.Commit() }
func (t *tx) Rollback(ctx context.Context) error { return t.db.Rollback() }

func (t *tx) GetMemory(ctx context.Context, id int64, userID string) (*model.Memory, error) {
	return getMemory(ctx, t.q(), id, userID)
}
func (t *tx) GetMetadata(ctx context.Context, memoryID int64) (*model.MetadataRecord, error) {
	return getMetadata(ctx, t.q(), memoryID)
}
func (t *tx) VectorSearch(ctx context.Context, query []float64, sector model.Sector, namespace, userID string, k int, minSimilarity float64) ([]memstore.ScoredID, error) {
	return vectorSearch(ctx, t.q(), query, sector, namespace, userID, k, minSimilarity)
}
func (t *tx) GetEmbeddings(ctx context.Context, memoryID int64, sectors []model.Sector) (map[model.Sector][]float64, error) {
	return getEmbeddings(ctx, t.q(), memoryID, sectors)
}
func (t *tx) FilterMetadata(ctx context.Context, f memstore.MetadataFilter) ([]int64, int, error) {
	return filterMetadata(ctx, t.q(), f)
}
func (t *tx) FullTextSearch(ctx context.Context, q memstore.FullTextQuery) ([]memstore.FullTextHit, int, bool, error) {
	return fullTextSearch(ctx, t.q(), q)
}
func (t *tx) GetLinks(ctx context.Context, memoryID int64, typeFilter []model.LinkType) ([]model.Link, error) {
	return getLinks(ctx, t.q(), memoryID, typeFilter)
}
func (t *tx) ListUnconsolidated(ctx context.Context, userID string, sector model.Sector, limit int) ([]*model.Memory, bool, error) {
	return listUnconsolidated(ctx, t.q(), userID, sector, limit)
}
func (t *tx) GetStats(ctx context.Context, userID string) (memstore.Stats, error) {
	return getStats(ctx, t.q(), userID)
}
func (t *tx) GetTimeline(ctx context.Context, f memstore.TimelineFilter) ([]memstore.TimelineEvent, error) {
	return getTimeline(ctx, t.q(), f)
}

func (t *tx) InsertMemory(ctx context.Context, m *model.Memory) error {
	var consolidatedFrom []byte
	var err error
	if len(m.ConsolidatedFrom) > 0 {
		consolidatedFrom, err = json.Marshal(m.ConsolidatedFrom)
		if err != nil {
			return err
		}
	}
	_, err = t.db.ExecContext(ctx, `
		INSERT INTO memories (id, user_id, session_id, content, primary_sector, created_at, last_accessed, access_count, salience, strength, decay_rate, embedding_status, consolidated_into, consolidated_from)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.UserID, m.SessionID, m.Content, string(m.PrimarySector), m.CreatedAt, m.LastAccessed, m.AccessCount, m.Salience, m.Strength, m.DecayRate, string(m.EmbeddingStatus), m.ConsolidatedInto, string(consolidatedFrom))
	return err
}

func (t *tx) UpdateMemory(ctx context.Context, m *model.Memory) error {
	_, err := t.db.ExecContext(ctx, `
		UPDATE memories SET content=?, salience=?, strength=?, decay_rate=?, embedding_status=?, consolidated_into=?
		WHERE id=? AND user_id=?`,
		m.Content, m.Salience, m.Strength, m.DecayRate, string(m.EmbeddingStatus), m.ConsolidatedInto, m.ID, m.UserID)
	return err
}

func (t *tx) DeleteMemory(ctx context.Context, id int64, userID string) error {
	_, err := t.db.ExecContext(ctx, `DELETE FROM memories WHERE id=? AND user_id=?`, id, userID)
	return err
}

func (t *tx) TouchAccess(ctx context.Context, id int64) error {
	_, err := t.db.ExecContext(ctx, `UPDATE memories SET access_count = access_count + 1, last_accessed = ? WHERE id = ?`, time.Now(), id)
	return err
}

func (t *tx) UpsertMetadata(ctx context.Context, md *model.MetadataRecord) error {
	keywords, err := json.Marshal(md.Keywords)
	if err != nil {
		return err
	}
	tags, err := json.Marshal(md.Tags)
	if err != nil {
		return err
	}
	isAtomic := 0
	if md.IsAtomic {
		isAtomic = 1
	}
	_, err = t.db.ExecContext(ctx, `
		INSERT INTO metadata (memory_id, keywords, tags, category, context, importance, is_atomic, parent_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(memory_id) DO UPDATE SET keywords=excluded.keywords, tags=excluded.tags, category=excluded.category, context=excluded.context, importance=excluded.importance, is_atomic=excluded.is_atomic, parent_id=excluded.parent_id`,
		md.MemoryID, string(keywords), string(tags), md.Category, md.Context, md.Importance, isAtomic, md.ParentID)
	return err
}

func (t *tx) StoreEmbeddings(ctx context.Context, memoryID int64, namespace string, vectors map[model.Sector][]float64) error {
	for sector, vec := range vectors {
		buf, err := json.Marshal(vec)
		if err != nil {
			return err
		}
		_, err = t.db.ExecContext(ctx, `
			INSERT INTO embeddings (memory_id, sector, namespace, vector) VALUES (?, ?, ?, ?)
			ON CONFLICT(memory_id, sector, namespace) DO UPDATE SET vector=excluded.vector`,
			memoryID, string(sector), namespace, string(buf))
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *tx) DeleteEmbeddings(ctx context.Context, memoryID int64) error {
	_, err := t.db.ExecContext(ctx, `DELETE FROM embeddings WHERE memory_id=?`, memoryID)
	return err
}

func (t *tx) UpsertSearchVector(ctx context.Context, memoryID int64, content, language string) error {
	if _, err := t.db.ExecContext(ctx, `DELETE FROM memories_fts WHERE rowid=?`, memoryID); err != nil {
		return err
	}
	_, err := t.db.ExecContext(ctx, `INSERT INTO memories_fts(rowid, content) VALUES (?, ?)`, memoryID, content)
	return err
}

func (t *tx) UpsertLink(ctx context.Context, link model.Link) error {
	if link.SourceID == link.TargetID {
		return fmt.Errorf("sqlite.UpsertLink: self-loop on memory %d", link.SourceID)
	}
	createdAt := link.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := t.db.ExecContext(ctx, `
		INSERT INTO links (source_id, target_id, type, weight, created_at, traversal_count)
		VALUES (?, ?, ?, ?, ?, 0)
		ON CONFLICT(source_id, target_id) DO UPDATE SET type=excluded.type, weight=excluded.weight`,
		link.SourceID, link.TargetID, string(link.Type), link.Weight, createdAt)
	return err
}

func (t *tx) DeleteLinksForMemory(ctx context.Context, memoryID int64) error {
	_, err := t.db.ExecContext(ctx, `DELETE FROM links WHERE source_id=? OR target_id=?`, memoryID, memoryID)
	return err
}

func (t *tx) InsertConsolidationHistory(ctx context.Context, rec model.ConsolidationHistoryRecord) error {
	ids, err := json.Marshal(rec.ConsolidatedMemoryIDs)
	if err != nil {
		return err
	}
	_, err = t.db.ExecContext(ctx, `
		INSERT INTO consolidation_history (id, user_id, summary_memory_id, consolidated_memory_ids, similarity_threshold, cluster_size, consolidated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.SummaryMemoryID, string(ids), rec.SimilarityThreshold, rec.ClusterSize, rec.ConsolidatedAt)
	return err
}

// --- shared read implementations (identical under *sql.DB and *sql.Tx) ---

func getMemory(ctx context.Context, q queryer, id int64, userID string) (*model.Memory, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, user_id, session_id, content, primary_sector, created_at, last_accessed, access_count, salience, strength, decay_rate, embedding_status, consolidated_into, consolidated_from
		FROM memories WHERE id=? AND user_id=?`, id, userID)
	return scanMemory(row)
}

func scanMemory(row *sql.Row) (*model.Memory, error) {
	var m model.Memory
	var sector, status string
	var consolidatedFrom sql.NullString
	var consolidatedInto sql.NullInt64
	if err := row.Scan(&m.ID, &m.UserID, &m.SessionID, &m.Content, &sector, &m.CreatedAt, &m.LastAccessed, &m.AccessCount, &m.Salience, &m.Strength, &m.DecayRate, &status, &consolidatedInto, &consolidatedFrom); err != nil {
		return nil, err
	}
	m.PrimarySector = model.Sector(sector)
	m.EmbeddingStatus = model.EmbeddingStatus(status)
	if consolidatedInto.Valid {
		v := consolidatedInto.Int64
		m.ConsolidatedInto = &v
	}
	if consolidatedFrom.Valid && consolidatedFrom.String != "" {
		_ = json.Unmarshal([]byte(consolidatedFrom.String), &m.ConsolidatedFrom)
	}
	return &m, nil
}

func getMetadata(ctx context.Context, q queryer, memoryID int64) (*model.MetadataRecord, error) {
	row := q.QueryRowContext(ctx, `SELECT memory_id, keywords, tags, category, context, importance, is_atomic, parent_id FROM metadata WHERE memory_id=?`, memoryID)
	var md model.MetadataRecord
	var keywords, tags sql.NullString
	var isAtomic int
	var parentID sql.NullInt64
	if err := row.Scan(&md.MemoryID, &keywords, &tags, &md.Category, &md.Context, &md.Importance, &isAtomic, &parentID); err != nil {
		return nil, err
	}
	if keywords.Valid {
		_ = json.Unmarshal([]byte(keywords.String), &md.Keywords)
	}
	if tags.Valid {
		_ = json.Unmarshal([]byte(tags.String), &md.Tags)
	}
	md.IsAtomic = isAtomic != 0
	if parentID.Valid {
		v := parentID.Int64
		md.ParentID = &v
	}
	return &md, nil
}

func getEmbeddings(ctx context.Context, q queryer, memoryID int64, sectors []model.Sector) (map[model.Sector][]float64, error) {
	rows, err := q.QueryContext(ctx, `SELECT sector, vector FROM embeddings WHERE memory_id=?`, memoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	want := make(map[model.Sector]bool, len(sectors))
	for _, s := range sectors {
		want[s] = true
	}

	out := make(map[model.Sector][]float64)
	for rows.Next() {
		var sector, vecJSON string
		if err := rows.Scan(&sector, &vecJSON); err != nil {
			return nil, err
		}
		s := model.Sector(sector)
		if len(want) > 0 && !want[s] {
			continue
		}
		var vec []float64
		if err := json.Unmarshal([]byte(vecJSON), &vec); err != nil {
			return nil, err
		}
		out[s] = vec
	}
	return out, rows.Err()
}

func vectorSearch(ctx context.Context, q queryer, query []float64, sector model.Sector, namespace, userID string, k int, minSimilarity float64) ([]memstore.ScoredID, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT e.memory_id, e.vector FROM embeddings e
		JOIN memories m ON m.id = e.memory_id
		WHERE e.sector=? AND e.namespace=? AND m.user_id=?`, string(sector), namespace, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scored []memstore.ScoredID
	for rows.Next() {
		var id int64
		var vecJSON string
		if err := rows.Scan(&id, &vecJSON); err != nil {
			return nil, err
		}
		var vec []float64
		if err := json.Unmarshal([]byte(vecJSON), &vec); err != nil {
			return nil, err
		}
		score := similarity.Cosine(query, vec)
		if score >= minSimilarity {
			scored = append(scored, memstore.ScoredID{MemoryID: id, Score: score})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortScoredDesc(scored)
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

func sortScoredDesc(s []memstore.ScoredID) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && (s[j].Score > s[j-1].Score || (s[j].Score == s[j-1].Score && s[j].MemoryID < s[j-1].MemoryID)); j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

func filterMetadata(ctx context.Context, q queryer, f memstore.MetadataFilter) ([]int64, int, error) {
	if err := f.Validate(); err != nil {
		return nil, 0, err
	}
	query := `
		SELECT m.id, md.keywords, md.tags, md.category, md.importance, m.created_at, m.last_accessed
		FROM memories m JOIN metadata md ON md.memory_id = m.id
		WHERE m.user_id = ?`
	args := []interface{}{f.UserID}

	if len(f.Categories) > 0 {
		query += " AND md.category IN (" + placeholders(len(f.Categories)) + ")"
		for _, c := range f.Categories {
			args = append(args, c)
		}
	}
	if f.HasImportanceRange {
		query += " AND md.importance BETWEEN ? AND ?"
		args = append(args, f.ImportanceMin, f.ImportanceMax)
	}
	if f.CreatedAfter != nil {
		query += " AND m.created_at >= ?"
		args = append(args, *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		query += " AND m.created_at <= ?"
		args = append(args, *f.CreatedBefore)
	}
	if f.AccessedAfter != nil {
		query += " AND m.last_accessed >= ?"
		args = append(args, *f.AccessedAfter)
	}
	if f.AccessedBefore != nil {
		query += " AND m.last_accessed <= ?"
		args = append(args, *f.AccessedBefore)
	}
	query += " ORDER BY m.created_at DESC"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		var keywordsJSON, tagsJSON sql.NullString
		var category string
		var importance float64
		var createdAt, lastAccessed time.Time
		if err := rows.Scan(&id, &keywordsJSON, &tagsJSON, &category, &importance, &createdAt, &lastAccessed); err != nil {
			return nil, 0, err
		}
		var keywords, tags []string
		if keywordsJSON.Valid {
			_ = json.Unmarshal([]byte(keywordsJSON.String), &keywords)
		}
		if tagsJSON.Valid {
			_ = json.Unmarshal([]byte(tagsJSON.String), &tags)
		}
		if !setMatches(keywords, f.Keywords, f.KeywordOperator) {
			continue
		}
		if !setMatches(tags, f.Tags, f.TagOperator) {
			continue
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	total := len(ids)
	offset := f.Offset
	if offset > len(ids) {
		offset = len(ids)
	}
	end := len(ids)
	if f.Limit > 0 && offset+f.Limit < end {
		end = offset + f.Limit
	}
	return ids[offset:end], total, nil
}

// setMatches implements spec.md §4.2's AND (superset)/OR (non-empty
// intersection) keyword/tag set semantics. An empty filter set always
// matches.
func setMatches(stored, filter []string, op memstore.BoolOperator) bool {
	if len(filter) == 0 {
		return true
	}
	set := make(map[string]bool, len(stored))
	for _, s := range stored {
		set[s] = true
	}
	if op == memstore.OpOR {
		for _, f := range filter {
			if set[f] {
				return true
			}
		}
		return false
	}
	for _, f := range filter {
		if !set[f] {
			return false
		}
	}
	return true
}

func placeholders(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			out += ","
		}
		out += "?"
	}
	return out
}

func fullTextSearch(ctx context.Context, q queryer, query memstore.FullTextQuery) ([]memstore.FullTextHit, int, bool, error) {
	sql_ := `
		SELECT m.id, m.content, -bm25(memories_fts) AS rank, m.created_at, m.salience, m.strength
		FROM memories_fts
		JOIN memories m ON m.id = memories_fts.rowid
		WHERE memories_fts MATCH ? AND m.user_id = ? AND m.strength >= ? AND m.salience >= ?
		ORDER BY rank DESC`
	rows, err := q.QueryContext(ctx, sql_, query.Rendered, query.UserID, query.MinStrength, query.MinSalience)
	if err != nil {
		return nil, 0, true, err
	}
	defer rows.Close()

	var hits []memstore.FullTextHit
	for rows.Next() {
		var h memstore.FullTextHit
		if err := rows.Scan(&h.MemoryID, &h.Content, &h.Rank, &h.CreatedAt, &h.Salience, &h.Strength); err != nil {
			return nil, 0, true, err
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, true, err
	}

	total := len(hits)
	offset := query.Offset
	if offset > len(hits) {
		offset = len(hits)
	}
	end := len(hits)
	if query.MaxResults > 0 && offset+query.MaxResults < end {
		end = offset + query.MaxResults
	}
	return hits[offset:end], total, true, nil
}

func getLinks(ctx context.Context, q queryer, memoryID int64, typeFilter []model.LinkType) ([]model.Link, error) {
	query := `SELECT source_id, target_id, type, weight, created_at, traversal_count FROM links WHERE (source_id=? OR target_id=?)`
	args := []interface{}{memoryID, memoryID}
	if len(typeFilter) > 0 {
		query += " AND type IN (" + placeholders(len(typeFilter)) + ")"
		for _, t := range typeFilter {
			args = append(args, string(t))
		}
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []model.Link
	for rows.Next() {
		var l model.Link
		var typ string
		if err := rows.Scan(&l.SourceID, &l.TargetID, &typ, &l.Weight, &l.CreatedAt, &l.TraversalCount); err != nil {
			return nil, err
		}
		l.Type = model.LinkType(typ)
		links = append(links, l)
	}
	return links, rows.Err()
}

func listUnconsolidated(ctx context.Context, q queryer, userID string, sector model.Sector, limit int) ([]*model.Memory, bool, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, user_id, session_id, content, primary_sector, created_at, last_accessed, access_count, salience, strength, decay_rate, embedding_status, consolidated_into, consolidated_from
		FROM memories
		WHERE user_id=? AND primary_sector=? AND consolidated_into IS NULL AND embedding_status='complete'
		ORDER BY created_at ASC LIMIT ?`, userID, string(sector), limit)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	var out []*model.Memory
	for rows.Next() {
		m, err := scanMemoryRows(rows)
		if err != nil {
			return nil, false, err
		}
		out = append(out, m)
	}
	return out, false, rows.Err()
}

func scanMemoryRows(rows *sql.Rows) (*model.Memory, error) {
	var m model.Memory
	var sector, status string
	var consolidatedFrom sql.NullString
	var consolidatedInto sql.NullInt64
	if err := rows.Scan(&m.ID, &m.UserID, &m.SessionID, &m.Content, &sector, &m.CreatedAt, &m.LastAccessed, &m.AccessCount, &m.Salience, &m.Strength, &m.DecayRate, &status, &consolidatedInto, &consolidatedFrom); err != nil {
		return nil, err
	}
	m.PrimarySector = model.Sector(sector)
	m.EmbeddingStatus = model.EmbeddingStatus(status)
	if consolidatedInto.Valid {
		v := consolidatedInto.Int64
		m.ConsolidatedInto = &v
	}
	if consolidatedFrom.Valid && consolidatedFrom.String != "" {
		_ = json.Unmarshal([]byte(consolidatedFrom.String), &m.ConsolidatedFrom)
	}
	return &m, nil
}

func getStats(ctx context.Context, q queryer, userID string) (memstore.Stats, error) {
	stats := memstore.Stats{CountsBySector: make(map[model.Sector]int)}

	rows, err := q.QueryContext(ctx, `SELECT primary_sector, COUNT(*) FROM memories WHERE user_id=? GROUP BY primary_sector`, userID)
	if err != nil {
		return stats, err
	}
	for rows.Next() {
		var sector string
		var count int
		if err := rows.Scan(&sector, &count); err != nil {
			rows.Close()
			return stats, err
		}
		stats.CountsBySector[model.Sector(sector)] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return stats, err
	}

	row := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories WHERE user_id=? AND consolidated_into IS NULL`, userID)
	if err := row.Scan(&stats.ConsolidationPending); err != nil {
		return stats, err
	}

	events, err := getTimeline(ctx, q, memstore.TimelineFilter{UserID: userID, Limit: 20})
	if err != nil {
		return stats, err
	}
	stats.RecentActivity = events
	return stats, nil
}

func getTimeline(ctx context.Context, q queryer, f memstore.TimelineFilter) ([]memstore.TimelineEvent, error) {
	query := `SELECT id, created_at, primary_sector, salience FROM memories WHERE user_id=?`
	args := []interface{}{f.UserID}
	if f.From != nil {
		query += " AND created_at >= ?"
		args = append(args, *f.From)
	}
	if f.To != nil {
		query += " AND created_at <= ?"
		args = append(args, *f.To)
	}
	query += " ORDER BY created_at DESC"
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, f.Offset)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []memstore.TimelineEvent
	for rows.Next() {
		var evt memstore.TimelineEvent
		var sector string
		if err := rows.Scan(&evt.MemoryID, &evt.Timestamp, &sector, &evt.Salience); err != nil {
			return nil, err
		}
		evt.Sector = model.Sector(sector)
		evt.EventType = "create"
		out = append(out, evt)
	}
	return out, rows.Err()
}
