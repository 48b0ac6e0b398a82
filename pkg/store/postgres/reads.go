package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/cogmem/engine/pkg/memstore"
	"github.com/cogmem/engine/pkg/model"
)

func getMemory(ctx context.Context, q querier, id int64, userID string) (*model.Memory, error) {
	row := q.QueryRow(ctx, `
		SELECT id, user_id, session_id, content, primary_sector, created_at, last_accessed, access_count, salience, strength, decay_rate, embedding_status, consolidated_into, consolidated_from
		FROM memories WHERE id=$1 AND user_id=$2`, id, userID)
	return scanMemory(row)
}

func scanMemory(row pgx.Row) (*model.Memory, error) {
	var m model.Memory
	var sector, status string
	var consolidatedInto *int64
	var consolidatedFrom []int64
	if err := row.Scan(&m.ID, &m.UserID, &m.SessionID, &m.Content, &sector, &m.CreatedAt, &m.LastAccessed, &m.AccessCount, &m.Salience, &m.Strength, &m.DecayRate, &status, &consolidatedInto, &consolidatedFrom); err != nil {
		return nil, err
	}
	m.PrimarySector = model.Sector(sector)
	m.EmbeddingStatus = model.EmbeddingStatus(status)
	m.ConsolidatedInto = consolidatedInto
	m.ConsolidatedFrom = consolidatedFrom
	return &m, nil
}

func getMetadata(ctx context.Context, q querier, memoryID int64) (*model.MetadataRecord, error) {
	row := q.QueryRow(ctx, `SELECT memory_id, keywords, tags, category, context, importance, is_atomic, parent_id FROM metadata WHERE memory_id=$1`, memoryID)
	var md model.MetadataRecord
	if err := row.Scan(&md.MemoryID, &md.Keywords, &md.Tags, &md.Category, &md.Context, &md.Importance, &md.IsAtomic, &md.ParentID); err != nil {
		return nil, err
	}
	return &md, nil
}

func getEmbeddings(ctx context.Context, q querier, memoryID int64, sectors []model.Sector) (map[model.Sector][]float64, error) {
	rows, err := q.Query(ctx, `SELECT sector, vector FROM embeddings WHERE memory_id=$1`, memoryID)
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
		var sector string
		var vec pgvector.Vector
		if err := rows.Scan(&sector, &vec); err != nil {
			return nil, err
		}
		s := model.Sector(sector)
		if len(want) > 0 && !want[s] {
			continue
		}
		out[s] = toFloat64(vec.Slice())
	}
	return out, rows.Err()
}

// vectorSearch relies on pgvector's <=> cosine-distance operator and an
// HNSW index; similarity is reported as 1 - distance, consistent with
// spec.md §4.1's cosine-similarity convention.
func vectorSearch(ctx context.Context, q querier, query []float64, sector model.Sector, namespace, userID string, k int, minSimilarity float64) ([]memstore.ScoredID, error) {
	v := pgvector.NewVector(toFloat32(query))
	limit := k
	if limit <= 0 {
		limit = 50
	}
	rows, err := q.Query(ctx, `
		SELECT e.memory_id, 1 - (e.vector <=> $1) AS score
		FROM embeddings e
		JOIN memories m ON m.id = e.memory_id
		WHERE e.sector=$2 AND e.namespace=$3 AND m.user_id=$4
		ORDER BY e.vector <=> $1, e.memory_id
		LIMIT $5`, v, string(sector), namespace, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []memstore.ScoredID
	for rows.Next() {
		var sid memstore.ScoredID
		if err := rows.Scan(&sid.MemoryID, &sid.Score); err != nil {
			return nil, err
		}
		if sid.Score >= minSimilarity {
			out = append(out, sid)
		}
	}
	return out, rows.Err()
}

func filterMetadata(ctx context.Context, q querier, f memstore.MetadataFilter) ([]int64, int, error) {
	if err := f.Validate(); err != nil {
		return nil, 0, err
	}
	query := `
		SELECT m.id FROM memories m JOIN metadata md ON md.memory_id = m.id
		WHERE m.user_id = $1`
	args := []interface{}{f.UserID}
	n := 1

	addArg := func(v interface{}) string {
		n++
		args = append(args, v)
		return fmt.Sprintf("$%d", n)
	}

	if len(f.Categories) > 0 {
		query += fmt.Sprintf(" AND md.category = ANY(%s)", addArg(f.Categories))
	}
	if len(f.Keywords) > 0 {
		if f.KeywordOperator == memstore.OpOR {
			query += fmt.Sprintf(" AND md.keywords && %s", addArg(f.Keywords))
		} else {
			query += fmt.Sprintf(" AND md.keywords @> %s", addArg(f.Keywords))
		}
	}
	if len(f.Tags) > 0 {
		if f.TagOperator == memstore.OpOR {
			query += fmt.Sprintf(" AND md.tags && %s", addArg(f.Tags))
		} else {
			query += fmt.Sprintf(" AND md.tags @> %s", addArg(f.Tags))
		}
	}
	if f.HasImportanceRange {
		query += fmt.Sprintf(" AND md.importance BETWEEN %s AND %s", addArg(f.ImportanceMin), addArg(f.ImportanceMax))
	}
	if f.CreatedAfter != nil {
		query += fmt.Sprintf(" AND m.created_at >= %s", addArg(*f.CreatedAfter))
	}
	if f.CreatedBefore != nil {
		query += fmt.Sprintf(" AND m.created_at <= %s", addArg(*f.CreatedBefore))
	}
	if f.AccessedAfter != nil {
		query += fmt.Sprintf(" AND m.last_accessed >= %s", addArg(*f.AccessedAfter))
	}
	if f.AccessedBefore != nil {
		query += fmt.Sprintf(" AND m.last_accessed <= %s", addArg(*f.AccessedBefore))
	}
	query += " ORDER BY m.created_at DESC"

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
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

func fullTextSearch(ctx context.Context, q querier, query memstore.FullTextQuery) ([]memstore.FullTextHit, int, bool, error) {
	rankFn := "ts_rank"
	if query.RankingMode == memstore.RankCD {
		rankFn = "ts_rank_cd"
	}
	regconfig := query.Language
	if regconfig == "" {
		regconfig = "english"
	}
	sqlText := fmt.Sprintf(`
		SELECT id, content, %s(search_vector, to_tsquery($1::regconfig, $2)) AS rank, created_at, salience, strength
		FROM memories
		WHERE search_vector @@ to_tsquery($1::regconfig, $2) AND user_id = $3 AND strength >= $4 AND salience >= $5
		ORDER BY rank DESC`, rankFn)

	rows, err := q.Query(ctx, sqlText, regconfig, query.Rendered, query.UserID, query.MinStrength, query.MinSalience)
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

func getLinks(ctx context.Context, q querier, memoryID int64, typeFilter []model.LinkType) ([]model.Link, error) {
	query := `SELECT source_id, target_id, type, weight, created_at, traversal_count FROM links WHERE (source_id=$1 OR target_id=$1)`
	args := []interface{}{memoryID}
	if len(typeFilter) > 0 {
		types := make([]string, len(typeFilter))
		for i, t := range typeFilter {
			types[i] = string(t)
		}
		query += " AND type = ANY($2)"
		args = append(args, types)
	}
	rows, err := q.Query(ctx, query, args...)
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

func listUnconsolidated(ctx context.Context, q querier, userID string, sector model.Sector, limit int) ([]*model.Memory, bool, error) {
	rows, err := q.Query(ctx, `
		SELECT id, user_id, session_id, content, primary_sector, created_at, last_accessed, access_count, salience, strength, decay_rate, embedding_status, consolidated_into, consolidated_from
		FROM memories
		WHERE user_id=$1 AND primary_sector=$2 AND consolidated_into IS NULL AND embedding_status='complete'
		ORDER BY created_at ASC LIMIT $3`, userID, string(sector), limit)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	var out []*model.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, false, err
		}
		out = append(out, m)
	}
	return out, false, rows.Err()
}

func getStats(ctx context.Context, q querier, userID string) (memstore.Stats, error) {
	stats := memstore.Stats{CountsBySector: make(map[model.Sector]int)}

	rows, err := q.Query(ctx, `SELECT primary_sector, COUNT(*) FROM memories WHERE user_id=$1 GROUP BY primary_sector`, userID)
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

	row := q.QueryRow(ctx, `SELECT COUNT(*) FROM memories WHERE user_id=$1 AND consolidated_into IS NULL`, userID)
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

func getTimeline(ctx context.Context, q querier, f memstore.TimelineFilter) ([]memstore.TimelineEvent, error) {
	query := `SELECT id, created_at, primary_sector, salience FROM memories WHERE user_id=$1`
	args := []interface{}{f.UserID}
	n := 1
	if f.From != nil {
		n++
		query += fmt.Sprintf(" AND created_at >= $%d", n)
		args = append(args, *f.From)
	}
	if f.To != nil {
		n++
		query += fmt.Sprintf(" AND created_at <= $%d", n)
		args = append(args, *f.To)
	}
	query += " ORDER BY created_at DESC"
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", n+1, n+2)
	args = append(args, limit, f.Offset)

	rows, err := q.Query(ctx, query, args...)
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

func toFloat64(vec []float32) []float64 {
	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = float64(v)
	}
	return out
}
