// Package memory implements the cognitive memory engine's orchestration
// layer: the Memory Repository (C6), Graph Builder (C5), Integrated
// Search Engine (C7), and Consolidation Engine (C8) described in
// spec.md §4.5-4.8. It generalizes the teacher's pkg/core.Client —
// snowflake id generation, a single RWMutex-guarded client struct
// wrapping storage+embedder+llm — to the five-table memstore.Store
// contract and the five-sector, multi-strategy search/consolidation
// semantics this engine adds.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/cogmem/engine/pkg/config"
	"github.com/cogmem/engine/pkg/embedder"
	"github.com/cogmem/engine/pkg/engineerr"
	"github.com/cogmem/engine/pkg/memstore"
	"github.com/cogmem/engine/pkg/memstore/similarity"
	"github.com/cogmem/engine/pkg/model"
	"github.com/cogmem/engine/pkg/storelog"
	"github.com/cogmem/engine/pkg/summarizer"
)

// Engine is the orchestration facade over a configured Store, embedder,
// and summarizer: it is the engine-wide analogue of the teacher's
// pkg/core.Client, generalized from one vector table to the five
// cognitive-memory operations C5-C8.
//
// Engine is safe for concurrent use. Per-user serialization where the
// spec requires it (consolidation) is handled internally with a keyed
// mutex, not a single global lock, so unrelated users' requests never
// block each other.
type Engine struct {
	store      memstore.Store
	embedder   embedder.Provider
	summarizer summarizer.Provider
	similarity *similarity.Calculator
	importance *importanceScorer
	log        *storelog.Logger

	searchCfg        config.SearchConfig
	consolidationCfg config.ConsolidationConfig
	namespace        string

	snow *snowflake.Node

	userLocksMu sync.Mutex
	userLocks   map[string]*sync.Mutex

	searchStateOnce sync.Once
	searchState     *searchEngine
}

// New constructs an Engine. log may be nil (storelog.Nop() is used).
func New(store memstore.Store, emb embedder.Provider, summ summarizer.Provider, cfg *config.Config, log *storelog.Logger) (*Engine, error) {
	if log == nil {
		log = storelog.Nop()
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, engineerr.New("memory.New", engineerr.KindStorage, err, nil)
	}
	namespace := cfg.Store.Namespace
	if namespace == "" {
		namespace = "default"
	}
	return &Engine{
		store:            store,
		embedder:         emb,
		summarizer:       summ,
		similarity:       similarity.New(similarity.DefaultWeights(), similarity.DefaultHalfLife),
		importance:       newImportanceScorer(),
		log:              log,
		searchCfg:        cfg.Search,
		consolidationCfg: cfg.Consolidation,
		namespace:        namespace,
		snow:             node,
		userLocks:        make(map[string]*sync.Mutex),
	}, nil
}

func (e *Engine) lockFor(userID string) *sync.Mutex {
	e.userLocksMu.Lock()
	defer e.userLocksMu.Unlock()
	l, ok := e.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		e.userLocks[userID] = l
	}
	return l
}

// CreateInput carries the fields accepted by Create.
type CreateInput struct {
	UserID    string
	SessionID string
	Content   string
	Sector    model.Sector
	Keywords      []string
	Tags          []string
	Category      string
	Context       string
	Importance    float64
	HasImportance bool
}

// Create validates content and sector, generates embeddings for every
// sector via the external embedder, and atomically stores the memory
// row, its five embedding vectors, derived metadata, and proposed
// waypoint links, per spec.md §4.6.
func (e *Engine) Create(ctx context.Context, in CreateInput) (*model.Memory, error) {
	const op = "Repository.Create"
	start := time.Now()

	if err := validateContent(in.Content); err != nil {
		e.log.Record(storelog.Op{Name: op, UserID: in.UserID, Elapsed: time.Since(start), Err: err})
		return nil, err
	}
	if in.Sector == "" {
		in.Sector = model.SectorEpisodic
	}
	if !in.Sector.Valid() {
		err := engineerr.New(op, engineerr.KindValidation, engineerr.ErrInvalidSector, map[string]interface{}{"sector": in.Sector})
		e.log.Record(storelog.Op{Name: op, UserID: in.UserID, Elapsed: time.Since(start), Err: err})
		return nil, err
	}

	vectors, err := e.embedder.EmbedAllSectors(ctx, in.Content)
	if err != nil {
		err = engineerr.New(op, engineerr.KindStorage, err, nil)
		e.log.Record(storelog.Op{Name: op, UserID: in.UserID, Elapsed: time.Since(start), Err: err})
		return nil, err
	}

	salience := e.importance.Score(in.Content)
	if in.HasImportance {
		salience = in.Importance
	}

	mem := &model.Memory{
		ID:              e.snow.Generate().Int64(),
		Content:         in.Content,
		UserID:          in.UserID,
		SessionID:       in.SessionID,
		PrimarySector:   in.Sector,
		CreatedAt:       time.Now(),
		LastAccessed:    time.Now(),
		AccessCount:     0,
		Salience:        salience,
		Strength:        1.0,
		DecayRate:       0.05,
		EmbeddingStatus: model.EmbeddingComplete,
	}

	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		err = engineerr.New(op, engineerr.KindStorage, err, nil)
		e.log.Record(storelog.Op{Name: op, UserID: in.UserID, Elapsed: time.Since(start), Err: err})
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	if err := tx.InsertMemory(ctx, mem); err != nil {
		err = engineerr.New(op, engineerr.KindTransaction, err, nil)
		e.log.Record(storelog.Op{Name: op, UserID: in.UserID, Elapsed: time.Since(start), Err: err})
		return nil, err
	}
	if err := tx.StoreEmbeddings(ctx, mem.ID, e.namespace, vectors); err != nil {
		err = engineerr.New(op, engineerr.KindTransaction, err, nil)
		e.log.Record(storelog.Op{Name: op, UserID: in.UserID, Elapsed: time.Since(start), Err: err})
		return nil, err
	}
	if err := tx.UpsertSearchVector(ctx, mem.ID, in.Content, "english"); err != nil {
		err = engineerr.New(op, engineerr.KindTransaction, err, nil)
		e.log.Record(storelog.Op{Name: op, UserID: in.UserID, Elapsed: time.Since(start), Err: err})
		return nil, err
	}
	md := &model.MetadataRecord{
		MemoryID: mem.ID,
		Keywords: in.Keywords,
		Tags:     in.Tags,
		Category: in.Category,
		Context:  in.Context,
	}
	md.Importance = salience
	if in.HasImportance {
		md.Importance = in.Importance
	}
	if err := tx.UpsertMetadata(ctx, md); err != nil {
		err = engineerr.New(op, engineerr.KindTransaction, err, nil)
		e.log.Record(storelog.Op{Name: op, UserID: in.UserID, Elapsed: time.Since(start), Err: err})
		return nil, err
	}

	if _, err := e.createWaypointLinksTx(ctx, tx, mem, vectors); err != nil {
		err = engineerr.New(op, engineerr.KindTransaction, err, nil)
		e.log.Record(storelog.Op{Name: op, UserID: in.UserID, Elapsed: time.Since(start), Err: err})
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		err = engineerr.New(op, engineerr.KindTransaction, err, nil)
		e.log.Record(storelog.Op{Name: op, UserID: in.UserID, Elapsed: time.Since(start), Err: err})
		return nil, err
	}
	committed = true

	e.log.Record(storelog.Op{Name: op, UserID: in.UserID, Elapsed: time.Since(start)})
	return mem, nil
}

func validateContent(content string) error {
	n := len(content)
	if n < model.MinContentLen {
		return engineerr.New("validateContent", engineerr.KindValidation, engineerr.ErrContentTooShort, map[string]interface{}{"length": n})
	}
	if n > model.MaxContentLen {
		return engineerr.New("validateContent", engineerr.KindValidation, engineerr.ErrContentTooLong, map[string]interface{}{"length": n})
	}
	return nil
}

// Retrieve fetches a memory by id, enforcing ownership, and bumps
// last_accessed/access_count as a side effect only on success.
func (e *Engine) Retrieve(ctx context.Context, id int64, userID string) (*model.Memory, error) {
	const op = "Repository.Retrieve"
	mem, err := e.store.GetMemory(ctx, id, userID)
	if err != nil {
		return nil, engineerr.New(op, engineerr.KindNotFound, err, map[string]interface{}{"id": id})
	}
	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return mem, nil // touch is best-effort; return value is still valid
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := tx.TouchAccess(ctx, id); err == nil {
		_ = tx.Commit(ctx)
		mem.AccessCount++
		mem.LastAccessed = time.Now()
	}
	return mem, nil
}

// UpdateInput carries the fields accepted by Update; at least one of
// Content, Strength, Salience, or Metadata must be set.
type UpdateInput struct {
	MemoryID      int64
	UserID        string
	Content       *string
	Strength      *float64
	Salience      *float64
	Metadata      *model.MetadataRecord
}

// UpdateResult reports whether embeddings were regenerated.
type UpdateResult struct {
	Memory                *model.Memory
	EmbeddingsRegenerated bool
}

// Update applies a partial update to a memory, regenerating embeddings
// and the search vector atomically when Content changes, per spec.md
// §4.6. All failures leave the store unchanged.
func (e *Engine) Update(ctx context.Context, in UpdateInput) (*UpdateResult, error) {
	const op = "Repository.Update"
	if in.Content == nil && in.Strength == nil && in.Salience == nil && in.Metadata == nil {
		return nil, engineerr.New(op, engineerr.KindValidation, engineerr.ErrEmptyUpdate, nil)
	}

	mem, err := e.store.GetMemory(ctx, in.MemoryID, in.UserID)
	if err != nil {
		return nil, engineerr.New(op, engineerr.KindNotFound, err, map[string]interface{}{"id": in.MemoryID})
	}
	if mem.UserID != in.UserID {
		return nil, engineerr.New(op, engineerr.KindForbidden, nil, map[string]interface{}{"id": in.MemoryID})
	}

	regenerated := false
	if in.Content != nil {
		if err := validateContent(*in.Content); err != nil {
			return nil, err
		}
		mem.Content = *in.Content
	}
	if in.Strength != nil {
		mem.Strength = *in.Strength
	}
	if in.Salience != nil {
		mem.Salience = *in.Salience
	}

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

	if in.Content != nil {
		vectors, err := e.embedder.EmbedAllSectors(ctx, *in.Content)
		if err != nil {
			return nil, engineerr.New(op, engineerr.KindStorage, err, nil)
		}
		if err := tx.StoreEmbeddings(ctx, mem.ID, e.namespace, vectors); err != nil {
			return nil, engineerr.New(op, engineerr.KindTransaction, err, nil)
		}
		if err := tx.UpsertSearchVector(ctx, mem.ID, *in.Content, "english"); err != nil {
			return nil, engineerr.New(op, engineerr.KindTransaction, err, nil)
		}
		regenerated = true
	}
	if err := tx.UpdateMemory(ctx, mem); err != nil {
		return nil, engineerr.New(op, engineerr.KindTransaction, err, nil)
	}
	if in.Metadata != nil {
		in.Metadata.MemoryID = mem.ID
		if err := tx.UpsertMetadata(ctx, in.Metadata); err != nil {
			return nil, engineerr.New(op, engineerr.KindTransaction, err, nil)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, engineerr.New(op, engineerr.KindTransaction, err, nil)
	}
	committed = true

	return &UpdateResult{Memory: mem, EmbeddingsRegenerated: regenerated}, nil
}

// Delete removes a memory. soft=true sets strength=0 and leaves the row
// (and its embeddings/links/metadata) in place; soft=false removes the
// memory's links, its embeddings and the memory row in one transaction.
// A hard delete does not remove the memory's metadata row or its
// consolidation history rows.
func (e *Engine) Delete(ctx context.Context, id int64, userID string, soft bool) error {
	const op = "Repository.Delete"
	mem, err := e.store.GetMemory(ctx, id, userID)
	if err != nil {
		return engineerr.New(op, engineerr.KindNotFound, err, map[string]interface{}{"id": id})
	}
	if mem.UserID != userID {
		return engineerr.New(op, engineerr.KindForbidden, nil, map[string]interface{}{"id": id})
	}

	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return engineerr.New(op, engineerr.KindStorage, err, nil)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	if soft {
		mem.Strength = 0
		if err := tx.UpdateMemory(ctx, mem); err != nil {
			return engineerr.New(op, engineerr.KindTransaction, err, nil)
		}
	} else {
		if err := tx.DeleteLinksForMemory(ctx, id); err != nil {
			return engineerr.New(op, engineerr.KindTransaction, err, nil)
		}
		if err := tx.DeleteEmbeddings(ctx, id); err != nil {
			return engineerr.New(op, engineerr.KindTransaction, err, nil)
		}
		if err := tx.DeleteMemory(ctx, id, userID); err != nil {
			return engineerr.New(op, engineerr.KindTransaction, err, nil)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return engineerr.New(op, engineerr.KindTransaction, err, nil)
	}
	committed = true
	return nil
}

const maxBatchSize = 100

// BatchItemResult reports one item's outcome within a batch operation.
type BatchItemResult struct {
	Index int
	Memory *model.Memory
	Err    error
}

// BatchCreate processes each item independently, recording each item's
// error (including a failure to start its transaction) in its result; the
// overall call fails only when items exceeds the maximum batch size.
func (e *Engine) BatchCreate(ctx context.Context, userID, sessionID string, items []CreateInput) ([]BatchItemResult, error) {
	if len(items) > maxBatchSize {
		return nil, engineerr.New("Repository.BatchCreate", engineerr.KindValidation, engineerr.ErrBatchTooLarge, map[string]interface{}{"size": len(items)})
	}
	results := make([]BatchItemResult, len(items))
	for i, item := range items {
		item.UserID = userID
		item.SessionID = sessionID
		mem, err := e.Create(ctx, item)
		results[i] = BatchItemResult{Index: i, Memory: mem, Err: err}
	}
	return results, nil
}

// BatchRetrieveResult is the outcome of BatchRetrieve.
type BatchRetrieveResult struct {
	Found    []*model.Memory
	NotFound []int64
}

// BatchRetrieve fetches each id independently, collecting hits and misses.
func (e *Engine) BatchRetrieve(ctx context.Context, userID string, ids []int64) (*BatchRetrieveResult, error) {
	if len(ids) > maxBatchSize {
		return nil, engineerr.New("Repository.BatchRetrieve", engineerr.KindValidation, engineerr.ErrBatchTooLarge, map[string]interface{}{"size": len(ids)})
	}
	out := &BatchRetrieveResult{}
	for _, id := range ids {
		mem, err := e.store.GetMemory(ctx, id, userID)
		if err != nil || mem.UserID != userID {
			out.NotFound = append(out.NotFound, id)
			continue
		}
		out.Found = append(out.Found, mem)
	}
	return out, nil
}

// BatchDeleteResult reports one id's deletion outcome.
type BatchDeleteResult struct {
	ID  int64
	Err error
}

// BatchDelete deletes each id independently.
func (e *Engine) BatchDelete(ctx context.Context, userID string, ids []int64, soft bool) ([]BatchDeleteResult, error) {
	if len(ids) > maxBatchSize {
		return nil, engineerr.New("Repository.BatchDelete", engineerr.KindValidation, engineerr.ErrBatchTooLarge, map[string]interface{}{"size": len(ids)})
	}
	out := make([]BatchDeleteResult, len(ids))
	for i, id := range ids {
		err := e.Delete(ctx, id, userID, soft)
		out[i] = BatchDeleteResult{ID: id, Err: err}
	}
	return out, nil
}

// GetStats returns per-sector counts, pending consolidation count, and a
// bounded recent-activity feed. Stats.TotalCapacity is not filled in by
// either backend and is always 0.
func (e *Engine) GetStats(ctx context.Context, userID string) (memstore.Stats, error) {
	stats, err := e.store.GetStats(ctx, userID)
	if err != nil {
		return memstore.Stats{}, engineerr.New("Repository.GetStats", engineerr.KindStorage, err, nil)
	}
	return stats, nil
}

// GetTimeline returns one "create" event per memory, newest first,
// bounded by f.Limit (capped at 500). Updates and accesses do not appear
// as events.
func (e *Engine) GetTimeline(ctx context.Context, f memstore.TimelineFilter) ([]memstore.TimelineEvent, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 500
	}
	events, err := e.store.GetTimeline(ctx, f)
	if err != nil {
		return nil, engineerr.New("Repository.GetTimeline", engineerr.KindStorage, err, nil)
	}
	return events, nil
}
