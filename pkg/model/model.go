// Package model defines the data types shared across the cognitive memory
// engine: the memory record, its per-sector embeddings, metadata, graph
// links, and the consolidation audit trail. These types mirror the
// persistence contract in pkg/memstore without depending on any storage
// backend, avoiding circular dependencies between the engine packages and
// the concrete store implementations.
package model

import "time"

// Sector is one of the five categories a memory is primarily associated
// with; it is also the axis along which five embeddings are produced per
// memory.
type Sector string

const (
	SectorEpisodic   Sector = "episodic"
	SectorSemantic   Sector = "semantic"
	SectorProcedural Sector = "procedural"
	SectorEmotional  Sector = "emotional"
	SectorReflective Sector = "reflective"
)

// Sectors lists every valid sector, in a stable order used wherever all
// five per-memory embeddings must be addressed deterministically.
var Sectors = []Sector{SectorEpisodic, SectorSemantic, SectorProcedural, SectorEmotional, SectorReflective}

// Valid reports whether s is one of the five defined sectors.
func (s Sector) Valid() bool {
	for _, v := range Sectors {
		if v == s {
			return true
		}
	}
	return false
}

// EmbeddingStatus tracks whether a memory's five sector vectors have been
// produced by the external embedder.
type EmbeddingStatus string

const (
	EmbeddingPending  EmbeddingStatus = "pending"
	EmbeddingComplete EmbeddingStatus = "complete"
	EmbeddingFailed   EmbeddingStatus = "failed"
)

// LinkType closes the enum of graph edge kinds.
type LinkType string

const (
	LinkSemantic      LinkType = "semantic"
	LinkTemporal      LinkType = "temporal"
	LinkCausal        LinkType = "causal"
	LinkAssociative   LinkType = "associative"
	LinkConsolidation LinkType = "consolidation"
)

// Valid reports whether t is a recognized link type.
func (t LinkType) Valid() bool {
	switch t {
	case LinkSemantic, LinkTemporal, LinkCausal, LinkAssociative, LinkConsolidation:
		return true
	default:
		return false
	}
}

// Content length bounds, per the invariant that every memory's content is
// between 10 and 100,000 characters.
const (
	MinContentLen = 10
	MaxContentLen = 100000
)

// Memory is a single stored memory.
//
// Invariants (enforced by the repository, never by callers):
//   - MinContentLen <= len(Content) <= MaxContentLen
//   - PrimarySector.Valid()
//   - ConsolidatedInto, if set, is never equal to ID
//   - if ConsolidatedInto is set, Strength already reflects the
//     consolidation engine's strengthReductionFactor
//   - summaries (memories created by consolidation) always have
//     PrimarySector == SectorSemantic
type Memory struct {
	ID            int64
	Content       string
	UserID        string
	SessionID     string
	PrimarySector Sector

	CreatedAt     time.Time
	LastAccessed  time.Time
	AccessCount   int64

	Salience  float64
	Strength  float64
	DecayRate float64

	EmbeddingStatus  EmbeddingStatus
	ConsolidatedInto *int64
	ConsolidatedFrom []int64
}

// IsConsolidated reports whether this memory has been folded into a
// semantic summary.
func (m *Memory) IsConsolidated() bool {
	return m.ConsolidatedInto != nil
}

// IsSummary reports whether this memory is itself a consolidation summary.
func (m *Memory) IsSummary() bool {
	return len(m.ConsolidatedFrom) > 0
}

// MetadataRecord is the metadata row associated with exactly one memory.
type MetadataRecord struct {
	MemoryID   int64
	Keywords   []string
	Tags       []string
	Category   string
	Context    string
	Importance float64
	IsAtomic   bool
	ParentID   *int64
}

// Link is a directed, weighted edge of the memory graph.
//
// Invariants: SourceID != TargetID; (SourceID, TargetID) is unique (a
// re-proposed link updates the existing row rather than duplicating it);
// Weight is in [0,1].
type Link struct {
	SourceID        int64
	TargetID        int64
	Type            LinkType
	Weight          float64
	CreatedAt       time.Time
	TraversalCount  int64
}

// ConsolidationHistoryRecord is one append-only audit row produced each
// time a cluster of episodic memories is folded into a semantic summary.
type ConsolidationHistoryRecord struct {
	ID                     string
	UserID                 string
	SummaryMemoryID        int64
	ConsolidatedMemoryIDs  []int64
	SimilarityThreshold    float64
	ClusterSize            int
	ConsolidatedAt         time.Time
}

// EmbeddingVector is a single sector's fixed-dimension vector for a memory.
type EmbeddingVector struct {
	MemoryID  int64
	Sector    Sector
	Namespace string
	Vector    []float64
}
