package memory

import (
	"context"

	"github.com/cogmem/engine/pkg/engineerr"
	"github.com/cogmem/engine/pkg/memstore"
	"github.com/cogmem/engine/pkg/model"
)

// waypointSimilarityThreshold is the minimum semantic-vector cosine
// similarity at which Create proposes a "semantic" link to a neighbour.
const waypointSimilarityThreshold = 0.7

// waypointNeighbourLimit caps how many candidate neighbours the
// similarity search considers per new memory.
const waypointNeighbourLimit = 10

// waypointTemporalLimit caps how many of the user's most recent prior
// memories receive a "temporal" link.
const waypointTemporalLimit = 3

// createWaypointLinksTx proposes links for a newly (or re-)written
// memory based on semantic-vector similarity and temporal adjacency,
// per spec.md §4.5. It never produces self-loops, and relies on
// Tx.UpsertLink's ON CONFLICT semantics for idempotent re-creation.
func (e *Engine) createWaypointLinksTx(ctx context.Context, tx memstore.Tx, mem *model.Memory, vectors map[model.Sector][]float64) ([]model.Link, error) {
	var links []model.Link

	if semanticVector, ok := vectors[model.SectorSemantic]; ok && len(semanticVector) > 0 {
		neighbours, err := tx.VectorSearch(ctx, semanticVector, model.SectorSemantic, e.namespace, mem.UserID, waypointNeighbourLimit, waypointSimilarityThreshold)
		if err != nil {
			return nil, engineerr.New("Graph.createWaypointLinks", engineerr.KindStorage, err, nil)
		}
		for _, n := range neighbours {
			if n.MemoryID == mem.ID {
				continue
			}
			link := model.Link{
				SourceID: mem.ID,
				TargetID: n.MemoryID,
				Type:     model.LinkSemantic,
				Weight:   clampWeight(n.Score),
			}
			if err := tx.UpsertLink(ctx, link); err != nil {
				return nil, engineerr.New("Graph.createWaypointLinks", engineerr.KindStorage, err, nil)
			}
			links = append(links, link)
		}
	}

	stats, err := tx.GetStats(ctx, mem.UserID)
	if err == nil {
		count := 0
		for _, evt := range stats.RecentActivity {
			if count >= waypointTemporalLimit {
				break
			}
			if evt.MemoryID == mem.ID {
				continue
			}
			link := model.Link{
				SourceID: mem.ID,
				TargetID: evt.MemoryID,
				Type:     model.LinkTemporal,
				Weight:   0.5,
			}
			if err := tx.UpsertLink(ctx, link); err != nil {
				return nil, engineerr.New("Graph.createWaypointLinks", engineerr.KindStorage, err, nil)
			}
			links = append(links, link)
			count++
		}
	}

	return links, nil
}

// consolidationLinksTx inserts the symmetric "consolidation" edges of
// weight 0.9 between a newly created summary and each of its source
// memories, per spec.md §4.5/§4.8.
func consolidationLinksTx(ctx context.Context, tx memstore.Tx, summaryID int64, originalIDs []int64) error {
	for _, id := range originalIDs {
		if id == summaryID {
			continue
		}
		if err := tx.UpsertLink(ctx, model.Link{SourceID: summaryID, TargetID: id, Type: model.LinkConsolidation, Weight: 0.9}); err != nil {
			return err
		}
		if err := tx.UpsertLink(ctx, model.Link{SourceID: id, TargetID: summaryID, Type: model.LinkConsolidation, Weight: 0.9}); err != nil {
			return err
		}
	}
	return nil
}

func clampWeight(w float64) float64 {
	if w < 0 {
		return 0
	}
	if w > 1 {
		return 1
	}
	return w
}

// DeleteLinksForMemory removes every edge touching id, used by hard
// delete and available as a standalone graph-maintenance operation.
func (e *Engine) DeleteLinksForMemory(ctx context.Context, id int64) error {
	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return engineerr.New("Graph.deleteLinksForMemory", engineerr.KindStorage, err, nil)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()
	if err := tx.DeleteLinksForMemory(ctx, id); err != nil {
		return engineerr.New("Graph.deleteLinksForMemory", engineerr.KindStorage, err, nil)
	}
	if err := tx.Commit(ctx); err != nil {
		return engineerr.New("Graph.deleteLinksForMemory", engineerr.KindStorage, err, nil)
	}
	committed = true
	return nil
}

// GraphResult is the payload of GetGraph: the reachable node set, the
// edges between them, and a simple connected-component clustering.
type GraphResult struct {
	Nodes    []*model.Memory
	Edges    []model.Link
	Clusters [][]int64
}

// GraphQuery carries GetGraph's parameters.
type GraphQuery struct {
	UserID         string
	CenterMemoryID int64
	HasCenter      bool
	Depth          int
	TypeFilter     []model.LinkType
	SeedIDs        []int64 // used when HasCenter is false
}

const maxGraphDepth = 5

// GetGraph returns nodes, edges, and clusters reachable within Depth
// hops from CenterMemoryID (or a default seed set), via depth-bounded
// BFS that never re-traverses a visited node, per spec.md §4.6.
func (e *Engine) GetGraph(ctx context.Context, q GraphQuery) (*GraphResult, error) {
	const op = "Repository.GetGraph"
	if q.Depth <= 0 || q.Depth > maxGraphDepth {
		q.Depth = maxGraphDepth
	}

	var seeds []int64
	if q.HasCenter {
		seeds = []int64{q.CenterMemoryID}
	} else {
		seeds = q.SeedIDs
	}

	visited := make(map[int64]bool)
	var nodes []*model.Memory
	var edges []model.Link

	type frontierItem struct {
		id    int64
		depth int
	}
	var frontier []frontierItem
	for _, s := range seeds {
		if !visited[s] {
			visited[s] = true
			frontier = append(frontier, frontierItem{id: s, depth: 0})
		}
	}

	for len(frontier) > 0 {
		item := frontier[0]
		frontier = frontier[1:]

		mem, err := e.store.GetMemory(ctx, item.id, q.UserID)
		if err != nil {
			continue // unreachable or not owned; skip rather than fail the whole traversal
		}
		nodes = append(nodes, mem)

		if item.depth >= q.Depth {
			continue
		}

		links, err := e.store.GetLinks(ctx, item.id, q.TypeFilter)
		if err != nil {
			return nil, engineerr.New(op, engineerr.KindStorage, err, nil)
		}
		for _, l := range links {
			edges = append(edges, l)
			next := l.TargetID
			if next == item.id {
				next = l.SourceID
			}
			if !visited[next] {
				visited[next] = true
				frontier = append(frontier, frontierItem{id: next, depth: item.depth + 1})
			}
		}
	}

	clusters := connectedComponents(nodes, edges)
	return &GraphResult{Nodes: nodes, Edges: edges, Clusters: clusters}, nil
}

// connectedComponents groups nodes into connected components using the
// collected edge set, for GetGraph's "clusters" output.
func connectedComponents(nodes []*model.Memory, edges []model.Link) [][]int64 {
	adjacency := make(map[int64][]int64)
	for _, e := range edges {
		adjacency[e.SourceID] = append(adjacency[e.SourceID], e.TargetID)
		adjacency[e.TargetID] = append(adjacency[e.TargetID], e.SourceID)
	}

	visited := make(map[int64]bool)
	var clusters [][]int64
	for _, n := range nodes {
		if visited[n.ID] {
			continue
		}
		var component []int64
		stack := []int64{n.ID}
		visited[n.ID] = true
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			component = append(component, cur)
			for _, next := range adjacency[cur] {
				if !visited[next] {
					visited[next] = true
					stack = append(stack, next)
				}
			}
		}
		clusters = append(clusters, component)
	}
	return clusters
}
