// Package reconcile recomputes the derived stores from the full content
// corpus and repairs whatever the write-time hooks missed. The batch
// computation is authoritative: live rows are replaced wholesale, never
// diffed under lock.
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"fablemesh/internal/arc"
	"fablemesh/internal/config"
	"fablemesh/internal/embedding"
	"fablemesh/internal/relationship"
	"fablemesh/internal/store"
)

type Reconciler struct {
	db       store.Store
	graphCfg config.GraphConfig
	arcCfg   config.ArcConfig
	log      *logrus.Logger
}

func New(db store.Store, graphCfg config.GraphConfig, arcCfg config.ArcConfig, log *logrus.Logger) *Reconciler {
	return &Reconciler{db: db, graphCfg: graphCfg, arcCfg: arcCfg, log: log}
}

type Result struct {
	Worlds       int
	Edges        int
	Arcs         int
	EdgesDrifted int
	ArcsDrifted  int
}

// Reconcile rebuilds derived state for one world, or for every world when
// worldID is empty. Each world is computed fully in memory and then swapped
// in one transaction, so an interruption between worlds leaves no partial
// state behind.
func (r *Reconciler) Reconcile(ctx context.Context, worldID string) (*Result, error) {
	worlds := []string{worldID}
	if worldID == "" {
		var err error
		worlds, err = r.db.ListWorlds(ctx)
		if err != nil {
			return nil, err
		}
	}

	result := &Result{}
	for _, w := range worlds {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := r.reconcileWorld(ctx, w, result); err != nil {
			return result, fmt.Errorf("reconciling world %s: %w", w, err)
		}
		result.Worlds++
	}
	return result, nil
}

// Run invokes Reconcile on a fixed interval until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			result, err := r.Reconcile(ctx, "")
			if err != nil {
				r.log.WithError(err).Error("reconciliation pass failed")
				continue
			}
			r.log.WithFields(logrus.Fields{
				"worlds":        result.Worlds,
				"edges":         result.Edges,
				"arcs":          result.Arcs,
				"edges_drifted": result.EdgesDrifted,
				"arcs_drifted":  result.ArcsDrifted,
			}).Info("reconciliation pass complete")
		}
	}
}

func (r *Reconciler) reconcileWorld(ctx context.Context, worldID string, result *Result) error {
	items, err := r.db.ListContent(ctx, worldID)
	if err != nil {
		return err
	}
	inhabitants, err := r.db.ListInhabitants(ctx, worldID)
	if err != nil {
		return err
	}

	known := make(map[string]*store.Inhabitant, len(inhabitants))
	for i := range inhabitants {
		known[inhabitants[i].ID] = &inhabitants[i]
	}

	centroids := r.computeCentroids(items, known)
	edges := r.computeEdges(worldID, items, known, centroids)
	arcs, err := r.computeArcs(ctx, worldID, items)
	if err != nil {
		return err
	}

	edgeDrift, err := r.diffEdges(ctx, worldID, edges)
	if err != nil {
		return err
	}
	arcDrift, err := r.diffArcs(ctx, worldID, arcs)
	if err != nil {
		return err
	}
	if edgeDrift > 0 || arcDrift > 0 {
		r.log.WithFields(logrus.Fields{
			"world_id":      worldID,
			"edges_drifted": edgeDrift,
			"arcs_drifted":  arcDrift,
		}).Info("correcting derived-state drift")
	}

	// Persist the repaired centroids before swapping the rows that depend
	// on them.
	for id, c := range centroids {
		if err := r.db.UpdateInhabitantCentroid(ctx, id, c.mean, c.count); err != nil {
			return err
		}
	}

	if err := r.db.ReplaceWorldDerived(ctx, worldID, edges, arcs); err != nil {
		return err
	}

	result.Edges += len(edges)
	result.Arcs += len(arcs)
	result.EdgesDrifted += edgeDrift
	result.ArcsDrifted += arcDrift
	return nil
}

type centroid struct {
	mean  []float32
	count int
}

func (r *Reconciler) computeCentroids(items []store.ContentItem, known map[string]*store.Inhabitant) map[string]*centroid {
	centroids := make(map[string]*centroid)
	for i := range items {
		item := &items[i]
		if len(item.Embedding) == 0 {
			continue
		}
		for _, id := range uniqueMentions(item, known) {
			c := centroids[id]
			if c == nil {
				c = &centroid{}
				centroids[id] = c
			}
			c.count++
			c.mean = embedding.UpdateMean(c.mean, item.Embedding, c.count)
		}
	}
	return centroids
}

func (r *Reconciler) computeEdges(worldID string, items []store.ContentItem, known map[string]*store.Inhabitant, centroids map[string]*centroid) []store.Edge {
	byPair := make(map[[2]string]*store.Edge)
	var keys [][2]string

	for i := range items {
		item := &items[i]
		for _, pair := range relationship.CanonicalPairs(uniqueMentions(item, known)) {
			edge := byPair[pair]
			if edge == nil {
				edge = &store.Edge{WorldID: worldID, AID: pair[0], BID: pair[1]}
				byPair[pair] = edge
				keys = append(keys, pair)
			}
			edge.CoOccurrence++
			edge.EvidenceIDs = append(edge.EvidenceIDs, item.ID)
			if len(edge.EvidenceIDs) > r.graphCfg.EvidenceCap {
				edge.EvidenceIDs = edge.EvidenceIDs[len(edge.EvidenceIDs)-r.graphCfg.EvidenceCap:]
			}
			edge.UpdatedAt = item.CreatedAt
		}
	}

	maxCo := 0
	for _, edge := range byPair {
		if edge.CoOccurrence > maxCo {
			maxCo = edge.CoOccurrence
		}
	}

	edges := make([]store.Edge, 0, len(keys))
	for _, pair := range keys {
		edge := byPair[pair]
		a, b := centroids[pair[0]], centroids[pair[1]]
		if a != nil && b != nil {
			sim := embedding.Cosine(a.mean, b.mean)
			edge.Similarity = &sim
		}
		edge.CombinedScore = relationship.CombineScore(edge.CoOccurrence, maxCo, edge.Similarity,
			r.graphCfg.CoOccurrenceWeight, r.graphCfg.SimilarityWeight)
		edges = append(edges, *edge)
	}
	return edges
}

// computeArcs folds stories through the same admission rule the live path
// uses, in content-creation order, which makes the clustering reproducible.
func (r *Reconciler) computeArcs(ctx context.Context, worldID string, items []store.ContentItem) ([]store.Arc, error) {
	var arcs []*store.Arc

	for i := range items {
		item := &items[i]
		if item.Kind != store.KindStory || len(item.Embedding) == 0 {
			continue
		}

		candidates := arcCandidates(arcs, item.PrimaryInhabitant)
		decision := arc.Decide(item.Embedding, candidates, r.arcCfg.SimilarityThreshold, r.arcCfg.TieEpsilon)
		if decision.CreateNew {
			arcs = append(arcs, &store.Arc{
				ID:           uuid.NewString(),
				WorldID:      worldID,
				InhabitantID: item.PrimaryInhabitant,
				Title:        item.Title,
				MemberIDs:    []string{item.ID},
				Centroid:     item.Embedding,
				CreatedAt:    item.CreatedAt,
				UpdatedAt:    item.CreatedAt,
			})
			continue
		}
		for _, a := range arcs {
			if a.ID == decision.ArcID {
				a.MemberIDs = append(a.MemberIDs, item.ID)
				a.Centroid = embedding.UpdateMean(a.Centroid, item.Embedding, len(a.MemberIDs))
				a.UpdatedAt = item.CreatedAt
				break
			}
		}
	}

	// Arcs whose membership survived unchanged keep their live identity, so
	// arc ids stay stable across passes that find no drift.
	live, err := r.db.ListWorldArcs(ctx, worldID)
	if err != nil {
		return nil, err
	}
	liveByMembers := make(map[string]string, len(live))
	for _, a := range live {
		liveByMembers[membershipKey(a.MemberIDs)] = a.ID
	}

	out := make([]store.Arc, 0, len(arcs))
	for _, a := range arcs {
		if id, ok := liveByMembers[membershipKey(a.MemberIDs)]; ok {
			a.ID = id
		}
		out = append(out, *a)
	}
	return out, nil
}

// arcCandidates mirrors the live candidate scoping, sorted most recently
// updated first so tie-breaking matches the write path.
func arcCandidates(arcs []*store.Arc, inhabitantID string) []store.Arc {
	var scoped []store.Arc
	if inhabitantID != "" {
		for _, a := range arcs {
			if a.InhabitantID == inhabitantID {
				scoped = append(scoped, *a)
			}
		}
	}
	if len(scoped) == 0 {
		for _, a := range arcs {
			scoped = append(scoped, *a)
		}
	}
	sort.SliceStable(scoped, func(i, j int) bool {
		return scoped[i].UpdatedAt.After(scoped[j].UpdatedAt)
	})
	return scoped
}

func (r *Reconciler) diffEdges(ctx context.Context, worldID string, computed []store.Edge) (int, error) {
	graph, err := r.db.GetGraph(ctx, worldID, 0)
	if err != nil {
		return 0, err
	}

	liveByPair := make(map[[2]string]store.Edge, len(graph.Edges))
	for _, e := range graph.Edges {
		liveByPair[[2]string{e.AID, e.BID}] = e
	}

	drifted := 0
	seen := make(map[[2]string]struct{}, len(computed))
	for _, e := range computed {
		key := [2]string{e.AID, e.BID}
		seen[key] = struct{}{}
		liveEdge, ok := liveByPair[key]
		if !ok || liveEdge.CoOccurrence != e.CoOccurrence || !scoresClose(liveEdge.CombinedScore, e.CombinedScore) {
			drifted++
		}
	}
	for key := range liveByPair {
		if _, ok := seen[key]; !ok {
			drifted++
		}
	}
	return drifted, nil
}

func (r *Reconciler) diffArcs(ctx context.Context, worldID string, computed []store.Arc) (int, error) {
	live, err := r.db.ListWorldArcs(ctx, worldID)
	if err != nil {
		return 0, err
	}

	liveMembers := make(map[string]struct{}, len(live))
	for _, a := range live {
		liveMembers[membershipKey(a.MemberIDs)] = struct{}{}
	}

	drifted := 0
	seen := make(map[string]struct{}, len(computed))
	for _, a := range computed {
		key := membershipKey(a.MemberIDs)
		seen[key] = struct{}{}
		if _, ok := liveMembers[key]; !ok {
			drifted++
		}
	}
	for key := range liveMembers {
		if _, ok := seen[key]; !ok {
			drifted++
		}
	}
	return drifted, nil
}

func uniqueMentions(item *store.ContentItem, known map[string]*store.Inhabitant) []string {
	seen := make(map[string]struct{}, len(item.Mentions))
	var ids []string
	for _, id := range item.Mentions {
		if _, ok := seen[id]; ok {
			continue
		}
		if _, ok := known[id]; !ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

func membershipKey(memberIDs []string) string {
	key := ""
	for _, id := range memberIDs {
		key += id + "\x00"
	}
	return key
}

func scoresClose(a, b float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < 1e-9
}
