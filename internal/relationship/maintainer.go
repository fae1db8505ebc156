// Package relationship keeps the inhabitant relationship graph current as
// content arrives, one bounded upsert per co-occurring pair.
package relationship

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"fablemesh/internal/config"
	"fablemesh/internal/embedding"
	"fablemesh/internal/store"
)

type Maintainer struct {
	db  store.Store
	cfg config.GraphConfig
	log *logrus.Logger
}

func NewMaintainer(db store.Store, cfg config.GraphConfig, log *logrus.Logger) *Maintainer {
	return &Maintainer{db: db, cfg: cfg, log: log}
}

// OnContentCreated applies one content item's co-occurrence evidence. Orphan
// mentions are skipped with a warning, never fatal: a missing edge reads as
// "no relationship yet" on the query side, which is always a valid state.
func (m *Maintainer) OnContentCreated(ctx context.Context, item *store.ContentItem) error {
	inhabitants, err := m.resolveMentions(ctx, item)
	if err != nil {
		return err
	}

	if len(item.Embedding) > 0 {
		m.updateCentroids(ctx, item, inhabitants)
	}

	ids := make([]string, 0, len(inhabitants))
	for id := range inhabitants {
		ids = append(ids, id)
	}
	pairs := CanonicalPairs(ids)
	if len(pairs) == 0 {
		return nil
	}

	for _, pair := range pairs {
		edge, err := m.db.ApplyCoOccurrence(ctx, item.WorldID, pair[0], pair[1], item.ID, m.cfg.EvidenceCap)
		if err != nil {
			return fmt.Errorf("applying co-occurrence for (%s, %s): %w", pair[0], pair[1], err)
		}

		similarity := pairSimilarity(inhabitants[pair[0]], inhabitants[pair[1]])
		if similarity == nil {
			similarity = edge.Similarity
		}

		// The normalization base is scoped to the world and read back fresh
		// on every update, never cached in-process: another service instance
		// may have moved it.
		maxCo, err := m.db.MaxCoOccurrence(ctx, item.WorldID)
		if err != nil {
			return err
		}

		combined := CombineScore(edge.CoOccurrence, maxCo, similarity, m.cfg.CoOccurrenceWeight, m.cfg.SimilarityWeight)
		if err := m.db.UpdateEdgeScore(ctx, item.WorldID, pair[0], pair[1], similarity, combined); err != nil {
			return err
		}
	}

	return nil
}

func (m *Maintainer) resolveMentions(ctx context.Context, item *store.ContentItem) (map[string]*store.Inhabitant, error) {
	resolved := make(map[string]*store.Inhabitant, len(item.Mentions))
	for _, id := range item.Mentions {
		if _, seen := resolved[id]; seen {
			continue
		}
		in, err := m.db.GetInhabitant(ctx, id)
		if err != nil {
			return nil, err
		}
		if in == nil || in.WorldID != item.WorldID {
			m.log.WithFields(logrus.Fields{
				"content_id":    item.ID,
				"inhabitant_id": id,
			}).Warn("skipping orphan inhabitant mention")
			continue
		}
		resolved[id] = in
	}
	return resolved, nil
}

func (m *Maintainer) updateCentroids(ctx context.Context, item *store.ContentItem, inhabitants map[string]*store.Inhabitant) {
	for id, in := range inhabitants {
		count := in.SampleCount + 1
		centroid := embedding.UpdateMean(in.Centroid, item.Embedding, count)
		if err := m.db.UpdateInhabitantCentroid(ctx, id, centroid, count); err != nil {
			m.log.WithError(err).WithField("inhabitant_id", id).Warn("centroid update failed")
			continue
		}
		in.Centroid = centroid
		in.SampleCount = count
	}
}

func pairSimilarity(a, b *store.Inhabitant) *float64 {
	if len(a.Centroid) == 0 || len(b.Centroid) == 0 {
		return nil
	}
	sim := embedding.Cosine(a.Centroid, b.Centroid)
	return &sim
}

// CanonicalPairs returns every unordered pair from ids with each pair in
// canonical (lexicographic) order. Duplicates in ids count once; self-pairs
// never appear.
func CanonicalPairs(ids []string) [][2]string {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	sort.Strings(unique)

	var pairs [][2]string
	for i := 0; i < len(unique); i++ {
		for j := i + 1; j < len(unique); j++ {
			pairs = append(pairs, [2]string{unique[i], unique[j]})
		}
	}
	return pairs
}

// CombineScore blends normalized co-occurrence with semantic similarity:
// w1*(count/maxCount) + w2*similarity, clamped to [0, 1]. A negative cosine
// contributes nothing rather than dragging the score below zero.
func CombineScore(count, maxCount int, similarity *float64, coWeight, simWeight float64) float64 {
	var normalized float64
	if maxCount > 0 {
		normalized = float64(count) / float64(maxCount)
		if normalized > 1 {
			normalized = 1
		}
	}

	var sim float64
	if similarity != nil && *similarity > 0 {
		sim = *similarity
		if sim > 1 {
			sim = 1
		}
	}

	score := coWeight*normalized + simWeight*sim
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
