// Package arc groups stories into continuing narrative threads by embedding
// proximity against each arc's running centroid.
package arc

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"fablemesh/internal/config"
	"fablemesh/internal/embedding"
	"fablemesh/internal/store"
)

// Decision is the outcome of matching one story against existing arcs. It is
// a pure value so the admission rule never mutates caller state.
type Decision struct {
	CreateNew  bool
	ArcID      string
	Similarity float64
}

// Decide picks the arc whose centroid is most similar to the story embedding,
// or CreateNew when nothing clears the threshold. Candidates must arrive
// sorted most-recently-updated first: a similarity tie inside epsilon goes to
// the earlier candidate, so the most active thread wins.
func Decide(emb []float32, candidates []store.Arc, threshold, epsilon float64) Decision {
	best := Decision{CreateNew: true}
	for _, cand := range candidates {
		sim := embedding.Cosine(emb, cand.Centroid)
		if best.CreateNew || sim > best.Similarity+epsilon {
			best = Decision{ArcID: cand.ID, Similarity: sim}
		}
	}
	if best.CreateNew || best.Similarity < threshold {
		return Decision{CreateNew: true, Similarity: best.Similarity}
	}
	return best
}

type Assigner struct {
	db  store.Store
	cfg config.ArcConfig
	log *logrus.Logger
}

func NewAssigner(db store.Store, cfg config.ArcConfig, log *logrus.Logger) *Assigner {
	return &Assigner{db: db, cfg: cfg, log: log}
}

// OnStoryCreated assigns the story to an arc, creating one when no centroid
// is similar enough. Returns the arc the story landed in, and whether it was
// newly created.
func (a *Assigner) OnStoryCreated(ctx context.Context, item *store.ContentItem) (*store.Arc, bool, error) {
	if len(item.Embedding) == 0 {
		// No embedding means no admission decision; the story stays
		// unassigned until the next reconciliation pass.
		a.log.WithField("content_id", item.ID).Warn("story has no embedding, skipping arc assignment")
		return nil, false, nil
	}

	candidates, err := a.candidates(ctx, item)
	if err != nil {
		return nil, false, err
	}

	decision := Decide(item.Embedding, candidates, a.cfg.SimilarityThreshold, a.cfg.TieEpsilon)
	if decision.CreateNew {
		arc := store.Arc{
			ID:           uuid.NewString(),
			WorldID:      item.WorldID,
			InhabitantID: item.PrimaryInhabitant,
			Title:        item.Title,
			MemberIDs:    []string{item.ID},
			Centroid:     item.Embedding,
			CreatedAt:    item.CreatedAt,
			UpdatedAt:    item.CreatedAt,
		}
		if err := a.db.CreateArc(ctx, arc); err != nil {
			return nil, false, fmt.Errorf("creating arc: %w", err)
		}
		return &arc, true, nil
	}

	var joined *store.Arc
	for i := range candidates {
		if candidates[i].ID == decision.ArcID {
			joined = &candidates[i]
			break
		}
	}
	if joined == nil {
		return nil, false, fmt.Errorf("decision referenced unknown arc %s", decision.ArcID)
	}

	memberCount := len(joined.MemberIDs) + 1
	centroid := embedding.UpdateMean(joined.Centroid, item.Embedding, memberCount)
	if err := a.db.AppendArcMember(ctx, joined.ID, item.ID, centroid); err != nil {
		return nil, false, fmt.Errorf("appending to arc: %w", err)
	}

	joined.MemberIDs = append(joined.MemberIDs, item.ID)
	joined.Centroid = centroid
	joined.UpdatedAt = time.Now().UTC()
	return joined, false, nil
}

// candidates follows the admission rule's scoping: the primary inhabitant's
// arcs first, falling back to the whole world when the inhabitant has none
// or the story is cross-cutting.
func (a *Assigner) candidates(ctx context.Context, item *store.ContentItem) ([]store.Arc, error) {
	if item.PrimaryInhabitant != "" {
		arcs, err := a.db.ListArcsForInhabitant(ctx, item.WorldID, item.PrimaryInhabitant)
		if err != nil {
			return nil, err
		}
		if len(arcs) > 0 {
			return arcs, nil
		}
	}
	return a.db.ListWorldArcs(ctx, item.WorldID)
}
