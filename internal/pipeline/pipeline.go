// Package pipeline wires the write-time hooks together: one content creation
// fans out to the relationship graph, the arc index, and the feed log.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"fablemesh/internal/arc"
	"fablemesh/internal/embedding"
	"fablemesh/internal/feed"
	"fablemesh/internal/relationship"
	"fablemesh/internal/store"
)

type ContentRequest struct {
	ID                string
	WorldID           string
	AgentID           string
	Kind              string
	Title             string
	Body              string
	PrimaryInhabitant string
	Mentions          []string
	Embedding         []float32
}

type Pipeline struct {
	db            store.Store
	embedder      embedding.Provider
	relationships *relationship.Maintainer
	arcs          *arc.Assigner
	emitter       *feed.Emitter
	log           *logrus.Logger
}

func New(db store.Store, embedder embedding.Provider, rel *relationship.Maintainer, arcs *arc.Assigner, emitter *feed.Emitter, log *logrus.Logger) *Pipeline {
	return &Pipeline{
		db:            db,
		embedder:      embedder,
		relationships: rel,
		arcs:          arcs,
		emitter:       emitter,
		log:           log,
	}
}

// EmitContentCreated is the internal hook content-creation collaborators
// invoke. The content row is the primary write; the derived-state updates
// behind it are best-effort and repaired by reconciliation, so an embedding
// provider outage or a feed hiccup never fails the request.
func (p *Pipeline) EmitContentCreated(ctx context.Context, req ContentRequest) (*store.ContentItem, error) {
	if err := validateRequest(&req); err != nil {
		return nil, err
	}

	if req.ID != "" {
		exists, err := p.db.ContentExists(ctx, req.ID)
		if err != nil {
			return nil, err
		}
		if exists {
			// Replay of an already-processed item; upsert semantics make the
			// hook safe to call twice.
			return p.db.GetContent(ctx, req.ID)
		}
	} else {
		req.ID = uuid.NewString()
	}

	// The embedding call may block or fail, so it runs before any row is
	// touched; row updates afterwards stay short and atomic.
	if req.Kind == store.KindStory && len(req.Embedding) == 0 {
		vec, err := p.embedder.Embed(ctx, embeddingText(&req))
		if err != nil {
			p.log.WithError(err).WithField("content_id", req.ID).
				Warn("embedding provider failed, story left unassigned until reconciliation")
		} else {
			req.Embedding = vec
		}
	}

	item := store.ContentItem{
		ID:                req.ID,
		WorldID:           req.WorldID,
		AgentID:           req.AgentID,
		Kind:              req.Kind,
		Title:             req.Title,
		Body:              req.Body,
		PrimaryInhabitant: req.PrimaryInhabitant,
		Mentions:          req.Mentions,
		Embedding:         req.Embedding,
		CreatedAt:         time.Now().UTC(),
	}

	if err := p.db.InsertContent(ctx, store.ContentInput(item)); err != nil {
		return nil, fmt.Errorf("persisting content: %w", err)
	}

	p.applyDerived(ctx, &item, false)
	return &item, nil
}

// applyDerived runs the write-time updates for one item. The three updates
// are independent: none reads another's output, and each failure is logged
// and deferred to the reconciler rather than propagated.
func (p *Pipeline) applyDerived(ctx context.Context, item *store.ContentItem, syncFeed bool) {
	if err := p.relationships.OnContentCreated(ctx, item); err != nil {
		p.log.WithError(err).WithField("content_id", item.ID).
			Warn("relationship update deferred to reconciliation")
	}

	var createdArc *store.Arc
	if item.Kind == store.KindStory {
		arcResult, isNew, err := p.arcs.OnStoryCreated(ctx, item)
		if err != nil {
			p.log.WithError(err).WithField("content_id", item.ID).
				Warn("arc assignment deferred to reconciliation")
		} else if isNew {
			createdArc = arcResult
		}
	}

	p.emitFeed(ctx, item, createdArc, syncFeed)
}

func (p *Pipeline) emitFeed(ctx context.Context, item *store.ContentItem, createdArc *store.Arc, sync bool) {
	events := []store.FeedEventInput{{
		Type: feed.EventContentCreated,
		Payload: map[string]any{
			"content_id": item.ID,
			"kind":       item.Kind,
			"title":      item.Title,
			"excerpt":    excerpt(item.Body),
			"mentions":   item.Mentions,
		},
		WorldID:   item.WorldID,
		AgentID:   item.AgentID,
		ContentID: item.ID,
	}}
	if createdArc != nil {
		events = append(events, store.FeedEventInput{
			Type: feed.EventArcStarted,
			Payload: map[string]any{
				"arc_id":        createdArc.ID,
				"title":         createdArc.Title,
				"inhabitant_id": createdArc.InhabitantID,
			},
			WorldID:   item.WorldID,
			AgentID:   item.AgentID,
			ContentID: item.ID,
		})
	}

	for _, event := range events {
		if sync {
			if err := p.emitter.Emit(ctx, event); err != nil {
				p.log.WithError(err).WithField("content_id", item.ID).Warn("feed event dropped")
			}
			continue
		}
		p.emitter.EmitAsync(event)
	}
}

type BackfillResult struct {
	ItemsReplayed int
}

// Backfill replays the historical corpus through the same write-time hooks
// in creation order. Clearing the derived tables first makes a re-run land
// on identical state.
func (p *Pipeline) Backfill(ctx context.Context, worldID string) (*BackfillResult, error) {
	if err := p.db.ClearDerived(ctx, worldID); err != nil {
		return nil, fmt.Errorf("clearing derived tables: %w", err)
	}

	items, err := p.db.ListContent(ctx, worldID)
	if err != nil {
		return nil, err
	}

	result := &BackfillResult{}
	for i := range items {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		p.applyDerived(ctx, &items[i], true)
		result.ItemsReplayed++
	}
	return result, nil
}

// ErrInvalidRequest marks rejections of the request itself, as opposed to
// storage or provider failures.
var ErrInvalidRequest = errors.New("invalid content request")

func validateRequest(req *ContentRequest) error {
	if strings.TrimSpace(req.WorldID) == "" {
		return fmt.Errorf("%w: world id is required", ErrInvalidRequest)
	}
	switch req.Kind {
	case store.KindStory, store.KindAction:
	default:
		return fmt.Errorf("%w: unknown content kind %q", ErrInvalidRequest, req.Kind)
	}
	return nil
}

func embeddingText(req *ContentRequest) string {
	if req.Title == "" {
		return req.Body
	}
	return req.Title + "\n" + req.Body
}

func excerpt(body string) string {
	const max = 280
	if len(body) <= max {
		return body
	}
	// Back up to a rune boundary so the payload never carries a split rune.
	cut := max
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut]
}
