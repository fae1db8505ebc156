package store

import "context"

type Store interface {
	Close(ctx context.Context) error
	EnsureSchema(ctx context.Context) error

	UpsertWorld(ctx context.Context, w WorldInput) error
	ListWorlds(ctx context.Context) ([]string, error)
	UpsertInhabitant(ctx context.Context, in InhabitantInput) error
	GetInhabitant(ctx context.Context, id string) (*Inhabitant, error)
	ListInhabitants(ctx context.Context, worldID string) ([]Inhabitant, error)
	UpdateInhabitantCentroid(ctx context.Context, id string, centroid []float32, sampleCount int) error

	InsertContent(ctx context.Context, c ContentInput) error
	ContentExists(ctx context.Context, id string) (bool, error)
	GetContent(ctx context.Context, id string) (*ContentItem, error)
	ListContent(ctx context.Context, worldID string) ([]ContentItem, error)

	ApplyCoOccurrence(ctx context.Context, worldID, aID, bID, contentID string, evidenceCap int) (*Edge, error)
	MaxCoOccurrence(ctx context.Context, worldID string) (int, error)
	UpdateEdgeScore(ctx context.Context, worldID, aID, bID string, similarity *float64, combined float64) error
	GetGraph(ctx context.Context, worldID string, minScore float64) (*Graph, error)

	CreateArc(ctx context.Context, a Arc) error
	AppendArcMember(ctx context.Context, arcID, contentID string, centroid []float32) error
	GetArcByStory(ctx context.Context, storyID string) (*Arc, error)
	ListArcsForInhabitant(ctx context.Context, worldID, inhabitantID string) ([]Arc, error)
	ListWorldArcs(ctx context.Context, worldID string) ([]Arc, error)
	ListArcSummaries(ctx context.Context, worldID string) ([]ArcSummary, error)

	AppendFeedEvent(ctx context.Context, e FeedEventInput) error
	ReadFeed(ctx context.Context, cursor *Cursor, limit int) ([]FeedEvent, *Cursor, error)
	StreamFeed(ctx context.Context, cursor *Cursor, limit int, fn func(FeedEvent) error) (*Cursor, int, error)

	// ReplaceWorldDerived swaps a world's relationship and arc rows for freshly
	// computed ones in a single transaction. Used by reconciliation, which
	// treats the batch computation as authoritative.
	ReplaceWorldDerived(ctx context.Context, worldID string, edges []Edge, arcs []Arc) error

	// ClearDerived empties the relationship, arc, and feed tables and resets
	// inhabitant centroids for a world (all worlds when worldID is empty)
	// ahead of a backfill replay, so a re-run lands on identical state.
	ClearDerived(ctx context.Context, worldID string) error
}
