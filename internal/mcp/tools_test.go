package mcp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fablemesh/internal/feed"
	"fablemesh/internal/store"
	"fablemesh/internal/store/sqlite"
)

func newTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.New(ctx, "sqlite://:memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(ctx) })
	require.NoError(t, db.EnsureSchema(ctx))

	return NewServer(db, feed.NewReader(db, 25, 100), "test"), db
}

func TestGetGraphRequiresWorldID(t *testing.T) {
	server, _ := newTestServer(t)

	_, _, err := server.handleGetGraph(context.Background(), nil, GetGraphInput{})
	require.ErrorContains(t, err, "world_id is required")
}

func TestGetGraph(t *testing.T) {
	server, db := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, db.UpsertWorld(ctx, store.WorldInput{ID: "w1", Name: "w1"}))
	for _, id := range []string{"alice", "bram"} {
		require.NoError(t, db.UpsertInhabitant(ctx, store.InhabitantInput{ID: id, WorldID: "w1", Name: id}))
	}
	_, err := db.ApplyCoOccurrence(ctx, "w1", "alice", "bram", "c1", 50)
	require.NoError(t, err)
	require.NoError(t, db.UpdateEdgeScore(ctx, "w1", "alice", "bram", nil, 0.6))

	_, output, err := server.handleGetGraph(ctx, nil, GetGraphInput{WorldID: "w1"})
	require.NoError(t, err)
	require.Len(t, output.Nodes, 2)
	require.Len(t, output.Edges, 1)
	require.Equal(t, "alice", output.Edges[0].AID)

	_, output, err = server.handleGetGraph(ctx, nil, GetGraphInput{WorldID: "w1", MinScore: 0.9})
	require.NoError(t, err)
	require.Empty(t, output.Edges)
}

func TestGetArcUnassignedStory(t *testing.T) {
	server, _ := newTestServer(t)

	_, output, err := server.handleGetArc(context.Background(), nil, GetArcInput{StoryID: "nope"})
	require.NoError(t, err)
	require.False(t, output.Assigned)
	require.Nil(t, output.Arc)
}

func TestGetArc(t *testing.T) {
	server, db := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, db.UpsertWorld(ctx, store.WorldInput{ID: "w1", Name: "w1"}))
	now := time.Now().UTC()
	require.NoError(t, db.CreateArc(ctx, store.Arc{
		ID:        "arc-1",
		WorldID:   "w1",
		Title:     "The Crossing",
		MemberIDs: []string{"s1"},
		Centroid:  []float32{1, 0},
		CreatedAt: now,
		UpdatedAt: now,
	}))

	_, output, err := server.handleGetArc(ctx, nil, GetArcInput{StoryID: "s1"})
	require.NoError(t, err)
	require.True(t, output.Assigned)
	require.NotNil(t, output.Arc)
	require.Equal(t, "arc-1", output.Arc.ID)
}

func TestGetFeedPaginates(t *testing.T) {
	server, db := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, db.UpsertWorld(ctx, store.WorldInput{ID: "w1", Name: "w1"}))
	for i := 0; i < 3; i++ {
		require.NoError(t, db.AppendFeedEvent(ctx, store.FeedEventInput{
			Type:    feed.EventContentCreated,
			WorldID: "w1",
		}))
	}

	_, page, err := server.handleGetFeed(ctx, nil, GetFeedInput{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.NotEmpty(t, page.NextCursor)

	_, page, err = server.handleGetFeed(ctx, nil, GetFeedInput{Cursor: page.NextCursor, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Empty(t, page.NextCursor)
}
