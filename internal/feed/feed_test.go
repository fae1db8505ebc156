package feed

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"fablemesh/internal/store"
	"fablemesh/internal/store/sqlite"
)

func newFeedStore(t *testing.T) store.Store {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.New(ctx, "sqlite://:memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(ctx) })
	require.NoError(t, db.EnsureSchema(ctx))
	require.NoError(t, db.UpsertWorld(ctx, store.WorldInput{ID: "w1", Name: "w1"}))
	return db
}

func discardLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestEmitRequiresType(t *testing.T) {
	db := newFeedStore(t)
	emitter := NewEmitter(db, discardLogger())

	err := emitter.Emit(context.Background(), store.FeedEventInput{WorldID: "w1"})
	require.ErrorContains(t, err, "event type is required")
}

func TestEmitAsyncLandsAfterWait(t *testing.T) {
	db := newFeedStore(t)
	emitter := NewEmitter(db, discardLogger())

	for i := 0; i < 5; i++ {
		emitter.EmitAsync(store.FeedEventInput{Type: EventContentCreated, WorldID: "w1"})
	}
	emitter.Wait()

	items, _, err := db.ReadFeed(context.Background(), nil, 10)
	require.NoError(t, err)
	require.Len(t, items, 5)
}

func TestReaderClampsLimit(t *testing.T) {
	reader := NewReader(nil, 25, 100)

	tests := []struct {
		name     string
		limit    int
		expected int
	}{
		{name: "zero falls back to default", limit: 0, expected: 25},
		{name: "negative falls back to default", limit: -3, expected: 25},
		{name: "within range passes through", limit: 40, expected: 40},
		{name: "above max is capped", limit: 500, expected: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := reader.clampLimit(tt.limit); got != tt.expected {
				t.Errorf("clampLimit(%d) = %d, want %d", tt.limit, got, tt.expected)
			}
		})
	}
}

func TestReaderPage(t *testing.T) {
	db := newFeedStore(t)
	ctx := context.Background()
	emitter := NewEmitter(db, discardLogger())
	for i := 0; i < 5; i++ {
		require.NoError(t, emitter.Emit(ctx, store.FeedEventInput{Type: EventContentCreated, WorldID: "w1"}))
	}

	reader := NewReader(db, 2, 10)

	page, err := reader.Page(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.NotEmpty(t, page.NextCursor)

	page, err = reader.Page(ctx, page.NextCursor, 0)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.NotEmpty(t, page.NextCursor)

	page, err = reader.Page(ctx, page.NextCursor, 0)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Empty(t, page.NextCursor)
}

func TestReaderRejectsBadCursor(t *testing.T) {
	reader := NewReader(newFeedStore(t), 25, 100)

	_, err := reader.Page(context.Background(), "not-a-cursor", 0)
	require.ErrorIs(t, err, ErrBadCursor)

	_, _, err = reader.Stream(context.Background(), "also.bad.cursor", 0, func(store.FeedEvent) error { return nil })
	require.ErrorIs(t, err, ErrBadCursor)
}
