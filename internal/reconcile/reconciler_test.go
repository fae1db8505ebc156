package reconcile

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"fablemesh/internal/arc"
	"fablemesh/internal/config"
	"fablemesh/internal/embedding"
	"fablemesh/internal/feed"
	"fablemesh/internal/pipeline"
	"fablemesh/internal/relationship"
	"fablemesh/internal/store"
	"fablemesh/internal/store/sqlite"
)

var (
	testGraphCfg = config.GraphConfig{CoOccurrenceWeight: 0.6, SimilarityWeight: 0.4, EvidenceCap: 50}
	testArcCfg   = config.ArcConfig{SimilarityThreshold: 0.75, TieEpsilon: 1e-6}
)

func newTestWorld(t *testing.T) (store.Store, *pipeline.Pipeline, *Reconciler) {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.New(ctx, "sqlite://:memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(ctx) })
	require.NoError(t, db.EnsureSchema(ctx))

	log := logrus.New()
	log.SetOutput(io.Discard)

	p := pipeline.New(
		db,
		&embedding.HashProvider{},
		relationship.NewMaintainer(db, testGraphCfg, log),
		arc.NewAssigner(db, testArcCfg, log),
		feed.NewEmitter(db, log),
		log,
	)
	return db, p, New(db, testGraphCfg, testArcCfg, log)
}

func seedCorpus(t *testing.T, db store.Store, p *pipeline.Pipeline) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, db.UpsertWorld(ctx, store.WorldInput{ID: "w1", Name: "w1"}))
	for _, id := range []string{"alice", "bram", "cora"} {
		require.NoError(t, db.UpsertInhabitant(ctx, store.InhabitantInput{ID: id, WorldID: "w1", Name: id}))
	}

	requests := []pipeline.ContentRequest{
		{WorldID: "w1", Kind: store.KindStory, Title: "Departure", Body: "Alice and Bram leave the valley.", PrimaryInhabitant: "alice", Mentions: []string{"alice", "bram"}},
		{WorldID: "w1", Kind: store.KindAction, Body: "Cora watches from the ridge.", Mentions: []string{"cora", "alice"}},
		{WorldID: "w1", Kind: store.KindStory, Title: "Departure", Body: "Alice and Bram leave the valley.", PrimaryInhabitant: "alice", Mentions: []string{"alice", "bram"}},
		{WorldID: "w1", Kind: store.KindAction, Body: "Bram trades with Cora.", Mentions: []string{"bram", "cora"}},
	}
	for _, req := range requests {
		_, err := p.EmitContentCreated(ctx, req)
		require.NoError(t, err)
	}
}

func TestReconcileEmptyWorld(t *testing.T) {
	db, _, r := newTestWorld(t)
	ctx := context.Background()
	require.NoError(t, db.UpsertWorld(ctx, store.WorldInput{ID: "empty", Name: "empty"}))

	result, err := r.Reconcile(ctx, "empty")
	require.NoError(t, err)
	require.Equal(t, 1, result.Worlds)
	require.Zero(t, result.Edges)
	require.Zero(t, result.Arcs)
}

func TestReconcileRepairsCorruptedEdge(t *testing.T) {
	db, p, r := newTestWorld(t)
	ctx := context.Background()
	seedCorpus(t, db, p)

	// First pass establishes the batch-computed baseline.
	_, err := r.Reconcile(ctx, "w1")
	require.NoError(t, err)

	baseline, err := db.GetGraph(ctx, "w1", 0)
	require.NoError(t, err)
	require.NotEmpty(t, baseline.Edges)
	wantScore := baseline.Edges[0].CombinedScore

	// Corrupt one live row behind the hooks' back.
	require.NoError(t, db.UpdateEdgeScore(ctx, "w1", baseline.Edges[0].AID, baseline.Edges[0].BID, nil, 0.0123))

	result, err := r.Reconcile(ctx, "w1")
	require.NoError(t, err)
	require.GreaterOrEqual(t, result.EdgesDrifted, 1)

	repaired, err := db.GetGraph(ctx, "w1", 0)
	require.NoError(t, err)
	require.InDelta(t, wantScore, repaired.Edges[0].CombinedScore, 1e-9)
}

func TestReconcileConverges(t *testing.T) {
	db, p, r := newTestWorld(t)
	ctx := context.Background()
	seedCorpus(t, db, p)

	_, err := r.Reconcile(ctx, "w1")
	require.NoError(t, err)

	// A second pass over already-reconciled state must find nothing to do.
	result, err := r.Reconcile(ctx, "w1")
	require.NoError(t, err)
	require.Zero(t, result.EdgesDrifted)
	require.Zero(t, result.ArcsDrifted)
}

func TestReconcileKeepsArcIDsStable(t *testing.T) {
	db, p, r := newTestWorld(t)
	ctx := context.Background()
	seedCorpus(t, db, p)

	_, err := r.Reconcile(ctx, "w1")
	require.NoError(t, err)
	before, err := db.ListArcSummaries(ctx, "w1")
	require.NoError(t, err)
	require.NotEmpty(t, before)

	_, err = r.Reconcile(ctx, "w1")
	require.NoError(t, err)
	after, err := db.ListArcSummaries(ctx, "w1")
	require.NoError(t, err)

	require.Equal(t, len(before), len(after))
	for i := range before {
		require.Equal(t, before[i].ID, after[i].ID, "unchanged membership must keep its arc id")
	}
}

func TestReconcileAllWorlds(t *testing.T) {
	db, p, r := newTestWorld(t)
	ctx := context.Background()
	seedCorpus(t, db, p)
	require.NoError(t, db.UpsertWorld(ctx, store.WorldInput{ID: "w2", Name: "w2"}))

	result, err := r.Reconcile(ctx, "")
	require.NoError(t, err)
	require.Equal(t, 2, result.Worlds)
}

func TestReconcileAssignsSkippedStory(t *testing.T) {
	db, p, r := newTestWorld(t)
	ctx := context.Background()
	require.NoError(t, db.UpsertWorld(ctx, store.WorldInput{ID: "w1", Name: "w1"}))
	require.NoError(t, db.UpsertInhabitant(ctx, store.InhabitantInput{ID: "alice", WorldID: "w1", Name: "alice"}))

	// Insert a story directly, bypassing the hooks, the way a failed
	// write-time update leaves the corpus.
	_, err := p.EmitContentCreated(ctx, pipeline.ContentRequest{
		WorldID: "w1", Kind: store.KindStory, Title: "Hook ran", Body: "assigned at write time", PrimaryInhabitant: "alice",
	})
	require.NoError(t, err)

	require.NoError(t, db.InsertContent(ctx, store.ContentInput{
		ID:        "orphan-story",
		WorldID:   "w1",
		Kind:      store.KindStory,
		Title:     "Hook skipped",
		Body:      "never processed",
		Embedding: []float32{1, 0, 0},
	}))

	_, err = r.Reconcile(ctx, "w1")
	require.NoError(t, err)

	got, err := db.GetArcByStory(ctx, "orphan-story")
	require.NoError(t, err)
	require.NotNil(t, got, "reconciliation must fold in stories the hooks missed")
}
