package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"fablemesh/internal/arc"
	"fablemesh/internal/config"
	"fablemesh/internal/embedding"
	"fablemesh/internal/feed"
	"fablemesh/internal/pipeline"
	"fablemesh/internal/reconcile"
	"fablemesh/internal/relationship"
	"fablemesh/internal/store"
	"fablemesh/internal/store/sqlite"
)

func newTestRouter(t *testing.T) (*gin.Engine, store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	db, err := sqlite.New(ctx, "sqlite://:memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(ctx) })
	require.NoError(t, db.EnsureSchema(ctx))

	log := logrus.New()
	log.SetOutput(io.Discard)

	graphCfg := config.GraphConfig{CoOccurrenceWeight: 0.6, SimilarityWeight: 0.4, EvidenceCap: 50}
	arcCfg := config.ArcConfig{SimilarityThreshold: 0.75, TieEpsilon: 1e-6}

	p := pipeline.New(
		db,
		&embedding.HashProvider{},
		relationship.NewMaintainer(db, graphCfg, log),
		arc.NewAssigner(db, arcCfg, log),
		feed.NewEmitter(db, log),
		log,
	)
	reader := feed.NewReader(db, 25, 100)
	reconciler := reconcile.New(db, graphCfg, arcCfg, log)

	return SetupRouter(NewHandler(db, p, reader, reconciler, log)), db
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateContentEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/worlds", gin.H{"id": "w1", "name": "Thornwick"})
	require.Equal(t, http.StatusOK, rec.Code)

	for _, id := range []string{"alice", "bram"} {
		rec = doJSON(t, router, http.MethodPost, "/api/v1/inhabitants", gin.H{"id": id, "world_id": "w1", "name": id})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/v1/content", gin.H{
		"world_id": "w1",
		"kind":     "action",
		"body":     "Alice and Bram spar in the yard.",
		"mentions": []string{"alice", "bram"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)
}

func TestCreateContentRejectsBadKind(t *testing.T) {
	router, _ := newTestRouter(t)
	doJSON(t, router, http.MethodPost, "/api/v1/worlds", gin.H{"id": "w1", "name": "w1"})

	rec := doJSON(t, router, http.MethodPost, "/api/v1/content", gin.H{
		"world_id": "w1",
		"kind":     "poem",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateContentRejectsMissingWorld(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/content", gin.H{"kind": "story"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGraphEndpoint(t *testing.T) {
	router, db := newTestRouter(t)
	ctx := context.Background()

	doJSON(t, router, http.MethodPost, "/api/v1/worlds", gin.H{"id": "w1", "name": "w1"})
	for _, id := range []string{"alice", "bram"} {
		doJSON(t, router, http.MethodPost, "/api/v1/inhabitants", gin.H{"id": id, "world_id": "w1", "name": id})
	}
	_, err := db.ApplyCoOccurrence(ctx, "w1", "alice", "bram", "c1", 50)
	require.NoError(t, err)
	require.NoError(t, db.UpdateEdgeScore(ctx, "w1", "alice", "bram", nil, 0.6))

	rec := doJSON(t, router, http.MethodGet, "/api/v1/worlds/w1/graph", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Nodes []json.RawMessage `json:"nodes"`
		Edges []json.RawMessage `json:"edges"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Nodes, 2)
	require.Len(t, body.Edges, 1)

	// min_score above the only edge filters it out.
	rec = doJSON(t, router, http.MethodGet, "/api/v1/worlds/w1/graph?min_score=0.9", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Empty(t, body.Edges)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/worlds/w1/graph?min_score=bogus", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFeedEndpoint(t *testing.T) {
	router, db := newTestRouter(t)
	ctx := context.Background()

	doJSON(t, router, http.MethodPost, "/api/v1/worlds", gin.H{"id": "w1", "name": "w1"})
	for i := 0; i < 3; i++ {
		require.NoError(t, db.AppendFeedEvent(ctx, store.FeedEventInput{
			Type:    feed.EventContentCreated,
			WorldID: "w1",
		}))
	}

	rec := doJSON(t, router, http.MethodGet, "/api/v1/feed?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var page struct {
		Items      []json.RawMessage `json:"items"`
		NextCursor string            `json:"next_cursor"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Items, 2)
	require.NotEmpty(t, page.NextCursor)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/feed?limit=2&cursor="+page.NextCursor, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Items, 1)
	require.Empty(t, page.NextCursor)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/feed?cursor=garbage", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStreamFeedEndpoint(t *testing.T) {
	router, db := newTestRouter(t)
	ctx := context.Background()

	doJSON(t, router, http.MethodPost, "/api/v1/worlds", gin.H{"id": "w1", "name": "w1"})
	for i := 0; i < 3; i++ {
		require.NoError(t, db.AppendFeedEvent(ctx, store.FeedEventInput{
			Type:    feed.EventContentCreated,
			WorldID: "w1",
		}))
	}

	rec := doJSON(t, router, http.MethodGet, "/api/v1/feed/stream?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/event-stream")

	body := rec.Body.String()
	require.Contains(t, body, "event:items")
	require.Contains(t, body, "event:done")
	require.Contains(t, body, `"total":3`)

	// A malformed cursor fails as a plain 400 before any event is written.
	rec = doJSON(t, router, http.MethodGet, "/api/v1/feed/stream?cursor=garbage", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotContains(t, rec.Header().Get("Content-Type"), "text/event-stream")
}

func TestArcEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	doJSON(t, router, http.MethodPost, "/api/v1/worlds", gin.H{"id": "w1", "name": "w1"})
	doJSON(t, router, http.MethodPost, "/api/v1/inhabitants", gin.H{"id": "alice", "world_id": "w1", "name": "alice"})

	rec := doJSON(t, router, http.MethodPost, "/api/v1/content", gin.H{
		"world_id":           "w1",
		"kind":               "story",
		"title":              "First Light",
		"body":               "Alice opens the observatory dome.",
		"primary_inhabitant": "alice",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, router, http.MethodGet, "/api/v1/stories/"+created.ID+"/arc", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var arcBody struct {
		Arc *struct {
			ID string `json:"id"`
		} `json:"arc"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &arcBody))
	require.NotNil(t, arcBody.Arc)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/worlds/w1/arcs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Arcs []json.RawMessage `json:"arcs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Arcs, 1)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/stories/no-such-story/arc", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &arcBody))
	require.Nil(t, arcBody.Arc)
}

func TestReconcileEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	doJSON(t, router, http.MethodPost, "/api/v1/worlds", gin.H{"id": "w1", "name": "w1"})

	rec := doJSON(t, router, http.MethodPost, "/api/v1/reconcile", gin.H{"world_id": "w1"})
	require.Equal(t, http.StatusOK, rec.Code)

	var result struct {
		Worlds int `json:"worlds"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Equal(t, 1, result.Worlds)
}

func TestBackfillEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	doJSON(t, router, http.MethodPost, "/api/v1/worlds", gin.H{"id": "w1", "name": "w1"})
	rec := doJSON(t, router, http.MethodPost, "/api/v1/content", gin.H{
		"world_id": "w1",
		"kind":     "action",
		"body":     "Something happens.",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/backfill", gin.H{"world_id": "w1"})
	require.Equal(t, http.StatusOK, rec.Code)

	var result struct {
		ItemsReplayed int `json:"items_replayed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Equal(t, 1, result.ItemsReplayed)
}
