package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"fablemesh/internal/feed"
	"fablemesh/internal/pipeline"
	"fablemesh/internal/reconcile"
	"fablemesh/internal/store"
)

type Handler struct {
	db         store.Store
	pipeline   *pipeline.Pipeline
	reader     *feed.Reader
	reconciler *reconcile.Reconciler
	log        *logrus.Logger
}

func NewHandler(db store.Store, p *pipeline.Pipeline, reader *feed.Reader, r *reconcile.Reconciler, log *logrus.Logger) *Handler {
	return &Handler{db: db, pipeline: p, reader: reader, reconciler: r, log: log}
}

type UpsertWorldRequest struct {
	ID   string `json:"id" binding:"required"`
	Name string `json:"name" binding:"required"`
}

func (h *Handler) UpsertWorld(c *gin.Context) {
	var req UpsertWorldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.db.UpsertWorld(c.Request.Context(), store.WorldInput(req)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": req.ID})
}

type UpsertInhabitantRequest struct {
	ID      string `json:"id" binding:"required"`
	WorldID string `json:"world_id" binding:"required"`
	Name    string `json:"name" binding:"required"`
}

func (h *Handler) UpsertInhabitant(c *gin.Context) {
	var req UpsertInhabitantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.db.UpsertInhabitant(c.Request.Context(), store.InhabitantInput(req)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": req.ID})
}

type CreateContentRequest struct {
	ID                string    `json:"id"`
	WorldID           string    `json:"world_id" binding:"required"`
	AgentID           string    `json:"agent_id"`
	Kind              string    `json:"kind" binding:"required"`
	Title             string    `json:"title"`
	Body              string    `json:"body"`
	PrimaryInhabitant string    `json:"primary_inhabitant"`
	Mentions          []string  `json:"mentions"`
	Embedding         []float32 `json:"embedding"`
}

// CreateContent is the HTTP face of the emitContentCreated hook: the content
// row is written synchronously, the derived-state updates behind it are
// best-effort.
func (h *Handler) CreateContent(c *gin.Context) {
	var req CreateContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item, err := h.pipeline.EmitContentCreated(c.Request.Context(), pipeline.ContentRequest(req))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, pipeline.ErrInvalidRequest) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":         item.ID,
		"created_at": item.CreatedAt,
	})
}

func (h *Handler) GetGraph(c *gin.Context) {
	minScore := 0.0
	if raw := c.Query("min_score"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid min_score"})
			return
		}
		minScore = parsed
	}

	graph, err := h.db.GetGraph(c.Request.Context(), c.Param("id"), minScore)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, graphResponse(graph))
}

func (h *Handler) GetArc(c *gin.Context) {
	arc, err := h.db.GetArcByStory(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if arc == nil {
		// Unassigned is a valid state, not an error.
		c.JSON(http.StatusOK, gin.H{"arc": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"arc": arcResponse(arc)})
}

func (h *Handler) ListArcs(c *gin.Context) {
	summaries, err := h.db.ListArcSummaries(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]gin.H, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, gin.H{
			"id":            s.ID,
			"inhabitant_id": s.InhabitantID,
			"title":         s.Title,
			"member_count":  s.MemberCount,
			"updated_at":    s.UpdatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"arcs": out})
}

func (h *Handler) GetFeed(c *gin.Context) {
	limit, ok := h.feedLimit(c)
	if !ok {
		return
	}
	page, err := h.reader.Page(c.Request.Context(), c.Query("cursor"), limit)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, feed.ErrBadCursor) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	items := make([]gin.H, 0, len(page.Items))
	for _, e := range page.Items {
		items = append(items, feedEventResponse(e))
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "next_cursor": page.NextCursor})
}

// StreamFeed serves the same page as GetFeed but flushes batches of items as
// rows are produced, so a client can render before the page completes. Two
// event shapes: repeatable "items" batches, then one "done" with the next
// cursor and total count.
func (h *Handler) StreamFeed(c *gin.Context) {
	limit, ok := h.feedLimit(c)
	if !ok {
		return
	}
	// Reject a garbage cursor before committing to the event stream.
	if raw := c.Query("cursor"); raw != "" {
		if _, err := store.ParseCursor(raw); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")

	const batchSize = 10
	batch := make([]gin.H, 0, batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		c.SSEvent("items", batch)
		c.Writer.Flush()
		batch = batch[:0]
	}

	next, count, err := h.reader.Stream(c.Request.Context(), c.Query("cursor"), limit, func(e store.FeedEvent) error {
		batch = append(batch, feedEventResponse(e))
		if len(batch) >= batchSize {
			flush()
		}
		return nil
	})
	if err != nil {
		c.SSEvent("error", gin.H{"error": err.Error()})
		c.Writer.Flush()
		return
	}

	flush()
	c.SSEvent("done", gin.H{"next_cursor": next, "total": count})
	c.Writer.Flush()
}

type ReconcileRequest struct {
	WorldID string `json:"world_id"`
}

func (h *Handler) TriggerReconcile(c *gin.Context) {
	var req ReconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := h.reconciler.Reconcile(c.Request.Context(), req.WorldID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"worlds":        result.Worlds,
		"edges":         result.Edges,
		"arcs":          result.Arcs,
		"edges_drifted": result.EdgesDrifted,
		"arcs_drifted":  result.ArcsDrifted,
	})
}

type BackfillRequest struct {
	WorldID string `json:"world_id"`
}

func (h *Handler) TriggerBackfill(c *gin.Context) {
	var req BackfillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := h.pipeline.Backfill(c.Request.Context(), req.WorldID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items_replayed": result.ItemsReplayed})
}

func (h *Handler) feedLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return 0, false
	}
	return limit, true
}

func graphResponse(graph *store.Graph) gin.H {
	nodes := make([]gin.H, 0, len(graph.Nodes))
	for _, n := range graph.Nodes {
		nodes = append(nodes, gin.H{"id": n.ID, "name": n.Name})
	}
	edges := make([]gin.H, 0, len(graph.Edges))
	for _, e := range graph.Edges {
		edges = append(edges, gin.H{
			"a_id":           e.AID,
			"b_id":           e.BID,
			"co_occurrence":  e.CoOccurrence,
			"similarity":     e.Similarity,
			"combined_score": e.CombinedScore,
			"evidence_ids":   e.EvidenceIDs,
			"updated_at":     e.UpdatedAt,
		})
	}
	return gin.H{"nodes": nodes, "edges": edges}
}

func arcResponse(a *store.Arc) gin.H {
	return gin.H{
		"id":            a.ID,
		"world_id":      a.WorldID,
		"inhabitant_id": a.InhabitantID,
		"title":         a.Title,
		"members":       a.MemberIDs,
		"created_at":    a.CreatedAt,
		"updated_at":    a.UpdatedAt,
	}
}

func feedEventResponse(e store.FeedEvent) gin.H {
	return gin.H{
		"seq":        e.Seq,
		"event_type": e.Type,
		"payload":    e.Payload,
		"world_id":   e.WorldID,
		"agent_id":   e.AgentID,
		"content_id": e.ContentID,
		"created_at": e.CreatedAt,
	}
}
