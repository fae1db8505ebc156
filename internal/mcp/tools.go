package mcp

import (
	"context"
	"fmt"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"fablemesh/internal/store"
)

type GetGraphInput struct {
	WorldID  string  `json:"world_id" jsonschema:"world to read the graph of"`
	MinScore float64 `json:"min_score,omitempty" jsonschema:"drop edges below this combined score"`
}

type GetArcInput struct {
	StoryID string `json:"story_id" jsonschema:"story content id"`
}

type ListArcsInput struct {
	WorldID string `json:"world_id" jsonschema:"world to list arcs for"`
}

type GetFeedInput struct {
	Cursor string `json:"cursor,omitempty" jsonschema:"opaque cursor from a previous page"`
	Limit  int    `json:"limit,omitempty" jsonschema:"page size"`
}

type NodeOutput struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type EdgeOutput struct {
	AID           string   `json:"a_id"`
	BID           string   `json:"b_id"`
	CoOccurrence  int      `json:"co_occurrence"`
	Similarity    *float64 `json:"similarity,omitempty"`
	CombinedScore float64  `json:"combined_score"`
	EvidenceIDs   []string `json:"evidence_ids"`
}

type GetGraphOutput struct {
	Nodes []NodeOutput `json:"nodes"`
	Edges []EdgeOutput `json:"edges"`
}

type ArcOutput struct {
	ID           string    `json:"id"`
	WorldID      string    `json:"world_id"`
	InhabitantID string    `json:"inhabitant_id"`
	Title        string    `json:"title"`
	MemberIDs    []string  `json:"member_ids"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type GetArcOutput struct {
	Assigned bool       `json:"assigned"`
	Arc      *ArcOutput `json:"arc,omitempty"`
}

type ArcSummaryOutput struct {
	ID           string    `json:"id"`
	InhabitantID string    `json:"inhabitant_id"`
	Title        string    `json:"title"`
	MemberCount  int       `json:"member_count"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type ListArcsOutput struct {
	Arcs []ArcSummaryOutput `json:"arcs"`
}

type FeedEventOutput struct {
	Seq       int64          `json:"seq"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	WorldID   string         `json:"world_id"`
	AgentID   string         `json:"agent_id,omitempty"`
	ContentID string         `json:"content_id,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

type GetFeedOutput struct {
	Items      []FeedEventOutput `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

func (s *Server) registerTools() {
	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "get_relationship_graph",
		Description: "Read a world's inhabitant relationship graph",
	}, s.handleGetGraph)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "get_arc",
		Description: "Look up the narrative arc a story belongs to",
	}, s.handleGetArc)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "list_arcs",
		Description: "List a world's narrative arcs with member counts",
	}, s.handleListArcs)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "get_feed",
		Description: "Read a page of the activity feed, newest first",
	}, s.handleGetFeed)
}

func (s *Server) handleGetGraph(ctx context.Context, req *sdk.CallToolRequest, input GetGraphInput) (*sdk.CallToolResult, GetGraphOutput, error) {
	if input.WorldID == "" {
		return nil, GetGraphOutput{}, fmt.Errorf("world_id is required")
	}
	graph, err := s.db.GetGraph(ctx, input.WorldID, input.MinScore)
	if err != nil {
		return nil, GetGraphOutput{}, err
	}

	nodes := make([]NodeOutput, 0, len(graph.Nodes))
	for _, n := range graph.Nodes {
		nodes = append(nodes, NodeOutput{ID: n.ID, Name: n.Name})
	}
	edges := make([]EdgeOutput, 0, len(graph.Edges))
	for _, e := range graph.Edges {
		edges = append(edges, EdgeOutput{
			AID:           e.AID,
			BID:           e.BID,
			CoOccurrence:  e.CoOccurrence,
			Similarity:    e.Similarity,
			CombinedScore: e.CombinedScore,
			EvidenceIDs:   e.EvidenceIDs,
		})
	}
	return nil, GetGraphOutput{Nodes: nodes, Edges: edges}, nil
}

func (s *Server) handleGetArc(ctx context.Context, req *sdk.CallToolRequest, input GetArcInput) (*sdk.CallToolResult, GetArcOutput, error) {
	if input.StoryID == "" {
		return nil, GetArcOutput{}, fmt.Errorf("story_id is required")
	}
	arc, err := s.db.GetArcByStory(ctx, input.StoryID)
	if err != nil {
		return nil, GetArcOutput{}, err
	}
	if arc == nil {
		return nil, GetArcOutput{Assigned: false}, nil
	}
	return nil, GetArcOutput{Assigned: true, Arc: arcOutputFromStore(arc)}, nil
}

func (s *Server) handleListArcs(ctx context.Context, req *sdk.CallToolRequest, input ListArcsInput) (*sdk.CallToolResult, ListArcsOutput, error) {
	if input.WorldID == "" {
		return nil, ListArcsOutput{}, fmt.Errorf("world_id is required")
	}
	summaries, err := s.db.ListArcSummaries(ctx, input.WorldID)
	if err != nil {
		return nil, ListArcsOutput{}, err
	}

	arcs := make([]ArcSummaryOutput, 0, len(summaries))
	for _, summary := range summaries {
		arcs = append(arcs, ArcSummaryOutput{
			ID:           summary.ID,
			InhabitantID: summary.InhabitantID,
			Title:        summary.Title,
			MemberCount:  summary.MemberCount,
			UpdatedAt:    summary.UpdatedAt,
		})
	}
	return nil, ListArcsOutput{Arcs: arcs}, nil
}

func (s *Server) handleGetFeed(ctx context.Context, req *sdk.CallToolRequest, input GetFeedInput) (*sdk.CallToolResult, GetFeedOutput, error) {
	page, err := s.reader.Page(ctx, input.Cursor, input.Limit)
	if err != nil {
		return nil, GetFeedOutput{}, err
	}

	items := make([]FeedEventOutput, 0, len(page.Items))
	for _, event := range page.Items {
		items = append(items, FeedEventOutput{
			Seq:       event.Seq,
			Type:      event.Type,
			Payload:   event.Payload,
			WorldID:   event.WorldID,
			AgentID:   event.AgentID,
			ContentID: event.ContentID,
			CreatedAt: event.CreatedAt,
		})
	}
	return nil, GetFeedOutput{Items: items, NextCursor: page.NextCursor}, nil
}

func arcOutputFromStore(a *store.Arc) *ArcOutput {
	return &ArcOutput{
		ID:           a.ID,
		WorldID:      a.WorldID,
		InhabitantID: a.InhabitantID,
		Title:        a.Title,
		MemberIDs:    a.MemberIDs,
		UpdatedAt:    a.UpdatedAt,
	}
}
