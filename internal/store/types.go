package store

import "time"

const (
	KindStory  = "story"
	KindAction = "action"
)

type WorldInput struct {
	ID   string
	Name string
}

type InhabitantInput struct {
	ID      string
	WorldID string
	Name    string
}

type Inhabitant struct {
	ID          string
	WorldID     string
	Name        string
	Centroid    []float32
	SampleCount int
}

type ContentInput struct {
	ID                string
	WorldID           string
	AgentID           string
	Kind              string
	Title             string
	Body              string
	PrimaryInhabitant string
	Mentions          []string
	Embedding         []float32
	CreatedAt         time.Time
}

type ContentItem struct {
	ID                string
	WorldID           string
	AgentID           string
	Kind              string
	Title             string
	Body              string
	PrimaryInhabitant string
	Mentions          []string
	Embedding         []float32
	CreatedAt         time.Time
}

// Edge is one canonical relationship row. AID < BID always holds, so a pair
// of inhabitants maps to exactly one row regardless of mention order.
type Edge struct {
	WorldID       string
	AID           string
	BID           string
	CoOccurrence  int
	Similarity    *float64
	CombinedScore float64
	EvidenceIDs   []string
	UpdatedAt     time.Time
}

type Node struct {
	ID   string
	Name string
}

type Graph struct {
	Nodes []Node
	Edges []Edge
}

type Arc struct {
	ID           string
	WorldID      string
	InhabitantID string
	Title        string
	MemberIDs    []string
	Centroid     []float32
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type ArcSummary struct {
	ID           string
	WorldID      string
	InhabitantID string
	Title        string
	MemberCount  int
	UpdatedAt    time.Time
}

type FeedEventInput struct {
	Type      string
	Payload   map[string]any
	WorldID   string
	AgentID   string
	ContentID string
}

type FeedEvent struct {
	Seq       int64
	Type      string
	Payload   map[string]any
	WorldID   string
	AgentID   string
	ContentID string
	CreatedAt time.Time
}
