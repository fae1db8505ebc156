package postgres

import (
	"context"
	"fmt"

	"fablemesh/internal/store"
)

// ApplyCoOccurrence is a single atomic upsert: the increment and the
// evidence-set append live in one statement, so concurrent writers to the
// same pair serialize on the row without application-level locking.
func (c *Client) ApplyCoOccurrence(ctx context.Context, worldID, aID, bID, contentID string, evidenceCap int) (*store.Edge, error) {
	if aID >= bID {
		return nil, fmt.Errorf("pair not canonical: %q >= %q", aID, bID)
	}
	if evidenceCap < 1 {
		evidenceCap = 1
	}

	edge := store.Edge{WorldID: worldID, AID: aID, BID: bID}
	err := c.pool.QueryRow(ctx,
		`INSERT INTO relationships (world_id, a_id, b_id, co_occurrence, evidence_ids, updated_at)
		VALUES ($1, $2, $3, 1, ARRAY[$4::text], now())
		ON CONFLICT (world_id, a_id, b_id) DO UPDATE SET
			co_occurrence = relationships.co_occurrence + 1,
			evidence_ids = (array_append(relationships.evidence_ids, $4::text))[GREATEST(array_length(relationships.evidence_ids, 1) + 2 - $5::int, 1):],
			updated_at = now()
		RETURNING co_occurrence, similarity, combined_score, evidence_ids, updated_at`,
		worldID, aID, bID, contentID, evidenceCap,
	).Scan(&edge.CoOccurrence, &edge.Similarity, &edge.CombinedScore, &edge.EvidenceIDs, &edge.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upserting relationship: %w", err)
	}
	return &edge, nil
}

func (c *Client) MaxCoOccurrence(ctx context.Context, worldID string) (int, error) {
	var max int
	err := c.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(co_occurrence), 0) FROM relationships WHERE world_id = $1`,
		worldID,
	).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("querying max co-occurrence: %w", err)
	}
	return max, nil
}

func (c *Client) UpdateEdgeScore(ctx context.Context, worldID, aID, bID string, similarity *float64, combined float64) error {
	_, err := c.pool.Exec(ctx,
		`UPDATE relationships
		SET similarity = COALESCE($4, similarity), combined_score = $5, updated_at = now()
		WHERE world_id = $1 AND a_id = $2 AND b_id = $3`,
		worldID, aID, bID, similarity, combined,
	)
	if err != nil {
		return fmt.Errorf("updating edge score: %w", err)
	}
	return nil
}

func (c *Client) GetGraph(ctx context.Context, worldID string, minScore float64) (*store.Graph, error) {
	graph := &store.Graph{Nodes: []store.Node{}, Edges: []store.Edge{}}

	inhabitants, err := c.ListInhabitants(ctx, worldID)
	if err != nil {
		return nil, err
	}
	for _, in := range inhabitants {
		graph.Nodes = append(graph.Nodes, store.Node{ID: in.ID, Name: in.Name})
	}

	rows, err := c.pool.Query(ctx,
		`SELECT world_id, a_id, b_id, co_occurrence, similarity, combined_score, evidence_ids, updated_at
		FROM relationships
		WHERE world_id = $1 AND combined_score >= $2
		ORDER BY combined_score DESC, a_id, b_id`,
		worldID, minScore,
	)
	if err != nil {
		return nil, fmt.Errorf("querying relationships: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var edge store.Edge
		err := rows.Scan(&edge.WorldID, &edge.AID, &edge.BID, &edge.CoOccurrence,
			&edge.Similarity, &edge.CombinedScore, &edge.EvidenceIDs, &edge.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning relationship: %w", err)
		}
		graph.Edges = append(graph.Edges, edge)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating relationship rows: %w", err)
	}

	return graph, nil
}
