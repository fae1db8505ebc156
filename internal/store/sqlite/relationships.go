package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fablemesh/internal/store"
)

// ApplyCoOccurrence records one piece of co-occurrence evidence for the
// canonical pair (aID, bID). The whole read-modify-write runs inside a single
// transaction, which is the row-level atomicity the update model requires.
func (c *Client) ApplyCoOccurrence(ctx context.Context, worldID, aID, bID, contentID string, evidenceCap int) (*store.Edge, error) {
	if aID >= bID {
		return nil, fmt.Errorf("pair not canonical: %q >= %q", aID, bID)
	}
	if evidenceCap < 1 {
		evidenceCap = 1
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	edge := store.Edge{WorldID: worldID, AID: aID, BID: bID, UpdatedAt: now}

	var evidenceRaw string
	var similarity sql.NullFloat64
	err = tx.QueryRowContext(ctx,
		`SELECT co_occurrence, similarity, combined_score, evidence_ids
		FROM relationships WHERE world_id = ? AND a_id = ? AND b_id = ?`,
		worldID, aID, bID,
	).Scan(&edge.CoOccurrence, &similarity, &edge.CombinedScore, &evidenceRaw)

	switch {
	case err == sql.ErrNoRows:
		edge.CoOccurrence = 1
		edge.EvidenceIDs = []string{contentID}
		encoded, encErr := encodeStrings(edge.EvidenceIDs)
		if encErr != nil {
			return nil, encErr
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO relationships (world_id, a_id, b_id, co_occurrence, evidence_ids, updated_at)
			VALUES (?, ?, ?, 1, ?, ?)`,
			worldID, aID, bID, encoded, now.UnixMicro(),
		)
		if err != nil {
			return nil, fmt.Errorf("inserting relationship: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("reading relationship: %w", err)
	default:
		if similarity.Valid {
			edge.Similarity = &similarity.Float64
		}
		evidence, decErr := decodeStrings(evidenceRaw)
		if decErr != nil {
			return nil, decErr
		}
		evidence = append(evidence, contentID)
		if len(evidence) > evidenceCap {
			evidence = evidence[len(evidence)-evidenceCap:]
		}
		edge.CoOccurrence++
		edge.EvidenceIDs = evidence
		encoded, encErr := encodeStrings(evidence)
		if encErr != nil {
			return nil, encErr
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE relationships SET co_occurrence = ?, evidence_ids = ?, updated_at = ?
			WHERE world_id = ? AND a_id = ? AND b_id = ?`,
			edge.CoOccurrence, encoded, now.UnixMicro(), worldID, aID, bID,
		)
		if err != nil {
			return nil, fmt.Errorf("updating relationship: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	return &edge, nil
}

func (c *Client) MaxCoOccurrence(ctx context.Context, worldID string) (int, error) {
	var max int
	err := c.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(co_occurrence), 0) FROM relationships WHERE world_id = ?`,
		worldID,
	).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("querying max co-occurrence: %w", err)
	}
	return max, nil
}

func (c *Client) UpdateEdgeScore(ctx context.Context, worldID, aID, bID string, similarity *float64, combined float64) error {
	var sim sql.NullFloat64
	if similarity != nil {
		sim = sql.NullFloat64{Float64: *similarity, Valid: true}
	}
	_, err := c.db.ExecContext(ctx,
		`UPDATE relationships
		SET similarity = COALESCE(?, similarity), combined_score = ?, updated_at = ?
		WHERE world_id = ? AND a_id = ? AND b_id = ?`,
		sim, combined, time.Now().UTC().UnixMicro(), worldID, aID, bID,
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

	rows, err := c.db.QueryContext(ctx,
		`SELECT world_id, a_id, b_id, co_occurrence, similarity, combined_score, evidence_ids, updated_at
		FROM relationships
		WHERE world_id = ? AND combined_score >= ?
		ORDER BY combined_score DESC, a_id, b_id`,
		worldID, minScore,
	)
	if err != nil {
		return nil, fmt.Errorf("querying relationships: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		edge, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		graph.Edges = append(graph.Edges, *edge)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating relationship rows: %w", err)
	}

	return graph, nil
}

func scanEdge(row rowScanner) (*store.Edge, error) {
	var edge store.Edge
	var similarity sql.NullFloat64
	var evidenceRaw string
	var updatedAt int64
	err := row.Scan(&edge.WorldID, &edge.AID, &edge.BID, &edge.CoOccurrence,
		&similarity, &edge.CombinedScore, &evidenceRaw, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("scanning relationship: %w", err)
	}
	if similarity.Valid {
		edge.Similarity = &similarity.Float64
	}
	if edge.EvidenceIDs, err = decodeStrings(evidenceRaw); err != nil {
		return nil, err
	}
	edge.UpdatedAt = time.UnixMicro(updatedAt).UTC()
	return &edge, nil
}
