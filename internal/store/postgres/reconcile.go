package postgres

import (
	"context"
	"fmt"

	"fablemesh/internal/store"
)

// ReplaceWorldDerived swaps a world's relationship and arc rows inside one
// transaction, so a reconciliation pass interrupted mid-world leaves the
// previous state in place.
func (c *Client) ReplaceWorldDerived(ctx context.Context, worldID string, edges []store.Edge, arcs []store.Arc) error {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM relationships WHERE world_id = $1`, worldID); err != nil {
		return fmt.Errorf("clearing relationships: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM arcs WHERE world_id = $1`, worldID); err != nil {
		return fmt.Errorf("clearing arcs: %w", err)
	}

	for _, e := range edges {
		evidence := e.EvidenceIDs
		if evidence == nil {
			evidence = []string{}
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO relationships (world_id, a_id, b_id, co_occurrence, similarity, combined_score, evidence_ids, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			e.WorldID, e.AID, e.BID, e.CoOccurrence, e.Similarity, e.CombinedScore, evidence, e.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting relationship: %w", err)
		}
	}

	for _, a := range arcs {
		_, err := tx.Exec(ctx,
			`INSERT INTO arcs (id, world_id, inhabitant_id, title, centroid, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			a.ID, a.WorldID, a.InhabitantID, a.Title, a.Centroid, a.CreatedAt, a.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting arc: %w", err)
		}
		for i, contentID := range a.MemberIDs {
			_, err := tx.Exec(ctx,
				`INSERT INTO arc_members (arc_id, content_id, position) VALUES ($1, $2, $3)`,
				a.ID, contentID, i,
			)
			if err != nil {
				return fmt.Errorf("inserting arc member: %w", err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (c *Client) ClearDerived(ctx context.Context, worldID string) error {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	statements := []string{
		`UPDATE inhabitants SET centroid = NULL, sample_count = 0 WHERE $1 = '' OR world_id = $1`,
		`DELETE FROM relationships WHERE $1 = '' OR world_id = $1`,
		`DELETE FROM arcs WHERE $1 = '' OR world_id = $1`,
		`DELETE FROM feed_events WHERE $1 = '' OR world_id = $1`,
	}
	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt, worldID); err != nil {
			return fmt.Errorf("clearing derived tables: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
