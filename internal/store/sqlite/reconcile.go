package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"fablemesh/internal/store"
)

// ReplaceWorldDerived swaps a world's relationship and arc rows for the
// freshly computed ones. The swap is one transaction: an interrupted
// reconciliation leaves the previous state untouched.
func (c *Client) ReplaceWorldDerived(ctx context.Context, worldID string, edges []store.Edge, arcs []store.Arc) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM relationships WHERE world_id = ?`, worldID); err != nil {
		return fmt.Errorf("clearing relationships: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM arc_members WHERE arc_id IN (SELECT id FROM arcs WHERE world_id = ?)`, worldID); err != nil {
		return fmt.Errorf("clearing arc members: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM arcs WHERE world_id = ?`, worldID); err != nil {
		return fmt.Errorf("clearing arcs: %w", err)
	}

	for _, e := range edges {
		evidence, err := encodeStrings(e.EvidenceIDs)
		if err != nil {
			return err
		}
		var sim sql.NullFloat64
		if e.Similarity != nil {
			sim = sql.NullFloat64{Float64: *e.Similarity, Valid: true}
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO relationships (world_id, a_id, b_id, co_occurrence, similarity, combined_score, evidence_ids, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.WorldID, e.AID, e.BID, e.CoOccurrence, sim, e.CombinedScore, evidence, e.UpdatedAt.UnixMicro(),
		)
		if err != nil {
			return fmt.Errorf("inserting relationship: %w", err)
		}
	}

	for _, a := range arcs {
		centroid, err := encodeVector(a.Centroid)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO arcs (id, world_id, inhabitant_id, title, centroid, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.WorldID, a.InhabitantID, a.Title, centroid,
			a.CreatedAt.UnixMicro(), a.UpdatedAt.UnixMicro(),
		)
		if err != nil {
			return fmt.Errorf("inserting arc: %w", err)
		}
		for i, contentID := range a.MemberIDs {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO arc_members (arc_id, content_id, position) VALUES (?, ?, ?)`,
				a.ID, contentID, i,
			)
			if err != nil {
				return fmt.Errorf("inserting arc member: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (c *Client) ClearDerived(ctx context.Context, worldID string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	statements := []string{
		`UPDATE inhabitants SET centroid = '', sample_count = 0 WHERE ? = '' OR world_id = ?`,
		`DELETE FROM relationships WHERE ? = '' OR world_id = ?`,
		`DELETE FROM arc_members WHERE arc_id IN (SELECT id FROM arcs WHERE ? = '' OR world_id = ?)`,
		`DELETE FROM arcs WHERE ? = '' OR world_id = ?`,
		`DELETE FROM feed_events WHERE ? = '' OR world_id = ?`,
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt, worldID, worldID); err != nil {
			return fmt.Errorf("clearing derived tables: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
