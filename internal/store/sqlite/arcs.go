package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fablemesh/internal/store"
)

func (c *Client) CreateArc(ctx context.Context, a store.Arc) error {
	centroid, err := encodeVector(a.Centroid)
	if err != nil {
		return err
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

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

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (c *Client) AppendArcMember(ctx context.Context, arcID, contentID string, centroid []float32) error {
	encoded, err := encodeVector(centroid)
	if err != nil {
		return err
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var position int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM arc_members WHERE arc_id = ?`, arcID,
	).Scan(&position)
	if err != nil {
		return fmt.Errorf("counting arc members: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO arc_members (arc_id, content_id, position) VALUES (?, ?, ?)`,
		arcID, contentID, position,
	)
	if err != nil {
		return fmt.Errorf("inserting arc member: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE arcs SET centroid = ?, updated_at = ? WHERE id = ?`,
		encoded, time.Now().UTC().UnixMicro(), arcID,
	)
	if err != nil {
		return fmt.Errorf("updating arc centroid: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (c *Client) GetArcByStory(ctx context.Context, storyID string) (*store.Arc, error) {
	var arcID string
	err := c.db.QueryRowContext(ctx,
		`SELECT arc_id FROM arc_members WHERE content_id = ?`, storyID,
	).Scan(&arcID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding arc for story: %w", err)
	}
	return c.getArc(ctx, arcID)
}

func (c *Client) getArc(ctx context.Context, arcID string) (*store.Arc, error) {
	var a store.Arc
	var centroid string
	var createdAt, updatedAt int64
	err := c.db.QueryRowContext(ctx,
		`SELECT id, world_id, inhabitant_id, title, centroid, created_at, updated_at
		FROM arcs WHERE id = ?`, arcID,
	).Scan(&a.ID, &a.WorldID, &a.InhabitantID, &a.Title, &centroid, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting arc: %w", err)
	}
	if a.Centroid, err = decodeVector(centroid); err != nil {
		return nil, err
	}
	a.CreatedAt = time.UnixMicro(createdAt).UTC()
	a.UpdatedAt = time.UnixMicro(updatedAt).UTC()
	if a.MemberIDs, err = c.arcMembers(ctx, arcID); err != nil {
		return nil, err
	}
	return &a, nil
}

func (c *Client) arcMembers(ctx context.Context, arcID string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT content_id FROM arc_members WHERE arc_id = ? ORDER BY position`, arcID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing arc members: %w", err)
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning arc member: %w", err)
		}
		members = append(members, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating arc member rows: %w", err)
	}
	if members == nil {
		members = []string{}
	}
	return members, nil
}

func (c *Client) ListArcsForInhabitant(ctx context.Context, worldID, inhabitantID string) ([]store.Arc, error) {
	return c.listArcs(ctx,
		`SELECT id FROM arcs WHERE world_id = ? AND inhabitant_id = ? ORDER BY updated_at DESC, id`,
		worldID, inhabitantID)
}

func (c *Client) ListWorldArcs(ctx context.Context, worldID string) ([]store.Arc, error) {
	return c.listArcs(ctx,
		`SELECT id FROM arcs WHERE world_id = ? ORDER BY updated_at DESC, id`,
		worldID)
}

func (c *Client) listArcs(ctx context.Context, query string, args ...any) ([]store.Arc, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing arcs: %w", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning arc id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating arc rows: %w", err)
	}

	arcs := make([]store.Arc, 0, len(ids))
	for _, id := range ids {
		arc, err := c.getArc(ctx, id)
		if err != nil {
			return nil, err
		}
		if arc != nil {
			arcs = append(arcs, *arc)
		}
	}
	return arcs, nil
}

func (c *Client) ListArcSummaries(ctx context.Context, worldID string) ([]store.ArcSummary, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT a.id, a.world_id, a.inhabitant_id, a.title, COUNT(m.content_id), a.updated_at
		FROM arcs a LEFT JOIN arc_members m ON m.arc_id = a.id
		WHERE a.world_id = ?
		GROUP BY a.id
		ORDER BY a.updated_at DESC, a.id`,
		worldID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing arc summaries: %w", err)
	}
	defer rows.Close()

	var out []store.ArcSummary
	for rows.Next() {
		var s store.ArcSummary
		var updatedAt int64
		if err := rows.Scan(&s.ID, &s.WorldID, &s.InhabitantID, &s.Title, &s.MemberCount, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning arc summary: %w", err)
		}
		s.UpdatedAt = time.UnixMicro(updatedAt).UTC()
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating arc summary rows: %w", err)
	}
	if out == nil {
		out = []store.ArcSummary{}
	}
	return out, nil
}
