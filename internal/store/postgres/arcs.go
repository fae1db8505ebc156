package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"fablemesh/internal/store"
)

func (c *Client) CreateArc(ctx context.Context, a store.Arc) error {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO arcs (id, world_id, inhabitant_id, title, centroid, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.WorldID, a.InhabitantID, a.Title, a.Centroid, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting arc: %w", err)
	}

	for i, contentID := range a.MemberIDs {
		_, err = tx.Exec(ctx,
			`INSERT INTO arc_members (arc_id, content_id, position) VALUES ($1, $2, $3)`,
			a.ID, contentID, i,
		)
		if err != nil {
			return fmt.Errorf("inserting arc member: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (c *Client) AppendArcMember(ctx context.Context, arcID, contentID string, centroid []float32) error {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO arc_members (arc_id, content_id, position)
		SELECT $1, $2, COALESCE(MAX(position) + 1, 0) FROM arc_members WHERE arc_id = $1`,
		arcID, contentID,
	)
	if err != nil {
		return fmt.Errorf("inserting arc member: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE arcs SET centroid = $2, updated_at = now() WHERE id = $1`,
		arcID, centroid,
	)
	if err != nil {
		return fmt.Errorf("updating arc centroid: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (c *Client) GetArcByStory(ctx context.Context, storyID string) (*store.Arc, error) {
	var arcID string
	err := c.pool.QueryRow(ctx,
		`SELECT arc_id FROM arc_members WHERE content_id = $1`, storyID,
	).Scan(&arcID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding arc for story: %w", err)
	}
	return c.getArc(ctx, arcID)
}

func (c *Client) getArc(ctx context.Context, arcID string) (*store.Arc, error) {
	var a store.Arc
	err := c.pool.QueryRow(ctx,
		`SELECT id, world_id, inhabitant_id, title, centroid, created_at, updated_at
		FROM arcs WHERE id = $1`, arcID,
	).Scan(&a.ID, &a.WorldID, &a.InhabitantID, &a.Title, &a.Centroid, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting arc: %w", err)
	}
	if a.MemberIDs, err = c.arcMembers(ctx, arcID); err != nil {
		return nil, err
	}
	return &a, nil
}

func (c *Client) arcMembers(ctx context.Context, arcID string) ([]string, error) {
	rows, err := c.pool.Query(ctx,
		`SELECT content_id FROM arc_members WHERE arc_id = $1 ORDER BY position`, arcID,
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
		`SELECT id FROM arcs WHERE world_id = $1 AND inhabitant_id = $2 ORDER BY updated_at DESC, id`,
		worldID, inhabitantID)
}

func (c *Client) ListWorldArcs(ctx context.Context, worldID string) ([]store.Arc, error) {
	return c.listArcs(ctx,
		`SELECT id FROM arcs WHERE world_id = $1 ORDER BY updated_at DESC, id`,
		worldID)
}

func (c *Client) listArcs(ctx context.Context, query string, args ...any) ([]store.Arc, error) {
	rows, err := c.pool.Query(ctx, query, args...)
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
	rows, err := c.pool.Query(ctx,
		`SELECT a.id, a.world_id, a.inhabitant_id, a.title, COUNT(m.content_id), a.updated_at
		FROM arcs a LEFT JOIN arc_members m ON m.arc_id = a.id
		WHERE a.world_id = $1
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
		if err := rows.Scan(&s.ID, &s.WorldID, &s.InhabitantID, &s.Title, &s.MemberCount, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning arc summary: %w", err)
		}
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
