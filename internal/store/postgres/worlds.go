package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"fablemesh/internal/store"
)

func (c *Client) UpsertWorld(ctx context.Context, w store.WorldInput) error {
	_, err := c.pool.Exec(ctx,
		`INSERT INTO worlds (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`,
		w.ID, w.Name,
	)
	if err != nil {
		return fmt.Errorf("upserting world: %w", err)
	}
	return nil
}

func (c *Client) ListWorlds(ctx context.Context) ([]string, error) {
	rows, err := c.pool.Query(ctx, `SELECT id FROM worlds ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing worlds: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning world id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating world rows: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

func (c *Client) UpsertInhabitant(ctx context.Context, in store.InhabitantInput) error {
	_, err := c.pool.Exec(ctx,
		`INSERT INTO inhabitants (id, world_id, name) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`,
		in.ID, in.WorldID, in.Name,
	)
	if err != nil {
		return fmt.Errorf("upserting inhabitant: %w", err)
	}
	return nil
}

func (c *Client) GetInhabitant(ctx context.Context, id string) (*store.Inhabitant, error) {
	var in store.Inhabitant
	err := c.pool.QueryRow(ctx,
		`SELECT id, world_id, name, centroid, sample_count FROM inhabitants WHERE id = $1`,
		id,
	).Scan(&in.ID, &in.WorldID, &in.Name, &in.Centroid, &in.SampleCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting inhabitant: %w", err)
	}
	return &in, nil
}

func (c *Client) ListInhabitants(ctx context.Context, worldID string) ([]store.Inhabitant, error) {
	rows, err := c.pool.Query(ctx,
		`SELECT id, world_id, name, centroid, sample_count FROM inhabitants WHERE world_id = $1 ORDER BY name`,
		worldID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing inhabitants: %w", err)
	}
	defer rows.Close()

	var out []store.Inhabitant
	for rows.Next() {
		var in store.Inhabitant
		if err := rows.Scan(&in.ID, &in.WorldID, &in.Name, &in.Centroid, &in.SampleCount); err != nil {
			return nil, fmt.Errorf("scanning inhabitant: %w", err)
		}
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating inhabitant rows: %w", err)
	}
	if out == nil {
		out = []store.Inhabitant{}
	}
	return out, nil
}

func (c *Client) UpdateInhabitantCentroid(ctx context.Context, id string, centroid []float32, sampleCount int) error {
	_, err := c.pool.Exec(ctx,
		`UPDATE inhabitants SET centroid = $2, sample_count = $3 WHERE id = $1`,
		id, centroid, sampleCount,
	)
	if err != nil {
		return fmt.Errorf("updating inhabitant centroid: %w", err)
	}
	return nil
}
