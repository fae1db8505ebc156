package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fablemesh/internal/store"
)

func (c *Client) UpsertWorld(ctx context.Context, w store.WorldInput) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO worlds (id, name, created_at) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name`,
		w.ID, w.Name, time.Now().UTC().UnixMicro(),
	)
	if err != nil {
		return fmt.Errorf("upserting world: %w", err)
	}
	return nil
}

func (c *Client) ListWorlds(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id FROM worlds ORDER BY id`)
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
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO inhabitants (id, world_id, name) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name`,
		in.ID, in.WorldID, in.Name,
	)
	if err != nil {
		return fmt.Errorf("upserting inhabitant: %w", err)
	}
	return nil
}

func (c *Client) GetInhabitant(ctx context.Context, id string) (*store.Inhabitant, error) {
	var in store.Inhabitant
	var centroid string
	err := c.db.QueryRowContext(ctx,
		`SELECT id, world_id, name, centroid, sample_count FROM inhabitants WHERE id = ?`,
		id,
	).Scan(&in.ID, &in.WorldID, &in.Name, &centroid, &in.SampleCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting inhabitant: %w", err)
	}
	if in.Centroid, err = decodeVector(centroid); err != nil {
		return nil, err
	}
	return &in, nil
}

func (c *Client) ListInhabitants(ctx context.Context, worldID string) ([]store.Inhabitant, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, world_id, name, centroid, sample_count FROM inhabitants WHERE world_id = ? ORDER BY name`,
		worldID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing inhabitants: %w", err)
	}
	defer rows.Close()

	var out []store.Inhabitant
	for rows.Next() {
		var in store.Inhabitant
		var centroid string
		if err := rows.Scan(&in.ID, &in.WorldID, &in.Name, &centroid, &in.SampleCount); err != nil {
			return nil, fmt.Errorf("scanning inhabitant: %w", err)
		}
		if in.Centroid, err = decodeVector(centroid); err != nil {
			return nil, err
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
	encoded, err := encodeVector(centroid)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx,
		`UPDATE inhabitants SET centroid = ?, sample_count = ? WHERE id = ?`,
		encoded, sampleCount, id,
	)
	if err != nil {
		return fmt.Errorf("updating inhabitant centroid: %w", err)
	}
	return nil
}
