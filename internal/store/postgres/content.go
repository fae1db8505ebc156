package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"fablemesh/internal/store"
)

func (c *Client) InsertContent(ctx context.Context, in store.ContentInput) error {
	mentions := in.Mentions
	if mentions == nil {
		mentions = []string{}
	}
	_, err := c.pool.Exec(ctx,
		`INSERT INTO content_items
		(id, world_id, agent_id, kind, title, body, primary_inhabitant, mentions, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		in.ID, in.WorldID, in.AgentID, in.Kind, in.Title, in.Body,
		in.PrimaryInhabitant, mentions, in.Embedding, in.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting content item: %w", err)
	}
	return nil
}

func (c *Client) ContentExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := c.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM content_items WHERE id = $1)`, id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking content existence: %w", err)
	}
	return exists, nil
}

func (c *Client) GetContent(ctx context.Context, id string) (*store.ContentItem, error) {
	var item store.ContentItem
	err := c.pool.QueryRow(ctx,
		`SELECT id, world_id, agent_id, kind, title, body, primary_inhabitant, mentions, embedding, created_at
		FROM content_items WHERE id = $1`, id,
	).Scan(&item.ID, &item.WorldID, &item.AgentID, &item.Kind, &item.Title,
		&item.Body, &item.PrimaryInhabitant, &item.Mentions, &item.Embedding, &item.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting content item: %w", err)
	}
	return &item, nil
}

func (c *Client) ListContent(ctx context.Context, worldID string) ([]store.ContentItem, error) {
	rows, err := c.pool.Query(ctx,
		`SELECT id, world_id, agent_id, kind, title, body, primary_inhabitant, mentions, embedding, created_at
		FROM content_items
		WHERE ($1 = '' OR world_id = $1)
		ORDER BY created_at, id`,
		worldID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing content: %w", err)
	}
	defer rows.Close()

	var out []store.ContentItem
	for rows.Next() {
		var item store.ContentItem
		err := rows.Scan(&item.ID, &item.WorldID, &item.AgentID, &item.Kind, &item.Title,
			&item.Body, &item.PrimaryInhabitant, &item.Mentions, &item.Embedding, &item.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning content item: %w", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating content rows: %w", err)
	}
	if out == nil {
		out = []store.ContentItem{}
	}
	return out, nil
}
