package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fablemesh/internal/store"
)

func (c *Client) InsertContent(ctx context.Context, in store.ContentInput) error {
	mentions, err := encodeStrings(in.Mentions)
	if err != nil {
		return err
	}
	embedding, err := encodeVector(in.Embedding)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO content_items
		(id, world_id, agent_id, kind, title, body, primary_inhabitant, mentions, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ID, in.WorldID, in.AgentID, in.Kind, in.Title, in.Body,
		in.PrimaryInhabitant, mentions, embedding, in.CreatedAt.UnixMicro(),
	)
	if err != nil {
		return fmt.Errorf("inserting content item: %w", err)
	}
	return nil
}

func (c *Client) ContentExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := c.db.QueryRowContext(ctx, `SELECT 1 FROM content_items WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking content existence: %w", err)
	}
	return true, nil
}

func (c *Client) GetContent(ctx context.Context, id string) (*store.ContentItem, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT id, world_id, agent_id, kind, title, body, primary_inhabitant, mentions, embedding, created_at
		FROM content_items WHERE id = ?`, id)
	item, err := scanContent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (c *Client) ListContent(ctx context.Context, worldID string) ([]store.ContentItem, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, world_id, agent_id, kind, title, body, primary_inhabitant, mentions, embedding, created_at
		FROM content_items
		WHERE (? = '' OR world_id = ?)
		ORDER BY created_at, id`,
		worldID, worldID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing content: %w", err)
	}
	defer rows.Close()

	var out []store.ContentItem
	for rows.Next() {
		item, err := scanContent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating content rows: %w", err)
	}
	if out == nil {
		out = []store.ContentItem{}
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContent(row rowScanner) (*store.ContentItem, error) {
	var item store.ContentItem
	var mentions, embedding string
	var createdAt int64
	err := row.Scan(&item.ID, &item.WorldID, &item.AgentID, &item.Kind, &item.Title,
		&item.Body, &item.PrimaryInhabitant, &mentions, &embedding, &createdAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning content item: %w", err)
	}
	if item.Mentions, err = decodeStrings(mentions); err != nil {
		return nil, err
	}
	if item.Embedding, err = decodeVector(embedding); err != nil {
		return nil, err
	}
	item.CreatedAt = time.UnixMicro(createdAt).UTC()
	return &item, nil
}
