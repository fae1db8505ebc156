package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fablemesh/internal/store"
)

func (c *Client) AppendFeedEvent(ctx context.Context, e store.FeedEventInput) error {
	payload := e.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling feed payload: %w", err)
	}
	_, err = c.pool.Exec(ctx,
		`INSERT INTO feed_events (event_type, payload, world_id, agent_id, content_id)
		VALUES ($1, $2, $3, $4, $5)`,
		e.Type, data, e.WorldID, e.AgentID, e.ContentID,
	)
	if err != nil {
		return fmt.Errorf("appending feed event: %w", err)
	}
	return nil
}

func (c *Client) ReadFeed(ctx context.Context, cursor *store.Cursor, limit int) ([]store.FeedEvent, *store.Cursor, error) {
	events := []store.FeedEvent{}
	next, _, err := c.StreamFeed(ctx, cursor, limit, func(e store.FeedEvent) error {
		events = append(events, e)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return events, next, nil
}

func (c *Client) StreamFeed(ctx context.Context, cursor *store.Cursor, limit int, fn func(store.FeedEvent) error) (*store.Cursor, int, error) {
	query := `SELECT seq, event_type, payload, world_id, agent_id, content_id, created_at
		FROM feed_events
		WHERE $1::boolean = false OR created_at < $2 OR (created_at = $2 AND seq < $3)
		ORDER BY created_at DESC, seq DESC
		LIMIT $4`

	var args []any
	if cursor != nil {
		args = []any{true, cursor.CreatedAt, cursor.Seq, limit}
	} else {
		args = []any{false, time.Time{}, int64(0), limit}
	}

	rows, err := c.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying feed: %w", err)
	}
	defer rows.Close()

	var count int
	var last *store.Cursor
	for rows.Next() {
		var e store.FeedEvent
		var payload []byte
		if err := rows.Scan(&e.Seq, &e.Type, &payload, &e.WorldID, &e.AgentID, &e.ContentID, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning feed event: %w", err)
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &e.Payload); err != nil {
				return nil, 0, fmt.Errorf("unmarshaling feed payload: %w", err)
			}
		}
		if e.Payload == nil {
			e.Payload = map[string]any{}
		}
		e.CreatedAt = e.CreatedAt.UTC()
		if err := fn(e); err != nil {
			return nil, 0, err
		}
		count++
		last = &store.Cursor{CreatedAt: e.CreatedAt, Seq: e.Seq}
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating feed rows: %w", err)
	}

	if count < limit {
		last = nil
	}
	return last, count, nil
}
