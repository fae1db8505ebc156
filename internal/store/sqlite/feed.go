package sqlite

import (
	"context"
	"fmt"
	"time"

	"fablemesh/internal/store"
)

func (c *Client) AppendFeedEvent(ctx context.Context, e store.FeedEventInput) error {
	payload, err := encodePayload(e.Payload)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO feed_events (event_type, payload, world_id, agent_id, content_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.Type, payload, e.WorldID, e.AgentID, e.ContentID, time.Now().UTC().UnixMicro(),
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

// StreamFeed runs the single descending feed query and hands each row to fn
// as it is scanned, so callers can flush partial pages. The returned cursor
// points past the last delivered event; nil means the feed is exhausted.
func (c *Client) StreamFeed(ctx context.Context, cursor *store.Cursor, limit int, fn func(store.FeedEvent) error) (*store.Cursor, int, error) {
	cursorTS := int64(0)
	cursorSeq := int64(0)
	hasCursor := 0
	if cursor != nil {
		cursorTS = cursor.CreatedAt.UnixMicro()
		cursorSeq = cursor.Seq
		hasCursor = 1
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT seq, event_type, payload, world_id, agent_id, content_id, created_at
		FROM feed_events
		WHERE ? = 0 OR created_at < ? OR (created_at = ? AND seq < ?)
		ORDER BY created_at DESC, seq DESC
		LIMIT ?`,
		hasCursor, cursorTS, cursorTS, cursorSeq, limit,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("querying feed: %w", err)
	}
	defer rows.Close()

	var count int
	var last *store.Cursor
	for rows.Next() {
		var e store.FeedEvent
		var payload string
		var createdAt int64
		if err := rows.Scan(&e.Seq, &e.Type, &payload, &e.WorldID, &e.AgentID, &e.ContentID, &createdAt); err != nil {
			return nil, 0, fmt.Errorf("scanning feed event: %w", err)
		}
		if e.Payload, err = decodePayload(payload); err != nil {
			return nil, 0, err
		}
		e.CreatedAt = time.UnixMicro(createdAt).UTC()
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
