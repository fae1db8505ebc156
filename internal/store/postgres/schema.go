package postgres

import (
	"context"
	"fmt"
)

func (c *Client) EnsureSchema(ctx context.Context) error {
	// All DDL runs in a single call, which PostgreSQL wraps in one implicit
	// transaction. "IF NOT EXISTS" keeps this idempotent across restarts.
	ddl := `
CREATE TABLE IF NOT EXISTS worlds (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS inhabitants (
    id           TEXT PRIMARY KEY,
    world_id     TEXT NOT NULL REFERENCES worlds(id) ON DELETE CASCADE,
    name         TEXT NOT NULL,
    centroid     REAL[],
    sample_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS content_items (
    id                 TEXT PRIMARY KEY,
    world_id           TEXT NOT NULL,
    agent_id           TEXT NOT NULL DEFAULT '',
    kind               TEXT NOT NULL,
    title              TEXT NOT NULL DEFAULT '',
    body               TEXT NOT NULL DEFAULT '',
    primary_inhabitant TEXT NOT NULL DEFAULT '',
    mentions           TEXT[] NOT NULL DEFAULT '{}',
    embedding          REAL[],
    created_at         TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS relationships (
    world_id       TEXT NOT NULL,
    a_id           TEXT NOT NULL,
    b_id           TEXT NOT NULL,
    co_occurrence  INTEGER NOT NULL DEFAULT 0,
    similarity     DOUBLE PRECISION,
    combined_score DOUBLE PRECISION NOT NULL DEFAULT 0,
    evidence_ids   TEXT[] NOT NULL DEFAULT '{}',
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (world_id, a_id, b_id),
    CONSTRAINT ck_relationship_canonical CHECK (a_id < b_id)
);

CREATE TABLE IF NOT EXISTS arcs (
    id            TEXT PRIMARY KEY,
    world_id      TEXT NOT NULL,
    inhabitant_id TEXT NOT NULL DEFAULT '',
    title         TEXT NOT NULL DEFAULT '',
    centroid      REAL[] NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL,
    updated_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS arc_members (
    arc_id     TEXT NOT NULL REFERENCES arcs(id) ON DELETE CASCADE,
    content_id TEXT NOT NULL UNIQUE,
    position   INTEGER NOT NULL,
    PRIMARY KEY (arc_id, position)
);

CREATE TABLE IF NOT EXISTS feed_events (
    seq        BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    event_type TEXT NOT NULL,
    payload    JSONB NOT NULL DEFAULT '{}',
    world_id   TEXT NOT NULL DEFAULT '',
    agent_id   TEXT NOT NULL DEFAULT '',
    content_id TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_inhabitants_world ON inhabitants (world_id);
CREATE INDEX IF NOT EXISTS idx_content_world_created ON content_items (world_id, created_at);
CREATE INDEX IF NOT EXISTS idx_content_created ON content_items (created_at);
CREATE INDEX IF NOT EXISTS idx_relationships_world ON relationships (world_id);
CREATE INDEX IF NOT EXISTS idx_relationships_score ON relationships (world_id, combined_score);
CREATE INDEX IF NOT EXISTS idx_arcs_world ON arcs (world_id);
CREATE INDEX IF NOT EXISTS idx_arcs_inhabitant ON arcs (world_id, inhabitant_id);
CREATE INDEX IF NOT EXISTS idx_arc_members_content ON arc_members (content_id);
CREATE INDEX IF NOT EXISTS idx_feed_created ON feed_events (created_at DESC, seq DESC);
CREATE INDEX IF NOT EXISTS idx_feed_type ON feed_events (event_type);
`

	_, err := c.pool.Exec(ctx, ddl)
	if err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}
	return nil
}
