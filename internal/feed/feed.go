// Package feed owns the append-only activity log and its cursor-paginated
// read path. Events are fully denormalized at write time so reads never join.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"fablemesh/internal/store"
)

const (
	EventContentCreated     = "content_created"
	EventContentRevised     = "content_revised"
	EventRelationshipFormed = "relationship_formed"
	EventArcStarted         = "arc_started"
)

type Emitter struct {
	db      store.Store
	log     *logrus.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewEmitter(db store.Store, log *logrus.Logger) *Emitter {
	return &Emitter{db: db, log: log, timeout: 10 * time.Second}
}

// Emit appends one event synchronously. Used by backfill, where loss is not
// acceptable and ordering matters.
func (e *Emitter) Emit(ctx context.Context, input store.FeedEventInput) error {
	if input.Type == "" {
		return fmt.Errorf("event type is required")
	}
	return e.db.AppendFeedEvent(ctx, input)
}

// EmitAsync dispatches the append without blocking the caller. The feed is
// best-effort relative to the primary content write: a failed append is
// logged and left for the backfill path to repair, never surfaced upstream.
func (e *Emitter) EmitAsync(input store.FeedEventInput) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()
		if err := e.Emit(ctx, input); err != nil {
			e.log.WithError(err).WithFields(logrus.Fields{
				"event_type": input.Type,
				"content_id": input.ContentID,
			}).Warn("feed event dropped")
		}
	}()
}

// Wait blocks until in-flight async emissions finish. Called on shutdown and
// from tests.
func (e *Emitter) Wait() {
	e.wg.Wait()
}

type Page struct {
	Items      []store.FeedEvent
	NextCursor string
}

type Reader struct {
	db              store.Store
	defaultPageSize int
	maxPageSize     int
}

func NewReader(db store.Store, defaultPageSize, maxPageSize int) *Reader {
	return &Reader{db: db, defaultPageSize: defaultPageSize, maxPageSize: maxPageSize}
}

func (r *Reader) clampLimit(limit int) int {
	if limit <= 0 {
		return r.defaultPageSize
	}
	if limit > r.maxPageSize {
		return r.maxPageSize
	}
	return limit
}

// ErrBadCursor marks cursors the reader cannot parse, so transports can
// separate a client-supplied garbage cursor from a storage failure.
var ErrBadCursor = errors.New("invalid feed cursor")

func (r *Reader) parseCursor(raw string) (*store.Cursor, error) {
	if raw == "" {
		return nil, nil
	}
	cursor, err := store.ParseCursor(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCursor, err)
	}
	return cursor, nil
}

// Page returns one buffered page in descending creation order. An empty
// NextCursor means the feed is exhausted.
func (r *Reader) Page(ctx context.Context, rawCursor string, limit int) (*Page, error) {
	cursor, err := r.parseCursor(rawCursor)
	if err != nil {
		return nil, err
	}
	items, next, err := r.db.ReadFeed(ctx, cursor, r.clampLimit(limit))
	if err != nil {
		return nil, err
	}
	page := &Page{Items: items}
	if next != nil {
		page.NextCursor = next.String()
	}
	return page, nil
}

// Stream is the incrementally-flushed variant: fn observes each event as the
// row is scanned, so a caller can render partial results before the page
// completes. Returns the next cursor and total count for the completion event.
func (r *Reader) Stream(ctx context.Context, rawCursor string, limit int, fn func(store.FeedEvent) error) (string, int, error) {
	cursor, err := r.parseCursor(rawCursor)
	if err != nil {
		return "", 0, err
	}
	next, count, err := r.db.StreamFeed(ctx, cursor, r.clampLimit(limit), fn)
	if err != nil {
		return "", 0, err
	}
	nextCursor := ""
	if next != nil {
		nextCursor = next.String()
	}
	return nextCursor, count, nil
}
