package store

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Cursor marks a position in the feed. The timestamp alone is not enough:
// two events written in the same microsecond would be skipped or repeated
// across page boundaries, so the insertion sequence id breaks the tie.
type Cursor struct {
	CreatedAt time.Time
	Seq       int64
}

func (c Cursor) String() string {
	return fmt.Sprintf("%d.%d", c.CreatedAt.UnixMicro(), c.Seq)
}

func ParseCursor(raw string) (*Cursor, error) {
	tsPart, seqPart, ok := strings.Cut(raw, ".")
	if !ok {
		return nil, fmt.Errorf("invalid cursor: %q", raw)
	}
	ts, err := strconv.ParseInt(tsPart, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor timestamp: %w", err)
	}
	seq, err := strconv.ParseInt(seqPart, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor sequence: %w", err)
	}
	return &Cursor{CreatedAt: time.UnixMicro(ts).UTC(), Seq: seq}, nil
}
