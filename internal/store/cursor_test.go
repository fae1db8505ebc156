package store

import (
	"testing"
	"time"
)

func TestCursorRoundTrip(t *testing.T) {
	original := Cursor{
		CreatedAt: time.Date(2025, 6, 1, 12, 30, 0, 123456000, time.UTC),
		Seq:       42,
	}

	parsed, err := ParseCursor(original.String())
	if err != nil {
		t.Fatalf("ParseCursor: %v", err)
	}
	if !parsed.CreatedAt.Equal(original.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", parsed.CreatedAt, original.CreatedAt)
	}
	if parsed.Seq != original.Seq {
		t.Errorf("Seq = %d, want %d", parsed.Seq, original.Seq)
	}
}

func TestParseCursorRejectsMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "no separator", input: "12345"},
		{name: "non-numeric timestamp", input: "abc.1"},
		{name: "non-numeric seq", input: "12345.xyz"},
		{name: "trailing garbage", input: "12345.6.7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseCursor(tt.input); err == nil {
				t.Errorf("ParseCursor(%q) accepted malformed input", tt.input)
			}
		})
	}
}
