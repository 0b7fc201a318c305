package youtube

import (
	"errors"
	"testing"
	"time"
)

func TestExtractVideoID(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=42s", "dQw4w9WgXcQ", true},
		{"https://youtu.be/dQw4w9WgXcQ?si=abc", "dQw4w9WgXcQ", true},
		{"https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"https://www.youtube.com/shorts/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"https://www.youtube.com/watch?feature=share&v=dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"https://example.com/watch?x=1", "", false},
		{"dQw4w9WgXcQ", "", false},
	}
	for _, tt := range tests {
		got, ok := ExtractVideoID(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ExtractVideoID(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestResolveVideoID(t *testing.T) {
	if id, err := ResolveVideoID(" dQw4w9WgXcQ "); err != nil || id != "dQw4w9WgXcQ" {
		t.Errorf("bare id: %q, %v", id, err)
	}
	if id, err := ResolveVideoID("https://youtu.be/abcdefghijk"); err != nil || id != "abcdefghijk" {
		t.Errorf("url: %q, %v", id, err)
	}
	if _, err := ResolveVideoID("not a video"); !errors.Is(err, ErrInvalidVideo) {
		t.Errorf("err = %v, want ErrInvalidVideo", err)
	}
}

func TestWatchURL(t *testing.T) {
	if got := WatchURL("abc"); got != "https://www.youtube.com/watch?v=abc" {
		t.Errorf("WatchURL = %q", got)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"PT15M30S", 15*time.Minute + 30*time.Second},
		{"PT1H", time.Hour},
		{"PT2H3M4S", 2*time.Hour + 3*time.Minute + 4*time.Second},
		{"PT45S", 45 * time.Second},
		{"P1DT2H", 26 * time.Hour},
		{"P0D", 0},
		{"", 0},
		{"15:30", 0},
	}
	for _, tt := range tests {
		if got := ParseDuration(tt.in); got != tt.want {
			t.Errorf("ParseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
