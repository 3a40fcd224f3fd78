package cron

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

var wib = time.FixedZone("WIB", 7*60*60)

func TestParseErrors(t *testing.T) {
	invalid := []string{
		"",
		"* * *",
		"*/0 * * * *",
		"*/61 * * * *",
		"60 * * * *",
		"0 24 * * *",
		"*/15 3 * * *", // interval minutes with fixed hour
		"0 1 1 * *",    // day-of-month restriction
		"0 1 * 2 *",    // month restriction
		"0 1 * * 1",    // weekday restriction
		"x * * * *",
	}
	for _, expr := range invalid {
		if _, err := Parse(expr); err == nil {
			t.Errorf("Parse(%q) should fail", expr)
		}
	}
}

func TestNextMinuteInterval(t *testing.T) {
	s, err := Parse("*/15 * * * *")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	tests := []struct {
		from time.Time
		want time.Time
	}{
		{
			from: time.Date(2026, 8, 20, 10, 7, 0, 0, wib),
			want: time.Date(2026, 8, 20, 10, 15, 0, 0, wib),
		},
		{
			// Exactly on a boundary fires at the next boundary, not now.
			from: time.Date(2026, 8, 20, 10, 15, 0, 0, wib),
			want: time.Date(2026, 8, 20, 10, 30, 0, 0, wib),
		},
		{
			from: time.Date(2026, 8, 20, 10, 59, 30, 0, wib),
			want: time.Date(2026, 8, 20, 11, 0, 0, 0, wib),
		},
	}
	for _, tt := range tests {
		if got := s.Next(tt.from); !got.Equal(tt.want) {
			t.Errorf("Next(%v) = %v, want %v", tt.from, got, tt.want)
		}
	}
}

func TestNextDaily(t *testing.T) {
	s, err := Parse("0 1 * * *")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	tests := []struct {
		from time.Time
		want time.Time
	}{
		{
			from: time.Date(2026, 8, 20, 0, 30, 0, 0, wib),
			want: time.Date(2026, 8, 20, 1, 0, 0, 0, wib),
		},
		{
			from: time.Date(2026, 8, 20, 2, 0, 0, 0, wib),
			want: time.Date(2026, 8, 21, 1, 0, 0, 0, wib),
		},
		{
			from: time.Date(2026, 8, 20, 1, 0, 0, 0, wib),
			want: time.Date(2026, 8, 21, 1, 0, 0, 0, wib),
		},
	}
	for _, tt := range tests {
		if got := s.Next(tt.from); !got.Equal(tt.want) {
			t.Errorf("Next(%v) = %v, want %v", tt.from, got, tt.want)
		}
	}
}

func TestNextHourly(t *testing.T) {
	s, err := Parse("30 * * * *")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	from := time.Date(2026, 8, 20, 10, 45, 0, 0, wib)
	want := time.Date(2026, 8, 20, 11, 30, 0, 0, wib)
	if got := s.Next(from); !got.Equal(want) {
		t.Errorf("Next(%v) = %v, want %v", from, got, want)
	}
}

func TestNextEveryMinute(t *testing.T) {
	s, err := Parse("* * * * *")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	from := time.Date(2026, 8, 20, 10, 45, 12, 0, wib)
	want := time.Date(2026, 8, 20, 10, 46, 0, 0, wib)
	if got := s.Next(from); !got.Equal(want) {
		t.Errorf("Next(%v) = %v, want %v", from, got, want)
	}
}

func TestJobStopIsIdempotent(t *testing.T) {
	var fired atomic.Int32
	job, err := NewJob("*/30 * * * *", wib, func() { fired.Add(1) }, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewJob() error = %v", err)
	}
	job.Stop()
	job.Stop() // second stop must not panic
}
