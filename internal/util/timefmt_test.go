package util

import (
	"testing"
	"time"
)

func TestParseTime(t *testing.T) {
	want := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	for _, in := range []string{
		"2025-03-04T05:06:07Z",
		"2025-03-04T05:06:07",
		"2025-03-04T05:06:07.000000",
		"2025-03-04 05:06:07",
		"Tue, 04 Mar 2025 05:06:07 +0000",
	} {
		got, err := ParseTime(in)
		if err != nil {
			t.Errorf("ParseTime(%q): %v", in, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("ParseTime(%q) = %v; want %v", in, got, want)
		}
	}
	if _, err := ParseTime("yesterday"); err == nil {
		t.Error("expected error for unparsable input")
	}
}

func TestShortDate(t *testing.T) {
	now := time.Date(2025, 3, 4, 18, 0, 0, 0, time.UTC)
	tests := []struct {
		in, want string
	}{
		{"2025-03-04T09:30:00Z", "09:30"},
		{"2025-01-15T09:30:00Z", "Jan 15"},
		{"2024-12-31T09:30:00Z", "Dec 31, 2024"},
		{"garbage", "garbage"},
	}
	for _, tt := range tests {
		if got := ShortDate(tt.in, now); got != tt.want {
			t.Errorf("ShortDate(%q) = %q; want %q", tt.in, got, tt.want)
		}
	}
}

func TestRelative(t *testing.T) {
	now := time.Date(2025, 3, 4, 18, 0, 0, 0, time.UTC)
	s := "2025-03-04T17:57:00Z"
	if got := Relative(&s, now); got != "3 minutes ago" {
		t.Errorf("Relative = %q", got)
	}
	if got := Relative(nil, now); got != "never" {
		t.Errorf("Relative(nil) = %q", got)
	}
}

func TestSize(t *testing.T) {
	if got := Size(1500); got != "1.5 kB" {
		t.Errorf("Size(1500) = %q", got)
	}
	if got := Size(-1); got != "0 B" {
		t.Errorf("Size(-1) = %q", got)
	}
}
