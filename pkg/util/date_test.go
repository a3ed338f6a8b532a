package util

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	got, ok := ParseDate("2018-01-01")
	if !ok || got.Year() != 2018 || got.Location() != time.UTC {
		t.Fatalf("unexpected date %v %v", got, ok)
	}
	if _, ok := ParseDate("01/01/2018"); ok {
		t.Fatalf("expected failure for wrong layout")
	}
	if _, ok := ParseDate(""); ok {
		t.Fatalf("expected failure for empty input")
	}
}

func TestToday(t *testing.T) {
	now := time.Date(2024, 5, 6, 23, 59, 0, 0, time.FixedZone("UTC-3", -3*3600))
	if got := Today(now); got.Hour() != 0 || got.Day() != 7 || got.Location() != time.UTC {
		t.Fatalf("unexpected today %v", got)
	}
}

func TestSplitSymbols(t *testing.T) {
	got := SplitSymbols(" aapl, msft,,AAPL brk-b")
	want := []string{"AAPL", "MSFT", "BRK-B"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}
