package main

import (
	"testing"
	"time"
)

func TestParseWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

	start, end, err := parseWindow("", "", 24*time.Hour, now)
	if err != nil {
		t.Fatalf("parseWindow: %v", err)
	}
	if !end.Equal(now) || !start.Equal(now.Add(-24*time.Hour)) {
		t.Errorf("default window = %v..%v", start, end)
	}

	start, end, err = parseWindow("2026-03-01T00:00:00Z", "2026-03-02T00:00:00Z", time.Hour, now)
	if err != nil {
		t.Fatalf("parseWindow: %v", err)
	}
	if start.Day() != 1 || end.Day() != 2 {
		t.Errorf("explicit window = %v..%v", start, end)
	}

	if _, _, err := parseWindow("2026-03-02T00:00:00Z", "2026-03-01T00:00:00Z", time.Hour, now); err == nil {
		t.Error("expected an error for an inverted window")
	}
	if _, _, err := parseWindow("yesterday", "", time.Hour, now); err == nil {
		t.Error("expected an error for a bad -from")
	}
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs(" 7, 3,,12")
	if err != nil {
		t.Fatalf("parseIDs: %v", err)
	}
	if len(ids) != 3 || ids[0] != 7 || ids[1] != 3 || ids[2] != 12 {
		t.Errorf("got %v", ids)
	}
	if _, err := parseIDs("1,x"); err == nil {
		t.Error("expected an error for a non numeric id")
	}
	if _, err := parseIDs(" , "); err == nil {
		t.Error("expected an error for an empty list")
	}
}
