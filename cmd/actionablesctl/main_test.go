package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hive-corporation/actionables/internal/core/domain"
	"github.com/hive-corporation/actionables/internal/core/outdating"
)

func TestRunRejectsBadUsage(t *testing.T) {
	cases := [][]string{
		{"bogus"},
		{"rename-tag", "only-one"},
		{"delete-tag"},
		{"delete-tag-info"},
		{"force-context-type", "INVES-1", "NOPE"},
		{"record-batch"},
	}
	for _, args := range cases {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			err := run(context.Background(), nil, "tester", args, &bytes.Buffer{})
			if !errors.Is(err, errUsage) {
				t.Fatalf("got %v, want errUsage", err)
			}
		})
	}
}

func TestPrintSweep(t *testing.T) {
	var buf bytes.Buffer
	printSweep(&buf, outdating.Report{
		DryRun:     true,
		Outdated:   []int64{4, 5},
		Indicators: 1,
		Intents: []outdating.Intent{{
			IndicatorID: 9,
			Tag:         domain.TagRef{Context: "INVES-1", Name: "OUTDATED"},
			Reports:     []int64{2, 3},
		}},
	})
	got := buf.String()
	if !strings.Contains(got, "dry run: 2 sources outdated on 1 indicators") {
		t.Errorf("missing summary line in %q", got)
	}
	if !strings.Contains(got, "indicator 9 <- INVES-1:OUTDATED (reports 2,3)") {
		t.Errorf("missing intent line in %q", got)
	}
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs("1, 2,3")
	if err != nil || len(ids) != 3 || ids[2] != 3 {
		t.Fatalf("got %v, %v", ids, err)
	}
	if _, err := parseIDs("1,a"); err == nil {
		t.Error("expected an error")
	}
}
