package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"calibrator/internal/journal"
)

func TestPrintHistoryEmpty(t *testing.T) {
	var out bytes.Buffer
	if err := printHistory(context.Background(), &out, filepath.Join(t.TempDir(), "updates.db"), 10); err != nil {
		t.Fatalf("printHistory() error: %v", err)
	}
	if !strings.Contains(out.String(), "No update runs recorded") {
		t.Errorf("output = %q", out.String())
	}
}

func TestPrintHistory(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "updates.db")
	j, err := journal.Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, outcome := range []string{"no_update", "failed", "scheduled"} {
		if _, err := j.Record(ctx, journal.Entry{
			RunID:          "r",
			StartedAt:      base.Add(time.Duration(i) * time.Hour),
			Outcome:        outcome,
			CurrentVersion: "1.0.0",
			LatestVersion:  "1.1.0",
		}); err != nil {
			t.Fatal(err)
		}
	}
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := printHistory(ctx, &out, path, 2); err != nil {
		t.Fatalf("printHistory() error: %v", err)
	}
	text := out.String()
	for _, want := range []string{"OUTCOME", "scheduled", "failed", "1.1.0"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "no_update") {
		t.Errorf("limit not applied:\n%s", text)
	}
}
