package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"calibrator/internal/orchestrator"
	"calibrator/internal/release"
)

type stubSource struct{ result release.Result }

func (s stubSource) FetchLatest(context.Context, string) release.Result { return s.result }

func TestRunCheck(t *testing.T) {
	install := orchestrator.Install{Version: "1.0.0"}

	tests := []struct {
		name     string
		result   release.Result
		wantOut  []string
		wantCode int
	}{
		{
			name: "update available",
			result: release.UpdateAvailable{Info: release.ReleaseInfo{
				Available: true, CurrentVersion: "1.0.0", LatestVersion: "1.1.0",
			}},
			wantOut: []string{"Latest version:  1.1.0", "An update is available: 1.0.0 → 1.1.0", "calibrator update"},
		},
		{
			name: "ambiguous update",
			result: release.UpdateAvailable{Info: release.ReleaseInfo{
				Available: true, CurrentVersion: "dev", LatestVersion: "1.1.0", Ambiguous: true,
			}},
			wantOut: []string{"could not be compared"},
		},
		{
			name:    "up to date",
			result:  release.NoUpdate{Current: "1.0.0", Latest: "1.0.0", Reason: release.ReasonUpToDate},
			wantOut: []string{"No update available (up to date)"},
		},
		{
			name:    "newer without asset",
			result:  release.NoUpdate{Current: "1.0.0", Latest: "1.2.0", Reason: release.ReasonNoAsset},
			wantOut: []string{"Latest version:  1.2.0", "no installable asset"},
		},
		{
			name:     "check failed",
			result:   release.CheckFailed{Current: "1.0.0", Err: errors.New("status 502")},
			wantCode: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := runCheck(context.Background(), &out, stubSource{tt.result}, install)

			if tt.wantCode != 0 {
				var exitErr *exitError
				if !errors.As(err, &exitErr) || exitErr.Code != tt.wantCode {
					t.Fatalf("err = %v, want exit code %d", err, tt.wantCode)
				}
				return
			}
			if err != nil {
				t.Fatalf("runCheck() error: %v", err)
			}
			for _, want := range tt.wantOut {
				if !strings.Contains(out.String(), want) {
					t.Errorf("output missing %q:\n%s", want, out.String())
				}
			}
		})
	}
}

func TestReportOutcome(t *testing.T) {
	info := release.ReleaseInfo{LatestVersion: "2.0.0"}

	tests := []struct {
		name     string
		out      orchestrator.Outcome
		wantText string
		wantCode int
	}{
		{"no update", orchestrator.Outcome{State: orchestrator.NoUpdate}, "Already up to date", 0},
		{"check failed", orchestrator.Outcome{State: orchestrator.NoUpdate, Err: errors.New("offline")}, "", 2},
		{"declined", orchestrator.Outcome{State: orchestrator.Declined, Info: info}, "Update to 2.0.0 skipped", 0},
		{"locked", orchestrator.Outcome{State: orchestrator.Declined, Err: orchestrator.ErrUpdateInProgress}, "", 1},
		{"failed", orchestrator.Outcome{State: orchestrator.Failed, Err: errors.New("bad zip")}, "", 2},
		{"scheduled", orchestrator.Outcome{State: orchestrator.Scheduled, Info: info}, "Update to 2.0.0 scheduled", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := reportOutcome(&buf, tt.out)
			if tt.wantCode != 0 {
				var exitErr *exitError
				if !errors.As(err, &exitErr) || exitErr.Code != tt.wantCode {
					t.Fatalf("err = %v, want exit code %d", err, tt.wantCode)
				}
				return
			}
			if err != nil {
				t.Fatalf("reportOutcome() error: %v", err)
			}
			if !strings.Contains(buf.String(), tt.wantText) {
				t.Errorf("output = %q, want %q", buf.String(), tt.wantText)
			}
		})
	}
}
