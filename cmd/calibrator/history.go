package main

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"calibrator/internal/journal"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(primaryColor).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func newHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent update runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := journal.DefaultPath()
			if err != nil {
				return &exitError{Code: 1, Err: err}
			}
			return printHistory(cmd.Context(), cmd.OutOrStdout(), path, limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	return cmd
}

func printHistory(ctx context.Context, w io.Writer, path string, limit int) error {
	j, err := journal.Open(ctx, path)
	if err != nil {
		return &exitError{Code: 1, Err: fmt.Errorf("open update history: %w", err)}
	}
	defer func() { _ = j.Close() }()

	entries, err := j.Recent(ctx, limit)
	if err != nil {
		return &exitError{Code: 1, Err: err}
	}
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(w, "No update runs recorded.")
		return nil
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(dimColor)).
		Headers("STARTED", "OUTCOME", "FROM", "TO", "DETAIL").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, e := range entries {
		t.Row(
			e.StartedAt.Local().Format("2006-01-02 15:04"),
			e.Outcome,
			e.CurrentVersion,
			e.LatestVersion,
			e.Detail,
		)
	}
	_, _ = fmt.Fprintln(w, t.Render())
	return nil
}
