package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"NewsRelay/internal/config"
	"NewsRelay/internal/domain"
	"NewsRelay/internal/infrastructure/storage"
)

func newRetriesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retries",
		Short: "Inspect and requeue failed channel posts",
	}
	cmd.AddCommand(newRetriesListCommand(), newRetriesRequeueCommand())
	return cmd
}

func newRetriesListCommand() *cobra.Command {
	var (
		status string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List retry entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var filter domain.RetryStatus
			if status != "" {
				parsed, ok := domain.ParseRetryStatus(status)
				if !ok {
					return fmt.Errorf("unknown status %q (want pending, retrying, success or dead)", status)
				}
				filter = parsed
			}

			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.ListByStatus(cmd.Context(), filter, limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no retry entries")
				return nil
			}
			renderRetries(cmd.OutOrStdout(), entries)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending, retrying, success, dead)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of entries")
	return cmd
}

func newRetriesRequeueCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <id>",
		Short: "Give a DEAD entry a fresh attempt budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			id := args[0]
			err = store.Requeue(cmd.Context(), id, time.Now())
			switch {
			case errors.Is(err, domain.ErrNotFound):
				return fmt.Errorf("no retry entry %s", id)
			case err != nil:
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "requeued %s\n", id)
			return nil
		},
	}
}

func openStore(cmd *cobra.Command) (*storage.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return storage.Open(cmd.Context(), cfg.Database)
}

func renderRetries(w io.Writer, entries []domain.RetryEntry) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Channel", "Status", "Attempts", "Error", "Next Retry", "Title"})
	for _, e := range entries {
		t.AppendRow(table.Row{
			e.ID,
			e.Channel,
			e.Status,
			e.RetryCount,
			string(e.ErrorType),
			e.NextRetryAt.Local().Format(time.DateTime),
			shorten(e.Article.Title, 48),
		})
	}
	t.Render()
}

func shorten(s string, n int) string {
	s = strings.TrimSpace(s)
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n-1]) + "…"
}
