package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/osvaldoandrade/irisenroll/internal/providers"
	"github.com/osvaldoandrade/irisenroll/internal/repository"
	"github.com/osvaldoandrade/irisenroll/pkg/domain"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var errLedgerDisabled = errors.New("run ledger is disabled (set --redis-addr or IRISENROLL_REDIS_ADDR)")

func newRunsCmd(u *ui, fv *flagValues) *cobra.Command {
	runs := &cobra.Command{
		Use:   "runs",
		Short: "Query the run ledger",
	}

	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run and its failed items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, closeFn, err := openLedger(cmd, fv)
			if err != nil {
				fmt.Fprintln(os.Stderr, u.err("[ERROR]"), err)
				return err
			}
			defer closeFn()

			spin := spinner.New(spinner.CharSets[14], 120*time.Millisecond, spinner.WithWriter(os.Stderr))
			spin.Suffix = " Fetching run..."
			spin.Start()
			rec, err := ledger.GetRun(cmd.Context(), args[0])
			var items []domain.ItemRecord
			if err == nil {
				items, err = ledger.ListItems(cmd.Context(), args[0])
			}
			spin.Stop()
			if err != nil {
				fmt.Fprintln(os.Stderr, u.err("[ERROR]"), err)
				return err
			}
			printRun(cmd.OutOrStdout(), u, rec, items)
			return nil
		},
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List the most recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, closeFn, err := openLedger(cmd, fv)
			if err != nil {
				fmt.Fprintln(os.Stderr, u.err("[ERROR]"), err)
				return err
			}
			defer closeFn()
			return listRuns(cmd.Context(), cmd.OutOrStdout(), ledger, limit)
		},
	}
	list.Flags().IntVar(&limit, "limit", 10, "Number of runs to show")

	runs.AddCommand(show, list)
	return runs
}

func openLedger(cmd *cobra.Command, fv *flagValues) (repository.LedgerRepository, func(), error) {
	cfg, err := loadConfig(cmd, fv)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Ledger.RedisAddr == "" {
		return nil, nil, errLedgerDisabled
	}
	rdb := providers.NewRedisProvider(cfg.Ledger.RedisAddr, cfg.Ledger.RedisPassword)
	return repository.NewLedgerRepository(rdb, cfg.Ledger.KeyPrefix), func() { _ = rdb.Close() }, nil
}

func printRun(w io.Writer, u *ui, rec *domain.RunRecord, items []domain.ItemRecord) {
	fmt.Fprintf(w, "%s %s\n", u.title("Run"), rec.RunID)
	fmt.Fprintf(w, "  source:   %s (%s)\n", rec.SourceDir, rec.Pattern)
	fmt.Fprintf(w, "  target:   %s\n", rec.TargetDir)
	fmt.Fprintf(w, "  workers:  %d, policy %s\n", rec.Workers, rec.Policy)
	fmt.Fprintf(w, "  started:  %s\n", rec.StartedAt.Format(time.RFC3339))
	if rec.FinishedAt != nil {
		fmt.Fprintf(w, "  finished: %s (%s)\n", rec.FinishedAt.Format(time.RFC3339), (time.Duration(rec.ElapsedMs) * time.Millisecond).String())
	} else {
		fmt.Fprintf(w, "  finished: %s\n", u.warn("not finished"))
	}
	fmt.Fprintf(w, "  items:    %d total, %s enrolled, %s failed, %d skipped\n",
		rec.Total, u.ok(rec.Enrolled), u.err(rec.Failed), rec.Skipped)

	sort.Slice(items, func(i, j int) bool { return items[i].Source < items[j].Source })
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Source", "Status", "Worker", "Error"})
	for _, it := range items {
		if it.Status == domain.StatusEnrolled {
			continue
		}
		tw.AppendRow(table.Row{it.Source, string(it.Status), it.Worker, it.Error})
	}
	if tw.Length() > 0 {
		fmt.Fprintln(w, tw.Render())
	}
}

func listRuns(ctx context.Context, w io.Writer, ledger repository.LedgerRepository, limit int) error {
	ids, err := ledger.RecentRuns(ctx, limit)
	if err != nil {
		return err
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Run", "Started", "Total", "Enrolled", "Failed", "Skipped"})
	for _, id := range ids {
		rec, err := ledger.GetRun(ctx, id)
		if err != nil {
			continue
		}
		tw.AppendRow(table.Row{rec.RunID, rec.StartedAt.Format(time.RFC3339), rec.Total, rec.Enrolled, rec.Failed, rec.Skipped})
	}
	fmt.Fprintln(w, tw.Render())
	return nil
}
