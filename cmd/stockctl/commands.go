package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/yourusername/stocktester/internal/health"
	"github.com/yourusername/stocktester/internal/marketdata"
	"github.com/yourusername/stocktester/internal/models"
	"github.com/yourusername/stocktester/internal/repository"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			applied, err := e.db.Migrate(cmd.Context(), e.logger)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Database is up to date")
				return nil
			}
			for _, v := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %s\n", v)
			}
			return nil
		},
	}
}

func cleanupCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete finished backtests older than --days",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			if days <= 0 {
				days = e.cfg.Retention.ResultDays
			}
			cutoff := time.Now().UTC().AddDate(0, 0, -days)
			deleted, err := e.repos.Backtest.DeleteFinishedBefore(cmd.Context(), cutoff)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d backtests finished before %s\n", deleted, cutoff.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "Retention in days (defaults to retention.result_days)")
	return cmd
}

func jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and cancel backtest jobs",
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show stored backtest counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			counts, err := e.repos.Backtest.CountByStatus(cmd.Context())
			if err != nil {
				return err
			}
			return printCounts(cmd, counts)
		},
	}

	var (
		listStatus string
		listLimit  int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List backtests in a status",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := models.BacktestStatus(listStatus)
			if !s.Valid() {
				return fmt.Errorf("unknown status %q", listStatus)
			}
			e, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			records, err := e.repos.Backtest.ListByStatus(cmd.Context(), s, listLimit)
			if err != nil {
				return err
			}
			return printRecords(cmd, records)
		},
	}
	list.Flags().StringVar(&listStatus, "status", string(models.StatusPending), "Status to list")
	list.Flags().IntVar(&listLimit, "limit", 20, "Maximum records")

	cancel := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a pending backtest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			return cancelPending(cmd, e.repos.Backtest, args[0])
		},
	}

	cmd.AddCommand(status, list, cancel)
	return cmd
}

// cancelPending cancels a pending record. A running server skips the
// queued entry once the record is no longer pending.
func cancelPending(cmd *cobra.Command, repo repository.BacktestRepository, id string) error {
	record, err := repo.GetByID(cmd.Context(), id)
	if err != nil {
		return err
	}
	err = repo.Transition(cmd.Context(), id, models.StatusCancelled, repository.StatusUpdate{At: time.Now().UTC()})
	if errors.Is(err, models.ErrInvalidTransition) {
		return fmt.Errorf("backtest %s is already %s", id, record.Status)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cancelled %s\n", id)
	return nil
}

func sourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List market data sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			manager := marketdata.NewManagerFromConfig(e.cfg, e.repos.DataSource, e.logger)
			sources, err := manager.ListSources(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSYMBOLS\tSTART\tEND\tDESCRIPTION")
			for _, s := range sources {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", s.Name, s.SymbolsCount, dateOrDash(s.StartDate), dateOrDash(s.EndDate), s.Description)
			}
			return w.Flush()
		},
	}
}

func importCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "import <csv>",
		Short: "Import a CSV file as a custom data source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()

			e, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			manager := marketdata.NewManagerFromConfig(e.cfg, e.repos.DataSource, e.logger)
			resp, err := manager.Import(cmd.Context(), name, filepath.Base(args[0]), f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (source %s)\n", resp.Message, resp.SourceName)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Source name (defaults to custom_<file name>)")
	return cmd
}

func healthCmd() *cobra.Command {
	var (
		addr    string
		service string
		timeout time.Duration
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Query the gRPC health service of a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			status, err := health.Probe(ctx, addr, service)
			if err != nil {
				return err
			}
			if asJSON {
				out, err := protojson.Marshal(&healthpb.HealthCheckResponse{Status: status})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), status.String())
			}
			if status != healthpb.HealthCheckResponse_SERVING {
				return fmt.Errorf("%s is %s", addr, status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "grpc", "localhost:8082", "gRPC health address")
	cmd.Flags().StringVar(&service, "service", "", "Service name to check (blank for overall)")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Probe timeout")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the grpc.health.v1 response as JSON")
	return cmd
}

func printCounts(cmd *cobra.Command, counts map[models.BacktestStatus]int) error {
	statuses := make([]string, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STATUS\tCOUNT")
	for _, s := range statuses {
		fmt.Fprintf(w, "%s\t%d\n", s, counts[models.BacktestStatus(s)])
	}
	return w.Flush()
}

func printRecords(cmd *cobra.Command, records []*models.BacktestRecord) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tSTATUS\tPRIORITY\tCREATED")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", r.ID, r.Kind, r.Status, r.Priority, r.CreatedAt.UTC().Format(time.RFC3339))
	}
	return w.Flush()
}

func dateOrDash(d *models.Date) string {
	if d == nil || d.IsZero() {
		return "-"
	}
	return d.String()
}
