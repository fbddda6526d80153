package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/andresuchdata/customer-health/backend-go/internal/pipeline"
	"github.com/urfave/cli/v2"
)

type runReader interface {
	GetRun(ctx context.Context, id int64) (*pipeline.HealthRun, error)
	ListRecentRuns(ctx context.Context, limit int) ([]*pipeline.HealthRun, error)
}

func runsCommand() *cli.Command {
	withRepo := func(action func(*cli.Context, runReader) error) cli.ActionFunc {
		return func(c *cli.Context) error {
			db, err := pipeline.OpenTrackingDB(c.Context, c.String("db-url"))
			if err != nil {
				return err
			}
			defer db.Close()
			return action(c, pipeline.NewRepository(db))
		}
	}

	return &cli.Command{
		Name:  "runs",
		Usage: "Inspect recorded recompute runs",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List the most recent runs, newest first",
				Flags: []cli.Flag{
					newDBURLFlag(),
					&cli.IntFlag{Name: "limit", Value: 20},
				},
				Action: withRepo(listRuns),
			},
			{
				Name:  "show",
				Usage: "Show one run",
				Flags: []cli.Flag{
					newDBURLFlag(),
					&cli.Int64Flag{Name: "id", Required: true},
				},
				Action: withRepo(showRun),
			},
		},
	}
}

func listRuns(c *cli.Context, repo runReader) error {
	runs, err := repo.ListRecentRuns(c.Context, c.Int("limit"))
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tSTARTED\tDURATION\tCUSTOMERS\tSNAPSHOTS\tREPORT")
	for _, run := range runs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\t%s\n",
			run.ID, run.Status, run.StartedAt.Format("2006-01-02 15:04:05"),
			runDuration(run), run.CustomersProcessed, run.SnapshotsWritten, run.ReportPath)
	}
	return w.Flush()
}

func showRun(c *cli.Context, repo runReader) error {
	id := c.Int64("id")
	run, err := repo.GetRun(c.Context, id)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("health run %d not found", id)
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "id\t%d\n", run.ID)
	fmt.Fprintf(w, "status\t%s\n", run.Status)
	fmt.Fprintf(w, "started\t%s\n", run.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "duration\t%s\n", runDuration(run))
	fmt.Fprintf(w, "tenants\t%d\n", run.TenantsTotal)
	fmt.Fprintf(w, "customers\t%d\n", run.CustomersProcessed)
	fmt.Fprintf(w, "snapshots\t%d\n", run.SnapshotsWritten)
	if run.ReportPath != "" {
		fmt.Fprintf(w, "report\t%s\n", run.ReportPath)
	}
	if run.ErrorMessage != "" {
		fmt.Fprintf(w, "error\t%s\n", run.ErrorMessage)
	}
	return w.Flush()
}

func runDuration(run *pipeline.HealthRun) string {
	if run.FinishedAt == nil {
		return "-"
	}
	return run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
}
