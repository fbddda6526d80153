package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/andresuchdata/customer-health/backend-go/internal/health"
	"github.com/urfave/cli/v2"
)

func assessCommand() *cli.Command {
	return &cli.Command{
		Name:  "assess",
		Usage: "Assess a revenue series given oldest-first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "totals", Usage: "Comma-separated order totals, e.g. 500,480,520"},
			&cli.StringFlag{Name: "file", Usage: "CSV file with one order total per row (first column, optional header)"},
			&cli.Float64Flag{Name: "monthly-revenue", Usage: "Average monthly spend; switches to the tier-aware assessment"},
			&cli.BoolFlag{Name: "tier-sensitive", Usage: "Use the tier's alpha and k-sigma for the bands", EnvVars: []string{"HEALTH_TIER_SENSITIVE_BANDS"}},
			&cli.IntFlag{Name: "min-sample-size", Usage: "Minimum orders before a verdict", Action: positiveInt("min-sample-size")},
			&cli.IntFlag{Name: "window", Usage: "Number of latest orders averaged as current revenue", Action: positiveInt("window")},
			&cli.Float64Flag{Name: "alpha", Usage: "EWMA smoothing factor (0, 1]", Action: validAlpha},
			&cli.Float64Flag{Name: "k-sigma", Usage: "Band width in standard deviations", Action: positiveFloat("k-sigma")},
		},
		Action: runAssess,
	}
}

// Flag actions run only for flags given on the command line. Unset tuning
// flags stay zero and take the package defaults.
func positiveInt(name string) func(*cli.Context, int) error {
	return func(_ *cli.Context, v int) error {
		if v <= 0 {
			return fmt.Errorf("--%s must be at least 1, got %d", name, v)
		}
		return nil
	}
}

func positiveFloat(name string) func(*cli.Context, float64) error {
	return func(_ *cli.Context, v float64) error {
		if !(v > 0) {
			return fmt.Errorf("--%s must be greater than 0, got %g", name, v)
		}
		return nil
	}
}

func validAlpha(_ *cli.Context, v float64) error {
	if !(v > 0 && v <= 1) {
		return fmt.Errorf("--alpha must be in (0, 1], got %g", v)
	}
	return nil
}

func tiersCommand() *cli.Command {
	return &cli.Command{
		Name:  "tiers",
		Usage: "Print the spend tier threshold table",
		Action: func(c *cli.Context) error {
			return printTiers(c.App.Writer)
		},
	}
}

func runAssess(c *cli.Context) error {
	totals, err := loadTotals(c.String("totals"), c.String("file"))
	if err != nil {
		return err
	}

	var result interface{}
	if c.IsSet("monthly-revenue") {
		result = health.AssessRevenueHealthByTier(health.TierRequest{
			RecentTotals:       totals,
			MonthlyRevenue:     c.Float64("monthly-revenue"),
			TierSensitiveBands: c.Bool("tier-sensitive"),
		})
	} else {
		result = health.AssessRevenueHealth(totals, health.Options{
			MinSampleSize:     c.Int("min-sample-size"),
			CurrentWindowSize: c.Int("window"),
			Alpha:             c.Float64("alpha"),
			KSigma:            c.Float64("k-sigma"),
		})
	}

	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func loadTotals(inline, path string) ([]float64, error) {
	switch {
	case inline != "" && path != "":
		return nil, errors.New("use either --totals or --file, not both")
	case inline != "":
		return parseTotals(inline)
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()
		return readTotalsCSV(f)
	default:
		return nil, errors.New("one of --totals or --file is required")
	}
}

func parseTotals(raw string) ([]float64, error) {
	var totals []float64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid order total %q: %w", part, err)
		}
		totals = append(totals, v)
	}
	return totals, nil
}

// readTotalsCSV reads the first column. A non-numeric first row is taken as
// a header; any later non-numeric cell is an error.
func readTotalsCSV(r io.Reader) ([]float64, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var totals []float64
	for line := 1; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}
		if len(record) == 0 || strings.TrimSpace(record[0]) == "" {
			continue
		}

		v, err := strconv.ParseFloat(strings.TrimSpace(record[0]), 64)
		if err != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("line %d: invalid order total %q", line, record[0])
		}
		totals = append(totals, v)
	}
	return totals, nil
}

func printTiers(out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIER\tK_SIGMA\tMIN_SAMPLES\tALPHA\tDESCRIPTION")
	for _, tier := range health.Tiers() {
		t := health.GetTierThresholds(tier)
		fmt.Fprintf(w, "%s\t%.1f\t%d\t%.2f\t%s\n", tier, t.KSigma, t.MinSampleSize, t.Alpha, t.Description)
	}
	return w.Flush()
}
