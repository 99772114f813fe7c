// Command ews-sim generates synthetic crowd readings, either as an
// evaluated CSV dataset or as a live stream against a running service.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/crowdews/internal/domain/model"
	"github.com/okian/crowdews/internal/domain/risk"
	"github.com/okian/crowdews/internal/simulate"
	"github.com/okian/crowdews/pkg/logger"
)

const (
	ticksPerDay    = 288
	defaultSeed    = 42
	defaultTimeout = 10 * time.Second
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ews-sim",
		Short:         "Synthetic crowd readings for the early warning service",
		SilenceUsage: true,
	}
	root.AddCommand(newGenerateCmd(), newStreamCmd())
	return root
}

type generateOptions struct {
	zone        string
	mode        string
	seed        int64
	days        int
	start       string
	out         string
	alertSource string
}

func newGenerateCmd() *cobra.Command {
	o := generateOptions{}
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write an evaluated dataset as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGenerate(cmd, &o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.zone, "zone", "ghat-1", "zone identifier")
	f.StringVar(&o.mode, "mode", string(simulate.ModeFestival), "scenario mode: realtime or festival")
	f.Int64Var(&o.seed, "seed", defaultSeed, "random seed")
	f.IntVar(&o.days, "days", 7, "number of days at five-minute resolution")
	f.StringVar(&o.start, "start", simulate.FestivalStart.Format(time.DateOnly), "first day (YYYY-MM-DD, UTC)")
	f.StringVarP(&o.out, "out", "o", "", "output file (default stdout)")
	f.StringVar(&o.alertSource, "alert-source", string(risk.AlertSourceComposite), "score driving alerts: composite or extended")
	return cmd
}

func runGenerate(cmd *cobra.Command, o *generateOptions) error {
	mode, err := parseMode(o.mode)
	if err != nil {
		return err
	}
	if o.days < 1 {
		return fmt.Errorf("days must be positive, got %d", o.days)
	}
	start, err := time.ParseInLocation(time.DateOnly, o.start, time.UTC)
	if err != nil {
		return fmt.Errorf("parse start: %w", err)
	}
	src, err := risk.ParseAlertSource(o.alertSource)
	if err != nil {
		return err
	}
	cfg, err := risk.NewConfig(risk.WithAlertSource(src))
	if err != nil {
		return err
	}

	g := simulate.NewGenerator(o.zone, simulate.WithSeed(o.seed), simulate.WithMode(mode), simulate.WithStart(start))
	recs := simulate.Dataset(g, cfg, o.days*ticksPerDay)

	var w io.Writer = cmd.OutOrStdout()
	if o.out != "" {
		file, err := os.Create(o.out)
		if err != nil {
			return fmt.Errorf("create %s: %w", o.out, err)
		}
		defer file.Close()
		w = file
	}
	if err := simulate.WriteCSV(w, recs); err != nil {
		return err
	}

	printDistribution(cmd.ErrOrStderr(), simulate.Distribution(recs), len(recs))
	return nil
}

func printDistribution(w io.Writer, dist map[model.Level]int, total int) {
	fmt.Fprintf(w, "alert distribution over %d records:\n", total)
	for _, l := range model.Levels() {
		n := dist[l]
		fmt.Fprintf(w, "  %-6s %6d (%5.1f%%)\n", l, n, 100*float64(n)/float64(total))
	}
}

type streamOptions struct {
	url      string
	zones    []string
	count    int
	interval time.Duration
	mode     string
	seed     int64
	workers  int
	timeout  time.Duration
}

func newStreamCmd() *cobra.Command {
	o := streamOptions{}
	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Post generated readings to a running service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStream(cmd, &o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.url, "url", "http://localhost:9080", "base URL of the service")
	f.StringSliceVar(&o.zones, "zones", []string{"ghat-1"}, "zones to simulate")
	f.IntVar(&o.count, "count", ticksPerDay, "readings per zone in burst mode")
	f.DurationVar(&o.interval, "interval", 0, "pace readings at this interval until interrupted (0 posts a burst)")
	f.StringVar(&o.mode, "mode", string(simulate.ModeFestival), "scenario mode: realtime or festival")
	f.Int64Var(&o.seed, "seed", defaultSeed, "random seed")
	f.IntVar(&o.workers, "workers", runtime.NumCPU(), "zones posted concurrently")
	f.DurationVar(&o.timeout, "timeout", defaultTimeout, "HTTP request timeout")
	return cmd
}

func runStream(cmd *cobra.Command, o *streamOptions) error {
	mode, err := parseMode(o.mode)
	if err != nil {
		return err
	}
	if len(o.zones) == 0 {
		return fmt.Errorf("at least one zone is required")
	}
	gens := make([]*simulate.Generator, 0, len(o.zones))
	for _, z := range o.zones {
		gens = append(gens, simulate.NewGenerator(z, simulate.WithSeed(o.seed), simulate.WithMode(mode)))
	}
	client := simulate.NewClient(o.url, o.timeout)

	if o.interval > 0 {
		return simulate.NewFeeder(gens, o.interval, client.Sink).Run(cmd.Context())
	}

	start := time.Now()
	stats := simulate.Stream(cmd.Context(), client, gens, o.count, o.workers)
	fmt.Fprintf(cmd.OutOrStdout(), "submitted %d readings in %s (accepted: %d, duplicate: %d, failed: %d)\n",
		stats.Submitted, time.Since(start).Round(time.Millisecond), stats.Accepted, stats.Duplicate, stats.Failed)
	if stats.Failed > 0 {
		return fmt.Errorf("%d readings failed", stats.Failed)
	}
	return nil
}

func parseMode(s string) (simulate.Mode, error) {
	switch m := simulate.Mode(s); m {
	case simulate.ModeRealtime, simulate.ModeFestival:
		return m, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}
