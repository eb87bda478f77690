package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/sarchlab/flashsim/config"
	"github.com/sarchlab/flashsim/datarecording"
	"github.com/sarchlab/flashsim/monitoring"
	"github.com/sarchlab/flashsim/simulation"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a benchmark.",
	Long: "`run` fills the drive, optionally warms it up, and prints one " +
		"report line per repetition.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		return runSimulation(ctx, cfg, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	config.RegisterFlags(runCmd.Flags())
}

func runSimulation(ctx context.Context, cfg *config.Config, out io.Writer) error {
	registry := prometheus.NewRegistry()

	builder := simulation.MakeBuilder().
		WithConfig(*cfg).
		WithRegistry(registry).
		WithLogger(log.New(out, "", 0))

	if cfg.Recording.Enabled {
		recorder := newRecorder(cfg.Recording)
		defer recorder.Close()

		builder = builder.WithDataRecorder(recorder)
	}

	if cfg.Monitor.Enabled {
		monitor := monitoring.NewMonitor().
			WithPortNumber(cfg.Monitor.Port).
			WithBrowser(cfg.Monitor.OpenBrowser).
			WithAssetDir(cfg.Monitor.AssetDir).
			WithGatherer(registry)
		monitor.StartServer()
		defer monitor.StopServer(context.Background())

		builder = builder.WithMonitor(monitor)
	}

	s, err := builder.Build("SSD")
	if err != nil {
		return err
	}

	summary, err := s.Run(ctx)
	printSummary(out, s, summary)

	if err != nil {
		return fmt.Errorf("simulation stopped after %d repetitions: %w",
			summary.Reps, err)
	}

	return nil
}

func newRecorder(cfg config.RecordingConfig) datarecording.DataRecorder {
	if cfg.Format == "csv" {
		return datarecording.NewCSVRecorder(cfg.Path)
	}

	return datarecording.New(cfg.Path)
}

func printSummary(w io.Writer, s *simulation.Simulation, summary simulation.Summary) {
	dev := s.Device()

	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetColumnSeparator(":")
	table.SetCenterSeparator("")
	table.SetRowSeparator("")
	table.SetBorder(false)

	rows := [][]string{
		{"policy", s.Policy().Name()},
		{"pattern", s.Source().Name()},
		{"capacity", humanize.IBytes(dev.CapacityBytes())},
		{"repetitions", strconv.FormatUint(summary.Reps, 10)},
		{"host writes", humanize.Comma(int64(summary.HostWrites))},
		{"physical writes", humanize.Comma(int64(summary.PhysicalWrites))},
		{"GC invocations", humanize.Comma(int64(summary.GCInvocations))},
		{"pages relocated", humanize.Comma(int64(summary.PagesRelocated))},
		{"init WA", strconv.FormatFloat(summary.InitWAF, 'f', 4, 64)},
		{"cumulative WA", strconv.FormatFloat(summary.CumulativeWAF, 'f', 4, 64)},
		{"seconds", strconv.FormatFloat(summary.Seconds, 'f', 2, 64)},
	}

	for _, row := range rows {
		table.Append(row)
	}

	table.Render()
}
