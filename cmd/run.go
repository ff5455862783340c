package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/aroellin/rstisim/sim"
	"github.com/aroellin/rstisim/sim/config"
	"github.com/aroellin/rstisim/sim/export"
	"github.com/aroellin/rstisim/sim/trace"
)

// runOptions are the settings of one simulation run.
type runOptions struct {
	Config        string
	Seed          int64
	HasSeed       bool
	Days          float64
	Events        int
	Chunk         float64
	ChunkEvents   int
	SnapshotDB    string
	Metrics       string
	Trace         bool
	TraceCapacity int
	Verbose       bool
}

func runOptionsFrom(v *viper.Viper) (runOptions, error) {
	opts := runOptions{
		Config:        v.GetString("config"),
		Seed:          v.GetInt64("seed"),
		HasSeed:       v.IsSet("seed"),
		Days:          v.GetFloat64("days"),
		Events:        v.GetInt("events"),
		Chunk:         v.GetFloat64("chunk"),
		ChunkEvents:   v.GetInt("chunk-events"),
		SnapshotDB:    v.GetString("snapshot-db"),
		Metrics:       v.GetString("metrics"),
		Trace:         v.GetBool("trace"),
		TraceCapacity: v.GetInt("trace-capacity"),
		Verbose:       v.GetBool("verbose"),
	}
	return opts, opts.validate()
}

func (o runOptions) validate() error {
	switch {
	case o.Days > 0 && o.Events > 0:
		return fmt.Errorf("--days and --events are mutually exclusive")
	case o.Days <= 0 && o.Events <= 0:
		return fmt.Errorf("one of --days or --events must be positive")
	case o.Days > 0 && o.Chunk <= 0:
		return fmt.Errorf("--chunk must be positive, got %g", o.Chunk)
	case o.Events > 0 && o.ChunkEvents <= 0:
		return fmt.Errorf("--chunk-events must be positive, got %d", o.ChunkEvents)
	}
	return nil
}

// runResult summarises a finished or interrupted run.
type runResult struct {
	RunID       string
	Seed        int64
	Chunks      int
	Snapshots   int
	Stats       sim.Statistics
	Trace       *trace.TraceSummary
	Interrupted bool
	Elapsed     time.Duration
}

// runCmd executes the simulation using parameters from CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation",
	Run: func(cmd *cobra.Command, args []string) {
		v := mustLoadSettings(cmd)
		opts, err := runOptionsFrom(v)
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		res, err := runSimulation(ctx, opts)
		if err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
		printSummary(cmd.OutOrStdout(), res)
		logrus.Info("Simulation complete.")
	},
}

// runSimulation builds the model, populates it and advances it chunk by
// chunk. The simulator is driven by one worker goroutine; a second one
// consumes the statistics it reports after each chunk. Cancelling ctx stops
// the run at the next chunk boundary; the exports are still written.
func runSimulation(ctx context.Context, opts runOptions) (*runResult, error) {
	start := time.Now()
	root, err := config.Load(opts.Config)
	if err != nil {
		return nil, err
	}
	var simOpts []sim.Option
	if opts.HasSeed {
		simOpts = append(simOpts, sim.WithSeed(opts.Seed))
	}
	var tr *trace.SimulationTrace
	if opts.Trace {
		tr = trace.NewSimulationTrace(trace.TraceConfig{Level: trace.TraceLevelEvents, Capacity: opts.TraceCapacity})
		simOpts = append(simOpts, sim.WithTracer(tr))
	}
	if opts.Verbose {
		simOpts = append(simOpts, sim.WithVerbose(true))
	}
	s, err := sim.New(root, simOpts...)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	if err := s.Populate(); err != nil {
		return nil, err
	}

	res := &runResult{RunID: uuid.NewString(), Seed: s.Seed()}
	var writer *export.SQLiteWriter
	if opts.SnapshotDB != "" {
		if writer, err = export.OpenSQLite(ctx, opts.SnapshotDB, s, opts.Config); err != nil {
			return nil, err
		}
		defer func() { _ = writer.Close() }()
		res.RunID = writer.RunID()
	}
	metrics := export.NewMetrics(res.RunID)
	logrus.Infof("Starting run %s: seed=%d days=%g events=%d", res.RunID, res.Seed, opts.Days, opts.Events)

	progress := make(chan sim.Statistics, 1)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(progress)
		return advance(gctx, s, opts, writer, progress, res)
	})
	g.Go(func() error {
		for st := range progress {
			metrics.Observe(st)
			logrus.Infof("t=%g popsize=%d events=%d infections=%d treatments=%d",
				st.Time, st.PopulationSize, st.Events, st.Infections, st.Treatments)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		if !errors.Is(err, context.Canceled) {
			return nil, err
		}
		logrus.Warnf("run interrupted at t=%g", s.Now())
		res.Interrupted = true
	}

	if res.Stats, err = s.Statistics(); err != nil {
		return nil, err
	}
	metrics.Observe(res.Stats)
	if opts.Metrics != "" {
		if err := metrics.WriteTextfile(opts.Metrics); err != nil {
			return nil, fmt.Errorf("writing metrics: %w", err)
		}
	}
	if writer != nil {
		res.Snapshots = writer.Snapshots()
	}
	if tr != nil {
		res.Trace = trace.Summarize(tr)
	}
	res.Elapsed = time.Since(start)
	return res, nil
}

// advance runs the chunks. Cancellation is honoured between chunks only.
func advance(ctx context.Context, s *sim.Simulator, opts runOptions, writer *export.SQLiteWriter,
	progress chan<- sim.Statistics, res *runResult) error {
	end := s.Now() + opts.Days
	remaining := opts.Events
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		done := false
		if opts.Days > 0 {
			step := end - s.Now()
			if step > opts.Chunk {
				step = opts.Chunk
			} else {
				done = true
			}
			if _, err := s.AdvanceBy(step); err != nil {
				return err
			}
		} else {
			want := min(opts.ChunkEvents, remaining)
			n, err := s.AdvanceEvents(want)
			if err != nil {
				return err
			}
			remaining -= n
			// an empty queue ends the run early
			done = remaining <= 0 || n < want
		}
		res.Chunks++
		if writer != nil {
			if err := writer.WriteSnapshot(ctx, s); err != nil {
				return err
			}
		}
		st, err := s.Statistics()
		if err != nil {
			return err
		}
		select {
		case progress <- st:
		case <-ctx.Done():
			return ctx.Err()
		}
		if done {
			return nil
		}
	}
}

func printSummary(w io.Writer, res *runResult) {
	_, _ = fmt.Fprintln(w, "=== Simulation Summary ===")
	_, _ = fmt.Fprintf(w, "%-22s %s\n", "run", res.RunID)
	_, _ = fmt.Fprintf(w, "%-22s %d\n", "seed", res.Seed)
	_, _ = fmt.Fprintf(w, "%-22s %d\n", "chunks", res.Chunks)
	if res.Snapshots > 0 {
		_, _ = fmt.Fprintf(w, "%-22s %d\n", "snapshots", res.Snapshots)
	}
	if res.Interrupted {
		_, _ = fmt.Fprintf(w, "%-22s %s\n", "status", "interrupted")
	}
	for _, f := range res.Stats.Fields() {
		_, _ = fmt.Fprintf(w, "%-22s %g\n", f.Name, f.Value)
	}
	if res.Trace != nil {
		_, _ = fmt.Fprintln(w, "=== Trace Summary ===")
		_, _ = fmt.Fprintf(w, "%-22s %d (%d kept)\n", "traced events", res.Trace.TotalEvents, res.Trace.KeptEvents)
		for _, kind := range slices.Sorted(maps.Keys(res.Trace.KindDistribution)) {
			_, _ = fmt.Fprintf(w, "%-22s %d\n", kind, res.Trace.KindDistribution[kind])
		}
	}
	_, _ = fmt.Fprintf(w, "%-22s %s\n", "elapsed", res.Elapsed.Round(time.Millisecond))
}

func init() {
	runCmd.Flags().Int64("seed", 0, "Seed overriding 'simulation.seed' of the model")
	runCmd.Flags().Float64("days", 0, "Simulated days to run")
	runCmd.Flags().Int("events", 0, "Events to run instead of a number of days")
	runCmd.Flags().Float64("chunk", 365, "Days between progress reports and snapshots")
	runCmd.Flags().Int("chunk-events", 100000, "Events between progress reports and snapshots with --events")
	runCmd.Flags().String("snapshot-db", "", "SQLite file receiving a snapshot after every chunk")
	runCmd.Flags().String("metrics", "", "Prometheus textfile receiving the final statistics")
	runCmd.Flags().Bool("trace", false, "Record executed events and print a trace summary")
	runCmd.Flags().Int("trace-capacity", 10000, "Most recent events kept by --trace; <= 0 keeps all")
	runCmd.Flags().Bool("verbose", false, "Log every executed event at debug level")
}
