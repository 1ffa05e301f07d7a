package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/opscart/vm-reclaim/pkg/config"
	"github.com/opscart/vm-reclaim/pkg/logging"
	"github.com/opscart/vm-reclaim/pkg/models"
	"github.com/opscart/vm-reclaim/pkg/monitor"
	"github.com/opscart/vm-reclaim/pkg/provisioner"
	"github.com/opscart/vm-reclaim/pkg/reporter"
	"github.com/opscart/vm-reclaim/pkg/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

// Default workers when neither --pid nor --spawn is given: one idle
// worker, the rest busy
var (
	idleWorkerCommand = "sleep 86400"
	busyWorkerCommand = "dd if=/dev/zero of=/dev/null bs=1M"
)

var (
	// Monitor flags
	configPath   string
	pids         []int
	spawn        []string
	reportOutput string
	saveResults  bool
	quiet        bool

	// History command vars
	historyLimit   int
	historySession string
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "vm-reclaim",
		Short: "Find underutilized VMs by sampling CPU, memory and disk I/O",
		Long: `Monitor a set of VM processes with ps and iotop for a number of ticks,
average their usage and report every VM below any of the thresholds as a
candidate for reclamation.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runMonitor,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")

	// Monitor flags
	flags := rootCmd.Flags()
	config.RegisterFlags(flags)
	flags.IntSliceVar(&pids, "pid", nil, "Monitor an existing process (repeatable)")
	flags.StringArrayVar(&spawn, "spawn", nil, "Spawn a worker running this shell command (repeatable); with --vms larger than the count, commands are reused in order")
	flags.StringVar(&reportOutput, "report-output", "", "Write the detailed report to this file")
	flags.BoolVar(&saveResults, "save", false, "Save classification results to the database")
	flags.BoolVarP(&quiet, "quiet", "q", false, "Do not print Reclaim lines")

	// History command
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List stored classification results",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of results to show")
	historyCmd.Flags().StringVar(&historySession, "session", "", "Only show results of this session")

	// Show command
	showCmd := &cobra.Command{
		Use:   "show <reclamation-id>",
		Short: "Show one stored classification result",
		Args:  cobra.ExactArgs(1),
		RunE:  runShow,
	}
	showCmd.Flags().StringP("output", "o", "text", "Output format: text, json, yaml, csv")

	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(showCmd)

	return rootCmd
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return err
	}
	logger := logging.SetDefault(os.Stderr, cfg.LogLevel)

	if err := applyWorkerFlags(cfg, pids, spawn, cmd.Flags().Changed("vms")); err != nil {
		return err
	}
	if saveResults {
		cfg.StorageEnabled = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var store storage.Store
	if cfg.StorageEnabled {
		pg, err := storage.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		defer pg.Close()
		store = pg
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		shutdown := serveMetrics(cfg.MetricsAddr, logger)
		defer shutdown()
	}

	var prov monitor.Provisioner
	if len(pids) > 0 {
		prov = provisioner.NewStatic(pids)
	} else {
		execProv := provisioner.NewExec(workerCommands(spawn, cfg.VMCount))
		defer execProv.Terminate()
		prov = execProv
	}

	session, err := monitor.NewSession(ctx, cfg, prov, monitor.WithLogger(logger))
	if err != nil {
		return err
	}

	if err := session.Monitor(ctx); err != nil {
		// Interrupted: classify what was gathered so far
		logger.Warn("monitoring stopped early", "error", err)
	}

	session.UnderutilizedVMs(cmd.OutOrStdout(), !quiet)

	rep := reporter.New(reporter.ReportFormat(cfg.OutputFormat))
	report := rep.Generate(session.ID, session, session.StartedAt, session.FinishedAt)
	if err := writeReport(rep, report, cmd.OutOrStdout()); err != nil {
		return err
	}

	if store != nil {
		saveCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		for _, entry := range report.Entries {
			if err := store.SaveReclamation(saveCtx, entry.Reclamation); err != nil {
				return err
			}
		}
		logger.Info("results saved", "session", session.ID, "count", len(report.Entries))
	}

	return nil
}

// applyWorkerFlags sizes the session from --pid or --spawn unless --vms
// was given explicitly
func applyWorkerFlags(cfg *config.Config, pids []int, spawn []string, vmsChanged bool) error {
	if len(pids) > 0 && len(spawn) > 0 {
		return errors.New("--pid and --spawn are mutually exclusive")
	}
	if vmsChanged {
		return nil
	}
	switch {
	case len(pids) > 0:
		cfg.VMCount = len(pids)
	case len(spawn) > 0:
		cfg.VMCount = len(spawn)
	}
	return nil
}

// workerCommands returns the command for each spawned worker. Without
// explicit commands the first worker idles and the others keep busy.
func workerCommands(spawn []string, count int) []string {
	if len(spawn) > 0 {
		return spawn
	}
	commands := []string{idleWorkerCommand}
	for i := 1; i < count; i++ {
		commands = append(commands, busyWorkerCommand)
	}
	return commands
}

// writeReport emits the detailed report to --report-output, or to stdout
// for the structured formats. Plain text without a file adds nothing to
// the Reclaim lines and is skipped.
func writeReport(rep *reporter.Reporter, report *reporter.Report, stdout io.Writer) error {
	if reportOutput == "" {
		if rep.Format() == reporter.FormatText {
			return nil
		}
		return rep.Write(report, stdout)
	}

	if dir := filepath.Dir(reportOutput); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	file, err := os.Create(reportOutput)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	if err := rep.Write(report, file); err != nil {
		return err
	}

	slog.Info("report generated", "format", strings.ToUpper(string(rep.Format())), "file", reportOutput)
	return nil
}

func serveMetrics(addr string, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func openStore() (storage.Store, error) {
	cfg, err := config.Load(configPath, nil)
	if err != nil {
		return nil, err
	}
	logging.SetDefault(os.Stderr, cfg.LogLevel)

	store, err := storage.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return store, nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	return printHistory(cmd.Context(), store, cmd.OutOrStdout(), historySession, historyLimit)
}

func printHistory(ctx context.Context, store storage.Store, w io.Writer, session string, limit int) error {
	recs, err := store.ListReclamations(ctx, session, limit)
	if err != nil {
		return err
	}

	if len(recs) == 0 {
		fmt.Fprintln(w, "No results found")
		return nil
	}

	fmt.Fprintf(w, "Recent results:\n\n")
	for i, rec := range recs {
		fmt.Fprintf(w, "%d. %s(%d) (ID: %s)\n", i+1, rec.Worker.Name, rec.Worker.PID, rec.ID)
		fmt.Fprintf(w, "   Session: %s\n", rec.SessionID)
		fmt.Fprintf(w, "   Usage: cpu %.2f%% mem %.2f%% io %.2fKbps\n", rec.AvgCPU, rec.AvgMem, rec.AvgDisk)
		fmt.Fprintf(w, "   Underutilized: %t\n", rec.Underutilized)
		fmt.Fprintf(w, "   Created: %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Fprintln(w)
	}
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	format, _ := cmd.Flags().GetString("output")
	return printReclamation(cmd.Context(), store, cmd.OutOrStdout(), args[0], reporter.ReportFormat(format))
}

func printReclamation(ctx context.Context, store storage.Store, w io.Writer, id string, format reporter.ReportFormat) error {
	rec, err := store.GetReclamation(ctx, id)
	if err != nil {
		return err
	}

	if format == "" {
		format = reporter.FormatText
	}
	rep := reporter.New(format)
	return rep.Write(rep.FromReclamations([]*models.Reclamation{rec}), w)
}
