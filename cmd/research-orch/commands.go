package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/equityscope/research-orchestrator/internal/batch"
	"github.com/equityscope/research-orchestrator/internal/catalog"
	"github.com/equityscope/research-orchestrator/internal/config"
	"github.com/equityscope/research-orchestrator/internal/domain"
	"github.com/equityscope/research-orchestrator/internal/notify"
	"github.com/equityscope/research-orchestrator/internal/orchestrate"
	"github.com/equityscope/research-orchestrator/internal/reportstore"
	"github.com/equityscope/research-orchestrator/internal/runner"
	"github.com/equityscope/research-orchestrator/tui"
	"github.com/equityscope/research-orchestrator/web/api"
)

var (
	runForce     bool
	runStale     bool
	runDashboard bool
	servePort    int
	schedulePath string
	logsLimit    int
)

func init() {
	// scrape command
	scrapeCmd := &cobra.Command{
		Use:   "scrape [SYMBOL...]",
		Short: "Run a scrape batch over the catalog or the given symbols",
		RunE:  runScrape,
	}
	scrapeCmd.Flags().BoolVar(&runForce, "force", false, "bypass the scraper cache")
	scrapeCmd.Flags().BoolVar(&runDashboard, "tui", false, "show the live dashboard")
	rootCmd.AddCommand(scrapeCmd)

	// generate command
	generateCmd := &cobra.Command{
		Use:   "generate [SYMBOL...]",
		Short: "Run a report-generation batch",
		RunE:  runGenerate,
	}
	generateCmd.Flags().BoolVar(&runStale, "stale", false, "only symbols with missing or outdated reports")
	generateCmd.Flags().BoolVar(&runDashboard, "tui", false, "show the live dashboard")
	rootCmd.AddCommand(generateCmd)

	// symbols command
	symbolsCmd := &cobra.Command{
		Use:   "symbols",
		Short: "List the symbols a batch would cover (catalog + watchlist)",
		RunE:  runSymbols,
	}
	rootCmd.AddCommand(symbolsCmd)

	// reports command
	reportsCmd := &cobra.Command{
		Use:   "reports",
		Short: "List stored reports",
		RunE:  runReports,
	}
	rootCmd.AddCommand(reportsCmd)

	// batches command
	batchesCmd := &cobra.Command{
		Use:   "batches",
		Short: "Show batch-run history",
		RunE:  runBatches,
	}
	rootCmd.AddCommand(batchesCmd)

	// logs command
	logsCmd := &cobra.Command{
		Use:   "logs RUN_ID",
		Short: "View the log of a batch run",
		Args:  cobra.ExactArgs(1),
		RunE:  runLogs,
	}
	logsCmd.Flags().IntVar(&logsLimit, "limit", 200, "max lines to show")
	rootCmd.AddCommand(logsCmd)

	// serve command
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web API, watchlist watcher and batch scheduler",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&schedulePath, "schedule", "", "schedule file path")
	rootCmd.AddCommand(serveCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

func buildNotifier(cfg *config.Config) notify.Notifier {
	return notify.NewMultiNotifier(
		notify.NewDesktopNotifier(cfg.Notify.Desktop),
		notify.NewSlackNotifier(cfg.Notify.SlackWebhook),
	)
}

func openOrchestrator(cfg *config.Config) (*orchestrate.Orchestrator, *reportstore.Store, error) {
	store, err := reportstore.New(cfg.General.DatabasePath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}

	orch := orchestrate.New(cfg, store, buildNotifier(cfg))

	wl, err := catalog.LoadWatchlist(cfg.General.WatchlistPath)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	orch.SetWatchlist(wl)

	return orch, store, nil
}

func parseSymbolArgs(args []string) ([]string, error) {
	symbols := make([]string, 0, len(args))
	for _, a := range args {
		sym, err := domain.ParseSymbol(a)
		if err != nil {
			return nil, err
		}
		symbols = append(symbols, sym)
	}
	return symbols, nil
}

// signalContext returns a context cancelled by SIGINT or SIGTERM so the
// in-flight item finishes before the batch stops
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runBatch(kind domain.BatchKind, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	orch, store, err := openOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	symbols, err := parseSymbolArgs(args)
	if err != nil {
		return err
	}

	opts := orchestrate.Options{
		Symbols:   symbols,
		Force:     runForce,
		StaleOnly: runStale,
	}

	ctx, stop := signalContext()
	defer stop()

	if runDashboard {
		return runBatchWithDashboard(ctx, orch, kind, opts)
	}

	opts.Observers = []runner.ProgressFunc{printProgress()}

	var res *runner.Result[domain.WorkItem]
	if kind == domain.BatchGenerate {
		res, err = orch.RunGenerate(ctx, opts)
	} else {
		res, err = orch.RunScrape(ctx, opts)
	}
	if err != nil {
		return err
	}

	fmt.Printf("%s run %s: %d/%d processed, %d succeeded, %d failed, %d degraded\n",
		res.Kind, res.State, res.Processed(), res.Total, res.Succeeded, res.Failed, res.Degraded)
	return nil
}

// printProgress prints each new log line once
func printProgress() runner.ProgressFunc {
	var last runner.LogLine
	return func(s runner.Snapshot) {
		if s.LastLine.Time.IsZero() || s.LastLine == last {
			return
		}
		last = s.LastLine
		fmt.Println(s.LastLine.Message)
	}
}

func runBatchWithDashboard(ctx context.Context, orch *orchestrate.Orchestrator, kind domain.BatchKind, opts orchestrate.Options) error {
	if err := orch.Start(kind, opts); err != nil {
		return err
	}

	model := tui.NewModel(tui.ModelConfig{
		Monitor:   orch.Tracker(),
		CancelRun: orch.Cancel,
	})

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

func runScrape(cmd *cobra.Command, args []string) error {
	return runBatch(domain.BatchScrape, args)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	return runBatch(domain.BatchGenerate, args)
}

func runSymbols(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	client := catalog.NewClient(cfg.Backends.ScraperURL, cfg.Backends.StageTimeout())
	symbols, err := client.Symbols(ctx)
	if err != nil {
		return err
	}

	wl, err := catalog.LoadWatchlist(cfg.General.WatchlistPath)
	if err != nil {
		return err
	}
	symbols = wl.Apply(symbols)

	for _, s := range symbols {
		fmt.Println(s)
	}
	fmt.Fprintf(os.Stderr, "%d symbols\n", len(symbols))
	return nil
}

func runReports(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := reportstore.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	reports, err := store.ListReports()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tVERSION\tDEGRADED\tUPDATED")
	for _, r := range reports {
		degraded := "-"
		if r.Degraded {
			degraded = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			r.Symbol, r.Version, degraded, r.UpdatedAt.Format(time.RFC3339))
	}
	w.Flush()

	return nil
}

func runBatches(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := reportstore.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	batches, err := store.ListBatches(20)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tKIND\tSTATE\tOK\tFAIL\tDEGRADED\tSTARTED")
	for _, b := range batches {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			b.ID, b.Kind, b.State, b.Succeeded, b.Failed, b.Degraded,
			b.StartedAt.Format(time.RFC3339))
	}
	w.Flush()

	return nil
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := reportstore.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	logs, err := store.BatchLogs(args[0], logsLimit)
	if err != nil {
		return err
	}

	for _, l := range logs {
		fmt.Printf("%s [%s] %s\n", l.Timestamp.Format("15:04:05"), l.Level, l.Message)
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	orch, store, err := openOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signalContext()
	defer stop()

	// Hot-reload the watchlist on edits
	watcher, err := catalog.NewWatchlistWatcher(cfg.General.WatchlistPath, orch.SetWatchlist)
	if err == nil {
		watcher.Start(ctx)
		defer watcher.Stop()
	}

	// Scheduled batches
	if schedulePath != "" {
		sched, err := loadScheduler(schedulePath, orch)
		if err != nil {
			return err
		}
		go sched.Start(ctx, scheduledRun(orch))
		defer sched.Stop()
	}

	port := servePort
	if port == 0 {
		port = cfg.Web.Port
	}

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, port)
	server := api.NewServer(store, orch, addr)

	fmt.Printf("Starting API at http://%s\n", addr)
	return server.Start(ctx)
}

func loadScheduler(path string, orch *orchestrate.Orchestrator) (*batch.Scheduler, error) {
	scfg, err := batch.LoadScheduleConfig(path)
	if err != nil {
		return nil, err
	}
	sched, err := batch.NewScheduler(scfg.Batches)
	if err != nil {
		return nil, err
	}
	sched.OnError(func(name string, err error) {
		fmt.Fprintf(os.Stderr, "scheduled batch %s: %v\n", name, err)
	})
	return sched, nil
}

// scheduledRun adapts the orchestrator to the scheduler's run callback
func scheduledRun(orch *orchestrate.Orchestrator) batch.RunFunc {
	return func(ctx context.Context, cfg batch.BatchConfig) error {
		opts := orchestrate.Options{
			Symbols:   cfg.Symbols,
			Force:     cfg.Force,
			StaleOnly: cfg.StaleOnly,
		}
		var err error
		if cfg.BatchKind() == domain.BatchGenerate {
			_, err = orch.RunGenerate(ctx, opts)
		} else {
			_, err = orch.RunScrape(ctx, opts)
		}
		return err
	}
}
