/*
main.go - leaved entry point

PURPOSE:
  One binary, three commands:

    leaved serve                      HTTP API for the platform
    leaved carryover --from-year N    Annual carryover batch job
    leaved toil-expire [--as-of D]    TOIL expiry sweep

  The batch commands are what the platform scheduler invokes once a
  year (or nightly for the sweep). They exit 0 only on full success;
  any per-user failure produces a non-zero exit so the scheduler
  alerts an operator, while the run itself always processes every
  user it can.

STORE SELECTION:
  --database-url picks PostgreSQL (production); otherwise --db names
  a SQLite file (":memory:" works for experiments).

CONFIGURATION:
  --config points at the policy YAML (holiday tables, cap, defaults).
  Without it the engine runs on defaults and, in strict holiday mode,
  refuses calendar lookups - holiday data is deployment config, not
  code.

EXAMPLES:
  leaved serve -port 8080 -db ./data/leave.db -config ./leave.yaml
  leaved carryover --from-year 2025 -config ./leave.yaml
  leaved toil-expire --as-of 2026-01-01 -db ./data/leave.db
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/praxishub/leave-engine/api"
	"github.com/praxishub/leave-engine/calendar"
	"github.com/praxishub/leave-engine/carryover"
	"github.com/praxishub/leave-engine/config"
	"github.com/praxishub/leave-engine/store"
	"github.com/praxishub/leave-engine/store/postgres"
	"github.com/praxishub/leave-engine/store/sqlite"
)

var (
	flagPort        int
	flagDB          string
	flagDatabaseURL string
	flagConfig      string
	flagFromYear    int
	flagAsOf        string
)

func main() {
	root := &cobra.Command{
		Use:           "leaved",
		Short:         "Leave and TOIL balance engine",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVar(&flagDB, "db", "leave.db", "SQLite database path (\":memory:\" for in-memory)")
	root.PersistentFlags().StringVar(&flagDatabaseURL, "database-url", "", "PostgreSQL DSN (overrides --db)")
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "policy configuration YAML")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&flagPort, "port", 8080, "HTTP server port")

	carryoverCmd := &cobra.Command{
		Use:   "carryover",
		Short: "Apply annual leave carryover for every tenant and user",
		RunE:  runCarryover,
	}
	carryoverCmd.Flags().IntVar(&flagFromYear, "from-year", 0, "source leave year (required)")
	_ = carryoverCmd.MarkFlagRequired("from-year")

	expireCmd := &cobra.Command{
		Use:   "toil-expire",
		Short: "Expire overdue TOIL accruals and deduct balances",
		RunE:  runTOILExpire,
	}
	expireCmd.Flags().StringVar(&flagAsOf, "as-of", "", "sweep cutoff date (default: today)")

	root.AddCommand(serveCmd, carryoverCmd, expireCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// =============================================================================
// SHARED WIRING
// =============================================================================

func loadConfig() (config.Config, error) {
	if flagConfig == "" {
		return config.Default(), nil
	}
	return config.Load(flagConfig)
}

// openStore picks the backend and returns the store with its cleanup.
func openStore(ctx context.Context) (store.Store, func(), error) {
	if flagDatabaseURL != "" {
		st, err := postgres.Connect(ctx, flagDatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	}
	st, err := sqlite.New(flagDB)
	if err != nil {
		return nil, nil, err
	}
	return st, func() { _ = st.Close() }, nil
}

func buildEngine(cfg config.Config, st store.Store, log *zap.Logger) *carryover.Engine {
	cap := cfg.Cap()
	return carryover.NewEngine(st, carryover.Options{
		Cap:     &cap,
		Workers: cfg.Workers,
		Logger:  log,
	})
}

// =============================================================================
// SERVE
// =============================================================================

func runServe(cmd *cobra.Command, args []string) error {
	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cal, err := cfg.Calendar()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	st, closeStore, err := openStore(ctx)
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer closeStore()

	eng := buildEngine(cfg, st, log)
	handler := api.NewHandler(st, cal, eng, cfg.Entitlement(), log)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", flagPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.Int("port", flagPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

// =============================================================================
// BATCH JOBS
// =============================================================================

func runCarryover(cmd *cobra.Command, args []string) error {
	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	st, closeStore, err := openStore(ctx)
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer closeStore()

	eng := buildEngine(cfg, st, log)
	summary, err := eng.Run(ctx, flagFromYear)
	if err != nil {
		return fmt.Errorf("carryover run: %w", err)
	}

	printSummary(cmd, summary)
	if summary.UsersFailed > 0 {
		// Non-zero exit so the scheduling layer surfaces the problem;
		// the run itself already processed every user it could.
		return fmt.Errorf("%d of %d users failed", summary.UsersFailed, summary.UsersProcessed)
	}
	return nil
}

func runTOILExpire(cmd *cobra.Command, args []string) error {
	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	asOf := calendar.Today()
	if flagAsOf != "" {
		if asOf, err = calendar.ParseDate(flagAsOf); err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	st, closeStore, err := openStore(ctx)
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer closeStore()

	eng := buildEngine(cfg, st, log)
	summary, err := eng.ExpireTOIL(ctx, asOf)
	if err != nil {
		return fmt.Errorf("toil expiry sweep: %w", err)
	}

	printSummary(cmd, summary)
	if summary.UsersFailed > 0 {
		return fmt.Errorf("%d users failed during toil expiry", summary.UsersFailed)
	}
	return nil
}

func printSummary(cmd *cobra.Command, v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
}
