package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dyluth/stacks/internal/actor"
	"github.com/dyluth/stacks/internal/catalog"
	"github.com/dyluth/stacks/internal/config"
	"github.com/dyluth/stacks/internal/gateway"
	"github.com/dyluth/stacks/internal/ledger"
	"github.com/dyluth/stacks/internal/orchestrator"
	"github.com/dyluth/stacks/internal/printer"
	"github.com/dyluth/stacks/internal/server"
	"github.com/dyluth/stacks/internal/storage"
	"github.com/dyluth/stacks/pkg/stream"
)

var serveConfigPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the library server",
	Long: `Run the HTTP server: library CRUD, the borrowing ledger, the
simulation control surface and the live event stream.

Configuration is read from stacks.yml when present; otherwise built-in
defaults are used (listen :8080, database stacks.db).

Examples:
  # Serve with defaults
  stacks serve

  # Serve with an explicit config
  stacks serve --config ./stacks.yml`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "stacks.yml", "Path to stacks.yml")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(serveConfigPath)
	if err != nil {
		return err
	}

	db, err := storage.Open(cfg.Database.Path)
	if err != nil {
		return printer.Error("Failed to open database",
			err.Error(),
			[]string{"Check that database.path is writable"})
	}
	defer db.Close()

	store := catalog.NewStore(db)
	ldg := ledger.New(db)
	gw := gateway.NewLocal(store, ldg)

	orch := orchestrator.New(gw, actor.NewScriptedPolicy(), simOptions(cfg))
	if err := orch.Initialize(cmd.Context()); err != nil {
		return printer.Error("Failed to initialize simulation actors", err.Error(), nil)
	}

	if cfg.Redis != nil {
		redisOpts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return printer.Error("Invalid redis.url", err.Error(), nil)
		}
		mirror, err := stream.NewClient(redisOpts, cfg.Redis.Instance)
		if err != nil {
			return printer.Error("Failed to create event stream client", err.Error(), nil)
		}
		defer mirror.Close()
		orch.AddCallback(mirror.Forward(context.Background()))
		printer.Info("Mirroring simulation events to redis instance %q\n", cfg.Redis.Instance)
	}

	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: server.New(store, ldg, orch).Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		printer.Success("Listening on %s\n", cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		printer.Info("\nShutting down...\n")
		orch.StopAndDrain()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logrus.WithError(err).Warn("server shutdown was not clean")
		}
	}

	printer.Success("Server stopped\n")
	return nil
}

// loadConfig reads the config file, falling back to defaults when the
// default path does not exist. An explicit missing path is still an error.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if path == "stacks.yml" && os.IsNotExist(errors.Unwrap(err)) {
		return config.Default(), nil
	}
	return nil, printer.Error("Failed to load configuration",
		err.Error(),
		[]string{"Create a stacks.yml", "Pass --config with a valid path"})
}

// simOptions converts the config's simulation section into orchestrator
// options.
func simOptions(cfg *config.Config) orchestrator.Options {
	opts := orchestrator.Options{}
	if cfg.Simulation == nil {
		return opts
	}

	opts.PauseScale = cfg.Simulation.PauseScale
	opts.ContinuousFor = cfg.Simulation.ContinuousFor.Std()
	opts.Actor = actor.Options{
		CallTimeout:   cfg.Simulation.CallTimeout.Std(),
		MaxIterations: cfg.Simulation.MaxIterations,
	}
	return opts
}
