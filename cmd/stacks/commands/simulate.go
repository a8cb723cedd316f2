package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyluth/stacks/internal/actor"
	"github.com/dyluth/stacks/internal/catalog"
	"github.com/dyluth/stacks/internal/gateway"
	"github.com/dyluth/stacks/internal/ledger"
	"github.com/dyluth/stacks/internal/orchestrator"
	"github.com/dyluth/stacks/internal/printer"
	"github.com/dyluth/stacks/internal/storage"
)

var (
	simulateDBPath    string
	simulateServerURL string
	simulateFor       time.Duration
)

var simulateCmd = &cobra.Command{
	Use:   "simulate [scenario]",
	Short: "Run a simulation scenario and print the event feed",
	Long: `Run a simulation scenario, printing every event as it happens.
With no scenario, busy_day runs. Pass --server to drive a remote stacks
server instead of the local database.

Examples:
  # Run the default scenario against the local database
  stacks simulate

  # Run exam week against a remote server
  stacks simulate exam_week --server http://localhost:8080

  # Open-ended simulation for two minutes
  stacks simulate continuous --for 2m`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().StringVar(&simulateDBPath, "db", "stacks.db", "Path to the SQLite database")
	simulateCmd.Flags().StringVar(&simulateServerURL, "server", "", "Drive a remote server instead of the local database")
	simulateCmd.Flags().DurationVar(&simulateFor, "for", 0, "Duration of a continuous run (default 5m)")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	scenario := orchestrator.ScenarioBusyDay
	if len(args) == 1 {
		scenario = args[0]
	}

	var gw orchestrator.Gateway
	if simulateServerURL != "" {
		gw = gateway.NewClient(simulateServerURL)
	} else {
		db, err := storage.Open(simulateDBPath)
		if err != nil {
			return printer.Error("Failed to open database", err.Error(), nil)
		}
		defer db.Close()
		gw = gateway.NewLocal(catalog.NewStore(db), ledger.New(db))
	}

	orch := orchestrator.New(gw, actor.NewScriptedPolicy(), orchestrator.Options{
		ContinuousFor: simulateFor,
	})
	orch.AddCallback(printer.Event)

	if err := orch.Initialize(cmd.Context()); err != nil {
		return printer.Error("Failed to initialize simulation actors", err.Error(), nil)
	}

	if err := orch.Start(scenario); err != nil {
		names := make([]string, 0, len(orchestrator.Scenarios()))
		for _, sc := range orchestrator.Scenarios() {
			names = append(names, sc.Name)
		}
		return printer.Error(
			fmt.Sprintf("Failed to start scenario %q", scenario),
			err.Error(),
			[]string{"Available scenarios: " + strings.Join(names, ", ")})
	}

	// Ctrl-C cancels the run; the orchestrator still emits its terminal
	// cancelled frame before Wait returns.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		orch.Stop()
	}()

	orch.Wait()
	return nil
}
