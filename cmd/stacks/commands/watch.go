package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/dyluth/stacks/internal/printer"
	"github.com/dyluth/stacks/pkg/stream"
)

var (
	watchRedisURL string
	watchInstance string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow simulation events from a running server over Redis",
	Long: `Follow the live simulation event feed of a server that mirrors its
events to Redis (see the redis section of stacks.yml).

Examples:
  # Watch the default instance on a local Redis
  stacks watch

  # Watch a named instance
  stacks watch --instance prod --redis-url redis://redis.internal:6379/0`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchRedisURL, "redis-url", "redis://localhost:6379/0", "Redis connection URL")
	watchCmd.Flags().StringVar(&watchInstance, "instance", "default", "Instance name to watch")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	redisOpts, err := redis.ParseURL(watchRedisURL)
	if err != nil {
		return printer.Error("Invalid --redis-url", err.Error(), nil)
	}

	client, err := stream.NewClient(redisOpts, watchInstance)
	if err != nil {
		return printer.Error("Failed to create event stream client", err.Error(), nil)
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := client.Ping(ctx); err != nil {
		return printer.Error("Cannot reach Redis",
			err.Error(),
			[]string{"Check that Redis is running", "Check --redis-url"})
	}

	sub, err := client.Subscribe(ctx)
	if err != nil {
		return printer.Error("Failed to subscribe to event stream", err.Error(), nil)
	}
	defer sub.Close()

	printer.Info("Watching instance %q (ctrl-c to stop)...\n", watchInstance)

	for {
		select {
		case <-ctx.Done():
			printer.Info("\nStopped watching\n")
			return nil
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			printer.Event(ev)
		case err, ok := <-sub.Errors():
			if ok && err != nil {
				printer.Warning("stream error: %v\n", err)
			}
		}
	}
}
