// Package stream mirrors simulation events onto Redis Pub/Sub so external
// processes (dashboards, the watch command) can follow a run live. All
// channels are namespaced with the instance name, so several stacks
// instances can share one Redis.
package stream

import (
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/dyluth/stacks/pkg/event"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// EventsChannel returns the Pub/Sub channel name for an instance.
func EventsChannel(instanceName string) string {
	return fmt.Sprintf("stacks:%s:simulation_events", instanceName)
}

// Client publishes and subscribes to simulation events for one instance.
// The client is safe for concurrent use.
type Client struct {
	rdb          *redis.Client
	instanceName string
	log          *logrus.Entry
}

// NewClient creates a stream client for the given instance.
// Returns an error if instanceName is empty.
func NewClient(redisOpts *redis.Options, instanceName string) (*Client, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &Client{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
		log:          logrus.WithField("component", "stream"),
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Publish mirrors one event onto the instance channel. Delivery is
// at-most-once; the in-process event log remains the source of truth.
func (c *Client) Publish(ctx context.Context, ev event.SimulationEvent) error {
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return c.rdb.Publish(ctx, EventsChannel(c.instanceName), payload).Err()
}

// Forward returns an orchestrator callback that mirrors every event to
// Redis. Publish failures are logged and dropped so a Redis outage never
// stalls a simulation.
func (c *Client) Forward(ctx context.Context) func(event.SimulationEvent) {
	return func(ev event.SimulationEvent) {
		if err := c.Publish(ctx, ev); err != nil {
			c.log.WithError(err).Warn("failed to mirror event to redis")
		}
	}
}

// Subscription is a live feed of simulation events.
// Callers must call Close() when done; context cancellation also stops it.
type Subscription struct {
	events <-chan event.SimulationEvent
	errors <-chan error
	cancel func()
}

// Events returns the event channel. It is closed when the subscription ends.
func (s *Subscription) Events() <-chan event.SimulationEvent {
	return s.events
}

// Errors returns the channel for decode errors on received messages.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription and releases its resources.
func (s *Subscription) Close() error {
	s.cancel()
	return nil
}

// Subscribe follows the instance channel. Events are delivered on a
// buffered channel (size 10); Redis Pub/Sub gives at-most-once delivery, so
// a slow consumer may miss events.
func (c *Client) Subscribe(ctx context.Context) (*Subscription, error) {
	pubsub := c.rdb.Subscribe(ctx, EventsChannel(c.instanceName))

	eventsChan := make(chan event.SimulationEvent, 10)
	errorsChan := make(chan error, 10)
	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var ev event.SimulationEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- ev:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}
