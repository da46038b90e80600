package blackboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// BoardOp is the kind of mutation a board event describes.
type BoardOp string

const (
	// BoardOpWrite indicates a namespace's document was replaced.
	BoardOpWrite BoardOp = "write"

	// BoardOpReset indicates a namespace (or the whole board) was cleared.
	BoardOpReset BoardOp = "reset"
)

// BoardEvent is published on the run's board_events channel after every
// mutation. For a full reset, Namespace is empty.
type BoardEvent struct {
	RunID     string    `json:"run_id"`
	Op        BoardOp   `json:"op"`
	Namespace Namespace `json:"namespace,omitempty"`
	Document  Document  `json:"document,omitempty"`
}

// Client is a Redis-backed Board scoped to one run. All keys and channels
// are automatically namespaced with the run ID. The client is thread-safe,
// but the Board ownership rule still applies: one run per board key.
type Client struct {
	rdb   *redis.Client
	runID string
}

// Statically ensure both implementations satisfy Board.
var (
	_ Board = (*Memory)(nil)
	_ Board = (*Client)(nil)
)

// NewClient creates a Redis-backed board for the specified run.
// Returns an error if runID is empty.
func NewClient(redisOpts *redis.Options, runID string) (*Client, error) {
	if runID == "" {
		return nil, fmt.Errorf("run ID cannot be empty")
	}

	return &Client{
		rdb:   redis.NewClient(redisOpts),
		runID: runID,
	}, nil
}

// RunID returns the run this board is scoped to.
func (c *Client) RunID() string {
	return c.runID
}

// Close closes the Redis connection. Implements io.Closer.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Write replaces the namespace's document and publishes a write event.
func (c *Client) Write(ctx context.Context, ns Namespace, doc Document) error {
	if err := ns.Validate(); err != nil {
		return fmt.Errorf("invalid write: %w", err)
	}

	key := BoardKey(c.runID)
	if err := c.rdb.HSet(ctx, key, string(ns), string(doc)).Err(); err != nil {
		return fmt.Errorf("failed to write namespace %q to Redis: %w", ns, err)
	}

	c.publishEvent(ctx, BoardEvent{
		RunID:     c.runID,
		Op:        BoardOpWrite,
		Namespace: ns,
		Document:  doc,
	})

	return nil
}

// Read returns the namespace's current document.
// Returns redis.Nil if the namespace is absent; check with IsNotFound.
func (c *Client) Read(ctx context.Context, ns Namespace) (Document, error) {
	if err := ns.Validate(); err != nil {
		return nil, fmt.Errorf("invalid read: %w", err)
	}

	key := BoardKey(c.runID)
	raw, err := c.rdb.HGet(ctx, key, string(ns)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, redis.Nil
		}
		return nil, fmt.Errorf("failed to read namespace %q from Redis: %w", ns, err)
	}

	return Document(raw), nil
}

// Reset clears one namespace. Idempotent: clearing an absent namespace
// succeeds.
func (c *Client) Reset(ctx context.Context, ns Namespace) error {
	if err := ns.Validate(); err != nil {
		return fmt.Errorf("invalid reset: %w", err)
	}

	key := BoardKey(c.runID)
	if err := c.rdb.HDel(ctx, key, string(ns)).Err(); err != nil {
		return fmt.Errorf("failed to reset namespace %q: %w", ns, err)
	}

	c.publishEvent(ctx, BoardEvent{RunID: c.runID, Op: BoardOpReset, Namespace: ns})

	return nil
}

// ResetAll clears the whole board.
func (c *Client) ResetAll(ctx context.Context) error {
	key := BoardKey(c.runID)
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to reset board: %w", err)
	}

	c.publishEvent(ctx, BoardEvent{RunID: c.runID, Op: BoardOpReset})

	return nil
}

// Snapshot returns a copy of every populated namespace.
func (c *Client) Snapshot(ctx context.Context) (map[Namespace]Document, error) {
	key := BoardKey(c.runID)
	fields, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot board: %w", err)
	}

	snap := make(map[Namespace]Document, len(fields))
	for field, raw := range fields {
		snap[Namespace(field)] = Document(raw)
	}
	return snap, nil
}

// publishEvent publishes a board event, ignoring publish failures: events
// exist for observation (watch command), never for correctness.
func (c *Client) publishEvent(ctx context.Context, event BoardEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	c.rdb.Publish(ctx, BoardEventsChannel(c.runID), payload)
}

// Subscription represents an active Pub/Sub subscription to board events.
// Caller must call Close() when done to clean up resources.
type Subscription struct {
	events <-chan *BoardEvent
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of board events.
// The channel is closed when the subscription is closed or the context is
// cancelled.
func (s *Subscription) Events() <-chan *BoardEvent {
	return s.events
}

// Errors returns the channel of subscription errors.
// Errors include JSON unmarshaling failures and other non-fatal issues.
// The subscription continues after errors - messages are skipped.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription and cleans up resources. Implements io.Closer.
// Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeBoardEvents subscribes to board mutation events for this run.
// Caller must call subscription.Close() when done. Context cancellation
// also stops the subscription.
//
// Events are delivered on a buffered channel (size 10). Redis Pub/Sub is
// at-most-once: a slow subscriber may miss events.
func (c *Client) SubscribeBoardEvents(ctx context.Context) (*Subscription, error) {
	channel := BoardEventsChannel(c.runID)
	pubsub := c.rdb.Subscribe(ctx, channel)

	eventsChan := make(chan *BoardEvent, 10)
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

				var event BoardEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal board event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &event:
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

// IsNotFound returns true if the error signals an absent namespace, from
// either board implementation (ErrNotFound or redis.Nil).
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, redis.Nil)
}
