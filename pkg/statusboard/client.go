package statusboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
)

// DefaultHistoryLimit bounds the history sorted set.
const DefaultHistoryLimit = 1000

// Client provides instance-scoped access to the status board.
// It is safe for concurrent use.
type Client struct {
	rdb          *redis.Client
	instanceName string
	historyLimit int64
}

// NewClient creates a client for the given instance.
// Returns an error if instanceName is empty.
func NewClient(redisOpts *redis.Options, instanceName string) (*Client, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &Client{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
		historyLimit: DefaultHistoryLimit,
	}, nil
}

// NewClientFromURL parses a redis:// URL and creates a client.
func NewClientFromURL(url, instanceName string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return NewClient(opts, instanceName)
}

// Instance returns the instance name.
func (c *Client) Instance() string { return c.instanceName }

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Publish stores e as the latest status, appends it to the history and
// broadcasts it on the events channel.
func (c *Client) Publish(ctx context.Context, e *Event) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, StatusKey(c.instanceName), EventToHash(e))
		pipe.ZAdd(ctx, HistoryKey(c.instanceName), redis.Z{
			Score:  float64(e.TimestampMs),
			Member: string(payload),
		})
		pipe.ZRemRangeByRank(ctx, HistoryKey(c.instanceName), 0, -c.historyLimit-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write status to Redis: %w", err)
	}

	if err := c.rdb.Publish(ctx, ProgressEventsChannel(c.instanceName), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish progress event: %w", err)
	}
	return nil
}

// GetStatus returns the latest event.
// Returns (nil, redis.Nil) when nothing has been published; check with IsNotFound.
func (c *Client) GetStatus(ctx context.Context) (*Event, error) {
	hash, err := c.rdb.HGetAll(ctx, StatusKey(c.instanceName)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read status from Redis: %w", err)
	}
	if len(hash) == 0 {
		return nil, redis.Nil
	}

	e, err := HashToEvent(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize status: %w", err)
	}
	return e, nil
}

// History returns events with sinceMs <= timestamp <= untilMs, oldest first.
// A zero bound is open.
func (c *Client) History(ctx context.Context, sinceMs, untilMs int64) ([]*Event, error) {
	lo, hi := "-inf", "+inf"
	if sinceMs > 0 {
		lo = strconv.FormatInt(sinceMs, 10)
	}
	if untilMs > 0 {
		hi = strconv.FormatInt(untilMs, 10)
	}

	members, err := c.rdb.ZRangeByScore(ctx, HistoryKey(c.instanceName), &redis.ZRangeBy{Min: lo, Max: hi}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history from Redis: %w", err)
	}

	events := make([]*Event, 0, len(members))
	for _, m := range members {
		var e Event
		if err := json.Unmarshal([]byte(m), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal history entry: %w", err)
		}
		events = append(events, &e)
	}
	return events, nil
}

// Subscription is an active subscription to progress events.
// Caller must call Close when done.
type Subscription struct {
	events <-chan *Event
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the event channel. It is closed when the subscription ends.
func (s *Subscription) Events() <-chan *Event {
	return s.events
}

// Errors returns non-fatal errors such as malformed payloads; the offending
// message is skipped.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription. Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// Subscribe follows progress events for this instance until ctx is cancelled
// or Close is called. Events are buffered (size 10); slow readers may miss
// events.
func (c *Client) Subscribe(ctx context.Context) (*Subscription, error) {
	pubsub := c.rdb.Subscribe(ctx, ProgressEventsChannel(c.instanceName))
	// Wait for the subscription to be confirmed so no event published after
	// Subscribe returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	eventsChan := make(chan *Event, 10)
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

				var e Event
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal progress event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &e:
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

// IsNotFound reports whether err is a Redis "key not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
