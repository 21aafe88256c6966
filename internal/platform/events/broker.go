// Package events broadcasts committed writes over Redis pub/sub so open
// dashboards can re-query instead of polling.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel carries every change notification.
const DefaultChannel = "nexus:changes"

// Collections that emit change notifications.
const (
	Transactions   = "transactions"
	Customers      = "customers"
	Plants         = "plants"
	Employees      = "employees"
	PayrollHistory = "payroll_history"
	Settings       = "site_settings"
	Bookings       = "bookings"
	Reviews        = "reviews"
)

// Op names the kind of write.
type Op string

const (
	OpCreated Op = "created"
	OpUpdated Op = "updated"
	OpDeleted Op = "deleted"
)

// Change describes one committed write.
type Change struct {
	Collection string    `json:"collection"`
	ID         string    `json:"id"`
	Op         Op        `json:"op"`
	At         time.Time `json:"at"`
}

// Publisher is what services depend on.
type Publisher interface {
	Publish(ctx context.Context, changes ...Change)
}

// Broker publishes and fans out changes through Redis.
type Broker struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

// NewBroker constructs a Broker on the default channel.
func NewBroker(client *redis.Client, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{client: client, channel: DefaultChannel, logger: logger}
}

// Publish sends the changes. Failures are logged and swallowed: the write has
// already committed and subscribers recover by re-querying.
func (b *Broker) Publish(ctx context.Context, changes ...Change) {
	if b == nil || b.client == nil {
		return
	}
	for _, change := range changes {
		if change.At.IsZero() {
			change.At = time.Now().UTC()
		}
		payload, err := json.Marshal(change)
		if err != nil {
			b.logger.Warn("events marshal", slog.Any("error", err))
			continue
		}
		if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
			b.logger.Warn("events publish",
				slog.String("collection", change.Collection),
				slog.String("id", change.ID),
				slog.Any("error", err))
		}
	}
}

// Subscribe returns a channel of changes for the given collections (all when
// none are named). The channel closes when ctx is cancelled.
func (b *Broker) Subscribe(ctx context.Context, collections ...string) (<-chan Change, error) {
	if b == nil || b.client == nil {
		return nil, errors.New("events: broker not configured")
	}
	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("events: subscribe: %w", err)
	}
	filter := make(map[string]struct{}, len(collections))
	for _, c := range collections {
		if c != "" {
			filter[c] = struct{}{}
		}
	}

	out := make(chan Change, 16)
	go func() {
		defer close(out)
		defer func() { _ = pubsub.Close() }()
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var change Change
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					b.logger.Warn("events decode", slog.Any("error", err))
					continue
				}
				if len(filter) > 0 {
					if _, ok := filter[change.Collection]; !ok {
						continue
					}
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
