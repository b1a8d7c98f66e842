// Package live implements the live-query primitive: long-lived subscriptions
// that deliver a fresh snapshot of a store path whenever the path is
// invalidated. Subscriptions never complete on their own; they push snapshots
// until cancelled.
package live

import (
	"context"
	"encoding/json"
	"sync"
)

// Document is one unit of a snapshot, identified by id. Data carries the
// JSON encoding of the underlying store model.
type Document struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// Snapshot is the full current state of one path. Within a single
// subscription the latest snapshot is authoritative and replaces the prior
// one for that path's scope. Err is set on a failed re-fetch; an error
// snapshot does not end the subscription.
type Snapshot struct {
	Path string
	Docs []Document
	Err  error
}

// Source fetches the current snapshot documents for a path.
type Source interface {
	Fetch(ctx context.Context, path string) ([]Document, error)
}

// Bus carries path invalidation signals between writers and subscriptions.
// notify must not block; it is called from the bus delivery goroutine.
type Bus interface {
	Publish(ctx context.Context, path string) error
	Subscribe(path string, notify func()) (cancel func())
}

// Handle is a cancellable subscription. Cancel is idempotent.
type Handle interface {
	Cancel()
}

// Querier is the subscription surface consumed by view-model layers,
// satisfied by *Client and by test fakes.
type Querier interface {
	Listen(ctx context.Context, path string, deliver func(Snapshot)) Handle
}

// Client combines a snapshot source with an invalidation bus into the
// live-query primitive.
type Client struct {
	source Source
	bus    Bus
}

func NewClient(source Source, bus Bus) *Client {
	return &Client{source: source, bus: bus}
}

// Listen delivers an initial snapshot for path, then one fresh snapshot per
// invalidation. deliver runs on the subscription's own goroutine; consecutive
// invalidations arriving while a fetch is in flight coalesce into one
// re-fetch. Cancelling the handle releases the bus subscription and stops
// delivery.
func (c *Client) Listen(ctx context.Context, path string, deliver func(Snapshot)) Handle {
	ctx, cancel := context.WithCancel(ctx)
	signal := make(chan struct{}, 1)
	cancelBus := c.bus.Subscribe(path, func() {
		select {
		case signal <- struct{}{}:
		default:
		}
	})

	h := &handle{done: make(chan struct{})}
	h.cancelFn = func() {
		cancelBus()
		cancel()
	}

	go func() {
		defer close(h.done)
		c.fetchAndDeliver(ctx, path, deliver)
		for {
			select {
			case <-ctx.Done():
				return
			case <-signal:
				c.fetchAndDeliver(ctx, path, deliver)
			}
		}
	}()

	return h
}

func (c *Client) fetchAndDeliver(ctx context.Context, path string, deliver func(Snapshot)) {
	docs, err := c.source.Fetch(ctx, path)
	if ctx.Err() != nil {
		return
	}
	deliver(Snapshot{Path: path, Docs: docs, Err: err})
}

type handle struct {
	once     sync.Once
	cancelFn func()
	done     chan struct{}
}

func (h *handle) Cancel() {
	h.once.Do(h.cancelFn)
	<-h.done
}
