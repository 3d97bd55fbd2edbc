package docstore

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Notifier fans out "collection changed" signals to watchers.
type Notifier interface {
	Notify(ctx context.Context, collection string) error
	Subscribe(ctx context.Context, collection string) (<-chan struct{}, error)
}

// LocalNotifier delivers change signals inside one process.
type LocalNotifier struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

// NewLocalNotifier creates an in-process notifier.
func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{subs: make(map[string]map[chan struct{}]struct{})}
}

// Notify wakes every subscriber of collection without blocking.
func (n *LocalNotifier) Notify(_ context.Context, collection string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.subs[collection] {
		select {
		case ch <- struct{}{}:
		default:
			// a signal is already pending; the watcher re-reads everything anyway
		}
	}
	return nil
}

// Subscribe registers a listener until ctx ends.
func (n *LocalNotifier) Subscribe(ctx context.Context, collection string) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)
	n.mu.Lock()
	if n.subs[collection] == nil {
		n.subs[collection] = make(map[chan struct{}]struct{})
	}
	n.subs[collection][ch] = struct{}{}
	n.mu.Unlock()

	go func() {
		<-ctx.Done()
		n.mu.Lock()
		delete(n.subs[collection], ch)
		n.mu.Unlock()
	}()
	return ch, nil
}

// RedisNotifier publishes change signals over Redis pub/sub so watchers in
// other API instances see writes made here.
type RedisNotifier struct {
	client *redis.Client
	prefix string
}

// NewRedisNotifier builds a notifier using channels named prefix+collection.
func NewRedisNotifier(client *redis.Client, prefix string) *RedisNotifier {
	if prefix == "" {
		prefix = "clubhub:docstore:"
	}
	return &RedisNotifier{client: client, prefix: prefix}
}

// Notify publishes a change signal.
func (n *RedisNotifier) Notify(ctx context.Context, collection string) error {
	return n.client.Publish(ctx, n.prefix+collection, "changed").Err()
}

// Subscribe listens on the collection channel until ctx ends.
func (n *RedisNotifier) Subscribe(ctx context.Context, collection string) (<-chan struct{}, error) {
	sub := n.client.Subscribe(ctx, n.prefix+collection)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}
	out := make(chan struct{}, 1)
	msgs := sub.Channel()
	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out, nil
}

// watchByRequery implements Watch for backends without native listeners:
// emit the query result now and again after every change signal.
func watchByRequery(ctx context.Context, s Store, n Notifier, collection string, filters []Filter) (<-chan Snapshot, error) {
	signals, err := n.Subscribe(ctx, collection)
	if err != nil {
		return nil, err
	}
	first, err := s.Find(ctx, collection, filters...)
	if err != nil {
		return nil, err
	}

	out := make(chan Snapshot, 1)
	go func() {
		defer close(out)
		var seq uint64 = 1
		send := func(docs []Document) bool {
			select {
			case out <- Snapshot{Seq: seq, Docs: docs}:
				seq++
				return true
			case <-ctx.Done():
				return false
			}
		}
		if !send(first) {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-signals:
				docs, err := s.Find(ctx, collection, filters...)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					continue
				}
				if !send(docs) {
					return
				}
			}
		}
	}()
	return out, nil
}
