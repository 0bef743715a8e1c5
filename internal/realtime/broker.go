package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Broker carries signals between service instances.
type Broker interface {
	Publish(ctx context.Context, sig Signal) error
	// Listen delivers every received signal to fn until ctx is done.
	Listen(ctx context.Context, fn func(Signal)) error
}

// RedisBroker uses Redis PUBLISH/SUBSCRIBE on a single channel so every
// instance's dispatch boards see every instance's writes.
type RedisBroker struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisBroker creates a broker on channel.
func NewRedisBroker(client *redis.Client, channel string, logger *zap.Logger) *RedisBroker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBroker{client: client, channel: channel, logger: logger}
}

func (b *RedisBroker) Publish(ctx context.Context, sig Signal) error {
	if b.client == nil {
		return errors.New("redis client not configured")
	}
	payload, err := json.Marshal(sig)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

func (b *RedisBroker) Listen(ctx context.Context, fn func(Signal)) error {
	if b.client == nil {
		return errors.New("redis client not configured")
	}
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var sig Signal
			if err := json.Unmarshal([]byte(msg.Payload), &sig); err != nil {
				b.logger.Warn("discarding malformed realtime signal", zap.Error(err))
				continue
			}
			fn(sig)
		}
	}
}

// MemoryBroker delivers signals within the process. It backs single-instance
// deployments and tests.
type MemoryBroker struct {
	mu        sync.RWMutex
	listeners map[int]func(Signal)
	next      int
}

// NewMemoryBroker creates an empty broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{listeners: make(map[int]func(Signal))}
}

func (b *MemoryBroker) Publish(_ context.Context, sig Signal) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, fn := range b.listeners {
		fn(sig)
	}
	return nil
}

func (b *MemoryBroker) Listen(ctx context.Context, fn func(Signal)) error {
	b.mu.Lock()
	id := b.next
	b.next++
	b.listeners[id] = fn
	b.mu.Unlock()

	<-ctx.Done()

	b.mu.Lock()
	delete(b.listeners, id)
	b.mu.Unlock()
	return nil
}
