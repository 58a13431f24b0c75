// Package memory provides an in-process broker for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/forumrag/internal/queue"
)

// Broker is a set of bounded channels, one per topic. Subscribers on the same
// topic compete for messages.
type Broker struct {
	mu          sync.Mutex
	topics      map[string]chan []byte
	depth       int
	concurrency int
	done        chan struct{}
	closeOnce   sync.Once
	logger      *zap.Logger
}

var _ queue.Broker = (*Broker)(nil)

// NewBroker constructs a broker whose topics buffer depth messages and whose
// subscriptions run concurrency handlers at a time.
func NewBroker(depth, concurrency int, logger *zap.Logger) *Broker {
	if depth < 0 {
		depth = 0
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker{
		topics:      make(map[string]chan []byte),
		depth:       depth,
		concurrency: concurrency,
		done:        make(chan struct{}),
		logger:      logger,
	}
}

func (b *Broker) topic(name string) chan []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.topics[name]
	if !ok {
		ch = make(chan []byte, b.depth)
		b.topics[name] = ch
	}
	return ch
}

// Publish blocks while the topic buffer is full.
func (b *Broker) Publish(ctx context.Context, topic string, data []byte) error {
	select {
	case <-b.done:
		return queue.ErrClosed
	default:
	}
	msg := append([]byte(nil), data...)
	select {
	case <-ctx.Done():
		return fmt.Errorf("publish canceled: %w", ctx.Err())
	case <-b.done:
		return queue.ErrClosed
	case b.topic(topic) <- msg:
		return nil
	}
}

// Subscribe runs handlers until ctx ends or the broker closes. Handler errors
// are logged; the message is dropped.
func (b *Broker) Subscribe(ctx context.Context, topic string, handler queue.Handler) error {
	ch := b.topic(topic)
	var wg sync.WaitGroup
	for i := 0; i < b.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-b.done:
					return
				case msg := <-ch:
					if err := handler(ctx, msg); err != nil {
						b.logger.Warn("handler failed, dropping message",
							zap.String("topic", topic),
							zap.Error(err))
					}
				}
			}
		}()
	}
	wg.Wait()
	return nil
}

// Close stops subscribers and rejects further publishes. It is safe to call twice.
func (b *Broker) Close() error {
	b.closeOnce.Do(func() { close(b.done) })
	return nil
}
