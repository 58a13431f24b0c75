// Package pubsub implements queue.Broker on Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/forumrag/internal/queue"
)

// Config maps each topic id to the subscription its consumers pull from.
type Config struct {
	ProjectID     string
	Subscriptions map[string]string
	// Concurrency bounds outstanding messages per subscription.
	Concurrency int
}

// Broker publishes to Pub/Sub topics and receives from their subscriptions.
type Broker struct {
	client *pubsub.Client
	cfg    Config
	logger *zap.Logger

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
	closed bool
}

var _ queue.Broker = (*Broker)(nil)

// New dials Pub/Sub using Application Default Credentials unless opts say otherwise.
func New(ctx context.Context, cfg Config, logger *zap.Logger, opts ...option.ClientOption) (*Broker, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("pubsub project id is required")
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return NewWithClient(client, cfg, logger), nil
}

// NewWithClient wraps an existing client; Close closes it.
func NewWithClient(client *pubsub.Client, cfg Config, logger *zap.Logger) *Broker {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker{
		client: client,
		cfg:    cfg,
		logger: logger,
		topics: make(map[string]*pubsub.Topic),
	}
}

// EnsureTopology creates every configured topic and subscription that is missing.
func (b *Broker) EnsureTopology(ctx context.Context) error {
	for topicID, subID := range b.cfg.Subscriptions {
		topic := b.client.Topic(topicID)
		ok, err := topic.Exists(ctx)
		if err != nil {
			return fmt.Errorf("check topic %s: %w", topicID, err)
		}
		if !ok {
			if topic, err = b.client.CreateTopic(ctx, topicID); err != nil {
				return fmt.Errorf("create topic %s: %w", topicID, err)
			}
			b.logger.Info("created pubsub topic", zap.String("topic", topicID))
		}

		sub := b.client.Subscription(subID)
		ok, err = sub.Exists(ctx)
		if err != nil {
			return fmt.Errorf("check subscription %s: %w", subID, err)
		}
		if ok {
			continue
		}
		if _, err := b.client.CreateSubscription(ctx, subID, pubsub.SubscriptionConfig{Topic: topic}); err != nil {
			return fmt.Errorf("create subscription %s: %w", subID, err)
		}
		b.logger.Info("created pubsub subscription",
			zap.String("topic", topicID),
			zap.String("subscription", subID))
	}
	return nil
}

func (b *Broker) topic(id string) (*pubsub.Topic, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, queue.ErrClosed
	}
	t, ok := b.topics[id]
	if !ok {
		t = b.client.Topic(id)
		b.topics[id] = t
	}
	return t, nil
}

// Publish waits for the server to accept the message.
func (b *Broker) Publish(ctx context.Context, topicID string, data []byte) error {
	t, err := b.topic(topicID)
	if err != nil {
		return err
	}
	if _, err := t.Publish(ctx, &pubsub.Message{Data: data}).Get(ctx); err != nil {
		return fmt.Errorf("publish to %s: %w", topicID, err)
	}
	return nil
}

// Subscribe receives from the topic's configured subscription. Handler
// errors nack the message for redelivery.
func (b *Broker) Subscribe(ctx context.Context, topicID string, handler queue.Handler) error {
	subID, ok := b.cfg.Subscriptions[topicID]
	if !ok {
		return fmt.Errorf("no subscription configured for topic %s", topicID)
	}
	sub := b.client.Subscription(subID)
	sub.ReceiveSettings.MaxOutstandingMessages = b.cfg.Concurrency
	sub.ReceiveSettings.NumGoroutines = 1

	err := sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if err := handler(ctx, msg.Data); err != nil {
			b.logger.Warn("handler failed, nacking message",
				zap.String("subscription", subID),
				zap.String("message_id", msg.ID),
				zap.Error(err))
			msg.Nack()
			return
		}
		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("receive from %s: %w", subID, err)
	}
	return nil
}

// Close flushes pending publishes and closes the client.
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, t := range b.topics {
		t.Stop()
	}
	b.mu.Unlock()

	if err := b.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
