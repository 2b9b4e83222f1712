package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Subscription selects which events a subscriber receives.
type Subscription struct {
	// Subject is a filter built with FilterSubject.
	Subject string

	// Durable names a consumer that keeps its position across restarts.
	// Empty means an ephemeral consumer removed once it goes idle.
	Durable string

	// Replay delivers the events already retained by the stream before new
	// ones. Without it only events published after subscribing are seen.
	Replay bool
}

// Subscriber delivers transaction events from the stream.
type Subscriber interface {
	// Subscribe calls handle for every event matching sub until stop is
	// called. handle runs on a library goroutine and must not block for long.
	Subscribe(ctx context.Context, sub Subscription, handle func(*TransactionEvent)) (stop func(), err error)

	// Close closes the connection to NATS.
	Close() error
}

// JetStreamSubscriber consumes transaction events from NATS JetStream.
type JetStreamSubscriber struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

// NewSubscriber connects to NATS as name. The stream itself is created by
// the publisher; subscribing before it exists fails.
func NewSubscriber(natsURL, name string, logger *slog.Logger) (*JetStreamSubscriber, error) {
	nc, err := Connect(natsURL, name)
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	logger.Info("NATS subscriber initialized", "url", natsURL, "name", name)

	return &JetStreamSubscriber{
		nc:     nc,
		js:     js,
		logger: logger,
	}, nil
}

// Subscribe creates a consumer for sub and starts delivering events to handle.
// Messages that do not decode are acknowledged and dropped.
func (s *JetStreamSubscriber) Subscribe(ctx context.Context, sub Subscription, handle func(*TransactionEvent)) (func(), error) {
	cfg := jetstream.ConsumerConfig{
		FilterSubject: sub.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	}
	if sub.Replay {
		cfg.DeliverPolicy = jetstream.DeliverAllPolicy
	}
	if sub.Durable != "" {
		cfg.Durable = sub.Durable
		cfg.Name = sub.Durable
	}

	cons, err := s.js.CreateOrUpdateConsumer(ctx, StreamName, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		var event TransactionEvent
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			s.logger.Warn("dropping undecodable event",
				"subject", msg.Subject(),
				"error", err,
			)
			msg.Ack()
			return
		}
		handle(&event)
		msg.Ack()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	s.logger.Debug("subscribed to transaction events",
		"subject", sub.Subject,
		"durable", sub.Durable,
	)
	return cc.Stop, nil
}

// Close closes the connection to NATS.
func (s *JetStreamSubscriber) Close() error {
	if s.nc != nil {
		s.nc.Close()
		s.logger.Info("NATS subscriber closed")
	}
	return nil
}
