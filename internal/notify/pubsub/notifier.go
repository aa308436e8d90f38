// Package pubsub publishes pipeline events to a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/JakeFAU/archive-ocr-pipeline/internal/archive"
	"github.com/JakeFAU/archive-ocr-pipeline/internal/metrics"
)

type publishFunc func(ctx context.Context, msg *pubsub.Message) (string, error)

// Notifier wraps a Pub/Sub publisher client.
type Notifier struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
	publish   publishFunc
}

var _ archive.Notifier = (*Notifier)(nil)

// New connects to projectID and publishes to topic.
func New(ctx context.Context, projectID, topic string) (*Notifier, error) {
	if projectID == "" || topic == "" {
		return nil, errors.New("project id and topic are required")
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	publisher := client.Publisher(topic)
	n := &Notifier{client: client, publisher: publisher}
	n.publish = func(ctx context.Context, msg *pubsub.Message) (string, error) {
		return publisher.Publish(ctx, msg).Get(ctx)
	}
	return n, nil
}

// Notify marshals the event to JSON and waits for the server to accept it.
func (n *Notifier) Notify(ctx context.Context, event archive.Event) error {
	if n.publish == nil {
		return errors.New("pubsub publisher is not configured")
	}
	msg, err := message(event)
	if err != nil {
		return err
	}
	if _, err := n.publish(ctx, msg); err != nil {
		metrics.ObserveNotification(string(event.Type), "failed")
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	metrics.ObserveNotification(string(event.Type), "published")
	return nil
}

// Close flushes pending messages and releases the client.
func (n *Notifier) Close() error {
	if n.publisher != nil {
		n.publisher.Stop()
	}
	if n.client != nil {
		if err := n.client.Close(); err != nil {
			return fmt.Errorf("close pubsub client: %w", err)
		}
	}
	return nil
}

func message(event archive.Event) (*pubsub.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"type":          string(event.Type),
			"record_number": event.Number,
		},
	}, nil
}
