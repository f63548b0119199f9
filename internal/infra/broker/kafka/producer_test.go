package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
)

func TestPublishSendsKeyAndHeaders(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, _ := msg.Key.Encode()
		if msg.Topic != "listing.events.v1" || string(key) != "l-1" {
			return errors.New("unexpected topic or key")
		}
		if len(msg.Headers) != 2 || string(msg.Headers[0].Key) != "content-type" || string(msg.Headers[1].Key) != "traceparent" {
			return errors.New("headers not sorted")
		}
		return nil
	})
	p := NewProducerFrom(sp)
	err := p.Publish(context.Background(), "listing.events.v1", "l-1", []byte(`{}`), map[string]string{
		"traceparent":  "00-abc-def-01",
		"content-type": "application/cloudevents+json",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestPublishSurfacesBrokerErrors(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndFail(sarama.ErrNotEnoughReplicas)
	p := NewProducerFrom(sp)
	if err := p.Publish(context.Background(), "t", "k", nil, nil); !errors.Is(err, sarama.ErrNotEnoughReplicas) {
		t.Fatalf("Publish() error = %v", err)
	}
	_ = p.Close()
}

func TestPublishHonoursCancelledContext(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	p := NewProducerFrom(sp)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Publish(ctx, "t", "k", nil, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("Publish() error = %v", err)
	}
	_ = p.Close()
}
