package audit

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
)

func TestKafkaPublisherPublish(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(value []byte) error {
		var event Event
		if err := json.Unmarshal(value, &event); err != nil {
			return err
		}
		if event.Type != EventSignInFailure {
			t.Errorf("event type = %q", event.Type)
		}
		if event.Email != "jdoe@example.com" {
			t.Errorf("event email = %q", event.Email)
		}
		if event.ID == "" {
			t.Error("event id empty")
		}
		return nil
	})

	publisher := NewKafkaPublisherWithProducer(mockProducer, "security-events")
	event := NewEvent(EventSignInFailure, "jdoe@example.com", "203.0.113.9", "bad password")

	if err := publisher.Publish(context.Background(), event); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := publisher.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestKafkaPublisherSendFailure(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewKafkaPublisherWithProducer(mockProducer, "security-events")
	if err := publisher.Publish(context.Background(), NewEvent(EventIPBlocked, "", "203.0.113.9", "")); err == nil {
		t.Fatal("expected error when the broker rejects the message")
	}
	if err := publisher.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestPartitionKeyPrefersEmail(t *testing.T) {
	withEmail := NewEvent(EventSignInSuccess, "jdoe@example.com", "203.0.113.9", "")
	if got := withEmail.PartitionKey(); got != "jdoe@example.com" {
		t.Errorf("PartitionKey = %q", got)
	}

	ipOnly := NewEvent(EventIPBlocked, "", "203.0.113.9", "")
	if got := ipOnly.PartitionKey(); got != "203.0.113.9" {
		t.Errorf("PartitionKey = %q", got)
	}
}
