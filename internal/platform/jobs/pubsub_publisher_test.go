package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/formacorp/incorporation-api/internal/services"
)

func TestPubSubEventPublisherPublishesMessage(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	topic, err := client.CreateTopic(ctx, "registration-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	publisher, err := NewPubSubEventPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubEventPublisher: %v", err)
	}

	occurredAt := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	event := services.RegistrationEvent{
		Type:           "registration.status.changed",
		CaseID:         "reg_case1",
		CaseNumber:     "FC-2025-000042",
		PreviousStatus: "payment_processing",
		CurrentStatus:  "documentation_processing",
		Stage:          "company_details",
		ActorID:        "staff-7",
		OccurredAt:     occurredAt,
	}

	if err := publisher.PublishRegistrationEvent(ctx, event); err != nil {
		t.Fatalf("PublishRegistrationEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload services.RegistrationEvent
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.CaseID != event.CaseID || payload.Type != event.Type {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if !payload.OccurredAt.Equal(occurredAt) {
		t.Fatalf("unexpected occurredAt %s", payload.OccurredAt)
	}

	attrs := messages[0].Attributes
	if attrs["type"] != "registration.status.changed" {
		t.Fatalf("expected type attribute, got %q", attrs["type"])
	}
	if attrs["caseId"] != "reg_case1" || attrs["caseNumber"] != "FC-2025-000042" {
		t.Fatalf("unexpected routing attributes %#v", attrs)
	}
	if attrs["status"] != "documentation_processing" || attrs["stage"] != "company_details" {
		t.Fatalf("unexpected state attributes %#v", attrs)
	}
	if _, ok := attrs["actorId"]; ok {
		t.Fatalf("actor should not be exposed as an attribute")
	}
}

func TestPubSubEventPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubEventPublisher(nil); err == nil {
		t.Fatal("expected error for nil topic")
	}
}
