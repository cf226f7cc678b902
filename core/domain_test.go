package core

import (
	"errors"
	"testing"
	"time"
)

func TestMappingTransitions(t *testing.T) {
	now := time.Now().UTC()

	cases := []struct {
		name    string
		from    MappingState
		to      MappingState
		wantErr bool
	}{
		{name: "pending to linked", from: MappingStatePending, to: MappingStateLinked},
		{name: "pending to abandoned", from: MappingStatePending, to: MappingStateAbandoned},
		{name: "linked to confirmed", from: MappingStateLinked, to: MappingStateConfirmed},
		{name: "linked to abandoned", from: MappingStateLinked, to: MappingStateAbandoned},
		{name: "pending to confirmed rejected", from: MappingStatePending, to: MappingStateConfirmed, wantErr: true},
		{name: "confirmed to abandoned rejected", from: MappingStateConfirmed, to: MappingStateAbandoned, wantErr: true},
		{name: "abandoned to linked rejected", from: MappingStateAbandoned, to: MappingStateLinked, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mapping := OrderMapping{StorefrontOrderID: "101", State: tc.from}
			err := mapping.TransitionTo(tc.to, now)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidMappingTransition) {
					t.Fatalf("expected invalid transition error, got %v", err)
				}
				if mapping.State != tc.from {
					t.Fatalf("state mutated on rejected transition: %s", mapping.State)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if mapping.State != tc.to {
				t.Fatalf("expected state %s, got %s", tc.to, mapping.State)
			}
		})
	}
}

func TestMappingTransitionSelfIsNoop(t *testing.T) {
	now := time.Now().UTC()
	mapping := OrderMapping{StorefrontOrderID: "101", State: MappingStateLinked}
	if err := mapping.TransitionTo(MappingStateLinked, now); err != nil {
		t.Fatalf("self transition should be a no-op: %v", err)
	}
	if !mapping.UpdatedAt.Equal(now) {
		t.Fatalf("expected updated_at refresh")
	}
}

func TestMappingTerminal(t *testing.T) {
	if (OrderMapping{State: MappingStateLinked}).Terminal() {
		t.Fatal("linked should not be terminal")
	}
	if !(OrderMapping{State: MappingStateConfirmed}).Terminal() {
		t.Fatal("confirmed should be terminal")
	}
	if !(OrderMapping{State: MappingStateAbandoned}).Terminal() {
		t.Fatal("abandoned should be terminal")
	}
}

func TestEventEnvelopeValidate(t *testing.T) {
	valid := EventEnvelope{
		EventID:        "evt-1",
		EventType:      EventOrderCreated,
		Source:         SourceStorefront,
		EntityKey:      "101",
		ReceivedAt:     time.Now().UTC(),
		IdempotencyKey: "storefront:101:storefront.order.created:v1",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	missingEntity := valid
	missingEntity.EntityKey = " "
	if err := missingEntity.Validate(); err == nil {
		t.Fatal("expected missing entity key error")
	}

	badType := valid
	badType.EventType = "storefront.order.refunded"
	if err := badType.Validate(); !errors.Is(err, ErrInvalidEventType) {
		t.Fatalf("expected invalid event type error, got %v", err)
	}

	badSource := valid
	badSource.Source = "crm"
	if err := badSource.Validate(); !errors.Is(err, ErrInvalidSource) {
		t.Fatalf("expected invalid source error, got %v", err)
	}
}
