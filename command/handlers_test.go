package command

import (
	"context"
	"fmt"
	"testing"
	"time"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-ordersync/core"
)

func TestIngestEventCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	expected := core.DispatchResult{Outcome: core.OutcomeApplied, Attempt: 1}
	called := false

	svc := stubMutatingService{
		ingestFn: func(_ context.Context, source core.Source, payload []byte, headers map[string]string) (core.DispatchResult, error) {
			called = true
			if source != core.SourceStorefront {
				t.Fatalf("expected storefront source, got %q", source)
			}
			if len(payload) == 0 {
				t.Fatalf("expected payload bytes")
			}
			if headers["X-WC-Webhook-Topic"] != "order.created" {
				t.Fatalf("unexpected headers: %#v", headers)
			}
			return expected, nil
		},
	}

	cmd := NewIngestEventCommand(svc)
	collector := gocmd.NewResult[core.DispatchResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := cmd.Execute(ctx, IngestEventMessage{
		Source:  core.SourceStorefront,
		Payload: []byte(`{"id":101,"status":"processing"}`),
		Headers: map[string]string{"X-WC-Webhook-Topic": "order.created"},
	})
	if err != nil {
		t.Fatalf("execute ingest: %v", err)
	}
	if !called {
		t.Fatalf("expected ingest service invocation")
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if result.Outcome != expected.Outcome || result.Attempt != expected.Attempt {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestMutationCommands_DelegateToService(t *testing.T) {
	envelope := core.EventEnvelope{
		EventID:        "evt-1",
		EventType:      core.EventOrderCreated,
		Source:         core.SourceStorefront,
		EntityKey:      "101",
		OccurredAt:     time.Now().UTC(),
		ReceivedAt:     time.Now().UTC(),
		IdempotencyKey: "storefront:101:storefront.order.created:v1",
		Payload:        map[string]any{"status": "processing"},
	}

	t.Run("dispatch", func(t *testing.T) {
		called := false
		svc := stubMutatingService{
			dispatchFn: func(_ context.Context, in core.EventEnvelope) (core.DispatchResult, error) {
				called = true
				if in.EntityKey != "101" {
					t.Fatalf("unexpected entity key %q", in.EntityKey)
				}
				return core.DispatchResult{Outcome: core.OutcomeDeduped}, nil
			},
		}
		cmd := NewDispatchEventCommand(svc)
		collector := gocmd.NewResult[core.DispatchResult]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		if err := cmd.Execute(ctx, DispatchEventMessage{Envelope: envelope}); err != nil {
			t.Fatalf("execute dispatch: %v", err)
		}
		if !called {
			t.Fatalf("expected dispatch invocation")
		}
		stored, ok := collector.Load()
		if !ok {
			t.Fatalf("expected dispatch result")
		}
		if stored.Outcome != core.OutcomeDeduped {
			t.Fatalf("unexpected dispatch result: %#v", stored)
		}
	})

	t.Run("enqueue", func(t *testing.T) {
		called := false
		svc := stubMutatingService{
			enqueueFn: func(_ context.Context, in core.EventEnvelope) error {
				called = true
				if in.IdempotencyKey != envelope.IdempotencyKey {
					t.Fatalf("unexpected idempotency key %q", in.IdempotencyKey)
				}
				return nil
			},
		}
		if err := NewEnqueueEventCommand(svc).Execute(context.Background(), EnqueueEventMessage{Envelope: envelope}); err != nil {
			t.Fatalf("execute enqueue: %v", err)
		}
		if !called {
			t.Fatalf("expected enqueue invocation")
		}
	})

	t.Run("resubmit dead letter", func(t *testing.T) {
		called := false
		svc := stubMutatingService{
			resubmitFn: func(_ context.Context, id string) (core.DispatchResult, error) {
				called = true
				if id != "dl-1" {
					t.Fatalf("unexpected dead letter id %q", id)
				}
				return core.DispatchResult{Outcome: core.OutcomeApplied}, nil
			},
		}
		cmd := NewResubmitDeadLetterCommand(svc)
		collector := gocmd.NewResult[core.DispatchResult]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		if err := cmd.Execute(ctx, ResubmitDeadLetterMessage{DeadLetterID: "dl-1"}); err != nil {
			t.Fatalf("execute resubmit: %v", err)
		}
		if !called {
			t.Fatalf("expected resubmit invocation")
		}
		if _, ok := collector.Load(); !ok {
			t.Fatalf("expected resubmit result")
		}
	})
}

func TestCommands_RequireService(t *testing.T) {
	if err := NewIngestEventCommand(nil).Execute(context.Background(), IngestEventMessage{}); err == nil {
		t.Fatalf("expected dependency error for ingest")
	}
	if err := NewDispatchEventCommand(nil).Execute(context.Background(), DispatchEventMessage{}); err == nil {
		t.Fatalf("expected dependency error for dispatch")
	}
	if err := NewEnqueueEventCommand(nil).Execute(context.Background(), EnqueueEventMessage{}); err == nil {
		t.Fatalf("expected dependency error for enqueue")
	}
	if err := NewResubmitDeadLetterCommand(nil).Execute(context.Background(), ResubmitDeadLetterMessage{}); err == nil {
		t.Fatalf("expected dependency error for resubmit")
	}
}

func TestMessageValidation(t *testing.T) {
	validEnvelope := core.EventEnvelope{
		EventID:        "evt-1",
		EventType:      core.EventOrderCreated,
		Source:         core.SourceStorefront,
		EntityKey:      "101",
		IdempotencyKey: "storefront:101:storefront.order.created:v1",
	}

	tests := []struct {
		name    string
		msg     interface{ Validate() error }
		wantErr bool
	}{
		{
			name: "ingest valid",
			msg: IngestEventMessage{
				Source:  core.SourceStorefront,
				Payload: []byte(`{"id":101}`),
			},
			wantErr: false,
		},
		{
			name:    "ingest unknown source",
			msg:     IngestEventMessage{Source: "marketplace", Payload: []byte(`{}`)},
			wantErr: true,
		},
		{
			name:    "ingest missing payload",
			msg:     IngestEventMessage{Source: core.SourceERP},
			wantErr: true,
		},
		{
			name:    "dispatch valid",
			msg:     DispatchEventMessage{Envelope: validEnvelope},
			wantErr: false,
		},
		{
			name: "dispatch missing entity key",
			msg: DispatchEventMessage{Envelope: core.EventEnvelope{
				EventID:        "evt-1",
				EventType:      core.EventOrderCreated,
				Source:         core.SourceStorefront,
				IdempotencyKey: "storefront:101:storefront.order.created:v1",
			}},
			wantErr: true,
		},
		{
			name:    "enqueue valid",
			msg:     EnqueueEventMessage{Envelope: validEnvelope},
			wantErr: false,
		},
		{
			name:    "resubmit missing id",
			msg:     ResubmitDeadLetterMessage{},
			wantErr: true,
		},
		{
			name:    "resubmit valid",
			msg:     ResubmitDeadLetterMessage{DeadLetterID: "dl-1"},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

type stubMutatingService struct {
	ingestFn   func(ctx context.Context, source core.Source, payload []byte, headers map[string]string) (core.DispatchResult, error)
	dispatchFn func(ctx context.Context, envelope core.EventEnvelope) (core.DispatchResult, error)
	enqueueFn  func(ctx context.Context, envelope core.EventEnvelope) error
	resubmitFn func(ctx context.Context, id string) (core.DispatchResult, error)
}

func (s stubMutatingService) IngestEvent(
	ctx context.Context,
	source core.Source,
	payload []byte,
	headers map[string]string,
) (core.DispatchResult, error) {
	if s.ingestFn == nil {
		return core.DispatchResult{}, fmt.Errorf("ingest not configured")
	}
	return s.ingestFn(ctx, source, payload, headers)
}

func (s stubMutatingService) DispatchEvent(ctx context.Context, envelope core.EventEnvelope) (core.DispatchResult, error) {
	if s.dispatchFn == nil {
		return core.DispatchResult{}, fmt.Errorf("dispatch not configured")
	}
	return s.dispatchFn(ctx, envelope)
}

func (s stubMutatingService) EnqueueEvent(ctx context.Context, envelope core.EventEnvelope) error {
	if s.enqueueFn == nil {
		return fmt.Errorf("enqueue not configured")
	}
	return s.enqueueFn(ctx, envelope)
}

func (s stubMutatingService) ResubmitDeadLetter(ctx context.Context, id string) (core.DispatchResult, error) {
	if s.resubmitFn == nil {
		return core.DispatchResult{}, fmt.Errorf("resubmit not configured")
	}
	return s.resubmitFn(ctx, id)
}

var _ MutatingService = stubMutatingService{}
