package query

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/goliatone/go-ordersync/core"
)

func TestOrderTimelineQuery_QueryDelegates(t *testing.T) {
	expected := []core.TimelineEntry{
		{EntityKey: "101", Sequence: 1, EventType: core.EventOrderCreated, Outcome: core.OutcomeApplied},
		{EntityKey: "101", Sequence: 2, EventType: core.EventOrderPaid, Outcome: core.OutcomeApplied},
	}
	called := false
	reader := stubTimelineReader{
		timelineFn: func(_ context.Context, entityKey string) ([]core.TimelineEntry, error) {
			called = true
			if entityKey != "101" {
				t.Fatalf("unexpected entity key %q", entityKey)
			}
			return expected, nil
		},
	}

	result, err := NewOrderTimelineQuery(reader).Query(context.Background(), OrderTimelineMessage{EntityKey: "101"})
	if err != nil {
		t.Fatalf("query timeline: %v", err)
	}
	if !called {
		t.Fatalf("expected timeline reader invocation")
	}
	if len(result) != 2 || result[1].Sequence != 2 {
		t.Fatalf("unexpected timeline result: %#v", result)
	}
}

func TestGetMappingQuery_QueryDelegates(t *testing.T) {
	expected := core.OrderMapping{
		StorefrontOrderID: "101",
		ErpOrderID:        "SO-77",
		State:             core.MappingStateLinked,
		Version:           2,
	}
	called := false
	reader := stubMappingReader{
		mappingFn: func(_ context.Context, storefrontOrderID string) (core.OrderMapping, error) {
			called = true
			if storefrontOrderID != "101" {
				t.Fatalf("unexpected storefront order id %q", storefrontOrderID)
			}
			return expected, nil
		},
	}

	result, err := NewGetMappingQuery(reader).Query(context.Background(), GetMappingMessage{StorefrontOrderID: "101"})
	if err != nil {
		t.Fatalf("query mapping: %v", err)
	}
	if !called {
		t.Fatalf("expected mapping reader invocation")
	}
	if result.ErpOrderID != expected.ErpOrderID || result.Version != expected.Version {
		t.Fatalf("unexpected mapping result: %#v", result)
	}
}

func TestListDeadLettersQuery_QueryDelegates(t *testing.T) {
	expected := []core.DeadLetterRecord{
		{
			ID:       "dl-1",
			Reason:   core.DeadLetterReasonMaxRetries,
			Attempts: 5,
			FailedAt: time.Now().UTC(),
		},
	}
	called := false
	reader := stubDeadLetterReader{
		listFn: func(_ context.Context, filter core.DeadLetterFilter) ([]core.DeadLetterRecord, error) {
			called = true
			if filter.EntityKey != "101" || filter.Reason != core.DeadLetterReasonMaxRetries {
				t.Fatalf("unexpected filter: %#v", filter)
			}
			return expected, nil
		},
	}

	result, err := NewListDeadLettersQuery(reader).Query(context.Background(), ListDeadLettersMessage{
		Filter: core.DeadLetterFilter{EntityKey: "101", Reason: core.DeadLetterReasonMaxRetries},
	})
	if err != nil {
		t.Fatalf("query dead letters: %v", err)
	}
	if !called {
		t.Fatalf("expected dead letter reader invocation")
	}
	if len(result) != 1 || result[0].ID != "dl-1" {
		t.Fatalf("unexpected dead letter result: %#v", result)
	}
}

func TestQueries_RequireReader(t *testing.T) {
	if _, err := NewOrderTimelineQuery(nil).Query(context.Background(), OrderTimelineMessage{EntityKey: "101"}); err == nil {
		t.Fatalf("expected dependency error for timeline")
	}
	if _, err := NewGetMappingQuery(nil).Query(context.Background(), GetMappingMessage{StorefrontOrderID: "101"}); err == nil {
		t.Fatalf("expected dependency error for mapping")
	}
	if _, err := NewListDeadLettersQuery(nil).Query(context.Background(), ListDeadLettersMessage{}); err == nil {
		t.Fatalf("expected dependency error for dead letters")
	}
}

func TestQueryMessageValidation(t *testing.T) {
	tests := []struct {
		name    string
		msg     interface{ Validate() error }
		wantErr bool
	}{
		{
			name:    "timeline valid",
			msg:     OrderTimelineMessage{EntityKey: "101"},
			wantErr: false,
		},
		{
			name:    "timeline missing entity key",
			msg:     OrderTimelineMessage{},
			wantErr: true,
		},
		{
			name:    "mapping valid",
			msg:     GetMappingMessage{StorefrontOrderID: "101"},
			wantErr: false,
		},
		{
			name:    "mapping missing id",
			msg:     GetMappingMessage{},
			wantErr: true,
		},
		{
			name:    "dead letters empty filter valid",
			msg:     ListDeadLettersMessage{},
			wantErr: false,
		},
		{
			name: "dead letters known reason valid",
			msg: ListDeadLettersMessage{Filter: core.DeadLetterFilter{
				Reason: core.DeadLetterReasonPermanent,
			}},
			wantErr: false,
		},
		{
			name: "dead letters unknown reason",
			msg: ListDeadLettersMessage{Filter: core.DeadLetterFilter{
				Reason: "timeout",
			}},
			wantErr: true,
		},
		{
			name:    "dead letters negative limit",
			msg:     ListDeadLettersMessage{Filter: core.DeadLetterFilter{Limit: -1}},
			wantErr: true,
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

type stubTimelineReader struct {
	timelineFn func(ctx context.Context, entityKey string) ([]core.TimelineEntry, error)
}

func (s stubTimelineReader) Timeline(ctx context.Context, entityKey string) ([]core.TimelineEntry, error) {
	if s.timelineFn == nil {
		return nil, fmt.Errorf("timeline not configured")
	}
	return s.timelineFn(ctx, entityKey)
}

type stubMappingReader struct {
	mappingFn func(ctx context.Context, storefrontOrderID string) (core.OrderMapping, error)
}

func (s stubMappingReader) Mapping(ctx context.Context, storefrontOrderID string) (core.OrderMapping, error) {
	if s.mappingFn == nil {
		return core.OrderMapping{}, fmt.Errorf("mapping not configured")
	}
	return s.mappingFn(ctx, storefrontOrderID)
}

type stubDeadLetterReader struct {
	listFn func(ctx context.Context, filter core.DeadLetterFilter) ([]core.DeadLetterRecord, error)
}

func (s stubDeadLetterReader) ListDeadLetters(
	ctx context.Context,
	filter core.DeadLetterFilter,
) ([]core.DeadLetterRecord, error) {
	if s.listFn == nil {
		return nil, fmt.Errorf("list dead letters not configured")
	}
	return s.listFn(ctx, filter)
}

var (
	_ TimelineReader   = stubTimelineReader{}
	_ MappingReader    = stubMappingReader{}
	_ DeadLetterReader = stubDeadLetterReader{}
)
