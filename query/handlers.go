package query

import (
	"context"

	"github.com/goliatone/go-ordersync/core"
)

type TimelineReader interface {
	Timeline(ctx context.Context, entityKey string) ([]core.TimelineEntry, error)
}

type MappingReader interface {
	Mapping(ctx context.Context, storefrontOrderID string) (core.OrderMapping, error)
}

type DeadLetterReader interface {
	ListDeadLetters(ctx context.Context, filter core.DeadLetterFilter) ([]core.DeadLetterRecord, error)
}

type OrderTimelineQuery struct {
	reader TimelineReader
}

func NewOrderTimelineQuery(reader TimelineReader) *OrderTimelineQuery {
	return &OrderTimelineQuery{reader: reader}
}

func (q *OrderTimelineQuery) Query(ctx context.Context, msg OrderTimelineMessage) ([]core.TimelineEntry, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: timeline reader is required")
	}
	return q.reader.Timeline(ctx, msg.EntityKey)
}

type GetMappingQuery struct {
	reader MappingReader
}

func NewGetMappingQuery(reader MappingReader) *GetMappingQuery {
	return &GetMappingQuery{reader: reader}
}

func (q *GetMappingQuery) Query(ctx context.Context, msg GetMappingMessage) (core.OrderMapping, error) {
	if q == nil || q.reader == nil {
		return core.OrderMapping{}, queryDependencyError("query: mapping reader is required")
	}
	return q.reader.Mapping(ctx, msg.StorefrontOrderID)
}

type ListDeadLettersQuery struct {
	reader DeadLetterReader
}

func NewListDeadLettersQuery(reader DeadLetterReader) *ListDeadLettersQuery {
	return &ListDeadLettersQuery{reader: reader}
}

func (q *ListDeadLettersQuery) Query(ctx context.Context, msg ListDeadLettersMessage) ([]core.DeadLetterRecord, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: dead letter reader is required")
	}
	return q.reader.ListDeadLetters(ctx, msg.Filter)
}
