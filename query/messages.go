package query

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-ordersync/core"
)

const (
	TypeOrderTimeline   = "ordersync.query.timeline"
	TypeGetMapping      = "ordersync.query.mapping.get"
	TypeListDeadLetters = "ordersync.query.deadletter.list"
)

type OrderTimelineMessage struct {
	EntityKey string
}

func (OrderTimelineMessage) Type() string { return TypeOrderTimeline }

func (m OrderTimelineMessage) Validate() error {
	if strings.TrimSpace(m.EntityKey) == "" {
		return fmt.Errorf("query: entity key is required")
	}
	return nil
}

type GetMappingMessage struct {
	StorefrontOrderID string
}

func (GetMappingMessage) Type() string { return TypeGetMapping }

func (m GetMappingMessage) Validate() error {
	if strings.TrimSpace(m.StorefrontOrderID) == "" {
		return fmt.Errorf("query: storefront order id is required")
	}
	return nil
}

type ListDeadLettersMessage struct {
	Filter core.DeadLetterFilter
}

func (ListDeadLettersMessage) Type() string { return TypeListDeadLetters }

func (m ListDeadLettersMessage) Validate() error {
	if m.Filter.Limit < 0 {
		return fmt.Errorf("query: limit must not be negative")
	}
	switch m.Filter.Reason {
	case "", core.DeadLetterReasonMaxRetries, core.DeadLetterReasonPermanent, core.DeadLetterReasonManualReview:
		return nil
	}
	return fmt.Errorf("query: unknown dead letter reason %q", string(m.Filter.Reason))
}
