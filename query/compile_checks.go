package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-ordersync/core"
)

var (
	_ gocmd.Querier[OrderTimelineMessage, []core.TimelineEntry]      = (*OrderTimelineQuery)(nil)
	_ gocmd.Querier[GetMappingMessage, core.OrderMapping]            = (*GetMappingQuery)(nil)
	_ gocmd.Querier[ListDeadLettersMessage, []core.DeadLetterRecord] = (*ListDeadLettersQuery)(nil)
)
