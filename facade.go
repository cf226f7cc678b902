package ordersync

import (
	"fmt"

	ordersynccommand "github.com/goliatone/go-ordersync/command"
	"github.com/goliatone/go-ordersync/core"
	ordersyncquery "github.com/goliatone/go-ordersync/query"
)

var _ CommandQueryService = (*core.Service)(nil)

type CommandQueryService interface {
	ordersynccommand.MutatingService
	ordersyncquery.TimelineReader
	ordersyncquery.MappingReader
	ordersyncquery.DeadLetterReader
}

type Commands struct {
	IngestEvent        *ordersynccommand.IngestEventCommand
	DispatchEvent      *ordersynccommand.DispatchEventCommand
	EnqueueEvent       *ordersynccommand.EnqueueEventCommand
	ResubmitDeadLetter *ordersynccommand.ResubmitDeadLetterCommand
}

type Queries struct {
	OrderTimeline   *ordersyncquery.OrderTimelineQuery
	GetMapping      *ordersyncquery.GetMappingQuery
	ListDeadLetters *ordersyncquery.ListDeadLettersQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

func NewFacade(service CommandQueryService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("ordersync: command/query service is required")
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		IngestEvent:        ordersynccommand.NewIngestEventCommand(service),
		DispatchEvent:      ordersynccommand.NewDispatchEventCommand(service),
		EnqueueEvent:       ordersynccommand.NewEnqueueEventCommand(service),
		ResubmitDeadLetter: ordersynccommand.NewResubmitDeadLetterCommand(service),
	}
	facade.queries = Queries{
		OrderTimeline:   ordersyncquery.NewOrderTimelineQuery(service),
		GetMapping:      ordersyncquery.NewGetMappingQuery(service),
		ListDeadLetters: ordersyncquery.NewListDeadLettersQuery(service),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
