package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-ordersync/core"
)

type MutatingService interface {
	IngestEvent(ctx context.Context, source core.Source, payload []byte, headers map[string]string) (core.DispatchResult, error)
	DispatchEvent(ctx context.Context, envelope core.EventEnvelope) (core.DispatchResult, error)
	EnqueueEvent(ctx context.Context, envelope core.EventEnvelope) error
	ResubmitDeadLetter(ctx context.Context, id string) (core.DispatchResult, error)
}

type IngestEventCommand struct {
	service MutatingService
}

func NewIngestEventCommand(service MutatingService) *IngestEventCommand {
	return &IngestEventCommand{service: service}
}

func (c *IngestEventCommand) Execute(ctx context.Context, msg IngestEventMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: ingest service is required")
	}
	out, err := c.service.IngestEvent(ctx, msg.Source, msg.Payload, msg.Headers)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DispatchEventCommand struct {
	service MutatingService
}

func NewDispatchEventCommand(service MutatingService) *DispatchEventCommand {
	return &DispatchEventCommand{service: service}
}

func (c *DispatchEventCommand) Execute(ctx context.Context, msg DispatchEventMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: dispatch service is required")
	}
	out, err := c.service.DispatchEvent(ctx, msg.Envelope)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type EnqueueEventCommand struct {
	service MutatingService
}

func NewEnqueueEventCommand(service MutatingService) *EnqueueEventCommand {
	return &EnqueueEventCommand{service: service}
}

func (c *EnqueueEventCommand) Execute(ctx context.Context, msg EnqueueEventMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: enqueue service is required")
	}
	return c.service.EnqueueEvent(ctx, msg.Envelope)
}

type ResubmitDeadLetterCommand struct {
	service MutatingService
}

func NewResubmitDeadLetterCommand(service MutatingService) *ResubmitDeadLetterCommand {
	return &ResubmitDeadLetterCommand{service: service}
}

func (c *ResubmitDeadLetterCommand) Execute(ctx context.Context, msg ResubmitDeadLetterMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: dead letter service is required")
	}
	out, err := c.service.ResubmitDeadLetter(ctx, msg.DeadLetterID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
