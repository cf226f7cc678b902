package command

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-ordersync/core"
)

const (
	TypeIngestEvent        = "ordersync.command.event.ingest"
	TypeDispatchEvent      = "ordersync.command.event.dispatch"
	TypeEnqueueEvent       = "ordersync.command.event.enqueue"
	TypeResubmitDeadLetter = "ordersync.command.deadletter.resubmit"
)

type IngestEventMessage struct {
	Source  core.Source
	Payload []byte
	Headers map[string]string
}

func (IngestEventMessage) Type() string { return TypeIngestEvent }

func (m IngestEventMessage) Validate() error {
	if err := m.Source.Validate(); err != nil {
		return fmt.Errorf("command: %w", err)
	}
	if len(m.Payload) == 0 {
		return fmt.Errorf("command: payload is required")
	}
	return nil
}

type DispatchEventMessage struct {
	Envelope core.EventEnvelope
}

func (DispatchEventMessage) Type() string { return TypeDispatchEvent }

func (m DispatchEventMessage) Validate() error {
	if err := m.Envelope.Validate(); err != nil {
		return fmt.Errorf("command: %w", err)
	}
	return nil
}

type EnqueueEventMessage struct {
	Envelope core.EventEnvelope
}

func (EnqueueEventMessage) Type() string { return TypeEnqueueEvent }

func (m EnqueueEventMessage) Validate() error {
	if err := m.Envelope.Validate(); err != nil {
		return fmt.Errorf("command: %w", err)
	}
	return nil
}

type ResubmitDeadLetterMessage struct {
	DeadLetterID string
}

func (ResubmitDeadLetterMessage) Type() string { return TypeResubmitDeadLetter }

func (m ResubmitDeadLetterMessage) Validate() error {
	if strings.TrimSpace(m.DeadLetterID) == "" {
		return fmt.Errorf("command: dead letter id is required")
	}
	return nil
}
