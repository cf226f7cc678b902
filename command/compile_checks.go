package command

import (
	gocmd "github.com/goliatone/go-command"
)

var (
	_ gocmd.Commander[IngestEventMessage]        = (*IngestEventCommand)(nil)
	_ gocmd.Commander[DispatchEventMessage]      = (*DispatchEventCommand)(nil)
	_ gocmd.Commander[EnqueueEventMessage]       = (*EnqueueEventCommand)(nil)
	_ gocmd.Commander[ResubmitDeadLetterMessage] = (*ResubmitDeadLetterCommand)(nil)
)
