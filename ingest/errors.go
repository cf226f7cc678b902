package ingest

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-ordersync/core"
)

func ingestError(
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func ingestBadInput(message string, metadata map[string]any) error {
	return ingestError(
		message,
		goerrors.CategoryBadInput,
		http.StatusBadRequest,
		core.SyncErrorBadInput,
		metadata,
	)
}

// ingestUnidentifiable rejects a payload whose entity identity cannot be
// established. These are never queued and never retried.
func ingestUnidentifiable(message string, metadata map[string]any) error {
	return ingestError(
		message,
		goerrors.CategoryBadInput,
		http.StatusBadRequest,
		core.SyncErrorUnidentifiable,
		metadata,
	)
}
