package ledger

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-ordersync/core"
)

func ledgerError(
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

func ledgerBadInput(message string, metadata map[string]any) error {
	return ledgerError(
		message,
		goerrors.CategoryBadInput,
		http.StatusBadRequest,
		core.SyncErrorBadInput,
		metadata,
	)
}

func ledgerInternal(message string, metadata map[string]any) error {
	return ledgerError(
		message,
		goerrors.CategoryInternal,
		http.StatusInternalServerError,
		core.SyncErrorInternal,
		metadata,
	)
}
