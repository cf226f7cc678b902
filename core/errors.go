package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	SyncErrorBadInput         = "ORDERSYNC_BAD_INPUT"
	SyncErrorUnidentifiable   = "ORDERSYNC_UNIDENTIFIABLE_PAYLOAD"
	SyncErrorMappingNotFound  = "ORDERSYNC_MAPPING_NOT_FOUND"
	SyncErrorMappingNotReady  = "ORDERSYNC_MAPPING_NOT_READY"
	SyncErrorVersionConflict  = "ORDERSYNC_VERSION_CONFLICT"
	SyncErrorInvalidLifecycle = "ORDERSYNC_INVALID_LIFECYCLE"
	SyncErrorLockUnavailable  = "ORDERSYNC_LOCK_UNAVAILABLE"
	SyncErrorErpUnavailable   = "ORDERSYNC_ERP_UNAVAILABLE"
	SyncErrorErpRejected      = "ORDERSYNC_ERP_REJECTED"
	SyncErrorManualReview     = "ORDERSYNC_MANUAL_REVIEW"
	SyncErrorInternal         = "ORDERSYNC_INTERNAL_ERROR"
)

const metadataKeyTransient = "transient"

// Transient reports whether err should be retried. Rich errors carry an
// explicit marker; domain sentinels map by kind.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		if richErr.Metadata != nil {
			if flag, ok := richErr.Metadata[metadataKeyTransient].(bool); ok {
				return flag
			}
		}
		switch richErr.Category {
		case goerrors.CategoryExternal, goerrors.CategoryRateLimit, goerrors.CategoryOperation:
			return true
		}
		return false
	}
	return errors.Is(err, ErrMappingNotReady) ||
		errors.Is(err, ErrEntityLockUnavailable) ||
		errors.Is(err, ErrVersionConflict)
}

// MarkTransient tags a rich error so the dispatcher schedules a retry.
func MarkTransient(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return err.WithMetadata(map[string]any{metadataKeyTransient: true})
}

// MarkPermanent tags a rich error as non-retryable; the dispatcher dead
// letters it on first failure.
func MarkPermanent(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return err.WithMetadata(map[string]any{metadataKeyTransient: false})
}

func syncErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureSyncErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrMappingNotFound):
		return newSyncError(err.Error(), goerrors.CategoryNotFound, SyncErrorMappingNotFound)
	case errors.Is(err, ErrMappingNotReady):
		return MarkTransient(newSyncError(err.Error(), goerrors.CategoryOperation, SyncErrorMappingNotReady))
	case errors.Is(err, ErrVersionConflict):
		return MarkTransient(newSyncError(err.Error(), goerrors.CategoryConflict, SyncErrorVersionConflict))
	case errors.Is(err, ErrInvalidMappingTransition):
		return newSyncError(err.Error(), goerrors.CategoryValidation, SyncErrorInvalidLifecycle)
	case errors.Is(err, ErrEntityLockUnavailable):
		return MarkTransient(newSyncError(err.Error(), goerrors.CategoryConflict, SyncErrorLockUnavailable))
	case errors.Is(err, ErrManualReviewRequired):
		return newSyncError(err.Error(), goerrors.CategoryOperation, SyncErrorManualReview)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "unidentifiable"), strings.Contains(msg, "missing entity"):
		return newSyncError(err.Error(), goerrors.CategoryBadInput, SyncErrorUnidentifiable)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return newSyncError(err.Error(), goerrors.CategoryBadInput, SyncErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureSyncErrorEnvelope(mapped)
}

func newSyncError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureSyncErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureSyncErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = syncHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultSyncTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultSyncTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return SyncErrorBadInput
	case goerrors.CategoryNotFound:
		return SyncErrorMappingNotFound
	case goerrors.CategoryConflict:
		return SyncErrorVersionConflict
	case goerrors.CategoryExternal:
		return SyncErrorErpUnavailable
	case goerrors.CategoryOperation:
		return SyncErrorErpRejected
	default:
		return SyncErrorInternal
	}
}

func syncHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
