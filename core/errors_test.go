package core

import (
	"fmt"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestSyncErrorMapperSentinels(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		category  goerrors.Category
		textCode  string
		transient bool
	}{
		{
			name:      "mapping not ready is transient",
			err:       fmt.Errorf("dispatch: %w", ErrMappingNotReady),
			category:  goerrors.CategoryOperation,
			textCode:  SyncErrorMappingNotReady,
			transient: true,
		},
		{
			name:      "version conflict is transient",
			err:       ErrVersionConflict,
			category:  goerrors.CategoryConflict,
			textCode:  SyncErrorVersionConflict,
			transient: true,
		},
		{
			name:     "invalid transition is permanent",
			err:      fmt.Errorf("%w: linked -> pending", ErrInvalidMappingTransition),
			category: goerrors.CategoryValidation,
			textCode: SyncErrorInvalidLifecycle,
		},
		{
			name:      "lock unavailable is transient",
			err:       ErrEntityLockUnavailable,
			category:  goerrors.CategoryConflict,
			textCode:  SyncErrorLockUnavailable,
			transient: true,
		},
		{
			name:     "mapping not found",
			err:      ErrMappingNotFound,
			category: goerrors.CategoryNotFound,
			textCode: SyncErrorMappingNotFound,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := syncErrorMapper(tc.err)
			if mapped == nil {
				t.Fatal("expected mapped error")
			}
			if mapped.Category != tc.category {
				t.Fatalf("expected category %s, got %s", tc.category, mapped.Category)
			}
			if mapped.TextCode != tc.textCode {
				t.Fatalf("expected text code %s, got %s", tc.textCode, mapped.TextCode)
			}
			if Transient(mapped) != tc.transient {
				t.Fatalf("expected transient=%v", tc.transient)
			}
		})
	}
}

func TestSyncErrorMapperPreservesRichErrors(t *testing.T) {
	rich := goerrors.New("erp refused order", goerrors.CategoryValidation).
		WithTextCode(SyncErrorErpRejected)
	mapped := syncErrorMapper(rich)
	if mapped.TextCode != SyncErrorErpRejected {
		t.Fatalf("expected text code preserved, got %s", mapped.TextCode)
	}
	if mapped.Code != http.StatusBadRequest {
		t.Fatalf("expected status filled from category, got %d", mapped.Code)
	}
}

func TestTransientMarkers(t *testing.T) {
	err := goerrors.New("erp timeout", goerrors.CategoryExternal)
	if !Transient(err) {
		t.Fatal("external errors default transient")
	}
	if Transient(MarkPermanent(goerrors.New("erp rejected", goerrors.CategoryExternal))) {
		t.Fatal("permanent marker must win over category")
	}
	if !Transient(MarkTransient(goerrors.New("slow down", goerrors.CategoryInternal))) {
		t.Fatal("transient marker must win over category")
	}
	if Transient(nil) {
		t.Fatal("nil is not transient")
	}
}

func TestSyncErrorMapperNil(t *testing.T) {
	if syncErrorMapper(nil) != nil {
		t.Fatal("expected nil for nil input")
	}
}
