package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"nil error returns empty", nil, ""},
		{"wrapped session expired", fmt.Errorf("commit: %w", ErrSessionExpired), "UPL006"},
		{"wrapped session not found", fmt.Errorf("fetch abc: %w", ErrSessionNotFound), "UPL003"},
		{"too many rows beats malformed", fmt.Errorf("%w: 50001 rows", ErrTooManyRows), "FILE006"},
		{"malformed file", fmt.Errorf("%w: missing header", ErrMalformedFile), "FILE002"},
		{"encoding refinement", fmt.Errorf("%w: encoding error at byte 12", ErrMalformedFile), "FILE003"},
		{"empty file refinement", fmt.Errorf("%w: empty file", ErrMalformedFile), "FILE005"},
		{"unknown kind", fmt.Errorf("%w: %q", ErrUnknownKind, "refunds"), "VAL007"},
		{"invalid parameter", fmt.Errorf("%w: period %q", ErrInvalidParameter, "decade"), "VAL001"},
		{"context cancelled", fmt.Errorf("parse: %w", context.Canceled), "UPL004"},
		{"deadline", context.DeadlineExceeded, "UPL005"},
		{"duplicate key pattern", errors.New("ERROR: duplicate key value violates unique constraint"), "DB001"},
		{"connection refused pattern", errors.New("dial tcp: connection refused"), "DB004"},
		{"body too large", errors.New("http: request body too large"), "FILE001"},
		{"unknown falls back", errors.New("something odd"), "ERR000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError(%v).Code = %q, want %q", tt.err, got.Code, tt.wantCode)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	got := FormatUserError(ErrSessionExpired)
	want := "Upload preview has expired (Code: UPL006). Upload the file again to get a fresh preview"
	if got != want {
		t.Errorf("FormatUserError() = %q, want %q", got, want)
	}
	if FormatUserError(nil) != "" {
		t.Error("FormatUserError(nil) should be empty")
	}
}

func TestIsUserFacing(t *testing.T) {
	if !IsUserFacing(ErrQueueFull) {
		t.Error("ErrQueueFull should be user facing")
	}
	if IsUserFacing(errors.New("boom")) {
		t.Error("unmatched error should not be user facing")
	}
	if IsUserFacing(nil) {
		t.Error("nil should not be user facing")
	}
}
