package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainError_Error(t *testing.T) {
	if got := ErrNoSuchItem.Error(); got != "[RL-ITEM-4040] no such item" {
		t.Errorf("Error() = %q", got)
	}
	if got := ErrNoSuchItem.Detailf("mailbox %d item %d", 7, 300).Error(); got != "[RL-ITEM-4040] no such item: mailbox 7 item 300" {
		t.Errorf("Error() with details = %q", got)
	}
}

func TestDomainError_MatchByCode(t *testing.T) {
	occurrence := ErrNoSuchFolder.WithDetails("folder 300")
	wrapped := fmt.Errorf("redo CreateMessage: %w", occurrence)

	if !errors.Is(wrapped, ErrNoSuchFolder) {
		t.Error("wrapped occurrence does not match its kind")
	}
	if errors.Is(wrapped, ErrNoSuchItem) {
		t.Error("occurrence matches another kind")
	}
	if errors.Is(ErrNoSuchFolder, errors.New("no such folder")) {
		t.Error("kind matches a plain error with the same text")
	}
	if ErrNoSuchFolder.Details != "" {
		t.Error("WithDetails modified the declared kind")
	}
}

func TestDomainError_Cause(t *testing.T) {
	cause := errors.New("badger: value log full")
	err := ErrStorageError.WithCause(cause).WithDetails("put item 300")

	if !errors.Is(err, cause) {
		t.Error("cause lost through WithDetails")
	}
	if !errors.Is(err, ErrStorageError) {
		t.Error("kind lost through WithCause")
	}
	if err.Details != "put item 300" {
		t.Errorf("Details = %q", err.Details)
	}
	if ErrStorageError.Cause != nil {
		t.Error("WithCause modified the declared kind")
	}
}

func TestIsDomainError(t *testing.T) {
	wrapped := fmt.Errorf("apply: %w", ErrVolumeInUse)
	tests := []struct {
		err  error
		code string
		want bool
	}{
		{wrapped, "", true},
		{wrapped, "RL-VOL-4090", true},
		{wrapped, "RL-VOL-4040", false},
		{errors.New("plain"), "", false},
		{nil, "", false},
	}
	for _, tt := range tests {
		if got := IsDomainError(tt.err, tt.code); got != tt.want {
			t.Errorf("IsDomainError(%v, %q) = %v, want %v", tt.err, tt.code, got, tt.want)
		}
	}
	if got := GetErrorCode(wrapped); got != "RL-VOL-4090" {
		t.Errorf("GetErrorCode() = %q, want RL-VOL-4090", got)
	}
	if got := GetErrorCode(errors.New("plain")); got != "" {
		t.Errorf("GetErrorCode(plain) = %q, want empty", got)
	}
}

func TestStatusClass(t *testing.T) {
	tests := map[string]int{
		"RL-ITEM-4040":  404,
		"RL-STORE-4100": 410,
		"RL-ITEM-4230":  423,
		"RL-ARG-4000":   400,
		"RL-STORE-5001": 500,
		"RL-SYS-5030":   503,
		"RL-X-12":       500,
		"RL-X-0999":     500,
		"garbage":       500,
		"":              500,
	}
	for code, want := range tests {
		if got := StatusClass(code); got != want {
			t.Errorf("StatusClass(%q) = %d, want %d", code, got, want)
		}
	}
	if got := ErrItemLocked.Status(); got != 423 {
		t.Errorf("ErrItemLocked.Status() = %d, want 423", got)
	}
}

func TestDeclaredKinds(t *testing.T) {
	kinds := []*DomainError{
		ErrAlreadyExists, ErrAlreadyDeleted, ErrIdentityConflict, ErrStorageError,
		ErrNoSuchMailbox, ErrMailboxValidation,
		ErrNoSuchItem, ErrNoSuchFolder, ErrNoSuchTag, ErrWrongItemType, ErrItemLocked, ErrItemValidation,
		ErrNoSuchVolume, ErrVolumeInUse,
		ErrInvalidArgument,
	}
	seen := make(map[string]bool)
	for _, k := range kinds {
		if seen[k.Code] {
			t.Errorf("code %s declared twice", k.Code)
		}
		seen[k.Code] = true
		if k.Message == "" {
			t.Errorf("%s has no message", k.Code)
		}
		if s := k.Status(); s < 400 || s > 599 {
			t.Errorf("%s status class = %d, want 4xx or 5xx", k.Code, s)
		}
	}
}

func TestIsAlreadyApplied(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{ErrAlreadyExists.Detailf("folder %d", 300), true},
		{fmt.Errorf("redo: %w", ErrAlreadyDeleted), true},
		{ErrIdentityConflict, false},
		{ErrNoSuchItem, false},
		{errors.New("disk full"), false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := IsAlreadyApplied(tt.err); got != tt.want {
			t.Errorf("IsAlreadyApplied(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
