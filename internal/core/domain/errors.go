package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DomainError is an outcome of applying an operation to the store. Its
// Code has the form RL-<AREA>-<status><n>, where status is the HTTP-style
// class of the failure. DomainErrors match under errors.Is by code alone.
type DomainError struct {
	Code    string
	Message string
	Details string
	Cause   error
}

func (e *DomainError) Error() string {
	if e.Details == "" {
		return "[" + e.Code + "] " + e.Message
	}
	return "[" + e.Code + "] " + e.Message + ": " + e.Details
}

func (e *DomainError) Unwrap() error { return e.Cause }

func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Code == e.Code
}

// Status returns the status class carried in the code, or 500 when the
// code has none.
func (e *DomainError) Status() int {
	return StatusClass(e.Code)
}

// NewDomainError declares an error kind. Kinds are package-level values;
// occurrences are derived with WithDetails, Detailf and WithCause.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// WithDetails returns a copy carrying details.
func (e *DomainError) WithDetails(details string) *DomainError {
	c := *e
	c.Details = details
	return &c
}

// Detailf is WithDetails with a format string.
func (e *DomainError) Detailf(format string, args ...any) *DomainError {
	return e.WithDetails(fmt.Sprintf(format, args...))
}

// WithCause returns a copy wrapping cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	c := *e
	c.Cause = cause
	return &c
}

// IsDomainError reports whether err wraps a DomainError, with the given
// code unless code is empty.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	return errors.As(err, &de) && (code == "" || de.Code == code)
}

// GetErrorCode returns the code of the DomainError err wraps, or "".
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// StatusClass extracts the three-digit status class from a code such as
// RL-ITEM-4040. Malformed codes report 500.
func StatusClass(code string) int {
	i := strings.LastIndexByte(code, '-')
	if i < 0 || len(code)-i-1 < 3 {
		return 500
	}
	n, err := strconv.Atoi(code[i+1 : i+4])
	if err != nil || n < 100 || n > 599 {
		return 500
	}
	return n
}

// IsAlreadyApplied reports whether err says the store already reflects
// the mutation. Replay counts that as success.
func IsAlreadyApplied(err error) bool {
	return errors.Is(err, ErrAlreadyExists) || errors.Is(err, ErrAlreadyDeleted)
}

// Store outcomes.
var (
	// ErrAlreadyExists: the store already holds an equivalent object.
	ErrAlreadyExists = NewDomainError("RL-STORE-4090", "already exists")

	// ErrAlreadyDeleted: the object a delete targets is gone.
	ErrAlreadyDeleted = NewDomainError("RL-STORE-4100", "already deleted")

	// ErrIdentityConflict: a different object holds the same identity.
	// Never resolved automatically.
	ErrIdentityConflict = NewDomainError("RL-STORE-4091", "identity conflict")

	ErrStorageError = NewDomainError("RL-STORE-5001", "storage error")
)

// Mailboxes.
var (
	ErrNoSuchMailbox     = NewDomainError("RL-MBOX-4040", "no such mailbox")
	ErrMailboxValidation = NewDomainError("RL-MBOX-4001", "mailbox validation failed")
)

// Items, folders and tags.
var (
	ErrNoSuchItem     = NewDomainError("RL-ITEM-4040", "no such item")
	ErrNoSuchFolder   = NewDomainError("RL-ITEM-4041", "no such folder")
	ErrNoSuchTag      = NewDomainError("RL-ITEM-4042", "no such tag")
	ErrWrongItemType  = NewDomainError("RL-ITEM-4002", "wrong item type")
	ErrItemLocked     = NewDomainError("RL-ITEM-4230", "item locked")
	ErrItemValidation = NewDomainError("RL-ITEM-4001", "item validation failed")
)

// Volumes.
var (
	ErrNoSuchVolume = NewDomainError("RL-VOL-4040", "no such volume")

	// ErrVolumeInUse: the volume is current and cannot be deleted.
	ErrVolumeInUse = NewDomainError("RL-VOL-4090", "volume in use")
)

var ErrInvalidArgument = NewDomainError("RL-ARG-4000", "invalid argument")
