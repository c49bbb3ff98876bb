// Package apperr provides the typed error taxonomy returned by every engine operation.
package apperr

import "errors"

// Error is the domain error type.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable detail for logs and CLI output
	Cause   error  // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Kind returns the category of the error code.
func (e *Error) Kind() Kind {
	return e.Code.Kind()
}

// New creates a domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Sentinels for errors.Is comparisons. Only the code is compared.
var (
	ErrInvalidWallet             = New(CodeInvalidWallet, "invalid wallet address")
	ErrSelfInvitation            = New(CodeSelfInvitation, "inviter and invitee must differ")
	ErrUnknownPersonality        = New(CodeUnknownPersonality, "unknown personality")
	ErrUnknownDateType           = New(CodeUnknownDateType, "unknown date type")
	ErrUnknownVenue              = New(CodeUnknownVenue, "unknown venue")
	ErrUnknownCurrency           = New(CodeUnknownCurrency, "unknown currency")
	ErrInvalidMessage            = New(CodeInvalidMessage, "invalid message")
	ErrInvalidAmount             = New(CodeInvalidAmount, "invalid amount")
	ErrNotInvitee                = New(CodeNotInvitee, "responder is not the invitee")
	ErrInvalidArgument           = New(CodeInvalidArgument, "invalid argument")
	ErrAgentUnavailable          = New(CodeAgentUnavailable, "agent unavailable")
	ErrDuplicateActiveInvitation = New(CodeDuplicateActiveInvitation, "an active invitation already exists for this pair")
	ErrNotPending                = New(CodeNotPending, "invitation already responded or expired")
	ErrAlreadyResolved           = New(CodeAlreadyResolved, "invitation already resolved")
	ErrInvitationNotFound        = New(CodeInvitationNotFound, "invitation not found")
	ErrAgentNotFound             = New(CodeAgentNotFound, "agent not found")
	ErrInsufficientBalance       = New(CodeInsufficientBalance, "insufficient balance")
	ErrStoreUnavailable          = New(CodeStoreUnavailable, "store unavailable")
	ErrDialogueUnavailable       = New(CodeDialogueUnavailable, "dialogue generator unavailable")
	ErrRegistryUnavailable       = New(CodeRegistryUnavailable, "agent registry unavailable")
)

// CodeOf extracts the code from err, or CodeUnknown.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// KindOf extracts the kind from err, or KindUnknown.
func KindOf(err error) Kind {
	return CodeOf(err).Kind()
}

// Store lifts an infrastructure error into STORE_UNAVAILABLE unless it
// already carries a domain code.
func Store(message string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return Wrap(CodeStoreUnavailable, message, err)
}
