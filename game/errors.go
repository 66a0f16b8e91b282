package game

import (
	"errors"
	"fmt"
)

// Kind classifies a rejected operation so the caller can render a
// specific message rather than a generic failure.
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindNotAuthorized     Kind = "not_authorized"
	KindNotAMember        Kind = "not_a_member"
	KindNameTaken         Kind = "name_taken"
	KindSessionFull       Kind = "session_full"
	KindInvalidLetter     Kind = "invalid_letter"
	KindLetterUsed        Kind = "letter_used"
	KindAlphabetExhausted Kind = "alphabet_exhausted"
	KindInvalidState      Kind = "invalid_state"
	KindInvalidName       Kind = "invalid_name"
	KindInvalidCategory   Kind = "invalid_category"
	KindCodeExhausted     Kind = "code_exhausted"
	KindStoreUnavailable  Kind = "store_unavailable"
)

// Error is a typed domain error: a kind plus the offending field or
// name. Store failures additionally wrap their cause.
type Error struct {
	Kind  Kind
	Field string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Field, e.cause)
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Field)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.cause }

func newError(kind Kind, field string) *Error {
	return &Error{Kind: kind, Field: field}
}

func storeError(err error) *Error {
	return &Error{Kind: KindStoreUnavailable, Field: "store", cause: err}
}

// KindOf extracts the error's kind, or "" for nil and foreign errors.
func KindOf(err error) Kind {
	var domain *Error
	if errors.As(err, &domain) {
		return domain.Kind
	}
	return ""
}

// Message renders a user-facing description for each kind.
func Message(err error) string {
	switch KindOf(err) {
	case KindNotFound:
		return "Session not found."
	case KindNotAuthorized:
		return "Only the host can do that."
	case KindNotAMember:
		return "That player is not in the session."
	case KindNameTaken:
		return "That name is already taken."
	case KindSessionFull:
		return "The session is full."
	case KindInvalidLetter:
		return "The letter must be a single character from A to Z."
	case KindLetterUsed:
		return "That letter has already been used."
	case KindAlphabetExhausted:
		return "Every letter has been used."
	case KindInvalidState:
		return "That is not possible right now."
	case KindInvalidName:
		return "Please pick a valid name."
	case KindInvalidCategory:
		return "Categories must be distinct, non-empty, and at most ten."
	case KindCodeExhausted:
		return "No free session code available. Please try again."
	case KindStoreUnavailable:
		return "The session store is unavailable. Please try again."
	default:
		return "Something went wrong."
	}
}
