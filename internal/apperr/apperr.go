// Package apperr is the error taxonomy of the compliance core.
//
// Every outcome a caller can act on is an *Error with a Kind (how to react)
// and a Code (what happened). Anything that is not an *Error is an internal
// fault and is reported as a transient failure, never as a generic 500.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnavailable Kind = iota
	KindPolicyViolation
	KindValidation
	KindNotFound
	KindTenantMismatch
	KindConflict
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindPolicyViolation:
		return "policy_violation"
	case KindValidation:
		return "validation_error"
	case KindNotFound:
		return "not_found"
	case KindTenantMismatch:
		return "tenant_mismatch"
	case KindConflict:
		return "concurrency_conflict"
	case KindForbidden:
		return "forbidden"
	default:
		return "unavailable"
	}
}

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Code so a detailed error still satisfies errors.Is against
// the sentinel it was derived from.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code && e.Kind == t.Kind
}

// With returns a copy of e carrying a more specific message.
func (e *Error) With(msg string) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: msg, Err: e.Err}
}

// Wrap returns a copy of e that wraps cause.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message, Err: cause}
}

func New(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Code: "validation_error", Message: msg}
}

func NotFound(what string) *Error {
	return &Error{Kind: KindNotFound, Code: "not_found", Message: what + " not found"}
}

// KindOf classifies err. Unclassified errors are KindUnavailable.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnavailable
}

// Policy violations: the action was refused by tenant policy or member restrictions.
var (
	ErrMessagingRestricted     = New(KindPolicyViolation, "messaging_restricted", "messaging is disabled for this member")
	ErrDirectMessagingDisabled = New(KindPolicyViolation, "direct_messaging_disabled", "direct messaging is disabled for this community")
	ErrExchangeRequired        = New(KindPolicyViolation, "exchange_required", "an exchange request is required before messaging about this listing")
	ErrWorkflowDisabled        = New(KindPolicyViolation, "workflow_disabled", "exchange workflow is disabled, use direct messaging")
	ErrRiskTaggingDisabled     = New(KindPolicyViolation, "risk_tagging_disabled", "risk tagging is disabled for this community")
)

// State machine outcomes.
var (
	ErrInvalidTransition = New(KindConflict, "invalid_transition", "exchange is not in a state that allows this action")
	ErrDeadlinePassed    = New(KindConflict, "deadline_passed", "exchange deadline has passed")
	ErrAlreadyConfirmed  = New(KindConflict, "already_confirmed", "this party has already confirmed")
	ErrNotParticipant    = New(KindForbidden, "not_participant", "caller is not a party to this exchange")
)

var (
	ErrTenantMismatch      = New(KindTenantMismatch, "tenant_mismatch", "entities belong to different tenants")
	ErrConcurrencyConflict = New(KindConflict, "concurrency_conflict", "exchange was modified concurrently, retry")
)
