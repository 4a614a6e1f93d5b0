// Package apperrors defines the typed errors returned by the loyalty services.
//
// Every error carries a Kind that tells the caller whether it may retry and how
// it maps onto an HTTP status. Sentinel values are matched with errors.Is on
// their Code, so wrapped variants with extra context still compare equal.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error by how the caller should react to it
type Kind int

const (
	// KindUnknown is reported for errors that did not originate here
	KindUnknown Kind = iota
	// KindValidation means the input was rejected before any mutation
	KindValidation
	// KindNotFound means a referenced record does not exist
	KindNotFound
	// KindConflict means current state forbids the operation; retrying as-is will not help
	KindConflict
	// KindTransient means storage or network trouble; retry with an idempotency key
	KindTransient
	// KindFatal means a programming or configuration error operators must fix
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is an application error with a stable machine-readable code
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying cause, if any
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinel errors
var (
	ErrInvalidAmount   = &Error{Kind: KindValidation, Code: "invalid_amount", Message: "amount must be a finite, non-negative number"}
	ErrInvalidInput    = &Error{Kind: KindValidation, Code: "invalid_input", Message: "invalid input"}
	ErrUnknownAction   = &Error{Kind: KindValidation, Code: "unknown_action", Message: "no earning rule for action"}
	ErrAccountNotFound = &Error{Kind: KindNotFound, Code: "account_not_found", Message: "account not found"}

	ErrRewardNotFound     = &Error{Kind: KindNotFound, Code: "reward_not_found", Message: "reward not found"}
	ErrRedemptionNotFound = &Error{Kind: KindNotFound, Code: "redemption_not_found", Message: "redemption not found"}
	ErrReferralNotFound   = &Error{Kind: KindNotFound, Code: "referral_not_found", Message: "referral not found"}

	ErrInsufficientPoints = &Error{Kind: KindConflict, Code: "insufficient_points", Message: "insufficient points"}
	ErrRewardUnavailable  = &Error{Kind: KindConflict, Code: "reward_unavailable", Message: "reward is not available"}
	ErrTierIneligible     = &Error{Kind: KindConflict, Code: "tier_ineligible", Message: "account tier is not eligible for this reward"}
	ErrInvalidTransition  = &Error{Kind: KindConflict, Code: "invalid_transition", Message: "invalid referral status transition"}
	ErrDuplicateReferral  = &Error{Kind: KindConflict, Code: "duplicate_referral", Message: "referral already exists for this email"}
	ErrAlreadyRewarded    = &Error{Kind: KindConflict, Code: "already_rewarded", Message: "referral has already been rewarded"}
	ErrAlreadyReversed    = &Error{Kind: KindConflict, Code: "already_reversed", Message: "redemption has already been reversed"}

	ErrStorage         = &Error{Kind: KindTransient, Code: "storage_unavailable", Message: "storage error"}
	ErrCodeSpace       = &Error{Kind: KindTransient, Code: "code_generation_failed", Message: "could not generate a unique code"}
	ErrUnknownTier     = &Error{Kind: KindFatal, Code: "unknown_tier", Message: "tier is not defined in the tier table"}
	ErrUnknownCategory = &Error{Kind: KindFatal, Code: "unknown_category", Message: "unknown reward category"}
	ErrImmutable       = &Error{Kind: KindFatal, Code: "immutable_record", Message: "record is immutable"}
)

// Wrap returns a copy of base with a more specific message
func Wrap(base *Error, format string, args ...interface{}) error {
	return &Error{
		Kind:    base.Kind,
		Code:    base.Code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Validation builds an ad hoc validation error
func Validation(format string, args ...interface{}) error {
	return Wrap(ErrInvalidInput, format, args...)
}

// Transient marks a storage or network failure as retryable
func Transient(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}
	return &Error{
		Kind:    KindTransient,
		Code:    ErrStorage.Code,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// KindOf returns the kind of err, or KindUnknown
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

// CodeOf returns the code of err, or "internal_error"
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "internal_error"
}

// IsRetryable reports whether err may succeed when retried with the same idempotency key
func IsRetryable(err error) bool {
	k := KindOf(err)
	return k == KindTransient || k == KindUnknown
}

// HTTPStatus maps err onto a response status code
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
