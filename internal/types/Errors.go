/*

This file defines the error taxonomy shared by the risk manager and the
rebalancing engine. Failures carry a class so operators can distinguish
"retry later" (timing) from "fix configuration" (validation) from hard
rejections (authorization, state guards).

*/

package types

import "errors"

// ErrorClass buckets user-visible failures.
type ErrorClass string

const (
	ClassAuthorization ErrorClass = "authorization"
	ClassStateGuard    ErrorClass = "state_guard"
	ClassTiming        ErrorClass = "timing"
	ClassValidation    ErrorClass = "validation"
	ClassArithmetic    ErrorClass = "arithmetic"
	ClassExecution     ErrorClass = "execution"
	ClassInternal      ErrorClass = "internal"
)

// Authorization errors. Always checked first in any mutating call and never
// retried automatically.
var (
	ErrNotOwner  = errors.New("caller is not the owner")
	ErrNotKeeper = errors.New("caller is not an authorized keeper")
)

// State-guard errors. Deterministic; the caller must wait for an operator
// action or the next eligible window.
var (
	ErrPaused               = errors.New("engine is paused")
	ErrEmergencyMode        = errors.New("engine is in emergency mode")
	ErrCircuitBreakerActive = errors.New("circuit breaker is active")
	ErrReentrancy           = errors.New("reentrant call rejected")
)

// Timing errors. Retryable by the caller after the window passes.
var (
	ErrCooldownActive          = errors.New("rebalancing cooldown has not elapsed")
	ErrDeviationBelowThreshold = errors.New("delta deviation below execution threshold")
)

// Validation errors. Rejected atomically before any state mutation.
var (
	ErrInvalidParameter = errors.New("parameter out of bounds")
	ErrNegativeAmount   = errors.New("amount cannot be negative")
)

// Arithmetic errors. Fatal for the current call; never silently saturated
// when the value is money.
var ErrArithmeticOverflow = errors.New("arithmetic overflow")

// Execution errors. The only class allowed to leave partial, forward-only
// state changes behind.
var (
	ErrExecutionFailed = errors.New("venue execution failed")
	ErrStalePrice      = errors.New("price data is stale")
)

// Classify maps an error to its class for logging and API responses.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotOwner), errors.Is(err, ErrNotKeeper):
		return ClassAuthorization
	case errors.Is(err, ErrPaused), errors.Is(err, ErrEmergencyMode),
		errors.Is(err, ErrCircuitBreakerActive), errors.Is(err, ErrReentrancy):
		return ClassStateGuard
	case errors.Is(err, ErrCooldownActive), errors.Is(err, ErrDeviationBelowThreshold):
		return ClassTiming
	case errors.Is(err, ErrInvalidParameter), errors.Is(err, ErrNegativeAmount):
		return ClassValidation
	case errors.Is(err, ErrArithmeticOverflow):
		return ClassArithmetic
	case errors.Is(err, ErrExecutionFailed), errors.Is(err, ErrStalePrice):
		return ClassExecution
	default:
		return ClassInternal
	}
}
