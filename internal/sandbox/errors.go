// Package sandbox executes agent-authored JavaScript against a fixed set
// of injected primitives. The code never receives filesystem, network or
// import capabilities; the only way it can touch patient data is through
// the primitives handed to it.
package sandbox

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the sandbox package.
var (
	// ErrViolation is returned when code references anything outside the
	// injected primitive namespace.
	ErrViolation = errors.New("sandbox violation")

	// ErrContract is returned when code does not satisfy the execution
	// contract: define analyze() and return a serializable object.
	ErrContract = errors.New("code contract violation")

	// ErrTimeout is returned when execution exceeds the wall-clock limit.
	ErrTimeout = errors.New("execution timeout")
)

// ViolationError reports an attempted escape from the primitive namespace.
type ViolationError struct {
	Detail string
}

// Error implements the error interface.
func (e *ViolationError) Error() string {
	return fmt.Sprintf("sandbox violation: %s", e.Detail)
}

// Is allows errors.Is to match against ErrViolation.
func (e *ViolationError) Is(target error) bool {
	return target == ErrViolation
}

// Unwrap returns the underlying sentinel error.
func (e *ViolationError) Unwrap() error {
	return ErrViolation
}

// ContractError reports code that does not meet the execution contract.
type ContractError struct {
	Reason string
}

// Error implements the error interface.
func (e *ContractError) Error() string {
	return fmt.Sprintf("code contract violation: %s", e.Reason)
}

// Is allows errors.Is to match against ErrContract.
func (e *ContractError) Is(target error) bool {
	return target == ErrContract
}

// Unwrap returns the underlying sentinel error.
func (e *ContractError) Unwrap() error {
	return ErrContract
}

// TimeoutError reports execution exceeding the wall-clock limit.
type TimeoutError struct {
	Limit time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("execution timed out after %s", e.Limit)
}

// Is allows errors.Is to match against ErrTimeout.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// Unwrap returns the underlying sentinel error.
func (e *TimeoutError) Unwrap() error {
	return ErrTimeout
}
