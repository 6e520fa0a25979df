package recharge

import (
	"errors"
	"fmt"
)

// Domain errors. All are recoverable by the caller: a failed operation
// leaves the ledger untouched and reports which corrective action applies.
var (
	// ErrPreconditionFailed means the request's current status no longer
	// satisfies the operation's guard: the row already moved past the
	// expected state (raced by another actor, retried, or terminal).
	ErrPreconditionFailed = errors.New("precondition failed")
	// ErrIllegalTransition means the requested status move is absent from
	// the transition table for a live row: the operation itself is out of
	// order, not merely late.
	ErrIllegalTransition = errors.New("illegal status transition")
	// ErrInvalidAccountSelection means the chosen CT account is inactive or
	// belongs to a different payment method than the request.
	ErrInvalidAccountSelection = errors.New("invalid account selection")
	// ErrProofRequired means verification was attempted without a payment
	// proof on file.
	ErrProofRequired = errors.New("payment proof required")
	// ErrInvalidAmount means a non-positive amount was supplied.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrRoleNotAllowed means the acting role may not invoke the operation.
	ErrRoleNotAllowed = errors.New("role not allowed")
)

// TransitionError describes an out-of-order move on one status dimension.
type TransitionError struct {
	Dimension string
	From      string
	To        string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s not allowed", e.Dimension, e.From, e.To)
}

// Is reports whether the error is an illegal transition. Guards that
// detect a row already past the expected state return ErrPreconditionFailed
// instead, so the two families stay disjoint.
func (e *TransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}

// preconditionError marks a guard failure where the row has already moved
// past the state the operation expects.
func preconditionError(dimension, current string) error {
	return fmt.Errorf("%s is already %s: %w", dimension, current, ErrPreconditionFailed)
}
