package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrUnauthorizedSolver = errors.New("unauthorized solver")
	ErrUnauthorizedVenue  = errors.New("unauthorized venue")

	ErrPolicyNotFound = errors.New("policy not found")
	ErrInvalidBounds  = errors.New("invalid bounds")

	ErrIntentExpired        = errors.New("intent expired")
	ErrInvalidSignature     = errors.New("invalid signature")
	ErrQuotedAmountTooLow   = errors.New("quoted amount below intent minimum")
	ErrVenueMismatch        = errors.New("venue params do not match intent pair")
	ErrUnsupportedAssetFlow = errors.New("unsupported asset flow")

	ErrAlreadySettled       = errors.New("intent already settled")
	ErrReentrantCall        = errors.New("reentrant settlement call")
	ErrVenueCallbackMissing = errors.New("venue returned without invoking callback")
)

// PolicyRejectedError carries the reason code the constraint engine refused
// a settlement with.
type PolicyRejectedError struct {
	Reason ReasonCode
}

func (e *PolicyRejectedError) Error() string {
	return fmt.Sprintf("policy rejected: %s", e.Reason)
}

func IsPolicyRejected(err error) (ReasonCode, bool) {
	var pe *PolicyRejectedError
	if errors.As(err, &pe) {
		return pe.Reason, true
	}
	return "", false
}
