package subscription

import "errors"

// The closed set of failures the workflow reports. Callers branch on these
// with errors.Is; the wrapped detail is for diagnostics only and never
// crosses the HTTP boundary.
var (
	// ErrInvalidInput: the submitted name or email failed validation. No
	// side effect has occurred.
	ErrInvalidInput = errors.New("invalid subscription input")
	// ErrUnknownToken: the confirmation token was never issued.
	ErrUnknownToken = errors.New("unknown subscription token")
	// ErrStoreUnavailable: a transaction could not be acquired.
	ErrStoreUnavailable = errors.New("subscription store unavailable")
	// ErrPersistenceFailed: a store write failed; any open transaction was
	// rolled back.
	ErrPersistenceFailed = errors.New("subscription persistence failed")
	// ErrNotificationFailed: the confirmation email could not be sent. The
	// subscriber is durably pending and its token stays valid.
	ErrNotificationFailed = errors.New("confirmation notification failed")
)
