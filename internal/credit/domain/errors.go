package credit

import "errors"

var (
	// ErrInvalidStrategy indicates an unrecognized time-window strategy string.
	ErrInvalidStrategy = errors.New("invalid time window strategy")
	// ErrAccountNotFound indicates the account id does not resolve.
	ErrAccountNotFound = errors.New("account not found")
	// ErrNilAccount indicates a nil account was passed where one is required.
	ErrNilAccount = errors.New("nil account")
)
