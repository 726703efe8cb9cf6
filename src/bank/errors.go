package bank

import (
	"errors"
	"fmt"
)

var (
	// ErrRemoteUnavailable covers network and HTTP failures talking to the bank.
	// It is retryable; the engine skips the affected account and carries on.
	ErrRemoteUnavailable = errors.New("remote bank unavailable")

	// ErrTokenExpired is returned when the bank rejects the access token. The
	// caller refreshes once and retries; a second rejection surfaces as
	// ErrRemoteUnavailable.
	ErrTokenExpired = errors.New("remote bank token expired")

	// ErrNotConnected means no credentials have been stored for the provider.
	ErrNotConnected = errors.New("bank not connected")
)

type RemoteError struct {
	Op     string
	Status int
	Err    error
}

func (e *RemoteError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

func (e *RemoteError) Is(target error) bool {
	return target == ErrRemoteUnavailable
}

func Unavailable(op string, status int, err error) error {
	if err == nil {
		err = ErrRemoteUnavailable
	}
	return &RemoteError{Op: op, Status: status, Err: err}
}

// PartialListError is returned by ListAccounts together with the accounts that
// could be listed when some group of accounts (a linked item, a login) could
// not. Personal and Business say which side the unreachable accounts belong
// to, so the caller can hold back cleanup for it.
type PartialListError struct {
	Personal bool
	Business bool
	Err      error
}

func (e *PartialListError) Error() string {
	return fmt.Sprintf("some accounts could not be listed: %v", e.Err)
}

func (e *PartialListError) Unwrap() error {
	return e.Err
}
