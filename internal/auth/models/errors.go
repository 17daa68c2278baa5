package models

import "fmt"

// InvalidStateError is returned by the callback when no pending transaction
// exists, the state does not match, or the transaction is stale.
type InvalidStateError struct {
	Reason string
}

func (e *InvalidStateError) Error() string {
	return "invalid authorization state: " + e.Reason
}

// AuthenticationError is a terminal failure of a login attempt.
// Code is the provider-supplied error code when one is available and is
// what callers resolve through the message catalog.
type AuthenticationError struct {
	Code string
	Err  error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed (%s): %v", e.Code, e.Err)
	}
	return "authentication failed (" + e.Code + ")"
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// Error codes produced locally rather than by the IdP.
const (
	ErrorCodeGeneral            = "GENERAL_ERROR"
	ErrorCodeInvalidToken       = "INVALID_TOKEN"
	ErrorCodeMissingCredentials = "MISSING_CREDENTIALS"
)
