package token

import (
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

// ExchangeError is a failed call to the token endpoint.
// HTTPStatus is zero when the request never produced a response
// (transport failure, cancellation, timeout).
type ExchangeError struct {
	HTTPStatus  int
	Body        []byte
	ErrorCode   string
	Description string
	Err         error
}

func (e *ExchangeError) Error() string {
	if e.HTTPStatus == 0 {
		return fmt.Sprintf("token exchange failed: %v", e.Err)
	}
	return fmt.Sprintf("token exchange failed: status %d (%s)", e.HTTPStatus, e.ErrorCode)
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// providerError is the error body the IdP returns from /token.
// error_code is the IdP-specific reason (e.g. a locked account);
// error is the RFC 6749 code.
type providerError struct {
	Error            string `json:"error"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
}

func toExchangeError(err error) *ExchangeError {
	var rErr *oauth2.RetrieveError
	if !errors.As(err, &rErr) {
		return &ExchangeError{Err: err}
	}

	out := &ExchangeError{
		Body:        rErr.Body,
		ErrorCode:   rErr.ErrorCode,
		Description: rErr.ErrorDescription,
		Err:         err,
	}
	if rErr.Response != nil {
		out.HTTPStatus = rErr.Response.StatusCode
	}

	var body providerError
	if json.Unmarshal(rErr.Body, &body) == nil {
		if body.ErrorCode != "" {
			out.ErrorCode = body.ErrorCode
		} else if out.ErrorCode == "" {
			out.ErrorCode = body.Error
		}
		if out.Description == "" {
			out.Description = body.ErrorDescription
		}
	}
	return out
}
