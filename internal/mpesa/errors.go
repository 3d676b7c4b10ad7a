package mpesa

import (
	"errors"
	"fmt"
)

// errCodeProcessing is returned by the status query while the payer has not answered the prompt.
const errCodeProcessing = "500.001.1001"

// AuthError means no access token could be obtained.
type AuthError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mpesa auth: %v", e.Err)
	}

	return fmt.Sprintf("mpesa auth: status %d: %s", e.StatusCode, e.Message)
}

func (e *AuthError) Unwrap() error { return e.Err }

// RequestError covers transport failures, timeouts and non-2xx answers.
type RequestError struct {
	Op         string
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mpesa %s: %v", e.Op, e.Err)
	}

	return fmt.Sprintf("mpesa %s: status %d: %s %s", e.Op, e.StatusCode, e.Code, e.Message)
}

func (e *RequestError) Unwrap() error { return e.Err }

// ResponseError is a 2xx answer that lacks the fields the caller needs.
type ResponseError struct {
	Op      string
	Message string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("mpesa %s: unexpected response: %s", e.Op, e.Message)
}

// IsStillProcessing reports whether a status query failed only because the payer has not yet
// acted on the prompt.
func IsStillProcessing(err error) bool {
	var reqErr *RequestError

	return errors.As(err, &reqErr) && reqErr.Code == errCodeProcessing
}
