package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error taxonomy. Every error returned by the Client matches exactly one of
// these with errors.Is.
var (
	// ErrCSRFUnavailable is returned when no CSRF token could be obtained
	// before a mutating request. The request is never sent.
	ErrCSRFUnavailable = errors.New("csrf token unavailable")

	// ErrCSRFInvalid is returned when the backend rejected the CSRF token
	// again after the single refresh-and-retry.
	ErrCSRFInvalid = errors.New("invalid csrf token")

	// ErrSessionExpired is returned when the session could not be recovered.
	// The session has already been cleared when the caller sees it.
	ErrSessionExpired = errors.New("session expired")

	// ErrAuthenticationRejected is returned when the backend rejects login
	// or refresh credentials. The session is left untouched.
	ErrAuthenticationRejected = errors.New("authentication rejected")

	// ErrNetwork is returned when the backend could not be reached.
	ErrNetwork = errors.New("network error")

	// ErrServer is returned for 5xx responses.
	ErrServer = errors.New("server error")

	// ErrRequest is returned for any other non-2xx response.
	ErrRequest = errors.New("request failed")

	// ErrInvalidInput is returned when a typed call is refused before any
	// request is made.
	ErrInvalidInput = errors.New("invalid input")
)

// csrfRejectedMessage is the body error the backend uses to signal a stale
// or missing CSRF token on a 403.
const csrfRejectedMessage = "Invalid CSRF token"

// ResponseError describes a non-2xx backend response.
type ResponseError struct {
	StatusCode int
	Message    string
	Body       []byte

	kind error
}

func (e *ResponseError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%v: status %d", e.kind, e.StatusCode)
	}
	return fmt.Sprintf("%v: status %d: %s", e.kind, e.StatusCode, e.Message)
}

func (e *ResponseError) Unwrap() error {
	return e.kind
}

// errorBody covers the error shapes the backend emits.
type errorBody struct {
	Error   string `json:"error"`
	Erro    string `json:"erro"`
	Message string `json:"message"`
}

func parseErrorBody(body []byte) errorBody {
	var eb errorBody
	_ = json.Unmarshal(body, &eb)
	return eb
}

func (eb errorBody) text() string {
	switch {
	case eb.Erro != "":
		return eb.Erro
	case eb.Error != "":
		return eb.Error
	default:
		return eb.Message
	}
}

func newResponseError(kind error, status int, body []byte) *ResponseError {
	return &ResponseError{
		StatusCode: status,
		Message:    parseErrorBody(body).text(),
		Body:       body,
		kind:       kind,
	}
}

// isCSRFRejection reports whether a response is the backend's CSRF failure
// signal: a 403 whose error field is exactly csrfRejectedMessage.
func isCSRFRejection(status int, body []byte) bool {
	return status == http.StatusForbidden && parseErrorBody(body).Error == csrfRejectedMessage
}

// UserMessage maps an error to the message shown to an end user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var respErr *ResponseError
	hasResp := errors.As(err, &respErr)

	switch {
	case errors.Is(err, ErrCSRFInvalid), errors.Is(err, ErrCSRFUnavailable):
		return "A security problem was detected. Reload and try again."
	case errors.Is(err, ErrSessionExpired):
		return "Session expired. Redirecting to login..."
	case errors.Is(err, ErrAuthenticationRejected):
		if hasResp && respErr.Message != "" {
			return respErr.Message
		}
		return "Invalid email or password."
	case errors.Is(err, ErrNetwork):
		return "No response from the server. Check your connection."
	case errors.Is(err, ErrServer):
		return "Server error. Try again later."
	case hasResp && respErr.Message != "":
		return respErr.Message
	default:
		return err.Error()
	}
}
