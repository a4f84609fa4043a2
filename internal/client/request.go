package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync/atomic"
)

// CSRFHeader carries the anti-forgery token on mutating requests.
const CSRFHeader = "X-CSRF-Token"

// Paths that never carry a CSRF header, so authentication can bootstrap
// without one.
var csrfExcludedPaths = []string{
	"/csrf-token",
	"/auth/login",
	"/auth/refresh-token",
	"/auth/logout",
}

// Request describes one logical backend call. The body is held encoded so
// the request can be resubmitted unchanged.
type Request struct {
	Method      string
	Path        string
	Query       url.Values
	Header      http.Header
	Body        []byte
	ContentType string

	// retried is set once, before the single CSRF resubmission.
	retried atomic.Bool
	// csrfToken overrides the cached token on resubmission.
	csrfToken string
}

// RequestOption customises a Request built by the verb methods.
type RequestOption func(*Request)

// WithQuery sets the query string.
func WithQuery(q url.Values) RequestOption {
	return func(r *Request) {
		r.Query = q
	}
}

// WithHeader sets an extra request header.
func WithHeader(key, value string) RequestOption {
	return func(r *Request) {
		if r.Header == nil {
			r.Header = make(http.Header)
		}
		r.Header.Set(key, value)
	}
}

// NewRequest builds a Request, JSON encoding payload when it is not nil.
func NewRequest(method, path string, payload any, opts ...RequestOption) (*Request, error) {
	req := &Request{
		Method: strings.ToUpper(method),
		Path:   path,
	}

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		req.Body = data
		req.ContentType = "application/json"
	}

	for _, opt := range opts {
		opt(req)
	}

	return req, nil
}

// Retried reports whether the request has already been resubmitted.
func (r *Request) Retried() bool {
	return r.retried.Load()
}

// markRetried claims the single resubmission. It returns false if the
// request was already resubmitted.
func (r *Request) markRetried() bool {
	return r.retried.CompareAndSwap(false, true)
}

// IsMutating reports whether the method changes backend state.
func (r *Request) IsMutating() bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

// needsCSRF reports whether a CSRF header must be attached before sending.
func (r *Request) needsCSRF() bool {
	return r.IsMutating() && !isCSRFExcluded(r.Path)
}

func isCSRFExcluded(path string) bool {
	return slices.Contains(csrfExcludedPaths, normalizePath(path))
}

func isAuthPath(path string) bool {
	p := normalizePath(path)
	return p == "/auth/login" || p == "/auth/refresh-token"
}

func normalizePath(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	return "/" + strings.Trim(path, "/")
}
