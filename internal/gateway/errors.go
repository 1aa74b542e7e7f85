// Package gateway is the single HTTP entry point to the despacho API. It
// attaches bearer credentials, coordinates token refresh across concurrent
// callers, and normalizes every failure into one error channel.
package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, gateway.ErrForbidden) to check.
var (
	ErrBadRequest   = errors.New("gateway: bad request")
	ErrUnauthorized = errors.New("gateway: unauthorized")
	ErrForbidden    = errors.New("gateway: forbidden")
	ErrNotFound     = errors.New("gateway: not found")
	ErrConflict     = errors.New("gateway: conflict")
	ErrServerError  = errors.New("gateway: server error")
)

// ErrSessionExpired is terminal: the access token was rejected and no new
// one could be obtained. Credentials are already cleared when it is returned.
var ErrSessionExpired = errors.New("session expired, sign in again")

// ErrUnreachable means no HTTP response was received at all.
var ErrUnreachable = errors.New("cannot reach server")

// permissionDenialPhrase is what the backend puts in error bodies when a role
// lacks a capability, independent of the status code it picks.
const permissionDenialPhrase = "No tiene los permisos"

// APIError is a non-2xx response. Message is the server's "message" field
// when present, otherwise the status line.
type APIError struct {
	StatusCode int
	RequestID  string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("gateway: HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, e.Message)
	}

	return fmt.Sprintf("gateway: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for codes without a dedicated sentinel.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// Class groups failures by how callers should react to them.
type Class int

const (
	// ClassNone is the class of a nil error.
	ClassNone Class = iota
	// ClassExpected covers authorization denials and missing resources:
	// normal for non-privileged identities, degraded silently.
	ClassExpected
	// ClassSessionExpired means the session is gone; callers reset.
	ClassSessionExpired
	// ClassUnreachable is a transport failure.
	ClassUnreachable
	// ClassUnexpected is everything else: validation errors, server faults.
	ClassUnexpected
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassExpected:
		return "expected"
	case ClassSessionExpired:
		return "session_expired"
	case ClassUnreachable:
		return "unreachable"
	default:
		return "unexpected"
	}
}

// foldedDeny is the denial phrase in comparison form. Casers are stateful,
// so each comparison builds its own.
var foldedDeny = fold(permissionDenialPhrase)

func fold(s string) string {
	return cases.Fold().String(norm.NFC.String(s))
}

// expectedStatusMarkers are the status codes whose mention in an error
// message marks it as an expected denial.
var expectedStatusMarkers = []string{
	strconv.Itoa(http.StatusForbidden),
	strconv.Itoa(http.StatusNotFound),
	strconv.Itoa(http.StatusUnauthorized),
}

// Classify sorts err into a Class. Sentinels are checked first; the message
// text is scanned afterwards so errors that lost their wrapping (or came from
// a proxy with its own status mapping) still classify by content.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}

	switch {
	case errors.Is(err, ErrSessionExpired):
		return ClassSessionExpired
	case errors.Is(err, ErrUnreachable):
		return ClassUnreachable
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrNotFound), errors.Is(err, ErrUnauthorized):
		return ClassExpected
	}

	// API errors carry a request id, which must not be scanned for status
	// digits; only the server message counts.
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if containsDenial(apiErr.Message) {
			return ClassExpected
		}

		return ClassUnexpected
	}

	if containsDenial(err.Error()) {
		return ClassExpected
	}

	msg := err.Error()

	for _, marker := range expectedStatusMarkers {
		if strings.Contains(msg, marker) {
			return ClassExpected
		}
	}

	return ClassUnexpected
}

func containsDenial(msg string) bool {
	return strings.Contains(fold(msg), foldedDeny)
}

// IsExpected reports whether err is an authorization denial or a missing
// resource, i.e. a failure to degrade silently.
func IsExpected(err error) bool {
	return Classify(err) == ClassExpected
}

// UserMessage returns the text to show an end user for err. Expired sessions
// and transport failures get fixed texts; API errors surface the server's
// message verbatim.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrSessionExpired):
		return ErrSessionExpired.Error()
	case errors.Is(err, ErrUnreachable):
		return ErrUnreachable.Error()
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}

	return err.Error()
}
