package papertrail

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrMissingAPIToken    = errors.New("API token is required. Provide it or set PAPERTRAIL_API_TOKEN")
	ErrInvalidResponse    = errors.New("invalid server response")
	ErrInvalidParameter   = errors.New("invalid parameter")
	ErrNotFound           = errors.New("not found")
	ErrAlreadyDownloading = errors.New("already downloading")
	ErrUnknownDuration    = errors.New("unknown archive duration")
	ErrInvalidSnapshot    = errors.New("invalid snapshot")
)

// Kind names the API area an Error came from.
type Kind int

const (
	KindGeneric Kind = iota
	KindSystems
	KindGroups
	KindSavedSearches
	KindDestinations
	KindUsers
	KindUsage
	KindArchives
	KindQuery
)

func (k Kind) String() string {
	switch k {
	case KindSystems:
		return "systems"
	case KindGroups:
		return "groups"
	case KindSavedSearches:
		return "saved searches"
	case KindDestinations:
		return "destinations"
	case KindUsers:
		return "users"
	case KindUsage:
		return "usage"
	case KindArchives:
		return "archives"
	case KindQuery:
		return "query"
	default:
		return "papertrail"
	}
}

// Error is returned by every operation of this package. It wraps the
// underlying cause, so errors.Is works against the sentinels above and
// errors.As against *APIError.
type Error struct {
	Kind Kind
	Op   string
	// Path is the local file involved, set by archive downloads that got far
	// enough to create one.
	Path string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	b.WriteString(": ")
	b.WriteString(e.Op)
	if e.Path != "" {
		fmt.Fprintf(&b, " (%s)", e.Path)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func invalidParameter(kind Kind, op, msg string) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf("%w: %s", ErrInvalidParameter, msg)}
}

func notFound(kind Kind, op, msg string) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf("%w: %s", ErrNotFound, msg)}
}

// KindOf reports the API area of err, or KindGeneric when err did not come
// from this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindGeneric
}

// APIError represents a non-2xx response from the Papertrail API.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("papertrail api error (%d): %s", e.StatusCode, e.Message)
}

// Is lets errors.Is(err, ErrNotFound) match a 404 response.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

func newAPIError(status int, body []byte) *APIError {
	return &APIError{StatusCode: status, Message: extractMessage(status, body), Body: body}
}

func extractMessage(status int, body []byte) string {
	raw := strings.TrimSpace(string(body))
	if raw == "" {
		return fmt.Sprintf("HTTP %d", status)
	}
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err == nil {
		for _, key := range []string{"message", "error"} {
			if s, ok := parsed[key].(string); ok && s != "" {
				return s
			}
		}
	}
	if len(raw) > 512 {
		raw = raw[:512]
	}
	return raw
}
