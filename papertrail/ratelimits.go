package papertrail

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const (
	headerRateLimitLimit     = "X-Rate-Limit-Limit"
	headerRateLimitRemaining = "X-Rate-Limit-Remaining"
	headerRateLimitReset     = "X-Rate-Limit-Reset"
)

// RateLimits is the request budget Papertrail reported on the latest response.
type RateLimits struct {
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`
	// Reset is the number of seconds until the budget is replenished.
	Reset      int       `json:"reset"`
	ObservedAt time.Time `json:"observed_at"`
}

// ResetAt is the wall-clock time the budget is replenished.
func (r RateLimits) ResetAt() time.Time {
	return r.ObservedAt.Add(time.Duration(r.Reset) * time.Second)
}

// ParseRateLimitHeaders reads the three X-Rate-Limit headers. All three must
// be present and integral.
func ParseRateLimitHeaders(headers http.Header) (RateLimits, error) {
	limit, err := intHeader(headers, headerRateLimitLimit)
	if err != nil {
		return RateLimits{}, err
	}
	remaining, err := intHeader(headers, headerRateLimitRemaining)
	if err != nil {
		return RateLimits{}, err
	}
	reset, err := intHeader(headers, headerRateLimitReset)
	if err != nil {
		return RateLimits{}, err
	}
	return RateLimits{
		Limit:      limit,
		Remaining:  remaining,
		Reset:      reset,
		ObservedAt: now(),
	}, nil
}

func intHeader(headers http.Header, key string) (int, error) {
	val := headers.Get(key)
	if val == "" {
		return 0, fmt.Errorf("%w: missing header %s", ErrInvalidResponse, key)
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("%w: header %s: %v", ErrInvalidResponse, key, err)
	}
	return n, nil
}

func hasRateLimitHeaders(headers http.Header) bool {
	return headers.Get(headerRateLimitLimit) != "" ||
		headers.Get(headerRateLimitRemaining) != "" ||
		headers.Get(headerRateLimitReset) != ""
}
