package papertrail

import (
	"net/http"
	"strings"

	"papertrail-manager/internal/constants"
)

// TokenTransport wraps a RoundTripper to add the Papertrail API token header.
// When Host is set the header is only sent to that host, so redirects to
// archive storage never see the token.
type TokenTransport struct {
	BaseTransport http.RoundTripper
	Token         string
	Host          string
}

// RoundTrip implements the RoundTripper interface to modify the request.
func (t *TokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid side effects
	reqClone := req.Clone(req.Context())

	if t.Host == "" || strings.EqualFold(reqClone.URL.Host, t.Host) {
		reqClone.Header.Set(constants.TokenHeader, t.Token)
	}
	if reqClone.Header.Get("User-Agent") == "" {
		reqClone.Header.Set("User-Agent", constants.UserAgent)
	}

	base := t.BaseTransport
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(reqClone)
}

// NewHTTPClientWithTokenTransport returns an http.Client that authenticates
// every request to host with token.
func NewHTTPClientWithTokenTransport(token, host string) *http.Client {
	return &http.Client{
		Transport: &TokenTransport{
			BaseTransport: http.DefaultTransport,
			Token:         token,
			Host:          host,
		},
	}
}
