package discordapi

import (
	"net/http"
	"time"
)

// authTransport injects the bot's Authorization header on every request,
// so the rest of the core can build a shared *http.Client once at startup
// without threading the token through every call site.
type authTransport struct {
	token string
	base  http.RoundTripper
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	cloned := req.Clone(req.Context())
	cloned.Header.Set("Authorization", "Bot "+t.token)
	return t.base.RoundTrip(cloned)
}

// NewHTTPClient builds the single shared *http.Client used by every
// component that talks to the upstream REST API, bound to a per-request
// timeout.
func NewHTTPClient(botToken string, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: &authTransport{token: botToken, base: http.DefaultTransport},
	}
}
