package backend

import (
	"net/http"

	"github.com/lydakis/llmcmd/internal/httpheaders"
)

const userAgent = "llmcmd"

// headerTransport adds the configured extra headers to every provider call.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	httpheaders.Apply(clone.Header, t.headers, false)
	if clone.Header.Get("User-Agent") == "" {
		clone.Header.Set("User-Agent", userAgent)
	}
	return t.base.RoundTrip(clone)
}
