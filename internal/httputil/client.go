package httputil

import (
	"net/http"
	"time"
)

const (
	DefaultTimeout = 10 * time.Second
	UserAgent      = "aqiserve-client/1"
)

// NewClient returns an HTTP client with standard timeout configuration that
// identifies itself to the prediction service.
func NewClient() *http.Client {
	return &http.Client{
		Timeout:   DefaultTimeout,
		Transport: userAgentTransport{base: http.DefaultTransport},
	}
}

type userAgentTransport struct {
	base http.RoundTripper
}

func (t userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", UserAgent)
	return t.base.RoundTrip(req)
}
