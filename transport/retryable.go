// Package transport provides the default core.Transport implementation,
// built on hashicorp/go-retryablehttp with its own retry disabled —
// retry policy belongs to the Manager (spec.md §4.5/§4.6), not the
// transport.
package transport

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/ltyfantasy/goapn/core"
)

// RetryableHTTPTransport wraps a *retryablehttp.Client configured with
// RetryMax: 0, so every call is a single attempt as far as the HTTP
// layer is concerned.
type RetryableHTTPTransport struct {
	client *retryablehttp.Client
}

// New constructs a RetryableHTTPTransport whose underlying
// *http.Client.Timeout is set from sendTimeout+recvTimeout combined
// (the net/http client timeout covers the whole round trip, unlike
// connect/send/recv split timeouts, so we use the widest bound).
func New(connectTimeout, sendTimeout, recvTimeout time.Duration) *RetryableHTTPTransport {
	c := retryablehttp.NewClient()
	c.RetryMax = 0
	c.Logger = nil
	c.HTTPClient.Timeout = sendTimeout + recvTimeout
	if dialer, ok := c.HTTPClient.Transport.(*http.Transport); ok {
		dialer.TLSHandshakeTimeout = connectTimeout
	}
	return &RetryableHTTPTransport{client: c}
}

// NewFactory adapts New to registry.TransportFactory's signature.
// baseURL is currently unused by the transport itself (core.Request
// already carries the full effective URL); it is accepted so the
// factory signature stays uniform across possible future transports
// that do need it (e.g. one that validates the host up front).
func NewFactory() func(baseURL string, connectTimeout, sendTimeout, recvTimeout time.Duration) core.Transport {
	return func(_ string, connectTimeout, sendTimeout, recvTimeout time.Duration) core.Transport {
		return New(connectTimeout, sendTimeout, recvTimeout)
	}
}

// Do issues req through the retryable client and returns the response
// together with its fully-read, closed body.
func (t *RetryableHTTPTransport) Do(ctx context.Context, req *http.Request) (*http.Response, []byte, error) {
	rreq, err := retryablehttp.NewRequestWithContext(ctx, req.Method, req.URL.String(), req.Body)
	if err != nil {
		return nil, nil, err
	}
	rreq.Header = req.Header

	resp, err := t.client.Do(rreq)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, nil, err
	}
	return resp, body, nil
}
