// Package transport builds the HTTP clients used for upstream WordPress calls.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// =============================================================================
// UPSTREAM CLIENT
// =============================================================================
//
// Every upstream fetch runs with a "no credentials" policy: the client has no
// cookie jar, so cookies set for the storefront origin never reach the
// WordPress host and cookies the WordPress host sets are never replayed.
// Session state travels only in explicit headers.
//
// WordPress hosts commonly sit behind a CDN that rate-limits Go's TLS
// fingerprint. With ChromeTLS enabled, HTTPS connections present Chrome's
// ClientHello via uTLS and negotiate h2 or http/1.1 through ALPN.
//
// =============================================================================

// Options configures an upstream client.
type Options struct {
	Timeout   time.Duration
	ChromeTLS bool
}

// NewUpstreamClient returns a cookieless client for upstream calls.
func NewUpstreamClient(opts Options) *http.Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var rt http.RoundTripper = http.DefaultTransport
	if opts.ChromeTLS {
		rt = NewChromeTransport(timeout)
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: rt,
		Jar:       nil,
	}
}

// NewChromeTransport creates an http.RoundTripper that presents Chrome's TLS
// fingerprint on HTTPS connections. Plain HTTP requests (local WordPress,
// tests) go straight to the HTTP/1.1 transport.
func NewChromeTransport(timeout time.Duration) http.RoundTripper {
	dialer := &net.Dialer{Timeout: timeout}

	h2Transport := &http2.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			return dialChromeTLS(ctx, dialer, network, addr)
		},
	}

	h1Transport := &http.Transport{
		DialContext: dialer.DialContext,
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialChromeTLS(ctx, dialer, network, addr)
		},
		ForceAttemptHTTP2:   false,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
	}

	return &chromeTransport{
		h2: h2Transport,
		h1: h1Transport,
	}
}

type chromeTransport struct {
	h2 *http2.Transport
	h1 *http.Transport
}

// RoundTrip tries HTTP/2 for HTTPS and falls back to HTTP/1.1.
// The fallback only fires for bodiless requests or requests whose body can
// be replayed through GetBody.
func (t *chromeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return t.h1.RoundTrip(req)
	}

	resp, err := t.h2.RoundTrip(req)
	if err == nil {
		return resp, nil
	}

	if req.Body != nil && req.Body != http.NoBody {
		if req.GetBody == nil {
			return nil, fmt.Errorf("h2 round trip: %w", err)
		}
		body, berr := req.GetBody()
		if berr != nil {
			return nil, fmt.Errorf("h2 round trip: %w", err)
		}
		req = req.Clone(req.Context())
		req.Body = body
	}
	return t.h1.RoundTrip(req)
}

func dialChromeTLS(ctx context.Context, dialer *net.Dialer, network, addr string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	tlsConn := utls.UClient(conn, &utls.Config{ServerName: host}, utls.HelloChrome_Auto)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}

	return tlsConn, nil
}
