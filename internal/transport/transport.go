// Package transport builds the outbound HTTP transports used to reach the store.
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
// TLS FINGERPRINT TRANSPORT
// =============================================================================
//
// Hosted WordPress stores usually sit behind a CDN that fingerprints TLS
// clients. Go's standard handshake gets throttled long before a browser
// would, and a catalog page issues one request per variation.
//
// With Fingerprint set, HTTPS requests go through uTLS with HelloChrome_Auto.
// ALPN decides between HTTP/2 (x/net/http2 framing) and HTTP/1.1. Plain HTTP
// requests skip TLS entirely and use the standard transport.
// =============================================================================

// Options configures New.
type Options struct {
	Timeout time.Duration
	// Fingerprint presents Chrome's TLS fingerprint on HTTPS connections.
	Fingerprint bool
	// UserAgent is set on requests that carry none.
	UserAgent string
}

// New returns the round tripper described by opts.
func New(opts Options) http.RoundTripper {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	dialer := &net.Dialer{Timeout: timeout}

	plain := http.DefaultTransport.(*http.Transport).Clone()
	plain.DialContext = dialer.DialContext

	var rt http.RoundTripper = plain
	if opts.Fingerprint {
		rt = &chromeTransport{
			h2: &http2.Transport{
				DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
					return dialChromeTLS(ctx, dialer, network, addr)
				},
			},
			h1: &http.Transport{
				DialContext: dialer.DialContext,
				DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
					return dialChromeTLS(ctx, dialer, network, addr)
				},
				ForceAttemptHTTP2: false,
			},
		}
	}

	if opts.UserAgent == "" {
		return rt
	}
	return &userAgentTransport{next: rt, userAgent: opts.UserAgent}
}

// chromeTransport wraps HTTP/2 and HTTP/1.1 transports with Chrome TLS fingerprint.
type chromeTransport struct {
	h2 *http2.Transport
	h1 *http.Transport
}

// RoundTrip tries HTTP/2 for https URLs and falls back to HTTP/1.1.
func (t *chromeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return t.h1.RoundTrip(req)
	}

	resp, err := t.h2.RoundTrip(req)
	if err == nil {
		return resp, nil
	}
	// Request bodies are consumed by the failed attempt; only retry when the
	// body can be replayed.
	if req.Body != nil && req.GetBody == nil {
		return nil, err
	}
	retry := req
	if req.GetBody != nil {
		body, gerr := req.GetBody()
		if gerr != nil {
			return nil, err
		}
		retry = req.Clone(req.Context())
		retry.Body = body
	}
	return t.h1.RoundTrip(retry)
}

// dialChromeTLS establishes a TLS connection with Chrome's fingerprint.
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

// userAgentTransport sets a default User-Agent.
type userAgentTransport struct {
	next      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.next.RoundTrip(req)
	}
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", t.userAgent)
	return t.next.RoundTrip(r)
}
