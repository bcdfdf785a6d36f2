// Package interceptor attaches session, nonce and bearer headers to outgoing
// cart requests and persists the tokens upstream responses hand back.
package interceptor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/tidwall/gjson"

	"storefront-proxy/internal/headers"
	"storefront-proxy/internal/model"
	"storefront-proxy/internal/session"
)

// Kind identifies which upstream API a request targets.
type Kind int

const (
	KindGraphQL Kind = iota
	KindStoreAPI
)

func (k Kind) String() string {
	if k == KindStoreAPI {
		return "storeapi"
	}
	return "graphql"
}

// OpCreateUser is the account-registration mutation. It must not carry the
// anonymous cart session or a previous customer's bearer token.
const OpCreateUser = "CreateUser"

// maxScanBody caps how much of a response is buffered for error detection.
const maxScanBody = 4 << 20

type requestInfoKey struct{}

// RequestInfo describes an outgoing request to the interceptor.
type RequestInfo struct {
	Kind      Kind
	Operation string
}

// WithRequestInfo returns a context carrying info for the interceptor.
func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// InfoFromContext returns the RequestInfo in ctx. Requests without one are
// treated as GraphQL requests with no operation name.
func InfoFromContext(ctx context.Context) RequestInfo {
	info, _ := ctx.Value(requestInfoKey{}).(RequestInfo)
	return info
}

// Transport is an http.RoundTripper wrapping every cart-related request.
// It keeps no per-request state of its own: each request reads whatever the
// token store last held and each response writes what it carried.
type Transport struct {
	Base   http.RoundTripper
	Store  *session.Store
	Logger *slog.Logger

	// OnInvalidSession runs after the stored session is cleared because the
	// backend rejected it. The cart store uses it to drop held state.
	OnInvalidSession func()
}

// New wraps base with session handling.
func New(base http.RoundTripper, store *session.Store, logger *slog.Logger) *Transport {
	return &Transport{Base: base, Store: store, Logger: logger}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	info := InfoFromContext(req.Context())

	out := req.Clone(req.Context())
	t.prepare(out, info)

	resp, err := t.base().RoundTrip(out)
	if err != nil {
		return nil, err
	}

	t.capture(resp.Header)

	if err := t.checkInvalidSession(resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// prepare attaches auth context to the outgoing request.
func (t *Transport) prepare(req *http.Request, info RequestInfo) {
	if info.Operation != OpCreateUser {
		if v := t.Store.SessionHeaderValue(); v != "" {
			req.Header.Set(headers.Session, v)
		}
		if auth, ok := t.Store.Auth(); ok {
			req.Header.Set(headers.Authorization, "Bearer "+auth.AuthToken)
		}
	}

	if info.Kind == KindStoreAPI {
		if n, ok := t.Store.Nonce(); ok {
			req.Header.Set(headers.Nonce, n.Value)
		}
	}

	t.logger().Debug("outgoing request",
		slog.String("kind", info.Kind.String()),
		slog.String("operation", info.Operation),
		slog.Bool("session", req.Header.Get(headers.Session) != ""),
		slog.Bool("nonce", req.Header.Get(headers.Nonce) != ""),
	)
}

// capture persists session and nonce values carried by a response.
func (t *Transport) capture(h http.Header) {
	if v := headers.Lookup(h, headers.SessionVariants...); v != "" {
		t.Store.SetSessionToken(v)
	} else if v := headers.SessionFromCookies(h); v != "" {
		t.logger().Debug("session taken from Set-Cookie")
		t.Store.SetSessionToken(v)
	}

	if v := headers.Lookup(h, headers.NonceVariants...); v != "" {
		t.Store.SetNonce(v)
	}
}

// checkInvalidSession scans a JSON body for the backend's invalid-session
// error. On a match the stored session is cleared before the error returns,
// so no later request can reuse the rejected token. Otherwise the body is
// restored for the caller.
func (t *Transport) checkInvalidSession(resp *http.Response) error {
	if resp.Body == nil || resp.Body == http.NoBody {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxScanBody))
	if err != nil {
		resp.Body.Close()
		return fmt.Errorf("reading response: %w", err)
	}
	if len(body) == maxScanBody {
		// Too large to be an error payload. Hand the whole body on unscanned.
		resp.Body = struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(body), resp.Body), resp.Body}
		return nil
	}
	resp.Body.Close()

	if message, ok := InvalidSessionError(body); ok {
		t.logger().Warn("backend rejected session, clearing token",
			slog.String("message", message),
		)
		t.Store.ClearSessionToken()
		if t.OnInvalidSession != nil {
			t.OnInvalidSession()
		}
		return model.NewInvalidSessionError(message)
	}

	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	return nil
}

// InvalidSessionError reports whether body is a GraphQL or Store API error
// payload rejecting the session header, returning the matched message.
func InvalidSessionError(body []byte) (string, bool) {
	if !gjson.ValidBytes(body) {
		return "", false
	}
	doc := gjson.ParseBytes(body)

	var found bool
	doc.Get("errors").ForEach(func(_, e gjson.Result) bool {
		found = e.Get("message").String() == headers.InvalidSessionMessage
		return !found
	})
	if found {
		return headers.InvalidSessionMessage, true
	}
	if msg := doc.Get("message"); msg.String() == headers.InvalidSessionMessage {
		return msg.String(), true
	}
	return "", false
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}
