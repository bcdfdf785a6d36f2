// Package graphql talks to the storefront's WPGraphQL endpoint through the
// same-origin proxy. Every request goes through the session interceptor.
package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"storefront-proxy/internal/interceptor"
	"storefront-proxy/internal/model"
)

const service = "GraphQL"

// Request is a GraphQL-over-HTTP POST body.
type Request struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
	OperationName string         `json:"operationName,omitempty"`
}

// Error is one entry of a response's `errors` array.
type Error struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

// Errors is a non-empty `errors` array.
type Errors []Error

func (e Errors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Message
	}
	return strings.Join(msgs, "; ")
}

// Client posts operations to a single GraphQL endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a client for endpoint. httpClient should carry the session
// interceptor as its transport.
func New(endpoint string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{endpoint: endpoint, httpClient: httpClient, logger: logger}
}

// Do sends req and returns the response's `data` member.
func (c *Client) Do(ctx context.Context, req Request) (json.RawMessage, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", req.OperationName, err)
	}

	ctx = interceptor.WithRequestInfo(ctx, interceptor.RequestInfo{
		Kind:      interceptor.KindGraphQL,
		Operation: req.OperationName,
	})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", req.OperationName, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			return nil, apiErr
		}
		return nil, model.NewUpstreamError(service, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", req.OperationName, err)
	}

	if !gjson.ValidBytes(body) {
		if resp.StatusCode >= 400 {
			return nil, model.NewUpstreamStatusError(service, resp.StatusCode, model.Truncate(string(body), 200))
		}
		return nil, model.NewMalformedUpstreamError(service, model.Truncate(string(body), 200))
	}

	doc := gjson.ParseBytes(body)
	if errs := doc.Get("errors"); errs.IsArray() && len(errs.Array()) > 0 {
		var gqlErrs Errors
		if err := json.Unmarshal([]byte(errs.Raw), &gqlErrs); err != nil {
			return nil, model.NewMalformedUpstreamError(service, model.Truncate(errs.Raw, 200))
		}
		c.logger.Warn("graphql errors",
			slog.String("operation", req.OperationName),
			slog.String("errors", gqlErrs.Error()),
		)
		return nil, model.NewUpstreamError(service, gqlErrs)
	}

	if resp.StatusCode >= 400 {
		return nil, model.NewUpstreamStatusError(service, resp.StatusCode, doc.Get("message").String())
	}

	data := doc.Get("data")
	if !data.Exists() {
		return json.RawMessage("null"), nil
	}
	return json.RawMessage(data.Raw), nil
}
