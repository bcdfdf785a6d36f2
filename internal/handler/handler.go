// Package handler serves the same-origin proxy routes the storefront calls
// instead of talking to WordPress directly.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"storefront-proxy/internal/config"
	"storefront-proxy/internal/model"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	cfg    config.UpstreamConfig
	client *http.Client
	logger *slog.Logger
}

// New creates a Handler that forwards to the upstreams in cfg using client.
// The client must not carry a cookie jar; session state travels in headers.
func New(cfg config.UpstreamConfig, client *http.Client, logger *slog.Logger) *Handler {
	return &Handler{
		cfg:    cfg,
		client: client,
		logger: logger,
	}
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
// Method checks happen in the handlers so rejected methods get a JSON body.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/graphql", h.handleGraphQL)

	// The literal nonce route wins over the wildcard.
	mux.HandleFunc("/api/wc-store/nonce", h.handleNonce)
	mux.HandleFunc("/api/wc-store/{path...}", h.handleStoreAPI)

	mux.HandleFunc("/api/reset-session", h.handleResetSession)

	mux.HandleFunc("/api/products", h.handleProducts)
	mux.HandleFunc("/api/products/reviews", h.handleReviews)

	// Health check
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

// handleHealth returns a simple health check response.
// GET /health, GET /healthz
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

type healthResponse struct {
	Status string `json:"status"`
}

// === Response Helpers ===

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeRaw relays an upstream JSON body unchanged.
func (h *Handler) writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		h.logger.Debug("client went away", slog.String("error", err.Error()))
	}
}

// writeError sends an error response, extracting status from APIError if present.
// Uses errors.As() to unwrap error chains (e.g., fmt.Errorf wrapping).
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError

	if !errors.As(err, &apiErr) {
		h.logger.Error("internal error", slog.String("error", err.Error()))
		apiErr = model.NewInternalError(err)
	}

	h.writeJSON(w, apiErr.StatusCode, errorResponse{
		Error:   apiErr.Message,
		Details: apiErr.Details,
	})
}

// errorResponse is the JSON structure for error responses.
type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// MaxRequestBodySize limits forwarded request bodies to 1MB.
const MaxRequestBodySize = 1 << 20 // 1MB

// maxUpstreamBodySize bounds how much of an upstream reply is buffered.
const maxUpstreamBodySize = 16 << 20

// readBody reads a bounded request body.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, model.NewValidationError("body", err.Error())
	}
	return body, nil
}

// upstreamReply is a fully buffered upstream response.
type upstreamReply struct {
	status int
	header http.Header
	body   []byte
}

// fetch performs one upstream request and buffers the reply.
func (h *Handler) fetch(ctx context.Context, method, target string, body io.Reader, hdr http.Header) (*upstreamReply, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("building upstream request: %w", err)
	}
	for k, vs := range hdr {
		req.Header[k] = vs
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBodySize))
	if err != nil {
		return nil, fmt.Errorf("reading upstream body: %w", err)
	}
	return &upstreamReply{status: resp.StatusCode, header: resp.Header, body: data}, nil
}
