package handler

import (
	"bytes"
	"log/slog"
	"net/http"

	"github.com/tidwall/gjson"

	"storefront-proxy/internal/headers"
	"storefront-proxy/internal/model"
)

// handleGraphQL forwards a GraphQL POST to the WPGraphQL endpoint.
// POST /api/graphql
func (h *Handler) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, model.NewMethodNotAllowedError(r.Method, http.MethodPost))
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	out := http.Header{}
	out.Set("Content-Type", "application/json")
	if v := headers.Lookup(r.Header, headers.SessionVariants...); v != "" {
		out.Set(headers.Session, v)
	}
	if v := headers.Lookup(r.Header, headers.NonceVariants...); v != "" {
		out.Set(headers.Nonce, v)
	}
	if v := headers.Lookup(r.Header, headers.Authorization); v != "" {
		out.Set(headers.Authorization, v)
	}

	reply, err := h.fetch(r.Context(), http.MethodPost, h.cfg.GraphQLURL, bytes.NewReader(body), out)
	if err != nil {
		h.logger.Error("graphql proxy failed", slog.String("error", err.Error()))
		h.writeError(w, model.NewProxyError("GraphQL", err))
		return
	}

	if !gjson.ValidBytes(reply.body) {
		text := string(reply.body)
		h.logger.Error("graphql upstream returned non-JSON",
			slog.Int("status", reply.status),
			slog.String("body", model.Truncate(text, 500)),
		)
		h.writeError(w, model.NewMalformedUpstreamError("GraphQL", model.Truncate(text, 200)))
		return
	}

	if v := headers.ResponseSession(reply.header); v != "" {
		w.Header().Set(headers.Session, v)
	}
	if v := headers.Lookup(reply.header, headers.NonceVariants...); v != "" {
		w.Header().Set(headers.Nonce, v)
	}
	h.writeRaw(w, reply.status, reply.body)
}
