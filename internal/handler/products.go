package handler

import (
	"log/slog"
	"net/http"
	"net/url"
	"regexp"

	"github.com/tidwall/gjson"

	"storefront-proxy/internal/model"
)

const (
	productsCacheControl = "public, s-maxage=300, stale-while-revalidate=600"
	reviewsCacheControl  = "public, s-maxage=60, stale-while-revalidate=300"
)

var secretParam = regexp.MustCompile(`consumer_secret=[^&]*`)

// redact hides the consumer secret in a URL before it is logged.
func redact(u string) string {
	return secretParam.ReplaceAllString(u, "consumer_secret=***")
}

// restURL builds a WooCommerce REST URL, copying the named query params from
// in and appending credentials when configured.
func (h *Handler) restURL(path string, in url.Values, keep ...string) string {
	q := url.Values{}
	if h.cfg.HasCredentials() {
		q.Set("consumer_key", h.cfg.ConsumerKey)
		q.Set("consumer_secret", h.cfg.ConsumerSecret)
	}
	for _, k := range keep {
		if v := in.Get(k); v != "" {
			q.Set(k, v)
		}
	}
	target := h.cfg.WordPressAPIURL + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	return target
}

// handleProducts proxies the WooCommerce REST product list.
// GET /api/products
func (h *Handler) handleProducts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, model.NewMethodNotAllowedError(r.Method, http.MethodGet))
		return
	}

	target := h.restURL("/products", r.URL.Query(), "include", "slug")
	h.logger.Debug("fetching products", slog.String("url", redact(target)))

	reply, err := h.fetch(r.Context(), http.MethodGet, target, nil, nil)
	if err != nil {
		h.logger.Error("products proxy failed", slog.String("error", err.Error()))
		h.writeError(w, model.NewProxyError("products", err))
		return
	}
	if reply.status < 200 || reply.status >= 300 {
		h.logger.Warn("products upstream error",
			slog.Int("status", reply.status),
			slog.String("body", model.Truncate(string(reply.body), 500)),
		)
		h.writeJSON(w, reply.status, errorResponse{Error: "Failed to fetch from upstream"})
		return
	}
	if !gjson.ValidBytes(reply.body) {
		h.writeError(w, model.NewMalformedUpstreamError("products", model.Truncate(string(reply.body), 200)))
		return
	}

	w.Header().Set("Cache-Control", productsCacheControl)
	h.writeRaw(w, http.StatusOK, reply.body)
}

// handleReviews proxies product reviews. A missing reviews endpoint reads as
// no reviews.
// GET /api/products/reviews
func (h *Handler) handleReviews(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, model.NewMethodNotAllowedError(r.Method, http.MethodGet))
		return
	}

	target := h.restURL("/products/reviews", r.URL.Query(), "product", "page", "per_page")
	h.logger.Debug("fetching reviews", slog.String("url", redact(target)))

	reply, err := h.fetch(r.Context(), http.MethodGet, target, nil, nil)
	if err != nil {
		h.logger.Error("reviews proxy failed", slog.String("error", err.Error()))
		h.writeError(w, model.NewProxyError("reviews", err))
		return
	}
	switch {
	case reply.status == http.StatusNotFound:
		h.writeRaw(w, http.StatusOK, []byte("[]"))
		return
	case reply.status < 200 || reply.status >= 300:
		h.writeJSON(w, reply.status, errorResponse{Error: "Failed to fetch reviews"})
		return
	case !gjson.ValidBytes(reply.body):
		h.writeError(w, model.NewMalformedUpstreamError("reviews", model.Truncate(string(reply.body), 200)))
		return
	}

	w.Header().Set("Cache-Control", reviewsCacheControl)
	h.writeRaw(w, http.StatusOK, reply.body)
}
