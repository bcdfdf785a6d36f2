package handler

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"storefront-proxy/internal/headers"
	"storefront-proxy/internal/model"
)

// NonceTTLSeconds is the lifetime advertised for a harvested nonce.
const NonceTTLSeconds = 43200

// storeMethods are the verbs the Store API route forwards.
var storeMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodDelete: true,
	http.MethodPatch:  true,
}

// handleStoreAPI forwards a request to the WooCommerce Store API.
// GET|POST|PUT|DELETE|PATCH /api/wc-store/{path...}
func (h *Handler) handleStoreAPI(w http.ResponseWriter, r *http.Request) {
	if !storeMethods[r.Method] {
		h.writeError(w, model.NewMethodNotAllowedError(r.Method, "GET, POST, PUT, DELETE or PATCH"))
		return
	}

	path := strings.Trim(r.PathValue("path"), "/")
	if path == "" {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Missing path parameter"})
		return
	}

	query := r.URL.Query()
	query.Set("_t", strconv.FormatInt(time.Now().UnixMilli(), 10))
	target := h.cfg.StoreAPIURL + "/" + path + "?" + query.Encode()

	var body io.Reader
	if r.Method != http.MethodGet && r.Method != http.MethodDelete {
		data, err := readBody(w, r)
		if err != nil {
			h.writeError(w, err)
			return
		}
		body = bytes.NewReader(data)
	}

	out := http.Header{}
	out.Set("Content-Type", "application/json")
	if v := headers.Lookup(r.Header, headers.Authorization); v != "" {
		out.Set(headers.Authorization, v)
	}
	if v := headers.Lookup(r.Header, headers.NonceVariants...); v != "" {
		out.Set(headers.StoreNonce, v)
	}
	if v := headers.Lookup(r.Header, headers.SessionVariants...); v != "" {
		out.Set(headers.Session, v)
	}

	reply, err := h.fetch(r.Context(), r.Method, target, body, out)
	if err != nil {
		h.logger.Error("store api proxy failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		h.writeError(w, model.NewProxyError("Store API", err))
		return
	}

	if !gjson.ValidBytes(reply.body) {
		text := string(reply.body)
		h.logger.Error("store api upstream returned non-JSON",
			slog.String("path", path),
			slog.Int("status", reply.status),
			slog.String("body", model.Truncate(text, 500)),
		)
		h.writeError(w, model.NewMalformedUpstreamError("Store API", model.Truncate(text, 200)))
		return
	}

	if v := headers.Lookup(reply.header, headers.NonceVariants...); v != "" {
		w.Header().Set(headers.Nonce, v)
		w.Header().Set(headers.StoreNonce, v)
	}
	if v := headers.ResponseSession(reply.header); v != "" {
		w.Header().Set(headers.Session, v)
		w.Header().Set(headers.SessionAlt, v)
	}
	h.writeRaw(w, reply.status, reply.body)
}

type nonceResponse struct {
	Nonce       string `json:"nonce"`
	ExpiresIn   int    `json:"expiresIn"`
	IsTemporary bool   `json:"isTemporary"`
}

// handleNonce harvests a Store API nonce from the first candidate upstream
// that returns one, falling back to a temporary placeholder.
// GET /api/wc-store/nonce
func (h *Handler) handleNonce(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, model.NewMethodNotAllowedError(r.Method, http.MethodGet))
		return
	}

	out := http.Header{}
	out.Set("Content-Type", "application/json")

	for _, base := range h.cfg.NonceCandidates() {
		target := base + nonceCartPath(base) + "?_t=" + strconv.FormatInt(time.Now().UnixMilli(), 10)
		reply, err := h.fetch(r.Context(), http.MethodGet, target, nil, out)
		if err != nil {
			h.logger.Warn("nonce candidate unreachable",
				slog.String("base", base),
				slog.String("error", err.Error()),
			)
			continue
		}
		if nonce := headers.Lookup(reply.header, headers.NonceVariants...); nonce != "" {
			h.logger.Debug("nonce harvested", slog.String("base", base))
			h.writeJSON(w, http.StatusOK, nonceResponse{Nonce: nonce, ExpiresIn: NonceTTLSeconds})
			return
		}
		h.logger.Debug("nonce candidate returned no nonce",
			slog.String("base", base),
			slog.Int("status", reply.status),
		)
	}

	nonce := temporaryNonce(time.Now())
	h.logger.Warn("no upstream nonce, issuing temporary nonce")
	h.writeJSON(w, http.StatusOK, nonceResponse{
		Nonce:       nonce,
		ExpiresIn:   NonceTTLSeconds,
		IsTemporary: true,
	})
}

// nonceCartPath picks the cart path for a candidate base. Bases already
// pointing at a Store API root only need /cart.
func nonceCartPath(base string) string {
	if strings.HasSuffix(base, "/api") || strings.HasSuffix(base, "/wc/store/v1") {
		return "/cart"
	}
	return "/wp-json/wc/store/v1/cart"
}

// temporaryNonce returns temp_<unix ms>_<9 random chars>.
func temporaryNonce(now time.Time) string {
	salt := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "temp_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + salt[:9]
}
