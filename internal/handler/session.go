package handler

import (
	"log/slog"
	"net/http"

	"storefront-proxy/internal/headers"
)

const expireCookieAttrs = "=; Path=/; Expires=Thu, 01 Jan 1970 00:00:00 GMT; Max-Age=0; HttpOnly; SameSite=Lax"

type resetResponse struct {
	OK      bool `json:"ok"`
	Cleared int  `json:"cleared"`
}

// handleResetSession expires every cookie the browser sent.
// ANY /api/reset-session
func (h *Handler) handleResetSession(w http.ResponseWriter, r *http.Request) {
	names := headers.CookieNames(r.Header)
	for _, name := range names {
		w.Header().Add(headers.SetCookie, name+expireCookieAttrs)
	}
	h.logger.Info("session reset", slog.Int("cleared", len(names)))
	h.writeJSON(w, http.StatusOK, resetResponse{OK: true, Cleared: len(names)})
}
