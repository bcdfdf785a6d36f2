// Package session is the single authority over the persisted WooCommerce
// session token, the Store API nonce, the customer's bearer credentials and
// the cached category menu. No network calls originate here.
package session

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"storefront-proxy/internal/headers"
)

// Storage keys, shared with the storefront's browser state.
const (
	KeySession = "woo-session"
	KeyNonce   = "wc_store_api_nonce"
	KeyAuth    = "auth-data"
	KeyMenu    = "shopwice_menu_cache"
)

// Lifetimes of persisted credentials.
const (
	SessionTTL = 7 * 24 * time.Hour
	NonceTTL   = 12 * time.Hour
)

// Token is a stored WooCommerce session token without its scheme prefix.
type Token struct {
	Value     string    `json:"token"`
	CreatedAt time.Time `json:"createdTime"`
}

// Nonce is a stored Store API nonce.
type Nonce struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Auth holds a logged-in customer's credentials.
type Auth struct {
	AuthToken    string          `json:"authToken"`
	RefreshToken string          `json:"refreshToken,omitempty"`
	User         json.RawMessage `json:"user,omitempty"`
}

// Store reads and writes session state through a Storage backend.
// Concurrent callers get last-write-wins semantics: each write reflects the
// most recent upstream response seen by that caller.
type Store struct {
	storage Storage
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger used for storage failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// NewStore creates a Store over storage.
func NewStore(storage Storage, opts ...Option) *Store {
	s := &Store{
		storage: storage,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// === Session token ===

// SessionToken returns the stored token. A token older than SessionTTL is
// removed and reported absent.
func (s *Store) SessionToken() (Token, bool) {
	var tok Token
	if !s.read(KeySession, &tok) || tok.Value == "" {
		return Token{}, false
	}
	if s.now().Sub(tok.CreatedAt) > SessionTTL {
		s.logger.Debug("session token expired", slog.Time("created_at", tok.CreatedAt))
		s.ClearSessionToken()
		return Token{}, false
	}
	return tok, true
}

// SetSessionToken stores raw after stripping any "Session " prefixes.
// WooCommerce sends the literal "false" when it destroys a session, which
// clears the stored token instead.
func (s *Store) SetSessionToken(raw string) {
	value := StripScheme(raw)
	if value == "" || value == "false" {
		s.ClearSessionToken()
		return
	}
	s.write(KeySession, Token{Value: value, CreatedAt: s.now()})
}

// ClearSessionToken removes the stored token.
func (s *Store) ClearSessionToken() {
	s.remove(KeySession)
}

// SessionHeaderValue returns the value for an outgoing session header, or ""
// when no live token is stored.
func (s *Store) SessionHeaderValue() string {
	tok, ok := s.SessionToken()
	if !ok {
		return ""
	}
	return headers.SessionScheme + tok.Value
}

// StripScheme removes leading "Session " prefixes (any case, any count).
func StripScheme(raw string) string {
	v := strings.TrimSpace(raw)
	prefix := strings.TrimSpace(headers.SessionScheme)
	for len(v) > len(prefix) && strings.EqualFold(v[:len(prefix)], prefix) && v[len(prefix)] == ' ' {
		v = strings.TrimSpace(v[len(prefix):])
	}
	return v
}

// === Store API nonce ===

// Nonce returns the stored nonce if it has not expired.
func (s *Store) Nonce() (Nonce, bool) {
	var n Nonce
	if !s.read(KeyNonce, &n) || n.Value == "" {
		return Nonce{}, false
	}
	if !s.now().Before(n.ExpiresAt) {
		s.ClearNonce()
		return Nonce{}, false
	}
	return n, true
}

// SetNonce stores value with a NonceTTL lifetime.
func (s *Store) SetNonce(value string) {
	s.SetNonceWithTTL(value, NonceTTL)
}

// SetNonceWithTTL stores value expiring after ttl.
func (s *Store) SetNonceWithTTL(value string, ttl time.Duration) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	if ttl <= 0 {
		ttl = NonceTTL
	}
	s.write(KeyNonce, Nonce{Value: value, ExpiresAt: s.now().Add(ttl)})
}

// ClearNonce removes the stored nonce.
func (s *Store) ClearNonce() {
	s.remove(KeyNonce)
}

// === Customer credentials ===

// Auth returns stored customer credentials.
func (s *Store) Auth() (Auth, bool) {
	var a Auth
	if !s.read(KeyAuth, &a) || a.AuthToken == "" {
		return Auth{}, false
	}
	return a, true
}

// SetAuth stores customer credentials.
func (s *Store) SetAuth(a Auth) {
	s.write(KeyAuth, a)
}

// ClearAuth removes customer credentials.
func (s *Store) ClearAuth() {
	s.remove(KeyAuth)
}

// === Menu cache ===

// Menu decodes the cached menu into v. A cache entry that fails to parse is
// removed and reported absent.
func (s *Store) Menu(v any) bool {
	data, ok := s.storage.Get(KeyMenu)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.logger.Warn("menu cache corrupt, clearing", slog.String("error", err.Error()))
		s.ClearMenu()
		return false
	}
	return true
}

// SetMenu caches v as the menu.
func (s *Store) SetMenu(v any) {
	s.write(KeyMenu, v)
}

// ClearMenu drops the cached menu.
func (s *Store) ClearMenu() {
	s.remove(KeyMenu)
}

// Logout clears the session token, nonce and customer credentials.
func (s *Store) Logout() {
	s.ClearSessionToken()
	s.ClearNonce()
	s.ClearAuth()
}

// === Storage helpers ===

func (s *Store) read(key string, v any) bool {
	data, ok := s.storage.Get(key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.logger.Warn("discarding unreadable entry",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		s.remove(key)
		return false
	}
	return true
}

func (s *Store) write(key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("encoding entry", slog.String("key", key), slog.String("error", err.Error()))
		return
	}
	if err := s.storage.Set(key, data); err != nil {
		s.logger.Error("writing entry", slog.String("key", key), slog.String("error", err.Error()))
	}
}

func (s *Store) remove(key string) {
	if err := s.storage.Delete(key); err != nil {
		s.logger.Error("removing entry", slog.String("key", key), slog.String("error", err.Error()))
	}
}
