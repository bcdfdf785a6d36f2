// Package headers names the WooCommerce session, nonce and auth headers and
// looks them up across the spellings different hops emit.
package headers

import (
	"net/http"
	"regexp"
	"strings"
)

// Header names as emitted by WooCommerce, WPGraphQL and the same-origin proxy.
const (
	Session       = "woocommerce-session"
	SessionAlt    = "x-woocommerce-session"
	Nonce         = "Nonce"
	StoreNonce    = "X-WC-Store-API-Nonce"
	Authorization = "Authorization"
	SetCookie     = "Set-Cookie"
	Cookie        = "Cookie"
)

// SessionScheme prefixes the session token on outgoing requests.
const SessionScheme = "Session "

// InvalidSessionMessage is the exact error WooGraphQL returns for a rejected session header.
const InvalidSessionMessage = "The 'woocommerce-session' header is invalid"

// SessionVariants lists every spelling of the session header checked at each hop.
var SessionVariants = []string{Session, SessionAlt}

// NonceVariants lists every spelling of the Store API nonce header.
var NonceVariants = []string{Nonce, StoreNonce}

var sessionCookie = regexp.MustCompile(`wp_woocommerce_session_[^=]+=([^;]+)`)

// Lookup returns the first non-empty value among the given header names.
// Each name is checked under its exact spelling, its lowercase spelling and
// its canonical MIME spelling, since http.Header only canonicalizes on Set.
func Lookup(h http.Header, names ...string) string {
	for _, name := range names {
		for _, key := range []string{name, strings.ToLower(name), http.CanonicalHeaderKey(name)} {
			if vals, ok := h[key]; ok {
				for _, v := range vals {
					if v = strings.TrimSpace(v); v != "" {
						return v
					}
				}
			}
		}
	}
	return ""
}

// SessionFromCookies extracts a WooCommerce session cookie value from
// Set-Cookie headers. Returns "" if no session cookie is present.
func SessionFromCookies(h http.Header) string {
	for _, key := range []string{SetCookie, strings.ToLower(SetCookie)} {
		for _, c := range h[key] {
			if m := sessionCookie.FindStringSubmatch(c); m != nil {
				return m[1]
			}
		}
	}
	return ""
}

// ResponseSession returns the session value a response carries, preferring
// explicit headers over the Set-Cookie fallback.
func ResponseSession(h http.Header) string {
	if v := Lookup(h, SessionVariants...); v != "" {
		return v
	}
	return SessionFromCookies(h)
}

// CookieNames returns the names of all cookies in a Cookie request header,
// in order, skipping empty entries.
func CookieNames(h http.Header) []string {
	var names []string
	for _, line := range h.Values(Cookie) {
		for _, part := range strings.Split(line, ";") {
			name, _, _ := strings.Cut(strings.TrimSpace(part), "=")
			if name = strings.TrimSpace(name); name != "" {
				names = append(names, name)
			}
		}
	}
	return names
}
