package ui

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"

	gomponents "maragu.dev/gomponents"
	html "maragu.dev/gomponents/html"
)

// The dashboard has no login, so a cross-site POST would otherwise start
// discovery or masking runs. Every form carries a token matching a cookie
// only same-site pages can read.
const csrfCookieName = "veil_csrf"

type csrfContextKey struct{}

// ensureCSRFToken hands out the token cookie on page loads and threads the
// token through the context, so forms rendered on the very first load can
// already embed it.
func (h *Handler) ensureCSRFToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := readCSRFCookie(r)
		if token == "" {
			token = randomToken(32)
			http.SetCookie(w, &http.Cookie{
				Name:     csrfCookieName,
				Value:    token,
				Path:     "/ui",
				HttpOnly: true,
				Secure:   h.cfg.Env != "local",
				SameSite: http.SameSiteLaxMode,
			})
		}
		ctx := context.WithValue(r.Context(), csrfContextKey{}, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireCSRF rejects form posts whose token does not match the cookie.
func (h *Handler) requireCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookieToken := readCSRFCookie(r)
		if cookieToken == "" {
			h.render(w, http.StatusForbidden, errorPage("Request Rejected", "The form token cookie is missing. Reload the page and try again."))
			return
		}

		_ = r.ParseForm()
		formToken := strings.TrimSpace(r.Form.Get("csrf_token"))
		if subtle.ConstantTimeCompare([]byte(cookieToken), []byte(formToken)) != 1 {
			h.render(w, http.StatusForbidden, errorPage("Request Rejected", "The form token does not match. Reload the page and try again."))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// csrfField returns the hidden input every dashboard form embeds.
func csrfField(r *http.Request) gomponents.Node {
	token, _ := r.Context().Value(csrfContextKey{}).(string)
	if token == "" {
		token = readCSRFCookie(r)
	}
	return html.Input(
		html.Type("hidden"),
		html.Name("csrf_token"),
		html.Value(token),
	)
}

func readCSRFCookie(r *http.Request) string {
	cookie, err := r.Cookie(csrfCookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}

func randomToken(size int) string {
	b := make([]byte, size)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
