package ui

import (
	"crypto/sha256"
	"encoding/gob"
	"net/http"

	"github.com/gorilla/sessions"
)

// sessionName is the dashboard cookie.
const sessionName = "veil-dashboard"

// Session value keys.
const (
	sessionKeySchema = "schema"
)

// flash is one message shown on the next page load after a redirect.
type flash struct {
	Kind string // "success" or "error"
	Text string
}

func init() {
	gob.Register(flash{})
}

// sessionStore keeps per-browser dashboard state: the schema the user last
// worked in and flash messages across the POST-redirect-GET cycle.
type sessionStore struct {
	store *sessions.CookieStore
}

// newSessionStore builds a cookie store signed with a key derived from
// secret. Any passphrase works; it is SHA-256 hashed to a 32-byte key that
// must stay consistent across restarts.
func newSessionStore(secret string, secure bool) *sessionStore {
	key := sha256.Sum256([]byte(secret))

	store := sessions.NewCookieStore(key[:])
	store.Options = &sessions.Options{
		Path:     "/ui",
		MaxAge:   7 * 24 * 3600,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	}
	return &sessionStore{store: store}
}

// open returns the request's dashboard session. A cookie that fails to
// decode yields a fresh session, never an unusable one.
func (s *sessionStore) open(r *http.Request) *sessions.Session {
	session, _ := s.store.Get(r, sessionName)
	return session
}

// selectedSchema reads the schema remembered from the last launch.
func selectedSchema(session *sessions.Session) string {
	schema, _ := session.Values[sessionKeySchema].(string)
	return schema
}

// rememberSchema stores the schema the user is working in.
func rememberSchema(session *sessions.Session, schema string) {
	session.Values[sessionKeySchema] = schema
}

// addFlash queues a message for the next page load.
func addFlash(session *sessions.Session, kind, text string) {
	session.AddFlash(flash{Kind: kind, Text: text})
}

// takeFlashes drains queued messages. The caller must save the session for
// the drain to stick.
func takeFlashes(session *sessions.Session) []flash {
	raw := session.Flashes()
	if len(raw) == 0 {
		return nil
	}
	flashes := make([]flash, 0, len(raw))
	for _, v := range raw {
		if f, ok := v.(flash); ok {
			flashes = append(flashes, f)
		}
	}
	return flashes
}
