package admin

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/portcall/gateway/internal/errs"
)

// sessionCookieName is the cookie the login handler sets and every
// subsequent protected request is expected to carry.
const sessionCookieName = "gateway_session"

// Credentials is the single admin identity this gateway enforces. The
// original system supports exactly one operator account; spec.md's
// Data Model carries the same shape (§1), so there's no user table here.
type Credentials struct {
	Username string
	Password string
}

// Authenticator verifies admin requests via session cookie or HTTP
// Basic auth, matching original_source's auth/middleware.go order:
// session first, then basic, constant-time compared either way.
type Authenticator struct {
	creds Credentials
	now   func() time.Time
}

// NewAuthenticator builds an Authenticator enforcing one admin identity.
func NewAuthenticator(creds Credentials) *Authenticator {
	return &Authenticator{creds: creds, now: time.Now}
}

// IssueSession sets the session cookie on w for an authenticated login.
func (a *Authenticator) IssueSession(w http.ResponseWriter) {
	token := encodeSession(a.creds.Username, a.now())
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/admin",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(sessionTTL.Seconds()),
	})
}

// ClearSession removes the session cookie, for logout.
func (a *Authenticator) ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/admin",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// Verify checks r's session cookie, falling back to HTTP Basic auth, and
// reports the authenticated username if either succeeds.
func (a *Authenticator) Verify(r *http.Request) (username string, ok bool) {
	user, err := a.verify(r)
	return user, err == nil
}

// verify is Verify's internal counterpart, carrying the reason a request
// was rejected as an *errs.AuthError so Require can log it without
// leaking it to the client.
func (a *Authenticator) verify(r *http.Request) (string, error) {
	if c, err := r.Cookie(sessionCookieName); err == nil {
		if user, valid := decodeSession(c.Value, a.now()); valid && constantTimeEqual(user, a.creds.Username) {
			return user, nil
		}
		return "", &errs.AuthError{Reason: "invalid or expired session"}
	}

	if user, pass, hasBasic := r.BasicAuth(); hasBasic {
		if constantTimeEqual(user, a.creds.Username) && constantTimeEqual(pass, a.creds.Password) {
			return user, nil
		}
		return "", &errs.AuthError{Reason: "invalid basic auth credentials"}
	}

	return "", &errs.AuthError{Reason: "no credentials presented"}
}

// Require wraps next so it only runs for authenticated admin requests,
// otherwise responding 401 (with a WWW-Authenticate challenge, so a
// browser or curl falls back to Basic auth when no session exists).
func (a *Authenticator) Require(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := a.verify(r)
		if err != nil {
			log.Debug().Err(err).Str("path", r.URL.Path).Msg("admin: request rejected")
			w.Header().Set("WWW-Authenticate", `Basic realm="admin"`)
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		_ = user
		next(w, r)
	}
}

func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
