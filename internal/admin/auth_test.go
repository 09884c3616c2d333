package admin

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestVerify_BasicAuth(t *testing.T) {
	a := NewAuthenticator(Credentials{Username: "ops", Password: "hunter2"})

	r := httptest.NewRequest(http.MethodGet, "/admin/me", nil)
	r.SetBasicAuth("ops", "hunter2")

	user, ok := a.Verify(r)
	if !ok || user != "ops" {
		t.Fatalf("expected successful basic auth, got ok=%v user=%s", ok, user)
	}
}

func TestVerify_WrongPasswordRejected(t *testing.T) {
	a := NewAuthenticator(Credentials{Username: "ops", Password: "hunter2"})

	r := httptest.NewRequest(http.MethodGet, "/admin/me", nil)
	r.SetBasicAuth("ops", "wrong")

	if _, ok := a.Verify(r); ok {
		t.Fatal("expected auth failure for wrong password")
	}
}

func TestVerify_SessionCookieRoundTrip(t *testing.T) {
	a := NewAuthenticator(Credentials{Username: "ops", Password: "hunter2"})
	fixed := time.Unix(1_700_000_000, 0)
	a.now = func() time.Time { return fixed }

	w := httptest.NewRecorder()
	a.IssueSession(w)

	r := httptest.NewRequest(http.MethodGet, "/admin/me", nil)
	for _, c := range w.Result().Cookies() {
		r.AddCookie(c)
	}

	user, ok := a.Verify(r)
	if !ok || user != "ops" {
		t.Fatalf("expected session auth to succeed, got ok=%v user=%s", ok, user)
	}
}

func TestVerify_ExpiredSessionRejected(t *testing.T) {
	a := NewAuthenticator(Credentials{Username: "ops", Password: "hunter2"})
	issued := time.Unix(1_700_000_000, 0)
	a.now = func() time.Time { return issued }

	w := httptest.NewRecorder()
	a.IssueSession(w)

	r := httptest.NewRequest(http.MethodGet, "/admin/me", nil)
	for _, c := range w.Result().Cookies() {
		r.AddCookie(c)
	}

	a.now = func() time.Time { return issued.Add(2 * time.Hour) }
	if _, ok := a.Verify(r); ok {
		t.Fatal("expected expired session to be rejected")
	}
}

func TestRequire_RejectsUnauthenticated(t *testing.T) {
	a := NewAuthenticator(Credentials{Username: "ops", Password: "hunter2"})
	called := false
	handler := a.Require(func(w http.ResponseWriter, r *http.Request) { called = true })

	r := httptest.NewRequest(http.MethodGet, "/admin/me", nil)
	w := httptest.NewRecorder()
	handler(w, r)

	if called {
		t.Fatal("handler must not run for unauthenticated request")
	}
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("want 401, got %d", w.Code)
	}
}
