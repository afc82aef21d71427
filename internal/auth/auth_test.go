package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestSignerRoundTrip(t *testing.T) {
	s := NewSigner("test-secret")
	tok, err := s.Sign("session-1", time.Hour)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	id, err := s.Verify(tok)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if id != "session-1" {
		t.Errorf("expected session-1, got %q", id)
	}
}

func TestSignerRejectsForeignAndExpiredTokens(t *testing.T) {
	foreign, err := NewSigner("other").Sign("session-1", time.Hour)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	expired, err := NewSigner("test-secret").Sign("session-1", -time.Minute)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"foreign secret", foreign, ErrInvalidSignature},
		{"expired", expired, ErrExpiredToken},
		{"garbage", "garbage", ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSigner("test-secret").Verify(tt.token)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	if _, err := st.Get(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}

	sess := &Session{ID: "a", ExpiresAt: time.Now().Add(time.Hour)}
	sess.SetUpstreamCookies([]*http.Cookie{{Name: "session", Value: "v"}})
	if err := st.Save(ctx, sess); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := st.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if cookies := got.UpstreamCookies(); len(cookies) != 1 || cookies[0].Value != "v" {
		t.Errorf("expected one upstream cookie with value v, got %v", cookies)
	}

	if err := st.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := st.Get(ctx, "a"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound after delete, got %v", err)
	}
}

func TestMemoryStoreDropsExpiredSessionOnGet(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	if err := st.Save(ctx, &Session{ID: "old", ExpiresAt: time.Now().Add(-time.Second)}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := st.Get(ctx, "old"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if n := st.Len(); n != 0 {
		t.Errorf("expected expired session to be removed, store holds %d", n)
	}
}

func TestMemoryStoreSweep(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	now := time.Now()
	st.Save(ctx, &Session{ID: "live", ExpiresAt: now.Add(time.Hour)})
	st.Save(ctx, &Session{ID: "gone-1", ExpiresAt: now.Add(-time.Minute)})
	st.Save(ctx, &Session{ID: "gone-2", ExpiresAt: now.Add(-time.Second)})

	if n := st.Sweep(now); n != 2 {
		t.Errorf("expected 2 sessions swept, got %d", n)
	}
	if n := st.Len(); n != 1 {
		t.Errorf("expected 1 session left, got %d", n)
	}
	if _, err := st.Get(ctx, "live"); err != nil {
		t.Errorf("live session lost: %v", err)
	}
}

func TestMemoryStoreSaveSweepsOnceLarge(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	past := time.Now().Add(-time.Second)
	for i := 0; i < sweepThreshold+500; i++ {
		st.Save(ctx, &Session{ID: "s" + strconv.Itoa(i), ExpiresAt: past})
	}

	if n := st.Len(); n > sweepThreshold {
		t.Errorf("expected expired sessions to be swept while saving, store holds %d", n)
	}
}

func TestMemoryStoreCleanup(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st := NewMemoryStore()
	st.Save(ctx, &Session{ID: "old", ExpiresAt: time.Now().Add(-time.Second)})

	done := make(chan struct{})
	go func() {
		st.Cleanup(ctx, 5*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for st.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("expired session was never cleaned up")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Cleanup did not stop with its context")
	}
}

func newManager() *Manager {
	return NewManager(NewMemoryStore(), NewSigner("test-secret"), time.Hour, false)
}

func TestMiddlewareStartsAndResumesSession(t *testing.T) {
	m := newManager()
	var seen []string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, FromContext(r.Context()).ID)
	}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/", nil))
	cookies := first.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != SessionCookieName {
		t.Fatalf("expected one %s cookie, got %v", SessionCookieName, cookies)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	second := httptest.NewRecorder()
	h.ServeHTTP(second, req)

	if len(seen) != 2 || seen[0] != seen[1] {
		t.Errorf("expected the same session twice, got %v", seen)
	}
	if c := second.Result().Cookies(); len(c) != 0 {
		t.Errorf("existing session should not be reissued, got %v", c)
	}
}

func TestMiddlewareReplacesTamperedCookie(t *testing.T) {
	m := newManager()
	var id string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id = FromContext(r.Context()).ID
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "forged"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if id == "" {
		t.Error("expected a fresh session")
	}
	if c := rec.Result().Cookies(); len(c) != 1 {
		t.Errorf("expected a new cookie, got %v", c)
	}
}

func TestResumeNeverStartsSession(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(store, NewSigner("test-secret"), time.Hour, false)
	var got *Session
	h := m.Resume(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
	}))

	for i := 0; i < 50; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if c := rec.Result().Cookies(); len(c) != 0 {
			t.Fatalf("anonymous request got cookies %v", c)
		}
	}
	if got != nil {
		t.Errorf("expected no session, got %+v", got)
	}
	if n := store.Len(); n != 0 {
		t.Errorf("anonymous requests stored %d sessions", n)
	}

	start := httptest.NewRecorder()
	m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).
		ServeHTTP(start, httptest.NewRequest(http.MethodGet, "/admin", nil))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(start.Result().Cookies()[0])
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got == nil {
		t.Error("existing session should be resumed")
	}
}

func TestVerifyCSRF(t *testing.T) {
	sess := &Session{ID: "a", CSRF: "tok"}
	tests := []struct {
		name    string
		form    url.Values
		session *Session
		want    bool
	}{
		{"matching token", url.Values{CSRFField: {"tok"}}, sess, true},
		{"wrong token", url.Values{CSRFField: {"nope"}}, sess, false},
		{"no session", url.Values{CSRFField: {"tok"}}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			if tt.session != nil {
				req = req.WithContext(WithSession(req.Context(), tt.session))
			}
			if got := VerifyCSRF(req); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestIPRateLimiter(t *testing.T) {
	l := NewIPRateLimiter(rate.Every(time.Hour), 2)
	h := l.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	want := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
	for i, code := range want {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/admin/login", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		h.ServeHTTP(rec, req)
		if rec.Code != code {
			t.Errorf("attempt %d: expected %d, got %d", i+1, code, rec.Code)
		}
	}
	if !l.Allow("10.0.0.2") {
		t.Error("other addresses should have their own budget")
	}
}

func TestMockAuthGate(t *testing.T) {
	m := newManager()
	gate := NewMockAuth(m)
	protected := m.Middleware(gate.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(FromContext(r.Context()).User.Username))
	})))

	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin", nil))
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/auth/login" {
		t.Fatalf("expected redirect to /auth/login, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
	cookie := rec.Result().Cookies()[0]

	login := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	login.AddCookie(cookie)
	rec = httptest.NewRecorder()
	m.Middleware(http.HandlerFunc(gate.LoginHandler)).ServeHTTP(rec, login)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("login: expected 303, got %d", rec.Code)
	}

	again := httptest.NewRequest(http.MethodGet, "/admin", nil)
	again.AddCookie(cookie)
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, again)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if body := rec.Body.String(); body != "operator" {
		t.Errorf("expected operator, got %q", body)
	}
}

func TestAuthentikCallbackStoresUser(t *testing.T) {
	idp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/application/o/token/":
			json.NewEncoder(w).Encode(map[string]any{"access_token": "at", "token_type": "Bearer", "expires_in": 3600})
		case "/application/o/userinfo/":
			if r.Header.Get("Authorization") != "Bearer at" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{"sub": "u1", "preferred_username": "carol", "groups": []string{"operators"}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer idp.Close()

	m := newManager()
	a := NewAuthentikAuth(&AuthentikConfig{BaseURL: idp.URL, ClientID: "id", ClientSecret: "s", RedirectURL: "http://ui/auth/callback"}, m)

	start := httptest.NewRecorder()
	m.Middleware(http.HandlerFunc(a.LoginHandler)).ServeHTTP(start, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	if start.Code != http.StatusTemporaryRedirect {
		t.Fatalf("expected 307, got %d", start.Code)
	}
	var sessionCookie, stateCookie *http.Cookie
	for _, c := range start.Result().Cookies() {
		switch c.Name {
		case SessionCookieName:
			sessionCookie = c
		case "oauth_state":
			stateCookie = c
		}
	}
	if sessionCookie == nil || stateCookie == nil {
		t.Fatalf("expected session and state cookies, got %v", start.Result().Cookies())
	}

	cb := httptest.NewRequest(http.MethodGet, "/auth/callback?code=c&state="+url.QueryEscape(stateCookie.Value), nil)
	cb.AddCookie(sessionCookie)
	cb.AddCookie(stateCookie)
	rec := httptest.NewRecorder()
	var user *User
	m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.CallbackHandler(w, r)
		user = FromContext(r.Context()).User
	})).ServeHTTP(rec, cb)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d: %s", rec.Code, rec.Body.String())
	}
	if user == nil || user.Username != "carol" {
		t.Errorf("expected user carol, got %+v", user)
	}
}

func TestAuthentikCallbackRejectsBadState(t *testing.T) {
	a := NewAuthentikAuth(&AuthentikConfig{BaseURL: "http://idp"}, newManager())
	req := httptest.NewRequest(http.MethodGet, "/auth/callback?state=x", nil)
	req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "y"})
	rec := httptest.NewRecorder()
	a.CallbackHandler(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}
