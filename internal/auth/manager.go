package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/logger"
)

const (
	SessionCookieName = "ranking_ui_session"
	CSRFField         = "csrf_token"
)

type contextKey struct{}

// Manager ties the signed cookie to the session store
type Manager struct {
	store  Store
	signer *Signer
	ttl    time.Duration
	secure bool
}

// NewManager creates a session manager. secure marks cookies Secure.
func NewManager(store Store, signer *Signer, ttl time.Duration, secure bool) *Manager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Manager{store: store, signer: signer, ttl: ttl, secure: secure}
}

// Middleware loads or starts the operator session and puts it on the request context
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := m.load(r)
		if err != nil {
			sess = m.newSession()
			if err := m.Save(w, r, sess); err != nil {
				logger.Error("Failed to start session", "error", err)
				http.Error(w, "Session unavailable", http.StatusInternalServerError)
				return
			}
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
	})
}

// Resume puts an existing session on the request context but never starts
// one, so anonymous visitors leave nothing behind in the store
func (m *Manager) Resume(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sess, err := m.load(r); err == nil {
			r = r.WithContext(WithSession(r.Context(), sess))
		}
		next.ServeHTTP(w, r)
	})
}

// Save persists sess and (re)issues its cookie
func (m *Manager) Save(w http.ResponseWriter, r *http.Request, sess *Session) error {
	if err := m.store.Save(r.Context(), sess); err != nil {
		return err
	}
	token, err := m.signer.Sign(sess.ID, time.Until(sess.ExpiresAt))
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  sess.ExpiresAt,
	})
	return nil
}

// Destroy deletes the session and clears its cookie
func (m *Manager) Destroy(w http.ResponseWriter, r *http.Request) {
	if sess := FromContext(r.Context()); sess != nil {
		if err := m.store.Delete(r.Context(), sess.ID); err != nil {
			logger.Warn("Failed to delete session", "error", err)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:   SessionCookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
}

// VerifyCSRF compares the submitted form token with the session's
func VerifyCSRF(r *http.Request) bool {
	sess := FromContext(r.Context())
	if sess == nil || sess.CSRF == "" {
		return false
	}
	got := r.PostFormValue(CSRFField)
	return subtle.ConstantTimeCompare([]byte(got), []byte(sess.CSRF)) == 1
}

func (m *Manager) load(r *http.Request) (*Session, error) {
	c, err := r.Cookie(SessionCookieName)
	if err != nil {
		return nil, err
	}
	id, err := m.signer.Verify(c.Value)
	if err != nil {
		return nil, err
	}
	sess, err := m.store.Get(r.Context(), id)
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			logger.Warn("Failed to load session", "error", err)
		}
		return nil, err
	}
	return sess, nil
}

func (m *Manager) newSession() *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.NewString(),
		CSRF:      randomToken(),
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
}

// WithSession attaches sess to ctx
func WithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, sess)
}

// FromContext returns the session of the request, or nil
func FromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(contextKey{}).(*Session)
	return sess
}

func randomToken() string {
	b := make([]byte, 32)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
