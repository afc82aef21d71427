package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/logger"
)

// AuthentikConfig holds the configuration for Authentik OAuth2/OIDC
type AuthentikConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	// AppSlug names the Authentik application for the end-session URL
	AppSlug string
}

// User is the identity an OIDC gate put on the operator session
type User struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	Name     string   `json:"name"`
	Username string   `json:"username"`
	Groups   []string `json:"groups"`
}

// AuthProvider gates the admin surface behind an identity provider
type AuthProvider interface {
	LoginHandler(w http.ResponseWriter, r *http.Request)
	CallbackHandler(w http.ResponseWriter, r *http.Request)
	LogoutHandler(w http.ResponseWriter, r *http.Request)
	Middleware(next http.Handler) http.Handler
}

// AuthentikAuth puts an Authentik login in front of /admin. The identity is
// stored on the operator session; ranking service login still happens after it.
type AuthentikAuth struct {
	config       *AuthentikConfig
	oauth2Config *oauth2.Config
	sessions     *Manager
	httpClient   *http.Client
}

// NewAuthentikAuth creates the gate
func NewAuthentikAuth(config *AuthentikConfig, sessions *Manager) *AuthentikAuth {
	if len(config.Scopes) == 0 {
		config.Scopes = []string{"openid", "profile", "email"}
	}
	if config.AppSlug == "" {
		config.AppSlug = "ranking-ui"
	}

	return &AuthentikAuth{
		config: config,
		oauth2Config: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Scopes:       config.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  fmt.Sprintf("%s/application/o/authorize/", config.BaseURL),
				TokenURL: fmt.Sprintf("%s/application/o/token/", config.BaseURL),
			},
		},
		sessions:   sessions,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// LoginHandler initiates the OAuth2 login flow
func (a *AuthentikAuth) LoginHandler(w http.ResponseWriter, r *http.Request) {
	state := randomToken()
	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   300,
	})
	http.Redirect(w, r, a.oauth2Config.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// CallbackHandler finishes the flow and records the user on the session
func (a *AuthentikAuth) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie("oauth_state")
	if err != nil {
		http.Error(w, "Missing state cookie", http.StatusBadRequest)
		return
	}
	if r.URL.Query().Get("state") != stateCookie.Value {
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}

	token, err := a.oauth2Config.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		logger.Error("Failed to exchange token", "error", err)
		http.Error(w, "Failed to exchange token", http.StatusBadGateway)
		return
	}

	user, err := a.getUserInfo(r.Context(), token)
	if err != nil {
		logger.Error("Failed to get user info", "error", err)
		http.Error(w, "Failed to get user info", http.StatusBadGateway)
		return
	}

	sess := FromContext(r.Context())
	if sess == nil {
		http.Error(w, "Session unavailable", http.StatusInternalServerError)
		return
	}
	sess.User = user
	if err := a.sessions.Save(w, r, sess); err != nil {
		logger.Error("Failed to save session", "error", err)
		http.Error(w, "Session unavailable", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{Name: "oauth_state", Value: "", Path: "/", MaxAge: -1})
	logger.Info("Operator identified", "username", user.Username)
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

// LogoutHandler drops the session and ends the Authentik session
func (a *AuthentikAuth) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	a.sessions.Destroy(w, r)
	logoutURL := fmt.Sprintf("%s/application/o/%s/end-session/", a.config.BaseURL, a.config.AppSlug)
	http.Redirect(w, r, logoutURL, http.StatusSeeOther)
}

// Middleware sends sessions without an identity to the login flow
func (a *AuthentikAuth) Middleware(next http.Handler) http.Handler {
	return requireUser(next)
}

func (a *AuthentikAuth) getUserInfo(ctx context.Context, token *oauth2.Token) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.config.BaseURL+"/application/o/userinfo/", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("failed to get user info: %s - %s", resp.Status, string(body))
	}

	var info struct {
		Sub               string   `json:"sub"`
		Email             string   `json:"email"`
		Name              string   `json:"name"`
		PreferredUsername string   `json:"preferred_username"`
		Groups            []string `json:"groups"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, err
	}
	return &User{
		ID:       info.Sub,
		Email:    info.Email,
		Name:     info.Name,
		Username: info.PreferredUsername,
		Groups:   info.Groups,
	}, nil
}

// MockAuth identifies every session as a local operator, for development
type MockAuth struct {
	sessions *Manager
}

// NewMockAuth creates the development gate
func NewMockAuth(sessions *Manager) *MockAuth {
	return &MockAuth{sessions: sessions}
}

// LoginHandler marks the session with the development user
func (m *MockAuth) LoginHandler(w http.ResponseWriter, r *http.Request) {
	sess := FromContext(r.Context())
	if sess == nil {
		http.Error(w, "Session unavailable", http.StatusInternalServerError)
		return
	}
	sess.User = &User{
		ID:       "dev-operator",
		Email:    "operator@ranking.local",
		Name:     "Dev Operator",
		Username: "operator",
		Groups:   []string{"operators"},
	}
	if err := m.sessions.Save(w, r, sess); err != nil {
		http.Error(w, "Session unavailable", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

// CallbackHandler is not needed for mock auth
func (m *MockAuth) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

// LogoutHandler drops the session
func (m *MockAuth) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	m.sessions.Destroy(w, r)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Middleware sends sessions without an identity to the login flow
func (m *MockAuth) Middleware(next http.Handler) http.Handler {
	return requireUser(next)
}

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := FromContext(r.Context())
		if sess == nil || sess.User == nil {
			http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}
