package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"shortclaim/internal/model"
)

const (
	cookieName    = "shortclaim_session"
	sessionMaxAge = 24 * time.Hour
)

// Store is the persistence the session manager needs. *database.DB
// satisfies it.
type Store interface {
	EnsureSessionSecret() (string, error)
	CreateSession(s model.Session, csrfToken string) error
	GetSession(token string) (*model.Session, string, error)
	DeleteSession(token string) error
	GetUserByUsername(username string) (*model.User, error)
}

type SessionManager struct {
	secret []byte
	store  Store
	now    func() time.Time
}

func NewSessionManager(store Store) (*SessionManager, error) {
	secret, err := store.EnsureSessionSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to load session secret: %w", err)
	}
	return &SessionManager{secret: []byte(secret), store: store, now: time.Now}, nil
}

// CreateSession starts a session for username, sets the cookie and returns
// the CSRF token bound to it.
func (sm *SessionManager) CreateSession(w http.ResponseWriter, username string) (string, error) {
	now := sm.now()
	s := model.Session{
		Token:     generateToken(),
		Username:  username,
		CreatedAt: now,
		ExpiresAt: now.Add(sessionMaxAge),
	}
	csrfToken := generateToken()
	if err := sm.store.CreateSession(s, csrfToken); err != nil {
		return "", err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    s.Token + "." + sm.sign(s.Token),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(sessionMaxAge.Seconds()),
	})
	return csrfToken, nil
}

func (sm *SessionManager) DestroySession(w http.ResponseWriter, r *http.Request) {
	if token, ok := sm.token(r); ok {
		_ = sm.store.DeleteSession(token)
	}
	http.SetCookie(w, &http.Cookie{
		Name:   cookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
}

// token returns the session token from a cookie whose signature checks out.
func (sm *SessionManager) token(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(cookieName)
	if err != nil {
		return "", false
	}
	token, mac, ok := strings.Cut(cookie.Value, ".")
	if !ok || !hmac.Equal([]byte(mac), []byte(sm.sign(token))) {
		return "", false
	}
	return token, true
}

func (sm *SessionManager) GetSessionInfo(r *http.Request) (string, string, bool) {
	token, ok := sm.token(r)
	if !ok {
		return "", "", false
	}
	s, csrfToken, err := sm.store.GetSession(token)
	if err != nil || s == nil || sm.now().After(s.ExpiresAt) {
		return "", "", false
	}
	return s.Username, csrfToken, true
}

func (sm *SessionManager) GetUsername(r *http.Request) (string, bool) {
	username, _, ok := sm.GetSessionInfo(r)
	return username, ok
}

// CurrentUser returns the logged-in user if the account is still active.
func (sm *SessionManager) CurrentUser(r *http.Request) (*model.User, bool) {
	username, ok := sm.GetUsername(r)
	if !ok {
		return nil, false
	}
	user, err := sm.store.GetUserByUsername(username)
	if err != nil || user == nil || !user.Active {
		return nil, false
	}
	return user, true
}

func (sm *SessionManager) CSRFToken(r *http.Request) string {
	_, csrfToken, _ := sm.GetSessionInfo(r)
	return csrfToken
}

func (sm *SessionManager) ValidateCSRF(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
			_, csrfToken, ok := sm.GetSessionInfo(r)
			if !ok {
				http.Error(w, "Forbidden: No session", http.StatusForbidden)
				return
			}
			submitted := r.FormValue("csrf_token")
			if submitted == "" {
				submitted = r.Header.Get("X-CSRF-Token")
			}
			if submitted == "" || !hmac.Equal([]byte(submitted), []byte(csrfToken)) {
				http.Error(w, "Forbidden: Invalid CSRF token", http.StatusForbidden)
				return
			}
		}
		next(w, r)
	}
}

func (sm *SessionManager) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return sm.requireUser(func(*model.User) bool { return true }, next)
}

func (sm *SessionManager) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return sm.requireUser(func(u *model.User) bool { return u.Role == model.RoleAdmin }, next)
}

// RequireReviewer admits admins and reviewers.
func (sm *SessionManager) RequireReviewer(next http.HandlerFunc) http.HandlerFunc {
	return sm.requireUser((*model.User).CanReview, next)
}

func (sm *SessionManager) requireUser(allowed func(*model.User) bool, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := sm.CurrentUser(r)
		if !ok {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		if !allowed(user) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

func (sm *SessionManager) sign(token string) string {
	mac := hmac.New(sha256.New, sm.secret)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

func generateToken() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
