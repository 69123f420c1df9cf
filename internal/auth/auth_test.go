package auth

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shortclaim/internal/model"
)

type memStore struct {
	sessions map[string]model.Session
	csrf     map[string]string
	users    map[string]*model.User
}

func newMemStore() *memStore {
	return &memStore{
		sessions: map[string]model.Session{},
		csrf:     map[string]string{},
		users: map[string]*model.User{
			"admin": {Username: "admin", Role: model.RoleAdmin, Active: true},
			"rev":   {Username: "rev", Role: model.RoleReviewer, Active: true},
			"sub":   {Username: "sub", Role: model.RoleSubmitter, Active: true},
			"gone":  {Username: "gone", Role: model.RoleAdmin, Active: false},
		},
	}
}

func (m *memStore) EnsureSessionSecret() (string, error) { return "secret", nil }

func (m *memStore) CreateSession(s model.Session, csrfToken string) error {
	m.sessions[s.Token] = s
	m.csrf[s.Token] = csrfToken
	return nil
}

func (m *memStore) GetSession(token string) (*model.Session, string, error) {
	s, ok := m.sessions[token]
	if !ok {
		return nil, "", nil
	}
	return &s, m.csrf[token], nil
}

func (m *memStore) DeleteSession(token string) error {
	delete(m.sessions, token)
	return nil
}

func (m *memStore) GetUserByUsername(username string) (*model.User, error) {
	return m.users[username], nil
}

// login returns the session cookie and CSRF token for username.
func login(t *testing.T, sm *SessionManager, username string) (*http.Cookie, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	csrf, err := sm.CreateSession(rec, username)
	require.NoError(t, err)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0], csrf
}

func ok(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

func TestSession_RoundTrip(t *testing.T) {
	sm, err := NewSessionManager(newMemStore())
	require.NoError(t, err)
	cookie, csrf := login(t, sm, "sub")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	username, gotCSRF, valid := sm.GetSessionInfo(req)
	assert.True(t, valid)
	assert.Equal(t, "sub", username)
	assert.Equal(t, csrf, gotCSRF)
}

func TestSession_TamperedCookie(t *testing.T) {
	sm, err := NewSessionManager(newMemStore())
	require.NoError(t, err)
	cookie, _ := login(t, sm, "sub")

	token, _, _ := strings.Cut(cookie.Value, ".")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: token + ".deadbeef"})
	_, ok := sm.GetUsername(req)
	assert.False(t, ok)
}

func TestSession_Expired(t *testing.T) {
	sm, err := NewSessionManager(newMemStore())
	require.NoError(t, err)
	cookie, _ := login(t, sm, "sub")

	sm.now = func() time.Time { return time.Now().Add(2 * sessionMaxAge) }
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	_, ok := sm.GetUsername(req)
	assert.False(t, ok)
}

func TestSession_Destroy(t *testing.T) {
	store := newMemStore()
	sm, err := NewSessionManager(store)
	require.NoError(t, err)
	cookie, _ := login(t, sm, "sub")

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(cookie)
	sm.DestroySession(httptest.NewRecorder(), req)
	assert.Empty(t, store.sessions)
}

func TestRequireRoles(t *testing.T) {
	sm, err := NewSessionManager(newMemStore())
	require.NoError(t, err)

	cases := []struct {
		user     string
		mw       func(http.HandlerFunc) http.HandlerFunc
		expected int
	}{
		{"admin", sm.RequireAdmin, http.StatusOK},
		{"rev", sm.RequireAdmin, http.StatusForbidden},
		{"rev", sm.RequireReviewer, http.StatusOK},
		{"admin", sm.RequireReviewer, http.StatusOK},
		{"sub", sm.RequireReviewer, http.StatusForbidden},
		{"sub", sm.RequireAuth, http.StatusOK},
		{"gone", sm.RequireAuth, http.StatusSeeOther},
	}
	for _, tc := range cases {
		cookie, _ := login(t, sm, tc.user)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(cookie)
		rec := httptest.NewRecorder()
		tc.mw(ok)(rec, req)
		assert.Equal(t, tc.expected, rec.Code, tc.user)
	}

	rec := httptest.NewRecorder()
	sm.RequireAuth(ok)(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestValidateCSRF(t *testing.T) {
	sm, err := NewSessionManager(newMemStore())
	require.NoError(t, err)
	cookie, csrf := login(t, sm, "sub")

	post := func(token string) int {
		form := url.Values{"csrf_token": {token}}
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.AddCookie(cookie)
		rec := httptest.NewRecorder()
		sm.ValidateCSRF(ok)(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, post(csrf))
	assert.Equal(t, http.StatusForbidden, post("wrong"))
	assert.Equal(t, http.StatusForbidden, post(""))

	rec := httptest.NewRecorder()
	sm.ValidateCSRF(ok)(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestResolveRole(t *testing.T) {
	mapping := map[string]string{
		model.RoleAdmin:     "cn=ens-admins,dc=example",
		model.RoleReviewer:  "cn=ens-reviewers,dc=example",
		model.RoleSubmitter: "cn=staff,dc=example",
	}

	role, ok := ResolveRole(mapping, []string{"CN=staff,DC=example", "cn=ens-reviewers,dc=example"})
	assert.True(t, ok)
	assert.Equal(t, model.RoleReviewer, role)

	role, ok = ResolveRole(mapping, []string{"cn=staff,dc=example"})
	assert.True(t, ok)
	assert.Equal(t, model.RoleSubmitter, role)

	_, ok = ResolveRole(mapping, []string{"cn=other"})
	assert.False(t, ok)
}
