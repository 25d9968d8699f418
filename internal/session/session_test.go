package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(Config{Secret: []byte("test-secret")})
	require.NoError(t, err)
	return m
}

// roundTrip saves s and returns a request carrying the resulting cookie.
func roundTrip(t *testing.T, m *Manager, s *Session) *http.Request {
	t.Helper()
	rr := httptest.NewRecorder()
	require.NoError(t, m.Save(rr, s))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rr.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

func TestNewManagerRequiresSecret(t *testing.T) {
	_, err := NewManager(Config{})
	assert.Error(t, err)
}

func TestLoadCreatesSession(t *testing.T) {
	m := newManager(t)
	s := m.Load(httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotEmpty(t, s.ID)
	assert.True(t, s.Dirty())
	assert.Empty(t, s.PopFlashes())
}

func TestSessionIDIsStable(t *testing.T) {
	m := newManager(t)
	s := m.Load(httptest.NewRequest(http.MethodGet, "/", nil))

	again := m.Load(roundTrip(t, m, s))
	assert.Equal(t, s.ID, again.ID)
	assert.False(t, again.Dirty())
}

func TestFlashesSurviveOneRedirect(t *testing.T) {
	m := newManager(t)
	s := m.Load(httptest.NewRequest(http.MethodGet, "/", nil))
	s.AddFlash("No file part")
	s.AddFlash("File type not allowed")

	next := m.Load(roundTrip(t, m, s))
	assert.Equal(t, []string{"No file part", "File type not allowed"}, next.PopFlashes())
	assert.True(t, next.Dirty())

	after := m.Load(roundTrip(t, m, next))
	assert.Empty(t, after.PopFlashes())
	assert.Equal(t, s.ID, after.ID)
}

func TestSaveSkipsCleanSession(t *testing.T) {
	m := newManager(t)
	s := m.Load(httptest.NewRequest(http.MethodGet, "/", nil))
	req := roundTrip(t, m, s)

	rr := httptest.NewRecorder()
	require.NoError(t, m.Save(rr, m.Load(req)))
	assert.Empty(t, rr.Result().Cookies())
}

func TestTamperedCookieStartsOver(t *testing.T) {
	m := newManager(t)
	s := m.Load(httptest.NewRequest(http.MethodGet, "/", nil))
	req := roundTrip(t, m, s)

	other, err := NewManager(Config{Secret: []byte("another-secret")})
	require.NoError(t, err)
	assert.NotEqual(t, s.ID, other.Load(req).ID)

	bad := httptest.NewRequest(http.MethodGet, "/", nil)
	bad.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "not-a-jwt"})
	assert.NotEqual(t, s.ID, m.Load(bad).ID)
}

func TestExpiredCookieStartsOver(t *testing.T) {
	m, err := NewManager(Config{Secret: []byte("k"), MaxAge: time.Hour})
	require.NoError(t, err)

	s := m.Load(httptest.NewRequest(http.MethodGet, "/", nil))
	req := roundTrip(t, m, s)

	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	assert.NotEqual(t, s.ID, m.Load(req).ID)
}

func TestCookieAttributes(t *testing.T) {
	m, err := NewManager(Config{Secret: []byte("k"), CookieName: "sid", Secure: true})
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	require.NoError(t, m.Save(rr, m.Load(httptest.NewRequest(http.MethodGet, "/", nil))))

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, "sid", c.Name)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
}
