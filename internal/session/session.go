// Package session keeps the per-browser session id and pending flash messages
// in an HS256-signed cookie.
package session

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultCookieName = "scanlab_session"
	DefaultMaxAge     = 30 * 24 * time.Hour
)

type claims struct {
	Flashes []string `json:"flashes,omitempty"`
	jwt.RegisteredClaims
}

// Session is the decoded cookie of one request.
type Session struct {
	ID      string
	flashes []string
	dirty   bool
}

// AddFlash queues msg for the next rendered page.
func (s *Session) AddFlash(msg string) {
	s.flashes = append(s.flashes, msg)
	s.dirty = true
}

// PopFlashes returns and clears the pending messages.
func (s *Session) PopFlashes() []string {
	out := s.flashes
	if len(out) > 0 {
		s.flashes = nil
		s.dirty = true
	}
	return out
}

// Dirty reports whether the session must be written back.
func (s *Session) Dirty() bool { return s.dirty }

type Config struct {
	Secret     []byte
	CookieName string
	MaxAge     time.Duration
	Secure     bool
}

type Manager struct {
	secret []byte
	name   string
	maxAge time.Duration
	secure bool
	now    func() time.Time
}

func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("session: secret is required")
	}
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	return &Manager{
		secret: cfg.Secret,
		name:   cfg.CookieName,
		maxAge: cfg.MaxAge,
		secure: cfg.Secure,
		now:    time.Now,
	}, nil
}

// Load decodes the session cookie. A missing, tampered or expired cookie
// yields a fresh session with a new id, marked dirty so it gets saved.
func (m *Manager) Load(r *http.Request) *Session {
	if c, err := r.Cookie(m.name); err == nil {
		if s, err := m.decode(c.Value); err == nil {
			return s
		}
	}
	return &Session{ID: uuid.NewString(), dirty: true}
}

// Save writes the cookie when the session changed. It must run before the
// response body is written.
func (m *Manager) Save(w http.ResponseWriter, s *Session) error {
	if !s.Dirty() {
		return nil
	}
	value, err := m.encode(s)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(m.maxAge / time.Second),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	s.dirty = false
	return nil
}

func (m *Manager) encode(s *Session) (string, error) {
	now := m.now()
	c := claims{
		Flashes: s.flashes,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        s.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.maxAge)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.secret)
}

func (m *Manager) decode(value string) (*Session, error) {
	var c claims
	token, err := jwt.ParseWithClaims(value, &c,
		func(*jwt.Token) (interface{}, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid || c.ID == "" {
		return nil, errors.New("session: invalid token")
	}
	return &Session{ID: c.ID, flashes: c.Flashes}, nil
}
