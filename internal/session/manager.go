package session

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultCookieName = "flashbox_session"

// CookieOptions controls the session cookie issued by Manager.
type CookieOptions struct {
	Name   string
	TTL    time.Duration
	Secure bool
}

// Manager binds incoming requests to sessions through a cookie holding the
// session id.
type Manager struct {
	backend Backend
	cookie  CookieOptions
	logger  *zap.Logger
}

func NewManager(backend Backend, cookie CookieOptions, logger *zap.Logger) *Manager {
	if cookie.Name == "" {
		cookie.Name = DefaultCookieName
	}
	return &Manager{
		backend: backend,
		cookie:  cookie,
		logger:  logger,
	}
}

// Session returns the session with the given id.
func (m *Manager) Session(id string) *Session {
	return New(id, m.backend)
}

// Middleware attaches a session to the request context, issuing a new id
// when the request carries none or an invalid one. The cookie is refreshed on
// every response.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := m.requestID(r)
		if id == "" {
			id = uuid.NewString()
			m.logger.Debug("Session started", zap.String("session_id", id))
		}

		cookie := &http.Cookie{
			Name:     m.cookie.Name,
			Value:    id,
			Path:     "/",
			HttpOnly: true,
			Secure:   m.cookie.Secure,
			SameSite: http.SameSiteLaxMode,
		}
		if m.cookie.TTL > 0 {
			cookie.MaxAge = int(m.cookie.TTL.Seconds())
		}
		http.SetCookie(w, cookie)

		ctx := NewContext(r.Context(), m.Session(id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Manager) requestID(r *http.Request) string {
	c, err := r.Cookie(m.cookie.Name)
	if err != nil {
		return ""
	}
	id, err := uuid.Parse(c.Value)
	if err != nil {
		m.logger.Debug("Discarding invalid session cookie", zap.Error(err))
		return ""
	}
	return id.String()
}
