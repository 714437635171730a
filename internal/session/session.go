package session

import (
	"context"
	"errors"
)

// Session is a Backend bound to a single session id.
type Session struct {
	id      string
	backend Backend
}

func New(id string, backend Backend) *Session {
	return &Session{id: id, backend: backend}
}

func (s *Session) ID() string {
	return s.id
}

// Get returns the value stored under key. A missing key is reported through
// the boolean, not as an error.
func (s *Session) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.backend.Get(ctx, s.id, key)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (s *Session) Set(ctx context.Context, key string, value []byte) error {
	return s.backend.Set(ctx, s.id, key, value)
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Session) Delete(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, s.id, key)
}

type ctxKey struct{}

// NewContext returns a copy of ctx carrying sess.
func NewContext(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, sess)
}

// FromContext returns the session attached by Manager.Middleware.
func FromContext(ctx context.Context) (*Session, bool) {
	sess, ok := ctx.Value(ctxKey{}).(*Session)
	return sess, ok
}
