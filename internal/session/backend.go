package session

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("session value not found")
)

// Backend stores session values, scoped by session id.
type Backend interface {
	Get(ctx context.Context, sid, key string) ([]byte, error)
	Set(ctx context.Context, sid, key string, value []byte) error
	Delete(ctx context.Context, sid, key string) error
	Close() error
}
