// Package alert queues flash alerts in a session and hands them out once.
//
// The whole queue lives under one session key and is rewritten in full on
// every mutation. Two concurrent requests of the same session that both
// mutate the queue race; the last write wins.
package alert

import (
	"context"
	"encoding/json"
	"fmt"

	"flashbox/internal/model"

	"go.uber.org/zap"
)

// DefaultKey is the session key holding the queue.
const DefaultKey = "alert"

// Session is the per-client key-value storage the queue lives in.
type Session interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

type Store struct {
	session Session
	key     string
	logger  *zap.Logger
}

type Option func(*Store)

// WithKey overrides the session key holding the queue.
func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewStore(sess Session, opts ...Option) *Store {
	s := &Store{
		session: sess,
		key:     DefaultKey,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type entry struct {
	subject string
	block   bool
}

// SetOption adjusts an alert before it is queued.
type SetOption func(*entry)

// WithSubject gives the alert a heading. The subject is formatted with the
// same values as the text.
func WithSubject(subject string) SetOption {
	return func(e *entry) {
		e.subject = subject
	}
}

// Block asks for block-style rendering.
func Block() SetOption {
	return func(e *entry) {
		e.block = true
	}
}

func newEntry(opts []SetOption) entry {
	var e entry
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// Set queues an alert with text and subject taken verbatim.
func (s *Store) Set(ctx context.Context, typ model.Type, text string, opts ...SetOption) error {
	e := newEntry(opts)
	return s.push(ctx, model.Alert{
		Type:    typ,
		Text:    text,
		Subject: e.subject,
		Block:   e.block,
	})
}

// SetWithTemplate queues an alert after replacing each key of values found in
// text and subject, e.g. ":name" -> "Bob".
func (s *Store) SetWithTemplate(ctx context.Context, typ model.Type, text string, values map[string]string, opts ...SetOption) error {
	e := newEntry(opts)
	if len(values) > 0 {
		text = substitute(text, values)
		e.subject = substitute(e.subject, values)
	}
	return s.push(ctx, model.Alert{
		Type:    typ,
		Text:    text,
		Subject: e.subject,
		Block:   e.block,
	})
}

// SetWithPositional queues an alert with text and subject each used as a
// fmt format string over the same values. A missing subject is not formatted.
func (s *Store) SetWithPositional(ctx context.Context, typ model.Type, text string, values []any, opts ...SetOption) error {
	e := newEntry(opts)
	if len(values) > 0 {
		text = sprintf(text, values)
		e.subject = sprintf(e.subject, values)
	}
	return s.push(ctx, model.Alert{
		Type:    typ,
		Text:    text,
		Subject: e.subject,
		Block:   e.block,
	})
}

func (s *Store) push(ctx context.Context, a model.Alert) error {
	alerts, _, err := s.load(ctx)
	if err != nil {
		return err
	}
	alerts = append(alerts, a)
	if err := s.save(ctx, alerts); err != nil {
		return err
	}
	s.logger.Debug("Alert queued",
		zap.String("type", string(a.Type)),
		zap.Int("queued", len(alerts)))
	return nil
}

// Get returns the queued alerts of the given types, or all of them when no
// type is given, without removing anything.
func (s *Store) Get(ctx context.Context, types ...model.Type) ([]model.Alert, error) {
	return s.take(ctx, types, false)
}

// GetOnce returns the matching alerts and removes them from the queue.
// Alerts of other types stay queued.
func (s *Store) GetOnce(ctx context.Context, types ...model.Type) ([]model.Alert, error) {
	return s.take(ctx, types, true)
}

// Delete drops the alerts of the given types, or the whole queue when no type
// is given.
func (s *Store) Delete(ctx context.Context, types ...model.Type) error {
	if len(types) == 0 {
		return s.clear(ctx)
	}
	_, err := s.take(ctx, types, true)
	return err
}

// take filters the queue by types and, when remove is set, writes back only
// the alerts that did not match. A queue left empty is removed, never stored.
func (s *Store) take(ctx context.Context, types []model.Type, remove bool) ([]model.Alert, error) {
	alerts, present, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if len(alerts) == 0 {
		// A stored but empty queue is dropped like any other emptied queue.
		if present && remove && len(types) == 0 {
			if err := s.clear(ctx); err != nil {
				return nil, err
			}
		}
		return []model.Alert{}, nil
	}

	if len(types) == 0 {
		if remove {
			if err := s.clear(ctx); err != nil {
				return nil, err
			}
		}
		return alerts, nil
	}

	wanted := make(map[model.Type]struct{}, len(types))
	for _, t := range types {
		wanted[t] = struct{}{}
	}

	matched := make([]model.Alert, 0, len(alerts))
	var remainder []model.Alert
	for _, a := range alerts {
		if _, ok := wanted[a.Type]; ok {
			matched = append(matched, a)
		} else {
			remainder = append(remainder, a)
		}
	}

	if len(matched) == 0 || !remove {
		return matched, nil
	}

	if len(remainder) == 0 {
		err = s.clear(ctx)
	} else {
		err = s.save(ctx, remainder)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Alerts removed",
		zap.Int("removed", len(matched)),
		zap.Int("remaining", len(remainder)))
	return matched, nil
}

// load reads the queue. present reports whether the session holds the key at
// all, even when the stored queue is empty.
func (s *Store) load(ctx context.Context) (alerts []model.Alert, present bool, err error) {
	data, ok, err := s.session.Get(ctx, s.key)
	if err != nil {
		return nil, false, fmt.Errorf("load alerts: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	if len(data) == 0 {
		return nil, true, nil
	}

	if err := json.Unmarshal(data, &alerts); err != nil {
		return nil, true, fmt.Errorf("decode alerts: %w", err)
	}
	return alerts, true, nil
}

func (s *Store) save(ctx context.Context, alerts []model.Alert) error {
	data, err := json.Marshal(alerts)
	if err != nil {
		return fmt.Errorf("encode alerts: %w", err)
	}
	if err := s.session.Set(ctx, s.key, data); err != nil {
		return fmt.Errorf("save alerts: %w", err)
	}
	return nil
}

func (s *Store) clear(ctx context.Context) error {
	if err := s.session.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("delete alerts: %w", err)
	}
	return nil
}
