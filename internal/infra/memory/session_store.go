package memory

import (
	"context"
	"sync"

	"omrzen/internal/domain"
)

// SessionStore is an in-memory implementation of app.FieldStore.
type SessionStore struct {
	mu     sync.RWMutex
	fields map[domain.Field]string
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		fields: make(map[domain.Field]string),
	}
}

func (s *SessionStore) Get(_ context.Context, field domain.Field) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.fields[field]
	return value, ok, nil
}

func (s *SessionStore) Set(_ context.Context, field domain.Field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields[field] = value
	return nil
}

func (s *SessionStore) Delete(_ context.Context, fields ...domain.Field) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range fields {
		delete(s.fields, f)
	}
	return nil
}

// Len reports how many fields are stored.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.fields)
}
