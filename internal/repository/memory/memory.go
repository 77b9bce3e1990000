// Package memory holds in-process repositories for tests and dry runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/comms-notebook/internal/model"
	"github.com/jwalitptl/comms-notebook/internal/repository"
)

type CommunicationStore struct {
	mu    sync.RWMutex
	items map[uuid.UUID]*model.Communication
	// Err, when set, is returned by Query.
	Err error
}

var _ repository.CommunicationRepository = (*CommunicationStore)(nil)

func NewCommunicationStore(items ...*model.Communication) *CommunicationStore {
	s := &CommunicationStore{items: make(map[uuid.UUID]*model.Communication)}
	for _, c := range items {
		_ = s.Create(context.Background(), c)
	}
	return s
}

func (s *CommunicationStore) Query(_ context.Context, filter model.CommunicationFilter) ([]*model.Communication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return nil, s.Err
	}

	var out []*model.Communication
	for _, c := range s.items {
		if filter.Matches(c.Timestamp) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (s *CommunicationStore) Create(_ context.Context, c *model.Communication) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	if c.State == "" {
		c.State = model.FollowUpPending
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.items[c.ID] = &cp
	return nil
}

type WatermarkStore struct {
	mu     sync.RWMutex
	values map[string]*model.Watermark
	// GetErr and SetErr, when set, fail every Get or Set.
	GetErr error
	SetErr error
}

var _ repository.WatermarkRepository = (*WatermarkStore)(nil)

func NewWatermarkStore() *WatermarkStore {
	return &WatermarkStore{values: make(map[string]*model.Watermark)}
}

func (s *WatermarkStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.GetErr != nil {
		return "", false, s.GetErr
	}
	w, ok := s.values[key]
	if !ok {
		return "", false, nil
	}
	return w.Value, true, nil
}

func (s *WatermarkStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SetErr != nil {
		return s.SetErr
	}
	s.values[key] = &model.Watermark{Key: key, Value: value, UpdatedAt: time.Now()}
	return nil
}

func (s *WatermarkStore) List(_ context.Context) ([]*model.Watermark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Watermark, 0, len(s.values))
	for _, w := range s.values {
		cp := *w
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *WatermarkStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; !ok {
		return repository.ErrNotFound
	}
	delete(s.values, key)
	return nil
}

func (s *WatermarkStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]*model.Watermark)
	return nil
}

// Snapshot copies the current values, for assertions.
func (s *WatermarkStore) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.values))
	for k, w := range s.values {
		out[k] = w.Value
	}
	return out
}
