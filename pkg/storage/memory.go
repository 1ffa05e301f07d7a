package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opscart/vm-reclaim/pkg/models"
)

// MemoryStore keeps reclamations in process memory. Contents are lost on exit.
type MemoryStore struct {
	data  map[string]*models.Reclamation
	mutex sync.RWMutex
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]*models.Reclamation),
	}
}

func (m *MemoryStore) SaveReclamation(ctx context.Context, rec *models.Reclamation) error {
	if rec.Worker == nil {
		return fmt.Errorf("reclamation %s has no worker", rec.ID)
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	m.data[rec.ID] = cloneReclamation(rec)
	return nil
}

func (m *MemoryStore) GetReclamation(ctx context.Context, id string) (*models.Reclamation, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	rec, exists := m.data[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return cloneReclamation(rec), nil
}

func (m *MemoryStore) ListReclamations(ctx context.Context, sessionID string, limit int) ([]*models.Reclamation, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var out []*models.Reclamation
	for _, rec := range m.data {
		if sessionID != "" && rec.SessionID != sessionID {
			continue
		}
		out = append(out, cloneReclamation(rec))
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Worker.PID < out[j].Worker.PID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryStore) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.data = make(map[string]*models.Reclamation)
	return nil
}

func cloneReclamation(rec *models.Reclamation) *models.Reclamation {
	c := *rec
	w := *rec.Worker
	c.Worker = &w
	return &c
}
