package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"repairshop-scraper/models"
)

type naturalKey struct {
	name, postalCode string
}

// MemoryStore keeps listings in process memory. It is safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	byID  map[string]*models.Listing
	byKey map[naturalKey]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:  make(map[string]*models.Listing),
		byKey: make(map[naturalKey]string),
	}
}

func (m *MemoryStore) FindByKey(_ context.Context, name, postalCode string) (*models.Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byKey[naturalKey{name, postalCode}]
	if !ok {
		return nil, ErrNotFound
	}
	return copyListing(m.byID[id]), nil
}

func (m *MemoryStore) Insert(_ context.Context, l *models.Listing) (*models.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := naturalKey{l.Name, l.PostalCode}
	if _, taken := m.byKey[key]; taken {
		return nil, fmt.Errorf("memory: insert %q: %w", l.Name, ErrDuplicate)
	}
	if _, taken := m.byID[l.ID]; taken {
		return nil, fmt.Errorf("memory: insert id %s: %w", l.ID, ErrDuplicate)
	}
	m.byID[l.ID] = copyListing(l)
	m.byKey[key] = l.ID
	return copyListing(l), nil
}

func (m *MemoryStore) Update(_ context.Context, id string, l *models.Listing) (*models.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	newKey := naturalKey{l.Name, l.PostalCode}
	if owner, taken := m.byKey[newKey]; taken && owner != id {
		return nil, fmt.Errorf("memory: update %s: %w", id, ErrDuplicate)
	}

	delete(m.byKey, naturalKey{old.Name, old.PostalCode})
	stored := copyListing(l)
	stored.ID = id
	m.byID[id] = stored
	m.byKey[newKey] = id
	return copyListing(stored), nil
}

// FetchAll returns every listing ordered by creation time, then ID.
func (m *MemoryStore) FetchAll(_ context.Context) ([]*models.Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Listing, 0, len(m.byID))
	for _, l := range m.byID {
		out = append(out, copyListing(l))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }

func copyListing(l *models.Listing) *models.Listing {
	c := *l
	if l.Coordinates != nil {
		coords := *l.Coordinates
		c.Coordinates = &coords
	}
	return &c
}
