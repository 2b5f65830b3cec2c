package addressindex

import (
	"context"
	"sync"

	"github.com/hathorqa/qaconsole/src/model"
)

// MemoryStore is the in-process KeyedStore, used in tests and when the
// console runs without redis.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]model.AddressRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]model.AddressRecord{}}
}

func (s *MemoryStore) Get(ctx context.Context, address string) (*model.AddressRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[address]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *MemoryStore) Put(ctx context.Context, rec *model.AddressRecord) error {
	s.mu.Lock()
	s.records[rec.Address] = *rec
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetAll(ctx context.Context) ([]*model.AddressRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.AddressRecord, 0, len(s.records))
	for _, rec := range s.records {
		r := rec
		out = append(out, &r)
	}
	return out, nil
}
