package storage

import (
	"context"
	"sort"
	"sync"

	"synaptor/internal/model"
)

type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]NetworkSnapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots = make(map[string]NetworkSnapshot)
	return nil
}

func (s *MemoryStore) SaveSnapshot(_ context.Context, snap NetworkSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap.Connections = append([]model.ConnInfo(nil), snap.Connections...)
	s.snapshots[snap.ID] = snap
	return nil
}

func (s *MemoryStore) GetSnapshot(_ context.Context, id string) (NetworkSnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[id]
	if !ok {
		return NetworkSnapshot{}, false, nil
	}
	snap.Connections = append([]model.ConnInfo(nil), snap.Connections...)
	return snap, true, nil
}

func (s *MemoryStore) ListSnapshots(_ context.Context) ([]SnapshotInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]SnapshotInfo, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		infos = append(infos, SnapshotInfo{
			ID:             snap.ID,
			Network:        snap.Network,
			CreatedAt:      snap.CreatedAt,
			NumConnections: len(snap.Connections),
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].CreatedAt.Before(infos[j].CreatedAt)
		}
		return infos[i].ID < infos[j].ID
	})
	return infos, nil
}

func (s *MemoryStore) DeleteSnapshot(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.snapshots, id)
	return nil
}
