// Package store provides in-memory fleet.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/fleet-engine/fleet"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps records in insertion order. Saving a record whose id already
// exists replaces it in place; records without an id are always appended.
type Memory struct {
	mu       sync.RWMutex
	vehicles []fleet.Vehicle
	daily    []fleet.DailyFinanceRecord
	service  map[string][]fleet.ServiceRecord
}

var _ fleet.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{service: make(map[string][]fleet.ServiceRecord)}
}

// NewMemoryFrom builds a store preloaded with snap.
func NewMemoryFrom(snap fleet.Snapshot) *Memory {
	m := NewMemory()
	// Memory writes cannot fail.
	_ = fleet.WriteSnapshot(context.Background(), m, snap)
	return m
}

func (m *Memory) SaveVehicle(_ context.Context, v fleet.Vehicle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.vehicles {
		if m.vehicles[i].ID == v.ID {
			m.vehicles[i] = v
			return nil
		}
	}
	m.vehicles = append(m.vehicles, v)
	return nil
}

func (m *Memory) SaveDailyRecord(_ context.Context, r fleet.DailyFinanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.ID != "" {
		for i := range m.daily {
			if m.daily[i].ID == r.ID {
				m.daily[i] = r
				return nil
			}
		}
	}
	m.daily = append(m.daily, r)
	return nil
}

func (m *Memory) SaveServiceRecord(_ context.Context, r fleet.ServiceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	records := m.service[r.VehicleID]
	if r.ID != "" {
		for i := range records {
			if records[i].ID == r.ID {
				records[i] = r
				return nil
			}
		}
	}
	m.service[r.VehicleID] = append(records, r)
	return nil
}

func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.vehicles = nil
	m.daily = nil
	m.service = make(map[string][]fleet.ServiceRecord)
	return nil
}

func (m *Memory) Vehicles(_ context.Context) ([]fleet.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]fleet.Vehicle(nil), m.vehicles...), nil
}

func (m *Memory) DailyRecords(_ context.Context) ([]fleet.DailyFinanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]fleet.DailyFinanceRecord(nil), m.daily...), nil
}

func (m *Memory) ServiceRecords(_ context.Context, vehicleID string) ([]fleet.ServiceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]fleet.ServiceRecord(nil), m.service[vehicleID]...), nil
}

func (m *Memory) ServiceVehicleIDs(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.service))
	for id, records := range m.service {
		if len(records) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
