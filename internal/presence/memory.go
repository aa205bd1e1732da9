package presence

import (
	"context"
	"sort"
	"sync"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/geo"
)

// MemoryRegistry keeps presence snapshots in a map.
type MemoryRegistry struct {
	mu      sync.RWMutex
	drivers map[string]domain.DriverPresence
}

// NewMemoryRegistry creates an empty MemoryRegistry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{drivers: make(map[string]domain.DriverPresence)}
}

var _ Store = (*MemoryRegistry)(nil)

// Heartbeat records the latest snapshot for a driver.
func (m *MemoryRegistry) Heartbeat(ctx context.Context, p domain.DriverPresence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drivers[p.DriverID] = p
	return nil
}

// SetOffline marks a driver offline, keeping its last position.
func (m *MemoryRegistry) SetOffline(ctx context.Context, driverID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.drivers[driverID]; ok {
		p.Online = false
		m.drivers[driverID] = p
	}
	return nil
}

// EligibleDrivers returns fresh online drivers ordered by driver id.
func (m *MemoryRegistry) EligibleDrivers(ctx context.Context, q Query) ([]domain.DriverPresence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.DriverPresence, 0, len(m.drivers))
	for _, p := range m.drivers {
		if !p.Eligible(q.Now, q.Freshness) {
			continue
		}
		if q.RadiusKm > 0 && geo.DistanceKm(q.Lat, q.Lng, p.Lat, p.Lng) > q.RadiusKm {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DriverID < out[j].DriverID })
	return out, nil
}
