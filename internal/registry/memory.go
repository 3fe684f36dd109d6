package registry

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"fuelwatch/internal/model"
)

// Memory is the in-process Store used by tests and single-node deployments
// without a database.
type Memory struct {
	mu       sync.RWMutex
	stations map[string]*model.StationState // keyed by code
	history  []model.HistoryPoint
	alerts   []model.Alert
}

func NewMemory() *Memory {
	return &Memory{stations: make(map[string]*model.StationState)}
}

func (m *Memory) Init(ctx context.Context) error { return nil }
func (m *Memory) Close() error                   { return nil }

// Seed installs a station record. Not part of the Store interface: the
// pipeline never creates stations, only tests and bootstrap code do.
func (m *Memory) Seed(st model.StationState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := st
	m.stations[st.Code] = &cp
}

func (m *Memory) StationByCode(ctx context.Context, code string) (*model.StationState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.stations[code]
	if !ok {
		return nil, ErrStationNotFound
	}
	cp := *st
	return &cp, nil
}

func (m *Memory) ListStations(ctx context.Context, enterpriseID string) ([]model.StationState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.StationState, 0, len(m.stations))
	for _, st := range m.stations {
		if enterpriseID != "" && st.EnterpriseID != enterpriseID {
			continue
		}
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

func (m *Memory) UpdateStock(ctx context.Context, stationID string, fuel model.FuelKind, liters int64) error {
	if _, err := stockColumn(fuel); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, st := range m.stations {
		if st.ID == stationID {
			st.SetStock(fuel, liters)
			return nil
		}
	}
	return ErrStationNotFound
}

func (m *Memory) AppendHistory(ctx context.Context, point model.HistoryPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, point)
	return nil
}

// History returns the appended points, oldest first. Test helper.
func (m *Memory) History() []model.HistoryPoint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.HistoryPoint, len(m.history))
	copy(out, m.history)
	return out
}

func (m *Memory) SaveAlert(ctx context.Context, alert model.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, alert)
	return nil
}

func (m *Memory) AlertByID(ctx context.Context, id string) (*model.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := range m.alerts {
		if m.alerts[i].ID == id {
			cp := m.alerts[i]
			return &cp, nil
		}
	}
	return nil, ErrAlertNotFound
}

func (m *Memory) ListAlerts(ctx context.Context, filter AlertFilter) ([]model.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		if filter.EnterpriseID != "" && a.EnterpriseID != filter.EnterpriseID {
			continue
		}
		if filter.StationID != "" && a.StationID != filter.StationID {
			continue
		}
		if filter.OnlyUnresolved && a.Resolved {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *Memory) ResolveAlert(ctx context.Context, id, resolvedBy string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.alerts {
		if m.alerts[i].ID == id {
			m.alerts[i].Resolved = true
			m.alerts[i].ResolvedBy = resolvedBy
			m.alerts[i].ResolvedAt = at
			return nil
		}
	}
	return ErrAlertNotFound
}
