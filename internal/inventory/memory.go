package inventory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/stocksentry/stocksentry/internal/eventbus"
	"github.com/stocksentry/stocksentry/pkg/types"
)

// MemoryClient is an in-process inventory backend for tests and the demo
// mode. It enforces optimistic locking the way the production collaborator
// does and publishes change events on the bus.
type MemoryClient struct {
	mu        sync.RWMutex
	records   map[string]types.Record
	order     []string
	immutable map[string]struct{}
	bus       eventbus.Bus
}

// NewMemory creates an empty in-memory inventory. Records keyed "id" and
// "sku" are immutable to rules, matching the collaborator's policy.
func NewMemory(bus eventbus.Bus) *MemoryClient {
	return &MemoryClient{
		records:   make(map[string]types.Record),
		immutable: map[string]struct{}{"id": {}, "sku": {}},
		bus:       bus,
	}
}

// Put seeds or replaces a record. Not part of the Client interface; tests
// and the demo loader use it.
func (m *MemoryClient) Put(rec types.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.ID]; !ok {
		m.order = append(m.order, rec.ID)
	}
	if rec.Version == 0 {
		rec.Version = 1
	}
	m.records[rec.ID] = cloneRecord(rec)
}

// GetRecords returns records matching the filter in insertion order.
func (m *MemoryClient) GetRecords(_ context.Context, filter types.RecordFilter) ([]types.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var wanted map[string]struct{}
	if len(filter.IDs) > 0 {
		wanted = make(map[string]struct{}, len(filter.IDs))
		for _, id := range filter.IDs {
			wanted[id] = struct{}{}
		}
	}

	var out []types.Record
	for _, id := range m.order {
		rec := m.records[id]
		if wanted != nil {
			if _, ok := wanted[id]; !ok {
				continue
			}
		}
		if !matchesWhere(rec, filter.Where) {
			continue
		}
		out = append(out, cloneRecord(rec))
	}
	return out, nil
}

// UpdateField mutates one field under optimistic locking and publishes an
// inventory change event carrying the updated record.
func (m *MemoryClient) UpdateField(ctx context.Context, recordID, field string, value any, expectedVersion int64) error {
	m.mu.Lock()
	rec, ok := m.records[recordID]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if _, ok := m.immutable[field]; ok {
		m.mu.Unlock()
		return ErrImmutableField
	}
	if rec.Version != expectedVersion {
		m.mu.Unlock()
		return ErrVersionConflict
	}

	setPath(rec.Fields, field, value)
	rec.Version++
	m.records[recordID] = rec
	updated := cloneRecord(rec)
	m.mu.Unlock()

	if m.bus != nil {
		return m.bus.Publish(ctx, types.BusEvent{
			Name:      types.InventoryChanged,
			Records:   []types.Record{updated},
			Timestamp: time.Now(),
		})
	}
	return nil
}

func matchesWhere(rec types.Record, where map[string]any) bool {
	for k, v := range where {
		got, ok := rec.Fields[k]
		if !ok || got != v {
			return false
		}
	}
	return true
}

// setPath writes a dot-path field, creating intermediate maps as needed.
func setPath(fields map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	cur := fields
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
}

func cloneRecord(rec types.Record) types.Record {
	out := rec
	out.Fields = cloneMap(rec.Fields)
	return out
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			out[k] = cloneMap(nested)
			continue
		}
		out[k] = v
	}
	return out
}
