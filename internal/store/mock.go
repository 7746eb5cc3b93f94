package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/huntforge/anchorhunt/pkg/worldmap"
)

// MockStore is an in-memory implementation of Store for testing. Writes
// publish events to subscribers synchronously, so tests observe the same
// add/change flow the Redis store delivers.
type MockStore struct {
	mu       sync.Mutex
	anchors  map[int]map[string]map[string]any // mapID -> anchorID -> record
	solved   map[string]map[string]struct{}    // userID:mapID -> anchorIDs
	roles    map[string]string
	maps     []worldmap.Info
	subs     map[int][]chan AnchorEvent
	writeErr error
	pingErr  error
}

// Ensure MockStore implements Store interface
var _ Store = (*MockStore)(nil)

// NewMockStore creates a new mock store
func NewMockStore() *MockStore {
	return &MockStore{
		anchors: make(map[int]map[string]map[string]any),
		solved:  make(map[string]map[string]struct{}),
		roles:   make(map[string]string),
		subs:    make(map[int][]chan AnchorEvent),
	}
}

// SetWriteError configures every subsequent write to fail with err
func (m *MockStore) SetWriteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// SetPingError configures the mock to fail on ping with the given error
func (m *MockStore) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingErr = err
}

// SetRole stores a user role for UserRole lookups
func (m *MockStore) SetRole(userID, role string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roles[userID] = role
}

// SetMaps replaces the map list returned by ListMaps
func (m *MockStore) SetMaps(maps []worldmap.Info) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maps = maps
}

func (m *MockStore) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pingErr
}

func (m *MockStore) WaitReady(ctx context.Context) error {
	return m.Ping(ctx)
}

func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, chans := range m.subs {
		for _, ch := range chans {
			close(ch)
		}
	}
	m.subs = make(map[int][]chan AnchorEvent)
	return nil
}

func (m *MockStore) ListAnchors(ctx context.Context, mapID int) (map[string]map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]map[string]any, len(m.anchors[mapID]))
	for id, rec := range m.anchors[mapID] {
		out[id] = deepCopy(rec)
	}
	return out, nil
}

func (m *MockStore) GetAnchor(ctx context.Context, mapID int, anchorID string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.anchors[mapID][anchorID]
	if !ok {
		return nil, nil
	}
	return deepCopy(rec), nil
}

func (m *MockStore) SetAnchor(ctx context.Context, mapID int, anchorID string, rec map[string]any) error {
	m.mu.Lock()
	if m.writeErr != nil {
		defer m.mu.Unlock()
		return m.writeErr
	}

	if m.anchors[mapID] == nil {
		m.anchors[mapID] = make(map[string]map[string]any)
	}
	_, existed := m.anchors[mapID][anchorID]
	m.anchors[mapID][anchorID] = deepCopy(rec)

	kind := EventChildChanged
	if !existed {
		kind = EventChildAdded
	}
	event := AnchorEvent{Kind: kind, MapID: mapID, AnchorID: anchorID, Record: deepCopy(rec)}
	chans := append([]chan AnchorEvent(nil), m.subs[mapID]...)
	m.mu.Unlock()

	for _, ch := range chans {
		ch <- event
	}
	return nil
}

func (m *MockStore) UpdateAnchor(ctx context.Context, mapID int, anchorID string, updates map[string]any) error {
	m.mu.Lock()
	if m.writeErr != nil {
		defer m.mu.Unlock()
		return m.writeErr
	}

	if m.anchors[mapID] == nil {
		m.anchors[mapID] = make(map[string]map[string]any)
	}
	rec, ok := m.anchors[mapID][anchorID]
	if !ok {
		rec = map[string]any{"id": anchorID}
	}
	for path, value := range updates {
		applyPath(rec, path, value)
	}
	m.anchors[mapID][anchorID] = rec

	event := AnchorEvent{Kind: EventChildChanged, MapID: mapID, AnchorID: anchorID, Record: deepCopy(rec)}
	chans := append([]chan AnchorEvent(nil), m.subs[mapID]...)
	m.mu.Unlock()

	for _, ch := range chans {
		ch <- event
	}
	return nil
}

func (m *MockStore) RemoveAnchor(ctx context.Context, mapID int, anchorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	delete(m.anchors[mapID], anchorID)
	return nil
}

func (m *MockStore) Subscribe(ctx context.Context, mapID int) (<-chan AnchorEvent, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan AnchorEvent, 16)
	m.subs[mapID] = append(m.subs[mapID], ch)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			chans := m.subs[mapID]
			for i, c := range chans {
				if c == ch {
					m.subs[mapID] = append(chans[:i], chans[i+1:]...)
					close(ch)
					break
				}
			}
		})
	}
	return ch, cancel, nil
}

func (m *MockStore) SolvedAnchors(ctx context.Context, userID string, mapID int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for id := range m.solved[progressKey(userID, mapID)] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *MockStore) MarkSolved(ctx context.Context, userID string, mapID int, anchorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}

	key := progressKey(userID, mapID)
	if m.solved[key] == nil {
		m.solved[key] = make(map[string]struct{})
	}
	m.solved[key][anchorID] = struct{}{}
	return nil
}

// SolvedCount reports how many solves are stored for a user and map
func (m *MockStore) SolvedCount(userID string, mapID int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.solved[progressKey(userID, mapID)])
}

func (m *MockStore) ListMaps(ctx context.Context) ([]worldmap.Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]worldmap.Info(nil), m.maps...), nil
}

func (m *MockStore) UserRole(ctx context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if role, ok := m.roles[userID]; ok {
		return role, nil
	}
	return "guest", nil
}

func progressKey(userID string, mapID int) string {
	return fmt.Sprintf("%s:%d", userID, mapID)
}

func deepCopy(rec map[string]any) map[string]any {
	out := make(map[string]any, len(rec))
	for k, v := range rec {
		if child, ok := v.(map[string]any); ok {
			out[k] = deepCopy(child)
			continue
		}
		out[k] = v
	}
	return out
}
