package presenter

import (
	"sync"

	"github.com/huntforge/anchorhunt/pkg/anchor"
)

// MockPresenter records every call for test assertions.
type MockPresenter struct {
	mu sync.Mutex

	Spawned    map[string]SpawnCall // last spawn/move per anchor
	SpawnCount map[string]int       // spawn/move calls per anchor
	Visibility map[string]bool      // last SetVisible per anchor
	Destroyed  []string
	Popups     []Popup
	PopupOpen  bool
}

// SpawnCall captures the arguments of one SpawnOrMove call.
type SpawnCall struct {
	PrefabKey string
	Pos       anchor.Vec3
	Rot       anchor.Quat
	Visible   bool
}

// Popup captures one ShowPopup call.
type Popup struct {
	Message string
	Title   string
}

// Ensure MockPresenter implements Presenter interface
var _ Presenter = (*MockPresenter)(nil)

// NewMockPresenter creates a new recording presenter
func NewMockPresenter() *MockPresenter {
	return &MockPresenter{
		Spawned:    make(map[string]SpawnCall),
		SpawnCount: make(map[string]int),
		Visibility: make(map[string]bool),
	}
}

func (m *MockPresenter) SpawnOrMove(anchorID, prefabKey string, pos anchor.Vec3, rot anchor.Quat, visible bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Spawned[anchorID] = SpawnCall{PrefabKey: prefabKey, Pos: pos, Rot: rot, Visible: visible}
	m.SpawnCount[anchorID]++
	m.Visibility[anchorID] = visible
}

func (m *MockPresenter) Destroy(anchorID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Spawned, anchorID)
	m.Destroyed = append(m.Destroyed, anchorID)
}

func (m *MockPresenter) SetVisible(anchorID string, visible bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Visibility[anchorID] = visible
}

func (m *MockPresenter) ShowPopup(message, title string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Popups = append(m.Popups, Popup{Message: message, Title: title})
	m.PopupOpen = true
}

func (m *MockPresenter) HidePopup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PopupOpen = false
}

// LastPopup returns the most recent popup, or false if none was shown
func (m *MockPresenter) LastPopup() (Popup, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Popups) == 0 {
		return Popup{}, false
	}
	return m.Popups[len(m.Popups)-1], true
}

// IsSpawned reports whether an anchor currently has a visual
func (m *MockPresenter) IsSpawned(anchorID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.Spawned[anchorID]
	return ok
}

// LastSpawn returns the most recent spawn/move call for an anchor
func (m *MockPresenter) LastSpawn(anchorID string) (SpawnCall, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	call, ok := m.Spawned[anchorID]
	return call, ok
}

// Spawns returns how many spawn/move calls an anchor has received
func (m *MockPresenter) Spawns(anchorID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.SpawnCount[anchorID]
}

// VisibleState returns the last visibility applied to an anchor
func (m *MockPresenter) VisibleState(anchorID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Visibility[anchorID]
}

// WasDestroyed reports whether Destroy was ever called for an anchor
func (m *MockPresenter) WasDestroyed(anchorID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.Destroyed {
		if id == anchorID {
			return true
		}
	}
	return false
}

// PopupVisible reports whether a popup is currently open
func (m *MockPresenter) PopupVisible() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.PopupOpen
}

// MockPuzzlePrompt records puzzle prompt interactions and lets tests drive
// the submit callback.
type MockPuzzlePrompt struct {
	mu sync.Mutex

	Open      bool
	Hint      string
	Title     string
	Feedback  []string
	ShowCount int

	onSubmit func(string)
}

// Ensure MockPuzzlePrompt implements PuzzlePrompt interface
var _ PuzzlePrompt = (*MockPuzzlePrompt)(nil)

func (m *MockPuzzlePrompt) Show(hint, title string, onSubmit func(string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Open = true
	m.Hint = hint
	m.Title = title
	m.ShowCount++
	m.onSubmit = onSubmit
}

func (m *MockPuzzlePrompt) Hide() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Open = false
	m.onSubmit = nil
}

func (m *MockPuzzlePrompt) SetFeedback(message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Feedback = append(m.Feedback, message)
}

// Submit simulates the user entering text into the open prompt
func (m *MockPuzzlePrompt) Submit(entered string) {
	m.mu.Lock()
	cb := m.onSubmit
	m.mu.Unlock()
	if cb != nil {
		cb(entered)
	}
}
