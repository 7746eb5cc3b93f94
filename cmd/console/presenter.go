package main

import (
	"sort"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/huntforge/anchorhunt/internal/presenter"
	"github.com/huntforge/anchorhunt/pkg/anchor"
)

// anchorVisual is what the console knows about one spawned anchor.
type anchorVisual struct {
	ID        string
	PrefabKey string
	Pos       anchor.Vec3
	Visible   bool
}

// popupState is the currently displayed popup, if any.
type popupState struct {
	Message string
	Title   string
}

// promptState is the currently open puzzle prompt, if any.
type promptState struct {
	Hint     string
	Title    string
	Feedback string
}

// stateChangedMsg tells the UI to re-render the engine state.
type stateChangedMsg struct{}

// consolePresenter renders engine callbacks into state the TUI can draw.
// The engine calls it from its own goroutines, so every mutation is locked
// and followed by a message to the bubbletea program.
type consolePresenter struct {
	mu       sync.Mutex
	anchors  map[string]anchorVisual
	popup    *popupState
	prompt   *promptState
	onSubmit func(string)
	send     func(tea.Msg)
}

// Ensure the console implements both engine-facing surfaces
var (
	_ presenter.Presenter    = (*consolePresenter)(nil)
	_ presenter.PuzzlePrompt = (*consolePresenter)(nil)
)

func newConsolePresenter() *consolePresenter {
	return &consolePresenter{anchors: make(map[string]anchorVisual)}
}

// attach wires the running program. Calls before attach only mutate state;
// the first render after attach picks them up.
func (c *consolePresenter) attach(p *tea.Program) {
	c.mu.Lock()
	c.send = p.Send
	c.mu.Unlock()
}

func (c *consolePresenter) notify() {
	c.mu.Lock()
	send := c.send
	c.mu.Unlock()
	if send != nil {
		send(stateChangedMsg{})
	}
}

func (c *consolePresenter) SpawnOrMove(anchorID, prefabKey string, pos anchor.Vec3, rot anchor.Quat, visible bool) {
	c.mu.Lock()
	c.anchors[anchorID] = anchorVisual{ID: anchorID, PrefabKey: prefabKey, Pos: pos, Visible: visible}
	c.mu.Unlock()
	c.notify()
}

func (c *consolePresenter) Destroy(anchorID string) {
	c.mu.Lock()
	delete(c.anchors, anchorID)
	c.mu.Unlock()
	c.notify()
}

func (c *consolePresenter) SetVisible(anchorID string, visible bool) {
	c.mu.Lock()
	if v, ok := c.anchors[anchorID]; ok {
		v.Visible = visible
		c.anchors[anchorID] = v
	}
	c.mu.Unlock()
	c.notify()
}

func (c *consolePresenter) ShowPopup(message, title string) {
	c.mu.Lock()
	c.popup = &popupState{Message: message, Title: title}
	c.mu.Unlock()
	c.notify()
}

func (c *consolePresenter) HidePopup() {
	c.mu.Lock()
	c.popup = nil
	c.mu.Unlock()
	c.notify()
}

func (c *consolePresenter) Show(hint, title string, onSubmit func(string)) {
	c.mu.Lock()
	c.prompt = &promptState{Hint: hint, Title: title}
	c.onSubmit = onSubmit
	c.mu.Unlock()
	c.notify()
}

func (c *consolePresenter) Hide() {
	c.mu.Lock()
	c.prompt = nil
	c.onSubmit = nil
	c.mu.Unlock()
	c.notify()
}

func (c *consolePresenter) SetFeedback(message string) {
	c.mu.Lock()
	if c.prompt != nil {
		c.prompt.Feedback = message
	}
	c.mu.Unlock()
	c.notify()
}

// submitAnswer forwards the typed answer to the engine's callback.
func (c *consolePresenter) submitAnswer(entered string) {
	c.mu.Lock()
	cb := c.onSubmit
	c.mu.Unlock()
	if cb != nil {
		cb(entered)
	}
}

// visuals returns the spawned anchors sorted by id for stable rendering.
func (c *consolePresenter) visuals() []anchorVisual {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]anchorVisual, 0, len(c.anchors))
	for _, v := range c.anchors {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *consolePresenter) currentPopup() *popupState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.popup == nil {
		return nil
	}
	p := *c.popup
	return &p
}

func (c *consolePresenter) currentPrompt() *promptState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.prompt == nil {
		return nil
	}
	p := *c.prompt
	return &p
}
