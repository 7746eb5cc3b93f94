package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/huntforge/anchorhunt/internal/config"
	"github.com/huntforge/anchorhunt/internal/engine"
	"github.com/huntforge/anchorhunt/internal/identity"
	"github.com/huntforge/anchorhunt/internal/store"
	"github.com/huntforge/anchorhunt/pkg/anchor"
	"github.com/huntforge/anchorhunt/pkg/worldmap"
)

// editKind selects which editor the input line is driving.
type editKind int

const (
	editNone editKind = iota
	editName
	editPopup
	editPuzzle
	editPrefab
)

// editTargetMsg arrives when the dispatcher reports an anchor selected for
// editing.
type editTargetMsg struct {
	kind     editKind
	anchorID string
}

type mapsLoadedMsg struct {
	maps []worldmap.Info
	err  error
}

type sessionStartedMsg struct {
	mapID int
	err   error
}

type actionDoneMsg struct {
	err error
}

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("205")).
			Bold(true)

	hiddenStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	solvedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2)

	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Align(lipgloss.Center)

	separatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

// ConsoleUI is the BubbleTea model that runs the UI.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	cfg   *config.Config
	st    *store.RedisStore
	disp  *engine.Dispatcher
	reg   *engine.Registry
	trk   *engine.Tracker
	pres  *consolePresenter
	ident identity.Provider

	listViewport viewport.Model
	input        textinput.Model
	ready        bool
	width        int
	height       int
	selected     int
	status       string
	err          error

	// Map selection state
	showMapModal bool
	loadingMaps  bool
	maps         []worldmap.Ranked
	selectedMap  int
	started      bool

	// Answer / editor input state
	inputActive bool
	editing     editKind
	editTarget  string
	puzzleStep  int
	puzzleParts [3]string

	showQuitModal bool
}

func NewConsoleUI(cfg *config.Config, st *store.RedisStore, disp *engine.Dispatcher, reg *engine.Registry, trk *engine.Tracker, pres *consolePresenter, ident identity.Provider) ConsoleUI {
	in := textinput.New()
	in.Prompt = promptStyle.Render(":: ")
	in.CharLimit = 300

	vp := viewport.New(60, 20)

	return ConsoleUI{
		cfg:          cfg,
		st:           st,
		disp:         disp,
		reg:          reg,
		trk:          trk,
		pres:         pres,
		ident:        ident,
		input:        in,
		listViewport: vp,
		showMapModal: true,
		loadingMaps:  true,
	}
}

func (m ConsoleUI) Init() tea.Cmd {
	return m.loadMaps()
}

func (m ConsoleUI) loadMaps() tea.Cmd {
	return func() tea.Msg {
		maps, err := m.st.ListMaps(context.Background())
		return mapsLoadedMsg{maps, err}
	}
}

func (m ConsoleUI) startSession(mapID int) tea.Cmd {
	started := m.started
	return func() tea.Msg {
		var err error
		if started {
			err = m.disp.SwitchMap(context.Background(), mapID)
		} else {
			err = m.disp.Start(context.Background(), mapID)
		}
		return sessionStartedMsg{mapID, err}
	}
}

func (m ConsoleUI) tap(anchorID string) tea.Cmd {
	return func() tea.Msg {
		m.disp.HandleTap(context.Background(), anchorID)
		return actionDoneMsg{}
	}
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}
	if m.showMapModal {
		return m.updateMapModal(msg)
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.listViewport.Width = m.width - 4
		m.listViewport.Height = m.height - 8
		m.input.Width = m.width - 8
		m.ready = true
		m.refreshList()

	case stateChangedMsg:
		// The engine changed something; re-render and check whether a
		// puzzle prompt wants the input line.
		if m.pres.currentPrompt() != nil && !m.inputActive {
			m.inputActive = true
			m.editing = editNone
			m.input.Reset()
			m.input.Focus()
		}
		if m.pres.currentPrompt() == nil && m.editing == editNone && m.inputActive {
			m.inputActive = false
			m.input.Blur()
		}
		m.refreshList()

	case actionDoneMsg:
		if msg.err != nil {
			m.err = msg.err
		}
		m.refreshList()

	case sessionStartedMsg:
		if msg.err != nil {
			m.err = msg.err
			m.showMapModal = true
			return m, nil
		}
		m.started = true
		m.status = fmt.Sprintf("Map %d active", msg.mapID)
		m.refreshList()

	case editTargetMsg:
		m.editing = msg.kind
		m.editTarget = msg.anchorID
		m.puzzleStep = 0
		m.inputActive = true
		m.input.Reset()
		m.input.Placeholder = m.editPlaceholder()
		m.input.Focus()

	case tea.KeyMsg:
		if m.inputActive {
			return m.updateInput(msg)
		}
		return m.updateKeys(msg)
	}

	var cmd tea.Cmd
	m.listViewport, cmd = m.listViewport.Update(msg)
	return m, cmd
}

func (m ConsoleUI) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	rows := m.rows()

	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		if m.pres.currentPopup() != nil {
			m.pres.HidePopup()
			return m, nil
		}
		m.showQuitModal = true
		return m, nil

	case tea.KeyUp:
		if m.disp.InLocationEditMode() {
			return m, m.nudge(rows, 0, nudgeStep)
		}
		if m.selected > 0 {
			m.selected--
		}
		m.refreshList()
		return m, nil

	case tea.KeyDown:
		if m.disp.InLocationEditMode() {
			return m, m.nudge(rows, 0, -nudgeStep)
		}
		if m.selected < len(rows)-1 {
			m.selected++
		}
		m.refreshList()
		return m, nil

	case tea.KeyLeft:
		if m.disp.InLocationEditMode() {
			return m, m.nudge(rows, -nudgeStep, 0)
		}
		return m, nil

	case tea.KeyRight:
		if m.disp.InLocationEditMode() {
			return m, m.nudge(rows, nudgeStep, 0)
		}
		return m, nil

	case tea.KeyEnter:
		if m.pres.currentPopup() != nil {
			m.pres.HidePopup()
			return m, nil
		}
		if m.selected < len(rows) {
			return m, m.tap(rows[m.selected].ID)
		}
		return m, nil
	}

	switch msg.String() {
	case "g":
		m.showMapModal = true
		m.loadingMaps = true
		return m, m.loadMaps()

	case "c":
		if m.selected < len(rows) {
			if err := clipboard.WriteAll(rows[m.selected].ID); err != nil {
				m.err = err
			} else {
				m.status = "Anchor id copied"
			}
		}
		return m, nil
	}

	if !m.disp.AdminMode() {
		return m, nil
	}

	// Admin keys
	switch msg.String() {
	case "a":
		return m, func() tea.Msg {
			_, err := m.reg.Place(context.Background(), anchor.Vec3{}, anchor.Identity())
			return actionDoneMsg{err}
		}
	case "d":
		if m.disp.Mode() == engine.ModeDelete {
			m.disp.ExitDeleteMode()
		} else {
			m.disp.EnterDeleteMode()
		}
	case "l":
		m.disp.EnterLinkMode()
	case "n":
		m.disp.EnterClueNameEditMode()
	case "f":
		m.disp.EnterPrefabEditMode()
	case "p":
		m.disp.BeginPopupSelection()
	case "z":
		m.disp.BeginPuzzleSelection()
	case "m":
		if m.disp.InLocationEditMode() {
			m.disp.ExitModes()
		} else {
			m.disp.EnterLocationEditMode()
		}
	case "s":
		return m, func() tea.Msg {
			m.reg.SavePoses(context.Background())
			return actionDoneMsg{}
		}
	case "x":
		m.disp.ExitModes()
	}
	m.refreshList()
	return m, nil
}

func (m ConsoleUI) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		// Abandon the answer or edit
		m.inputActive = false
		m.editing = editNone
		m.input.Blur()
		if m.pres.currentPrompt() != nil {
			m.pres.Hide()
		}
		m.refreshList()
		return m, nil

	case tea.KeyEnter:
		value := m.input.Value()
		m.input.Reset()

		if m.editing == editNone {
			// Puzzle answer
			return m, func() tea.Msg {
				m.pres.submitAnswer(value)
				return actionDoneMsg{}
			}
		}
		return m.applyEdit(value)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m ConsoleUI) applyEdit(value string) (tea.Model, tea.Cmd) {
	kind := m.editing
	target := m.editTarget

	if kind == editPuzzle {
		m.puzzleParts[m.puzzleStep] = value
		if m.puzzleStep < 2 {
			m.puzzleStep++
			m.input.Placeholder = m.editPlaceholder()
			return m, nil
		}
		parts := m.puzzleParts
		m.closeEditor()
		return m, func() tea.Msg {
			err := m.reg.SetPuzzle(context.Background(), target, parts[0], parts[1], parts[2])
			return actionDoneMsg{err}
		}
	}

	m.closeEditor()
	switch kind {
	case editName:
		return m, func() tea.Msg {
			m.reg.SetClueName(context.Background(), target, value)
			return actionDoneMsg{}
		}
	case editPopup:
		return m, func() tea.Msg {
			err := m.reg.SetPopupMessage(context.Background(), target, value)
			return actionDoneMsg{err}
		}
	case editPrefab:
		return m, func() tea.Msg {
			m.reg.ChangePrefab(context.Background(), target, value)
			return actionDoneMsg{}
		}
	}
	return m, nil
}

func (m *ConsoleUI) closeEditor() {
	m.inputActive = false
	m.editing = editNone
	m.input.Blur()
}

func (m ConsoleUI) editPlaceholder() string {
	switch m.editing {
	case editName:
		return "New clue name"
	case editPopup:
		return "Popup message (empty clears)"
	case editPrefab:
		return "Prefab key"
	case editPuzzle:
		switch m.puzzleStep {
		case 0:
			return "Puzzle hint"
		case 1:
			return "Puzzle password"
		default:
			return "Solved message"
		}
	}
	return ""
}

func (m ConsoleUI) updateMapModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case mapsLoadedMsg:
		m.loadingMaps = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		// With a known location the list is ranked nearest-first;
		// without one, order is as stored and distance is not gated.
		if m.cfg.HasLocation {
			m.maps = worldmap.RankByDistance(msg.maps, m.cfg.UserLat, m.cfg.UserLon)
		} else {
			m.maps = make([]worldmap.Ranked, len(msg.maps))
			for i, wm := range msg.maps {
				m.maps[i] = worldmap.Ranked{Map: wm, Distance: -1}
			}
		}
		m.selectedMap = 0
		// A configured map id skips the picker
		if !m.started && m.cfg.MapID > 0 {
			m.showMapModal = false
			return m, m.startSession(m.cfg.MapID)
		}

	case sessionStartedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.started = true
		m.showMapModal = false
		m.status = fmt.Sprintf("Map %d active", msg.mapID)
		m.refreshList()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			if m.started {
				m.showMapModal = false
				return m, nil
			}
			return m, tea.Quit
		case tea.KeyUp:
			if m.selectedMap > 0 {
				m.selectedMap--
			}
		case tea.KeyDown:
			if m.selectedMap < len(m.maps)-1 {
				m.selectedMap++
			}
		case tea.KeyEnter:
			if len(m.maps) > 0 {
				choice := m.maps[m.selectedMap]
				if m.cfg.HasLocation && choice.Distance > m.cfg.MaxMapDistanceMeters {
					m.err = fmt.Errorf("map %q is %.0fm away; move within %.0fm to select it",
						choice.Map.Name, choice.Distance, m.cfg.MaxMapDistanceMeters)
					return m, nil
				}
				m.err = nil
				m.showMapModal = false
				return m, m.startSession(choice.Map.MapID)
			}
		}
	}
	return m, nil
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "y", "Y", "enter", "ctrl+c":
			return m, tea.Quit
		case "n", "N", "esc":
			m.showQuitModal = false
		}
	}
	return m, nil
}

// nudgeStep is how far one arrow press moves an anchor in move mode, in
// map-local units.
const nudgeStep = 0.5

// nudge shifts the selected anchor on the map-local X/Z plane. The move is
// local-only; "s" persists all poses.
func (m ConsoleUI) nudge(rows []row, dx, dz float64) tea.Cmd {
	if m.selected >= len(rows) {
		return nil
	}
	a, ok := m.reg.Get(rows[m.selected].ID)
	if !ok {
		return nil
	}
	pos := a.LocalPos
	pos.X += dx
	pos.Z += dz
	m.reg.MoveLocal(a.ID, pos, a.LocalRot)
	return func() tea.Msg { return actionDoneMsg{} }
}

// row is one line of the anchor list.
type row struct {
	ID     string
	Label  string
	Hidden bool
	Solved bool
}

// rows builds the display list from the presenter's visuals plus the
// registry's metadata. Users only navigate what they can see.
func (m ConsoleUI) rows() []row {
	var out []row
	for _, v := range m.pres.visuals() {
		a, ok := m.reg.Get(v.ID)
		if !ok {
			continue
		}
		if !v.Visible && !m.disp.AdminMode() {
			continue
		}
		label := fmt.Sprintf("[%d] %s (%s, %s)", a.ClueIndex, a.DisplayName(), a.EffectiveType(), v.PrefabKey)
		out = append(out, row{
			ID:     v.ID,
			Label:  label,
			Hidden: !v.Visible,
			Solved: m.trk.Solved(v.ID),
		})
	}
	return out
}

func (m *ConsoleUI) refreshList() {
	rows := m.rows()
	if m.selected >= len(rows) {
		m.selected = len(rows) - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("ANCHOR HUNT") + "\n\n")
	if len(rows) == 0 {
		b.WriteString(hiddenStyle.Render("No anchors on this map yet.") + "\n")
	}
	for i, r := range rows {
		line := r.Label
		switch {
		case i == m.selected:
			line = selectedStyle.Render("▶ " + line)
		case r.Solved:
			line = solvedStyle.Render("✓ " + line)
		case r.Hidden:
			line = hiddenStyle.Render("· " + line)
		default:
			line = "  " + line
		}
		b.WriteString(line + "\n")
	}
	m.listViewport.SetContent(b.String())
}

func (m ConsoleUI) statusLine() string {
	parts := []string{
		fmt.Sprintf("role:%s", m.ident.Role()),
		fmt.Sprintf("unlocked:%d", m.disp.UnlockedIndex()),
		fmt.Sprintf("solved:%d", m.trk.SolvedCount()),
	}
	if m.disp.AdminMode() {
		parts = append(parts, fmt.Sprintf("mode:%s", m.disp.Mode()))
		if pending := m.disp.PendingLink(); pending != "" {
			parts = append(parts, "link-from:"+shortID(pending))
		}
	}
	if m.status != "" {
		parts = append(parts, m.status)
	}
	line := statusStyle.Render(strings.Join(parts, "  "))
	if m.err != nil {
		line += "  " + errorStyle.Render(m.err.Error())
	}
	return line
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (m ConsoleUI) helpLine() string {
	if m.disp.InLocationEditMode() {
		return promptStyle.Render("arrows nudge anchor  m exit move  s save poses  x exit mode")
	}
	if m.disp.AdminMode() {
		return promptStyle.Render("↑/↓ select  enter tap  a add  d delete  l link  m move  n name  f prefab  p popup  z puzzle  s save  x exit mode  c copy id  g maps  esc quit")
	}
	return promptStyle.Render("↑/↓ select  enter tap  c copy id  g maps  esc quit")
}

func (m ConsoleUI) View() string {
	if m.showQuitModal {
		return m.renderCenteredModal("Quit?", "Press Y to quit, N to stay")
	}
	if m.showMapModal {
		return m.renderMapModal()
	}
	if !m.ready {
		return "\n  Initializing..."
	}

	var b strings.Builder
	b.WriteString(m.listViewport.View())
	b.WriteString("\n" + separatorStyle.Render(strings.Repeat("─", max(m.width-4, 10))) + "\n")

	if popup := m.pres.currentPopup(); popup != nil {
		text := wordwrap.String(popup.Message, max(m.width-10, 20))
		b.WriteString(titleStyle.Render(popup.Title) + "\n" + text + "\n")
		b.WriteString(promptStyle.Render("enter/esc to dismiss") + "\n")
	} else if prompt := m.pres.currentPrompt(); prompt != nil {
		b.WriteString(titleStyle.Render(prompt.Title) + "\n")
		b.WriteString(wordwrap.String(prompt.Hint, max(m.width-10, 20)) + "\n")
		if prompt.Feedback != "" {
			b.WriteString(errorStyle.Render(prompt.Feedback) + "\n")
		}
		b.WriteString(m.input.View() + "\n")
	} else if m.inputActive {
		b.WriteString(m.input.View() + "\n")
	} else {
		b.WriteString(m.helpLine() + "\n")
	}

	b.WriteString(m.statusLine())
	return b.String()
}

func (m ConsoleUI) renderMapModal() string {
	var content strings.Builder
	if m.loadingMaps {
		content.WriteString(modalTitleStyle.Render("Loading Maps..."))
	} else if len(m.maps) == 0 {
		content.WriteString(modalTitleStyle.Render("No Maps"))
		content.WriteString("\n\nNo map records found. Seed the store first.")
	} else {
		content.WriteString(modalTitleStyle.Render("Select a Map"))
		content.WriteString("\n\n")
		for i, r := range m.maps {
			label := fmt.Sprintf("%s (id=%d)", r.Map.Name, r.Map.MapID)
			if r.Distance >= 0 {
				label += fmt.Sprintf("  %.0fm", r.Distance)
			}
			if i == m.selectedMap {
				content.WriteString(selectedStyle.Render("▶ " + label))
			} else {
				content.WriteString("  " + label)
			}
			content.WriteString("\n")
		}
		content.WriteString("\n")
		content.WriteString(promptStyle.Render("↑/↓ navigate, enter select, esc cancel"))
	}
	if m.err != nil {
		content.WriteString("\n\n" + errorStyle.Render(m.err.Error()))
	}

	modal := modalStyle.Width(50).Render(content.String())
	if m.width == 0 || m.height == 0 {
		return modal
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal)
}

func (m ConsoleUI) renderCenteredModal(title, body string) string {
	var content strings.Builder
	content.WriteString(modalTitleStyle.Render(title))
	content.WriteString("\n\n")
	content.WriteString(body)
	modal := modalStyle.Width(40).Render(content.String())
	if m.width == 0 || m.height == 0 {
		return modal
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal)
}
