package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/huntforge/anchorhunt/internal/config"
	"github.com/huntforge/anchorhunt/internal/engine"
	"github.com/huntforge/anchorhunt/internal/identity"
	"github.com/huntforge/anchorhunt/internal/logger"
	"github.com/huntforge/anchorhunt/internal/store"
	"github.com/huntforge/anchorhunt/pkg/anchor"
)

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg)

	st, err := store.NewRedisStore(cfg.RedisURL, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create store: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = st.Close() // Ignore error in defer
	}()

	readyCtx, cancel := context.WithTimeout(context.Background(), cfg.StoreReadyTimeout)
	defer cancel()
	if err := st.WaitReady(readyCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Store is not reachable: %v\nTry: docker-compose up -d\n", err)
		os.Exit(1)
	}

	var ident identity.Provider
	if cfg.AdminMode {
		ident = identity.Static{ID: cfg.UserID, UserRole: identity.RoleAdmin}
	} else {
		ident = identity.FromStore(context.Background(), st, cfg.UserID, log)
	}

	defaults := anchor.Defaults{
		ClueIndex: cfg.DefaultClueIndex,
		Visible:   cfg.DefaultVisible,
		PrefabKey: cfg.DefaultPrefabKey,
	}

	pres := newConsolePresenter()
	reg := engine.NewRegistry(st, pres, defaults, log)
	trk := engine.NewTracker(st, log)
	disp := engine.NewDispatcher(reg, trk, pres, pres, ident, log)
	defer reg.Unsubscribe()

	ui := NewConsoleUI(cfg, st, disp, reg, trk, pres, ident)
	p := tea.NewProgram(ui, tea.WithAltScreen())
	pres.attach(p)
	disp.SetCollaborators(engine.Collaborators{
		PrefabSelected: func(id string) { p.Send(editTargetMsg{kind: editPrefab, anchorID: id}) },
		NameSelected:   func(id string) { p.Send(editTargetMsg{kind: editName, anchorID: id}) },
		PopupSelected:  func(id string) { p.Send(editTargetMsg{kind: editPopup, anchorID: id}) },
		PuzzleSelected: func(id string) { p.Send(editTargetMsg{kind: editPuzzle, anchorID: id}) },
	})

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		os.Exit(1)
	}
}
