package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/huntforge/anchorhunt/internal/config"
	"github.com/huntforge/anchorhunt/internal/logger"
	"github.com/huntforge/anchorhunt/internal/seedfile"
	"github.com/huntforge/anchorhunt/internal/store"
	"github.com/huntforge/anchorhunt/pkg/anchor"
)

// Loads a seed fixture into the store: maps first, then anchors, then user
// roles. Re-running with the same file is safe; every write is an upsert.
func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <seed.json>\n", os.Args[0])
		os.Exit(1)
	}

	cfg := config.Load()
	slogger := logger.Setup(cfg)

	fixture, err := seedfile.Load(os.Args[1])
	if err != nil {
		log.Fatal("Failed to load seed file: ", err)
	}

	st, err := store.NewRedisStore(cfg.RedisURL, slogger)
	if err != nil {
		log.Fatal("Failed to create store: ", err)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.StoreReadyTimeout)
	defer cancel()
	if err := st.WaitReady(ctx); err != nil {
		log.Fatal("Store is not reachable: ", err)
	}

	for _, m := range fixture.Maps {
		if err := st.SetMap(context.Background(), m); err != nil {
			log.Fatal("Failed to seed map: ", err)
		}
		fmt.Printf("Seeded map %d (%s)\n", m.MapID, m.Name)
	}

	defaults := anchor.Defaults{
		ClueIndex: cfg.DefaultClueIndex,
		Visible:   cfg.DefaultVisible,
		PrefabKey: cfg.DefaultPrefabKey,
	}
	for _, rec := range fixture.Anchors {
		// Run each record through the engine's parser so malformed
		// fixtures fail here, not at runtime.
		a, err := anchor.ParseRecord(rec, -1, defaults)
		if err != nil {
			log.Fatal("Invalid anchor record: ", err)
		}
		if a.MapID < 0 {
			log.Fatalf("Anchor %s has no mapId", a.ID)
		}
		if err := st.SetAnchor(context.Background(), a.MapID, a.ID, a.Record()); err != nil {
			log.Fatal("Failed to seed anchor: ", err)
		}
		fmt.Printf("Seeded anchor %s on map %d (stage %d)\n", a.ID, a.MapID, a.ClueIndex)
	}

	for _, u := range fixture.Users {
		if err := st.SetUserRole(context.Background(), u.ID, u.Role); err != nil {
			log.Fatal("Failed to seed user: ", err)
		}
		fmt.Printf("Seeded user %s (%s)\n", u.ID, u.Role)
	}

	fmt.Printf("\nDone: %d maps, %d anchors, %d users\n",
		len(fixture.Maps), len(fixture.Anchors), len(fixture.Users))
}
