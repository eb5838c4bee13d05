package main

import (
	"log"

	"github.com/ngenohkevin/procdeck/config"
	"github.com/ngenohkevin/procdeck/internal/events"
	"github.com/ngenohkevin/procdeck/internal/process"
	"github.com/ngenohkevin/procdeck/internal/server"
	"github.com/ngenohkevin/procdeck/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	st := store.New(cfg.StorePath(), cfg.SaveDebounce)
	bus := events.NewBus()
	manager := process.NewManager(cfg.ProcessOptions(), st, bus)

	// Restored definitions start out stopped
	if n := manager.Restore(st.Load()); n > 0 {
		log.Printf("Restored %d process definitions from %s", n, st.Path())
	}

	srv := server.New(cfg, manager)
	if err := srv.Run(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	bus.Close()
}
