// wardend is the standalone remote-control daemon for the game-server
// panel: it exposes the panel's administrative operations (process
// control, config, backups, files, Discord) to authenticated remote
// clients over a websocket command protocol.
package main

import (
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"warden/internal/audit"
	"warden/internal/config"
	"warden/internal/events"
	"warden/internal/local"
	"warden/internal/models"
	"warden/internal/notify"
	"warden/internal/perms"
	"warden/internal/remote"
	"warden/internal/store"
	"warden/internal/token"
)

func main() {
	cfg := config.Load()
	table := perms.NewTable()

	st, err := store.Open(cfg.DataDir, table)
	if err != nil {
		log.Fatalf("open remote access store: %v", err)
	}

	trail, err := audit.Open(filepath.Join(cfg.DataDir, "warden.db"))
	if err != nil {
		log.Fatalf("open audit log: %v", err)
	}
	defer trail.Close()

	bus := events.NewBus()

	discord, err := notify.NewDiscord(cfg.DataDir, nil)
	if err != nil {
		log.Fatalf("load discord settings: %v", err)
	}
	bus.Subscribe(func(e events.Event) {
		state, ok := e.Payload.(models.ServerState)
		if !ok {
			return
		}
		if dcfg, _ := discord.Config(); !dcfg.Enabled {
			return
		}
		if err := discord.Notify(state.Status == "running"); err != nil {
			log.Printf("discord notify: %v", err)
		}
	}, events.StatusChanged)

	files, err := local.NewFiles(cfg.GameDir)
	if err != nil {
		log.Fatalf("set up file sandbox: %v", err)
	}
	backups, err := local.NewBackups(cfg.BackupDir, cfg.GameDir)
	if err != nil {
		log.Fatalf("set up backups: %v", err)
	}

	router := remote.NewRouter(remote.Handlers{
		Server:  local.NewGameServer(cfg.StartCmd, cfg.GameDir, bus),
		Config:  local.NewConfigFile(filepath.Join(cfg.GameDir, "server-config.json")),
		Backups: backups,
		Files:   files,
		Discord: discord,
	})

	bootstrapAdmin(st, table)

	tokens := token.NewService(st)
	server := remote.NewServer(st, tokens, router, remote.NewRegistry(), trail, bus)

	if !st.Enabled() {
		log.Printf("enabling remote access (daemon started explicitly)")
		if err := st.SetEnabled(true); err != nil {
			log.Fatalf("enable remote access: %v", err)
		}
	}

	port := st.Port()
	if port == 0 {
		port = cfg.Port
	}
	if !server.Start(port) {
		log.Fatalf("could not bind port %d", port)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Printf("shutting down")
	server.Stop()
}

// bootstrapAdmin creates the initial admin account if no users exist.
func bootstrapAdmin(st *store.Store, table *perms.Table) {
	if len(st.List()) > 0 {
		return
	}

	password := os.Getenv("WARDEN_ADMIN_PASS")
	if password == "" {
		password = store.GeneratePassword()
		log.Printf("🔑 Generated admin password: %s", password)
		log.Printf("   Set WARDEN_ADMIN_PASS to use a custom password")
	}

	user, err := st.CreateUser("admin", password, table.PresetFor(perms.RoleAdmin), "")
	if err != nil {
		log.Printf("⚠️  Could not create admin user: %v", err)
		return
	}
	log.Printf("✓ Created admin user: %s", user.Username)
}
