package local

import (
	"slices"
	"sync"
	"testing"
	"time"

	"warden/internal/events"
	"warden/internal/models"
)

func TestGameServerStartWithoutCommand(t *testing.T) {
	g := NewGameServer("", t.TempDir(), nil)
	if err := g.Start(); err == nil {
		t.Error("start without a command succeeded")
	}
}

func TestGameServerStartUnknownBinary(t *testing.T) {
	g := NewGameServer("definitely-not-a-real-binary-xyz", t.TempDir(), nil)
	if err := g.Start(); err == nil {
		t.Error("start of missing binary succeeded")
	}

	state, _ := g.State()
	if state.Status != "stopped" {
		t.Errorf("status after failed start = %q", state.Status)
	}
}

func TestGameServerStopWhenNotRunning(t *testing.T) {
	g := NewGameServer("sleep 60", t.TempDir(), nil)
	if err := g.Stop(); err == nil {
		t.Error("stop of stopped server succeeded")
	}
}

func TestGameServerStateWhenStopped(t *testing.T) {
	g := NewGameServer("sleep 60", t.TempDir(), nil)

	state, err := g.State()
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if state.Status != "stopped" || state.PID != 0 || state.Uptime != 0 {
		t.Errorf("state = %+v", state)
	}

	logs, err := g.Logs()
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if len(logs) != 0 {
		t.Errorf("logs = %v", logs)
	}
}

func TestGameServerLifecycle(t *testing.T) {
	bus := events.NewBus()
	var mu sync.Mutex
	var statuses []string
	bus.Subscribe(func(e events.Event) {
		if state, ok := e.Payload.(models.ServerState); ok {
			mu.Lock()
			statuses = append(statuses, state.Status)
			mu.Unlock()
		}
	}, events.StatusChanged)

	g := NewGameServer("sleep 60", t.TempDir(), bus)
	if err := g.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	state, _ := g.State()
	if state.Status != "running" || state.PID == 0 {
		t.Fatalf("state after start = %+v", state)
	}
	if err := g.Start(); err == nil {
		t.Error("double start succeeded")
	}

	if err := g.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	state, _ = g.State()
	if state.Status != "stopped" {
		t.Errorf("state after stop = %+v", state)
	}

	mu.Lock()
	defer mu.Unlock()
	if !slices.Contains(statuses, "running") || !slices.Contains(statuses, "stopped") {
		t.Errorf("published statuses = %v", statuses)
	}
}

func TestGameServerCapturesOutput(t *testing.T) {
	g := NewGameServer("echo hello from the server", t.TempDir(), nil)
	if err := g.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		logs, _ := g.Logs()
		if slices.Contains(logs, "hello from the server") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("output never captured, logs = %v", logs)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
