// Package local provides the daemon-side implementations of the command
// router's collaborators: game-server process control, config file access,
// backup archives and sandboxed file operations.
package local

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"warden/internal/events"
	"warden/internal/models"
)

const maxLogLines = 500

// GameServer launches and stops the game-server process and keeps a tail
// of its output. Deliberately minimal: no crash-restart policy, no
// watchdog; the panel only needs start/stop/status/logs.
type GameServer struct {
	startCmd string
	dir      string
	bus      *events.Bus

	mu        sync.Mutex
	cmd       *exec.Cmd
	startedAt time.Time
	status    string
	logs      []string
	waitDone  chan struct{}
}

// NewGameServer creates a controller for the given start command, run in
// dir. bus may be nil.
func NewGameServer(startCmd, dir string, bus *events.Bus) *GameServer {
	return &GameServer{
		startCmd: startCmd,
		dir:      dir,
		bus:      bus,
		status:   "stopped",
	}
}

// Start launches the process.
func (g *GameServer) Start() error {
	g.mu.Lock()

	if g.status == "running" || g.status == "stopping" {
		g.mu.Unlock()
		return errors.New("server is already running")
	}
	if g.startCmd == "" {
		g.mu.Unlock()
		return errors.New("no start command configured")
	}

	parts := strings.Fields(g.startCmd)
	cmd := exec.Command(parts[0], parts[1:]...)
	cmd.Dir = g.dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		g.mu.Unlock()
		return fmt.Errorf("open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		g.mu.Unlock()
		return fmt.Errorf("open stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		g.mu.Unlock()
		return fmt.Errorf("start server process: %w", err)
	}

	g.cmd = cmd
	g.startedAt = time.Now()
	g.status = "running"
	g.waitDone = make(chan struct{})
	done := g.waitDone
	g.mu.Unlock()

	go g.collectOutput(stdout)
	go g.collectOutput(stderr)

	go func() {
		cmd.Wait()
		g.mu.Lock()
		g.status = "stopped"
		g.cmd = nil
		g.mu.Unlock()
		close(done)
		g.publishStatus()
	}()

	g.publishStatus()
	return nil
}

// Stop signals the process and waits for it to exit, killing it after a
// ten second grace period.
func (g *GameServer) Stop() error {
	g.mu.Lock()
	if g.status != "running" || g.cmd == nil {
		g.mu.Unlock()
		return errors.New("server is not running")
	}
	g.status = "stopping"
	proc := g.cmd.Process
	done := g.waitDone
	g.mu.Unlock()

	proc.Signal(os.Interrupt)

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		proc.Kill()
		<-done
	}
	return nil
}

// Restart stops the process if running and starts it again.
func (g *GameServer) Restart() error {
	g.mu.Lock()
	running := g.status == "running"
	g.mu.Unlock()

	if running {
		if err := g.Stop(); err != nil {
			return err
		}
	}
	return g.Start()
}

// State reports the process status.
func (g *GameServer) State() (models.ServerState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	state := models.ServerState{Status: g.status}
	if g.status == "running" && g.cmd != nil {
		state.PID = g.cmd.Process.Pid
		state.Uptime = int64(time.Since(g.startedAt).Seconds())
	}
	if n := len(g.logs); n > 0 {
		state.LastLog = g.logs[n-1]
	}
	return state, nil
}

// Logs returns a copy of the output tail.
func (g *GameServer) Logs() ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.logs...), nil
}

func (g *GameServer) collectOutput(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		g.mu.Lock()
		g.logs = append(g.logs, scanner.Text())
		if len(g.logs) > maxLogLines {
			g.logs = g.logs[len(g.logs)-maxLogLines:]
		}
		g.mu.Unlock()
	}
}

// publishStatus snapshots the state and publishes it outside the lock so
// bus subscribers may call back into the controller.
func (g *GameServer) publishStatus() {
	if g.bus == nil {
		return
	}

	g.mu.Lock()
	state := models.ServerState{Status: g.status}
	if g.cmd != nil {
		state.PID = g.cmd.Process.Pid
		state.Uptime = int64(time.Since(g.startedAt).Seconds())
	}
	g.mu.Unlock()

	g.bus.Publish(events.Event{
		Type:    events.StatusChanged,
		Payload: state,
	})
}
