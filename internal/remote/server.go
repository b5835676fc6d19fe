// Package remote implements the remote control surface of the panel: a
// websocket server that authenticates clients, tracks their sessions and
// dispatches permission-checked administrative commands.
//
// Concurrency contract: each connection's messages are handled in arrival
// order by its own read loop (FIFO per connection); different connections
// proceed fully concurrently. Responses carry the client's requestId so
// interleaving with broadcast events is harmless.
package remote

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"warden/internal/events"
	"warden/internal/models"
	"warden/internal/store"
	"warden/internal/token"
)

// Server lifecycle states.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateError
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// AuditTrail records logins and command dispatches. Recording is
// best-effort and must never fail a request.
type AuditTrail interface {
	RecordLogin(username string, success bool, remoteAddr string)
	RecordCommand(username, command string, success bool, errMsg string)
}

// ─── Wire frames ────────────────────────────────────────────────────────

type inFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outFrame struct {
	Type    string `json:"type"`
	Event   string `json:"event,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

type loginRequest struct {
	Username string `json:"username"`
	Secret   string `json:"secret"`
}

type loginResult struct {
	Success bool          `json:"success"`
	Token   string        `json:"token,omitempty"`
	Claims  *token.Claims `json:"claims,omitempty"`
	Error   string        `json:"error,omitempty"`
}

type commandRequest struct {
	Command   string `json:"command"`
	Args      []any  `json:"args"`
	RequestID string `json:"requestId"`
}

type commandResult struct {
	RequestID string `json:"requestId"`
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ─── Server ─────────────────────────────────────────────────────────────

// Server owns the listening socket and wires the connection authenticator,
// session registry and command router together.
type Server struct {
	store    *store.Store
	tokens   *token.Service
	router   *Router
	registry *Registry
	audit    AuditTrail
	upgrader websocket.Upgrader

	startMu sync.Mutex // serializes Start attempts end to end

	mu      sync.Mutex
	state   State
	ln      net.Listener
	httpSrv *http.Server
	conns   map[string]*conn // connection id → live connection (incl. pre-login)
}

// NewServer wires the remote control server. audit may be nil. If bus is
// non-nil, published panel events are forwarded to all connected sessions.
func NewServer(st *store.Store, tokens *token.Service, router *Router, registry *Registry, audit AuditTrail, bus *events.Bus) *Server {
	s := &Server{
		store:    st,
		tokens:   tokens,
		router:   router,
		registry: registry,
		audit:    audit,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns: make(map[string]*conn),
	}

	if bus != nil {
		bus.Subscribe(func(e events.Event) {
			if s.IsRunning() {
				s.registry.Broadcast(string(e.Type), e.Payload)
			}
		})
	}
	return s
}

// Start binds the listener and begins accepting connections. Returns true
// if the server is running afterwards: calling Start on a running server
// is an idempotent success, a failed bind returns false without panicking.
// Concurrent callers block until the bind outcome is known, so none can
// report success off another caller's still-pending attempt.
func (s *Server) Start(port int) bool {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.mu.Lock()
	if s.state == StateRunning {
		s.mu.Unlock()
		log.Printf("[remote] server already running")
		return true
	}
	s.state = StateStarting
	s.mu.Unlock()

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		log.Printf("[remote] failed to bind port %d: %v", port, err)
		s.setState(StateStopped)
		return false
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleConnection)
	srv := &http.Server{Handler: mux}

	s.mu.Lock()
	s.ln = ln
	s.httpSrv = srv
	s.state = StateRunning
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("[remote] serve error: %v", err)
			s.setState(StateError)
		}
	}()

	log.Printf("[remote] listening on %s", ln.Addr())
	return true
}

// Stop notifies sessions, closes every connection and the listener, and
// clears the session registry. Safe to call when already stopped.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.state != StateRunning && s.state != StateError {
		s.mu.Unlock()
		return
	}
	s.state = StateStopping
	srv := s.httpSrv
	s.mu.Unlock()

	log.Printf("[remote] stopping")
	s.registry.Broadcast("server-shutdown", map[string]any{"message": "Server is shutting down"})

	s.mu.Lock()
	open := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		open = append(open, c)
	}
	s.conns = make(map[string]*conn)
	s.mu.Unlock()

	for _, c := range open {
		c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
			time.Now().Add(5*time.Second),
		)
		c.close()
	}

	if srv != nil {
		srv.Close()
	}
	s.registry.Clear()

	s.mu.Lock()
	s.httpSrv = nil
	s.ln = nil
	s.state = StateStopped
	s.mu.Unlock()
	log.Printf("[remote] stopped")
}

func (s *Server) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// IsRunning reports whether the server is accepting connections.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateRunning
}

// Addr returns the bound listener address, or "" when stopped.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// SetPort persists a new listener port. The running listener is not
// swapped; callers stop and start the server to apply it.
func (s *Server) SetPort(port int) error {
	return s.store.SetPort(port)
}

// BroadcastEvent sends a named event to every authenticated session.
func (s *Server) BroadcastEvent(event string, payload any) {
	s.registry.Broadcast(event, payload)
}

// ConnectedSessions lists the authenticated sessions.
func (s *Server) ConnectedSessions() []models.SessionInfo {
	return s.registry.List()
}

// ConnectedCount returns the number of authenticated sessions.
func (s *Server) ConnectedCount() int {
	return s.registry.Count()
}

// ─── Connection handling ────────────────────────────────────────────────

// conn is one live websocket connection. identity is nil until the client
// either presented a valid token at upgrade or completed a login.
type conn struct {
	id         string
	ws         *websocket.Conn
	remoteAddr string

	send chan outFrame
	done chan struct{}
	once sync.Once

	mu       sync.Mutex
	identity *models.Identity
}

func (c *conn) close() {
	c.once.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

func (c *conn) setIdentity(id models.Identity) {
	c.mu.Lock()
	c.identity = &id
	c.mu.Unlock()
}

func (c *conn) getIdentity() (models.Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.identity == nil {
		return models.Identity{}, false
	}
	return *c.identity, true
}

// SendEvent queues a broadcast event, dropping it if the connection's
// outbound buffer is full or mid-teardown.
func (c *conn) SendEvent(event string, payload any) {
	c.enqueue(outFrame{Type: "event", Event: event, Payload: payload})
}

func (c *conn) enqueue(f outFrame) {
	select {
	case c.send <- f:
	case <-c.done:
	default:
		log.Printf("[remote] dropping %s frame for slow connection %s", f.Type, c.id)
	}
}

// handleConnection gates the websocket upgrade. A presented token must
// verify and map to an active user, or the connection is refused with 401
// before the upgrade; no token admits the client unauthenticated, pending
// login over the same channel.
func (s *Server) handleConnection(w http.ResponseWriter, r *http.Request) {
	var identity *models.Identity

	if tok := bearerToken(r); tok != "" {
		claims, err := s.tokens.Verify(tok)
		if err != nil {
			log.Printf("[remote] rejected connection from %s: %v", r.RemoteAddr, err)
			http.Error(w, `{"error":"authentication failed"}`, http.StatusUnauthorized)
			return
		}
		user, ok := s.store.Get(claims.UserID)
		if !ok || !user.IsActive {
			log.Printf("[remote] rejected connection from %s: user missing or inactive", r.RemoteAddr)
			http.Error(w, `{"error":"authentication failed"}`, http.StatusUnauthorized)
			return
		}
		id := claims.Identity()
		identity = &id
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[remote] upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}

	c := &conn{
		id:         uuid.NewString(),
		ws:         ws,
		remoteAddr: r.RemoteAddr,
		send:       make(chan outFrame, 64),
		done:       make(chan struct{}),
		identity:   identity,
	}

	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		c.close()
		return
	}
	s.conns[c.id] = c
	s.mu.Unlock()

	username := "pending login"
	if identity != nil {
		s.registry.Add(c.id, *identity, c)
		username = identity.Username
	}
	log.Printf("[remote] client connected: %s (%s)", username, c.id)

	welcome := map[string]any{"message": "Connected to game server portal", "connectionId": c.id}
	if identity != nil {
		welcome["username"] = identity.Username
		welcome["permissions"] = identity.Permissions
	}
	c.enqueue(outFrame{Type: "welcome", Payload: welcome})

	go c.writeLoop()
	s.readLoop(c)

	s.mu.Lock()
	delete(s.conns, c.id)
	s.mu.Unlock()
	s.registry.Remove(c.id)
	c.close()
	log.Printf("[remote] client disconnected: %s", c.id)
}

// bearerToken pulls the optional session token from the query string or
// the Authorization header.
func bearerToken(r *http.Request) string {
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

// writeLoop is the single writer for the connection: queued frames plus
// periodic pings.
func (c *conn) writeLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case f := <-c.send:
			if err := c.ws.WriteJSON(f); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(
				websocket.PingMessage, nil,
				time.Now().Add(10*time.Second),
			); err != nil {
				c.close()
				return
			}
		}
	}
}

// readLoop handles the connection's inbound frames in arrival order.
func (s *Server) readLoop(c *conn) {
	c.ws.SetReadLimit(1 << 20)
	c.ws.SetReadDeadline(time.Now().Add(90 * time.Second))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(90 * time.Second))
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[remote] read error on %s: %v", c.id, err)
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(90 * time.Second))

		var f inFrame
		if err := json.Unmarshal(message, &f); err != nil {
			log.Printf("[remote] invalid frame on %s: %v", c.id, err)
			continue
		}

		switch f.Type {
		case "login":
			s.handleLogin(c, f.Payload)
		case "command":
			s.handleCommand(c, f.Payload)
		default:
			log.Printf("[remote] unknown frame type %q on %s", f.Type, c.id)
		}
	}
}

// handleLogin verifies credentials, mints a token and promotes the
// connection's identity so follow-up commands need no reconnect.
func (s *Server) handleLogin(c *conn, raw json.RawMessage) {
	var req loginRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		c.enqueue(outFrame{Type: "login_result", Payload: loginResult{Error: "malformed login request"}})
		return
	}

	user, err := s.store.Verify(req.Username, req.Secret)
	if err != nil {
		log.Printf("[remote] login failed for %q from %s", req.Username, c.remoteAddr)
		if s.audit != nil {
			s.audit.RecordLogin(req.Username, false, c.remoteAddr)
		}
		c.enqueue(outFrame{Type: "login_result", Payload: loginResult{Error: err.Error()}})
		return
	}

	signed, claims, err := s.tokens.Issue(user)
	if err != nil {
		log.Printf("[remote] token issue failed for %q: %v", user.Username, err)
		c.enqueue(outFrame{Type: "login_result", Payload: loginResult{Error: "failed to issue token"}})
		return
	}

	identity := claims.Identity()
	c.setIdentity(identity)
	s.registry.Add(c.id, identity, c)
	if s.audit != nil {
		s.audit.RecordLogin(user.Username, true, c.remoteAddr)
	}

	log.Printf("[remote] login successful: %s (%s)", user.Username, c.id)
	c.enqueue(outFrame{Type: "login_result", Payload: loginResult{
		Success: true,
		Token:   signed,
		Claims:  claims,
	}})
}

// handleCommand requires an authenticated connection and delegates to the
// router. Every dispatch outcome goes back as a structured result frame;
// nothing here can take the connection or the process down.
func (s *Server) handleCommand(c *conn, raw json.RawMessage) {
	var req commandRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		c.enqueue(outFrame{Type: "command_result", Payload: commandResult{Error: "malformed command request"}})
		return
	}

	identity, ok := c.getIdentity()
	if !ok {
		c.enqueue(outFrame{Type: "command_result", Payload: commandResult{
			RequestID: req.RequestID,
			Error:     "authentication required",
		}})
		return
	}

	result, err := s.router.Dispatch(identity, req.Command, req.Args)
	if s.audit != nil {
		errMsg := ""
		if err != nil {
			errMsg = err.Error()
		}
		s.audit.RecordCommand(identity.Username, req.Command, err == nil, errMsg)
	}
	if err != nil {
		log.Printf("[remote] command %s from %s failed: %v", req.Command, identity.Username, err)
		c.enqueue(outFrame{Type: "command_result", Payload: commandResult{
			RequestID: req.RequestID,
			Error:     err.Error(),
		}})
		return
	}

	c.enqueue(outFrame{Type: "command_result", Payload: commandResult{
		RequestID: req.RequestID,
		Success:   true,
		Data:      result,
	}})
}
