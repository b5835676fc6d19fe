// Package store owns the persisted remote access record: user accounts,
// the token-signing secret and listener settings. All mutations run behind
// one mutex and rewrite the whole file (temp + rename) before returning.
package store

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"warden/internal/models"
	"warden/internal/perms"
)

const (
	configFile  = "remote-access.json"
	bcryptCost  = 12
	defaultPort = 9999
)

// ErrUserNotFound is returned by mutations that target a missing user id.
var ErrUserNotFound = errors.New("user not found")

// ValidationError reports malformed input to a create/update operation.
// The message is safe to surface verbatim.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// AuthError signals a failed login. The message deliberately never
// distinguishes unknown user, wrong password or deactivated account.
type AuthError struct{}

func (*AuthError) Error() string { return "invalid credentials" }

// ConnectionInfo is the advertised connection configuration, without the
// signing secret or user records.
type ConnectionInfo struct {
	Enabled   bool     `json:"enabled"`
	Methods   []string `json:"methods"`
	Port      int      `json:"port"`
	IPv4      string   `json:"ipv4,omitempty"`
	IPv6      string   `json:"ipv6,omitempty"`
	TunnelURL string   `json:"tunnelUrl,omitempty"`
}

// Store is the credential store plus remote access configuration.
type Store struct {
	mu    sync.Mutex
	path  string
	table *perms.Table
	cfg   models.RemoteAccessConfig
}

// Open loads the record from dataDir, creating a default one (disabled,
// fresh secret, no users) on first run.
func Open(dataDir string, table *perms.Table) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", dataDir, err)
	}

	s := &Store{
		path:  filepath.Join(dataDir, configFile),
		table: table,
	}

	data, err := os.ReadFile(s.path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &s.cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", s.path, err)
		}
	case os.IsNotExist(err):
		s.cfg = models.RemoteAccessConfig{
			Enabled:        false,
			Secret:         generateSecret(),
			Port:           defaultPort,
			AllowedMethods: []string{models.MethodIP, models.MethodTunnel},
			Users:          []models.RemoteUser{},
		}
		if err := s.save(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}

	if s.cfg.Secret == "" {
		s.cfg.Secret = generateSecret()
		if err := s.save(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// generateSecret returns a random 256-bit hex string.
func generateSecret() string {
	buf := make([]byte, 32)
	rand.Read(buf)
	return hex.EncodeToString(buf)
}

// GeneratePassword returns a random password for bootstrap accounts.
func GeneratePassword() string {
	return generateSecret()[:12]
}

// save rewrites the whole record atomically. Callers hold s.mu.
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode remote access config: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}

// ─── User CRUD ──────────────────────────────────────────────────────────

// CreateUser adds a remote user. Usernames are matched case-sensitively;
// permissions must all exist in the capability catalog. The returned record
// never carries the password hash.
func (s *Store) CreateUser(username, password string, permissions []string, email string) (models.RemoteUser, error) {
	if len(username) < 3 {
		return models.RemoteUser{}, &ValidationError{Msg: "username must be at least 3 characters"}
	}
	if len(password) < 8 {
		return models.RemoteUser{}, &ValidationError{Msg: "password must be at least 8 characters"}
	}
	if !s.table.Validate(permissions) {
		return models.RemoteUser{}, &ValidationError{Msg: "unknown permission id"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.cfg.Users {
		if u.Username == username {
			return models.RemoteUser{}, &ValidationError{Msg: "username already taken"}
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return models.RemoteUser{}, fmt.Errorf("hash password: %w", err)
	}

	user := models.RemoteUser{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Permissions:  append([]string(nil), permissions...),
		CreatedAt:    time.Now().UTC(),
		IsActive:     true,
	}

	s.cfg.Users = append(s.cfg.Users, user)
	if err := s.save(); err != nil {
		s.cfg.Users = s.cfg.Users[:len(s.cfg.Users)-1]
		return models.RemoteUser{}, err
	}
	return user.Sanitized(), nil
}

// Verify authenticates a username/password pair and returns the sanitized
// user record. Unknown user, wrong password and deactivated account all
// fail with the same AuthError. Last access is updated on success.
func (s *Store) Verify(username, password string) (models.RemoteUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.cfg.Users {
		u := &s.cfg.Users[i]
		if u.Username != username {
			continue
		}
		if !u.IsActive {
			return models.RemoteUser{}, &AuthError{}
		}
		if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
			return models.RemoteUser{}, &AuthError{}
		}

		u.LastAccess = time.Now().UTC()
		if err := s.save(); err != nil {
			return models.RemoteUser{}, err
		}
		return u.Sanitized(), nil
	}
	return models.RemoteUser{}, &AuthError{}
}

// UpdatePermissions replaces a user's permission set.
func (s *Store) UpdatePermissions(userID string, permissions []string) (models.RemoteUser, error) {
	if !s.table.Validate(permissions) {
		return models.RemoteUser{}, &ValidationError{Msg: "unknown permission id"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.find(userID)
	if u == nil {
		return models.RemoteUser{}, ErrUserNotFound
	}

	old := u.Permissions
	u.Permissions = append([]string(nil), permissions...)
	if err := s.save(); err != nil {
		u.Permissions = old
		return models.RemoteUser{}, err
	}
	return u.Sanitized(), nil
}

// ChangePassword replaces a user's password.
func (s *Store) ChangePassword(userID, newPassword string) error {
	if len(newPassword) < 8 {
		return &ValidationError{Msg: "password must be at least 8 characters"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.find(userID)
	if u == nil {
		return ErrUserNotFound
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = string(hash)
	return s.save()
}

// Deactivate marks a user inactive. Existing tokens keep verifying until
// expiry, but connection-time lookups and logins fail.
func (s *Store) Deactivate(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.find(userID)
	if u == nil {
		return ErrUserNotFound
	}
	u.IsActive = false
	return s.save()
}

// Delete removes a user record entirely.
func (s *Store) Delete(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.cfg.Users {
		if s.cfg.Users[i].ID == userID {
			s.cfg.Users = append(s.cfg.Users[:i], s.cfg.Users[i+1:]...)
			return s.save()
		}
	}
	return ErrUserNotFound
}

// List returns all users with secrets stripped.
func (s *Store) List() []models.RemoteUser {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.RemoteUser, 0, len(s.cfg.Users))
	for _, u := range s.cfg.Users {
		out = append(out, u.Sanitized())
	}
	return out
}

// Get returns one user with the secret stripped.
func (s *Store) Get(userID string) (models.RemoteUser, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u := s.find(userID); u != nil {
		return u.Sanitized(), true
	}
	return models.RemoteUser{}, false
}

// find returns the live record for userID. Callers hold s.mu.
func (s *Store) find(userID string) *models.RemoteUser {
	for i := range s.cfg.Users {
		if s.cfg.Users[i].ID == userID {
			return &s.cfg.Users[i]
		}
	}
	return nil
}

// ─── Secret & connection settings ───────────────────────────────────────

// Secret returns the current token-signing secret.
func (s *Store) Secret() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Secret
}

// RotateSecret replaces the signing secret with a fresh random value,
// invalidating every outstanding token at once.
func (s *Store) RotateSecret() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.cfg.Secret
	s.cfg.Secret = generateSecret()
	if err := s.save(); err != nil {
		s.cfg.Secret = old
		return "", err
	}
	return s.cfg.Secret, nil
}

// SetEnabled toggles the remote access feature.
func (s *Store) SetEnabled(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Enabled = enabled
	return s.save()
}

// Enabled reports whether remote access is switched on.
func (s *Store) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Port returns the configured listener port.
func (s *Store) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Port
}

// SetPort updates the configured listener port. A running server must be
// stopped and started again to pick it up.
func (s *Store) SetPort(port int) error {
	if port < 1 || port > 65535 {
		return &ValidationError{Msg: "port out of range"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Port = port
	return s.save()
}

// SetConnectionMethods updates the advertised connection settings. Empty
// fields keep their previous value, matching the original panel behaviour.
func (s *Store) SetConnectionMethods(methods []string, ipv4, ipv6, tunnelURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(methods) > 0 {
		s.cfg.AllowedMethods = append([]string(nil), methods...)
	}
	if ipv4 != "" {
		s.cfg.IPv4 = ipv4
	}
	if ipv6 != "" {
		s.cfg.IPv6 = ipv6
	}
	if tunnelURL != "" {
		s.cfg.TunnelURL = tunnelURL
	}
	return s.save()
}

// ConnectionInfo returns the advertised connection configuration.
func (s *Store) ConnectionInfo() ConnectionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	return ConnectionInfo{
		Enabled:   s.cfg.Enabled,
		Methods:   append([]string(nil), s.cfg.AllowedMethods...),
		Port:      s.cfg.Port,
		IPv4:      s.cfg.IPv4,
		IPv6:      s.cfg.IPv6,
		TunnelURL: s.cfg.TunnelURL,
	}
}

// Statistics summarises the store for the admin UI. The secret is masked
// to its first and last four characters.
func (s *Store) Statistics() models.Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := 0
	for _, u := range s.cfg.Users {
		if u.IsActive {
			active++
		}
	}

	masked := s.cfg.Secret
	if n := len(masked); n > 8 {
		masked = masked[:4] + strings.Repeat("*", n-8) + masked[n-4:]
	}

	return models.Statistics{
		TotalUsers:   len(s.cfg.Users),
		ActiveUsers:  active,
		MaskedSecret: masked,
	}
}
