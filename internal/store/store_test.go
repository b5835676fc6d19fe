package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"warden/internal/perms"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), perms.NewTable())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}

func TestCreateAndVerifyRoundTrip(t *testing.T) {
	s := openTestStore(t)

	created, err := s.CreateUser("alice", "password123", []string{"server.status"}, "alice@example.com")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.PasswordHash != "" {
		t.Error("created record leaked the password hash")
	}
	if created.ID == "" {
		t.Error("created record has no id")
	}
	if !created.IsActive {
		t.Error("created user should be active")
	}

	verified, err := s.Verify("alice", "password123")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if verified.PasswordHash != "" {
		t.Error("verified record leaked the password hash")
	}
	if len(verified.Permissions) != 1 || verified.Permissions[0] != "server.status" {
		t.Errorf("permissions = %v, want [server.status]", verified.Permissions)
	}
	if verified.LastAccess.IsZero() {
		t.Error("last access not updated on successful verify")
	}
}

func TestCreateValidation(t *testing.T) {
	s := openTestStore(t)

	tests := []struct {
		name     string
		username string
		password string
		perms    []string
	}{
		{"short username", "ab", "password123", nil},
		{"short password", "alice", "pass", nil},
		{"unknown permission", "alice", "password123", []string{"server.view_status"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.CreateUser(tt.username, tt.password, tt.perms, "")
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("got %v, want ValidationError", err)
			}
		})
	}
}

func TestCreateDuplicateUsername(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.CreateUser("alice", "password123", nil, ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := s.CreateUser("alice", "otherpassword", nil, "")
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("got %v, want ValidationError", err)
	}

	// Exact-match policy: a different case is a different user.
	if _, err := s.CreateUser("Alice", "password123", nil, ""); err != nil {
		t.Errorf("case-differing username rejected: %v", err)
	}
}

func TestVerifyFailuresAreIndistinguishable(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.CreateUser("alice", "password123", nil, ""); err != nil {
		t.Fatalf("create: %v", err)
	}

	_, wrongSecret := s.Verify("alice", "wrong-secret")
	_, unknownUser := s.Verify("nobody", "password123")

	var ae *AuthError
	if !errors.As(wrongSecret, &ae) {
		t.Fatalf("wrong secret: got %v, want AuthError", wrongSecret)
	}
	if !errors.As(unknownUser, &ae) {
		t.Fatalf("unknown user: got %v, want AuthError", unknownUser)
	}
	if wrongSecret.Error() != unknownUser.Error() {
		t.Errorf("error messages differ: %q vs %q", wrongSecret, unknownUser)
	}
}

func TestDeactivatedUserFailsVerify(t *testing.T) {
	s := openTestStore(t)
	u, err := s.CreateUser("alice", "password123", nil, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := s.Deactivate(u.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	_, err = s.Verify("alice", "password123")
	var ae *AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("got %v, want AuthError", err)
	}
	if err.Error() != "invalid credentials" {
		t.Errorf("deactivated login error = %q, leaks cause", err)
	}
}

func TestUpdatePermissions(t *testing.T) {
	s := openTestStore(t)
	u, _ := s.CreateUser("alice", "password123", []string{"server.status"}, "")

	updated, err := s.UpdatePermissions(u.ID, []string{"server.start", "server.stop"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(updated.Permissions) != 2 {
		t.Errorf("permissions = %v", updated.Permissions)
	}

	if _, err := s.UpdatePermissions("missing-id", nil); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("got %v, want ErrUserNotFound", err)
	}
	if _, err := s.UpdatePermissions(u.ID, []string{"bogus.perm"}); err == nil {
		t.Error("unknown permission id accepted")
	}
}

func TestDeleteUser(t *testing.T) {
	s := openTestStore(t)
	u, _ := s.CreateUser("alice", "password123", nil, "")

	if err := s.Delete(u.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := s.Get(u.ID); ok {
		t.Error("deleted user still retrievable")
	}
	if len(s.List()) != 0 {
		t.Error("deleted user still listed")
	}
	if err := s.Delete(u.ID); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("second delete: got %v, want ErrUserNotFound", err)
	}
}

func TestChangePassword(t *testing.T) {
	s := openTestStore(t)
	u, _ := s.CreateUser("alice", "password123", nil, "")

	if err := s.ChangePassword(u.ID, "short"); err == nil {
		t.Error("short password accepted")
	}
	if err := s.ChangePassword(u.ID, "newpassword456"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, err := s.Verify("alice", "password123"); err == nil {
		t.Error("old password still verifies")
	}
	if _, err := s.Verify("alice", "newpassword456"); err != nil {
		t.Errorf("new password rejected: %v", err)
	}
}

func TestListStripsSecrets(t *testing.T) {
	s := openTestStore(t)
	s.CreateUser("alice", "password123", nil, "")
	s.CreateUser("bob", "password456", nil, "")

	for _, u := range s.List() {
		if u.PasswordHash != "" {
			t.Errorf("list leaked hash for %s", u.Username)
		}
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	table := perms.NewTable()

	s, err := Open(dir, table)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.CreateUser("alice", "password123", []string{"server.status"}, ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	secret := s.Secret()

	reopened, err := Open(dir, table)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Secret() != secret {
		t.Error("secret changed across reopen")
	}
	if _, err := reopened.Verify("alice", "password123"); err != nil {
		t.Errorf("verify after reopen: %v", err)
	}
}

func TestPersistedFileOmitsNothingButIsPrivate(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, perms.NewTable())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s.CreateUser("alice", "password123", nil, "")

	path := filepath.Join(dir, "remote-access.json")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat config: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("config file mode = %o, want 600", perm)
	}

	data, _ := os.ReadFile(path)
	var cfg map[string]any
	if err := json.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("config file is not valid JSON: %v", err)
	}
	if strings.Contains(string(data), "password123") {
		t.Error("plain password persisted")
	}
}

func TestRotateSecret(t *testing.T) {
	s := openTestStore(t)
	before := s.Secret()

	rotated, err := s.RotateSecret()
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if rotated == before {
		t.Error("secret did not change")
	}
	if s.Secret() != rotated {
		t.Error("Secret() does not reflect rotation")
	}
}

func TestStatisticsMasksSecret(t *testing.T) {
	s := openTestStore(t)
	s.CreateUser("alice", "password123", nil, "")
	u, _ := s.CreateUser("bob", "password456", nil, "")
	s.Deactivate(u.ID)

	stats := s.Statistics()
	if stats.TotalUsers != 2 || stats.ActiveUsers != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if strings.Contains(stats.MaskedSecret, s.Secret()[4:len(s.Secret())-4]) {
		t.Error("masked secret exposes the middle of the secret")
	}
	if !strings.Contains(stats.MaskedSecret, "*") {
		t.Errorf("masked secret %q has no mask", stats.MaskedSecret)
	}
}

func TestSetPortValidation(t *testing.T) {
	s := openTestStore(t)

	if err := s.SetPort(0); err == nil {
		t.Error("port 0 accepted")
	}
	if err := s.SetPort(70000); err == nil {
		t.Error("port 70000 accepted")
	}
	if err := s.SetPort(12345); err != nil {
		t.Fatalf("set port: %v", err)
	}
	if s.Port() != 12345 {
		t.Errorf("port = %d", s.Port())
	}
}

func TestConnectionMethods(t *testing.T) {
	s := openTestStore(t)

	if err := s.SetConnectionMethods([]string{"tunnel"}, "203.0.113.1", "", "https://tunnel.example.com"); err != nil {
		t.Fatalf("set methods: %v", err)
	}

	info := s.ConnectionInfo()
	if len(info.Methods) != 1 || info.Methods[0] != "tunnel" {
		t.Errorf("methods = %v", info.Methods)
	}
	if info.IPv4 != "203.0.113.1" || info.TunnelURL != "https://tunnel.example.com" {
		t.Errorf("info = %+v", info)
	}

	// Empty fields keep previous values.
	s.SetConnectionMethods(nil, "", "", "")
	if got := s.ConnectionInfo(); got.IPv4 != "203.0.113.1" {
		t.Errorf("ipv4 lost on partial update: %+v", got)
	}
}

func TestConcurrentCreatesDoNotCorrupt(t *testing.T) {
	dir := t.TempDir()
	table := perms.NewTable()
	s, err := Open(dir, table)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	var wg sync.WaitGroup
	names := []string{"user1", "user2", "user3", "user4", "user5", "user6", "user7", "user8"}
	for _, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.CreateUser(name, "password123", nil, ""); err != nil {
				t.Errorf("create %s: %v", name, err)
			}
		}()
	}
	wg.Wait()

	if got := len(s.List()); got != len(names) {
		t.Fatalf("store has %d users, want %d", got, len(names))
	}

	reopened, err := Open(dir, table)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := len(reopened.List()); got != len(names) {
		t.Errorf("persisted file has %d users, want %d", got, len(names))
	}
}
