// Package audit keeps a SQLite trail of remote logins and command
// dispatches. Recording is best-effort: a failed insert is logged, never
// propagated into the request path.
package audit

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const timeFormat = "2006-01-02 15:04:05"

// Entry kinds.
const (
	KindLogin   = "login"
	KindCommand = "command"
)

// Entry is one recorded audit event.
type Entry struct {
	ID         int64     `json:"id"`
	Kind       string    `json:"kind"`
	Username   string    `json:"username"`
	Command    string    `json:"command,omitempty"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	RemoteAddr string    `json:"remoteAddr,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Log is the audit trail store.
type Log struct {
	db *sql.DB
}

// Open creates or opens the audit database at path.
func Open(path string) (*Log, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create audit directory %s: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit database at %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to audit database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		log.Printf("[audit] could not enable WAL mode: %v", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_log (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			kind        TEXT NOT NULL,
			username    TEXT NOT NULL,
			command     TEXT,
			success     INTEGER NOT NULL,
			error       TEXT,
			remote_addr TEXT,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_audit_log_created ON audit_log(created_at);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit schema: %w", err)
	}

	return &Log{db: db}, nil
}

// Close releases the database handle.
func (l *Log) Close() error {
	return l.db.Close()
}

// RecordLogin stores a login attempt.
func (l *Log) RecordLogin(username string, success bool, remoteAddr string) {
	_, err := l.db.Exec(`
		INSERT INTO audit_log (kind, username, success, remote_addr, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		KindLogin, username, boolInt(success), remoteAddr,
		time.Now().UTC().Format(timeFormat))
	if err != nil {
		log.Printf("[audit] record login: %v", err)
	}
}

// RecordCommand stores a command dispatch outcome.
func (l *Log) RecordCommand(username, command string, success bool, errMsg string) {
	_, err := l.db.Exec(`
		INSERT INTO audit_log (kind, username, command, success, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		KindCommand, username, command, boolInt(success), errMsg,
		time.Now().UTC().Format(timeFormat))
	if err != nil {
		log.Printf("[audit] record command: %v", err)
	}
}

// Recent returns the newest entries, most recent first.
func (l *Log) Recent(limit int) ([]Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, kind, username, COALESCE(command, ''), success,
		       COALESCE(error, ''), COALESCE(remote_addr, ''), created_at
		FROM audit_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var success int
		var created string
		if err := rows.Scan(&e.ID, &e.Kind, &e.Username, &e.Command,
			&success, &e.Error, &e.RemoteAddr, &created); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Success = success == 1
		e.CreatedAt, _ = time.Parse(timeFormat, created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
