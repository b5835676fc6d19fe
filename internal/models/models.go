package models

import "time"

// Connection methods a panel can advertise for remote clients.
const (
	MethodIP     = "ip"
	MethodTunnel = "tunnel"
)

// RemoteUser is an account allowed to connect to the remote control server.
// PasswordHash is persisted but must never leave the store; callers receive
// sanitized copies.
type RemoteUser struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"passwordHash,omitempty"`
	Permissions  []string  `json:"permissions"`
	CreatedAt    time.Time `json:"createdAt"`
	LastAccess   time.Time `json:"lastAccess,omitzero"`
	IsActive     bool      `json:"isActive"`
}

// Sanitized returns a copy safe to hand outside the store.
func (u RemoteUser) Sanitized() RemoteUser {
	u.PasswordHash = ""
	perms := make([]string, len(u.Permissions))
	copy(perms, u.Permissions)
	u.Permissions = perms
	return u
}

// RemoteAccessConfig is the single persisted record for the remote access
// feature: listener settings, the token-signing secret and all user accounts.
type RemoteAccessConfig struct {
	Enabled        bool         `json:"enabled"`
	Secret         string       `json:"secret"`
	Port           int          `json:"port"`
	AllowedMethods []string     `json:"allowedMethods"`
	IPv4           string       `json:"ipv4,omitempty"`
	IPv6           string       `json:"ipv6,omitempty"`
	TunnelURL      string       `json:"tunnelUrl,omitempty"`
	Users          []RemoteUser `json:"users"`
}

// Identity is the verified (user, permissions) tuple attached to an
// authenticated connection. Permissions are the snapshot taken at login or
// token issuance, not a live view of the store.
type Identity struct {
	UserID      string   `json:"userId"`
	Username    string   `json:"username"`
	Permissions []string `json:"permissions"`
}

// SessionInfo describes one connected, authenticated client.
type SessionInfo struct {
	ConnectionID string    `json:"connectionId"`
	Username     string    `json:"username"`
	Permissions  []string  `json:"permissions"`
	ConnectedAt  time.Time `json:"connectedAt"`
}

// Statistics summarises the remote access configuration for the admin UI.
type Statistics struct {
	TotalUsers   int    `json:"totalUsers"`
	ActiveUsers  int    `json:"activeUsers"`
	MaskedSecret string `json:"maskedSecret"`
}

// ServerState is the game-server supervisor's view of the managed process.
type ServerState struct {
	Status  string `json:"status"` // stopped, starting, running, stopping
	PID     int    `json:"pid,omitempty"`
	Uptime  int64  `json:"uptime,omitempty"` // seconds
	LastLog string `json:"lastLog,omitempty"`
}

// BackupMeta describes one backup archive.
type BackupMeta struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Full      bool      `json:"full"`
	SizeBytes int64     `json:"sizeBytes"`
	CreatedAt time.Time `json:"createdAt"`
}

// FileMeta describes one entry in the sandboxed file browser.
type FileMeta struct {
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	SizeBytes  int64     `json:"sizeBytes"`
	IsDir      bool      `json:"isDir"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// UploadResult reports which files made it during a multi-file upload.
type UploadResult struct {
	Uploaded []string `json:"uploaded"`
	Failed   []string `json:"failed"`
}

// DiscordConfig holds the Discord notification settings.
type DiscordConfig struct {
	Enabled        bool   `json:"enabled"`
	WebhookURL     string `json:"webhookUrl"`
	BotName        string `json:"botName,omitempty"`
	OnlineMessage  string `json:"onlineMessage,omitempty"`
	OfflineMessage string `json:"offlineMessage,omitempty"`
}
