package perms

// Permission categories.
const (
	CategoryServer  = "server"
	CategoryConfig  = "config"
	CategoryBackup  = "backup"
	CategoryFiles   = "files"
	CategoryDiscord = "discord"
)

// Role names with preset permission bundles.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleViewer    Role = "viewer"
)

// Permission is one named capability a remote user can hold.
type Permission struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// catalog is the full set of capabilities, in display order.
// IDs are dotted and must match the command router's table exactly.
var catalog = []Permission{
	{ID: "server.start", Name: "Start Server", Description: "Start the game server process", Category: CategoryServer},
	{ID: "server.stop", Name: "Stop Server", Description: "Stop the game server process", Category: CategoryServer},
	{ID: "server.restart", Name: "Restart Server", Description: "Restart the game server process", Category: CategoryServer},
	{ID: "server.status", Name: "View Status", Description: "View the game server state", Category: CategoryServer},
	{ID: "server.logs", Name: "View Logs", Description: "Read the game server log tail", Category: CategoryServer},
	{ID: "server.command", Name: "Send Commands", Description: "Send console commands to the game server", Category: CategoryServer},

	{ID: "config.read", Name: "Read Configuration", Description: "Read the game server configuration", Category: CategoryConfig},
	{ID: "config.write", Name: "Write Configuration", Description: "Modify the game server configuration", Category: CategoryConfig},

	{ID: "backup.create", Name: "Create Backups", Description: "Create backup archives", Category: CategoryBackup},
	{ID: "backup.restore", Name: "Restore Backups", Description: "Restore from a backup archive", Category: CategoryBackup},
	{ID: "backup.delete", Name: "Delete Backups", Description: "Delete backup archives", Category: CategoryBackup},
	{ID: "backup.list", Name: "List Backups", Description: "View the backup archive list", Category: CategoryBackup},

	{ID: "files.list", Name: "List Files", Description: "List files under the server directory", Category: CategoryFiles},
	{ID: "files.read", Name: "Read Files", Description: "Download file contents", Category: CategoryFiles},
	{ID: "files.write", Name: "Write Files", Description: "Modify files under the server directory", Category: CategoryFiles},
	{ID: "files.upload", Name: "Upload Files", Description: "Upload files to the server directory", Category: CategoryFiles},
	{ID: "files.delete", Name: "Delete Files", Description: "Delete files under the server directory", Category: CategoryFiles},

	{ID: "discord.view", Name: "View Discord Settings", Description: "View the Discord notification settings", Category: CategoryDiscord},
	{ID: "discord.configure", Name: "Configure Discord", Description: "Change the Discord notification settings", Category: CategoryDiscord},
	{ID: "discord.send", Name: "Send Notifications", Description: "Trigger a Discord status notification", Category: CategoryDiscord},
}

// Preset bundles are fixed data, not derived from the catalog. PresetFor
// filters them against the catalog so a removed capability drops out of the
// preset instead of granting a dangling id.
var presets = map[Role][]string{
	RoleModerator: {
		"server.status", "server.logs",
		"server.start", "server.stop", "server.restart",
		"config.read",
		"backup.create", "backup.list",
		"files.read", "files.list",
	},
	RoleViewer: {
		"server.status", "server.logs",
		"config.read",
		"backup.list",
		"files.list",
	},
}

// Table is the static capability catalog.
type Table struct {
	known map[string]Permission
}

// NewTable builds the catalog lookup.
func NewTable() *Table {
	known := make(map[string]Permission, len(catalog))
	for _, p := range catalog {
		known[p.ID] = p
	}
	return &Table{known: known}
}

// All returns every permission in display order.
func (t *Table) All() []Permission {
	out := make([]Permission, len(catalog))
	copy(out, catalog)
	return out
}

// ByCategory returns the permissions in one category, in display order.
func (t *Table) ByCategory(category string) []Permission {
	var out []Permission
	for _, p := range catalog {
		if p.Category == category {
			out = append(out, p)
		}
	}
	return out
}

// Get returns one permission by id.
func (t *Table) Get(id string) (Permission, bool) {
	p, ok := t.known[id]
	return p, ok
}

// PresetFor returns the permission ids bundled for a role. Admin gets the
// whole catalog; unknown roles get nothing.
func (t *Table) PresetFor(role Role) []string {
	if role == RoleAdmin {
		ids := make([]string, 0, len(catalog))
		for _, p := range catalog {
			ids = append(ids, p.ID)
		}
		return ids
	}

	var out []string
	for _, id := range presets[role] {
		if _, ok := t.known[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Validate reports whether every id is a known capability.
func (t *Table) Validate(ids []string) bool {
	for _, id := range ids {
		if _, ok := t.known[id]; !ok {
			return false
		}
	}
	return true
}

// Has reports whether the user's permission set contains required.
func Has(userPermissions []string, required string) bool {
	for _, p := range userPermissions {
		if p == required {
			return true
		}
	}
	return false
}

// HasAll reports whether the user holds every required permission.
func HasAll(userPermissions []string, required []string) bool {
	for _, r := range required {
		if !Has(userPermissions, r) {
			return false
		}
	}
	return true
}

// HasAny reports whether the user holds at least one required permission.
func HasAny(userPermissions []string, required []string) bool {
	for _, r := range required {
		if Has(userPermissions, r) {
			return true
		}
	}
	return false
}
