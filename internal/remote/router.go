package remote

import (
	"errors"
	"fmt"

	"warden/internal/models"
	"warden/internal/perms"
)

// ─── Collaborator interfaces ────────────────────────────────────────────
//
// The router treats every administrative operation as an opaque handler.
// Implementations live outside this package (process control, archives,
// config parsing, Discord webhooks are not its concern).

// ServerControl drives the managed game-server process.
type ServerControl interface {
	Start() error
	Stop() error
	Restart() error
	State() (models.ServerState, error)
	Logs() ([]string, error)
}

// ConfigManager reads and writes the game-server configuration.
type ConfigManager interface {
	Read() (map[string]any, error)
	Write(cfg map[string]any) error
}

// BackupManager manages backup archives.
type BackupManager interface {
	Create(name string, full bool) (models.BackupMeta, error)
	List() ([]models.BackupMeta, error)
	Restore(id string) error
	Delete(id string) error
}

// FileManager exposes sandboxed file operations under the server directory.
type FileManager interface {
	List(dir string) ([]models.FileMeta, error)
	Read(path string) (string, error)
	Write(path, content string) error
	Delete(path string) error
}

// DiscordManager owns the Discord notification settings and dispatch.
type DiscordManager interface {
	Config() (models.DiscordConfig, error)
	SaveConfig(cfg models.DiscordConfig) error
	Notify(online bool) error
}

// Handlers bundles the collaborators the router dispatches to.
type Handlers struct {
	Server  ServerControl
	Config  ConfigManager
	Backups BackupManager
	Files   FileManager
	Discord DiscordManager
}

// ─── Router ─────────────────────────────────────────────────────────────

// command couples the required permission with its handler, so a routed
// command can never exist without a permission entry (deny-by-unmapped).
type command struct {
	permission string
	run        func(args []any) (any, error)
}

// Router maps (command, args) requests from authenticated connections to
// permission-checked collaborator calls.
type Router struct {
	commands map[string]command
}

// NewRouter builds the command table over the given collaborators.
func NewRouter(h Handlers) *Router {
	r := &Router{commands: make(map[string]command)}

	r.register("server:start", "server.start", func(args []any) (any, error) {
		if err := h.Server.Start(); err != nil {
			return nil, err
		}
		return statusMessage("Server started"), nil
	})
	r.register("server:stop", "server.stop", func(args []any) (any, error) {
		if err := h.Server.Stop(); err != nil {
			return nil, err
		}
		return statusMessage("Server stopped"), nil
	})
	r.register("server:restart", "server.restart", func(args []any) (any, error) {
		if err := h.Server.Restart(); err != nil {
			return nil, err
		}
		return statusMessage("Server restarted"), nil
	})
	r.register("server:status", "server.status", func(args []any) (any, error) {
		state, err := h.Server.State()
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"status":    state.Status,
			"isRunning": state.Status == "running",
			"pid":       state.PID,
			"uptime":    state.Uptime,
			"lastLog":   state.LastLog,
		}, nil
	})
	r.register("server:logs", "server.logs", func(args []any) (any, error) {
		logs, err := h.Server.Logs()
		if err != nil {
			return nil, err
		}
		return map[string]any{"logs": logs}, nil
	})

	r.register("config:read", "config.read", func(args []any) (any, error) {
		return h.Config.Read()
	})
	r.register("config:write", "config.write", func(args []any) (any, error) {
		cfg, err := argMap(args, 0, "config data")
		if err != nil {
			return nil, err
		}
		if err := h.Config.Write(cfg); err != nil {
			return nil, err
		}
		return statusMessage("Config saved"), nil
	})

	r.register("backup:create", "backup.create", func(args []any) (any, error) {
		name, _ := optString(args, 0)
		full, _ := optBool(args, 1)
		return h.Backups.Create(name, full)
	})
	r.register("backup:list", "backup.list", func(args []any) (any, error) {
		return h.Backups.List()
	})
	r.register("backup:restore", "backup.restore", func(args []any) (any, error) {
		id, err := argString(args, 0, "backup ID")
		if err != nil {
			return nil, err
		}
		if err := h.Backups.Restore(id); err != nil {
			return nil, err
		}
		return statusMessage("Backup restored"), nil
	})
	r.register("backup:delete", "backup.delete", func(args []any) (any, error) {
		id, err := argString(args, 0, "backup ID")
		if err != nil {
			return nil, err
		}
		if err := h.Backups.Delete(id); err != nil {
			return nil, err
		}
		return statusMessage("Backup deleted"), nil
	})

	r.register("files:list", "files.list", func(args []any) (any, error) {
		dir, _ := optString(args, 0)
		return h.Files.List(dir)
	})
	r.register("files:download", "files.read", func(args []any) (any, error) {
		path, err := argString(args, 0, "file path")
		if err != nil {
			return nil, err
		}
		return h.Files.Read(path)
	})
	r.register("files:upload", "files.upload", func(args []any) (any, error) {
		path, err := argString(args, 0, "file path")
		if err != nil {
			return nil, err
		}
		content, err := argString(args, 1, "file content")
		if err != nil {
			return nil, err
		}
		if err := h.Files.Write(path, content); err != nil {
			return nil, err
		}
		return statusMessage("File uploaded"), nil
	})
	r.register("files:delete", "files.delete", func(args []any) (any, error) {
		path, err := argString(args, 0, "file path")
		if err != nil {
			return nil, err
		}
		if err := h.Files.Delete(path); err != nil {
			return nil, err
		}
		return statusMessage("File deleted"), nil
	})

	r.register("discord:view", "discord.view", func(args []any) (any, error) {
		return h.Discord.Config()
	})
	r.register("discord:configure", "discord.configure", func(args []any) (any, error) {
		raw, err := argMap(args, 0, "discord config")
		if err != nil {
			return nil, err
		}
		cfg, err := decodeDiscordConfig(raw)
		if err != nil {
			return nil, err
		}
		if err := h.Discord.SaveConfig(cfg); err != nil {
			return nil, err
		}
		return statusMessage("Discord config saved"), nil
	})
	r.register("discord:send", "discord.send", func(args []any) (any, error) {
		online := true
		if v, ok := optBool(args, 0); ok {
			online = v
		}
		if err := h.Discord.Notify(online); err != nil {
			return nil, err
		}
		return statusMessage("Discord notification sent"), nil
	})

	return r
}

func (r *Router) register(name, permission string, run func([]any) (any, error)) {
	if permission == "" {
		panic("remote: command " + name + " registered without a permission")
	}
	r.commands[name] = command{permission: permission, run: run}
}

// RequiredPermission returns the permission a command demands.
func (r *Router) RequiredPermission(name string) (string, bool) {
	c, ok := r.commands[name]
	return c.permission, ok
}

// Dispatch checks the identity's permissions and invokes the matching
// collaborator. Collaborator failures come back as CommandExecutionError;
// the handler is never invoked on a permission miss.
func (r *Router) Dispatch(identity models.Identity, name string, args []any) (any, error) {
	c, ok := r.commands[name]
	if !ok {
		return nil, &UnknownCommandError{Command: name}
	}
	if !perms.Has(identity.Permissions, c.permission) {
		return nil, &PermissionError{Permission: c.permission}
	}

	result, err := c.run(args)
	if err != nil {
		var bad *badArgError
		if errors.As(err, &bad) {
			return nil, err
		}
		return nil, &CommandExecutionError{Command: name, Err: err}
	}
	return result, nil
}

// ─── Argument helpers ───────────────────────────────────────────────────

// badArgError marks a missing or mistyped argument, surfaced as-is rather
// than wrapped as a collaborator failure.
type badArgError struct {
	what string
}

func (e *badArgError) Error() string { return e.what + " required" }

func argString(args []any, i int, what string) (string, error) {
	if s, ok := optString(args, i); ok && s != "" {
		return s, nil
	}
	return "", &badArgError{what: what}
}

func argMap(args []any, i int, what string) (map[string]any, error) {
	if i < len(args) {
		if m, ok := args[i].(map[string]any); ok {
			return m, nil
		}
	}
	return nil, &badArgError{what: what}
}

func optString(args []any, i int) (string, bool) {
	if i < len(args) {
		s, ok := args[i].(string)
		return s, ok
	}
	return "", false
}

func optBool(args []any, i int) (bool, bool) {
	if i < len(args) {
		b, ok := args[i].(bool)
		return b, ok
	}
	return false, false
}

func statusMessage(msg string) map[string]any {
	return map[string]any{"success": true, "message": msg}
}

func decodeDiscordConfig(raw map[string]any) (models.DiscordConfig, error) {
	cfg := models.DiscordConfig{}
	if v, ok := raw["enabled"].(bool); ok {
		cfg.Enabled = v
	}
	str := func(key string) string {
		s, _ := raw[key].(string)
		return s
	}
	cfg.WebhookURL = str("webhookUrl")
	cfg.BotName = str("botName")
	cfg.OnlineMessage = str("onlineMessage")
	cfg.OfflineMessage = str("offlineMessage")
	if cfg.WebhookURL == "" {
		return cfg, fmt.Errorf("webhookUrl is required")
	}
	return cfg, nil
}
