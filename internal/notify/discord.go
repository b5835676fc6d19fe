// Package notify implements the Discord status notifier. Message delivery
// goes through Shoutrrr so the webhook wire format stays out of this
// codebase.
package notify

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/nicholas-fedor/shoutrrr"

	"warden/internal/models"
)

const configFile = "discord.json"

// Sender abstracts message dispatch so the notifier can be tested without
// hitting real services.
type Sender interface {
	Send(shoutrrrURL, message string) error
}

// ShoutrrrSender dispatches via the Shoutrrr library.
type ShoutrrrSender struct{}

func (ShoutrrrSender) Send(rawURL, message string) error {
	return shoutrrr.Send(rawURL, message)
}

// Discord owns the persisted Discord settings and sends status messages.
type Discord struct {
	mu     sync.Mutex
	path   string
	cfg    models.DiscordConfig
	sender Sender
}

// NewDiscord loads the settings from dataDir. A nil sender uses Shoutrrr.
func NewDiscord(dataDir string, sender Sender) (*Discord, error) {
	if sender == nil {
		sender = ShoutrrrSender{}
	}
	d := &Discord{
		path:   filepath.Join(dataDir, configFile),
		sender: sender,
	}

	data, err := os.ReadFile(d.path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &d.cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", d.path, err)
		}
	case os.IsNotExist(err):
		// First run, defaults stay zero-valued (disabled).
	default:
		return nil, fmt.Errorf("read %s: %w", d.path, err)
	}
	return d, nil
}

// Config returns the current settings.
func (d *Discord) Config() (models.DiscordConfig, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg, nil
}

// SaveConfig validates and persists new settings.
func (d *Discord) SaveConfig(cfg models.DiscordConfig) error {
	if cfg.WebhookURL != "" {
		if _, err := shoutrrrURL(cfg.WebhookURL); err != nil {
			return err
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode discord config: %w", err)
	}
	if dir := filepath.Dir(d.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	tmp := d.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, d.path); err != nil {
		return fmt.Errorf("replace %s: %w", d.path, err)
	}

	d.cfg = cfg
	return nil
}

// Notify sends the configured online/offline message to the webhook.
func (d *Discord) Notify(online bool) error {
	d.mu.Lock()
	cfg := d.cfg
	d.mu.Unlock()

	if !cfg.Enabled {
		return fmt.Errorf("discord notifications are disabled")
	}
	if cfg.WebhookURL == "" {
		return fmt.Errorf("no webhook URL configured")
	}

	target, err := shoutrrrURL(cfg.WebhookURL)
	if err != nil {
		return err
	}

	message := cfg.OnlineMessage
	if !online {
		message = cfg.OfflineMessage
	}
	if message == "" {
		if online {
			message = "Game server is online"
		} else {
			message = "Game server is offline"
		}
	}

	if err := d.sender.Send(target, message); err != nil {
		return fmt.Errorf("send discord notification: %w", err)
	}
	return nil
}

// shoutrrrURL converts a Discord webhook URL into Shoutrrr's
// discord://token@id form.
func shoutrrrURL(webhookURL string) (string, error) {
	u, err := url.Parse(webhookURL)
	if err != nil {
		return "", fmt.Errorf("invalid webhook URL: %w", err)
	}
	host := u.Hostname()
	if host != "discord.com" && host != "discordapp.com" {
		return "", fmt.Errorf("not a Discord webhook URL: %s", host)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	// Expect api/webhooks/<id>/<token>
	if len(parts) < 4 || parts[0] != "api" || parts[1] != "webhooks" {
		return "", fmt.Errorf("malformed Discord webhook path: %s", u.Path)
	}
	id, token := parts[2], parts[3]
	if id == "" || token == "" {
		return "", fmt.Errorf("webhook id and token required")
	}
	return fmt.Sprintf("discord://%s@%s", token, id), nil
}
