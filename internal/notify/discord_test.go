package notify

import (
	"errors"
	"strings"
	"testing"

	"warden/internal/models"
)

// stubSender captures outgoing messages instead of delivering them.
type stubSender struct {
	urls     []string
	messages []string
	err      error
}

func (s *stubSender) Send(rawURL, message string) error {
	s.urls = append(s.urls, rawURL)
	s.messages = append(s.messages, message)
	return s.err
}

func enabledConfig() models.DiscordConfig {
	return models.DiscordConfig{
		Enabled:    true,
		WebhookURL: "https://discord.com/api/webhooks/123456/secret-token",
	}
}

func newTestDiscord(t *testing.T) (*Discord, *stubSender) {
	t.Helper()
	sender := &stubSender{}
	d, err := NewDiscord(t.TempDir(), sender)
	if err != nil {
		t.Fatalf("new discord: %v", err)
	}
	return d, sender
}

func TestNotifyDefaultsAndOverrides(t *testing.T) {
	d, sender := newTestDiscord(t)
	if err := d.SaveConfig(enabledConfig()); err != nil {
		t.Fatalf("save config: %v", err)
	}

	if err := d.Notify(true); err != nil {
		t.Fatalf("notify online: %v", err)
	}
	if err := d.Notify(false); err != nil {
		t.Fatalf("notify offline: %v", err)
	}
	if sender.messages[0] != "Game server is online" || sender.messages[1] != "Game server is offline" {
		t.Errorf("default messages = %v", sender.messages)
	}

	cfg := enabledConfig()
	cfg.OnlineMessage = "We are live!"
	if err := d.SaveConfig(cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}
	if err := d.Notify(true); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if sender.messages[2] != "We are live!" {
		t.Errorf("custom message = %q", sender.messages[2])
	}
}

func TestNotifyConvertsWebhookURL(t *testing.T) {
	d, sender := newTestDiscord(t)
	if err := d.SaveConfig(enabledConfig()); err != nil {
		t.Fatalf("save config: %v", err)
	}
	if err := d.Notify(true); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if sender.urls[0] != "discord://secret-token@123456" {
		t.Errorf("shoutrrr url = %q", sender.urls[0])
	}
}

func TestNotifyDisabledOrUnconfigured(t *testing.T) {
	d, sender := newTestDiscord(t)

	if err := d.Notify(true); err == nil {
		t.Error("notify with zero config should fail")
	}

	cfg := enabledConfig()
	cfg.Enabled = false
	if err := d.SaveConfig(cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}
	if err := d.Notify(true); err == nil || !strings.Contains(err.Error(), "disabled") {
		t.Errorf("disabled notify: %v", err)
	}

	if len(sender.messages) != 0 {
		t.Errorf("sender was called %d times", len(sender.messages))
	}
}

func TestSaveConfigRejectsNonDiscordURLs(t *testing.T) {
	d, _ := newTestDiscord(t)

	for _, bad := range []string{
		"https://example.com/api/webhooks/1/t",
		"https://discord.com/not/webhooks",
		"https://discord.com/api/webhooks/only-id",
	} {
		cfg := models.DiscordConfig{Enabled: true, WebhookURL: bad}
		if err := d.SaveConfig(cfg); err == nil {
			t.Errorf("SaveConfig(%q) accepted", bad)
		}
	}
}

func TestConfigPersistsAcrossReload(t *testing.T) {
	dir := t.TempDir()
	d, err := NewDiscord(dir, &stubSender{})
	if err != nil {
		t.Fatalf("new discord: %v", err)
	}

	cfg := enabledConfig()
	cfg.BotName = "Warden"
	if err := d.SaveConfig(cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}

	reloaded, err := NewDiscord(dir, &stubSender{})
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	got, _ := reloaded.Config()
	if got.BotName != "Warden" || !got.Enabled {
		t.Errorf("reloaded config = %+v", got)
	}
}

func TestNotifyWrapsSendFailure(t *testing.T) {
	d, sender := newTestDiscord(t)
	sender.err = errors.New("webhook unreachable")
	if err := d.SaveConfig(enabledConfig()); err != nil {
		t.Fatalf("save config: %v", err)
	}

	err := d.Notify(true)
	if err == nil || !strings.Contains(err.Error(), "send discord notification") {
		t.Errorf("notify error = %v", err)
	}
}
