package config

import (
	"os"
	"strconv"
)

// Config holds daemon configuration taken from the environment.
type Config struct {
	Port      int    // remote control listener port (overridden by the persisted record if set)
	DataDir   string // where remote-access.json and warden.db live
	GameDir   string // root the file browser and backups are confined to
	StartCmd  string // command used to launch the game server
	BackupDir string // where backup archives are written
}

// Load returns the daemon configuration from environment variables.
func Load() Config {
	return Config{
		Port:      getEnvInt("WARDEN_PORT", 9999),
		DataDir:   getEnv("WARDEN_DATA_DIR", "data"),
		GameDir:   getEnv("WARDEN_GAME_DIR", "server"),
		StartCmd:  getEnv("WARDEN_START_CMD", ""),
		BackupDir: getEnv("WARDEN_BACKUP_DIR", "backups"),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}
