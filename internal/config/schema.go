// Package config defines the configuration schema for instrumentgpt.
//
// JSON keys use camelCase; the file lives at ~/.instrumentgpt/config.json.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// AgentConfig configures the external agent CLI transport.
type AgentConfig struct {
	BinPath  string `json:"binPath,omitempty"`  // explicit binary or directory, empty = PATH
	Workdir  string `json:"workdir"`            // agent working directory for tool use
	Model    string `json:"model,omitempty"`    // empty = CLI default
	Mode     string `json:"mode"`               // "agent", "ask", "plan"
	DebugDir string `json:"debugDir,omitempty"` // NDJSON capture directory
}

func defaultAgentConfig() AgentConfig {
	return AgentConfig{
		Workdir: "~/.instrumentgpt/workspace",
		Mode:    "agent",
	}
}

// MemoryConfig tunes the conversation-memory bounds. Zero values select the
// built-in defaults at construction time.
type MemoryConfig struct {
	RecentTurns     int `json:"recentTurns"`     // raw exchanges kept in the prompt
	MaxRecentChars  int `json:"maxRecentChars"`  // per-message ceiling in the recent window
	MaxSummaryChars int `json:"maxSummaryChars"` // rolling summary cap
	CompressBudget  int `json:"compressBudget"`  // per-message budget when folding
}

// DevicesConfig points at the extraction rule grammar and the debugging
// guide injected into device prompts.
type DevicesConfig struct {
	RulesPath string `json:"rulesPath,omitempty"` // YAML rules file, empty = built-ins
	GuideTag  string `json:"guideTag"`            // guide reference appended to device prompts
}

func defaultDevicesConfig() DevicesConfig {
	return DevicesConfig{GuideTag: "@log-download-and-debug.mdc"}
}

// TelegramConfig configures the Telegram channel.
type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allowFrom"`
}

// ChannelsConfig holds all chat channel configs.
type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
}

func defaultChannelsConfig() ChannelsConfig {
	return ChannelsConfig{Telegram: TelegramConfig{AllowFrom: []string{}}}
}

// GatewayConfig configures the websocket gateway for browser clients.
type GatewayConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

func defaultGatewayConfig() GatewayConfig {
	return GatewayConfig{Enabled: true, Host: "127.0.0.1", Port: 8750}
}

// MaintenanceConfig configures the background memory sweep.
type MaintenanceConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule"` // cron spec, e.g. "@every 10m"
}

func defaultMaintenanceConfig() MaintenanceConfig {
	return MaintenanceConfig{Enabled: true, Schedule: "@every 10m"}
}

// StorageConfig locates the database and the knowledge-base directory.
type StorageConfig struct {
	DBPath   string `json:"dbPath"`
	LikedDir string `json:"likedDir"`
}

func defaultStorageConfig() StorageConfig {
	return StorageConfig{
		DBPath:   "~/.instrumentgpt/chat.db",
		LikedDir: "~/.instrumentgpt/knowledge",
	}
}

// Config is the root configuration.
type Config struct {
	Agent       AgentConfig       `json:"agent"`
	Memory      MemoryConfig      `json:"memory"`
	Devices     DevicesConfig     `json:"devices"`
	Channels    ChannelsConfig    `json:"channels"`
	Gateway     GatewayConfig     `json:"gateway"`
	Maintenance MaintenanceConfig `json:"maintenance"`
	Storage     StorageConfig     `json:"storage"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		Agent:       defaultAgentConfig(),
		Devices:     defaultDevicesConfig(),
		Channels:    defaultChannelsConfig(),
		Gateway:     defaultGatewayConfig(),
		Maintenance: defaultMaintenanceConfig(),
		Storage:     defaultStorageConfig(),
	}
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/"))
	}
	return path
}
