package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultModel       = "meta-llama/llama-4-scout-17b-16e-instruct"
	DefaultBaseURL     = "https://api.groq.com/openai/v1"
	DefaultMaxTokens   = 150
	DefaultTemperature = 0.8

	DefaultHistoryTrigger  = 40
	DefaultHistoryRetain   = 20
	DefaultXPStep          = 15
	DefaultCooldownSeconds = 3
	DefaultIdlePingMinutes = 20
	DefaultAwayPingMinutes = 30
	DefaultDecayCronExpr   = "0 0 4 * * *"

	DefaultFreeBudget     = 500
	DefaultStandardBudget = 2000

	DefaultBufSize = 100
	DefaultPort    = 18890
)

type Config struct {
	Persona      PersonaConfig      `json:"persona"`
	Provider     ProviderConfig     `json:"provider"`
	Channels     ChannelsConfig     `json:"channels"`
	Memory       MemoryConfig       `json:"memory"`
	Relationship RelationshipConfig `json:"relationship"`
	Limits       LimitsConfig       `json:"limits"`
	Pings        PingsConfig        `json:"pings"`
	Gateway      GatewayConfig      `json:"gateway"`
}

type PersonaConfig struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type ProviderConfig struct {
	APIKey      string  `json:"apiKey"`
	BaseURL     string  `json:"baseUrl,omitempty"`
	Model       string  `json:"model,omitempty"`
	MaxTokens   int     `json:"maxTokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	WebUI    WebUIConfig    `json:"webui"`
}

type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allowFrom"`
	Proxy     string   `json:"proxy,omitempty"`
}

type WebUIConfig struct {
	Enabled   bool     `json:"enabled"`
	AllowFrom []string `json:"allowFrom"`
}

type MemoryConfig struct {
	FilePath       string `json:"filePath,omitempty"`
	HistoryTrigger int    `json:"historyTrigger,omitempty"`
	HistoryRetain  int    `json:"historyRetain,omitempty"`
}

type RelationshipConfig struct {
	XPStep         int    `json:"xpStep,omitempty"`
	PrivilegedUser string `json:"privilegedUser,omitempty"`
}

// LimitsConfig controls the cooldown gate and per-tier lifetime reply
// budgets. A budget of 0 means unlimited.
type LimitsConfig struct {
	CooldownSeconds int `json:"cooldownSeconds,omitempty"`
	FreeBudget      int `json:"freeBudget,omitempty"`
	StandardBudget  int `json:"standardBudget,omitempty"`
	PremiumBudget   int `json:"premiumBudget,omitempty"`
}

type PingsConfig struct {
	Enabled       bool   `json:"enabled"`
	IdleChannel   string `json:"idleChannel,omitempty"`
	IdleChatID    string `json:"idleChatId,omitempty"`
	IdleMinutes   int    `json:"idleMinutes,omitempty"`
	AwayMinutes   int    `json:"awayMinutes,omitempty"`
	DecayCronExpr string `json:"decayCronExpr,omitempty"`
}

type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func DefaultConfig() *Config {
	return &Config{
		Persona: PersonaConfig{
			Name: "Koko",
		},
		Provider: ProviderConfig{
			BaseURL:     DefaultBaseURL,
			Model:       DefaultModel,
			MaxTokens:   DefaultMaxTokens,
			Temperature: DefaultTemperature,
		},
		Channels: ChannelsConfig{},
		Memory: MemoryConfig{
			HistoryTrigger: DefaultHistoryTrigger,
			HistoryRetain:  DefaultHistoryRetain,
		},
		Relationship: RelationshipConfig{
			XPStep: DefaultXPStep,
		},
		Limits: LimitsConfig{
			CooldownSeconds: DefaultCooldownSeconds,
			FreeBudget:      DefaultFreeBudget,
			StandardBudget:  DefaultStandardBudget,
			PremiumBudget:   0,
		},
		Pings: PingsConfig{
			IdleMinutes:   DefaultIdlePingMinutes,
			AwayMinutes:   DefaultAwayPingMinutes,
			DecayCronExpr: DefaultDecayCronExpr,
		},
		Gateway: GatewayConfig{
			Host: "0.0.0.0",
			Port: DefaultPort,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".kokobot")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// MemoryPath resolves the memory file location, defaulting under the
// config dir when unset.
func MemoryPath(cfg *Config) string {
	if cfg.Memory.FilePath != "" {
		return cfg.Memory.FilePath
	}
	return filepath.Join(ConfigDir(), "data", "memory.json")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if key := os.Getenv("KOKOBOT_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("GROQ_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
	}
	if url := os.Getenv("KOKOBOT_BASE_URL"); url != "" {
		cfg.Provider.BaseURL = url
	}
	if model := os.Getenv("KOKOBOT_MODEL"); model != "" {
		cfg.Provider.Model = model
	}
	if token := os.Getenv("KOKOBOT_TELEGRAM_TOKEN"); token != "" {
		cfg.Channels.Telegram.Token = token
	}
	if path := os.Getenv("KOKOBOT_MEMORY_PATH"); path != "" {
		cfg.Memory.FilePath = path
	}
	if owner := os.Getenv("KOKOBOT_PRIVILEGED_USER"); owner != "" {
		cfg.Relationship.PrivilegedUser = owner
	}
	if v := os.Getenv("KOKOBOT_COOLDOWN_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Limits.CooldownSeconds = parsed
		}
	}
	if v := os.Getenv("KOKOBOT_PINGS_ENABLED"); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			cfg.Pings.Enabled = parsed
		}
	}

	if cfg.Memory.HistoryTrigger <= 0 {
		cfg.Memory.HistoryTrigger = DefaultHistoryTrigger
	}
	if cfg.Memory.HistoryRetain <= 0 {
		cfg.Memory.HistoryRetain = DefaultHistoryRetain
	}
	if cfg.Memory.HistoryRetain >= cfg.Memory.HistoryTrigger {
		cfg.Memory.HistoryRetain = cfg.Memory.HistoryTrigger / 2
	}
	if cfg.Relationship.XPStep <= 0 {
		cfg.Relationship.XPStep = DefaultXPStep
	}
	if cfg.Limits.CooldownSeconds < 0 {
		cfg.Limits.CooldownSeconds = DefaultCooldownSeconds
	}
	if cfg.Provider.MaxTokens <= 0 {
		cfg.Provider.MaxTokens = DefaultMaxTokens
	}
	if cfg.Pings.IdleMinutes <= 0 {
		cfg.Pings.IdleMinutes = DefaultIdlePingMinutes
	}
	if cfg.Pings.AwayMinutes <= 0 {
		cfg.Pings.AwayMinutes = DefaultAwayPingMinutes
	}
	if cfg.Pings.DecayCronExpr == "" {
		cfg.Pings.DecayCronExpr = DefaultDecayCronExpr
	}

	return cfg, nil
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}
