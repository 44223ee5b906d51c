package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for Mirrorbot. Everything is read-only
// after startup except the channel mapping, which lives in its own store
// (internal/mapping) and is mutated at runtime by admin commands.
type Config struct {
	General GeneralConfig `json:"general" yaml:"general"`
	Source  SourceConfig  `json:"source" yaml:"source"`
	Target  TargetConfig  `json:"target" yaml:"target"`
	Relay   RelayConfig   `json:"relay" yaml:"relay"`
	Journal JournalConfig `json:"journal" yaml:"journal"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
	Notify  NotifyConfig  `json:"notify" yaml:"notify"`
}

type GeneralConfig struct {
	LogLevel  string `json:"logLevel" yaml:"logLevel"`
	LogFile   string `json:"logFile,omitempty" yaml:"logFile,omitempty"`
	BusBuffer int    `json:"busBuffer" yaml:"busBuffer"`
}

// SourceConfig holds the passive read side: a user-token gateway connection
// that only observes events on the source server.
type SourceConfig struct {
	UserToken string `json:"userToken" yaml:"userToken"`
	ServerID  string `json:"serverId" yaml:"serverId"`
}

// TargetConfig holds the active send side: the bot identity that manages
// webhooks and delivers mirrored messages.
type TargetConfig struct {
	BotToken string `json:"botToken" yaml:"botToken"`
	ServerID string `json:"serverId" yaml:"serverId"`
}

type RelayConfig struct {
	// ChannelMapping maps source channel IDs to target channel IDs.
	// Values may be JSON/YAML numbers or strings; both normalize to
	// string snowflakes.
	ChannelMapping     FlexChannelMap `json:"channelMapping" yaml:"channelMapping"`
	WebhookName        string         `json:"webhookName" yaml:"webhookName"`
	IncludeAttachments bool           `json:"includeAttachments" yaml:"includeAttachments"`
	IncludeEmbeds      bool           `json:"includeEmbeds" yaml:"includeEmbeds"`
	FilterBots         bool           `json:"filterBots" yaml:"filterBots"`
	PrefixFormat       string         `json:"prefixFormat" yaml:"prefixFormat"`
	LogMessages        bool           `json:"logMessages" yaml:"logMessages"`
	DebugAvatars       bool           `json:"debugAvatars" yaml:"debugAvatars"`
	CommandPrefix      string         `json:"commandPrefix" yaml:"commandPrefix"`
	MaxAttachmentMB    int            `json:"maxAttachmentMb" yaml:"maxAttachmentMb"`
	FetchTimeoutS      int            `json:"fetchTimeoutSeconds" yaml:"fetchTimeoutSeconds"`
}

type JournalConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	DBPath  string `json:"dbPath" yaml:"dbPath"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Host    string `json:"host" yaml:"host"`
	Port    int    `json:"port" yaml:"port"`
}

type NotifyConfig struct {
	Telegram TelegramNotifyConfig `json:"telegram" yaml:"telegram"`
}

// TelegramNotifyConfig configures optional operator alerts via a Telegram bot.
type TelegramNotifyConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Token   string `json:"token,omitempty" yaml:"token,omitempty"`
	ChatID  string `json:"chatId,omitempty" yaml:"chatId,omitempty"`
}

// FlexChannelMap is a map[string]string that can unmarshal values given as
// either strings or numbers (e.g. {"123": 456} and {"123": "456"} are the
// same mapping). Discord snowflakes exceed float64 precision, so numbers
// must be decoded carefully.
type FlexChannelMap map[string]string

func (f *FlexChannelMap) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	result := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			result[k] = val
		case json.Number:
			result[k] = val.String()
		default:
			return fmt.Errorf("channel mapping value for %s must be a string or number", k)
		}
	}
	*f = result
	return nil
}

func (f *FlexChannelMap) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	result := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			result[k] = val
		case int:
			result[k] = strconv.Itoa(val)
		case int64:
			result[k] = strconv.FormatInt(val, 10)
		case uint64:
			result[k] = strconv.FormatUint(val, 10)
		default:
			return fmt.Errorf("channel mapping value for %s must be a string or number", k)
		}
	}
	*f = result
	return nil
}

func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mirrorbot"
	}
	return filepath.Join(home, ".mirrorbot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads, env-expands, decodes, and validates the config file at path.
// Files ending in .yaml or .yml decode as YAML, everything else as JSON.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Journal.DBPath = ExpandPath(cfg.Journal.DBPath)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	path = ExpandPath(path)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// placeholder tokens that must be replaced before the process may connect.
var placeholderTokens = map[string]bool{
	"":                     true,
	"YOUR_USER_TOKEN_HERE": true,
	"YOUR_BOT_TOKEN_HERE":  true,
}

// Validate checks that the config has valid values. Credential problems are
// fatal here: the process must not proceed to connect with a placeholder.
func Validate(cfg *Config) error {
	var errs []string

	if placeholderTokens[cfg.Source.UserToken] {
		errs = append(errs, "source.userToken is missing or a placeholder")
	}
	if placeholderTokens[cfg.Target.BotToken] {
		errs = append(errs, "target.botToken is missing or a placeholder")
	}
	if !isSnowflake(cfg.Source.ServerID) {
		errs = append(errs, "source.serverId must be a numeric Discord server ID")
	}
	if !isSnowflake(cfg.Target.ServerID) {
		errs = append(errs, "target.serverId must be a numeric Discord server ID")
	}

	for src, dst := range cfg.Relay.ChannelMapping {
		if !isSnowflake(src) || !isSnowflake(dst) {
			errs = append(errs, fmt.Sprintf("relay.channelMapping entry %s -> %s is not a pair of channel IDs", src, dst))
		}
	}
	if cfg.Relay.WebhookName == "" {
		errs = append(errs, "relay.webhookName must not be empty")
	}
	if cfg.Relay.MaxAttachmentMB < 1 {
		errs = append(errs, "relay.maxAttachmentMb must be >= 1")
	}
	if cfg.Relay.FetchTimeoutS < 1 {
		errs = append(errs, "relay.fetchTimeoutSeconds must be >= 1")
	}

	if cfg.General.BusBuffer < 1 || cfg.General.BusBuffer > 10000 {
		errs = append(errs, "general.busBuffer must be between 1 and 10000")
	}
	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if cfg.Metrics.Port < 0 || cfg.Metrics.Port > 65535 {
		errs = append(errs, "metrics.port must be between 0 and 65535")
	}

	if cfg.Notify.Telegram.Enabled {
		if cfg.Notify.Telegram.Token == "" {
			errs = append(errs, "notify.telegram.token is required when telegram notify is enabled")
		}
		if _, err := strconv.ParseInt(cfg.Notify.Telegram.ChatID, 10, 64); err != nil {
			errs = append(errs, "notify.telegram.chatId must be a numeric chat ID")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// isSnowflake reports whether s looks like a Discord snowflake ID.
func isSnowflake(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.ParseUint(s, 10, 64)
	return err == nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
