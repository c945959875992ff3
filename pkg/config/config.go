// Package config provides YAML-based configuration loading for paradis nodes.
package config

import (
    "errors"
    "fmt"
    "net"
    "os"
    "path/filepath"
    "strings"
    "time"

    "github.com/spf13/viper"
)

// Config is the root application configuration.
type Config struct {
    // Node identifies this node and where it listens.
    Node NodeConfig `mapstructure:"node"`

    // Packet holds defaults for packets created by the node's factory.
    Packet PacketConfig `mapstructure:"packet"`

    // Hub tunes routing and duplicate suppression.
    Hub HubConfig `mapstructure:"hub"`

    // Recent controls the peer address recency cache.
    Recent RecentConfig `mapstructure:"recent"`

    // Admin serves /metrics and /peers when Listen is set.
    Admin AdminConfig `mapstructure:"admin"`

    // Log holds logging configuration
    Log LogConfig `mapstructure:"log"`
}

type NodeConfig struct {
    // Name is the principal name hashed into every identifier. Empty means
    // a random name is chosen at start.
    Name string `mapstructure:"name"`
    // Listen is the UDP address of the shared socket.
    Listen string `mapstructure:"listen"`
    // TCPListen optionally accepts hub connections over TCP as well.
    TCPListen string `mapstructure:"tcp_listen"`
    // Advertise is the reachable address hint stamped on outgoing casts.
    Advertise string `mapstructure:"advertise"`
    // Bootstrap lists host:port peers to connect to at start. Entries
    // prefixed with tcp:// are dialed over TCP.
    Bootstrap []string `mapstructure:"bootstrap"`
    // DataDir is the base directory for persistent data.
    DataDir string `mapstructure:"data_dir"`
    // InputBufferBytes bounds unread input per virtual socket.
    InputBufferBytes int `mapstructure:"input_buffer_bytes"`
}

type PacketConfig struct {
    TTL      int16 `mapstructure:"ttl"`
    Loopback bool  `mapstructure:"loopback"`
}

type HubConfig struct {
    RetryAttempts  int `mapstructure:"retry_attempts"`
    RetryDelayMS   int `mapstructure:"retry_delay_ms"`
    SeenTTLSeconds int `mapstructure:"seen_ttl_seconds"`
    SeenMaxKeys    int `mapstructure:"seen_max_keys"`
    MaxPacketBytes int `mapstructure:"max_packet_bytes"`
}

func (h HubConfig) RetryDelay() time.Duration { return time.Duration(h.RetryDelayMS) * time.Millisecond }
func (h HubConfig) SeenTTL() time.Duration    { return time.Duration(h.SeenTTLSeconds) * time.Second }

type RecentConfig struct {
    Capacity     int    `mapstructure:"capacity"`
    File         string `mapstructure:"file"`
    QuietMS      int    `mapstructure:"quiet_ms"`
    MaxDeferrals int    `mapstructure:"max_deferrals"`
}

func (r RecentConfig) Quiet() time.Duration { return time.Duration(r.QuietMS) * time.Millisecond }

// Path resolves File against dataDir when it is relative.
func (r RecentConfig) Path(dataDir string) string {
    if r.File == "" || filepath.IsAbs(r.File) { return r.File }
    return filepath.Join(dataDir, r.File)
}

type AdminConfig struct {
    Listen string `mapstructure:"listen"`
}

// LogConfig defines logger settings.
type LogConfig struct {
    // Level: debug, info, warn, error
    Level string `mapstructure:"level"`
    // Format: console or json
    Format string `mapstructure:"format"`
    // Outputs: list of outputs: stdout, stderr, or file paths
    Outputs []string `mapstructure:"outputs"`

    // Rotation controls file rotation when writing to files
    Rotation RotationConfig `mapstructure:"rotation"`
    // Development toggles development-friendly logging options
    Development bool `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
    Enable     bool   `mapstructure:"enable"`
    Filename   string `mapstructure:"filename"`
    MaxSizeMB  int    `mapstructure:"max_size_mb"`
    MaxBackups int    `mapstructure:"max_backups"`
    MaxAgeDays int    `mapstructure:"max_age_days"`
    Compress   bool   `mapstructure:"compress"`
}

// TCPScheme marks bootstrap entries dialed over TCP.
const TCPScheme = "tcp://"

// Default returns a Config populated with sensible defaults.
func Default() *Config {
    return &Config{
        Node: NodeConfig{
            Listen:           ":7777",
            DataDir:          "./data",
            InputBufferBytes: 1 << 20,
        },
        Packet: PacketConfig{TTL: 8},
        Hub: HubConfig{
            RetryAttempts:  3,
            RetryDelayMS:   200,
            SeenTTLSeconds: 300,
            SeenMaxKeys:    1 << 20,
            MaxPacketBytes: 16 << 20,
        },
        Recent: RecentConfig{
            Capacity:     64,
            File:         "recent-peers.cbor",
            QuietMS:      2000,
            MaxDeferrals: 5,
        },
        Log: LogConfig{
            Level:       "info",
            Format:      "console",
            Outputs:     []string{"stdout"},
            Development: true,
            Rotation: RotationConfig{
                Enable:     false,
                Filename:   "logs/paradis.log",
                MaxSizeMB:  50,
                MaxBackups: 3,
                MaxAgeDays: 28,
                Compress:   true,
            },
        },
    }
}

// Load reads configuration from the provided path (if non-empty),
// otherwise it searches common locations and supports environment overrides.
// Environment variables use the prefix PARADIS and `.`/`-` are replaced with `_`.
// Example: PARADIS_LOG_LEVEL=debug
func Load(path string) (*Config, error) {
    cfg := Default()

    v := viper.New()
    v.SetConfigType("yaml")
    v.SetEnvPrefix("PARADIS")
    v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
    v.AutomaticEnv()
    seedDefaults(v, cfg)

    if path == "" {
        path = os.Getenv("PARADIS_CONFIG")
    }
    if path != "" {
        v.SetConfigFile(path)
    } else {
        v.SetConfigName("paradis")
        v.AddConfigPath(".")
        v.AddConfigPath("./configs")
        if home, err := os.UserHomeDir(); err == nil {
            v.AddConfigPath(filepath.Join(home, ".paradis"))
        }
    }

    // Read config file if present; if not found, continue with defaults/env
    if err := v.ReadInConfig(); err != nil {
        var notFound viper.ConfigFileNotFoundError
        if !errors.As(err, &notFound) {
            return nil, fmt.Errorf("read config: %w", err)
        }
    }

    if err := v.Unmarshal(cfg); err != nil {
        return nil, fmt.Errorf("decode config: %w", err)
    }
    if err := cfg.Validate(); err != nil {
        return nil, err
    }
    return cfg, nil
}

// seedDefaults registers every key so env-only configs work.
func seedDefaults(v *viper.Viper, cfg *Config) {
    v.SetDefault("node.name", cfg.Node.Name)
    v.SetDefault("node.listen", cfg.Node.Listen)
    v.SetDefault("node.tcp_listen", cfg.Node.TCPListen)
    v.SetDefault("node.advertise", cfg.Node.Advertise)
    v.SetDefault("node.bootstrap", cfg.Node.Bootstrap)
    v.SetDefault("node.data_dir", cfg.Node.DataDir)
    v.SetDefault("node.input_buffer_bytes", cfg.Node.InputBufferBytes)
    v.SetDefault("packet.ttl", cfg.Packet.TTL)
    v.SetDefault("packet.loopback", cfg.Packet.Loopback)
    v.SetDefault("hub.retry_attempts", cfg.Hub.RetryAttempts)
    v.SetDefault("hub.retry_delay_ms", cfg.Hub.RetryDelayMS)
    v.SetDefault("hub.seen_ttl_seconds", cfg.Hub.SeenTTLSeconds)
    v.SetDefault("hub.seen_max_keys", cfg.Hub.SeenMaxKeys)
    v.SetDefault("hub.max_packet_bytes", cfg.Hub.MaxPacketBytes)
    v.SetDefault("recent.capacity", cfg.Recent.Capacity)
    v.SetDefault("recent.file", cfg.Recent.File)
    v.SetDefault("recent.quiet_ms", cfg.Recent.QuietMS)
    v.SetDefault("recent.max_deferrals", cfg.Recent.MaxDeferrals)
    v.SetDefault("admin.listen", cfg.Admin.Listen)
    v.SetDefault("log.level", cfg.Log.Level)
    v.SetDefault("log.format", cfg.Log.Format)
    v.SetDefault("log.outputs", cfg.Log.Outputs)
    v.SetDefault("log.development", cfg.Log.Development)
    v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
    v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
    v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
    v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
    v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
    v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
}

// Validate normalizes empty fields and rejects invalid values.
func (c *Config) Validate() error {
    switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
    case "debug", "info", "warn", "warning", "error":
    default:
        return fmt.Errorf("invalid log.level: %q", c.Log.Level)
    }
    if c.Log.Format == "" {
        c.Log.Format = "console"
    }
    if len(c.Log.Outputs) == 0 {
        c.Log.Outputs = []string{"stdout"}
    }
    if c.Packet.TTL < 0 {
        return fmt.Errorf("invalid packet.ttl: %d", c.Packet.TTL)
    }
    if c.Hub.RetryAttempts < 0 || c.Hub.RetryDelayMS < 0 {
        return errors.New("hub retry settings must be non-negative")
    }
    if c.Hub.SeenTTLSeconds <= 0 {
        return fmt.Errorf("invalid hub.seen_ttl_seconds: %d", c.Hub.SeenTTLSeconds)
    }
    if c.Recent.Capacity <= 0 {
        return fmt.Errorf("invalid recent.capacity: %d", c.Recent.Capacity)
    }
    for _, b := range c.Node.Bootstrap {
        if _, _, err := net.SplitHostPort(strings.TrimPrefix(b, TCPScheme)); err != nil {
            return fmt.Errorf("invalid node.bootstrap entry %q: %w", b, err)
        }
    }
    return nil
}

// MustLoad is a convenience that panics on error.
func MustLoad(path string) *Config {
    cfg, err := Load(path)
    if err != nil {
        panic(err)
    }
    return cfg
}
