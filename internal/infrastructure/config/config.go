package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

type Config struct {
	App struct {
		LogLevel      string   `toml:"log_level"`
		LogFile       string   `toml:"log_file"` // 为空时只输出到控制台
		Watch         []string `toml:"watch"`    // 控制台监视的资产
		PrintEverySec int      `toml:"print_every_sec"`
	} `toml:"app"`

	Feed struct {
		WsURL           string `toml:"ws_url"`
		HeartbeatSec    int    `toml:"heartbeat_sec"`
		ReconnectSec    int    `toml:"reconnect_sec"`
		DialTimeoutSec  int    `toml:"dial_timeout_sec"`
		WriteTimeoutSec int    `toml:"write_timeout_sec"`
		ReadTimeoutSec  int    `toml:"read_timeout_sec"`
	} `toml:"feed"`

	Mobula struct {
		APIKey         string `toml:"api_key"`
		RestURL        string `toml:"rest_url"`
		TradesURL      string `toml:"trades_url"`
		TimeoutSec     int    `toml:"timeout_sec"`
		RatePerMin     int    `toml:"rate_per_min"`
		MaxRetries     int    `toml:"max_retries"`
		RefPriceTTLSec int    `toml:"ref_price_ttl_sec"`
	} `toml:"mobula"`

	Relay struct {
		Chain              string `toml:"chain"`
		MaxPools           int    `toml:"max_pools"`
		PoolCacheTTLSec    int    `toml:"pool_cache_ttl_sec"`
		ResolveTimeoutSec  int    `toml:"resolve_timeout_sec"`
		TradeHistory       int    `toml:"trade_history"`
		SnapshotTimeoutSec int    `toml:"snapshot_timeout_sec"`
		FlushIntervalSec   int    `toml:"flush_interval_sec"`
	} `toml:"relay"`

	Server struct {
		Enabled    bool   `toml:"enabled"`
		Addr       string `toml:"addr"`
		SendBuffer int    `toml:"send_buffer"`
	} `toml:"server"`

	Redis struct {
		Enabled      bool   `toml:"enabled"`
		Addr         string `toml:"addr"`
		Password     string `toml:"password"`
		DB           int    `toml:"db"`
		Prefix       string `toml:"prefix"`
		TTLSeconds   int    `toml:"ttl_seconds"`
		QuoteChannel string `toml:"quote_channel"`
	} `toml:"redis"`

	SQLite struct {
		Enabled bool   `toml:"enabled"`
		Path    string `toml:"path"`
	} `toml:"sqlite"`

	Postgres struct {
		Enabled bool   `toml:"enabled"`
		DSN     string `toml:"dsn"`
	} `toml:"postgres"`
}

// Load 读取 .env（可选）和 TOML 文件，环境变量优先
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if strings.TrimSpace(path) != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("MOBULA_API_KEY"); v != "" {
		cfg.Mobula.APIKey = v
	}
	setString(&cfg.Feed.WsURL, "MDRELAY_WS_URL")
	setString(&cfg.Mobula.RestURL, "MDRELAY_REST_URL")
	setString(&cfg.Mobula.TradesURL, "MDRELAY_TRADES_URL")
	setString(&cfg.App.LogLevel, "MDRELAY_LOG_LEVEL")
	setString(&cfg.Server.Addr, "MDRELAY_SERVER_ADDR")
	setString(&cfg.Redis.Addr, "MDRELAY_REDIS_ADDR")
	setString(&cfg.Redis.Password, "MDRELAY_REDIS_PASSWORD")
	setString(&cfg.Postgres.DSN, "MDRELAY_POSTGRES_DSN")
	setInt(&cfg.Relay.MaxPools, "MDRELAY_MAX_POOLS")
	setInt(&cfg.Relay.TradeHistory, "MDRELAY_TRADE_HISTORY")
	if v := os.Getenv("MDRELAY_WATCH"); v != "" {
		cfg.App.Watch = strings.Split(v, ",")
	}
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = "info"
	}
	if cfg.App.PrintEverySec <= 0 {
		cfg.App.PrintEverySec = 60
	}

	if cfg.Feed.WsURL == "" {
		cfg.Feed.WsURL = "wss://api.mobula.io"
	}
	if cfg.Feed.HeartbeatSec <= 0 {
		cfg.Feed.HeartbeatSec = 30
	}
	if cfg.Feed.ReconnectSec <= 0 {
		cfg.Feed.ReconnectSec = 3
	}
	if cfg.Feed.DialTimeoutSec <= 0 {
		cfg.Feed.DialTimeoutSec = 10
	}
	if cfg.Feed.WriteTimeoutSec <= 0 {
		cfg.Feed.WriteTimeoutSec = 5
	}

	if cfg.Mobula.RestURL == "" {
		cfg.Mobula.RestURL = "https://api.mobula.io/api/1"
	}
	if cfg.Mobula.TradesURL == "" {
		cfg.Mobula.TradesURL = "https://api.mobula.io/api/2"
	}
	if cfg.Mobula.TimeoutSec <= 0 {
		cfg.Mobula.TimeoutSec = 10
	}
	if cfg.Mobula.MaxRetries < 0 {
		cfg.Mobula.MaxRetries = 0
	}
	if cfg.Mobula.RefPriceTTLSec <= 0 {
		cfg.Mobula.RefPriceTTLSec = 30
	}

	if cfg.Relay.Chain == "" {
		cfg.Relay.Chain = "solana"
	}
	if cfg.Relay.MaxPools <= 0 {
		cfg.Relay.MaxPools = 3
	}
	if cfg.Relay.PoolCacheTTLSec <= 0 {
		cfg.Relay.PoolCacheTTLSec = 600
	}
	if cfg.Relay.ResolveTimeoutSec <= 0 {
		cfg.Relay.ResolveTimeoutSec = 5
	}
	if cfg.Relay.TradeHistory <= 0 {
		cfg.Relay.TradeHistory = 20
	}
	if cfg.Relay.SnapshotTimeoutSec <= 0 {
		cfg.Relay.SnapshotTimeoutSec = 5
	}
	if cfg.Relay.FlushIntervalSec <= 0 {
		cfg.Relay.FlushIntervalSec = 5
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.SendBuffer <= 0 {
		cfg.Server.SendBuffer = 64
	}

	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "mdrelay"
	}
	if cfg.SQLite.Path == "" {
		cfg.SQLite.Path = "data/mdrelay.db"
	}
}

func validate(cfg *Config) error {
	cfg.App.Watch = normalizeList(cfg.App.Watch)

	if !strings.HasPrefix(cfg.Feed.WsURL, "ws://") && !strings.HasPrefix(cfg.Feed.WsURL, "wss://") {
		return fmt.Errorf("feed.ws_url must be ws:// or wss://, got %q", cfg.Feed.WsURL)
	}
	if strings.TrimSpace(cfg.Mobula.APIKey) == "" {
		return errors.New("mobula.api_key is empty (set MOBULA_API_KEY)")
	}
	if cfg.Redis.Enabled && strings.TrimSpace(cfg.Redis.Addr) == "" {
		return errors.New("redis.addr empty but enabled")
	}
	if cfg.Postgres.Enabled && strings.TrimSpace(cfg.Postgres.DSN) == "" {
		return errors.New("postgres.dsn empty but enabled")
	}
	return nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// 便捷的 Duration 访问

func (c *Config) HeartbeatInterval() time.Duration { return secs(c.Feed.HeartbeatSec) }
func (c *Config) ReconnectDelay() time.Duration    { return secs(c.Feed.ReconnectSec) }
func (c *Config) PoolCacheTTL() time.Duration      { return secs(c.Relay.PoolCacheTTLSec) }
func (c *Config) FlushInterval() time.Duration     { return secs(c.Relay.FlushIntervalSec) }
func (c *Config) PrintEvery() time.Duration        { return secs(c.App.PrintEverySec) }

func secs(n int) time.Duration { return time.Duration(n) * time.Second }
