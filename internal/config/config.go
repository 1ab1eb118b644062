// Package config handles configuration loading and validation for Hashpool.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/hashpool/hashpool/internal/policy"
)

// Config holds all configuration for a hashpool binary. A given process
// (poold, translatord, mintd) reads only the sections it needs; the
// others are ignored, the way tos-pool's combined master+slave binary
// reads one Config and checks Master.Enabled/Slave.Enabled.
type Config struct {
	Pool       PoolConfig       `mapstructure:"pool"`
	Translator TranslatorConfig `mapstructure:"translator"`
	Mint       MintConfig       `mapstructure:"mint"`
	Vardiff    VardiffConfig    `mapstructure:"vardiff"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Policy     PolicyConfig     `mapstructure:"policy"`
	NewRelic   NewRelicConfig   `mapstructure:"newrelic"`
	Profiling  ProfilingConfig  `mapstructure:"profiling"`
	Log        LogConfig        `mapstructure:"log"`
}

// PoolConfig configures the SV2 pool engine (cmd/poold).
type PoolConfig struct {
	Bind                       string `mapstructure:"bind"`
	StaticKeyHex               string `mapstructure:"static_key"` // hex-encoded 32-byte Noise static private key
	MinimumShareDifficultyBits int    `mapstructure:"minimum_share_difficulty_bits"`
	ClockSkewSeconds           uint32 `mapstructure:"clock_skew_seconds"`
	ExtranoncePrefixSize       int    `mapstructure:"extranonce_prefix_size"`
	NodeRPCURL                 string `mapstructure:"node_rpc_url"` // Bitcoin Core getblocktemplate source; full RPC integration out of scope, this is a placeholder for TemplateProvider wiring
}

// TranslatorConfig configures the SV1-to-SV2 translator (cmd/translatord).
type TranslatorConfig struct {
	Aggregated        bool          `mapstructure:"aggregated"`
	ListenAddr        string        `mapstructure:"listen_addr"`
	WSListenAddr      string        `mapstructure:"ws_listen_addr"`
	UpstreamAddr      string        `mapstructure:"upstream_addr"`
	UpstreamStaticKey string        `mapstructure:"upstream_static_key"` // hex-encoded 32-byte Noise static public key
	EndpointHost      string        `mapstructure:"endpoint_host"`
	EndpointPort      uint16        `mapstructure:"endpoint_port"`
	LockingKeyHex     string        `mapstructure:"locking_key"` // hex-encoded 33-byte compressed pubkey
	MinExtranonceSize int           `mapstructure:"min_extranonce_size"`
	Extranonce2Size   int           `mapstructure:"extranonce2_size"`
	QuoteTTL          time.Duration `mapstructure:"quote_ttl"`
}

// MintConfig configures both sides of the pool<->mint quote protocol:
// mintd's HTTP listen address and poold's client settings for reaching it.
type MintConfig struct {
	APIBind       string        `mapstructure:"api_bind"`       // mintd's own GET /quotes listen address
	ClientURL     string        `mapstructure:"client_url"`     // poold's mintclient HTTP target
	ClientTimeout time.Duration `mapstructure:"client_timeout"` // poold's mintclient HTTP timeout

	SV2Bind      string `mapstructure:"sv2_bind"`   // mintd's Noise-responder listen address
	SV2Addr      string `mapstructure:"sv2_addr"`   // poold's target for the mint-quote SV2 connection
	StaticKeyHex string `mapstructure:"static_key"` // mintd's Noise static private key
	RemoteKeyHex string `mapstructure:"remote_key"` // mint's Noise static public key, as pinned by poold
}

// VardiffConfig holds the shared variable-difficulty tunables both the
// pool and the translator apply to their own channels/downstreams.
// SharesPerMinute and MinIndividualHashrate get defaults here and must
// be positive (see Validate); MinIndividualHashrate is configured on its
// own and is never derived from pool.minimum_share_difficulty_bits.
type VardiffConfig struct {
	SharesPerMinute       float64 `mapstructure:"shares_per_minute"`
	WindowSeconds         float64 `mapstructure:"window_seconds"`
	MaxFactor             float64 `mapstructure:"max_factor"`
	Hysteresis            float64 `mapstructure:"hysteresis"`
	MinIndividualHashrate float64 `mapstructure:"min_individual_hashrate"`
	MaxHashrate           float64 `mapstructure:"max_hashrate"`
}

// RedisConfig defines Redis connection settings, used only by
// internal/policy's BanStore to persist the IP blacklist/whitelist
// across restarts.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// PolicyConfig mirrors internal/policy.Config's fields for viper
// unmarshaling; ToPolicyConfig converts it to the type policy.NewPolicyServer
// actually takes.
type PolicyConfig struct {
	BanningEnabled   bool          `mapstructure:"banning_enabled"`
	BanTimeout       time.Duration `mapstructure:"ban_timeout"`
	InvalidPercent   float32       `mapstructure:"invalid_percent"`
	CheckThreshold   int32         `mapstructure:"check_threshold"`
	MalformedLimit   int32         `mapstructure:"malformed_limit"`
	IPSetName        string        `mapstructure:"ipset_name"`
	RateLimitEnabled bool          `mapstructure:"rate_limit_enabled"`
	ConnectionLimit  int32         `mapstructure:"connection_limit"`
	ConnectionGrace  time.Duration `mapstructure:"connection_grace"`
	LimitJump        int32         `mapstructure:"limit_jump"`
	ScoreEnabled     bool          `mapstructure:"score_enabled"`
	MaxScore         int32         `mapstructure:"max_score"`
	ScoreResetTime   time.Duration `mapstructure:"score_reset_time"`
	ScoreTempBanTime time.Duration `mapstructure:"score_temp_ban_time"`
	CostInvalidShare int32         `mapstructure:"cost_invalid_share"`
	CostMalformed    int32         `mapstructure:"cost_malformed"`
	CostConnection   int32         `mapstructure:"cost_connection"`
	CostAuth         int32         `mapstructure:"cost_auth"`
	ResetInterval    time.Duration `mapstructure:"reset_interval"`
	RefreshInterval  time.Duration `mapstructure:"refresh_interval"`
}

// ToPolicyConfig converts the loaded section into a policy.Config. The
// two structs carry identical fields by design; this exists because
// internal/policy must not import internal/config (policy is used by
// both poold and translatord before either reads the rest of Config).
func (c PolicyConfig) ToPolicyConfig() policy.Config {
	return policy.Config{
		BanningEnabled:   c.BanningEnabled,
		BanTimeout:       c.BanTimeout,
		InvalidPercent:   c.InvalidPercent,
		CheckThreshold:   c.CheckThreshold,
		MalformedLimit:   c.MalformedLimit,
		IPSetName:        c.IPSetName,
		RateLimitEnabled: c.RateLimitEnabled,
		ConnectionLimit:  c.ConnectionLimit,
		ConnectionGrace:  c.ConnectionGrace,
		LimitJump:        c.LimitJump,
		ScoreEnabled:     c.ScoreEnabled,
		MaxScore:         c.MaxScore,
		ScoreResetTime:   c.ScoreResetTime,
		ScoreTempBanTime: c.ScoreTempBanTime,
		CostInvalidShare: c.CostInvalidShare,
		CostMalformed:    c.CostMalformed,
		CostConnection:   c.CostConnection,
		CostAuth:         c.CostAuth,
		ResetInterval:    c.ResetInterval,
		RefreshInterval:  c.RefreshInterval,
	}
}

// NewRelicConfig defines New Relic APM settings.
type NewRelicConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	AppName    string `mapstructure:"app_name"`
	LicenseKey string `mapstructure:"license_key"`
}

// ProfilingConfig defines pprof debug server settings.
type ProfilingConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Bind    string `mapstructure:"bind"`
}

// LogConfig defines logging settings
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// Load reads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/hashpool")
	}

	v.SetEnvPrefix("HASHPOOL")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("pool.bind", "0.0.0.0:34254")
	v.SetDefault("pool.minimum_share_difficulty_bits", 8)
	v.SetDefault("pool.clock_skew_seconds", 600)
	v.SetDefault("pool.extranonce_prefix_size", 4)

	v.SetDefault("translator.listen_addr", "0.0.0.0:3333")
	v.SetDefault("translator.aggregated", true)
	v.SetDefault("translator.endpoint_host", "0.0.0.0")
	v.SetDefault("translator.endpoint_port", 34254)
	v.SetDefault("translator.min_extranonce_size", 8)
	v.SetDefault("translator.extranonce2_size", 4)
	v.SetDefault("translator.quote_ttl", "10m")

	v.SetDefault("mint.api_bind", "0.0.0.0:4000")
	v.SetDefault("mint.client_timeout", "5s")
	v.SetDefault("mint.sv2_bind", "0.0.0.0:4001")

	v.SetDefault("vardiff.shares_per_minute", 10.0)
	v.SetDefault("vardiff.window_seconds", 60.0)
	v.SetDefault("vardiff.max_factor", 4.0)
	v.SetDefault("vardiff.hysteresis", 0.1)
	v.SetDefault("vardiff.min_individual_hashrate", 1e9)

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("policy.banning_enabled", true)
	v.SetDefault("policy.ban_timeout", "30m")
	v.SetDefault("policy.invalid_percent", 50.0)
	v.SetDefault("policy.check_threshold", 100)
	v.SetDefault("policy.malformed_limit", 5)
	v.SetDefault("policy.rate_limit_enabled", true)
	v.SetDefault("policy.connection_limit", 10)
	v.SetDefault("policy.connection_grace", "5m")
	v.SetDefault("policy.limit_jump", 5)
	v.SetDefault("policy.score_enabled", true)
	v.SetDefault("policy.max_score", 100)
	v.SetDefault("policy.score_reset_time", "1m")
	v.SetDefault("policy.score_temp_ban_time", "5m")
	v.SetDefault("policy.cost_invalid_share", 10)
	v.SetDefault("policy.cost_malformed", 25)
	v.SetDefault("policy.cost_connection", 1)
	v.SetDefault("policy.cost_auth", 2)
	v.SetDefault("policy.reset_interval", "1h")
	v.SetDefault("policy.refresh_interval", "5m")

	v.SetDefault("newrelic.enabled", false)
	v.SetDefault("newrelic.app_name", "hashpool")

	v.SetDefault("profiling.enabled", false)
	v.SetDefault("profiling.bind", "127.0.0.1:6060")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Validate checks configuration for errors common to every binary.
// Per-binary required fields (e.g. mint.remote_key for poold) are checked by the
// binary itself once it knows which sections it actually uses.
func (c *Config) Validate() error {
	if c.Vardiff.SharesPerMinute <= 0 {
		return fmt.Errorf("vardiff.shares_per_minute must be positive")
	}
	if c.Vardiff.MinIndividualHashrate <= 0 {
		return fmt.Errorf("vardiff.min_individual_hashrate must be positive")
	}
	if c.Translator.MinExtranonceSize <= 4 {
		return fmt.Errorf("translator.min_extranonce_size must exceed the 4-byte local suffix")
	}
	return nil
}
