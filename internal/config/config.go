package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"vault-liquidator/internal/domain"
	"vault-liquidator/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Chain     ChainConfig     `mapstructure:"chain"`
	Indexer   IndexerConfig   `mapstructure:"indexer"`
	Tokens    TokenConfig     `mapstructure:"tokens"`
	Policy    PolicyConfig    `mapstructure:"policy"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity. Persistence is
// optional; an empty DSN disables it.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SchedulerConfig governs the block-polling cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// ChainConfig covers chain RPC access and the bot's signing identity.
type ChainConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	ChainID        int64         `mapstructure:"chain_id"`
	PrivateKey     string        `mapstructure:"private_key"`
	EngineAddress  string        `mapstructure:"engine_address"`
	OracleAddress  string        `mapstructure:"oracle_address"`
	TokenAddress   string        `mapstructure:"token_address"`
	TokenID        int64         `mapstructure:"token_id"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout"`
}

// IndexerConfig captures vault-registry API connectivity.
type IndexerConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	PageSize       int           `mapstructure:"page_size"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// TokenConfig pins the decimal scales of the pair the engine trades in.
type TokenConfig struct {
	TokenDecimals      int32 `mapstructure:"token_decimals"`
	CollateralDecimals int32 `mapstructure:"collateral_decimals"`
	OracleDecimals     int32 `mapstructure:"oracle_decimals"`
}

// PolicyConfig holds the liquidation policy parameters. Values are strings so
// they parse into exact decimals; a float here could silently shift a
// financial threshold.
type PolicyConfig struct {
	CollateralRatioThresholdPct string `mapstructure:"collateral_ratio_threshold_pct"`
	SettlementRatioPct          string `mapstructure:"settlement_ratio_pct"`
	StepInRatio                 string `mapstructure:"step_in_ratio"`
	PayoutRatio                 string `mapstructure:"payout_ratio"`
	MinimumPayout               string `mapstructure:"minimum_payout"`
}

// AlertingConfig defines notification routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes Telegram delivery parameters.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LIQUIDATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "vault-liquidator")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "10s")
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.advisory_lock_key", int64(0))

	v.SetDefault("chain.request_timeout", "10s")
	v.SetDefault("chain.confirm_timeout", "2m")
	v.SetDefault("chain.token_id", int64(0))

	v.SetDefault("indexer.page_size", 1000)
	v.SetDefault("indexer.request_timeout", "10s")
	v.SetDefault("indexer.user_agent", "vault-liquidator/1.0")

	v.SetDefault("tokens.token_decimals", 12)
	v.SetDefault("tokens.collateral_decimals", 6)
	v.SetDefault("tokens.oracle_decimals", 6)

	v.SetDefault("policy.collateral_ratio_threshold_pct", "200")
	v.SetDefault("policy.settlement_ratio_pct", "300")
	v.SetDefault("policy.step_in_ratio", "1.6")
	v.SetDefault("policy.payout_ratio", "1.125")
	v.SetDefault("policy.minimum_payout", "0")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// BuildPolicy parses the policy section into the exact policy object the
// evaluator and sizer run over.
func (c *Config) BuildPolicy() (domain.Policy, error) {
	threshold, err := decimal.NewFromString(c.Policy.CollateralRatioThresholdPct)
	if err != nil {
		return domain.Policy{}, fmt.Errorf("policy.collateral_ratio_threshold_pct: %w", err)
	}
	settlement, err := decimal.NewFromString(c.Policy.SettlementRatioPct)
	if err != nil {
		return domain.Policy{}, fmt.Errorf("policy.settlement_ratio_pct: %w", err)
	}
	stepIn, err := decimal.NewFromString(c.Policy.StepInRatio)
	if err != nil {
		return domain.Policy{}, fmt.Errorf("policy.step_in_ratio: %w", err)
	}
	payout, err := decimal.NewFromString(c.Policy.PayoutRatio)
	if err != nil {
		return domain.Policy{}, fmt.Errorf("policy.payout_ratio: %w", err)
	}
	minimum, err := decimal.NewFromString(c.Policy.MinimumPayout)
	if err != nil {
		return domain.Policy{}, fmt.Errorf("policy.minimum_payout: %w", err)
	}

	return domain.NewPolicy(threshold, settlement, stepIn, payout, minimum, c.Tokens.TokenDecimals, c.Tokens.CollateralDecimals)
}

// Validate performs basic sanity checks on the configuration values. A
// misconfigured financial parameter must stop the process before the loop
// starts.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Tokens.TokenDecimals < 0 || c.Tokens.CollateralDecimals < 0 || c.Tokens.OracleDecimals < 0 {
		return fmt.Errorf("tokens decimals cannot be negative")
	}
	if _, err := c.BuildPolicy(); err != nil {
		return err
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
