// Package config loads and validates the application configuration.
package config

import (
	"fmt"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/danamir/banksync/internal/errs"
	"github.com/danamir/banksync/internal/source"
	"github.com/danamir/banksync/internal/spendwatch"
)

// Target maps fetched accounts onto one ledger account.
type Target struct {
	// AccountID is the ledger account to import into. Empty means an
	// account is created per fetched account number.
	AccountID string `mapstructure:"accountId"`

	// Reconcile enables a balance adjustment after importing into this
	// target.
	Reconcile bool `mapstructure:"reconcile"`

	// Accounts lists the fetched account numbers this target covers.
	// The single value "all" matches every account.
	Accounts []string `mapstructure:"accounts"`
}

// Source is one configured financial source.
type Source struct {
	Credentials source.Credentials `mapstructure:"credentials"`

	// StartDate bounds the fetch, formatted YYYY-MM-DD. Optional.
	StartDate string `mapstructure:"startDate"`

	Targets []Target `mapstructure:"targets"`
}

// Resilience tunes retry and timeout behavior for source fetches.
type Resilience struct {
	MaxRetryAttempts int           `mapstructure:"maxRetryAttempts"`
	InitialBackoff   time.Duration `mapstructure:"initialBackoff"`
	FetchTimeout     time.Duration `mapstructure:"fetchTimeout"`
}

// Ledger locates the transaction store.
type Ledger struct {
	Path string `mapstructure:"path"`
}

// Audit locates the rolling run-history file.
type Audit struct {
	Path       string `mapstructure:"path"`
	MaxEntries int    `mapstructure:"maxEntries"`
}

// Bridge locates the scraper sidecar.
type Bridge struct {
	URL string `mapstructure:"url"`
}

// Telegram configures the Telegram notification channel.
type Telegram struct {
	BotToken string `mapstructure:"botToken"`
	ChatID   string `mapstructure:"chatId"`
}

// Webhook configures a generic HTTP notification channel.
type Webhook struct {
	URL string `mapstructure:"url"`
}

// Notifications configures outbound channels. Absent channels are disabled.
type Notifications struct {
	Enabled  bool      `mapstructure:"enabled"`
	Telegram *Telegram `mapstructure:"telegram"`
	Webhook  *Webhook  `mapstructure:"webhook"`
}

// Config is the full application configuration.
type Config struct {
	Sources       map[string]Source `mapstructure:"sources"`
	Resilience    Resilience        `mapstructure:"resilience"`
	Ledger        Ledger            `mapstructure:"ledger"`
	Audit         Audit             `mapstructure:"audit"`
	Bridge        Bridge            `mapstructure:"bridge"`
	Notifications Notifications     `mapstructure:"notifications"`
	SpendingWatch []spendwatch.Rule `mapstructure:"spendingWatch"`
}

// Load reads the configuration file at path, applies defaults and validates
// the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetDefault("resilience.maxRetryAttempts", 3)
	v.SetDefault("resilience.initialBackoff", "1s")
	v.SetDefault("resilience.fetchTimeout", "10m")
	v.SetDefault("ledger.path", "data/ledger.db")
	v.SetDefault("audit.path", "data/audit-log.json")
	v.SetDefault("audit.maxEntries", 90)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	hooks := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		decimalHookFunc(),
	))
	if err := v.Unmarshal(&cfg, hooks); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// viper lowercases every key it reads, mangling camelCase credential
	// fields like userCode and nationalID on the way in.
	for name, src := range cfg.Sources {
		src.Credentials = source.CanonicalizeCredentials(name, src.Credentials)
		cfg.Sources[name] = src
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// decimalHookFunc decodes numeric and string config values into
// decimal.Decimal fields.
func decimalHookFunc() mapstructure.DecodeHookFunc {
	decimalType := reflect.TypeOf(decimal.Decimal{})
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != decimalType {
			return data, nil
		}
		switch val := data.(type) {
		case string:
			return decimal.NewFromString(val)
		case float64:
			return decimal.NewFromFloat(val), nil
		case int:
			return decimal.NewFromInt(int64(val)), nil
		case int64:
			return decimal.NewFromInt(val), nil
		default:
			return data, nil
		}
	}
}

// Validate checks the configuration for problems a run would hit later.
func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return &errs.ConfigError{Message: "at least one source is required"}
	}
	for name, src := range c.Sources {
		if err := source.ValidateCredentials(name, src.Credentials); err != nil {
			return err
		}
		if src.StartDate != "" {
			if _, err := time.Parse("2006-01-02", src.StartDate); err != nil {
				return &errs.ConfigError{
					Message: fmt.Sprintf("%s.startDate: invalid date %q, expected YYYY-MM-DD", name, src.StartDate),
				}
			}
		}
	}
	if c.Resilience.MaxRetryAttempts < 1 {
		return &errs.ConfigError{Message: "resilience.maxRetryAttempts must be at least 1"}
	}
	if c.Resilience.InitialBackoff <= 0 {
		return &errs.ConfigError{Message: "resilience.initialBackoff must be positive"}
	}
	if c.Resilience.FetchTimeout <= 0 {
		return &errs.ConfigError{Message: "resilience.fetchTimeout must be positive"}
	}
	for i, rule := range c.SpendingWatch {
		if rule.NumOfDayToCount < 1 {
			return &errs.ConfigError{
				Message: fmt.Sprintf("spendingWatch[%d].numOfDayToCount must be at least 1", i),
			}
		}
	}
	return nil
}

// TargetFor resolves the target covering the given fetched account number.
// Explicit account lists win over "all"; nil means the account is not mapped
// and gets its own ledger account.
func (s Source) TargetFor(accountNumber string) *Target {
	var catchAll *Target
	for i := range s.Targets {
		t := &s.Targets[i]
		for _, a := range t.Accounts {
			if a == accountNumber {
				return t
			}
			if a == "all" && catchAll == nil {
				catchAll = t
			}
		}
	}
	return catchAll
}
