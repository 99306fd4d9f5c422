// Package config loads creaturecore settings from defaults, an optional TOML
// file and CREATURECORE_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"creaturecore/internal/blob"
	"creaturecore/internal/core"
	"creaturecore/internal/infra/persistence/sqlite"
	"creaturecore/pkg/domain"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "CREATURECORE_"

// Config is the full runtime configuration.
type Config struct {
	Storage  StorageConfig     `toml:"storage" envPrefix:"STORAGE_"`
	Registry RegistryConfig    `toml:"registry" envPrefix:"REGISTRY_"`
	Log      LogConfig         `toml:"log" envPrefix:"LOG_"`
	Events   EventsConfig      `toml:"events" envPrefix:"EVENTS_"`
	Archive  ArchiveConfig     `toml:"archive" envPrefix:"ARCHIVE_"`
	Metrics  MetricsConfig     `toml:"metrics" envPrefix:"METRICS_"`
	Beacon   BeaconConfig      `toml:"beacon" envPrefix:"BEACON_"`
	Genesis  map[string]uint64 `toml:"genesis" env:"GENESIS"`
}

// StorageConfig selects the registry store.
type StorageConfig struct {
	Driver      string `toml:"driver" env:"DRIVER"`
	SQLitePath  string `toml:"sqlite_path" env:"SQLITE_PATH"`
	PostgresDSN string `toml:"postgres_dsn" env:"POSTGRES_DSN"`
}

// RegistryConfig tunes registry transitions.
type RegistryConfig struct {
	Reserve uint64 `toml:"reserve" env:"RESERVE"`
}

// LogConfig configures the console logger.
type LogConfig struct {
	Level string `toml:"level" env:"LEVEL"`
}

// EventsConfig configures the compressed JSONL event log. An empty Dir
// disables it.
type EventsConfig struct {
	Dir    string `toml:"dir" env:"DIR"`
	Prefix string `toml:"prefix" env:"PREFIX"`
}

// ArchiveConfig configures snapshot archives.
type ArchiveConfig struct {
	Driver string   `toml:"driver" env:"DRIVER"`
	FSRoot string   `toml:"fs_root" env:"FS_ROOT"`
	Prefix string   `toml:"prefix" env:"PREFIX"`
	S3     S3Config `toml:"s3" envPrefix:"S3_"`
}

// S3Config mirrors the S3 blob driver settings.
type S3Config struct {
	Bucket          string `toml:"bucket" env:"BUCKET"`
	Region          string `toml:"region" env:"REGION"`
	Endpoint        string `toml:"endpoint" env:"ENDPOINT"`
	AccessKeyID     string `toml:"access_key_id" env:"ACCESS_KEY_ID"`
	SecretAccessKey string `toml:"secret_access_key" env:"SECRET_ACCESS_KEY"`
	PathStyle       bool   `toml:"path_style" env:"PATH_STYLE"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `toml:"addr" env:"ADDR"`
}

// BeaconConfig selects the randomness source. A non-empty Seed makes the
// beacon deterministic.
type BeaconConfig struct {
	Seed string `toml:"seed" env:"SEED"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Storage:  StorageConfig{Driver: string(core.StorageMemory), SQLitePath: sqlite.DefaultPath},
		Registry: RegistryConfig{Reserve: uint64(core.DefaultReserve)},
		Log:      LogConfig{Level: "info"},
		Events:   EventsConfig{Prefix: "events"},
		Archive:  ArchiveConfig{Driver: string(blob.DriverFilesystem), Prefix: "snapshots/"},
	}
}

// Load applies path (skipped when empty) and then the environment on top of
// the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFromEnv is Load with the file path taken from CREATURECORE_CONFIG.
func LoadFromEnv() (Config, error) {
	return Load(os.Getenv(EnvPrefix + "CONFIG"))
}

func (c *Config) normalize() {
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	c.Archive.Driver = strings.ToLower(strings.TrimSpace(c.Archive.Driver))
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
}

// Validate rejects unknown drivers and incomplete driver settings.
func (c Config) Validate() error {
	var errs []error
	switch core.StorageDriver(c.Storage.Driver) {
	case "", core.StorageMemory, core.StorageSQLite:
	case core.StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn required for postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	switch blob.Driver(c.Archive.Driver) {
	case "", blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if c.Archive.S3.Bucket == "" {
			errs = append(errs, errors.New("archive.s3.bucket required for s3 driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown archive driver %q", c.Archive.Driver))
	}
	return errors.Join(errs...)
}

// StorageOptions maps the storage section onto core.StorageOptions.
func (c Config) StorageOptions() core.StorageOptions {
	return core.StorageOptions{
		Driver:      core.StorageDriver(c.Storage.Driver),
		SQLitePath:  c.Storage.SQLitePath,
		PostgresDSN: c.Storage.PostgresDSN,
	}
}

// BlobConfig maps the archive section onto blob.Config.
func (c Config) BlobConfig() blob.Config {
	return blob.Config{
		Driver: blob.Driver(c.Archive.Driver),
		FSRoot: c.Archive.FSRoot,
		S3: blob.S3Config{
			Bucket:          c.Archive.S3.Bucket,
			Region:          c.Archive.S3.Region,
			Endpoint:        c.Archive.S3.Endpoint,
			AccessKeyID:     c.Archive.S3.AccessKeyID,
			SecretAccessKey: c.Archive.S3.SecretAccessKey,
			PathStyle:       c.Archive.S3.PathStyle,
		},
	}
}

// Reserve returns the per-creature stake.
func (c Config) Reserve() domain.Balance { return domain.Balance(c.Registry.Reserve) }

// GenesisBalances returns the genesis free balances keyed by account.
func (c Config) GenesisBalances() map[domain.AccountID]domain.Balance {
	out := make(map[domain.AccountID]domain.Balance, len(c.Genesis))
	for account, amount := range c.Genesis {
		out[domain.AccountID(account)] = domain.Balance(amount)
	}
	return out
}

// GenesisAccounts lists genesis accounts sorted by name.
func (c Config) GenesisAccounts() []string {
	accounts := make([]string, 0, len(c.Genesis))
	for account := range c.Genesis {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)
	return accounts
}
