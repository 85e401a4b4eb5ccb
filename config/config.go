/*
Package config loads server configuration.

Configuration is layered: built-in defaults, then an optional TOML file,
then environment variables (loaded from .env when present). The kind
codes section exists because payment providers disagree on what their
type strings mean; deployments remap them without a rebuild.
*/
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/warp/course-commerce/ledger"
	"github.com/warp/course-commerce/purchase"
)

// Config is the full server configuration.
type Config struct {
	Server ServerConfig `toml:"server"`
	Kinds  KindsConfig  `toml:"kinds"`
}

// ServerConfig holds HTTP and storage settings.
type ServerConfig struct {
	Port int    `toml:"port"`
	DB   string `toml:"db"`
}

// KindsConfig maps payment types to ledger kind codes.
type KindsConfig struct {
	Cash    int `toml:"cash"`
	NonCash int `toml:"non_cash"`
	Other   int `toml:"other"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port: 8080,
			DB:   "commerce.db",
		},
		Kinds: KindsConfig{
			Cash:    int(ledger.KindCashPayment),
			NonCash: int(ledger.KindNonCashPayment),
			Other:   int(ledger.KindOtherPayment),
		},
	}
}

// Load reads a TOML config file over the defaults, then applies
// PORT and DB environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to load config %s: %w", path, err)
		}
	}

	if v := os.Getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Server.Port = p
	}
	if v := os.Getenv("DB"); v != "" {
		cfg.Server.DB = v
	}

	return cfg, nil
}

// KindMap converts the configured codes into the orchestrator's map.
func (k KindsConfig) KindMap() purchase.KindMap {
	return purchase.KindMap{
		Cash:    ledger.KindCode(k.Cash),
		NonCash: ledger.KindCode(k.NonCash),
		Other:   ledger.KindCode(k.Other),
	}
}
