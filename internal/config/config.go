// Package config loads per-command settings from flags, FLAIR_* environment
// variables and an optional config file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "FLAIR"

// Common holds settings every command shares.
type Common struct {
	Store       string
	LogLevel    string
	MetricsAddr string
}

// Retry configures RPC retries.
type Retry struct {
	MaxRetries int
	Backoff    time.Duration
}

func newViper(cfgFile string, flags *pflag.FlagSet, defaults map[string]interface{}) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("store", "./data/flair.db")
	v.SetDefault("log-level", "info")
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func loadCommon(v *viper.Viper) (Common, error) {
	c := Common{
		Store:       strings.TrimSpace(v.GetString("store")),
		LogLevel:    v.GetString("log-level"),
		MetricsAddr: v.GetString("metrics-addr"),
	}
	if c.Store == "" {
		return Common{}, fmt.Errorf("store is required")
	}
	return c, nil
}

func loadRetry(v *viper.Viper) Retry {
	return Retry{
		MaxRetries: v.GetInt("max-retries"),
		Backoff:    v.GetDuration("retry-backoff"),
	}
}

func requireRPC(v *viper.Viper) (string, error) {
	rpc := strings.TrimSpace(v.GetString("rpc"))
	if rpc == "" {
		return "", fmt.Errorf("rpc is required")
	}
	return rpc, nil
}

func requireAddress(v *viper.Viper, key string) (string, error) {
	value := strings.TrimSpace(v.GetString(key))
	if value == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	if !common.IsHexAddress(value) {
		return "", fmt.Errorf("%s: invalid address %q", key, value)
	}
	return strings.ToLower(value), nil
}

func checkBlockRange(from, to uint64) error {
	if to != 0 && from > to {
		return fmt.Errorf("invalid block range: from %d > to %d", from, to)
	}
	return nil
}
