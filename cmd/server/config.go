package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/TomCreeper/Shopkeepers/internal/app"
)

const envPrefix = "SHOPKEEPERS"

type serverConfig struct {
	Addr  string `mapstructure:"addr"`
	Debug bool   `mapstructure:"debug"`
	// AdminHTTP mounts the loopback-only admin endpoints.
	AdminHTTP bool `mapstructure:"admin_http"`

	Station app.Config `mapstructure:",squash"`
}

// loadConfig merges, in increasing priority: defaults, the config file,
// SHOPKEEPERS_* environment variables and flags.
func loadConfig(path string, flags *pflag.FlagSet) (serverConfig, error) {
	v := viper.New()
	v.SetDefault("addr", ":8080")
	v.SetDefault("debug", false)
	v.SetDefault("admin_http", true)
	v.SetDefault("data_dir", "./data")
	v.SetDefault("settings", "")
	v.SetDefault("disable_index", false)
	v.SetDefault("journal", true)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return serverConfig{}, fmt.Errorf("read config: %w", err)
			}
		}
	}
	for key, flag := range map[string]string{
		"addr":          "addr",
		"debug":         "debug",
		"data_dir":      "data",
		"settings":      "settings",
		"disable_index": "disable-index",
	} {
		if f := flags.Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return serverConfig{}, err
			}
		}
	}

	var cfg serverConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return serverConfig{}, fmt.Errorf("decode config: %w", err)
	}
	if strings.TrimSpace(cfg.Station.DataDir) == "" {
		return serverConfig{}, errors.New("data_dir must not be empty")
	}
	seen := map[string]bool{}
	for _, w := range cfg.Station.Worlds {
		if strings.TrimSpace(w.Name) == "" {
			return serverConfig{}, errors.New("world name must not be empty")
		}
		if seen[w.Name] {
			return serverConfig{}, fmt.Errorf("duplicate world %q", w.Name)
		}
		seen[w.Name] = true
	}
	return cfg, nil
}
