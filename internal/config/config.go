// Package config loads settings from defaults, an optional YAML file, .env
// files and CICD_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "CICD"

type Config struct {
	Docker DockerConfig `mapstructure:"docker" yaml:"docker"`
	Server ServerConfig `mapstructure:"server" yaml:"server"`
	Log    LogConfig    `mapstructure:"log" yaml:"log"`
}

type DockerConfig struct {
	Host           string        `mapstructure:"host" yaml:"host"`
	APIVersion     string        `mapstructure:"api_version" yaml:"api_version"`
	PullPolicy     string        `mapstructure:"pull_policy" yaml:"pull_policy"`
	StopTimeout    time.Duration `mapstructure:"stop_timeout" yaml:"stop_timeout"`
	ConnectRetries uint64        `mapstructure:"connect_retries" yaml:"connect_retries"`
}

type ServerConfig struct {
	Addr              string `mapstructure:"addr" yaml:"addr"`
	PreviewDomain     string `mapstructure:"preview_domain" yaml:"preview_domain"`
	CleanupOnShutdown bool   `mapstructure:"cleanup_on_shutdown" yaml:"cleanup_on_shutdown"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("docker.host", "")
	v.SetDefault("docker.api_version", "")
	v.SetDefault("docker.pull_policy", "missing")
	v.SetDefault("docker.stop_timeout", 10*time.Second)
	v.SetDefault("docker.connect_retries", 3)
	v.SetDefault("server.addr", ":3000")
	v.SetDefault("server.preview_domain", "")
	v.SetDefault("server.cleanup_on_shutdown", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// LoadDotEnv loads the given .env files into the process environment.
// Missing files are skipped; variables already set are not overridden.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads the configuration. path may be empty to skip the config file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values viper cannot type-check.
func (c *Config) Validate() error {
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log.format %q (want text or json)", c.Log.Format)
	}
	if c.Docker.StopTimeout < 0 {
		return fmt.Errorf("docker.stop_timeout must not be negative")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	return nil
}
