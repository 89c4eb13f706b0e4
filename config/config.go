// Package config loads goapn's process-wide settings: storage paths,
// the optional Redis address for cross-process suspend broadcast, and
// the optional business registry file. It follows the three-layer
// priority gomind's core/config.go uses — defaults, then environment
// variables, then functional options — scaled down to the handful of
// settings this library actually has.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ltyfantasy/goapn/core"
)

// Config is goapn's process-wide configuration.
type Config struct {
	CacheDBPath   string `yaml:"cacheDbPath"`
	PromiseDBPath string `yaml:"promiseDbPath"`
	RedisAddr     string `yaml:"redisAddr"`
	LogLevel      string `yaml:"logLevel"`
	DebugMode     bool   `yaml:"debugMode"`
}

// Option is a functional option applied after defaults and environment
// variables, mirroring gomind's Config.Option precedence.
type Option func(*Config)

func WithCacheDBPath(path string) Option   { return func(c *Config) { c.CacheDBPath = path } }
func WithPromiseDBPath(path string) Option { return func(c *Config) { c.PromiseDBPath = path } }
func WithRedisAddr(addr string) Option     { return func(c *Config) { c.RedisAddr = addr } }
func WithDebugMode(debug bool) Option      { return func(c *Config) { c.DebugMode = debug } }

// Default returns the library's baseline configuration.
func Default() *Config {
	return &Config{
		CacheDBPath:   core.DefaultCacheDBPath,
		PromiseDBPath: core.DefaultPromiseDBPath,
		LogLevel:      "info",
	}
}

// loadEnv overlays environment variables onto cfg, for each var only
// when it is actually set.
func (c *Config) loadEnv() {
	if v := os.Getenv(core.EnvCacheDBPath); v != "" {
		c.CacheDBPath = v
	}
	if v := os.Getenv(core.EnvPromiseDBPath); v != "" {
		c.PromiseDBPath = v
	}
	if v := os.Getenv(core.EnvRedisAddr); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv(core.EnvLogLevel); v != "" {
		c.LogLevel = v
	}
}

// Load builds a Config from defaults, then environment variables, then
// opts, in that order — matching gomind's NewConfig precedence.
func Load(opts ...Option) *Config {
	cfg := Default()
	cfg.loadEnv()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// BusinessSpec is one entry of a YAML business-registry file: the
// subset of registry.Business that is plain data (URLs, timeouts) —
// Interceptor and Parser are Go values supplied by the host application
// and are never expressed in the file.
type BusinessSpec struct {
	Identifier      string `yaml:"identifier"`
	BaseURL         string `yaml:"baseUrl"`
	MockBaseURL     string `yaml:"mockBaseUrl"`
	ConnectTimeoutMs int   `yaml:"connectTimeoutMs"`
	SendTimeoutMs    int   `yaml:"sendTimeoutMs"`
	RecvTimeoutMs    int   `yaml:"recvTimeoutMs"`
	RetryIntervalMs  int   `yaml:"retryIntervalMs"`
}

// BusinessRegistryFile is the root of an optional YAML file listing
// business lines declaratively instead of in Go code.
type BusinessRegistryFile struct {
	Businesses []BusinessSpec `yaml:"businesses"`
}

// LoadBusinessRegistryFile reads and parses path.
func LoadBusinessRegistryFile(path string) (*BusinessRegistryFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read business registry file %s: %w", path, err)
	}
	var f BusinessRegistryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: parse business registry file %s: %w", path, err)
	}
	return &f, nil
}
