// Package config defines ipfixcored's on-disk configuration and the
// command-line flags that override it, following the nested
// yaml-tagged-struct convention NetWeaver's telemetry agent uses.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration document, loaded from YAML and then
// overridden by any flags the operator passed on the command line.
type Config struct {
	Listener struct {
		Address string `yaml:"address"`
		Port    int    `yaml:"port"`
		Workers int    `yaml:"workers"`
	} `yaml:"listener"`

	Sink struct {
		Kind     string `yaml:"kind"` // "memory" or "postgres"
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Database string `yaml:"database"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		PoolSize int    `yaml:"pool_size"`
		Batch    int    `yaml:"batch_size"`
	} `yaml:"sink"`

	Sampling struct {
		OverwriteRate uint64 `yaml:"overwrite_rate"`
		DefaultRate   uint64 `yaml:"default_rate"`
	} `yaml:"sampling"`

	Resolver struct {
		Enabled bool   `yaml:"enabled"`
		Server  string `yaml:"server"`
	} `yaml:"resolver"`

	Monitoring struct {
		PrometheusAddr string `yaml:"prometheus_addr"`
		Enabled        bool   `yaml:"enabled"`
	} `yaml:"monitoring"`

	Monitor struct {
		TUI bool `yaml:"tui"`
	} `yaml:"monitor"`

	LogLevel string `yaml:"log_level"`
}

// Default returns a Config with production-sane defaults, matching what
// an operator gets from running ipfixcored with no flags at all.
func Default() Config {
	var c Config
	c.Listener.Port = 4739
	c.Listener.Workers = 8
	c.Sink.Kind = "memory"
	c.Sink.PoolSize = 8
	c.Sink.Batch = 500
	c.Sampling.DefaultRate = 1
	c.Monitoring.PrometheusAddr = ":9714"
	c.Monitoring.Enabled = true
	c.LogLevel = "info"
	return c
}

// Load reads path as YAML over top of Default(). An empty path returns
// the defaults unchanged.
func Load(path string) (Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return c, nil
}

// BindFlags registers the flags that override c's fields, following
// pflag's pointer-binding convention.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Listener.Address, "listen-address", c.Listener.Address, "listen address (not passed to the UDP listener, which binds all interfaces on --listen-port)")
	fs.IntVar(&c.Listener.Port, "listen-port", c.Listener.Port, "UDP port to receive IPFIX messages on")
	fs.IntVar(&c.Listener.Workers, "workers", c.Listener.Workers, "number of exporter-sharded worker goroutines")
	fs.StringVar(&c.Sink.Kind, "sink", c.Sink.Kind, "downstream sink: memory or postgres")
	fs.StringVar(&c.Sink.Host, "sink-host", c.Sink.Host, "postgres host")
	fs.IntVar(&c.Sink.Port, "sink-port", c.Sink.Port, "postgres port")
	fs.StringVar(&c.Sink.Database, "sink-database", c.Sink.Database, "postgres database name")
	fs.StringVar(&c.Sink.User, "sink-user", c.Sink.User, "postgres user")
	fs.StringVar(&c.Sink.Password, "sink-password", c.Sink.Password, "postgres password")
	fs.Uint64Var(&c.Sampling.OverwriteRate, "overwrite-sampling-rate", c.Sampling.OverwriteRate, "overwrite sampling rate (stored in the config; not applied to exporter sampling rates)")
	fs.BoolVar(&c.Resolver.Enabled, "resolve-exporters", c.Resolver.Enabled, "resolve exporter addresses to hostnames for display")
	fs.StringVar(&c.Resolver.Server, "resolver-server", c.Resolver.Server, "DNS server (host:port) used for exporter hostname resolution")
	fs.StringVar(&c.Monitoring.PrometheusAddr, "metrics-addr", c.Monitoring.PrometheusAddr, "address to serve /metrics and /healthz on")
	fs.BoolVar(&c.Monitor.TUI, "tui", c.Monitor.TUI, "run the interactive terminal monitor instead of the redrawing status view")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "zap log level: debug, info, warn, error")
}
