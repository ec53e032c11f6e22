// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-shiftsync.
//
// go-shiftsync is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package config loads shiftsync settings with viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jeremyhahn/go-shiftsync/pkg/common"
	"github.com/jeremyhahn/go-shiftsync/pkg/conflict"
	"github.com/jeremyhahn/go-shiftsync/pkg/persist"
)

// EnvPrefix is the prefix for environment overrides, e.g. SHIFTSYNC_SERVER_PORT.
const EnvPrefix = "SHIFTSYNC"

// Config holds every shiftsync setting.
type Config struct {
	LogLevel  string          `json:"log_level"`
	Conflict  ConflictConfig  `json:"conflict"`
	Clients   ClientsConfig   `json:"clients"`
	Server    ServerConfig    `json:"server"`
	ChangeLog ChangeLogConfig `json:"changelog"`
	Persist   PersistConfig   `json:"persist"`
	Snapshot  SnapshotConfig  `json:"snapshot"`
}

type ConflictConfig struct {
	Strategy conflict.Strategy `json:"strategy"`
}

type ClientsConfig struct {
	Heartbeat     time.Duration `json:"heartbeat"`
	QueueSize     int           `json:"queue_size"`
	SendTimeout   time.Duration `json:"send_timeout"`
	SweepInterval time.Duration `json:"sweep_interval"`
}

type ServerConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	RateLimit      float64  `json:"rate_limit"`
	RateBurst      int      `json:"rate_burst"`
	EnableCORS     bool     `json:"enable_cors"`
	AllowedOrigins []string `json:"allowed_origins"`
	Audit          bool     `json:"audit"`
	TLSCert        string   `json:"tls_cert"`
	TLSKey         string   `json:"tls_key"`
	TLSClientCA    string   `json:"tls_client_ca"`
	// Tokens and ReadTokens map a principal name to its bearer token.
	// Authentication is off when both are empty.
	Tokens     map[string]string `json:"-"`
	ReadTokens map[string]string `json:"-"`
}

type ChangeLogConfig struct {
	File    string `json:"file"`
	MaxSize int64  `json:"max_size"`
}

type PersistConfig struct {
	Driver    string `json:"driver"`
	DSN       string `json:"-"`
	Workers   int    `json:"workers"`
	QueueSize int    `json:"queue_size"`
}

type SnapshotConfig struct {
	Dir       string        `json:"dir"`
	Interval  time.Duration `json:"interval"`
	Bucket    string        `json:"bucket"`
	Prefix    string        `json:"prefix"`
	Region    string        `json:"region"`
	Endpoint  string        `json:"endpoint"`
	AccessKey string        `json:"-"`
	SecretKey string        `json:"-"`
	PathStyle bool          `json:"path_style"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("conflict.strategy", string(conflict.LastWriterWins))
	v.SetDefault("clients.heartbeat", 30*time.Second)
	v.SetDefault("clients.queue-size", 256)
	v.SetDefault("clients.send-timeout", 10*time.Second)
	v.SetDefault("clients.sweep-interval", time.Duration(0))
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate-limit", 100.0)
	v.SetDefault("server.rate-burst", 200)
	v.SetDefault("server.enable-cors", true)
	v.SetDefault("server.allowed-origins", []string{"*"})
	v.SetDefault("server.audit", true)
	v.SetDefault("changelog.file", "")
	v.SetDefault("changelog.max-size", int64(64*1024*1024))
	v.SetDefault("persist.driver", persist.DriverNone)
	v.SetDefault("persist.dsn", "")
	v.SetDefault("persist.workers", 4)
	v.SetDefault("persist.queue-size", 1024)
	v.SetDefault("snapshot.dir", "./snapshots")
	v.SetDefault("snapshot.interval", time.Duration(0))
	v.SetDefault("snapshot.prefix", "shiftsync")
	v.SetDefault("snapshot.path-style", false)
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// InitConfig initializes the configuration using Viper.
// Configuration priority: flags > env vars > config file > defaults.
func InitConfig(cfgFile string) (*viper.Viper, error) {
	v := New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigName(".shiftsync")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// Load extracts and validates the configuration from v.
func Load(v *viper.Viper) (*Config, error) {
	strategy, err := conflict.ParseStrategy(v.GetString("conflict.strategy"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		LogLevel: v.GetString("log.level"),
		Conflict: ConflictConfig{Strategy: strategy},
		Clients: ClientsConfig{
			Heartbeat:     v.GetDuration("clients.heartbeat"),
			QueueSize:     v.GetInt("clients.queue-size"),
			SendTimeout:   v.GetDuration("clients.send-timeout"),
			SweepInterval: v.GetDuration("clients.sweep-interval"),
		},
		Server: ServerConfig{
			Host:           v.GetString("server.host"),
			Port:           v.GetInt("server.port"),
			RateLimit:      v.GetFloat64("server.rate-limit"),
			RateBurst:      v.GetInt("server.rate-burst"),
			EnableCORS:     v.GetBool("server.enable-cors"),
			AllowedOrigins: v.GetStringSlice("server.allowed-origins"),
			Audit:          v.GetBool("server.audit"),
			TLSCert:        v.GetString("server.tls-cert"),
			TLSKey:         v.GetString("server.tls-key"),
			TLSClientCA:    v.GetString("server.tls-client-ca"),
			Tokens:         v.GetStringMapString("server.auth.tokens"),
			ReadTokens:     v.GetStringMapString("server.auth.read-tokens"),
		},
		ChangeLog: ChangeLogConfig{
			File:    v.GetString("changelog.file"),
			MaxSize: v.GetInt64("changelog.max-size"),
		},
		Persist: PersistConfig{
			Driver:    strings.ToLower(v.GetString("persist.driver")),
			DSN:       v.GetString("persist.dsn"),
			Workers:   v.GetInt("persist.workers"),
			QueueSize: v.GetInt("persist.queue-size"),
		},
		Snapshot: SnapshotConfig{
			Dir:       v.GetString("snapshot.dir"),
			Interval:  v.GetDuration("snapshot.interval"),
			Bucket:    v.GetString("snapshot.bucket"),
			Prefix:    v.GetString("snapshot.prefix"),
			Region:    v.GetString("snapshot.region"),
			Endpoint:  v.GetString("snapshot.endpoint"),
			AccessKey: v.GetString("snapshot.access-key"),
			SecretKey: v.GetString("snapshot.secret-key"),
			PathStyle: v.GetBool("snapshot.path-style"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Clients.Heartbeat <= 0 {
		return common.Validation("clients.heartbeat", "must be positive")
	}
	if c.Clients.QueueSize <= 0 {
		return common.Validation("clients.queue-size", "must be positive")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return common.Validation("server.port", fmt.Sprintf("invalid port %d", c.Server.Port))
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		return common.Validation("server.tls-cert", "tls-cert and tls-key must be set together")
	}
	if c.Server.TLSClientCA != "" && c.Server.TLSCert == "" {
		return common.Validation("server.tls-client-ca", "requires tls-cert and tls-key")
	}
	switch c.Persist.Driver {
	case "", persist.DriverNone:
	case persist.DriverPostgres, persist.DriverSQLite:
		if c.Persist.DSN == "" {
			return common.Validation("persist.dsn", "required when persist.driver is "+c.Persist.Driver)
		}
	default:
		return common.Validation("persist.driver", fmt.Sprintf("unsupported driver %q", c.Persist.Driver))
	}
	return nil
}

// AuthEnabled reports whether any bearer token is configured.
func (c *Config) AuthEnabled() bool {
	return len(c.Server.Tokens)+len(c.Server.ReadTokens) > 0
}

// Addr returns the server listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
