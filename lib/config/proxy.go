// Copyright 2024 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pingcap/shardproxy/lib/util/errors"
)

var (
	ErrInvalidConfigValue = errors.New("invalid config value")
)

const (
	DefaultAuthTimeout   = 15 * time.Second
	DefaultIdleTimeout   = 30 * time.Minute
	DefaultCancelWorkers = 8
	DefaultCharset       = "utf8mb4"
)

type Config struct {
	Proxy     ProxyServer `yaml:"proxy,omitempty" toml:"proxy,omitempty" json:"proxy,omitempty"`
	API       API         `yaml:"api,omitempty" toml:"api,omitempty" json:"api,omitempty"`
	Log       Log         `yaml:"log,omitempty" toml:"log,omitempty" json:"log,omitempty"`
	System    System      `yaml:"system,omitempty" toml:"system,omitempty" json:"system,omitempty"`
	Schemas   []Schema    `yaml:"schema,omitempty" toml:"schema,omitempty" json:"schema,omitempty"`
	DataNodes []DataNode  `yaml:"data-node,omitempty" toml:"data-node,omitempty" json:"data-node,omitempty"`
	Users     []User      `yaml:"user,omitempty" toml:"user,omitempty" json:"user,omitempty"`
}

type ProxyServer struct {
	Addr           string `yaml:"addr,omitempty" toml:"addr,omitempty" json:"addr,omitempty"`
	MaxConnections uint64 `yaml:"max-connections,omitempty" toml:"max-connections,omitempty" json:"max-connections,omitempty"`
}

type API struct {
	Addr string `yaml:"addr,omitempty" toml:"addr,omitempty" json:"addr,omitempty"`
}

type Log struct {
	Encoder string  `yaml:"encoder,omitempty" toml:"encoder,omitempty" json:"encoder,omitempty"`
	Level   string  `yaml:"level,omitempty" toml:"level,omitempty" json:"level,omitempty"`
	LogFile LogFile `yaml:"log-file,omitempty" toml:"log-file,omitempty" json:"log-file,omitempty"`
}

type LogFile struct {
	Filename   string `yaml:"filename,omitempty" toml:"filename,omitempty" json:"filename,omitempty"`
	MaxSize    int    `yaml:"max-size,omitempty" toml:"max-size,omitempty" json:"max-size,omitempty"`
	MaxDays    int    `yaml:"max-days,omitempty" toml:"max-days,omitempty" json:"max-days,omitempty"`
	MaxBackups int    `yaml:"max-backups,omitempty" toml:"max-backups,omitempty" json:"max-backups,omitempty"`
}

// System is passed to the router with every statement.
type System struct {
	Charset string `yaml:"charset,omitempty" toml:"charset,omitempty" json:"charset,omitempty"`
	// AuthTimeout closes connections that don't finish authentication in time.
	AuthTimeout time.Duration `yaml:"auth-timeout,omitempty" toml:"auth-timeout,omitempty" json:"auth-timeout,omitempty"`
	IdleTimeout time.Duration `yaml:"idle-timeout,omitempty" toml:"idle-timeout,omitempty" json:"idle-timeout,omitempty"`
	// CancelWorkers is the size of the goroutine pool running KILL QUERY requests.
	CancelWorkers int         `yaml:"cancel-workers,omitempty" toml:"cancel-workers,omitempty" json:"cancel-workers,omitempty"`
	FlowControl   FlowControl `yaml:"flow-control,omitempty" toml:"flow-control,omitempty" json:"flow-control,omitempty"`
}

// FlowControl pauses reading from the backends when the pending bytes of a connection exceed HighWatermark
// and resumes when they drop below LowWatermark.
type FlowControl struct {
	Enabled       bool  `yaml:"enabled,omitempty" toml:"enabled,omitempty" json:"enabled,omitempty"`
	HighWatermark int64 `yaml:"high-watermark,omitempty" toml:"high-watermark,omitempty" json:"high-watermark,omitempty"`
	LowWatermark  int64 `yaml:"low-watermark,omitempty" toml:"low-watermark,omitempty" json:"low-watermark,omitempty"`
}

func NewConfig() *Config {
	var cfg Config

	cfg.Proxy.Addr = "0.0.0.0:8066"
	cfg.API.Addr = "0.0.0.0:9066"

	cfg.Log.Level = "info"
	cfg.Log.Encoder = "console"
	cfg.Log.LogFile.MaxSize = 300
	cfg.Log.LogFile.MaxDays = 3
	cfg.Log.LogFile.MaxBackups = 3

	cfg.System.Charset = DefaultCharset
	cfg.System.AuthTimeout = DefaultAuthTimeout
	cfg.System.IdleTimeout = DefaultIdleTimeout
	cfg.System.CancelWorkers = DefaultCancelWorkers
	cfg.System.FlowControl.HighWatermark = 64 * 1024 * 1024
	cfg.System.FlowControl.LowWatermark = 32 * 1024 * 1024

	return &cfg
}

// NewConfigFromFile overwrites the defaults with the file and checks the result.
func NewConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return NewConfigFromBytes(data)
}

func NewConfigFromBytes(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) Clone() *Config {
	newCfg := *cfg
	newCfg.Schemas = make([]Schema, 0, len(cfg.Schemas))
	for _, s := range cfg.Schemas {
		newCfg.Schemas = append(newCfg.Schemas, s.clone())
	}
	newCfg.DataNodes = append([]DataNode(nil), cfg.DataNodes...)
	newCfg.Users = make([]User, 0, len(cfg.Users))
	for _, u := range cfg.Users {
		u.Schemas = append([]string(nil), u.Schemas...)
		newCfg.Users = append(newCfg.Users, u)
	}
	return &newCfg
}

func (cfg *Config) Check() error {
	if cfg.System.Charset == "" {
		cfg.System.Charset = DefaultCharset
	}
	if cfg.System.AuthTimeout <= 0 {
		cfg.System.AuthTimeout = DefaultAuthTimeout
	}
	if cfg.System.IdleTimeout <= 0 {
		cfg.System.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.System.CancelWorkers <= 0 {
		cfg.System.CancelWorkers = DefaultCancelWorkers
	}
	fc := cfg.System.FlowControl
	if fc.Enabled && (fc.LowWatermark <= 0 || fc.HighWatermark < fc.LowWatermark) {
		return errors.Wrapf(ErrInvalidConfigValue, "flow-control watermarks must satisfy 0 < low-watermark <= high-watermark")
	}

	nodes := make(map[string]struct{}, len(cfg.DataNodes))
	for _, dn := range cfg.DataNodes {
		if dn.Name == "" || dn.Addr == "" {
			return errors.Wrapf(ErrInvalidConfigValue, "data-node must have a name and an addr")
		}
		if _, ok := nodes[dn.Name]; ok {
			return errors.Wrapf(ErrInvalidConfigValue, "duplicated data-node %s", dn.Name)
		}
		nodes[dn.Name] = struct{}{}
	}
	schemas := make(map[string]struct{}, len(cfg.Schemas))
	for _, s := range cfg.Schemas {
		if err := s.check(nodes); err != nil {
			return err
		}
		if _, ok := schemas[s.Name]; ok {
			return errors.Wrapf(ErrInvalidConfigValue, "duplicated schema %s", s.Name)
		}
		schemas[s.Name] = struct{}{}
	}
	users := make(map[string]struct{}, len(cfg.Users))
	for _, u := range cfg.Users {
		if _, ok := users[u.Name]; ok {
			return errors.Wrapf(ErrInvalidConfigValue, "duplicated user %s", u.Name)
		}
		users[u.Name] = struct{}{}
		if u.DefaultSchema == "" {
			continue
		}
		if _, ok := schemas[u.DefaultSchema]; !ok {
			return errors.Wrapf(ErrInvalidConfigValue, "default-schema %s of user %s is not defined", u.DefaultSchema, u.Name)
		}
	}
	return nil
}

func (cfg *Config) ToBytes() ([]byte, error) {
	b := new(bytes.Buffer)
	err := toml.NewEncoder(b).Encode(cfg)
	return b.Bytes(), errors.WithStack(err)
}
