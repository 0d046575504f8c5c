// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config defines the YAML configuration of cryptostorectl, which
// selects the storage engine and the location of a crypto store.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cihub/seelog"
	"github.com/mutecomm/cryptostore/cipher"
	"github.com/mutecomm/cryptostore/cryptostore"
	"github.com/mutecomm/cryptostore/kv"
	"github.com/mutecomm/cryptostore/kv/boltkv"
	"github.com/mutecomm/cryptostore/kv/memkv"
	"github.com/mutecomm/cryptostore/kv/pebblekv"
	"github.com/mutecomm/cryptostore/kv/sqlkv"
	"github.com/mutecomm/cryptostore/log"
	"gopkg.in/yaml.v3"
)

// Storage engines.
const (
	EngineMemory = "memory"
	EngineBolt   = "bolt"
	EngineSQLite = "sqlite"
	EnginePebble = "pebble"
)

// Config is the configuration of a crypto store.
type Config struct {
	Engine        string `yaml:"engine"`
	Dir           string `yaml:"dir"`
	Name          string `yaml:"name"`
	KDFIterations int    `yaml:"kdf_iterations"`
	LogLevel      string `yaml:"loglevel"`
	LogDir        string `yaml:"logdir"`
	LogConsole    bool   `yaml:"logconsole"`
}

// DefaultHomeDir returns the default home directory of cryptostorectl.
func DefaultHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cryptostore"
	}
	return filepath.Join(home, ".cryptostore")
}

// Default returns the default configuration.
func Default() *Config {
	homedir := DefaultHomeDir()
	return &Config{
		Engine:        EngineBolt,
		Dir:           filepath.Join(homedir, "db"),
		Name:          "cryptostore",
		KDFIterations: cipher.DefaultKDFIterations,
		LogLevel:      "info",
		LogDir:        filepath.Join(homedir, "log"),
	}
}

// Parse parses a YAML configuration. Unset fields keep their default value,
// unknown fields are an error.
func Parse(data []byte) (*Config, error) {
	c := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && err != io.EOF {
		return nil, log.Errorf("config: cannot parse: %s", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load reads the configuration file filename.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, log.Error(err)
	}
	return Parse(data)
}

// Validate checks c for errors.
func (c *Config) Validate() error {
	switch c.Engine {
	case EngineMemory, EngineBolt, EngineSQLite, EnginePebble:
	default:
		return log.Errorf("config: unknown engine '%s'", c.Engine)
	}
	if c.Engine != EngineMemory && c.Dir == "" {
		return log.Errorf("config: engine '%s' needs a dir", c.Engine)
	}
	if c.Name == "" {
		return log.Error("config: name is empty")
	}
	if c.KDFIterations <= 0 {
		return log.Errorf("config: kdf_iterations must be positive: %d",
			c.KDFIterations)
	}
	if _, found := seelog.LogLevelFromString(c.LogLevel); !found {
		return log.Errorf("config: loglevel '%s' is invalid", c.LogLevel)
	}
	return nil
}

// Opener returns the opener of the configured engine.
func (c *Config) Opener() kv.Opener {
	switch c.Engine {
	case EngineBolt:
		return &boltkv.Opener{Dir: c.Dir}
	case EngineSQLite:
		return &sqlkv.Opener{Dir: c.Dir}
	case EnginePebble:
		return &pebblekv.Opener{Dir: c.Dir}
	default:
		return &memkv.Opener{}
	}
}

// Options returns the store options of c.
func (c *Config) Options() []cryptostore.Option {
	return []cryptostore.Option{
		cryptostore.WithKDFIterations(c.KDFIterations),
	}
}

// Write writes c as YAML to w.
func (c *Config) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return log.Error(err)
	}
	if err := enc.Close(); err != nil {
		return log.Error(err)
	}
	return nil
}

func (c *Config) String() string {
	return fmt.Sprintf("%s store '%s' in '%s'", c.Engine, c.Name, c.Dir)
}
