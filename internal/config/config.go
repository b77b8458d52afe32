// Copyright 2022 Harald Albrecht.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

/*
Package config holds the configuration of the spadist server, which is set
once at startup and never changes afterwards.

The configuration starts from built-in defaults and may then be overridden by a
configuration file in either YAML or TOML format, depending on the file name
extension.
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultPort            = 8000
	DefaultRoot            = "dist"
	DefaultIndex           = "index.html"
	DefaultShutdownTimeout = 5 * time.Second
	DefaultLogLevel        = "info"
)

// Config describes what to serve and where.
type Config struct {
	Port            int           `yaml:"port" toml:"port"`
	Root            string        `yaml:"root" toml:"root"`
	Index           string        `yaml:"index" toml:"index"`
	RewriteBase     bool          `yaml:"rewrite_base" toml:"rewrite_base"`
	RequireIndex    bool          `yaml:"require_index" toml:"require_index"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
	LogLevel        string        `yaml:"log_level" toml:"log_level"`
}

// Defaults returns the default configuration: serving the "dist" directory
// with its "index.html" on port 8000.
func Defaults() Config {
	return Config{
		Port:            DefaultPort,
		Root:            DefaultRoot,
		Index:           DefaultIndex,
		ShutdownTimeout: DefaultShutdownTimeout,
		LogLevel:        DefaultLogLevel,
	}
}

// Load returns the default configuration overridden by the settings in the
// specified configuration file. Files ending in ".toml" are parsed as TOML,
// all others as YAML. Settings missing from the file keep their defaults.
func Load(name string) (Config, error) {
	cfg := Defaults()
	if name == "" {
		return cfg, nil
	}
	contents, err := os.ReadFile(name)
	if err != nil {
		return cfg, fmt.Errorf("cannot read configuration file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".toml":
		err = toml.Unmarshal(contents, &cfg)
	default:
		err = yaml.Unmarshal(contents, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("cannot parse configuration file %q: %w", name, err)
	}
	return cfg, cfg.Validate()
}

// Validate returns an error if the configuration is unusable.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Root == "" {
		return errors.New("root directory must not be empty")
	}
	if path.Clean("/"+c.Index) == "/" {
		return fmt.Errorf("invalid index document %q", c.Index)
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("invalid shutdown timeout %s", c.ShutdownTimeout)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	return nil
}

// Level returns the logrus log level, defaulting to info for unparseable
// levels.
func (c Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// YAML returns the configuration rendered in YAML format.
func (c Config) YAML() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
