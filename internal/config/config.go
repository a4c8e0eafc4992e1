// Copyright (c) 2026 Uber Technologies, Inc.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package config loads the runtime configuration of helloapp.
//
// With no config file, no HELLOAPP_* or PORT environment variables and no
// flags, Load returns Default: the server binds 127.0.0.1:5000.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix is prepended to every environment variable Load consults,
// with nested keys joined by underscores (HELLOAPP_HTTP_PORT).
const EnvPrefix = "HELLOAPP"

// Log formats understood by the logging package.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Config is the full configuration of the process.
type Config struct {
	HTTP      HTTPConfig      `mapstructure:"http"`
	Log       LogConfig       `mapstructure:"log"`
	Lifecycle LifecycleConfig `mapstructure:"lifecycle"`
}

// HTTPConfig configures the listening server.
type HTTPConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	ReadHeaderTimeout time.Duration `mapstructure:"readHeaderTimeout"`
}

// Addr reports the host:port pair the server binds.
func (c HTTPConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LifecycleConfig bounds how long the application may take
// to start and to stop.
type LifecycleConfig struct {
	StartTimeout time.Duration `mapstructure:"startTimeout"`
	StopTimeout  time.Duration `mapstructure:"stopTimeout"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Host:              "127.0.0.1",
			Port:              5000,
			ReadHeaderTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: FormatJSON,
		},
		Lifecycle: LifecycleConfig{
			StartTimeout: 15 * time.Second,
			StopTimeout:  15 * time.Second,
		},
	}
}

// Flag names bound by Load when present in the given flag set.
const (
	FlagHost = "host"
	FlagPort = "port"
)

var flagKeys = map[string]string{
	FlagHost: "http.host",
	FlagPort: "http.port",
}

// Load builds a Config from, in increasing order of precedence,
// Default, the optional config file, the environment and flags.
//
// file may be empty, in which case no file is read.
// flags may be nil. Only flags that were set on the command line
// override other sources.
func Load(file string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// PORT is what most hosting platforms inject.
	if err := v.BindEnv("http.port", EnvPrefix+"_HTTP_PORT", "PORT"); err != nil {
		return Config{}, fmt.Errorf("bind port environment: %w", err)
	}

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %q: %w", file, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return Config{}, fmt.Errorf("bind flag %q: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("http.host", d.HTTP.Host)
	v.SetDefault("http.port", d.HTTP.Port)
	v.SetDefault("http.readHeaderTimeout", d.HTTP.ReadHeaderTimeout)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("lifecycle.startTimeout", d.Lifecycle.StartTimeout)
	v.SetDefault("lifecycle.stopTimeout", d.Lifecycle.StopTimeout)
}

// Validate reports every problem with the configuration at once.
func (c Config) Validate() error {
	var err error
	if c.HTTP.Host == "" {
		err = multierr.Append(err, errors.New("http.host must not be empty"))
	}
	// Port 0 asks the kernel for any free port.
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		err = multierr.Append(err, fmt.Errorf("http.port %d out of range [0, 65535]", c.HTTP.Port))
	}
	if c.HTTP.ReadHeaderTimeout < 0 {
		err = multierr.Append(err, fmt.Errorf("http.readHeaderTimeout must not be negative, got %v", c.HTTP.ReadHeaderTimeout))
	}
	if _, lerr := zapcore.ParseLevel(c.Log.Level); lerr != nil {
		err = multierr.Append(err, fmt.Errorf("log.level: %w", lerr))
	}
	switch c.Log.Format {
	case FormatJSON, FormatConsole:
	default:
		err = multierr.Append(err, fmt.Errorf("log.format must be %q or %q, got %q", FormatJSON, FormatConsole, c.Log.Format))
	}
	if c.Lifecycle.StartTimeout <= 0 {
		err = multierr.Append(err, fmt.Errorf("lifecycle.startTimeout must be positive, got %v", c.Lifecycle.StartTimeout))
	}
	if c.Lifecycle.StopTimeout <= 0 {
		err = multierr.Append(err, fmt.Errorf("lifecycle.stopTimeout must be positive, got %v", c.Lifecycle.StopTimeout))
	}
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
