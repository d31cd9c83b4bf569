// Copyright 2023 The recfs Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cfg defines the mount configuration and its flag binding.
package cfg

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// LogSeverity accepts TRACE, DEBUG, INFO, WARNING, ERROR or OFF, in any
// case.
type LogSeverity string

var severities = []string{"TRACE", "DEBUG", "INFO", "WARNING", "ERROR", "OFF"}

type Config struct {
	// Delete the persisted credential entry before starting.
	ClearCredentials bool `mapstructure:"clear"`

	// Force a remote list on every path component (debug aid).
	DisableFastPath bool `mapstructure:"no-fast-path"`

	// Override the scratch directory chosen for cached file bodies.
	CacheDir string `mapstructure:"cache-dir"`

	// Base URL of the remote API.
	Endpoint string `mapstructure:"api-endpoint"`

	// Upper bound applied to every remote request.
	HTTPTimeout time.Duration `mapstructure:"http-timeout"`

	LogFile     string      `mapstructure:"log-file"`
	LogFormat   string      `mapstructure:"log-format"`
	LogSeverity LogSeverity `mapstructure:"log-severity"`
}

// BindFlags declares the flag surface on fs and binds it into viper.
func BindFlags(fs *pflag.FlagSet) error {
	fs.Bool("clear", false, "Delete the stored credential before starting")
	fs.Bool("no-fast-path", false, "Disable the per-component listing-cache hit; every path component costs a remote list")
	fs.String("cache-dir", "", "Directory for cached file bodies (default: a fresh directory under the system temp dir)")
	fs.String("api-endpoint", "", "Base URL of the remote API")
	fs.Duration("http-timeout", 120*time.Second, "Upper bound for each remote request")
	fs.String("log-file", "", "Write logs to this file instead of stderr")
	fs.String("log-format", "text", "Log format: text or json")
	fs.String("log-severity", "INFO", "Minimum log severity: TRACE, DEBUG, INFO, WARNING, ERROR or OFF")

	return viper.BindPFlags(fs)
}

func decodeHook() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		s := data.(string)
		if t == reflect.TypeOf(LogSeverity("")) {
			level := strings.ToUpper(s)
			if !slices.Contains(severities, level) {
				return nil, fmt.Errorf("invalid log severity: %s", s)
			}
			return level, nil
		}
		return data, nil
	}
}

// Load materializes the bound flags into a Config.
func Load() (Config, error) {
	var c Config
	err := viper.Unmarshal(&c, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		decodeHook(),
		mapstructure.StringToTimeDurationHookFunc(),
	)))
	if err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	return c, nil
}
