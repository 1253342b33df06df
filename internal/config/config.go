/*
Copyright © 2024 John Dudmesh <john@dudmesh.co.uk>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package config loads client settings from a config file, the environment
// and command line flags.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jdudmesh/graphlink/internal/transport/natsrpc"
	"github.com/jdudmesh/graphlink/pkg/client"
	"github.com/spf13/viper"
)

const (
	EnvPrefix  = "GRAPHLINK"
	ConfigName = "graphlink"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// SetDefaults registers every known key so that environment variables are
// seen by Unmarshal even when no config file sets them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("transport", client.TransportHTTP)
	v.SetDefault("address", "")
	v.SetDefault("scheme", "https")
	v.SetDefault("email", "")
	v.SetDefault("secret", "")
	v.SetDefault("token", "")
	v.SetDefault("request_timeout", 30*time.Second)
	v.SetDefault("insecure_skip_verify", false)
	v.SetDefault("nats_subject", natsrpc.DefaultSubject)
	v.SetDefault("validate_queries", false)
	v.SetDefault("metrics", false)
	v.SetDefault("tracing", false)
	v.SetDefault("breaker.enabled", false)
	v.SetDefault("breaker.max_failures", 5)
	v.SetDefault("breaker.timeout", 30*time.Second)
	v.SetDefault("spool.database_url", "")
	v.SetDefault("spool.batch_size", client.DefaultBatchSize)
	v.SetDefault("log_level", "info")
}

// New returns a viper instance reading cfgFile, or graphlink.yaml in the
// working directory when cfgFile is empty.
func New(cfgFile string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(ConfigName)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Read loads the config file if there is one. A missing default file is not
// an error; a missing explicit file is.
func Read(v *viper.Viper) error {
	err := v.ReadInConfig()
	if err == nil {
		return nil
	}

	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return nil
	}
	return fmt.Errorf("reading config: %w", err)
}

// Load decodes and validates the client configuration.
func Load(v *viper.Viper) (client.Config, error) {
	cfg := client.Config{}
	err := v.Unmarshal(&cfg)
	if err != nil {
		return cfg, fmt.Errorf("decoding config: %w", err)
	}

	err = Validate(cfg)
	if err != nil {
		return cfg, err
	}

	return cfg, nil
}

func Validate(cfg client.Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, formatFieldError(e))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func formatFieldError(e validator.FieldError) string {
	field := fieldName(e)

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "required_if", "required_with":
		return fmt.Sprintf("%s is required here", field)
	case "excluded_with":
		return fmt.Sprintf("%s cannot be combined with email", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// fieldName is the dotted config key, e.g. breaker.max_failures.
func fieldName(e validator.FieldError) string {
	_, key, ok := strings.Cut(e.Namespace(), ".")
	if !ok {
		return e.Field()
	}
	return key
}

// ParseLevel maps a log_level value to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	var level slog.Level
	err := level.UnmarshalText([]byte(s))
	if err != nil {
		return slog.LevelInfo
	}
	return level
}
