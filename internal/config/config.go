// Package config is the ambient configuration loader shared by every
// dispatchd binary: it layers a YAML file under the user's config
// directory, environment variable overrides, and compiled-in defaults,
// the same three-tier precedence every plantd service uses.
package config

import (
	"fmt"
	"reflect"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// ServiceConfig identifies the running service instance, e.g. for
// logging or service discovery.
type ServiceConfig struct {
	ID string `mapstructure:"id"`
}

// LokiConfig points a LogConfig at a Loki push endpoint.
type LokiConfig struct {
	Address string            `mapstructure:"address"`
	Labels  map[string]string `mapstructure:"labels"`
}

// LogConfig configures logrus: level, formatter, and an optional Loki
// hook.
type LogConfig struct {
	Level     string     `mapstructure:"level"`
	Formatter string     `mapstructure:"formatter"`
	Loki      LokiConfig `mapstructure:"loki"`
}

// LoadConfigWithDefaults reads "<name>.yaml" from the first of
// "$HOME/.config/dispatchd", "/etc/dispatchd" and "." that holds one (and
// DISPATCHD_* environment overrides) into out, falling back to the given
// defaults for anything neither source sets. out must be a pointer to a
// (possibly nil) struct pointer, e.g. &instance where instance is
// *Config — the singleton pattern every plantd service config uses.
func LoadConfigWithDefaults(name string, out interface{}, defaults map[string]interface{}) error {
	for key, value := range defaults {
		viper.SetDefault(key, value)
	}

	home, err := homedir.Dir()
	if err != nil {
		return fmt.Errorf("cfg: could not resolve home directory: %w", err)
	}

	v := viper.GetViper()
	v.SetConfigName(name)
	v.SetConfigType("yaml")
	v.AddConfigPath(fmt.Sprintf("%s/.config/dispatchd", home))
	v.AddConfigPath("/etc/dispatchd")
	v.AddConfigPath(".")

	v.SetEnvPrefix("DISPATCHD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return fmt.Errorf("cfg: failed to read config file: %w", err)
		}
		// No config file is fine; defaults and env vars still apply.
	}

	// out is &instance where instance is a *Config; allocate the
	// pointed-to struct, unmarshal into it, then assign it through.
	outVal := reflect.ValueOf(out).Elem()
	fresh := reflect.New(outVal.Type().Elem())
	if err := v.Unmarshal(fresh.Interface()); err != nil {
		return fmt.Errorf("cfg: failed to unmarshal config: %w", err)
	}
	outVal.Set(fresh)
	return nil
}
