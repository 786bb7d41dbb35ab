package config

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment overrides, e.g. PARQ_OUTPUT_PATH.
const EnvPrefix = "PARQ"

// Resolve layers environment variables and changed flags on top of base and
// returns the merged configuration. base supplies every key, so viper knows
// the full key set before the env lookup. bindings maps config keys such as
// "output.path" to flag names.
func Resolve(base *Config, flags *pflag.FlagSet, bindings map[string]string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	data, err := yaml.Marshal(base)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal base config: %w", err)
	}
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to seed config: %w", err)
	}

	for key, name := range bindings {
		if flags == nil {
			break
		}
		f := flags.Lookup(name)
		if f == nil {
			return nil, fmt.Errorf("unknown flag %q bound to %s", name, key)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return nil, fmt.Errorf("failed to bind flag %q: %w", name, err)
		}
	}

	out := &Config{}
	if err := v.Unmarshal(out); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return out, nil
}
