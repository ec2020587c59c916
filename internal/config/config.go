// ABOUTME: Flag and environment configuration for the client and the relay
// ABOUTME: Flags win over environment variables, which win over defaults
package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type configVar[T any] struct {
	envKey       string
	flagKey      string
	defaultValue T
	usage        string
}

// binder is the type-erased view of a configVar
type binder interface {
	register(fs *pflag.FlagSet)
	bind(v *viper.Viper) error
}

func (c configVar[T]) register(fs *pflag.FlagSet) {
	switch d := any(c.defaultValue).(type) {
	case string:
		fs.String(c.flagKey, d, c.usage)
	case int:
		fs.Int(c.flagKey, d, c.usage)
	case bool:
		fs.Bool(c.flagKey, d, c.usage)
	case time.Duration:
		fs.Duration(c.flagKey, d, c.usage)
	default:
		panic(fmt.Sprintf("config: unsupported type %T for %s", d, c.flagKey))
	}
}

func (c configVar[T]) bind(v *viper.Viper) error {
	v.SetDefault(c.flagKey, c.defaultValue)
	return v.BindEnv(c.flagKey, c.envKey)
}

// load parses args against vars and returns the merged view
func load(name string, args []string, vars []binder) (*viper.Viper, error) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	for _, c := range vars {
		c.register(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}
	for _, c := range vars {
		if err := c.bind(v); err != nil {
			return nil, err
		}
	}
	return v, nil
}
