// Package config loads wasmplay settings from wasmplay.yaml, WASMPLAY_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type RunConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	MemoryPages uint32        `mapstructure:"memory_pages"`
	Decode      string        `mapstructure:"decode"`
	OutputLimit int64         `mapstructure:"output_limit"`
	CacheDir    string        `mapstructure:"cache_dir"`
}

type CompilerConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
	Driver  string        `mapstructure:"driver"`
	Opt     string        `mapstructure:"opt"`
}

type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
	MaxTimeout   time.Duration `mapstructure:"max_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type Config struct {
	Run      RunConfig      `mapstructure:"run"`
	Compiler CompilerConfig `mapstructure:"compiler"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
}

// Load reads the config. file overrides the search path when set. Each
// entry of flags maps a config key to a flag name in fs; flags the user set
// take precedence over the file and the environment.
func Load(file string, fs *pflag.FlagSet, flags map[string]string) (*Config, error) {
	v := viper.New()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("wasmplay")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.wasmplay")
	}

	v.SetEnvPrefix("WASMPLAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if fs != nil {
		for key, name := range flags {
			f := fs.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("binding flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

// Default returns the built-in settings without reading any file or
// environment variable.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("run.timeout", 10*time.Second)
	v.SetDefault("run.memory_pages", 4096)
	v.SetDefault("run.decode", "streaming")
	v.SetDefault("run.output_limit", 0)
	v.SetDefault("run.cache_dir", "")

	v.SetDefault("compiler.url", "http://127.0.0.1:8080")
	v.SetDefault("compiler.timeout", 3*time.Minute)
	v.SetDefault("compiler.driver", "")
	v.SetDefault("compiler.opt", "default")

	v.SetDefault("server.addr", "127.0.0.1:3000")
	v.SetDefault("server.max_body_bytes", 16<<20)
	v.SetDefault("server.max_timeout", time.Minute)

	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stderr")
}
