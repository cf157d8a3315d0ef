package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every knob for a soak run. Values come from defaults,
// then an optional YAML file, then BANKPROF_* environment variables,
// then command-line flags.
type Config struct {
	Root      string `mapstructure:"root"`
	ThemeFile string `mapstructure:"theme_file"`

	CacheSize int `mapstructure:"cache_size"`
	SpillSize int `mapstructure:"spill_size"`
	Cooldown  int `mapstructure:"cooldown"`

	FPS      float64       `mapstructure:"fps"`
	Duration time.Duration `mapstructure:"duration"`

	BufferSize int `mapstructure:"buffer_size"`
	PoolSize   int `mapstructure:"pool_size"`

	SynthThemes int `mapstructure:"synth_themes"`
	SynthImages int `mapstructure:"synth_images"`
	SynthFrames int `mapstructure:"synth_frames"`

	Lookahead      int           `mapstructure:"lookahead"`
	LookaheadBatch int           `mapstructure:"lookahead_batch"`
	LookaheadSleep time.Duration `mapstructure:"lookahead_sleep"`
	MaxPreload     time.Duration `mapstructure:"max_preload"`
	Aggressive     bool          `mapstructure:"aggressive"`

	PprofAddr  string `mapstructure:"pprof_addr"`
	CPUProfile string `mapstructure:"cpu_profile"`
	MemProfile string `mapstructure:"mem_profile"`
	Verbose    bool   `mapstructure:"verbose"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cache_size", 64)
	v.SetDefault("cooldown", 500)
	v.SetDefault("fps", 60.0)
	v.SetDefault("duration", 10*time.Second)
	v.SetDefault("buffer_size", 48)
	v.SetDefault("pool_size", 4)
	v.SetDefault("synth_themes", 3)
	v.SetDefault("synth_images", 24)
	v.SetDefault("synth_frames", 12)
}

// LoadConfig builds the run configuration. path may be empty, in which
// case only defaults, environment, and flags apply.
func LoadConfig(v *viper.Viper, path string) (Config, error) {
	setDefaults(v)

	v.SetEnvPrefix("BANKPROF")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
