// Package config loads runtime configuration from ffbatch.yaml, FFBATCH_*
// environment variables, and built-in defaults, in that order of precedence.
package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config holds everything the orchestrator and its collaborators need that
// is not part of a job's encode settings.
type Config struct {
	// FFmpegBin is the encoder executable name or path
	FFmpegBin string `mapstructure:"FFMPEG_BIN"`
	// FFprobeBin is the prober executable name or path
	FFprobeBin string `mapstructure:"FFPROBE_BIN"`
	// CancelGrace is how long a cancelled process gets to exit after
	// SIGTERM before it is killed
	CancelGrace time.Duration `mapstructure:"CANCEL_GRACE"`
	// StatsPeriod is how often ffmpeg is asked to emit a progress record
	StatsPeriod time.Duration `mapstructure:"STATS_PERIOD"`
	// LogTail is how many diagnostic lines are retained per job
	LogTail int `mapstructure:"LOG_TAIL"`
	// HaltOnFailure stops the batch at the first failed job instead of
	// continuing with the rest
	HaltOnFailure bool `mapstructure:"HALT_ON_FAILURE"`
	// MinFreeDisk and MinFreeMem gate the preflight resource check
	// (0 = check disabled)
	MinFreeDisk int64 `mapstructure:"MIN_FREE_DISK"`
	MinFreeMem  int64 `mapstructure:"MIN_FREE_MEM"`
	// MaxCPUPercent refuses to start a batch when current CPU usage is
	// already above this threshold (0 = check disabled)
	MaxCPUPercent float64 `mapstructure:"MAX_CPU_PERCENT"`
}

// stringToDurationHookFunc parses Go duration strings from config values.
func stringToDurationHookFunc() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		return time.ParseDuration(data.(string))
	}
}

// stringToByteSizeHookFunc parses human-readable sizes ("200MB") into int64s.
func stringToByteSizeHookFunc() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if f.Kind() != reflect.String || t.Kind() != reflect.Int64 {
			return data, nil
		}
		var size datasize.ByteSize
		if err := size.UnmarshalText([]byte(data.(string))); err != nil {
			// Not a size string; let other parsers have it.
			return data, nil
		}
		return int64(size.Bytes()), nil
	}
}

// Load reads configuration and validates it.
func Load() (*Config, error) {
	vp := viper.New()

	vp.SetDefault("FFMPEG_BIN", "ffmpeg")
	vp.SetDefault("FFPROBE_BIN", "ffprobe")
	vp.SetDefault("CANCEL_GRACE", "5s")
	vp.SetDefault("STATS_PERIOD", "500ms")
	vp.SetDefault("LOG_TAIL", 100)
	vp.SetDefault("HALT_ON_FAILURE", false)
	vp.SetDefault("MIN_FREE_DISK", "500MB")
	vp.SetDefault("MIN_FREE_MEM", "200MB")
	vp.SetDefault("MAX_CPU_PERCENT", 0.0)

	vp.SetConfigName("ffbatch")
	vp.SetConfigType("yaml")
	vp.AddConfigPath(".")
	vp.AddConfigPath("$HOME/.config/ffbatch")

	if err := vp.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	vp.SetEnvPrefix("FFBATCH")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	var cfg Config
	err := vp.Unmarshal(&cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			stringToDurationHookFunc(),
			stringToByteSizeHookFunc(),
		),
	))
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the orchestrator cannot work with.
func (c *Config) Validate() error {
	if c.FFmpegBin == "" {
		return fmt.Errorf("FFMPEG_BIN must not be empty")
	}
	if c.FFprobeBin == "" {
		return fmt.Errorf("FFPROBE_BIN must not be empty")
	}
	if c.CancelGrace <= 0 {
		return fmt.Errorf("CANCEL_GRACE must be positive, got %s", c.CancelGrace)
	}
	if c.StatsPeriod <= 0 {
		return fmt.Errorf("STATS_PERIOD must be positive, got %s", c.StatsPeriod)
	}
	if c.LogTail <= 0 {
		return fmt.Errorf("LOG_TAIL must be positive, got %d", c.LogTail)
	}
	if c.MaxCPUPercent < 0 || c.MaxCPUPercent > 100 {
		return fmt.Errorf("MAX_CPU_PERCENT must be within [0,100], got %g", c.MaxCPUPercent)
	}
	return nil
}
