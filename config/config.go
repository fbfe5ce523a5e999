package config

import (
	_ "embed"
	"time"
)

//go:embed ddclight.yaml
var sample []byte

// File is the on-disk ddclight.yaml.
type File struct {
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`

	DDC struct {
		Path            string   `mapstructure:"path"`
		SleepMultiplier float64  `mapstructure:"sleep_multiplier"`
		ExtraArgs       []string `mapstructure:"extra_args"`
	} `mapstructure:"ddc"`

	PollInterval     time.Duration `mapstructure:"poll_interval"`
	RedetectInterval time.Duration `mapstructure:"redetect_interval"`
	Debounce         time.Duration `mapstructure:"debounce"`

	Eww struct {
		Enabled  bool   `mapstructure:"enabled"`
		Binary   string `mapstructure:"binary"`
		Variable string `mapstructure:"variable"`
	} `mapstructure:"eww"`

	DBus struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"dbus"`

	Hotplug struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"hotplug"`
}

// Sample returns the commented default config file.
func Sample() []byte {
	return append([]byte(nil), sample...)
}

// Defaults maps every config key to its default value, in the form viper's
// SetDefault expects.
func Defaults() map[string]any {
	return map[string]any{
		"log.level":            "info",
		"log.format":           "text",
		"ddc.path":             "",
		"ddc.sleep_multiplier": 1.0,
		"ddc.extra_args":       []string{},
		"poll_interval":        10 * time.Second,
		"redetect_interval":    8 * time.Second,
		"debounce":             240 * time.Millisecond,
		"eww.enabled":          false,
		"eww.binary":           "eww",
		"eww.variable":         "ddc_brightness",
		"dbus.enabled":         true,
		"hotplug.enabled":      true,
	}
}

// MarshalYAML writes durations in their human form ("10s") rather than
// as nanosecond counts.
func (f File) MarshalYAML() (any, error) {
	type logSection struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	}
	type ddcSection struct {
		Path            string   `yaml:"path"`
		SleepMultiplier float64  `yaml:"sleep_multiplier"`
		ExtraArgs       []string `yaml:"extra_args"`
	}
	type ewwSection struct {
		Enabled  bool   `yaml:"enabled"`
		Binary   string `yaml:"binary"`
		Variable string `yaml:"variable"`
	}
	type toggle struct {
		Enabled bool `yaml:"enabled"`
	}

	extra := f.DDC.ExtraArgs
	if extra == nil {
		extra = []string{}
	}
	return struct {
		Log              logSection `yaml:"log"`
		DDC              ddcSection `yaml:"ddc"`
		PollInterval     string     `yaml:"poll_interval"`
		RedetectInterval string     `yaml:"redetect_interval"`
		Debounce         string     `yaml:"debounce"`
		Eww              ewwSection `yaml:"eww"`
		DBus             toggle     `yaml:"dbus"`
		Hotplug          toggle     `yaml:"hotplug"`
	}{
		Log:              logSection(f.Log),
		DDC:              ddcSection{Path: f.DDC.Path, SleepMultiplier: f.DDC.SleepMultiplier, ExtraArgs: extra},
		PollInterval:     f.PollInterval.String(),
		RedetectInterval: f.RedetectInterval.String(),
		Debounce:         f.Debounce.String(),
		Eww:              ewwSection(f.Eww),
		DBus:             toggle(f.DBus),
		Hotplug:          toggle(f.Hotplug),
	}, nil
}
