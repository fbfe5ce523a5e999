package manager

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/hoppxi/ddclight/config"
)

type ConfigManager struct {
	path string

	once sync.Once
	v    *viper.Viper
	err  error
}

var Config = NewConfigManager(ConfigPath())

func NewConfigManager(path string) *ConfigManager {
	return &ConfigManager{path: path}
}

// ConfigPath is $XDG_CONFIG_HOME/ddclight/ddclight.yaml.
func ConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "ddclight", "ddclight.yaml")
}

func (c *ConfigManager) Path() string { return c.path }

// Load reads the config file on first use. A missing file is fine: the
// defaults and any DDCLIGHT_* environment variables apply.
func (c *ConfigManager) Load() (config.File, error) {
	c.once.Do(func() {
		c.v, c.err = newViper(c.path)
	})
	if c.err != nil {
		return config.File{}, c.err
	}
	return decode(c.v)
}

// Watch calls onChange with the re-read config every time the file changes.
func (c *ConfigManager) Watch(onChange func(config.File)) {
	if c.v == nil {
		return
	}
	c.v.OnConfigChange(func(e fsnotify.Event) {
		f, err := decode(c.v)
		if err != nil {
			slog.Warn("config reload failed", "file", e.Name, "err", err)
			return
		}
		slog.Info("config reloaded", "file", e.Name, "op", e.Op.String())
		onChange(f)
	})
	c.v.WatchConfig()
}

func newViper(path string) (*viper.Viper, error) {
	v := viper.New()
	for k, val := range config.Defaults() {
		v.SetDefault(k, val)
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("DDCLIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return v, nil
}

func decode(v *viper.Viper) (config.File, error) {
	var f config.File
	if err := v.Unmarshal(&f); err != nil {
		return config.File{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return f, nil
}
