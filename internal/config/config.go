// Package config loads psreplay settings: defaults, then an optional
// psreplay.yaml, then PSREPLAY_* environment variables.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	fileName   = "psreplay.yaml"
	pathEnvVar = "PSREPLAY_CONFIG"
)

type SourceConfig struct {
	UserAgent string        `yaml:"userAgent" env:"PSREPLAY_USER_AGENT"`
	Timeout   time.Duration `yaml:"timeout" env:"PSREPLAY_TIMEOUT"`
}

type StoreConfig struct {
	Path string `yaml:"path" env:"PSREPLAY_DB"`
}

type HubConfig struct {
	Listen string `yaml:"listen" env:"PSREPLAY_HUB_LISTEN"`
}

type Config struct {
	Source SourceConfig `yaml:"source"`
	Store  StoreConfig  `yaml:"store"`
	Hub    HubConfig    `yaml:"hub"`
	Debug  bool         `yaml:"debug" env:"PSREPLAY_DEBUG"`
}

func Default() Config {
	var cfg Config
	cfg.Source.UserAgent = "psreplay-stats/1.0"
	cfg.Source.Timeout = 10 * time.Second
	cfg.Store.Path = defaultStorePath()
	cfg.Hub.Listen = ":8787"
	return cfg
}

// Load returns the effective config and the file it was read from ("" when
// no file was found). On a file error the defaults are returned with err.
func Load() (cfg Config, path string, err error) {
	cfg = Default()

	if envPath := strings.TrimSpace(os.Getenv(pathEnvVar)); envPath != "" {
		found, err := overlayFile(&cfg, envPath)
		if err != nil {
			return Default(), envPath, err
		}
		if found {
			path = envPath
		}
	} else {
		for _, p := range candidatePaths() {
			found, err := overlayFile(&cfg, p)
			if err != nil {
				return Default(), p, err
			}
			if found {
				path = p
				break
			}
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, path, errors.Wrap(err, "parse env")
	}
	return cfg, path, nil
}

// overlayFile copies the non-empty values of the YAML file at p onto cfg.
// A missing file is not an error.
func overlayFile(cfg *Config, p string) (bool, error) {
	b, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, errors.Wrapf(err, "read %s", p)
	}

	var raw Config
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return false, errors.Wrapf(err, "parse %s", p)
	}
	if v := strings.TrimSpace(raw.Source.UserAgent); v != "" {
		cfg.Source.UserAgent = v
	}
	if raw.Source.Timeout > 0 {
		cfg.Source.Timeout = raw.Source.Timeout
	}
	if v := strings.TrimSpace(raw.Store.Path); v != "" {
		cfg.Store.Path = v
	}
	if v := strings.TrimSpace(raw.Hub.Listen); v != "" {
		cfg.Hub.Listen = v
	}
	if raw.Debug {
		cfg.Debug = true
	}
	return true, nil
}

func candidatePaths() []string {
	out := []string{fileName}

	if exe, err := os.Executable(); err == nil {
		out = append(out, filepath.Join(filepath.Dir(exe), fileName))
	}
	if base, err := os.UserConfigDir(); err == nil {
		out = append(out, filepath.Join(base, appFolder(), fileName))
	}
	return out
}

func defaultStorePath() string {
	if base, err := os.UserConfigDir(); err == nil {
		return filepath.Join(base, appFolder(), "history.db")
	}
	return "psreplay-history.db"
}

func appFolder() string {
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		return "PSReplay"
	}
	return "psreplay"
}
