// Package config loads and validates process settings (spec §6.3, expanded
// §6.6), adapted from the teacher's Viper-based loader: built-in defaults,
// an optional config.yaml, then FONTLEAK_-prefixed environment variables,
// plus the bare names spec §6.3 already specifies for drop-in
// compatibility with the original tool's own environment contract.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/meme-lord/fontleak/internal/alphabet"
	"github.com/meme-lord/fontleak/internal/useragent"
	"github.com/meme-lord/fontleak/pkg/apperror"
)

// Settings holds every recognised process setting (spec §6.3).
type Settings struct {
	Host           string        `mapstructure:"host"`
	HostLeak       string        `mapstructure:"host_leak"`
	Selector       string        `mapstructure:"selector"`
	Parent         string        `mapstructure:"parent"`
	Alphabet       string        `mapstructure:"alphabet"`
	Attr           string        `mapstructure:"attr"`
	Timeout        time.Duration `mapstructure:"timeout"`
	Length         int           `mapstructure:"length"`
	Browser        string        `mapstructure:"browser"`
	FastAPILogging bool          `mapstructure:"fastapi_logging"`
}

// mutableFields are the settings the hot-reload watcher is allowed to
// apply without a restart; host and host_leak are excluded because
// sessions that already captured a FontArtifact referencing the old host
// cannot be safely migrated (SPEC_FULL.md §6.6).
var mutableFields = map[string]bool{
	"alphabet": true,
	"attr":     true,
	"timeout":  true,
	"selector": true,
	"parent":   true,
}

// Load reads settings from defaults, an optional config file at
// configPath, and the environment, then validates the result.
func Load(configPath string) (*Settings, *viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("FONTLEAK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindBareNames(v)

	if err := v.ReadInConfig(); err != nil {
		// An explicit configPath that does not exist surfaces as an
		// fs.ErrNotExist rather than ConfigFileNotFoundError; both mean
		// "no file", which is allowed.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
			return nil, nil, apperror.NewInvalidConfig("reading config file").WithCause(err)
		}
	}

	settings, err := unmarshal(v)
	if err != nil {
		return nil, nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, nil, err
	}
	return settings, v, nil
}

// bindBareNames lets the original tool's unprefixed environment variable
// names (HOST, HOST_LEAK, SELECTOR, ...) keep working alongside the
// FONTLEAK_-prefixed form Viper's AutomaticEnv produces.
func bindBareNames(v *viper.Viper) {
	bare := map[string]string{
		"host":            "HOST",
		"host_leak":       "HOST_LEAK",
		"selector":        "SELECTOR",
		"parent":          "PARENT",
		"alphabet":        "ALPHABET",
		"attr":            "ATTR",
		"timeout":         "TIMEOUT",
		"length":          "LENGTH",
		"browser":         "BROWSER",
		"fastapi_logging": "FASTAPI_LOGGING",
	}
	for key, env := range bare {
		_ = v.BindEnv(key, env)
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", "http://localhost:8080")
	v.SetDefault("host_leak", "http://localhost:8080")
	v.SetDefault("selector", "body")
	v.SetDefault("parent", "body")
	v.SetDefault("alphabet", alphabet.DefaultAlphabet())
	v.SetDefault("attr", "data-leak")
	v.SetDefault("timeout", "10s")
	v.SetDefault("length", 0)
	v.SetDefault("browser", "all")
	v.SetDefault("fastapi_logging", false)
}

func unmarshal(v *viper.Viper) (*Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, apperror.NewInvalidConfig("unmarshalling config").WithCause(err)
	}
	s.Host = strings.TrimRight(s.Host, "/")
	s.HostLeak = strings.TrimRight(s.HostLeak, "/")
	return &s, nil
}

// Validate enforces spec §6.3 and §7's InvalidConfig conditions: malformed
// host URLs, an unknown parent, or an unknown browser value.
func (s *Settings) Validate() error {
	if err := validateAbsoluteURL("host", s.Host); err != nil {
		return err
	}
	if err := validateAbsoluteURL("host_leak", s.HostLeak); err != nil {
		return err
	}
	if s.Parent != "body" && s.Parent != "head" {
		return apperror.NewInvalidConfig(fmt.Sprintf("parent must be body or head, got %q", s.Parent))
	}
	if _, err := alphabet.Normalise(s.Alphabet); err != nil {
		return apperror.NewInvalidConfig("configured alphabet is invalid").WithCause(err)
	}
	switch s.Browser {
	case "all", string(useragent.Chrome), string(useragent.Firefox), string(useragent.Safari):
	default:
		return apperror.NewInvalidConfig(fmt.Sprintf("browser must be one of all|chrome|firefox|safari, got %q", s.Browser))
	}
	return nil
}

func validateAbsoluteURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return apperror.NewInvalidConfig(fmt.Sprintf("%s must be an absolute URL with scheme and authority, got %q", field, raw))
	}
	return nil
}

// WatchAndReload installs a file watcher that hot-reloads mutable fields on
// change, calling onReload with the freshly validated settings. Immutable
// fields (host, host_leak) are compared against the previous value and, if
// changed, logged as ignored by the caller rather than applied.
func WatchAndReload(v *viper.Viper, current *Settings, onReload func(next *Settings, ignoredHostChange bool)) {
	v.OnConfigChange(func(_ fsnotify.Event) {
		next, err := unmarshal(v)
		if err != nil {
			return
		}
		if err := next.Validate(); err != nil {
			return
		}
		ignoredHostChange := next.Host != current.Host || next.HostLeak != current.HostLeak
		merged := *current
		merged.Alphabet = next.Alphabet
		merged.Attr = next.Attr
		merged.Timeout = next.Timeout
		merged.Selector = next.Selector
		merged.Parent = next.Parent
		onReload(&merged, ignoredHostChange)
	})
	v.WatchConfig()
}

// IsMutable reports whether field may be changed by a hot reload without a
// process restart.
func IsMutable(field string) bool {
	return mutableFields[field]
}
