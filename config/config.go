// Package config loads netio's process-wide configuration from YAML,
// in the kebab-case-tagged struct style used by the retrieval pack's own
// config layers.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration document.
type Config struct {
	// Listen describes the sockets the server binds on startup.
	Listen []ListenSpec `yaml:"listen" json:"listen"`

	// IdleTimeout is the default per-connection idle timeout applied to
	// every accepted Stream unless overridden. Zero disables it.
	IdleTimeout time.Duration `yaml:"idle-timeout,omitempty" json:"idle-timeout,omitempty"`

	// NoDelay toggles TCP_NODELAY on accepted TCP streams.
	NoDelay bool `yaml:"no-delay,omitempty" json:"no-delay,omitempty"`

	// Backlog is a listen(2) backlog read from the file. netio-echo does
	// not pass it to its listeners, which always use netio.DefaultBacklog.
	Backlog int `yaml:"backlog,omitempty" json:"backlog,omitempty"`

	// Logging controls the structured logger.
	Logging LoggingConfig `yaml:"logging,omitempty" json:"logging,omitempty"`
}

// ListenSpec describes one socket to bind.
type ListenSpec struct {
	// Network is "tcp", "tcp4", "tcp6", or "unix".
	Network string `yaml:"network" json:"network"`

	// Address is "host:port" for TCP networks or a filesystem path for unix.
	Address string `yaml:"address" json:"address"`

	// Backlog is a per-listener backlog read from the file. netio-echo
	// does not apply it; its listeners always use netio.DefaultBacklog.
	Backlog int `yaml:"backlog,omitempty" json:"backlog,omitempty"`
}

// LoggingConfig controls internal/logging.Configure.
type LoggingConfig struct {
	// Level is a logrus level name ("debug", "info", "warn", ...).
	Level string `yaml:"level,omitempty" json:"level,omitempty"`

	// JSON switches the formatter from text to JSON.
	JSON bool `yaml:"json,omitempty" json:"json,omitempty"`
}

const (
	// DefaultBacklog mirrors the backlog most pack servers pass to listen(2)
	// when the operator hasn't tuned it.
	DefaultBacklog = 511
)

// Default returns a Config with the runtime's baked-in defaults, suitable
// as a starting point before applying a loaded file over it.
func Default() *Config {
	return &Config{
		Backlog: DefaultBacklog,
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads and parses the YAML document at path, starting from
// Default() so unset fields keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "config: read %s", path)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "config: parse %s", path)
	}
	return cfg, nil
}
