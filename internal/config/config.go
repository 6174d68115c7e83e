// Package config loads the broker's TOML configuration file, the same way
// kapacitor's cmd/kapacitord/run/config.go loads its own config: a
// NewConfig constructor returns sane defaults, and FromFile merges a TOML
// document on top of them.
package config

import (
	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

const (
	// DefaultBindAddr is the broker's default TCP listen address.
	DefaultBindAddr = "127.0.0.1:9092"

	// DefaultMetadataLogPath is the default cluster metadata log location.
	DefaultMetadataLogPath = "/tmp/kraft-combined-logs/__cluster_metadata-0/00000000000000000000.log"

	// DefaultLogDir is the default root under which per-topic partition
	// logs are found.
	DefaultLogDir = "/tmp/kraft-combined-logs"

	// DefaultLogLevel is the default zap logging level.
	DefaultLogLevel = "info"
)

// Config is the broker's top level configuration.
type Config struct {
	BindAddr        string `toml:"bind_addr"`
	MetadataLogPath string `toml:"metadata_log_path"`
	LogDir          string `toml:"log_dir"`
	LogLevel        string `toml:"log_level"`
}

// NewConfig returns a Config populated with its default values.
func NewConfig() Config {
	return Config{
		BindAddr:        DefaultBindAddr,
		MetadataLogPath: DefaultMetadataLogPath,
		LogDir:          DefaultLogDir,
		LogLevel:        DefaultLogLevel,
	}
}

// FromFile reads path as TOML and merges it over NewConfig's defaults. A
// key absent from the file leaves the default in place; a key present in
// the file replaces it, even with an empty value.
func FromFile(path string) (Config, error) {
	c := NewConfig()
	if path == "" {
		return c, nil
	}
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return Config{}, errors.Wrapf(err, "decode config file %s", path)
	}
	return c, nil
}
