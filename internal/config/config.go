// Package config loads the YAML run configuration. Command line flags override
// individual fields after loading.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/Amr-9/KeyHunter/pkg/search"
)

// Config describes one search run.
type Config struct {
	// Keyspace is START:END, START:+COUNT, START or :END in hex. Empty means the
	// whole range [1, n).
	Keyspace string `yaml:"keyspace"`
	// Share is M/N: search only the M-th of N equal slices of the keyspace.
	Share       string `yaml:"share"`
	Compression string `yaml:"compression"`

	Stride           string `yaml:"stride"`
	RandomStrideBits uint   `yaml:"random_stride_bits"` // 0 disables random strides
	ContinueAfterEnd bool   `yaml:"continue_after_end"`

	Devices []int `yaml:"devices"`

	Targets     []string `yaml:"targets"`
	TargetsFile string   `yaml:"targets_file"`
	OutputFile  string   `yaml:"output_file"`

	CheckpointFile     string        `yaml:"checkpoint_file"`
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`
	Resume             bool          `yaml:"resume"`

	StatusInterval time.Duration `yaml:"status_interval"`

	CPU struct {
		Workers int `yaml:"workers"`
		Points  int `yaml:"points"`
	} `yaml:"cpu"`

	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Compression:        search.Compressed.String(),
		Stride:             "1",
		Devices:            []int{0},
		CheckpointInterval: time.Minute,
		StatusInterval:     search.DefaultStatusInterval,
		LogLevel:           "info",
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every field that can be checked without touching the devices.
func (c *Config) Validate() error {
	if _, err := c.SearchKeyspace(); err != nil {
		return err
	}
	if _, err := search.ParseCompressionMode(c.Compression); err != nil {
		return err
	}
	if c.RandomStrideBits == 0 {
		if _, err := c.StrideValue(); err != nil {
			return err
		}
	} else if c.RandomStrideBits > 256 {
		return &search.ConfigError{Msg: fmt.Sprintf("random stride bits must be 1..256, got %d", c.RandomStrideBits)}
	}
	if len(c.Targets) == 0 && c.TargetsFile == "" {
		return &search.ConfigError{Err: search.ErrNoTargets}
	}
	if len(c.Devices) == 0 {
		return &search.ConfigError{Msg: "at least one device is required"}
	}
	seen := make(map[int]bool, len(c.Devices))
	for _, id := range c.Devices {
		if id < 0 || seen[id] {
			return &search.ConfigError{Msg: fmt.Sprintf("invalid device list %v", c.Devices)}
		}
		seen[id] = true
	}
	if c.Resume && c.CheckpointFile == "" {
		return &search.ConfigError{Msg: "resume requires a checkpoint file"}
	}
	if c.CheckpointInterval <= 0 {
		return &search.ConfigError{Msg: "checkpoint interval must be positive"}
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return &search.ConfigError{Msg: "invalid log level", Err: err}
	}
	return nil
}

// SearchKeyspace parses the keyspace and applies the share, if any.
func (c *Config) SearchKeyspace() (search.Keyspace, error) {
	ks, err := search.ParseKeyspace(c.Keyspace)
	if err != nil {
		return search.Keyspace{}, err
	}
	if c.Share == "" {
		return ks, nil
	}
	m, n, err := search.ParseShare(c.Share)
	if err != nil {
		return search.Keyspace{}, err
	}
	return ks.Share(m, n)
}

// StrideValue parses the fixed stride.
func (c *Config) StrideValue() (*uint256.Int, error) {
	s, err := search.ParseKey(c.Stride)
	if err != nil {
		return nil, &search.ConfigError{Msg: "invalid stride", Err: err}
	}
	if s.IsZero() {
		return nil, &search.ConfigError{Msg: "stride must be non-zero"}
	}
	return s, nil
}
