package imbin

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/hupe1980/imbin/internal/shard"
	"github.com/hupe1980/imbin/page"
	"github.com/pelletier/go-toml/v2"
)

// DefaultBufferSize is the default prefetch depth in pages.
const DefaultBufferSize = 4

// Config is the iterator configuration. It is copied by New and must not be
// changed afterwards.
type Config struct {
	// ImageList are the list files, one per shard.
	ImageList []string `toml:"image_list"`
	// ImageBin are the shard blobs, parallel to ImageList.
	ImageBin []string `toml:"image_bin"`
	// Silent suppresses the startup log line.
	Silent bool `toml:"silent"`
	// BufferSize is the prefetch depth in pages.
	BufferSize int `toml:"buffer_size"`
	// PageSize is the page granularity the shards were written with.
	PageSize int `toml:"page_size"`
	// Rewind is "full" (restart at the first pair) or "current" (restart the
	// pair whose list is open, then continue from the list cursor; after a
	// completed epoch that is the last pair followed by pairs 1..N-1).
	Rewind string `toml:"rewind"`
	// VerifyCounts compares every list against its shard at Init.
	VerifyCounts bool `toml:"verify_counts"`
	// MemoryLimitBytes bounds the page memory of the prefetch ring. 0 means
	// unlimited.
	MemoryLimitBytes int64 `toml:"memory_limit_bytes"`
	// IOLimitBytesPerSec throttles shard reads. 0 means unlimited.
	IOLimitBytesPerSec int64 `toml:"io_limit_bytes_per_sec"`
	// VerifyWorkers bounds the pairs verified in parallel.
	VerifyWorkers int `toml:"verify_workers"`
	// CacheDir enables a local disk cache of shard blocks.
	CacheDir string `toml:"cache_dir"`
	// CacheBytes bounds the block cache. Without CacheDir the cache is held
	// in memory.
	CacheBytes int64 `toml:"cache_bytes"`
}

// DefaultConfig returns a Config with default values and no dataset.
func DefaultConfig() Config {
	return Config{
		BufferSize:    DefaultBufferSize,
		PageSize:      page.DefaultSize,
		Rewind:        shard.RewindFull.String(),
		VerifyWorkers: runtime.GOMAXPROCS(0),
	}
}

// LoadConfig reads a TOML file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("imbin: read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Field: path, Reason: "invalid toml", cause: err}
	}
	return cfg, nil
}

// SetParam sets a parameter by name. List-valued parameters (image_list,
// image_bin) accept several paths separated by ',' or '%' and append across
// calls. Unknown names are ignored.
func (c *Config) SetParam(name, value string) error {
	var err error
	switch name {
	case "image_list":
		c.ImageList = append(c.ImageList, splitPaths(value)...)
	case "image_bin":
		c.ImageBin = append(c.ImageBin, splitPaths(value)...)
	case "silent":
		c.Silent, err = parseFlag(value)
	case "buffer_size":
		c.BufferSize, err = strconv.Atoi(value)
	case "page_size":
		c.PageSize, err = strconv.Atoi(value)
	case "rewind":
		_, err = shard.ParseRewind(value)
		if err == nil {
			c.Rewind = value
		}
	case "verify_counts":
		c.VerifyCounts, err = parseFlag(value)
	case "memory_limit_bytes":
		c.MemoryLimitBytes, err = strconv.ParseInt(value, 10, 64)
	case "io_limit_bytes_per_sec":
		c.IOLimitBytesPerSec, err = strconv.ParseInt(value, 10, 64)
	case "verify_workers":
		c.VerifyWorkers, err = strconv.Atoi(value)
	case "cache_dir":
		c.CacheDir = value
	case "cache_bytes":
		c.CacheBytes, err = strconv.ParseInt(value, 10, 64)
	}
	if err != nil {
		return &ConfigError{Field: name, Reason: fmt.Sprintf("invalid value %q", value), cause: err}
	}
	return nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch {
	case len(c.ImageList) == 0:
		return &ConfigError{Field: "image_list", Reason: "no list files"}
	case len(c.ImageList) != len(c.ImageBin):
		return &ConfigError{
			Field:  "image_bin",
			Reason: fmt.Sprintf("list/bin number not consistent: %d lists, %d bins", len(c.ImageList), len(c.ImageBin)),
		}
	case c.BufferSize <= 0:
		return &ConfigError{Field: "buffer_size", Reason: "must be positive"}
	case c.MemoryLimitBytes < 0:
		return &ConfigError{Field: "memory_limit_bytes", Reason: "must not be negative"}
	case c.IOLimitBytesPerSec < 0:
		return &ConfigError{Field: "io_limit_bytes_per_sec", Reason: "must not be negative"}
	case c.CacheBytes < 0:
		return &ConfigError{Field: "cache_bytes", Reason: "must not be negative"}
	}
	if err := page.Validate(c.PageSize); err != nil {
		return &ConfigError{Field: "page_size", Reason: strconv.Itoa(c.PageSize), cause: err}
	}
	if _, err := c.rewind(); err != nil {
		return &ConfigError{Field: "rewind", Reason: c.Rewind, cause: err}
	}
	return nil
}

func (c *Config) rewind() (shard.Rewind, error) {
	return shard.ParseRewind(c.Rewind)
}

func (c *Config) clone() Config {
	out := *c
	out.ImageList = append([]string(nil), c.ImageList...)
	out.ImageBin = append([]string(nil), c.ImageBin...)
	return out
}

func splitPaths(value string) []string {
	var out []string
	for _, p := range strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == '%' }) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseFlag accepts strconv.ParseBool values and any integer, non-zero
// meaning true.
func parseFlag(value string) (bool, error) {
	if b, err := strconv.ParseBool(value); err == nil {
		return b, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return false, err
	}
	return n != 0, nil
}
