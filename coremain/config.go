package coremain

import (
	"time"

	"github.com/pmkol/quickdns/mlog"
	"github.com/pmkol/quickdns/pkg/data_provider"
	"github.com/pmkol/quickdns/pkg/trie"
	"github.com/pmkol/quickdns/pkg/utils"
)

type Config struct {
	Log           mlog.LogConfig                     `yaml:"log"`
	Include       []string                           `yaml:"include"`
	Resolver      ResolverConfig                     `yaml:"resolver"`
	Records       []trie.Record                      `yaml:"records"`
	DataProviders []data_provider.DataProviderConfig `yaml:"data_providers"`
	API           APIConfig                          `yaml:"api"`
}

type ResolverConfig struct {
	CacheSize  int `yaml:"cache_size"`  // Default is 1000.
	DefaultTTL int `yaml:"default_ttl"` // (sec) Default is 300.

	// (sec) Period of the expired cache entries sweep. Default is 300.
	// Zero disables the sweep.
	CleanupInterval *int `yaml:"cleanup_interval"`

	ShutdownTimeout int `yaml:"shutdown_timeout"` // (sec) Default is 5.
}

const (
	defaultCacheSize       = 1000
	defaultTTL             = 300
	defaultCleanupInterval = 300
	defaultShutdownTimeout = 5
)

func (c *ResolverConfig) Init() {
	utils.SetDefaultNum(&c.CacheSize, defaultCacheSize)
	utils.SetDefaultNum(&c.DefaultTTL, defaultTTL)
	utils.SetDefaultNum(&c.ShutdownTimeout, defaultShutdownTimeout)
	if c.CleanupInterval == nil {
		i := defaultCleanupInterval
		c.CleanupInterval = &i
	}
}

func (c *ResolverConfig) cleanupInterval() time.Duration {
	if c.CleanupInterval == nil {
		return 0
	}
	return time.Duration(*c.CleanupInterval) * time.Second
}

type APIConfig struct {
	HTTP string `yaml:"http"`
}
