// Package catalog provides read-only per-asset trading metadata.
package catalog

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultKey is the fallback entry used for symbols absent from the catalog.
const DefaultKey = "DEFAULT"

// AssetConfig holds the exchange constraints for one asset.
type AssetConfig struct {
	MaxLeverage    int     `yaml:"max_leverage"`
	PricePrecision int     `yaml:"price_precision"`
	SizePrecision  int     `yaml:"size_precision"`
	MinSize        float64 `yaml:"min_size"`
}

// Catalog maps symbols to their AssetConfig with a DEFAULT fallback.
type Catalog struct {
	mu     sync.RWMutex
	path   string
	assets map[string]AssetConfig
}

func defaults() map[string]AssetConfig {
	return map[string]AssetConfig{
		"ADA":      {MaxLeverage: 3, PricePrecision: 4, SizePrecision: 0, MinSize: 1},
		"BTC":      {MaxLeverage: 20, PricePrecision: 2, SizePrecision: 3, MinSize: 0.001},
		"ETH":      {MaxLeverage: 20, PricePrecision: 2, SizePrecision: 3, MinSize: 0.001},
		"SOL":      {MaxLeverage: 10, PricePrecision: 3, SizePrecision: 2, MinSize: 0.01},
		DefaultKey: {MaxLeverage: 5, PricePrecision: 4, SizePrecision: 2, MinSize: 0.01},
	}
}

// Load builds a catalog from the yaml file at path, layered over built-in
// defaults. A missing file yields the defaults alone.
func Load(path string) (*Catalog, error) {
	c := &Catalog{path: path, assets: defaults()}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads the backing file. Entries in the file override defaults;
// defaults for unlisted symbols are kept.
func (c *Catalog) Reload() error {
	if c.path == "" {
		return nil
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read asset catalog: %w", err)
	}

	var fromFile map[string]AssetConfig
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return fmt.Errorf("parse asset catalog: %w", err)
	}

	merged := defaults()
	for sym, cfg := range fromFile {
		if cfg.MaxLeverage < 1 || cfg.MinSize < 0 {
			return fmt.Errorf("asset catalog entry %s: invalid values", sym)
		}
		merged[sym] = cfg
	}

	c.mu.Lock()
	c.assets = merged
	c.mu.Unlock()
	return nil
}

// Get returns the config for symbol, falling back to the DEFAULT entry.
func (c *Catalog) Get(symbol string) AssetConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if cfg, ok := c.assets[symbol]; ok {
		return cfg
	}
	return c.assets[DefaultKey]
}

// Symbols lists all explicitly configured symbols (excluding DEFAULT).
func (c *Catalog) Symbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.assets))
	for sym := range c.assets {
		if sym != DefaultKey {
			out = append(out, sym)
		}
	}
	return out
}
