package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetFallsBackToDefault(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	btc := c.Get("BTC")
	if btc.MaxLeverage != 20 || btc.SizePrecision != 3 {
		t.Fatalf("BTC config=%+v, expected built-in entry", btc)
	}

	unknown := c.Get("DOGE")
	def := c.Get(DefaultKey)
	if unknown != def {
		t.Fatalf("unknown symbol config=%+v, expected DEFAULT %+v", unknown, def)
	}
}

func TestReloadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "assets.yaml")
	content := "DOGE:\n  max_leverage: 4\n  price_precision: 5\n  size_precision: 0\n  min_size: 10\nBTC:\n  max_leverage: 25\n  price_precision: 1\n  size_precision: 3\n  min_size: 0.001\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got := c.Get("DOGE"); got.MaxLeverage != 4 || got.MinSize != 10 {
		t.Fatalf("DOGE=%+v, expected file entry", got)
	}
	if got := c.Get("BTC"); got.MaxLeverage != 25 {
		t.Fatalf("BTC.MaxLeverage=%d, expected file override 25", got.MaxLeverage)
	}
	// Unlisted default survives the merge.
	if got := c.Get("SOL"); got.MaxLeverage != 10 {
		t.Fatalf("SOL=%+v, expected built-in entry", got)
	}
}

func TestLoadRejectsInvalidEntry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "assets.yaml")
	if err := os.WriteFile(path, []byte("XRP:\n  max_leverage: 0\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load succeeded, expected validation error")
	}
}
