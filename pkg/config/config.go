package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"perp-trader/pkg/crypto"
)

// Config holds environment-driven settings for the trading process.
// Trading behavior itself lives in TradingConfig (yaml), not here.
type Config struct {
	Port           string
	ShutdownGraceS int

	// Exchange credentials (Binance USDT-M futures)
	APIKey    string
	APISecret string
	Testnet   bool

	// Execution
	DryRun               bool
	DryRunInitialBalance float64

	// Files
	DBPath        string
	TradingConfig string
	AssetCatalog  string

	// Auth
	JWTSecret string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the process still starts when .env is missing.
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		ShutdownGraceS:       getEnvInt("SHUTDOWN_GRACE_SECONDS", 5),
		APIKey:               os.Getenv("EXCHANGE_API_KEY"),
		APISecret:            os.Getenv("EXCHANGE_API_SECRET"),
		Testnet:              getEnv("EXCHANGE_TESTNET", "false") == "true",
		DryRun:               getEnv("DRY_RUN", "true") == "true",
		DryRunInitialBalance: getEnvFloat("DRY_RUN_INITIAL_BALANCE", 10000.0),
		DBPath:               getEnv("DB_PATH", "./data/perp.db"),
		TradingConfig:        getEnv("TRADING_CONFIG", "./config/trading.yaml"),
		AssetCatalog:         getEnv("ASSET_CATALOG", "./config/assets.yaml"),
		JWTSecret:            getEnv("JWT_SECRET", "dev-secret"),
	}

	// An encrypted secret at rest takes precedence over the plaintext env var.
	if enc := os.Getenv("EXCHANGE_API_SECRET_ENC"); enc != "" {
		secret, err := decryptSecret(enc)
		if err != nil {
			return nil, fmt.Errorf("decrypt exchange secret: %w", err)
		}
		cfg.APISecret = secret
	}

	return cfg, nil
}

// decryptSecret opens an AES-GCM sealed secret using MASTER_KEY (base64, 32 bytes).
func decryptSecret(ciphertext string) (string, error) {
	keyB64 := os.Getenv("MASTER_KEY")
	if keyB64 == "" {
		return "", fmt.Errorf("EXCHANGE_API_SECRET_ENC set but MASTER_KEY missing")
	}
	key, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return "", fmt.Errorf("decode MASTER_KEY: %w", err)
	}
	enc, err := crypto.NewEncryptor(key)
	if err != nil {
		return "", err
	}
	return enc.Decrypt(ciphertext)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
