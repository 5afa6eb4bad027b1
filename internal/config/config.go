package config

import (
	"encoding/hex"
	"fmt"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	// Core
	DatabaseURL string `env:"DATABASE_URL,required"`
	TokenKeyHex string `env:"TOKEN_KEY,required"` // 32 bytes, hex encoded

	// Database pool sizing
	DBMaxConns int32 `env:"DB_MAX_CONNS" envDefault:"20"`
	DBMinConns int32 `env:"DB_MIN_CONNS" envDefault:"4"`

	// Server
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":3000"`

	// Maintenance
	MaintenanceSecret string `env:"MAINTENANCE_SECRET,required"`

	// Payment: coins credited per one unit of fiat
	CoinRate int64 `env:"COIN_RATE" envDefault:"100"`

	// Telegram ops logging (disabled when token is empty)
	OpsBotToken      string `env:"OPS_BOT_TOKEN"`
	OpsChatID        int64  `env:"OPS_CHAT_ID"`
	OpsTopicSweep    int    `env:"OPS_TOPIC_SWEEP"`
	OpsTopicTopUp    int    `env:"OPS_TOPIC_TOPUP"`
	OpsTopicTransfer int    `env:"OPS_TOPIC_TRANSFER"`
	OpsTopicError    int    `env:"OPS_TOPIC_ERROR"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// TokenKey decodes the hex token key and validates its length.
func (c *Config) TokenKey() ([]byte, error) {
	key, err := hex.DecodeString(c.TokenKeyHex)
	if err != nil {
		return nil, fmt.Errorf("decode token key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("token key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}
