package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// E2E_BADGER_DIR pins the store location; empty means a temp dir per run
	BadgerDir string `envconfig:"E2E_BADGER_DIR"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
	// E2E_TYPING_STALENESS shrinks the presence window so expiry is testable
	TypingStaleness string `envconfig:"E2E_TYPING_STALENESS" default:"300ms"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
