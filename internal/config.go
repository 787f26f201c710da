package internal

import (
	"strings"
	"time"
)

// Config is the engine's environment-driven configuration. The retry
// policy and staleness window are deliberately tunables rather than
// constants: deployments against slower stores need longer confirmation
// budgets.
type Config struct {
	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	LogLevel       string `env:"LOG_LEVEL,default=INFO"`

	// Room-creation visibility confirmation (bounded retry with backoff)
	ConfirmAttempts uint64        `env:"CONFIRM_ATTEMPTS,default=5"`
	ConfirmInterval time.Duration `env:"CONFIRM_INTERVAL,default=200ms"`

	// Typing states older than this are excluded from presence output
	TypingStaleness time.Duration `env:"TYPING_STALENESS,default=6s"`

	// Collections served by ordered watches; anything else falls back to
	// unordered subscription with client-side sorting
	OrderedCollections string `env:"ORDERED_COLLECTIONS,default=messages"`

	GCInterval time.Duration `env:"GC_INTERVAL,default=5m"`
}

func (c Config) OrderedCollectionList() []string {
	var out []string
	for _, name := range strings.Split(c.OrderedCollections, ",") {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}
