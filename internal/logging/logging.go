// Package logging configures the process-wide zerolog logger.
package logging

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global logger. Development gets human-readable
// console output; anything else gets JSON on stderr.
func Setup(env string) {
	level := zerolog.InfoLevel
	if lvl := os.Getenv("HALLWAY_LOG_LEVEL"); lvl != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(lvl)); err == nil {
			level = parsed
		}
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	switch strings.ToLower(env) {
	case "development", "dev", "":
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	default:
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}
