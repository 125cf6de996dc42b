// Package logging configures the global zerolog logger.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gyaneshwarpardhi/mqworker/internal/config"
)

// Setup points log.Logger at stdout, as JSON or a console writer, at the
// configured level. Unknown levels fall back to info.
func Setup(conf config.LogConf, component string) zerolog.Logger {
	return SetupWriter(os.Stdout, conf, component)
}

// SetupWriter is Setup with an explicit destination.
func SetupWriter(out io.Writer, conf config.LogConf, component string) zerolog.Logger {
	writer := out
	if conf.Format == "console" {
		writer = zerolog.ConsoleWriter{Out: out}
	}
	lvl, err := zerolog.ParseLevel(conf.Level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	l := zerolog.New(writer).
		With().
		Timestamp().
		Str("component", component).
		Logger().
		Level(lvl)
	log.Logger = l
	return l
}
