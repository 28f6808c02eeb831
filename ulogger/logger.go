// Package ulogger provides the node's logging facade: a small interface
// most packages depend on, backed by zerolog the way the rest of the
// indexer's ambient stack is backed by real ecosystem libraries rather
// than hand-rolled equivalents.
package ulogger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ordishs/gocore"
	"github.com/rs/zerolog"
)

const (
	colorRed = iota + 31
	colorGreen
	colorYellow
	colorBlue
)

// Logger is the interface every subsystem is handed at construction time.
// New("service") returns a child logger scoped to that service name, the
// way services/blockchain.New(ctx, logger.New("bchn"), ...) does upstream.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
	New(service string) Logger
}

type zLogger struct {
	zerolog.Logger
	service string
}

// New builds a top-level service logger. logLevel defaults to INFO.
func New(service string, logLevel ...string) Logger {
	if service == "" {
		service = "opnetd"
	}

	var z zLogger
	if gocore.Config().GetBool("PRETTY_LOGS", true) {
		z = prettyLogger(service)
	} else {
		z = zLogger{
			Logger: zerolog.New(os.Stdout).With().
				CallerWithSkipFrameCount(zerolog.CallerSkipFrameCount + 2).
				Timestamp().
				Logger(),
			service: service,
		}
	}

	level := "INFO"
	if len(logLevel) > 0 {
		level = logLevel[0]
	}
	z.Logger = z.Logger.Level(parseLevel(level))

	return &z
}

func (z *zLogger) New(service string) Logger {
	child := z.Logger.With().Str("service", service).Logger()
	return &zLogger{Logger: child, service: service}
}

func (z *zLogger) Debugf(format string, args ...interface{}) { z.Logger.Debug().Msgf(format, args...) }
func (z *zLogger) Infof(format string, args ...interface{})  { z.Logger.Info().Msgf(format, args...) }
func (z *zLogger) Warnf(format string, args ...interface{})  { z.Logger.Warn().Msgf(format, args...) }
func (z *zLogger) Errorf(format string, args ...interface{}) { z.Logger.Error().Msgf(format, args...) }
func (z *zLogger) Fatalf(format string, args ...interface{}) { z.Logger.Fatal().Msgf(format, args...) }

func parseLevel(level string) zerolog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	case "FATAL":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

func prettyLogger(service string) zLogger {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}

	output.FormatTimestamp = func(i interface{}) string {
		parsed, _ := time.Parse(time.RFC3339, i.(string))
		return parsed.Format("15:04:05")
	}

	output.FormatLevel = func(i interface{}) string {
		l := strings.ToUpper(fmt.Sprintf("%-5s", i))
		switch i {
		case "debug":
			l = colorize(l, colorBlue)
		case "info":
			l = colorize(l, colorGreen)
		case "warn", "error", "fatal":
			l = colorize(l, colorRed)
		}
		return fmt.Sprintf("| %s|", l)
	}

	output.FormatMessage = func(i interface{}) string {
		return fmt.Sprintf("| %-12s| %s", service, i)
	}

	output.FormatCaller = func(i interface{}) string {
		c, _ := i.(string)
		if c == "" {
			return c
		}
		if cwd, err := os.Getwd(); err == nil {
			if rel, err := filepath.Rel(cwd, c); err == nil {
				c = rel
			}
		}
		return c
	}

	return zLogger{
		Logger: zerolog.New(output).With().
			CallerWithSkipFrameCount(zerolog.CallerSkipFrameCount + 1).
			Timestamp().
			Logger(),
		service: service,
	}
}

func colorize(s string, c int) string {
	if os.Getenv("NO_COLOR") != "" {
		return s
	}
	return fmt.Sprintf("\x1b[%dm%s\x1b[0m", c, s)
}

// TestLogger returns a Logger suitable for unit tests: quiet, no color.
func TestLogger() Logger {
	z := zLogger{Logger: zerolog.Nop(), service: "test"}
	return &z
}
