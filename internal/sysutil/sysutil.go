// Package sysutil holds process bootstrap helpers for the server binary:
// global logger setup, listen address resolution, and build version lookup.
package sysutil

import (
	"io"
	"net"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetLogLevel configures the global zerolog level from a case-insensitive
// name. Unknown names fall back to info.
func SetLogLevel(lvl string) {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "fatal":
		zerolog.SetGlobalLevel(zerolog.FatalLevel)
	case "panic":
		zerolog.SetGlobalLevel(zerolog.PanicLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// InitLogger points the global logger at w (stderr when nil) with UTC
// timestamps and the given level. Pretty selects a console writer for local
// development; production keeps one JSON object per line.
func InitLogger(level string, pretty bool, w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }
	SetLogLevel(level)

	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Str("service", "coaching-api").Logger()
}

// FirstNonEmpty returns the first value that is not blank, or "".
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// ListenAddr turns a PORT value into a listen address. Bare ports bind all
// interfaces; values that already carry a host are returned as is.
func ListenAddr(port string) string {
	port = strings.TrimSpace(port)
	if port == "" {
		return ":8080"
	}
	if _, _, err := net.SplitHostPort(port); err == nil {
		return port
	}
	return ":" + strings.TrimPrefix(port, ":")
}

// Version resolves the build version: the explicit value first (set via
// -ldflags), then APP_VERSION, then the module version recorded by the Go
// toolchain, then "dev".
func Version(explicit string) string {
	var mod string
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "(devel)" {
		mod = bi.Main.Version
	}
	return FirstNonEmpty(explicit, os.Getenv("APP_VERSION"), mod, "dev")
}
