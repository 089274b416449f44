// Package sysutil holds small process-level helpers used by the entry
// points: global log level wiring and environment value interpretation.
package sysutil

import (
	"strings"

	"github.com/rs/zerolog"
)

// SetLogLevel sets the global zerolog level from a config string. "warning"
// is accepted as an alias for "warn". Empty or unknown values fall back to
// info so a typo never silences the logs.
func SetLogLevel(lvl string) {
	s := strings.ToLower(strings.TrimSpace(lvl))
	if s == "warning" {
		s = "warn"
	}
	parsed, err := zerolog.ParseLevel(s)
	if err != nil || s == "" {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}

// IsTruthy reports whether an environment value means "enabled". It accepts
// the usual spellings 1, true, yes, y, and on, case-insensitively; anything
// else, including empty, is false.
func IsTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}
