// Package logging builds the zap logger shared by the server, the PERSCOM
// client and the middleware chain.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a logger suited to the given environment. Production-like
// environments get JSON output with ISO8601 timestamps and caller info;
// "dev" and "local" get the human readable console encoder. LOG_LEVEL, when
// set, overrides the level argument.
func New(env, level string) (*zap.Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(env) {
	case "dev", "local", "development":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.EncoderConfig.CallerKey = "caller"

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level = v
	}
	if level != "" {
		if lvl, err := zapcore.ParseLevel(level); err == nil {
			cfg.Level.SetLevel(lvl)
		}
	}
	return cfg.Build()
}

// Must is like New but falls back to a no-op logger instead of failing, so a
// broken LOG_LEVEL never prevents the server from starting.
func Must(env, level string) *zap.Logger {
	l, err := New(env, level)
	if err != nil {
		return zap.NewNop()
	}
	return l
}
