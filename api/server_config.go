package api

import (
	"log/slog"
	"time"
)

const (
	DefaultReadHeaderTimeout        = 5 * time.Second
	DefaultIdleTimeout              = 2 * time.Minute
	DefaultGracefulShutdownDuration = 30 * time.Second
)

// HTTPServerConfig configures the heirloom API listener and its optional
// metrics listener.
type HTTPServerConfig struct {
	ListenAddr string
	// MetricsAddr empty disables the metrics listener.
	MetricsAddr string
	EnablePprof bool

	Log *slog.Logger

	// DrainDuration is how long /readyz reports 503 before shutdown starts.
	DrainDuration time.Duration
	// GracefulShutdownDuration bounds in-flight requests during shutdown.
	GracefulShutdownDuration time.Duration

	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
}

// WithDefaults returns a copy with unset timeouts and logger filled in. Read
// and write timeouts stay unbounded when unset.
func (c HTTPServerConfig) WithDefaults() *HTTPServerConfig {
	if c.Log == nil {
		c.Log = slog.Default()
	}
	if c.ReadHeaderTimeout <= 0 {
		c.ReadHeaderTimeout = DefaultReadHeaderTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.GracefulShutdownDuration <= 0 {
		c.GracefulShutdownDuration = DefaultGracefulShutdownDuration
	}
	return &c
}
