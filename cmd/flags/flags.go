package flags

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/heirloom/api"
	"github.com/ruteri/heirloom/common"
	"github.com/ruteri/heirloom/escalation"
	"github.com/ruteri/heirloom/interfaces"
	"github.com/urfave/cli/v2"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String("log-service")

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, listenAddr string) *api.HTTPServerConfig {
	metricsAddr := cCtx.String(MetricsAddrFlag.Name)
	enablePprof := cCtx.Bool(PprofFlag.Name)
	drainDuration := time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second

	return &api.HTTPServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              metricsAddr,
		Log:                      logger,
		EnablePprof:              enablePprof,
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: api.DefaultGracefulShutdownDuration,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

// ParsePolicy builds an escalation policy from stage specs of the form
// "channel:max_attempts:interval_days", e.g. "email:3:3".
func ParsePolicy(specs []string) (escalation.Policy, error) {
	var policy escalation.Policy
	for _, raw := range specs {
		parts := strings.Split(strings.TrimSpace(raw), ":")
		if len(parts) != 3 {
			return escalation.Policy{}, fmt.Errorf("invalid stage %q: expected channel:max_attempts:interval_days", raw)
		}

		attempts, err := strconv.Atoi(parts[1])
		if err != nil {
			return escalation.Policy{}, fmt.Errorf("invalid stage %q: %w", raw, err)
		}
		days, err := strconv.Atoi(parts[2])
		if err != nil {
			return escalation.Policy{}, fmt.Errorf("invalid stage %q: %w", raw, err)
		}

		policy.Stages = append(policy.Stages, escalation.StageConfig{
			Channel:      interfaces.Channel(parts[0]),
			MaxAttempts:  attempts,
			IntervalDays: days,
		})
	}

	if err := policy.Validate(); err != nil {
		return escalation.Policy{}, err
	}
	return policy, nil
}

// ParseHeaders turns "Name=value" pairs into a header map.
func ParseHeaders(pairs []string) (map[string]string, error) {
	headers := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid header %q: expected Name=value", pair)
		}
		headers[strings.TrimSpace(name)] = value
	}
	return headers, nil
}

var ListenAddrFlag = &cli.StringFlag{
	Name:    "listen-addr",
	Value:   "127.0.0.1:8080",
	Usage:   "address to listen on for API",
	EnvVars: []string{"HEIRLOOM_LISTEN_ADDR"},
}

var ServerURLFlag = &cli.StringFlag{
	Name:    "server",
	Value:   "http://127.0.0.1:8080",
	Usage:   "base URL of the heirloom API",
	EnvVars: []string{"HEIRLOOM_SERVER"},
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}

var LogServiceFlagFn = func(service string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "log-service",
		Value: service,
		Usage: "add 'service' tag to logs",
	}
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:    "metrics-addr",
	Value:   "127.0.0.1:8090",
	Usage:   "address to listen on for Prometheus metrics",
	EnvVars: []string{"HEIRLOOM_METRICS_ADDR"},
}

var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}
