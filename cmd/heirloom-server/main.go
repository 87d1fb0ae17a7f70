package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ruteri/heirloom/api/escalationhandler"
	"github.com/ruteri/heirloom/api/sharehandler"
	"github.com/ruteri/heirloom/cmd/flags"
	"github.com/ruteri/heirloom/common"
	"github.com/ruteri/heirloom/escalation"
	"github.com/ruteri/heirloom/escrow"
	"github.com/ruteri/heirloom/httpserver"
	"github.com/ruteri/heirloom/interfaces"
	"github.com/ruteri/heirloom/messaging"
	"github.com/ruteri/heirloom/metrics"
	"github.com/ruteri/heirloom/storage"
	"github.com/urfave/cli/v2"
)

var (
	stateStorageFlag = &cli.StringSliceFlag{
		Name:    "state-storage",
		Value:   cli.NewStringSlice("file://./data/state"),
		Usage:   "storage URIs for escalation state and retained shares (memory://, file://, s3://, ipfs://, vault://)",
		EnvVars: []string{"HEIRLOOM_STATE_STORAGE"},
	}
	escrowStorageFlag = &cli.StringSliceFlag{
		Name:    "escrow-storage",
		Value:   cli.NewStringSlice("file://./data/escrow"),
		Usage:   "storage URIs for obfuscated escrow shares; keep apart from state storage",
		EnvVars: []string{"HEIRLOOM_ESCROW_STORAGE"},
	}
	stageFlag = &cli.StringSliceFlag{
		Name:    "stage",
		Value:   cli.NewStringSlice("email:3:3", "phone:2:2"),
		Usage:   "verification stage as channel:max_attempts:interval_days, in order",
		EnvVars: []string{"HEIRLOOM_STAGES"},
	}
	schedulerIntervalFlag = &cli.DurationFlag{
		Name:    "scheduler-interval",
		Value:   escalation.DefaultSchedulerInterval,
		Usage:   "time between escalation scheduler runs",
		EnvVars: []string{"HEIRLOOM_SCHEDULER_INTERVAL"},
	}
	entityTimeoutFlag = &cli.DurationFlag{
		Name:  "entity-timeout",
		Value: escalation.DefaultEntityTimeout,
		Usage: "upper bound on store and messaging calls for one escalation",
	}
	emailWebhookFlag = &cli.StringFlag{
		Name:    "email-webhook",
		Usage:   "URL receiving email verification messages; messages are only logged if unset",
		EnvVars: []string{"HEIRLOOM_EMAIL_WEBHOOK"},
	}
	phoneWebhookFlag = &cli.StringFlag{
		Name:    "phone-webhook",
		Usage:   "URL receiving phone verification messages; messages are only logged if unset",
		EnvVars: []string{"HEIRLOOM_PHONE_WEBHOOK"},
	}
	webhookHeaderFlag = &cli.StringSliceFlag{
		Name:  "webhook-header",
		Usage: "header added to webhook requests, as Name=value",
	}
	mxResolverFlag = &cli.StringFlag{
		Name:    "mx-resolver",
		Usage:   "DNS resolver (host:port) used to check that owner email domains accept mail; disabled if empty",
		EnvVars: []string{"HEIRLOOM_MX_RESOLVER"},
	}
	webhookTimeoutFlag = &cli.DurationFlag{
		Name:  "webhook-timeout",
		Value: messaging.DefaultWebhookTimeout,
		Usage: "timeout for a single webhook request",
	}
)

func main() {
	app := &cli.App{
		Name:  "heirloom-server",
		Usage: "Serve the heirloom API and run the escalation scheduler",
		Flags: append([]cli.Flag{
			flags.ListenAddrFlag,
			flags.LogServiceFlagFn("heirloom-server"),
			stateStorageFlag,
			escrowStorageFlag,
			stageFlag,
			schedulerIntervalFlag,
			entityTimeoutFlag,
			emailWebhookFlag,
			phoneWebhookFlag,
			webhookHeaderFlag,
			webhookTimeoutFlag,
			mxResolverFlag,
		}, flags.CommonFlags...),
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	policy, err := flags.ParsePolicy(cCtx.StringSlice(stageFlag.Name))
	if err != nil {
		logger.Error("Invalid escalation policy", "err", err)
		return err
	}
	logger.Info("Escalation policy loaded",
		slog.Int("stages", len(policy.Stages)),
		slog.Duration("window", policy.Window()))

	storageFactory := storage.NewStorageBackendFactory(logger)
	stateBackend, err := storageFactory.BackendFromURIs(cCtx.StringSlice(stateStorageFlag.Name))
	if err != nil {
		logger.Error("Failed to create state storage", "err", err)
		return err
	}
	escrowBackend, err := storageFactory.BackendFromURIs(cCtx.StringSlice(escrowStorageFlag.Name))
	if err != nil {
		logger.Error("Failed to create escrow storage", "err", err)
		return err
	}
	if stateBackend.LocationURI() == escrowBackend.LocationURI() {
		return errors.New("state and escrow storage must not be the same location")
	}

	messenger, err := setupMessenger(cCtx, logger)
	if err != nil {
		return err
	}

	metricsSrv, err := metrics.New(common.PackageName, cCtx.String(flags.MetricsAddrFlag.Name))
	if err != nil {
		logger.Error("Failed to create metrics server", "err", err)
		return err
	}
	recorder := metricsSrv.Recorder()

	clk := clock.New()
	repo := escalation.NewStoreRepository(stateBackend, logger)
	machine, err := escalation.NewMachine(policy, repo, messenger, clk, logger, recorder)
	if err != nil {
		return err
	}

	escalations := escalation.NewService(machine, repo, logger)
	if resolver := cCtx.String(mxResolverFlag.Name); resolver != "" {
		escalations.WithContactChecker(messaging.NewMXChecker(resolver, 5*time.Second, logger))
	}

	shares := storage.NewShareStore(stateBackend, logger)
	escrowService := escrow.NewService(shares, escrowBackend, escalations, logger, recorder)

	server := httpserver.New(
		flags.ConfigureServer(cCtx, logger, cCtx.String(flags.ListenAddrFlag.Name)),
		metricsSrv,
		escalationhandler.NewHandler(escalations, escrowService, logger),
		sharehandler.NewHandler(shares, logger),
	)

	scheduler := escalation.NewScheduler(machine, repo, clk, escalation.SchedulerConfig{
		Interval:      cCtx.Duration(schedulerIntervalFlag.Name),
		EntityTimeout: cCtx.Duration(entityTimeoutFlag.Name),
	}, logger, recorder)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	schedulerDone := make(chan error, 1)
	go func() {
		schedulerDone <- scheduler.Run(ctx)
	}()

	logger.Info("Starting server",
		slog.String("state_storage", stateBackend.LocationURI()),
		slog.String("escrow_storage", escrowBackend.LocationURI()))
	server.RunInBackground()

	<-ctx.Done()
	logger.Info("Shutdown signal received")

	select {
	case err := <-schedulerDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Scheduler stopped with error", "err", err)
		}
	case <-time.After(30 * time.Second):
		logger.Warn("Scheduler did not stop in time")
	}

	server.Shutdown()
	logger.Info("Server shutdown complete")
	return nil
}

func setupMessenger(cCtx *cli.Context, logger *slog.Logger) (interfaces.Messenger, error) {
	headers, err := flags.ParseHeaders(cCtx.StringSlice(webhookHeaderFlag.Name))
	if err != nil {
		return nil, err
	}
	timeout := cCtx.Duration(webhookTimeoutFlag.Name)
	if timeout <= 0 {
		return nil, fmt.Errorf("webhook timeout must be positive")
	}

	router := messaging.NewRouter(messaging.NewLogMessenger(logger))
	for channel, url := range map[interfaces.Channel]string{
		interfaces.ChannelEmail: cCtx.String(emailWebhookFlag.Name),
		interfaces.ChannelPhone: cCtx.String(phoneWebhookFlag.Name),
	} {
		if url == "" {
			logger.Warn("No webhook configured, messages will only be logged", slog.String("channel", string(channel)))
			continue
		}
		router.Handle(channel, messaging.NewWebhookMessenger(url, headers, timeout, logger))
	}

	return router, nil
}
