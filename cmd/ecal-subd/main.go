// Package main implements the entry point for ecal-subd, a standalone
// process hosting one or more eCAL subscribers: one per topic named on
// the command line, each receiving over every layer its configuration
// enables and announcing itself on the registration bus.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ecal-sub/ecal/config"
	"github.com/ecal-sub/ecal/layer"
	"github.com/ecal-sub/ecal/layer/shm"
	"github.com/ecal-sub/ecal/layer/tcp"
	"github.com/ecal-sub/ecal/layer/udp"
	"github.com/ecal-sub/ecal/metric"
	"github.com/ecal-sub/ecal/natsclient"
	"github.com/ecal-sub/ecal/registration"
	"github.com/ecal-sub/ecal/subscriber"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "ecal-subd"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("ecal-subd failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, logger, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	cfg, err := initializeConfiguration(cliCfg)
	if err != nil {
		return err
	}

	if cliCfg.Validate {
		slog.Info("configuration is valid")
		return nil
	}

	ctx := context.Background()
	infra, err := setupInfrastructure(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer infra.close(ctx)

	subs, sources, err := buildSubscribers(cliCfg, cfg, infra, logger)
	if err != nil {
		return err
	}

	return runWithSignalHandling(ctx, subs, sources, infra.natsClient, cliCfg)
}

// initializeCLI parses flags and sets up logging.
func initializeCLI() (*CLIConfig, *slog.Logger, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, nil, true, nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil, nil, true, nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("starting ecal-subd",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath,
		"topics", cliCfg.Topics)

	return cliCfg, logger, false, nil
}

// initializeConfiguration loads and validates configuration.
func initializeConfiguration(cliCfg *CLIConfig) (*config.Config, error) {
	loader := config.NewLoader()
	loader.AddLayer(cliCfg.ConfigPath)
	loader.EnableValidation(true)

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// infrastructure bundles the process-wide dependencies every subscriber
// shares: the registration bus connection, its request/reply adapters,
// and the metrics registry and HTTP endpoint.
type infrastructure struct {
	natsClient      *natsclient.Client
	metricsRegistry *metric.MetricsRegistry
	metricsServer   *metric.Server
	sink            *registration.RegistrationSink
}

func (i *infrastructure) close(ctx context.Context) {
	if i.metricsServer != nil {
		if err := i.metricsServer.Stop(); err != nil {
			slog.Warn("metrics server stop failed", "error", err)
		}
	}
	if i.natsClient != nil {
		if err := i.natsClient.Close(ctx); err != nil {
			slog.Warn("nats client close failed", "error", err)
		}
	}
}

// setupInfrastructure connects the registration bus (if enabled) and
// starts the metrics HTTP endpoint (if enabled).
func setupInfrastructure(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*infrastructure, error) {
	infra := &infrastructure{
		metricsRegistry: metric.NewMetricsRegistry(),
	}

	if cfg.Metrics.Enabled {
		port := parsePort(cfg.Metrics.ListenAddr, 9090)
		infra.metricsServer = metric.NewServer(port, "/metrics", infra.metricsRegistry, cfg.Security)
		if err := infra.metricsServer.Start(); err != nil {
			return nil, fmt.Errorf("start metrics server: %w", err)
		}
		slog.Info("metrics endpoint listening", "address", infra.metricsServer.Address())
	}

	if cfg.RegistrationBus.Enabled {
		natsClient, err := connectRegistrationBus(ctx, cfg)
		if err != nil {
			return nil, err
		}
		infra.natsClient = natsClient
		infra.sink = registration.NewSink(natsClient, registration.SinkDeps{
			Logger:  logger,
			Subject: registration.SnapshotSubject,
		})
	} else {
		slog.Warn("registration bus disabled: subscribers will never learn of publishers")
	}

	return infra, nil
}

// connectRegistrationBus dials the first configured registration-bus URL
// and waits for the connection to settle before returning.
func connectRegistrationBus(ctx context.Context, cfg *config.Config) (*natsclient.Client, error) {
	bus := cfg.RegistrationBus
	opts := []natsclient.ClientOption{
		natsclient.WithMaxReconnects(bus.MaxReconnects),
		natsclient.WithName(appName),
	}
	if bus.ReconnectWait > 0 {
		opts = append(opts, natsclient.WithReconnectWait(bus.ReconnectWait))
	}
	if bus.Username != "" {
		opts = append(opts, natsclient.WithCredentials(bus.Username, bus.Password))
	} else if bus.Token != "" {
		opts = append(opts, natsclient.WithToken(bus.Token))
	}

	url := "nats://localhost:4222"
	if len(bus.URLs) > 0 {
		url = bus.URLs[0]
	}

	slog.Info("connecting to registration bus", "url", url)
	natsClient, err := natsclient.NewClient(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("create registration bus client: %w", err)
	}
	if err := natsClient.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to registration bus: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := natsClient.WaitForConnection(connCtx); err != nil {
		return nil, fmt.Errorf("registration bus connection timeout: %w", err)
	}

	return natsClient, nil
}

// buildSubscribers constructs one Subscriber and, when the registration
// bus is connected, one RegistrationSource per topic named on the
// command line. Each topic gets its own set of layer binders: a Binder
// is bound to exactly one subscription key, so binders cannot be shared
// across topics.
func buildSubscribers(
	cliCfg *CLIConfig,
	cfg *config.Config,
	infra *infrastructure,
	logger *slog.Logger,
) ([]*subscriber.Subscriber, []*registration.RegistrationSource, error) {
	layerEnabled := map[layer.Kind]bool{
		layer.UDP: cfg.Layers.UDPEnable,
		layer.SHM: cfg.Layers.SHMEnable,
		layer.TCP: cfg.Layers.TCPEnable,
	}

	subs := make([]*subscriber.Subscriber, 0, len(cliCfg.Topics))
	sources := make([]*registration.RegistrationSource, 0, len(cliCfg.Topics))

	for _, topicName := range cliCfg.Topics {
		sub, err := subscriber.New(subscriber.Deps{
			TopicName:              topicName,
			HostGroupName:          cliCfg.HostGroupName,
			UnitName:               cliCfg.UnitName,
			LayerEnabled:           layerEnabled,
			Binders:                buildBinders(topicName, cfg, infra.metricsRegistry, logger),
			DropOutOfOrderMessages: cfg.DropOutOfOrderMessages,
			ShareTopicType:         cfg.ShareTopicType,
			ShareTopicDescription:  cfg.ShareTopicDescription,
			Registration:           sinkOrNil(infra.sink),
			Logger:                 logger,
			MetricsRegistry:        infra.metricsRegistry,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("build subscriber for topic %s: %w", topicName, err)
		}
		if err := sub.Initialize(); err != nil {
			return nil, nil, fmt.Errorf("initialize subscriber for topic %s: %w", topicName, err)
		}
		subs = append(subs, sub)

		if infra.natsClient != nil {
			sources = append(sources, registration.NewSource(sub, registration.SourceDeps{
				Logger:  logger,
				Subject: registration.PublicationSubjectFor(topicName),
				Workers: 4,
				Queue:   256,
			}))
		}
	}

	return subs, sources, nil
}

// sinkOrNil returns nil through the subscriber.Sink interface when sink
// is nil, rather than a non-nil interface wrapping a nil pointer.
func sinkOrNil(sink *registration.RegistrationSink) subscriber.Sink {
	if sink == nil {
		return nil
	}
	return sink
}

// buildBinders constructs a fresh layer.Binder per enabled layer for one
// topic. Binders are not started here; Subscriber.Start does that.
func buildBinders(topicName string, cfg *config.Config, registry *metric.MetricsRegistry, logger *slog.Logger) map[layer.Kind]layer.Binder {
	binders := make(map[layer.Kind]layer.Binder)
	if cfg.Layers.UDPEnable {
		binders[layer.UDP] = udp.New(udp.Deps{Logger: logger, MetricsRegistry: registry, Name: "layer-udp-" + topicName})
	}
	if cfg.Layers.SHMEnable {
		binders[layer.SHM] = shm.New(shm.Deps{Logger: logger, MetricsRegistry: registry, Name: "layer-shm-" + topicName})
	}
	if cfg.Layers.TCPEnable {
		binders[layer.TCP] = tcp.New(tcp.Deps{Logger: logger, MetricsRegistry: registry, Name: "layer-tcp-" + topicName})
	}
	return binders
}

// runWithSignalHandling starts every subscriber and registration source
// concurrently, waits for SIGINT/SIGTERM, then tears everything down.
func runWithSignalHandling(
	ctx context.Context,
	subs []*subscriber.Subscriber,
	sources []*registration.RegistrationSource,
	bus *natsclient.Client,
	cliCfg *CLIConfig,
) error {
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	startGroup, startCtx := errgroup.WithContext(signalCtx)
	for _, sub := range subs {
		sub := sub
		startGroup.Go(func() error { return sub.Start(startCtx) })
	}
	if err := startGroup.Wait(); err != nil {
		return fmt.Errorf("start subscribers: %w", err)
	}

	for _, source := range sources {
		if err := source.Start(signalCtx, bus); err != nil {
			return fmt.Errorf("start registration source: %w", err)
		}
	}

	var healthzServer *http.Server
	if cliCfg.HealthPort > 0 {
		healthzServer = startHealthz(signalCtx, fmt.Sprintf(":%d", cliCfg.HealthPort), subs)
	}

	slog.Info("ecal-subd ready", "subscribers", len(subs))

	<-signalCtx.Done()
	slog.Info("received shutdown signal")

	if healthzServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cliCfg.ShutdownTimeout)
		_ = healthzServer.Shutdown(shutdownCtx)
		cancel()
	}

	return shutdownAll(subs, sources, cliCfg.ShutdownTimeout)
}

func shutdownAll(subs []*subscriber.Subscriber, sources []*registration.RegistrationSource, timeout time.Duration) error {
	var firstErr error
	for _, source := range sources {
		if err := source.Stop(timeout); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("stop registration source: %w", err)
		}
	}
	for _, sub := range subs {
		if err := sub.Stop(timeout); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("stop subscriber: %w", err)
		}
	}
	slog.Info("ecal-subd shutdown complete")
	return firstErr
}

// parsePort extracts the numeric port from a "host:port" or ":port"
// listen address, falling back to fallback on any parse failure.
func parsePort(addr string, fallback int) int {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return fallback
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fallback
	}
	return port
}
