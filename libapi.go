package kafkaport

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	runtimepkg "github.com/drblury/kafkaport/internal/runtime"
	configpkg "github.com/drblury/kafkaport/internal/runtime/config"
	errspkg "github.com/drblury/kafkaport/internal/runtime/errors"
	handlerspkg "github.com/drblury/kafkaport/internal/runtime/handlers"
	kafkapkg "github.com/drblury/kafkaport/internal/runtime/kafka"
	loggingpkg "github.com/drblury/kafkaport/internal/runtime/logging"
	"github.com/drblury/kafkaport/internal/runtime/tracing"
	transportpkg "github.com/drblury/kafkaport/internal/runtime/transport"
)

type (
	Config                = configpkg.Config
	Settings              = configpkg.Settings
	Properties            = configpkg.Properties
	Variant               = configpkg.Variant
	FlushFailurePolicy    = configpkg.FlushFailurePolicy
	ConfigValidationError = errspkg.ConfigValidationError

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger
)

const (
	VariantAdmin    = configpkg.VariantAdmin
	VariantProducer = configpkg.VariantProducer

	FlushFailureAbort      = configpkg.FlushFailureAbort
	FlushFailureBestEffort = configpkg.FlushFailureBestEffort

	ExitOK      = runtimepkg.ExitOK
	ExitFailure = runtimepkg.ExitFailure
)

var (
	ErrUnknownCommand     = errspkg.ErrUnknownCommand
	ErrMalformedCommand   = errspkg.ErrMalformedCommand
	ErrInterrupted        = errspkg.ErrInterrupted
	ErrPropertiesRequired = errspkg.ErrPropertiesRequired
)

const shutdownTimeout = 5 * time.Second

// openHandlers connects to the cluster. Tests replace it to run without one.
var openHandlers = func(ctx context.Context, cfg *Config, logger ServiceLogger) (handlerspkg.Handlers, error) {
	saramaCfg, err := kafkapkg.NewSaramaConfig(cfg.Variant, cfg.Properties, logger)
	if err != nil {
		return nil, err
	}
	brokers := cfg.Properties.Brokers()

	switch cfg.Variant {
	case VariantAdmin:
		admin, err := kafkapkg.OpenAdmin(ctx, brokers, saramaCfg, cfg.ConnectTimeout, cfg.RequestTimeout, logger)
		if err != nil {
			return nil, err
		}
		h, err := handlerspkg.NewAdminHandlers(admin, logger)
		if err != nil {
			_ = admin.Close()
			return nil, err
		}
		return h, nil
	case VariantProducer:
		producer, err := kafkapkg.OpenProducer(ctx, brokers, saramaCfg, cfg.ConnectTimeout, logger)
		if err != nil {
			return nil, err
		}
		h, err := handlerspkg.NewProducerHandlers(producer, logger, cfg.FlushFailure)
		if err != nil {
			_ = producer.Close()
			return nil, err
		}
		return h, nil
	default:
		return nil, fmt.Errorf("variant: unsupported value %q", cfg.Variant)
	}
}

// ParseConfig reads the environment settings, the flags in args and the
// startup argument that follows them.
func ParseConfig(variant Variant, fs *flag.FlagSet, args []string) (*Config, error) {
	settings, err := configpkg.ParseEnv()
	if err != nil {
		return nil, err
	}

	var propertiesFile string
	fs.StringVar(&propertiesFile, "properties", "", "JSON file with Kafka properties, used instead of the startup argument")
	fs.StringVar(&settings.LogLevel, "log-level", settings.LogLevel, "Log level: debug, info, warn or error")
	fs.StringVar(&settings.LogFormat, "log-format", settings.LogFormat, "Log format: text or json")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var props Properties
	switch {
	case propertiesFile != "":
		props, err = configpkg.LoadPropertiesFile(propertiesFile)
	case fs.NArg() > 0:
		props, err = configpkg.DecodeStartupArg(fs.Arg(0))
	default:
		err = ErrPropertiesRequired
	}
	if err != nil {
		return nil, err
	}

	cfg := configpkg.New(variant, props, settings)
	if err := cfg.Validate(); err != nil {
		return nil, errspkg.NewConfigValidationError(err)
	}
	return cfg, nil
}

// Stdio are the streams of the port process. Out carries frames only.
type Stdio struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// Run connects to the cluster and serves commands until the port stops. It
// returns the process exit status.
func Run(ctx context.Context, cfg *Config, stdio Stdio) int {
	logger := loggingpkg.NewSlogServiceLogger(loggingpkg.NewHandlerLogger(stdio.Err, cfg.SlogLevel(), cfg.LogFormat))
	sarama.Logger = loggingpkg.NewSaramaLogger(logger)
	logger.Debug("Starting port", LogFields{"config": cfg.String()})

	shutdownTracing, err := tracing.Setup(ctx, tracing.Options{
		ServiceName: "kafka-" + string(cfg.Variant) + "-port",
		Variant:     string(cfg.Variant),
		Endpoint:    cfg.OTelEndpoint,
	})
	if err != nil {
		logger.Error("Failed to set up tracing", err, LogFields{"endpoint": cfg.OTelEndpoint})
		return ExitFailure
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Error("Failed to flush traces", err, nil)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := runtimepkg.NewCommandMetrics(registry)
	if err := metrics.Register(); err != nil {
		logger.Error("Failed to register metrics", err, nil)
		return ExitFailure
	}
	if cfg.MetricsAddr != "" {
		srv, err := runtimepkg.StartMetricsServer(cfg.MetricsAddr, registry, logger)
		if err != nil {
			logger.Error("Failed to start metrics server", err, LogFields{"address": cfg.MetricsAddr})
			return ExitFailure
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	h, err := openHandlers(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to open Kafka client", err, LogFields{"brokers": cfg.Properties.Brokers()})
		return ExitFailure
	}

	tr, err := transportpkg.NewPortTransport(stdio.In, stdio.Out, loggingpkg.NewWatermillAdapter(logger))
	if err != nil {
		_ = h.Close()
		logger.Error("Failed to open port transport", err, nil)
		return ExitFailure
	}
	defer func() { _ = tr.Close() }()

	port, err := runtimepkg.NewPort(cfg.Variant, h, tr, logger, runtimepkg.PortDependencies{Metrics: metrics})
	if err != nil {
		_ = h.Close()
		logger.Error("Failed to create port", err, nil)
		return ExitFailure
	}
	return port.Run(ctx)
}
