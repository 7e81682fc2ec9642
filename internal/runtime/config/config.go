package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/drblury/kafkaport/internal/runtime/tracing"
)

// Variant selects which capability the port exposes.
type Variant string

const (
	VariantAdmin    Variant = "admin"
	VariantProducer Variant = "producer"
)

// FlushFailurePolicy decides what the producer port does when the final flush
// on stop reports a delivery error.
type FlushFailurePolicy string

const (
	// FlushFailureAbort propagates the error and exits with a failure status.
	FlushFailureAbort FlushFailurePolicy = "abort"
	// FlushFailureBestEffort logs the error and exits cleanly.
	FlushFailureBestEffort FlushFailurePolicy = "best_effort"
)

// Settings are the port's own knobs, read from the environment. They never
// reach the Kafka client.
type Settings struct {
	LogLevel  string `env:"KAFKA_PORT_LOG_LEVEL" envDefault:"warn"`
	LogFormat string `env:"KAFKA_PORT_LOG_FORMAT" envDefault:"text"`

	// RequestTimeout bounds each administrative call. Zero waits forever.
	RequestTimeout time.Duration `env:"KAFKA_PORT_REQUEST_TIMEOUT" envDefault:"0s"`
	// ConnectTimeout bounds the retries while bootstrapping the cluster client.
	ConnectTimeout time.Duration `env:"KAFKA_PORT_CONNECT_TIMEOUT" envDefault:"30s"`

	FlushFailure FlushFailurePolicy `env:"KAFKA_PORT_FLUSH_FAILURE" envDefault:"abort"`

	// MetricsAddr exposes Prometheus metrics on /metrics when set.
	MetricsAddr string `env:"KAFKA_PORT_METRICS_ADDR"`
	// OTelEndpoint enables OTLP/HTTP trace export when set.
	OTelEndpoint string `env:"KAFKA_PORT_OTEL_ENDPOINT"`
}

// Config is everything the entrypoint needs to start a port.
type Config struct {
	Variant    Variant
	Properties Properties
	Settings
}

// New builds a Config with null-valued properties discarded.
func New(variant Variant, props Properties, settings Settings) *Config {
	return &Config{
		Variant:    variant,
		Properties: props.WithoutNulls(),
		Settings:   settings,
	}
}

// SlogLevel maps LogLevel onto slog. Unknown values fall back to warn.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelWarn
	}
	return level
}

func (c Config) String() string {
	// Create a copy to avoid modifying the original
	copy := c
	copy.Properties = c.Properties.Redacted()
	// Use a type alias to avoid infinite recursion when printing
	type configAlias Config
	return fmt.Sprintf("%+v", configAlias(copy))
}

// Validate checks that the configuration can start a port. All problems are
// reported at once.
func (c *Config) Validate() error {
	var errs []error

	errs = append(errs, c.validateVariant()...)
	errs = append(errs, c.validateProperties()...)
	errs = append(errs, c.validateSettings()...)

	return errors.Join(errs...)
}

func (c *Config) validateVariant() []error {
	switch c.Variant {
	case VariantAdmin, VariantProducer:
		return nil
	default:
		return []error{fmt.Errorf("variant: unsupported value %q", c.Variant)}
	}
}

func (c *Config) validateProperties() []error {
	if len(c.Properties) == 0 {
		return []error{errors.New("properties: bootstrap.servers is required")}
	}
	servers, ok := c.Properties.String(PropBootstrapServers)
	if !ok || strings.TrimSpace(servers) == "" {
		return []error{errors.New("properties: bootstrap.servers is required")}
	}
	return nil
}

func (c *Config) validateSettings() []error {
	var errs []error
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		errs = append(errs, fmt.Errorf("log: invalid level %q", c.LogLevel))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log: invalid format %q", c.LogFormat))
	}
	if c.RequestTimeout < 0 {
		errs = append(errs, errors.New("request timeout cannot be negative"))
	}
	if c.ConnectTimeout < 0 {
		errs = append(errs, errors.New("connect timeout cannot be negative"))
	}
	switch c.FlushFailure {
	case FlushFailureAbort, FlushFailureBestEffort:
	default:
		errs = append(errs, fmt.Errorf("flush failure: unsupported policy %q", c.FlushFailure))
	}
	if c.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(c.MetricsAddr); err != nil {
			errs = append(errs, fmt.Errorf("metrics: invalid address %q", c.MetricsAddr))
		}
	}
	if err := tracing.ValidateEndpoint(c.OTelEndpoint); err != nil {
		errs = append(errs, err)
	}
	return errs
}
