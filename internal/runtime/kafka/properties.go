package kafka

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/IBM/sarama"
	watermillkafka "github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"

	"github.com/drblury/kafkaport/internal/runtime/config"
	"github.com/drblury/kafkaport/internal/runtime/logging"
)

const defaultClientID = "kafkaport"

var defaultVersion = sarama.V2_6_0_0

// Serializer settings of the JVM client. Records reach the port as raw bytes,
// so these carry no meaning here.
var ignoredProperties = map[string]struct{}{
	config.PropBootstrapServers: {},
	"key.serializer":            {},
	"value.serializer":          {},
	"key.deserializer":          {},
	"value.deserializer":        {},
}

var jaasField = regexp.MustCompile(`(username|password)\s*=\s*"([^"]*)"`)

type propertyApplier func(cfg *sarama.Config, props config.Properties, key string) error

var propertyAppliers = map[string]propertyApplier{
	config.PropClientID:          applyClientID,
	config.PropKafkaVersion:      applyKafkaVersion,
	config.PropAcks:              applyAcks,
	config.PropCompressionType:   applyCompression,
	config.PropLingerMs:          applyLinger,
	config.PropBatchSize:         applyBatchSize,
	config.PropRetries:           applyRetries,
	config.PropRetryBackoffMs:    applyRetryBackoff,
	config.PropRequestTimeoutMs:  applyRequestTimeout,
	config.PropMaxRequestSize:    applyMaxRequestSize,
	config.PropEnableIdempotence: applyIdempotence,
	config.PropMetadataMaxAgeMs:  applyMetadataMaxAge,
	config.PropSecurityProtocol:  applySecurityProtocol,
	config.PropSASLMechanism:     applySASLMechanism,
	config.PropSASLJAASConfig:    applySASLJAAS,
	config.PropSASLUsername:      applySASLUser,
	config.PropSASLPassword:      applySASLPassword,
}

// NewSaramaConfig translates the startup properties into a sarama
// configuration for the given variant. Keys sarama has no equivalent for are
// logged and skipped.
func NewSaramaConfig(variant config.Variant, props config.Properties, log logging.ServiceLogger) (*sarama.Config, error) {
	var cfg *sarama.Config
	switch variant {
	case config.VariantProducer:
		cfg = watermillkafka.DefaultSaramaSyncPublisherConfig()
		cfg.Producer.Return.Errors = true
		cfg.Producer.Partitioner = newRecordPartitioner
	case config.VariantAdmin:
		cfg = sarama.NewConfig()
	default:
		return nil, fmt.Errorf("kafka config: unsupported variant %q", variant)
	}
	cfg.ClientID = defaultClientID
	cfg.Version = defaultVersion

	var errs []error
	for key := range props {
		if _, ok := ignoredProperties[key]; ok {
			continue
		}
		apply, ok := propertyAppliers[key]
		if !ok {
			if log != nil {
				log.Info("Ignoring unsupported Kafka property", logging.LogFields{"property": key})
			}
			continue
		}
		if err := apply(cfg, props, key); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("kafka config: %w", err)
	}

	// The idempotent producer has hard requirements sarama only validates. An
	// explicit acks other than all is left for Validate to reject.
	if cfg.Producer.Idempotent {
		cfg.Net.MaxOpenRequests = 1
		if _, ok := props[config.PropAcks]; !ok {
			cfg.Producer.RequiredAcks = sarama.WaitForAll
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("kafka config: %w", err)
	}
	return cfg, nil
}

func applyClientID(cfg *sarama.Config, props config.Properties, key string) error {
	v, _ := props.String(key)
	if v = strings.TrimSpace(v); v != "" {
		cfg.ClientID = v
	}
	return nil
}

func applyKafkaVersion(cfg *sarama.Config, props config.Properties, key string) error {
	v, _ := props.String(key)
	version, err := sarama.ParseKafkaVersion(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	cfg.Version = version
	return nil
}

func applyAcks(cfg *sarama.Config, props config.Properties, key string) error {
	v, _ := props.String(key)
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "all", "-1":
		cfg.Producer.RequiredAcks = sarama.WaitForAll
	case "1":
		cfg.Producer.RequiredAcks = sarama.WaitForLocal
	case "0":
		cfg.Producer.RequiredAcks = sarama.NoResponse
	default:
		return fmt.Errorf("%s: unsupported value %q", key, v)
	}
	return nil
}

func applyCompression(cfg *sarama.Config, props config.Properties, key string) error {
	v, _ := props.String(key)
	var codec sarama.CompressionCodec
	if err := codec.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(v)))); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	cfg.Producer.Compression = codec
	return nil
}

func applyLinger(cfg *sarama.Config, props config.Properties, key string) error {
	d, _, err := props.Millis(key)
	if err != nil {
		return err
	}
	cfg.Producer.Flush.Frequency = d
	return nil
}

func applyBatchSize(cfg *sarama.Config, props config.Properties, key string) error {
	n, _, err := props.Int(key)
	if err != nil {
		return err
	}
	if n < 0 {
		return fmt.Errorf("%s: cannot be negative", key)
	}
	cfg.Producer.Flush.Bytes = int(n)
	return nil
}

func applyRetries(cfg *sarama.Config, props config.Properties, key string) error {
	n, _, err := props.Int(key)
	if err != nil {
		return err
	}
	if n < 0 {
		return fmt.Errorf("%s: cannot be negative", key)
	}
	// The JVM client defaults retries to MaxInt32; sarama retries in memory, so
	// the count is capped.
	const maxRetries = 1000
	cfg.Producer.Retry.Max = int(min(n, maxRetries))
	cfg.Admin.Retry.Max = int(min(n, maxRetries))
	return nil
}

func applyRetryBackoff(cfg *sarama.Config, props config.Properties, key string) error {
	d, _, err := props.Millis(key)
	if err != nil {
		return err
	}
	cfg.Producer.Retry.Backoff = d
	cfg.Admin.Retry.Backoff = d
	cfg.Metadata.Retry.Backoff = d
	return nil
}

func applyRequestTimeout(cfg *sarama.Config, props config.Properties, key string) error {
	d, _, err := props.Millis(key)
	if err != nil {
		return err
	}
	if d == 0 {
		return fmt.Errorf("%s: must be positive", key)
	}
	cfg.Net.ReadTimeout = d
	cfg.Admin.Timeout = d
	cfg.Producer.Timeout = d
	return nil
}

func applyMaxRequestSize(cfg *sarama.Config, props config.Properties, key string) error {
	n, _, err := props.Int(key)
	if err != nil {
		return err
	}
	if n <= 0 {
		return fmt.Errorf("%s: must be positive", key)
	}
	cfg.Producer.MaxMessageBytes = int(n)
	return nil
}

func applyIdempotence(cfg *sarama.Config, props config.Properties, key string) error {
	b, _, err := props.Bool(key)
	if err != nil {
		return err
	}
	cfg.Producer.Idempotent = b
	return nil
}

func applyMetadataMaxAge(cfg *sarama.Config, props config.Properties, key string) error {
	d, _, err := props.Millis(key)
	if err != nil {
		return err
	}
	cfg.Metadata.RefreshFrequency = d
	return nil
}

func applySecurityProtocol(cfg *sarama.Config, props config.Properties, key string) error {
	v, _ := props.String(key)
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "PLAINTEXT":
		cfg.Net.TLS.Enable = false
		cfg.Net.SASL.Enable = false
	case "SSL":
		cfg.Net.TLS.Enable = true
	case "SASL_PLAINTEXT":
		cfg.Net.SASL.Enable = true
	case "SASL_SSL":
		cfg.Net.TLS.Enable = true
		cfg.Net.SASL.Enable = true
	default:
		return fmt.Errorf("%s: unsupported value %q", key, v)
	}
	return nil
}

func applySASLMechanism(cfg *sarama.Config, props config.Properties, key string) error {
	v, _ := props.String(key)
	if !strings.EqualFold(strings.TrimSpace(v), sarama.SASLTypePlaintext) {
		return fmt.Errorf("%s: unsupported mechanism %q, only PLAIN is available", key, v)
	}
	cfg.Net.SASL.Mechanism = sarama.SASLTypePlaintext
	return nil
}

func applySASLJAAS(cfg *sarama.Config, props config.Properties, key string) error {
	v, _ := props.String(key)
	found := false
	for _, m := range jaasField.FindAllStringSubmatch(v, -1) {
		found = true
		switch m[1] {
		case "username":
			if cfg.Net.SASL.User == "" {
				cfg.Net.SASL.User = m[2]
			}
		case "password":
			if cfg.Net.SASL.Password == "" {
				cfg.Net.SASL.Password = m[2]
			}
		}
	}
	if !found {
		return fmt.Errorf("%s: no username or password found", key)
	}
	return nil
}

func applySASLUser(cfg *sarama.Config, props config.Properties, key string) error {
	cfg.Net.SASL.User, _ = props.String(key)
	return nil
}

func applySASLPassword(cfg *sarama.Config, props config.Properties, key string) error {
	cfg.Net.SASL.Password, _ = props.String(key)
	return nil
}
