package kafka

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/kafkaport/internal/runtime/config"
	"github.com/drblury/kafkaport/internal/runtime/logging"
)

func TestNewSaramaConfigProducerBaseline(t *testing.T) {
	cfg, err := NewSaramaConfig(config.VariantProducer, config.Properties{
		config.PropBootstrapServers: "localhost:9092",
	}, nil)
	require.NoError(t, err)

	assert.True(t, cfg.Producer.Return.Successes)
	assert.True(t, cfg.Producer.Return.Errors)
	assert.Equal(t, defaultClientID, cfg.ClientID)
	assert.Equal(t, sarama.V2_6_0_0, cfg.Version)
	assert.Equal(t, 10, cfg.Producer.Retry.Max)
	require.NotNil(t, cfg.Producer.Partitioner)
	assert.IsType(t, &recordPartitioner{}, cfg.Producer.Partitioner("orders"))
}

func TestNewSaramaConfigAdmin(t *testing.T) {
	cfg, err := NewSaramaConfig(config.VariantAdmin, config.Properties{
		config.PropBootstrapServers: "localhost:9092",
		config.PropClientID:         "orders-admin",
		config.PropRequestTimeoutMs: int64(5000),
		config.PropRetryBackoffMs:   "250",
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "orders-admin", cfg.ClientID)
	assert.Equal(t, 5*time.Second, cfg.Admin.Timeout)
	assert.Equal(t, 5*time.Second, cfg.Net.ReadTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Admin.Retry.Backoff)
	assert.Equal(t, 250*time.Millisecond, cfg.Metadata.Retry.Backoff)
}

func TestNewSaramaConfigTranslatesProducerProperties(t *testing.T) {
	cfg, err := NewSaramaConfig(config.VariantProducer, config.Properties{
		config.PropBootstrapServers: "localhost:9092",
		config.PropAcks:             "1",
		config.PropCompressionType:  "zstd",
		config.PropLingerMs:         int64(20),
		config.PropBatchSize:        int64(32768),
		config.PropRetries:          int64(2147483647),
		config.PropMaxRequestSize:   "2097152",
		config.PropMetadataMaxAgeMs: int64(60000),
		config.PropKafkaVersion:     "3.6.0",
		"key.serializer":            "org.apache.kafka.common.serialization.ByteArraySerializer",
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, sarama.WaitForLocal, cfg.Producer.RequiredAcks)
	assert.Equal(t, sarama.CompressionZSTD, cfg.Producer.Compression)
	assert.Equal(t, 20*time.Millisecond, cfg.Producer.Flush.Frequency)
	assert.Equal(t, 32768, cfg.Producer.Flush.Bytes)
	assert.Equal(t, 1000, cfg.Producer.Retry.Max)
	assert.Equal(t, 2097152, cfg.Producer.MaxMessageBytes)
	assert.Equal(t, time.Minute, cfg.Metadata.RefreshFrequency)
	assert.Equal(t, sarama.V3_6_0_0, cfg.Version)
}

func TestNewSaramaConfigIdempotence(t *testing.T) {
	cfg, err := NewSaramaConfig(config.VariantProducer, config.Properties{
		config.PropBootstrapServers:  "localhost:9092",
		config.PropEnableIdempotence: true,
	}, nil)
	require.NoError(t, err)

	assert.True(t, cfg.Producer.Idempotent)
	assert.Equal(t, sarama.WaitForAll, cfg.Producer.RequiredAcks)
	assert.Equal(t, 1, cfg.Net.MaxOpenRequests)

	_, err = NewSaramaConfig(config.VariantProducer, config.Properties{
		config.PropBootstrapServers:  "localhost:9092",
		config.PropEnableIdempotence: "true",
		config.PropAcks:              "1",
	}, nil)
	assert.Error(t, err, "idempotence with acks=1 must be rejected")
}

func TestNewSaramaConfigSASL(t *testing.T) {
	cfg, err := NewSaramaConfig(config.VariantAdmin, config.Properties{
		config.PropBootstrapServers: "localhost:9092",
		config.PropSecurityProtocol: "SASL_SSL",
		config.PropSASLMechanism:    "PLAIN",
		config.PropSASLJAASConfig:   `org.apache.kafka.common.security.plain.PlainLoginModule required username="svc" password="s3cret";`,
	}, nil)
	require.NoError(t, err)

	assert.True(t, cfg.Net.TLS.Enable)
	assert.True(t, cfg.Net.SASL.Enable)
	assert.Equal(t, sarama.SASLMechanism(sarama.SASLTypePlaintext), cfg.Net.SASL.Mechanism)
	assert.Equal(t, "svc", cfg.Net.SASL.User)
	assert.Equal(t, "s3cret", cfg.Net.SASL.Password)

	cfg, err = NewSaramaConfig(config.VariantAdmin, config.Properties{
		config.PropBootstrapServers: "localhost:9092",
		config.PropSecurityProtocol: "SASL_PLAINTEXT",
		config.PropSASLUsername:     "explicit",
		config.PropSASLPassword:     "pw",
		config.PropSASLJAASConfig:   `username="jaas" password="other";`,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "explicit", cfg.Net.SASL.User)
	assert.Equal(t, "pw", cfg.Net.SASL.Password)
}

func TestNewSaramaConfigRejectsBadValues(t *testing.T) {
	tests := map[string]config.Properties{
		"acks":        {config.PropAcks: "some"},
		"compression": {config.PropCompressionType: "brotli"},
		"linger":      {config.PropLingerMs: int64(-1)},
		"version":     {config.PropKafkaVersion: "latest"},
		"mechanism":   {config.PropSASLMechanism: "SCRAM-SHA-512"},
		"protocol":    {config.PropSecurityProtocol: "QUIC"},
		"timeout":     {config.PropRequestTimeoutMs: int64(0)},
		"idempotence": {config.PropEnableIdempotence: "maybe"},
	}

	for name, props := range tests {
		t.Run(name, func(t *testing.T) {
			props[config.PropBootstrapServers] = "localhost:9092"
			_, err := NewSaramaConfig(config.VariantProducer, props, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "kafka config")
		})
	}

	_, err := NewSaramaConfig("consumer", config.Properties{}, nil)
	assert.Error(t, err)
}

func TestNewSaramaConfigLogsUnknownProperties(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewSlogServiceLogger(logging.NewHandlerLogger(&buf, slog.LevelInfo, "text"))

	_, err := NewSaramaConfig(config.VariantAdmin, config.Properties{
		config.PropBootstrapServers: "localhost:9092",
		"ssl.endpoint.identification.algorithm": "https",
		"value.serializer":                      "org.apache.kafka.common.serialization.ByteArraySerializer",
	}, log)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "ssl.endpoint.identification.algorithm")
	assert.NotContains(t, out, "value.serializer")
}

func TestRecordPartitioner(t *testing.T) {
	p := newRecordPartitioner("orders")

	got, err := p.Partition(&sarama.ProducerMessage{Topic: "orders", Partition: 3}, 8)
	require.NoError(t, err)
	assert.Equal(t, int32(3), got)

	_, err = p.Partition(&sarama.ProducerMessage{Topic: "orders", Partition: 8}, 8)
	assert.ErrorIs(t, err, sarama.ErrInvalidPartition)

	keyed := &sarama.ProducerMessage{Topic: "orders", Partition: unassignedPartition, Key: sarama.StringEncoder("customer-17")}
	first, err := p.Partition(keyed, 8)
	require.NoError(t, err)
	second, err := p.Partition(keyed, 8)
	require.NoError(t, err)
	assert.Equal(t, first, second, "keyed records must hash to a stable partition")
	assert.True(t, p.RequiresConsistency())
}
