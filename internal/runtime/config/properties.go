package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Well known Kafka client property names.
const (
	PropBootstrapServers  = "bootstrap.servers"
	PropClientID          = "client.id"
	PropAcks              = "acks"
	PropCompressionType   = "compression.type"
	PropLingerMs          = "linger.ms"
	PropBatchSize         = "batch.size"
	PropRetries           = "retries"
	PropRetryBackoffMs    = "retry.backoff.ms"
	PropRequestTimeoutMs  = "request.timeout.ms"
	PropMaxRequestSize    = "max.request.size"
	PropEnableIdempotence = "enable.idempotence"
	PropMetadataMaxAgeMs  = "metadata.max.age.ms"
	PropSecurityProtocol  = "security.protocol"
	PropSASLMechanism     = "sasl.mechanism"
	PropSASLJAASConfig    = "sasl.jaas.config"
	PropSASLUsername      = "sasl.username"
	PropSASLPassword      = "sasl.password"
	PropKafkaVersion      = "kafka.version"
)

const redacted = "***REDACTED***"

var jaasPassword = regexp.MustCompile(`password\s*=\s*"[^"]*"`)

// Properties is the Kafka client property mapping handed to the port at
// startup. Values are strings, int64, float64, bool or nil.
type Properties map[string]any

// WithoutNulls returns a copy without nil-valued entries. The Kafka client
// configuration does not accept absent values.
func (p Properties) WithoutNulls() Properties {
	out := make(Properties, len(p))
	for k, v := range p {
		if v == nil {
			continue
		}
		out[k] = v
	}
	return out
}

// Redacted returns a copy safe for logging.
func (p Properties) Redacted() Properties {
	if p == nil {
		return nil
	}
	out := make(Properties, len(p))
	for k, v := range p {
		switch {
		case k == PropSASLPassword || strings.HasSuffix(k, ".password"):
			out[k] = redacted
		case k == PropSASLJAASConfig:
			if s, ok := v.(string); ok {
				out[k] = jaasPassword.ReplaceAllString(s, `password="`+redacted+`"`)
			} else {
				out[k] = redacted
			}
		default:
			out[k] = v
		}
	}
	return out
}

// String returns the textual form of key. Numbers and booleans are formatted.
func (p Properties) String(key string) (string, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return "", false
	}
	switch x := v.(type) {
	case string:
		return x, true
	case int64:
		return strconv.FormatInt(x, 10), true
	case int:
		return strconv.Itoa(x), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(x), true
	default:
		return fmt.Sprint(x), true
	}
}

// Int returns key as an integer, accepting numeric strings.
func (p Properties) Int(key string) (int64, bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	switch x := v.(type) {
	case int64:
		return x, true, nil
	case int:
		return int64(x), true, nil
	case float64:
		if x != float64(int64(x)) {
			return 0, true, fmt.Errorf("%s: %v is not an integer", key, x)
		}
		return int64(x), true, nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, true, fmt.Errorf("%s: %q is not an integer", key, x)
		}
		return n, true, nil
	default:
		return 0, true, fmt.Errorf("%s: unsupported value type %T", key, v)
	}
}

// Bool returns key as a boolean, accepting "true"/"false" strings.
func (p Properties) Bool(key string) (bool, bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return false, false, nil
	}
	switch x := v.(type) {
	case bool:
		return x, true, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		if err != nil {
			return false, true, fmt.Errorf("%s: %q is not a boolean", key, x)
		}
		return b, true, nil
	default:
		return false, true, fmt.Errorf("%s: unsupported value type %T", key, v)
	}
}

// Millis returns key, expressed in milliseconds, as a duration.
func (p Properties) Millis(key string) (time.Duration, bool, error) {
	n, ok, err := p.Int(key)
	if !ok || err != nil {
		return 0, ok, err
	}
	if n < 0 {
		return 0, true, fmt.Errorf("%s: cannot be negative", key)
	}
	return time.Duration(n) * time.Millisecond, true, nil
}

// Brokers splits bootstrap.servers into addresses.
func (p Properties) Brokers() []string {
	raw, ok := p.String(PropBootstrapServers)
	if !ok {
		return nil
	}
	var brokers []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			brokers = append(brokers, part)
		}
	}
	return brokers
}
