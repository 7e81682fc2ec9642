// Package kafkaport runs a Kafka bridge as an Erlang port.
//
// The owning Erlang or Elixir process starts one of the binaries under cmd/
// with {packet, 4} framing and talks to it over stdin and stdout. Each inbound
// frame carries one command in the external term format:
//
//	{Name :: atom(), Args :: list(), Ref :: term()}
//
// and every command that answers writes exactly one frame back:
//
//	{reply, Ref, {ok, Value} | {error, Message :: binary()}}
//
// Commands are handled one at a time, in arrival order.
//
// # Variants
//
// The admin port serves list_topics, describe_topics, list_end_offsets,
// list_consumer_group_offsets and stop. The producer port serves send, which
// never answers, and stop, which flushes every pending record before the
// process exits. Any other command name is fatal and ends the process with
// status 1.
//
// # Configuration
//
// Kafka client properties arrive as the single positional argument: base64 of
// term_to_binary([Properties]), where Properties is a map using the usual
// Kafka property names (bootstrap.servers, acks, sasl.jaas.config and so on).
// Null values are dropped. For manual runs the same map can be given as a
// JSON file with -properties.
//
// The port's own settings come from KAFKA_PORT_* environment variables; see
// Settings. Logs go to stderr because stdout carries frames. Prometheus
// metrics and OTLP traces are off unless KAFKA_PORT_METRICS_ADDR or
// KAFKA_PORT_OTEL_ENDPOINT is set.
//
// # Exit status
//
// 0 after stop, when stdin closes, or when the process is signalled while
// idle. 1 on invalid configuration, unknown or malformed commands, a cluster
// call interrupted by a signal, and a failed flush under the abort policy.
package kafkaport
