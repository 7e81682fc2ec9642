/*
Package runtime hosts the port's dispatch loop.

# Architecture Overview

A Port reads command frames from a transport, hands each decoded command to
the handler set of its variant and publishes the reply frame, strictly one
command at a time. Frames are watermill messages; the next frame is read only
after the previous one was acked.

# Package Structure

## Dispatch loop (port.go)

Port.Run owns the loop and decides the process exit status:
  - stop, end of stdin, or cancellation while idle: 0
  - undecodable frame, unknown command, handler error or panic: 1

## Hooks (hooks.go)

CommandHooks observe every command. The Port always installs LoggingHooks and,
when configured, the hooks of CommandMetrics.

## Metrics (metrics.go)

Prometheus counters and histograms per variant, command and outcome, plus an
optional /metrics server.

# Sub-packages

  - config/: startup properties and environment settings
  - errors/: sentinel errors
  - handlers/: command decoding and the admin and producer handler sets
  - ids/: ULIDs for frame identifiers
  - jsoncodec/: JSON property files
  - kafka/: sarama-backed admin and producer adapters
  - logging/: logger interface and adapters for watermill and sarama
  - term/: wire values and the external term format
  - tracing/: OpenTelemetry provider setup
  - transport/: length-prefixed frames on stdin and stdout

# Usage Example

	tr, _ := transport.NewPortTransport(os.Stdin, os.Stdout, logging.NewWatermillAdapter(logger))
	port, _ := runtime.NewPort(config.VariantAdmin, adminHandlers, tr, logger, runtime.PortDependencies{})
	os.Exit(port.Run(ctx))
*/
package runtime
