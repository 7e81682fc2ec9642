package runtime

import (
	"time"

	loggingpkg "github.com/drblury/kafkaport/internal/runtime/logging"
)

// CommandInfo describes one command handled by a Port.
type CommandInfo struct {
	// Variant is the port variant, admin or producer.
	Variant string
	// Command is the command name, or "unknown" when the frame did not decode.
	Command string
	// FrameID identifies the inbound frame in logs.
	FrameID   string
	StartedAt time.Time
	// Duration is only set in OnCommandDone and OnCommandError.
	Duration time.Duration
	// Outcome is one of the Outcome* label values. Only set in OnCommandDone.
	Outcome string
}

// CommandHooks are callbacks around command handling. Nil hooks are skipped.
type CommandHooks struct {
	// OnCommandStart runs before the handler.
	OnCommandStart func(info CommandInfo)
	// OnCommandDone runs when the handler returned without error.
	OnCommandDone func(info CommandInfo)
	// OnCommandError runs when the command was fatal: undecodable, unknown,
	// or the handler failed.
	OnCommandError func(info CommandInfo, err error)
}

// Merge combines two CommandHooks. The hooks from other run after those of h.
func (h CommandHooks) Merge(other CommandHooks) CommandHooks {
	return CommandHooks{
		OnCommandStart: chainHooks(h.OnCommandStart, other.OnCommandStart),
		OnCommandDone:  chainHooks(h.OnCommandDone, other.OnCommandDone),
		OnCommandError: chainErrorHooks(h.OnCommandError, other.OnCommandError),
	}
}

func (h CommandHooks) start(info CommandInfo) {
	if h.OnCommandStart != nil {
		h.OnCommandStart(info)
	}
}

func (h CommandHooks) done(info CommandInfo) {
	if h.OnCommandDone != nil {
		h.OnCommandDone(info)
	}
}

func (h CommandHooks) fail(info CommandInfo, err error) {
	if h.OnCommandError != nil {
		h.OnCommandError(info, err)
	}
}

func chainHooks(a, b func(CommandInfo)) func(CommandInfo) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(info CommandInfo) {
		a(info)
		b(info)
	}
}

func chainErrorHooks(a, b func(CommandInfo, error)) func(CommandInfo, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(info CommandInfo, err error) {
		a(info, err)
		b(info, err)
	}
}

// LoggingHooks logs every command at debug level and fatal ones as errors.
func LoggingHooks(logger loggingpkg.ServiceLogger) CommandHooks {
	return CommandHooks{
		OnCommandStart: func(info CommandInfo) {
			logger.Debug("Command received", loggingpkg.LogFields{
				"command":  info.Command,
				"frame_id": info.FrameID,
			})
		},
		OnCommandDone: func(info CommandInfo) {
			logger.Debug("Command handled", loggingpkg.LogFields{
				"command":     info.Command,
				"frame_id":    info.FrameID,
				"outcome":     info.Outcome,
				"duration_ms": info.Duration.Milliseconds(),
			})
		},
		OnCommandError: func(info CommandInfo, err error) {
			logger.Error("Command failed fatally", err, loggingpkg.LogFields{
				"command":     info.Command,
				"frame_id":    info.FrameID,
				"duration_ms": info.Duration.Milliseconds(),
			})
		},
	}
}
