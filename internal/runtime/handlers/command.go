// Package handlers implements the commands the port understands, on top of the
// Kafka capability interfaces.
package handlers

import (
	"context"
	"fmt"

	errspkg "github.com/drblury/kafkaport/internal/runtime/errors"
	"github.com/drblury/kafkaport/internal/runtime/term"
)

// CommandKind is the closed set of commands. Adding a command means adding a
// constant here and a case to every switch over CommandKind.
type CommandKind int

const (
	CommandUnknown CommandKind = iota
	CommandStop
	CommandListTopics
	CommandDescribeTopics
	CommandListEndOffsets
	CommandListConsumerGroupOffsets
	CommandSend
)

func (k CommandKind) String() string {
	switch k {
	case CommandStop:
		return "stop"
	case CommandListTopics:
		return "list_topics"
	case CommandDescribeTopics:
		return "describe_topics"
	case CommandListEndOffsets:
		return "list_end_offsets"
	case CommandListConsumerGroupOffsets:
		return "list_consumer_group_offsets"
	case CommandSend:
		return "send"
	default:
		return "unknown"
	}
}

// ParseCommandKind matches name exactly.
func ParseCommandKind(name string) CommandKind {
	switch name {
	case "stop":
		return CommandStop
	case "list_topics":
		return CommandListTopics
	case "describe_topics":
		return CommandDescribeTopics
	case "list_end_offsets":
		return CommandListEndOffsets
	case "list_consumer_group_offsets":
		return CommandListConsumerGroupOffsets
	case "send":
		return CommandSend
	default:
		return CommandUnknown
	}
}

// Command is one decoded request. Ref is echoed back in the reply frame.
type Command struct {
	Kind CommandKind
	Name string
	Args term.List
	Ref  term.Term
}

// DecodeCommand accepts {Name, Args, Ref} or {Name, Args}. A frame of any
// other shape wraps ErrMalformedCommand; an unknown name wraps
// ErrUnknownCommand.
func DecodeCommand(t term.Term) (Command, error) {
	tuple, ok := t.(term.Tuple)
	if !ok || (len(tuple) != 2 && len(tuple) != 3) {
		return Command{}, fmt.Errorf("%w: expected {Name, Args, Ref}, got %s", errspkg.ErrMalformedCommand, term.Format(t))
	}

	name, ok := tuple[0].(term.Atom)
	if !ok {
		return Command{}, fmt.Errorf("%w: command name must be an atom, got %s", errspkg.ErrMalformedCommand, term.Format(tuple[0]))
	}
	args, err := term.ToList(tuple[1])
	if err != nil {
		return Command{}, fmt.Errorf("%w: %s arguments: %w", errspkg.ErrMalformedCommand, name, err)
	}

	cmd := Command{Name: string(name), Args: args, Ref: term.Nil}
	if len(tuple) == 3 {
		cmd.Ref = tuple[2]
	}
	cmd.Kind = ParseCommandKind(cmd.Name)
	if cmd.Kind == CommandUnknown {
		return cmd, fmt.Errorf("%w: %q", errspkg.ErrUnknownCommand, cmd.Name)
	}
	return cmd, nil
}

// Outcome tells the dispatch loop whether to keep reading commands.
type Outcome struct {
	exit bool
	code int
}

// Continue keeps the loop running.
func Continue() Outcome { return Outcome{} }

// Exit stops the loop; the process terminates with code.
func Exit(code int) Outcome { return Outcome{exit: true, code: code} }

// ExitCode reports the exit status and whether the outcome stops the loop.
func (o Outcome) ExitCode() (int, bool) { return o.code, o.exit }

// Output receives the single response of a command. Commands that answer
// nothing never call it.
type Output interface {
	Reply(response term.Term) error
}

// Handlers executes commands for one port variant. Commands the variant does
// not support fail with ErrUnknownCommand.
type Handlers interface {
	Handle(ctx context.Context, cmd Command, out Output) (Outcome, error)
	// Close releases the client, finalizing in-flight work.
	Close() error
}
