package errors

import sterrors "errors"

var (
	ErrUnknownCommand     = sterrors.New("kafkaport: unknown command")
	ErrMalformedCommand   = sterrors.New("kafkaport: malformed command")
	ErrInterrupted        = sterrors.New("kafkaport: interrupted while waiting for the cluster")
	ErrPropertiesRequired = sterrors.New("kafkaport: startup properties are required")
	ErrBrokersRequired    = sterrors.New("kafkaport: bootstrap.servers is required")
	ErrClientRequired     = sterrors.New("kafkaport: kafka client is required")
	ErrTransportRequired  = sterrors.New("kafkaport: port transport is required")
	ErrLoggerRequired     = sterrors.New("kafkaport: logger is required")
)

// ConfigValidationError wraps configuration problems detected at startup.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "kafkaport: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}

// NewConfigValidationError returns nil when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}
