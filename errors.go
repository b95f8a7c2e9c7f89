package moviegraph

import (
	"errors"
)

var (
	// ErrNotFound is returned when a required lookup produced no result.
	ErrNotFound = errors.New("not found")
	// ErrAmbiguous is returned when a lookup by natural key matched more than one entity.
	ErrAmbiguous = errors.New("ambiguous lookup")
	// ErrInvalidArgument marks caller-supplied input that does not resolve.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnknownStore is returned by NewStore for an unregistered store name.
	ErrUnknownStore = errors.New("unknown store")
	// ErrConfigNotFound is returned when no config file exists in any parent directory.
	ErrConfigNotFound = errors.New("config file not found")
)

// InvalidArgumentError carries a message meant to be shown to the caller as is.
type InvalidArgumentError struct {
	Message string
}

// InvalidArgument returns an error classified as invalid caller input whose
// message is exactly msg.
func InvalidArgument(msg string) error {
	return &InvalidArgumentError{Message: msg}
}

func (e *InvalidArgumentError) Error() string {
	return e.Message
}

// Is makes errors.Is(err, ErrInvalidArgument) hold.
func (e *InvalidArgumentError) Is(target error) bool {
	return target == ErrInvalidArgument
}
