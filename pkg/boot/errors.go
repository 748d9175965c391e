package boot

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is wrapped by every geometry validation failure.
var ErrInvalidConfig = errors.New("invalid bootloader configuration")

// BootError is returned by TryPrepare and the other loader operations.
type BootError struct {
	Op  string
	Err error
}

func (e *BootError) Error() string {
	return fmt.Sprintf("boot: %s: %v", e.Op, e.Err)
}

func (e *BootError) Unwrap() error { return e.Err }

func bootErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &BootError{Op: op, Err: err}
}

func configErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
