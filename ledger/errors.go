package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrKindNotConfigured is returned when an entry references a kind
	// code the catalog has no row for.
	ErrKindNotConfigured = errors.New("ledger kind not configured")
)

// KindNotConfiguredError carries the offending code.
type KindNotConfiguredError struct {
	Code KindCode
}

func (e *KindNotConfiguredError) Error() string {
	return fmt.Sprintf("ledger kind with code %d is not configured", e.Code)
}

func (e *KindNotConfiguredError) Unwrap() error { return ErrKindNotConfigured }
