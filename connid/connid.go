// Package connid defines the opaque connection identifier shared by the
// manager, the transports it drives, and every external surface (CLI,
// gRPC) that names a live connection.
package connid

import (
	"github.com/google/uuid"
)

// ID is an opaque, globally unique (within a single manager's lifetime)
// identifier for one connection. Its zero value is never allocated by
// New and is reserved to mean "no connection".
type ID struct {
	value uuid.UUID
}

// New allocates a fresh random identifier. Collision probability across
// the lifetime of a single process is treated as impossible.
func New() ID {
	return ID{value: uuid.New()}
}

// String renders the identifier in its external textual form.
func (id ID) String() string {
	return id.value.String()
}

// IsZero reports whether id is the reserved "no connection" value.
func (id ID) IsZero() bool {
	return id.value == uuid.Nil
}

// Parse recovers an ID from its textual form, as produced by String.
func Parse(s string) (ID, error) {
	v, err := uuid.Parse(s)
	if err != nil {
		return ID{}, err
	}
	return ID{value: v}, nil
}
