package store

import (
	"errors"
	"fmt"
)

// ErrLightBlockNotFound is returned when a store does not have the
// requested light block.
var ErrLightBlockNotFound = errors.New("light block not found")

// ErrConflictingStatus is returned when a save or status update would flip a
// block between trusted and failed directly.
type ErrConflictingStatus struct {
	Height int64
	Old    Status
	New    Status
}

func (e ErrConflictingStatus) Error() string {
	return fmt.Sprintf("light block %d is already %s, refusing to mark it %s",
		e.Height, e.Old, e.New)
}
