// Package container holds the fixed capacity containers the protocol layers
// are built from. None of them grows beyond the capacity it was created with
// (Ring may double once), and none of them hands out references that outlive
// a resize.
package container

import "errors"

// ErrFull is returned when an insert would exceed the capacity.
var ErrFull = errors.New("container full")
