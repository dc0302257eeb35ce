// Package handshake implements the connection protocol: a client that walks
// the endpoints of its connect token until a server accepts it and a server
// that authenticates clients by token and challenge before assigning them a
// slot.
//
// Neither Client nor Server is safe for concurrent use. Both make progress
// only inside Update.
package handshake

import "errors"

var (
	ErrNotConnected     = errors.New("not connected")
	ErrNotRunning       = errors.New("server not running")
	ErrAlreadyRunning   = errors.New("server already running")
	ErrServerFull       = errors.New("server full")
	ErrInvalidSlot      = errors.New("invalid client slot")
	ErrReceiveQueueFull = errors.New("receive queue full")
	ErrInvalidMaxClient = errors.New("invalid max clients")
)
