// Package gamenet is a secure client/server networking library for games.
//
// A Client connects with a connect token issued by a token authority (see
// package token) to one of the servers listed in it. Once connected both
// sides exchange packets that are either delivered reliably and in order
// or sent once without retries. Everything is driven by the caller through
// Update, nothing runs in the background.
//
//	s, err := gamenet.NewServer(cfg)
//	...
//	err = s.Start()
//	for {
//		s.Update(dt, now)
//		for p, ok := s.PopPacket(); ok; p, ok = s.PopPacket() {
//			...
//		}
//	}
package gamenet

import "errors"

var (
	ErrNotConnected = errors.New("not connected")
	ErrInvalidSlot  = errors.New("invalid client slot")
)
