package handshake

import (
	"github.com/jxsl13/gamenet/network"
	"github.com/jxsl13/gamenet/protocol"
	"go.uber.org/zap"
)

type ClientOption func(*Client)

// WithClientLogger sets the logger of the client.
func WithClientLogger(log *zap.Logger) ClientOption {
	return func(c *Client) {
		c.log = log
	}
}

// WithTransportFactory sets how the client opens its transport to each server.
func WithTransportFactory(f network.Factory) ClientOption {
	return func(c *Client) {
		c.factory = f
	}
}

// WithReceiveQueueCapacity limits the number of payloads that wait for ReceivePayload.
func WithReceiveQueueCapacity(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.queueCapacity = n
		}
	}
}

type ServerOption func(*Server)

// WithServerLogger sets the logger of the server.
func WithServerLogger(log *zap.Logger) ServerOption {
	return func(s *Server) {
		s.log = log
	}
}

// WithListener sets how the server opens its transport.
func WithListener(l network.Listener) ServerOption {
	return func(s *Server) {
		s.listen = l
	}
}

// WithMaxClients limits the number of client slots, at most protocol.MaxClients.
func WithMaxClients(n int) ServerOption {
	return func(s *Server) {
		s.maxClients = n
	}
}

// WithEventQueueCapacity sets the initial capacity of the event queue.
// The queue grows once before it reports ErrFull.
func WithEventQueueCapacity(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.eventCapacity = n
		}
	}
}

func defaultEventCapacity() int {
	return protocol.MaxClients * 16
}

// WithByteRateCaps sets advisory inbound and outbound caps in bytes per second.
// Traffic above a cap is counted in ServerStats and logged, it is never dropped.
// A non positive cap is disabled.
func WithByteRateCaps(inbound, outbound float64) ServerOption {
	return func(s *Server) {
		s.inbound = newByteBudget(inbound)
		s.outbound = newByteBudget(outbound)
	}
}
