package gamenet

import (
	"github.com/jxsl13/gamenet/handshake"
	"github.com/jxsl13/gamenet/transport"
	"go.uber.org/zap"
)

type options struct {
	log       *zap.Logger
	transport transport.Config
	client    []handshake.ClientOption
	server    []handshake.ServerOption
}

func newOptions(opts []Option) options {
	o := options{
		log:       zap.NewNop(),
		transport: transport.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option configures a Client or a Server.
type Option func(*options)

// WithLogger sets the logger of the facade and of its handshake layer.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithTransportConfig sets the configuration of the per connection transport.
func WithTransportConfig(cfg transport.Config) Option {
	return func(o *options) {
		o.transport = cfg
	}
}

// WithClientOptions passes options to the underlying handshake.Client.
func WithClientOptions(opts ...handshake.ClientOption) Option {
	return func(o *options) {
		o.client = append(o.client, opts...)
	}
}

// WithServerOptions passes options to the underlying handshake.Server.
// They are applied after the options derived from the ServerConfig.
func WithServerOptions(opts ...handshake.ServerOption) Option {
	return func(o *options) {
		o.server = append(o.server, opts...)
	}
}
