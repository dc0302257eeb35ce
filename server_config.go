package gamenet

import (
	"errors"
	"fmt"

	"github.com/jxsl13/gamenet/config"
	"github.com/jxsl13/gamenet/crypt"
	"github.com/jxsl13/gamenet/network"
	"github.com/jxsl13/gamenet/protocol"
	"go.uber.org/multierr"
)

var ErrInvalidServerConfig = errors.New("invalid server config")

// Config file commands of a ServerConfig.
const (
	CmdApplicationID     = "sv_app_id"
	CmdBind              = "sv_bind"
	CmdMaxClients        = "sv_max_clients"
	CmdConnectionTimeout = "sv_connection_timeout"
	CmdResendInterval    = "sv_resend_interval"
	CmdInboundByteRate   = "sv_inbound_byte_rate"
	CmdOutboundByteRate  = "sv_outbound_byte_rate"
	CmdPublicKey         = "sv_public_key"
	CmdSecretKey         = "sv_secret_key"
)

type ServerConfig struct {
	ApplicationID uint64
	Bind          network.Endpoint
	MaxClients    int

	// seconds
	ConnectionTimeout float64
	ResendInterval    float64

	// Advisory caps in bytes per second, 0 disables them.
	InboundByteRate  float64
	OutboundByteRate float64

	// PublicKey verifies connect token signatures, SecretKey opens their
	// secret section. Both are shared with the token authority.
	PublicKey crypt.PublicKey
	SecretKey crypt.Key
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		MaxClients:        protocol.MaxClients,
		ConnectionTimeout: protocol.DefaultConnectionTimeout,
		ResendInterval:    protocol.DefaultResendInterval,
	}
}

// Validate reports every invalid field.
func (c ServerConfig) Validate() error {
	var err error
	if !c.Bind.IsValid() {
		err = multierr.Append(err, fmt.Errorf("%w: missing bind address", ErrInvalidServerConfig))
	}
	if c.MaxClients < 1 || c.MaxClients > protocol.MaxClients {
		err = multierr.Append(err, fmt.Errorf("%w: max clients %d must be between 1 and %d", ErrInvalidServerConfig, c.MaxClients, protocol.MaxClients))
	}
	if c.ConnectionTimeout <= 0 {
		err = multierr.Append(err, fmt.Errorf("%w: connection timeout %g must be positive", ErrInvalidServerConfig, c.ConnectionTimeout))
	}
	if c.ResendInterval <= 0 {
		err = multierr.Append(err, fmt.Errorf("%w: resend interval %g must be positive", ErrInvalidServerConfig, c.ResendInterval))
	}
	if c.InboundByteRate < 0 || c.OutboundByteRate < 0 {
		err = multierr.Append(err, fmt.Errorf("%w: byte rates must not be negative", ErrInvalidServerConfig))
	}
	if c.PublicKey == (crypt.PublicKey{}) {
		err = multierr.Append(err, fmt.Errorf("%w: missing public key", ErrInvalidServerConfig))
	}
	if c.SecretKey == (crypt.Key{}) {
		err = multierr.Append(err, fmt.Errorf("%w: missing secret key", ErrInvalidServerConfig))
	}
	return err
}

// ParseServerConfig reads a ServerConfig from config commands. Commands that
// are missing keep their default value, keys are hex encoded.
func ParseServerConfig(cfg config.Config) (ServerConfig, error) {
	c := DefaultServerConfig()

	var err, e error
	c.ApplicationID, e = cfg.Uint64(CmdApplicationID, c.ApplicationID)
	err = multierr.Append(err, e)
	c.MaxClients, e = cfg.Int(CmdMaxClients, c.MaxClients)
	err = multierr.Append(err, e)
	c.ConnectionTimeout, e = cfg.Float64(CmdConnectionTimeout, c.ConnectionTimeout)
	err = multierr.Append(err, e)
	c.ResendInterval, e = cfg.Float64(CmdResendInterval, c.ResendInterval)
	err = multierr.Append(err, e)
	c.InboundByteRate, e = cfg.Float64(CmdInboundByteRate, c.InboundByteRate)
	err = multierr.Append(err, e)
	c.OutboundByteRate, e = cfg.Float64(CmdOutboundByteRate, c.OutboundByteRate)
	err = multierr.Append(err, e)

	if bind, e := cfg.String(CmdBind, ""); e != nil {
		err = multierr.Append(err, e)
	} else if bind != "" {
		c.Bind, e = network.ParseEndpoint(bind)
		err = multierr.Append(err, e)
	}

	err = multierr.Append(err, parseKey(cfg, CmdPublicKey, c.PublicKey[:]))
	err = multierr.Append(err, parseKey(cfg, CmdSecretKey, c.SecretKey[:]))

	if err != nil {
		return c, err
	}
	return c, c.Validate()
}

func parseKey(cfg config.Config, name string, dst []byte) error {
	key, err := cfg.Hex(name)
	if errors.Is(err, config.ErrNotFound) {
		return nil
	} else if err != nil {
		return err
	}
	if len(key) != len(dst) {
		return fmt.Errorf("%w: %s must be %d bytes, got %d", ErrInvalidServerConfig, name, len(dst), len(key))
	}
	copy(dst, key)
	return nil
}

// ParseServerConfigFile reads a ServerConfig from a config file.
func ParseServerConfigFile(path string) (ServerConfig, error) {
	cfg, err := config.ParseConfigFile(path)
	if err != nil {
		return ServerConfig{}, err
	}
	return ParseServerConfig(cfg)
}
