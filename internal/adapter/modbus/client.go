package modbus

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/goburrow/modbus"
	"github.com/nexus-edge/condition-worker/internal/domain"
	"github.com/rs/zerolog"
)

// Client is a Modbus-TCP connection to one gateway. It carries the mutable
// slave-id state of the underlying handler, so all reads on a client must
// be serialized by the caller (the per-gateway sequential reader does
// this).
type Client struct {
	config    ClientConfig
	handler   *modbus.TCPClientHandler
	client    modbus.Client
	logger    zerolog.Logger
	connected atomic.Bool
}

// ClientConfig holds configuration for a gateway client.
type ClientConfig struct {
	// Address is the gateway host:port.
	Address string

	// Timeout is the per-request hard timeout.
	Timeout time.Duration

	// ConnectAttempts is the number of TCP connect attempts before the
	// gateway is reported unreachable.
	ConnectAttempts int

	// ConnectRetryDelay is the pause between connect attempts.
	ConnectRetryDelay time.Duration
}

// DefaultClientConfig returns the production defaults: 5 s request
// timeout, 5 connect attempts spaced 2 s apart.
func DefaultClientConfig(address string) ClientConfig {
	return ClientConfig{
		Address:           address,
		Timeout:           5 * time.Second,
		ConnectAttempts:   5,
		ConnectRetryDelay: 2 * time.Second,
	}
}

// NewClient creates an unconnected gateway client.
func NewClient(config ClientConfig, logger zerolog.Logger) (*Client, error) {
	if config.Address == "" {
		return nil, fmt.Errorf("gateway address is required")
	}
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}
	if config.ConnectAttempts == 0 {
		config.ConnectAttempts = 5
	}
	if config.ConnectRetryDelay == 0 {
		config.ConnectRetryDelay = 2 * time.Second
	}

	return &Client{
		config: config,
		logger: logger.With().Str("gateway", config.Address).Logger(),
	}, nil
}

// Connect establishes the TCP connection, retrying up to ConnectAttempts
// times. Exhausted attempts surface ErrGatewayUnreachable.
func (c *Client) Connect(ctx context.Context) error {
	if c.connected.Load() {
		return nil
	}

	handler := modbus.NewTCPClientHandler(c.config.Address)
	handler.Timeout = c.config.Timeout

	var lastErr error
	for attempt := 1; attempt <= c.config.ConnectAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.config.ConnectRetryDelay):
			}
		}

		lastErr = handler.Connect()
		if lastErr == nil {
			c.handler = handler
			c.client = modbus.NewClient(handler)
			c.connected.Store(true)
			c.logger.Info().Int("attempt", attempt).Msg("Connected to gateway")
			return nil
		}

		c.logger.Debug().
			Err(lastErr).
			Int("attempt", attempt).
			Int("max_attempts", c.config.ConnectAttempts).
			Msg("Gateway connect attempt failed")
	}

	return fmt.Errorf("%w: %s: %v", domain.ErrGatewayUnreachable, c.config.Address, lastErr)
}

// Disconnect closes the TCP connection.
func (c *Client) Disconnect() error {
	if !c.connected.Load() {
		return nil
	}

	c.connected.Store(false)
	if c.handler != nil {
		if err := c.handler.Close(); err != nil {
			c.logger.Warn().Err(err).Msg("Error closing gateway connection")
			return err
		}
	}
	c.handler = nil
	c.client = nil

	c.logger.Debug().Msg("Disconnected from gateway")
	return nil
}

// IsConnected reports whether the client currently holds a live connection.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// SetSlave selects the Modbus unit identifier for subsequent reads.
func (c *Client) SetSlave(id byte) {
	if c.handler != nil {
		c.handler.SlaveId = id
	}
}

// ReadHoldingRegisters issues a function-code 03 read of quantity 16-bit
// registers at address. The returned buffer is 2 x quantity bytes with each
// register in big-endian order.
func (c *Client) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	if !c.connected.Load() || c.client == nil {
		return nil, domain.ErrConnectionClosed
	}

	data, err := c.client.ReadHoldingRegisters(address, quantity)
	if err != nil {
		return nil, fmt.Errorf("%w: addr=%d qty=%d: %v", domain.ErrReadFailed, address, quantity, err)
	}
	return data, nil
}

// Address returns the gateway dial address.
func (c *Client) Address() string {
	return c.config.Address
}
