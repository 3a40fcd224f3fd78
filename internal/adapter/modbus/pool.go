package modbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nexus-edge/condition-worker/internal/domain"
	"github.com/nexus-edge/condition-worker/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// GatewayPool keeps at most one live client per gateway endpoint. Clients
// are owned by the pool; the polling scheduler borrows one for the duration
// of a per-gateway read sequence. There is no lock around the client
// itself: correctness relies on sequential use within a gateway.
type GatewayPool struct {
	config  PoolConfig
	clients map[string]*pooledGateway
	mu      sync.Mutex
	logger  zerolog.Logger
	metrics *metrics.Registry
	closed  bool
}

// pooledGateway wraps a client with a per-gateway circuit breaker so one
// dead gateway cannot slow down reconnect attempts for the rest of the
// fleet.
type pooledGateway struct {
	client       *Client
	endpoint     domain.GatewayEndpoint
	breaker      *gobreaker.CircuitBreaker
	disconnected bool
}

// PoolConfig holds configuration for the gateway pool.
type PoolConfig struct {
	// RequestTimeout is the per-request hard timeout on each client.
	RequestTimeout time.Duration

	// ConnectAttempts is the number of TCP connect attempts per Acquire.
	ConnectAttempts int

	// ConnectRetryDelay is the pause between connect attempts.
	ConnectRetryDelay time.Duration
}

// DefaultPoolConfig returns the production defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		RequestTimeout:    5 * time.Second,
		ConnectAttempts:   5,
		ConnectRetryDelay: 2 * time.Second,
	}
}

// NewGatewayPool creates an empty pool.
func NewGatewayPool(config PoolConfig, logger zerolog.Logger, metricsReg *metrics.Registry) *GatewayPool {
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 5 * time.Second
	}
	if config.ConnectAttempts == 0 {
		config.ConnectAttempts = 5
	}
	if config.ConnectRetryDelay == 0 {
		config.ConnectRetryDelay = 2 * time.Second
	}

	return &GatewayPool{
		config:  config,
		clients: make(map[string]*pooledGateway),
		logger:  logger.With().Str("component", "gateway-pool").Logger(),
		metrics: metricsReg,
	}
}

func (p *GatewayPool) createBreaker(key string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        fmt.Sprintf("gateway-%s", key),
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.logger.Info().
				Str("gateway", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Gateway circuit breaker state changed")
		},
	})
}

// Acquire returns a connected client for the endpoint, creating or
// reconnecting one as needed. The connect path is guarded by the
// per-gateway circuit breaker: while the breaker is open, Acquire fails
// fast with ErrGatewayUnreachable instead of burning 5x2 s on a dead
// endpoint.
func (p *GatewayPool) Acquire(ctx context.Context, endpoint domain.GatewayEndpoint) (*Client, error) {
	key := endpoint.Key()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, domain.ErrPoolClosed
	}

	pg, exists := p.clients[key]
	if !exists {
		client, err := NewClient(ClientConfig{
			Address:           endpoint.Address(),
			Timeout:           p.config.RequestTimeout,
			ConnectAttempts:   p.config.ConnectAttempts,
			ConnectRetryDelay: p.config.ConnectRetryDelay,
		}, p.logger)
		if err != nil {
			p.mu.Unlock()
			return nil, err
		}
		pg = &pooledGateway{
			client:   client,
			endpoint: endpoint,
			breaker:  p.createBreaker(key),
		}
		p.clients[key] = pg
		p.logger.Info().Str("gateway", key).Int("pool_size", len(p.clients)).Msg("Created gateway client")
	}
	p.mu.Unlock()

	if pg.client.IsConnected() && !pg.disconnected {
		return pg.client, nil
	}

	start := time.Now()
	_, err := pg.breaker.Execute(func() (interface{}, error) {
		// A marked-disconnected client may still hold a dead socket.
		pg.client.Disconnect()
		return nil, pg.client.Connect(ctx)
	})
	if p.metrics != nil {
		p.metrics.RecordGatewayConnect(err == nil, time.Since(start).Seconds())
	}
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, fmt.Errorf("%w: %s: circuit open", domain.ErrGatewayUnreachable, key)
		}
		return nil, err
	}

	pg.disconnected = false
	return pg.client, nil
}

// MarkDisconnected records a gateway fault. The next Acquire for the
// endpoint reconnects.
func (p *GatewayPool) MarkDisconnected(endpoint domain.GatewayEndpoint) {
	p.mu.Lock()
	pg, exists := p.clients[endpoint.Key()]
	p.mu.Unlock()

	if !exists {
		return
	}

	pg.disconnected = true
	p.logger.Warn().Str("gateway", endpoint.Key()).Msg("Gateway marked disconnected")
}

// CloseAll disconnects every client and marks the pool closed. Part of the
// graceful shutdown path.
func (p *GatewayPool) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var lastErr error
	for key, pg := range p.clients {
		if err := pg.client.Disconnect(); err != nil {
			lastErr = err
			p.logger.Warn().Err(err).Str("gateway", key).Msg("Error closing gateway client")
		}
	}
	p.clients = make(map[string]*pooledGateway)
	p.logger.Info().Msg("Gateway pool closed")

	return lastErr
}

// Stats returns a snapshot of pool state.
func (p *GatewayPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := PoolStats{TotalGateways: len(p.clients)}
	for _, pg := range p.clients {
		if pg.client.IsConnected() && !pg.disconnected {
			stats.ConnectedGateways++
		}
	}
	return stats
}

// PoolStats contains pool statistics.
type PoolStats struct {
	TotalGateways     int
	ConnectedGateways int
}

// HealthCheck implements the health.Checker interface. The pool is healthy
// while it is operational; individual gateway faults are expected and
// retried every cycle.
func (p *GatewayPool) HealthCheck(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return domain.ErrPoolClosed
	}
	return nil
}
