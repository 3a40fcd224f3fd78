// Package mqtt publishes machine condition events to an MQTT broker with
// automatic reconnection.
package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/nexus-edge/condition-worker/internal/domain"
	"github.com/nexus-edge/condition-worker/internal/metrics"
)

// Config holds MQTT publisher configuration.
type Config struct {
	BrokerURL      string
	ClientID       string
	Username       string
	Password       string
	TopicPrefix    string
	QoS            byte
	Retain         bool
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	ReconnectDelay time.Duration
	PublishTimeout time.Duration
	TLSEnabled     bool
	TLSCertFile    string
	TLSKeyFile     string
	TLSCAFile      string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ClientID:       "condition-worker",
		TopicPrefix:    "machines",
		QoS:            1,
		Retain:         true,
		KeepAlive:      30 * time.Second,
		ConnectTimeout: 10 * time.Second,
		ReconnectDelay: 5 * time.Second,
		PublishTimeout: 5 * time.Second,
	}
}

// Publisher emits one retained message per machine on condition change, so
// late subscribers immediately see the current condition of the fleet.
type Publisher struct {
	config    Config
	client    pahomqtt.Client
	logger    zerolog.Logger
	metrics   *metrics.Registry
	mu        sync.RWMutex
	connected atomic.Bool
}

// NewPublisher creates an MQTT publisher. Connect must be called before use.
func NewPublisher(config Config, logger zerolog.Logger, metricsReg *metrics.Registry) *Publisher {
	if config.ClientID == "" {
		config.ClientID = "condition-worker"
	}
	if config.TopicPrefix == "" {
		config.TopicPrefix = "machines"
	}
	if config.KeepAlive == 0 {
		config.KeepAlive = 30 * time.Second
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	if config.ReconnectDelay == 0 {
		config.ReconnectDelay = 5 * time.Second
	}
	if config.PublishTimeout == 0 {
		config.PublishTimeout = 5 * time.Second
	}

	return &Publisher{
		config:  config,
		logger:  logger.With().Str("component", "mqtt-publisher").Logger(),
		metrics: metricsReg,
	}
}

// Connect establishes the connection to the MQTT broker.
func (p *Publisher) Connect(ctx context.Context) error {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(p.config.BrokerURL)
	opts.SetClientID(p.config.ClientID)
	opts.SetCleanSession(true)
	opts.SetKeepAlive(p.config.KeepAlive)
	opts.SetConnectTimeout(p.config.ConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(p.config.ReconnectDelay)

	if p.config.Username != "" {
		opts.SetUsername(p.config.Username)
		opts.SetPassword(p.config.Password)
	}

	if p.config.TLSEnabled {
		tlsConfig, err := p.createTLSConfig()
		if err != nil {
			return fmt.Errorf("create TLS config: %w", err)
		}
		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetOnConnectHandler(p.onConnect)
	opts.SetConnectionLostHandler(p.onConnectionLost)

	p.mu.Lock()
	p.client = pahomqtt.NewClient(opts)
	client := p.client
	p.mu.Unlock()

	p.logger.Info().Str("broker", p.config.BrokerURL).Msg("Connecting to MQTT broker")

	token := client.Connect()
	done := make(chan bool, 1)
	go func() {
		done <- token.WaitTimeout(p.config.ConnectTimeout)
	}()

	select {
	case ok := <-done:
		if !ok {
			return fmt.Errorf("%w: connection timeout", domain.ErrEventNotConnected)
		}
		if token.Error() != nil {
			return fmt.Errorf("%w: %v", domain.ErrEventNotConnected, token.Error())
		}
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", domain.ErrEventNotConnected, ctx.Err())
	}

	p.connected.Store(true)
	p.logger.Info().Msg("Connected to MQTT broker")
	return nil
}

// Disconnect gracefully disconnects from the broker, giving pending
// messages one second to flush.
func (p *Publisher) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(1000)
	}
	p.connected.Store(false)
	p.logger.Info().Msg("Disconnected from MQTT broker")
}

// PublishConditionChange publishes one condition event on the machine's
// topic.
func (p *Publisher) PublishConditionChange(ctx context.Context, event domain.ConditionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%w: marshal event: %v", domain.ErrEventPublish, err)
	}

	topic := fmt.Sprintf("%s/%d/condition", p.config.TopicPrefix, event.MachineID)
	if err := p.publishRaw(ctx, topic, payload); err != nil {
		if p.metrics != nil {
			p.metrics.EventsFailed.Inc()
		}
		return err
	}

	if p.metrics != nil {
		p.metrics.EventsPublished.Inc()
	}
	p.logger.Debug().
		Str("topic", topic).
		Str("condition", string(event.Condition)).
		Msg("Condition event published")
	return nil
}

func (p *Publisher) publishRaw(ctx context.Context, topic string, payload []byte) error {
	p.mu.RLock()
	client := p.client
	p.mu.RUnlock()

	if client == nil || !p.connected.Load() {
		return domain.ErrEventNotConnected
	}

	token := client.Publish(topic, p.config.QoS, p.config.Retain, payload)
	done := make(chan bool, 1)
	go func() {
		done <- token.WaitTimeout(p.config.PublishTimeout)
	}()

	select {
	case ok := <-done:
		if !ok {
			return fmt.Errorf("%w: publish timeout", domain.ErrEventPublish)
		}
		if token.Error() != nil {
			return fmt.Errorf("%w: %v", domain.ErrEventPublish, token.Error())
		}
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", domain.ErrEventPublish, ctx.Err())
	}

	return nil
}

func (p *Publisher) createTLSConfig() (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	if p.config.TLSCAFile != "" {
		caCert, err := os.ReadFile(p.config.TLSCAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("parse CA certificate")
		}
		tlsConfig.RootCAs = pool
	}

	if p.config.TLSCertFile != "" && p.config.TLSKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(p.config.TLSCertFile, p.config.TLSKeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

func (p *Publisher) onConnect(client pahomqtt.Client) {
	p.connected.Store(true)
	p.logger.Info().Msg("MQTT connection established")
}

func (p *Publisher) onConnectionLost(client pahomqtt.Client, err error) {
	p.connected.Store(false)
	p.logger.Warn().Err(err).Msg("MQTT connection lost")
}

// IsConnected reports whether the publisher is connected to the broker.
func (p *Publisher) IsConnected() bool {
	return p.connected.Load()
}

// HealthCheck implements the health.Checker interface.
func (p *Publisher) HealthCheck(ctx context.Context) error {
	if !p.connected.Load() {
		return domain.ErrEventNotConnected
	}
	return nil
}
