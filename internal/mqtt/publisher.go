package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sony/gobreaker"

	"github.com/sumitkushwahji/time-traceability-backend/internal/config"
)

const publishTimeout = 5 * time.Second

var (
	ErrNotConnected = errors.New("mqtt client not connected")
	ErrStopped      = errors.New("mqtt client stopped")
)

// Publisher sends retained JSON events under a fixed topic prefix.
type Publisher struct {
	client  paho.Client
	prefix  string
	logger  *slog.Logger
	breaker *gobreaker.CircuitBreaker

	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// Nop discards every event. Used when no broker is configured.
type Nop struct{}

func (Nop) PublishJSON(context.Context, string, any) error { return nil }

func NewPublisher(cfg config.Config, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := newPublisher(nil, cfg.MQTTTopicPrefix, logger)

	opts := paho.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort))
	opts.SetClientID(cfg.MQTTClientID)
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ paho.Client) {
		p.setConnected(true)
		logger.Info("mqtt connected", "broker", cfg.MQTTBroker, "port", cfg.MQTTPort)
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		p.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	p.client = paho.NewClient(opts)
	return p
}

func newPublisher(client paho.Client, prefix string, logger *slog.Logger) *Publisher {
	p := &Publisher{
		client: client,
		prefix: strings.Trim(prefix, "/"),
		logger: logger,
		stopCh: make(chan struct{}),
	}
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "mqtt-publish",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("mqtt circuit state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return p
}

// Connect waits for the initial connection. It returns early when ctx is done
// or Disconnect has been called.
func (p *Publisher) Connect(ctx context.Context) error {
	select {
	case <-p.stopCh:
		return ErrStopped
	default:
	}

	if p.IsConnected() {
		return nil
	}

	token := p.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			p.setConnected(true)
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			return ErrStopped
		default:
		}
	}
}

// Topic joins subtopic onto the configured prefix.
func (p *Publisher) Topic(subtopic string) string {
	subtopic = strings.Trim(subtopic, "/")
	if p.prefix == "" {
		return subtopic
	}
	return p.prefix + "/" + subtopic
}

// PublishJSON marshals v and publishes it retained at QoS 1. Repeated
// failures open the breaker, after which calls fail fast until it resets.
func (p *Publisher) PublishJSON(ctx context.Context, subtopic string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !p.IsConnected() {
		return ErrNotConnected
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	topic := p.Topic(subtopic)

	_, err = p.breaker.Execute(func() (any, error) {
		token := p.client.Publish(topic, 1, true, data)
		if !token.WaitTimeout(publishTimeout) {
			return nil, fmt.Errorf("publish timeout for topic %s", topic)
		}
		if err := token.Error(); err != nil {
			return nil, fmt.Errorf("publish %s: %w", topic, err)
		}
		return nil, nil
	})
	if err != nil {
		return err
	}

	p.logger.Debug("published event", "topic", topic, "bytes", len(data))
	return nil
}

func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	connected := p.connected
	p.mu.RUnlock()
	return connected && p.client.IsConnected()
}

// Disconnect is idempotent. Connect returns ErrStopped afterwards.
func (p *Publisher) Disconnect() {
	p.stopOnce.Do(func() { close(p.stopCh) })

	if p.client != nil {
		p.client.Disconnect(250)
	}

	p.setConnected(false)
	p.logger.Info("mqtt disconnected")
}

func (p *Publisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}
