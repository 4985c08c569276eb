package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	coremqtt "github.com/kilianp07/salesintel/core/mqtt"
	"github.com/kilianp07/salesintel/infra/logger"
)

// DefaultTopicPrefix is the topic root; assignments go to
// <prefix>/<customer_id>.
const DefaultTopicPrefix = "salesintel/actions"

// Config holds broker connection settings.
type Config struct {
	Enabled     bool            `json:"enabled"`
	Broker      string          `json:"broker"`
	ClientID    string          `json:"client_id"`
	Username    string          `json:"username"`
	Password    string          `json:"password"`
	TopicPrefix string          `json:"topic_prefix"`
	AckTopic    string          `json:"ack_topic"`
	AckTimeout  time.Duration   `json:"ack_timeout"`
	UseTLS      bool            `json:"use_tls"`
	ClientCert  string          `json:"client_cert"`
	ClientKey   string          `json:"client_key"`
	CABundle    string          `json:"ca_bundle"`
	QoS         map[string]byte `json:"qos"`
	LWTTopic    string          `json:"lwt_topic"`
	LWTPayload  string          `json:"lwt_payload"`
	MaxRetries  int             `json:"max_retries"`
	BackoffMS   int             `json:"backoff_ms"`
	TLSConfig   *tls.Config     `json:"-"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "salesintel"
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = DefaultTopicPrefix
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMS == 0 {
		c.BackoffMS = 100
	}
}

// Validate checks an enabled configuration.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	if c.MaxRetries < 0 || c.BackoffMS < 0 {
		return fmt.Errorf("mqtt retries and backoff must be >= 0")
	}
	if c.AckTimeout > 0 && c.AckTopic == "" {
		return fmt.Errorf("mqtt.ack_topic is required when ack_timeout is set")
	}
	return nil
}

// Topic returns the topic of a customer's assignments.
func (c Config) Topic(customerID string) string {
	return strings.TrimSuffix(c.TopicPrefix, "/") + "/" + customerID
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// PahoClient publishes assignments with Eclipse Paho.
type PahoClient struct {
	cli pahoClient
	cfg Config

	mu       sync.Mutex
	ackChans map[string]chan struct{}
	logger   logger.Logger
	backoff  time.Duration
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewPahoClient connects to the broker and, when an ack topic is set,
// subscribes to it.
func NewPahoClient(cfg Config) (*PahoClient, error) {
	cfg.SetDefaults()
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	log := logger.New("mqtt_client")
	pc := &PahoClient{
		cfg:      cfg,
		ackChans: make(map[string]chan struct{}),
		logger:   log,
		backoff:  time.Duration(cfg.BackoffMS) * time.Millisecond,
	}

	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected to %s", cfg.Broker)
		if cfg.AckTopic == "" {
			return
		}
		if token := c.Subscribe(cfg.AckTopic, pc.qos("ack"), pc.onAck); token.Wait() && token.Error() != nil {
			log.Errorf("subscribe error: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Broker, token.Error())
	}
	pc.cli = c
	return pc, nil
}

// NewClientOptions builds paho options from cfg.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, 1, false)
	}
	return opts, nil
}

// LoadTLSConfig loads the client certificate and CA bundle.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caBytes) {
		return nil, fmt.Errorf("no certificates in %s", c.CABundle)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

func (p *PahoClient) qos(kind string) byte {
	if q, ok := p.cfg.QoS[kind]; ok {
		return q
	}
	return 0
}

func (p *PahoClient) onAck(_ paho.Client, msg paho.Message) {
	var m struct {
		MessageID string `json:"message_id"`
	}
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		p.logger.Errorf("failed to decode ack: %v", err)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if ch, ok := p.ackChans[m.MessageID]; ok {
		select {
		case ch <- struct{}{}:
		default:
		}
		p.logger.Debugf("received ack %s", m.MessageID)
	}
}

// Publish sends a to its customer topic, retrying with exponential backoff.
func (p *PahoClient) Publish(ctx context.Context, a coremqtt.Assignment) (string, error) {
	if a.MessageID == "" {
		a.MessageID = uuid.NewString()
	}
	if a.Timestamp == 0 {
		a.Timestamp = time.Now().UnixMilli()
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return "", err
	}
	// Registered before publishing so a fast ack is not lost. Without an ack
	// topic no ack can arrive.
	if p.cfg.AckTopic != "" {
		p.mu.Lock()
		p.ackChans[a.MessageID] = make(chan struct{}, 1)
		p.mu.Unlock()
	}

	topic := p.cfg.Topic(a.CustomerID)
	var publishErr error
retry:
	for attempt := 0; ; attempt++ {
		token := p.cli.Publish(topic, p.qos("action"), false, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			p.logger.Debugf("published %s to %s", a.MessageID, topic)
			return a.MessageID, nil
		}
		p.logger.Warnf("publish attempt %d to %s failed: %v", attempt+1, topic, publishErr)
		if attempt >= p.cfg.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			publishErr = ctx.Err()
			break retry
		case <-time.After(p.backoff * time.Duration(1<<attempt)):
		}
	}
	p.Forget(a.MessageID)
	return "", fmt.Errorf("publish %s: %w", a.CustomerID, publishErr)
}

// WaitForAck blocks until the message is acknowledged or timeout expires.
func (p *PahoClient) WaitForAck(messageID string, timeout time.Duration) (bool, error) {
	p.mu.Lock()
	ch := p.ackChans[messageID]
	p.mu.Unlock()
	if ch == nil {
		return false, coremqtt.ErrUnknownMessage
	}
	defer p.Forget(messageID)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		return true, nil
	case <-timer.C:
		return false, coremqtt.ErrAckTimeout
	}
}

// Forget drops the acknowledgment state of a message nobody will wait for.
func (p *PahoClient) Forget(id string) {
	p.mu.Lock()
	delete(p.ackChans, id)
	p.mu.Unlock()
}

func (p *PahoClient) pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ackChans)
}

// Disconnect closes the connection.
func (p *PahoClient) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}

var (
	_ coremqtt.Publisher = (*PahoClient)(nil)
	_ coremqtt.Forgetter = (*PahoClient)(nil)
)
