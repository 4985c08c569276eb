package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	coremqtt "github.com/kilianp07/salesintel/core/mqtt"
	"github.com/kilianp07/salesintel/infra/logger"
)

// AckStrategy decides how a sales worker acknowledges an assignment.
type AckStrategy interface {
	// Ack returns the delay before acknowledging and false to drop the ack.
	Ack(a coremqtt.Assignment) (time.Duration, bool)
}

// AutoAck acknowledges every assignment after a fixed delay.
type AutoAck struct {
	Delay time.Duration
}

// Ack implements AckStrategy.
func (a AutoAck) Ack(coremqtt.Assignment) (time.Duration, bool) { return a.Delay, true }

// RandomAck drops acknowledgments with probability DropRate.
type RandomAck struct {
	Delay    time.Duration
	DropRate float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomAck returns a seeded RandomAck.
func NewRandomAck(delay time.Duration, dropRate float64, seed uint64) *RandomAck {
	return &RandomAck{Delay: delay, DropRate: dropRate, rng: rand.New(rand.NewPCG(seed, seed))}
}

// Ack implements AckStrategy.
func (r *RandomAck) Ack(coremqtt.Assignment) (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.DropRate > 0 && r.rng.Float64() < r.DropRate {
		return 0, false
	}
	return r.Delay, true
}

// AckTopicFor returns the topic a worker acknowledges a customer's assignment
// on. The first wildcard level of the configured ack topic is replaced by the
// customer id.
func (c Config) AckTopicFor(customerID string) string {
	levels := strings.Split(c.AckTopic, "/")
	for i, l := range levels {
		if l == "+" || l == "#" {
			levels[i] = customerID
			return strings.Join(levels, "/")
		}
	}
	return c.AckTopic
}

// Responder simulates the sales workers that receive assignments. It
// subscribes to every assignment topic and acknowledges according to its
// strategy.
type Responder struct {
	cli      pahoClient
	cfg      Config
	strategy AckStrategy
	log      logger.Logger
	done     chan struct{}

	received atomic.Int64
	acked    atomic.Int64
	wg       sync.WaitGroup
}

// NewResponder connects a worker client to the broker.
func NewResponder(cfg Config, strategy AckStrategy) (*Responder, error) {
	cfg.SetDefaults()
	if cfg.AckTopic == "" {
		return nil, fmt.Errorf("mqtt.ack_topic is required for the responder")
	}
	cfg.ClientID += "-worker"
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	r := &Responder{cfg: cfg, strategy: strategy, log: logger.New("mqtt_responder"), done: make(chan struct{})}
	opts.OnConnect = func(c paho.Client) {
		topic := cfg.Topic("+")
		if token := c.Subscribe(topic, r.qos("action"), r.onAssignment); token.Wait() && token.Error() != nil {
			r.log.Errorf("subscribe %s: %v", topic, token.Error())
			return
		}
		r.log.Infof("responder subscribed to %s", topic)
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Broker, token.Error())
	}
	r.cli = c
	return r, nil
}

func (r *Responder) qos(kind string) byte {
	if q, ok := r.cfg.QoS[kind]; ok {
		return q
	}
	return 0
}

func (r *Responder) onAssignment(_ paho.Client, msg paho.Message) {
	var a coremqtt.Assignment
	if err := json.Unmarshal(msg.Payload(), &a); err != nil {
		r.log.Errorf("failed to decode assignment: %v", err)
		return
	}
	r.received.Add(1)
	delay, ok := r.strategy.Ack(a)
	if !ok {
		r.log.Debugf("dropping ack for %s", a.MessageID)
		return
	}
	if delay <= 0 {
		r.ack(a)
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		select {
		case <-time.After(delay):
			r.ack(a)
		case <-r.done:
		}
	}()
}

func (r *Responder) ack(a coremqtt.Assignment) {
	payload, err := json.Marshal(struct {
		MessageID  string `json:"message_id"`
		CustomerID string `json:"customer_id"`
	}{a.MessageID, a.CustomerID})
	if err != nil {
		r.log.Errorf("marshal ack: %v", err)
		return
	}
	topic := r.cfg.AckTopicFor(a.CustomerID)
	token := r.cli.Publish(topic, r.qos("ack"), false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		r.log.Warnf("ack publish timeout for %s", a.CustomerID)
		return
	}
	if err := token.Error(); err != nil {
		r.log.Errorf("publish ack for %s: %v", a.CustomerID, err)
		return
	}
	r.acked.Add(1)
	r.log.Debugf("acknowledged %s (%d actions) for %s", a.MessageID, a.Units, a.CustomerID)
}

// Stats returns the number of assignments received and acknowledged.
func (r *Responder) Stats() (received, acked int64) {
	return r.received.Load(), r.acked.Load()
}

// Run blocks until ctx is done, then waits for pending acks and disconnects.
func (r *Responder) Run(ctx context.Context) {
	<-ctx.Done()
	close(r.done)
	r.wg.Wait()
	if r.cli.IsConnected() {
		r.cli.Disconnect(250)
	}
}
