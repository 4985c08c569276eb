package mqtt

import (
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

type sub struct {
	topic string
	qos   byte
}

type pub struct {
	topic   string
	qos     byte
	payload []byte
}

// mockClient is an in-memory paho.Client. Publish results are taken from
// publishErrs in order; once exhausted every publish succeeds.
type mockClient struct {
	opts        *paho.ClientOptions
	publishErrs []error

	mu         sync.Mutex
	subscribed []sub
	published  []pub
	handlers   map[string]paho.MessageHandler
}

func (m *mockClient) Connect() paho.Token {
	if m.opts != nil && m.opts.OnConnect != nil {
		m.opts.OnConnect(m)
	}
	return doneToken{}
}

func (m *mockClient) Publish(topic string, qos byte, _ bool, payload interface{}) paho.Token {
	b, _ := payload.([]byte)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, pub{topic: topic, qos: qos, payload: b})
	if len(m.publishErrs) == 0 {
		return doneToken{}
	}
	err := m.publishErrs[0]
	m.publishErrs = m.publishErrs[1:]
	return doneToken{err: err}
}

func (m *mockClient) Subscribe(topic string, qos byte, h paho.MessageHandler) paho.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribed = append(m.subscribed, sub{topic: topic, qos: qos})
	if m.handlers == nil {
		m.handlers = make(map[string]paho.MessageHandler)
	}
	m.handlers[topic] = h
	return doneToken{}
}

// deliver hands payload to the handler subscribed on filter.
func (m *mockClient) deliver(filter string, payload []byte) bool {
	m.mu.Lock()
	h, ok := m.handlers[filter]
	m.mu.Unlock()
	if ok {
		h(m, mockMessage{p: payload})
	}
	return ok
}

func (m *mockClient) publishedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.published)
}

func (m *mockClient) IsConnected() bool      { return true }
func (m *mockClient) IsConnectionOpen() bool { return true }
func (m *mockClient) Disconnect(uint)        {}
func (m *mockClient) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return doneToken{}
}
func (m *mockClient) Unsubscribe(...string) paho.Token        { return doneToken{} }
func (m *mockClient) AddRoute(string, paho.MessageHandler)    {}
func (m *mockClient) OptionsReader() paho.ClientOptionsReader { return paho.ClientOptionsReader{} }

// doneToken is an already completed paho.Token.
type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type mockMessage struct{ p []byte }

func (m mockMessage) Payload() []byte   { return m.p }
func (m mockMessage) Topic() string     { return "" }
func (m mockMessage) Qos() byte         { return 0 }
func (m mockMessage) Duplicate() bool   { return false }
func (m mockMessage) Retained() bool    { return false }
func (m mockMessage) MessageID() uint16 { return 0 }
func (m mockMessage) Ack()              {}
