package mqtt

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremqtt "github.com/kilianp07/salesintel/core/mqtt"
)

func newTestResponder(t *testing.T, strategy AckStrategy) (*Responder, *mockClient) {
	t.Helper()
	m := &mockClient{}
	orig := newMQTTClient
	newMQTTClient = func(o *paho.ClientOptions) pahoClient {
		m.opts = o
		return m
	}
	t.Cleanup(func() { newMQTTClient = orig })

	r, err := NewResponder(Config{Broker: "tcp://localhost:1883", AckTopic: "salesintel/ack/+"}, strategy)
	require.NoError(t, err)
	return r, m
}

func assignmentMessage(t *testing.T, a coremqtt.Assignment) mockMessage {
	t.Helper()
	b, err := json.Marshal(a)
	require.NoError(t, err)
	return mockMessage{p: b}
}

func TestAckTopicFor(t *testing.T) {
	assert.Equal(t, "salesintel/ack/CUST_00001", Config{AckTopic: "salesintel/ack/+"}.AckTopicFor("CUST_00001"))
	assert.Equal(t, "acks/CUST_00001", Config{AckTopic: "acks/#"}.AckTopicFor("CUST_00001"))
	assert.Equal(t, "acks", Config{AckTopic: "acks"}.AckTopicFor("CUST_00001"))
}

func TestResponder_SubscribesAndAcks(t *testing.T) {
	r, m := newTestResponder(t, AutoAck{})
	require.Len(t, m.subscribed, 1)
	assert.Equal(t, DefaultTopicPrefix+"/+", m.subscribed[0].topic)
	assert.Equal(t, "salesintel-worker", m.opts.ClientID)

	r.onAssignment(m, assignmentMessage(t, coremqtt.Assignment{MessageID: "m1", CustomerID: "CUST_00001", Units: 3}))
	require.Len(t, m.published, 1)
	assert.Equal(t, "salesintel/ack/CUST_00001", m.published[0].topic)
	var ack struct {
		MessageID string `json:"message_id"`
	}
	require.NoError(t, json.Unmarshal(m.published[0].payload, &ack))
	assert.Equal(t, "m1", ack.MessageID)

	received, acked := r.Stats()
	assert.EqualValues(t, 1, received)
	assert.EqualValues(t, 1, acked)
}

func TestResponder_DropsAndIgnoresGarbage(t *testing.T) {
	r, m := newTestResponder(t, NewRandomAck(0, 1, 1))
	r.onAssignment(m, assignmentMessage(t, coremqtt.Assignment{MessageID: "m1", CustomerID: "CUST_00001"}))
	r.onAssignment(m, mockMessage{p: []byte("{")})
	assert.Empty(t, m.published)
	received, acked := r.Stats()
	assert.EqualValues(t, 1, received)
	assert.EqualValues(t, 0, acked)
}

func TestResponder_RunCancelsPendingAcks(t *testing.T) {
	r, m := newTestResponder(t, AutoAck{Delay: time.Hour})
	r.onAssignment(m, assignmentMessage(t, coremqtt.Assignment{MessageID: "m1", CustomerID: "CUST_00001"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan struct{})
	go func() { r.Run(ctx); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("responder did not stop")
	}
	assert.Empty(t, m.published)
}

func TestNewResponder_RequiresAckTopic(t *testing.T) {
	_, err := NewResponder(Config{Broker: "tcp://localhost:1883"}, AutoAck{})
	assert.Error(t, err)
}

func TestResponder_DelayedAckFromSubscription(t *testing.T) {
	r, m := newTestResponder(t, AutoAck{Delay: 10 * time.Millisecond})
	msg := assignmentMessage(t, coremqtt.Assignment{MessageID: "m2", CustomerID: "CUST_00002", Units: 1})
	require.True(t, m.deliver(DefaultTopicPrefix+"/+", msg.p))
	require.Eventually(t, func() bool { return m.publishedCount() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Run(ctx)
	_, acked := r.Stats()
	assert.EqualValues(t, 1, acked)
}
