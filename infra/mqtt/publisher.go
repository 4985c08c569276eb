package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	coremqtt "github.com/kilianp07/salesintel/core/mqtt"
)

// Publisher mirrors the core publisher interface.
type Publisher = coremqtt.Publisher

// MockPublisher records assignments in memory.
type MockPublisher struct {
	Messages map[string]coremqtt.Assignment
	FailIDs  map[string]bool
	NoAck    map[string]bool
	mu       sync.Mutex

	forgotten int
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		Messages: make(map[string]coremqtt.Assignment),
		FailIDs:  make(map[string]bool),
		NoAck:    make(map[string]bool),
	}
}

// Publish stores a, or fails for customers listed in FailIDs.
func (m *MockPublisher) Publish(_ context.Context, a coremqtt.Assignment) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailIDs[a.CustomerID] {
		return "", fmt.Errorf("publish %s failed", a.CustomerID)
	}
	if a.MessageID == "" {
		a.MessageID = "msg-" + a.CustomerID
	}
	m.Messages[a.CustomerID] = a
	return a.MessageID, nil
}

// WaitForAck acknowledges immediately unless the customer is in NoAck.
func (m *MockPublisher) WaitForAck(messageID string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, a := range m.Messages {
		if a.MessageID == messageID {
			if m.NoAck[id] {
				return false, coremqtt.ErrAckTimeout
			}
			return true, nil
		}
	}
	return false, coremqtt.ErrUnknownMessage
}

// Forget counts a message released without an ack wait.
func (m *MockPublisher) Forget(string) {
	m.mu.Lock()
	m.forgotten++
	m.mu.Unlock()
}

// Forgotten returns the number of Forget calls.
func (m *MockPublisher) Forgotten() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.forgotten
}

// Published returns a copy of the recorded assignments.
func (m *MockPublisher) Published() map[string]coremqtt.Assignment {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]coremqtt.Assignment, len(m.Messages))
	for k, v := range m.Messages {
		out[k] = v
	}
	return out
}
