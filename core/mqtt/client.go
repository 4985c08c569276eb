// Package mqtt defines how allocated sales actions are handed to downstream
// CRM workers over a message broker.
package mqtt

import (
	"context"
	"time"
)

// Assignment is the payload published for one customer.
type Assignment struct {
	MessageID        string  `json:"message_id"`
	RunID            string  `json:"run_id"`
	CustomerID       string  `json:"customer_id"`
	CompanyName      string  `json:"company_name"`
	Rank             int     `json:"rank"`
	Units            int     `json:"allocated_actions"`
	ActionScore      float64 `json:"action_score"`
	PredictedRevenue float64 `json:"predicted_expansion_revenue"`
	Promotion        string  `json:"recommended_promotion"`
	Timestamp        int64   `json:"timestamp"`
}

// Publisher delivers assignments and tracks worker acknowledgments.
type Publisher interface {
	// Publish sends a and returns the message id used for acknowledgment.
	Publish(ctx context.Context, a Assignment) (messageID string, err error)

	// WaitForAck blocks until messageID is acknowledged or timeout expires.
	WaitForAck(messageID string, timeout time.Duration) (bool, error)
}

// Forgetter is implemented by publishers that hold acknowledgment state until
// WaitForAck is called. Callers that skip the wait release it with Forget.
type Forgetter interface {
	Forget(messageID string)
}
