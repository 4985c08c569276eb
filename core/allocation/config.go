package allocation

import "fmt"

const (
	// DefaultTotalBudget is the number of actions shared by all customers.
	DefaultTotalBudget = 250
	// DefaultPerEntityCap bounds the actions any single customer may receive.
	DefaultPerEntityCap = 5
	// DefaultRequestDivisor is the score span that requests one more action.
	DefaultRequestDivisor = 20.0
)

// Config defines the allocation policy.
type Config struct {
	TotalBudget    int     `json:"total_budget"`
	PerEntityCap   int     `json:"per_entity_cap"`
	RequestDivisor float64 `json:"request_divisor"`
}

// DefaultConfig returns the policy used by the demonstration pipeline. Zero
// values in a Config are never replaced: a zero cap or divisor is invalid.
func DefaultConfig() Config {
	return Config{
		TotalBudget:    DefaultTotalBudget,
		PerEntityCap:   DefaultPerEntityCap,
		RequestDivisor: DefaultRequestDivisor,
	}
}

// Validate reports malformed policy parameters.
func (c Config) Validate() error {
	if c.TotalBudget < 0 {
		return fmt.Errorf("%w: total budget %d is negative", ErrInvalidArgument, c.TotalBudget)
	}
	if c.PerEntityCap < 1 {
		return fmt.Errorf("%w: per-entity cap %d must be at least 1", ErrInvalidArgument, c.PerEntityCap)
	}
	if !(c.RequestDivisor > 0) {
		return fmt.Errorf("%w: request divisor %v must be positive", ErrInvalidArgument, c.RequestDivisor)
	}
	return nil
}
