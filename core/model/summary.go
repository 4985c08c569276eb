package model

// Summary aggregates an allocated customer base.
type Summary struct {
	TotalCustomers        int     `json:"total_customers"`
	TotalActionsAllocated int     `json:"total_actions_allocated"`
	CustomersWithActions  int     `json:"customers_with_actions"`
	AvgPredictedRevenue   float64 `json:"avg_predicted_revenue"`
	TotalPipelineValue    float64 `json:"total_pipeline_value"`
	MinActions            int     `json:"min_actions"`
	MaxActions            int     `json:"max_actions"`
	MeanActions           float64 `json:"mean_actions"`
}

// Summarize computes the summary of customers. Revenue figures cover every
// customer, not only those with actions.
func Summarize(customers []Customer) Summary {
	s := Summary{TotalCustomers: len(customers)}
	if len(customers) == 0 {
		return s
	}
	s.MinActions = customers[0].AllocatedActions
	for _, c := range customers {
		s.TotalActionsAllocated += c.AllocatedActions
		if c.AllocatedActions > 0 {
			s.CustomersWithActions++
		}
		s.MinActions = min(s.MinActions, c.AllocatedActions)
		s.MaxActions = max(s.MaxActions, c.AllocatedActions)
		s.TotalPipelineValue += c.PredictedExpansionRevenue
	}
	n := float64(len(customers))
	s.AvgPredictedRevenue = s.TotalPipelineValue / n
	s.MeanActions = float64(s.TotalActionsAllocated) / n
	return s
}

// PipelineValueMillions renders the pipeline value, held in thousands, in
// millions.
func (s Summary) PipelineValueMillions() float64 { return s.TotalPipelineValue / 1000 }
