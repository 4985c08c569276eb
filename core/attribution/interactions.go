package attribution

import (
	"fmt"

	"github.com/kilianp07/salesintel/core/model"
)

// Point is one customer in an interaction scatter.
type Point struct {
	CustomerID   string  `json:"customer_id"`
	Value        float64 `json:"value"`
	Contribution float64 `json:"shap"`
	Actions      int     `json:"actions"`
}

// Series is the scatter of feature value against attribution for a feature,
// colored by allocated actions.
type Series struct {
	Feature  string  `json:"feature"`
	Title    string  `json:"title"`
	Points   []Point `json:"points"`
	Selected *Point  `json:"selected,omitempty"`
}

// Interactions builds the series for feature. customers must be row aligned
// with the set. selected marks a customer id; empty marks none.
func Interactions(s *Set, customers []model.Customer, feature, selected string) (Series, error) {
	j, ok := s.FeatureIndex(feature)
	if !ok {
		return Series{}, fmt.Errorf("unknown feature %s", feature)
	}
	if len(customers) != len(s.Values) {
		return Series{}, fmt.Errorf("%d customers for %d attribution rows", len(customers), len(s.Values))
	}
	out := Series{Feature: feature, Title: model.Title(feature), Points: make([]Point, len(customers))}
	for i, c := range customers {
		v, _ := c.Feature(feature)
		out.Points[i] = Point{CustomerID: c.ID, Value: v, Contribution: s.Values[i][j], Actions: c.AllocatedActions}
		if c.ID == selected {
			p := out.Points[i]
			out.Selected = &p
		}
	}
	return out, nil
}
