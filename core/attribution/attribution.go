// Package attribution explains individual predictions of the linear
// expansion-revenue model.
//
// For a linear model with independent features the Shapley value of feature i
// is w_i * (x_i - mean_i); the contributions sum exactly to the gap between
// the prediction and the expected value.
package attribution

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/kilianp07/salesintel/core/regression"
)

// Set holds attributions for a population, row-aligned with CustomerIDs.
type Set struct {
	FeatureNames  []string    `json:"feature_names"`
	ExpectedValue float64     `json:"expected_value"`
	CustomerIDs   []string    `json:"customer_ids"`
	Values        [][]float64 `json:"shap_values"`
}

// Explain returns per-feature contributions for x.
func Explain(m *regression.Model, x []float64) ([]float64, error) {
	if len(x) != len(m.Coefficients) || len(m.Means) != len(m.Coefficients) {
		return nil, fmt.Errorf("%w: got %d features want %d", regression.ErrDimension, len(x), len(m.Coefficients))
	}
	out := make([]float64, len(x))
	for i, w := range m.Coefficients {
		out[i] = w * (x[i] - m.Means[i])
	}
	return out, nil
}

// ExplainAll explains every row.
func ExplainAll(m *regression.Model, ids []string, rows [][]float64) (*Set, error) {
	if len(ids) != len(rows) {
		return nil, fmt.Errorf("%w: %d ids for %d rows", regression.ErrDimension, len(ids), len(rows))
	}
	set := &Set{
		FeatureNames:  append([]string(nil), m.FeatureNames...),
		ExpectedValue: m.ExpectedValue(),
		CustomerIDs:   append([]string(nil), ids...),
		Values:        make([][]float64, len(rows)),
	}
	for i, r := range rows {
		v, err := Explain(m, r)
		if err != nil {
			return nil, fmt.Errorf("customer %s: %w", ids[i], err)
		}
		set.Values[i] = v
	}
	return set, nil
}

// Index returns the row of the given customer.
func (s *Set) Index(id string) (int, bool) {
	i := slices.Index(s.CustomerIDs, id)
	return i, i >= 0
}

// Row returns the attributions of the given customer.
func (s *Set) Row(id string) ([]float64, bool) {
	i, ok := s.Index(id)
	if !ok {
		return nil, false
	}
	return s.Values[i], true
}

// FeatureIndex returns the column of the named feature.
func (s *Set) FeatureIndex(name string) (int, bool) {
	i := slices.Index(s.FeatureNames, name)
	return i, i >= 0
}

// Direction is the sign of a contribution.
type Direction string

const (
	Positive Direction = "positive"
	Negative Direction = "negative"
)

// Driver is a single feature's contribution to a prediction.
type Driver struct {
	Index        int       `json:"-"`
	Feature      string    `json:"feature"`
	Value        float64   `json:"value"`
	Contribution float64   `json:"shap_contribution"`
	Direction    Direction `json:"impact_direction"`
}

// TopDrivers returns the k features with the largest absolute contribution.
// Ties keep feature order. featureValues may be nil.
func TopDrivers(names []string, contributions, featureValues []float64, k int) []Driver {
	idx := make([]int, len(contributions))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		return cmp.Compare(math.Abs(contributions[b]), math.Abs(contributions[a]))
	})
	if k > len(idx) || k < 0 {
		k = len(idx)
	}
	out := make([]Driver, k)
	for n, i := range idx[:k] {
		d := Driver{Index: i, Feature: names[i], Contribution: contributions[i], Direction: Negative}
		if contributions[i] > 0 {
			d.Direction = Positive
		}
		if featureValues != nil {
			d.Value = featureValues[i]
		}
		out[n] = d
	}
	return out
}
