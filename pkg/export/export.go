// Package export reads and writes customer tables and JSON artifacts.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/kilianp07/salesintel/core/model"
)

// Derived columns written after the raw features.
const (
	colQuarter     = "budget_cycle_quarter"
	colTarget      = "expansion_revenue_potential"
	colPromoIdx    = "recommended_promotion_idx"
	colPromo       = "recommended_promotion"
	colPredicted   = "predicted_expansion_revenue"
	colActionScore = "action_score"
	colAllocated   = "allocated_actions"
	colCustomerID  = "customer_id"
	colCompanyName = "company_name"
)

// CustomerHeader returns the CSV columns in write order.
func CustomerHeader() []string {
	h := []string{colCustomerID, colCompanyName}
	h = append(h, model.RawFeatureNames()...)
	return append(h, colQuarter, colTarget, colPromoIdx, colPromo, colPredicted, colActionScore, colAllocated)
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ReadJSON decodes one JSON value from r into v.
func ReadJSON(r io.Reader, v any) error {
	return json.NewDecoder(r).Decode(v)
}

// WriteCustomersCSV writes customers with a header row.
func WriteCustomersCSV(w io.Writer, customers []model.Customer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CustomerHeader()); err != nil {
		return err
	}
	raw := model.RawFeatureNames()
	for _, c := range customers {
		rec := make([]string, 0, len(raw)+9)
		rec = append(rec, c.ID, c.CompanyName)
		for _, name := range raw {
			v, _ := c.Feature(name)
			rec = append(rec, formatFloat(v))
		}
		rec = append(rec,
			string(c.BudgetCycleQuarter),
			formatFloat(c.ExpansionRevenuePotential),
			strconv.Itoa(c.RecommendedPromotionIdx),
			c.RecommendedPromotion,
			formatFloat(c.PredictedExpansionRevenue),
			formatFloat(c.ActionScore),
			strconv.Itoa(c.AllocatedActions),
		)
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCustomersCSV reads a table written by WriteCustomersCSV. Columns are
// matched by header name; derived columns may be absent.
func ReadCustomersCSV(r io.Reader) ([]model.Customer, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}
	for _, req := range []string{colCustomerID, colQuarter} {
		if _, ok := idx[req]; !ok {
			return nil, fmt.Errorf("missing column %s", req)
		}
	}
	raw := model.RawFeatureNames()
	var out []model.Customer
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		c, err := decodeCustomer(rec, idx, raw)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, c)
	}
}

func decodeCustomer(rec []string, idx map[string]int, raw []string) (model.Customer, error) {
	get := func(col string) (string, bool) {
		i, ok := idx[col]
		if !ok || i >= len(rec) {
			return "", false
		}
		return rec[i], true
	}
	var c model.Customer
	c.ID, _ = get(colCustomerID)
	c.CompanyName, _ = get(colCompanyName)
	q, _ := get(colQuarter)
	c.BudgetCycleQuarter = model.Quarter(q)
	c.RecommendedPromotion, _ = get(colPromo)

	floats := slices.Clone(raw)
	floats = append(floats, colTarget, colPredicted, colActionScore)
	for _, col := range floats {
		s, ok := get(col)
		if !ok || s == "" {
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return c, fmt.Errorf("column %s: %w", col, err)
		}
		switch col {
		case colTarget:
			c.ExpansionRevenuePotential = v
		case colPredicted:
			c.PredictedExpansionRevenue = v
		case colActionScore:
			c.ActionScore = v
		default:
			if err := c.SetFeature(col, v); err != nil {
				return c, err
			}
		}
	}
	for col, dst := range map[string]*int{colPromoIdx: &c.RecommendedPromotionIdx, colAllocated: &c.AllocatedActions} {
		s, ok := get(col)
		if !ok || s == "" {
			continue
		}
		v, err := strconv.Atoi(s)
		if err != nil {
			return c, fmt.Errorf("column %s: %w", col, err)
		}
		*dst = v
	}
	return c, c.Validate()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
