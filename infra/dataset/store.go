// Package dataset stores pipeline artifacts on disk: customer tables as CSV,
// the model, attributions and summaries as JSON.
package dataset

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/kilianp07/salesintel/core/allocation"
	"github.com/kilianp07/salesintel/core/attribution"
	"github.com/kilianp07/salesintel/core/model"
	"github.com/kilianp07/salesintel/core/pipeline"
	"github.com/kilianp07/salesintel/core/regression"
	"github.com/kilianp07/salesintel/pkg/export"
)

// ErrNotFound is returned when an artifact has not been written yet.
var ErrNotFound = errors.New("artifact not found")

// Artifact paths relative to the store root.
const (
	CustomersFile   = "data/customers.csv"
	AllocatedFile   = "data/customers_with_actions.csv"
	SummaryFile     = "data/allocation_summary.json"
	RunFile         = "data/allocation_run.json"
	ModelFile       = "models/expansion_model.json"
	AttributionFile = "models/shap_values.json"
)

// Store reads and writes artifacts under a root directory.
type Store struct {
	root string
}

var _ pipeline.Artifacts = (*Store)(nil)

// New returns a store rooted at root.
func New(root string) *Store { return &Store{root: root} }

// Root returns the store directory.
func (s *Store) Root() string { return s.root }

// Path resolves an artifact path.
func (s *Store) Path(rel string) string { return filepath.Join(s.root, filepath.FromSlash(rel)) }

type runManifest struct {
	RunID     string          `json:"run_id"`
	StartedAt time.Time       `json:"started_at"`
	Published int             `json:"published"`
	Plan      allocation.Plan `json:"plan"`
}

// SaveGenerated writes the raw customer table.
func (s *Store) SaveGenerated(customers []model.Customer) error {
	return s.write(CustomersFile, func(w io.Writer) error { return export.WriteCustomersCSV(w, customers) })
}

// SaveResult writes every artifact of a finished run.
func (s *Store) SaveResult(res *pipeline.Result) error {
	steps := []struct {
		rel string
		fn  func(io.Writer) error
	}{
		{AllocatedFile, func(w io.Writer) error { return export.WriteCustomersCSV(w, res.Customers) }},
		{ModelFile, jsonWriter(res.Model)},
		{AttributionFile, jsonWriter(res.Attributions)},
		{SummaryFile, jsonWriter(res.Summary)},
		{RunFile, jsonWriter(runManifest{RunID: res.RunID, StartedAt: res.StartedAt, Published: res.Published, Plan: res.Plan})},
	}
	for _, st := range steps {
		if err := s.write(st.rel, st.fn); err != nil {
			return err
		}
	}
	return nil
}

// LoadCustomers reads the raw customer table.
func (s *Store) LoadCustomers() ([]model.Customer, error) {
	var out []model.Customer
	err := s.read(CustomersFile, func(r io.Reader) (err error) {
		out, err = export.ReadCustomersCSV(r)
		return err
	})
	return out, err
}

// LoadAllocated reads the allocated customer table.
func (s *Store) LoadAllocated() ([]model.Customer, error) {
	var out []model.Customer
	err := s.read(AllocatedFile, func(r io.Reader) (err error) {
		out, err = export.ReadCustomersCSV(r)
		return err
	})
	return out, err
}

// LoadModel reads the fitted model.
func (s *Store) LoadModel() (*regression.Model, error) {
	var m regression.Model
	if err := s.read(ModelFile, jsonReader(&m)); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadAttributions reads the attribution set.
func (s *Store) LoadAttributions() (*attribution.Set, error) {
	var set attribution.Set
	if err := s.read(AttributionFile, jsonReader(&set)); err != nil {
		return nil, err
	}
	return &set, nil
}

// LoadSummary reads the allocation summary.
func (s *Store) LoadSummary() (model.Summary, error) {
	var sum model.Summary
	err := s.read(SummaryFile, jsonReader(&sum))
	return sum, err
}

// LoadResult reassembles the last saved run.
func (s *Store) LoadResult() (*pipeline.Result, error) {
	customers, err := s.LoadAllocated()
	if err != nil {
		return nil, err
	}
	m, err := s.LoadModel()
	if err != nil {
		return nil, err
	}
	set, err := s.LoadAttributions()
	if err != nil {
		return nil, err
	}
	if len(set.CustomerIDs) != len(customers) {
		return nil, fmt.Errorf("%s: %d attribution rows for %d customers", AttributionFile, len(set.CustomerIDs), len(customers))
	}
	sum, err := s.LoadSummary()
	if err != nil {
		return nil, err
	}
	res := &pipeline.Result{Customers: customers, Model: m, Attributions: set, Summary: sum}
	var man runManifest
	switch err := s.read(RunFile, jsonReader(&man)); {
	case err == nil:
		res.RunID, res.StartedAt, res.Published, res.Plan = man.RunID, man.StartedAt, man.Published, man.Plan
	case errors.Is(err, ErrNotFound):
		res.Plan = planFrom(customers)
	default:
		return nil, err
	}
	return res, nil
}

// planFrom rebuilds the allocation order from stored customers when no run
// manifest exists.
func planFrom(customers []model.Customer) allocation.Plan {
	entities := make([]allocation.Entity, len(customers))
	units := make(map[string]int, len(customers))
	for i, c := range customers {
		entities[i] = allocation.Entity{ID: c.ID, PriorityScore: c.ActionScore}
		units[c.ID] = c.AllocatedActions
	}
	a, err := allocation.New(allocation.Config{TotalBudget: 0, PerEntityCap: 1, RequestDivisor: 1})
	if err != nil {
		return allocation.Plan{}
	}
	plan, err := a.Allocate(entities)
	if err != nil {
		return allocation.Plan{}
	}
	for i := range plan.Assignments {
		as := &plan.Assignments[i]
		as.Units = units[as.ID]
		plan.Allocated += as.Units
		if as.Units > 0 {
			plan.Recipients++
		}
	}
	return plan
}

// write replaces rel atomically.
func (s *Store) write(rel string, fn func(io.Writer) error) error {
	path := s.Path(rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := fn(&buf); err != nil {
		return fmt.Errorf("encode %s: %w", rel, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write %s: %w", rel, err)
	}
	return nil
}

func (s *Store) read(rel string, fn func(io.Reader) error) error {
	f, err := os.Open(s.Path(rel))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s: %w", rel, ErrNotFound)
	}
	if err != nil {
		return err
	}
	defer f.Close()
	if err := fn(f); err != nil {
		return fmt.Errorf("decode %s: %w", rel, err)
	}
	return nil
}

func jsonWriter(v any) func(io.Writer) error {
	return func(w io.Writer) error { return export.WriteJSON(w, v) }
}

func jsonReader(v any) func(io.Reader) error {
	return func(r io.Reader) error { return export.ReadJSON(r, v) }
}
