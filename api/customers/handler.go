// Package customers serves the dashboard API over the latest pipeline result.
package customers

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/kilianp07/salesintel/core/attribution"
	"github.com/kilianp07/salesintel/core/knowledge"
	"github.com/kilianp07/salesintel/core/logger"
	"github.com/kilianp07/salesintel/core/metrics"
	"github.com/kilianp07/salesintel/core/model"
	"github.com/kilianp07/salesintel/core/pipeline"
	"github.com/kilianp07/salesintel/core/precall"
)

const (
	// DefaultTopK is the number of drivers shown in a waterfall.
	DefaultTopK = 5
	// DefaultInteractions is the number of interaction series returned.
	DefaultInteractions = 3
)

// Knowledge provides the documents given to the planner.
type Knowledge interface {
	Entries() []knowledge.Entry
}

// Config tunes the handlers.
type Config struct {
	TopK int `json:"top_k"`
	// PlanDir receives generated plans as Markdown files. Empty disables it.
	PlanDir string `json:"plan_dir"`
}

// Handler serves the customer endpoints.
type Handler struct {
	snap    *Snapshot
	planner *precall.Planner
	kb      Knowledge
	sink    metrics.Sink
	log     logger.Logger
	cfg     Config
}

// NewHandler builds the API. planner, kb and sink may be nil.
func NewHandler(snap *Snapshot, planner *precall.Planner, kb Knowledge, sink metrics.Sink, log logger.Logger, cfg Config) *Handler {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Handler{snap: snap, planner: planner, kb: kb, sink: sink, log: log, cfg: cfg}
}

// Register mounts the endpoints on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/customers", h.list)
	mux.HandleFunc("GET /api/customers/{id}", h.detail)
	mux.HandleFunc("GET /api/customers/{id}/interactions", h.interactions)
	mux.HandleFunc("POST /api/customers/{id}/plan", h.plan)
	mux.HandleFunc("GET /api/summary", h.summary)
}

// ListItem is a row of the customer selector.
type ListItem struct {
	ID                   string  `json:"customer_id"`
	CompanyName          string  `json:"company_name"`
	AllocatedActions     int     `json:"allocated_actions"`
	PredictedRevenue     float64 `json:"predicted_expansion_revenue"`
	ActionScore          float64 `json:"action_score"`
	RecommendedPromotion string  `json:"recommended_promotion"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	res, ok := h.result(w)
	if !ok {
		return
	}
	out := []ListItem{}
	for _, c := range res.Customers {
		if c.AllocatedActions == 0 {
			continue
		}
		out = append(out, ListItem{
			ID:                   c.ID,
			CompanyName:          c.CompanyName,
			AllocatedActions:     c.AllocatedActions,
			PredictedRevenue:     c.PredictedExpansionRevenue,
			ActionScore:          c.ActionScore,
			RecommendedPromotion: c.RecommendedPromotion,
		})
	}
	slices.SortStableFunc(out, func(a, b ListItem) int {
		switch {
		case a.ActionScore > b.ActionScore:
			return -1
		case a.ActionScore < b.ActionScore:
			return 1
		}
		return 0
	})
	writeJSON(w, http.StatusOK, out)
}

// Detail is one customer with its attribution breakdown.
type Detail struct {
	Customer   model.Customer        `json:"customer"`
	Waterfall  attribution.Waterfall `json:"waterfall"`
	TopDrivers []attribution.Driver  `json:"top_drivers"`
	Baseline   float64               `json:"baseline_value"`
}

func (h *Handler) detail(w http.ResponseWriter, r *http.Request) {
	res, c, contrib, ok := h.customer(w, r)
	if !ok {
		return
	}
	names := res.Attributions.FeatureNames
	vals := c.Features()
	base := res.Attributions.ExpectedValue
	writeJSON(w, http.StatusOK, Detail{
		Customer:   c,
		Waterfall:  attribution.BuildWaterfall(names, contrib, vals, base, c.PredictedExpansionRevenue, h.cfg.TopK),
		TopDrivers: attribution.TopDrivers(names, contrib, vals, h.cfg.TopK),
		Baseline:   base,
	})
}

func (h *Handler) interactions(w http.ResponseWriter, r *http.Request) {
	res, c, contrib, ok := h.customer(w, r)
	if !ok {
		return
	}
	k := DefaultInteractions
	if s := r.URL.Query().Get("k"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			http.Error(w, "k must be a positive integer", http.StatusBadRequest)
			return
		}
		k = v
	}
	drivers := attribution.TopDrivers(res.Attributions.FeatureNames, contrib, c.Features(), k)
	out := make([]attribution.Series, 0, len(drivers))
	for _, d := range drivers {
		s, err := attribution.Interactions(res.Attributions, res.Customers, d.Feature, c.ID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		out = append(out, s)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) plan(w http.ResponseWriter, r *http.Request) {
	res, c, contrib, ok := h.customer(w, r)
	if !ok {
		return
	}
	if h.planner == nil {
		http.Error(w, precall.ErrNoAPIKey.Error(), http.StatusServiceUnavailable)
		return
	}
	req := precall.Request{Customer: precall.BuildContext(c, res.Attributions.FeatureNames, contrib, res.Attributions.ExpectedValue)}
	if h.kb != nil {
		req.Knowledge = h.kb.Entries()
	}
	start := time.Now()
	p, err := h.planner.Generate(r.Context(), req)
	h.recordPlan(c.ID, time.Since(start), err)
	switch {
	case errors.Is(err, precall.ErrNoAPIKey):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	case err != nil:
		h.log.Errorf("plan %s: %v", c.ID, err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	if h.cfg.PlanDir != "" {
		if err := savePlan(h.cfg.PlanDir, p); err != nil {
			h.log.Warnf("save plan %s: %v", c.ID, err)
		}
	}
	if r.URL.Query().Get("format") == "markdown" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="`+p.FileName()+`"`)
		_, _ = w.Write([]byte(p.Markdown))
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	res, ok := h.result(w)
	if !ok {
		return
	}
	type out struct {
		model.Summary
		PipelineValueMillions float64 `json:"total_pipeline_value_millions"`
		RunID                 string  `json:"run_id,omitempty"`
	}
	writeJSON(w, http.StatusOK, out{Summary: res.Summary, PipelineValueMillions: res.Summary.PipelineValueMillions(), RunID: res.RunID})
}

func (h *Handler) recordPlan(id string, latency time.Duration, err error) {
	rec, ok := h.sink.(metrics.PlanRecorder)
	if !ok {
		return
	}
	pr := metrics.PlanResult{CustomerID: id, Success: err == nil, Latency: latency, Time: time.Now()}
	if err != nil {
		pr.Error = err.Error()
	}
	if err := rec.RecordPlan(pr); err != nil {
		h.log.Warnf("record plan metric: %v", err)
	}
}

func (h *Handler) result(w http.ResponseWriter) (*pipeline.Result, bool) {
	res := h.snap.Load()
	if res == nil {
		http.Error(w, "no pipeline result available", http.StatusServiceUnavailable)
		return nil, false
	}
	return res, true
}

func (h *Handler) customer(w http.ResponseWriter, r *http.Request) (*pipeline.Result, model.Customer, []float64, bool) {
	res, ok := h.result(w)
	if !ok {
		return nil, model.Customer{}, nil, false
	}
	id := r.PathValue("id")
	c, found := res.Customer(id)
	contrib, hasRow := res.Attributions.Row(id)
	if !found || !hasRow {
		http.Error(w, "customer "+id+" not found", http.StatusNotFound)
		return nil, model.Customer{}, nil, false
	}
	return res, c, contrib, true
}

func savePlan(dir string, p precall.Plan) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, p.FileName()), []byte(p.Markdown), 0o644)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
