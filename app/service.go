package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kilianp07/salesintel/api/customers"
	"github.com/kilianp07/salesintel/config"
	"github.com/kilianp07/salesintel/core/events"
	"github.com/kilianp07/salesintel/core/knowledge"
	coremetrics "github.com/kilianp07/salesintel/core/metrics"
	coremon "github.com/kilianp07/salesintel/core/monitoring"
	"github.com/kilianp07/salesintel/core/pipeline"
	"github.com/kilianp07/salesintel/core/precall"
	"github.com/kilianp07/salesintel/core/runlog"
	"github.com/kilianp07/salesintel/infra/dataset"
	"github.com/kilianp07/salesintel/infra/llm"
	"github.com/kilianp07/salesintel/infra/logger"
	"github.com/kilianp07/salesintel/infra/metrics"
	"github.com/kilianp07/salesintel/infra/monitoring"
	"github.com/kilianp07/salesintel/infra/mqtt"
	"github.com/kilianp07/salesintel/internal/eventbus"
)

// Service wires the pipeline, the dashboard API and the background jobs.
type Service struct {
	cfg     *config.Config
	log     logger.Logger
	bus     *eventbus.Bus
	sink    coremetrics.Sink
	runs    runlog.Store
	store   *dataset.Store
	kb      *knowledge.Base
	client  *mqtt.PahoClient
	runner  *pipeline.Runner
	planner *precall.Planner
	snap    *customers.Snapshot
	report  *coremon.Reporter

	mu sync.Mutex // serializes pipeline runs
}

// minEventBuffer is the smallest per-subscriber bus buffer. A run emits one
// publish event per recipient, so the buffer grows with the customer count.
const minEventBuffer = 1024

func eventBuffer(cfg *config.Config) int {
	return max(minEventBuffer, cfg.Generator.Customers+64)
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")
	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	sink, err := coremetrics.NewSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	runs, err := cfg.Logging.Open()
	if err != nil {
		return nil, fmt.Errorf("run log: %w", err)
	}
	kb, err := knowledge.NewBase(cfg.Knowledge.Dir, cfg.Knowledge.Truncate)
	if err != nil {
		_ = runs.Close()
		return nil, fmt.Errorf("knowledge base: %w", err)
	}

	s := &Service{
		cfg:    cfg,
		log:    logg,
		bus:    eventbus.NewWithBuffer(eventBuffer(cfg)),
		sink:   sink,
		runs:   runs,
		store:  dataset.New(cfg.Data.Dir),
		kb:     kb,
		snap:   customers.NewSnapshot(nil),
		report: coremon.NewReporter(mon, logg),
	}

	opts := []pipeline.Option{
		pipeline.WithBus(s.bus),
		pipeline.WithSink(sink),
		pipeline.WithRunLog(runs),
		pipeline.WithArtifacts(s.store),
	}
	if cfg.MQTT.Enabled {
		client, err := mqtt.NewPahoClient(cfg.MQTT)
		if err != nil {
			_ = runs.Close()
			return nil, fmt.Errorf("mqtt client: %w", err)
		}
		s.client = client
		opts = append(opts, pipeline.WithPublisher(client))
	}
	s.runner = pipeline.New(logger.New("pipeline"), opts...)

	var gen precall.LLM
	backend, err := llm.NewGenAI(context.Background(), cfg.LLM)
	switch {
	case errors.Is(err, precall.ErrNoAPIKey):
		logg.Warnf("%s is not set; pre-call plans are disabled", llm.APIKeyEnv)
	case err != nil:
		s.Close()
		return nil, fmt.Errorf("llm: %w", err)
	default:
		gen = backend
	}
	s.planner = precall.NewPlanner(gen, logger.New("precall"))
	return s, nil
}

// Runner returns the pipeline runner.
func (s *Service) Runner() *pipeline.Runner { return s.runner }

// Store returns the artifact store.
func (s *Service) Store() *dataset.Store { return s.store }

// RunLog returns the run log store.
func (s *Service) RunLog() runlog.Store { return s.runs }

// Knowledge returns the knowledge base.
func (s *Service) Knowledge() *knowledge.Base { return s.kb }

// Planner returns the pre-call planner.
func (s *Service) Planner() *precall.Planner { return s.planner }

// Snapshot returns the result served by the API.
func (s *Service) Snapshot() *customers.Snapshot { return s.snap }

// Refresh runs the pipeline and serves the new result.
func (s *Service) Refresh(ctx context.Context) (*pipeline.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := s.bus.Dropped()
	res, err := s.runner.Run(ctx, s.cfg.Pipeline())
	if n := s.bus.Dropped() - dropped; n > 0 {
		s.log.Warnf("event bus dropped %d events during run; metrics are incomplete", n)
	}
	if err != nil {
		return nil, err
	}
	s.snap.Store(res)
	return res, nil
}

// Prepare loads the last saved result, running the pipeline first when none
// exists and RunOnStart is set.
func (s *Service) Prepare(ctx context.Context) error {
	res, err := s.store.LoadResult()
	switch {
	case err == nil:
		s.snap.Store(res)
		s.log.Infof("loaded %d customers from %s", len(res.Customers), s.store.Root())
		return nil
	case errors.Is(err, dataset.ErrNotFound) && s.cfg.Schedule.RunOnStart:
		s.log.Infof("no saved result, running pipeline")
		_, err = s.Refresh(ctx)
		return err
	case errors.Is(err, dataset.ErrNotFound):
		s.log.Warnf("no saved result; run the setup command first")
		return nil
	default:
		return err
	}
}

// Handler returns the HTTP routes.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	customers.NewHandler(s.snap, s.planner, s.kb, s.sink, logger.New("api"), customers.Config{
		TopK:    s.cfg.Server.TopK,
		PlanDir: s.cfg.Server.PlanDir,
	}).Register(mux)
	if s.cfg.Server.MetricsPath != "" && s.cfg.Server.MetricsAddr == "" {
		mux.Handle("GET "+s.cfg.Server.MetricsPath, metrics.Handler(nil))
	}
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		if s.snap.Load() == nil {
			http.Error(w, "no result", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Run starts the service and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	collected := metrics.StartEventCollector(ctx, s.bus, s.sink)
	defer func() {
		s.bus.Close()
		<-collected
	}()
	if err := s.Prepare(ctx); err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	s.publishKnowledge(len(s.kb.Entries()), nil)

	if s.cfg.Knowledge.Watch {
		go func() {
			err := knowledge.WatchFunc(ctx, s.kb, s.cfg.Knowledge.Debounce, logger.New("knowledge"), s.publishKnowledge)
			s.report.Report("knowledge watcher", err, nil)
		}()
	}

	if s.cfg.Schedule.Cron != "" {
		sched := cron.New()
		if _, err := sched.AddFunc(s.cfg.Schedule.Cron, func() {
			_, err := s.Refresh(ctx)
			s.report.Report("scheduled refresh", err, map[string]string{"schedule": s.cfg.Schedule.Cron})
		}); err != nil {
			return fmt.Errorf("invalid cron schedule %q: %w", s.cfg.Schedule.Cron, err)
		}
		sched.Start()
		defer func() { <-sched.Stop().Done() }()
		s.log.Infof("pipeline refresh scheduled: %s", s.cfg.Schedule.Cron)
	}

	if addr := s.cfg.Server.MetricsAddr; addr != "" {
		go func() {
			s.log.Infof("metrics listening on %s", addr)
			s.report.Report("metrics server", metrics.StartPromServer(ctx, addr), map[string]string{"addr": addr})
		}()
	}

	srv := &http.Server{Addr: s.cfg.Server.Addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() {
		s.log.Infof("dashboard api listening on %s", s.cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errc:
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Errorf("http shutdown: %v", err)
	}
	return runErr
}

func (s *Service) publishKnowledge(n int, err error) {
	s.bus.Publish(events.KnowledgeEvent{Documents: n, Err: err})
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	if s.client != nil {
		s.client.Disconnect()
	}
	s.report.Flush(2 * time.Second)
	var errs []error
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	if s.runs != nil {
		errs = append(errs, s.runs.Close())
	}
	return errors.Join(errs...)
}
