package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"nwsl-backend/internal/components/assert"
	"nwsl-backend/internal/components/telemetry"
	"nwsl-backend/internal/notify"
	"nwsl-backend/internal/validate"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("nwsl.cmd.nwsl-validated")

const (
	report_service_run   = "service.run"
	report_service_write = "service.write-report"
	report_service_http  = "service.http"
)

var errRunInProgress = errors.New("a validation run is already in progress")

// Service runs the consistency checks on a schedule and serves the results.
type Service struct {
	tel       telemetry.API
	validator *validate.Validator
	notifier  *notify.Notifier
	reportDir string

	running sync.Mutex
	mutex   sync.RWMutex
	latest  *validate.Run
}

func NewService(tel telemetry.API, validator *validate.Validator, notifier *notify.Notifier, reportDir string) *Service {
	assert.NotNil(tel, "telemetry")
	assert.NotNil(validator, "validator")
	assert.NotNil(notifier, "notifier")

	return &Service{
		tel:       telemetry.NewScopedAPI("nwsl_validated", tel),
		validator: validator,
		notifier:  notifier,
		reportDir: reportDir,
	}
}

// RunOnce runs every check, saves the report and alerts on it. Runs never
// overlap, a call made while one is in progress fails.
func (s *Service) RunOnce(ctx context.Context) (validate.Run, error) {
	ctx, span := tracer.Start(ctx, "RunOnce")
	defer span.End()

	if !s.running.TryLock() {
		return validate.Run{}, errRunInProgress
	}
	defer s.running.Unlock()

	run, err := s.validator.RunAll(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "checks failed")
		s.tel.ReportBroken(report_service_run, err)
	}
	span.SetAttributes(
		attribute.String("run_id", run.ID),
		attribute.Float64("health_score", run.Summary.HealthScore),
	)

	path, writeErr := run.WriteFile(s.reportDir)
	if writeErr != nil {
		s.tel.ReportBroken(report_service_write, writeErr, s.reportDir)
	} else {
		s.tel.ReportDebug("wrote report", path)
	}

	s.mutex.Lock()
	s.latest = &run
	s.mutex.Unlock()

	_, alertErr := s.notifier.Alert(ctx, run)
	return run, errors.Join(err, writeErr, alertErr)
}

// Latest returns the last run done since the service started.
func (s *Service) Latest() (validate.Run, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.latest == nil {
		return validate.Run{}, false
	}
	return *s.latest, true
}

// ReportFiles lists the reports saved in the report dir, newest first.
func (s *Service) ReportFiles() ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(s.reportDir, "consistency_report_*.json"))
	if err != nil {
		return nil, err
	}
	names := make([]string, len(paths))
	for i, p := range paths {
		names[i] = filepath.Base(p)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(value)
	if err != nil {
		s.tel.ReportBroken(report_service_http, err)
	}
}

func (s *Service) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Service) handleLatest(w http.ResponseWriter, r *http.Request) {
	run, ok := s.Latest()
	if !ok {
		s.writeError(w, http.StatusNotFound, errors.New("no validation run yet"))
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

func (s *Service) handleList(w http.ResponseWriter, r *http.Request) {
	names, err := s.ReportFiles()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"reports": names})
}

func (s *Service) handleReport(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if filepath.Base(name) != name || filepath.Ext(name) != ".json" {
		s.writeError(w, http.StatusBadRequest, errors.New("invalid report name"))
		return
	}
	content, err := os.ReadFile(filepath.Join(s.reportDir, name))
	if errors.Is(err, os.ErrNotExist) {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("content-type", "application/json")
	w.Write(content)
}

func (s *Service) handleRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.RunOnce(r.Context())
	if errors.Is(err, errRunInProgress) {
		s.writeError(w, http.StatusConflict, err)
		return
	}
	// a run that partly failed still has a report worth returning
	s.writeJSON(w, http.StatusOK, run)
}

func (s *Service) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/reports", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Get("/latest", s.handleLatest)
		r.Get("/{name}", s.handleReport)
	})
	r.Post("/runs", s.handleRun)
	return r
}
