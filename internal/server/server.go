// Package server exposes the trigger endpoint that turns a monitoring
// configuration document into a compliance report.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"slareport/internal/config"
	"slareport/internal/descriptor"
	"slareport/internal/history"
	"slareport/internal/report"
	"slareport/internal/signals"
)

const maxBodyBytes = 1 << 20

type Server struct {
	runner  *cycleRunner
	builder *report.Builder
	store   history.Store
	log     *zap.Logger
	server  *http.Server
}

// New wires the trigger endpoint. store may be nil when report archiving is
// disabled.
func New(cfg config.Config, registry *signals.Registry, builder *report.Builder, store history.Store, log *zap.Logger) *Server {
	s := &Server{
		runner: &cycleRunner{
			registry:      registry,
			retry:         signals.RetryPolicy{MaxAttempts: cfg.RetryAttempts, BaseDelay: cfg.RetryBaseDelay.Std()},
			window:        cfg.Window.Std(),
			deadline:      cfg.CycleDeadline.Std(),
			maxConcurrent: cfg.MaxConcurrentFetches,
			log:           log,
			now:           time.Now,
		},
		builder: builder,
		store:   store,
		log:     log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/v1/compliance_report", s.handleComplianceReport)
	mux.HandleFunc("/v1/compliance_report/", s.handleReportByID)

	s.server = &http.Server{
		Addr:         cfg.Listen,
		Handler:      requestLogging(log, mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.CycleDeadline.Std() + 15*time.Second,
	}
	return s
}

func (s *Server) Start() error {
	s.log.Info("listening", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down")
	return s.server.Shutdown(ctx)
}

// Handler exposes the routing tree for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) handleComplianceReport(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleTrigger(w, r)
	case http.MethodGet:
		s.handleRecentReports(w, r)
	default:
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleTrigger runs one evaluation cycle: RECEIVED, VALIDATING, EVALUATING,
// BUILDING, RESPONDING, with FAILED terminal on unrecoverable errors.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	began := time.Now()
	log := s.log.With(zap.String("remote", r.RemoteAddr))
	log.Info("cycle phase", zap.String("phase", string(PhaseReceived)))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		log.Warn("cycle phase", zap.String("phase", string(PhaseFailed)), zap.Error(err))
		cyclesTotal.WithLabelValues("failed").Inc()
		respondError(w, http.StatusBadRequest, fmt.Sprintf("read request body: %v", err))
		return
	}

	log.Info("cycle phase", zap.String("phase", string(PhaseValidating)))
	set, err := descriptor.Parse(body)
	if err != nil {
		log.Warn("cycle phase", zap.String("phase", string(PhaseFailed)), zap.Error(err))
		cyclesTotal.WithLabelValues("failed").Inc()
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if r.URL.Query().Get("dry_run") == "true" {
		respondJSON(w, http.StatusOK, map[string]any{
			"valid":    true,
			"projects": len(set.Projects),
			"services": set.Len(),
		})
		return
	}

	log.Info("cycle phase", zap.String("phase", string(PhaseEvaluating)), zap.Int("services", set.Len()))
	outcome := s.runner.run(r.Context(), set)
	if outcome.deadlineHit && !outcome.usable() {
		log.Error("cycle phase", zap.String("phase", string(PhaseFailed)),
			zap.String("reason", "deadline elapsed with no usable results"))
		cyclesTotal.WithLabelValues("deadline").Inc()
		cycleDuration.Observe(time.Since(began).Seconds())
		respondError(w, http.StatusGatewayTimeout, "cycle deadline elapsed with no usable results")
		return
	}

	log.Info("cycle phase", zap.String("phase", string(PhaseBuilding)))
	rep := s.builder.Build(set, outcome.results, outcome.window, s.runner.now().UTC())

	if s.store != nil {
		if err := s.store.Save(rep); err != nil {
			// Archiving is best-effort; the report is still returned.
			log.Error("archive report", zap.String("report", rep.ID), zap.Error(err))
		} else {
			reportsArchived.Inc()
		}
	}

	log.Info("cycle phase", zap.String("phase", string(PhaseResponding)),
		zap.String("report", rep.ID), zap.String("status", string(rep.Status)),
		zap.Duration("took", time.Since(began)))
	cyclesTotal.WithLabelValues(strings.ToLower(string(rep.Status))).Inc()
	cycleDuration.Observe(time.Since(began).Seconds())
	respondJSON(w, http.StatusOK, rep)
}

func (s *Server) handleRecentReports(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "report history is disabled")
		return
	}
	reports, err := s.store.Recent(20)
	if err != nil {
		s.log.Error("list recent reports", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "query report history")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

func (s *Server) handleReportByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "report history is disabled")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/compliance_report/")
	if id == "" {
		respondError(w, http.StatusBadRequest, "report id required")
		return
	}
	rep, err := s.store.Get(id)
	if errors.Is(err, history.ErrNotFound) {
		respondError(w, http.StatusNotFound, fmt.Sprintf("report not found: %s", id))
		return
	}
	if err != nil {
		s.log.Error("load report", zap.String("report", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "query report history")
		return
	}
	respondJSON(w, http.StatusOK, rep)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ready := s.runner.registry.Types() > 0
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, map[string]any{
		"ready":          ready,
		"collectorTypes": s.runner.registry.Types(),
		"historyEnabled": s.store != nil,
	})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func requestLogging(log *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		began := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", recorder.status),
			zap.Duration("took", time.Since(began)))
	})
}
