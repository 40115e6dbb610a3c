package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"reading-fluency-go/internal/dataset"
	"reading-fluency-go/internal/logger"
	"reading-fluency-go/internal/processor"
	"reading-fluency-go/internal/report"
	"reading-fluency-go/internal/types"
)

const (
	maxUploadBytes = 32 << 20
	xlsxType       = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type attemptProcessor interface {
	ProcessAttempt(ctx context.Context, req processor.AttemptRequest) (types.AttemptResult, error)
}

type reportBuilder interface {
	Build(ctx context.Context, cohortID, userID string) (report.Report, error)
	BuildCohort(ctx context.Context, cohortID string) ([]report.Report, error)
}

type server struct {
	attempts attemptProcessor
	reports  reportBuilder
}

func newServer(attempts attemptProcessor, reports reportBuilder) *server {
	return &server{attempts: attempts, reports: reports}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		logger.New().WithRequest(r).Debug("health check")
		fmt.Fprint(w, "ok")
	})
	mux.HandleFunc("POST /attempts", s.handleAttempt)
	mux.HandleFunc("GET /reports", s.handleReports)
	mux.HandleFunc("GET /reports/export", s.handleExport)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func (s *server) handleAttempt(w http.ResponseWriter, r *http.Request) {
	reqLog := logger.New().WithRequest(r).WithField("handler", "attempts")

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		reqLog.WithField("error", err.Error()).Warn("bad multipart form")
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	file, hdr, err := r.FormFile("audio")
	if err != nil {
		reqLog.Warn("missing audio")
		http.Error(w, "missing audio", http.StatusBadRequest)
		return
	}
	defer file.Close()
	audio, err := io.ReadAll(file)
	if err != nil {
		reqLog.WithField("error", err.Error()).Error("read audio failed")
		http.Error(w, "read audio failed", http.StatusBadRequest)
		return
	}

	req := processor.AttemptRequest{
		UserID:     r.FormValue("user_id"),
		CohortID:   r.FormValue("cohort_id"),
		TestType:   r.FormValue("test_type"),
		TargetText: r.FormValue("target_text"),
		Filename:   hdr.Filename,
		Audio:      audio,
	}
	reqLog = reqLog.WithField("user_id", req.UserID).WithField("test_type", req.TestType)

	start := time.Now()
	res, err := s.attempts.ProcessAttempt(r.Context(), req)
	reqLog = reqLog.WithField("duration_ms", time.Since(start).Milliseconds())
	switch {
	case errors.Is(err, processor.ErrInvalidRequest):
		reqLog.WithField("error", err.Error()).Warn("invalid attempt")
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, processor.ErrInsufficientAudio):
		reqLog.Warn("insufficient audio")
		writeJSON(w, http.StatusUnprocessableEntity, res)
	case err != nil:
		reqLog.WithField("error", err.Error()).Error("attempt not stored")
		http.Error(w, "attempt could not be stored", http.StatusInternalServerError)
	default:
		reqLog.WithField("attempt_id", res.ID).Info("attempt processed")
		writeJSON(w, http.StatusCreated, res)
	}
}

func (s *server) handleReports(w http.ResponseWriter, r *http.Request) {
	reqLog := logger.New().WithRequest(r).WithField("handler", "reports")
	cohortID := r.URL.Query().Get("cohort_id")
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))

	if userID != "" {
		rep, err := s.reports.Build(r.Context(), cohortID, userID)
		if err != nil {
			reqLog.WithField("error", err.Error()).Error("report failed")
			http.Error(w, "report failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, rep)
		return
	}

	reps, err := s.reports.BuildCohort(r.Context(), cohortID)
	if err != nil {
		s.reportError(w, reqLog.WithField("cohort_id", cohortID), err)
		return
	}
	writeJSON(w, http.StatusOK, reps)
}

func (s *server) handleExport(w http.ResponseWriter, r *http.Request) {
	reqLog := logger.New().WithRequest(r).WithField("handler", "export")
	cohortID := r.URL.Query().Get("cohort_id")

	reps, err := s.reports.BuildCohort(r.Context(), cohortID)
	if err != nil {
		s.reportError(w, reqLog.WithField("cohort_id", cohortID), err)
		return
	}
	w.Header().Set("Content-Type", xlsxType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="achievement-%s.xlsx"`, safeName(cohortID)))
	if err := dataset.WriteReports(w, reps); err != nil {
		reqLog.WithField("error", err.Error()).Error("export failed")
	}
}

func (s *server) reportError(w http.ResponseWriter, log *logrus.Entry, err error) {
	if errors.Is(err, report.ErrNoAttempts) {
		http.Error(w, "no attempts for cohort", http.StatusNotFound)
		return
	}
	log.WithField("error", err.Error()).Error("report failed")
	http.Error(w, "report failed", http.StatusInternalServerError)
}

// serve runs srv until it fails or stop fires, then shuts it down within grace.
func serve(srv *http.Server, stop <-chan os.Signal, grace time.Duration) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-stop:
	}

	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		logger.New().WithError(err).Error("failed to write response")
	}
}

func safeName(s string) string {
	if s == "" {
		return "all"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}
