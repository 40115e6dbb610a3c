package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"reading-fluency-go/internal/processor"
	"reading-fluency-go/internal/report"
	"reading-fluency-go/internal/types"
)

type fakeProcessor struct {
	got processor.AttemptRequest
	res types.AttemptResult
	err error
}

func (f *fakeProcessor) ProcessAttempt(_ context.Context, req processor.AttemptRequest) (types.AttemptResult, error) {
	f.got = req
	return f.res, f.err
}

type fakeReports struct {
	reports []report.Report
	err     error
}

func (f *fakeReports) Build(_ context.Context, cohortID, userID string) (report.Report, error) {
	if f.err != nil {
		return report.Report{}, f.err
	}
	return report.Report{CohortID: cohortID, UserID: userID}, nil
}

func (f *fakeReports) BuildCohort(context.Context, string) ([]report.Report, error) {
	return f.reports, f.err
}

func multipartAttempt(t *testing.T, fields map[string]string, audio []byte) (*bytes.Buffer, string) {
	t.Helper()
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	for k, v := range fields {
		w.WriteField(k, v)
	}
	if audio != nil {
		fw, err := w.CreateFormFile("audio", "clip.webm")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		fw.Write(audio)
	}
	w.Close()
	return &b, w.FormDataContentType()
}

func TestHealthz(t *testing.T) {
	h := newServer(&fakeProcessor{}, &fakeReports{}).routes()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("expected 200 ok, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestPostAttempt(t *testing.T) {
	correct := true
	proc := &fakeProcessor{res: types.AttemptResult{ID: "a1", TestType: types.Phonics, IsCorrect: &correct}}
	h := newServer(proc, &fakeReports{}).routes()

	body, ct := multipartAttempt(t, map[string]string{
		"user_id": "u1", "cohort_id": "c1", "test_type": "p4_phonics", "target_text": "ship",
	}, []byte("audio"))
	req := httptest.NewRequest(http.MethodPost, "/attempts", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if proc.got.UserID != "u1" || proc.got.TestType != "p4_phonics" || proc.got.Filename != "clip.webm" || string(proc.got.Audio) != "audio" {
		t.Errorf("unexpected request passed to processor: %+v", proc.got)
	}
	var res types.AttemptResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.ID != "a1" {
		t.Errorf("expected attempt a1, got %+v", res)
	}
}

func TestPostAttempt_Errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		audio    []byte
		expected int
	}{
		{"missing audio", nil, nil, http.StatusBadRequest},
		{"invalid request", processor.ErrInvalidRequest, []byte("a"), http.StatusBadRequest},
		{"insufficient audio", processor.ErrInsufficientAudio, []byte("a"), http.StatusUnprocessableEntity},
		{"store failure", errors.New("disk full"), []byte("a"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newServer(&fakeProcessor{err: tt.err}, &fakeReports{}).routes()
			body, ct := multipartAttempt(t, map[string]string{"user_id": "u1", "test_type": "p4_phonics"}, tt.audio)
			req := httptest.NewRequest(http.MethodPost, "/attempts", body)
			req.Header.Set("Content-Type", ct)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, rec.Code)
			}
		})
	}
}

func TestGetReports(t *testing.T) {
	reps := &fakeReports{reports: []report.Report{{UserID: "u1"}, {UserID: "u2"}}}
	h := newServer(&fakeProcessor{}, reps).routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports?cohort_id=c1&user_id=u9", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"user_id": "u9"`) {
		t.Errorf("expected single report for u9, got %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports?cohort_id=c1", nil))
	var got []report.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil || len(got) != 2 {
		t.Errorf("expected 2 cohort reports, got %d (%v)", len(got), err)
	}
}

func TestGetReports_NoAttempts(t *testing.T) {
	h := newServer(&fakeProcessor{}, &fakeReports{err: report.ErrNoAttempts}).routes()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports?cohort_id=empty", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestExport(t *testing.T) {
	reps := &fakeReports{reports: []report.Report{{UserID: "u1", CohortID: "c/1"}}}
	h := newServer(&fakeProcessor{}, reps).routes()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/export?cohort_id=c/1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != xlsxType {
		t.Errorf("unexpected content type %s", rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "achievement-c_1.xlsx") {
		t.Errorf("unexpected disposition %s", rec.Header().Get("Content-Disposition"))
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")) {
		t.Error("expected a zip-based xlsx body")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newServer(&fakeProcessor{}, &fakeReports{}).routes()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestServe_ReturnsListenError(t *testing.T) {
	srv := &http.Server{Addr: "127.0.0.1:-1", Handler: http.NewServeMux()}
	done := make(chan error, 1)
	go func() { done <- serve(srv, make(chan os.Signal), time.Second) }()

	select {
	case err := <-done:
		if err == nil || !strings.Contains(err.Error(), "listen") {
			t.Errorf("expected listen error, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return on a listen failure")
	}
}

func TestServe_StopsOnSignal(t *testing.T) {
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NewServeMux()}
	stop := make(chan os.Signal, 1)
	done := make(chan error, 1)
	go func() { done <- serve(srv, stop, time.Second) }()

	stop <- syscall.SIGTERM
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after stop")
	}
}
