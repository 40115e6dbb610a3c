package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordAttempt(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordAttempt("p4_phonics", "correct", false, 0.2)
	m.RecordAttempt("p4_phonics", "Hesitation", true, 0.4)
	m.RecordAttempt("p4_phonics", "Hesitation", true, 0.3)

	if got := testutil.ToFloat64(m.AttemptsTotal.WithLabelValues("p4_phonics", "Hesitation")); got != 2 {
		t.Errorf("expected 2 hesitation attempts, got %v", got)
	}
	if got := testutil.ToFloat64(m.Hesitations.WithLabelValues("p4_phonics")); got != 2 {
		t.Errorf("expected 2 hesitations, got %v", got)
	}
	if got := testutil.CollectAndCount(m.ProcessingSeconds); got != 1 {
		t.Errorf("expected 1 histogram series, got %d", got)
	}
}

func TestRecordPublish(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.RecordPublish(nil)
	m.RecordPublish(errors.New("down"))
	m.RecordPublish(nil)

	if got := testutil.ToFloat64(m.EventPublish.WithLabelValues("success")); got != 2 {
		t.Errorf("expected 2 successes, got %v", got)
	}
	if got := testutil.ToFloat64(m.EventPublish.WithLabelValues("error")); got != 1 {
		t.Errorf("expected 1 error, got %v", got)
	}
}
