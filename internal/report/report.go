// Package report assembles achievement reports from a snapshot of stored
// attempts.
package report

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"reading-fluency-go/internal/achievement"
	"reading-fluency-go/internal/actionable"
	"reading-fluency-go/internal/aggregator"
	"reading-fluency-go/internal/logger"
	"reading-fluency-go/internal/metrics"
	"reading-fluency-go/internal/types"
)

var ErrNoAttempts = errors.New("no attempts for cohort")

// Snapshotter returns every attempt of a cohort at one point in time.
type Snapshotter interface {
	ListAttempts(ctx context.Context, cohortID string) ([]types.AttemptResult, error)
}

type Report struct {
	CohortID    string                                    `json:"cohort_id"`
	UserID      string                                    `json:"user_id"`
	Achievement types.OverallAchievement                  `json:"achievement"`
	Cohort      map[types.TestType]*types.CohortStatistic `json:"cohort"`
	Card        actionable.ActionCard                     `json:"action_card"`
	GeneratedAt time.Time                                 `json:"generated_at"`
}

type Service struct {
	snap      Snapshotter
	evaluator *achievement.Evaluator
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewService(snap Snapshotter, evaluator *achievement.Evaluator, m *metrics.Metrics) *Service {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &Service{snap: snap, evaluator: evaluator, metrics: m, now: time.Now}
}

// Build reports one student against their cohort. Cohort statistics cover
// every scorable attempt in the snapshot; the student's own accuracy per
// domain is the mean of their attempts.
func (s *Service) Build(ctx context.Context, cohortID, userID string) (Report, error) {
	attempts, err := s.snap.ListAttempts(ctx, cohortID)
	if err != nil {
		return Report{}, fmt.Errorf("snapshot cohort %s: %w", cohortID, err)
	}
	return s.build(cohortID, userID, attempts, aggregator.ComputeAll(attempts)), nil
}

// BuildCohort reports every student seen in the cohort snapshot, ordered by
// user id. All reports share one snapshot.
func (s *Service) BuildCohort(ctx context.Context, cohortID string) ([]Report, error) {
	attempts, err := s.snap.ListAttempts(ctx, cohortID)
	if err != nil {
		return nil, fmt.Errorf("snapshot cohort %s: %w", cohortID, err)
	}
	if len(attempts) == 0 {
		return nil, ErrNoAttempts
	}
	stats := aggregator.ComputeAll(attempts)

	seen := map[string]bool{}
	var users []string
	for _, a := range attempts {
		if !seen[a.UserID] {
			seen[a.UserID] = true
			users = append(users, a.UserID)
		}
	}
	sort.Strings(users)

	out := make([]Report, 0, len(users))
	for _, u := range users {
		out = append(out, s.build(cohortID, u, attempts, stats))
	}
	logger.New().WithComponent("report").
		WithField("cohort_id", cohortID).
		WithField("students", len(out)).
		Info("cohort reports built")
	return out, nil
}

func (s *Service) build(cohortID, userID string, attempts []types.AttemptResult, stats map[types.TestType]*types.CohortStatistic) Report {
	student := aggregator.Summarize(aggregator.ForUser(userID, attempts))
	oa := s.evaluator.EvaluateOverall(student, stats)
	s.metrics.ReportsBuilt.Inc()
	return Report{
		CohortID:    cohortID,
		UserID:      userID,
		Achievement: oa,
		Cohort:      stats,
		Card:        actionable.Generate(oa),
		GeneratedAt: s.now().UTC(),
	}
}
