package aggregator

import (
	"math"
	"sort"

	"reading-fluency-go/internal/types"
)

// ComputeStatistics returns the mean, population standard deviation and count
// of attempt scores for one domain. It returns nil when the domain has no
// scorable attempts.
func ComputeStatistics(testType types.TestType, attempts []types.AttemptResult) *types.CohortStatistic {
	var scores []float64
	for _, a := range attempts {
		if a.TestType != testType {
			continue
		}
		if s, ok := a.Score(); ok {
			scores = append(scores, s)
		}
	}
	if len(scores) == 0 {
		return nil
	}

	n := float64(len(scores))
	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	mean := sum / n
	sq := 0.0
	for _, s := range scores {
		d := s - mean
		sq += d * d
	}
	return &types.CohortStatistic{
		TestType: testType,
		Mean:     mean,
		StdDev:   math.Sqrt(sq / n),
		Count:    len(scores),
	}
}

// ComputeAll computes statistics for each of the six domains. Domains without
// attempts map to nil.
func ComputeAll(attempts []types.AttemptResult) map[types.TestType]*types.CohortStatistic {
	out := map[types.TestType]*types.CohortStatistic{}
	for _, t := range types.AllTestTypes() {
		out[t] = ComputeStatistics(t, attempts)
	}
	return out
}

type key struct {
	user     string
	testType types.TestType
}

// Summarize collapses attempts into one record per (user, domain) whose
// accuracy is the mean attempt score. Unscorable attempts are ignored. Output
// is ordered by user then domain; CreatedAt is the latest attempt time.
func Summarize(attempts []types.AttemptResult) []types.AttemptResult {
	total := map[key]float64{}
	count := map[key]int{}
	latest := map[key]types.AttemptResult{}
	for _, a := range attempts {
		s, ok := a.Score()
		if !ok {
			continue
		}
		k := key{a.UserID, a.TestType}
		total[k] += s
		count[k]++
		if prev, seen := latest[k]; !seen || a.CreatedAt.After(prev.CreatedAt) {
			latest[k] = a
		}
	}

	out := make([]types.AttemptResult, 0, len(count))
	for k, c := range count {
		acc := total[k] / float64(c)
		last := latest[k]
		out = append(out, types.AttemptResult{
			TestType:  k.testType,
			UserID:    k.user,
			CohortID:  last.CohortID,
			Accuracy:  &acc,
			CreatedAt: last.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].TestType < out[j].TestType
	})
	return out
}

// ForUser filters attempts by user id.
func ForUser(userID string, attempts []types.AttemptResult) []types.AttemptResult {
	var out []types.AttemptResult
	for _, a := range attempts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out
}
