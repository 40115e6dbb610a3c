// Package achievement decides whether a student reached the achievement
// standard of each reading domain. A domain is achieved when the student's
// accuracy meets an absolute threshold and the student is not more than one
// standard deviation below the cohort mean. The cohort test can only veto; when
// the cohort is too small or shows no spread it is skipped.
package achievement

import "reading-fluency-go/internal/types"

const (
	DefaultThreshold    = 70.0
	DefaultZScoreCutoff = -1.0
)

type Config struct {
	// DefaultThreshold applies to domains missing from Thresholds.
	DefaultThreshold float64
	Thresholds       map[types.TestType]float64
	ZScoreCutoff     float64
}

func DefaultConfig() Config {
	return Config{
		DefaultThreshold: DefaultThreshold,
		ZScoreCutoff:     DefaultZScoreCutoff,
	}
}

type Evaluator struct {
	cfg Config
}

// New copies cfg; later changes to the caller's Thresholds map have no effect.
func New(cfg Config) *Evaluator {
	th := make(map[types.TestType]float64, len(cfg.Thresholds))
	for k, v := range cfg.Thresholds {
		th[k] = v
	}
	cfg.Thresholds = th
	return &Evaluator{cfg: cfg}
}

func (e *Evaluator) Threshold(t types.TestType) float64 {
	if v, ok := e.cfg.Thresholds[t]; ok {
		return v
	}
	return e.cfg.DefaultThreshold
}

func (e *Evaluator) EvaluateDomain(testType types.TestType, studentAccuracy float64, stat *types.CohortStatistic) types.AchievementVerdict {
	threshold := e.Threshold(testType)
	v := types.AchievementVerdict{
		TestType:          testType,
		StudentAccuracy:   studentAccuracy,
		AbsoluteThreshold: threshold,
		MeetsAbsolute:     studentAccuracy >= threshold,
		MeetsStatistical:  types.StatisticalInapplicable,
		Tested:            true,
	}
	if stat != nil {
		mean, sd := stat.Mean, stat.StdDev
		v.ClassMean = &mean
		v.ClassStdDev = &sd
		if stat.Count > 1 && sd > 0 {
			z := (studentAccuracy - mean) / sd
			v.ZScore = &z
			if z >= e.cfg.ZScoreCutoff {
				v.MeetsStatistical = types.StatisticalPass
			} else {
				v.MeetsStatistical = types.StatisticalFail
			}
		}
	}
	v.OverallAchieved = v.MeetsAbsolute && v.MeetsStatistical != types.StatisticalFail
	return v
}

// EvaluateOverall scores the six fixed domains. A domain with no entry in
// studentResults is scored as accuracy 0 and not achieved. When a domain has
// several entries the first scorable one is used.
func (e *Evaluator) EvaluateOverall(studentResults []types.AttemptResult, cohortResults map[types.TestType]*types.CohortStatistic) types.OverallAchievement {
	domains := types.AllTestTypes()
	out := types.OverallAchievement{
		Domains:    make(map[types.TestType]types.AchievementVerdict, len(domains)),
		TotalCount: len(domains),
	}
	for _, t := range domains {
		stat := cohortResults[t]
		accuracy, found := studentAccuracy(t, studentResults)
		var v types.AchievementVerdict
		if found {
			v = e.EvaluateDomain(t, accuracy, stat)
		} else {
			v = e.untested(t, stat)
		}
		out.Domains[t] = v
		if v.OverallAchieved {
			out.AchievedCount++
		}
	}
	out.AllAchieved = out.AchievedCount == out.TotalCount
	return out
}

func (e *Evaluator) untested(t types.TestType, stat *types.CohortStatistic) types.AchievementVerdict {
	v := types.AchievementVerdict{
		TestType:          t,
		AbsoluteThreshold: e.Threshold(t),
		MeetsStatistical:  types.StatisticalInapplicable,
	}
	if stat != nil {
		mean, sd := stat.Mean, stat.StdDev
		v.ClassMean = &mean
		v.ClassStdDev = &sd
	}
	return v
}

func studentAccuracy(t types.TestType, results []types.AttemptResult) (float64, bool) {
	for _, r := range results {
		if r.TestType != t {
			continue
		}
		if s, ok := r.Score(); ok {
			return s, true
		}
	}
	return 0, false
}
