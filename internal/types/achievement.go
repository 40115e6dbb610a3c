package types

import (
	"encoding/json"
	"fmt"
)

// StatisticalVerdict is the outcome of the cohort-relative test. Inapplicable
// means the cohort was too small or had no spread; it never blocks achievement.
type StatisticalVerdict int

const (
	StatisticalInapplicable StatisticalVerdict = iota
	StatisticalPass
	StatisticalFail
)

func (v StatisticalVerdict) String() string {
	switch v {
	case StatisticalPass:
		return "pass"
	case StatisticalFail:
		return "fail"
	default:
		return "inapplicable"
	}
}

// MarshalJSON encodes the verdict as true, false or null.
func (v StatisticalVerdict) MarshalJSON() ([]byte, error) {
	switch v {
	case StatisticalPass:
		return []byte("true"), nil
	case StatisticalFail:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

func (v *StatisticalVerdict) UnmarshalJSON(b []byte) error {
	var p *bool
	if err := json.Unmarshal(b, &p); err != nil {
		return fmt.Errorf("statistical verdict: %w", err)
	}
	switch {
	case p == nil:
		*v = StatisticalInapplicable
	case *p:
		*v = StatisticalPass
	default:
		*v = StatisticalFail
	}
	return nil
}

type AchievementVerdict struct {
	TestType          TestType           `json:"test_type"`
	StudentAccuracy   float64            `json:"student_accuracy"`
	AbsoluteThreshold float64            `json:"absolute_threshold"`
	MeetsAbsolute     bool               `json:"meets_absolute"`
	ClassMean         *float64           `json:"class_mean"`
	ClassStdDev       *float64           `json:"class_std_dev"`
	ZScore            *float64           `json:"z_score"`
	MeetsStatistical  StatisticalVerdict `json:"meets_statistical"`
	OverallAchieved   bool               `json:"overall_achieved"`

	// Tested is false when the student had no scored attempt in the domain.
	Tested bool `json:"tested"`
}

// OverallAchievement holds one verdict for each of the six domains.
type OverallAchievement struct {
	Domains       map[TestType]AchievementVerdict `json:"domains"`
	AchievedCount int                             `json:"achieved_count"`
	TotalCount    int                             `json:"total_count"`
	AllAchieved   bool                            `json:"all_achieved"`
}
