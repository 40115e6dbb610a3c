package actionable

import (
	"fmt"
	"strings"

	"reading-fluency-go/internal/types"
)

type ActionCard struct {
	Insight string `json:"insight"`
	Action  string `json:"action"`
	Impact  string `json:"impact"`
}

var domainLabels = map[types.TestType]string{
	types.AlphabetNaming:      "alphabet naming",
	types.PhonemeSegmentation: "phoneme segmentation",
	types.StressRhythm:        "stress and rhythm",
	types.Phonics:             "phonics",
	types.Vocabulary:          "vocabulary",
	types.Comprehension:       "comprehension",
}

var domainActions = map[types.TestType]string{
	types.AlphabetNaming:      "Daily letter-name drills with flash cards",
	types.PhonemeSegmentation: "Practice splitting short words into sounds with counters",
	types.StressRhythm:        "Echo-read short phrases, clapping the stressed syllables",
	types.Phonics:             "Decode decodable word lists matched to the missed patterns",
	types.Vocabulary:          "Pre-teach target words before each reading session",
	types.Comprehension:       "Retell each passage aloud and answer one why-question",
}

// Label returns a readable domain name.
func Label(t types.TestType) string {
	if l, ok := domainLabels[t]; ok {
		return l
	}
	return string(t)
}

// Generate turns an achievement result into a teacher-facing recommendation.
// It targets the failed domain with the lowest accuracy.
func Generate(oa types.OverallAchievement) ActionCard {
	if oa.TotalCount > 0 && oa.AllAchieved {
		return ActionCard{
			Insight: fmt.Sprintf("All %d reading domains achieved", oa.TotalCount),
			Action:  "Move on to longer connected-text passages",
			Impact:  "Keep fluency growing without remedial time",
		}
	}

	var (
		worst   types.TestType
		lowest  float64
		found   bool
		vetoed  []string
		missing []string
	)
	for _, t := range types.AllTestTypes() {
		v, ok := oa.Domains[t]
		if !ok || v.OverallAchieved {
			continue
		}
		if v.MeetsAbsolute && v.MeetsStatistical == types.StatisticalFail {
			vetoed = append(vetoed, Label(t))
		}
		if !v.Tested {
			missing = append(missing, Label(t))
		}
		if !found || v.StudentAccuracy < lowest {
			worst, lowest, found = t, v.StudentAccuracy, true
		}
	}
	if !found {
		return ActionCard{
			Insight: "No achievement data for this student",
			Action:  "Record attempts in every reading domain",
			Impact:  "Enables a first achievement report",
		}
	}

	insight := fmt.Sprintf("Weakest domain: %s (%.0f%% accuracy), %d of %d achieved",
		Label(worst), lowest, oa.AchievedCount, oa.TotalCount)
	if len(vetoed) > 0 {
		insight += fmt.Sprintf("; above threshold but well below classmates in %s", strings.Join(vetoed, ", "))
	}
	action := domainActions[worst]
	if len(missing) > 0 {
		action += fmt.Sprintf("; schedule untested domains: %s", strings.Join(missing, ", "))
	}
	return ActionCard{
		Insight: insight,
		Action:  action,
		Impact:  fmt.Sprintf("Raise %s to the achievement standard", Label(worst)),
	}
}
