package types

import (
	"encoding/json"
	"time"
)

// TestType identifies one of the six assessed reading sub-skills.
type TestType string

const (
	AlphabetNaming      TestType = "p1_alphabet"
	PhonemeSegmentation TestType = "p2_segmental_phoneme"
	StressRhythm        TestType = "p3_suprasegmental_phoneme"
	Phonics             TestType = "p4_phonics"
	Vocabulary          TestType = "p5_vocabulary"
	Comprehension       TestType = "p6_comprehension"
)

var allTestTypes = []TestType{
	AlphabetNaming,
	PhonemeSegmentation,
	StressRhythm,
	Phonics,
	Vocabulary,
	Comprehension,
}

// AllTestTypes returns the fixed domain list in report order.
func AllTestTypes() []TestType {
	out := make([]TestType, len(allTestTypes))
	copy(out, allTestTypes)
	return out
}

// ParseTestType reports whether s names one of the six domains.
func ParseTestType(s string) (TestType, bool) {
	for _, t := range allTestTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// ErrorKind is the error_type recorded on an attempt.
type ErrorKind string

const (
	ErrorNone              ErrorKind = ""
	ErrorHesitation        ErrorKind = "Hesitation"
	ErrorOther             ErrorKind = "Other"
	ErrorProcessing        ErrorKind = "processing_error"
	ErrorInsufficientAudio ErrorKind = "insufficient_audio"
)

type TimelineEntry struct {
	Index int     `json:"index"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// CanonicalTranscript is the normalized form of any ASR payload.
type CanonicalTranscript struct {
	Text       string          `json:"text"`
	Confidence string          `json:"confidence"`
	Timeline   []TimelineEntry `json:"timeline"`
	Duration   float64         `json:"duration"`
	Raw        any             `json:"raw,omitempty"`
}

// AttemptResult is one scored submission. It is written once and never mutated.
type AttemptResult struct {
	ID               string          `json:"id"`
	TestType         TestType        `json:"test_type"`
	UserID           string          `json:"user_id"`
	CohortID         string          `json:"cohort_id,omitempty"`
	Accuracy         *float64        `json:"accuracy"`
	IsCorrect        *bool           `json:"is_correct"`
	ErrorType        ErrorKind       `json:"error_type,omitempty"`
	TargetText       string          `json:"target_text,omitempty"`
	StudentAnswer    string          `json:"student_answer,omitempty"`
	TranscriptionRaw json.RawMessage `json:"transcription_raw,omitempty"`
	AudioURL         string          `json:"audio_url,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Score returns the attempt's accuracy on a 0-100 scale. When accuracy is null
// the correctness flag counts as 100 or 0; ok is false when neither is set.
func (a AttemptResult) Score() (score float64, ok bool) {
	if a.Accuracy != nil {
		return *a.Accuracy, true
	}
	if a.IsCorrect != nil {
		if *a.IsCorrect {
			return 100, true
		}
		return 0, true
	}
	return 0, false
}

type CohortStatistic struct {
	TestType TestType `json:"test_type"`
	Mean     float64  `json:"mean"`
	StdDev   float64  `json:"std_dev"`
	Count    int      `json:"count"`
}
