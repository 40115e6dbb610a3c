package transcription

import (
	"encoding/json"
	"testing"

	"github.com/tidwall/gjson"
)

func TestNormalize_PlainTextObject(t *testing.T) {
	ct := Normalize(map[string]any{"text": "cat"})

	if ct.Text != "cat" {
		t.Errorf("expected text 'cat', got %q", ct.Text)
	}
	if ct.Confidence != "medium" {
		t.Errorf("expected default confidence 'medium', got %q", ct.Confidence)
	}
	if len(ct.Timeline) != 1 {
		t.Fatalf("expected 1 timeline entry, got %d", len(ct.Timeline))
	}
	e := ct.Timeline[0]
	if e.Index != 0 || e.Start != 0 || e.End != 1.0 || e.Text != "cat" {
		t.Errorf("unexpected synthesized entry: %+v", e)
	}
}

func TestNormalize_SynthesizedEntryUsesWordEstimate(t *testing.T) {
	ct := Normalize(`{"text":"the big brown cat sat"}`)
	if len(ct.Timeline) != 1 {
		t.Fatalf("expected 1 timeline entry, got %d", len(ct.Timeline))
	}
	if got := ct.Timeline[0].End; got != 3.0 {
		t.Errorf("expected end 3.0 for five words, got %v", got)
	}
}

func TestNormalize_SynthesizedEntryUsesDuration(t *testing.T) {
	ct := Normalize(`{"text":"cat","duration":"2.5"}`)
	if ct.Duration != 2.5 {
		t.Errorf("expected duration 2.5 from numeric string, got %v", ct.Duration)
	}
	if got := ct.Timeline[0].End; got != 2.5 {
		t.Errorf("expected end 2.5, got %v", got)
	}
}

func TestNormalize_WordLevelSegments(t *testing.T) {
	raw := `{"segments":[{"words":[{"word":"the","start":0.1,"end":0.3},{"word":"cat","start":0.3,"end":0.7}]}]}`
	ct := Normalize(raw)

	if len(ct.Timeline) != 1 {
		t.Fatalf("expected 1 timeline entry, got %d", len(ct.Timeline))
	}
	e := ct.Timeline[0]
	if e.Start != 0.1 || e.End != 0.7 || e.Text != "the cat" {
		t.Errorf("expected {0.1 0.7 'the cat'}, got %+v", e)
	}
	if ct.Text != "" {
		t.Errorf("expected empty top-level text, got %q", ct.Text)
	}
}

func TestNormalize_SegmentFieldsTakePrecedenceOverWords(t *testing.T) {
	raw := `{"text":"a dog","segments":[{"start":1,"end":2,"text":" a dog ","words":[{"word":"x","start":9,"end":10}]}]}`
	ct := Normalize(raw)

	e := ct.Timeline[0]
	if e.Start != 1 || e.End != 2 || e.Text != "a dog" {
		t.Errorf("expected segment-level fields, got %+v", e)
	}
}

func TestNormalize_DroppedSegmentsLeaveIndexGaps(t *testing.T) {
	raw := `{"text":"one three","segments":[
		{"start":0,"end":1,"text":"one"},
		{"start":1,"end":2,"text":"   "},
		{"start":2,"end":3,"words":[{"word":" "},{"word":"three","start":2,"end":3}]}
	]}`
	ct := Normalize(raw)

	if len(ct.Timeline) != 2 {
		t.Fatalf("expected 2 timeline entries, got %d", len(ct.Timeline))
	}
	if ct.Timeline[0].Index != 0 || ct.Timeline[1].Index != 2 {
		t.Errorf("expected indices 0 and 2, got %d and %d", ct.Timeline[0].Index, ct.Timeline[1].Index)
	}
	if ct.Timeline[1].Text != "three" {
		t.Errorf("expected 'three', got %q", ct.Timeline[1].Text)
	}
}

func TestNormalize_StartAfterEndIsNotRepaired(t *testing.T) {
	ct := Normalize(`{"segments":[{"start":5,"end":2,"text":"odd"}]}`)
	e := ct.Timeline[0]
	if e.Start != 5 || e.End != 2 {
		t.Errorf("expected start/end passed through as 5/2, got %v/%v", e.Start, e.End)
	}
}

func TestNormalize_NestedJSONText(t *testing.T) {
	nested := `{"text":"  hello there ","confidence":"high","segments":[{"start":0.4,"end":1.2,"text":"hello there"}]}`
	outer, _ := json.Marshal(map[string]any{"text": nested, "duration": 3, "confidence": "low"})
	ct := Normalize(string(outer))

	if ct.Text != "hello there" {
		t.Errorf("expected nested text, got %q", ct.Text)
	}
	if ct.Confidence != "high" {
		t.Errorf("expected nested confidence to override outer, got %q", ct.Confidence)
	}
	if ct.Duration != 3 {
		t.Errorf("expected outer duration to survive merge, got %v", ct.Duration)
	}
	if len(ct.Timeline) != 1 || ct.Timeline[0].Start != 0.4 {
		t.Errorf("expected nested segments, got %+v", ct.Timeline)
	}
}

func TestMergeNested(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		key      string
		expected string
	}{
		{"nested overrides", `{"text":"{\"confidence\":\"high\"}","confidence":"low"}`, "confidence", "high"},
		{"outer kept", `{"text":"{\"a\":1}","duration":4}`, "duration", "4"},
		{"non-object text untouched", `{"text":"[1,2]"}`, "text", "[1,2]"},
		{"plain text untouched", `{"text":"cat"}`, "text", "cat"},
		{"number text untouched", `{"text":"42"}`, "text", "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := objectFields(gjson.Parse(tt.raw))
			merged := MergeNested(fields)
			if got := merged[tt.key].String(); got != tt.expected {
				t.Errorf("expected %s=%q, got %q", tt.key, tt.expected, got)
			}
		})
	}
}

func TestMergeNested_DoesNotModifyInput(t *testing.T) {
	fields := objectFields(gjson.Parse(`{"text":"{\"text\":\"inner\"}"}`))
	_ = MergeNested(fields)
	if fields["text"].String() != `{"text":"inner"}` {
		t.Errorf("expected input map untouched, got %q", fields["text"].String())
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name       string
		raw        any
		structured bool
		text       string
	}{
		{"nil", nil, false, ""},
		{"plain string", "the cat", false, "the cat"},
		{"json string literal", `"the cat"`, false, "the cat"},
		{"json object string", `{"text":"cat"}`, true, ""},
		{"bytes", []byte(`{"text":"cat"}`), true, ""},
		{"raw message", json.RawMessage(`{"text":"cat"}`), true, ""},
		{"map", map[string]any{"text": "cat"}, true, ""},
		{"unmarshalable", make(chan int), false, ""},
		{"number", 42, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			switch p := Decode(tt.raw).(type) {
			case StructuredResult:
				if !tt.structured {
					t.Errorf("expected unstructured payload, got %+v", p)
				}
			case UnstructuredText:
				if tt.structured {
					t.Errorf("expected structured payload, got %+v", p)
				}
				if p.Text != tt.text {
					t.Errorf("expected text %q, got %q", tt.text, p.Text)
				}
			default:
				t.Fatalf("unexpected payload type %T", p)
			}
		})
	}
}

func TestNormalize_MalformedInputDegrades(t *testing.T) {
	inputs := []any{nil, "", "   ", `{"segments":"nope"}`, `{"text":17}`, make(chan int), `{"segments":[1,"x",null]}`}
	for _, in := range inputs {
		ct := Normalize(in)
		if ct.Text != "" {
			t.Errorf("expected empty text for %v, got %q", in, ct.Text)
		}
		if ct.Timeline == nil {
			t.Errorf("expected non-nil timeline for %v", in)
		}
		if len(ct.Timeline) != 0 {
			t.Errorf("expected empty timeline for %v, got %+v", in, ct.Timeline)
		}
		if ct.Confidence != "medium" {
			t.Errorf("expected default confidence for %v, got %q", in, ct.Confidence)
		}
	}
}

func TestNormalize_UnparseableStringIsText(t *testing.T) {
	ct := Normalize("  {not json  ")
	if ct.Text != "{not json" {
		t.Errorf("expected raw string as text, got %q", ct.Text)
	}
	if len(ct.Timeline) != 1 {
		t.Errorf("expected synthesized entry, got %+v", ct.Timeline)
	}
}

func TestNormalizer_CustomDefaults(t *testing.T) {
	n := Normalizer{DefaultConfidence: "unknown", SecondsPerWord: 2}
	ct := n.Normalize(`{"text":"one two three"}`)
	if ct.Confidence != "unknown" {
		t.Errorf("expected configured confidence, got %q", ct.Confidence)
	}
	if ct.Timeline[0].End != 6 {
		t.Errorf("expected end 6, got %v", ct.Timeline[0].End)
	}
}

func TestNormalize_KeepsRawForDebugging(t *testing.T) {
	raw := []byte(`{"text":"cat"}`)
	ct := Normalize(raw)
	b, err := json.Marshal(ct)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if got := gjson.GetBytes(b, "raw.text").String(); got != "cat" {
		t.Errorf("expected raw payload embedded as JSON, got %s", b)
	}
}
