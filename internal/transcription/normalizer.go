package transcription

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"reading-fluency-go/internal/types"
)

const (
	DefaultConfidence = "medium"
	// DefaultSecondsPerWord estimates speech length when the payload has no timing.
	DefaultSecondsPerWord = 0.6
)

// Payload is a decoded ASR result: either UnstructuredText or StructuredResult.
type Payload interface {
	isPayload()
}

// UnstructuredText is a payload that carried no JSON object, only words.
type UnstructuredText struct {
	Text string
}

// StructuredResult is a JSON object payload keyed by top-level field name.
type StructuredResult struct {
	Fields map[string]gjson.Result
}

func (UnstructuredText) isPayload() {}
func (StructuredResult) isPayload() {}

// Decode classifies a raw transcription result. Strings and byte slices are
// parsed as JSON when possible; anything else is marshalled first. Decode never
// fails: input it cannot make sense of becomes empty UnstructuredText.
func Decode(raw any) Payload {
	switch v := raw.(type) {
	case nil:
		return UnstructuredText{}
	case string:
		return decodeString(v)
	case []byte:
		return decodeString(string(v))
	case json.RawMessage:
		return decodeString(string(v))
	case gjson.Result:
		return decodeString(v.Raw)
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return UnstructuredText{}
	}
	r := gjson.ParseBytes(b)
	if r.IsObject() {
		return StructuredResult{Fields: objectFields(r)}
	}
	if r.Type == gjson.String {
		return UnstructuredText{Text: r.String()}
	}
	return UnstructuredText{}
}

func decodeString(s string) Payload {
	if !gjson.Valid(s) {
		return UnstructuredText{Text: s}
	}
	r := gjson.Parse(s)
	switch {
	case r.IsObject():
		return StructuredResult{Fields: objectFields(r)}
	case r.Type == gjson.String:
		return UnstructuredText{Text: r.String()}
	default:
		return UnstructuredText{Text: s}
	}
}

func objectFields(r gjson.Result) map[string]gjson.Result {
	fields := map[string]gjson.Result{}
	r.ForEach(func(k, v gjson.Result) bool {
		fields[k.String()] = v
		return true
	})
	return fields
}

// MergeNested handles payloads whose text field is itself a JSON-encoded
// object. The nested object's fields overwrite same-named outer fields; outer
// fields the nested object does not mention are kept. The input map is not
// modified. Only one level is unwrapped.
func MergeNested(fields map[string]gjson.Result) map[string]gjson.Result {
	t, ok := fields["text"]
	if !ok || t.Type != gjson.String {
		return fields
	}
	s := t.String()
	if !gjson.Valid(s) {
		return fields
	}
	nested := gjson.Parse(s)
	if !nested.IsObject() {
		return fields
	}
	merged := make(map[string]gjson.Result, len(fields))
	for k, v := range fields {
		merged[k] = v
	}
	nested.ForEach(func(k, v gjson.Result) bool {
		merged[k.String()] = v
		return true
	})
	return merged
}

// Normalizer turns raw ASR payloads into canonical transcripts.
type Normalizer struct {
	DefaultConfidence string
	SecondsPerWord    float64
}

// NewNormalizer returns a Normalizer with the default confidence label and
// per-word duration estimate.
func NewNormalizer() Normalizer {
	return Normalizer{
		DefaultConfidence: DefaultConfidence,
		SecondsPerWord:    DefaultSecondsPerWord,
	}
}

// Normalize is NewNormalizer().Normalize(raw).
func Normalize(raw any) types.CanonicalTranscript {
	return NewNormalizer().Normalize(raw)
}

// Normalize never fails. Malformed input yields an empty transcript with an
// empty, non-nil timeline.
func (n Normalizer) Normalize(raw any) types.CanonicalTranscript {
	var ct types.CanonicalTranscript
	switch p := Decode(raw).(type) {
	case StructuredResult:
		ct = n.fromFields(MergeNested(p.Fields))
	case UnstructuredText:
		ct = types.CanonicalTranscript{
			Text:       strings.TrimSpace(p.Text),
			Confidence: n.defaultConfidence(),
			Timeline:   []types.TimelineEntry{},
		}
	}
	if len(ct.Timeline) == 0 && ct.Text != "" {
		ct.Timeline = append(ct.Timeline, n.synthesize(ct.Text, ct.Duration))
	}
	ct.Raw = debugRaw(raw)
	return ct
}

// debugRaw keeps byte payloads readable when the transcript is encoded.
func debugRaw(raw any) any {
	switch v := raw.(type) {
	case []byte:
		if gjson.ValidBytes(v) {
			return json.RawMessage(v)
		}
		return string(v)
	case gjson.Result:
		return json.RawMessage(v.Raw)
	}
	return raw
}

func (n Normalizer) fromFields(fields map[string]gjson.Result) types.CanonicalTranscript {
	ct := types.CanonicalTranscript{
		Confidence: n.defaultConfidence(),
		Timeline:   []types.TimelineEntry{},
	}
	if t := fields["text"]; t.Type == gjson.String {
		ct.Text = strings.TrimSpace(t.String())
	}
	if d, ok := number(fields["duration"]); ok {
		ct.Duration = d
	}
	if c := fields["confidence"]; c.Type == gjson.String && c.String() != "" {
		ct.Confidence = c.String()
	}
	if segs := fields["segments"]; segs.IsArray() {
		for i, seg := range segs.Array() {
			if entry, ok := segmentEntry(i, seg); ok {
				ct.Timeline = append(ct.Timeline, entry)
			}
		}
	}
	return ct
}

// segmentEntry resolves one segment. The index is the segment's position in the
// source array, so dropped segments leave gaps. start > end is passed through.
func segmentEntry(i int, seg gjson.Result) (types.TimelineEntry, bool) {
	var words []gjson.Result
	if w := seg.Get("words"); w.IsArray() {
		words = w.Array()
	}

	start, ok := number(seg.Get("start"))
	if !ok && len(words) > 0 {
		start, _ = number(words[0].Get("start"))
	}
	end, ok := number(seg.Get("end"))
	if !ok && len(words) > 0 {
		end, _ = number(words[len(words)-1].Get("end"))
	}

	var text string
	if t := seg.Get("text"); t.Type == gjson.String {
		text = strings.TrimSpace(t.String())
	}
	if text == "" {
		tokens := make([]string, 0, len(words))
		for _, w := range words {
			word := w.Get("word")
			if word.Type != gjson.String {
				continue
			}
			if tok := strings.TrimSpace(word.String()); tok != "" {
				tokens = append(tokens, tok)
			}
		}
		text = strings.Join(tokens, " ")
	}
	if text == "" {
		return types.TimelineEntry{}, false
	}
	return types.TimelineEntry{Index: i, Start: start, End: end, Text: text}, true
}

func (n Normalizer) synthesize(text string, duration float64) types.TimelineEntry {
	end := duration
	if end <= 0 {
		end = math.Max(float64(len(strings.Fields(text)))*n.secondsPerWord(), 1)
	}
	return types.TimelineEntry{Index: 0, Start: 0, End: end, Text: text}
}

func (n Normalizer) defaultConfidence() string {
	if n.DefaultConfidence == "" {
		return DefaultConfidence
	}
	return n.DefaultConfidence
}

func (n Normalizer) secondsPerWord() float64 {
	if n.SecondsPerWord <= 0 {
		return DefaultSecondsPerWord
	}
	return n.SecondsPerWord
}

// number coerces a JSON number or numeric string.
func number(r gjson.Result) (float64, bool) {
	var f float64
	switch r.Type {
	case gjson.Number:
		f = r.Num
	case gjson.String:
		v, err := strconv.ParseFloat(strings.TrimSpace(r.String()), 64)
		if err != nil {
			return 0, false
		}
		f = v
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
