package answer

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/kailas-cloud/finrag/internal/domain"
	"github.com/kailas-cloud/finrag/internal/domain/output"
	"github.com/kailas-cloud/finrag/internal/metrics"
)

// UnstructuredConfidence is reported for non-empty free-text model output.
const UnstructuredConfidence = 0.5

var fencedObject = regexp.MustCompile("(?is)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// extractObject returns the candidate JSON object text inside raw, or "" when
// there is none. A fenced block wins over the outermost brace span.
func extractObject(raw string) string {
	if m := fencedObject.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	return strings.TrimSpace(raw[start : end+1])
}

// Decode classifies raw generator text into a tagged Output.
func Decode(raw string) output.Output {
	text := strings.TrimSpace(raw)
	if text == "" {
		return output.NewEmpty()
	}
	if candidate := extractObject(text); candidate != "" {
		var obj map[string]any
		if err := json.Unmarshal([]byte(candidate), &obj); err == nil && obj != nil {
			return output.NewStructured(obj)
		}
	}
	return output.NewUnstructured(text)
}

// Parse turns decoded generator output into an Answer. Citations are checked
// against candidates: known pairs get the candidate preview, unknown pairs are
// kept with an empty preview.
func Parse(out output.Output, candidates []domain.Candidate) domain.Answer {
	switch out.Kind() {
	case output.Structured:
		return parseStructured(out.Object(), candidates)
	case output.Unstructured:
		return domain.Answer{
			Answer:     out.Text(),
			Citations:  domain.TopCitations(candidates, domain.FallbackCitationCount),
			Confidence: UnstructuredConfidence,
		}
	default:
		return domain.DegradedAnswer(candidates)
	}
}

func parseStructured(obj map[string]any, candidates []domain.Candidate) domain.Answer {
	byKey := make(map[string]domain.Candidate, len(candidates))
	for _, c := range candidates {
		if _, ok := byKey[c.Key()]; !ok {
			byKey[c.Key()] = c
		}
	}

	ans := domain.Answer{
		Answer:     stringField(obj["answer"]),
		Citations:  []domain.Citation{},
		Confidence: clampConfidence(floatField(obj["confidence"])),
	}

	list, _ := obj["citations"].([]any)
	for _, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		cit := domain.Citation{
			DocID:   stringField(entry["doc_id"]),
			ChunkID: chunkIDField(entry["chunk_id"]),
		}
		if c, ok := byKey[domain.ChunkKey(cit.DocID, cit.ChunkID)]; ok {
			cit.Preview = c.Preview
			metrics.CitationsTotal.WithLabelValues("matched").Inc()
		} else {
			metrics.CitationsTotal.WithLabelValues("unknown").Inc()
		}
		ans.Citations = append(ans.Citations, cit)
	}
	return ans
}

func stringField(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func chunkIDField(v any) int {
	switch x := v.(type) {
	case float64:
		return domain.ChunkIDFromFloat(x)
	case string:
		return domain.ParseChunkID(x)
	default:
		return -1
	}
}

func floatField(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func clampConfidence(f float64) float64 {
	if math.IsNaN(f) {
		return 0
	}
	return math.Max(0, math.Min(1, f))
}
