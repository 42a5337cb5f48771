package domain

// RefusalAnswer is returned whenever the context cannot ground an answer.
const RefusalAnswer = "I don't know based on the provided documents."

// FallbackCitationCount is how many top candidates back a heuristic citation list.
const FallbackCitationCount = 3

// Citation points from an answer back to a retrieved chunk.
type Citation struct {
	DocID   string `json:"doc_id"`
	ChunkID int    `json:"chunk_id"`
	Preview string `json:"preview"`
}

// Answer is the externally visible result of one query.
type Answer struct {
	Answer     string     `json:"answer"`
	Citations  []Citation `json:"citations"`
	Confidence float64    `json:"confidence"`
}

// Refusal returns the grounded refusal with no citations and zero confidence.
func Refusal() Answer {
	return Answer{Answer: RefusalAnswer, Citations: []Citation{}, Confidence: 0}
}

// TopCitations returns citations for the first n candidates, in order.
func TopCitations(candidates []Candidate, n int) []Citation {
	n = min(n, len(candidates))
	out := make([]Citation, 0, n)
	for _, c := range candidates[:n] {
		out = append(out, c.Citation())
	}
	return out
}

// DegradedAnswer is the refusal backed by heuristic top-3 citations, used when the
// generator is unavailable or fails.
func DegradedAnswer(candidates []Candidate) Answer {
	return Answer{
		Answer:     RefusalAnswer,
		Citations:  TopCitations(candidates, FallbackCitationCount),
		Confidence: 0,
	}
}
