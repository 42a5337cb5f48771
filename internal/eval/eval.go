// Package eval runs a question set through the answer pipeline and records
// one JSON line per question.
package eval

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/finrag/internal/domain"
	"github.com/kailas-cloud/finrag/internal/logger"
)

// DefaultOutput is where results land when no path is given.
const DefaultOutput = "ai_logs/results.jsonl"

// DefaultQuestions is the built-in question set for filing excerpts.
var DefaultQuestions = []string{
	"What are the main revenue drivers?",
	"What supply chain risks are mentioned?",
	"What does management expect for next quarter?",
	"Which regions contributed most to growth?",
	"How did operating margin change year over year?",
	"Summarize guidance for the upcoming quarter.",
	"What are the key risk factors mentioned?",
	"What does the company say about capital expenditures?",
	"What FX headwinds or tailwinds are noted?",
	"What segments performed best this period?",
}

// Answerer answers one question.
type Answerer interface {
	Answer(ctx context.Context, question string, k int) (domain.Answer, error)
}

// Result is one JSONL row.
type Result struct {
	RequestID  string            `json:"request_id"`
	Question   string            `json:"question"`
	LatencySec float64           `json:"latency_sec"`
	Answer     string            `json:"answer,omitempty"`
	Citations  []domain.Citation `json:"citations"`
	Confidence float64           `json:"confidence"`
	Error      string            `json:"error,omitempty"`
}

// Summary counts the outcome of a run.
type Summary struct {
	OK     int
	Failed int
}

// Runner evaluates questions against an Answerer.
type Runner struct {
	answers Answerer
	k       int
	logger  *zap.Logger
	now     func() time.Time
}

// NewRunner creates a runner. k <= 0 lets the pipeline pick its default.
func NewRunner(answers Answerer, k int, logger *zap.Logger) *Runner {
	return &Runner{answers: answers, k: k, logger: logger, now: time.Now}
}

// Run answers every question in order and writes one row per question to w.
// A failed question is recorded with its error and does not stop the run.
func (r *Runner) Run(ctx context.Context, questions []string, w io.Writer) (Summary, error) {
	var sum Summary
	enc := json.NewEncoder(w)
	for _, q := range questions {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		row := Result{RequestID: uuid.NewString(), Question: q, Citations: []domain.Citation{}}
		qctx, log := logger.WithRequest(ctx, r.logger, row.RequestID)
		log = log.With(zap.String("question", q))

		start := r.now()
		ans, err := r.answers.Answer(qctx, q, r.k)
		row.LatencySec = math.Round(r.now().Sub(start).Seconds()*1000) / 1000

		if err != nil {
			sum.Failed++
			row.Error = err.Error()
			log.Warn("Question failed", zap.Error(err))
		} else {
			sum.OK++
			row.Answer = ans.Answer
			row.Citations = ans.Citations
			row.Confidence = ans.Confidence
			log.Info("Question answered",
				zap.Float64("latency_sec", row.LatencySec),
				zap.Int("citations", len(ans.Citations)),
				zap.Float64("confidence", ans.Confidence))
		}

		if err := enc.Encode(row); err != nil {
			return sum, fmt.Errorf("write result: %w", err)
		}
	}
	return sum, nil
}

// RunToFile runs the questions and writes results to path, creating parent
// directories and truncating any previous file.
func (r *Runner) RunToFile(ctx context.Context, questions []string, path string) (Summary, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return Summary{}, fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return Summary{}, fmt.Errorf("create output: %w", err)
	}
	sum, err := r.Run(ctx, questions, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close output: %w", cerr)
	}
	return sum, err
}

// LoadQuestions reads one question per line. Blank lines and lines starting
// with # are skipped.
func LoadQuestions(path string) ([]string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open questions: %w", err)
	}
	defer func() { _ = f.Close() }()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read questions: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no questions in %s: %w", path, domain.ErrInvalidRequest)
	}
	return out, nil
}
