package health

import (
	"context"
	"sync"
	"time"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates an optional stage is down; answers still come back, with lower quality.
	Degraded Status = "degraded"
	// Unhealthy indicates the index or the embedder is down; questions cannot be answered.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// DefaultTimeout bounds each probe.
const DefaultTimeout = 3 * time.Second

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

type probe struct {
	name     string
	critical bool
	check    func(ctx context.Context) error
}

// Service probes every pipeline dependency concurrently.
type Service struct {
	probes  []probe
	timeout time.Duration
}

// New creates a Service. index and embedding are critical; embedding can be nil.
func New(index IndexPinger, embedding Checker) *Service {
	s := &Service{timeout: DefaultTimeout}
	s.probes = append(s.probes, probe{name: "index", critical: true, check: index.Ping})
	if embedding != nil {
		s.probes = append(s.probes, probe{name: "embedding", critical: true, check: embedding.HealthCheck})
	}
	return s
}

// WithOptional adds a stage whose failure only degrades answers (generator, reranker).
func (s *Service) WithOptional(name string, c Checker) *Service {
	if c != nil {
		s.probes = append(s.probes, probe{name: name, check: c.HealthCheck})
	}
	return s
}

// WithTimeout overrides the per-probe timeout.
func (s *Service) WithTimeout(d time.Duration) *Service {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// Check runs all probes and folds them into one status. A probe that
// outlives the timeout counts as failed.
func (s *Service) Check(ctx context.Context) Report {
	results := make([]CheckResult, len(s.probes))

	var wg sync.WaitGroup
	for i, p := range s.probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			results[i] = result(p.check(pctx))
		}()
	}
	wg.Wait()

	report := Report{Status: Healthy, Checks: make(map[string]CheckResult, len(s.probes))}
	for i, p := range s.probes {
		report.Checks[p.name] = results[i]
		if results[i] == CheckOK {
			continue
		}
		switch {
		case p.critical:
			report.Status = Unhealthy
		case report.Status == Healthy:
			report.Status = Degraded
		}
	}
	return report
}

func result(err error) CheckResult {
	if err != nil {
		return CheckError
	}
	return CheckOK
}
