package checker

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Severity classifies an issue.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Issue is a single finding with a severity.
type Issue struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Analyzer is the interface every probe -> classify -> score unit satisfies.
type Analyzer interface {
	// Name returns the analyzer's route name (e.g., "headers", "tls").
	Name() string

	// Analyze probes the target and returns a JSON-serializable verdict.
	Analyze(ctx context.Context, target Target) (any, error)
}

// RunResult is the outcome of one analyzer run against one target.
type RunResult struct {
	Target    string    `json:"target"`
	Analyzer  string    `json:"analyzer"`
	CheckedAt time.Time `json:"checked_at"`
	Duration  float64   `json:"duration_ms"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// AuditFunc is called after every run.
type AuditFunc func(target string, result RunResult, duration float64) error

// Runner orchestrates analyzer runs with concurrency and rate limiting.
type Runner struct {
	Concurrency int           // Maximum number of concurrent runs
	RateLimit   int           // Runs per second (global)
	Timeout     time.Duration // Timeout for each run
}

// Run executes analyzer against every target using a worker pool. Results are
// returned in input order.
func (r *Runner) Run(ctx context.Context, targets []Target, analyzer Analyzer, auditFn AuditFunc) []RunResult {
	concurrency := r.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	limit := rate.Inf
	burst := 0
	if r.RateLimit > 0 {
		limit = rate.Limit(r.RateLimit)
		burst = r.RateLimit
	}
	limiter := rate.NewLimiter(limit, burst)

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	mu := sync.Mutex{}
	type indexed struct {
		idx int
		res RunResult
	}
	collected := make([]indexed, 0, len(targets))

	for i, target := range targets {
		wg.Add(1)
		go func(idx int, t Target) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			result := RunResult{
				Target:    t.String(),
				Analyzer:  analyzer.Name(),
				CheckedAt: time.Now().UTC(),
			}

			if err := limiter.Wait(ctx); err != nil {
				result.Error = err.Error()
			} else {
				start := time.Now()

				runCtx := ctx
				if r.Timeout > 0 {
					var cancel context.CancelFunc
					runCtx, cancel = context.WithTimeout(ctx, r.Timeout)
					defer cancel()
				}

				data, err := analyzer.Analyze(runCtx, t)
				if err != nil {
					result.Error = err.Error()
				} else {
					result.Data = data
				}
				result.Duration = float64(time.Since(start).Microseconds()) / 1000
			}

			if auditFn != nil {
				_ = auditFn(t.String(), result, result.Duration)
			}

			mu.Lock()
			collected = append(collected, indexed{idx: idx, res: result})
			mu.Unlock()
		}(i, target)
	}

	wg.Wait()

	sort.Slice(collected, func(a, b int) bool { return collected[a].idx < collected[b].idx })
	results := make([]RunResult, len(collected))
	for i, c := range collected {
		results[i] = c.res
	}
	return results
}
