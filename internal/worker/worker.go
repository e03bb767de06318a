// Package worker scores labelled transaction batches against the remote API.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/fraudguard/internal/domain"
	"golang.org/x/time/rate"
)

// Scorer is the part of the API client the pool needs.
type Scorer interface {
	PredictTransaction(ctx context.Context, input domain.TransactionInput) (*domain.PredictionResult, error)
}

// Config holds pool configuration.
type Config struct {
	// WorkerCount is the number of concurrent scoring calls
	WorkerCount int

	// RatePerSecond caps calls per second across all workers (0 = unlimited)
	RatePerSecond float64

	// Threshold re-derives the verdict from the confidence score.
	// Zero keeps the server's is_fraud.
	Threshold float64
}

// Outcome is the result of scoring one sample.
type Outcome struct {
	Sample  Sample
	Result  *domain.PredictionResult
	Latency time.Duration
	Err     error
}

// Predicted is the verdict used for the confusion matrix.
func (o Outcome) Predicted(threshold float64) bool {
	if o.Result == nil {
		return false
	}
	if threshold > 0 {
		return o.Result.ConfidenceScore >= threshold
	}
	return o.Result.IsFraud
}

// Pool scores samples concurrently.
type Pool struct {
	scorer  Scorer
	cfg     Config
	limiter *rate.Limiter
}

// NewPool creates a pool. WorkerCount defaults to 1.
func NewPool(scorer Scorer, cfg Config) *Pool {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.WorkerCount)
	}
	return &Pool{scorer: scorer, cfg: cfg, limiter: limiter}
}

// Run scores every sample and returns the aggregated report. onOutcome,
// when set, is called for each sample from the worker goroutines.
// A rejected credential stops the run: remaining samples are not sent.
func (p *Pool) Run(ctx context.Context, samples []Sample, onOutcome func(Outcome)) *Report {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	report := NewReport(p.cfg.Threshold)
	start := time.Now()

	work := make(chan Sample)
	var wg sync.WaitGroup

	for i := 0; i < p.cfg.WorkerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sample := range work {
				if err := p.limiter.Wait(ctx); err != nil {
					return
				}

				callStart := time.Now()
				result, err := p.scorer.PredictTransaction(ctx, sample.Input)
				outcome := Outcome{
					Sample:  sample,
					Result:  result,
					Latency: time.Since(callStart),
					Err:     err,
				}

				if errors.Is(err, context.Canceled) && ctx.Err() != nil {
					return
				}
				report.Add(outcome)
				if onOutcome != nil {
					onOutcome(outcome)
				}

				if domain.IsAuthRejected(err) {
					slog.Error("credential rejected, stopping run", "row", sample.Row)
					cancel()
					return
				}
			}
		}()
	}

send:
	for _, sample := range samples {
		select {
		case work <- sample:
		case <-ctx.Done():
			break send
		}
	}
	close(work)
	wg.Wait()

	report.Duration = time.Since(start)
	slog.Info("batch scored",
		"samples", len(samples),
		"processed", report.Processed(),
		"errors", report.Errors,
		"duration_ms", report.Duration.Milliseconds(),
	)
	return report
}
