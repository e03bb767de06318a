package worker

import (
	"math"
	"slices"
	"sync"
	"time"

	"github.com/opensource-finance/fraudguard/internal/domain"
)

// Report aggregates scoring outcomes against their labels.
type Report struct {
	mu        sync.Mutex
	threshold float64

	TruePositives  int
	FalsePositives int
	TrueNegatives  int
	FalseNegatives int

	Errors       int
	ErrorsByKind map[domain.ErrorKind]int

	latencies []time.Duration
	Duration  time.Duration
}

// NewReport creates an empty report using threshold for verdicts.
func NewReport(threshold float64) *Report {
	return &Report{
		threshold:    threshold,
		ErrorsByKind: make(map[domain.ErrorKind]int),
	}
}

// Add records one outcome. Safe for concurrent use.
func (r *Report) Add(o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if o.Err != nil {
		r.Errors++
		r.ErrorsByKind[domain.Classify(o.Err)]++
		return
	}

	r.latencies = append(r.latencies, o.Latency)

	predicted, actual := o.Predicted(r.threshold), o.Sample.Fraud
	switch {
	case predicted && actual:
		r.TruePositives++
	case predicted && !actual:
		r.FalsePositives++
	case !predicted && !actual:
		r.TrueNegatives++
	default:
		r.FalseNegatives++
	}
}

// Scored is the number of samples with a verdict.
func (r *Report) Scored() int {
	return r.TruePositives + r.FalsePositives + r.TrueNegatives + r.FalseNegatives
}

// Processed counts scored and failed samples.
func (r *Report) Processed() int {
	return r.Scored() + r.Errors
}

// Precision is TP / (TP + FP).
func (r *Report) Precision() float64 {
	return ratio(r.TruePositives, r.TruePositives+r.FalsePositives)
}

// Recall is TP / (TP + FN).
func (r *Report) Recall() float64 {
	return ratio(r.TruePositives, r.TruePositives+r.FalseNegatives)
}

// F1 is the harmonic mean of precision and recall.
func (r *Report) F1() float64 {
	p, rc := r.Precision(), r.Recall()
	if p+rc == 0 {
		return 0
	}
	return 2 * p * rc / (p + rc)
}

// Accuracy is (TP + TN) / scored.
func (r *Report) Accuracy() float64 {
	return ratio(r.TruePositives+r.TrueNegatives, r.Scored())
}

// Percentile returns the nearest-rank latency percentile (0 < p <= 100).
func (r *Report) Percentile(p float64) time.Duration {
	r.mu.Lock()
	sorted := slices.Clone(r.latencies)
	r.mu.Unlock()

	if len(sorted) == 0 || p <= 0 {
		return 0
	}
	slices.Sort(sorted)
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

// Throughput is processed samples per second.
func (r *Report) Throughput() float64 {
	if r.Duration <= 0 {
		return 0
	}
	return float64(r.Processed()) / r.Duration.Seconds()
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
