// Package dashboard owns prediction submission, the history cache and the
// state derived from them.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/fraudguard/internal/bus"
	"github.com/opensource-finance/fraudguard/internal/domain"
)

// AlertSubmissionFailed is shown for any failed prediction.
const AlertSubmissionFailed = "Session expired or Backend error!"

// Status is the submission lifecycle.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusInFlight Status = "in_flight"
	StatusResolved Status = "resolved"
	StatusFailed   Status = "failed"
)

// Scorer is the part of the API client the dashboard needs.
type Scorer interface {
	PredictTransaction(ctx context.Context, input domain.TransactionInput) (*domain.PredictionResult, error)
	GetHistory(ctx context.Context) ([]domain.HistoryRecord, error)
}

// Guard rejects invalid input before any network call.
type Guard interface {
	Check(ctx context.Context, input domain.TransactionInput) error
}

// Observer receives resolved predictions.
type Observer interface {
	ObservePrediction(isFraud bool, latency time.Duration)
}

// Options holds the controller's optional collaborators.
type Options struct {
	Guard    Guard
	Session  domain.Invalidator
	Events   *bus.Emitter
	Observer Observer
}

// ChartData is the aggregate behind the outcome pie chart.
type ChartData struct {
	Legit int `json:"legit"`
	Fraud int `json:"fraud"`
}

// Total returns Legit + Fraud.
func (c ChartData) Total() int {
	return c.Legit + c.Fraud
}

// Controller is the dashboard state machine. Safe for concurrent use.
type Controller struct {
	mu       sync.Mutex
	api      Scorer
	guard    Guard
	session  domain.Invalidator
	events   *bus.Emitter
	observer Observer
	now      func() time.Time

	status  Status
	result  *domain.PredictionResult
	history []domain.HistoryRecord
	alert   string
	cancel  context.CancelFunc

	// epoch changes on every logout; work started in an older epoch is discarded.
	epoch uint64
	// historySeq numbers history fetches; historyApplied is the newest one
	// whose records are in the cache.
	historySeq     uint64
	historyApplied uint64
}

// NewController creates an idle controller.
func NewController(api Scorer, opts Options) *Controller {
	return &Controller{
		api:      api,
		guard:    opts.Guard,
		session:  opts.Session,
		events:   opts.Events,
		observer: opts.Observer,
		now:      time.Now,
		status:   StatusIdle,
	}
}

// SetSession wires the invalidator after construction, for callers that
// build the session controller second.
func (c *Controller) SetSession(s domain.Invalidator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
}

// Submit scores input. Only one submission may be outstanding: a second
// call while InFlight returns domain.ErrSubmissionInFlight without a
// network call. On success the history is refreshed.
func (c *Controller) Submit(ctx context.Context, input domain.TransactionInput) (*domain.PredictionResult, error) {
	if c.guard != nil {
		if err := c.guard.Check(ctx, input); err != nil {
			return nil, err
		}
	}

	c.mu.Lock()
	if c.status == StatusInFlight {
		c.mu.Unlock()
		return nil, domain.ErrSubmissionInFlight
	}
	callCtx, cancel := context.WithCancel(ctx)
	c.status = StatusInFlight
	c.alert = ""
	c.cancel = cancel
	epoch := c.epoch
	start := c.now()
	c.mu.Unlock()
	defer cancel()

	result, err := c.api.PredictTransaction(callCtx, input)
	latency := c.now().Sub(start).Round(time.Millisecond)

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		if err == nil {
			err = context.Canceled
		}
		return nil, fmt.Errorf("submission discarded after logout: %w", err)
	}
	c.cancel = nil

	if err != nil {
		c.status = StatusFailed
		c.alert = AlertSubmissionFailed
		session := c.session
		c.mu.Unlock()

		slog.Warn("prediction failed",
			"error", err,
			"kind", domain.Classify(err),
			"duration_ms", latency.Milliseconds(),
		)
		c.events.Emit(ctx, domain.TopicPredictionFailed, AlertSubmissionFailed)
		if domain.IsAuthRejected(err) && session != nil {
			session.Invalidate(ctx, err)
		}
		return nil, err
	}

	result.Latency = latency
	stored := *result
	c.result = &stored
	c.status = StatusResolved
	c.mu.Unlock()

	slog.Info("prediction resolved",
		"is_fraud", result.IsFraud,
		"confidence_score", result.ConfidenceScore,
		"latency_ms", result.LatencyMs(),
	)
	if c.observer != nil {
		c.observer.ObservePrediction(result.IsFraud, latency)
	}
	c.events.Emit(ctx, domain.TopicPredictionResolved, "")

	_ = c.RefreshHistory(ctx)
	return result, nil
}

// RefreshHistory replaces the history cache. A 401 invalidates the
// session; other failures are logged and the cache is left untouched.
// A response older than the one already applied is dropped.
func (c *Controller) RefreshHistory(ctx context.Context) error {
	c.mu.Lock()
	epoch := c.epoch
	c.historySeq++
	seq := c.historySeq
	c.mu.Unlock()

	records, err := c.api.GetHistory(ctx)
	if err != nil {
		if domain.IsAuthRejected(err) {
			c.mu.Lock()
			session := c.session
			c.mu.Unlock()
			if session != nil {
				session.Invalidate(ctx, err)
			}
			return err
		}
		if !errors.Is(err, context.Canceled) {
			slog.Warn("failed to fetch history", "error", err, "kind", domain.Classify(err))
		}
		return err
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return nil
	}
	if seq < c.historyApplied {
		c.mu.Unlock()
		slog.Debug("discarded superseded history", "seq", seq, "applied", c.historyApplied)
		return nil
	}
	c.history = records
	c.historyApplied = seq
	c.mu.Unlock()

	slog.Debug("history refreshed", "records", len(records))
	c.events.Emit(ctx, domain.TopicHistoryRefreshed, "")
	return nil
}

// OnAuthenticated fetches history for the new session.
func (c *Controller) OnAuthenticated(ctx context.Context) {
	_ = c.RefreshHistory(ctx)
}

// OnLoggedOut clears every piece of session-derived state and cancels
// the outstanding submission, if any.
func (c *Controller) OnLoggedOut(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.epoch++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.status = StatusIdle
	c.result = nil
	c.history = nil
	c.alert = ""
}

// Status returns the submission status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Result returns a copy of the latest prediction, or nil.
func (c *Controller) Result() *domain.PredictionResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return nil
	}
	out := *c.result
	return &out
}

// Alert returns the pending failure alert, if any.
func (c *Controller) Alert() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alert
}

// DismissAlert clears the failure alert.
func (c *Controller) DismissAlert() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alert = ""
}

// History returns the cache in server order.
func (c *Controller) History() []domain.HistoryRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.HistoryRecord, len(c.history))
	copy(out, c.history)
	return out
}

// Chart counts legit and fraud records in the cache.
func (c *Controller) Chart() ChartData {
	c.mu.Lock()
	defer c.mu.Unlock()
	return aggregate(c.history)
}

// Rows returns the cache most recent first. The cache itself is not reordered.
func (c *Controller) Rows() []domain.HistoryRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return reversed(c.history)
}

func aggregate(records []domain.HistoryRecord) ChartData {
	var out ChartData
	for _, r := range records {
		if r.IsFraud {
			out.Fraud++
		} else {
			out.Legit++
		}
	}
	return out
}

func reversed(records []domain.HistoryRecord) []domain.HistoryRecord {
	out := make([]domain.HistoryRecord, len(records))
	for i, r := range records {
		out[len(records)-1-i] = r
	}
	return out
}
