package dashboard

import (
	"fmt"
	"strconv"

	"github.com/opensource-finance/fraudguard/internal/domain"
)

// Button labels for the submission control.
const (
	LabelSubmit   = "Run ML Prediction"
	LabelInFlight = "Analyzing Patterns..."
)

// ResultView is a rendered PredictionResult.
type ResultView struct {
	IsFraud    bool     `json:"is_fraud"`
	Headline   string   `json:"headline"`
	Confidence string   `json:"confidence"`
	LatencyMs  int64    `json:"latency_ms"`
	Reasons    []string `json:"reasons"`
}

// RowView is one rendered history table row.
type RowView struct {
	ID          string   `json:"id"`
	Distance    string   `json:"distance"`
	Ratio       string   `json:"ratio"`
	Reasons     []string `json:"reasons"`
	Status      string   `json:"status"`
	IsFraud     bool     `json:"is_fraud"`
	Probability string   `json:"probability"`
	Timestamp   string   `json:"timestamp"`
}

// View is everything the dashboard page renders.
type View struct {
	Status      Status      `json:"status"`
	SubmitLabel string      `json:"submit_label"`
	Submitting  bool        `json:"submitting"`
	Alert       string      `json:"alert,omitempty"`
	Result      *ResultView `json:"result,omitempty"`
	Chart       ChartData   `json:"chart"`
	Rows        []RowView   `json:"rows"`
}

// NewResultView formats a prediction.
func NewResultView(r *domain.PredictionResult) *ResultView {
	if r == nil {
		return nil
	}
	headline := "Transaction Verified"
	if r.IsFraud {
		headline = "Potential Fraud Detected"
	}
	reasons := r.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	return &ResultView{
		IsFraud:    r.IsFraud,
		Headline:   headline,
		Confidence: strconv.FormatFloat(r.ConfidenceScore*100, 'f', 2, 64) + "%",
		LatencyMs:  r.LatencyMs(),
		Reasons:    reasons,
	}
}

// NewRowView formats a history record.
func NewRowView(r domain.HistoryRecord) RowView {
	status := "LEGIT"
	if r.IsFraud {
		status = "FRAUD"
	}
	timestamp := ""
	if !r.CreatedAt.IsZero() {
		timestamp = r.CreatedAt.UTC().Format("2006-01-02 15:04:05")
	}
	reasons := r.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	return RowView{
		ID:          fmt.Sprintf("#%d", r.ID),
		Distance:    fmt.Sprintf("%.1f km", r.DistanceFromHome),
		Ratio:       fmt.Sprintf("%.1fx Median", r.RatioToMedianPurchasePrice),
		Reasons:     reasons,
		Status:      status,
		IsFraud:     r.IsFraud,
		Probability: fmt.Sprintf("%.1f%%", r.ConfidenceScore*100),
		Timestamp:   timestamp,
	}
}

// View snapshots the controller for rendering.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows := reversed(c.history)
	views := make([]RowView, len(rows))
	for i, r := range rows {
		views[i] = NewRowView(r)
	}

	label := LabelSubmit
	if c.status == StatusInFlight {
		label = LabelInFlight
	}

	return View{
		Status:      c.status,
		SubmitLabel: label,
		Submitting:  c.status == StatusInFlight,
		Alert:       c.alert,
		Result:      NewResultView(c.result),
		Chart:       aggregate(c.history),
		Rows:        views,
	}
}
