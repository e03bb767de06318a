package domain

import (
	"fmt"
	"strings"
	"time"
)

// TransactionInput is the card transaction submitted for scoring.
// Field names match the remote /predict contract.
type TransactionInput struct {
	DistanceFromHome            float64 `json:"distance_from_home"`
	DistanceFromLastTransaction float64 `json:"distance_from_last_transaction"`
	RatioToMedianPurchasePrice  float64 `json:"ratio_to_median_purchase_price"`
	RepeatRetailer              bool    `json:"repeat_retailer"`
	UsedChip                    bool    `json:"used_chip"`
	UsedPinNumber               bool    `json:"used_pin_number"`
	OnlineOrder                 bool    `json:"online_order"`
}

// PredictionResult is the outcome of a single /predict call.
// Latency is measured by the caller around the network exchange;
// the server never reports it.
type PredictionResult struct {
	ID              int64         `json:"id,omitempty"`
	IsFraud         bool          `json:"is_fraud"`
	ConfidenceScore float64       `json:"confidence_score"`
	Reasons         []string      `json:"reasons"`
	Latency         time.Duration `json:"-"`
}

// LatencyMs returns the measured round trip in whole milliseconds.
func (p *PredictionResult) LatencyMs() int64 {
	return p.Latency.Milliseconds()
}

// HistoryRecord is a server-persisted past prediction. Read-only.
type HistoryRecord struct {
	ID                         int64     `json:"id"`
	DistanceFromHome           float64   `json:"distance_from_home"`
	RatioToMedianPurchasePrice float64   `json:"ratio_to_median_purchase_price"`
	IsFraud                    bool      `json:"is_fraud"`
	ConfidenceScore            float64   `json:"confidence_score"`
	Reasons                    []string  `json:"reasons"`
	CreatedAt                  Timestamp `json:"created_at"`
}

// Timestamp decodes the server's created_at values. The API emits
// naive ISO-8601 strings (no offset) which encoding/json rejects for
// time.Time; those are read as UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// UnmarshalJSON accepts RFC 3339 and naive timestamps.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unsupported timestamp %q", s)
}

// MarshalJSON writes RFC 3339.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.UTC().Format(time.RFC3339Nano) + `"`), nil
}
