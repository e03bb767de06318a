package domain

// GuardConfig is a client-side input check evaluated before a
// prediction request is sent. Expression is CEL and must return bool;
// false rejects the submission with Message.
type GuardConfig struct {
	ID         string `json:"id"`
	Expression string `json:"expression"`
	Message    string `json:"message"`
	Enabled    bool   `json:"enabled"`
}

// DefaultGuards mirrors the constraints of the numeric form inputs.
func DefaultGuards() []*GuardConfig {
	return []*GuardConfig{
		{
			ID:         "distance-from-home-non-negative",
			Expression: "distance_from_home >= 0.0",
			Message:    "Distance from home must not be negative",
			Enabled:    true,
		},
		{
			ID:         "distance-from-last-non-negative",
			Expression: "distance_from_last_transaction >= 0.0",
			Message:    "Distance from last transaction must not be negative",
			Enabled:    true,
		},
		{
			ID:         "price-ratio-non-negative",
			Expression: "ratio_to_median_purchase_price >= 0.0",
			Message:    "Price ratio must not be negative",
			Enabled:    true,
		},
	}
}
