package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestLoadFrom(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		cfg, err := loadFrom(func(string) string { return "" })
		if err != nil {
			t.Fatalf("loadFrom failed: %v", err)
		}
		if cfg.Tier != TierCommunity {
			t.Errorf("expected community tier, got %s", cfg.Tier)
		}
		if cfg.API.BaseURL != "http://localhost:8000/api/v1" {
			t.Errorf("unexpected base url %s", cfg.API.BaseURL)
		}
		if cfg.API.Timeout != 10*time.Second {
			t.Errorf("expected 10s timeout, got %v", cfg.API.Timeout)
		}
		if cfg.Repository.Driver != "sqlite" {
			t.Errorf("expected sqlite driver, got %s", cfg.Repository.Driver)
		}
	})

	t.Run("Overrides", func(t *testing.T) {
		env := map[string]string{
			"FRAUDGUARD_TIER":        "pro",
			"FRAUDGUARD_API_URL":     "https://fraud.example.com/api/v1",
			"FRAUDGUARD_API_TIMEOUT": "3s",
			"FRAUDGUARD_PORT":        "9090",
			"FRAUDGUARD_PROFILE":     "analyst",
			"FRAUDGUARD_DEBUG":       "true",
		}
		cfg, err := loadFrom(func(k string) string { return env[k] })
		if err != nil {
			t.Fatalf("loadFrom failed: %v", err)
		}
		if cfg.Tier != TierPro || cfg.Repository.Driver != "postgres" {
			t.Errorf("expected pro tier with postgres, got %s/%s", cfg.Tier, cfg.Repository.Driver)
		}
		if cfg.API.Timeout != 3*time.Second {
			t.Errorf("expected 3s timeout, got %v", cfg.API.Timeout)
		}
		if cfg.Server.Port != 9090 {
			t.Errorf("expected port 9090, got %d", cfg.Server.Port)
		}
		if cfg.Profile != "analyst" {
			t.Errorf("expected profile analyst, got %s", cfg.Profile)
		}
		if cfg.Logging.Level != "debug" {
			t.Errorf("expected debug level, got %s", cfg.Logging.Level)
		}
	})

	t.Run("InvalidValues", func(t *testing.T) {
		env := map[string]string{
			"FRAUDGUARD_PORT":        "not-a-port",
			"FRAUDGUARD_API_TIMEOUT": "soon",
		}
		_, err := loadFrom(func(k string) string { return env[k] })
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestTimestampUnmarshal(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
	}{
		{`"2024-05-01T10:00:00.123456"`, time.Date(2024, 5, 1, 10, 0, 0, 123456000, time.UTC)},
		{`"2024-05-01T10:00:00"`, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		{`"2024-05-01T12:00:00+02:00"`, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		{`"2024-05-01 10:00:00.5"`, time.Date(2024, 5, 1, 10, 0, 0, 500000000, time.UTC)},
	}

	for _, tt := range tests {
		var ts Timestamp
		if err := json.Unmarshal([]byte(tt.input), &ts); err != nil {
			t.Errorf("Unmarshal(%s) failed: %v", tt.input, err)
			continue
		}
		if !ts.Equal(tt.want) {
			t.Errorf("Unmarshal(%s) = %v, want %v", tt.input, ts.Time, tt.want)
		}
	}

	var ts Timestamp
	if err := json.Unmarshal([]byte(`"yesterday"`), &ts); err == nil {
		t.Error("expected error for unparseable timestamp")
	}
	if err := json.Unmarshal([]byte(`null`), &ts); err != nil || !ts.IsZero() {
		t.Errorf("expected zero time for null, got %v (%v)", ts.Time, err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{nil, KindNone},
		{fmt.Errorf("predict: %w", ErrAuthRejected), KindAuthRejected},
		{fmt.Errorf("form: %w", ErrValidationRejected), KindValidationRejected},
		{ErrSubmissionInFlight, KindInFlight},
		{fmt.Errorf("history: %w", ErrNetworkUnavailable), KindNetworkUnavailable},
		{context.Canceled, KindCanceled},
		{errors.New("boom"), KindServerRejected},
	}

	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.want {
			t.Errorf("Classify(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
