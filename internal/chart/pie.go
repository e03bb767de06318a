// Package chart renders the legit/fraud distribution as a PNG pie chart.
package chart

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/fraudguard/internal/domain"
	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// Slice colors, legit first.
var (
	ColorLegit = drawing.ColorFromHex("22c55e")
	ColorFraud = drawing.ColorFromHex("ef4444")
	ColorEmpty = drawing.ColorFromHex("e2e8f0")
)

// Renderer draws pie charts and memoises them by count. A nil cache
// disables memoisation.
type Renderer struct {
	cache   domain.Cache
	profile string
	ttl     time.Duration
	width   int
	height  int
}

// NewRenderer creates a renderer for 320x250 charts.
func NewRenderer(cache domain.Cache, profile string, ttl time.Duration) *Renderer {
	if profile == "" {
		profile = domain.DefaultProfile
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Renderer{cache: cache, profile: profile, ttl: ttl, width: 320, height: 250}
}

// PNG returns the chart for the given counts.
func (r *Renderer) PNG(ctx context.Context, legit, fraud int) ([]byte, error) {
	key := fmt.Sprintf("chart:%dx%d:%d:%d", r.width, r.height, legit, fraud)

	if r.cache != nil {
		cached, err := r.cache.Get(ctx, r.profile, key)
		if err != nil {
			slog.Warn("chart cache read failed", "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	img, err := Render(legit, fraud, r.width, r.height)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, r.profile, key, img, r.ttl); err != nil {
			slog.Warn("chart cache write failed", "error", err)
		}
	}
	return img, nil
}

// Render draws the pie without caching. Zero counts are left out; an
// empty history draws a single neutral slice.
func Render(legit, fraud, width, height int) ([]byte, error) {
	var values []gochart.Value
	if legit > 0 {
		values = append(values, slice(fmt.Sprintf("Legit (%d)", legit), legit, ColorLegit))
	}
	if fraud > 0 {
		values = append(values, slice(fmt.Sprintf("Fraud (%d)", fraud), fraud, ColorFraud))
	}
	if len(values) == 0 {
		values = append(values, slice("No history yet", 1, ColorEmpty))
	}

	pie := gochart.PieChart{
		Width:  width,
		Height: height,
		Values: values,
	}

	var buf bytes.Buffer
	if err := pie.Render(gochart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render pie chart: %w", err)
	}
	return buf.Bytes(), nil
}

func slice(label string, n int, color drawing.Color) gochart.Value {
	return gochart.Value{
		Label: label,
		Value: float64(n),
		Style: gochart.Style{
			FillColor:   color,
			StrokeColor: drawing.ColorWhite,
			StrokeWidth: 2,
			FontColor:   drawing.ColorFromHex("1f2937"),
		},
	}
}
