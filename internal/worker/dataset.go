package worker

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/opensource-finance/fraudguard/internal/domain"
)

// Sample is one labelled transaction.
type Sample struct {
	Row   int
	Input domain.TransactionInput
	Fraud bool
}

// LabelColumn holds the ground truth in card transaction datasets.
const LabelColumn = "fraud"

var featureColumns = []string{
	"distance_from_home",
	"distance_from_last_transaction",
	"ratio_to_median_purchase_price",
	"repeat_retailer",
	"used_chip",
	"used_pin_number",
	"online_order",
}

// ReadSamples parses a card transaction CSV with a header row.
// Malformed rows are skipped and counted. limit <= 0 reads everything.
func ReadSamples(r io.Reader, limit int) ([]Sample, int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int, len(header))
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, col := range append(featureColumns, LabelColumn) {
		if _, ok := colIndex[col]; !ok {
			return nil, 0, fmt.Errorf("%w: missing column %q", domain.ErrInvalidInput, col)
		}
	}

	var samples []Sample
	skipped := 0
	row := 1

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		row++
		if err != nil {
			skipped++
			continue
		}

		sample, err := parseRecord(record, colIndex)
		if err != nil {
			slog.Debug("skipping malformed row", "row", row, "error", err)
			skipped++
			continue
		}
		sample.Row = row
		samples = append(samples, sample)

		if limit > 0 && len(samples) >= limit {
			break
		}
	}

	return samples, skipped, nil
}

func parseRecord(record []string, colIndex map[string]int) (Sample, error) {
	field := func(name string) (string, error) {
		i := colIndex[name]
		if i >= len(record) {
			return "", fmt.Errorf("missing %s", name)
		}
		return strings.TrimSpace(record[i]), nil
	}
	num := func(name string) (float64, error) {
		v, err := field(name)
		if err != nil {
			return 0, err
		}
		return strconv.ParseFloat(v, 64)
	}
	flag := func(name string) (bool, error) {
		v, err := num(name)
		if err != nil {
			return false, err
		}
		return v != 0, nil
	}

	var s Sample
	var err error
	in := &s.Input
	if in.DistanceFromHome, err = num("distance_from_home"); err != nil {
		return s, err
	}
	if in.DistanceFromLastTransaction, err = num("distance_from_last_transaction"); err != nil {
		return s, err
	}
	if in.RatioToMedianPurchasePrice, err = num("ratio_to_median_purchase_price"); err != nil {
		return s, err
	}
	if in.RepeatRetailer, err = flag("repeat_retailer"); err != nil {
		return s, err
	}
	if in.UsedChip, err = flag("used_chip"); err != nil {
		return s, err
	}
	if in.UsedPinNumber, err = flag("used_pin_number"); err != nil {
		return s, err
	}
	if in.OnlineOrder, err = flag("online_order"); err != nil {
		return s, err
	}
	if s.Fraud, err = flag(LabelColumn); err != nil {
		return s, err
	}
	return s, nil
}
