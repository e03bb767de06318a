// Benchmark tool for scoring labelled card transactions against the
// FraudGuard API.
//
// Usage:
//
//	go run ./cmd/benchmark -csv /path/to/card_transdata.csv -username alice
//
// This tool:
//  1. Reads card transactions with fraud labels
//  2. Logs in and sends each transaction to /predict
//  3. Compares the API's verdict with the label
//  4. Prints the confusion matrix, precision, recall, F1 and latency percentiles
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/opensource-finance/fraudguard/internal/apiclient"
	"github.com/opensource-finance/fraudguard/internal/domain"
	"github.com/opensource-finance/fraudguard/internal/obs"
	"github.com/opensource-finance/fraudguard/internal/worker"
)

// sessionToken holds the bearer credential for the run. Nothing is persisted.
type sessionToken struct {
	mu    sync.RWMutex
	value string
}

func (s *sessionToken) Token(context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value, nil
}

func (s *sessionToken) set(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = v
}

func main() {
	_ = godotenv.Load()
	defaults := domain.DefaultConfig()

	csvPath := flag.String("csv", "", "Path to card transaction CSV file")
	baseURL := flag.String("url", envOr("FRAUDGUARD_API_URL", defaults.API.BaseURL), "FraudGuard API base URL")
	username := flag.String("username", os.Getenv("FRAUDGUARD_BENCH_USERNAME"), "API username")
	password := flag.String("password", os.Getenv("FRAUDGUARD_BENCH_PASSWORD"), "API password")
	limit := flag.Int("limit", 10000, "Maximum transactions to score (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	ratePerSec := flag.Float64("rate", 0, "Maximum requests per second (0 = unlimited)")
	threshold := flag.Float64("threshold", 0, "Confidence threshold for a fraud verdict (0 = use is_fraud)")
	timeout := flag.Duration("timeout", defaults.API.Timeout, "Per-request timeout")
	verbose := flag.Bool("verbose", false, "Print each transaction result")
	flag.Parse()

	if *csvPath == "" || *username == "" || *password == "" {
		fmt.Println("Usage: benchmark -csv /path/to/card_transdata.csv -username USER -password PASS [-url URL]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println("FRAUDGUARD BENCHMARK - Card Transaction Fraud Detection")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("API URL:     %s\n", *baseURL)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Printf("Rate:        %.1f req/s\n", *ratePerSec)
	fmt.Printf("Threshold:   %.2f\n", *threshold)
	fmt.Println()

	file, err := os.Open(*csvPath)
	if err != nil {
		fmt.Printf("ERROR: Failed to open CSV: %v\n", err)
		os.Exit(1)
	}
	samples, skipped, err := worker.ReadSamples(file, *limit)
	file.Close()
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	if len(samples) == 0 {
		fmt.Println("ERROR: no usable rows in CSV")
		os.Exit(1)
	}
	printDataset(os.Stdout, samples, skipped)

	metrics := obs.NewMetrics()
	token := &sessionToken{}
	client := apiclient.New(apiclient.Options{
		BaseURL:  *baseURL,
		Timeout:  *timeout,
		Tokens:   token,
		Recorder: metrics,
	})

	access, err := client.Login(ctx, *username, *password)
	if err != nil {
		fmt.Printf("ERROR: Login failed: %v\n", err)
		if errors.Is(err, domain.ErrNetworkUnavailable) {
			fmt.Println("\nMake sure the FraudGuard API is reachable at", *baseURL)
		}
		os.Exit(1)
	}
	token.set(access)
	fmt.Println("Logged in")

	var onOutcome func(worker.Outcome)
	if *verbose {
		var mu sync.Mutex
		onOutcome = func(o worker.Outcome) {
			mu.Lock()
			defer mu.Unlock()
			printOutcome(os.Stdout, o, *threshold)
		}
	}

	fmt.Printf("\nScoring %d transactions with %d workers...\n", len(samples), *workers)
	pool := worker.NewPool(client, worker.Config{
		WorkerCount:   *workers,
		RatePerSecond: *ratePerSec,
		Threshold:     *threshold,
	})
	report := pool.Run(ctx, samples, onOutcome)

	printResults(os.Stdout, report)

	if report.ErrorsByKind[domain.KindAuthRejected] > 0 {
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printDataset(w io.Writer, samples []worker.Sample, skipped int) {
	fraud := 0
	for _, s := range samples {
		if s.Fraud {
			fraud++
		}
	}
	total := len(samples)
	fmt.Fprintf(w, "Loaded %d transactions (%d malformed rows skipped)\n", total, skipped)
	fmt.Fprintf(w, "  - Fraud:     %d (%.2f%%)\n", fraud, 100*float64(fraud)/float64(total))
	fmt.Fprintf(w, "  - Non-fraud: %d (%.2f%%)\n", total-fraud, 100*float64(total-fraud)/float64(total))
}

func printOutcome(w io.Writer, o worker.Outcome, threshold float64) {
	if o.Err != nil {
		fmt.Fprintf(w, "ERROR row %d -> %v\n", o.Sample.Row, o.Err)
		return
	}
	predicted := o.Predicted(threshold)
	mark := "ok"
	if predicted != o.Sample.Fraud {
		mark = "XX"
	}
	fmt.Fprintf(w, "%s row %-7d | home %8.1f km | ratio %5.1fx | online %-5v | fraud %-5v | api %-5v (%.4f) | %v\n",
		mark,
		o.Sample.Row,
		o.Sample.Input.DistanceFromHome,
		o.Sample.Input.RatioToMedianPurchasePrice,
		o.Sample.Input.OnlineOrder,
		o.Sample.Fraud,
		predicted,
		o.Result.ConfidenceScore,
		o.Latency.Round(time.Millisecond),
	)
}

func printResults(w io.Writer, r *worker.Report) {
	fmt.Fprintln(w, "\nBENCHMARK RESULTS")

	fmt.Fprintf(w, "\nDATASET STATISTICS\n")
	fmt.Fprintf(w, "   Total Processed:  %d\n", r.Processed())
	fmt.Fprintf(w, "   Scored:           %d\n", r.Scored())
	fmt.Fprintf(w, "   Errors:           %d\n", r.Errors)
	for kind, n := range r.ErrorsByKind {
		fmt.Fprintf(w, "     %-20s %d\n", kind, n)
	}

	fmt.Fprintf(w, "\nCONFUSION MATRIX\n")
	fmt.Fprintln(w, "                      Predicted")
	fmt.Fprintln(w, "                   FRAUD      LEGIT")
	fmt.Fprintf(w, "   Actual  FRAUD  %8d   %8d   (TP, FN)\n", r.TruePositives, r.FalseNegatives)
	fmt.Fprintf(w, "           LEGIT  %8d   %8d   (FP, TN)\n", r.FalsePositives, r.TrueNegatives)

	fmt.Fprintf(w, "\nDETECTION METRICS\n")
	fmt.Fprintf(w, "   Precision:  %.4f\n", r.Precision())
	fmt.Fprintf(w, "   Recall:     %.4f\n", r.Recall())
	fmt.Fprintf(w, "   F1-Score:   %.4f\n", r.F1())
	fmt.Fprintf(w, "   Accuracy:   %.4f\n", r.Accuracy())

	fmt.Fprintf(w, "\nPERFORMANCE\n")
	fmt.Fprintf(w, "   Total Duration:   %v\n", r.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "   Throughput:       %.2f tx/sec\n", r.Throughput())
	for _, p := range []float64{50, 95, 99} {
		fmt.Fprintf(w, "   p%-2.0f Latency:      %v\n", p, r.Percentile(p).Round(time.Millisecond))
	}
	fmt.Fprintln(w)
}
