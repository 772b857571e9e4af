// Benchmark tool for measuring TruthLens against labelled review data.
//
// Usage:
//
//	go run ./cmd/benchmark -csv /path/to/listings.csv -url http://localhost:8000
//
// This tool:
//  1. Reads labelled review rows (url,label,text,rating) and groups them by url
//  2. Sends each listing to POST /analyze
//  3. Treats "High Risk / Caution" or a high bot probability as a fake prediction
//  4. Reports a confusion matrix with precision, recall and F1
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// AnalyzeResponse is the subset of the /analyze response the benchmark reads.
type AnalyzeResponse struct {
	AnalysisID     string  `json:"analysis_id"`
	TrustScore     int     `json:"trust_score"`
	SentimentScore float64 `json:"sentiment_score"`
	BotProbability int     `json:"bot_probability"`
	SafetyLabel    string  `json:"safety_label"`
	PhishingStatus string  `json:"phishing_status"`
}

const highRiskLabel = "High Risk / Caution"

// Metrics tracks benchmark results. Fake listings are the positive class.
type Metrics struct {
	TruePositives  int64
	FalsePositives int64
	TrueNegatives  int64
	FalseNegatives int64

	TotalProcessed int64
	TotalFake      int64
	TotalGenuine   int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

// Record adds one scored listing to the confusion matrix.
func (m *Metrics) Record(fake, predicted bool) {
	if fake {
		atomic.AddInt64(&m.TotalFake, 1)
	} else {
		atomic.AddInt64(&m.TotalGenuine, 1)
	}

	switch {
	case predicted && fake:
		atomic.AddInt64(&m.TruePositives, 1)
	case predicted && !fake:
		atomic.AddInt64(&m.FalsePositives, 1)
	case !predicted && !fake:
		atomic.AddInt64(&m.TrueNegatives, 1)
	default:
		atomic.AddInt64(&m.FalseNegatives, 1)
	}
}

// Scores returns precision, recall, F1 and accuracy.
func (m *Metrics) Scores() (precision, recall, f1, accuracy float64) {
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}
	return precision, recall, f1, accuracy
}

// predictFake is the benchmark's decision rule for a response.
func predictFake(r *AnalyzeResponse, botThreshold int) bool {
	return r.SafetyLabel == highRiskLabel || r.BotProbability >= botThreshold
}

func main() {
	csvPath := flag.String("csv", "", "Path to labelled review CSV (url,label,text,rating)")
	baseURL := flag.String("url", "http://localhost:8000", "TruthLens base URL")
	tenantID := flag.String("tenant", "benchmark", "Tenant ID for requests")
	limit := flag.Int("limit", 1000, "Maximum listings to process (0 = all)")
	workers := flag.Int("workers", 8, "Number of concurrent workers")
	botThreshold := flag.Int("bot-threshold", 60, "Bot probability at or above which a listing counts as fake")
	verbose := flag.Bool("verbose", false, "Print each listing result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/listings.csv [-url http://localhost:8000]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("TRUTHLENS BENCHMARK - labelled review sets")
	fmt.Printf("\nCSV File:       %s\n", *csvPath)
	fmt.Printf("TruthLens URL:  %s\n", *baseURL)
	fmt.Printf("Tenant ID:      %s\n", *tenantID)
	fmt.Printf("Workers:        %d\n", *workers)
	fmt.Printf("Limit:          %d\n", *limit)
	fmt.Printf("Bot threshold:  %d\n", *botThreshold)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: TruthLens not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure TruthLens is running:")
		fmt.Println("  go run ./cmd/truthlens")
		os.Exit(1)
	}
	fmt.Println("TruthLens is healthy")

	file, err := os.Open(*csvPath)
	if err != nil {
		fmt.Printf("ERROR: Failed to open CSV: %v\n", err)
		os.Exit(1)
	}
	listings, err := ReadListings(file, *limit)
	file.Close()
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	if len(listings) == 0 {
		fmt.Println("ERROR: no listings in CSV")
		os.Exit(1)
	}

	fakeCount := 0
	for _, l := range listings {
		if l.Fake {
			fakeCount++
		}
	}
	fmt.Printf("Loaded %d listings\n", len(listings))
	fmt.Printf("  - Fake:    %d (%.2f%%)\n", fakeCount, 100*float64(fakeCount)/float64(len(listings)))
	fmt.Printf("  - Genuine: %d (%.2f%%)\n", len(listings)-fakeCount, 100*float64(len(listings)-fakeCount)/float64(len(listings)))

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	m := runBenchmark(listings, *baseURL, *tenantID, *workers, *botThreshold, *verbose)
	printResults(m, time.Since(startTime))
}

func checkHealth(baseURL string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func runBenchmark(listings []Listing, baseURL, tenantID string, numWorkers, botThreshold int, verbose bool) *Metrics {
	m := &Metrics{}
	if numWorkers <= 0 {
		numWorkers = 1
	}

	work := make(chan Listing, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// narratives can take a while when a provider is configured
			client := &http.Client{Timeout: 60 * time.Second}

			for l := range work {
				start := time.Now()
				result, err := analyzeListing(client, baseURL, tenantID, l)
				atomic.AddInt64(&m.ProcessingTimeMs, time.Since(start).Milliseconds())
				atomic.AddInt64(&m.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&m.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", l.URL, err)
					}
					continue
				}

				predicted := predictFake(result, botThreshold)
				m.Record(l.Fake, predicted)

				if verbose {
					status := "ok "
					if predicted != l.Fake {
						status = "MISS"
					}
					fmt.Printf("%s %-50.50s | reviews: %3d | fake: %-5v | trust: %3d | bot: %3d | %s\n",
						status, l.URL, len(l.Reviews), l.Fake,
						result.TrustScore, result.BotProbability, result.SafetyLabel,
					)
				}
			}
		}()
	}

	for _, l := range listings {
		work <- l
	}
	close(work)
	wg.Wait()

	return m
}

func analyzeListing(client *http.Client, baseURL, tenantID string, l Listing) (*AnalyzeResponse, error) {
	body, err := json.Marshal(l.Request())
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result AnalyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\nBENCHMARK RESULTS")

	fmt.Printf("\nDATASET\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Fake:             %d\n", m.TotalFake)
	fmt.Printf("   Genuine:          %d\n", m.TotalGenuine)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\nCONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                    FAKE      GENUINE")
	fmt.Printf("   Actual  FAKE   %8d   %8d   (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Printf("        GENUINE   %8d   %8d   (FP, TN)\n", m.FalsePositives, m.TrueNegatives)

	precision, recall, f1, accuracy := m.Scores()
	fmt.Printf("\nDETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of flagged listings, how many were fake)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of fake listings, how many were flagged)\n", recall)
	fmt.Printf("   F1-Score:   %.4f\n", f1)
	fmt.Printf("   Accuracy:   %.4f\n", accuracy)

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f listings/sec\n", float64(m.TotalProcessed)/duration.Seconds())
	}
	fmt.Println()
}
