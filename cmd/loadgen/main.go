package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"ingest-service/config"
	"ingest-service/internal/models"
	"ingest-service/internal/store"

	"github.com/google/uuid"
)

// Load generator: posts synthetic NDJSON bodies at the ingest endpoint,
// measures line throughput, and replays one body verbatim to confirm the
// idempotency guarantee end to end.

var (
	targetURL   string
	tenantSlug  string
	concurrency int
	requests    int
	linesPerReq int
)

var (
	totalLines    uint64
	acceptedLines uint64
	dupLines      uint64
	rejectedLines uint64
	failed        uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API base URL")
	flag.StringVar(&tenantSlug, "tenant", "tenant-1", "tenant slug to drive traffic for")
	flag.IntVar(&concurrency, "workers", 8, "number of concurrent workers")
	flag.IntVar(&requests, "requests", 50, "ingest requests per worker")
	flag.IntVar(&linesPerReq, "lines", 5000, "NDJSON lines per request")
}

func main() {
	flag.Parse()
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	tenant, err := db.GetTenantBySlug(ctx, tenantSlug)
	if err != nil {
		log.Fatalf("Tenant lookup failed (run the seeder first): %v", err)
	}
	productIDs, err := db.ProductIDs(ctx, tenant.ID)
	if err != nil || len(productIDs) == 0 {
		log.Fatalf("No products for tenant %s (run the seeder first): %v", tenantSlug, err)
	}

	log.Printf("Load test: tenant=%s workers=%d requests/worker=%d lines/request=%d",
		tenantSlug, concurrency, requests, linesPerReq)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(worker int) {
			defer wg.Done()
			run(worker, tenant.ID, productIDs)
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(start)

	fmt.Printf("\n--- Results ---\n")
	fmt.Printf("Lines sent:      %d\n", totalLines)
	fmt.Printf("Accepted:        %d\n", acceptedLines)
	fmt.Printf("Duplicates:      %d\n", dupLines)
	fmt.Printf("Rejected:        %d\n", rejectedLines)
	fmt.Printf("Failed requests: %d\n", failed)
	fmt.Printf("Throughput:      %.0f lines/sec\n", float64(totalLines)/elapsed.Seconds())

	replayCheck(tenant.ID, productIDs)
}

func run(worker int, tenantID uuid.UUID, productIDs []uuid.UUID) {
	client := &http.Client{Timeout: 120 * time.Second}
	for r := 0; r < requests; r++ {
		body := buildBody(worker, r, tenantID, productIDs)
		report, err := post(client, tenantID, body)
		if err != nil {
			atomic.AddUint64(&failed, 1)
			continue
		}
		atomic.AddUint64(&totalLines, uint64(report.TotalLines))
		atomic.AddUint64(&acceptedLines, uint64(report.Accepted))
		atomic.AddUint64(&dupLines, uint64(report.Duplicates))
		atomic.AddUint64(&rejectedLines, uint64(report.Rejected))
	}
}

// replayCheck submits one body twice and verifies every line of the replay
// comes back duplicate.
func replayCheck(tenantID uuid.UUID, productIDs []uuid.UUID) {
	client := &http.Client{Timeout: 120 * time.Second}
	body := buildBody(999, int(time.Now().UnixNano()%1_000_000), tenantID, productIDs)

	first, err := post(client, tenantID, body)
	if err != nil {
		log.Fatalf("Replay check first submit failed: %v", err)
	}
	second, err := post(client, tenantID, body)
	if err != nil {
		log.Fatalf("Replay check second submit failed: %v", err)
	}

	fmt.Printf("\n--- Replay check ---\n")
	fmt.Printf("First:  accepted=%d duplicates=%d\n", first.Accepted, first.Duplicates)
	fmt.Printf("Replay: accepted=%d duplicates=%d\n", second.Accepted, second.Duplicates)
	if second.Accepted != 0 || second.Duplicates != first.Accepted {
		log.Fatalf("IDEMPOTENCY VIOLATION: replay accepted %d lines", second.Accepted)
	}
	fmt.Println("Idempotency holds.")
}

func buildBody(worker, request int, tenantID uuid.UUID, productIDs []uuid.UUID) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := 0; i < linesPerReq; i++ {
		line := map[string]interface{}{
			"tenant_id":       tenantID.String(),
			"idempotency_key": fmt.Sprintf("load-%d-%d-%d", worker, request, i),
			"product_id":      productIDs[rand.Intn(len(productIDs))].String(),
			"quantity":        rand.Intn(5) + 1,
			"unit_price":      fmt.Sprintf("%d.%02d", rand.Intn(990)+10, rand.Intn(100)),
			"customer_name":   fmt.Sprintf("Customer %d", i+1),
		}
		_ = enc.Encode(line) // Encode appends the newline NDJSON needs
	}
	return buf.Bytes()
}

func post(client *http.Client, tenantID uuid.UUID, body []byte) (*models.IngestReport, error) {
	req, err := http.NewRequest(http.MethodPost, targetURL+"/api/v1/ingest/orders", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-ndjson")
	req.Header.Set("X-Tenant-ID", tenantID.String())

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var report models.IngestReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, err
	}
	return &report, nil
}
