package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicdesk/appointment-backend/internal/config"
	"github.com/clinicdesk/appointment-backend/internal/db"
)

// Load driver for the request/approve flow. Patients file appointment
// requests while an admin worker approves them, so slot conflicts show up
// under concurrency the same way they would in production.

type SimConfig struct {
	APIBaseURL      string
	Duration        time.Duration
	Workers         int
	RequestRatio    float64
	ApproveRatio    float64
	ReadRatio       float64
	PatientLimit    int
	DaysAhead       int
	AdminEmail      string
	AdminPassword   string
	PatientPassword string
	PostgresDSN     string
}

type DataPool struct {
	PatientTokens []string
	mu            sync.RWMutex
	requests      []uuid.UUID // request IDs created during the run
}

func (dp *DataPool) AddRequest(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.requests = append(dp.requests, id)
}

func (dp *DataPool) GetRandomRequest() (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.requests) == 0 {
		return uuid.Nil, false
	}
	idx := rand.Intn(len(dp.requests))
	return dp.requests[idx], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]

	p50Idx := len(latencies) * 50 / 100
	if p50Idx >= len(latencies) {
		p50Idx = len(latencies) - 1
	}
	p50 = latencies[p50Idx]

	p95Idx := len(latencies) * 95 / 100
	if p95Idx >= len(latencies) {
		p95Idx = len(latencies) - 1
	}
	p95 = latencies[p95Idx]

	return avg, min, max, p50, p95
}

type Metrics struct {
	FileRequest    OperationMetrics
	Approve        OperationMetrics
	AvailableSlots OperationMetrics
	ListPending    OperationMetrics
}

type Simulator struct {
	config     SimConfig
	pool       *DataPool
	client     *http.Client
	adminToken string
	metrics    Metrics
	slotGrid   []string
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadSimConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d request=%.2f approve=%.2f read=%.2f",
		cfg.Duration, cfg.Workers, cfg.RequestRatio, cfg.ApproveRatio, cfg.ReadRatio)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	client := &http.Client{Timeout: 10 * time.Second}

	adminToken, err := login(ctx, client, cfg.APIBaseURL, cfg.AdminEmail, cfg.AdminPassword)
	if err != nil {
		log.Fatalf("admin login: %v", err)
	}

	dataPool, err := loadDataPool(ctx, pgPool, client, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}

	log.Printf("loaded: %d patient sessions", len(dataPool.PatientTokens))

	sim := &Simulator{
		config:     cfg,
		pool:       dataPool,
		client:     client,
		adminToken: adminToken,
		slotGrid:   buildSlotGrid(),
	}

	sim.Run()
	sim.PrintReport()
}

func loadSimConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:      getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:        getDuration("SIM_DURATION", 30*time.Second),
		Workers:         getInt("SIM_WORKERS", 10),
		RequestRatio:    getFloat("SIM_REQUEST_RATIO", 0.5),
		ApproveRatio:    getFloat("SIM_APPROVE_RATIO", 0.2),
		ReadRatio:       getFloat("SIM_READ_RATIO", 0.3),
		PatientLimit:    getInt("SIM_PATIENT_LIMIT", 100),
		DaysAhead:       getInt("SIM_DAYS_AHEAD", 14),
		AdminEmail:      getEnv("SIM_ADMIN_EMAIL", "admin@clinic.local"),
		AdminPassword:   getEnv("SIM_ADMIN_PASSWORD", "admin123"),
		PatientPassword: getEnv("SIM_PATIENT_PASSWORD", "patient123"),
		PostgresDSN:     baseCfg.PostgresDSN,
	}

	// Normalize ratios
	total := cfg.RequestRatio + cfg.ApproveRatio + cfg.ReadRatio
	if total > 0 {
		cfg.RequestRatio /= total
		cfg.ApproveRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

func login(ctx context.Context, client *http.Client, baseURL, email, password string) (string, error) {
	body, _ := json.Marshal(map[string]string{
		"email":    email,
		"password": password,
	})

	req, err := http.NewRequestWithContext(ctx, "POST", baseURL+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("login %s: status %d: %s", email, resp.StatusCode, string(b))
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Token, nil
}

// loadDataPool logs in a batch of seeded patients through the API so each
// simulated patient carries a real session token.
func loadDataPool(ctx context.Context, pool *pgxpool.Pool, client *http.Client, cfg SimConfig) (*DataPool, error) {
	rows, err := pool.Query(ctx, `SELECT email FROM patients LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		emails = append(emails, email)
	}
	if len(emails) == 0 {
		return nil, fmt.Errorf("no patients loaded, run the seed binary first")
	}

	dataPool := &DataPool{}
	for _, email := range emails {
		token, err := login(ctx, client, cfg.APIBaseURL, email, cfg.PatientPassword)
		if err != nil {
			log.Printf("skipping patient %s: %v", email, err)
			continue
		}
		dataPool.PatientTokens = append(dataPool.PatientTokens, token)
	}

	if len(dataPool.PatientTokens) == 0 {
		return nil, fmt.Errorf("no patient sessions established")
	}
	return dataPool, nil
}

func buildSlotGrid() []string {
	var grid []string
	for mins := 8 * 60; mins <= 18 * 60; mins += 30 {
		grid = append(grid, fmt.Sprintf("%02d:%02d", mins/60, mins%60))
	}
	return grid
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Println("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			if r < s.config.RequestRatio {
				s.doFileRequest(ctx, rng)
			} else if r < s.config.RequestRatio+s.config.ApproveRatio {
				s.doApprove(ctx, rng)
			} else {
				if rng.Intn(2) == 0 {
					s.doAvailableSlots(ctx, rng)
				} else {
					s.doListPending(ctx)
				}
			}
		}
	}
}

func (s *Simulator) randomSlot(rng *rand.Rand) (date, timeOfDay string) {
	day := time.Now().UTC().AddDate(0, 0, 1+rng.Intn(s.config.DaysAhead))
	return day.Format("2006-01-02"), s.slotGrid[rng.Intn(len(s.slotGrid))]
}

func (s *Simulator) doFileRequest(ctx context.Context, rng *rand.Rand) {
	token := s.pool.PatientTokens[rng.Intn(len(s.pool.PatientTokens))]
	date, timeOfDay := s.randomSlot(rng)

	start := time.Now()

	body, _ := json.Marshal(map[string]string{
		"date": date,
		"time": timeOfDay,
	})

	req, _ := http.NewRequestWithContext(ctx, "POST", s.config.APIBaseURL+"/requests", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	conflict := false

	if err == nil {
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusCreated {
			success = true
			var created struct {
				ID uuid.UUID `json:"id"`
			}
			bodyBytes, _ := io.ReadAll(resp.Body)
			if len(bodyBytes) > 0 {
				json.Unmarshal(bodyBytes, &created)
				if created.ID != uuid.Nil {
					s.pool.AddRequest(created.ID)
				}
			}
		} else if resp.StatusCode == http.StatusConflict {
			conflict = true
		}
	}

	s.metrics.FileRequest.Record(latency, success, conflict)
}

func (s *Simulator) doApprove(ctx context.Context, rng *rand.Rand) {
	reqID, ok := s.pool.GetRandomRequest()
	if !ok {
		return
	}

	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, "POST",
		fmt.Sprintf("%s/requests/%s/approve", s.config.APIBaseURL, reqID.String()), nil)
	req.Header.Set("Authorization", "Bearer "+s.adminToken)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	conflict := false

	if err == nil {
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			success = true
		} else if resp.StatusCode == http.StatusConflict {
			conflict = true
		}
	}

	s.metrics.Approve.Record(latency, success, conflict)
}

func (s *Simulator) doAvailableSlots(ctx context.Context, rng *rand.Rand) {
	date, _ := s.randomSlot(rng)
	token := s.pool.PatientTokens[rng.Intn(len(s.pool.PatientTokens))]

	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, "GET",
		fmt.Sprintf("%s/slots/available?date=%s", s.config.APIBaseURL, date), nil)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.AvailableSlots.Record(latency, success, false)
}

func (s *Simulator) doListPending(ctx context.Context) {
	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, "GET", s.config.APIBaseURL+"/requests/pending", nil)
	req.Header.Set("Authorization", "Bearer "+s.adminToken)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.ListPending.Record(latency, success, false)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("File Request", &s.metrics.FileRequest)
	printOperationReport("Approve", &s.metrics.Approve)
	printOperationReport("Available Slots", &s.metrics.AvailableSlots)
	printOperationReport("List Pending", &s.metrics.ListPending)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	errCount := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if errCount > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", errCount, float64(errCount)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
