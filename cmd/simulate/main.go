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

	"github.com/careslot/booking/internal/config"
	"github.com/careslot/booking/internal/db"
)

// Load driver for the booking API. Workers deliberately race checkout and
// finalize requests over a small set of doctor-day slots so the conflict
// path gets exercised; the run ends with a double-booking audit straight
// against Postgres.

type SimConfig struct {
	APIBaseURL    string
	Duration      time.Duration
	Workers       int
	CheckoutRatio float64
	FinalizeRatio float64
	SlotsRatio    float64
	PatientLimit  int
	DoctorLimit   int
	PostgresDSN   string
}

type Target struct {
	DoctorID uuid.UUID
	ClinicID uuid.UUID
	Date     string
	Time     string
}

type DataPool struct {
	Patients []uuid.UUID
	Targets  []Target
	mu       sync.RWMutex
	sessions []string // checkout session ids awaiting finalize
}

func (dp *DataPool) AddSession(id string) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.sessions = append(dp.sessions, id)
}

func (dp *DataPool) GetRandomSession() (string, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.sessions) == 0 {
		return "", false
	}
	return dp.sessions[rand.Intn(len(dp.sessions))], true
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
	Checkout  OperationMetrics
	Finalize  OperationMetrics
	SlotsRead OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d checkout=%.2f finalize=%.2f slots=%.2f",
		cfg.Duration, cfg.Workers, cfg.CheckoutRatio, cfg.FinalizeRatio, cfg.SlotsRatio)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}

	log.Printf("loaded: %d patients, %d slot targets", len(dataPool.Patients), len(dataPool.Targets))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	sim.Run()
	sim.PrintReport()

	auditCtx, auditCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer auditCancel()
	auditDoubleBookings(auditCtx, pgPool)
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:    getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:      getDuration("SIM_DURATION", 30*time.Second),
		Workers:       getInt("SIM_WORKERS", 10),
		CheckoutRatio: getFloat("SIM_CHECKOUT_RATIO", 0.4),
		FinalizeRatio: getFloat("SIM_FINALIZE_RATIO", 0.4),
		SlotsRatio:    getFloat("SIM_SLOTS_RATIO", 0.2),
		PatientLimit:  getInt("SIM_PATIENT_LIMIT", 4000),
		DoctorLimit:   getInt("SIM_DOCTOR_LIMIT", 20),
		PostgresDSN:   baseCfg.PostgresDSN,
	}

	// Normalize ratios
	total := cfg.CheckoutRatio + cfg.FinalizeRatio + cfg.SlotsRatio
	if total > 0 {
		cfg.CheckoutRatio /= total
		cfg.FinalizeRatio /= total
		cfg.SlotsRatio /= total
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

// loadDataPool picks a handful of doctors and builds a deliberately small
// target set of next-week slot times, so many workers fight over the same
// slots.
func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `
		SELECT id FROM patients LIMIT $1
	`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, id)
	}

	rows, err = pool.Query(ctx, `
		SELECT id, clinic_id FROM doctors
		WHERE clinic_id IS NOT NULL
		LIMIT $1
	`, cfg.DoctorLimit)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	defer rows.Close()

	times := []string{"09:00", "09:30", "10:00", "10:30", "11:00", "11:30"}
	nextMonday := nextWeekday(time.Now(), time.Monday)

	for rows.Next() {
		var doctorID, clinicID uuid.UUID
		if err := rows.Scan(&doctorID, &clinicID); err != nil {
			return nil, err
		}
		for _, t := range times {
			dataPool.Targets = append(dataPool.Targets, Target{
				DoctorID: doctorID,
				ClinicID: clinicID,
				Date:     nextMonday.Format("2006-01-02"),
				Time:     t,
			})
		}
	}

	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded")
	}
	if len(dataPool.Targets) == 0 {
		return nil, fmt.Errorf("no slot targets loaded")
	}

	return dataPool, nil
}

func nextWeekday(from time.Time, day time.Weekday) time.Time {
	d := from.AddDate(0, 0, 1)
	for d.Weekday() != day {
		d = d.AddDate(0, 0, 1)
	}
	return d
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
			if r < s.config.CheckoutRatio {
				s.doCheckout(ctx, rng)
			} else if r < s.config.CheckoutRatio+s.config.FinalizeRatio {
				s.doFinalize(ctx, rng)
			} else {
				s.doSlotsRead(ctx, rng)
			}
		}
	}
}

func (s *Simulator) doCheckout(ctx context.Context, rng *rand.Rand) {
	if len(s.pool.Targets) == 0 || len(s.pool.Patients) == 0 {
		return
	}

	target := s.pool.Targets[rng.Intn(len(s.pool.Targets))]
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	start := time.Now()

	reqBody := map[string]any{
		"patient_id":       patientID.String(),
		"clinic_id":        target.ClinicID.String(),
		"doctor_id":        target.DoctorID.String(),
		"date":             target.Date,
		"time":             target.Time,
		"duration_minutes": 30,
		"appointment_type": "consultation",
		"total_amount":     500.0,
	}
	body, _ := json.Marshal(reqBody)

	req, _ := http.NewRequestWithContext(ctx, "POST", s.config.APIBaseURL+"/bookings/checkout", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	conflict := false

	if err == nil {
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusCreated {
			success = true
			var checkoutResp struct {
				SessionID string `json:"session_id"`
			}
			bodyBytes, _ := io.ReadAll(resp.Body)
			if len(bodyBytes) > 0 {
				json.Unmarshal(bodyBytes, &checkoutResp)
				if checkoutResp.SessionID != "" {
					s.pool.AddSession(checkoutResp.SessionID)
				}
			}
		} else if resp.StatusCode == http.StatusConflict {
			conflict = true
		}
	}

	s.metrics.Checkout.Record(latency, success, conflict)
}

func (s *Simulator) doFinalize(ctx context.Context, rng *rand.Rand) {
	sessionID, ok := s.pool.GetRandomSession()
	if !ok {
		return
	}

	start := time.Now()

	body, _ := json.Marshal(map[string]string{"session_id": sessionID})
	req, _ := http.NewRequestWithContext(ctx, "POST", s.config.APIBaseURL+"/bookings/finalize", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

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

	s.metrics.Finalize.Record(latency, success, conflict)
}

func (s *Simulator) doSlotsRead(ctx context.Context, rng *rand.Rand) {
	if len(s.pool.Targets) == 0 {
		return
	}

	target := s.pool.Targets[rng.Intn(len(s.pool.Targets))]

	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, "GET",
		fmt.Sprintf("%s/doctors/%s/slots?date=%s", s.config.APIBaseURL, target.DoctorID.String(), target.Date), nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.SlotsRead.Record(latency, success, false)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Checkout", &s.metrics.Checkout)
	printOperationReport("Finalize", &s.metrics.Finalize)
	printOperationReport("Slots read", &s.metrics.SlotsRead)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	errs := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if errs > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", errs, float64(errs)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

// auditDoubleBookings is the point of the whole exercise: after the run, no
// (doctor, date, start) tuple may hold more occupying appointments than
// its covering schedule rule's max_concurrent allows (1 when no rule
// covers the start).
func auditDoubleBookings(ctx context.Context, pool *pgxpool.Pool) {
	rows, err := pool.Query(ctx, `
		SELECT a.doctor_id, a.appointment_date, a.start_minute,
		       count(*), COALESCE(max(r.max_concurrent), 1)
		FROM appointments a
		LEFT JOIN schedule_rules r
		  ON r.doctor_id = a.doctor_id
		 AND r.day_of_week = EXTRACT(DOW FROM a.appointment_date)
		 AND r.is_available = true
		 AND r.start_minute <= a.start_minute
		 AND a.start_minute < r.end_minute
		WHERE a.status IN ('scheduled', 'confirmed', 'payment_confirmed', 'in_progress')
		  AND a.doctor_id IS NOT NULL
		GROUP BY a.doctor_id, a.appointment_date, a.start_minute
		HAVING count(*) > COALESCE(max(r.max_concurrent), 1)
	`)
	if err != nil {
		log.Printf("double-booking audit failed: %v", err)
		return
	}
	defer rows.Close()

	violations := 0
	for rows.Next() {
		var doctorID uuid.UUID
		var date time.Time
		var startMinute, n, capacity int
		if err := rows.Scan(&doctorID, &date, &startMinute, &n, &capacity); err != nil {
			log.Printf("double-booking audit scan: %v", err)
			return
		}
		violations++
		fmt.Printf("DOUBLE BOOKING: doctor=%s date=%s start_minute=%d count=%d capacity=%d\n",
			doctorID, date.Format("2006-01-02"), startMinute, n, capacity)
	}

	if violations == 0 {
		fmt.Println("Double-booking audit: OK (no slot exceeds its capacity)")
	} else {
		fmt.Printf("Double-booking audit: FAILED with %d violations\n", violations)
	}
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
