// Command simulate drives the booking conflict guard under contention: it
// picks visible slots from the live API and fires many concurrent claims at
// each, then verifies exactly one caller per slot won.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebook/booking-engine/internal/db"
)

type SimConfig struct {
	APIBaseURL  string
	Claimers    int
	SlotTargets int
	PostgresDSN string
	JWTSecret   string
}

func loadSimConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:  getEnv("API_BASE_URL", "http://127.0.0.1:8080"),
		Claimers:    getInt("SIM_CLAIMERS", 50),
		SlotTargets: getInt("SIM_SLOT_TARGETS", 5),
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
		JWTSecret:   getEnv("JWT_SECRET", "dev-secret"),
	}
	if cfg.PostgresDSN == "" {
		log.Fatal("POSTGRES_DSN is required")
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

type Metrics struct {
	Created   int64
	Conflicts int64
	Errors    int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (m *Metrics) Record(latency time.Duration, status int) {
	switch status {
	case http.StatusCreated:
		atomic.AddInt64(&m.Created, 1)
	case http.StatusConflict:
		atomic.AddInt64(&m.Conflicts, 1)
	default:
		atomic.AddInt64(&m.Errors, 1)
	}

	m.mu.Lock()
	m.latencies = append(m.latencies, latency)
	m.mu.Unlock()
}

func (m *Metrics) Report() {
	m.mu.Lock()
	defer m.mu.Unlock()

	fmt.Printf("created=%d conflicts=%d errors=%d\n", m.Created, m.Conflicts, m.Errors)
	if len(m.latencies) == 0 {
		return
	}

	sorted := make([]time.Duration, len(m.latencies))
	copy(sorted, m.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	p50 := sorted[len(sorted)*50/100]
	p95 := sorted[len(sorted)*95/100]
	if len(sorted)*95/100 >= len(sorted) {
		p95 = sorted[len(sorted)-1]
	}
	fmt.Printf("latency min=%s p50=%s p95=%s max=%s\n", sorted[0], p50, p95, sorted[len(sorted)-1])
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	cfg := loadSimConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	cancel()
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	doctorID, err := randomDoctor(context.Background(), pool)
	if err != nil {
		log.Fatalf("pick doctor: %v", err)
	}
	patients, err := randomPatients(context.Background(), pool, cfg.Claimers)
	if err != nil {
		log.Fatalf("pick patients: %v", err)
	}

	log.Printf("simulating %d claimers against doctor %s", cfg.Claimers, doctorID)

	patientToken, err := mintToken(cfg.JWTSecret, patients[0], "patient")
	if err != nil {
		log.Fatalf("mint token: %v", err)
	}

	targets, err := visibleSlots(cfg, doctorID, patientToken, cfg.SlotTargets)
	if err != nil {
		log.Fatalf("load visible slots: %v", err)
	}
	if len(targets) == 0 {
		log.Fatal("no visible slots to contend for; run the seeder first")
	}

	metrics := &Metrics{}
	client := &http.Client{Timeout: 10 * time.Second}

	for _, target := range targets {
		var wg sync.WaitGroup
		start := make(chan struct{})

		for _, patientID := range patients {
			token, err := mintToken(cfg.JWTSecret, patientID, "patient")
			if err != nil {
				log.Fatalf("mint token: %v", err)
			}

			wg.Add(1)
			go func(token string) {
				defer wg.Done()
				<-start

				began := time.Now()
				status := claim(client, cfg.APIBaseURL, token, doctorID, target.Date, target.Time)
				metrics.Record(time.Since(began), status)
			}(token)
		}

		close(start)
		wg.Wait()

		log.Printf("slot %s %s contested by %d claimers", target.Date, target.Time, len(patients))
	}

	metrics.Report()

	if metrics.Created != int64(len(targets)) {
		log.Fatalf("double-booking detected: %d slots, %d creations", len(targets), metrics.Created)
	}
	log.Printf("ok: %d slots, exactly one winner each", len(targets))
}

type slotTarget struct {
	Date string
	Time string
}

func randomDoctor(ctx context.Context, pool *pgxpool.Pool) (uuid.UUID, error) {
	var id uuid.UUID
	err := pool.QueryRow(ctx, `SELECT id FROM doctors ORDER BY random() LIMIT 1`).Scan(&id)
	return id, err
}

func randomPatients(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, `SELECT id FROM patients ORDER BY random() LIMIT $1`, count)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if len(ids) < count {
		return nil, fmt.Errorf("need %d patients, found %d; run the seeder first", count, len(ids))
	}
	return ids, rows.Err()
}

func mintToken(secret string, subject uuid.UUID, role string) (string, error) {
	claims := jwt.MapClaims{
		"sub":  subject.String(),
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func visibleSlots(cfg SimConfig, doctorID uuid.UUID, token string, limit int) ([]slotTarget, error) {
	req, err := http.NewRequest(http.MethodGet, cfg.APIBaseURL+"/availability/"+doctorID.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("availability read failed: %d %s", resp.StatusCode, body)
	}

	var payload struct {
		Days []struct {
			Date  string   `json:"date"`
			Slots []string `json:"slots"`
		} `json:"days"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	var targets []slotTarget
	for _, day := range payload.Days {
		for _, slot := range day.Slots {
			targets = append(targets, slotTarget{Date: day.Date, Time: slot})
			if len(targets) == limit {
				return targets, nil
			}
		}
	}
	return targets, nil
}

func claim(client *http.Client, baseURL, token string, doctorID uuid.UUID, date, timeSlot string) int {
	body, _ := json.Marshal(map[string]string{
		"doctor_id": doctorID.String(),
		"date":      date,
		"time":      timeSlot,
		"reason":    "load simulation",
	})

	req, err := http.NewRequest(http.MethodPost, baseURL+"/appointments", bytes.NewReader(body))
	if err != nil {
		return 0
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode
}
