package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
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

	"github.com/hackgods/doctor-appointment-booking/internal/auth"
	"github.com/hackgods/doctor-appointment-booking/internal/booking"
	"github.com/hackgods/doctor-appointment-booking/internal/config"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	CancelRatio  float64
	ReadRatio    float64
	DoctorLimit  int
	DaysAhead    int
	PatientIDs   []uuid.UUID
	JWTSecret    string
}

// target is one bookable slot offered by a doctor.
type target struct {
	DoctorID uuid.UUID
	Date     string
	Time     string
}

type created struct {
	ID        uuid.UUID
	PatientID uuid.UUID
}

type DataPool struct {
	Patients []uuid.UUID
	Doctors  []uuid.UUID
	Targets  []target
	tokens   map[uuid.UUID]string
	mu       sync.RWMutex
	bookings []created
}

func (dp *DataPool) AddBooking(c created) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.bookings = append(dp.bookings, c)
}

func (dp *DataPool) GetRandomBooking(rng *rand.Rand) (created, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.bookings) == 0 {
		return created{}, false
	}
	return dp.bookings[rng.Intn(len(dp.bookings))], true
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
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Booking       OperationMetrics
	Cancel        OperationMetrics
	ReadByID      OperationMetrics
	ListByPatient OperationMetrics
	Availability  OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	tokens  *auth.Manager
	metrics Metrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d booking=%.2f cancel=%.2f read=%.2f",
		cfg.Duration, cfg.Workers, cfg.BookingRatio, cfg.CancelRatio, cfg.ReadRatio)

	sim := &Simulator{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		tokens: auth.NewManager(cfg.JWTSecret),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dataPool, err := sim.loadDataPool(ctx)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}
	sim.pool = dataPool

	log.Printf("loaded: %d patients, %d doctors, %d open slots",
		len(dataPool.Patients), len(dataPool.Doctors), len(dataPool.Targets))

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:"+baseCfg.HTTPPort),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.5),
		CancelRatio:  getFloat("SIM_CANCEL_RATIO", 0.1),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.4),
		DoctorLimit:  getInt("SIM_DOCTOR_LIMIT", 10),
		DaysAhead:    getInt("SIM_DAYS_AHEAD", 7),
		PatientIDs:   getUUIDs("SIM_PATIENT_IDS"),
		JWTSecret:    baseCfg.JWTSecret,
	}

	total := cfg.BookingRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if len(cfg.PatientIDs) == 0 {
		return fmt.Errorf("SIM_PATIENT_IDS is required (comma separated ids printed by cmd/seed)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

// loadDataPool discovers doctors through the public API and collects the
// open slots of the coming days. Workers then race for the same slots.
func (s *Simulator) loadDataPool(ctx context.Context) (*DataPool, error) {
	dp := &DataPool{
		Patients: s.config.PatientIDs,
		tokens:   make(map[uuid.UUID]string, len(s.config.PatientIDs)),
	}

	for _, id := range dp.Patients {
		token, err := s.tokens.Issue(booking.Actor{UserID: id, Role: booking.RolePatient}, s.config.Duration+time.Hour)
		if err != nil {
			return nil, fmt.Errorf("issue patient token: %w", err)
		}
		dp.tokens[id] = token
	}

	var doctors struct {
		Data []booking.Doctor `json:"data"`
	}
	if err := s.getJSON(ctx, "/api/v1/doctors", "", &doctors); err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}

	token := dp.tokens[dp.Patients[0]]
	today := time.Now().UTC()
	for _, d := range doctors.Data {
		if len(dp.Doctors) >= s.config.DoctorLimit {
			break
		}
		if len(d.TimeSlots) == 0 {
			continue
		}
		dp.Doctors = append(dp.Doctors, d.ID)

		for i := 1; i <= s.config.DaysAhead; i++ {
			date := today.AddDate(0, 0, i).Format("2006-01-02")
			var avail booking.Availability
			path := fmt.Sprintf("/api/v1/doctors/%s/available-slots?date=%s", d.ID, date)
			if err := s.getJSON(ctx, path, token, &avail); err != nil {
				return nil, fmt.Errorf("available slots of %s on %s: %w", d.ID, date, err)
			}
			for _, t := range avail.AvailableSlots {
				dp.Targets = append(dp.Targets, target{DoctorID: d.ID, Date: date, Time: t})
			}
		}
	}

	if len(dp.Targets) == 0 {
		return nil, fmt.Errorf("no open slots found in the next %d days", s.config.DaysAhead)
	}
	return dp, nil
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
			if r < s.config.BookingRatio {
				s.doBooking(ctx, rng)
			} else if r < s.config.BookingRatio+s.config.CancelRatio {
				s.doCancel(ctx, rng)
			} else {
				switch rng.Intn(3) {
				case 0:
					s.doReadByID(ctx, rng)
				case 1:
					s.doListByPatient(ctx, rng)
				case 2:
					s.doAvailability(ctx, rng)
				}
			}
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	t := s.pool.Targets[rng.Intn(len(s.pool.Targets))]
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	body, _ := json.Marshal(map[string]string{
		"doctorId":        t.DoctorID.String(),
		"appointmentDate": t.Date,
		"appointmentTime": t.Time,
	})

	start := time.Now()
	status, respBody, err := s.do(ctx, http.MethodPost, "/api/v1/bookings", s.pool.tokens[patientID], body)
	latency := time.Since(start)

	success, conflict := false, false
	if err == nil {
		switch {
		case status == http.StatusCreated:
			success = true
			var b booking.Booking
			if json.Unmarshal(respBody, &b) == nil && b.ID != uuid.Nil {
				s.pool.AddBooking(created{ID: b.ID, PatientID: patientID})
			}
		case status == http.StatusBadRequest && errorCode(respBody) == "slot_already_booked":
			conflict = true
		}
	}

	s.metrics.Booking.Record(latency, success, conflict)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	c, ok := s.pool.GetRandomBooking(rng)
	if !ok {
		return
	}

	body, _ := json.Marshal(map[string]string{"status": string(booking.StatusCancelled)})

	start := time.Now()
	status, respBody, err := s.do(ctx, http.MethodPut,
		fmt.Sprintf("/api/v1/bookings/%s/status", c.ID), s.pool.tokens[c.PatientID], body)
	latency := time.Since(start)

	success, conflict := false, false
	if err == nil {
		success = status == http.StatusOK
		// already cancelled by another worker
		conflict = status == http.StatusBadRequest && errorCode(respBody) != ""
	}

	s.metrics.Cancel.Record(latency, success, conflict)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	c, ok := s.pool.GetRandomBooking(rng)
	if !ok {
		return
	}

	start := time.Now()
	status, _, err := s.do(ctx, http.MethodGet,
		fmt.Sprintf("/api/v1/bookings/%s", c.ID), s.pool.tokens[c.PatientID], nil)
	latency := time.Since(start)

	s.metrics.ReadByID.Record(latency, err == nil && status == http.StatusOK, false)
}

func (s *Simulator) doListByPatient(ctx context.Context, rng *rand.Rand) {
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	start := time.Now()
	status, _, err := s.do(ctx, http.MethodGet, "/api/v1/users/me/appointments", s.pool.tokens[patientID], nil)
	latency := time.Since(start)

	s.metrics.ListByPatient.Record(latency, err == nil && status == http.StatusOK, false)
}

func (s *Simulator) doAvailability(ctx context.Context, rng *rand.Rand) {
	t := s.pool.Targets[rng.Intn(len(s.pool.Targets))]
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	start := time.Now()
	status, _, err := s.do(ctx, http.MethodGet,
		fmt.Sprintf("/api/v1/doctors/%s/available-slots?date=%s", t.DoctorID, t.Date), s.pool.tokens[patientID], nil)
	latency := time.Since(start)

	s.metrics.Availability.Record(latency, err == nil && status == http.StatusOK, false)
}

func (s *Simulator) do(ctx context.Context, method, path, token string, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, buf.Bytes(), nil
}

func (s *Simulator) getJSON(ctx context.Context, path, token string, out any) error {
	status, body, err := s.do(ctx, http.MethodGet, path, token, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", status, strings.TrimSpace(string(body)))
	}
	return json.Unmarshal(body, out)
}

func errorCode(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &e)
	return e.Error
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Contended slots: %d\n", len(s.pool.Targets))
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("List by Patient", &s.metrics.ListByPatient)
	printOperationReport("Available Slots", &s.metrics.Availability)

	// every slot can be won at most once while it stays booked
	booked := atomic.LoadInt64(&s.metrics.Booking.Success)
	cancelled := atomic.LoadInt64(&s.metrics.Cancel.Success)
	if live := booked - cancelled; live > int64(len(s.pool.Targets)) {
		fmt.Printf("WARNING: %d live bookings for %d slots, double booking detected\n", live, len(s.pool.Targets))
	}
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
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

func getUUIDs(key string) []uuid.UUID {
	var ids []uuid.UUID
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if id, err := uuid.Parse(strings.TrimSpace(part)); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}
