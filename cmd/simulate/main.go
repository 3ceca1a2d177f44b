package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/hackgods/mediconnect/internal/api"
	"github.com/hackgods/mediconnect/internal/consultation"
	"github.com/hackgods/mediconnect/internal/logger"
)

type SimConfig struct {
	APIBaseURL  string        `env:"SIM_API_BASE_URL" env-default:"http://localhost:5000"`
	Duration    time.Duration `env:"SIM_DURATION" env-default:"30s"`
	Workers     int           `env:"SIM_WORKERS" env-default:"10"`
	Users       int           `env:"SIM_USERS" env-default:"20"`
	BookRatio   float64       `env:"SIM_BOOK_RATIO" env-default:"0.4"`
	UpdateRatio float64       `env:"SIM_UPDATE_RATIO" env-default:"0.15"`
	CancelRatio float64       `env:"SIM_CANCEL_RATIO" env-default:"0.05"`
	ReadRatio   float64       `env:"SIM_READ_RATIO" env-default:"0.4"`
	ReplayRatio float64       `env:"SIM_REPLAY_RATIO" env-default:"0.1"` // share of bookings resent with the same key
	LogLevel    string        `env:"LOG_LEVEL" env-default:"info"`
}

var symptoms = []string{
	"Persistent headache for three days",
	"Dry cough and mild fever",
	"Skin rash on both forearms",
	"Lower back pain after lifting",
	"Trouble sleeping and low mood",
	"Child has an ear infection",
	"",
}

type simUser struct {
	ID    uuid.UUID
	Name  string
	Email string
	Phone string
	Token string
}

type DataPool struct {
	Users   []simUser
	Doctors []uuid.UUID

	mu            sync.RWMutex
	consultations []uuid.UUID
}

func (dp *DataPool) AddConsultation(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.consultations = append(dp.consultations, id)
}

func (dp *DataPool) RandomConsultation(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.consultations) == 0 {
		return uuid.Nil, false
	}
	return dp.consultations[rng.Intn(len(dp.consultations))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Rejected  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

// Record classifies by status: 2xx success, 4xx rejected, anything else error.
func (om *OperationMetrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case status >= 200 && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case status >= 400 && status < 500:
		atomic.AddInt64(&om.Rejected, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = percentile(latencies, 50)
	p95 = percentile(latencies, 95)
	return avg, min, max, p50, p95
}

func percentile(sorted []time.Duration, p int) time.Duration {
	idx := len(sorted) * p / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

type Metrics struct {
	Book           OperationMetrics
	Replay         OperationMetrics
	UpdateStatus   OperationMetrics
	Cancel         OperationMetrics
	ListDoctors    OperationMetrics
	ListByUser     OperationMetrics
	ReadByID       OperationMetrics
	ReplayMismatch int64
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	log     *slog.Logger
}

func main() {
	_ = godotenv.Load()

	var cfg SimConfig
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		slog.Error("invalid simulator config", logger.Err(err))
		os.Exit(1)
	}
	log := logger.New("dev", cfg.LogLevel)

	if err := validateConfig(&cfg); err != nil {
		log.Error("invalid simulator config", logger.Err(err))
		os.Exit(1)
	}

	log.Info("simulator starting",
		slog.String("api", cfg.APIBaseURL),
		slog.Duration("duration", cfg.Duration),
		slog.Int("workers", cfg.Workers),
	)

	sim := &Simulator{
		config: cfg,
		pool:   &DataPool{},
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}

	setupCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := sim.Prepare(setupCtx); err != nil {
		log.Error("prepare simulation", logger.Err(err))
		os.Exit(1)
	}
	log.Info("data pool ready",
		slog.Int("users", len(sim.pool.Users)),
		slog.Int("doctors", len(sim.pool.Doctors)),
	)

	sim.Run()
	sim.PrintReport()
}

func validateConfig(cfg *SimConfig) error {
	if cfg.Workers <= 0 {
		return errors.New("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return errors.New("SIM_DURATION must be > 0")
	}
	if cfg.Users <= 0 {
		return errors.New("SIM_USERS must be > 0")
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")

	total := cfg.BookRatio + cfg.UpdateRatio + cfg.CancelRatio + cfg.ReadRatio
	if total <= 0 {
		return errors.New("operation ratios must sum to > 0")
	}
	cfg.BookRatio /= total
	cfg.UpdateRatio /= total
	cfg.CancelRatio /= total
	cfg.ReadRatio /= total
	return nil
}

// Prepare registers and logs in the user pool and loads the doctor directory.
// Auth endpoints are rate limited, so 429s are retried with a short pause.
func (s *Simulator) Prepare(ctx context.Context) error {
	for i := 0; i < s.config.Users; i++ {
		u := simUser{
			Name:  gofakeit.Name(),
			Email: fmt.Sprintf("sim-%s@%s", uuid.NewString()[:8], gofakeit.DomainName()),
			Phone: gofakeit.Phone(),
		}
		password := uuid.NewString()

		var signup api.SignupResponse
		if err := s.authCall(ctx, "/api/auth/signup", api.SignupRequest{
			FullName:    u.Name,
			PhoneNumber: u.Phone,
			Email:       u.Email,
			Password:    password,
		}, &signup); err != nil {
			return fmt.Errorf("signup %s: %w", u.Email, err)
		}

		var login api.LoginResponse
		if err := s.authCall(ctx, "/api/auth/login", api.LoginRequest{
			Email:    u.Email,
			Password: password,
		}, &login); err != nil {
			return fmt.Errorf("login %s: %w", u.Email, err)
		}

		u.ID = login.UserID
		u.Token = login.Token
		s.pool.Users = append(s.pool.Users, u)
	}

	var doctors struct {
		Data []api.DoctorResponse `json:"data"`
	}
	status, err := s.do(ctx, http.MethodGet, "/api/doctors", "", nil, nil, &doctors)
	if err != nil {
		return fmt.Errorf("list doctors: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("list doctors: status %d", status)
	}
	for _, d := range doctors.Data {
		if d.IsAvailable {
			s.pool.Doctors = append(s.pool.Doctors, d.ID)
		}
	}
	if len(s.pool.Doctors) == 0 {
		return errors.New("no available doctors, run the seeder first")
	}
	return nil
}

func (s *Simulator) authCall(ctx context.Context, path string, body, dst any) error {
	for attempt := 0; attempt < 20; attempt++ {
		status, err := s.do(ctx, http.MethodPost, path, "", nil, body, dst)
		if err != nil {
			return err
		}
		switch {
		case status == http.StatusTooManyRequests:
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(250 * time.Millisecond):
			}
		case status >= 200 && status < 300:
			return nil
		default:
			return fmt.Errorf("status %d", status)
		}
	}
	return errors.New("rate limited")
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.Info("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		r := rng.Float64()
		switch {
		case r < s.config.BookRatio:
			s.doBook(ctx, rng)
		case r < s.config.BookRatio+s.config.UpdateRatio:
			s.doUpdateStatus(ctx, rng)
		case r < s.config.BookRatio+s.config.UpdateRatio+s.config.CancelRatio:
			s.doCancel(ctx, rng)
		default:
			switch rng.Intn(3) {
			case 0:
				s.doListDoctors(ctx)
			case 1:
				s.doListByUser(ctx, rng)
			case 2:
				s.doReadByID(ctx, rng)
			}
		}
	}
}

func (s *Simulator) randomUser(rng *rand.Rand) simUser {
	return s.pool.Users[rng.Intn(len(s.pool.Users))]
}

func (s *Simulator) doBook(ctx context.Context, rng *rand.Rand) {
	user := s.randomUser(rng)
	doctorID := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
	types := []consultation.Type{consultation.TypeVideo, consultation.TypeAudio, consultation.TypeChat}

	req := api.BookConsultationRequest{
		UserID:           user.ID.String(),
		DoctorID:         doctorID.String(),
		PatientName:      user.Name,
		PatientEmail:     user.Email,
		PatientPhone:     user.Phone,
		AppointmentDate:  time.Now().AddDate(0, 0, rng.Intn(30)+1).Format(consultation.DateLayout),
		AppointmentTime:  fmt.Sprintf("%02d:00 AM", rng.Intn(3)+9),
		ConsultationType: string(types[rng.Intn(len(types))]),
		Symptoms:         gofakeit.RandomString(symptoms),
	}
	key := uuid.NewString()
	headers := map[string]string{api.IdempotencyKeyHeader: key}

	var created struct {
		Data api.ConsultationResponse `json:"data"`
	}
	start := time.Now()
	status, _ := s.do(ctx, http.MethodPost, "/api/consultations/book", user.Token, headers, req, &created)
	s.metrics.Book.Record(time.Since(start), status)

	if status != http.StatusCreated {
		return
	}
	s.pool.AddConsultation(created.Data.ID)

	if rng.Float64() >= s.config.ReplayRatio {
		return
	}

	var replayed struct {
		Data api.ConsultationResponse `json:"data"`
	}
	start = time.Now()
	status, _ = s.do(ctx, http.MethodPost, "/api/consultations/book", user.Token, headers, req, &replayed)
	s.metrics.Replay.Record(time.Since(start), status)

	if status == http.StatusOK && replayed.Data.ID != created.Data.ID {
		atomic.AddInt64(&s.metrics.ReplayMismatch, 1)
	}
}

func (s *Simulator) doUpdateStatus(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.RandomConsultation(rng)
	if !ok {
		return
	}
	statuses := []consultation.Status{
		consultation.StatusConfirmed,
		consultation.StatusCompleted,
	}

	start := time.Now()
	status, _ := s.do(ctx, http.MethodPatch, "/api/consultations/"+id.String()+"/status",
		s.randomUser(rng).Token, nil,
		api.UpdateStatusRequest{Status: string(statuses[rng.Intn(len(statuses))])}, nil)
	s.metrics.UpdateStatus.Record(time.Since(start), status)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.RandomConsultation(rng)
	if !ok {
		return
	}

	start := time.Now()
	status, _ := s.do(ctx, http.MethodDelete, "/api/consultations/"+id.String(), s.randomUser(rng).Token, nil, nil, nil)
	s.metrics.Cancel.Record(time.Since(start), status)
}

func (s *Simulator) doListDoctors(ctx context.Context) {
	start := time.Now()
	status, _ := s.do(ctx, http.MethodGet, "/api/doctors", "", nil, nil, nil)
	s.metrics.ListDoctors.Record(time.Since(start), status)
}

func (s *Simulator) doListByUser(ctx context.Context, rng *rand.Rand) {
	user := s.randomUser(rng)

	start := time.Now()
	status, _ := s.do(ctx, http.MethodGet, "/api/consultations/user/"+user.ID.String(), user.Token, nil, nil, nil)
	s.metrics.ListByUser.Record(time.Since(start), status)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.RandomConsultation(rng)
	if !ok {
		return
	}

	start := time.Now()
	status, _ := s.do(ctx, http.MethodGet, "/api/consultations/"+id.String(), s.randomUser(rng).Token, nil, nil, nil)
	s.metrics.ReadByID.Record(time.Since(start), status)
}

// do sends one request and decodes a JSON body into dst when given. A
// transport failure is reported as status 0.
func (s *Simulator) do(ctx context.Context, method, path, token string, headers map[string]string, body, dst any) (int, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if dst == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return resp.StatusCode, err
	}
	return resp.StatusCode, nil
}

func (s *Simulator) PrintReport() {
	line := strings.Repeat("=", 80)
	fmt.Println("\n" + line)
	fmt.Println("SIMULATION REPORT")
	fmt.Println(line)
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Users: %d  Doctors: %d\n", len(s.pool.Users), len(s.pool.Doctors))
	fmt.Println()

	printOperationReport("Book", &s.metrics.Book)
	printOperationReport("Book replay", &s.metrics.Replay)
	printOperationReport("Update status", &s.metrics.UpdateStatus)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("List doctors", &s.metrics.ListDoctors)
	printOperationReport("List by user", &s.metrics.ListByUser)
	printOperationReport("Read by ID", &s.metrics.ReadByID)

	if n := atomic.LoadInt64(&s.metrics.ReplayMismatch); n > 0 {
		fmt.Printf("WARNING: %d replayed bookings returned a different consultation\n", n)
	}
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	rejected := atomic.LoadInt64(&om.Rejected)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if rejected > 0 {
		fmt.Printf("  Rejected: %d (%.1f%%)\n", rejected, float64(rejected)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}
