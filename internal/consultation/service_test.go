package consultation

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/mediconnect/internal/auth"
	"github.com/hackgods/mediconnect/internal/doctor"
	"github.com/hackgods/mediconnect/internal/events"
	"github.com/hackgods/mediconnect/internal/logger"
)

var (
	_ Repository      = (*PgRepository)(nil)
	_ DoctorDirectory = (*doctor.Service)(nil)
	_ UserLookup      = (auth.Repository)(nil)
)

// memStore backs the repository, doctor and user fakes with one set of maps.
type memStore struct {
	mu            sync.Mutex
	doctors       map[uuid.UUID]*doctor.Doctor
	users         map[uuid.UUID]auth.User
	consultations []Consultation
	clock         time.Time
	createErr     error
	invalidations int
}

func newMemStore() *memStore {
	return &memStore{
		doctors: make(map[uuid.UUID]*doctor.Doctor),
		users:   make(map[uuid.UUID]auth.User),
		clock:   time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (m *memStore) addDoctor(name string, fee float64) *doctor.Doctor {
	d := &doctor.Doctor{
		ID:        uuid.New(),
		Name:      name,
		Specialty: doctor.Cardiologist,
		Rating:    4.9,
		Image:     doctor.DefaultImage,
		Fee:       fee,
	}
	m.doctors[d.ID] = d
	return d
}

func (m *memStore) addUser(name string) auth.User {
	u := auth.User{
		ID:          uuid.New(),
		FullName:    name,
		Email:       strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@example.com",
		PhoneNumber: "555-0100",
	}
	m.users[u.ID] = u
	return u
}

func (m *memStore) counter(id uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.doctors[id].Consultations
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.consultations)
}

// doctor lookup

type memDoctors struct{ *memStore }

func (m memDoctors) Invalidate(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidations++
	return nil
}

func (m memDoctors) Get(_ context.Context, id uuid.UUID) (*doctor.Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, doctor.ErrDoctorNotFound
	}
	cp := *d
	return &cp, nil
}

// user lookup

type memUsers struct{ *memStore }

func (m memUsers) GetUserByID(_ context.Context, id uuid.UUID) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	return &u, nil
}

// repository

type memRepository struct{ *memStore }

func (m memRepository) CreateBooking(_ context.Context, c Consultation) (*Consultation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	d, ok := m.doctors[c.DoctorID]
	if !ok {
		return nil, doctor.ErrDoctorNotFound
	}
	m.clock = m.clock.Add(time.Second)
	c.CreatedAt = m.clock
	c.UpdatedAt = m.clock
	m.consultations = append(m.consultations, c)
	d.Consultations++
	return &c, nil
}

func (m memRepository) detail(c Consultation) Detail {
	d := m.doctors[c.DoctorID]
	return Detail{
		Consultation: c,
		Doctor: &DoctorSummary{
			ID:        d.ID,
			Name:      d.Name,
			Specialty: string(d.Specialty),
			Image:     d.Image,
			Rating:    d.Rating,
			Fee:       d.Fee,
		},
	}
}

func (m memRepository) list(keep func(Consultation) bool) []Detail {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Detail, 0)
	for _, c := range m.consultations {
		if keep(c) {
			out = append(out, m.detail(c))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].AppointmentDate.Equal(out[j].AppointmentDate) {
			return out[i].AppointmentDate.After(out[j].AppointmentDate)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (m memRepository) GetByID(_ context.Context, id uuid.UUID) (*Detail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.consultations {
		if c.ID == id {
			d := m.detail(c)
			return &d, nil
		}
	}
	return nil, ErrConsultationNotFound
}

func (m memRepository) ListByUser(_ context.Context, userID uuid.UUID) ([]Detail, error) {
	return m.list(func(c Consultation) bool { return c.UserID == userID }), nil
}

func (m memRepository) ListByDoctor(_ context.Context, doctorID uuid.UUID) ([]Detail, error) {
	return m.list(func(c Consultation) bool { return c.DoctorID == doctorID }), nil
}

func (m memRepository) ListAll(_ context.Context, f ListFilter) ([]Detail, error) {
	return m.list(func(c Consultation) bool {
		if f.Status != "" && c.Status != f.Status {
			return false
		}
		if f.From != nil && c.AppointmentDate.Before(*f.From) {
			return false
		}
		if f.To != nil && c.AppointmentDate.After(*f.To) {
			return false
		}
		return true
	}), nil
}

func (m memRepository) UpdateStatus(_ context.Context, id uuid.UUID, status Status) (*Consultation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.consultations {
		if m.consultations[i].ID == id {
			m.consultations[i].Status = status
			m.consultations[i].UpdatedAt = m.clock
			c := m.consultations[i]
			return &c, nil
		}
	}
	return nil, ErrConsultationNotFound
}

func (m memRepository) ReconcileDoctorCounters(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[uuid.UUID]int)
	for _, c := range m.consultations {
		counts[c.DoctorID]++
	}
	var fixed int64
	for id, n := range counts {
		if d := m.doctors[id]; d.Consultations < n {
			d.Consultations = n
			fixed++
		}
	}
	return fixed, nil
}

// memGuard follows the redis guard: reserving marks the key pending.
type memGuard struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemGuard() *memGuard {
	return &memGuard{keys: make(map[string]string)}
}

func (g *memGuard) Reserve(_ context.Context, key string) (string, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	v, ok := g.keys[key]
	if !ok {
		g.keys[key] = ""
		return "", true, nil
	}
	return v, false, nil
}

func (g *memGuard) Complete(_ context.Context, key, value string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.keys[key] = value
	return nil
}

func (g *memGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.keys[key] == "" {
		delete(g.keys, key)
	}
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type fixture struct {
	store *memStore
	guard *memGuard
	pub   *recordingPublisher
	svc   *Service
	doc   *doctor.Doctor
	user  auth.User
}

func newFixture() *fixture {
	store := newMemStore()
	f := &fixture{
		store: store,
		guard: newMemGuard(),
		pub:   &recordingPublisher{},
		doc:   store.addDoctor("Dr. Sarah Johnson", 50),
		user:  store.addUser("Jane Doe"),
	}
	f.svc = NewService(memRepository{store}, memDoctors{store}, memUsers{store}, f.guard, f.pub, logger.Discard())
	return f
}

func (f *fixture) request() BookRequest {
	return BookRequest{
		UserID:          f.user.ID.String(),
		DoctorID:        f.doc.ID.String(),
		PatientName:     "Jane Doe",
		PatientEmail:    "jane@example.com",
		PatientPhone:    "555-0100",
		AppointmentDate: "2025-03-10",
		AppointmentTime: "10:00 AM",
	}
}

func (f *fixture) book(t *testing.T, mutate func(*BookRequest)) Consultation {
	t.Helper()
	req := f.request()
	if mutate != nil {
		mutate(&req)
	}
	res, err := f.svc.Book(context.Background(), req)
	require.NoError(t, err)
	return res.Consultation
}

func TestBook_CreatesPendingConsultationWithFeeSnapshot(t *testing.T) {
	f := newFixture()
	f.store.doctors[f.doc.ID].Consultations = 2340

	res, err := f.svc.Book(context.Background(), f.request())
	require.NoError(t, err)

	c := res.Consultation
	assert.False(t, res.Replayed)
	assert.NotEqual(t, uuid.Nil, c.ID)
	assert.Equal(t, StatusPending, c.Status)
	assert.Equal(t, PaymentPending, c.PaymentStatus)
	assert.Equal(t, TypeVideo, c.ConsultationType)
	assert.Equal(t, 50.0, c.Fee)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), c.AppointmentDate)
	assert.Equal(t, 2341, f.store.counter(f.doc.ID))
	assert.Equal(t, []string{events.ConsultationBooked}, f.pub.types())
	assert.Equal(t, 1, f.store.invalidations)

	// a later fee change leaves the booked price alone
	f.store.doctors[f.doc.ID].Fee = 80
	got, err := f.svc.GetByID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, 50.0, got.Fee)
}

func TestBook_TrimsAndKeepsOptionalFields(t *testing.T) {
	f := newFixture()

	c := f.book(t, func(r *BookRequest) {
		r.PatientName = "  Jane Doe  "
		r.ConsultationType = " Chat Consultation "
		r.Symptoms = " headache "
		r.AppointmentDate = "2025-03-10T15:30:00Z"
	})

	assert.Equal(t, "Jane Doe", c.PatientName)
	assert.Equal(t, TypeChat, c.ConsultationType)
	assert.Equal(t, "headache", c.Symptoms)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), c.AppointmentDate)
}

func TestBook_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*BookRequest)
		want   error
	}{
		{"missing user id", func(r *BookRequest) { r.UserID = "" }, ErrMissingFields},
		{"blank patient name", func(r *BookRequest) { r.PatientName = "   " }, ErrMissingFields},
		{"missing time", func(r *BookRequest) { r.AppointmentTime = "" }, ErrMissingFields},
		{"malformed doctor id", func(r *BookRequest) { r.DoctorID = "abc" }, ErrInvalidID},
		{"malformed date", func(r *BookRequest) { r.AppointmentDate = "10/03/2025" }, ErrInvalidDate},
		{"unknown type", func(r *BookRequest) { r.ConsultationType = "House Call" }, ErrInvalidType},
		{"long symptoms", func(r *BookRequest) { r.Symptoms = strings.Repeat("a", MaxSymptomsLength+1) }, ErrSymptomsTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			req := f.request()
			tt.mutate(&req)

			_, err := f.svc.Book(context.Background(), req)
			assert.ErrorIs(t, err, tt.want)
			assert.Zero(t, f.store.count())
			assert.Zero(t, f.store.counter(f.doc.ID))
		})
	}
}

func TestBook_SymptomsAtLimitAccepted(t *testing.T) {
	f := newFixture()
	c := f.book(t, func(r *BookRequest) { r.Symptoms = strings.Repeat("é", MaxSymptomsLength) })
	assert.Len(t, []rune(c.Symptoms), MaxSymptomsLength)
}

func TestBook_UnknownReferences(t *testing.T) {
	t.Run("doctor", func(t *testing.T) {
		f := newFixture()
		req := f.request()
		req.DoctorID = uuid.NewString()

		_, err := f.svc.Book(context.Background(), req)
		assert.ErrorIs(t, err, doctor.ErrDoctorNotFound)
		assert.Zero(t, f.store.count())
	})

	t.Run("user", func(t *testing.T) {
		f := newFixture()
		req := f.request()
		req.UserID = uuid.NewString()

		_, err := f.svc.Book(context.Background(), req)
		assert.ErrorIs(t, err, auth.ErrUserNotFound)
		assert.Zero(t, f.store.count())
		assert.Zero(t, f.store.counter(f.doc.ID))
	})

	t.Run("doctor checked before user", func(t *testing.T) {
		f := newFixture()
		req := f.request()
		req.DoctorID = uuid.NewString()
		req.UserID = uuid.NewString()

		_, err := f.svc.Book(context.Background(), req)
		assert.ErrorIs(t, err, doctor.ErrDoctorNotFound)
	})
}

func TestBook_StoreFailureIsWrapped(t *testing.T) {
	f := newFixture()
	f.store.createErr = errors.New("connection reset")

	_, err := f.svc.Book(context.Background(), f.request())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Empty(t, f.pub.types())
}

func TestBook_PublishFailureDoesNotFailBooking(t *testing.T) {
	f := newFixture()
	f.pub.err = errors.New("broker down")

	_, err := f.svc.Book(context.Background(), f.request())
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.count())
}

func TestBook_IdempotencyKey(t *testing.T) {
	f := newFixture()
	req := f.request()
	req.IdempotencyKey = "abc-123"

	first, err := f.svc.Book(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := f.svc.Book(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Consultation.ID, second.Consultation.ID)

	assert.Equal(t, 1, f.store.count())
	assert.Equal(t, 1, f.store.counter(f.doc.ID))
	assert.Len(t, f.pub.types(), 1)
}

func TestBook_IdempotencyKeyInFlight(t *testing.T) {
	f := newFixture()
	req := f.request()
	req.IdempotencyKey = "abc-123"

	_, reserved, err := f.guard.Reserve(context.Background(), "idem:book:"+f.user.ID.String()+":abc-123")
	require.NoError(t, err)
	require.True(t, reserved)

	_, err = f.svc.Book(context.Background(), req)
	assert.ErrorIs(t, err, ErrBookingInProgress)
	assert.Zero(t, f.store.count())
}

func TestBook_FailedBookingReleasesKey(t *testing.T) {
	f := newFixture()
	f.store.createErr = errors.New("boom")
	req := f.request()
	req.IdempotencyKey = "retry-me"

	_, err := f.svc.Book(context.Background(), req)
	require.Error(t, err)

	f.store.createErr = nil
	res, err := f.svc.Book(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.Replayed)
}

func TestBook_ConcurrentBookingsEachIncrement(t *testing.T) {
	f := newFixture()

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Book(context.Background(), f.request())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, n, f.store.count())
	assert.Equal(t, n, f.store.counter(f.doc.ID))
}

func TestListForUser_OrderedByAppointmentDateDesc(t *testing.T) {
	f := newFixture()
	early := f.book(t, func(r *BookRequest) { r.AppointmentDate = "2025-03-01" })
	late := f.book(t, func(r *BookRequest) { r.AppointmentDate = "2025-04-01" })
	sameDayLater := f.book(t, func(r *BookRequest) { r.AppointmentDate = "2025-03-01" })

	other := f.store.addUser("John Roe")
	f.book(t, func(r *BookRequest) { r.UserID = other.ID.String() })

	list, err := f.svc.ListForUser(context.Background(), f.user.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)

	assert.Equal(t, late.ID, list[0].ID)
	assert.Equal(t, sameDayLater.ID, list[1].ID)
	assert.Equal(t, early.ID, list[2].ID)
	require.NotNil(t, list[0].Doctor)
	assert.Equal(t, "Dr. Sarah Johnson", list[0].Doctor.Name)
}

func TestListForUser_Empty(t *testing.T) {
	f := newFixture()

	list, err := f.svc.ListForUser(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestListForDoctor_AttachesUsers(t *testing.T) {
	f := newFixture()
	f.book(t, nil)
	f.book(t, nil)

	list, err := f.svc.ListForDoctor(context.Background(), f.doc.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, d := range list {
		require.NotNil(t, d.User)
		assert.Equal(t, "Jane Doe", d.User.FullName)
		assert.Equal(t, f.user.Email, d.User.Email)
	}
}

func TestGetByID(t *testing.T) {
	f := newFixture()
	c := f.book(t, nil)

	got, err := f.svc.GetByID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
	require.NotNil(t, got.Doctor)
	assert.Equal(t, 50.0, got.Doctor.Fee)
	require.NotNil(t, got.User)
	assert.Equal(t, f.user.ID, got.User.ID)

	_, err = f.svc.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrConsultationNotFound)
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture()
	c := f.book(t, nil)

	updated, err := f.svc.UpdateStatus(context.Background(), c.ID, StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, updated.Status)

	// transitions are not constrained
	updated, err = f.svc.UpdateStatus(context.Background(), c.ID, StatusPending)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, updated.Status)

	assert.Equal(t, []string{
		events.ConsultationBooked,
		events.ConsultationStatusChanged,
		events.ConsultationStatusChanged,
	}, f.pub.types())
}

func TestUpdateStatus_InvalidLeavesRecordUnchanged(t *testing.T) {
	f := newFixture()
	c := f.book(t, nil)

	_, err := f.svc.UpdateStatus(context.Background(), c.ID, Status("done"))
	assert.ErrorIs(t, err, ErrInvalidStatus)

	got, err := f.svc.GetByID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
}

func TestUpdateStatus_NotFound(t *testing.T) {
	f := newFixture()

	_, err := f.svc.UpdateStatus(context.Background(), uuid.New(), StatusCompleted)
	assert.ErrorIs(t, err, ErrConsultationNotFound)
}

func TestCancel_KeepsRecord(t *testing.T) {
	f := newFixture()
	c := f.book(t, nil)

	cancelled, err := f.svc.Cancel(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	got, err := f.svc.GetByID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Equal(t, 1, f.store.counter(f.doc.ID))

	_, err = f.svc.Cancel(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrConsultationNotFound)
}

func TestListAll_Filters(t *testing.T) {
	f := newFixture()
	march := f.book(t, func(r *BookRequest) { r.AppointmentDate = "2025-03-15" })
	april := f.book(t, func(r *BookRequest) { r.AppointmentDate = "2025-04-15" })
	may := f.book(t, func(r *BookRequest) { r.AppointmentDate = "2025-05-15" })
	_, err := f.svc.UpdateStatus(context.Background(), april.ID, StatusConfirmed)
	require.NoError(t, err)

	from := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		filter ListFilter
		want   []uuid.UUID
	}{
		{"no filter", ListFilter{}, []uuid.UUID{may.ID, april.ID, march.ID}},
		{"status", ListFilter{Status: StatusConfirmed}, []uuid.UUID{april.ID}},
		{"inclusive range", ListFilter{From: &from, To: &to}, []uuid.UUID{april.ID, march.ID}},
		{"status and range", ListFilter{Status: StatusPending, From: &from, To: &to}, []uuid.UUID{march.ID}},
		{"unknown status", ListFilter{Status: "archived"}, []uuid.UUID{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := f.svc.ListAll(context.Background(), tt.filter)
			require.NoError(t, err)

			got := make([]uuid.UUID, 0, len(list))
			for _, d := range list {
				got = append(got, d.ID)
				require.NotNil(t, d.User)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReconcileCounters(t *testing.T) {
	f := newFixture()
	f.book(t, nil)
	f.book(t, nil)
	f.store.doctors[f.doc.ID].Consultations = 0

	n, err := f.svc.ReconcileCounters(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Equal(t, 2, f.store.counter(f.doc.ID))

	// seeded history above the stored rows stays
	f.store.doctors[f.doc.ID].Consultations = 2340
	n, err = f.svc.ReconcileCounters(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 2340, f.store.counter(f.doc.ID))
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), d)

	d, err = ParseDate("2025-03-10T23:59:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), d)

	_, err = ParseDate("tomorrow")
	assert.ErrorIs(t, err, ErrInvalidDate)
}
