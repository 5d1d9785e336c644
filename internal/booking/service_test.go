package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/careslot/booking/internal/config"
	"github.com/careslot/booking/internal/schedule"
)

// Fakes

type fakeRepo struct {
	mu           sync.Mutex
	appointments []Appointment
	pending      map[string]PendingBooking
	events       []EventLog
	capacity     map[uuid.UUID]int // per-doctor slot capacity, default 1
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		pending:  make(map[string]PendingBooking),
		capacity: make(map[uuid.UUID]int),
	}
}

func (f *fakeRepo) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.appointments {
		if f.appointments[i].ID == id {
			a := f.appointments[i]
			return &a, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (f *fakeRepo) ListOccupyingByDoctor(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Appointment
	for _, a := range f.appointments {
		if a.DoctorID != nil && *a.DoctorID == doctorID && a.Date.Equal(date) && a.Status.Occupying() {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListOccupyingByClinic(ctx context.Context, clinicID uuid.UUID, date time.Time) ([]Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Appointment
	for _, a := range f.appointments {
		if a.ClinicID == clinicID && a.Date.Equal(date) && a.Status.Occupying() {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeRepo) FindByPaymentRef(ctx context.Context, paymentRef string) (*Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.appointments {
		if f.appointments[i].PaymentRef != nil && *f.appointments[i].PaymentRef == paymentRef {
			a := f.appointments[i]
			return &a, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (f *fakeRepo) FindDuplicate(ctx context.Context, patientID, clinicID uuid.UUID, date time.Time, start schedule.TimeOfDay) (*Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.appointments {
		a := f.appointments[i]
		if a.PatientID == patientID && a.ClinicID == clinicID && a.Date.Equal(date) && a.Start == start && a.Status != StatusCancelled {
			return &a, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (f *fakeRepo) SlotCapacity(ctx context.Context, doctorID uuid.UUID, date time.Time, start schedule.TimeOfDay) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.capacity[doctorID]; ok {
		return c, nil
	}
	return 1, nil
}

func (f *fakeRepo) InsertConfirmed(ctx context.Context, appt Appointment, capacity int) (*Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var scope []Appointment
	for _, a := range f.appointments {
		sameDoctor := a.DoctorID != nil && appt.DoctorID != nil && *a.DoctorID == *appt.DoctorID
		sameClinicNoDoctor := a.DoctorID == nil && appt.DoctorID == nil && a.ClinicID == appt.ClinicID
		if (sameDoctor || sameClinicNoDoctor) && a.Date.Equal(appt.Date) {
			scope = append(scope, a)
		}
	}
	if FindConflict(appt.Start, appt.DurationMinutes, capacity, scope) != nil {
		return nil, ErrSlotTaken
	}
	appt.CreatedAt = time.Now()
	appt.UpdatedAt = appt.CreatedAt
	f.appointments = append(f.appointments, appt)
	a := appt
	return &a, nil
}

func (f *fakeRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.appointments {
		if f.appointments[i].ID == id && f.appointments[i].Status == from {
			f.appointments[i].Status = to
			a := f.appointments[i]
			return &a, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (f *fakeRepo) CancelAppointment(ctx context.Context, id uuid.UUID, at time.Time) (*Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.appointments {
		if f.appointments[i].ID == id && f.appointments[i].Status.Occupying() {
			f.appointments[i].Status = StatusCancelled
			f.appointments[i].CancelledAt = &at
			a := f.appointments[i]
			return &a, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (f *fakeRepo) InsertPending(ctx context.Context, pb PendingBooking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending[pb.SessionID] = pb
	return nil
}

func (f *fakeRepo) GetPending(ctx context.Context, sessionID string) (*PendingBooking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pb, ok := f.pending[sessionID]
	if !ok {
		return nil, ErrPendingNotFound
	}
	return &pb, nil
}

func (f *fakeRepo) DeletePending(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pending, sessionID)
	return nil
}

func (f *fakeRepo) FindExpiredPending(ctx context.Context, now time.Time) ([]PendingBooking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []PendingBooking
	for _, pb := range f.pending {
		if pb.ExpiresAt.Before(now) {
			out = append(out, pb)
		}
	}
	return out, nil
}

func (f *fakeRepo) InsertEvent(ctx context.Context, ev EventLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

type fakeGateway struct {
	mu       sync.Mutex
	statuses []SessionStatus // consumed in order; last one repeats
	calls    int
	sessions int
}

func (g *fakeGateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions++
	return &CheckoutSession{
		SessionID:   fmt.Sprintf("cs_test%08d", g.sessions),
		CheckoutURL: "https://checkout.example/session",
	}, nil
}

func (g *fakeGateway) VerifySession(ctx context.Context, sessionID string) (SessionStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if len(g.statuses) == 0 {
		return SessionSucceeded, nil
	}
	idx := g.calls - 1
	if idx >= len(g.statuses) {
		idx = len(g.statuses) - 1
	}
	return g.statuses[idx], nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent map[string]int // appointmentID+title -> count
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{sent: make(map[string]int)}
}

func (n *fakeNotifier) Notify(ctx context.Context, userID uuid.UUID, title, message string, appointmentID uuid.UUID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	key := appointmentID.String() + "|" + title
	if n.sent[key] > 0 {
		return nil // dedupe, like the notifications unique index
	}
	n.sent[key]++
	return nil
}

func (n *fakeNotifier) total() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	sum := 0
	for _, c := range n.sent {
		sum += c
	}
	return sum
}

type fakeLocker struct {
	mu sync.Mutex
}

func (l *fakeLocker) WithBookingLock(ctx context.Context, doctorID uuid.UUID, date time.Time, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(ctx)
}

// Harness

type harness struct {
	repo     *fakeRepo
	gateway  *fakeGateway
	notifier *fakeNotifier
	svc      *Service
	now      time.Time
	sleeps   []time.Duration
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		repo:     newFakeRepo(),
		gateway:  &fakeGateway{},
		notifier: newFakeNotifier(),
		now:      time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC),
	}

	cfg := config.Config{
		PendingTTL:     30 * time.Minute,
		VerifyAttempts: 3,
		VerifyDelay:    2 * time.Second,
		CancelLeadTime: 24 * time.Hour,
		LockTTL:        5 * time.Second,
	}

	h.svc = NewService(h.repo, &fakeLocker{}, h.gateway, h.notifier, cfg)
	h.svc.now = func() time.Time { return h.now }
	h.svc.sleep = func(d time.Duration) { h.sleeps = append(h.sleeps, d) }

	return h
}

func (h *harness) intent() CheckoutIntent {
	return CheckoutIntent{
		PatientID:       uuid.New(),
		ClinicID:        uuid.New(),
		DoctorID:        ptr(uuid.New()),
		Date:            time.Date(2026, 4, 3, 0, 0, 0, 0, time.UTC),
		Start:           tod(10, 0),
		DurationMinutes: 30,
		Type:            "consultation",
		TotalAmount:     500,
	}
}

func ptr[T any](v T) *T { return &v }

// Tests

func TestStartCheckoutRejectsConflict(t *testing.T) {
	h := newHarness(t)
	intent := h.intent()

	h.repo.appointments = append(h.repo.appointments, Appointment{
		ID:              uuid.New(),
		PatientID:       uuid.New(),
		ClinicID:        intent.ClinicID,
		DoctorID:        intent.DoctorID,
		Date:            intent.Date,
		Start:           tod(10, 15),
		DurationMinutes: 30,
		Status:          StatusConfirmed,
	})

	_, err := h.svc.StartCheckout(context.Background(), intent)
	if !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
	if h.gateway.sessions != 0 {
		t.Error("gateway session should not be created on conflict")
	}
}

func TestStartCheckoutRejectsInvalidIntent(t *testing.T) {
	h := newHarness(t)

	bad := h.intent()
	bad.DurationMinutes = 0
	if _, err := h.svc.StartCheckout(context.Background(), bad); !errors.Is(err, ErrInvalidBooking) {
		t.Fatalf("expected ErrInvalidBooking for zero duration, got %v", err)
	}

	past := h.intent()
	past.Date = h.now.AddDate(0, 0, -1)
	if _, err := h.svc.StartCheckout(context.Background(), past); !errors.Is(err, ErrInvalidBooking) {
		t.Fatalf("expected ErrInvalidBooking for past date, got %v", err)
	}
}

func TestStartCheckoutPersistsPending(t *testing.T) {
	h := newHarness(t)
	intent := h.intent()

	session, err := h.svc.StartCheckout(context.Background(), intent)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.SessionID == "" || session.CheckoutURL == "" {
		t.Fatalf("incomplete session: %+v", session)
	}

	pb, err := h.repo.GetPending(context.Background(), session.SessionID)
	if err != nil {
		t.Fatalf("pending booking not stored: %v", err)
	}
	if pb.Start != intent.Start || !pb.Date.Equal(intent.Date) {
		t.Errorf("pending booking mismatch: %+v", pb)
	}
	if want := h.now.Add(30 * time.Minute); !pb.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", pb.ExpiresAt, want)
	}

	if len(h.repo.appointments) != 0 {
		t.Error("no appointment row may exist before payment is verified")
	}
}

func TestFinalizeRejectsMalformedSession(t *testing.T) {
	h := newHarness(t)

	for _, bad := range []string{"", "null", "undefined", "cs_", "cs_short", "SESSION_ID", "cs_has spaces"} {
		if _, err := h.svc.FinalizeBooking(context.Background(), bad); !errors.Is(err, ErrInvalidSession) {
			t.Errorf("FinalizeBooking(%q): expected ErrInvalidSession, got %v", bad, err)
		}
	}
	if h.gateway.calls != 0 {
		t.Error("malformed sessions must be rejected before any gateway call")
	}
}

func TestFinalizeIdempotent(t *testing.T) {
	h := newHarness(t)
	intent := h.intent()

	session, err := h.svc.StartCheckout(context.Background(), intent)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	first, err := h.svc.FinalizeBooking(context.Background(), session.SessionID)
	if err != nil {
		t.Fatalf("first finalize: %v", err)
	}
	if first.Status != StatusConfirmed || first.PaymentStatus != PaymentPaid {
		t.Fatalf("finalized appointment in wrong state: %+v", first)
	}

	second, err := h.svc.FinalizeBooking(context.Background(), session.SessionID)
	if err != nil {
		t.Fatalf("second finalize: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("replay produced a different appointment: %s vs %s", second.ID, first.ID)
	}

	if len(h.repo.appointments) != 1 {
		t.Fatalf("%d appointment rows after replay, want exactly 1", len(h.repo.appointments))
	}
	if h.notifier.total() != 1 {
		t.Fatalf("%d notifications after replay, want exactly 1", h.notifier.total())
	}
}

func TestFinalizeRetriesPendingVerification(t *testing.T) {
	h := newHarness(t)
	h.gateway.statuses = []SessionStatus{SessionPending, SessionPending, SessionSucceeded}

	session, err := h.svc.StartCheckout(context.Background(), h.intent())
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	appt, err := h.svc.FinalizeBooking(context.Background(), session.SessionID)
	if err != nil {
		t.Fatalf("finalize after eventual success: %v", err)
	}
	if appt.Status != StatusConfirmed {
		t.Errorf("status = %s, want confirmed", appt.Status)
	}
	if len(h.sleeps) != 2 {
		t.Errorf("%d inter-attempt delays, want 2", len(h.sleeps))
	}
}

func TestFinalizeVerificationExhaustedKeepsPending(t *testing.T) {
	h := newHarness(t)
	h.gateway.statuses = []SessionStatus{SessionPending}

	session, err := h.svc.StartCheckout(context.Background(), h.intent())
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	_, err = h.svc.FinalizeBooking(context.Background(), session.SessionID)
	if !errors.Is(err, ErrPaymentVerification) {
		t.Fatalf("expected ErrPaymentVerification, got %v", err)
	}
	if h.gateway.calls != 3 {
		t.Errorf("verification attempts = %d, want 3", h.gateway.calls)
	}

	// The intent survives for reconciliation.
	if _, err := h.repo.GetPending(context.Background(), session.SessionID); err != nil {
		t.Error("pending booking must be retained after verification failure")
	}
	if len(h.repo.appointments) != 0 {
		t.Error("no appointment may be created without a verified payment")
	}
}

func TestFinalizeDeclinedPayment(t *testing.T) {
	h := newHarness(t)
	h.gateway.statuses = []SessionStatus{SessionFailed}

	session, err := h.svc.StartCheckout(context.Background(), h.intent())
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	_, err = h.svc.FinalizeBooking(context.Background(), session.SessionID)
	if !errors.Is(err, ErrPaymentVerification) {
		t.Fatalf("expected ErrPaymentVerification, got %v", err)
	}
	if h.gateway.calls != 1 {
		t.Errorf("a definitive failure should not be retried, got %d calls", h.gateway.calls)
	}
}

func TestFinalizeDuplicateTupleSuppressed(t *testing.T) {
	h := newHarness(t)
	intent := h.intent()

	session, err := h.svc.StartCheckout(context.Background(), intent)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	// A parallel flow already booked the same patient/clinic/slot tuple,
	// before this session's payment reference was ever persisted.
	prior := Appointment{
		ID:              uuid.New(),
		PatientID:       intent.PatientID,
		ClinicID:        intent.ClinicID,
		DoctorID:        intent.DoctorID,
		Date:            intent.Date,
		Start:           intent.Start,
		DurationMinutes: intent.DurationMinutes,
		Status:          StatusConfirmed,
		PaymentStatus:   PaymentPaid,
	}
	h.repo.appointments = append(h.repo.appointments, prior)

	got, err := h.svc.FinalizeBooking(context.Background(), session.SessionID)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if got.ID != prior.ID {
		t.Errorf("expected the prior appointment back, got %s", got.ID)
	}
	if len(h.repo.appointments) != 1 {
		t.Fatalf("%d appointment rows, want 1", len(h.repo.appointments))
	}
	if _, err := h.repo.GetPending(context.Background(), session.SessionID); !errors.Is(err, ErrPendingNotFound) {
		t.Error("pending booking should be removed once the duplicate is detected")
	}
}

func TestFinalizeLosesSlotRace(t *testing.T) {
	h := newHarness(t)
	intent := h.intent()

	session, err := h.svc.StartCheckout(context.Background(), intent)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	// A different patient grabbed the slot between checkout and finalize.
	h.repo.appointments = append(h.repo.appointments, Appointment{
		ID:              uuid.New(),
		PatientID:       uuid.New(),
		ClinicID:        intent.ClinicID,
		DoctorID:        intent.DoctorID,
		Date:            intent.Date,
		Start:           intent.Start,
		DurationMinutes: intent.DurationMinutes,
		Status:          StatusConfirmed,
	})

	_, err = h.svc.FinalizeBooking(context.Background(), session.SessionID)
	if !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
	if _, err := h.repo.GetPending(context.Background(), session.SessionID); err != nil {
		t.Error("pending booking must be retained when the slot is lost, for reconciliation")
	}
}

func TestConcurrentFinalizeSingleWinner(t *testing.T) {
	h := newHarness(t)
	base := h.intent()

	// Two patients, same doctor, same slot, separate sessions.
	var sessions []string
	for i := 0; i < 2; i++ {
		intent := base
		intent.PatientID = uuid.New()
		session, err := h.svc.StartCheckout(context.Background(), intent)
		if err != nil {
			t.Fatalf("checkout %d: %v", i, err)
		}
		sessions = append(sessions, session.SessionID)
	}

	var wg sync.WaitGroup
	results := make([]error, len(sessions))
	for i, sid := range sessions {
		wg.Add(1)
		go func(i int, sid string) {
			defer wg.Done()
			_, results[i] = h.svc.FinalizeBooking(context.Background(), sid)
		}(i, sid)
	}
	wg.Wait()

	winners, losers := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrSlotTaken):
			losers++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if winners != 1 || losers != 1 {
		t.Fatalf("winners=%d losers=%d, want exactly one of each", winners, losers)
	}
	if len(h.repo.appointments) != 1 {
		t.Fatalf("%d appointment rows, want 1", len(h.repo.appointments))
	}
}

// A slot the generator advertises as open must also be bookable. With a
// rule allowing two concurrent appointments and one already confirmed,
// the generator shows 10:00 available and the commit path admits a second
// patient at the same start. The third patient finds the slot full.
func TestSharedSlotCapacityMatchesGenerator(t *testing.T) {
	h := newHarness(t)
	intent := h.intent()
	doctorID := *intent.DoctorID
	h.repo.capacity[doctorID] = 2

	h.repo.appointments = append(h.repo.appointments, Appointment{
		ID:              uuid.New(),
		PatientID:       uuid.New(),
		ClinicID:        intent.ClinicID,
		DoctorID:        intent.DoctorID,
		Date:            intent.Date,
		Start:           intent.Start,
		DurationMinutes: 30,
		Status:          StatusConfirmed,
	})

	day := schedule.DayContext{
		Rules: []schedule.WeeklyRule{{
			DoctorID:      doctorID,
			DayOfWeek:     int(intent.Date.Weekday()),
			Start:         tod(10, 0),
			End:           tod(11, 0),
			IsAvailable:   true,
			MaxConcurrent: 2,
		}},
		Booked:   map[schedule.TimeOfDay]int{intent.Start: 1},
		Settings: schedule.Settings{ConsultationMinutes: 30},
	}
	slots := schedule.BuildSlots(intent.Date, h.now, day)
	if len(slots) == 0 || slots[0].Start != intent.Start || !slots[0].Available {
		t.Fatalf("generator should offer %v with capacity to spare, got %+v", intent.Start, slots)
	}

	session, err := h.svc.StartCheckout(context.Background(), intent)
	if err != nil {
		t.Fatalf("second booking at shared start should pass availability: %v", err)
	}
	if _, err := h.svc.FinalizeBooking(context.Background(), session.SessionID); err != nil {
		t.Fatalf("second booking at shared start should finalize: %v", err)
	}
	if len(h.repo.appointments) != 2 {
		t.Fatalf("%d appointment rows, want 2", len(h.repo.appointments))
	}

	third := h.intent()
	third.ClinicID = intent.ClinicID
	third.DoctorID = intent.DoctorID
	if _, err := h.svc.StartCheckout(context.Background(), third); !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("slot at capacity should reject, got %v", err)
	}
}

func TestConcurrentClinicFinalizeSingleWinner(t *testing.T) {
	h := newHarness(t)
	base := h.intent()
	base.DoctorID = nil // general clinic visit, no doctor assigned

	var sessions []string
	for i := 0; i < 2; i++ {
		intent := base
		intent.PatientID = uuid.New()
		session, err := h.svc.StartCheckout(context.Background(), intent)
		if err != nil {
			t.Fatalf("checkout %d: %v", i, err)
		}
		sessions = append(sessions, session.SessionID)
	}

	var wg sync.WaitGroup
	results := make([]error, len(sessions))
	for i, sid := range sessions {
		wg.Add(1)
		go func(i int, sid string) {
			defer wg.Done()
			_, results[i] = h.svc.FinalizeBooking(context.Background(), sid)
		}(i, sid)
	}
	wg.Wait()

	winners, losers := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrSlotTaken):
			losers++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if winners != 1 || losers != 1 {
		t.Fatalf("winners=%d losers=%d, want exactly one of each", winners, losers)
	}
	if len(h.repo.appointments) != 1 {
		t.Fatalf("%d appointment rows, want 1", len(h.repo.appointments))
	}
}

func TestCancelInsideWindowRejected(t *testing.T) {
	h := newHarness(t)

	appt := Appointment{
		ID:              uuid.New(),
		PatientID:       uuid.New(),
		ClinicID:        uuid.New(),
		DoctorID:        ptr(uuid.New()),
		Date:            schedule.DateOnly(h.now),
		Start:           tod(18, 0), // 10 hours from the fixed 08:00 now
		DurationMinutes: 30,
		Status:          StatusConfirmed,
	}
	h.repo.appointments = append(h.repo.appointments, appt)

	_, err := h.svc.CancelAppointment(context.Background(), appt.ID)
	if !errors.Is(err, ErrCancellationWindow) {
		t.Fatalf("expected ErrCancellationWindow, got %v", err)
	}
}

func TestCancelOutsideWindowSucceeds(t *testing.T) {
	h := newHarness(t)

	appt := Appointment{
		ID:              uuid.New(),
		PatientID:       uuid.New(),
		ClinicID:        uuid.New(),
		DoctorID:        ptr(uuid.New()),
		Date:            schedule.DateOnly(h.now.AddDate(0, 0, 2)),
		Start:           tod(10, 0),
		DurationMinutes: 30,
		Status:          StatusConfirmed,
	}
	h.repo.appointments = append(h.repo.appointments, appt)

	cancelled, err := h.svc.CancelAppointment(context.Background(), appt.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Errorf("status = %s, want cancelled", cancelled.Status)
	}
	if cancelled.CancelledAt == nil || !cancelled.CancelledAt.Equal(h.now) {
		t.Errorf("CancelledAt = %v, want %v", cancelled.CancelledAt, h.now)
	}
}

func TestCancelAlreadyCancelledRejected(t *testing.T) {
	h := newHarness(t)

	appt := Appointment{
		ID:     uuid.New(),
		Date:   schedule.DateOnly(h.now.AddDate(0, 0, 2)),
		Start:  tod(10, 0),
		Status: StatusCancelled,
	}
	h.repo.appointments = append(h.repo.appointments, appt)

	if _, err := h.svc.CancelAppointment(context.Background(), appt.ID); !errors.Is(err, ErrInvalidStatusTransition) {
		t.Fatalf("expected ErrInvalidStatusTransition, got %v", err)
	}
}

func TestTransitionRules(t *testing.T) {
	h := newHarness(t)

	appt := Appointment{
		ID:     uuid.New(),
		Status: StatusConfirmed,
	}
	h.repo.appointments = append(h.repo.appointments, appt)

	updated, err := h.svc.Transition(context.Background(), appt.ID, StatusInProgress)
	if err != nil {
		t.Fatalf("confirmed -> in_progress: %v", err)
	}
	if updated.Status != StatusInProgress {
		t.Errorf("status = %s, want in_progress", updated.Status)
	}

	if _, err := h.svc.Transition(context.Background(), appt.ID, StatusNoShow); !errors.Is(err, ErrInvalidStatusTransition) {
		t.Fatalf("in_progress -> no_show should be rejected, got %v", err)
	}

	if _, err := h.svc.Transition(context.Background(), appt.ID, StatusCompleted); err != nil {
		t.Fatalf("in_progress -> completed: %v", err)
	}
}

func TestExpirePendingBookings(t *testing.T) {
	h := newHarness(t)

	stale := PendingBooking{
		SessionID: "cs_staleintent01",
		PatientID: uuid.New(),
		ExpiresAt: h.now.Add(-time.Minute),
	}
	fresh := PendingBooking{
		SessionID: "cs_freshintent01",
		PatientID: uuid.New(),
		ExpiresAt: h.now.Add(time.Hour),
	}
	h.repo.pending[stale.SessionID] = stale
	h.repo.pending[fresh.SessionID] = fresh

	if err := h.svc.ExpirePendingBookings(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := h.repo.GetPending(context.Background(), stale.SessionID); !errors.Is(err, ErrPendingNotFound) {
		t.Error("stale pending booking should be removed")
	}
	if _, err := h.repo.GetPending(context.Background(), fresh.SessionID); err != nil {
		t.Error("fresh pending booking should survive")
	}
}
