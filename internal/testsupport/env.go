package testsupport

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"libraryhub/internal/adapters/persistence/models"
	"libraryhub/internal/adapters/persistence/repositories"
	"libraryhub/internal/config"
	"libraryhub/internal/core/domain"
	"libraryhub/internal/core/services"
	"libraryhub/internal/pkg/logging"

	"gorm.io/gorm"
)

// Clock is a settable clock for deterministic due dates and expiry
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at t
func NewClock(t time.Time) *Clock {
	return &Clock{now: t.UTC()}
}

// Now returns the current test time
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}

// RecordingNotifier keeps every notification it receives
type RecordingNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
}

// Notify records n
func (r *RecordingNotifier) Notify(_ context.Context, n domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

// Sent returns a copy of the recorded notifications
func (r *RecordingNotifier) Sent() []domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Notification(nil), r.sent...)
}

// Env is a fully wired circulation core over an in-memory database
type Env struct {
	DB       *gorm.DB
	Store    repositories.Store
	Services *services.Services
	Clock    *Clock
	Notifier *RecordingNotifier
	Policy   domain.Policy
	Log      *slog.Logger
}

// Option customises an Env
type Option func(*envBuilder)

type envBuilder struct {
	start  time.Time
	policy domain.Policy
}

// WithStart sets the initial clock time
func WithStart(t time.Time) Option {
	return func(b *envBuilder) { b.start = t }
}

// WithPolicy overrides the circulation policy
func WithPolicy(p domain.Policy) Option {
	return func(b *envBuilder) { b.policy = p }
}

// NewEnv builds services over a fresh database seeded with the default tiers
func NewEnv(t testing.TB, opts ...Option) *Env {
	t.Helper()

	b := &envBuilder{
		start:  time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		policy: domain.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(b)
	}

	db := OpenDB(t)
	policy, err := config.LoadPolicy("")
	if err != nil {
		t.Fatalf("load policy: %v", err)
	}
	if _, err := config.NewSeeder(db, policy).SeedTiers(context.Background()); err != nil {
		t.Fatalf("seed tiers: %v", err)
	}

	store := repositories.NewStore(db)
	clock := NewClock(b.start)
	notifier := &RecordingNotifier{}
	logger := logging.NewNop()
	svc := services.New(services.Deps{
		Store:    store,
		Notifier: notifier,
		Policy:   b.policy,
		Clock:    clock.Now,
		Logger:   logger,
	})

	return &Env{
		DB:       db,
		Store:    store,
		Services: svc,
		Clock:    clock,
		Notifier: notifier,
		Policy:   b.policy,
		Log:      logger,
	}
}

// Member registers a member on tierName; an empty tier means no tier
func (e *Env) Member(t testing.TB, name, tierName string) *models.Member {
	t.Helper()
	m, err := e.Services.Members.CreateMember(context.Background(), services.CreateMemberInput{
		Name:     name,
		Email:    name + "@example.test",
		TierName: tierName,
	})
	if err != nil {
		t.Fatalf("create member %s: %v", name, err)
	}
	return m
}

// Work creates a work with copies copies and returns it with its copies
func (e *Env) Work(t testing.TB, code string, copies int) (*models.Work, []models.Copy) {
	t.Helper()
	res, err := e.Services.Catalog.CreateWork(context.Background(), services.CreateWorkInput{
		Code:           code,
		Title:          "Title of " + code,
		Author:         "Author",
		Category:       "General",
		CopiesToCreate: copies,
	})
	if err != nil {
		t.Fatalf("create work %s: %v", code, err)
	}
	return res.Work, res.Copies.Copies
}

// ReloadWork reads a work back from the database
func (e *Env) ReloadWork(t testing.TB, id uint) *models.Work {
	t.Helper()
	w, err := e.Store.Works().GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("reload work %d: %v", id, err)
	}
	return w
}

// ReloadCopy reads a copy back from the database
func (e *Env) ReloadCopy(t testing.TB, id uint) *models.Copy {
	t.Helper()
	c, err := e.Store.Copies().GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("reload copy %d: %v", id, err)
	}
	return c
}

// ReloadReservation reads a reservation back from the database
func (e *Env) ReloadReservation(t testing.TB, id uint) *models.Reservation {
	t.Helper()
	r, err := e.Store.Reservations().GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("reload reservation %d: %v", id, err)
	}
	return r
}

// AssertRollups fails unless total = available + issued and the counts match
// the copy set
func (e *Env) AssertRollups(t testing.TB, workID uint) *models.Work {
	t.Helper()
	w := e.ReloadWork(t, workID)
	counts, err := e.Store.Copies().CountByStatus(context.Background(), workID)
	if err != nil {
		t.Fatalf("count copies: %v", err)
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	if w.TotalCopies != total || w.AvailableCopies != counts[domain.CopyAvailable] ||
		w.TotalCopies != w.AvailableCopies+w.IssuedCopies || w.AvailableCopies < 0 {
		t.Fatalf("rollups out of sync for work %d: total=%d available=%d issued=%d copies=%v",
			workID, w.TotalCopies, w.AvailableCopies, w.IssuedCopies, counts)
	}
	return w
}
