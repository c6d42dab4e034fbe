package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Loanflow/internal/domain"
	"github.com/shaiso/Loanflow/internal/repo"
)

type memStore struct {
	mu      sync.Mutex
	apps    map[uuid.UUID]*domain.Application
	history map[uuid.UUID][]domain.HistoryEntry
}

func newMemStore() *memStore {
	return &memStore{
		apps:    make(map[uuid.UUID]*domain.Application),
		history: make(map[uuid.UUID][]domain.HistoryEntry),
	}
}

func (s *memStore) put(app *domain.Application) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *app
	s.apps[app.ID] = &cp
}

func (s *memStore) get(id uuid.UUID) *domain.Application {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.apps[id]
	return &cp
}

func (s *memStore) ListFailed(ctx context.Context, cutoff time.Time, limit int) ([]domain.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var apps []domain.Application
	for _, app := range s.apps {
		if app.State == domain.StateFailed && !app.UpdatedAt.After(cutoff) && len(apps) < limit {
			apps = append(apps, *app)
		}
	}
	return apps, nil
}

func (s *memStore) Save(ctx context.Context, app *domain.Application, expectedVersion int64, entry domain.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.apps[app.ID]
	if !ok {
		return repo.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return repo.ErrVersionConflict
	}

	cp := *app
	cp.Version = expectedVersion + 1
	s.apps[app.ID] = &cp

	entry.Seq = cp.Version
	s.history[app.ID] = append(s.history[app.ID], entry)

	app.Version = cp.Version
	return nil
}

type publisherSpy struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

func (p *publisherSpy) PublishApplicationEligible(ctx context.Context, id uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, id)
	return nil
}

// failedApp создаёт заявку в FAILED с заданным «возрастом».
func failedApp(from domain.State, age time.Duration, retries int) *domain.Application {
	app := domain.NewApplication("CUST-"+uuid.NewString()[:8], nil)
	app.State = from
	app.MarkFailed("stage unreachable")
	app.RetryCount = retries
	app.UpdatedAt = time.Now().Add(-age)
	return app
}

func TestSweepRecoversFailedApplications(t *testing.T) {
	store := newMemStore()
	pub := &publisherSpy{}

	app := failedApp(domain.StatePendingUnderwriting, 5*time.Minute, 0)
	store.put(app)

	s := New(Config{Store: store, Publisher: pub, Cooldown: time.Minute, MaxRetries: 5})

	if err := s.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	got := store.get(app.ID)
	if got.State != domain.StatePendingUnderwriting {
		t.Errorf("state = %s, want PENDING_UNDERWRITING (resumed from failed_from)", got.State)
	}
	if got.FailedFrom != "" || got.LastError != "" {
		t.Errorf("failure fields not cleared: %+v", got)
	}
	if got.RetryCount != 1 {
		t.Errorf("retry_count = %d, want 1", got.RetryCount)
	}
	if got.Version != 2 {
		t.Errorf("version = %d, want 2", got.Version)
	}

	if len(pub.ids) != 1 || pub.ids[0] != app.ID {
		t.Errorf("published ids = %v", pub.ids)
	}

	entries := store.history[app.ID]
	if len(entries) != 1 || entries[0].Outcome != "RETRY" {
		t.Errorf("history = %+v", entries)
	}
}

func TestSweepRespectsCooldown(t *testing.T) {
	store := newMemStore()

	fresh := failedApp(domain.StatePendingSales, 10*time.Second, 0)
	store.put(fresh)

	s := New(Config{Store: store, Cooldown: time.Minute})

	if err := s.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	got := store.get(fresh.ID)
	if got.State != domain.StateFailed {
		t.Errorf("fresh FAILED application touched before cooldown: %s", got.State)
	}
}

func TestSweepAbandonsExhaustedApplications(t *testing.T) {
	store := newMemStore()
	pub := &publisherSpy{}

	app := failedApp(domain.StatePendingSanction, time.Hour, 5)
	store.put(app)

	s := New(Config{Store: store, Publisher: pub, Cooldown: time.Minute, MaxRetries: 5})

	if err := s.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	got := store.get(app.ID)
	if got.State != domain.StateAbandoned {
		t.Errorf("state = %s, want ABANDONED", got.State)
	}
	if len(pub.ids) != 0 {
		t.Errorf("abandoned application must not be re-queued, got %v", pub.ids)
	}

	entries := store.history[app.ID]
	if len(entries) != 1 || entries[0].Outcome != "ABANDONED" {
		t.Errorf("history = %+v", entries)
	}
}

func TestSweepSchedule(t *testing.T) {
	t.Setenv("RETRY_SWEEP_CRON", "*/5 * * * *")

	schedule, err := SweepSchedule()
	if err != nil {
		t.Fatalf("SweepSchedule: %v", err)
	}

	from := time.Date(2026, 8, 25, 12, 1, 0, 0, time.UTC)
	next := schedule.Next(from)
	want := time.Date(2026, 8, 25, 12, 5, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}

	t.Setenv("RETRY_SWEEP_CRON", "not a cron")
	if _, err := SweepSchedule(); err == nil {
		t.Error("expected error for malformed expression")
	}
}
