package table

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BekzhanKaspakov/mesa/internal/domain"
	"github.com/BekzhanKaspakov/mesa/internal/interfaces"
)

type noopLogger struct{}

func (noopLogger) Info(action, message, requestID string, details map[string]interface{})             {}
func (noopLogger) Debug(action, message, requestID string, details map[string]interface{})            {}
func (noopLogger) Error(action, message, requestID string, details map[string]interface{}, err error) {}

type fakePublisher struct {
	mu        sync.Mutex
	roleEnvs  []interfaces.Envelope
	userEnvs  []interfaces.Envelope
	userScope []string
}

func (p *fakePublisher) PublishRole(ctx context.Context, target domain.RoleTarget, env interfaces.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.roleEnvs = append(p.roleEnvs, env)
	return nil
}

func (p *fakePublisher) PublishUser(ctx context.Context, userID string, env interfaces.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userEnvs = append(p.userEnvs, env)
	p.userScope = append(p.userScope, userID)
	return nil
}

func (p *fakePublisher) roleEvents() []interfaces.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]interfaces.Envelope, len(p.roleEnvs))
	copy(out, p.roleEnvs)
	return out
}

// fakeTableRepo mirrors the store's compare-and-swap semantics under a mutex,
// so races exercised in tests resolve the same way they would in Postgres.
type fakeTableRepo struct {
	mu     sync.Mutex
	tables map[string]*domain.Table
}

func newFakeTableRepo() *fakeTableRepo {
	return &fakeTableRepo{tables: make(map[string]*domain.Table)}
}

func (r *fakeTableRepo) add(t *domain.Table) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.tables[t.ID] = &cp
}

func (r *fakeTableRepo) Create(ctx context.Context, t *domain.Table) error {
	r.add(t)
	return nil
}

func (r *fakeTableRepo) GetByID(ctx context.Context, id string) (*domain.Table, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tables[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *fakeTableRepo) List(ctx context.Context, branchID string) ([]*domain.Table, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Table
	for _, t := range r.tables {
		if t.BranchID == branchID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeTableRepo) Reserve(ctx context.Context, tableID, actor string, at time.Time) (*domain.Table, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tables[tableID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if t.Status != domain.TableAvailable {
		return nil, domain.ErrTableUnavailable
	}
	t.Status = domain.TableReserved
	t.LockedBy = actor
	t.ReservedAt = &at
	t.Version++
	cp := *t
	return &cp, nil
}

func (r *fakeTableRepo) Release(ctx context.Context, tableID, actor string, override bool) (*domain.Table, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tables[tableID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if t.Status != domain.TableReserved {
		return nil, domain.ErrTableUnavailable
	}
	if t.LockedBy != actor && !override {
		return nil, domain.ErrAuthorizationDenied
	}
	r.clear(t, domain.TableAvailable)
	cp := *t
	return &cp, nil
}

func (r *fakeTableRepo) clear(t *domain.Table, to domain.TableStatus) {
	t.Status = to
	t.LockedBy = ""
	t.ReservedAt = nil
	t.Version++
}

func (r *fakeTableRepo) cas(tableID string, to domain.TableStatus, expect ...domain.TableStatus) (*domain.Table, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tables[tableID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	for _, s := range expect {
		if t.Status == s {
			r.clear(t, to)
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrTableUnavailable
}

func (r *fakeTableRepo) Occupy(ctx context.Context, tableID string) (*domain.Table, error) {
	return r.cas(tableID, domain.TableOccupied, domain.TableReserved, domain.TableAvailable)
}

func (r *fakeTableRepo) EnterBilling(ctx context.Context, tableID string) (*domain.Table, error) {
	return r.cas(tableID, domain.TableBilling, domain.TableOccupied)
}

func (r *fakeTableRepo) EnterCleaning(ctx context.Context, tableID string) (*domain.Table, error) {
	return r.cas(tableID, domain.TableCleaning, domain.TableBilling, domain.TableOccupied)
}

func (r *fakeTableRepo) MarkClean(ctx context.Context, tableID string) (*domain.Table, error) {
	return r.cas(tableID, domain.TableAvailable, domain.TableCleaning)
}

func (r *fakeTableRepo) FreeAfterCancel(ctx context.Context, tableID string) (*domain.Table, error) {
	return r.cas(tableID, domain.TableAvailable, domain.TableOccupied, domain.TableBilling)
}

func (r *fakeTableRepo) ForceReset(ctx context.Context, tableID string) (*domain.Table, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tables[tableID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	r.clear(t, domain.TableAvailable)
	cp := *t
	return &cp, nil
}

func (r *fakeTableRepo) ReturnToOccupied(ctx context.Context, tableID string) (*domain.Table, error) {
	return r.cas(tableID, domain.TableOccupied, domain.TableBilling)
}

func (r *fakeTableRepo) ReleaseExpired(ctx context.Context, cutoff time.Time) ([]*domain.Table, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Table
	for _, t := range r.tables {
		if t.Status == domain.TableReserved && t.ReservedAt != nil && t.ReservedAt.Before(cutoff) {
			r.clear(t, domain.TableAvailable)
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func seedTable(repo *fakeTableRepo, id string, status domain.TableStatus) {
	repo.add(&domain.Table{ID: id, BranchID: "branch-1", Number: 1, Capacity: 4, Status: status, Version: 1})
}

func waiter(id string) interfaces.Actor {
	return interfaces.Actor{ID: id, Role: domain.RoleWaiter, BranchID: "branch-1"}
}

func TestConcurrentReserveSingleWinner(t *testing.T) {
	repo := newFakeTableRepo()
	seedTable(repo, "tbl-1", domain.TableAvailable)
	svc := NewService(repo, &fakePublisher{}, noopLogger{}, 15*time.Minute, time.Second)

	const actors = 10
	var wg sync.WaitGroup
	var winners, losers int32
	var mu sync.Mutex

	for i := 0; i < actors; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := svc.Reserve(context.Background(), waiter("w-"+string(rune('a'+n))), "tbl-1")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, domain.ErrTableUnavailable):
				losers++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("winners = %d, want exactly 1", winners)
	}
	if losers != actors-1 {
		t.Errorf("losers = %d, want %d", losers, actors-1)
	}
}

func TestReleaseOnlyByHolder(t *testing.T) {
	repo := newFakeTableRepo()
	seedTable(repo, "tbl-1", domain.TableAvailable)
	pub := &fakePublisher{}
	svc := NewService(repo, pub, noopLogger{}, 15*time.Minute, time.Second)

	if _, err := svc.Reserve(context.Background(), waiter("w-1"), "tbl-1"); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	if _, err := svc.Release(context.Background(), waiter("w-2"), "tbl-1"); !errors.Is(err, domain.ErrAuthorizationDenied) {
		t.Errorf("stranger release = %v, want ErrAuthorizationDenied", err)
	}

	// Admin override.
	admin := interfaces.Actor{ID: "adm-1", Role: domain.RoleAdmin, BranchID: "branch-1"}
	if _, err := svc.Release(context.Background(), admin, "tbl-1"); err != nil {
		t.Errorf("admin release: %v", err)
	}
}

func TestCreateTableRoleGate(t *testing.T) {
	repo := newFakeTableRepo()
	svc := NewService(repo, &fakePublisher{}, noopLogger{}, 0, time.Second)

	if _, err := svc.CreateTable(context.Background(), waiter("w-1"), 3, 4); !errors.Is(err, domain.ErrAuthorizationDenied) {
		t.Errorf("waiter create = %v, want ErrAuthorizationDenied", err)
	}

	admin := interfaces.Actor{ID: "adm-1", Role: domain.RoleAdmin, BranchID: "branch-1"}
	tbl, err := svc.CreateTable(context.Background(), admin, 3, 4)
	if err != nil {
		t.Fatalf("admin create: %v", err)
	}
	if tbl.ID == "" {
		t.Error("table id not assigned")
	}
}

func TestForceResetRoleGateAndBroadcast(t *testing.T) {
	repo := newFakeTableRepo()
	seedTable(repo, "tbl-1", domain.TableBilling)
	pub := &fakePublisher{}
	svc := NewService(repo, pub, noopLogger{}, 0, time.Second)

	if _, err := svc.ForceReset(context.Background(), waiter("w-1"), "tbl-1"); !errors.Is(err, domain.ErrAuthorizationDenied) {
		t.Errorf("waiter force-reset = %v, want ErrAuthorizationDenied", err)
	}

	admin := interfaces.Actor{ID: "adm-1", Role: domain.RoleAdmin, BranchID: "branch-1"}
	tbl, err := svc.ForceReset(context.Background(), admin, "tbl-1")
	if err != nil {
		t.Fatalf("force-reset: %v", err)
	}
	if tbl.Status != domain.TableAvailable {
		t.Errorf("status = %s, want available", tbl.Status)
	}

	events := pub.roleEvents()
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if events[0].Event != interfaces.EventTableUpdated {
		t.Errorf("event = %s, want %s", events[0].Event, interfaces.EventTableUpdated)
	}
	if events[0].Table == nil || events[0].Table.Status != domain.TableAvailable {
		t.Errorf("table delta missing or wrong: %+v", events[0].Table)
	}
}

func TestSweepReleasesExpiredReservations(t *testing.T) {
	repo := newFakeTableRepo()
	pub := &fakePublisher{}
	svc := NewService(repo, pub, noopLogger{}, 15*time.Minute, time.Second)

	old := time.Now().UTC().Add(-time.Hour)
	fresh := time.Now().UTC()
	repo.add(&domain.Table{ID: "tbl-old", BranchID: "branch-1", Number: 1, Capacity: 2, Status: domain.TableReserved, LockedBy: "w-1", ReservedAt: &old, Version: 2})
	repo.add(&domain.Table{ID: "tbl-new", BranchID: "branch-1", Number: 2, Capacity: 2, Status: domain.TableReserved, LockedBy: "w-2", ReservedAt: &fresh, Version: 2})

	svc.sweepOnce(context.Background())

	stale, _ := repo.GetByID(context.Background(), "tbl-old")
	if stale.Status != domain.TableAvailable {
		t.Errorf("expired reservation not released: %s", stale.Status)
	}
	if stale.LockedBy != "" {
		t.Errorf("lock holder not cleared: %q", stale.LockedBy)
	}
	held, _ := repo.GetByID(context.Background(), "tbl-new")
	if held.Status != domain.TableReserved {
		t.Errorf("fresh reservation released: %s", held.Status)
	}
	if got := len(pub.roleEvents()); got != 1 {
		t.Errorf("broadcasts = %d, want 1", got)
	}
}

func TestVersionMonotonicAcrossLifecycle(t *testing.T) {
	repo := newFakeTableRepo()
	seedTable(repo, "tbl-1", domain.TableAvailable)
	svc := NewService(repo, &fakePublisher{}, noopLogger{}, time.Minute, time.Second)

	last := int64(1)
	steps := []func() (*domain.Table, error){
		func() (*domain.Table, error) { return svc.Reserve(context.Background(), waiter("w-1"), "tbl-1") },
		func() (*domain.Table, error) { return svc.Occupy(context.Background(), "tbl-1") },
		func() (*domain.Table, error) { return svc.EnterBilling(context.Background(), "tbl-1") },
		func() (*domain.Table, error) { return svc.EnterCleaning(context.Background(), "tbl-1") },
		func() (*domain.Table, error) { return svc.MarkClean(context.Background(), waiter("w-1"), "tbl-1") },
	}
	for i, step := range steps {
		tbl, err := step()
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if tbl.Version <= last {
			t.Errorf("step %d: version %d not greater than %d", i, tbl.Version, last)
		}
		last = tbl.Version
	}
}
