package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BekzhanKaspakov/mesa/internal/app/table"
	"github.com/BekzhanKaspakov/mesa/internal/domain"
	"github.com/BekzhanKaspakov/mesa/internal/interfaces"
)

type noopLogger struct{}

func (noopLogger) Info(action, message, requestID string, details map[string]interface{})             {}
func (noopLogger) Debug(action, message, requestID string, details map[string]interface{})            {}
func (noopLogger) Error(action, message, requestID string, details map[string]interface{}, err error) {}

type fakePublisher struct {
	mu   sync.Mutex
	envs []interfaces.Envelope
}

func (p *fakePublisher) PublishRole(ctx context.Context, target domain.RoleTarget, env interfaces.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.envs = append(p.envs, env)
	return nil
}

func (p *fakePublisher) PublishUser(ctx context.Context, userID string, env interfaces.Envelope) error {
	return nil
}

func (p *fakePublisher) events() []interfaces.EventName {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]interfaces.EventName, len(p.envs))
	for i, e := range p.envs {
		out[i] = e.Event
	}
	return out
}

type sentNotification struct {
	Type   domain.NotificationType
	Target domain.RoleTarget
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *fakeNotifier) Notify(ctx context.Context, branchID string, typ domain.NotificationType, title, message string, target domain.RoleTarget) (*domain.Notification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{Type: typ, Target: target})
	return &domain.Notification{Type: typ, RoleTarget: target}, nil
}

func (n *fakeNotifier) SendOffer(ctx context.Context, actor interfaces.Actor, title, message string, target domain.RoleTarget) (*domain.Notification, error) {
	return nil, nil
}

func (n *fakeNotifier) List(ctx context.Context, actor interfaces.Actor, limit, offset int) ([]*domain.UserNotification, error) {
	return nil, nil
}

func (n *fakeNotifier) UnreadCount(ctx context.Context, actor interfaces.Actor) (int64, error) {
	return 0, nil
}

func (n *fakeNotifier) MarkRead(ctx context.Context, actor interfaces.Actor, ids []string) error {
	return nil
}

func (n *fakeNotifier) MarkAllRead(ctx context.Context, actor interfaces.Actor) error {
	return nil
}

// stubTableRepo tracks only the status per table id; enough for the registry
// calls the ledger makes.
type stubTableRepo struct {
	mu     sync.Mutex
	status map[string]domain.TableStatus
}

func newStubTableRepo() *stubTableRepo {
	return &stubTableRepo{status: make(map[string]domain.TableStatus)}
}

func (r *stubTableRepo) get(id string) domain.TableStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status[id]
}

func (r *stubTableRepo) cas(id string, to domain.TableStatus, expect ...domain.TableStatus) (*domain.Table, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.status[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	for _, s := range expect {
		if cur == s {
			r.status[id] = to
			return &domain.Table{ID: id, BranchID: "branch-1", Status: to, Version: 2}, nil
		}
	}
	return nil, domain.ErrTableUnavailable
}

func (r *stubTableRepo) Create(ctx context.Context, t *domain.Table) error { return nil }
func (r *stubTableRepo) GetByID(ctx context.Context, id string) (*domain.Table, error) {
	return &domain.Table{ID: id, Status: r.get(id)}, nil
}
func (r *stubTableRepo) List(ctx context.Context, branchID string) ([]*domain.Table, error) {
	return nil, nil
}
func (r *stubTableRepo) Reserve(ctx context.Context, tableID, actor string, at time.Time) (*domain.Table, error) {
	return r.cas(tableID, domain.TableReserved, domain.TableAvailable)
}
func (r *stubTableRepo) Release(ctx context.Context, tableID, actor string, override bool) (*domain.Table, error) {
	return r.cas(tableID, domain.TableAvailable, domain.TableReserved)
}
func (r *stubTableRepo) Occupy(ctx context.Context, tableID string) (*domain.Table, error) {
	return r.cas(tableID, domain.TableOccupied, domain.TableReserved, domain.TableAvailable)
}
func (r *stubTableRepo) EnterBilling(ctx context.Context, tableID string) (*domain.Table, error) {
	return r.cas(tableID, domain.TableBilling, domain.TableOccupied)
}
func (r *stubTableRepo) EnterCleaning(ctx context.Context, tableID string) (*domain.Table, error) {
	return r.cas(tableID, domain.TableCleaning, domain.TableBilling, domain.TableOccupied)
}
func (r *stubTableRepo) MarkClean(ctx context.Context, tableID string) (*domain.Table, error) {
	return r.cas(tableID, domain.TableAvailable, domain.TableCleaning)
}
func (r *stubTableRepo) FreeAfterCancel(ctx context.Context, tableID string) (*domain.Table, error) {
	return r.cas(tableID, domain.TableAvailable, domain.TableOccupied, domain.TableBilling)
}
func (r *stubTableRepo) ForceReset(ctx context.Context, tableID string) (*domain.Table, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status[tableID] = domain.TableAvailable
	return &domain.Table{ID: tableID, Status: domain.TableAvailable}, nil
}
func (r *stubTableRepo) ReturnToOccupied(ctx context.Context, tableID string) (*domain.Table, error) {
	return r.cas(tableID, domain.TableOccupied, domain.TableBilling)
}
func (r *stubTableRepo) ReleaseExpired(ctx context.Context, cutoff time.Time) ([]*domain.Table, error) {
	return nil, nil
}

// fakeOrderRepo keeps orders in memory with the same conditional-update
// semantics the SQL layer enforces.
type fakeOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
	seq    map[string]int // branch -> daily counter
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[string]*domain.Order), seq: make(map[string]int)}
}

func (r *fakeOrderRepo) Create(ctx context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *o
	cp.Items = append([]domain.OrderItem(nil), o.Items...)
	r.orders[o.ID] = &cp
	return nil
}

func (r *fakeOrderRepo) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *o
	cp.Items = append([]domain.OrderItem(nil), o.Items...)
	return &cp, nil
}

func (r *fakeOrderRepo) List(ctx context.Context, f interfaces.OrderFilter) ([]*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Order
	for _, o := range r.orders {
		if o.BranchID != f.BranchID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.Type != "" && o.Type != f.Type {
			continue
		}
		cp := *o
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeOrderRepo) UpdateStatus(ctx context.Context, orderID string, expect []domain.OrderStatus, to domain.OrderStatus, cancelledBy, cancelReason string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	matched := false
	for _, s := range expect {
		if o.Status == s {
			matched = true
			break
		}
	}
	if !matched {
		return nil, domain.ErrInvalidStateTransition
	}
	o.Status = to
	if to == domain.OrderStatusCancelled {
		o.KOTStatus = domain.KOTClosed
		o.CancelledBy = cancelledBy
		o.CancelReason = cancelReason
	}
	o.Version++
	cp := *o
	cp.Items = append([]domain.OrderItem(nil), o.Items...)
	return &cp, nil
}

func (r *fakeOrderRepo) UpdateItemStatus(ctx context.Context, orderID, itemID string, expect []domain.ItemStatus, to domain.ItemStatus, cancelledBy, cancelReason string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	item := o.Item(itemID)
	if item == nil {
		return nil, domain.ErrNotFound
	}
	matched := false
	for _, s := range expect {
		if item.Status == s {
			matched = true
			break
		}
	}
	if !matched {
		return nil, domain.ErrInvalidStateTransition
	}
	item.Status = to
	if to == domain.ItemCancelled {
		item.CancelledBy = cancelledBy
		item.CancelReason = cancelReason
	}
	o.RecalculateTotals()
	o.Version++
	cp := *o
	cp.Items = append([]domain.OrderItem(nil), o.Items...)
	return &cp, nil
}

func (r *fakeOrderRepo) MarkPaid(ctx context.Context, orderID string, method domain.PaymentMethod, paidAt time.Time) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if o.PaymentStatus == domain.PaymentPaid {
		return nil, domain.ErrAlreadyPaid
	}
	if o.Status == domain.OrderStatusCancelled {
		return nil, domain.ErrInvalidStateTransition
	}
	o.PaymentStatus = domain.PaymentPaid
	o.PaymentMethod = method
	o.PaidAt = &paidAt
	o.Status = domain.OrderStatusCompleted
	o.KOTStatus = domain.KOTClosed
	o.Version++
	cp := *o
	return &cp, nil
}

func (r *fakeOrderRepo) HasActiveOrderForTable(ctx context.Context, tableID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.TableID == tableID && !o.Status.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeOrderRepo) NextOrderNumber(ctx context.Context, branchID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq[branchID]++
	return fmt.Sprintf("ORD_20260829_%03d", r.seq[branchID]), nil
}

type fixture struct {
	svc       *Service
	repo      *fakeOrderRepo
	tableRepo *stubTableRepo
	pub       *fakePublisher
	notifier  *fakeNotifier
}

func newFixture() *fixture {
	repo := newFakeOrderRepo()
	tableRepo := newStubTableRepo()
	pub := &fakePublisher{}
	notifier := &fakeNotifier{}
	tables := table.NewService(tableRepo, pub, noopLogger{}, time.Minute, time.Second)
	svc := NewService(repo, tables, pub, notifier, noopLogger{}, domain.DefaultPolicy())
	return &fixture{svc: svc, repo: repo, tableRepo: tableRepo, pub: pub, notifier: notifier}
}

func actor(id string, role domain.Role) interfaces.Actor {
	return interfaces.Actor{ID: id, Role: role, BranchID: "branch-1"}
}

func dineInCmd(tableID string) interfaces.CreateOrderCommand {
	return interfaces.CreateOrderCommand{
		Type:    domain.OrderTypeDineIn,
		TableID: tableID,
		Items: []interfaces.CreateOrderItemCommand{
			{MenuItemRef: "menu-1", Name: "Masala Dosa", Price: 120, Quantity: 2},
		},
		TaxRate: 5,
	}
}

func TestCreateOrderDineInOccupiesTable(t *testing.T) {
	f := newFixture()
	f.tableRepo.status["tbl-1"] = domain.TableReserved

	o, err := f.svc.CreateOrder(context.Background(), actor("w-1", domain.RoleWaiter), dineInCmd("tbl-1"))
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if o.Status != domain.OrderStatusPending {
		t.Errorf("status = %s, want pending", o.Status)
	}
	if got := f.tableRepo.get("tbl-1"); got != domain.TableOccupied {
		t.Errorf("table status = %s, want occupied", got)
	}
	if o.TokenNumber != "" {
		t.Errorf("dine-in order got token %q", o.TokenNumber)
	}

	// One NEW_ORDER notification addressed to the kitchen.
	if len(f.notifier.sent) != 1 || f.notifier.sent[0].Type != domain.NotifyNewOrder || f.notifier.sent[0].Target != domain.TargetKitchen {
		t.Errorf("notifications = %+v", f.notifier.sent)
	}
}

func TestCreateOrderTableBusy(t *testing.T) {
	f := newFixture()
	f.tableRepo.status["tbl-1"] = domain.TableReserved

	if _, err := f.svc.CreateOrder(context.Background(), actor("w-1", domain.RoleWaiter), dineInCmd("tbl-1")); err != nil {
		t.Fatalf("first order: %v", err)
	}
	_, err := f.svc.CreateOrder(context.Background(), actor("w-2", domain.RoleWaiter), dineInCmd("tbl-1"))
	if !errors.Is(err, domain.ErrTableUnavailable) {
		t.Errorf("second order = %v, want ErrTableUnavailable", err)
	}
}

func TestCreateOrderTakeawayToken(t *testing.T) {
	f := newFixture()
	cmd := interfaces.CreateOrderCommand{
		Type: domain.OrderTypeTakeaway,
		Items: []interfaces.CreateOrderItemCommand{
			{Name: "Filter Coffee", Price: 40, Quantity: 1},
		},
	}
	o, err := f.svc.CreateOrder(context.Background(), actor("c-1", domain.RoleCashier), cmd)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if o.TokenNumber == "" {
		t.Fatal("takeaway order has no token")
	}
	if !strings.HasSuffix(o.OrderNumber, o.TokenNumber) {
		t.Errorf("token %q is not the suffix of %q", o.TokenNumber, o.OrderNumber)
	}
}

func TestOrderNumbersScopedPerBranch(t *testing.T) {
	f := newFixture()
	cmd := interfaces.CreateOrderCommand{
		Type: domain.OrderTypeTakeaway,
		Items: []interfaces.CreateOrderItemCommand{
			{Name: "Filter Coffee", Price: 40, Quantity: 1},
		},
	}

	first, err := f.svc.CreateOrder(context.Background(), actor("c-1", domain.RoleCashier), cmd)
	if err != nil {
		t.Fatalf("branch-1 order: %v", err)
	}

	// The other branch's first order of the day gets its own _001, not a
	// collision with branch-1's.
	foreign := interfaces.Actor{ID: "c-2", Role: domain.RoleCashier, BranchID: "branch-2"}
	other, err := f.svc.CreateOrder(context.Background(), foreign, cmd)
	if err != nil {
		t.Fatalf("branch-2 order: %v", err)
	}
	if first.OrderNumber != "ORD_20260829_001" || other.OrderNumber != "ORD_20260829_001" {
		t.Errorf("numbers = %q / %q, want _001 in each branch", first.OrderNumber, other.OrderNumber)
	}

	second, err := f.svc.CreateOrder(context.Background(), actor("c-1", domain.RoleCashier), cmd)
	if err != nil {
		t.Fatalf("second branch-1 order: %v", err)
	}
	if second.OrderNumber != "ORD_20260829_002" {
		t.Errorf("second branch-1 number = %q, want ORD_20260829_002", second.OrderNumber)
	}
}

func TestCreateOrderKitchenDenied(t *testing.T) {
	f := newFixture()
	_, err := f.svc.CreateOrder(context.Background(), actor("k-1", domain.RoleKitchen), dineInCmd("tbl-1"))
	if !errors.Is(err, domain.ErrAuthorizationDenied) {
		t.Errorf("kitchen create = %v, want ErrAuthorizationDenied", err)
	}
}

func TestUpdateStatusFlow(t *testing.T) {
	f := newFixture()
	f.tableRepo.status["tbl-1"] = domain.TableAvailable
	o, err := f.svc.CreateOrder(context.Background(), actor("w-1", domain.RoleWaiter), dineInCmd("tbl-1"))
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	kitchen := actor("k-1", domain.RoleKitchen)
	for _, to := range []domain.OrderStatus{domain.OrderStatusAccepted, domain.OrderStatusPreparing, domain.OrderStatusReady} {
		if o, err = f.svc.UpdateStatus(context.Background(), kitchen, o.ID, to); err != nil {
			t.Fatalf("advance to %s: %v", to, err)
		}
	}

	// ORDER_READY notification went to the waiter station.
	last := f.notifier.sent[len(f.notifier.sent)-1]
	if last.Type != domain.NotifyOrderReady || last.Target != domain.TargetWaiter {
		t.Errorf("last notification = %+v", last)
	}

	// Completion is payment's job.
	if _, err := f.svc.UpdateStatus(context.Background(), kitchen, o.ID, domain.OrderStatusCompleted); !errors.Is(err, domain.ErrPaymentRequired) {
		t.Errorf("complete by request = %v, want ErrPaymentRequired", err)
	}

	// Cancellation must go through the cancel operation.
	var ve *domain.ValidationError
	if _, err := f.svc.UpdateStatus(context.Background(), kitchen, o.ID, domain.OrderStatusCancelled); !errors.As(err, &ve) {
		t.Errorf("cancel via status = %v, want validation error", err)
	}
}

func TestCancelOrderFreesTable(t *testing.T) {
	f := newFixture()
	f.tableRepo.status["tbl-1"] = domain.TableAvailable
	o, err := f.svc.CreateOrder(context.Background(), actor("w-1", domain.RoleWaiter), dineInCmd("tbl-1"))
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	cancelled, err := f.svc.CancelOrder(context.Background(), actor("w-1", domain.RoleWaiter), o.ID, "guest left")
	if err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled {
		t.Errorf("status = %s", cancelled.Status)
	}
	if cancelled.KOTStatus != domain.KOTClosed {
		t.Errorf("kot_status = %s, want closed", cancelled.KOTStatus)
	}
	if cancelled.CancelledBy != "w-1" || cancelled.CancelReason != "guest left" {
		t.Errorf("cancel audit = %q / %q", cancelled.CancelledBy, cancelled.CancelReason)
	}
	if got := f.tableRepo.get("tbl-1"); got != domain.TableAvailable {
		t.Errorf("table status = %s, want available", got)
	}
}

func TestCancelOrderWaiterOwnership(t *testing.T) {
	f := newFixture()
	f.tableRepo.status["tbl-1"] = domain.TableAvailable
	o, err := f.svc.CreateOrder(context.Background(), actor("w-1", domain.RoleWaiter), dineInCmd("tbl-1"))
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	if _, err := f.svc.CancelOrder(context.Background(), actor("w-2", domain.RoleWaiter), o.ID, "nope"); !errors.Is(err, domain.ErrAuthorizationDenied) {
		t.Errorf("other waiter cancel = %v, want ErrAuthorizationDenied", err)
	}
	// An admin is not bound by ownership.
	if _, err := f.svc.CancelOrder(context.Background(), actor("adm-1", domain.RoleAdmin), o.ID, "mistake"); err != nil {
		t.Errorf("admin cancel: %v", err)
	}
}

func TestCancelItemRecalculatesTotals(t *testing.T) {
	f := newFixture()
	f.tableRepo.status["tbl-1"] = domain.TableAvailable
	cmd := interfaces.CreateOrderCommand{
		Type:    domain.OrderTypeDineIn,
		TableID: "tbl-1",
		Items: []interfaces.CreateOrderItemCommand{
			{Name: "Thali", Price: 200, Quantity: 1},
			{Name: "Lassi", Price: 50, Quantity: 1},
		},
		TaxRate: 5,
	}
	o, err := f.svc.CreateOrder(context.Background(), actor("w-1", domain.RoleWaiter), cmd)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if o.FinalAmount != 262.5 {
		t.Fatalf("final = %.2f, want 262.5", o.FinalAmount)
	}

	var lassi string
	for _, it := range o.Items {
		if it.Name == "Lassi" {
			lassi = it.ID
		}
	}
	updated, err := f.svc.CancelItem(context.Background(), actor("w-1", domain.RoleWaiter), o.ID, lassi, "out of stock")
	if err != nil {
		t.Fatalf("CancelItem: %v", err)
	}
	if updated.TotalAmount != 200 || updated.Tax != 10 || updated.FinalAmount != 210 {
		t.Errorf("totals = %.2f/%.2f/%.2f, want 200/10/210", updated.TotalAmount, updated.Tax, updated.FinalAmount)
	}
	if item := updated.Item(lassi); item == nil || item.Status != domain.ItemCancelled {
		t.Errorf("item not cancelled: %+v", item)
	}
}

func TestUpdateItemStatusClosedTicket(t *testing.T) {
	f := newFixture()
	f.tableRepo.status["tbl-1"] = domain.TableAvailable
	o, err := f.svc.CreateOrder(context.Background(), actor("w-1", domain.RoleWaiter), dineInCmd("tbl-1"))
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if _, err := f.svc.CancelOrder(context.Background(), actor("w-1", domain.RoleWaiter), o.ID, "changed mind"); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}

	itemID := o.Items[0].ID
	if _, err := f.svc.UpdateItemStatus(context.Background(), actor("k-1", domain.RoleKitchen), o.ID, itemID, domain.ItemPreparing); !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Errorf("item update on closed ticket = %v, want ErrInvalidStateTransition", err)
	}
}

func TestGetOrderBranchIsolation(t *testing.T) {
	f := newFixture()
	f.tableRepo.status["tbl-1"] = domain.TableAvailable
	o, err := f.svc.CreateOrder(context.Background(), actor("w-1", domain.RoleWaiter), dineInCmd("tbl-1"))
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	foreign := interfaces.Actor{ID: "w-9", Role: domain.RoleWaiter, BranchID: "branch-2"}
	if _, err := f.svc.GetOrder(context.Background(), foreign, o.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("cross-branch get = %v, want ErrNotFound", err)
	}
}

func TestBroadcastEventsCarryVersion(t *testing.T) {
	f := newFixture()
	f.tableRepo.status["tbl-1"] = domain.TableAvailable
	o, err := f.svc.CreateOrder(context.Background(), actor("w-1", domain.RoleWaiter), dineInCmd("tbl-1"))
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	updated, err := f.svc.UpdateStatus(context.Background(), actor("k-1", domain.RoleKitchen), o.ID, domain.OrderStatusAccepted)
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	f.pub.mu.Lock()
	defer f.pub.mu.Unlock()
	var sawNew, sawUpdated bool
	for _, env := range f.pub.envs {
		switch env.Event {
		case interfaces.EventNewOrder:
			sawNew = true
			if env.Version != o.Version {
				t.Errorf("new-order version = %d, want %d", env.Version, o.Version)
			}
		case interfaces.EventOrderUpdated:
			sawUpdated = true
			if env.Version != updated.Version {
				t.Errorf("order-updated version = %d, want %d", env.Version, updated.Version)
			}
		}
	}
	if !sawNew || !sawUpdated {
		t.Errorf("events seen: %v", f.pub.events())
	}
}
