package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mexc-sniper-bot/internal/database"
	"mexc-sniper-bot/internal/events"
	"mexc-sniper-bot/internal/mexc"
	"mexc-sniper-bot/internal/safety"
)

// fakeStore is an in-memory Store good enough to drive the pipeline.
type fakeStore struct {
	mu        sync.Mutex
	targets   map[int64]*database.SnipeTarget
	positions []*database.Position
	records   []*database.ExecutionRecord
	nextPosID int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{targets: make(map[int64]*database.SnipeTarget)}
}

func (s *fakeStore) addTarget(t *database.SnipeTarget) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets[t.ID] = t
}

func (s *fakeStore) GetSnipeTarget(_ context.Context, targetID int64) (*database.SnipeTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.targets[targetID]
	copied := *t
	return &copied, nil
}

func (s *fakeStore) ListDueTargets(_ context.Context, now time.Time) ([]*database.SnipeTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*database.SnipeTarget
	for _, t := range s.targets {
		if t.Status == database.TargetStatusReady && !t.TargetExecutionTime.After(now) {
			copied := *t
			due = append(due, &copied)
		}
	}
	return due, nil
}

func (s *fakeStore) MarkTargetExecuting(_ context.Context, targetID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.targets[targetID]
	if t == nil || t.Status != database.TargetStatusReady {
		return false, nil
	}
	t.Status = database.TargetStatusExecuting
	return true, nil
}

func (s *fakeStore) UpdateTargetStatus(_ context.Context, targetID int64, status string, errorMessage *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.targets[targetID]
	t.Status = status
	t.ErrorMessage = errorMessage
	return nil
}

func (s *fakeStore) ReleaseTarget(_ context.Context, targetID int64, errorMessage string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.targets[targetID]
	t.Status = database.TargetStatusReady
	t.ErrorCount++
	t.ErrorMessage = &errorMessage
	return t.ErrorCount, nil
}

func (s *fakeStore) CreatePosition(_ context.Context, position *database.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextPosID++
	position.ID = s.nextPosID
	copied := *position
	s.positions = append(s.positions, &copied)
	return nil
}

func (s *fakeStore) CreateExecutionRecord(_ context.Context, record *database.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.ID == "" {
		record.ID = fmt.Sprintf("rec-%d", len(s.records)+1)
	}
	copied := *record
	s.records = append(s.records, &copied)
	return nil
}

func (s *fakeStore) LinkExecutionToPosition(_ context.Context, recordID string, positionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.ID == recordID {
			id := positionID
			r.PositionID = &id
		}
	}
	return nil
}

func (s *fakeStore) targetStatus(targetID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.targets[targetID].Status
}

// fakeMonitor records which positions were handed over for exit monitoring.
type fakeMonitor struct {
	mu      sync.Mutex
	started []*database.Position
}

func (m *fakeMonitor) Start(position *database.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, position)
}

func (m *fakeMonitor) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.started)
}

// recorder captures emitted events synchronously.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Emit(eventType events.EventType, correlationID string, payload map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events.Event{Type: eventType, CorrelationID: correlationID})
}

func (r *recorder) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func (r *recorder) has(eventType events.EventType) bool {
	for _, t := range r.types() {
		if t == eventType {
			return true
		}
	}
	return false
}

func testTarget(id int64) *database.SnipeTarget {
	return &database.SnipeTarget{
		ID:                  id,
		UserID:              "user-1",
		Symbol:              "NEWUSDT",
		VcoinID:             "NEW",
		Status:              database.TargetStatusReady,
		PositionSizeUsdt:    100,
		Priority:            1,
		TargetExecutionTime: time.Now().Add(-time.Second),
		StopLossPercent:     10,
		TakeProfitPercent:   20,
	}
}

func newTestExecutor(t *testing.T, client mexc.ExchangeClient, store Store) (*Executor, *fakeMonitor, *recorder, *safety.Controller) {
	t.Helper()
	mon := &fakeMonitor{}
	rec := &recorder{}
	ctl := safety.NewController(events.NewBus(), zerolog.Nop())
	exec := NewExecutor(client, store, mon, ctl, rec, DefaultConfig(), zerolog.Nop())
	return exec, mon, rec, ctl
}

func TestExecuteTargetSuccess(t *testing.T) {
	client := mexc.NewMockClient()
	store := newFakeStore()
	store.addTarget(testTarget(1))
	exec, mon, rec, _ := newTestExecutor(t, client, store)

	res := exec.ExecuteTarget(context.Background(), 1, "user-1")
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.CorrelationID == "" {
		t.Error("expected a correlation id")
	}
	if got := store.targetStatus(1); got != database.TargetStatusExecuted {
		t.Errorf("target status = %s, want executed", got)
	}

	// Default sizing on the mock's 10000 USDT account: 2% of equity.
	if len(client.PlacedOrders()) != 1 {
		t.Fatalf("expected 1 order, got %d", len(client.PlacedOrders()))
	}
	order := client.PlacedOrders()[0]
	if order.QuoteOrderQty != 200 {
		t.Errorf("quote qty = %v, want 200", order.QuoteOrderQty)
	}
	if order.Side != mexc.SideBuy || order.Type != mexc.OrderTypeMarket {
		t.Errorf("unexpected order shape: %+v", order)
	}

	if len(store.positions) != 1 {
		t.Fatalf("expected 1 position, got %d", len(store.positions))
	}
	pos := store.positions[0]
	if pos.Status != database.PositionStatusOpen {
		t.Errorf("position status = %s, want open", pos.Status)
	}
	if pos.StopLossPrice >= pos.EntryPrice || pos.TakeProfitPrice <= pos.EntryPrice {
		t.Errorf("exit prices not derived: entry=%v sl=%v tp=%v", pos.EntryPrice, pos.StopLossPrice, pos.TakeProfitPrice)
	}
	if mon.count() != 1 {
		t.Errorf("monitor started %d positions, want 1", mon.count())
	}

	if len(store.records) != 1 || store.records[0].Status != database.ExecutionStatusSuccess {
		t.Fatalf("expected one success record, got %+v", store.records)
	}
	if store.records[0].PositionID == nil || *store.records[0].PositionID != pos.ID {
		t.Errorf("record not linked to position %d: %+v", pos.ID, store.records[0].PositionID)
	}

	want := []events.EventType{
		events.EventExecutionStarted,
		events.EventOrderPlaced,
		events.EventOrderFilled,
		events.EventPositionOpened,
	}
	got := rec.types()
	if len(got) != len(want) {
		t.Fatalf("event types = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestExecuteTargetBalanceGuardBlocks(t *testing.T) {
	client := mexc.NewMockClient()
	// Sizer floors at MinPositionSize = 1 then clamps to free = 1; the
	// 5% buffer makes 1.05 unaffordable.
	client.SetBalance("USDT", 1, 0)
	store := newFakeStore()
	store.addTarget(testTarget(1))
	exec, mon, rec, _ := newTestExecutor(t, client, store)

	res := exec.ExecuteTarget(context.Background(), 1, "user-1")
	if res.Success || res.Skipped || res.Retryable {
		t.Fatalf("expected terminal failure, got %+v", res)
	}
	if !strings.Contains(res.Reason, "insufficient balance") {
		t.Errorf("reason = %q, want insufficient balance", res.Reason)
	}
	if got := store.targetStatus(1); got != database.TargetStatusFailed {
		t.Errorf("target status = %s, want failed", got)
	}
	if len(client.PlacedOrders()) != 0 {
		t.Error("no order should be placed when the guard blocks")
	}
	if !rec.has(events.EventBalanceCheckBlocked) {
		t.Error("expected balance_check_blocked event")
	}
	if mon.count() != 0 {
		t.Error("no position should be monitored")
	}
}

func TestExecuteTargetNonRetryableError(t *testing.T) {
	client := mexc.NewMockClient()
	store := newFakeStore()
	target := testTarget(1)
	target.Symbol = "UNKNOWNUSDT" // mock rejects unknown symbols with "Invalid symbol"
	store.addTarget(target)
	exec, _, rec, ctl := newTestExecutor(t, client, store)

	res := exec.ExecuteTarget(context.Background(), 1, "user-1")
	if res.Success || res.Retryable {
		t.Fatalf("expected non-retryable failure, got %+v", res)
	}
	if got := store.targetStatus(1); got != database.TargetStatusFailed {
		t.Errorf("target status = %s, want failed", got)
	}
	if len(store.records) != 1 || store.records[0].Status != database.ExecutionStatusFailed {
		t.Fatalf("expected one failed record, got %+v", store.records)
	}
	if !rec.has(events.EventExecutionError) {
		t.Error("expected execution_error event")
	}
	if ctl.ConsecutiveFailures() != 1 {
		t.Errorf("consecutive failures = %d, want 1", ctl.ConsecutiveFailures())
	}
}

func TestExecuteTargetRetryableErrorReleasesThenExhausts(t *testing.T) {
	client := mexc.NewMockClient()
	client.SetOrderError(errors.New("request timeout"))
	store := newFakeStore()
	store.addTarget(testTarget(1))
	exec, _, _, _ := newTestExecutor(t, client, store)

	for i := 1; i < DefaultConfig().MaxTargetRetries; i++ {
		res := exec.ExecuteTarget(context.Background(), 1, "user-1")
		if !res.Retryable {
			t.Fatalf("attempt %d: expected retryable, got %+v", i, res)
		}
		if got := store.targetStatus(1); got != database.TargetStatusReady {
			t.Fatalf("attempt %d: target status = %s, want ready", i, got)
		}
	}

	res := exec.ExecuteTarget(context.Background(), 1, "user-1")
	if res.Retryable {
		t.Fatalf("expected retry budget exhaustion, got %+v", res)
	}
	if got := store.targetStatus(1); got != database.TargetStatusFailed {
		t.Errorf("target status = %s, want failed", got)
	}
}

func TestExecuteTargetClaimRace(t *testing.T) {
	client := mexc.NewMockClient()
	store := newFakeStore()
	target := testTarget(1)
	target.Status = database.TargetStatusExecuting
	store.addTarget(target)
	exec, _, rec, _ := newTestExecutor(t, client, store)

	res := exec.ExecuteTarget(context.Background(), 1, "user-1")
	if !res.Skipped {
		t.Fatalf("expected skip, got %+v", res)
	}
	if len(rec.types()) != 0 {
		t.Errorf("no events expected for a skipped target, got %v", rec.types())
	}
}

func TestProcessDueTargetsRunsAllDue(t *testing.T) {
	client := mexc.NewMockClient()
	store := newFakeStore()
	for i := int64(1); i <= 3; i++ {
		store.addTarget(testTarget(i))
	}
	notDue := testTarget(4)
	notDue.TargetExecutionTime = time.Now().Add(time.Hour)
	store.addTarget(notDue)
	exec, mon, _, _ := newTestExecutor(t, client, store)

	batch, err := exec.ProcessDueTargets(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if batch.Processed != 3 || batch.Succeeded != 3 {
		t.Fatalf("batch = %+v, want 3 processed, 3 succeeded", batch)
	}
	if mon.count() != 3 {
		t.Errorf("monitor started %d positions, want 3", mon.count())
	}
	if got := store.targetStatus(4); got != database.TargetStatusReady {
		t.Errorf("future target status = %s, want untouched ready", got)
	}
}

func TestProcessDueTargetsHaltGate(t *testing.T) {
	client := mexc.NewMockClient()
	store := newFakeStore()
	store.addTarget(testTarget(1))
	exec, _, _, ctl := newTestExecutor(t, client, store)
	ctl.Halt("manual stop")

	batch, err := exec.ProcessDueTargets(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if batch.Processed != 0 {
		t.Fatalf("halted engine processed %d targets", batch.Processed)
	}
	if len(client.PlacedOrders()) != 0 {
		t.Error("halted engine must not place orders")
	}
}

func TestExecuteTargetStaticFallbackWhenBalanceUnavailable(t *testing.T) {
	client := mexc.NewMockClient()
	client.SetBalanceError(errors.New("service unavailable"))
	store := newFakeStore()
	store.addTarget(testTarget(1))
	exec, _, _, _ := newTestExecutor(t, client, store)

	res := exec.ExecuteTarget(context.Background(), 1, "user-1")
	if !res.Success {
		t.Fatalf("expected success on static fallback, got %+v", res)
	}
	if len(client.PlacedOrders()) != 1 {
		t.Fatal("expected one order")
	}
	if got := client.PlacedOrders()[0].QuoteOrderQty; got != 100 {
		t.Errorf("quote qty = %v, want the static 100", got)
	}
}
