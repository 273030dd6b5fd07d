package poller

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/rofex-data/internal/api"
	"github.com/rickgao/rofex-data/internal/ledger"
	"github.com/rickgao/rofex-data/internal/model"
	"github.com/rickgao/rofex-data/internal/router"
)

// fakeSource returns fixed executions or an error.
type fakeSource struct {
	mu    sync.Mutex
	execs []model.Execution
	err   error
	calls int
}

func (f *fakeSource) FetchFilledExecutions(ctx context.Context, account string) ([]model.Execution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.execs, f.err
}

// fakeLedger records every batch and fails while err is set.
type fakeLedger struct {
	mu      sync.Mutex
	batches [][]model.Execution
	err     error
}

func (f *fakeLedger) Reconcile(ctx context.Context, batch []model.Execution) (ledger.MergeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return ledger.MergeResult{Errors: 1}, f.err
	}
	f.batches = append(f.batches, append([]model.Execution(nil), batch...))
	return ledger.MergeResult{Inserted: len(batch)}, nil
}

func (f *fakeLedger) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeLedger) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, b := range f.batches {
		for _, e := range b {
			out = append(out, e.ExecutionID)
		}
	}
	return out
}

func execs(ids ...string) []model.Execution {
	out := make([]model.Execution, len(ids))
	for i, id := range ids {
		out[i] = model.Execution{ExecutionID: id, OrderID: "O" + id, Account: "A1"}
	}
	return out
}

// tableSink is an in-memory ledger.Sink.
type tableSink struct {
	mu   sync.Mutex
	rows []model.Execution
}

func (s *tableSink) ReadAll(ctx context.Context) ([]model.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Execution(nil), s.rows...), nil
}

func (s *tableSink) WriteAll(ctx context.Context, rows []model.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append([]model.Execution(nil), rows...)
	return nil
}

func fill(id string, filled int64, at time.Time, source string) model.Execution {
	return model.Execution{
		ExecutionID: id,
		OrderID:     "O1",
		Account:     "A1",
		Symbol:      "MERV - XMEV - GGAL - 48hs",
		Side:        model.SideBuy,
		Quantity:    decimal.NewFromInt(100),
		Price:       decimal.NewFromInt(1500),
		FilledQty:   decimal.NewFromInt(filled),
		Status:      model.StatusPartiallyFilled,
		Source:      source,
		EventTime:   at,
	}
}

func pushQueue(ids ...string) *router.GrowableBuffer[model.Execution] {
	buf := router.NewGrowableBuffer[model.Execution](16)
	for _, e := range execs(ids...) {
		buf.Send(e)
	}
	return buf
}

func TestScheduler_RunCycleChunks(t *testing.T) {
	source := &fakeSource{execs: execs("R1", "R2", "R3")}
	led := &fakeLedger{}
	s := New(Config{BatchSize: 2, Account: "A1"}, source, pushQueue("P1", "P2"), led, nil)

	res, err := s.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if res.Pushed != 2 || res.Fetched != 3 || res.Chunks != 3 {
		t.Errorf("RunCycle() = %+v, want pushed 2, fetched 3, chunks 3", res)
	}
	if res.Result.Inserted != 5 {
		t.Errorf("Inserted = %d, want 5", res.Result.Inserted)
	}
	if res.ID == "" {
		t.Error("cycle id is empty")
	}

	got := led.ids()
	want := []string{"P1", "P2", "R1", "R2", "R3"}
	if len(got) != len(want) {
		t.Fatalf("reconciled %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("reconciled[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestScheduler_FetchErrorStillReconcilesPushed(t *testing.T) {
	source := &fakeSource{err: errors.New("gateway timeout")}
	led := &fakeLedger{}
	s := New(Config{BatchSize: 10}, source, pushQueue("P1"), led, nil)

	res, err := s.RunCycle(context.Background())
	if err == nil {
		t.Fatal("RunCycle() error = nil, want fetch error")
	}
	if res.Result.Inserted != 1 {
		t.Errorf("Inserted = %d, want 1", res.Result.Inserted)
	}

	st := s.Stats()
	if st.FetchErrors != 1 || st.Failures != 1 || st.Cycles != 1 {
		t.Errorf("Stats = %+v", st)
	}
}

func TestScheduler_RetriesAfterLedgerFailure(t *testing.T) {
	led := &fakeLedger{err: errors.New("sink down")}
	push := pushQueue("P1", "P2")
	s := New(Config{BatchSize: 10}, nil, push, led, nil)

	if _, err := s.RunCycle(context.Background()); err == nil {
		t.Fatal("RunCycle() error = nil, want ledger error")
	}
	if got := s.Stats().Pending; got != 2 {
		t.Fatalf("Pending = %d, want 2", got)
	}

	led.setErr(nil)
	push.Send(execs("P3")[0])

	if _, err := s.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	got := led.ids()
	want := []string{"P1", "P2", "P3"}
	if len(got) != len(want) {
		t.Fatalf("reconciled %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("reconciled[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	if s.Stats().Pending != 0 {
		t.Errorf("Pending = %d after success, want 0", s.Stats().Pending)
	}
}

func TestScheduler_PendingIsBounded(t *testing.T) {
	led := &fakeLedger{err: errors.New("sink down")}
	s := New(Config{BatchSize: 10, MaxPending: 2}, nil, pushQueue("P1", "P2", "P3"), led, nil)

	s.RunCycle(context.Background())

	st := s.Stats()
	if st.Pending != 2 || st.DroppedRetry != 1 {
		t.Errorf("Pending/DroppedRetry = %d/%d, want 2/1", st.Pending, st.DroppedRetry)
	}
}

func TestScheduler_DisabledRESTSkipsFetch(t *testing.T) {
	source := &fakeSource{execs: execs("R1")}
	s := New(Config{DisableREST: true}, source, nil, &fakeLedger{}, nil)

	res, err := s.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if source.calls != 0 || res.Chunks != 0 {
		t.Errorf("calls = %d, chunks = %d, want 0, 0", source.calls, res.Chunks)
	}
}

func TestScheduler_TriggerCoalesces(t *testing.T) {
	s := New(DefaultConfig(), nil, nil, &fakeLedger{}, nil)

	s.Trigger()
	s.Trigger()
	s.Trigger()

	if got := len(s.trigger); got != 1 {
		t.Errorf("pending triggers = %d, want 1", got)
	}
}

func TestScheduler_StartRunsOnPush(t *testing.T) {
	led := &fakeLedger{}
	push := router.NewGrowableBuffer[model.Execution](16)
	s := New(Config{Interval: time.Hour, BatchSize: 10}, nil, push, led, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	push.Send(execs("P1")[0])

	deadline := time.Now().Add(2 * time.Second)
	for len(led.ids()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := led.ids(); len(got) != 1 || got[0] != "P1" {
		t.Errorf("reconciled %v, want [P1]", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestScheduler_WithRESTClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/order/filleds" || r.URL.Query().Get("accountId") != "REM1" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"OK","orders":[
			{"orderId":"O1","execId":"E1","accountId":{"id":"REM1"},"instrumentId":{"symbol":"GGAL"},
			 "orderQty":"10","cumQty":"10","side":"BUY","ordStatus":"FILLED","transactTime":"20260115-10:00:00"},
			{"orderId":"O2","execId":"E2","accountId":{"id":"REM1"},"instrumentId":{"symbol":"GGAL"},
			 "orderQty":"10","side":"BUY","ordStatus":"NEW","transactTime":"20260115-10:00:01"}
		]}`))
	}))
	defer server.Close()

	client := api.NewClient(server.URL, nil, api.WithTimeout(5*time.Second))
	led := &fakeLedger{}
	s := New(Config{Account: "REM1", BatchSize: 10}, client, nil, led, nil)

	res, err := s.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if res.Fetched != 1 {
		t.Errorf("Fetched = %d, want 1 (NEW order filtered)", res.Fetched)
	}
	if got := led.ids(); len(got) != 1 || got[0] != "E1" {
		t.Errorf("reconciled %v, want [E1]", got)
	}
}

func TestScheduler_ChunksKeepNewestDuplicate(t *testing.T) {
	t0 := time.Date(2026, 1, 15, 14, 0, 0, 0, time.UTC)
	sink := &tableSink{}
	led := ledger.New(ledger.Config{}, sink, nil)

	push := router.NewGrowableBuffer[model.Execution](4)
	push.Send(fill("E1", 20, t0.Add(time.Minute), model.SourceStream))
	source := &fakeSource{execs: []model.Execution{fill("E1", 10, t0, model.SourceREST)}}

	s := New(Config{BatchSize: 1, Account: "A1"}, source, push, led, nil)
	res, err := s.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if res.Chunks != 1 {
		t.Errorf("Chunks = %d, want 1", res.Chunks)
	}

	if len(sink.rows) != 1 {
		t.Fatalf("ledger rows = %d, want 1", len(sink.rows))
	}
	got := sink.rows[0]
	if !got.FilledQty.Equal(decimal.NewFromInt(20)) {
		t.Errorf("FilledQty = %s, want 20", got.FilledQty)
	}
	if got.UpdateCount != 0 || got.Superseded {
		t.Errorf("UpdateCount/Superseded = %d/%v, want 0/false", got.UpdateCount, got.Superseded)
	}
}

func TestScheduler_StopReconcilesLatePushes(t *testing.T) {
	led := &fakeLedger{}
	source := &fakeSource{}
	push := router.NewGrowableBuffer[model.Execution](16)
	s := New(Config{Interval: time.Hour, BatchSize: 10}, source, push, led, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for s.Stats().Cycles == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	s.cancel()
	s.wg.Wait()

	push.Send(execs("P9")[0])

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if got := led.ids(); len(got) != 1 || got[0] != "P9" {
		t.Errorf("reconciled %v, want [P9]", got)
	}
	source.mu.Lock()
	calls := source.calls
	source.mu.Unlock()
	if calls != 1 {
		t.Errorf("fetch calls = %d, want 1 (final pass skips REST)", calls)
	}
}

func TestScheduler_StopWithNothingPendingSkipsCycle(t *testing.T) {
	led := &fakeLedger{}
	s := New(Config{DisableREST: true}, nil, router.NewGrowableBuffer[model.Execution](4), led, nil)

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if got := s.Stats().Cycles; got != 0 {
		t.Errorf("Cycles = %d, want 0", got)
	}
}
