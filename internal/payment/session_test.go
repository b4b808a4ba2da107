package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/farellandr/schoolfees/internal/gateway"
	"github.com/farellandr/schoolfees/internal/ledger"
	"github.com/farellandr/schoolfees/internal/models"
	"github.com/farellandr/schoolfees/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []clockWaiter
}

type clockWaiter struct {
	at time.Time
	ch chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 10, 1, 9, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- f.now
		return ch
	}
	f.waiters = append(f.waiters, clockWaiter{at: f.now.Add(d), ch: ch})
	return ch
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
	pending := f.waiters[:0]
	for _, w := range f.waiters {
		if !w.at.After(f.now) {
			w.ch <- f.now
			continue
		}
		pending = append(pending, w)
	}
	f.waiters = pending
}

func (f *fakeClock) waiting() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.waiters)
}

type fakeIssuer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeIssuer) GenerateReference(_ context.Context, req gateway.ReferenceRequest) (*gateway.PaymentReference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &gateway.PaymentReference{
		RRR:     fmt.Sprintf("RRR-%d", f.calls),
		Amount:  req.Amount,
		OrderID: fmt.Sprintf("SCH_test_%d", f.calls),
		Status:  gateway.StatusIssued,
	}, nil
}

type probeResult struct {
	out *gateway.VerificationOutcome
	err error
}

type scriptedVerifier struct {
	mu       sync.Mutex
	script   []probeResult
	fallback probeResult
	delay    time.Duration
	calls    atomic.Int32

	// gate, when set, holds every check until it is closed.
	gate      chan struct{}
	cancelled atomic.Bool
}

func (v *scriptedVerifier) Verify(ctx context.Context, rrr string) (*gateway.VerificationOutcome, error) {
	v.calls.Add(1)
	if v.delay > 0 {
		time.Sleep(v.delay)
	}
	if v.gate != nil {
		<-v.gate
	}
	if ctx.Err() != nil {
		v.cancelled.Store(true)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	next := v.fallback
	if len(v.script) > 0 {
		next = v.script[0]
		v.script = v.script[1:]
	}
	return next.out, next.err
}

func (v *scriptedVerifier) setFallback(r probeResult) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.fallback = r
}

func confirmed(amount int64) probeResult {
	return probeResult{out: &gateway.VerificationOutcome{Outcome: gateway.OutcomeConfirmed, Code: "00", Message: "Payment Successful", Amount: amount, Raw: []byte(`{"status":"00"}`)}}
}

func pending() probeResult {
	return probeResult{out: &gateway.VerificationOutcome{Outcome: gateway.OutcomePending, Code: "021", Message: "Transaction Pending"}}
}

func failed(code, msg string) probeResult {
	return probeResult{out: &gateway.VerificationOutcome{Outcome: gateway.OutcomeFailed, Code: code, Message: msg}}
}

func transportErr() probeResult {
	return probeResult{err: &gateway.VerificationError{Reference: "x", Message: "failed to verify payment", Err: errors.New("connection refused")}}
}

type fixture struct {
	store    *store.MemoryStore
	clock    *fakeClock
	issuer   *fakeIssuer
	verifier *scriptedVerifier
	manager  *Manager
	parent   *models.User
	alice    *models.Student
	bob      *models.Student

	completed atomic.Int32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		store:    store.NewMemoryStore(),
		clock:    newFakeClock(),
		issuer:   &fakeIssuer{},
		verifier: &scriptedVerifier{},
	}

	f.parent = &models.User{ID: uuid.New(), Email: "parent@demo.com", FullName: "John Doe", Role: models.Role{Name: models.RoleParent}}
	f.store.AddUser(*f.parent)

	f.alice = &models.Student{Name: "Alice Doe", Class: "Primary 6A", Session: "2024/2025", Term: "First Term", TotalFees: 120000, ParentID: &f.parent.ID}
	f.bob = &models.Student{Name: "Bob Doe", Class: "Primary 5B", Session: "2024/2025", Term: "First Term", TotalFees: 120000, ParentID: &f.parent.ID}
	require.NoError(t, f.store.CreateStudent(ctx, f.alice))
	require.NoError(t, f.store.CreateStudent(ctx, f.bob))

	f.manager = NewManager(f.store, f.issuer, f.verifier, ledger.NewReconciler(f.store), ManagerConfig{
		WidgetPublicKey: "pk_test",
		Clock:           f.clock,
	})
	f.manager.OnComplete(func(Snapshot) { f.completed.Add(1) })
	t.Cleanup(f.manager.Stop)
	return f
}

// verifying drives a fresh single-student session to the verifying state.
func (f *fixture) verifying(t *testing.T) *Session {
	t.Helper()
	s := f.issued(t, f.alice.ID)
	launch, err := s.LaunchWidget()
	require.NoError(t, err)
	require.NoError(t, s.WidgetSucceeded(launch.Attempt))
	return s
}

func (f *fixture) issued(t *testing.T, ids ...uuid.UUID) *Session {
	t.Helper()
	s, err := f.manager.Open(context.Background(), f.parent, OpenRequest{StudentIDs: ids})
	require.NoError(t, err)
	_, err = s.Generate(context.Background())
	require.NoError(t, err)
	return s
}

func (f *fixture) waitForTimer(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool { return f.clock.waiting() == 1 }, 2*time.Second, time.Millisecond)
}

func waitForState(t *testing.T, s *Session, want State) Snapshot {
	t.Helper()
	require.Eventually(t, func() bool { return s.Snapshot().State == want }, 2*time.Second, time.Millisecond)
	return s.Snapshot()
}

func (f *fixture) student(t *testing.T, id uuid.UUID) *models.Student {
	t.Helper()
	st, err := f.store.GetStudent(context.Background(), id)
	require.NoError(t, err)
	return st
}

func TestSession_ConfirmedOnFirstProbe(t *testing.T) {
	f := newFixture(t)
	f.verifier.setFallback(confirmed(120000))

	s := f.verifying(t)
	snap := waitForState(t, s, StateComplete)

	require.Len(t, snap.Payments, 1)
	assert.Equal(t, "RRR-1", snap.Payments[0].TransactionID)
	assert.Equal(t, int64(120000), snap.Payments[0].Amount)
	assert.Equal(t, f.parent.ID, *snap.Payments[0].PayerID)
	assert.Nil(t, snap.Err)

	alice := f.student(t, f.alice.ID)
	assert.Equal(t, int64(120000), alice.AmountPaid)
	assert.Equal(t, models.StudentStatusPaid, alice.PaymentStatus)
	assert.Eventually(t, func() bool { return f.completed.Load() == 1 }, time.Second, time.Millisecond)
}

func TestSession_PendingThenConfirmed(t *testing.T) {
	f := newFixture(t)
	f.verifier.script = []probeResult{pending(), pending()}
	f.verifier.setFallback(confirmed(0))

	s := f.verifying(t)

	for i := 0; i < 2; i++ {
		f.waitForTimer(t)
		assert.Equal(t, StateVerifying, s.Snapshot().State)
		assert.ErrorIs(t, s.Snapshot().Err, ErrPaymentPending)
		f.clock.Advance(5 * time.Second)
	}

	snap := waitForState(t, s, StateComplete)
	assert.Equal(t, 3, snap.VerificationAttempts)
	assert.Equal(t, int32(3), f.verifier.calls.Load())

	// No settled amount reported: the requested amount stands.
	assert.Equal(t, int64(120000), f.student(t, f.alice.ID).AmountPaid)
}

func TestSession_PendingUntilCeiling(t *testing.T) {
	f := newFixture(t)
	f.verifier.setFallback(pending())

	s := f.verifying(t)
	for i := 0; i < 24; i++ {
		f.waitForTimer(t)
		f.clock.Advance(5 * time.Second)
	}

	snap := waitForState(t, s, StateInitial)
	assert.ErrorIs(t, snap.Err, ErrVerificationTimeout)
	require.NotNil(t, snap.Reference, "reference kept for manual verification")
	assert.Equal(t, "RRR-1", snap.Reference.RRR)
	assert.Equal(t, 25, snap.VerificationAttempts)
	assert.Equal(t, int64(0), f.student(t, f.alice.ID).AmountPaid)

	f.verifier.setFallback(confirmed(120000))
	snap, err := s.VerifyNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateComplete, snap.State)
	assert.Equal(t, int64(120000), f.student(t, f.alice.ID).AmountPaid)
}

func TestSession_TransportErrorsDiscardReference(t *testing.T) {
	f := newFixture(t)
	f.verifier.setFallback(transportErr())

	s := f.verifying(t)
	for i := 0; i < 2; i++ {
		f.waitForTimer(t)
		assert.Equal(t, StateVerifying, s.Snapshot().State)
		f.clock.Advance(3 * time.Second)
	}

	snap := waitForState(t, s, StateInitial)
	assert.Nil(t, snap.Reference)
	assert.Equal(t, 3, snap.VerificationAttempts)

	var verr *gateway.VerificationError
	require.True(t, errors.As(snap.Err, &verr))
	assert.Equal(t, "RRR-1", verr.Reference)
	assert.Equal(t, int32(3), f.verifier.calls.Load())
}

func TestSession_TransportErrorThenConfirmed(t *testing.T) {
	f := newFixture(t)
	f.verifier.script = []probeResult{transportErr(), pending(), transportErr(), transportErr()}
	f.verifier.setFallback(confirmed(120000))

	s := f.verifying(t)
	for _, wait := range []time.Duration{3 * time.Second, 5 * time.Second, 3 * time.Second, 3 * time.Second} {
		f.waitForTimer(t)
		f.clock.Advance(wait)
	}

	// The pending probe resets the consecutive error count.
	waitForState(t, s, StateComplete)
}

func TestSession_RejectedPayment(t *testing.T) {
	f := newFixture(t)
	f.verifier.setFallback(failed("02", "Transaction Failed"))

	s := f.verifying(t)
	snap := waitForState(t, s, StateInitial)

	assert.Nil(t, snap.Reference)
	assert.ErrorIs(t, snap.Err, ErrPaymentRejected)
	var rerr *RejectedError
	require.True(t, errors.As(snap.Err, &rerr))
	assert.Equal(t, "Transaction Failed", rerr.Message)
	assert.Equal(t, int64(0), f.student(t, f.alice.ID).AmountPaid)

	ref, err := s.Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "RRR-2", ref.RRR)
	assert.Equal(t, StateReferenceIssued, s.Snapshot().State)
}

func TestSession_WidgetCallbacks(t *testing.T) {
	f := newFixture(t)
	s := f.issued(t, f.alice.ID)

	assert.ErrorIs(t, s.WidgetSucceeded(1), ErrInvalidTransition, "no widget launched yet")

	launch, err := s.LaunchWidget()
	require.NoError(t, err)
	assert.Equal(t, 1, launch.Attempt)
	assert.Equal(t, "RRR-1", launch.Reference)
	assert.Equal(t, "pk_test", launch.PublicKey)
	assert.Equal(t, int64(120000), launch.Amount)

	_, err = s.LaunchWidget()
	assert.ErrorIs(t, err, ErrInvalidTransition)

	assert.ErrorIs(t, s.WidgetClosed(7), ErrInvalidTransition)
	require.NoError(t, s.WidgetClosed(1))
	snap := s.Snapshot()
	assert.Equal(t, StateReferenceIssued, snap.State)
	assert.ErrorIs(t, snap.Err, ErrWidgetCancelled)

	assert.ErrorIs(t, s.WidgetSucceeded(1), ErrInvalidTransition, "attempt already settled")

	launch, err = s.LaunchWidget()
	require.NoError(t, err)
	assert.Equal(t, 2, launch.Attempt)
	assert.Equal(t, "RRR-1", launch.Reference, "same reference is reused")

	assert.ErrorIs(t, s.WidgetSucceeded(1), ErrInvalidTransition, "stale attempt")
	require.NoError(t, s.WidgetFailed(2, "card declined"))
	assert.ErrorIs(t, s.WidgetClosed(2), ErrInvalidTransition)

	snap = s.Snapshot()
	assert.Equal(t, StateReferenceIssued, snap.State)
	assert.Equal(t, "RRR-1", snap.Reference.RRR)
	var werr *WidgetError
	require.True(t, errors.As(snap.Err, &werr))
	assert.Equal(t, "card declined", werr.Message)
	assert.Equal(t, int32(0), f.verifier.calls.Load())
}

func TestSession_GenerateFailureStaysInitial(t *testing.T) {
	f := newFixture(t)
	f.issuer.err = &gateway.GatewayError{Message: "Invalid hash", CorrelationID: "SCH_x", StatusCode: "012"}

	s, err := f.manager.Open(context.Background(), f.parent, OpenRequest{StudentIDs: []uuid.UUID{f.alice.ID}})
	require.NoError(t, err)

	_, err = s.Generate(context.Background())
	var gerr *gateway.GatewayError
	require.True(t, errors.As(err, &gerr))

	snap := s.Snapshot()
	assert.Equal(t, StateInitial, snap.State)
	assert.Nil(t, snap.Reference)
	assert.Equal(t, err, snap.Err)

	_, err = s.VerifyNow(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTransition, "nothing to verify without a reference")

	f.issuer.err = nil
	_, err = s.Generate(context.Background())
	require.NoError(t, err)

	_, err = s.Generate(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSession_ManualVerifyPendingLeavesState(t *testing.T) {
	f := newFixture(t)
	f.verifier.setFallback(pending())
	s := f.issued(t, f.alice.ID)

	snap, err := s.VerifyNow(context.Background())
	assert.ErrorIs(t, err, ErrPaymentPending)
	assert.Equal(t, StateReferenceIssued, snap.State)

	f.verifier.setFallback(transportErr())
	snap, err = s.VerifyNow(context.Background())
	var verr *gateway.VerificationError
	assert.True(t, errors.As(err, &verr))
	assert.Equal(t, StateReferenceIssued, snap.State)
	assert.NotNil(t, snap.Reference)

	f.verifier.setFallback(failed("023", "Invalid RRR"))
	snap, err = s.VerifyNow(context.Background())
	assert.ErrorIs(t, err, ErrPaymentRejected)
	assert.Equal(t, StateInitial, snap.State)
	assert.Nil(t, snap.Reference)
}

func TestSession_ConcurrentManualVerifyReconcilesOnce(t *testing.T) {
	f := newFixture(t)
	f.verifier.delay = 20 * time.Millisecond
	f.verifier.setFallback(confirmed(120000))
	s := f.issued(t, f.alice.ID)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := s.VerifyNow(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, StateComplete, snap.State)
		}()
	}
	wg.Wait()

	payments, total, err := f.store.ListPayments(context.Background(), store.PaymentFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, payments, 1)
	assert.Equal(t, int64(120000), f.student(t, f.alice.ID).AmountPaid)
	assert.Equal(t, int32(1), f.completed.Load())
}

func TestSession_ManualAndAutomaticVerifyRace(t *testing.T) {
	f := newFixture(t)
	f.verifier.delay = 10 * time.Millisecond
	f.verifier.setFallback(confirmed(120000))

	s := f.verifying(t)
	_, err := s.VerifyNow(context.Background())
	require.NoError(t, err)
	waitForState(t, s, StateComplete)
	s.wait()

	sum, err := f.store.SumCompletedPayments(context.Background(), f.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(120000), sum)
	assert.Equal(t, int64(120000), f.student(t, f.alice.ID).AmountPaid)
}

func TestSession_AbandonStopsLoop(t *testing.T) {
	f := newFixture(t)
	f.verifier.setFallback(pending())

	s := f.verifying(t)
	f.waitForTimer(t)

	require.NoError(t, s.Abandon())
	assert.Equal(t, StateAbandoned, s.Snapshot().State)
	calls := f.verifier.calls.Load()

	f.clock.Advance(time.Minute)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, calls, f.verifier.calls.Load())

	_, err := s.VerifyNow(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = s.Generate(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.NoError(t, s.Abandon())
}

func TestSession_CompleteCannotBeAbandoned(t *testing.T) {
	f := newFixture(t)
	f.verifier.setFallback(confirmed(120000))
	s := f.issued(t, f.alice.ID)

	_, err := s.VerifyNow(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, s.Abandon(), ErrInvalidTransition)

	snap, err := s.VerifyNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateComplete, snap.State)
	assert.Equal(t, int32(1), f.verifier.calls.Load())
}

func TestSession_BulkDistributesSettledAmount(t *testing.T) {
	f := newFixture(t)
	f.verifier.setFallback(confirmed(200000))

	s := f.issued(t, f.alice.ID, f.bob.ID)
	assert.Equal(t, int64(240000), s.Total())
	assert.Equal(t, int64(240000), s.Snapshot().Reference.Amount)

	snap, err := s.VerifyNow(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Payments, 2)
	assert.Equal(t, snap.Payments[0].ReceiptNumber, snap.Payments[1].ReceiptNumber)

	alice := f.student(t, f.alice.ID)
	bob := f.student(t, f.bob.ID)
	assert.Equal(t, int64(120000), alice.AmountPaid)
	assert.Equal(t, models.StudentStatusPaid, alice.PaymentStatus)
	assert.Equal(t, int64(80000), bob.AmountPaid)
	assert.Equal(t, models.StudentStatusPartial, bob.PaymentStatus)
}

func TestDistribute(t *testing.T) {
	a := Allocation{StudentID: uuid.New(), Amount: 100}
	b := Allocation{StudentID: uuid.New(), Amount: 50}

	tests := []struct {
		name    string
		settled int64
		want    []int64
	}{
		{"unreported", 0, []int64{100, 50}},
		{"exact", 150, []int64{100, 50}},
		{"short", 120, []int64{100, 20}},
		{"first only", 80, []int64{80}},
		{"over", 200, []int64{100, 100}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := distribute(tt.settled, []Allocation{a, b})
			amounts := make([]int64, len(got))
			for i, g := range got {
				amounts[i] = g.Amount
			}
			assert.Equal(t, tt.want, amounts)
		})
	}
}

func TestManager_OpenValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.Open(ctx, f.parent, OpenRequest{StudentIDs: []uuid.UUID{f.alice.ID}, Amount: 130000})
	var verr *gateway.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "amount", verr.Field)

	_, err = f.manager.Open(ctx, f.parent, OpenRequest{StudentIDs: []uuid.UUID{f.alice.ID, f.alice.ID}})
	assert.True(t, errors.As(err, &verr))

	_, err = f.manager.Open(ctx, f.parent, OpenRequest{})
	assert.True(t, errors.As(err, &verr))

	stranger := &models.Student{Name: "Eve", Class: "JSS 1A", TotalFees: 1000}
	require.NoError(t, f.store.CreateStudent(ctx, stranger))
	_, err = f.manager.Open(ctx, f.parent, OpenRequest{StudentIDs: []uuid.UUID{stranger.ID}})
	assert.ErrorIs(t, err, store.ErrNotFound)

	admin := &models.User{ID: uuid.New(), Role: models.Role{Name: models.RoleAdmin}}
	_, err = f.manager.Open(ctx, admin, OpenRequest{StudentIDs: []uuid.UUID{f.alice.ID}})
	assert.True(t, errors.As(err, &verr))

	s, err := f.manager.Open(ctx, f.parent, OpenRequest{StudentIDs: []uuid.UUID{f.alice.ID}, Amount: 50000})
	require.NoError(t, err)
	assert.Equal(t, int64(50000), s.Total())
	assert.Equal(t, StateInitial, s.Snapshot().State)
}

func TestManager_OwnershipAndReaping(t *testing.T) {
	f := newFixture(t)
	f.verifier.setFallback(pending())

	s := f.issued(t, f.alice.ID)
	_, err := f.manager.Get(s.ID, uuid.New())
	assert.ErrorIs(t, err, ErrSessionNotFound)

	got, err := f.manager.Get(s.ID, f.parent.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	assert.Equal(t, 0, f.manager.ReapIdle())
	f.clock.Advance(31 * time.Minute)
	assert.Equal(t, 1, f.manager.ReapIdle())
	assert.Equal(t, 0, f.manager.Len())
	assert.Equal(t, StateAbandoned, s.Snapshot().State)

	_, err = f.manager.Get(s.ID, f.parent.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManager_Discard(t *testing.T) {
	f := newFixture(t)
	f.verifier.setFallback(pending())
	s := f.verifying(t)
	f.waitForTimer(t)

	assert.ErrorIs(t, f.manager.Discard(s.ID, uuid.New()), ErrSessionNotFound)
	require.NoError(t, f.manager.Discard(s.ID, f.parent.ID))
	assert.Equal(t, StateAbandoned, s.Snapshot().State)
	assert.Equal(t, 0, f.manager.Len())
}

func TestSession_ManualCallerLeavingDoesNotFailSharedCheck(t *testing.T) {
	f := newFixture(t)
	f.verifier.gate = make(chan struct{})
	f.verifier.setFallback(confirmed(120000))

	s := f.issued(t, f.alice.ID)
	launch, err := s.LaunchWidget()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	manual := make(chan error, 1)
	go func() {
		_, err := s.VerifyNow(ctx)
		manual <- err
	}()
	require.Eventually(t, func() bool { return f.verifier.calls.Load() == 1 }, 2*time.Second, time.Millisecond)

	require.NoError(t, s.WidgetSucceeded(launch.Attempt))
	cancel()
	select {
	case err := <-manual:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("manual verify did not return after its caller left")
	}

	close(f.verifier.gate)
	waitForState(t, s, StateComplete)
	assert.False(t, f.verifier.cancelled.Load())
	assertPaid(t, f, 120000)
}

func TestSession_AbandonDoesNotWaitForSlowCheck(t *testing.T) {
	f := newFixture(t)
	f.verifier.gate = make(chan struct{})
	defer close(f.verifier.gate)
	f.verifier.setFallback(pending())

	s := f.verifying(t)
	require.Eventually(t, func() bool { return f.verifier.calls.Load() == 1 }, 2*time.Second, time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- s.Abandon() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("abandon blocked on an in-flight status check")
	}
	assert.Equal(t, StateAbandoned, s.Snapshot().State)
}

func assertPaid(t *testing.T, f *fixture, amount int64) {
	t.Helper()
	alice := f.student(t, f.alice.ID)
	assert.Equal(t, amount, alice.AmountPaid)
}
