// Package payment drives a fee payment from reference issuance through the
// hosted widget to a confirmed, reconciled settlement.
package payment

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/farellandr/schoolfees/internal/gateway"
	"github.com/farellandr/schoolfees/internal/ledger"
	"github.com/farellandr/schoolfees/internal/models"
	"github.com/farellandr/schoolfees/internal/receipt"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

type State string

const (
	StateInitial         State = "initial"
	StateReferenceIssued State = "reference_issued"
	StateAwaitingWidget  State = "awaiting_widget_outcome"
	StateVerifying       State = "verifying"
	StateComplete        State = "complete"
	StateAbandoned       State = "abandoned"
)

type ReferenceIssuer interface {
	GenerateReference(ctx context.Context, req gateway.ReferenceRequest) (*gateway.PaymentReference, error)
}

type StatusVerifier interface {
	Verify(ctx context.Context, rrr string) (*gateway.VerificationOutcome, error)
}

type Reconciler interface {
	ApplyConfirmedPayment(ctx context.Context, cp ledger.ConfirmedPayment) (*models.Payment, error)
}

// Allocation is the part of a session's total meant for one student.
type Allocation struct {
	StudentID   uuid.UUID `json:"student_id"`
	StudentName string    `json:"student_name"`
	Amount      int64     `json:"amount"`
}

type Payer struct {
	ID    uuid.UUID
	Name  string
	Email string
	Phone string
}

type WidgetLaunch struct {
	Reference string `json:"rrr"`
	PublicKey string `json:"public_key"`
	Attempt   int    `json:"attempt"`
	Amount    int64  `json:"amount"`
	Payer     string `json:"payer_name"`
	Email     string `json:"payer_email"`
}

// Snapshot is a point-in-time copy of a session for callers outside the package.
type Snapshot struct {
	ID                   uuid.UUID                 `json:"id"`
	OwnerID              uuid.UUID                 `json:"owner_id"`
	State                State                     `json:"state"`
	Reference            *gateway.PaymentReference `json:"reference,omitempty"`
	Allocations          []Allocation              `json:"allocations"`
	Total                int64                     `json:"total"`
	VerificationAttempts int                       `json:"verification_attempts"`
	WidgetAttempt        int                       `json:"widget_attempt"`
	LastError            string                    `json:"last_error,omitempty"`
	Payments             []models.Payment          `json:"payments,omitempty"`
	UpdatedAt            time.Time                 `json:"updated_at"`

	Err error `json:"-"`
}

type sessionDeps struct {
	issuer     ReferenceIssuer
	verifier   StatusVerifier
	reconciler Reconciler
	probes     *singleflight.Group
	clock      Clock
	policy     Policy
	publicKey  string
	onComplete func(Snapshot)
}

// Session is one payment attempt. All methods are safe for concurrent use;
// state changes happen under mu and at most one verification loop runs.
type Session struct {
	ID          uuid.UUID
	payer       Payer
	allocations []Allocation
	description string
	deps        sessionDeps

	mu            sync.Mutex
	state         State
	reference     *gateway.PaymentReference
	generating    bool
	attempts      int
	lastErr       error
	widgetAttempt int
	widgetSettled bool
	payments      []models.Payment
	lastActivity  time.Time

	loopCancel context.CancelFunc
	loopDone   chan struct{}
}

func newSession(payer Payer, allocations []Allocation, description string, deps sessionDeps) *Session {
	deps.policy = deps.policy.withDefaults()
	if deps.clock == nil {
		deps.clock = realClock{}
	}
	if deps.probes == nil {
		deps.probes = &singleflight.Group{}
	}
	return &Session{
		ID:           uuid.New(),
		payer:        payer,
		allocations:  append([]Allocation(nil), allocations...),
		description:  description,
		deps:         deps,
		state:        StateInitial,
		lastActivity: deps.clock.Now(),
	}
}

func (s *Session) Total() int64 {
	var total int64
	for _, a := range s.allocations {
		total += a.Amount
	}
	return total
}

func (s *Session) OwnerID() uuid.UUID { return s.payer.ID }

func (s *Session) touchLocked() {
	s.lastActivity = s.deps.clock.Now()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:                   s.ID,
		OwnerID:              s.payer.ID,
		State:                s.state,
		Allocations:          append([]Allocation(nil), s.allocations...),
		Total:                s.Total(),
		VerificationAttempts: s.attempts,
		WidgetAttempt:        s.widgetAttempt,
		Payments:             append([]models.Payment(nil), s.payments...),
		UpdatedAt:            s.lastActivity,
		Err:                  s.lastErr,
	}
	if s.reference != nil {
		ref := *s.reference
		snap.Reference = &ref
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	return snap
}

// Generate requests a new reference for the session total. On failure the
// session stays in the initial state with the error recorded.
func (s *Session) Generate(ctx context.Context) (*gateway.PaymentReference, error) {
	s.mu.Lock()
	if s.state != StateInitial || s.generating {
		err := &TransitionError{Op: "generate a reference", State: s.state}
		s.mu.Unlock()
		return nil, err
	}
	if err := s.validateLocked(); err != nil {
		s.lastErr = err
		s.mu.Unlock()
		return nil, err
	}
	s.generating = true
	s.touchLocked()
	req := s.referenceRequest()
	s.mu.Unlock()

	ref, err := s.deps.issuer.GenerateReference(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.generating = false
	s.touchLocked()

	if s.state != StateInitial {
		return nil, &TransitionError{Op: "generate a reference", State: s.state}
	}
	if err != nil {
		log.Printf("[PAYMENT] session %s: reference generation failed: %v", s.ID, err)
		s.lastErr = err
		return nil, err
	}

	s.reference = ref
	s.state = StateReferenceIssued
	s.attempts = 0
	s.lastErr = nil
	log.Printf("[PAYMENT] session %s: reference %s issued for %d", s.ID, ref.RRR, ref.Amount)

	out := *ref
	return &out, nil
}

func (s *Session) validateLocked() error {
	if len(s.allocations) == 0 {
		return &gateway.ValidationError{Field: "students", Message: "at least one student is required"}
	}
	for _, a := range s.allocations {
		if a.Amount <= 0 {
			return &gateway.ValidationError{Field: "amount", Message: "must be greater than 0"}
		}
	}
	return nil
}

func (s *Session) referenceRequest() gateway.ReferenceRequest {
	req := gateway.ReferenceRequest{
		Amount:      s.Total(),
		PayerName:   s.payer.Name,
		PayerEmail:  s.payer.Email,
		PayerPhone:  s.payer.Phone,
		Description: s.description,
	}
	if len(s.allocations) > 1 {
		names := make([]string, len(s.allocations))
		for i, a := range s.allocations {
			names[i] = a.StudentName
		}
		req.CustomFields = []gateway.CustomField{{Name: "Students", Value: strings.Join(names, ", "), Type: "ALL"}}
	}
	return req
}

// LaunchWidget hands the issued reference to the hosted payment window.
// Every launch gets a new attempt number that its callbacks must echo.
func (s *Session) LaunchWidget() (*WidgetLaunch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReferenceIssued {
		return nil, &TransitionError{Op: "launch the payment window", State: s.state}
	}

	s.widgetAttempt++
	s.widgetSettled = false
	s.state = StateAwaitingWidget
	s.touchLocked()

	return &WidgetLaunch{
		Reference: s.reference.RRR,
		PublicKey: s.deps.publicKey,
		Attempt:   s.widgetAttempt,
		Amount:    s.reference.Amount,
		Payer:     s.payer.Name,
		Email:     s.payer.Email,
	}, nil
}

// settleWidgetLocked accepts exactly one callback for the current attempt.
func (s *Session) settleWidgetLocked(attempt int, op string) error {
	if s.state != StateAwaitingWidget {
		return &TransitionError{Op: op, State: s.state}
	}
	if attempt != s.widgetAttempt || s.widgetSettled {
		return fmt.Errorf("%w: widget attempt %d is not current", ErrInvalidTransition, attempt)
	}
	s.widgetSettled = true
	s.touchLocked()
	return nil
}

// WidgetSucceeded moves the session to verifying and starts polling.
func (s *Session) WidgetSucceeded(attempt int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.settleWidgetLocked(attempt, "report widget success"); err != nil {
		return err
	}
	s.state = StateVerifying
	s.lastErr = nil
	s.startLoopLocked()
	return nil
}

// WidgetFailed returns to reference_issued so the same reference can be retried.
func (s *Session) WidgetFailed(attempt int, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.settleWidgetLocked(attempt, "report widget error"); err != nil {
		return err
	}
	s.state = StateReferenceIssued
	s.lastErr = &WidgetError{Message: message}
	return nil
}

func (s *Session) WidgetClosed(attempt int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.settleWidgetLocked(attempt, "report widget close"); err != nil {
		return err
	}
	s.state = StateReferenceIssued
	s.lastErr = ErrWidgetCancelled
	return nil
}

func (s *Session) startLoopLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.loopCancel = cancel
	s.loopDone = done
	go s.runVerification(ctx, done, s.reference.RRR, s.deps.clock.Now())
}

func (s *Session) stopLoopLocked() {
	if s.loopCancel != nil {
		s.loopCancel()
		s.loopCancel = nil
	}
}

// probe shares one in-flight status check per reference. The check runs
// detached from ctx so one caller leaving does not fail the others; the
// gateway client timeout bounds it. A caller whose ctx ends stops waiting.
func (s *Session) probe(ctx context.Context, rrr string) (*gateway.VerificationOutcome, error) {
	shared := context.WithoutCancel(ctx)
	ch := s.deps.probes.DoChan(rrr, func() (interface{}, error) {
		return s.deps.verifier.Verify(shared, rrr)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*gateway.VerificationOutcome), nil
	}
}

func (s *Session) runVerification(ctx context.Context, done chan struct{}, rrr string, started time.Time) {
	defer close(done)
	policy := s.deps.policy
	transportErrors := 0

	for {
		outcome, err := s.probe(ctx, rrr)
		if ctx.Err() != nil {
			return
		}

		s.mu.Lock()
		if s.state != StateVerifying || s.reference == nil || s.reference.RRR != rrr {
			s.mu.Unlock()
			return
		}
		s.attempts++
		s.touchLocked()
		elapsed := s.deps.clock.Now().Sub(started)

		var wait time.Duration
		switch {
		case err != nil:
			transportErrors++
			if transportErrors >= policy.MaxTransportErrors {
				log.Printf("[PAYMENT] session %s: giving up on %s after %d transport errors", s.ID, rrr, transportErrors)
				s.state = StateInitial
				s.reference = nil
				s.lastErr = &gateway.VerificationError{
					Reference: rrr,
					Message:   "could not reach the payment gateway, generate a new reference and try again",
					Err:       err,
				}
				s.mu.Unlock()
				return
			}
			s.lastErr = err
			wait = policy.TransportBackoff

		case outcome.Outcome == gateway.OutcomeConfirmed:
			transportErrors = 0
			snap, cerr := s.completeLocked(ctx, rrr, outcome)
			if cerr == nil {
				s.mu.Unlock()
				s.notifyComplete(snap)
				return
			}
			wait = policy.TransportBackoff

		case outcome.Outcome == gateway.OutcomeFailed:
			s.rejectLocked(rrr, outcome)
			s.mu.Unlock()
			return

		default:
			transportErrors = 0
			s.lastErr = ErrPaymentPending
			wait = policy.PendingInterval
		}

		if elapsed >= policy.VerifyCeiling {
			log.Printf("[PAYMENT] session %s: verification of %s timed out after %s", s.ID, rrr, elapsed)
			s.state = StateInitial
			s.lastErr = ErrVerificationTimeout
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-s.deps.clock.After(wait):
		}
	}
}

// completeLocked reconciles every allocation and marks the session complete.
// The reconciler is idempotent per (reference, student), so a retry after a
// partial failure does not double count.
func (s *Session) completeLocked(ctx context.Context, rrr string, outcome *gateway.VerificationOutcome) (Snapshot, error) {
	number := receipt.NewNumber()
	var recorded []models.Payment

	for _, share := range distribute(outcome.Amount, s.allocations) {
		payerID := s.payer.ID
		p, err := s.deps.reconciler.ApplyConfirmedPayment(ctx, ledger.ConfirmedPayment{
			StudentID:     share.StudentID,
			PayerID:       &payerID,
			Amount:        share.Amount,
			Reference:     rrr,
			OrderID:       s.reference.OrderID,
			ReceiptNumber: number,
			Raw:           outcome.Raw,
		})
		if err != nil {
			log.Printf("[PAYMENT] session %s: reconciling %s failed: %v", s.ID, rrr, err)
			s.lastErr = fmt.Errorf("payment confirmed but not yet recorded: %w", err)
			return Snapshot{}, s.lastErr
		}
		recorded = append(recorded, *p)
	}

	s.payments = recorded
	s.state = StateComplete
	s.lastErr = nil
	s.stopLoopLocked()
	log.Printf("[PAYMENT] session %s: %s confirmed and recorded for %d student(s)", s.ID, rrr, len(recorded))
	return s.snapshotLocked(), nil
}

func (s *Session) rejectLocked(rrr string, outcome *gateway.VerificationOutcome) {
	log.Printf("[PAYMENT] session %s: %s rejected (%s %s)", s.ID, rrr, outcome.Code, outcome.Message)
	s.state = StateInitial
	s.reference = nil
	s.lastErr = &RejectedError{Reference: rrr, Code: outcome.Code, Message: outcome.Message}
	s.stopLoopLocked()
}

func (s *Session) notifyComplete(snap Snapshot) {
	if s.deps.onComplete != nil {
		s.deps.onComplete(snap)
	}
}

// VerifyNow performs one manual status check. Pending and transport errors
// leave the state unchanged.
func (s *Session) VerifyNow(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	if s.state == StateComplete {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, nil
	}
	if s.state == StateAbandoned || s.reference == nil {
		err := &TransitionError{Op: "verify", State: s.state}
		s.mu.Unlock()
		return Snapshot{}, err
	}
	rrr := s.reference.RRR
	s.touchLocked()
	s.mu.Unlock()

	outcome, err := s.probe(ctx, rrr)

	s.mu.Lock()
	if s.state == StateComplete {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, nil
	}
	if s.state == StateAbandoned || s.reference == nil || s.reference.RRR != rrr {
		err := &TransitionError{Op: "verify", State: s.state}
		s.mu.Unlock()
		return Snapshot{}, err
	}
	s.attempts++
	s.touchLocked()

	if err != nil {
		s.lastErr = err
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, err
	}

	switch outcome.Outcome {
	case gateway.OutcomeConfirmed:
		snap, cerr := s.completeLocked(ctx, rrr, outcome)
		if cerr != nil {
			snap = s.snapshotLocked()
			s.mu.Unlock()
			return snap, cerr
		}
		s.mu.Unlock()
		s.notifyComplete(snap)
		return snap, nil

	case gateway.OutcomeFailed:
		s.rejectLocked(rrr, outcome)
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, snap.Err

	default:
		s.lastErr = ErrPaymentPending
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, ErrPaymentPending
	}
}

// Abandon ends the session and waits for any verification loop to exit.
func (s *Session) Abandon() error {
	s.mu.Lock()
	if s.state == StateComplete {
		s.mu.Unlock()
		return &TransitionError{Op: "abandon", State: s.state}
	}
	if s.state == StateAbandoned {
		s.mu.Unlock()
		return nil
	}
	s.state = StateAbandoned
	s.touchLocked()
	cancel, done := s.loopCancel, s.loopDone
	s.loopCancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	log.Printf("[PAYMENT] session %s abandoned", s.ID)
	return nil
}

// wait blocks until the current verification loop, if any, has exited.
func (s *Session) wait() {
	s.mu.Lock()
	done := s.loopDone
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// distribute splits a settled amount over allocations in order. A zero
// settlement means the gateway did not report one and the requested amounts
// stand. Anything above the requested total goes to the last allocation.
func distribute(settled int64, allocations []Allocation) []Allocation {
	if settled <= 0 {
		return allocations
	}

	out := make([]Allocation, 0, len(allocations))
	remaining := settled
	for i, a := range allocations {
		share := a.Amount
		if share > remaining {
			share = remaining
		}
		if i == len(allocations)-1 {
			share = remaining
		}
		if share <= 0 {
			break
		}
		a.Amount = share
		out = append(out, a)
		remaining -= share
	}
	return out
}

func isTerminal(state State) bool {
	return state == StateComplete || state == StateAbandoned
}
