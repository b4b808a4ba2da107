package payment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/farellandr/schoolfees/internal/gateway"
	"github.com/farellandr/schoolfees/internal/models"
	"github.com/farellandr/schoolfees/internal/store"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"
)

type ManagerConfig struct {
	WidgetPublicKey string
	Policy          Policy
	IdleTTL         time.Duration
	ReapSchedule    string
	Clock           Clock
}

// Manager owns the in-memory payment sessions.
type Manager struct {
	students   store.Store
	issuer     ReferenceIssuer
	verifier   StatusVerifier
	reconciler Reconciler
	cfg        ManagerConfig
	probes     singleflight.Group

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	hooks    []func(Snapshot)

	cron *cron.Cron
}

func NewManager(students store.Store, issuer ReferenceIssuer, verifier StatusVerifier, reconciler Reconciler, cfg ManagerConfig) *Manager {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 30 * time.Minute
	}
	if cfg.ReapSchedule == "" {
		cfg.ReapSchedule = "@every 1m"
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	cfg.Policy = cfg.Policy.withDefaults()

	return &Manager{
		students:   students,
		issuer:     issuer,
		verifier:   verifier,
		reconciler: reconciler,
		cfg:        cfg,
		sessions:   make(map[uuid.UUID]*Session),
	}
}

// OnComplete registers fn to run after a session's payment is recorded.
func (m *Manager) OnComplete(fn func(Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, fn)
}

func (m *Manager) runHooks(snap Snapshot) {
	m.mu.RLock()
	hooks := slices.Clone(m.hooks)
	m.mu.RUnlock()
	for _, fn := range hooks {
		fn(snap)
	}
}

type OpenRequest struct {
	StudentIDs  []uuid.UUID
	Amount      int64
	Description string
}

// Open creates a session for the payer covering the given students. Amount
// is only honoured for a single student and defaults to the outstanding
// balance; it may not exceed it.
func (m *Manager) Open(ctx context.Context, payer *models.User, req OpenRequest) (*Session, error) {
	if !payer.Role.Capabilities().CanPay {
		return nil, &gateway.ValidationError{Field: "role", Message: "this account cannot make payments"}
	}
	if len(req.StudentIDs) == 0 {
		return nil, &gateway.ValidationError{Field: "student_ids", Message: "at least one student is required"}
	}
	if len(req.StudentIDs) > 1 && req.Amount != 0 {
		return nil, &gateway.ValidationError{Field: "amount", Message: "bulk payments always settle the outstanding balance"}
	}
	if req.Amount < 0 {
		return nil, &gateway.ValidationError{Field: "amount", Message: "must be greater than 0"}
	}

	seen := make(map[uuid.UUID]bool, len(req.StudentIDs))
	allocations := make([]Allocation, 0, len(req.StudentIDs))
	for _, id := range req.StudentIDs {
		if seen[id] {
			return nil, &gateway.ValidationError{Field: "student_ids", Message: "students must not repeat"}
		}
		seen[id] = true

		student, err := m.students.GetStudent(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("student %s: %w", id, store.ErrNotFound)
			}
			return nil, err
		}
		if !payer.CanSee(student) {
			return nil, fmt.Errorf("student %s: %w", id, store.ErrNotFound)
		}

		outstanding := student.Outstanding()
		if outstanding == 0 {
			return nil, &gateway.ValidationError{Field: "student_ids", Message: student.Name + " has no outstanding fees"}
		}
		amount := outstanding
		if req.Amount > 0 {
			if req.Amount > outstanding {
				return nil, &gateway.ValidationError{Field: "amount", Message: "exceeds the outstanding balance"}
			}
			amount = req.Amount
		}
		allocations = append(allocations, Allocation{StudentID: student.ID, StudentName: student.Name, Amount: amount})
	}

	description := req.Description
	if description == "" {
		description = "School fees payment"
		if len(allocations) == 1 {
			description = "School fees for " + allocations[0].StudentName
		}
	}

	name := payer.FullName
	if len(allocations) == 1 && payer.Role.Name == models.RoleParent {
		name = allocations[0].StudentName
	}

	s := newSession(Payer{ID: payer.ID, Name: name, Email: payer.Email, Phone: payer.PhoneNumber}, allocations, description, sessionDeps{
		issuer:     m.issuer,
		verifier:   m.verifier,
		reconciler: m.reconciler,
		probes:     &m.probes,
		clock:      m.cfg.Clock,
		policy:     m.cfg.Policy,
		publicKey:  m.cfg.WidgetPublicKey,
		onComplete: m.runHooks,
	})

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	log.Printf("[PAYMENT] session %s opened by %s for %d student(s), total %d", s.ID, payer.ID, len(allocations), s.Total())
	return s, nil
}

// Get returns the session only to the user that opened it.
func (m *Manager) Get(id, ownerID uuid.UUID) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok || s.OwnerID() != ownerID {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Discard abandons the session, unless it completed, and forgets it.
func (m *Manager) Discard(id, ownerID uuid.UUID) error {
	s, err := m.Get(id, ownerID)
	if err != nil {
		return err
	}
	m.remove(s)
	return nil
}

func (m *Manager) remove(s *Session) {
	if err := s.Abandon(); err != nil && !errors.Is(err, ErrInvalidTransition) {
		log.Printf("[PAYMENT] session %s: abandon failed: %v", s.ID, err)
	}
	m.mu.Lock()
	delete(m.sessions, s.ID)
	m.mu.Unlock()
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// ReapIdle discards sessions untouched for longer than the idle TTL and
// returns how many were removed.
func (m *Manager) ReapIdle() int {
	cutoff := m.cfg.Clock.Now().Add(-m.cfg.IdleTTL)

	m.mu.RLock()
	var stale []*Session
	for _, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			stale = append(stale, s)
		}
	}
	m.mu.RUnlock()

	for _, s := range stale {
		m.remove(s)
	}
	if len(stale) > 0 {
		log.Printf("[PAYMENT] reaped %d idle session(s)", len(stale))
	}
	return len(stale)
}

// Start schedules the idle reaper.
func (m *Manager) Start() error {
	c := cron.New()
	if _, err := c.AddFunc(m.cfg.ReapSchedule, func() { m.ReapIdle() }); err != nil {
		return fmt.Errorf("invalid reap schedule %q: %w", m.cfg.ReapSchedule, err)
	}
	c.Start()
	m.cron = c
	return nil
}

// Stop halts the reaper and abandons every open session.
func (m *Manager) Stop() {
	if m.cron != nil {
		<-m.cron.Stop().Done()
	}

	m.mu.RLock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()

	for _, s := range all {
		if !isTerminal(s.Snapshot().State) {
			m.remove(s)
		}
	}
}
