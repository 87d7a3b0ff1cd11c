// Package budget enforces the wall-clock time budget of one execution.
package budget

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// State is the supervisor lifecycle state.
type State int32

// Supervisor states. Transitions only move forward:
// Running -> GraceWindow -> Stopped, or Running -> Stopped directly.
const (
	Running State = iota
	GraceWindow
	Stopped
)

// String implements fmt.Stringer for logging.
func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case GraceWindow:
		return "grace_window"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Supervisor watches elapsed time against a configured budget set comfortably
// below the external hard kill, and signals the execution loop to stop
// cooperatively. Soft stop fires at the deadline; hard stop fires after the
// grace timeout so one in-flight unit can finish.
type Supervisor struct {
	budget time.Duration
	grace  time.Duration
	clock  Clock
	logger *zap.Logger

	state    atomic.Int32
	start    time.Time
	softCh   chan struct{}
	hardCh   chan struct{}
	softOnce sync.Once
	hardOnce sync.Once

	timerMu sync.Mutex
	budgetT *time.Timer
	graceT  *time.Timer
}

// New builds a Supervisor. Start must be called to arm the deadline.
func New(budget, grace time.Duration, clock Clock, logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{
		budget: budget,
		grace:  grace,
		clock:  clock,
		logger: logger,
		softCh: make(chan struct{}),
		hardCh: make(chan struct{}),
	}
}

// Start records the execution start time and arms the budget timer.
func (s *Supervisor) Start() {
	s.start = s.clock.Now()
	s.state.Store(int32(Running))
	s.timerMu.Lock()
	s.budgetT = time.AfterFunc(s.budget, s.enterGrace)
	s.timerMu.Unlock()
	s.logger.Info("time budget armed",
		zap.Duration("budget", s.budget),
		zap.Duration("grace", s.grace))
}

// enterGrace fires at the soft deadline.
func (s *Supervisor) enterGrace() {
	if !s.state.CompareAndSwap(int32(Running), int32(GraceWindow)) {
		return
	}
	s.logger.Info("time budget exhausted, entering grace window",
		zap.Duration("elapsed", s.Elapsed()),
		zap.Duration("grace", s.grace))
	s.softOnce.Do(func() { close(s.softCh) })
	s.timerMu.Lock()
	if s.State() != Stopped {
		s.graceT = time.AfterFunc(s.grace, s.forceStop)
	}
	s.timerMu.Unlock()
}

// forceStop fires when the grace window closes.
func (s *Supervisor) forceStop() {
	prev := State(s.state.Swap(int32(Stopped)))
	if prev == Stopped {
		return
	}
	s.logger.Warn("grace window closed, forcing stop",
		zap.Duration("elapsed", s.Elapsed()))
	s.softOnce.Do(func() { close(s.softCh) })
	s.hardOnce.Do(func() { close(s.hardCh) })
}

// Stop moves directly to Stopped from any state: used on clean completion
// and on external cancellation (e.g. SIGTERM). Idempotent.
func (s *Supervisor) Stop() {
	prev := State(s.state.Swap(int32(Stopped)))
	s.timerMu.Lock()
	if s.budgetT != nil {
		s.budgetT.Stop()
	}
	if s.graceT != nil {
		s.graceT.Stop()
	}
	s.timerMu.Unlock()
	if prev == Stopped {
		return
	}
	s.softOnce.Do(func() { close(s.softCh) })
	s.hardOnce.Do(func() { close(s.hardCh) })
}

// State returns the current state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// ShouldStop reports whether the loop must stop dequeuing new units. It is
// checked between units, never mid-unit, so a single unit's write is never
// torn.
func (s *Supervisor) ShouldStop() bool {
	return s.State() != Running
}

// SoftStop is closed when the loop should stop accepting new units.
func (s *Supervisor) SoftStop() <-chan struct{} {
	return s.softCh
}

// HardStop is closed when in-flight work must be abandoned.
func (s *Supervisor) HardStop() <-chan struct{} {
	return s.hardCh
}

// Elapsed reports wall-clock time since Start.
func (s *Supervisor) Elapsed() time.Duration {
	return s.clock.Now().Sub(s.start)
}

// Remaining reports time left before the soft deadline; negative once past.
func (s *Supervisor) Remaining() time.Duration {
	return s.budget - s.Elapsed()
}
