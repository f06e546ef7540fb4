package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rmax-ai/transformer-puzzle/pkg/puzzle"
	"github.com/rmax-ai/transformer-puzzle/pkg/store"
)

// Journal receives session events. *store.Store satisfies it.
type Journal interface {
	AppendEvent(ctx context.Context, event *store.Event) error
}

// Manager hosts many puzzle sessions. Each session still processes one
// command at a time; the manager takes the session lock around every load,
// apply and save.
type Manager struct {
	sessions SessionStore
	locker   Locker
	journal  Journal
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithJournal records every applied command in j.
func WithJournal(j Journal) Option {
	return func(m *Manager) { m.journal = j }
}

// WithLocker replaces the in-process session lock, e.g. with a Redis lease
// when several daemons share one session store.
func WithLocker(l Locker) Option {
	return func(m *Manager) { m.locker = l }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager returns a manager over sessions. A nil store means an
// in-memory one.
func NewManager(sessions SessionStore, opts ...Option) *Manager {
	if sessions == nil {
		sessions = NewMemoryStore()
	}
	m := &Manager{
		sessions: sessions,
		locker:   NewMemoryLocker(),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Sync sets the active sessions gauge from the store. Call it once at
// startup when the store may already hold sessions.
func (m *Manager) Sync(ctx context.Context) error {
	ids, err := m.sessions.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	SessionsActive.Set(float64(len(ids)))
	return nil
}

// HasJournal reports whether events are being recorded.
func (m *Manager) HasJournal() bool {
	return m.journal != nil
}

// Create starts a new session at the encoder stage.
func (m *Manager) Create(ctx context.Context) (puzzle.State, error) {
	sess := puzzle.NewSession(uuid.NewString())
	st := sess.State()
	if err := m.sessions.Save(ctx, st); err != nil {
		return puzzle.State{}, fmt.Errorf("failed to save session: %w", err)
	}
	SessionsActive.Inc()
	m.logger.Info("session_created", "session_id", st.ID)
	m.record(ctx, st.ID, st.Stage, store.EventTypeSessionCreated, nil)
	return st, nil
}

// Get returns the current state of a session.
func (m *Manager) Get(ctx context.Context, id string) (puzzle.State, error) {
	st, err := m.sessions.Load(ctx, id)
	if err != nil {
		return puzzle.State{}, wrapLoad(id, err)
	}
	return st, nil
}

// List returns the IDs of all sessions.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	ids, err := m.sessions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return ids, nil
}

// Delete removes a session.
func (m *Manager) Delete(ctx context.Context, id string) error {
	unlock, err := m.locker.Lock(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to lock session %s: %w", id, err)
	}
	defer unlock()

	st, err := m.sessions.Load(ctx, id)
	if err != nil {
		return wrapLoad(id, err)
	}
	if err := m.sessions.Delete(ctx, id); err != nil {
		return wrapLoad(id, err)
	}
	SessionsActive.Dec()
	m.logger.Info("session_deleted", "session_id", id)
	m.record(ctx, id, st.Stage, store.EventTypeSessionDeleted, nil)
	return nil
}

// Apply runs cmd against a session and persists the result. Errors wrapping
// puzzle command errors mean the command was refused; the stored session is
// unchanged.
func (m *Manager) Apply(ctx context.Context, id string, cmd puzzle.Command) (puzzle.Outcome, puzzle.State, error) {
	unlock, err := m.locker.Lock(ctx, id)
	if err != nil {
		return puzzle.Outcome{}, puzzle.State{}, fmt.Errorf("failed to lock session %s: %w", id, err)
	}
	defer unlock()

	st, err := m.sessions.Load(ctx, id)
	if err != nil {
		return puzzle.Outcome{}, puzzle.State{}, wrapLoad(id, err)
	}
	sess, err := puzzle.Restore(st)
	if err != nil {
		return puzzle.Outcome{}, puzzle.State{}, fmt.Errorf("failed to restore session %s: %w", id, err)
	}

	stage := sess.Stage()
	out, err := sess.Apply(cmd)
	if err != nil {
		m.logger.Debug("command_rejected", "session_id", id, "command", cmd.Kind, "error", err)
		return puzzle.Outcome{}, st, err
	}

	next := sess.State()
	if err := m.sessions.Save(ctx, next); err != nil {
		return puzzle.Outcome{}, st, fmt.Errorf("failed to save session %s: %w", id, err)
	}

	CommandsTotal.WithLabelValues(string(cmd.Kind)).Inc()
	if out.Verdict != nil {
		ValidationsTotal.WithLabelValues(string(stage), string(out.Verdict.Kind)).Inc()
		m.logger.Info("layout_checked",
			"session_id", id,
			"stage", stage,
			"verdict", out.Verdict.Kind,
			"success", out.Verdict.Success,
		)
	}
	if out.Advanced {
		StageCompletionsTotal.WithLabelValues(string(stage)).Inc()
	}
	if out.Completed {
		StageCompletionsTotal.WithLabelValues(string(puzzle.StageDecoder)).Inc()
		m.logger.Info("puzzle_completed", "session_id", id)
	}

	m.journalOutcome(ctx, id, stage, cmd, out, st)
	return out, next, nil
}

// IsCommandError reports whether err means the session refused a command.
func IsCommandError(err error) bool {
	return errors.Is(err, puzzle.ErrUnknownCommand) ||
		errors.Is(err, puzzle.ErrUnknownLabel) ||
		errors.Is(err, puzzle.ErrUnknownBlock) ||
		errors.Is(err, puzzle.ErrUnknownSide) ||
		errors.Is(err, puzzle.ErrSelfConnection)
}

func wrapLoad(id string, err error) error {
	if errors.Is(err, ErrSessionNotFound) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return fmt.Errorf("failed to load session %s: %w", id, err)
}
