package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"omrzen/internal/domain"
)

const (
	// DefaultTestName labels reports until the user renames the test.
	DefaultTestName = "Untitled Test"
	// MaxTestNameLength caps the display label, in characters.
	MaxTestNameLength = 40
)

// ServiceOption customizes a TestService.
type ServiceOption func(*TestService)

// WithTickInterval overrides the one-second countdown interval.
func WithTickInterval(d time.Duration) ServiceOption {
	return func(s *TestService) { s.interval = d }
}

func WithLogger(log zerolog.Logger) ServiceOption {
	return func(s *TestService) { s.log = log.With().Str("component", "test_service").Logger() }
}

// TestService runs one test session through configuring -> answering -> checking -> scored.
// Events are processed one at a time; every transition is guarded by the current phase.
type TestService struct {
	store    *SessionStore
	interval time.Duration
	log      zerolog.Logger

	mu          sync.Mutex
	phase       domain.Phase
	config      domain.TestConfiguration
	testName    string
	timer       *Timer
	stopRun     context.CancelFunc
	subscribers map[chan domain.Event]struct{}
}

func NewTestService(store *SessionStore, opts ...ServiceOption) *TestService {
	s := &TestService{
		store:       store,
		interval:    time.Second,
		log:         zerolog.Nop(),
		phase:       domain.PhaseConfiguring,
		testName:    DefaultTestName,
		subscribers: make(map[chan domain.Event]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads the session from storage and restores the phase it was in.
// A corrupt session is cleared and reported as domain.ErrNotFound.
func (s *TestService) Load(ctx context.Context) (domain.SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

func (s *TestService) loadLocked(ctx context.Context) (domain.SessionState, error) {
	state, err := s.store.LoadSession(ctx)
	switch {
	case errors.Is(err, domain.ErrCorruptSession):
		s.log.Warn().Err(err).Msg("discarding corrupt session")
		if err := s.store.ResetAll(ctx); err != nil {
			return domain.SessionState{}, err
		}
		s.phase = domain.PhaseConfiguring
		return domain.SessionState{}, domain.ErrNotFound
	case errors.Is(err, domain.ErrNotFound):
		s.phase = domain.PhaseConfiguring
		return domain.SessionState{}, err
	case err != nil:
		return domain.SessionState{}, err
	}

	s.config = state.Config
	switch {
	case !state.Completed:
		s.phase = domain.PhaseAnswering
	case s.phase != domain.PhaseScored:
		s.phase = domain.PhaseChecking
	}
	state.TestName = s.testName
	return state, nil
}

// State reads the stored session without changing the phase.
// While configuring there is nothing to read and domain.ErrNotFound is returned.
func (s *TestService) State(ctx context.Context) (domain.SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == domain.PhaseConfiguring {
		return domain.SessionState{TestName: s.testName}, domain.ErrNotFound
	}
	state, err := s.store.LoadSession(ctx)
	if err != nil {
		return state, err
	}
	state.TestName = s.testName
	return state, nil
}

func (s *TestService) Phase() domain.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Configure creates a new session. Only allowed when no session exists.
func (s *TestService) Configure(ctx context.Context, cfg domain.TestConfiguration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireLocked("configure", domain.PhaseConfiguring); err != nil {
		return err
	}
	if err := s.store.SaveConfiguration(ctx, cfg); err != nil {
		return err
	}
	s.config = cfg
	s.phase = domain.PhaseAnswering
	s.log.Info().
		Int("questions", cfg.QuestionCount).
		Float64("positive", cfg.PositiveMarks).
		Float64("negative", cfg.NegativeMarks).
		Int("minutes", cfg.TimeInMinutes).
		Msg("test configured")

	if len(s.subscribers) > 0 {
		if err := s.startTimerLocked(ctx); err != nil {
			return err
		}
	}
	s.broadcastLocked(domain.Event{Type: domain.EventState})
	return nil
}

// Answer records the user's selection for a question.
func (s *TestService) Answer(ctx context.Context, question int, opt domain.Option) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireLocked("answer", domain.PhaseAnswering); err != nil {
		return err
	}
	if err := s.checkQuestionLocked(question); err != nil {
		return err
	}
	if err := s.store.RecordUserAnswer(ctx, question, opt); err != nil {
		return err
	}
	s.broadcastLocked(domain.Event{Type: domain.EventState})
	return nil
}

func (s *TestService) ClearAnswer(ctx context.Context, question int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireLocked("clear answer", domain.PhaseAnswering); err != nil {
		return err
	}
	if err := s.checkQuestionLocked(question); err != nil {
		return err
	}
	if err := s.store.ClearUserAnswer(ctx, question); err != nil {
		return err
	}
	s.broadcastLocked(domain.Event{Type: domain.EventState})
	return nil
}

// Submit ends the answering phase on the user's request.
func (s *TestService) Submit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireLocked("submit", domain.PhaseAnswering); err != nil {
		return err
	}
	state, err := s.store.LoadSession(ctx)
	if err != nil {
		return err
	}
	if len(state.UserAnswers) == 0 {
		return domain.ErrNothingAnswered
	}
	return s.completeLocked(ctx, false)
}

// completeLocked moves to checking. The timer is stopped before the completion
// flag is written so no countdown persist can land after timeLeft is purged.
func (s *TestService) completeLocked(ctx context.Context, forced bool) error {
	s.stopTimerLocked()
	if err := s.store.MarkCompleted(ctx); err != nil {
		return err
	}
	s.phase = domain.PhaseChecking
	s.log.Info().Bool("forced", forced).Msg("test completed")
	s.broadcastLocked(domain.Event{Type: domain.EventCompleted, Forced: forced})
	return nil
}

// MarkAnswer records the correct option for an attempted question and reports
// whether the user's answer matches it.
func (s *TestService) MarkAnswer(ctx context.Context, question int, opt domain.Option) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireLocked("mark answer", domain.PhaseChecking, domain.PhaseScored); err != nil {
		return false, err
	}
	if err := s.checkQuestionLocked(question); err != nil {
		return false, err
	}
	if !opt.Valid() {
		return false, domain.ErrInvalidOption
	}
	state, err := s.store.LoadSession(ctx)
	if err != nil {
		return false, err
	}
	userOpt, ok := state.UserAnswers[question]
	if !ok {
		return false, fmt.Errorf("%w: %d", domain.ErrNotAttempted, question)
	}
	if err := s.store.RecordAnswerKeyEntry(ctx, question, opt); err != nil {
		return false, err
	}
	s.phase = domain.PhaseChecking
	s.broadcastLocked(domain.Event{Type: domain.EventState})
	return userOpt == opt, nil
}

func (s *TestService) ClearMark(ctx context.Context, question int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireLocked("clear mark", domain.PhaseChecking, domain.PhaseScored); err != nil {
		return err
	}
	if err := s.checkQuestionLocked(question); err != nil {
		return err
	}
	if err := s.store.ClearAnswerKeyEntry(ctx, question); err != nil {
		return err
	}
	s.phase = domain.PhaseChecking
	s.broadcastLocked(domain.Event{Type: domain.EventState})
	return nil
}

// Progress summarizes answered and marked questions.
func (s *TestService) Progress(ctx context.Context) (domain.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	progress := domain.Progress{Phase: s.phase}
	if s.phase == domain.PhaseConfiguring {
		return progress, nil
	}
	state, err := s.store.LoadSession(ctx)
	if err != nil {
		return progress, err
	}
	progress.TotalQuestions = state.Config.QuestionCount
	progress.Answered = len(state.UserAnswers)
	progress.Marked = progress.Answered - len(state.Pending())
	progress.CanScore = (s.phase == domain.PhaseChecking || s.phase == domain.PhaseScored) &&
		progress.Marked == progress.Answered
	return progress, nil
}

// Score grades the session once every attempted question has been marked.
func (s *TestService) Score(ctx context.Context) (domain.ScoreReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireLocked("score", domain.PhaseChecking, domain.PhaseScored); err != nil {
		return domain.ScoreReport{}, err
	}
	report, err := s.gradeLocked(ctx)
	if err != nil {
		return report, err
	}
	s.phase = domain.PhaseScored
	s.log.Info().
		Int("correct", report.CorrectCount).
		Int("incorrect", report.IncorrectCount).
		Float64("score", report.TotalScore).
		Msg("test scored")
	s.broadcastLocked(domain.Event{Type: domain.EventState})
	return report, nil
}

// Report recomputes the score of a scored session without logging or notifying subscribers.
func (s *TestService) Report(ctx context.Context) (domain.ScoreReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireLocked("report", domain.PhaseScored); err != nil {
		return domain.ScoreReport{}, err
	}
	return s.gradeLocked(ctx)
}

func (s *TestService) gradeLocked(ctx context.Context) (domain.ScoreReport, error) {
	state, err := s.store.LoadSession(ctx)
	if err != nil {
		return domain.ScoreReport{}, err
	}
	if pending := state.Pending(); len(pending) > 0 {
		return domain.ScoreReport{}, fmt.Errorf("%w: %v", domain.ErrPendingQuestions, pending)
	}
	return Score(state.Config, state.UserAnswers, state.AnswerKey), nil
}

// Reset removes the whole session and returns to configuring.
func (s *TestService) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
	if err := s.store.ResetAll(ctx); err != nil {
		return err
	}
	s.phase = domain.PhaseConfiguring
	s.config = domain.TestConfiguration{}
	s.testName = DefaultTestName
	s.log.Info().Msg("session reset")
	s.broadcastLocked(domain.Event{Type: domain.EventReset})
	return nil
}

// Rename sets the report label, capped at MaxTestNameLength characters.
func (s *TestService) Rename(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.testName = NormalizeTestName(name)
	return s.testName
}

func (s *TestService) TestName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.testName
}

// NormalizeTestName trims the label, falls back to DefaultTestName and caps its length.
func NormalizeTestName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultTestName
	}
	if utf8.RuneCountInString(name) > MaxTestNameLength {
		name = string([]rune(name)[:MaxTestNameLength])
	}
	return name
}

// StartTimer runs the countdown in the background. A running timer is left alone.
func (s *TestService) StartTimer(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireLocked("start timer", domain.PhaseAnswering); err != nil {
		return err
	}
	return s.startTimerLocked(ctx)
}

// StopTimer cancels the countdown; the persisted remaining time is kept for a resume.
func (s *TestService) StopTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
}

// TimerStatus reports the live countdown, if one is running.
func (s *TestService) TimerStatus() (domain.TickStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer == nil {
		return domain.TickStatus{}, false
	}
	return s.timer.Status(), true
}

func (s *TestService) startTimerLocked(ctx context.Context) error {
	if s.timer != nil {
		return nil
	}
	var timer *Timer
	timer = NewTimer(s.store, s.interval, TimerHooks{
		OnTick:   func(status domain.TickStatus) { s.onTick(timer, status) },
		OnExpire: func(ctx context.Context) { s.onExpire(ctx, timer) },
	})
	if err := timer.Start(ctx, s.config.DurationSeconds()); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.timer = timer
	s.stopRun = cancel
	go func() {
		if err := timer.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			s.onRunFailed(timer, err)
		}
	}()

	status := timer.Status()
	s.log.Debug().Int("remaining", status.Remaining).Msg("countdown started")
	s.broadcastLocked(domain.Event{Type: domain.EventTick, Tick: &status})
	return nil
}

func (s *TestService) stopTimerLocked() {
	if s.timer == nil {
		return
	}
	s.timer.Cancel()
	s.stopRun()
	s.timer = nil
	s.stopRun = nil
}

// onRunFailed drops a countdown that could not persist so the next
// StartTimer or Subscribe resumes it from the last stored value.
func (s *TestService) onRunFailed(timer *Timer, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != timer {
		return
	}
	s.log.Error().Err(err).Msg("countdown stopped")
	s.stopTimerLocked()
	s.broadcastLocked(domain.Event{Type: domain.EventError, Err: err})
}

func (s *TestService) onTick(timer *Timer, status domain.TickStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != timer || s.phase != domain.PhaseAnswering {
		return
	}
	s.broadcastLocked(domain.Event{Type: domain.EventTick, Tick: &status})
}

func (s *TestService) onExpire(ctx context.Context, timer *Timer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != timer || s.phase != domain.PhaseAnswering {
		return
	}
	// completeLocked cancels the run context; the storage write must outlive it.
	if err := s.completeLocked(context.WithoutCancel(ctx), true); err != nil {
		s.log.Error().Err(err).Msg("forced completion failed")
	}
}

// Subscribe returns a channel of session events. While at least one subscriber
// watches a session in the answering phase, its countdown runs.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *TestService) Subscribe(ctx context.Context) (<-chan domain.Event, func(), error) {
	ch := make(chan domain.Event, 8)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	ch <- domain.Event{Type: domain.EventState, Phase: s.phase}
	if s.phase == domain.PhaseAnswering {
		if err := s.startTimerLocked(ctx); err != nil {
			delete(s.subscribers, ch)
			s.mu.Unlock()
			return nil, nil, err
		}
	}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		if len(s.subscribers) == 0 {
			s.stopTimerLocked()
		}
	}
	return ch, cancel, nil
}

func (s *TestService) broadcastLocked(ev domain.Event) {
	ev.Phase = s.phase
	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			// Drop the oldest event so a slow subscriber never blocks the session.
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

func (s *TestService) requireLocked(op string, allowed ...domain.Phase) error {
	for _, p := range allowed {
		if s.phase == p {
			return nil
		}
	}
	return &domain.PhaseError{Op: op, Phase: s.phase}
}

func (s *TestService) checkQuestionLocked(question int) error {
	if question < 1 || question > s.config.QuestionCount {
		return fmt.Errorf("%w: %d (1-%d)", domain.ErrInvalidQuestion, question, s.config.QuestionCount)
	}
	return nil
}
