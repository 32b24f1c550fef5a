package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"omrzen/internal/domain"
)

// TimerState is the countdown lifecycle: Idle -> Running -> {Expired, Suspended}.
type TimerState int

const (
	TimerIdle TimerState = iota
	TimerRunning
	TimerExpired
	TimerSuspended
)

func (s TimerState) String() string {
	switch s {
	case TimerIdle:
		return "idle"
	case TimerRunning:
		return "running"
	case TimerExpired:
		return "expired"
	case TimerSuspended:
		return "suspended"
	}
	return fmt.Sprintf("TimerState(%d)", int(s))
}

// ErrTimerStarted is returned when Start is called on a timer that already left Idle.
var ErrTimerStarted = errors.New("timer already started")

// countdownStore is the slice of SessionStore the timer depends on.
type countdownStore interface {
	RemainingSeconds(ctx context.Context) (int, bool, error)
	PersistRemainingSeconds(ctx context.Context, seconds int) error
}

// TimerHooks are invoked outside the timer lock.
type TimerHooks struct {
	OnTick func(domain.TickStatus)
	// OnExpire runs exactly once, when the countdown reaches zero.
	OnExpire func(ctx context.Context)
}

// Timer drives the answering-phase countdown. Ticks can be delivered by Run
// or directly through Tick; after Cancel every tick is a no-op.
type Timer struct {
	store    countdownStore
	interval time.Duration
	hooks    TimerHooks

	mu        sync.Mutex
	state     TimerState
	total     int
	remaining int
	stop      chan struct{}
}

func NewTimer(store countdownStore, interval time.Duration, hooks TimerHooks) *Timer {
	if interval <= 0 {
		interval = time.Second
	}
	return &Timer{
		store:    store,
		interval: interval,
		hooks:    hooks,
		stop:     make(chan struct{}),
	}
}

// Start resumes from the persisted remaining time, or begins at total seconds.
func (t *Timer) Start(ctx context.Context, total int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != TimerIdle {
		return ErrTimerStarted
	}

	remaining, ok, err := t.store.RemainingSeconds(ctx)
	if err != nil {
		return err
	}
	if !ok {
		remaining = total
		if err := t.store.PersistRemainingSeconds(ctx, remaining); err != nil {
			return err
		}
	}
	t.total = total
	t.remaining = remaining
	t.state = TimerRunning
	return nil
}

// Tick advances the countdown by one interval.
func (t *Timer) Tick(ctx context.Context) error {
	t.mu.Lock()
	if t.state != TimerRunning {
		t.mu.Unlock()
		return nil
	}

	t.remaining--
	if t.remaining <= 0 {
		t.remaining = 0
		t.state = TimerExpired
		t.mu.Unlock()
		if t.hooks.OnExpire != nil {
			t.hooks.OnExpire(ctx)
		}
		return nil
	}

	if err := t.store.PersistRemainingSeconds(ctx, t.remaining); err != nil {
		t.remaining++
		t.mu.Unlock()
		return err
	}
	status := t.statusLocked()
	t.mu.Unlock()

	if t.hooks.OnTick != nil {
		t.hooks.OnTick(status)
	}
	return nil
}

// Run ticks every interval until the timer expires, is cancelled, or ctx is done.
func (t *Timer) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.stop:
			return nil
		case <-ticker.C:
			if err := t.Tick(ctx); err != nil {
				return err
			}
			if t.State() != TimerRunning {
				return nil
			}
		}
	}
}

// Cancel suspends a running timer. No persist or hook happens after it returns.
func (t *Timer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.state {
	case TimerIdle, TimerRunning:
		t.state = TimerSuspended
		close(t.stop)
	}
}

func (t *Timer) State() TimerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Status reports the in-memory countdown.
func (t *Timer) Status() domain.TickStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.statusLocked()
}

func (t *Timer) statusLocked() domain.TickStatus {
	return domain.TickStatus{
		Remaining:  t.remaining,
		Total:      t.total,
		RunningLow: RunningLow(t.remaining, t.total),
	}
}

// RunningLow is true once remaining time is at most 5% of the configured duration.
func RunningLow(remaining, total int) bool {
	if total <= 0 {
		return false
	}
	return remaining*100 <= total*5
}

// FormatRemaining renders seconds as MM:SS, or HH:MM:SS from one hour up.
func FormatRemaining(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h, m, s := seconds/3600, (seconds%3600)/60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
