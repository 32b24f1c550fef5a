package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"omrzen/internal/app"
	"omrzen/internal/domain"
)

func TestSessionStoreSetsAndClearsKeys(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewSessionStore(newClient(mr), "omrzen", time.Minute)

	if err := store.Set(ctx, domain.FieldTimeLeft, "90"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := mr.HGet("omrzen:session", "timeLeft"); got != "90" {
		t.Fatalf("expected timeLeft in the session hash, got %q", got)
	}
	if ttl := mr.TTL("omrzen:session"); ttl != time.Minute {
		t.Fatalf("expected ttl of 1m, got %v", ttl)
	}

	value, ok, err := store.Get(ctx, domain.FieldTimeLeft)
	if err != nil || !ok || value != "90" {
		t.Fatalf("expected 90, got %q ok=%v err=%v", value, ok, err)
	}

	if err := store.Delete(ctx, domain.SessionFields()...); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mr.Exists("omrzen:session") {
		t.Fatalf("expected the session hash to be removed")
	}
	if _, ok, err := store.Get(ctx, domain.FieldTimeLeft); ok || err != nil {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}
}

func TestSessionStoreResumesAcrossClients(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	first := app.NewSessionStore(NewSessionStore(newClient(mr), "", 0), app.DefaultBounds())
	cfg := domain.TestConfiguration{QuestionCount: 10, PositiveMarks: 4, NegativeMarks: 1, TimeInMinutes: 30}
	if err := first.SaveConfiguration(ctx, cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}
	if err := first.RecordUserAnswer(ctx, 3, domain.OptionC); err != nil {
		t.Fatalf("record answer: %v", err)
	}
	if err := first.PersistRemainingSeconds(ctx, 1234); err != nil {
		t.Fatalf("persist remaining: %v", err)
	}

	// A second client plays the part of a reloaded page.
	second := app.NewSessionStore(NewSessionStore(newClient(mr), "", 0), app.DefaultBounds())
	state, err := second.LoadSession(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if state.Config != cfg {
		t.Fatalf("expected config %+v, got %+v", cfg, state.Config)
	}
	if state.UserAnswers[3] != domain.OptionC {
		t.Fatalf("expected answer C for question 3, got %+v", state.UserAnswers)
	}
	if !state.RemainingSaved || state.RemainingSeconds != 1234 {
		t.Fatalf("expected remaining 1234, got %d (saved=%v)", state.RemainingSeconds, state.RemainingSaved)
	}
}

func TestSessionFieldsExpireTogether(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := app.NewSessionStore(NewSessionStore(newClient(mr), "omrzen", time.Hour), app.DefaultBounds())
	cfg := domain.TestConfiguration{QuestionCount: 10, PositiveMarks: 4, NegativeMarks: 1, TimeInMinutes: 30}
	if err := store.SaveConfiguration(ctx, cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}
	if err := store.RecordUserAnswer(ctx, 1, domain.OptionA); err != nil {
		t.Fatalf("record answer: %v", err)
	}

	// A later write keeps the whole session alive, including the early config.
	mr.FastForward(50 * time.Minute)
	if err := store.RecordAnswerKeyEntry(ctx, 1, domain.OptionB); err != nil {
		t.Fatalf("record key: %v", err)
	}
	mr.FastForward(20 * time.Minute)

	state, err := store.LoadSession(ctx)
	if err != nil {
		t.Fatalf("expected session to survive, got %v", err)
	}
	if state.Config != cfg || state.UserAnswers[1] != domain.OptionA || state.AnswerKey[1] != domain.OptionB {
		t.Fatalf("expected every field to survive, got %+v", state)
	}

	// Once abandoned, nothing outlives anything else.
	mr.FastForward(2 * time.Hour)
	if keys := mr.Keys(); len(keys) != 0 {
		t.Fatalf("expected the whole session to expire, got keys %v", keys)
	}
	if _, err := store.LoadSession(ctx); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found after expiry, got %v", err)
	}
}

func TestSessionStoreReportsUnavailableRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	client := newClient(mr)
	mr.Close()

	store := NewSessionStore(client, "omrzen", 0)
	if err := store.Set(context.Background(), domain.FieldAnswers, "{}"); !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Fatalf("expected storage unavailable, got %v", err)
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:       mr.Addr(),
		MaxRetries: -1,
	})
}
