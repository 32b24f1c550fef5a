package app_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"omrzen/internal/app"
	"omrzen/internal/domain"
	"omrzen/internal/infra/memory"
)

func newStore() (*app.SessionStore, *memory.SessionStore) {
	fields := memory.NewSessionStore()
	return app.NewSessionStore(fields, app.DefaultBounds()), fields
}

func validConfig() domain.TestConfiguration {
	return domain.TestConfiguration{QuestionCount: 10, PositiveMarks: 4, NegativeMarks: 1, TimeInMinutes: 30}
}

func TestLoadSessionNotFound(t *testing.T) {
	store, _ := newStore()
	if _, err := store.LoadSession(context.Background()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSaveConfigurationCreatesFreshSession(t *testing.T) {
	ctx := context.Background()
	store, fields := newStore()

	// Leftovers from an older session must not survive a new configuration.
	_ = fields.Set(ctx, domain.FieldAnswers, `{"1":"A"}`)
	_ = fields.Set(ctx, domain.FieldTimeLeft, "12")
	_ = fields.Set(ctx, domain.FieldTestCompleted, "true")

	if err := store.SaveConfiguration(ctx, validConfig()); err != nil {
		t.Fatalf("save: %v", err)
	}
	state, err := store.LoadSession(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if state.Config != validConfig() {
		t.Fatalf("unexpected config %+v", state.Config)
	}
	if len(state.UserAnswers) != 0 || len(state.AnswerKey) != 0 || state.RemainingSaved || state.Completed {
		t.Fatalf("expected empty session, got %+v", state)
	}
	if fields.Len() != 1 {
		t.Fatalf("expected only testConfig stored, got %d fields", fields.Len())
	}
}

func TestConfigurationBounds(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name  string
		cfg   domain.TestConfiguration
		valid bool
	}{
		{"min questions", domain.TestConfiguration{QuestionCount: 5, PositiveMarks: 4, NegativeMarks: 1, TimeInMinutes: 30}, true},
		{"max questions", domain.TestConfiguration{QuestionCount: 200, PositiveMarks: 4, NegativeMarks: 1, TimeInMinutes: 30}, true},
		{"below min questions", domain.TestConfiguration{QuestionCount: 4, PositiveMarks: 4, NegativeMarks: 1, TimeInMinutes: 30}, false},
		{"above max questions", domain.TestConfiguration{QuestionCount: 201, PositiveMarks: 4, NegativeMarks: 1, TimeInMinutes: 30}, false},
		{"zero positive", domain.TestConfiguration{QuestionCount: 10, PositiveMarks: 0, NegativeMarks: 1, TimeInMinutes: 30}, false},
		{"NaN positive", domain.TestConfiguration{QuestionCount: 10, PositiveMarks: math.NaN(), NegativeMarks: 1, TimeInMinutes: 30}, false},
		{"zero negative", domain.TestConfiguration{QuestionCount: 10, PositiveMarks: 4, NegativeMarks: 0, TimeInMinutes: 30}, true},
		{"negative negative", domain.TestConfiguration{QuestionCount: 10, PositiveMarks: 4, NegativeMarks: -1, TimeInMinutes: 30}, false},
		{"fractional marks", domain.TestConfiguration{QuestionCount: 10, PositiveMarks: 0.25, NegativeMarks: 0.125, TimeInMinutes: 30}, true},
		{"zero minutes", domain.TestConfiguration{QuestionCount: 10, PositiveMarks: 4, NegativeMarks: 1, TimeInMinutes: 0}, false},
		{"max minutes", domain.TestConfiguration{QuestionCount: 10, PositiveMarks: 4, NegativeMarks: 1, TimeInMinutes: 300}, true},
		{"above max minutes", domain.TestConfiguration{QuestionCount: 10, PositiveMarks: 4, NegativeMarks: 1, TimeInMinutes: 301}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store, _ := newStore()
			err := store.SaveConfiguration(ctx, tc.cfg)
			if tc.valid && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.valid {
				var cfgErr *domain.ConfigurationError
				if !errors.As(err, &cfgErr) || !errors.Is(err, domain.ErrInvalidConfiguration) {
					t.Fatalf("expected configuration error, got %v", err)
				}
				if cfgErr.Reason == "" {
					t.Fatalf("expected a reason")
				}
			}
		})
	}
}

func TestConfigurationReasonNamesBounds(t *testing.T) {
	store := app.NewSessionStore(memory.NewSessionStore(), app.Bounds{MinQuestions: 5, MaxQuestions: 100, MaxMinutes: 300})
	err := store.ValidateConfiguration(domain.TestConfiguration{QuestionCount: 150, PositiveMarks: 1, NegativeMarks: 0, TimeInMinutes: 10})
	var cfgErr *domain.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if cfgErr.Field != "questionCount" || cfgErr.Reason != "question count must be between 5 and 100" {
		t.Fatalf("unexpected error %+v", cfgErr)
	}
}

func TestInvalidConfigurationLeavesSessionUntouched(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore()
	if err := store.SaveConfiguration(ctx, validConfig()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.RecordUserAnswer(ctx, 2, domain.OptionB); err != nil {
		t.Fatalf("answer: %v", err)
	}

	bad := validConfig()
	bad.QuestionCount = 4
	if err := store.SaveConfiguration(ctx, bad); !errors.Is(err, domain.ErrInvalidConfiguration) {
		t.Fatalf("expected invalid configuration, got %v", err)
	}

	state, err := store.LoadSession(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if state.Config != validConfig() || state.UserAnswers[2] != domain.OptionB {
		t.Fatalf("prior session changed: %+v", state)
	}
}

func TestAnswerRecordAndClear(t *testing.T) {
	ctx := context.Background()
	store, fields := newStore()
	if err := store.SaveConfiguration(ctx, validConfig()); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := store.RecordUserAnswer(ctx, 1, domain.OptionA); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := store.RecordUserAnswer(ctx, 1, domain.OptionD); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if err := store.RecordUserAnswer(ctx, 3, domain.OptionC); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := store.RecordUserAnswer(ctx, 4, domain.Option("E")); !errors.Is(err, domain.ErrInvalidOption) {
		t.Fatalf("expected invalid option, got %v", err)
	}

	raw, _, _ := fields.Get(ctx, domain.FieldAnswers)
	if raw != `{"1":"D","3":"C"}` {
		t.Fatalf("unexpected persisted answers %s", raw)
	}

	if err := store.ClearUserAnswer(ctx, 1); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := store.ClearUserAnswer(ctx, 9); err != nil {
		t.Fatalf("clear absent: %v", err)
	}
	if err := store.RecordAnswerKeyEntry(ctx, 3, domain.OptionA); err != nil {
		t.Fatalf("key: %v", err)
	}
	if err := store.ClearAnswerKeyEntry(ctx, 7); err != nil {
		t.Fatalf("clear absent key: %v", err)
	}

	state, err := store.LoadSession(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(state.UserAnswers) != 1 || state.UserAnswers[3] != domain.OptionC {
		t.Fatalf("unexpected answers %+v", state.UserAnswers)
	}
	if len(state.AnswerKey) != 1 || state.AnswerKey[3] != domain.OptionA {
		t.Fatalf("unexpected key %+v", state.AnswerKey)
	}
}

func TestMarkCompletedPurgesRemainingTime(t *testing.T) {
	ctx := context.Background()
	store, fields := newStore()
	if err := store.SaveConfiguration(ctx, validConfig()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.PersistRemainingSeconds(ctx, 90); err != nil {
		t.Fatalf("persist: %v", err)
	}
	if err := store.MarkCompleted(ctx); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if _, ok, _ := fields.Get(ctx, domain.FieldTimeLeft); ok {
		t.Fatalf("expected timeLeft purged")
	}
	state, err := store.LoadSession(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !state.Completed || state.RemainingSaved {
		t.Fatalf("unexpected state %+v", state)
	}
}

func TestResetAllIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, fields := newStore()
	if err := store.SaveConfiguration(ctx, validConfig()); err != nil {
		t.Fatalf("save: %v", err)
	}
	_ = store.RecordUserAnswer(ctx, 1, domain.OptionA)
	_ = store.RecordAnswerKeyEntry(ctx, 1, domain.OptionB)
	_ = store.PersistRemainingSeconds(ctx, 33)
	_ = fields.Set(ctx, domain.FieldTestCompleted, "true")

	for i := 0; i < 2; i++ {
		if err := store.ResetAll(ctx); err != nil {
			t.Fatalf("reset %d: %v", i, err)
		}
		for _, f := range domain.SessionFields() {
			if _, ok, _ := fields.Get(ctx, f); ok {
				t.Fatalf("reset %d left %s behind", i, f)
			}
		}
	}
	if _, err := store.LoadSession(ctx); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found after reset, got %v", err)
	}
}

func TestLoadSessionCorrupt(t *testing.T) {
	ctx := context.Background()
	cases := map[domain.Field]string{
		domain.FieldTestConfig:     `{not json`,
		domain.FieldAnswers:        `{"1":"Z"}`,
		domain.FieldCorrectAnswers: `[1,2]`,
		domain.FieldTimeLeft:       `soon`,
	}
	for field, raw := range cases {
		t.Run(string(field), func(t *testing.T) {
			store, fields := newStore()
			if err := store.SaveConfiguration(ctx, validConfig()); err != nil {
				t.Fatalf("save: %v", err)
			}
			_ = fields.Set(ctx, field, raw)
			if _, err := store.LoadSession(ctx); !errors.Is(err, domain.ErrCorruptSession) {
				t.Fatalf("expected corrupt session, got %v", err)
			}
		})
	}
}

func TestCompletedFlagValues(t *testing.T) {
	ctx := context.Background()
	store, fields := newStore()
	if err := store.SaveConfiguration(ctx, validConfig()); err != nil {
		t.Fatalf("save: %v", err)
	}
	_ = fields.Set(ctx, domain.FieldTestCompleted, "false")
	state, _ := store.LoadSession(ctx)
	if state.Completed {
		t.Fatalf("expected \"false\" to mean not completed")
	}
	_ = fields.Set(ctx, domain.FieldTestCompleted, "1")
	state, _ = store.LoadSession(ctx)
	if !state.Completed {
		t.Fatalf("expected presence to mean completed")
	}
}
