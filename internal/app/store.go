package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/go-playground/validator/v10"

	"omrzen/internal/domain"
)

// FieldStore abstracts the durable key/value storage a session lives in (SQLite, Redis, etc).
type FieldStore interface {
	Get(ctx context.Context, field domain.Field) (string, bool, error)
	Set(ctx context.Context, field domain.Field, value string) error
	// Delete removes all given fields in one atomic operation.
	Delete(ctx context.Context, fields ...domain.Field) error
}

// Bounds limits what a configuration may ask for.
type Bounds struct {
	MinQuestions int
	MaxQuestions int
	MaxMinutes   int
}

func DefaultBounds() Bounds {
	return Bounds{MinQuestions: 5, MaxQuestions: 200, MaxMinutes: 300}
}

// SessionStore is the only component that reads or writes session fields.
// Every write touches exactly one field and is durable before returning.
type SessionStore struct {
	fields   FieldStore
	bounds   Bounds
	validate *validator.Validate
}

func NewSessionStore(fields FieldStore, bounds Bounds) *SessionStore {
	return &SessionStore{
		fields:   fields,
		bounds:   bounds,
		validate: validator.New(),
	}
}

func (s *SessionStore) Bounds() Bounds {
	return s.bounds
}

// LoadSession reconstructs the session; domain.ErrNotFound when no configuration is stored.
func (s *SessionStore) LoadSession(ctx context.Context) (domain.SessionState, error) {
	state := domain.SessionState{}

	cfg, err := s.loadConfig(ctx)
	if err != nil {
		return state, err
	}
	state.Config = cfg

	if state.UserAnswers, err = s.loadAnswers(ctx, domain.FieldAnswers); err != nil {
		return state, err
	}
	if state.AnswerKey, err = s.loadAnswers(ctx, domain.FieldCorrectAnswers); err != nil {
		return state, err
	}
	if state.RemainingSeconds, state.RemainingSaved, err = s.RemainingSeconds(ctx); err != nil {
		return state, err
	}
	if state.Completed, err = s.completed(ctx); err != nil {
		return state, err
	}
	return state, nil
}

// ValidateConfiguration checks a configuration against the store bounds.
func (s *SessionStore) ValidateConfiguration(cfg domain.TestConfiguration) error {
	b := s.bounds
	if math.IsNaN(cfg.PositiveMarks) || math.IsInf(cfg.PositiveMarks, 0) {
		return s.configurationError("PositiveMarks")
	}
	if math.IsNaN(cfg.NegativeMarks) || math.IsInf(cfg.NegativeMarks, 0) {
		return s.configurationError("NegativeMarks")
	}
	if err := s.validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return s.configurationError(verrs[0].StructField())
		}
		return err
	}
	if err := s.validate.Var(cfg.QuestionCount, fmt.Sprintf("min=%d,max=%d", b.MinQuestions, b.MaxQuestions)); err != nil {
		return s.configurationError("QuestionCount")
	}
	if err := s.validate.Var(cfg.TimeInMinutes, fmt.Sprintf("min=1,max=%d", b.MaxMinutes)); err != nil {
		return s.configurationError("TimeInMinutes")
	}
	return nil
}

func (s *SessionStore) configurationError(structField string) error {
	b := s.bounds
	switch structField {
	case "QuestionCount":
		return &domain.ConfigurationError{
			Field:  "questionCount",
			Reason: fmt.Sprintf("question count must be between %d and %d", b.MinQuestions, b.MaxQuestions),
		}
	case "PositiveMarks":
		return &domain.ConfigurationError{Field: "positiveMarks", Reason: "marks for a correct answer must be greater than 0"}
	case "NegativeMarks":
		return &domain.ConfigurationError{Field: "negativeMarks", Reason: "marks for an incorrect answer cannot be negative"}
	default:
		return &domain.ConfigurationError{
			Field:  "timeInMinutes",
			Reason: fmt.Sprintf("duration must be between 1 and %d minutes", b.MaxMinutes),
		}
	}
}

// SaveConfiguration creates a fresh session. An invalid configuration leaves storage untouched.
func (s *SessionStore) SaveConfiguration(ctx context.Context, cfg domain.TestConfiguration) error {
	if err := s.ValidateConfiguration(cfg); err != nil {
		return err
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	// Everything except the configuration starts empty.
	var rest []domain.Field
	for _, f := range domain.SessionFields() {
		if f != domain.FieldTestConfig {
			rest = append(rest, f)
		}
	}
	if err := s.fields.Delete(ctx, rest...); err != nil {
		return err
	}
	return s.fields.Set(ctx, domain.FieldTestConfig, string(raw))
}

func (s *SessionStore) RecordUserAnswer(ctx context.Context, question int, opt domain.Option) error {
	return s.putAnswer(ctx, domain.FieldAnswers, question, opt)
}

func (s *SessionStore) ClearUserAnswer(ctx context.Context, question int) error {
	return s.dropAnswer(ctx, domain.FieldAnswers, question)
}

func (s *SessionStore) RecordAnswerKeyEntry(ctx context.Context, question int, opt domain.Option) error {
	return s.putAnswer(ctx, domain.FieldCorrectAnswers, question, opt)
}

func (s *SessionStore) ClearAnswerKeyEntry(ctx context.Context, question int) error {
	return s.dropAnswer(ctx, domain.FieldCorrectAnswers, question)
}

// MarkCompleted flags the session complete and purges the countdown.
func (s *SessionStore) MarkCompleted(ctx context.Context) error {
	if err := s.fields.Set(ctx, domain.FieldTestCompleted, "true"); err != nil {
		return err
	}
	return s.fields.Delete(ctx, domain.FieldTimeLeft)
}

func (s *SessionStore) PersistRemainingSeconds(ctx context.Context, seconds int) error {
	return s.fields.Set(ctx, domain.FieldTimeLeft, strconv.Itoa(seconds))
}

// RemainingSeconds returns the persisted countdown, if any.
func (s *SessionStore) RemainingSeconds(ctx context.Context) (int, bool, error) {
	raw, ok, err := s.fields.Get(ctx, domain.FieldTimeLeft)
	if err != nil || !ok {
		return 0, false, err
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%w: timeLeft %q", domain.ErrCorruptSession, raw)
	}
	return seconds, true, nil
}

// ResetAll removes every session field at once. Safe to call repeatedly.
func (s *SessionStore) ResetAll(ctx context.Context) error {
	return s.fields.Delete(ctx, domain.SessionFields()...)
}

func (s *SessionStore) loadConfig(ctx context.Context) (domain.TestConfiguration, error) {
	var cfg domain.TestConfiguration
	raw, ok, err := s.fields.Get(ctx, domain.FieldTestConfig)
	if err != nil {
		return cfg, err
	}
	if !ok {
		return cfg, domain.ErrNotFound
	}
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return cfg, fmt.Errorf("%w: testConfig: %v", domain.ErrCorruptSession, err)
	}
	return cfg, nil
}

func (s *SessionStore) loadAnswers(ctx context.Context, field domain.Field) (domain.AnswerMap, error) {
	raw, ok, err := s.fields.Get(ctx, field)
	if err != nil {
		return nil, err
	}
	answers := domain.AnswerMap{}
	if !ok {
		return answers, nil
	}
	if err := json.Unmarshal([]byte(raw), &answers); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrCorruptSession, field, err)
	}
	for q, opt := range answers {
		if !opt.Valid() {
			return nil, fmt.Errorf("%w: %s: question %d has option %q", domain.ErrCorruptSession, field, q, opt)
		}
	}
	return answers, nil
}

func (s *SessionStore) completed(ctx context.Context) (bool, error) {
	raw, ok, err := s.fields.Get(ctx, domain.FieldTestCompleted)
	if err != nil {
		return false, err
	}
	return ok && raw != "false", nil
}

func (s *SessionStore) putAnswer(ctx context.Context, field domain.Field, question int, opt domain.Option) error {
	if !opt.Valid() {
		return domain.ErrInvalidOption
	}
	answers, err := s.loadAnswers(ctx, field)
	if err != nil {
		return err
	}
	answers[question] = opt
	return s.writeAnswers(ctx, field, answers)
}

func (s *SessionStore) dropAnswer(ctx context.Context, field domain.Field, question int) error {
	answers, err := s.loadAnswers(ctx, field)
	if err != nil {
		return err
	}
	if _, ok := answers[question]; !ok {
		return nil
	}
	delete(answers, question)
	return s.writeAnswers(ctx, field, answers)
}

func (s *SessionStore) writeAnswers(ctx context.Context, field domain.Field, answers domain.AnswerMap) error {
	raw, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", field, err)
	}
	return s.fields.Set(ctx, field, string(raw))
}
