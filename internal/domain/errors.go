package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no test configuration is stored.
	ErrNotFound = errors.New("test session not found")
	// ErrInvalidConfiguration wraps every configuration bound violation.
	ErrInvalidConfiguration = errors.New("invalid test configuration")
	// ErrStorageUnavailable marks failures of the durable storage itself.
	ErrStorageUnavailable = errors.New("session storage unavailable")
	// ErrCorruptSession indicates stored fields that cannot be decoded.
	ErrCorruptSession = errors.New("stored session is corrupt")
	// ErrInvalidPhase is returned for operations not allowed in the current phase.
	ErrInvalidPhase = errors.New("operation not allowed in current phase")
	// ErrInvalidQuestion indicates a question number outside 1..questionCount.
	ErrInvalidQuestion = errors.New("question number out of range")
	// ErrInvalidOption indicates an option outside A-D.
	ErrInvalidOption = errors.New("option must be one of A, B, C, D")
	// ErrNotAttempted is returned when marking a question the user never answered.
	ErrNotAttempted = errors.New("question was not attempted")
	// ErrNothingAnswered rejects an explicit submission with no answers.
	ErrNothingAnswered = errors.New("no questions answered")
	// ErrPendingQuestions rejects scoring while attempted questions are unmarked.
	ErrPendingQuestions = errors.New("some attempted questions have no marked answer")
)

// ConfigurationError carries a human-readable reason for a rejected configuration.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidConfiguration, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrInvalidConfiguration
}

// PhaseError reports which operation was attempted in which phase.
type PhaseError struct {
	Op    string
	Phase Phase
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s: %s not allowed while %s", ErrInvalidPhase, e.Op, e.Phase)
}

func (e *PhaseError) Unwrap() error {
	return ErrInvalidPhase
}
