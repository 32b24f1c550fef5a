package domain

import (
	"sort"
	"strings"
)

// Option is one of the four fixed multiple-choice selections.
type Option string

const (
	OptionA Option = "A"
	OptionB Option = "B"
	OptionC Option = "C"
	OptionD Option = "D"
)

// Options lists the choice set in display order.
var Options = []Option{OptionA, OptionB, OptionC, OptionD}

// ParseOption accepts "a".."d" in either case.
func ParseOption(raw string) (Option, error) {
	opt := Option(strings.ToUpper(strings.TrimSpace(raw)))
	if !opt.Valid() {
		return "", ErrInvalidOption
	}
	return opt, nil
}

func (o Option) Valid() bool {
	switch o {
	case OptionA, OptionB, OptionC, OptionD:
		return true
	}
	return false
}

// AnswerMap maps a question number to the option chosen for it.
// A missing key means unattempted (user answers) or not yet marked (answer key).
type AnswerMap map[int]Option

// Clone returns an independent copy; a nil map clones to an empty one.
func (m AnswerMap) Clone() AnswerMap {
	out := make(AnswerMap, len(m))
	for q, opt := range m {
		out[q] = opt
	}
	return out
}

// Questions returns the question numbers present, ascending.
func (m AnswerMap) Questions() []int {
	qs := make([]int, 0, len(m))
	for q := range m {
		qs = append(qs, q)
	}
	sort.Ints(qs)
	return qs
}

// TestConfiguration is fixed once the answering phase begins.
type TestConfiguration struct {
	QuestionCount int     `json:"questionCount" validate:"gt=0"`
	PositiveMarks float64 `json:"positiveMarks" validate:"gt=0"`
	NegativeMarks float64 `json:"negativeMarks" validate:"gte=0"`
	TimeInMinutes int     `json:"timeInMinutes" validate:"gt=0"`
}

// DurationSeconds is the configured countdown length.
func (c TestConfiguration) DurationSeconds() int {
	return c.TimeInMinutes * 60
}

// Phase is the position of a session in its lifecycle.
type Phase string

const (
	PhaseConfiguring Phase = "configuring"
	PhaseAnswering   Phase = "answering"
	PhaseChecking    Phase = "checking"
	PhaseScored      Phase = "scored"
)

// SessionState is the aggregate reconstructed from storage.
type SessionState struct {
	Config      TestConfiguration `json:"config"`
	UserAnswers AnswerMap         `json:"answers"`
	AnswerKey   AnswerMap         `json:"correctAnswers"`
	// RemainingSeconds is meaningful only when RemainingSaved is true.
	RemainingSeconds int    `json:"remainingSeconds"`
	RemainingSaved   bool   `json:"-"`
	Completed        bool   `json:"completed"`
	TestName         string `json:"testName"`
}

// Pending returns attempted questions that have no marked answer yet, ascending.
func (s SessionState) Pending() []int {
	var pending []int
	for _, q := range s.UserAnswers.Questions() {
		if _, ok := s.AnswerKey[q]; !ok {
			pending = append(pending, q)
		}
	}
	return pending
}

// QuestionResult is one graded row of a report.
type QuestionResult struct {
	Question      int    `json:"question"`
	UserOption    Option `json:"userAnswer"`
	CorrectOption Option `json:"correctAnswer,omitempty"`
	IsCorrect     bool   `json:"isCorrect"`
}

// Pending reports whether the question is attempted but not yet marked.
func (r QuestionResult) Pending() bool {
	return r.CorrectOption == ""
}

// ScoreReport is the outcome of grading a session.
type ScoreReport struct {
	TotalQuestions   int              `json:"totalQuestions"`
	CorrectCount     int              `json:"correctCount"`
	IncorrectCount   int              `json:"incorrectCount"`
	PendingCount     int              `json:"pendingCount"`
	UnattemptedCount int              `json:"unattemptedCount"`
	TotalScore       float64          `json:"totalScore"`
	PerQuestion      []QuestionResult `json:"perQuestion"`
}

// Attempted is the number of questions the user answered.
func (r ScoreReport) Attempted() int {
	return len(r.PerQuestion)
}

// Progress summarizes the checking phase for a grid or status line.
type Progress struct {
	Phase          Phase `json:"phase"`
	TotalQuestions int   `json:"totalQuestions"`
	Answered       int   `json:"answered"`
	Marked         int   `json:"marked"`
	// CanScore is true once every attempted question has a marked answer.
	CanScore bool `json:"canScore"`
}
