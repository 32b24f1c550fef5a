package domain

// Field names one independently persisted part of a session.
type Field string

const (
	FieldTestConfig     Field = "testConfig"
	FieldAnswers        Field = "answers"
	FieldCorrectAnswers Field = "correctAnswers"
	FieldTimeLeft       Field = "timeLeft"
	FieldTestCompleted  Field = "testCompleted"
)

// SessionFields is the only list of persisted session fields.
// Reset and session creation both derive from it.
func SessionFields() []Field {
	return []Field{
		FieldTestConfig,
		FieldAnswers,
		FieldCorrectAnswers,
		FieldTimeLeft,
		FieldTestCompleted,
	}
}
