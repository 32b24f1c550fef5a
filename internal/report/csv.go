package report

import (
	"encoding/csv"
	"io"
	"strconv"
)

const (
	statusCorrect   = "Correct"
	statusIncorrect = "Incorrect"
)

// WriteCSV writes the summary rows, a blank line, then one row per attempted question.
// An unmarked question has an empty Correct Answer and status Incorrect, yet is
// counted in neither Correct Answers nor Incorrect Answers.
func WriteCSV(w io.Writer, r Report) error {
	cw := csv.NewWriter(w)
	records := [][]string{
		{"Test Name", r.TestName},
		{"Total Questions", strconv.Itoa(r.TotalQuestions)},
		{"Attempted", strconv.Itoa(r.Attempted)},
		{"Correct Answers", strconv.Itoa(r.CorrectAnswers)},
		{"Incorrect Answers", strconv.Itoa(r.IncorrectAnswers)},
		{"Final Score", FormatScore(r.Score)},
		{},
		{"Question", "User Answer", "Correct Answer", "Status"},
	}
	for _, row := range r.Answers {
		status := statusIncorrect
		if row.IsCorrect {
			status = statusCorrect
		}
		records = append(records, []string{
			strconv.Itoa(row.Question),
			string(row.UserOption),
			string(row.CorrectOption),
			status,
		})
	}
	if err := cw.WriteAll(records); err != nil {
		return err
	}
	return cw.Error()
}

// FormatScore prints a score in its shortest form: 2, 2.5, 1.333.
func FormatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
