// Package report renders a scored session as a downloadable CSV or JSON file.
package report

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"omrzen/internal/domain"
)

// Format is a report serialization.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ErrUnknownFormat is returned by ParseFormat for anything but csv or json.
var ErrUnknownFormat = errors.New("report format must be csv or json")

// ParseFormat accepts "csv" or "json" in any case.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, raw)
}

// ContentType is the MIME type served for a download.
func (f Format) ContentType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "text/csv; charset=utf-8"
}

// Report is the exported view of a ScoreReport.
type Report struct {
	TestName         string                  `json:"testName"`
	TotalQuestions   int                     `json:"totalQuestions"`
	Attempted        int                     `json:"attempted"`
	CorrectAnswers   int                     `json:"correctAnswers"`
	IncorrectAnswers int                     `json:"incorrectAnswers"`
	Score            float64                 `json:"score"`
	Answers          []domain.QuestionResult `json:"answers"`
}

// New builds the exported view. Rows keep the ascending question order of the score report.
func New(testName string, score domain.ScoreReport) Report {
	answers := make([]domain.QuestionResult, len(score.PerQuestion))
	copy(answers, score.PerQuestion)
	return Report{
		TestName:         testName,
		TotalQuestions:   score.TotalQuestions,
		Attempted:        score.Attempted(),
		CorrectAnswers:   score.CorrectCount,
		IncorrectAnswers: score.IncorrectCount,
		Score:            score.TotalScore,
		Answers:          answers,
	}
}

// Write renders r in the given format.
func Write(w io.Writer, format Format, r Report) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, r)
	case FormatJSON:
		return WriteJSON(w, r)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, string(format))
}

var whitespace = regexp.MustCompile(`\s+`)

// FileName is the download name: whitespace runs in the test name become '-'.
func FileName(testName string, format Format) string {
	return whitespace.ReplaceAllString(testName, "-") + "-report." + string(format)
}
