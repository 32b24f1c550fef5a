package app

import (
	"math"

	"omrzen/internal/domain"
)

// Score grades user answers against the marked key. Attempted questions with no
// marked answer are pending: they add nothing and count as neither correct nor
// incorrect. The total is accumulated first and rounded once, to 3 decimals.
func Score(cfg domain.TestConfiguration, answers, key domain.AnswerMap) domain.ScoreReport {
	report := domain.ScoreReport{
		TotalQuestions: cfg.QuestionCount,
		PerQuestion:    make([]domain.QuestionResult, 0, len(answers)),
	}

	total := 0.0
	for _, q := range answers.Questions() {
		userOpt := answers[q]
		result := domain.QuestionResult{Question: q, UserOption: userOpt}

		correctOpt, marked := key[q]
		switch {
		case !marked:
			report.PendingCount++
		case correctOpt == userOpt:
			result.CorrectOption = correctOpt
			result.IsCorrect = true
			report.CorrectCount++
			total += cfg.PositiveMarks
		default:
			result.CorrectOption = correctOpt
			report.IncorrectCount++
			total -= cfg.NegativeMarks
		}
		report.PerQuestion = append(report.PerQuestion, result)
	}

	report.UnattemptedCount = cfg.QuestionCount - len(answers)
	if report.UnattemptedCount < 0 {
		report.UnattemptedCount = 0
	}
	report.TotalScore = roundScore(total)
	return report
}

func roundScore(v float64) float64 {
	r := math.Round(v*1000) / 1000
	if r == 0 {
		// normalize -0
		return 0
	}
	return r
}
