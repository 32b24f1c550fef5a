package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"omrzen/internal/app"
	"omrzen/internal/domain"
	"omrzen/internal/report"
	transport "omrzen/internal/transport/http"
)

func newSessionCmds(configPath *string) []*cobra.Command {
	return []*cobra.Command{
		newConfigureCmd(configPath),
		newAnswerCmd(configPath),
		newClearCmd(configPath),
		newSubmitCmd(configPath),
		newMarkCmd(configPath),
		newUnmarkCmd(configPath),
		newScoreCmd(configPath),
		newReportCmd(configPath),
		newResetCmd(configPath),
		newStatusCmd(configPath),
	}
}

// withService opens the runtime, runs fn against the loaded session and closes it again.
func withService(cmd *cobra.Command, configPath string, fn func(ctx context.Context, rt *runtime) error) error {
	ctx := cmd.Context()
	rt, err := openRuntime(ctx, configPath, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

type testFlags struct {
	questions int
	positive  float64
	negative  float64
	minutes   int
}

func (f *testFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.questions, "questions", 0, "number of questions (default from config)")
	cmd.Flags().Float64Var(&f.positive, "positive", 0, "marks for a correct answer (default from config)")
	cmd.Flags().Float64Var(&f.negative, "negative", 0, "marks deducted for an incorrect answer (default from config)")
	cmd.Flags().IntVar(&f.minutes, "minutes", 0, "test duration in minutes (default from config)")
}

// apply overlays the flags that were set on the configured defaults.
func (f *testFlags) apply(cmd *cobra.Command, cfg domain.TestConfiguration) domain.TestConfiguration {
	flags := cmd.Flags()
	if flags.Changed("questions") {
		cfg.QuestionCount = f.questions
	}
	if flags.Changed("positive") {
		cfg.PositiveMarks = f.positive
	}
	if flags.Changed("negative") {
		cfg.NegativeMarks = f.negative
	}
	if flags.Changed("minutes") {
		cfg.TimeInMinutes = f.minutes
	}
	return cfg
}

func newConfigureCmd(configPath *string) *cobra.Command {
	var flags testFlags
	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Create a new test session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, *configPath, func(ctx context.Context, rt *runtime) error {
				cfg := flags.apply(cmd, rt.cfg.DefaultTest())
				if err := rt.service.Configure(ctx, cfg); err != nil {
					if errors.Is(err, domain.ErrInvalidPhase) {
						return fmt.Errorf("a test is already in progress; run reset first: %w", err)
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Test configured: %d questions, +%s / -%s, %d minutes\n",
					cfg.QuestionCount, report.FormatScore(cfg.PositiveMarks), report.FormatScore(cfg.NegativeMarks), cfg.TimeInMinutes)
				return nil
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newAnswerCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "answer QUESTION OPTION",
		Short: "Record your answer (A-D) for a question",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, opt, err := parseQuestionOption(args)
			if err != nil {
				return err
			}
			return withService(cmd, *configPath, func(ctx context.Context, rt *runtime) error {
				if err := rt.service.Answer(ctx, q, opt); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Question %d: %s\n", q, opt)
				return nil
			})
		},
	}
}

func newClearCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "clear QUESTION",
		Short: "Clear your answer for a question",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := parseQuestion(args[0])
			if err != nil {
				return err
			}
			return withService(cmd, *configPath, func(ctx context.Context, rt *runtime) error {
				if err := rt.service.ClearAnswer(ctx, q); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Answer cleared")
				return nil
			})
		},
	}
}

func newSubmitCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "submit",
		Short: "Finish answering and move to checking",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, *configPath, func(ctx context.Context, rt *runtime) error {
				if err := rt.service.Submit(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Test submitted. Mark the correct answers, then run score.")
				return nil
			})
		},
	}
}

func newMarkCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "mark QUESTION OPTION",
		Short: "Mark the correct option for an attempted question",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, opt, err := parseQuestionOption(args)
			if err != nil {
				return err
			}
			return withService(cmd, *configPath, func(ctx context.Context, rt *runtime) error {
				correct, err := rt.service.MarkAnswer(ctx, q, opt)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), transport.MarkMessage(q, correct))
				return nil
			})
		},
	}
}

func newUnmarkCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "unmark QUESTION",
		Short: "Remove the marked correct option for a question",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := parseQuestion(args[0])
			if err != nil {
				return err
			}
			return withService(cmd, *configPath, func(ctx context.Context, rt *runtime) error {
				if err := rt.service.ClearMark(ctx, q); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Question %d: mark cleared\n", q)
				return nil
			})
		},
	}
}

func newScoreCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "score",
		Short: "Calculate the score once every attempted question is marked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, *configPath, func(ctx context.Context, rt *runtime) error {
				result, err := rt.service.Score(ctx)
				if err != nil {
					return err
				}
				printScore(cmd.OutOrStdout(), result)
				return nil
			})
		},
	}
}

func newReportCmd(configPath *string) *cobra.Command {
	var (
		format string
		name   string
		output string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Export the scored test as CSV or JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			return withService(cmd, *configPath, func(ctx context.Context, rt *runtime) error {
				result, err := rt.service.Score(ctx)
				if err != nil {
					return err
				}
				testName := rt.service.Rename(name)
				r := report.New(testName, result)

				if output == "-" {
					return report.Write(cmd.OutOrStdout(), f, r)
				}
				if output == "" {
					output = report.FileName(testName, f)
				}
				file, err := os.Create(output)
				if err != nil {
					return err
				}
				if err := report.Write(file, f, r); err != nil {
					file.Close()
					return err
				}
				if err := file.Close(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", output)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", string(report.FormatCSV), "report format: csv or json")
	cmd.Flags().StringVar(&name, "name", app.DefaultTestName, "test name shown in the report")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file, - for stdout (default <name>-report.<format>)")
	return cmd
}

func newResetCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Delete the current test session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, *configPath, func(ctx context.Context, rt *runtime) error {
				if err := rt.service.Reset(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Session reset")
				return nil
			})
		},
	}
}

func newStatusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current phase and progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, *configPath, func(ctx context.Context, rt *runtime) error {
				return printStatus(ctx, cmd.OutOrStdout(), rt.service)
			})
		},
	}
}

func printStatus(ctx context.Context, out io.Writer, service *app.TestService) error {
	state, err := service.State(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		fmt.Fprintln(out, "No test in progress. Run configure or take to start one.")
		return nil
	}
	if err != nil {
		return err
	}
	progress, err := service.Progress(ctx)
	if err != nil {
		return err
	}

	cfg := state.Config
	fmt.Fprintf(out, "Phase:     %s\n", progress.Phase)
	fmt.Fprintf(out, "Test:      %d questions, +%s / -%s, %d minutes\n",
		cfg.QuestionCount, report.FormatScore(cfg.PositiveMarks), report.FormatScore(cfg.NegativeMarks), cfg.TimeInMinutes)
	fmt.Fprintf(out, "Answered:  %d/%d\n", progress.Answered, progress.TotalQuestions)
	if progress.Phase == domain.PhaseAnswering {
		remaining := cfg.DurationSeconds()
		if state.RemainingSaved {
			remaining = state.RemainingSeconds
		}
		fmt.Fprintf(out, "Remaining: %s\n", app.FormatRemaining(remaining))
	} else {
		fmt.Fprintf(out, "Marked:    %d/%d\n", progress.Marked, progress.Answered)
	}
	if len(state.UserAnswers) > 0 {
		fmt.Fprintf(out, "Answers:   %s\n", formatAnswers(state.UserAnswers))
	}
	return nil
}

func printScore(out io.Writer, r domain.ScoreReport) {
	fmt.Fprintf(out, "Correct:     %d\n", r.CorrectCount)
	fmt.Fprintf(out, "Incorrect:   %d\n", r.IncorrectCount)
	fmt.Fprintf(out, "Unattempted: %d\n", r.UnattemptedCount)
	fmt.Fprintf(out, "Score:       %s\n", report.FormatScore(r.TotalScore))
}

func formatAnswers(answers domain.AnswerMap) string {
	parts := make([]string, 0, len(answers))
	for _, q := range answers.Questions() {
		parts = append(parts, fmt.Sprintf("%d:%s", q, answers[q]))
	}
	return strings.Join(parts, " ")
}

func parseQuestion(raw string) (int, error) {
	q, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidQuestion, raw)
	}
	return q, nil
}

func parseQuestionOption(args []string) (int, domain.Option, error) {
	q, err := parseQuestion(args[0])
	if err != nil {
		return 0, "", err
	}
	opt, err := domain.ParseOption(args[1])
	if err != nil {
		return 0, "", err
	}
	return q, opt, nil
}
