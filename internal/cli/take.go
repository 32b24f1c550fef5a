package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"omrzen/internal/app"
	"omrzen/internal/domain"
	transport "omrzen/internal/transport/http"
)

// NewTakeCmd runs a test interactively: answering with a live countdown, then marking and scoring.
func NewTakeCmd(configPath *string) *cobra.Command {
	var flags testFlags
	cmd := &cobra.Command{
		Use:   "take",
		Short: "Take a timed test in the terminal",
		Long: `Take a timed test in the terminal.

While answering, type a-d to answer the current question and move to the next one.
Other commands: n (next), p (previous), g N (go to question N), x (clear answer),
t (time left), s (submit), q (quit, progress is kept), ? (help).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, *configPath, func(ctx context.Context, rt *runtime) error {
				return runTake(ctx, rt.service, flags.apply(cmd, rt.cfg.DefaultTest()), cmd.InOrStdin(), cmd.OutOrStdout())
			})
		},
	}
	flags.register(cmd)
	return cmd
}

// errQuit ends the session loop without submitting.
var errQuit = errors.New("quit")

type taker struct {
	service *app.TestService
	out     io.Writer
	lines   <-chan string
	current int
	total   int
	warned  bool
}

func runTake(ctx context.Context, service *app.TestService, defaults domain.TestConfiguration, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()

	t := &taker{service: service, out: out, lines: lines, current: 1}

	if service.Phase() == domain.PhaseConfiguring {
		if err := service.Configure(ctx, defaults); err != nil {
			return err
		}
		fmt.Fprintf(out, "New test: %d questions, %d minutes.\n", defaults.QuestionCount, defaults.TimeInMinutes)
	}

	if service.Phase() == domain.PhaseAnswering {
		err := t.answer(ctx)
		if errors.Is(err, errQuit) || errors.Is(err, io.EOF) {
			fmt.Fprintln(out, "Progress saved. Run take again to resume.")
			return nil
		}
		if err != nil {
			return err
		}
	}

	err := t.check(ctx)
	if errors.Is(err, errQuit) || errors.Is(err, io.EOF) {
		fmt.Fprintln(out, "Marks saved. Run take again to finish checking.")
		return nil
	}
	return err
}

// answer runs the countdown and reads answers until the test is submitted or time runs out.
func (t *taker) answer(ctx context.Context) error {
	events, cancel, err := t.service.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	state, err := t.service.State(ctx)
	if err != nil {
		return err
	}
	t.total = state.Config.QuestionCount
	if status, ok := t.service.TimerStatus(); ok {
		fmt.Fprintf(t.out, "Time left: %s\n", app.FormatRemaining(status.Remaining))
	}
	t.prompt(state.UserAnswers)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch {
			case ev.Type == domain.EventCompleted:
				if ev.Forced {
					fmt.Fprintln(t.out, "\nTime is up! Your answers have been submitted.")
				}
				return nil
			case ev.Type == domain.EventError:
				return fmt.Errorf("countdown stopped: %w", ev.Err)
			case ev.Type == domain.EventTick && ev.Tick != nil && ev.Tick.RunningLow && !t.warned:
				t.warned = true
				fmt.Fprintf(t.out, "\nHurry up: %s left.\n", app.FormatRemaining(ev.Tick.Remaining))
			}

		case line, ok := <-t.lines:
			if !ok {
				return io.EOF
			}
			done, err := t.command(ctx, line)
			if errors.Is(err, domain.ErrInvalidPhase) && t.service.Phase() != domain.PhaseAnswering {
				// Time ran out between reading the line and handling it.
				fmt.Fprintln(t.out, "\nTime is up! Your answers have been submitted.")
				return nil
			}
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}
	}
}

// command handles one answering-phase input line; done is true once submitted.
func (t *taker) command(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return false, nil
	}

	switch fields[0] {
	case "a", "b", "c", "d":
		opt, _ := domain.ParseOption(fields[0])
		if err := t.service.Answer(ctx, t.current, opt); err != nil {
			return false, err
		}
		if t.current < t.total {
			t.current++
		}
	case "x":
		if err := t.service.ClearAnswer(ctx, t.current); err != nil {
			return false, err
		}
		fmt.Fprintln(t.out, "Answer cleared")
	case "n":
		if t.current < t.total {
			t.current++
		}
	case "p":
		if t.current > 1 {
			t.current--
		}
	case "g":
		if len(fields) < 2 {
			fmt.Fprintln(t.out, "usage: g N")
			return false, nil
		}
		q, err := strconv.Atoi(fields[1])
		if err != nil || q < 1 || q > t.total {
			fmt.Fprintf(t.out, "question must be between 1 and %d\n", t.total)
			return false, nil
		}
		t.current = q
	case "t":
		if status, ok := t.service.TimerStatus(); ok {
			fmt.Fprintf(t.out, "Time left: %s\n", app.FormatRemaining(status.Remaining))
		}
		return false, nil
	case "s":
		err := t.service.Submit(ctx)
		if errors.Is(err, domain.ErrNothingAnswered) {
			fmt.Fprintln(t.out, "Answer at least one question before submitting.")
			return false, nil
		}
		if err != nil {
			return false, err
		}
		fmt.Fprintln(t.out, "Test submitted.")
		return true, nil
	case "q":
		return false, errQuit
	case "?", "h", "help":
		fmt.Fprintln(t.out, "a-d answer, n next, p previous, g N go to, x clear, t time, s submit, q quit")
		return false, nil
	default:
		fmt.Fprintf(t.out, "unknown command %q, type ? for help\n", line)
		return false, nil
	}

	state, err := t.service.State(ctx)
	if err != nil {
		return false, err
	}
	t.prompt(state.UserAnswers)
	return false, nil
}

func (t *taker) prompt(answers domain.AnswerMap) {
	mark := "-"
	if opt, ok := answers[t.current]; ok {
		mark = string(opt)
	}
	fmt.Fprintf(t.out, "[%d/%d answered] Q%d (%s) > ", len(answers), t.total, t.current, mark)
}

// check asks for the correct option of every attempted but unmarked question, then scores.
func (t *taker) check(ctx context.Context) error {
	state, err := t.service.State(ctx)
	if err != nil {
		return err
	}
	pending := state.Pending()
	if len(pending) > 0 {
		fmt.Fprintf(t.out, "\nMark the correct answers (%d to go). Enter a-d, or q to stop.\n", len(pending))
	}

	for _, q := range pending {
		for {
			fmt.Fprintf(t.out, "Q%d, you answered %s. Correct option > ", q, state.UserAnswers[q])
			line, ok := <-t.lines
			if !ok {
				return io.EOF
			}
			if strings.EqualFold(line, "q") {
				return errQuit
			}
			opt, err := domain.ParseOption(line)
			if err != nil {
				fmt.Fprintln(t.out, err)
				continue
			}
			correct, err := t.service.MarkAnswer(ctx, q, opt)
			if err != nil {
				return err
			}
			fmt.Fprintln(t.out, transport.MarkMessage(q, correct))
			break
		}
	}

	result, err := t.service.Score(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(t.out)
	printScore(t.out, result)
	return nil
}
