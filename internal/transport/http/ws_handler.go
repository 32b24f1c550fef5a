package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"omrzen/internal/app"
	"omrzen/internal/domain"
)

type WSHandler struct {
	service  *app.TestService
	defaults domain.TestConfiguration
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler drives a TestService over websockets. defaults fills a configure
// message that carries no payload.
func NewWSHandler(service *app.TestService, defaults domain.TestConfiguration, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		service:  service,
		defaults: defaults,
		log:      log.With().Str("component", "ws").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type questionPayload struct {
	Question int    `json:"question"`
	Option   string `json:"option"`
}

type renamePayload struct {
	Name string `json:"name"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type statePayload struct {
	Phase          domain.Phase              `json:"phase"`
	TestName       string                    `json:"testName"`
	Config         *domain.TestConfiguration `json:"config,omitempty"`
	Answers        domain.AnswerMap          `json:"answers,omitempty"`
	CorrectAnswers domain.AnswerMap          `json:"correctAnswers,omitempty"`
	Progress       domain.Progress           `json:"progress"`
	Timer          *domain.TickStatus        `json:"timer,omitempty"`
}

type completedPayload struct {
	Forced bool `json:"forced"`
}

type markResult struct {
	Question int    `json:"question"`
	Correct  bool   `json:"correct"`
	Message  string `json:"message"`
}

type errorPayload struct {
	Message string `json:"message"`
	// Fatal is set when storage failed and the session can no longer be trusted.
	Fatal bool `json:"fatal,omitempty"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the session use cases.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()
	ctx := r.Context()

	updates, cancel, err := h.service.Subscribe(ctx)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: toErrorPayload(err)})
		return
	}
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// The writer is the only goroutine touching conn for writes.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug().Err(err).Msg("ws write error")
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case ev, ok := <-updates:
				if !ok {
					return
				}
				for _, msg := range h.eventMessages(ctx, ev) {
					select {
					case send <- msg:
					case <-closeSignals:
						return
					}
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if msg, ok := h.handle(ctx, inbound); ok {
			send <- msg
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// handle runs one inbound command. State changes reach the client through the
// subscription, so only direct replies are returned here.
func (h *WSHandler) handle(ctx context.Context, in inboundMessage) (outboundMessage[any], bool) {
	var err error
	switch in.Type {
	case "state":
		if h.service.Phase() == domain.PhaseAnswering {
			if err := h.service.StartTimer(ctx); err != nil && !errors.Is(err, domain.ErrInvalidPhase) {
				return errorMessage(err), true
			}
		}
		return h.stateMessage(ctx), true
	case "configure":
		cfg := h.defaults
		if len(in.Payload) > 0 && string(in.Payload) != "null" {
			if err := json.Unmarshal(in.Payload, &cfg); err != nil {
				return errorMessage(errors.New("invalid configure payload")), true
			}
		}
		err = h.service.Configure(ctx, cfg)
	case "answer":
		var p questionPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return errorMessage(errors.New("invalid answer payload")), true
		}
		opt, perr := domain.ParseOption(p.Option)
		if perr != nil {
			return errorMessage(perr), true
		}
		err = h.service.Answer(ctx, p.Question, opt)
	case "clearAnswer":
		var p questionPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return errorMessage(errors.New("invalid clearAnswer payload")), true
		}
		err = h.service.ClearAnswer(ctx, p.Question)
	case "submit":
		err = h.service.Submit(ctx)
	case "mark":
		var p questionPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return errorMessage(errors.New("invalid mark payload")), true
		}
		opt, perr := domain.ParseOption(p.Option)
		if perr != nil {
			return errorMessage(perr), true
		}
		correct, merr := h.service.MarkAnswer(ctx, p.Question, opt)
		if merr != nil {
			return errorMessage(merr), true
		}
		return outboundMessage[any]{Type: "markResult", Payload: markResult{
			Question: p.Question,
			Correct:  correct,
			Message:  MarkMessage(p.Question, correct),
		}}, true
	case "clearMark":
		var p questionPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return errorMessage(errors.New("invalid clearMark payload")), true
		}
		err = h.service.ClearMark(ctx, p.Question)
	case "score":
		report, serr := h.service.Score(ctx)
		if serr != nil {
			return errorMessage(serr), true
		}
		return outboundMessage[any]{Type: "score", Payload: report}, true
	case "rename":
		var p renamePayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return errorMessage(errors.New("invalid rename payload")), true
		}
		h.service.Rename(p.Name)
		return h.stateMessage(ctx), true
	case "reset":
		err = h.service.Reset(ctx)
	default:
		return errorMessage(errors.New("unsupported message type")), true
	}

	if err != nil {
		return errorMessage(err), true
	}
	return outboundMessage[any]{}, false
}

func (h *WSHandler) eventMessages(ctx context.Context, ev domain.Event) []outboundMessage[any] {
	switch ev.Type {
	case domain.EventTick:
		if ev.Tick == nil {
			return nil
		}
		return []outboundMessage[any]{{Type: "tick", Payload: *ev.Tick}}
	case domain.EventCompleted:
		return []outboundMessage[any]{
			{Type: "completed", Payload: completedPayload{Forced: ev.Forced}},
			h.stateMessage(ctx),
		}
	case domain.EventError:
		// The countdown has stopped; a state request restarts it.
		payload := errorPayload{Message: "countdown stopped", Fatal: true}
		if ev.Err != nil {
			payload.Message = ev.Err.Error()
		}
		return []outboundMessage[any]{{Type: "error", Payload: payload}}
	default:
		return []outboundMessage[any]{h.stateMessage(ctx)}
	}
}

func (h *WSHandler) stateMessage(ctx context.Context) outboundMessage[any] {
	state, err := h.service.State(ctx)
	payload := statePayload{Phase: h.service.Phase(), TestName: state.TestName}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return outboundMessage[any]{Type: "state", Payload: payload}
	case err != nil:
		return errorMessage(err)
	}

	progress, err := h.service.Progress(ctx)
	if err != nil {
		return errorMessage(err)
	}
	payload.Config = &state.Config
	payload.Answers = state.UserAnswers
	payload.CorrectAnswers = state.AnswerKey
	payload.Progress = progress
	if status, ok := h.service.TimerStatus(); ok {
		payload.Timer = &status
	}
	return outboundMessage[any]{Type: "state", Payload: payload}
}

// MarkMessage is the notification shown after marking a question.
func MarkMessage(question int, correct bool) string {
	if correct {
		return fmt.Sprintf("Question %d: Correct answer!", question)
	}
	return fmt.Sprintf("Question %d: Incorrect answer", question)
}

func errorMessage(err error) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: toErrorPayload(err)}
}

func toErrorPayload(err error) errorPayload {
	return errorPayload{
		Message: err.Error(),
		Fatal:   errors.Is(err, domain.ErrStorageUnavailable),
	}
}
