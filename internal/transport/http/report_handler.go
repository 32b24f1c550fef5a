package http

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"omrzen/internal/app"
	"omrzen/internal/domain"
	"omrzen/internal/report"
)

type ReportHandler struct {
	service *app.TestService
	log     zerolog.Logger
}

func NewReportHandler(service *app.TestService, log zerolog.Logger) *ReportHandler {
	return &ReportHandler{
		service: service,
		log:     log.With().Str("component", "report").Logger(),
	}
}

// ServeReport downloads the report of a scored session as csv (default) or json.
func (h *ReportHandler) ServeReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	raw := r.URL.Query().Get("format")
	if raw == "" {
		raw = string(report.FormatCSV)
	}
	format, err := report.ParseFormat(raw)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	score, err := h.service.Report(r.Context())
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	name := h.service.TestName()

	var buf bytes.Buffer
	if err := report.Write(&buf, format, report.New(name, score)); err != nil {
		h.log.Error().Err(err).Msg("render report")
		http.Error(w, "failed to render report", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.FileName(name, format)))
	_, _ = w.Write(buf.Bytes())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidPhase), errors.Is(err, domain.ErrPendingQuestions):
		return http.StatusConflict
	case errors.Is(err, domain.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// Routes mounts the health check, the websocket session and the report download.
func Routes(ws *WSHandler, reports *ReportHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", ws.ServeWS)
	mux.HandleFunc("/report", reports.ServeReport)
	return mux
}
