package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"call-assist-service/internal/service/livecall"
	"call-assist-service/internal/service/report"
	"call-assist-service/internal/service/session"
)

type handlers struct {
	calls  *livecall.Manager
	hub    *Hub
	logger zerolog.Logger
}

type errorResponse struct {
	Error string `json:"error"`
}

type muteRequest struct {
	Muted *bool `json:"muted"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// statusFor maps call errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, livecall.ErrCallNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrInvalidTransition), errors.Is(err, livecall.ErrNotLive):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

func (h *handlers) call(w http.ResponseWriter, r *http.Request) (*livecall.Pipeline, bool) {
	p, err := h.calls.Get(chi.URLParam(r, "callID"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return nil, false
	}
	return p, true
}

// startCall creates a call. A failed handshake still creates the call, in ERROR with
// a banner, and answers 502 so the client can offer a retry.
func (h *handlers) startCall(w http.ResponseWriter, r *http.Request) {
	p, err := h.calls.StartCall(r.Context())
	if err != nil {
		h.logger.Warn().Err(err).Str("callId", p.ID()).Msg("Call start failed")
		writeJSON(w, http.StatusBadGateway, p.View())
		return
	}
	writeJSON(w, http.StatusCreated, p.View())
}

func (h *handlers) getCall(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.call(w, r); ok {
		writeJSON(w, http.StatusOK, p.View())
	}
}

func (h *handlers) retryCall(w http.ResponseWriter, r *http.Request) {
	p, ok := h.call(w, r)
	if !ok {
		return
	}
	if err := p.Retry(r.Context()); err != nil {
		if errors.Is(err, session.ErrInvalidTransition) {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeJSON(w, http.StatusBadGateway, p.View())
		return
	}
	writeJSON(w, http.StatusOK, p.View())
}

func (h *handlers) stopCall(w http.ResponseWriter, r *http.Request) {
	p, ok := h.call(w, r)
	if !ok {
		return
	}
	if err := p.Stop(r.Context()); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, p.View())
}

func (h *handlers) muteCall(w http.ResponseWriter, r *http.Request) {
	p, ok := h.call(w, r)
	if !ok {
		return
	}
	var req muteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Muted == nil {
		writeError(w, http.StatusBadRequest, errors.New(`body must be {"muted": true|false}`))
		return
	}
	p.SetMuted(*req.Muted)
	writeJSON(w, http.StatusOK, p.View())
}

func (h *handlers) transcript(w http.ResponseWriter, r *http.Request) {
	p, ok := h.call(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="transcript-`+p.ID()+`.txt"`)
	_, _ = w.Write([]byte(report.Text(p.Report().Blocks)))
}

func (h *handlers) reportPDF(w http.ResponseWriter, r *http.Request) {
	p, ok := h.call(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	pages, err := report.WritePDF(&buf, p.Report())
	if err != nil {
		h.logger.Error().Err(err).Str("callId", p.ID()).Msg("Failed to render report")
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.logger.Debug().Str("callId", p.ID()).Int("pages", pages).Msg("Report rendered")
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="call-report-`+p.ID()+`.pdf"`)
	_, _ = w.Write(buf.Bytes())
}

// audio streams browser samples into a live call until the socket closes or the call stops.
func (h *handlers) audio(w http.ResponseWriter, r *http.Request) {
	p, ok := h.call(w, r)
	if !ok {
		return
	}
	if p.Status() != session.StatusLive {
		writeError(w, http.StatusConflict, livecall.ErrNotLive)
		return
	}
	rate := DefaultSourceRate
	if v := r.URL.Query().Get("rate"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, errors.New("rate must be a positive integer"))
			return
		}
		rate = n
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Audio websocket upgrade failed")
		return
	}
	defer conn.Close()

	err = p.Attach(r.Context(), newSocketSource(conn, rate))
	closeCode, reason := websocket.CloseNormalClosure, "call ended"
	if err != nil {
		h.logger.Warn().Err(err).Str("callId", p.ID()).Msg("Audio stream ended with error")
		closeCode, reason = websocket.CloseInternalServerErr, closeReason(err)
	}
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(closeCode, reason), time.Now().Add(time.Second))
}

// closeReason fits err into a close frame, whose payload is limited to 125 bytes.
func closeReason(err error) string {
	const maxReason = 120
	msg := err.Error()
	if len(msg) > maxReason {
		msg = msg[:maxReason]
	}
	return msg
}

// events pushes the session view to the socket on every change.
func (h *handlers) events(w http.ResponseWriter, r *http.Request) {
	p, ok := h.call(w, r)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Events websocket upgrade failed")
		return
	}
	if !h.hub.subscribe(subscriber{conn: conn, callID: p.ID(), initial: p.View()}) {
		conn.Close()
		return
	}

	// Keep connection alive, handle disconnects
	go func() {
		defer h.hub.unsubscribe(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
