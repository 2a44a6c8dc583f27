package app

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/MrWong99/nara/internal/answer"
	"github.com/MrWong99/nara/internal/observe"
)

// maxAskBody caps the POST /v1/ask request body.
const maxAskBody = 16 << 10

// Handler returns the HTTP surface:
//
//	GET  /healthz, /readyz  liveness and readiness
//	GET  /metrics           Prometheus scrape
//	GET  /v1/state          interaction state, mute flag and playback context
//	POST /v1/ask            submit a typed question
//	POST /v1/jump           seek playback to the last answer's citation
//	GET  <audio.ws_path>    websocket audio bridge
//
// The websocket route bypasses the request middleware so the upgrade sees
// the raw ResponseWriter.
func (a *App) Handler() http.Handler {
	api := http.NewServeMux()
	a.health.Register(api)
	api.Handle("GET /metrics", observe.MetricsHandler())
	api.HandleFunc("GET /v1/state", a.handleState)
	api.HandleFunc("POST /v1/ask", a.handleAsk)
	api.HandleFunc("POST /v1/jump", a.handleJump)

	root := http.NewServeMux()
	root.Handle("/", observe.Middleware(a.metrics)(api))
	if a.bridge != nil {
		root.Handle("GET "+a.cfg.Audio.WSPath, a.bridge)
	}
	return root
}

type stateResponse struct {
	State           string         `json:"state"`
	Muted           bool           `json:"muted"`
	AudiobookID     string         `json:"audiobook_id"`
	PositionSeconds float64        `json:"position_seconds"`
	PlaybackChapter int            `json:"playback_chapter"`
	ProgressChapter int            `json:"progress_chapter"`
	BridgeConnected bool           `json:"bridge_connected"`
	LastAnswer      *answerPayload `json:"last_answer,omitempty"`
}

type answerPayload struct {
	Markdown       string            `json:"markdown"`
	Citations      []answer.Citation `json:"citations,omitempty"`
	Mode           string            `json:"mode"`
	AllowedChapter int               `json:"allowed_chapter"`
	JumpSeconds    *float64          `json:"jump_seconds,omitempty"`
}

func (a *App) handleState(w http.ResponseWriter, _ *http.Request) {
	snap := a.tracker.Snapshot()
	resp := stateResponse{
		State:           a.orch.State().String(),
		Muted:           a.orch.Muted(),
		AudiobookID:     a.cfg.Content.AudiobookID,
		PositionSeconds: snap.PositionSeconds,
		PlaybackChapter: snap.PlaybackChapter,
		ProgressChapter: snap.ProgressChapter,
		BridgeConnected: a.bridge != nil && a.bridge.Connected(),
	}
	if res := a.orch.LastResult(); res != nil {
		p := &answerPayload{
			Markdown:       res.Markdown,
			Citations:      res.Citations,
			Mode:           string(res.Mode),
			AllowedChapter: res.AllowedChapter,
		}
		if res.PlaybackHint != nil {
			secs := res.PlaybackHint.StartSeconds
			p.JumpSeconds = &secs
		}
		resp.LastAnswer = p
	}
	writeJSON(w, http.StatusOK, resp)
}

type askRequest struct {
	Question string `json:"question"`
}

func (a *App) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxAskBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question must not be empty")
		return
	}
	if err := a.Ask(r.Context(), req.Question); err != nil {
		slog.Warn("app: ask rejected", "err", err)
		writeError(w, http.StatusServiceUnavailable, "not accepting questions")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (a *App) handleJump(w http.ResponseWriter, r *http.Request) {
	pos, err := a.JumpToCitation(r.Context())
	switch {
	case errors.Is(err, ErrNoPlaybackHint):
		writeError(w, http.StatusConflict, "no citation to jump to")
	case err != nil:
		slog.Warn("app: jump failed", "err", err)
		writeError(w, http.StatusBadGateway, "playback seek failed")
	default:
		writeJSON(w, http.StatusOK, map[string]float64{"position_seconds": pos})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("app: write response", "err", err)
	}
}
