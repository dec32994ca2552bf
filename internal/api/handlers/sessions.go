package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/aminelidof/lidof-english-coach/internal/auth"
	"github.com/aminelidof/lidof-english-coach/internal/coach"
	"github.com/aminelidof/lidof-english-coach/internal/session"
)

// MaxAudioBytes bounds one uploaded capture.
const MaxAudioBytes = 25 << 20

// TurnRunner runs one coaching turn.
type TurnRunner interface {
	RunTurn(ctx context.Context, in coach.TurnInput) coach.TurnOutput
}

type SessionHandler struct {
	store    *session.Store
	tokens   *auth.Tokens
	pipeline TurnRunner
}

func NewSessionHandler(store *session.Store, tokens *auth.Tokens, pipeline TurnRunner) *SessionHandler {
	return &SessionHandler{store: store, tokens: tokens, pipeline: pipeline}
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
}

// Create starts a session and returns the bearer token that unlocks it.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	s := h.store.Create()
	token, err := h.tokens.Issue(s.ID)
	if err != nil {
		h.store.Delete(s.ID)
		slog.Error("issue session token", "error", err)
		writeError(w, http.StatusInternalServerError, "could not create session")
		return
	}

	slog.Info("session created", "session_id", s.ID)
	writeJSON(w, http.StatusCreated, createSessionResponse{SessionID: s.ID.String(), Token: token})
}

type turnResponse struct {
	Skipped        bool                     `json:"skipped"`
	Reason         coach.SkipReason         `json:"reason,omitempty"`
	Transcript     string                   `json:"transcript,omitempty"`
	Result         *coach.InteractionResult `json:"result,omitempty"`
	ReplyAudio     string                   `json:"reply_audio,omitempty"`
	ReplyAudioType string                   `json:"reply_audio_type,omitempty"`
	History        []coach.Utterance        `json:"history"`
	Accuracy       *int                     `json:"accuracy,omitempty"`
}

// Turn accepts one audio capture, either as the multipart field "audio" or
// as the raw request body.
func (h *SessionHandler) Turn(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	audio, err := readAudio(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(audio) == 0 {
		writeError(w, http.StatusBadRequest, "audio is required")
		return
	}

	scenario, err := coach.ParseScenario(r.FormValue("scenario"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	level, err := coach.ParseLevel(r.FormValue("level"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// A started turn always completes so the session stays consistent;
	// each upstream call carries its own timeout.
	ctx := context.WithoutCancel(r.Context())

	if err := s.Acquire(r.Context()); err != nil {
		writeError(w, http.StatusRequestTimeout, "request cancelled while waiting for the previous turn")
		return
	}
	out := h.runLocked(ctx, s, audio, scenario, level)

	resp := turnResponse{
		Skipped:    out.Skipped,
		Reason:     out.Reason,
		Transcript: out.Transcript,
		Result:     out.Result,
		History:    out.History,
	}
	if resp.History == nil {
		resp.History = []coach.Utterance{}
	}
	if len(out.ReplyAudio) > 0 {
		resp.ReplyAudio = base64.StdEncoding.EncodeToString(out.ReplyAudio)
		resp.ReplyAudioType = http.DetectContentType(out.ReplyAudio)
	}
	if acc, ok := s.Accuracy(); ok {
		resp.Accuracy = &acc
	}

	slog.Info("turn finished",
		"session_id", s.ID,
		"skipped", out.Skipped,
		"reason", out.Reason,
		"has_audio", len(out.ReplyAudio) > 0,
	)
	writeJSON(w, http.StatusOK, resp)
}

// runLocked runs the turn while the caller holds the session.
func (h *SessionHandler) runLocked(ctx context.Context, s *session.Session, audio []byte, scenario coach.Scenario, level coach.Level) coach.TurnOutput {
	defer s.Release()
	out := h.pipeline.RunTurn(ctx, s.TurnInput(audio, scenario, level))
	s.Apply(out)
	return out
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

// ClearHistory resets the conversation, the scores and the last analysis.
func (h *SessionHandler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.Acquire(r.Context()); err != nil {
		writeError(w, http.StatusRequestTimeout, "request cancelled while waiting for the previous turn")
		return
	}
	s.Clear()
	s.Release()

	slog.Info("session cleared", "session_id", s.ID)
	w.WriteHeader(http.StatusNoContent)
}

type scenariosResponse struct {
	Scenarios []coach.Scenario `json:"scenarios"`
	Levels    []coach.Level    `json:"levels"`
}

func (h *SessionHandler) Scenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenariosResponse{Scenarios: coach.Scenarios(), Levels: coach.Levels()})
}

// session resolves the {id} path parameter and checks it against the
// bearer token. It writes the error response itself.
func (h *SessionHandler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return nil, false
	}

	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing authorization token")
		return nil, false
	}
	if owner, err := claims.SessionID(); err != nil || owner != id {
		writeError(w, http.StatusForbidden, "token does not belong to this session")
		return nil, false
	}

	s, err := h.store.Get(id)
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return s, true
}

func readAudio(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxAudioBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		audio, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("read audio body: %w", err)
		}
		return audio, nil
	}

	if err := r.ParseMultipartForm(MaxAudioBytes); err != nil {
		return nil, fmt.Errorf("parse multipart form: %w", err)
	}
	f, _, err := r.FormFile("audio")
	if err != nil {
		return nil, fmt.Errorf("multipart field \"audio\" is required")
	}
	defer f.Close()

	audio, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read audio field: %w", err)
	}
	return audio, nil
}
