// Package httpapi exposes the interview engine over HTTP: JSON endpoints for
// every session operation, an SSE event stream per session, archive reads,
// speech pass-through and Prometheus metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jxucoder/TeleInterview/internal/engine"
	"github.com/jxucoder/TeleInterview/pkg/model"
	"github.com/jxucoder/TeleInterview/pkg/speech"
)

const (
	maxChunkBytes  = 1 << 20
	maxUploadBytes = 25 << 20
	requestTimeout = 5 * time.Minute
)

// Server is the TeleInterview HTTP API server.
type Server struct {
	engine *engine.Engine
	logger *slog.Logger
	router chi.Router
}

// New creates a Server for eng.
func New(eng *engine.Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine: eng,
		logger: logger.With("component", "httpapi"),
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("http shutdown", "error", err)
		}
	}()

	s.logger.Info("listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		// The event stream lives as long as the client stays connected.
		r.Get("/sessions/{id}/events", s.handleSessionEvents)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))

			r.Post("/sessions", s.handleStartInterview)
			r.Get("/sessions", s.handleListSessions)
			r.Get("/sessions/{id}", s.handlePollState)
			r.Post("/sessions/{id}/repeat", s.handleRepeat)
			r.Post("/sessions/{id}/chunks", s.handleChunk)
			r.Post("/sessions/{id}/stop", s.handleStop)
			r.Post("/sessions/{id}/finalize", s.handleFinalize)
			r.Get("/sessions/{id}/results", s.handleResults)
			r.Post("/sessions/{id}/save", s.handleSave)

			r.Get("/interviews", s.handleListInterviews)
			r.Get("/interviews/{id}", s.handleGetInterview)

			r.Get("/config", s.handleConfig)
			r.Get("/database/schema", s.handleSchema)

			r.Post("/audio/tts", s.handleTTS)
			r.Post("/audio/stt", s.handleSTT)
		})
	})

	r.Handle("/metrics", s.engine.Metrics().Handler())
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	return r
}

// --- Request/Response types ---

type repeatResponse struct {
	Question string `json:"question"`
}

type stopResponse struct {
	Phase model.Phase `json:"phase"`
}

type saveResponse struct {
	InterviewID string `json:"interview_id"`
	Message     string `json:"message"`
}

type configResponse struct {
	TotalQuestions      int `json:"total_questions"`
	RepeatWindowSeconds int `json:"repeat_window_seconds"`
	RecordMaxSeconds    int `json:"record_max_seconds"`
	StopButtonSeconds   int `json:"stop_button_seconds"`
	PreviewSeconds      int `json:"preview_seconds"`
	ChunkSeconds        int `json:"chunk_seconds"`
	PartialEverySeconds int `json:"partial_every_seconds"`
	CountdownSeconds    int `json:"countdown_seconds"`
	SampleRate          int `json:"sample_rate"`
}

type schemaResponse struct {
	Schema string `json:"schema"`
}

type ttsRequest struct {
	Text string `json:"text"`
}

type sttResponse struct {
	Text string `json:"text"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// --- Session handlers ---

func (s *Server) handleStartInterview(w http.ResponseWriter, r *http.Request) {
	var req engine.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	resp, err := s.engine.StartInterview(r.Context(), req)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.ListSessions())
}

func (s *Server) handlePollState(w http.ResponseWriter, r *http.Request) {
	view, err := s.engine.PollState(chi.URLParam(r, "id"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleRepeat(w http.ResponseWriter, r *http.Request) {
	text, err := s.engine.RequestRepeat(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, repeatResponse{Question: text})
}

// handleChunk accepts raw PCM16 little-endian mono samples as the body.
func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxChunkBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "audio chunk too large")
		return
	}
	if err := s.engine.SubmitAudioChunk(chi.URLParam(r, "id"), data); err != nil {
		s.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.RequestStop(chi.URLParam(r, "id")); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, stopResponse{Phase: model.PhaseFinalizing})
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	rec, err := s.engine.Finalize(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.GetResults(chi.URLParam(r, "id"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	id, err := s.engine.SaveInterview(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saveResponse{InterviewID: id, Message: "Interview saved successfully"})
}

func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.engine.PollState(id); err != nil {
		s.writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Subscribe before flushing headers so a client that has seen the
	// response start cannot miss the next event.
	bus := s.engine.Bus()
	ch := bus.Subscribe(id)
	defer bus.Unsubscribe(id, ch)

	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(w, event)
			flusher.Flush()
		}
	}
}

// --- Archive handlers ---

func (s *Server) handleListInterviews(w http.ResponseWriter, r *http.Request) {
	list, err := s.engine.ListInterviews(r.Context())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if list == nil {
		list = []*model.InterviewRecord{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetInterview(w http.ResponseWriter, r *http.Request) {
	rec, err := s.engine.GetInterview(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	t := s.engine.Timing()
	writeJSON(w, http.StatusOK, configResponse{
		TotalQuestions:      t.TotalQuestions,
		RepeatWindowSeconds: int(t.RepeatWindow / time.Second),
		RecordMaxSeconds:    int(t.RecordMax / time.Second),
		StopButtonSeconds:   int(t.StopButton / time.Second),
		PreviewSeconds:      int(t.Preview / time.Second),
		ChunkSeconds:        int(t.Chunk / time.Second),
		PartialEverySeconds: int(t.PartialEvery / time.Second),
		CountdownSeconds:    int(t.Countdown / time.Second),
		SampleRate:          s.engine.Config().SampleRate,
	})
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, schemaResponse{Schema: s.engine.Schema()})
}

// --- Speech handlers ---

func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	var req ttsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	audio, err := s.engine.Synthesize(r.Context(), req.Text)
	if err != nil {
		s.logger.Warn("tts failed", "error", err)
		writeError(w, http.StatusBadGateway, "speech synthesis failed")
		return
	}
	if len(audio) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", contentType(audio))
	w.WriteHeader(http.StatusOK)
	w.Write(audio)
}

// handleSTT transcribes an uploaded clip sent either as the "audio" field of
// a multipart form or as the raw request body.
func (s *Server) handleSTT(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	var data []byte
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		file, _, err := r.FormFile("audio")
		if err != nil {
			writeError(w, http.StatusBadRequest, "missing audio file")
			return
		}
		defer file.Close()
		data, err = io.ReadAll(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, "reading audio file")
			return
		}
	} else {
		var err error
		data, err = io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, "audio too large")
			return
		}
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "empty audio")
		return
	}

	text, err := s.engine.TranscribeAudio(r.Context(), data)
	if err != nil {
		s.logger.Warn("stt failed", "error", err)
		writeError(w, http.StatusBadGateway, "transcription failed")
		return
	}
	writeJSON(w, http.StatusOK, sttResponse{Text: text})
}

// --- Helpers ---

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrSessionNotFound), errors.Is(err, model.ErrInterviewNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrSessionUnusable):
		return http.StatusInternalServerError
	case model.IsRejection(err):
		return http.StatusConflict
	case errors.Is(err, model.ErrInvalidInterviewType),
		errors.Is(err, model.ErrInvalidRequest),
		errors.Is(err, model.ErrInvalidAudio):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeError(w, status, err.Error())
}

func contentType(audio []byte) string {
	switch speech.Format(audio) {
	case "mp3":
		return "audio/mpeg"
	case "ogg":
		return "audio/ogg"
	case "flac":
		return "audio/flac"
	case "webm":
		return "audio/webm"
	case "m4a":
		return "audio/mp4"
	default:
		return "audio/wav"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeSSE(w http.ResponseWriter, event *model.Event) {
	data, _ := json.Marshal(event)
	fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", event.ID, event.Type, string(data))
}
