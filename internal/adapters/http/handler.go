package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/PabloGalante/carbon-advisor/internal/app/advisor"
	"github.com/PabloGalante/carbon-advisor/internal/domain"
	"github.com/PabloGalante/carbon-advisor/internal/observability"
)

type Server struct {
	svc *advisor.Service
}

func NewServer(svc *advisor.Service) http.Handler {
	s := &Server{svc: svc}
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handleHealthz)

	// /modes → mode table (GET)
	mux.HandleFunc("/modes", s.handleModes)

	// /sessions → activate session (POST)
	mux.HandleFunc("/sessions", s.handleSessions)

	// /sessions/{id}          → GET: snapshot, DELETE: tear down
	// /sessions/{id}/messages → POST: send message
	// /sessions/{id}/mode     → PUT: switch mode
	// /sessions/{id}/events   → GET: WebSocket timeline stream
	mux.HandleFunc("/sessions/", s.handleSessionWithID)

	return chainMiddlewares(mux, withLogging, withCORS, withRequestID)
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type citationResponse struct {
	Kind  string `json:"kind"`
	URI   string `json:"uri"`
	Title string `json:"title"`
}

type messageResponse struct {
	ID        string             `json:"id"`
	Role      string             `json:"role"`
	Text      string             `json:"text"`
	Mode      string             `json:"mode"`
	Citations []citationResponse `json:"citations"`
	CreatedAt time.Time          `json:"created_at"`
}

type sessionResponse struct {
	ID           string            `json:"id"`
	Mode         string            `json:"mode"`
	Pending      bool              `json:"pending"`
	PendingLabel string            `json:"pending_label,omitempty"`
	Placeholder  string            `json:"placeholder"`
	CreatedAt    time.Time         `json:"created_at"`
	Messages     []messageResponse `json:"messages"`
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

type sendMessageResponse struct {
	UserMessage      messageResponse `json:"user_message"`
	AssistantMessage messageResponse `json:"assistant_message"`
}

type setModeRequest struct {
	Mode string `json:"mode"`
}

type modeResponse struct {
	Mode            string   `json:"mode"`
	Model           string   `json:"model"`
	Tools           []string `json:"tools"`
	Temperature     float32  `json:"temperature"`
	ReasoningBudget *int32   `json:"reasoning_budget,omitempty"`
}

// ─────────────────────────────────────────────
// Basic routing
// ─────────────────────────────────────────────

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// /modes
func (s *Server) handleModes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	out := make([]modeResponse, 0, len(domain.Modes()))
	for _, m := range domain.Modes() {
		cfg := advisor.ConfigFor(m)
		tools := make([]string, 0, len(cfg.Tools))
		for _, t := range cfg.Tools {
			tools = append(tools, string(t))
		}
		out = append(out, modeResponse{
			Mode:            string(m),
			Model:           cfg.Model,
			Tools:           tools,
			Temperature:     cfg.Temperature,
			ReasoningBudget: cfg.ReasoningBudget,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// /sessions
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateSession(w, r)
	default:
		methodNotAllowed(w)
	}
}

// /sessions/{id}, /sessions/{id}/messages or /sessions/{id}/mode
func (s *Server) handleSessionWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/sessions/")
	parts := strings.Split(path, "/")
	id := parts[0]

	if id == "" {
		http.NotFound(w, r)
		return
	}
	sessionID := domain.SessionID(id)

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.handleGetSession(w, r, sessionID)
		case http.MethodDelete:
			s.handleDeleteSession(w, r, sessionID)
		default:
			methodNotAllowed(w)
		}
		return
	}

	if len(parts) == 2 {
		switch {
		case parts[1] == "messages" && r.Method == http.MethodPost:
			s.handleSendMessage(w, r, sessionID)
		case parts[1] == "mode" && r.Method == http.MethodPut:
			s.handleSetMode(w, r, sessionID)
		case parts[1] == "events" && r.Method == http.MethodGet:
			s.handleEvents(w, r, sessionID)
		case parts[1] == "messages" || parts[1] == "mode" || parts[1] == "events":
			methodNotAllowed(w)
		default:
			http.NotFound(w, r)
		}
		return
	}

	http.NotFound(w, r)
}

// ─────────────────────────────────────────────
// Concrete handlers
// ─────────────────────────────────────────────

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.svc.StartSession(r.Context())
	if err != nil {
		internalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toSessionResponse(session.Snapshot()))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request, id domain.SessionID) {
	session, ok := s.lookup(w, r, id)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, toSessionResponse(session.Snapshot()))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request, id domain.SessionID) {
	if err := s.svc.EndSession(r.Context(), id); err != nil {
		if errors.Is(err, advisor.ErrSessionNotFound) {
			notFound(w, "session not found")
			return
		}
		internalError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request, id domain.SessionID) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		badRequest(w, "text is required")
		return
	}

	session, ok := s.lookup(w, r, id)
	if !ok {
		return
	}

	turn, accepted := session.Send(r.Context(), req.Text)
	if !accepted {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": "a message is already pending for this session",
		})
		return
	}

	select {
	case reply := <-turn.Reply:
		writeJSON(w, http.StatusOK, sendMessageResponse{
			UserMessage:      toMessageResponse(turn.User),
			AssistantMessage: toMessageResponse(reply),
		})
	case <-r.Context().Done():
		// Client went away; the session still records the reply.
		observability.LoggerFromContext(r.Context()).Warn("client gone before reply", "session_id", id)
	}
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request, id domain.SessionID) {
	var req setModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	mode, err := domain.ParseMode(req.Mode)
	if err != nil || strings.TrimSpace(req.Mode) == "" {
		badRequest(w, "mode must be one of: search, thinking, maps")
		return
	}

	session, ok := s.lookup(w, r, id)
	if !ok {
		return
	}

	if err := session.SetMode(mode); err != nil {
		badRequest(w, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toSessionResponse(session.Snapshot()))
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request, id domain.SessionID) (*advisor.Session, bool) {
	session, err := s.svc.Session(r.Context(), id)
	if err != nil {
		if errors.Is(err, advisor.ErrSessionNotFound) {
			notFound(w, "session not found")
			return nil, false
		}
		internalError(w, r, err)
		return nil, false
	}
	return session, true
}

// ─────────────────────────────────────────────
// Conversation Helpers
// ─────────────────────────────────────────────

func toSessionResponse(snap advisor.Snapshot) sessionResponse {
	resp := sessionResponse{
		ID:          string(snap.ID),
		Mode:        string(snap.Mode),
		Pending:     snap.Pending,
		Placeholder: snap.Mode.Placeholder(),
		CreatedAt:   snap.CreatedAt,
		Messages:    make([]messageResponse, 0, len(snap.Messages)),
	}
	if snap.Pending {
		resp.PendingLabel = snap.Mode.PendingLabel()
	}
	for _, m := range snap.Messages {
		resp.Messages = append(resp.Messages, toMessageResponse(m))
	}
	return resp
}

func toMessageResponse(m domain.Message) messageResponse {
	citations := make([]citationResponse, 0, len(m.Citations))
	for _, c := range m.Citations {
		citations = append(citations, citationResponse{
			Kind:  string(c.Kind),
			URI:   c.URI,
			Title: c.Title,
		})
	}
	return messageResponse{
		ID:        string(m.ID),
		Role:      string(m.Role),
		Text:      m.Text,
		Mode:      string(m.Mode),
		Citations: citations,
		CreatedAt: m.CreatedAt,
	}
}

// ─────────────────────────────────────────────
// HTTP Helpers
// ─────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error": msg,
	})
}

func notFound(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": msg,
	})
}

func internalError(w http.ResponseWriter, r *http.Request, err error) {
	observability.LoggerFromContext(r.Context()).Error("request failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error": "internal server error",
	})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{
		"error": "method not allowed",
	})
}
