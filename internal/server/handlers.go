package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agendahealth/consulta/internal/domain"
	"github.com/agendahealth/consulta/internal/skill"
)

// registerRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/skills", s.handleSkills)
	mux.HandleFunc("POST /v1/messages", s.handleMessage)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Catch-all for unknown routes
	mux.HandleFunc("/", handleNotFound)
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Uptime  string `json:"uptime,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: s.version,
		Uptime:  time.Since(s.startedAt).Round(time.Second).String(),
	})
}

func (s *Server) handleSkills(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"skills": s.registry.List()})
}

// MessageRequest is one inbound turn. ConversationID is assigned when the
// caller omits it; Skill defaults to the appointments task.
type MessageRequest struct {
	ConversationID string `json:"conversationId,omitempty"`
	Skill          string `json:"skill,omitempty"`
	Text           string `json:"text"`
	Channel        string `json:"channel,omitempty"`
}

// MessageResponse echoes the conversation id alongside the turn result.
type MessageResponse struct {
	ConversationID string `json:"conversationId"`
	skill.Result
}

// ErrorResponse is the JSON error shape for all endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxMessageBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	resp, status := s.processTurn(r.Context(), req)
	writeJSON(w, status, resp)
}

// processTurn validates one inbound message and runs it through the
// resolved skill. Shared by the HTTP and WebSocket paths.
func (s *Server) processTurn(ctx context.Context, req MessageRequest) (any, int) {
	if strings.TrimSpace(req.Text) == "" {
		return ErrorResponse{Error: "text is required"}, http.StatusBadRequest
	}
	if req.ConversationID == "" {
		req.ConversationID = uuid.New().String()
	}
	if req.Skill == "" {
		req.Skill = skill.AppointmentsSkillName
	}

	sk, err := s.registry.Resolve(req.Skill)
	if err != nil {
		return ErrorResponse{Error: err.Error()}, http.StatusNotFound
	}

	tctx, cancel := context.WithTimeout(ctx, turnTimeout)
	defer cancel()

	result, err := sk.Execute(tctx, skill.Turn{
		ConversationID: req.ConversationID,
		Text:           req.Text,
		Channel:        domain.Channel(req.Channel),
	})
	if err != nil {
		s.log.Error().Err(err).Str("skill", req.Skill).Msg("skill execution failed")
		return ErrorResponse{Error: "internal error"}, http.StatusInternalServerError
	}

	return MessageResponse{ConversationID: req.ConversationID, Result: *result}, http.StatusOK
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "not found",
		"path":  r.URL.Path,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
