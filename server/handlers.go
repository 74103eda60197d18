package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"chorus/collab"
	"chorus/llm"
	"chorus/memory"
	"chorus/store"
)

// collaborateRequest is the body of POST /api/collaborate and the first websocket message
type collaborateRequest struct {
	Query string `json:"query"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req llm.GatewayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, string(collab.KindValidation), "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, string(collab.KindValidation), "message is required")
		return
	}

	p, ok := s.controller.Roster().Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "unknown participant")
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	mem := s.controller.Memory()
	history := req.Conversation
	useMemory := len(history) == 0 && p.SupportsMemory
	if useMemory {
		history = memory.Messages(mem.Read(p.ID))
	}
	call := collab.Call{Prompt: req.Message, History: history, APIKey: req.APIKey}

	if r.URL.Query().Get("stream") == "true" {
		s.streamChat(ctx, w, p, call, useMemory)
		return
	}

	out := s.controller.Adapter().Do(ctx, p, call)
	if !out.Success {
		writeError(w, collab.HTTPStatus(out.ErrorKind), string(out.ErrorKind), out.Error)
		return
	}
	if useMemory {
		s.remember(ctx, mem, p.ID, req.Message, out.Content)
	}
	writeJSON(w, http.StatusOK, llm.GatewayResponse{
		Content: out.Content,
		Model:   out.Model,
		Usage: llm.GatewayUsage{
			InputTokens:      out.Usage.InputTokens,
			OutputTokens:     out.Usage.OutputTokens,
			Cost:             out.Usage.Cost,
			RemainingBalance: out.Balance,
		},
	})
}

// streamChat writes one NDJSON frame per fragment. Failures after the first
// byte are reported in a final error frame.
func (s *Server) streamChat(ctx context.Context, w http.ResponseWriter, p *collab.Participant, call collab.Call, useMemory bool) {
	stream, err := s.controller.Adapter().Stream(ctx, p, call)
	if err != nil {
		kind := collab.KindOf(err)
		writeError(w, collab.HTTPStatus(kind), string(kind), err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)

	for frag := range stream.All() {
		if err := enc.Encode(llm.StreamFrame{Content: frag}); err != nil {
			s.logger.Debug("stream client went away", "participant", p.ID, "error", err)
			break
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	out := stream.Outcome()
	if !out.Success {
		_ = enc.Encode(llm.StreamFrame{Error: out.Error, Status: collab.HTTPStatus(out.ErrorKind)})
		return
	}
	if useMemory {
		s.remember(ctx, s.controller.Memory(), p.ID, call.Prompt, out.Content)
	}
}

func (s *Server) remember(ctx context.Context, mem *memory.Store, participant, prompt, response string) {
	if err := mem.Append(context.WithoutCancel(ctx), participant, prompt, response); err != nil {
		s.logger.Warn("failed to append memory", "participant", participant, "error", err)
	}
}

func (s *Server) handleCollaborate(w http.ResponseWriter, r *http.Request) {
	var req collaborateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, string(collab.KindValidation), "invalid JSON body")
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	session, err := s.controller.Run(ctx, req.Query)
	status := http.StatusOK
	if err != nil {
		status = collab.HTTPStatus(collab.KindOf(err))
	}
	writeJSON(w, status, session)
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Adapter().Ledger().Snapshot())
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if s.stores == nil {
		writeError(w, http.StatusNotFound, "not_found", "session history is not stored")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	sessions, err := s.stores.Sessions.ListSessions(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "storage", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

type sessionDetail struct {
	Session  *store.SessionRecord  `json:"session"`
	Outcomes []store.OutcomeRecord `json:"outcomes"`
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if s.stores == nil {
		writeError(w, http.StatusNotFound, "not_found", "session history is not stored")
		return
	}
	rec, outcomes, err := s.stores.Sessions.GetSession(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "unknown session")
		return
	}
	if err != nil {
		s.logger.Error("get session", "error", err)
		writeError(w, http.StatusInternalServerError, "storage", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sessionDetail{Session: rec, Outcomes: outcomes})
}

func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	if s.stores == nil || s.stores.Events == nil {
		writeError(w, http.StatusNotFound, "not_found", "session events are not stored")
		return
	}
	events, err := s.stores.Events.ListEvents(r.Context(), r.PathValue("id"), 0, 0)
	if err != nil {
		s.logger.Error("list events", "error", err)
		writeError(w, http.StatusInternalServerError, "storage", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, events)
}
