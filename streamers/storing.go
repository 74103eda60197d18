package streamers

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"chorus/store"
)

// StoringSessionHandler is a SessionHandler decorator that persists every event
// to the EventStore, then delegates to an inner handler (e.g. CLI or WebSocket).
type StoringSessionHandler struct {
	inner  SessionHandler
	events store.EventStore
	logger hclog.Logger
}

// NewStoringSessionHandler wraps an existing SessionHandler with event persistence.
func NewStoringSessionHandler(inner SessionHandler, events store.EventStore, logger hclog.Logger) *StoringSessionHandler {
	if inner == nil {
		inner = NopHandler{}
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &StoringSessionHandler{inner: inner, events: events, logger: logger.Named("events")}
}

// storeEvent persists an event, logging (not failing) on error.
func (h *StoringSessionHandler) storeEvent(eventType EventType, meta Meta, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("marshal event data", "type", eventType, "error", err)
		return
	}

	event := store.EventRecord{
		ID:          uuid.New().String(),
		SessionID:   meta.SessionID,
		Step:        meta.Step,
		Participant: meta.Participant,
		EventType:   string(eventType),
		DataJSON:    string(dataJSON),
		CreatedAt:   meta.At,
	}
	if err := h.events.StoreEvent(context.Background(), event); err != nil {
		h.logger.Error("store event", "type", eventType, "session", meta.SessionID, "error", err)
	}
}

// =============================================================================
// SessionHandler implementation
// =============================================================================

func (h *StoringSessionHandler) SessionStarted(meta Meta, query string, participants []string) {
	h.storeEvent(EventSessionStarted, meta, SessionStartedData{Query: query, Participants: participants})
	h.inner.SessionStarted(meta, query, participants)
}

func (h *StoringSessionHandler) StateChanged(meta Meta, from, to string) {
	h.storeEvent(EventStateChanged, meta, StateChangedData{From: from, To: to})
	h.inner.StateChanged(meta, from, to)
}

func (h *StoringSessionHandler) RolesAssigned(meta Meta, queryType string, roles map[string]RoleInfo, fallback bool) {
	h.storeEvent(EventRolesAssigned, meta, RolesAssignedData{QueryType: queryType, Roles: roles, Fallback: fallback})
	h.inner.RolesAssigned(meta, queryType, roles, fallback)
}

func (h *StoringSessionHandler) ParticipantStarted(meta Meta, role string) {
	h.storeEvent(EventParticipantStarted, meta, ParticipantStartedData{Role: role})
	h.inner.ParticipantStarted(meta, role)
}

func (h *StoringSessionHandler) ParticipantCompleted(meta Meta, role string, content string, usage UsageInfo) {
	h.storeEvent(EventParticipantCompleted, meta, ParticipantCompletedData{Role: role, Content: content, Usage: usage})
	h.inner.ParticipantCompleted(meta, role, content, usage)
}

func (h *StoringSessionHandler) ParticipantFailed(meta Meta, role string, kind string, err error) {
	h.storeEvent(EventParticipantFailed, meta, ParticipantFailedData{Role: role, Kind: kind, Error: errString(err)})
	h.inner.ParticipantFailed(meta, role, kind, err)
}

func (h *StoringSessionHandler) ConsolidationStarted(meta Meta, contributors int) {
	h.storeEvent(EventConsolidationStarted, meta, ConsolidationStartedData{Contributors: contributors})
	h.inner.ConsolidationStarted(meta, contributors)
}

func (h *StoringSessionHandler) ConsolidationFailed(meta Meta, err error) {
	h.storeEvent(EventConsolidationFailed, meta, ConsolidationFailedData{Error: errString(err)})
	h.inner.ConsolidationFailed(meta, err)
}

func (h *StoringSessionHandler) SessionCompleted(meta Meta, result string, consolidated bool) {
	h.storeEvent(EventSessionCompleted, meta, SessionCompletedData{Result: result, Consolidated: consolidated})
	h.inner.SessionCompleted(meta, result, consolidated)
}

func (h *StoringSessionHandler) SessionFailed(meta Meta, kind string, err error) {
	h.storeEvent(EventSessionFailed, meta, SessionFailedData{Kind: kind, Error: errString(err)})
	h.inner.SessionFailed(meta, kind, err)
}

func (h *StoringSessionHandler) SessionCancelled(meta Meta, recorded int) {
	h.storeEvent(EventSessionCancelled, meta, SessionCancelledData{Recorded: recorded})
	h.inner.SessionCancelled(meta, recorded)
}
