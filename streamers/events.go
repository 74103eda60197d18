package streamers

// EventType names a session event on the wire and in the event log
type EventType string

const (
	EventSessionStarted       EventType = "session_started"
	EventStateChanged         EventType = "state_changed"
	EventRolesAssigned        EventType = "roles_assigned"
	EventParticipantStarted   EventType = "participant_started"
	EventParticipantCompleted EventType = "participant_completed"
	EventParticipantFailed    EventType = "participant_failed"
	EventConsolidationStarted EventType = "consolidation_started"
	EventConsolidationFailed  EventType = "consolidation_failed"
	EventSessionCompleted     EventType = "session_completed"
	EventSessionFailed        EventType = "session_failed"
	EventSessionCancelled     EventType = "session_cancelled"
)

// Event is the serialized form of one handler callback
type Event struct {
	Type EventType `json:"type"`
	Meta
	Data any `json:"data"`
}

type SessionStartedData struct {
	Query        string   `json:"query"`
	Participants []string `json:"participants"`
}

type StateChangedData struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type RolesAssignedData struct {
	QueryType string              `json:"queryType,omitempty"`
	Roles     map[string]RoleInfo `json:"roles"`
	Fallback  bool                `json:"fallback"`
}

type ParticipantStartedData struct {
	Role string `json:"role"`
}

type ParticipantCompletedData struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	Usage   UsageInfo `json:"usage"`
}

type ParticipantFailedData struct {
	Role  string `json:"role"`
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

type ConsolidationStartedData struct {
	Contributors int `json:"contributors"`
}

type ConsolidationFailedData struct {
	Error string `json:"error"`
}

type SessionCompletedData struct {
	Result       string `json:"result"`
	Consolidated bool   `json:"consolidated"`
}

type SessionFailedData struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

type SessionCancelledData struct {
	Recorded int `json:"recorded"`
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// EventHandler converts every callback into an Event and passes it to emit.
// emit is called concurrently for participant events.
type EventHandler struct {
	emit func(Event)
}

// NewEventHandler creates a handler that forwards events to emit
func NewEventHandler(emit func(Event)) *EventHandler {
	return &EventHandler{emit: emit}
}

func (h *EventHandler) SessionStarted(meta Meta, query string, participants []string) {
	h.emit(Event{Type: EventSessionStarted, Meta: meta, Data: SessionStartedData{Query: query, Participants: participants}})
}

func (h *EventHandler) StateChanged(meta Meta, from, to string) {
	h.emit(Event{Type: EventStateChanged, Meta: meta, Data: StateChangedData{From: from, To: to}})
}

func (h *EventHandler) RolesAssigned(meta Meta, queryType string, roles map[string]RoleInfo, fallback bool) {
	h.emit(Event{Type: EventRolesAssigned, Meta: meta, Data: RolesAssignedData{QueryType: queryType, Roles: roles, Fallback: fallback}})
}

func (h *EventHandler) ParticipantStarted(meta Meta, role string) {
	h.emit(Event{Type: EventParticipantStarted, Meta: meta, Data: ParticipantStartedData{Role: role}})
}

func (h *EventHandler) ParticipantCompleted(meta Meta, role string, content string, usage UsageInfo) {
	h.emit(Event{Type: EventParticipantCompleted, Meta: meta, Data: ParticipantCompletedData{Role: role, Content: content, Usage: usage}})
}

func (h *EventHandler) ParticipantFailed(meta Meta, role string, kind string, err error) {
	h.emit(Event{Type: EventParticipantFailed, Meta: meta, Data: ParticipantFailedData{Role: role, Kind: kind, Error: errString(err)}})
}

func (h *EventHandler) ConsolidationStarted(meta Meta, contributors int) {
	h.emit(Event{Type: EventConsolidationStarted, Meta: meta, Data: ConsolidationStartedData{Contributors: contributors}})
}

func (h *EventHandler) ConsolidationFailed(meta Meta, err error) {
	h.emit(Event{Type: EventConsolidationFailed, Meta: meta, Data: ConsolidationFailedData{Error: errString(err)}})
}

func (h *EventHandler) SessionCompleted(meta Meta, result string, consolidated bool) {
	h.emit(Event{Type: EventSessionCompleted, Meta: meta, Data: SessionCompletedData{Result: result, Consolidated: consolidated}})
}

func (h *EventHandler) SessionFailed(meta Meta, kind string, err error) {
	h.emit(Event{Type: EventSessionFailed, Meta: meta, Data: SessionFailedData{Kind: kind, Error: errString(err)}})
}

func (h *EventHandler) SessionCancelled(meta Meta, recorded int) {
	h.emit(Event{Type: EventSessionCancelled, Meta: meta, Data: SessionCancelledData{Recorded: recorded}})
}
