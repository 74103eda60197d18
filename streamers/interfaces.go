package streamers

import "time"

// Meta identifies one event within a session. Step increases monotonically
// across every event of a session; consumers order by Step, not arrival.
type Meta struct {
	SessionID   string    `json:"sessionId"`
	Step        int64     `json:"step"`
	Participant string    `json:"participant,omitempty"`
	At          time.Time `json:"at"`
}

// RoleInfo is the role given to one participant
type RoleInfo struct {
	Role        string `json:"role"`
	Instruction string `json:"instruction"`
}

// UsageInfo is the accounting of one participant call
type UsageInfo struct {
	InputTokens  int     `json:"inputTokens"`
	OutputTokens int     `json:"outputTokens"`
	Cost         float64 `json:"cost"`
	Balance      float64 `json:"remainingBalance"`
}

// SessionHandler receives collaboration session events. Participant events
// arrive concurrently from dispatch units; implementations must be safe for
// concurrent use.
type SessionHandler interface {
	// Session lifecycle
	SessionStarted(meta Meta, query string, participants []string)
	StateChanged(meta Meta, from, to string)
	RolesAssigned(meta Meta, queryType string, roles map[string]RoleInfo, fallback bool)

	// Participant units
	ParticipantStarted(meta Meta, role string)
	ParticipantCompleted(meta Meta, role string, content string, usage UsageInfo)
	ParticipantFailed(meta Meta, role string, kind string, err error)

	// Synthesis
	ConsolidationStarted(meta Meta, contributors int)
	ConsolidationFailed(meta Meta, err error)

	// Terminal states
	SessionCompleted(meta Meta, result string, consolidated bool)
	SessionFailed(meta Meta, kind string, err error)
	SessionCancelled(meta Meta, recorded int)
}

// NopHandler discards every event
type NopHandler struct{}

func (NopHandler) SessionStarted(Meta, string, []string) {}
func (NopHandler) StateChanged(Meta, string, string) {}
func (NopHandler) RolesAssigned(Meta, string, map[string]RoleInfo, bool) {}
func (NopHandler) ParticipantStarted(Meta, string) {}
func (NopHandler) ParticipantCompleted(Meta, string, string, UsageInfo) {}
func (NopHandler) ParticipantFailed(Meta, string, string, error) {}
func (NopHandler) ConsolidationStarted(Meta, int) {}
func (NopHandler) ConsolidationFailed(Meta, error) {}
func (NopHandler) SessionCompleted(Meta, string, bool) {}
func (NopHandler) SessionFailed(Meta, string, error) {}
func (NopHandler) SessionCancelled(Meta, int) {}
