package config

import "fmt"

// CollaborationConfig selects the coordinator and supervisor and tunes a session
type CollaborationConfig struct {
	Coordinator        string `hcl:"coordinator,optional"` // participants.<name>
	Supervisor         string `hcl:"supervisor,optional"`  // participants.<name>
	MinQueryLength     int    `hcl:"min_query_length,optional"`
	ParticipantTimeout int    `hcl:"participant_timeout,optional"` // seconds
}

// Defaults fills in default values for unset fields. Coordinator and supervisor
// default to the first participant carrying the matching capability flag.
func (c *CollaborationConfig) Defaults(participants []Participant) {
	if c.MinQueryLength <= 0 {
		c.MinQueryLength = 10
	}
	if c.ParticipantTimeout <= 0 {
		c.ParticipantTimeout = 120
	}
	for _, p := range participants {
		if c.Coordinator == "" && p.Coordinator {
			c.Coordinator = p.Name
		}
		if c.Supervisor == "" && p.Supervisor {
			c.Supervisor = p.Name
		}
	}
}

// Validate checks that coordinator and supervisor name capable participants
func (c *CollaborationConfig) Validate(participants []Participant) error {
	if c == nil {
		return fmt.Errorf("missing collaboration settings")
	}
	find := func(name string) *Participant {
		for i := range participants {
			if participants[i].Name == name {
				return &participants[i]
			}
		}
		return nil
	}

	if c.Coordinator == "" {
		return fmt.Errorf("no coordinator: set coordinator = true on a participant or name one here")
	}
	coord := find(c.Coordinator)
	if coord == nil {
		return fmt.Errorf("coordinator '%s' is not a declared participant", c.Coordinator)
	}
	if !coord.Coordinator {
		return fmt.Errorf("participant '%s' is not coordinator-capable", c.Coordinator)
	}

	if c.Supervisor == "" {
		return fmt.Errorf("no supervisor: set supervisor = true on a participant or name one here")
	}
	sup := find(c.Supervisor)
	if sup == nil {
		return fmt.Errorf("supervisor '%s' is not a declared participant", c.Supervisor)
	}
	if !sup.Supervisor {
		return fmt.Errorf("participant '%s' is not supervisor-capable", c.Supervisor)
	}
	return nil
}
