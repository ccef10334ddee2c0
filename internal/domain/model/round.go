package model

// RoundState is the lifecycle of an ensemble round.
type RoundState string

// Round states.
const (
	RoundRunning   RoundState = "running"
	RoundComplete  RoundState = "complete"
	RoundCancelled RoundState = "cancelled"
)

// Terminal reports whether the round can no longer change.
func (s RoundState) Terminal() bool { return s == RoundComplete || s == RoundCancelled }

// Snapshot is a consistent, cumulative view of a round.
type Snapshot struct {
	RoundID   uint64        `json:"round_id"`
	Domain    Domain        `json:"domain"`
	State     RoundState    `json:"state"`
	Requested []ModelID     `json:"requested"`
	Results   []ModelResult `json:"results"` // arrival order
}

// Pending lists requested models without a recorded result, in request order.
func (s Snapshot) Pending() []ModelID {
	done := make(map[ModelID]struct{}, len(s.Results))
	for _, r := range s.Results {
		done[r.ModelID] = struct{}{}
	}
	out := make([]ModelID, 0, len(s.Requested))
	for _, id := range s.Requested {
		if _, ok := done[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// AggregateStatus summarizes an aggregate for the view layer.
type AggregateStatus string

// Aggregate statuses.
const (
	StatusPending   AggregateStatus = "pending"
	StatusAvailable AggregateStatus = "available"
	StatusAllFailed AggregateStatus = "all_failed"
	StatusEmpty     AggregateStatus = "empty"
	StatusCancelled AggregateStatus = "cancelled"
)

// Aggregate is derived from a snapshot; it is never mutated directly.
type Aggregate struct {
	RoundID   uint64          `json:"round_id"`
	Status    AggregateStatus `json:"status"`
	Best      *ModelResult    `json:"best,omitempty"`
	All       []ModelResult   `json:"all"`
	Pending   []ModelID       `json:"pending"`
	Requested int             `json:"requested"`
	Responded int             `json:"responded"`
}

// Phase is the session lifecycle.
type Phase string

// Session phases.
const (
	PhaseIdle    Phase = "idle"
	PhasePending Phase = "pending"
	PhaseSettled Phase = "settled"
)

// SessionState is what a session publishes to the view layer.
type SessionState struct {
	Domain    Domain     `json:"domain"`
	Phase     Phase      `json:"phase"`
	RoundID   uint64     `json:"round_id,omitempty"`
	Aggregate *Aggregate `json:"aggregate,omitempty"`
}
