package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionSaveAnswer Action = "save_answer"
	ActionViolation  Action = "violation"
	ActionSubmit     Action = "submit"
	ActionPing       Action = "ping"
)

// RequestPayload is the single inbound message shape. Fields irrelevant to
// the action are ignored.
type RequestPayload struct {
	Action        Action `json:"action"`
	QuestionIndex *int   `json:"question_index,omitempty"`
	Answer        string `json:"answer,omitempty"`
	Type          string `json:"type,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError     Event = "error"
	EventSaved     Event = "saved"
	EventRecorded  Event = "violation_recorded"
	EventLocked    Event = "locked"
	EventSubmitted Event = "submitted"
	EventPong      Event = "pong"
)

type SavedResponse struct {
	Event         Event `json:"event"`
	QuestionIndex int   `json:"question_index"`
}

// ViolationResponse reports the attempt's lock state after an incident.
type ViolationResponse struct {
	Event      Event `json:"event"`
	Violations int   `json:"violations"`
	IsLocked   bool  `json:"is_locked"`
}

type SubmittedResponse struct {
	Event     Event  `json:"event"`
	AttemptID string `json:"attempt_id"`
	Status    string `json:"status"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
