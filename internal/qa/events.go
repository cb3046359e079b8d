package qa

type EventType string

const (
	EventToken    EventType = "token"
	EventCitation EventType = "citation"
	EventDone     EventType = "done"
	EventError    EventType = "error"
)

// Error codes carried by terminal error events.
const (
	CodeNoEvidence        = "no_evidence"
	CodeUpstreamFailure   = "upstream_failure"
	CodePersistenceFailed = "persistence_failed"
	CodeInternal          = "internal"
)

// Event is one frame of the answer stream. Which fields are set depends on
// Type.
type Event struct {
	Type       EventType `json:"type"`
	Text       string    `json:"text,omitempty"`
	PageNumber int       `json:"page_number,omitempty"`
	CharStart  *int      `json:"char_start,omitempty"`
	CharEnd    *int      `json:"char_end,omitempty"`
	MessageID  uint      `json:"message_id,omitempty"`
	Code       string    `json:"code,omitempty"`
	Message    string    `json:"message,omitempty"`
}

// Sink delivers events to the caller. A non-nil error means the caller is
// gone and nothing more should be sent.
type Sink func(Event) error

func tokenEvent(text string) Event {
	return Event{Type: EventToken, Text: text}
}

func citationEvent(c Citation) Event {
	return Event{Type: EventCitation, PageNumber: c.PageNumber, CharStart: c.CharStart, CharEnd: c.CharEnd}
}

func errorEvent(code, message string) Event {
	return Event{Type: EventError, Code: code, Message: message}
}
