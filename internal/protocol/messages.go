package protocol

import "time"

// TranscriptEvent is one transcript entry broadcast on the bus as it is
// recognized.
type TranscriptEvent struct {
	Runtime   string    `json:"runtime"`
	SessionID string    `json:"session_id"`
	Start     float64   `json:"start"`
	End       float64   `json:"end"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionSummary is broadcast once when a listening session stops, carrying
// the full transcript.
type SessionSummary struct {
	Runtime   string    `json:"runtime"`
	SessionID string    `json:"session_id"`
	Device    string    `json:"device"`
	Texts     []string  `json:"texts"`
	StoppedAt time.Time `json:"stopped_at"`
}

const (
	SubjectTranscriptEntry   = "listen.transcript.entry"
	SubjectTranscriptSession = "listen.transcript.session"
	SubjectControlStop       = "listen.control.stop"
)
