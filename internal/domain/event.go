package domain

import (
	"encoding/json"
	"time"
)

// InboundEvent is the outer envelope of a Slack Events API webhook call.
type InboundEvent struct {
	Type      string          `json:"type"`
	Token     string          `json:"token,omitempty"`
	Challenge string          `json:"challenge,omitempty"`
	EventID   string          `json:"event_id,omitempty"`
	TeamID    string          `json:"team_id,omitempty"`
	Event     json.RawMessage `json:"event,omitempty"`
}

// Mention is an accepted app_mention, ready for dispatch.
type Mention struct {
	EventID    string
	Channel    string
	ThreadTS   string // reply thread: thread_ts when present, else the message ts
	User       string
	Text       string // raw message text
	Prompt     string // text with bot mentions stripped
	ReceivedAt time.Time
}
