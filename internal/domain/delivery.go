package domain

import (
	"context"
	"io"
	"time"
)

// OutcomeStatus is the terminal state of a dispatched mention.
type OutcomeStatus string

const (
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomeFailed    OutcomeStatus = "failed"
)

// DeliveryOutcome describes how a single mention was handled.
type DeliveryOutcome struct {
	JobID          string        `json:"job_id"`
	EventID        string        `json:"event_id,omitempty"`
	Channel        string        `json:"channel"`
	ThreadTS       string        `json:"thread_ts"`
	User           string        `json:"user,omitempty"`
	Prompt         string        `json:"prompt"`
	EnhancedPrompt string        `json:"enhanced_prompt,omitempty"`
	ImageURL       string        `json:"image_url,omitempty"`
	Status         OutcomeStatus `json:"status"`
	Error          string        `json:"error,omitempty"`
	Duration       time.Duration `json:"duration_ns"`
	CreatedAt      time.Time     `json:"created_at"`
}

// Upload is a file posted into a conversation thread.
type Upload struct {
	Channel  string
	ThreadTS string
	Reader   io.Reader
	Size     int
	Filename string
	Title    string
	Comment  string
}

// Messenger is the chat-platform surface the delivery pipeline needs.
type Messenger interface {
	PostMessage(ctx context.Context, channel, threadTS, text string) error
	UploadFile(ctx context.Context, up Upload) error
}

// OutcomeRecorder persists delivery outcomes.
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, o DeliveryOutcome) error
}

// OutcomePublisher announces delivery outcomes to other services.
type OutcomePublisher interface {
	PublishOutcome(ctx context.Context, o DeliveryOutcome) error
}
