package agent

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"memorylane/internal/domain"
	"memorylane/internal/metrics"
	"memorylane/internal/prompt"
)

// Messages posted into the originating thread.
const (
	AckMessage     = "🎨 Creating your childhood memory... This may take 30-60 seconds."
	UploadFilename = "childhood_memory.webp"
	UploadTitle    = "Your Childhood Memory"
)

// Generator produces an image for a user prompt.
type Generator interface {
	Generate(ctx context.Context, userPrompt string) (domain.Result, error)
}

// Fetcher downloads a generated image.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Pipeline delivers generated images for accepted mentions.
type Pipeline struct {
	dispatcher *Dispatcher
	messenger  domain.Messenger
	generator  Generator
	fetcher    Fetcher
	recorder   domain.OutcomeRecorder
	publisher  domain.OutcomePublisher
	logger     *slog.Logger
}

// PipelineConfig configures a Pipeline. Recorder and Publisher are optional.
type PipelineConfig struct {
	Dispatcher *Dispatcher
	Messenger  domain.Messenger
	Generator  Generator
	Fetcher    Fetcher
	Recorder   domain.OutcomeRecorder
	Publisher  domain.OutcomePublisher
	Logger     *slog.Logger
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Dispatcher == nil {
		cfg.Dispatcher = NewDispatcher(cfg.Logger)
	}
	return &Pipeline{
		dispatcher: cfg.Dispatcher,
		messenger:  cfg.Messenger,
		generator:  cfg.Generator,
		fetcher:    cfg.Fetcher,
		recorder:   cfg.Recorder,
		publisher:  cfg.Publisher,
		logger:     cfg.Logger,
	}
}

// Dispatcher returns the dispatcher jobs run on.
func (p *Pipeline) Dispatcher() *Dispatcher { return p.dispatcher }

// HandleMention schedules work for m and returns immediately with the job id.
// A mention without a prompt gets the usage hint instead of a generation.
func (p *Pipeline) HandleMention(ctx context.Context, m domain.Mention) string {
	if m.Prompt == "" {
		return p.dispatcher.Submit(ctx, "usage", func(ctx context.Context, _ string) error {
			return p.messenger.PostMessage(ctx, m.Channel, m.ThreadTS, prompt.Usage)
		})
	}
	metrics.MentionsAccepted.Inc()
	return p.dispatcher.Submit(ctx, "generate", func(ctx context.Context, jobID string) error {
		return p.Process(ctx, jobID, m)
	})
}

// Process acknowledges, generates, downloads and uploads. Any failure is
// reported to the thread as a single message and returned.
func (p *Pipeline) Process(ctx context.Context, jobID string, m domain.Mention) error {
	start := time.Now()
	outcome := domain.DeliveryOutcome{
		JobID:     jobID,
		EventID:   m.EventID,
		Channel:   m.Channel,
		ThreadTS:  m.ThreadTS,
		User:      m.User,
		Prompt:    m.Prompt,
		CreatedAt: start,
	}

	if err := p.messenger.PostMessage(ctx, m.Channel, m.ThreadTS, AckMessage); err != nil {
		p.logger.Warn("acknowledgment not posted", "channel", m.Channel, "err", err)
	}

	err := p.deliver(ctx, m, &outcome)
	outcome.Duration = time.Since(start)
	metrics.DeliveryLatency.ObserveSince(start)

	if err != nil {
		metrics.GenerationsFail.Inc()
		outcome.Status = domain.OutcomeFailed
		outcome.Error = err.Error()
		p.logger.Error("image request failed", "job", jobID, "prompt", m.Prompt, "err", err)
		msg := fmt.Sprintf("❌ Sorry, I couldn't generate that image. Error: %s", err)
		if postErr := p.messenger.PostMessage(ctx, m.Channel, m.ThreadTS, msg); postErr != nil {
			p.logger.Error("error message not posted", "channel", m.Channel, "err", postErr)
		}
	} else {
		metrics.GenerationsOK.Inc()
		outcome.Status = domain.OutcomeSucceeded
		p.logger.Info("image posted", "job", jobID, "channel", m.Channel, "elapsed", outcome.Duration)
	}

	p.report(ctx, outcome)
	return err
}

func (p *Pipeline) deliver(ctx context.Context, m domain.Mention, outcome *domain.DeliveryOutcome) error {
	genStart := time.Now()
	res, err := p.generator.Generate(ctx, m.Prompt)
	metrics.GenerationLatency.ObserveSince(genStart)
	if err != nil {
		return err
	}
	outcome.ImageURL = res.ImageURL
	outcome.EnhancedPrompt = res.EnhancedPrompt
	p.logger.Info("image generated", "url", res.ImageURL)

	data, err := p.fetcher.Fetch(ctx, res.ImageURL)
	if err != nil {
		return err
	}
	p.logger.Debug("image downloaded", "bytes", len(data))

	err = p.messenger.UploadFile(ctx, domain.Upload{
		Channel:  m.Channel,
		ThreadTS: m.ThreadTS,
		Reader:   bytes.NewReader(data),
		Size:     len(data),
		Filename: UploadFilename,
		Title:    UploadTitle,
		Comment:  fmt.Sprintf("✨ Here's your childhood memory: _%s_", m.Prompt),
	})
	if err != nil {
		return fmt.Errorf("upload to slack: %w", err)
	}
	return nil
}

func (p *Pipeline) report(ctx context.Context, o domain.DeliveryOutcome) {
	if p.recorder != nil {
		if err := p.recorder.RecordOutcome(ctx, o); err != nil {
			p.logger.Warn("outcome not recorded", "job", o.JobID, "err", err)
		}
	}
	if p.publisher != nil {
		if err := p.publisher.PublishOutcome(ctx, o); err != nil {
			p.logger.Warn("outcome not published", "job", o.JobID, "err", err)
		}
	}
}
