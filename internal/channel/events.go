package channel

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"memorylane/internal/dedup"
	"memorylane/internal/domain"
	"memorylane/internal/metrics"
	"memorylane/internal/prompt"
)

const maxEventBody = 1 << 20 // 1MB

// DefaultBotLookupTimeout bounds auth.test on the request path; Slack expects
// the acknowledgment within 3 seconds.
const DefaultBotLookupTimeout = 2 * time.Second

// MentionHandler takes accepted mentions off the request path.
type MentionHandler interface {
	HandleMention(ctx context.Context, m domain.Mention) string
}

// BotIdentity resolves the bot's own Slack user ID.
type BotIdentity interface {
	BotUserID(ctx context.Context) (string, error)
}

// EventsConfig configures the Events API receiver.
type EventsConfig struct {
	SigningSecret string // verification is skipped when empty
	Seen          *dedup.Set
	Handler       MentionHandler
	Bot           BotIdentity
	// BotLookupTimeout defaults to DefaultBotLookupTimeout.
	BotLookupTimeout time.Duration
	Logger           *slog.Logger
}

// Events receives Slack Events API webhooks.
type Events struct {
	signingSecret string
	seen          *dedup.Set
	handler       MentionHandler
	bot           BotIdentity
	botTimeout    time.Duration
	logger        *slog.Logger
}

// NewEvents creates the webhook receiver. A nil Seen gets a fresh set.
func NewEvents(cfg EventsConfig) *Events {
	if cfg.Seen == nil {
		cfg.Seen = dedup.New(dedup.DefaultCapacity)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.BotLookupTimeout <= 0 {
		cfg.BotLookupTimeout = DefaultBotLookupTimeout
	}
	return &Events{
		signingSecret: cfg.SigningSecret,
		seen:          cfg.Seen,
		handler:       cfg.Handler,
		bot:           cfg.Bot,
		botTimeout:    cfg.BotLookupTimeout,
		logger:        cfg.Logger,
	}
}

func (e *Events) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	if e.signingSecret != "" {
		if err := verifySignature(r.Header, body, e.signingSecret); err != nil {
			e.logger.Warn("slack signature rejected", "remote", r.RemoteAddr, "err", err)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
			return
		}
	}

	var ev domain.InboundEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	metrics.EventsReceived.Inc()

	switch ev.Type {
	case slackevents.URLVerification:
		e.logger.Info("url verification challenge received")
		writeJSON(w, http.StatusOK, map[string]string{"challenge": ev.Challenge})
		return
	case slackevents.CallbackEvent:
		e.handleCallback(r.Context(), ev)
	default:
		e.logger.Debug("ignoring slack payload", "type", ev.Type)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (e *Events) handleCallback(ctx context.Context, ev domain.InboundEvent) {
	if ev.EventID == "" {
		e.logger.Warn("event callback without event_id, skipping dedup")
	} else if e.seen.CheckAndMark(ev.EventID) {
		metrics.EventsDuplicate.Inc()
		e.logger.Info("duplicate event ignored", "event_id", ev.EventID)
		return
	}

	var inner struct {
		Type string `json:"type"`
	}
	if len(ev.Event) == 0 || json.Unmarshal(ev.Event, &inner) != nil {
		e.logger.Warn("event callback without inner event", "event_id", ev.EventID)
		return
	}
	if slackevents.EventsAPIType(inner.Type) != slackevents.AppMention {
		e.logger.Debug("ignoring inner event", "type", inner.Type, "event_id", ev.EventID)
		return
	}

	var mention slackevents.AppMentionEvent
	if err := json.Unmarshal(ev.Event, &mention); err != nil {
		e.logger.Warn("malformed app_mention", "event_id", ev.EventID, "err", err)
		return
	}
	if mention.BotID != "" {
		return
	}

	threadTS := mention.ThreadTimeStamp
	if threadTS == "" {
		threadTS = mention.TimeStamp
	}

	botUID := ""
	if e.bot != nil {
		lookupCtx, cancel := context.WithTimeout(ctx, e.botTimeout)
		uid, err := e.bot.BotUserID(lookupCtx)
		cancel()
		if err != nil {
			e.logger.Warn("bot user id unavailable, mentions will not be stripped", "err", err)
		}
		botUID = uid
	}

	m := domain.Mention{
		EventID:    ev.EventID,
		Channel:    mention.Channel,
		ThreadTS:   threadTS,
		User:       mention.User,
		Text:       mention.Text,
		Prompt:     prompt.Extract(mention.Text, botUID),
		ReceivedAt: time.Now(),
	}
	e.logger.Info("mention received", "user", m.User, "channel", m.Channel, "event_id", m.EventID, "prompt", m.Prompt)

	jobID := e.handler.HandleMention(ctx, m)
	e.logger.Debug("mention dispatched", "event_id", m.EventID, "job", jobID)
}

// verifySignature checks X-Slack-Signature against the signing secret.
func verifySignature(header http.Header, body []byte, secret string) error {
	sv, err := slack.NewSecretsVerifier(header, secret)
	if err != nil {
		return err
	}
	if _, err := sv.Write(body); err != nil {
		return err
	}
	return sv.Ensure()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
