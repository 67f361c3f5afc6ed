package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/slack-go/slack"

	"memorylane/internal/domain"
)

const slackMaxMsgLen = 4000

// Slack implements domain.Messenger on the Slack Web API.
type Slack struct {
	api    *slack.Client
	logger *slog.Logger

	mu     sync.Mutex
	botUID string // the bot's own user ID, resolved once via auth.test
}

// SlackConfig configures the Slack client.
type SlackConfig struct {
	BotToken string
	APIURL   string // optional override, must end with "/"
	Logger   *slog.Logger
}

// NewSlack creates a new Slack client.
func NewSlack(cfg SlackConfig) *Slack {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	var opts []slack.Option
	if cfg.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(cfg.APIURL))
	}
	return &Slack{
		api:    slack.New(cfg.BotToken, opts...),
		logger: cfg.Logger,
	}
}

// AuthTest calls auth.test and caches the bot user ID on success.
func (s *Slack) AuthTest(ctx context.Context) (*slack.AuthTestResponse, error) {
	resp, err := s.api.AuthTestContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("slack auth: %w", err)
	}
	s.mu.Lock()
	s.botUID = resp.UserID
	s.mu.Unlock()
	s.logger.Info("slack bot identified", "user", resp.User, "user_id", resp.UserID, "team", resp.Team)
	return resp, nil
}

// BotUserID returns the bot's own user ID, calling auth.test until it succeeds once.
func (s *Slack) BotUserID(ctx context.Context) (string, error) {
	s.mu.Lock()
	uid := s.botUID
	s.mu.Unlock()
	if uid != "" {
		return uid, nil
	}
	resp, err := s.AuthTest(ctx)
	if err != nil {
		return "", err
	}
	return resp.UserID, nil
}

// PostMessage posts text into a thread, splitting it past Slack's length limit.
func (s *Slack) PostMessage(ctx context.Context, channelID, threadTS, text string) error {
	for _, chunk := range splitSlackMessage(text, slackMaxMsgLen) {
		opts := []slack.MsgOption{slack.MsgOptionText(chunk, false)}
		if threadTS != "" {
			opts = append(opts, slack.MsgOptionTS(threadTS))
		}
		if _, _, err := s.api.PostMessageContext(ctx, channelID, opts...); err != nil {
			s.logger.Error("slack send failed", "channel", channelID, "err", err)
			return fmt.Errorf("slack post message: %w", err)
		}
	}
	return nil
}

// UploadFile uploads a file into a thread using the files v2 upload flow.
func (s *Slack) UploadFile(ctx context.Context, up domain.Upload) error {
	summary, err := s.api.UploadFileV2Context(ctx, slack.UploadFileV2Parameters{
		Reader:          up.Reader,
		FileSize:        up.Size,
		Filename:        up.Filename,
		Title:           up.Title,
		InitialComment:  up.Comment,
		Channel:         up.Channel,
		ThreadTimestamp: up.ThreadTS,
	})
	if err != nil {
		s.logger.Error("slack upload failed", "channel", up.Channel, "err", err)
		return err
	}
	s.logger.Info("slack file uploaded", "channel", up.Channel, "file_id", summary.ID, "bytes", up.Size)
	return nil
}

func splitSlackMessage(msg string, maxLen int) []string {
	if len(msg) <= maxLen {
		return []string{msg}
	}

	var chunks []string
	for len(msg) > 0 {
		if len(msg) <= maxLen {
			chunks = append(chunks, msg)
			break
		}
		cut := maxLen
		if idx := strings.LastIndex(msg[:maxLen], "\n"); idx > maxLen/2 {
			cut = idx + 1
		}
		chunks = append(chunks, msg[:cut])
		msg = msg[cut:]
	}
	return chunks
}
