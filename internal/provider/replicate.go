package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"memorylane/internal/domain"
)

const (
	defaultReplicateBase = "https://api.replicate.com/v1"
	defaultPollInterval  = time.Second
)

// ErrPredictionFailed is returned when a prediction ends in failed or canceled.
var ErrPredictionFailed = errors.New("prediction did not succeed")

// Replicate implements domain.Predictor against the Replicate predictions API.
type Replicate struct {
	token        string
	apiBase      string
	pollInterval time.Duration
	client       *http.Client
	logger       *slog.Logger
}

type ReplicateConfig struct {
	Token        string
	APIBase      string
	PollInterval time.Duration
	HTTPClient   *http.Client
	Logger       *slog.Logger
}

func NewReplicate(cfg ReplicateConfig) *Replicate {
	if cfg.APIBase == "" {
		cfg.APIBase = defaultReplicateBase
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = SharedHTTPClient(defaultHTTPTimeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Replicate{
		token:        cfg.Token,
		apiBase:      strings.TrimSuffix(cfg.APIBase, "/"),
		pollInterval: cfg.PollInterval,
		client:       cfg.HTTPClient,
		logger:       cfg.Logger,
	}
}

func (r *Replicate) Name() string { return "replicate" }

// Healthy checks that the API token is accepted.
func (r *Replicate) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.apiBase+"/account", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+r.token)
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("replicate not reachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("replicate: invalid API token")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("replicate returned %d", resp.StatusCode)
	}
	return nil
}

type predictionRequest struct {
	Version string         `json:"version,omitempty"`
	Input   map[string]any `json:"input"`
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  json.RawMessage `json:"error"`
	URLs   struct {
		Get    string `json:"get"`
		Cancel string `json:"cancel"`
	} `json:"urls"`
}

func (p *prediction) terminal() bool {
	switch p.Status {
	case "succeeded", "failed", "canceled":
		return true
	}
	return false
}

func (p *prediction) errorText() string {
	if len(p.Error) == 0 || string(p.Error) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(p.Error, &s); err == nil {
		return s
	}
	return string(p.Error)
}

// Predict creates a prediction and blocks until it reaches a terminal status.
// The model is either "owner/name:version" or "owner/name" (official models).
func (r *Replicate) Predict(ctx context.Context, req domain.GenerationRequest) (domain.Output, error) {
	endpoint, body, err := r.createTarget(req)
	if err != nil {
		return domain.Output{}, err
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return domain.Output{}, fmt.Errorf("marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return domain.Output{}, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Prefer", "wait")

	start := time.Now()
	pred, err := r.do(httpReq)
	if err != nil {
		return domain.Output{}, err
	}
	r.logger.Info("prediction created", "id", pred.ID, "status", pred.Status, "model", req.Model)

	for !pred.terminal() {
		if pred.URLs.Get == "" {
			return domain.Output{}, fmt.Errorf("replicate: prediction %s has no poll URL", pred.ID)
		}
		select {
		case <-ctx.Done():
			return domain.Output{}, ctx.Err()
		case <-time.After(r.pollInterval):
		}
		pollReq, err := http.NewRequestWithContext(ctx, http.MethodGet, pred.URLs.Get, nil)
		if err != nil {
			return domain.Output{}, fmt.Errorf("new request: %w", err)
		}
		if pred, err = r.do(pollReq); err != nil {
			return domain.Output{}, err
		}
		r.logger.Debug("prediction polled", "id", pred.ID, "status", pred.Status)
	}

	if pred.Status != "succeeded" {
		msg := pred.errorText()
		if msg == "" {
			msg = pred.Status
		}
		return domain.Output{}, fmt.Errorf("%w: %s: %s", ErrPredictionFailed, pred.ID, msg)
	}

	r.logger.Info("prediction succeeded", "id", pred.ID, "elapsed", time.Since(start))
	out := domain.ParseOutput(pred.Output)
	out.PredictionID = pred.ID
	return out, nil
}

func (r *Replicate) createTarget(req domain.GenerationRequest) (string, predictionRequest, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		return "", predictionRequest{}, fmt.Errorf("replicate: model is required")
	}
	body := predictionRequest{Input: req.Input}

	if name, version, ok := strings.Cut(model, ":"); ok {
		if version == "" || !strings.Contains(name, "/") {
			return "", predictionRequest{}, fmt.Errorf("replicate: invalid model identifier %q", model)
		}
		body.Version = version
		return r.apiBase + "/predictions", body, nil
	}

	owner, name, ok := strings.Cut(model, "/")
	if !ok || owner == "" || name == "" {
		return "", predictionRequest{}, fmt.Errorf("replicate: invalid model identifier %q", model)
	}
	return fmt.Sprintf("%s/models/%s/%s/predictions", r.apiBase, owner, name), body, nil
}

func (r *Replicate) do(req *http.Request) (*prediction, error) {
	req.Header.Set("Authorization", "Bearer "+r.token)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("replicate request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("replicate %d: %s", resp.StatusCode, string(respBody))
	}

	var pred prediction
	if err := json.Unmarshal(respBody, &pred); err != nil {
		return nil, fmt.Errorf("unmarshal prediction: %w", err)
	}
	return &pred, nil
}
