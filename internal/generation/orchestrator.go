// Package generation builds image generation requests from user prompts and
// normalizes what the model returns.
package generation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"memorylane/internal/domain"
	"memorylane/internal/prompt"
)

// Fixed sampling parameters sent with every augmented request.
const (
	NumOutputs        = 1
	AspectRatio       = "1:1"
	OutputFormat      = "webp"
	GuidanceScale     = 3.5
	NumInferenceSteps = 28
)

// Orchestrator turns prompts into a single image URL.
type Orchestrator struct {
	predictor   domain.Predictor
	model       string
	loraWeights string
	triggerWord string
	defaultAge  string
	logger      *slog.Logger
}

type Config struct {
	Predictor   domain.Predictor
	Model       string
	LoraWeights string // optional hf_lora reference
	TriggerWord string
	DefaultAge  string
	Logger      *slog.Logger
}

func New(cfg Config) *Orchestrator {
	if cfg.DefaultAge == "" {
		cfg.DefaultAge = prompt.DefaultAge
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{
		predictor:   cfg.Predictor,
		model:       cfg.Model,
		loraWeights: cfg.LoraWeights,
		triggerWord: cfg.TriggerWord,
		defaultAge:  cfg.DefaultAge,
		logger:      cfg.Logger,
	}
}

// BuildRequest derives the age, composes the final prompt and assembles the
// fixed parameter set.
func (o *Orchestrator) BuildRequest(userPrompt string) domain.GenerationRequest {
	age := prompt.DeriveAge(userPrompt, o.defaultAge)
	enhanced := prompt.Enhance(o.triggerWord, age, userPrompt)

	input := map[string]any{
		"prompt":              enhanced,
		"num_outputs":         NumOutputs,
		"aspect_ratio":        AspectRatio,
		"output_format":       OutputFormat,
		"guidance_scale":      GuidanceScale,
		"num_inference_steps": NumInferenceSteps,
	}
	if o.loraWeights != "" {
		input["hf_lora"] = o.loraWeights
	}
	return domain.GenerationRequest{Model: o.model, Prompt: enhanced, Input: input}
}

// Generate runs one augmented prediction. There is no retry.
func (o *Orchestrator) Generate(ctx context.Context, userPrompt string) (domain.Result, error) {
	req := o.BuildRequest(userPrompt)
	o.logger.Info("generating image", "model", o.model, "prompt", req.Prompt)
	return o.run(ctx, req)
}

// GenerateRaw sends userPrompt to the model unmodified, without the fixed
// parameters or weights.
func (o *Orchestrator) GenerateRaw(ctx context.Context, userPrompt string) (domain.Result, error) {
	req := domain.GenerationRequest{
		Model:  o.model,
		Prompt: userPrompt,
		Input:  map[string]any{"prompt": userPrompt},
	}
	o.logger.Info("generating image (raw)", "model", o.model, "prompt", userPrompt)
	return o.run(ctx, req)
}

func (o *Orchestrator) run(ctx context.Context, req domain.GenerationRequest) (domain.Result, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return domain.Result{}, fmt.Errorf("generate: empty prompt")
	}
	out, err := o.predictor.Predict(ctx, req)
	if err != nil {
		return domain.Result{}, fmt.Errorf("generate: %w", err)
	}
	url, err := out.ImageURL()
	if err != nil {
		o.logger.Error("unexpected generation output", "kind", out.Kind.String(), "raw", string(out.Raw))
		return domain.Result{}, err
	}
	return domain.Result{ImageURL: url, EnhancedPrompt: req.Prompt, PredictionID: out.PredictionID}, nil
}
