package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

const maxGenerateBody = 64 << 10

type handlers struct {
	generator Generator
	jobs      JobLookup
	health    HealthInfo
	logger    *slog.Logger
}

type healthResponse struct {
	Status              string `json:"status"`
	Service             string `json:"service"`
	SlackConfigured     bool   `json:"slack_configured"`
	ReplicateConfigured bool   `json:"replicate_configured"`
	TriggerWord         string `json:"trigger_word"`
}

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:              "healthy",
		Service:             ServiceName,
		SlackConfigured:     h.health.SlackConfigured,
		ReplicateConfigured: h.health.ReplicateConfigured,
		TriggerWord:         h.health.TriggerWord,
	})
}

type generateRequest struct {
	Prompt string `json:"prompt"`
	Raw    bool   `json:"raw"` // send the prompt without age/trigger-word augmentation
}

type generateResponse struct {
	ImageURL       string `json:"image_url"`
	EnhancedPrompt string `json:"enhanced_prompt,omitempty"`
}

func (h *handlers) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxGenerateBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid JSON body"})
		return
	}
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "prompt is required"})
		return
	}

	start := time.Now()
	generate := h.generator.Generate
	if req.Raw {
		generate = h.generator.GenerateRaw
	}
	res, err := generate(r.Context(), req.Prompt)
	if err != nil {
		h.logger.Error("generate request failed", "request_id", GetRequestID(r.Context()), "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
		return
	}
	h.logger.Info("generate request completed", "request_id", GetRequestID(r.Context()), "elapsed", time.Since(start))
	writeJSON(w, http.StatusOK, generateResponse{ImageURL: res.ImageURL, EnhancedPrompt: res.EnhancedPrompt})
}

func (h *handlers) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"jobs": h.jobs.ListActive()})
}

func (h *handlers) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.jobs.Get(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "job not found"})
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
