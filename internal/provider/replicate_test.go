package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"memorylane/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestReplicate(srv *httptest.Server) *Replicate {
	return NewReplicate(ReplicateConfig{
		Token:        "r8_test",
		APIBase:      srv.URL,
		PollInterval: time.Millisecond,
		HTTPClient:   srv.Client(),
		Logger:       testLogger(),
	})
}

func TestReplicate_PredictVersionedModel(t *testing.T) {
	var got predictionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/predictions" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer r8_test" {
			t.Errorf("missing auth header")
		}
		if r.Header.Get("Prefer") != "wait" {
			t.Errorf("expected Prefer: wait")
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("bad body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"id":"p1","status":"succeeded","output":["https://replicate.delivery/out-0.webp"]}`)
	}))
	defer srv.Close()

	out, err := newTestReplicate(srv).Predict(context.Background(), domain.GenerationRequest{
		Model: "lucataco/flux-dev-lora:a22c463f",
		Input: map[string]any{"prompt": "hello"},
	})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if got.Version != "a22c463f" {
		t.Errorf("version = %q", got.Version)
	}
	if got.Input["prompt"] != "hello" {
		t.Errorf("input prompt = %v", got.Input["prompt"])
	}
	url, err := out.ImageURL()
	if err != nil || url != "https://replicate.delivery/out-0.webp" {
		t.Errorf("ImageURL = %q, %v", url, err)
	}
	if out.PredictionID != "p1" {
		t.Errorf("PredictionID = %q", out.PredictionID)
	}
}

func TestReplicate_PredictPollsUntilTerminal(t *testing.T) {
	var polls atomic.Int32
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/models/black-forest-labs/flux-dev/predictions":
			io.WriteString(w, `{"id":"p2","status":"starting","urls":{"get":"`+srv.URL+`/predictions/p2"}}`)
		case r.Method == http.MethodGet && r.URL.Path == "/predictions/p2":
			if polls.Add(1) < 3 {
				io.WriteString(w, `{"id":"p2","status":"processing","urls":{"get":"`+srv.URL+`/predictions/p2"}}`)
				return
			}
			io.WriteString(w, `{"id":"p2","status":"succeeded","output":{"url":"https://replicate.delivery/p2.webp"}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	out, err := newTestReplicate(srv).Predict(context.Background(), domain.GenerationRequest{
		Model: "black-forest-labs/flux-dev",
		Input: map[string]any{"prompt": "x"},
	})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if polls.Load() != 3 {
		t.Errorf("expected 3 polls, got %d", polls.Load())
	}
	if out.Kind != domain.OutputFile {
		t.Errorf("kind = %s", out.Kind)
	}
}

func TestReplicate_PredictFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"id":"p3","status":"failed","error":"CUDA out of memory"}`)
	}))
	defer srv.Close()

	_, err := newTestReplicate(srv).Predict(context.Background(), domain.GenerationRequest{
		Model: "owner/model:v1",
	})
	if !errors.Is(err, ErrPredictionFailed) {
		t.Fatalf("expected ErrPredictionFailed, got %v", err)
	}
}

func TestReplicate_PredictHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		io.WriteString(w, `{"detail":"invalid version"}`)
	}))
	defer srv.Close()

	_, err := newTestReplicate(srv).Predict(context.Background(), domain.GenerationRequest{
		Model: "owner/model:v1",
	})
	if err == nil {
		t.Fatal("expected error for 422")
	}
}

func TestReplicate_InvalidModel(t *testing.T) {
	r := NewReplicate(ReplicateConfig{Token: "x"})
	for _, model := range []string{"", "noslash", "owner/", "owner/model:", "model:v1"} {
		if _, err := r.Predict(context.Background(), domain.GenerationRequest{Model: model}); err == nil {
			t.Errorf("expected error for model %q", model)
		}
	}
}

func TestReplicate_Healthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer r8_test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		io.WriteString(w, `{"type":"user","username":"me"}`)
	}))
	defer srv.Close()

	if err := newTestReplicate(srv).Healthy(context.Background()); err != nil {
		t.Errorf("expected healthy, got %v", err)
	}
}

func TestDownloader_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.webp" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("RIFF....WEBP"))
	}))
	defer srv.Close()

	d := NewDownloader(srv.Client())
	data, err := d.Fetch(context.Background(), srv.URL+"/out.webp")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(data) != "RIFF....WEBP" {
		t.Errorf("unexpected body %q", data)
	}
	if _, err := d.Fetch(context.Background(), srv.URL+"/missing.webp"); err == nil {
		t.Error("expected error for 404")
	}
}
