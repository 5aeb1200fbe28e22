package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/auth/static"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/config"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/domain"
)

const (
	aliceToken = "alice-token"
	bobToken   = "bob-token"
	opsToken   = "ops-token"
)

type testServer struct {
	t   *testing.T
	srv *httptest.Server
	app *Application
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	var handler http.Handler
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg, err := config.LoadConfigOptional("")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.Env = "dev"
	cfg.PersistenceProvider = "memory"
	cfg.TrainerProvider = "local"
	cfg.TrainerSeed = 7
	cfg.LocalArtifactsDir = t.TempDir()
	cfg.PublicBaseURL = srv.URL
	cfg.TracingEnabled = false
	cfg.NotifyWebhookURL = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	validator, err := static.NewValidatorFromJSON(json.RawMessage(`{"tokens":[
		{"token":"alice-token","subject":"alice"},
		{"token":"bob-token","subject":"bob"},
		{"token":"ops-token","subject":"ops","role":"admin"}
	]}`))
	if err != nil {
		t.Fatalf("validator: %v", err)
	}
	application, err := NewApplication(cfg,
		WithValidator(validator),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatalf("NewApplication: %v", err)
	}
	SetupMappings(application)
	handler = application.Engine
	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = application.Shutdown(ctx)
	})
	return &testServer{t: t, srv: srv, app: application}
}

func (s *testServer) do(method, path, token, contentType string, body []byte) (int, []byte) {
	s.t.Helper()
	req, err := http.NewRequest(method, s.srv.URL+path, bytes.NewReader(body))
	if err != nil {
		s.t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		s.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b
}

func (s *testServer) json(method, path, token string, in any, wantStatus int, out any) {
	s.t.Helper()
	var body []byte
	if in != nil {
		body, _ = json.Marshal(in)
	}
	status, b := s.do(method, path, token, "application/json", body)
	if status != wantStatus {
		s.t.Fatalf("%s %s: expected %d, got %d: %s", method, path, wantStatus, status, b)
	}
	if out != nil {
		if err := json.Unmarshal(b, out); err != nil {
			s.t.Fatalf("decode %s: %v", b, err)
		}
	}
}

func (s *testServer) upload(token string) string {
	s.t.Helper()
	var csv strings.Builder
	csv.WriteString("age,income,city\n")
	for i := 0; i < 60; i++ {
		fmt.Fprintf(&csv, "%d,%d,%s\n", 20+i%40, 30000+i*250, []string{"paris", "lyon", "nice"}[i%3])
	}
	status, b := s.do(http.MethodPost, "/v1/synth/datasets?name=people.csv", token, "text/csv", []byte(csv.String()))
	if status != http.StatusCreated {
		s.t.Fatalf("upload: expected 201, got %d: %s", status, b)
	}
	var out struct {
		Key  string `json:"key"`
		Rows int    `json:"rows"`
	}
	_ = json.Unmarshal(b, &out)
	if out.Rows != 60 || !strings.HasPrefix(out.Key, "datasets/") {
		s.t.Fatalf("unexpected upload response %s", b)
	}
	return out.Key
}

func (s *testServer) waitTerminal(token, id string) *domain.GenerationRequest {
	s.t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		var req domain.GenerationRequest
		s.json(http.MethodGet, "/v1/synth/generations/"+id, token, nil, http.StatusOK, &req)
		if req.Status.IsTerminal() {
			return &req
		}
		time.Sleep(20 * time.Millisecond)
	}
	s.t.Fatalf("request %s did not finish", id)
	return nil
}

func TestHTTPSimpleGenerationFlow(t *testing.T) {
	s := newTestServer(t)
	key := s.upload(aliceToken)

	var created domain.GenerationRequest
	s.json(http.MethodPost, "/v1/synth/generations", aliceToken, map[string]any{
		"datasetKey":      key,
		"modelType":       "ctgan",
		"sampleSize":      150,
		"hyperparameters": map[string]any{"epochs": 100, "batch_size": 500},
	}, http.StatusAccepted, &created)
	if created.ID == "" || created.Mode != domain.ModeSimple {
		t.Fatalf("unexpected submit response %+v", created)
	}

	done := s.waitTerminal(aliceToken, created.ID)
	if done.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", done.Status, done.Error)
	}
	if done.QualityScore == nil || done.Optimized {
		t.Fatalf("expected score without optimization, got %+v", done)
	}

	// Other users cannot see the request.
	s.json(http.MethodGet, "/v1/synth/generations/"+created.ID, bobToken, nil, http.StatusNotFound, nil)
	s.json(http.MethodGet, "/v1/synth/generations/"+created.ID+"/download", bobToken, nil, http.StatusNotFound, nil)

	var dl struct {
		URL string `json:"url"`
	}
	s.json(http.MethodGet, "/v1/synth/generations/"+created.ID+"/download", aliceToken, nil, http.StatusOK, &dl)
	if !strings.HasPrefix(dl.URL, s.srv.URL+"/v1/synth/artifacts/") {
		t.Fatalf("unexpected download url %s", dl.URL)
	}
	resp, err := http.Get(dl.URL)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("download: expected 200, got %d", resp.StatusCode)
	}
	data, err := domain.ParseCSVBytes(body)
	if err != nil || data.Len() != 150 {
		t.Fatalf("expected 150 synthetic rows, got %v %v", data, err)
	}

	resp, err = http.Get(strings.Replace(dl.URL, "sig=", "sig=00", 1))
	if err != nil {
		t.Fatalf("tampered download: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for tampered signature, got %d", resp.StatusCode)
	}

	// Completed requests cannot be cancelled or retried.
	s.json(http.MethodDelete, "/v1/synth/generations/"+created.ID, aliceToken, nil, http.StatusConflict, nil)
	s.json(http.MethodPost, "/v1/synth/generations/"+created.ID+"/retry", aliceToken, nil, http.StatusConflict, nil)

	var notes struct {
		Items []domain.Notification `json:"items"`
	}
	// The completion notice is stored right after the status flips.
	deadline := time.Now().Add(2 * time.Second)
	for {
		s.json(http.MethodGet, "/v1/synth/notifications", aliceToken, nil, http.StatusOK, &notes)
		if len(notes.Items) >= 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(notes.Items) < 2 || notes.Items[0].Kind != domain.NotifyCompleted {
		t.Fatalf("expected started and completed notifications, got %+v", notes.Items)
	}
	s.json(http.MethodGet, "/v1/synth/notifications", bobToken, nil, http.StatusOK, &notes)
	if len(notes.Items) != 0 {
		t.Fatalf("bob should have an empty inbox, got %+v", notes.Items)
	}
}

func TestHTTPOptimizationFlow(t *testing.T) {
	s := newTestServer(t)
	key := s.upload(aliceToken)

	var created domain.GenerationRequest
	s.json(http.MethodPost, "/v1/synth/generations", aliceToken, map[string]any{
		"datasetKey": key,
		"modelType":  "tvae",
		"sampleSize": 120,
		"optimization": map[string]any{
			"method":  "grid",
			"nTrials": 3,
			"searchSpace": map[string]any{"params": []map[string]any{
				{"name": "epochs", "min": 100, "max": 300, "step": 100, "integer": true},
			}},
		},
	}, http.StatusAccepted, &created)
	if created.Mode != domain.ModeOptimization {
		t.Fatalf("expected optimization mode, got %s", created.Mode)
	}

	done := s.waitTerminal(aliceToken, created.ID)
	if done.Status != domain.StatusCompleted || !done.OptimizationAttempted {
		t.Fatalf("unexpected final state %+v", done)
	}

	var run domain.SearchRun
	s.json(http.MethodGet, "/v1/synth/generations/"+created.ID+"/optimization", aliceToken, nil, http.StatusOK, &run)
	if run.Attempted != 3 || len(run.Trials) != 3 {
		t.Fatalf("expected 3 trials, got %+v", run)
	}
	for i, tr := range run.Trials {
		if tr.Number != i+1 {
			t.Fatalf("trials out of order: %+v", run.Trials)
		}
	}

	var list struct {
		Items []*domain.GenerationRequest `json:"items"`
		Total int                         `json:"total"`
	}
	s.json(http.MethodGet, "/v1/synth/generations?status=completed", aliceToken, nil, http.StatusOK, &list)
	if list.Total != 1 || list.Items[0].ID != created.ID {
		t.Fatalf("unexpected list %+v", list)
	}
	s.json(http.MethodGet, "/v1/synth/generations?status=bogus", aliceToken, nil, http.StatusBadRequest, nil)
}

func TestHTTPRejectsBadRequests(t *testing.T) {
	s := newTestServer(t)
	key := s.upload(aliceToken)

	if status, _ := s.do(http.MethodGet, "/v1/synth/generations", "", "", nil); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", status)
	}
	if status, _ := s.do(http.MethodPost, "/v1/synth/datasets", aliceToken, "text/csv", []byte("a,b\n")); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for an empty dataset, got %d", status)
	}

	cases := []map[string]any{
		{"datasetKey": key, "modelType": "gpt", "sampleSize": 150, "hyperparameters": map[string]any{"epochs": 10}},
		{"datasetKey": key, "modelType": "ctgan", "sampleSize": 5, "hyperparameters": map[string]any{"epochs": 10}},
		{"datasetKey": key, "modelType": "ctgan", "sampleSize": 150},
		{"datasetKey": key, "modelType": "ctgan", "sampleSize": 150, "optimization": map[string]any{"method": "anneal", "nTrials": 3}},
	}
	for _, body := range cases {
		s.json(http.MethodPost, "/v1/synth/generations", aliceToken, body, http.StatusBadRequest, nil)
	}

	// A dataset uploaded by alice is not usable by bob.
	s.json(http.MethodPost, "/v1/synth/generations", bobToken, map[string]any{
		"datasetKey": key, "modelType": "ctgan", "sampleSize": 150,
		"hyperparameters": map[string]any{"epochs": 10},
	}, http.StatusBadRequest, nil)

	s.json(http.MethodGet, "/v1/synth/generations/does-not-exist", aliceToken, nil, http.StatusNotFound, nil)

	s.json(http.MethodGet, "/v1/synth/admin/queue", aliceToken, nil, http.StatusForbidden, nil)
	var queue struct {
		Workers  int            `json:"workers"`
		Requests map[string]int `json:"requests"`
	}
	s.json(http.MethodGet, "/v1/synth/admin/queue", opsToken, nil, http.StatusOK, &queue)
	if queue.Workers != s.app.Config.Workers {
		t.Fatalf("expected %d workers, got %+v", s.app.Config.Workers, queue)
	}
	if _, ok := queue.Requests["pending"]; !ok {
		t.Fatalf("expected pending count, got %+v", queue.Requests)
	}

	if status, _ := s.do(http.MethodGet, "/healthz", "", "", nil); status != http.StatusOK {
		t.Fatalf("expected healthz 200, got %d", status)
	}
	if status, b := s.do(http.MethodGet, "/metrics", "", "", nil); status != http.StatusOK || !bytes.Contains(b, []byte("synth_")) {
		t.Fatalf("expected synth metrics, got %d", status)
	}
}
