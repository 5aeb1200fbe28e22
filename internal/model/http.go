package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/tracing"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/domain"
)

const maxErrorBody = 4 << 10

// httpTrainer delegates training to a remote trainer service:
//
//	POST /v1/train  {"family","hyperparameters","data"} -> {"modelId"}
//	POST /v1/sample {"modelId","rows"}                  -> text/csv
type httpTrainer struct {
	baseURL string
	client  *http.Client
}

func NewHTTPTrainer(baseURL string, timeoutSeconds int) Trainer {
	if timeoutSeconds <= 0 {
		timeoutSeconds = 3600
	}
	return &httpTrainer{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second},
	}
}

type trainRequest struct {
	Family          domain.ModelFamily       `json:"family"`
	Hyperparameters domain.HyperparameterSet `json:"hyperparameters"`
	Data            string                   `json:"data"`
}

type trainResponse struct {
	ModelID string `json:"modelId"`
}

type sampleRequest struct {
	ModelID string `json:"modelId"`
	Rows    int    `json:"rows"`
}

func (t *httpTrainer) Train(ctx context.Context, family domain.ModelFamily, h domain.HyperparameterSet, data *domain.Dataset) (Model, error) {
	schema, ok := Lookup(family)
	if !ok {
		return nil, fmt.Errorf("unsupported model family %q", family)
	}
	if err := schema.Validate(h); err != nil {
		return nil, err
	}
	csvData, err := data.EncodeCSV()
	if err != nil {
		return nil, fmt.Errorf("encode training data: %w", err)
	}
	body, err := json.Marshal(trainRequest{Family: family, Hyperparameters: schema.Complete(h), Data: string(csvData)})
	if err != nil {
		return nil, err
	}
	resp, err := t.post(ctx, "/v1/train", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out trainResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode train response: %w", err)
	}
	if out.ModelID == "" {
		return nil, fmt.Errorf("trainer returned no model id")
	}
	return &remoteModel{trainer: t, id: out.ModelID}, nil
}

func (t *httpTrainer) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectHeaders(ctx, req.Header)
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("trainer %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("trainer %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}

type remoteModel struct {
	trainer *httpTrainer
	id      string
}

func (m *remoteModel) Sample(ctx context.Context, rows int) (*domain.Dataset, error) {
	body, err := json.Marshal(sampleRequest{ModelID: m.id, Rows: rows})
	if err != nil {
		return nil, err
	}
	resp, err := m.trainer.post(ctx, "/v1/sample", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	ds, err := domain.ParseCSV(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode sample: %w", err)
	}
	return ds, nil
}
