package model

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/domain"
)

func sampleData(t *testing.T) *domain.Dataset {
	t.Helper()
	d, err := domain.ParseCSV(strings.NewReader("age,income,city\n31,4200.5,Rabat\n45,5100.25,Fes\n28,3900,Rabat\n52,6100.75,Tangier\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return d
}

func TestSchemaValidate(t *testing.T) {
	ctgan, ok := Lookup(domain.FamilyCTGAN)
	if !ok {
		t.Fatalf("ctgan schema missing")
	}
	tests := []struct {
		name    string
		set     domain.HyperparameterSet
		wantErr bool
	}{
		{"known", domain.NumericSet(map[string]float64{"epochs": 100, "generator_lr": 1e-4}), false},
		{"unknown", domain.NumericSet(map[string]float64{"learning_rate": 1e-3}), true},
		{"text value", domain.NewHyperparameterSet(map[string]domain.Value{"epochs": domain.Text("many")}), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ctgan.Validate(tt.set); (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSchemaDefaultsAndSpace(t *testing.T) {
	tvae, _ := Lookup(domain.FamilyTVAE)
	full := tvae.Complete(domain.NumericSet(map[string]float64{"epochs": 50}))
	if e, _ := full.Int("epochs"); e != 50 {
		t.Fatalf("expected override to win, got %d", e)
	}
	if lr, _ := full.Float("learning_rate"); lr != 1e-3 {
		t.Fatalf("expected default learning rate, got %v", lr)
	}
	space := tvae.SpaceFor(nil)
	if err := space.Validate(); err != nil {
		t.Fatalf("default space invalid: %v", err)
	}
	if err := tvae.ValidateSpace(space); err != nil {
		t.Fatalf("default space not allowed by schema: %v", err)
	}
	if got := tvae.SpaceFor([]string{"epochs"}).Names(); len(got) != 1 || got[0] != "epochs" {
		t.Fatalf("unexpected restricted space %v", got)
	}
	for _, f := range Families() {
		s, _ := Lookup(f)
		if err := s.ValidateSpace(s.DefaultSpace); err != nil {
			t.Fatalf("%s: %v", f, err)
		}
	}
}

func TestLocalTrainerSamplesSameShape(t *testing.T) {
	tr := NewLocalTrainer(1)
	data := sampleData(t)
	m, err := tr.Train(context.Background(), domain.FamilyCTGAN, domain.NumericSet(map[string]float64{"epochs": 300}), data)
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	out, err := m.Sample(context.Background(), 50)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if out.Len() != 50 || strings.Join(out.Header, ",") != "age,income,city" {
		t.Fatalf("unexpected sample shape %v rows=%d", out.Header, out.Len())
	}
	cities := map[string]bool{"Rabat": true, "Fes": true, "Tangier": true}
	for _, row := range out.Rows {
		if !cities[row[2]] {
			t.Fatalf("unexpected category %q", row[2])
		}
		if strings.Contains(row[0], ".") {
			t.Fatalf("integer column produced %q", row[0])
		}
	}
}

func TestLocalTrainerRejectsBadConfig(t *testing.T) {
	tr := NewLocalTrainer(1)
	data := sampleData(t)
	tests := []struct {
		name   string
		family domain.ModelFamily
		set    domain.HyperparameterSet
	}{
		{"zero epochs", domain.FamilyTVAE, domain.NumericSet(map[string]float64{"epochs": 0})},
		{"unknown family", "gaussian_copula", domain.HyperparameterSet{}},
		{"foreign parameter", domain.FamilyTVAE, domain.NumericSet(map[string]float64{"generator_lr": 1e-4})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tr.Train(context.Background(), tt.family, tt.set, data); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestNoiseDecreasesWithEpochs(t *testing.T) {
	low := noiseLevel(domain.NumericSet(map[string]float64{"epochs": 100, "batch_size": 500}))
	high := noiseLevel(domain.NumericSet(map[string]float64{"epochs": 1000, "batch_size": 500}))
	if !(high < low) {
		t.Fatalf("expected more epochs to reduce noise: %v vs %v", high, low)
	}
}

func TestHTTPTrainer(t *testing.T) {
	var trained trainRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/train":
			b, _ := io.ReadAll(r.Body)
			if err := json.Unmarshal(b, &trained); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			_ = json.NewEncoder(w).Encode(trainResponse{ModelID: "m-1"})
		case "/v1/sample":
			var req sampleRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req.ModelID != "m-1" || req.Rows != 2 {
				http.Error(w, "bad sample request", http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "text/csv")
			_, _ = io.WriteString(w, "age,income,city\n30,4000,Rabat\n40,5000,Fes\n")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	tr, err := NewTrainer(TrainerConfig{Provider: "http", URL: srv.URL + "/"})
	if err != nil {
		t.Fatalf("new trainer: %v", err)
	}
	m, err := tr.Train(context.Background(), domain.FamilyCTGAN, domain.NumericSet(map[string]float64{"epochs": 100}), sampleData(t))
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if trained.Family != domain.FamilyCTGAN || !strings.HasPrefix(trained.Data, "age,income,city\n") {
		t.Fatalf("unexpected train payload %+v", trained)
	}
	if bs, _ := trained.Hyperparameters.Int("batch_size"); bs != 500 {
		t.Fatalf("expected defaults to be sent, got batch_size=%d", bs)
	}
	out, err := m.Sample(context.Background(), 2)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if out.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", out.Len())
	}
}

func TestHTTPTrainerPropagatesFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "out of memory", http.StatusInternalServerError)
	}))
	defer srv.Close()

	tr := NewHTTPTrainer(srv.URL, 5)
	_, err := tr.Train(context.Background(), domain.FamilyTVAE, domain.HyperparameterSet{}, sampleData(t))
	if err == nil || !strings.Contains(err.Error(), "out of memory") {
		t.Fatalf("expected trainer error, got %v", err)
	}
}

func TestNewTrainerUnknownProvider(t *testing.T) {
	if _, err := NewTrainer(TrainerConfig{Provider: "sagemaker"}); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := NewTrainer(TrainerConfig{Provider: "http"}); err == nil {
		t.Fatalf("expected error for missing url")
	}
}
