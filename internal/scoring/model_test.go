package scoring

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/riskflow-io/riskflow/internal/features"
	"github.com/riskflow-io/riskflow/internal/schema"
)

// writeModelDir writes a model artifact directory with the given metadata
// mutations applied after the params hash has been computed from the weights.
func writeModelDir(t *testing.T, mutate func(*Metadata)) string {
	t.Helper()

	n := len(features.Order)

	coefficients := make([]float64, n)
	mean := make([]float64, n)
	scale := make([]float64, n)

	for i := range features.Order {
		coefficients[i] = 0.5
		mean[i] = 1
		scale[i] = 2
	}

	rawWeights, err := json.Marshal(map[string]interface{}{
		"coefficients": coefficients,
		"intercept":    -0.25,
		"scaler_mean":  mean,
		"scaler_scale": scale,
	})
	if err != nil {
		t.Fatalf("failed to marshal weights: %v", err)
	}

	hash, err := schema.PayloadHash(rawWeights)
	if err != nil {
		t.Fatalf("failed to hash weights: %v", err)
	}

	metadata := Metadata{
		ModelVersion: "logreg-test-1",
		FeatureOrder: features.Order,
		ParamsHash:   hash,
	}

	if mutate != nil {
		mutate(&metadata)
	}

	rawMetadata, err := json.Marshal(metadata)
	if err != nil {
		t.Fatalf("failed to marshal metadata: %v", err)
	}

	dir := t.TempDir()
	writeArtifact(t, dir, metadataFilename, rawMetadata)
	writeArtifact(t, dir, weightsFilename, rawWeights)

	return dir
}

func writeArtifact(t *testing.T, dir, name string, data []byte) {
	t.Helper()

	if err := os.WriteFile(filepath.Join(dir, name), data, 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
}

func TestLoadModel_Valid(t *testing.T) {
	model, err := LoadModel(writeModelDir(t, nil))
	if err != nil {
		t.Fatalf("LoadModel() failed: %v", err)
	}

	if got := model.Version(); got != "logreg-test-1" {
		t.Errorf("Version() = %s, want logreg-test-1", got)
	}

	pred, err := model.Predict(Request{UserID: "u1", Features: features.Defaults()})
	if err != nil {
		t.Fatalf("Predict() failed: %v", err)
	}

	// All features zero, mean 1, scale 2: each scaled value is -0.5, each
	// term 0.5*-0.5 = -0.25, logit = -0.25 + 6*-0.25 = -1.75.
	want := sigmoid(-1.75)
	if pred.Score != want {
		t.Errorf("Score = %v, want %v", pred.Score, want)
	}

	if pred.Band != BandFor(want, DefaultThresholds) {
		t.Errorf("Band = %s, inconsistent with score %v", pred.Band, want)
	}

	if pred.ModelVersion != "logreg-test-1" {
		t.Errorf("ModelVersion = %s, want logreg-test-1", pred.ModelVersion)
	}

	if len(pred.TopFeatures) != 3 {
		t.Errorf("TopFeatures has %d entries, want 3", len(pred.TopFeatures))
	}
}

func TestLoadModel_ThresholdOverride(t *testing.T) {
	dir := writeModelDir(t, func(m *Metadata) {
		m.BandThresholds = &Thresholds{Low: 0.01, Med: 0.02}
	})

	model, err := LoadModel(dir)
	if err != nil {
		t.Fatalf("LoadModel() failed: %v", err)
	}

	pred, err := model.Predict(Request{UserID: "u1", Features: features.Defaults()})
	if err != nil {
		t.Fatalf("Predict() failed: %v", err)
	}

	// sigmoid(-1.75) ~ 0.148, HIGH under the overridden thresholds.
	if pred.Band != BandHigh {
		t.Errorf("Band = %s, want HIGH under overridden thresholds", pred.Band)
	}
}

func TestLoadModel_MissingArtifacts(t *testing.T) {
	if _, err := LoadModel(filepath.Join(t.TempDir(), "nope")); !errors.Is(err, ErrModelNotFound) {
		t.Errorf("LoadModel(missing dir) error = %v, want ErrModelNotFound", err)
	}

	dir := writeModelDir(t, nil)
	if err := os.Remove(filepath.Join(dir, weightsFilename)); err != nil {
		t.Fatalf("failed to remove weights: %v", err)
	}

	if _, err := LoadModel(dir); !errors.Is(err, ErrModelNotFound) {
		t.Errorf("LoadModel(missing weights) error = %v, want ErrModelNotFound", err)
	}
}

func TestLoadModel_FeatureOrderMismatch(t *testing.T) {
	dir := writeModelDir(t, func(m *Metadata) {
		reversed := make([]string, len(features.Order))
		for i, name := range features.Order {
			reversed[len(reversed)-1-i] = name
		}
		m.FeatureOrder = reversed
	})

	if _, err := LoadModel(dir); !errors.Is(err, ErrFeatureOrderMismatch) {
		t.Errorf("LoadModel() error = %v, want ErrFeatureOrderMismatch", err)
	}
}

func TestLoadModel_ParamsHashMismatch(t *testing.T) {
	dir := writeModelDir(t, func(m *Metadata) {
		m.ParamsHash = "0000000000000000000000000000000000000000000000000000000000000000"
	})

	if _, err := LoadModel(dir); !errors.Is(err, ErrParamsHashMismatch) {
		t.Errorf("LoadModel() error = %v, want ErrParamsHashMismatch", err)
	}
}

func TestLoadModel_InvalidWeights(t *testing.T) {
	tests := []struct {
		name    string
		weights map[string]interface{}
	}{
		{
			name: "wrong coefficient count",
			weights: map[string]interface{}{
				"coefficients": []float64{0.1},
				"intercept":    0.0,
				"scaler_mean":  zeros(len(features.Order)),
				"scaler_scale": ones(len(features.Order)),
			},
		},
		{
			name: "zero scaler scale",
			weights: map[string]interface{}{
				"coefficients": zeros(len(features.Order)),
				"intercept":    0.0,
				"scaler_mean":  zeros(len(features.Order)),
				"scaler_scale": zeros(len(features.Order)),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rawWeights, err := json.Marshal(tt.weights)
			if err != nil {
				t.Fatalf("failed to marshal weights: %v", err)
			}

			hash, err := schema.PayloadHash(rawWeights)
			if err != nil {
				t.Fatalf("failed to hash weights: %v", err)
			}

			rawMetadata, err := json.Marshal(Metadata{
				ModelVersion: "logreg-bad",
				FeatureOrder: features.Order,
				ParamsHash:   hash,
			})
			if err != nil {
				t.Fatalf("failed to marshal metadata: %v", err)
			}

			dir := t.TempDir()
			writeArtifact(t, dir, metadataFilename, rawMetadata)
			writeArtifact(t, dir, weightsFilename, rawWeights)

			if _, err := LoadModel(dir); !errors.Is(err, ErrInvalidModelArtifact) {
				t.Errorf("LoadModel() error = %v, want ErrInvalidModelArtifact", err)
			}
		})
	}
}

func TestLoadModel_MissingVersion(t *testing.T) {
	dir := writeModelDir(t, func(m *Metadata) {
		m.ModelVersion = ""
	})

	if _, err := LoadModel(dir); !errors.Is(err, ErrInvalidModelArtifact) {
		t.Errorf("LoadModel() error = %v, want ErrInvalidModelArtifact", err)
	}
}

func zeros(n int) []float64 { return make([]float64, n) }

func ones(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = 1
	}

	return v
}
