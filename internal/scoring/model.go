package scoring

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/riskflow-io/riskflow/internal/features"
	"github.com/riskflow-io/riskflow/internal/schema"
)

// Artifact filenames inside a model directory.
const (
	metadataFilename = "metadata.json"
	weightsFilename  = "weights.json"
)

// Sentinel errors for model loading failures. A worker that fails to load
// its configured model must not fall back silently; these errors are fatal
// at startup.
var (
	ErrModelNotFound        = errors.New("model artifact not found")
	ErrInvalidModelArtifact = errors.New("invalid model artifact")
	ErrFeatureOrderMismatch = errors.New("model feature_order does not match extractor contract")
	ErrParamsHashMismatch   = errors.New("model params_hash does not match weight parameters")
)

type (
	// Metadata describes a trained model artifact.
	Metadata struct {
		ModelVersion    string             `json:"model_version"`
		FeatureOrder    []string           `json:"feature_order"`
		FeatureDefaults map[string]float64 `json:"feature_defaults,omitempty"`
		BandThresholds  *Thresholds        `json:"band_thresholds,omitempty"`
		ParamsHash      string             `json:"params_hash"`
		Metrics         map[string]float64 `json:"metrics,omitempty"`
	}

	// weights is the serialized parameter blob of a logistic regression
	// with feature standardization.
	weights struct {
		Coefficients []float64 `json:"coefficients"`
		Intercept    float64   `json:"intercept"`
		ScalerMean   []float64 `json:"scaler_mean"`
		ScalerScale  []float64 `json:"scaler_scale"`
	}

	// Model is a loaded logistic-regression scorer.
	Model struct {
		metadata    Metadata
		weights     weights
		thresholds  Thresholds
		rawMetadata []byte
	}
)

var _ Scorer = (*Model)(nil)

// LoadModel reads a model artifact directory containing metadata.json and
// weights.json, and verifies it against the feature contract:
//
//   - feature_order must equal the extractor's canonical order exactly
//   - params_hash must equal the canonical-JSON SHA-256 of weights.json
//   - coefficient and scaler lengths must match the feature count
//
// Any mismatch means the artifact was trained against a different pipeline
// and scoring with it would be silently wrong.
func LoadModel(dir string) (*Model, error) {
	rawMetadata, err := os.ReadFile(filepath.Join(dir, metadataFilename)) //nolint:gosec // path from trusted config
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrModelNotFound, dir)
		}

		return nil, fmt.Errorf("failed to read model metadata: %w", err)
	}

	var metadata Metadata
	if err := json.Unmarshal(rawMetadata, &metadata); err != nil {
		return nil, fmt.Errorf("%w: metadata.json: %s", ErrInvalidModelArtifact, err.Error())
	}

	if metadata.ModelVersion == "" {
		return nil, fmt.Errorf("%w: metadata.json missing model_version", ErrInvalidModelArtifact)
	}

	if !slices.Equal(metadata.FeatureOrder, features.Order) {
		return nil, fmt.Errorf("%w: artifact has %v, extractor has %v",
			ErrFeatureOrderMismatch, metadata.FeatureOrder, features.Order)
	}

	rawWeights, err := os.ReadFile(filepath.Join(dir, weightsFilename)) //nolint:gosec // path from trusted config
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s missing %s", ErrModelNotFound, dir, weightsFilename)
		}

		return nil, fmt.Errorf("failed to read model weights: %w", err)
	}

	paramsHash, err := schema.PayloadHash(rawWeights)
	if err != nil {
		return nil, fmt.Errorf("%w: weights.json: %s", ErrInvalidModelArtifact, err.Error())
	}

	if paramsHash != metadata.ParamsHash {
		return nil, fmt.Errorf("%w: metadata declares %s, weights hash to %s",
			ErrParamsHashMismatch, metadata.ParamsHash, paramsHash)
	}

	var w weights
	if err := json.Unmarshal(rawWeights, &w); err != nil {
		return nil, fmt.Errorf("%w: weights.json: %s", ErrInvalidModelArtifact, err.Error())
	}

	n := len(features.Order)
	if len(w.Coefficients) != n || len(w.ScalerMean) != n || len(w.ScalerScale) != n {
		return nil, fmt.Errorf(
			"%w: expected %d coefficients/scaler entries, got %d/%d/%d",
			ErrInvalidModelArtifact, n, len(w.Coefficients), len(w.ScalerMean), len(w.ScalerScale))
	}

	for i, scale := range w.ScalerScale {
		if scale == 0 {
			return nil, fmt.Errorf("%w: scaler_scale[%d] is zero", ErrInvalidModelArtifact, i)
		}
	}

	thresholds := DefaultThresholds
	if metadata.BandThresholds != nil {
		thresholds = *metadata.BandThresholds
	}

	return &Model{
		metadata:    metadata,
		weights:     w,
		thresholds:  thresholds,
		rawMetadata: rawMetadata,
	}, nil
}

// Version implements Scorer.
func (m *Model) Version() string {
	return m.metadata.ModelVersion
}

// Predict implements Scorer: standardize, apply the linear model, squash
// through the sigmoid. Each feature's contribution is its coefficient times
// its standardized value, which is what the linear term actually added to
// the logit.
func (m *Model) Predict(req Request) (*Prediction, error) {
	values := req.Features
	if values == nil {
		values = features.Defaults()
	}

	z := m.weights.Intercept
	contributions := make(map[string]float64, len(features.Order))

	for i, name := range features.Order {
		value, ok := values[name]
		if !ok {
			value = m.metadata.FeatureDefaults[name]
		}

		scaled := (value - m.weights.ScalerMean[i]) / m.weights.ScalerScale[i]
		term := m.weights.Coefficients[i] * scaled

		z += term
		contributions[name] = term
	}

	score := sigmoid(z)

	return &Prediction{
		Score:        score,
		Band:         BandFor(score, m.thresholds),
		TopFeatures:  TopContributions(contributions),
		ModelVersion: m.metadata.ModelVersion,
	}, nil
}

// Registration returns the params hash and raw metadata for the model
// registry.
func (m *Model) Registration() (string, []byte) {
	return m.metadata.ParamsHash, m.rawMetadata
}
