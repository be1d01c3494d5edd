// Package scoring turns feature vectors into risk scores. Two scorers exist:
// a trained logistic-regression model loaded from an artifact directory, and
// a deterministic fallback used when no artifact is configured. Both satisfy
// the same Scorer interface, so the worker never knows which one it runs.
package scoring

import (
	"math"
	"sort"

	"github.com/riskflow-io/riskflow/internal/features"
	"github.com/riskflow-io/riskflow/internal/schema"
)

type (
	// Band is the coarse risk classification derived from a score.
	Band string

	// Thresholds are the left-closed band boundaries: scores below Low are
	// LOW, below Med are MED, everything else HIGH. A score exactly at a
	// boundary lands in the higher band.
	Thresholds struct {
		Low float64 `json:"low"`
		Med float64 `json:"med"`
	}

	// Request carries everything a scorer may draw on for one event.
	Request struct {
		UserID    string
		EventType schema.EventType
		Features  features.Features
	}

	// Prediction is the scoring result.
	Prediction struct {
		// Score is the risk probability in [0, 1].
		Score float64

		// Band is the classification of Score under the active thresholds.
		Band Band

		// TopFeatures holds at most three signed contributions, keyed by
		// feature name, rounded to four decimals.
		TopFeatures map[string]float64

		// ModelVersion identifies the scorer that produced this prediction.
		ModelVersion string
	}

	// Scorer computes a prediction for one event.
	Scorer interface {
		Predict(req Request) (*Prediction, error)

		// Version returns the model version string recorded with scores.
		Version() string
	}
)

// Risk bands.
const (
	BandLow  Band = "LOW"
	BandMed  Band = "MED"
	BandHigh Band = "HIGH"
)

// DefaultThresholds are the band boundaries used absent a model override.
var DefaultThresholds = Thresholds{Low: 0.33, Med: 0.66}

const (
	topFeatureCount   = 3
	contributionScale = 1e4 // round contributions to 4 decimals
)

// BandFor classifies a score under the given thresholds.
func BandFor(score float64, t Thresholds) Band {
	switch {
	case score < t.Low:
		return BandLow
	case score < t.Med:
		return BandMed
	default:
		return BandHigh
	}
}

// TopContributions selects the (at most) three contributions with the
// largest magnitude, rounded to four decimals. Ties break by feature name so
// the result is deterministic.
func TopContributions(contributions map[string]float64) map[string]float64 {
	names := make([]string, 0, len(contributions))
	for name := range contributions {
		names = append(names, name)
	}

	sort.Slice(names, func(i, j int) bool {
		ai, aj := math.Abs(contributions[names[i]]), math.Abs(contributions[names[j]])
		if ai != aj {
			return ai > aj
		}

		return names[i] < names[j]
	})

	if len(names) > topFeatureCount {
		names = names[:topFeatureCount]
	}

	top := make(map[string]float64, len(names))
	for _, name := range names {
		top[name] = roundContribution(contributions[name])
	}

	return top
}

func roundContribution(v float64) float64 {
	return math.Round(v*contributionScale) / contributionScale
}

// sigmoid is the logistic function.
func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

// clamp bounds a score to [0, 1].
func clamp(score float64) float64 {
	return math.Max(0, math.Min(1, score))
}
