package scoring

import (
	"hash/fnv"
	"math/rand"

	"github.com/riskflow-io/riskflow/internal/features"
	"github.com/riskflow-io/riskflow/internal/schema"
)

// FallbackVersion identifies the deterministic fallback scorer.
const FallbackVersion = "dummy-v1"

// Fallback bounds and bumps. The PRNG is seeded from the user id, so the
// same user with the same event type always scores identically across
// workers and restarts.
const (
	fallbackBaseMin = 0.1
	fallbackBaseMax = 0.5

	transactionBumpMax = 0.3
	loginBumpMax       = 0.1

	contributionMin = -0.1
	contributionMax = 0.2
)

// FallbackScorer produces deterministic pseudo-random scores. It exists so
// the pipeline runs end to end before any model artifact has been trained,
// and as the explicit degradation path when MODEL_PATH is unset.
type FallbackScorer struct{}

var _ Scorer = (*FallbackScorer)(nil)

// NewFallbackScorer creates the deterministic fallback scorer.
func NewFallbackScorer() *FallbackScorer {
	return &FallbackScorer{}
}

// Version implements Scorer.
func (s *FallbackScorer) Version() string {
	return FallbackVersion
}

// Predict implements Scorer.
//
// The draw order is fixed: base score, event-type bump, then one synthetic
// contribution per feature in canonical order. Changing the order changes
// every score, which would break replay determinism.
func (s *FallbackScorer) Predict(req Request) (*Prediction, error) {
	rng := rand.New(rand.NewSource(seedFor(req.UserID))) // #nosec G404 -- deterministic scoring, not crypto

	score := uniform(rng, fallbackBaseMin, fallbackBaseMax)

	switch req.EventType {
	case schema.EventTypeTransaction:
		score += uniform(rng, 0, transactionBumpMax)
	case schema.EventTypeLogin:
		score += uniform(rng, 0, loginBumpMax)
	case schema.EventTypeSignup:
		// no bump
	}

	score = clamp(score)

	contributions := make(map[string]float64, len(features.Order))
	for _, name := range features.Order {
		contributions[name] = uniform(rng, contributionMin, contributionMax)
	}

	return &Prediction{
		Score:        score,
		Band:         BandFor(score, DefaultThresholds),
		TopFeatures:  TopContributions(contributions),
		ModelVersion: FallbackVersion,
	}, nil
}

// Registration describes the fallback in the model registry so score rows
// referencing dummy-v1 resolve like any trained model.
func (s *FallbackScorer) Registration() (string, []byte) {
	metadata := []byte(`{"model_version":"` + FallbackVersion + `","type":"deterministic-fallback"}`)

	hash, err := schema.PayloadHash(metadata)
	if err != nil {
		// Metadata is a constant valid document; this cannot fail.
		return "", metadata
	}

	return hash, metadata
}

func seedFor(userID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(userID))

	return int64(h.Sum64()) // #nosec G115 -- wraparound is fine for a seed
}

func uniform(rng *rand.Rand, min, max float64) float64 {
	return min + rng.Float64()*(max-min)
}
