package scoring

import (
	"testing"
)

func TestBandFor_LeftClosedBoundaries(t *testing.T) {
	tests := []struct {
		name  string
		score float64
		want  Band
	}{
		{name: "zero", score: 0, want: BandLow},
		{name: "just below low boundary", score: 0.3299, want: BandLow},
		{name: "exactly low boundary", score: 0.33, want: BandMed},
		{name: "mid band", score: 0.5, want: BandMed},
		{name: "just below med boundary", score: 0.6599, want: BandMed},
		{name: "exactly med boundary", score: 0.66, want: BandHigh},
		{name: "one", score: 1, want: BandHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BandFor(tt.score, DefaultThresholds); got != tt.want {
				t.Errorf("BandFor(%v) = %s, want %s", tt.score, got, tt.want)
			}
		})
	}
}

func TestBandFor_CustomThresholds(t *testing.T) {
	custom := Thresholds{Low: 0.2, Med: 0.8}

	if got := BandFor(0.33, custom); got != BandMed {
		t.Errorf("BandFor(0.33, custom) = %s, want MED", got)
	}

	if got := BandFor(0.79, custom); got != BandMed {
		t.Errorf("BandFor(0.79, custom) = %s, want MED", got)
	}

	if got := BandFor(0.8, custom); got != BandHigh {
		t.Errorf("BandFor(0.8, custom) = %s, want HIGH", got)
	}
}

func TestTopContributions(t *testing.T) {
	contributions := map[string]float64{
		"a": 0.05,
		"b": -0.91234567,
		"c": 0.3,
		"d": -0.0001,
		"e": 0.299999,
	}

	top := TopContributions(contributions)

	if len(top) != 3 {
		t.Fatalf("TopContributions() returned %d entries, want 3", len(top))
	}

	// Largest magnitudes: b (-0.912...), c (0.3), e (0.299999 → 0.3).
	if got, want := top["b"], -0.9123; got != want {
		t.Errorf("top[b] = %v, want %v (rounded to 4 decimals)", got, want)
	}

	if got, want := top["c"], 0.3; got != want {
		t.Errorf("top[c] = %v, want %v", got, want)
	}

	if got, want := top["e"], 0.3; got != want {
		t.Errorf("top[e] = %v, want %v", got, want)
	}

	if _, ok := top["a"]; ok {
		t.Error("top should not contain a")
	}
}

func TestTopContributions_FewerThanThree(t *testing.T) {
	top := TopContributions(map[string]float64{"only": 0.12345})

	if len(top) != 1 {
		t.Fatalf("TopContributions() returned %d entries, want 1", len(top))
	}

	if top["only"] != 0.1234 {
		t.Errorf("top[only] = %v, want 0.1234", top["only"])
	}
}

func TestTopContributions_DeterministicTieBreak(t *testing.T) {
	contributions := map[string]float64{
		"z": 0.5, "y": 0.5, "x": 0.5, "w": 0.5,
	}

	top := TopContributions(contributions)

	for _, name := range []string{"w", "x", "y"} {
		if _, ok := top[name]; !ok {
			t.Errorf("tie-break should keep %q (alphabetical order)", name)
		}
	}

	if _, ok := top["z"]; ok {
		t.Error("tie-break should drop z")
	}
}
