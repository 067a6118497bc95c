package forecast

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Zigzag parameters.
const (
	zigzagNoise      = 0.8
	zigzagShockProb  = 0.10
	zigzagShockScale = 1.5
	zigzagReversion  = 0.10
	zigzagFloor      = 0.7
	zigzagCeiling    = 1.25
)

// Zigzag continues recent values as a mean-reverting random walk with
// bounded noise and occasional shocks, clipped to
// [max(0.7·min, 0), 1.25·max] of the input. It is not a model forecast.
func Zigzag(recent []float64, n int, rng *rand.Rand) []float64 {
	if len(recent) == 0 || n <= 0 {
		return nil
	}
	avg, std := stat.PopMeanStdDev(recent, nil)
	std += 1e-6
	upper := floats.Max(recent) * zigzagCeiling
	lower := math.Max(floats.Min(recent)*zigzagFloor, 0)

	last := recent[len(recent)-1]
	out := make([]float64, n)
	for i := range out {
		noise := uniform(rng, -zigzagNoise, zigzagNoise) * std
		shock := 0.0
		if rng.Float64() < zigzagShockProb {
			shock = uniform(rng, -0.5, 0.5) * std * zigzagShockScale
		}
		pred := last + noise + shock + (avg-last)*zigzagReversion
		pred = math.Min(math.Max(pred, lower), upper)
		out[i] = pred
		last = pred
	}
	return out
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}
