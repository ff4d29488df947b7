// Package uncertainty estimates how much a calibrated confidence could move
// given the amount of history behind it.
package uncertainty

import (
	"math"
	"math/rand"
	"sort"
	"time"
)

const (
	defaultIterations = 1000
	defaultSampleSize = 20
	defaultLevel      = 0.95
)

// Config configures the Monte-Carlo estimator
type Config struct {
	Iterations      int     `mapstructure:"iterations" json:"iterations"`
	ConfidenceLevel float64 `mapstructure:"confidence_level" json:"confidence_level"`
	Seed            int64   `mapstructure:"seed" json:"seed"`
}

// DefaultConfig returns the estimator defaults
func DefaultConfig() Config {
	return Config{
		Iterations:      defaultIterations,
		ConfidenceLevel: defaultLevel,
	}
}

// Result is the spread of simulated win rates, in percent
type Result struct {
	Confidence float64 `json:"confidence"`
	SampleSize int     `json:"sample_size"`
	Iterations int     `json:"iterations"`
	Mean       float64 `json:"mean"`
	StdDev     float64 `json:"std_dev"`
	Lower      float64 `json:"lower"`
	Upper      float64 `json:"upper"`
	Level      float64 `json:"level"`
}

// Width returns the size of the interval in percentage points
func (r Result) Width() float64 {
	return r.Upper - r.Lower
}

// Estimate simulates cfg.Iterations batches of sampleSize Bernoulli trials at
// p = confidence/100 and reports the distribution of the empirical win rate.
// A zero seed draws from the clock; any other seed is fully deterministic.
func Estimate(confidence float64, sampleSize int, cfg Config) Result {
	if cfg.Iterations <= 0 {
		cfg.Iterations = defaultIterations
	}
	if cfg.ConfidenceLevel <= 0 || cfg.ConfidenceLevel >= 1 {
		cfg.ConfidenceLevel = defaultLevel
	}
	if sampleSize <= 0 {
		sampleSize = defaultSampleSize
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	p := confidence / 100
	if math.IsNaN(p) {
		p = 0
	}
	p = math.Max(0, math.Min(1, p))

	rng := rand.New(rand.NewSource(seed))
	distribution := make([]float64, cfg.Iterations)
	for i := range distribution {
		wins := 0
		for j := 0; j < sampleSize; j++ {
			if rng.Float64() < p {
				wins++
			}
		}
		distribution[i] = 100 * float64(wins) / float64(sampleSize)
	}

	mean, std := meanStd(distribution)
	tail := (1 - cfg.ConfidenceLevel) / 2

	sort.Float64s(distribution)
	return Result{
		Confidence: confidence,
		SampleSize: sampleSize,
		Iterations: cfg.Iterations,
		Mean:       mean,
		StdDev:     std,
		Lower:      percentile(distribution, tail),
		Upper:      percentile(distribution, 1-tail),
		Level:      cfg.ConfidenceLevel,
	}
}

func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}

// percentile expects sorted input
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Floor(p * float64(len(sorted)-1)))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
