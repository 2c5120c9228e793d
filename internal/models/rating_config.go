package models

import (
	"errors"
	"fmt"
	"math"
)

// RatingConfig holds every tunable of the rating formula.
type RatingConfig struct {
	StartingELO      float64     `json:"startingElo"`
	KThresholds      []int       `json:"kThresholds"` // games played boundaries, ascending
	KValues          []float64   `json:"kValues"`     // len(KThresholds)+1 values
	MarginStep       float64     `json:"marginStep"`
	MarginCap        float64     `json:"marginCap"`
	RatingDivisor    float64     `json:"ratingDivisor"`
	PlayerWeightSpan float64     `json:"playerWeightSpan"`
	PlayerWeightMin  float64     `json:"playerWeightMin"`
	PlayerWeightMax  float64     `json:"playerWeightMax"`
	SinglesWeighting bool        `json:"singlesWeighting"`
	Granularity      Granularity `json:"granularity"`
	TeamKFactor      float64     `json:"teamKFactor"`
}

// DefaultRatingConfig returns the configuration used by the league app.
func DefaultRatingConfig() RatingConfig {
	return RatingConfig{
		StartingELO:      1000,
		KThresholds:      []int{10, 30},
		KValues:          []float64{40, 30, 20},
		MarginStep:       0.1,
		MarginCap:        0.2,
		RatingDivisor:    300,
		PlayerWeightSpan: 800,
		PlayerWeightMin:  0.75,
		PlayerWeightMax:  1.25,
		SinglesWeighting: false,
		Granularity:      GranularityIndividual,
		TeamKFactor:      32,
	}
}

var ErrInvalidRatingConfig = errors.New("invalid rating config")

func (c RatingConfig) Validate() error {
	floats := map[string]float64{
		"starting elo":       c.StartingELO,
		"margin step":        c.MarginStep,
		"margin cap":         c.MarginCap,
		"rating divisor":     c.RatingDivisor,
		"player weight span": c.PlayerWeightSpan,
		"player weight min":  c.PlayerWeightMin,
		"player weight max":  c.PlayerWeightMax,
		"team K factor":      c.TeamKFactor,
	}
	for name, v := range floats {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s must be a finite number, got %v", ErrInvalidRatingConfig, name, v)
		}
	}
	if len(c.KValues) != len(c.KThresholds)+1 {
		return fmt.Errorf("%w: need %d K values for %d thresholds, got %d",
			ErrInvalidRatingConfig, len(c.KThresholds)+1, len(c.KThresholds), len(c.KValues))
	}
	for i := 1; i < len(c.KThresholds); i++ {
		if c.KThresholds[i] <= c.KThresholds[i-1] {
			return fmt.Errorf("%w: K thresholds must be strictly ascending", ErrInvalidRatingConfig)
		}
	}
	for _, k := range c.KValues {
		if k <= 0 || math.IsNaN(k) || math.IsInf(k, 0) {
			return fmt.Errorf("%w: K values must be positive and finite", ErrInvalidRatingConfig)
		}
	}
	if c.MarginStep < 0 || c.MarginCap < 0 {
		return fmt.Errorf("%w: margin step and cap must not be negative", ErrInvalidRatingConfig)
	}
	if c.RatingDivisor <= 0 {
		return fmt.Errorf("%w: rating divisor must be positive", ErrInvalidRatingConfig)
	}
	if c.PlayerWeightSpan <= 0 {
		return fmt.Errorf("%w: player weight span must be positive", ErrInvalidRatingConfig)
	}
	if c.PlayerWeightMin <= 0 || c.PlayerWeightMin > c.PlayerWeightMax {
		return fmt.Errorf("%w: player weight clamp [%v, %v] is not a positive range",
			ErrInvalidRatingConfig, c.PlayerWeightMin, c.PlayerWeightMax)
	}
	if !c.Granularity.Valid() {
		return fmt.Errorf("%w: unknown granularity %q", ErrInvalidRatingConfig, c.Granularity)
	}
	if c.Granularity == GranularityTeam && c.TeamKFactor <= 0 {
		return fmt.Errorf("%w: team K factor must be positive", ErrInvalidRatingConfig)
	}
	return nil
}
