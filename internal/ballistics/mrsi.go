package ballistics

import (
	"fmt"
	"math"
)

// MRSIPair holds the two complementary elevations that reach the same range.
type MRSIPair struct {
	AngleLow  float64 `json:"angle_low"`
	TimeLow   float64 `json:"time_low"`
	AngleHigh float64 `json:"angle_high"`
	TimeHigh  float64 `json:"time_high"`
}

// Round is one shot of a simultaneous-impact salvo.
type Round struct {
	Elevation  float64 `json:"elevation"`
	FlightTime float64 `json:"flight_time"`
	// FireAt is the offset in seconds from the first round.
	FireAt float64 `json:"fire_at"`
}

// MaxVacuumRange is the 45° range at a muzzle velocity.
func MaxVacuumRange(muzzleVelocity float64) float64 {
	return muzzleVelocity * muzzleVelocity / Gravity
}

// SolveSimultaneous finds the low and high angle solutions for a range. Flight times
// come from Integrate with the given height difference.
func SolveSimultaneous(muzzleVelocity, distance, heightDifference float64) (MRSIPair, error) {
	if !(muzzleVelocity > 0) {
		return MRSIPair{}, fmt.Errorf("muzzle velocity must be positive, got %v", muzzleVelocity)
	}
	if !(distance > 0) || math.IsInf(distance, 0) {
		return MRSIPair{}, fmt.Errorf("distance must be positive, got %v", distance)
	}
	maxRange := MaxVacuumRange(muzzleVelocity)
	if distance > maxRange {
		return MRSIPair{}, &RangeUnachievableError{
			MuzzleVelocity: muzzleVelocity,
			Distance:       distance,
			MaxRange:       maxRange,
		}
	}

	low := 0.5 * math.Asin(math.Min(1, distance*Gravity/(muzzleVelocity*muzzleVelocity))) * 180 / math.Pi
	high := 90 - low

	lt, err := Integrate(muzzleVelocity, low, heightDifference)
	if err != nil {
		return MRSIPair{}, err
	}
	ht, err := Integrate(muzzleVelocity, high, heightDifference)
	if err != nil {
		return MRSIPair{}, err
	}
	return MRSIPair{
		AngleLow:  low,
		TimeLow:   lt.FlightTime,
		AngleHigh: high,
		TimeHigh:  ht.FlightTime,
	}, nil
}

// FireOrder schedules the salvo: high angle first, low angle after the difference in
// flight times, so both rounds land together.
func (m MRSIPair) FireOrder() []Round {
	return []Round{
		{Elevation: m.AngleHigh, FlightTime: m.TimeHigh, FireAt: 0},
		{Elevation: m.AngleLow, FlightTime: m.TimeLow, FireAt: m.TimeHigh - m.TimeLow},
	}
}
