package ballistics

import (
	"fmt"
	"math"

	geom "github.com/peterstace/simplefeatures/geom"
)

// Gravity is standard gravity in m/s².
const Gravity = 9.80665

// SampleCount is the fixed number of points in every trajectory, so that an index
// always denotes the same fraction of flight time.
const SampleCount = 101

// TrajectoryPoint is a sample of the arc relative to the muzzle.
type TrajectoryPoint struct {
	Range    float64 `json:"range_m"`
	Altitude float64 `json:"altitude_m"`
}

// Trajectory is a vacuum arc sampled uniformly in time.
type Trajectory struct {
	Points     []TrajectoryPoint `json:"points"`
	FlightTime float64           `json:"flight_time_s"`
}

// Integrate samples the arc for a muzzle velocity, quadrant elevation and target
// height relative to the gun. Flight time is the descending root of
// h = vo·sinθ·t − ½gt². Drag is not modeled: calibrated velocities already absorb it.
// Elevations outside (0°, 90°) return an OutOfEnvelopeError: at or past vertical the
// arc runs backwards and at or below horizontal there is no flight.
func Integrate(muzzleVelocity, elevationDeg, heightDifference float64) (Trajectory, error) {
	if !(muzzleVelocity > 0) || math.IsInf(muzzleVelocity, 0) {
		return Trajectory{}, fmt.Errorf("muzzle velocity must be positive, got %v", muzzleVelocity)
	}
	if !(elevationDeg > 0 && elevationDeg < 90) {
		return Trajectory{}, &OutOfEnvelopeError{
			Elevation: elevationDeg,
			Reason:    fmt.Sprintf("elevation %.2f° is not between 0° and 90°", elevationDeg),
		}
	}
	theta := elevationDeg * math.Pi / 180
	vx := muzzleVelocity * math.Cos(theta)
	vy := muzzleVelocity * math.Sin(theta)

	disc := vy*vy - 2*Gravity*heightDifference
	if disc < 0 {
		apex := vy * vy / (2 * Gravity)
		return Trajectory{}, &OutOfEnvelopeError{
			Elevation: elevationDeg,
			Reason: fmt.Sprintf("target %.0f m above gun exceeds %.0f m apex at %.2f°",
				heightDifference, apex, elevationDeg),
		}
	}
	flight := (vy + math.Sqrt(disc)) / Gravity

	points := make([]TrajectoryPoint, SampleCount)
	for i := range points {
		t := float64(i) / float64(SampleCount-1) * flight
		points[i] = TrajectoryPoint{
			Range:    vx * t,
			Altitude: vy*t - 0.5*Gravity*t*t,
		}
	}
	return Trajectory{Points: points, FlightTime: flight}, nil
}

// Range is the horizontal distance at impact.
func (t Trajectory) Range() float64 {
	if len(t.Points) == 0 {
		return 0
	}
	return t.Points[len(t.Points)-1].Range
}

// Apex returns the index and value of the highest sample.
func (t Trajectory) Apex() (int, TrajectoryPoint) {
	if len(t.Points) == 0 {
		return 0, TrajectoryPoint{}
	}
	best := 0
	for i, p := range t.Points {
		if p.Altitude > t.Points[best].Altitude {
			best = i
		}
	}
	return best, t.Points[best]
}

// LineString returns the arc as a planar range/altitude geometry.
func (t Trajectory) LineString() (geom.LineString, error) {
	flat := make([]float64, 0, 2*len(t.Points))
	for _, p := range t.Points {
		flat = append(flat, p.Range, p.Altitude)
	}
	ls, err := geom.NewLineString(geom.NewSequence(flat, geom.DimXY))
	if err != nil {
		return geom.LineString{}, fmt.Errorf("trajectory geometry: %w", err)
	}
	return ls, nil
}
