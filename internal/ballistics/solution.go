package ballistics

import (
	"errors"
	"fmt"

	"fdc/internal/geo"
)

// SolutionRequest carries the inputs of a firing solution.
type SolutionRequest struct {
	Platform       Platform     `json:"platform"`
	Gun            geo.Point    `json:"gun"`
	Target         geo.Point    `json:"target"`
	GunAltitude    float64      `json:"gun_altitude,omitempty"`
	TargetAltitude float64      `json:"target_altitude,omitempty"`
	Projectile     string       `json:"projectile"`
	Charge         int          `json:"charge"`
	Environment    *Environment `json:"environment,omitempty"`
	MRSI           bool         `json:"mrsi,omitempty"`
}

// FiringSolution is the lay for one engagement. It is a value: recomputing yields a
// fresh copy and nothing mutates a returned solution.
type FiringSolution struct {
	Platform         Platform        `json:"platform"`
	Projectile       string          `json:"projectile"`
	Charge           int             `json:"charge"`
	MuzzleVelocity   float64         `json:"muzzle_velocity"`
	Distance         float64         `json:"distance"`
	Azimuth          float64         `json:"azimuth"`
	AzimuthMils      float64         `json:"azimuth_mils"`
	HeightDifference float64         `json:"height_difference"`
	BaseElevation    float64         `json:"base_elevation"`
	Elevation        float64         `json:"elevation"`
	FlightTime       float64         `json:"flight_time"`
	Corrections      Corrections     `json:"corrections"`
	Status           ElevationStatus `json:"elevation_status"`
	MRSI             *MRSIPair       `json:"mrsi,omitempty"`
	Trajectory       Trajectory      `json:"trajectory"`
}

// ComputeSolution looks up the calibration, lays the gun on the target, applies
// environmental corrections and samples the resulting arc. Invalid gun or target
// coordinates panic; callers validate user input first.
func ComputeSolution(req SolutionRequest) (FiringSolution, error) {
	if !req.Platform.Valid() {
		return FiringSolution{}, fmt.Errorf("unknown platform %q", string(req.Platform))
	}
	entry, err := req.Platform.Table().Lookup(req.Projectile, req.Charge)
	if err != nil {
		return FiringSolution{}, err
	}

	distance, azimuth := geo.DistanceAndAzimuth(req.Gun, req.Target)
	h := req.TargetAltitude - req.GunAltitude
	corr, elevation, status := Correct(req.Platform, distance, h, azimuth, req.Environment, entry.BaseElevation)

	traj, err := Integrate(entry.MuzzleVelocity, elevation, h)
	if err != nil {
		var oe *OutOfEnvelopeError
		if errors.As(err, &oe) {
			oe.Platform = req.Platform
			oe.Min, oe.Max = req.Platform.Envelope()
		}
		return FiringSolution{}, err
	}

	sol := FiringSolution{
		Platform:         req.Platform,
		Projectile:       entry.Projectile,
		Charge:           entry.Charge,
		MuzzleVelocity:   entry.MuzzleVelocity,
		Distance:         distance,
		Azimuth:          azimuth,
		AzimuthMils:      geo.DegreesToMils(azimuth),
		HeightDifference: h,
		BaseElevation:    entry.BaseElevation,
		Elevation:        elevation,
		FlightTime:       traj.FlightTime,
		Corrections:      corr,
		Status:           status,
		Trajectory:       traj,
	}
	if req.MRSI {
		pair, err := SolveSimultaneous(entry.MuzzleVelocity, distance, h)
		if err != nil {
			return FiringSolution{}, err
		}
		sol.MRSI = &pair
	}
	return sol, nil
}

// Dispatchable returns an OutOfEnvelopeError unless the solution may be fired.
func (s FiringSolution) Dispatchable() error {
	if s.Status == WithinEnvelope {
		return nil
	}
	if !s.Platform.Valid() {
		return &OutOfEnvelopeError{Platform: s.Platform, Elevation: s.Elevation, Reason: "solution has no platform"}
	}
	lo, hi := s.Platform.Envelope()
	return &OutOfEnvelopeError{
		Platform:  s.Platform,
		Elevation: s.Elevation,
		Min:       lo,
		Max:       hi,
	}
}
