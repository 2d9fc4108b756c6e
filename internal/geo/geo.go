// Package geo holds the spherical-earth geometry used to lay guns onto targets.
package geo

import (
	"fmt"
	"math"

	geom "github.com/peterstace/simplefeatures/geom"
)

// EarthRadiusMeters is the mean radius used by the great-circle model.
const EarthRadiusMeters = 6371000.0

// MilsPerCircle is the NATO angular mil.
const MilsPerCircle = 6400.0

// Point is a WGS 84 position in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// NewPoint returns a validated point.
func NewPoint(lat, lon float64) (Point, error) {
	p := Point{Lat: lat, Lon: lon}
	if err := p.Validate(); err != nil {
		return Point{}, err
	}
	return p, nil
}

// Validate reports whether the point lies on the globe.
func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) {
		return fmt.Errorf("coordinate is NaN: %v", p)
	}
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("latitude %.6f out of range [-90,90]", p.Lat)
	}
	if p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("longitude %.6f out of range [-180,180]", p.Lon)
	}
	return nil
}

func (p Point) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lon)
}

// Geom returns the point as an XY geometry with X=lon, Y=lat.
func (p Point) Geom() (geom.Point, error) {
	g, err := geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: p.Lon, Y: p.Lat},
		Type: geom.DimXY,
	})
	if err != nil {
		return geom.Point{}, fmt.Errorf("point geometry %s: %w", p, err)
	}
	return g, nil
}

func mustValid(p Point) {
	if err := p.Validate(); err != nil {
		panic("geo: " + err.Error())
	}
}

// DistanceAndAzimuth returns the great-circle distance in meters and the initial
// bearing in degrees [0,360) from origin to target. Coincident points yield (0, 0).
// Invalid coordinates panic.
func DistanceAndAzimuth(origin, target Point) (float64, float64) {
	mustValid(origin)
	mustValid(target)

	lat1 := toRad(origin.Lat)
	lat2 := toRad(target.Lat)
	dLat := lat2 - lat1
	dLon := toRad(target.Lon - origin.Lon)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	distance := 2 * EarthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(a)))
	if distance == 0 {
		return 0, 0
	}

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	return distance, NormalizeDegrees(toDeg(math.Atan2(y, x)))
}

// NormalizeDegrees folds an angle into [0,360).
func NormalizeDegrees(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	if d >= 360 {
		d = 0
	}
	return d
}

// DegreesToMils converts an angle to NATO mils.
func DegreesToMils(d float64) float64 {
	return d * MilsPerCircle / 360
}

// MilsToDegrees converts NATO mils to degrees.
func MilsToDegrees(m float64) float64 {
	return m * 360 / MilsPerCircle
}

func toRad(d float64) float64 { return d * math.Pi / 180 }
func toDeg(r float64) float64 { return r * 180 / math.Pi }
