package ballistics

import "math"

const (
	// StandardTemperature is the firing-table reference temperature in °C.
	StandardTemperature = 15.0
	// StandardPressure is the firing-table reference pressure in hPa.
	StandardPressure = 1013.0
)

// Environment holds optional meteorological inputs. A nil field contributes nothing.
type Environment struct {
	// WindSpeed in m/s.
	WindSpeed *float64 `json:"wind_speed,omitempty"`
	// WindFrom is the direction the wind blows from, degrees true. When unset the
	// speed is taken as a signed headwind component.
	WindFrom *float64 `json:"wind_from,omitempty"`
	// Temperature in °C.
	Temperature *float64 `json:"temperature,omitempty"`
	// Pressure in hPa.
	Pressure *float64 `json:"pressure,omitempty"`
}

// Float is a helper for populating Environment fields.
func Float(v float64) *float64 { return &v }

// Corrections are elevation adjustments in degrees.
type Corrections struct {
	Altitude    float64 `json:"altitude"`
	Wind        float64 `json:"wind"`
	Temperature float64 `json:"temperature"`
	Pressure    float64 `json:"pressure"`
}

// Total sums the terms in a fixed order.
func (c Corrections) Total() float64 {
	return c.Altitude + c.Wind + c.Temperature + c.Pressure
}

// ElevationStatus says whether an elevation is deliverable by the platform.
type ElevationStatus string

const (
	WithinEnvelope ElevationStatus = "within_envelope"
	OutOfEnvelope  ElevationStatus = "out_of_envelope"
)

// Headwind resolves wind along the gun-to-target bearing. Positive values blow from
// the target toward the gun.
func Headwind(speed, from, azimuth float64) float64 {
	return speed * math.Cos((from-azimuth)*math.Pi/180)
}

// Correct applies the platform's corrections to a base elevation.
func Correct(p Platform, distance, heightDifference, azimuth float64, env *Environment, baseElevation float64) (Corrections, float64, ElevationStatus) {
	coeff := p.Coefficients()

	var c Corrections
	if heightDifference != 0 && distance > 0 {
		c.Altitude = math.Atan(heightDifference/distance) * 180 / math.Pi
	}
	if env != nil {
		if env.WindSpeed != nil {
			from := azimuth
			if env.WindFrom != nil {
				from = *env.WindFrom
			}
			c.Wind = coeff.Wind * Headwind(*env.WindSpeed, from, azimuth)
		}
		if env.Temperature != nil {
			c.Temperature = coeff.Temperature * (*env.Temperature - StandardTemperature)
		}
		if env.Pressure != nil {
			c.Pressure = coeff.Pressure * (*env.Pressure - StandardPressure)
		}
	}

	final := baseElevation + c.Total()
	return c, final, envelopeStatus(p, final)
}

func envelopeStatus(p Platform, elevation float64) ElevationStatus {
	lo, hi := p.Envelope()
	if elevation >= lo && elevation <= hi {
		return WithinEnvelope
	}
	return OutOfEnvelope
}
