package ballistics

import (
	"fmt"
	"strconv"
	"strings"
)

// InvalidCalibrationError reports a projectile/charge pair absent from a platform table.
type InvalidCalibrationError struct {
	Platform   Platform
	Projectile string
	Charge     int
	Valid      []int
}

func (e *InvalidCalibrationError) Error() string {
	if len(e.Valid) == 0 {
		return fmt.Sprintf("invalid calibration: %s has no projectile %q", e.Platform.Name(), e.Projectile)
	}
	charges := make([]string, len(e.Valid))
	for i, c := range e.Valid {
		charges[i] = strconv.Itoa(c)
	}
	return fmt.Sprintf("invalid calibration: %s %q has no charge %d (valid: %s)",
		e.Platform.Name(), e.Projectile, e.Charge, strings.Join(charges, ", "))
}

// OutOfEnvelopeError reports an elevation the platform cannot safely deliver.
type OutOfEnvelopeError struct {
	Platform  Platform
	Elevation float64
	Min       float64
	Max       float64
	Reason    string
}

func (e *OutOfEnvelopeError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("out of envelope: %s: %s", e.Platform.Name(), e.Reason)
	}
	return fmt.Sprintf("out of envelope: %s elevation %.2f° outside [%.2f°, %.2f°]",
		e.Platform.Name(), e.Elevation, e.Min, e.Max)
}

// RangeUnachievableError reports an MRSI request beyond the 45° vacuum range.
type RangeUnachievableError struct {
	MuzzleVelocity float64
	Distance       float64
	MaxRange       float64
}

func (e *RangeUnachievableError) Error() string {
	return fmt.Sprintf("range unachievable: %.0f m exceeds %.0f m maximum at %.0f m/s",
		e.Distance, e.MaxRange, e.MuzzleVelocity)
}
