package geo

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidCoordinates is returned when a coordinate string cannot be parsed.
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

var dmsPattern = regexp.MustCompile(`^(\d{1,3})°\s*(\d{1,2})['′]\s*(\d{1,2}(?:\.\d+)?)["″]\s*([NSEWnsew])$`)

// FormatDMS renders a point as degrees, minutes and seconds, e.g. `4°36′00.00″ N, 74°04′48.00″ W`.
func FormatDMS(p Point) string {
	return formatAxis(p.Lat, "N", "S") + ", " + formatAxis(p.Lon, "E", "W")
}

func formatAxis(v float64, pos, neg string) string {
	hemi := pos
	if v < 0 {
		hemi = neg
	}
	// work in hundredths of a second so 59.999″ never prints as 60″
	total := math.Round(math.Abs(v) * 3600 * 100)
	deg := math.Floor(total / 360000)
	total -= deg * 360000
	mins := math.Floor(total / 6000)
	sec := (total - mins*6000) / 100
	return fmt.Sprintf("%d°%02d′%05.2f″ %s", int(deg), int(mins), sec, hemi)
}

// ParseDMS parses one DMS axis. lon selects longitude range and hemisphere letters.
func ParseDMS(s string, lon bool) (float64, error) {
	m := dmsPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("%w: %q is not D°M′S″ H", ErrInvalidCoordinates, s)
	}
	deg, _ := strconv.ParseFloat(m[1], 64)
	mins, _ := strconv.ParseFloat(m[2], 64)
	sec, _ := strconv.ParseFloat(m[3], 64)
	hemi := strings.ToUpper(m[4])

	limit := 90.0
	if lon {
		limit = 180
	}
	if deg > limit || mins >= 60 || sec >= 60 {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalidCoordinates, s)
	}
	v := deg + mins/60 + sec/3600
	switch {
	case lon && hemi == "W", !lon && hemi == "S":
		v = -v
	case lon && hemi == "E", !lon && hemi == "N":
	default:
		return 0, fmt.Errorf("%w: hemisphere %s not valid for this axis", ErrInvalidCoordinates, hemi)
	}
	if v < -limit || v > limit {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalidCoordinates, s)
	}
	return v, nil
}

// ParsePoint accepts "lat,lon" decimal degrees, a DMS pair separated by a comma,
// or a UTM reference such as "UTM 18N 589000 508000".
func ParsePoint(s string) (Point, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Point{}, ErrInvalidCoordinates
	}
	if strings.HasPrefix(strings.ToUpper(s), "UTM") {
		u, err := ParseUTM(strings.TrimSpace(s[3:]))
		if err != nil {
			return Point{}, err
		}
		return u.Point()
	}
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return Point{}, fmt.Errorf("%w: %q", ErrInvalidCoordinates, s)
	}
	if strings.ContainsAny(s, "°") {
		lat, err := ParseDMS(parts[0], false)
		if err != nil {
			return Point{}, err
		}
		lon, err := ParseDMS(parts[1], true)
		if err != nil {
			return Point{}, err
		}
		return NewPoint(lat, lon)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Point{}, fmt.Errorf("%w: %q", ErrInvalidCoordinates, s)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Point{}, fmt.Errorf("%w: %q", ErrInvalidCoordinates, s)
	}
	p, err := NewPoint(lat, lon)
	if err != nil {
		return Point{}, fmt.Errorf("%w: %v", ErrInvalidCoordinates, err)
	}
	return p, nil
}
