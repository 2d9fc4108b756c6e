package geo

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/wroge/wgs84"
)

// UTM is a WGS 84 / UTM grid reference.
type UTM struct {
	Zone     int     `json:"zone"`
	North    bool    `json:"north"`
	Easting  float64 `json:"easting"`
	Northing float64 `json:"northing"`
}

func (u UTM) epsg() int {
	if u.North {
		return 32600 + u.Zone
	}
	return 32700 + u.Zone
}

func (u UTM) String() string {
	hemi := "S"
	if u.North {
		hemi = "N"
	}
	return fmt.Sprintf("%d%s %.0f %.0f", u.Zone, hemi, u.Easting, u.Northing)
}

// ToUTM projects a point onto its UTM zone.
func ToUTM(p Point) UTM {
	mustValid(p)
	zone := int(math.Floor((p.Lon+180)/6)) + 1
	if zone > 60 {
		zone = 60
	}
	u := UTM{Zone: zone, North: p.Lat >= 0}
	f := wgs84.EPSG().Transform(4326, u.epsg())
	u.Easting, u.Northing, _ = f(p.Lon, p.Lat, 0)
	return u
}

// Point converts the grid reference back to geographic coordinates.
func (u UTM) Point() (Point, error) {
	if u.Zone < 1 || u.Zone > 60 {
		return Point{}, fmt.Errorf("%w: utm zone %d", ErrInvalidCoordinates, u.Zone)
	}
	f := wgs84.EPSG().Transform(u.epsg(), 4326)
	lon, lat, _ := f(u.Easting, u.Northing, 0)
	p, err := NewPoint(lat, lon)
	if err != nil {
		return Point{}, fmt.Errorf("%w: %v", ErrInvalidCoordinates, err)
	}
	return p, nil
}

// ParseUTM parses "18N 589000 508000".
func ParseUTM(s string) (UTM, error) {
	fields := strings.Fields(s)
	if len(fields) != 3 || len(fields[0]) < 2 {
		return UTM{}, fmt.Errorf("%w: %q is not <zone><N|S> <easting> <northing>", ErrInvalidCoordinates, s)
	}
	zf := fields[0]
	hemi := strings.ToUpper(zf[len(zf)-1:])
	zone, err := strconv.Atoi(zf[:len(zf)-1])
	if err != nil || (hemi != "N" && hemi != "S") {
		return UTM{}, fmt.Errorf("%w: zone %q", ErrInvalidCoordinates, zf)
	}
	e, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return UTM{}, fmt.Errorf("%w: easting %q", ErrInvalidCoordinates, fields[1])
	}
	n, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return UTM{}, fmt.Errorf("%w: northing %q", ErrInvalidCoordinates, fields[2])
	}
	return UTM{Zone: zone, North: hemi == "N", Easting: e, Northing: n}, nil
}
