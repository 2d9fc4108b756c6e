// Package ballistics computes firing solutions for indirect-fire platforms.
//
// Everything here is pure: no I/O, no clocks, no shared mutable state. Calibration
// tables are package data built once at init and never written afterwards.
package ballistics

import (
	"fmt"
	"strings"
)

// Platform identifies a weapon system. The set is closed.
type Platform string

const (
	Howitzer155       Platform = "howitzer_155"
	Howitzer105M101A1 Platform = "howitzer_105_m101a1"
	Howitzer105LG1    Platform = "howitzer_105_lg1"
	Howitzer105L119   Platform = "howitzer_105_l119"
	Mortar120M120     Platform = "mortar_120_m120"
	Mortar120HY112    Platform = "mortar_120_hy112"
)

// Platforms lists every platform in a stable order.
func Platforms() []Platform {
	return []Platform{
		Howitzer155,
		Howitzer105M101A1,
		Howitzer105LG1,
		Howitzer105L119,
		Mortar120M120,
		Mortar120HY112,
	}
}

// ParsePlatform accepts a platform identifier, case-insensitive.
func ParsePlatform(s string) (Platform, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, p := range Platforms() {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown platform %q", s)
}

// Coefficients are the firing-table correction factors, in degrees per unit.
type Coefficients struct {
	Wind        float64 `json:"wind"`
	Temperature float64 `json:"temperature"`
	Pressure    float64 `json:"pressure"`
}

type profile struct {
	name         string
	table        *Table
	coeff        Coefficients
	maxElevation float64
}

// profile is the single dispatch point over the platform enumeration.
// Adding a platform without a case here panics on first use.
//
// Ceilings are carriage or baseplate maximums from public equipment data: M101A1
// +66°, LG1 and L119 +70°, M120 1511 mils (85°). The 155 (75°) and HY1-12 (85°)
// ceilings are provisional until firing tables for those pieces are loaded.
// The 155 and M101A1 have no weather coefficients in their tables and correct for
// altitude only.
func (p Platform) profile() profile {
	switch p {
	case Howitzer155:
		return profile{
			name:         "155 mm howitzer",
			table:        table155,
			maxElevation: 75,
		}
	case Howitzer105M101A1:
		return profile{
			name:         "105 mm M101A1 howitzer",
			table:        table105M101A1,
			maxElevation: 66,
		}
	case Howitzer105LG1:
		return profile{
			name:         "105 mm LG1 howitzer",
			table:        table105LG1,
			coeff:        Coefficients{Wind: 0.05, Temperature: -0.02},
			maxElevation: 70,
		}
	case Howitzer105L119:
		return profile{
			name:         "105 mm L119 howitzer",
			table:        table105L119,
			coeff:        Coefficients{Wind: 0.05, Temperature: -0.02, Pressure: -0.01},
			maxElevation: 70,
		}
	case Mortar120M120:
		return profile{
			name:         "120 mm M120 mortar",
			table:        table120M120,
			coeff:        Coefficients{Wind: 0.05, Temperature: -0.02},
			maxElevation: 85,
		}
	case Mortar120HY112:
		return profile{
			name:         "120 mm HY1-12 mortar",
			table:        table120HY112,
			coeff:        Coefficients{Wind: 0.05, Temperature: -0.02},
			maxElevation: 85,
		}
	}
	panic(fmt.Sprintf("ballistics: unknown platform %q", string(p)))
}

// Valid reports whether p is one of the declared platforms.
func (p Platform) Valid() bool {
	for _, known := range Platforms() {
		if p == known {
			return true
		}
	}
	return false
}

// Name is the display name of the platform.
func (p Platform) Name() string {
	if !p.Valid() {
		return string(p)
	}
	return p.profile().name
}

// Table returns the platform's calibration table.
func (p Platform) Table() *Table { return p.profile().table }

// Coefficients returns the platform's environmental correction factors.
func (p Platform) Coefficients() Coefficients { return p.profile().coeff }

// Envelope returns the safe elevation band: the lowest calibrated base elevation up
// to the published maximum elevation of the carriage or baseplate.
func (p Platform) Envelope() (lo, hi float64) {
	prof := p.profile()
	return prof.table.minElevation(), prof.maxElevation
}

// PlatformInfo describes a platform for catalog listings.
type PlatformInfo struct {
	Platform     Platform         `json:"platform"`
	Name         string           `json:"name"`
	MinElevation float64          `json:"min_elevation"`
	MaxElevation float64          `json:"max_elevation"`
	Coefficients Coefficients     `json:"coefficients"`
	Projectiles  []ProjectileInfo `json:"projectiles"`
}

// ProjectileInfo lists the charges a projectile may be fired with.
type ProjectileInfo struct {
	Name    string `json:"name"`
	Charges []int  `json:"charges"`
}

// Catalog describes every platform and its projectile/charge choices.
func Catalog() []PlatformInfo {
	out := make([]PlatformInfo, 0, len(Platforms()))
	for _, p := range Platforms() {
		lo, hi := p.Envelope()
		info := PlatformInfo{
			Platform:     p,
			Name:         p.Name(),
			MinElevation: lo,
			MaxElevation: hi,
			Coefficients: p.Coefficients(),
		}
		t := p.Table()
		for _, proj := range t.Projectiles() {
			info.Projectiles = append(info.Projectiles, ProjectileInfo{Name: proj, Charges: t.Charges(proj)})
		}
		out = append(out, info)
	}
	return out
}
