package ballistics

import "math"

// Entry is one calibrated projectile/charge pair.
type Entry struct {
	Projectile     string  `json:"projectile"`
	Charge         int     `json:"charge"`
	MuzzleVelocity float64 `json:"muzzle_velocity"`
	BaseElevation  float64 `json:"base_elevation"`
	MaxRange       float64 `json:"max_range"`
	Guided         bool    `json:"guided,omitempty"`
}

type calibrationKey struct {
	projectile string
	charge     int
}

// Table is a read-only calibration table for one platform.
type Table struct {
	platform    Platform
	entries     map[calibrationKey]Entry
	charges     map[string][]int
	projectiles []string
}

func newTable(platform Platform, entries ...Entry) *Table {
	t := &Table{
		platform: platform,
		entries:  make(map[calibrationKey]Entry, len(entries)),
		charges:  make(map[string][]int),
	}
	for _, e := range entries {
		k := calibrationKey{e.Projectile, e.Charge}
		if _, dup := t.entries[k]; dup {
			panic("ballistics: duplicate calibration entry " + e.Projectile)
		}
		t.entries[k] = e
		if _, seen := t.charges[e.Projectile]; !seen {
			t.projectiles = append(t.projectiles, e.Projectile)
		}
		t.charges[e.Projectile] = append(t.charges[e.Projectile], e.Charge)
	}
	return t
}

// Lookup returns the calibration for a projectile/charge pair.
func (t *Table) Lookup(projectile string, charge int) (Entry, error) {
	e, ok := t.entries[calibrationKey{projectile, charge}]
	if !ok {
		return Entry{}, &InvalidCalibrationError{
			Platform:   t.platform,
			Projectile: projectile,
			Charge:     charge,
			Valid:      t.Charges(projectile),
		}
	}
	return e, nil
}

// Charges returns the valid charges for a projectile in firing-table order.
// The returned slice is a copy.
func (t *Table) Charges(projectile string) []int {
	c := t.charges[projectile]
	if len(c) == 0 {
		return nil
	}
	return append([]int(nil), c...)
}

// Projectiles returns projectile names in declared order.
func (t *Table) Projectiles() []string {
	return append([]string(nil), t.projectiles...)
}

// Entries returns every calibration entry in declared order.
func (t *Table) Entries() []Entry {
	var out []Entry
	for _, p := range t.projectiles {
		for _, c := range t.charges[p] {
			out = append(out, t.entries[calibrationKey{p, c}])
		}
	}
	return out
}

func (t *Table) minElevation() float64 {
	lo := math.Inf(1)
	for _, e := range t.entries {
		lo = math.Min(lo, e.BaseElevation)
	}
	return lo
}
