package domain

import "fdc/internal/geo"

// Mission statuses.
const (
	StatusRequested         = "requested"
	StatusAssigned          = "assigned"
	StatusNoAssetsAvailable = "no_assets_available"
	StatusRejected          = "rejected"
	StatusActive            = "active"
	StatusCompleted         = "completed"
	StatusCancelled         = "cancelled"
)

// Firing unit readiness values.
const (
	UnitReady       = "ready"
	UnitFiring      = "firing"
	UnitMoving      = "moving"
	UnitMaintenance = "maintenance"
	UnitOutOfAmmo   = "out_of_ammo"
)

// FireMission is one call for fire. PreferredUnitID, when set, is searched before the
// rest of the directory.
type FireMission struct {
	ID              string      `json:"id"`
	RequesterID     string      `json:"requester_id"`
	Target          geo.Point   `json:"target"`
	TargetAltitude  float64     `json:"target_altitude,omitempty"`
	Status          string      `json:"status" enum:"requested,assigned,no_assets_available,rejected,active,completed,cancelled"`
	UnitID          *string     `json:"unit_id,omitempty"`
	PreferredUnitID *string     `json:"preferred_unit_id,omitempty"`
	Reason          *string     `json:"reason,omitempty"`
	Projectile      *string     `json:"projectile,omitempty"`
	Charge          *int        `json:"charge,omitempty"`
	Fire            *FireRecord `json:"fire,omitempty"`
	RequestedAt     string      `json:"requested_at" format:"date-time"`
	UpdatedAt       string      `json:"updated_at" format:"date-time"`
	FiredAt         *string     `json:"fired_at,omitempty" format:"date-time"`
	CompletedAt     *string     `json:"completed_at,omitempty" format:"date-time"`
}

// FireRecord is the part of a firing solution kept with a dispatched mission.
type FireRecord struct {
	Azimuth    float64 `json:"azimuth"`
	Elevation  float64 `json:"elevation"`
	FlightTime float64 `json:"flight_time"`
	MRSI       bool    `json:"mrsi,omitempty"`
}

// Ammunition is a stock line held by a firing unit.
type Ammunition struct {
	Type     string `json:"type"`
	Quantity int    `json:"quantity"`
}

type FiringUnit struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Platform    string       `json:"platform"`
	Location    geo.Point    `json:"location"`
	Altitude    float64      `json:"altitude,omitempty"`
	Status      string       `json:"status" enum:"ready,firing,moving,maintenance,out_of_ammo"`
	Ammunition  []Ammunition `json:"ammunition,omitempty"`
	MinRange    float64      `json:"min_range"`
	MaxRange    float64      `json:"max_range"`
	CommanderID string       `json:"commander_id,omitempty"`
	OperatorID  string       `json:"operator_id,omitempty"`
	CreatedAt   string       `json:"created_at" format:"date-time"`
}

// InRange reports whether a distance in meters falls inside the unit's range envelope.
func (u FiringUnit) InRange(distance float64) bool {
	return u.MinRange <= distance && distance <= u.MaxRange
}

type Observer struct {
	ID        string    `json:"id"`
	Callsign  string    `json:"callsign"`
	Location  geo.Point `json:"location"`
	Altitude  float64   `json:"altitude,omitempty"`
	Status    string    `json:"status,omitempty"`
	UnitID    *string   `json:"unit_id,omitempty"`
	CreatedAt string    `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

var transitions = map[string][]string{
	StatusRequested:         {StatusAssigned, StatusNoAssetsAvailable, StatusRejected, StatusCancelled},
	StatusNoAssetsAvailable: {StatusAssigned, StatusNoAssetsAvailable, StatusCancelled},
	StatusAssigned:          {StatusActive, StatusRejected, StatusCancelled},
	StatusRejected:          {StatusCancelled},
	StatusActive:            {StatusCompleted},
}

// CanTransition reports whether a mission may move from one status to another.
func CanTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidStatus reports whether s names a mission status.
func ValidStatus(s string) bool {
	switch s {
	case StatusRequested, StatusAssigned, StatusNoAssetsAvailable, StatusRejected,
		StatusActive, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// ValidUnitStatus reports whether s names a firing unit readiness value.
func ValidUnitStatus(s string) bool {
	switch s {
	case UnitReady, UnitFiring, UnitMoving, UnitMaintenance, UnitOutOfAmmo:
		return true
	}
	return false
}

// Terminal reports whether a mission has left the active view.
func Terminal(status string) bool {
	return status == StatusCompleted || status == StatusCancelled
}

// Requester is the resolved position of whoever called for fire.
type Requester struct {
	ID       string    `json:"id"`
	Kind     string    `json:"kind" enum:"observer,unit"`
	Location geo.Point `json:"location"`
	Altitude float64   `json:"altitude,omitempty"`
}

// StatusUpdate is a conditional status change. The store applies it only while the
// mission is still in Expect.
type StatusUpdate struct {
	Status     string      `json:"status"`
	Expect     string      `json:"expect_status"`
	Operation  string      `json:"operation,omitempty"`
	Reason     *string     `json:"reason,omitempty"`
	Projectile *string     `json:"projectile,omitempty"`
	Charge     *int        `json:"charge,omitempty"`
	Fire       *FireRecord `json:"fire,omitempty"`
	At         string      `json:"at,omitempty" format:"date-time"`
	ActorID    string      `json:"-"`
}

// APIKey authenticates a crew workstation as an actor. Only the hash is stored.
type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"-"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
