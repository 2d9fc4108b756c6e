package server

import (
	"encoding/json"

	"fdc/internal/ballistics"
	"fdc/internal/domain"
	"fdc/internal/geo"
)

// Request payloads

type CreateMissionRequest struct {
	ID              string    `json:"id,omitempty"`
	RequesterID     string    `json:"requester_id"`
	Target          geo.Point `json:"target"`
	TargetAltitude  float64   `json:"target_altitude,omitempty"`
	PreferredUnitID *string   `json:"preferred_unit_id,omitempty"`
	RequestedAt     string    `json:"requested_at,omitempty" format:"date-time"`
}

type AssignUnitRequest struct {
	UnitID       string `json:"unit_id"`
	ExpectStatus string `json:"expect_status" enum:"requested,no_assets_available"`
}

type CallForFireRequest struct {
	ID              string    `json:"id,omitempty"`
	RequesterID     string    `json:"requester_id"`
	Target          geo.Point `json:"target"`
	TargetAltitude  float64   `json:"target_altitude,omitempty"`
	PreferredUnitID string    `json:"preferred_unit_id,omitempty"`
}

type ReasonRequest struct {
	Reason string `json:"reason,omitempty"`
}

type DispatchRequest struct {
	UnitID      string                  `json:"unit_id"`
	Projectile  string                  `json:"projectile"`
	Charge      int                     `json:"charge"`
	Environment *ballistics.Environment `json:"environment,omitempty"`
	MRSI        bool                    `json:"mrsi,omitempty"`
}

type CreateUnitRequest struct {
	ID          string              `json:"id"`
	Name        string              `json:"name,omitempty"`
	Platform    string              `json:"platform"`
	Location    geo.Point           `json:"location"`
	Altitude    float64             `json:"altitude,omitempty"`
	Status      string              `json:"status,omitempty" enum:"ready,firing,moving,maintenance,out_of_ammo"`
	Ammunition  []domain.Ammunition `json:"ammunition,omitempty"`
	MinRange    float64             `json:"min_range"`
	MaxRange    float64             `json:"max_range"`
	CommanderID string              `json:"commander_id,omitempty"`
	OperatorID  string              `json:"operator_id,omitempty"`
}

type CreateObserverRequest struct {
	ID       string    `json:"id"`
	Callsign string    `json:"callsign,omitempty"`
	Location geo.Point `json:"location"`
	Altitude float64   `json:"altitude,omitempty"`
	Status   string    `json:"status,omitempty"`
	UnitID   *string   `json:"unit_id,omitempty"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

// Response payloads

type MissionList struct {
	Items []domain.FireMission `json:"items"`
}

type UnitList struct {
	Items []domain.FiringUnit `json:"items"`
}

type ObserverList struct {
	Items []domain.Observer `json:"items"`
}

type DispatchResponse struct {
	Mission  domain.FireMission        `json:"mission"`
	Solution ballistics.FiringSolution `json:"solution"`
}

type SolutionResponse struct {
	Solution      ballistics.FiringSolution  `json:"solution"`
	Dispatchable  bool                       `json:"dispatchable"`
	TrajectoryWKT string                     `json:"trajectory_wkt"`
	GunWKT        string                     `json:"gun_wkt"`
	TargetWKT     string                     `json:"target_wkt"`
	Apex          ballistics.TrajectoryPoint `json:"apex"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type WhoAmIResponse struct {
	ActorID  string   `json:"actor_id"`
	Source   string   `json:"source"`
	Commands []string `json:"commands"`
	Operates []string `json:"operates"`
	Observer bool     `json:"observer"`
}

type APIKeyResponse struct {
	domain.APIKey
	Key string `json:"key,omitempty"`
}

type APIKeyList struct {
	Items []domain.APIKey `json:"items"`
}

// Conversion helpers

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func unitFromRequest(in CreateUnitRequest) domain.FiringUnit {
	return domain.FiringUnit{
		ID:          in.ID,
		Name:        in.Name,
		Platform:    in.Platform,
		Location:    in.Location,
		Altitude:    in.Altitude,
		Status:      in.Status,
		Ammunition:  in.Ammunition,
		MinRange:    in.MinRange,
		MaxRange:    in.MaxRange,
		CommanderID: in.CommanderID,
		OperatorID:  in.OperatorID,
	}
}

func observerFromRequest(in CreateObserverRequest) domain.Observer {
	return domain.Observer{
		ID:       in.ID,
		Callsign: in.Callsign,
		Location: in.Location,
		Altitude: in.Altitude,
		Status:   in.Status,
		UnitID:   in.UnitID,
	}
}

func decodeJSONMap(raw string) map[string]any {
	out := map[string]any{}
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]any{"raw": raw}
	}
	return out
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
