package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"fdc/internal/ballistics"
	"fdc/internal/domain"
	"fdc/internal/events"
)

const unitColumns = `id,name,platform,lat,lon,altitude,status,ammunition_json,min_range,max_range,COALESCE(commander_id,''),COALESCE(operator_id,''),created_at`

func scanUnit(s scanner) (domain.FiringUnit, error) {
	var (
		u    domain.FiringUnit
		ammo sql.NullString
	)
	err := s.Scan(&u.ID, &u.Name, &u.Platform, &u.Location.Lat, &u.Location.Lon, &u.Altitude, &u.Status, &ammo,
		&u.MinRange, &u.MaxRange, &u.CommanderID, &u.OperatorID, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	if ammo.Valid && ammo.String != "" {
		if err := json.Unmarshal([]byte(ammo.String), &u.Ammunition); err != nil {
			return u, fmt.Errorf("unit %s ammunition: %w", u.ID, err)
		}
	}
	return u, nil
}

func getUnit(ctx context.Context, q rowQueryer, id string) (domain.FiringUnit, error) {
	return scanUnit(q.QueryRowContext(ctx, `SELECT `+unitColumns+` FROM units WHERE id=?`, id))
}

func (r Repo) GetUnit(ctx context.Context, id string) (domain.FiringUnit, error) {
	return getUnit(ctx, r.DB, id)
}

// ListUnits returns units in declared order, which is the assignment priority.
func (r Repo) ListUnits(ctx context.Context) ([]domain.FiringUnit, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+unitColumns+` FROM units ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.FiringUnit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

// ValidateUnit checks a unit record before it enters the directory.
func ValidateUnit(u domain.FiringUnit) error {
	var problems []string
	if strings.TrimSpace(u.Name) == "" {
		problems = append(problems, "name is required")
	}
	if _, err := ballistics.ParsePlatform(u.Platform); err != nil {
		problems = append(problems, err.Error())
	}
	if err := u.Location.Validate(); err != nil {
		problems = append(problems, "location: "+err.Error())
	}
	if !domain.ValidUnitStatus(u.Status) {
		problems = append(problems, fmt.Sprintf("invalid status %q", u.Status))
	}
	if u.MinRange < 0 || u.MaxRange <= u.MinRange {
		problems = append(problems, fmt.Sprintf("range envelope [%.0f, %.0f] is empty", u.MinRange, u.MaxRange))
	}
	for _, a := range u.Ammunition {
		if a.Type == "" || a.Quantity < 0 {
			problems = append(problems, fmt.Sprintf("invalid ammunition line %q x %d", a.Type, a.Quantity))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid unit: %s", strings.Join(problems, "; "))
	}
	return nil
}

// CreateUnit appends a unit to the directory. Units are searched in insertion order.
func (r Repo) CreateUnit(ctx context.Context, u domain.FiringUnit, actorID string) (domain.FiringUnit, error) {
	if u.Status == "" {
		u.Status = domain.UnitReady
	}
	if p, err := ballistics.ParsePlatform(u.Platform); err == nil {
		u.Platform = string(p)
	}
	if err := ValidateUnit(u); err != nil {
		return u, err
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = r.stamp()
	var ammo any
	if len(u.Ammunition) > 0 {
		b, err := json.Marshal(u.Ammunition)
		if err != nil {
			return u, err
		}
		ammo = string(b)
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return u, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO units(id,name,platform,lat,lon,altitude,status,ammunition_json,min_range,max_range,commander_id,operator_id,position,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,(SELECT COALESCE(MAX(position),0)+1 FROM units),?)`,
		u.ID, u.Name, u.Platform, u.Location.Lat, u.Location.Lon, u.Altitude, u.Status, ammo,
		u.MinRange, u.MaxRange, nullable(u.CommanderID), nullable(u.OperatorID), u.CreatedAt); err != nil {
		return u, fmt.Errorf("insert unit: %w", err)
	}
	if err := r.events().Append(ctx, tx, events.UnitCreated, "unit", u.ID, actorID, events.Payload{
		"platform": u.Platform,
		"status":   u.Status,
	}); err != nil {
		return u, err
	}
	if err := tx.Commit(); err != nil {
		return u, err
	}
	return u, nil
}

const observerColumns = `id,callsign,lat,lon,altitude,COALESCE(status,''),unit_id,created_at`

func scanObserver(s scanner) (domain.Observer, error) {
	var (
		o      domain.Observer
		unitID sql.NullString
	)
	err := s.Scan(&o.ID, &o.Callsign, &o.Location.Lat, &o.Location.Lon, &o.Altitude, &o.Status, &unitID, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return o, ErrNotFound
	}
	o.UnitID = stringPtr(unitID)
	return o, err
}

func (r Repo) GetObserver(ctx context.Context, id string) (domain.Observer, error) {
	return scanObserver(r.DB.QueryRowContext(ctx, `SELECT `+observerColumns+` FROM observers WHERE id=?`, id))
}

func (r Repo) ListObservers(ctx context.Context) ([]domain.Observer, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+observerColumns+` FROM observers ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Observer
	for rows.Next() {
		o, err := scanObserver(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

func (r Repo) CreateObserver(ctx context.Context, o domain.Observer, actorID string) (domain.Observer, error) {
	if strings.TrimSpace(o.Callsign) == "" {
		return o, errors.New("callsign is required")
	}
	if err := o.Location.Validate(); err != nil {
		return o, fmt.Errorf("location: %w", err)
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	o.CreatedAt = r.stamp()

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return o, err
	}
	defer tx.Rollback()

	if o.UnitID != nil {
		if _, err := getUnit(ctx, tx, *o.UnitID); err != nil {
			return o, fmt.Errorf("unit %s: %w", *o.UnitID, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO observers(id,callsign,lat,lon,altitude,status,unit_id,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		o.ID, o.Callsign, o.Location.Lat, o.Location.Lon, o.Altitude, nullable(o.Status), nullableStringPtr(o.UnitID), o.CreatedAt); err != nil {
		return o, fmt.Errorf("insert observer: %w", err)
	}
	if err := r.events().Append(ctx, tx, events.ObserverCreated, "observer", o.ID, actorID, events.Payload{"callsign": o.Callsign}); err != nil {
		return o, err
	}
	if err := tx.Commit(); err != nil {
		return o, err
	}
	return o, nil
}

// LocateRequester resolves a requester id against observers first, then units.
func (r Repo) LocateRequester(ctx context.Context, id string) (domain.Requester, error) {
	o, err := r.GetObserver(ctx, id)
	if err == nil {
		return domain.Requester{ID: o.ID, Kind: "observer", Location: o.Location, Altitude: o.Altitude}, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return domain.Requester{}, err
	}
	u, err := r.GetUnit(ctx, id)
	if err != nil {
		return domain.Requester{}, err
	}
	return domain.Requester{ID: u.ID, Kind: "unit", Location: u.Location, Altitude: u.Altitude}, nil
}
