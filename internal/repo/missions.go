package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"fdc/internal/domain"
	"fdc/internal/engine"
	"fdc/internal/events"
)

const missionColumns = `id,requester_id,target_lat,target_lon,target_altitude,status,unit_id,preferred_unit_id,reason,projectile,charge,fire_json,requested_at,updated_at,fired_at,completed_at`

func scanMission(s scanner) (domain.FireMission, error) {
	var (
		m                                    domain.FireMission
		unitID, preferred, reason, proj, fire sql.NullString
		firedAt, completedAt                 sql.NullString
		charge                               sql.NullInt64
	)
	err := s.Scan(&m.ID, &m.RequesterID, &m.Target.Lat, &m.Target.Lon, &m.TargetAltitude, &m.Status,
		&unitID, &preferred, &reason, &proj, &charge, &fire, &m.RequestedAt, &m.UpdatedAt, &firedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	m.UnitID = stringPtr(unitID)
	m.PreferredUnitID = stringPtr(preferred)
	m.Reason = stringPtr(reason)
	m.Projectile = stringPtr(proj)
	m.FiredAt = stringPtr(firedAt)
	m.CompletedAt = stringPtr(completedAt)
	if charge.Valid {
		c := int(charge.Int64)
		m.Charge = &c
	}
	if fire.Valid {
		var rec domain.FireRecord
		if err := json.Unmarshal([]byte(fire.String), &rec); err != nil {
			return m, fmt.Errorf("mission %s fire record: %w", m.ID, err)
		}
		m.Fire = &rec
	}
	return m, nil
}

func getMission(ctx context.Context, q rowQueryer, id string) (domain.FireMission, error) {
	return scanMission(q.QueryRowContext(ctx, `SELECT `+missionColumns+` FROM missions WHERE id=?`, id))
}

func (r Repo) GetMission(ctx context.Context, id string) (domain.FireMission, error) {
	return getMission(ctx, r.DB, id)
}

// MissionFilter narrows ListMissionsFiltered. Empty fields match everything.
type MissionFilter struct {
	Status      string
	UnitID      string
	RequesterID string
	ActiveOnly  bool
}

func (r Repo) ListMissions(ctx context.Context) ([]domain.FireMission, error) {
	return r.ListMissionsFiltered(ctx, MissionFilter{})
}

func (r Repo) ListMissionsFiltered(ctx context.Context, f MissionFilter) ([]domain.FireMission, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "status=?")
		args = append(args, f.Status)
	}
	if f.UnitID != "" {
		where = append(where, "unit_id=?")
		args = append(args, f.UnitID)
	}
	if f.RequesterID != "" {
		where = append(where, "requester_id=?")
		args = append(args, f.RequesterID)
	}
	if f.ActiveOnly {
		where = append(where, "status NOT IN (?,?)")
		args = append(args, domain.StatusCompleted, domain.StatusCancelled)
	}
	q := `SELECT ` + missionColumns + ` FROM missions`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY requested_at, id`
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.FireMission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// CreateMission inserts a mission in requested status.
func (r Repo) CreateMission(ctx context.Context, m domain.FireMission, actorID string) (domain.FireMission, error) {
	if m.RequesterID == "" {
		return m, errors.New("requester_id is required")
	}
	if err := m.Target.Validate(); err != nil {
		return m, fmt.Errorf("target: %w", err)
	}
	if m.Status == "" {
		m.Status = domain.StatusRequested
	}
	if m.Status != domain.StatusRequested {
		return m, fmt.Errorf("new missions start in %s, got %s", domain.StatusRequested, m.Status)
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := r.stamp()
	if m.RequestedAt == "" {
		m.RequestedAt = now
	}
	m.UpdatedAt = now
	m.UnitID, m.Reason, m.Projectile, m.Charge, m.Fire, m.FiredAt, m.CompletedAt = nil, nil, nil, nil, nil, nil, nil

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return m, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO missions(id,requester_id,target_lat,target_lon,target_altitude,status,preferred_unit_id,requested_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		m.ID, m.RequesterID, m.Target.Lat, m.Target.Lon, m.TargetAltitude, m.Status, nullableStringPtr(m.PreferredUnitID), m.RequestedAt, m.UpdatedAt); err != nil {
		return m, fmt.Errorf("insert mission: %w", err)
	}
	if err := r.events().Append(ctx, tx, events.MissionCreated, "mission", m.ID, actorID, events.Payload{
		"requester_id": m.RequesterID,
		"target":       m.Target,
		"status":       m.Status,
	}); err != nil {
		return m, err
	}
	if err := tx.Commit(); err != nil {
		return m, err
	}
	return m, nil
}

// AssignUnit attaches a unit and moves the mission to assigned, provided it is still
// in expect. An empty expect accepts any status the transition table allows.
func (r Repo) AssignUnit(ctx context.Context, id, unitID, expect, actorID string) (domain.FireMission, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.FireMission{}, err
	}
	defer tx.Rollback()

	cur, err := getMission(ctx, tx, id)
	if err != nil {
		return cur, err
	}
	if err := checkExpect(cur, "assign", expect, domain.StatusAssigned); err != nil {
		return cur, err
	}
	if _, err := getUnit(ctx, tx, unitID); err != nil {
		return cur, fmt.Errorf("unit %s: %w", unitID, err)
	}
	now := r.stamp()
	res, err := tx.ExecContext(ctx, `UPDATE missions SET status=?, unit_id=?, reason=NULL, updated_at=? WHERE id=? AND status=?`,
		domain.StatusAssigned, unitID, now, id, cur.Status)
	if err != nil {
		return cur, err
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return cur, &engine.GuardViolationError{MissionID: id, Operation: "assign", From: cur.Status, To: domain.StatusAssigned}
	}
	if err := r.events().Append(ctx, tx, events.MissionAssigned, "mission", id, actorID, events.Payload{
		"from":    cur.Status,
		"unit_id": unitID,
	}); err != nil {
		return cur, err
	}
	m, err := getMission(ctx, tx, id)
	if err != nil {
		return cur, err
	}
	if err := tx.Commit(); err != nil {
		return cur, err
	}
	return m, nil
}

// UpdateStatus applies a conditional status change. It stamps fired_at on active and
// completed_at on completed.
func (r Repo) UpdateStatus(ctx context.Context, id string, u domain.StatusUpdate) (domain.FireMission, error) {
	if !domain.ValidStatus(u.Status) {
		return domain.FireMission{}, fmt.Errorf("invalid status %q", u.Status)
	}
	if u.Status == domain.StatusActive && (u.Fire == nil || u.Projectile == nil || u.Charge == nil) {
		return domain.FireMission{}, ErrFireRecordRequired
	}
	op := u.Operation
	if op == "" {
		op = "set status of"
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.FireMission{}, err
	}
	defer tx.Rollback()

	cur, err := getMission(ctx, tx, id)
	if err != nil {
		return cur, err
	}
	if err := checkExpect(cur, op, u.Expect, u.Status); err != nil {
		return cur, err
	}
	at := u.At
	if at == "" {
		at = r.stamp()
	}
	fields := []string{"status=?", "updated_at=?"}
	args := []any{u.Status, at}
	if u.Reason != nil {
		fields = append(fields, "reason=?")
		args = append(args, nullable(*u.Reason))
	}
	if u.Projectile != nil {
		fields = append(fields, "projectile=?")
		args = append(args, *u.Projectile)
	}
	if u.Charge != nil {
		fields = append(fields, "charge=?")
		args = append(args, *u.Charge)
	}
	if u.Fire != nil {
		b, err := json.Marshal(u.Fire)
		if err != nil {
			return cur, err
		}
		fields = append(fields, "fire_json=?")
		args = append(args, string(b))
	}
	switch u.Status {
	case domain.StatusActive:
		fields = append(fields, "fired_at=?")
		args = append(args, at)
	case domain.StatusCompleted:
		fields = append(fields, "completed_at=?")
		args = append(args, at)
	}
	args = append(args, id, cur.Status)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE missions SET %s WHERE id=? AND status=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return cur, err
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return cur, &engine.GuardViolationError{MissionID: id, Operation: op, From: cur.Status, To: u.Status}
	}
	payload := events.Payload{"from": cur.Status, "to": u.Status}
	if u.Reason != nil && *u.Reason != "" {
		payload["reason"] = *u.Reason
	}
	if u.Fire != nil {
		payload["fire"] = u.Fire
	}
	if err := r.events().Append(ctx, tx, events.MissionStatus, "mission", id, u.ActorID, payload); err != nil {
		return cur, err
	}
	m, err := getMission(ctx, tx, id)
	if err != nil {
		return cur, err
	}
	if err := tx.Commit(); err != nil {
		return cur, err
	}
	return m, nil
}

func checkExpect(cur domain.FireMission, op, expect, to string) error {
	if expect != "" && cur.Status != expect {
		return &engine.GuardViolationError{MissionID: cur.ID, Operation: op, From: cur.Status, To: to}
	}
	if !domain.CanTransition(cur.Status, to) {
		return &engine.GuardViolationError{MissionID: cur.ID, Operation: op, From: cur.Status, To: to}
	}
	return nil
}
