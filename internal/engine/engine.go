package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"fdc/internal/ballistics"
	"fdc/internal/domain"
	"fdc/internal/geo"
)

// MissionStore is the mission persistence collaborator. Every status change is
// conditional on an expected current status; a stale expectation fails with a
// *GuardViolationError.
type MissionStore interface {
	ListMissions(ctx context.Context) ([]domain.FireMission, error)
	GetMission(ctx context.Context, id string) (domain.FireMission, error)
	CreateMission(ctx context.Context, m domain.FireMission, actorID string) (domain.FireMission, error)
	AssignUnit(ctx context.Context, id, unitID, expect, actorID string) (domain.FireMission, error)
	UpdateStatus(ctx context.Context, id string, u domain.StatusUpdate) (domain.FireMission, error)
}

// Directory is the read-only unit and observer directory.
type Directory interface {
	ListUnits(ctx context.Context) ([]domain.FiringUnit, error)
	GetUnit(ctx context.Context, id string) (domain.FiringUnit, error)
	LocateRequester(ctx context.Context, id string) (domain.Requester, error)
}

// Solver produces firing solutions for dispatch.
type Solver interface {
	Solve(ctx context.Context, req ballistics.SolutionRequest) (ballistics.FiringSolution, error)
}

// Engine drives the fire-mission lifecycle against a store and a directory. It holds
// no mission state of its own.
type Engine struct {
	Store     MissionStore
	Directory Directory
	Solver    Solver
	Metrics   *Metrics
	Logger    *slog.Logger
	Now       func() time.Time
}

func New(store MissionStore, dir Directory) Engine {
	return Engine{
		Store:     store,
		Directory: dir,
		Now:       time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e Engine) solve(ctx context.Context, req ballistics.SolutionRequest) (ballistics.FiringSolution, error) {
	if e.Solver != nil {
		return e.Solver.Solve(ctx, req)
	}
	return ballistics.ComputeSolution(req)
}

func (e Engine) finish(ctx context.Context, op, missionID string, err error) {
	e.Metrics.record(ctx, op, err)
	if err != nil {
		e.logger().LogAttrs(ctx, slog.LevelWarn, "mission operation failed",
			slog.String("op", op), slog.String("mission", missionID), slog.String("outcome", Outcome(err)), slog.Any("error", err))
		return
	}
	e.logger().LogAttrs(ctx, slog.LevelDebug, "mission operation", slog.String("op", op), slog.String("mission", missionID))
}

// guard checks the transition table before any store call.
func guard(m domain.FireMission, op, to string) error {
	if !domain.CanTransition(m.Status, to) {
		return &GuardViolationError{MissionID: m.ID, Operation: op, From: m.Status, To: to}
	}
	return nil
}

// RequestOptions are parameters for a call for fire.
type RequestOptions struct {
	ID              string
	RequesterID     string
	Target          geo.Point
	TargetAltitude  float64
	PreferredUnitID string
	ActorID         string
}

// Request creates a mission and attempts to attach the first eligible unit. When none
// qualifies the mission is returned in no_assets_available together with a
// *NoAssetsAvailableError.
func (e Engine) Request(ctx context.Context, opts RequestOptions) (m domain.FireMission, err error) {
	defer func() { e.finish(ctx, "request", m.ID, err) }()
	if opts.RequesterID == "" {
		return m, fmt.Errorf("requester is required")
	}
	if err := opts.Target.Validate(); err != nil {
		return m, fmt.Errorf("target: %w", err)
	}
	requester, err := e.Directory.LocateRequester(ctx, opts.RequesterID)
	if err != nil {
		return m, fmt.Errorf("locate requester %s: %w", opts.RequesterID, err)
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	actor := opts.ActorID
	if actor == "" {
		actor = opts.RequesterID
	}
	created, err := e.Store.CreateMission(ctx, domain.FireMission{
		ID:              id,
		RequesterID:     opts.RequesterID,
		Target:          opts.Target,
		TargetAltitude:  opts.TargetAltitude,
		Status:          domain.StatusRequested,
		PreferredUnitID: optionalString(opts.PreferredUnitID),
		RequestedAt:     e.stamp(),
	}, actor)
	if err != nil {
		return m, fmt.Errorf("create mission: %w", err)
	}
	return e.assign(ctx, created, requester, "request", actor)
}

// Retry repeats the unit search for a mission still waiting for assets.
func (e Engine) Retry(ctx context.Context, id, actorID string) (m domain.FireMission, err error) {
	defer func() { e.finish(ctx, "retry", id, err) }()
	m, err = e.Store.GetMission(ctx, id)
	if err != nil {
		return m, err
	}
	if m.Status != domain.StatusRequested && m.Status != domain.StatusNoAssetsAvailable {
		return m, &GuardViolationError{MissionID: m.ID, Operation: "retry", From: m.Status, To: domain.StatusAssigned}
	}
	requester, err := e.Directory.LocateRequester(ctx, m.RequesterID)
	if err != nil {
		return m, fmt.Errorf("locate requester %s: %w", m.RequesterID, err)
	}
	return e.assign(ctx, m, requester, "retry", actorID)
}

func (e Engine) assign(ctx context.Context, m domain.FireMission, requester domain.Requester, op, actorID string) (domain.FireMission, error) {
	units, err := e.Directory.ListUnits(ctx)
	if err != nil {
		return m, fmt.Errorf("list units: %w", err)
	}
	distance, _ := geo.DistanceAndAzimuth(requester.Location, m.Target)
	for _, u := range candidateOrder(units, m.PreferredUnitID) {
		if u.Status != domain.UnitReady || !u.InRange(distance) {
			continue
		}
		return e.Store.AssignUnit(ctx, m.ID, u.ID, m.Status, actorID)
	}
	updated, err := e.Store.UpdateStatus(ctx, m.ID, domain.StatusUpdate{
		Status:    domain.StatusNoAssetsAvailable,
		Expect:    m.Status,
		Operation: op,
		At:        e.stamp(),
		ActorID:   actorID,
	})
	if err != nil {
		return m, err
	}
	return updated, &NoAssetsAvailableError{MissionID: m.ID, Distance: distance, Considered: len(units)}
}

// candidateOrder puts the preferred unit first and keeps declared order otherwise.
func candidateOrder(units []domain.FiringUnit, preferred *string) []domain.FiringUnit {
	if preferred == nil || *preferred == "" {
		return units
	}
	out := make([]domain.FiringUnit, 0, len(units))
	for _, u := range units {
		if u.ID == *preferred {
			out = append(out, u)
		}
	}
	for _, u := range units {
		if u.ID != *preferred {
			out = append(out, u)
		}
	}
	return out
}

// Reject refuses a mission. Only the operator or commander of the assigned unit may
// reject it; with no unit attached any unit operator may.
func (e Engine) Reject(ctx context.Context, id, actorID, reason string) (m domain.FireMission, err error) {
	defer func() { e.finish(ctx, "reject", id, err) }()
	m, err = e.Store.GetMission(ctx, id)
	if err != nil {
		return m, err
	}
	if err := guard(m, "reject", domain.StatusRejected); err != nil {
		return m, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return m, ErrReasonRequired
	}
	if err := e.authorizeReject(ctx, m, actorID); err != nil {
		return m, err
	}
	return e.Store.UpdateStatus(ctx, m.ID, domain.StatusUpdate{
		Status:    domain.StatusRejected,
		Expect:    m.Status,
		Operation: "reject",
		Reason:    &reason,
		At:        e.stamp(),
		ActorID:   actorID,
	})
}

func (e Engine) authorizeReject(ctx context.Context, m domain.FireMission, actorID string) error {
	if actorID == "" {
		return &ForbiddenError{Operation: "reject", Reason: "actor is required"}
	}
	if m.UnitID != nil {
		u, err := e.Directory.GetUnit(ctx, *m.UnitID)
		if err != nil {
			return fmt.Errorf("get unit %s: %w", *m.UnitID, err)
		}
		if actorID == u.OperatorID || actorID == u.CommanderID {
			return nil
		}
		return &ForbiddenError{ActorID: actorID, Operation: "reject", Reason: "not an operator or commander of unit " + u.ID}
	}
	units, err := e.Directory.ListUnits(ctx)
	if err != nil {
		return fmt.Errorf("list units: %w", err)
	}
	for _, u := range units {
		if u.OperatorID == actorID {
			return nil
		}
	}
	return &ForbiddenError{ActorID: actorID, Operation: "reject", Reason: "not an operator of any unit"}
}

// DispatchOptions select the ammunition for a dispatch.
type DispatchOptions struct {
	MissionID   string
	UnitID      string
	Projectile  string
	Charge      int
	Environment *ballistics.Environment
	MRSI        bool
	ActorID     string
}

// Dispatch lays the assigned unit on the target and moves the mission to active. The
// solution must be within the platform envelope.
func (e Engine) Dispatch(ctx context.Context, opts DispatchOptions) (m domain.FireMission, sol ballistics.FiringSolution, err error) {
	defer func() { e.finish(ctx, "dispatch", opts.MissionID, err) }()
	m, err = e.Store.GetMission(ctx, opts.MissionID)
	if err != nil {
		return m, sol, err
	}
	if err := guard(m, "dispatch", domain.StatusActive); err != nil {
		return m, sol, err
	}
	if m.UnitID == nil || *m.UnitID != opts.UnitID {
		return m, sol, fmt.Errorf("%w: mission %s, unit %s", ErrUnitMismatch, m.ID, opts.UnitID)
	}
	unit, err := e.Directory.GetUnit(ctx, opts.UnitID)
	if err != nil {
		return m, sol, fmt.Errorf("get unit %s: %w", opts.UnitID, err)
	}
	platform, err := ballistics.ParsePlatform(unit.Platform)
	if err != nil {
		return m, sol, fmt.Errorf("unit %s: %w", unit.ID, err)
	}
	sol, err = e.solve(ctx, ballistics.SolutionRequest{
		Platform:       platform,
		Gun:            unit.Location,
		Target:         m.Target,
		GunAltitude:    unit.Altitude,
		TargetAltitude: m.TargetAltitude,
		Projectile:     opts.Projectile,
		Charge:         opts.Charge,
		Environment:    opts.Environment,
		MRSI:           opts.MRSI,
	})
	if err != nil {
		return m, sol, err
	}
	if err := sol.Dispatchable(); err != nil {
		return m, sol, err
	}
	projectile, charge := sol.Projectile, sol.Charge
	m, err = e.Store.UpdateStatus(ctx, m.ID, domain.StatusUpdate{
		Status:     domain.StatusActive,
		Expect:     domain.StatusAssigned,
		Operation:  "dispatch",
		Projectile: &projectile,
		Charge:     &charge,
		Fire: &domain.FireRecord{
			Azimuth:    sol.Azimuth,
			Elevation:  sol.Elevation,
			FlightTime: sol.FlightTime,
			MRSI:       sol.MRSI != nil,
		},
		At:      e.stamp(),
		ActorID: opts.ActorID,
	})
	return m, sol, err
}

// Complete confirms rounds complete. Only the assigned unit's commander may confirm.
func (e Engine) Complete(ctx context.Context, id, actorID string) (m domain.FireMission, err error) {
	defer func() { e.finish(ctx, "complete", id, err) }()
	m, err = e.Store.GetMission(ctx, id)
	if err != nil {
		return m, err
	}
	if err := guard(m, "complete", domain.StatusCompleted); err != nil {
		return m, err
	}
	if m.UnitID == nil {
		return m, &ForbiddenError{ActorID: actorID, Operation: "complete", Reason: "mission has no unit"}
	}
	u, err := e.Directory.GetUnit(ctx, *m.UnitID)
	if err != nil {
		return m, fmt.Errorf("get unit %s: %w", *m.UnitID, err)
	}
	if actorID == "" || actorID != u.CommanderID {
		return m, &ForbiddenError{ActorID: actorID, Operation: "complete", Reason: "not the commander of unit " + u.ID}
	}
	return e.Store.UpdateStatus(ctx, m.ID, domain.StatusUpdate{
		Status:    domain.StatusCompleted,
		Expect:    domain.StatusActive,
		Operation: "complete",
		At:        e.stamp(),
		ActorID:   actorID,
	})
}

// Cancel dismisses a mission that has not been fired.
func (e Engine) Cancel(ctx context.Context, id, actorID, reason string) (m domain.FireMission, err error) {
	defer func() { e.finish(ctx, "cancel", id, err) }()
	m, err = e.Store.GetMission(ctx, id)
	if err != nil {
		return m, err
	}
	if err := guard(m, "cancel", domain.StatusCancelled); err != nil {
		return m, err
	}
	return e.Store.UpdateStatus(ctx, m.ID, domain.StatusUpdate{
		Status:    domain.StatusCancelled,
		Expect:    m.Status,
		Operation: "cancel",
		Reason:    optionalString(strings.TrimSpace(reason)),
		At:        e.stamp(),
		ActorID:   actorID,
	})
}

// Projection is the caller's view of the mission list at one refresh.
type Projection struct {
	Missions    []domain.FireMission `json:"missions"`
	Active      []domain.FireMission `json:"active"`
	RefreshedAt time.Time            `json:"refreshed_at"`
}

// Refresh reads the current mission list. Hosts call it on their own schedule.
func (e Engine) Refresh(ctx context.Context) (Projection, error) {
	missions, err := e.Store.ListMissions(ctx)
	if err != nil {
		return Projection{}, err
	}
	p := Projection{Missions: missions, RefreshedAt: e.now().UTC()}
	for _, m := range missions {
		if !domain.Terminal(m.Status) {
			p.Active = append(p.Active, m)
		}
	}
	return p, nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
