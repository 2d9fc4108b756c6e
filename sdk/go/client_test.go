package fdcsdk_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"fdc/internal/ballistics"
	"fdc/internal/db"
	"fdc/internal/domain"
	"fdc/internal/engine"
	"fdc/internal/geo"
	"fdc/internal/migrate"
	"fdc/internal/repo"
	"fdc/internal/server"
	fdcsdk "fdc/sdk/go"
)

func newRemote(t *testing.T) *fdcsdk.Client {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	handler, err := server.New(server.Config{
		Repo: repo.New(conn),
		Auth: server.AuthConfig{AllowActorHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	c := fdcsdk.New(ts.URL)
	c.ActorID = "fdc-console"
	return c
}

func seed(t *testing.T, ctx context.Context, c *fdcsdk.Client) {
	t.Helper()
	if _, err := c.CreateUnit(ctx, domain.FiringUnit{
		ID: "bty-a", Name: "Alpha", Platform: string(ballistics.Howitzer155), Location: geo.Point{Lat: 4.60, Lon: -74.08},
		MinRange: 2000, MaxRange: 24000, CommanderID: "cdr-a", OperatorID: "op-a",
	}); err != nil {
		t.Fatalf("create unit: %v", err)
	}
	if _, err := c.CreateObserver(ctx, domain.Observer{ID: "fo-1", Callsign: "Hawk", Location: geo.Point{Lat: 4.60, Lon: -74.10}}); err != nil {
		t.Fatalf("create observer: %v", err)
	}
}

func TestRemoteEngineDrivesMissionLifecycle(t *testing.T) {
	ctx := context.Background()
	c := newRemote(t)
	seed(t, ctx, c)
	eng := engine.New(c, c)

	m, err := eng.Request(ctx, engine.RequestOptions{RequesterID: "fo-1", Target: geo.Point{Lat: 4.65, Lon: -74.08}})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if m.Status != domain.StatusAssigned || m.UnitID == nil || *m.UnitID != "bty-a" {
		t.Fatalf("expected bty-a assignment, got %+v", m)
	}

	m, _, err = eng.Dispatch(ctx, engine.DispatchOptions{MissionID: m.ID, UnitID: "bty-a", Projectile: "HE", Charge: 4, ActorID: "op-a"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if m.Status != domain.StatusActive || m.Charge == nil || *m.Charge != 4 {
		t.Fatalf("expected active mission with charge 4, got %+v", m)
	}

	_, err = c.UpdateStatus(ctx, m.ID, domain.StatusUpdate{Status: domain.StatusCancelled, Expect: domain.StatusAssigned, ActorID: "op-a"})
	ge, ok := fdcsdk.AsGuardViolation(err)
	if !ok || ge.From != domain.StatusActive || ge.MissionID != m.ID {
		t.Fatalf("expected typed guard violation from active, got %v", err)
	}

	if _, err := eng.Complete(ctx, m.ID, "op-a"); err == nil {
		t.Fatalf("operator must not complete")
	} else {
		var fe *engine.ForbiddenError
		if !errors.As(err, &fe) {
			t.Fatalf("expected forbidden, got %v", err)
		}
	}
	m, err = eng.Complete(ctx, m.ID, "cdr-a")
	if err != nil || m.Status != domain.StatusCompleted {
		t.Fatalf("complete: %v", err)
	}

	p, err := eng.Refresh(ctx)
	if err != nil || len(p.Missions) != 1 || len(p.Active) != 0 {
		t.Fatalf("unexpected projection %+v: %v", p, err)
	}

	page, err := c.EventsPage(ctx, 50, "")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	last := page.Items[len(page.Items)-1]
	if last.Type != "mission.status" || last.ActorID != "cdr-a" || last.Payload["to"] != domain.StatusCompleted {
		t.Fatalf("unexpected last event %+v", last)
	}
}

func TestClientErrors(t *testing.T) {
	ctx := context.Background()
	c := newRemote(t)

	_, err := c.GetMission(ctx, "ghost")
	if !errors.Is(err, fdcsdk.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	var apiErr *fdcsdk.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 404 || apiErr.Envelope.Code != "not_found" {
		t.Fatalf("expected decoded envelope, got %v", err)
	}

	_, err = c.Solve(ctx, ballistics.SolutionRequest{
		Platform:   ballistics.Mortar120M120,
		Gun:        geo.Point{Lat: 4.60, Lon: -74.08},
		Target:     geo.Point{Lat: 4.65, Lon: -74.08},
		Projectile: "M931 HE",
		Charge:     9,
	})
	if !errors.As(err, &apiErr) || apiErr.Envelope.Code != "invalid_calibration" {
		t.Fatalf("expected invalid_calibration, got %v", err)
	}

	sol, err := c.Solve(ctx, ballistics.SolutionRequest{
		Platform:   ballistics.Howitzer155,
		Gun:        geo.Point{Lat: 4.60, Lon: -74.08},
		Target:     geo.Point{Lat: 4.65, Lon: -74.08},
		Projectile: "HE",
		Charge:     3,
	})
	if err != nil || !strings.HasPrefix(sol.TrajectoryWKT, "LINESTRING") {
		t.Fatalf("solve: %v", err)
	}

	anon := fdcsdk.New(c.BaseURL)
	if _, err := anon.ListMissions(ctx); !errors.As(err, &apiErr) || apiErr.StatusCode != 401 {
		t.Fatalf("expected 401 without credentials, got %v", err)
	}
}
