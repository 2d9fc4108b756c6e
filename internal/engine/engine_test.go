package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"fdc/internal/ballistics"
	"fdc/internal/db"
	"fdc/internal/domain"
	"fdc/internal/engine"
	"fdc/internal/geo"
	"fdc/internal/migrate"
	"fdc/internal/repo"
)

var target = geo.Point{Lat: 4.65, Lon: -74.08}

type testEnv struct {
	Engine engine.Engine
	Repo   repo.Repo
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	if err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	now := func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	r := repo.New(conn)
	r.Now = now
	eng := engine.New(r, r)
	eng.Now = now
	return testEnv{Engine: eng, Repo: r, Ctx: ctx}
}

// seed adds a 155 battery and a mortar section, both in range of target from fo-1.
func (env testEnv) seed(t *testing.T) {
	t.Helper()
	units := []domain.FiringUnit{
		{ID: "bty-a", Name: "Alpha", Platform: string(ballistics.Howitzer155), Location: geo.Point{Lat: 4.60, Lon: -74.08},
			Status: domain.UnitReady, MinRange: 2000, MaxRange: 24000, CommanderID: "cdr-a", OperatorID: "op-a"},
		{ID: "mort-b", Name: "Bravo", Platform: string(ballistics.Mortar120M120), Location: geo.Point{Lat: 4.64, Lon: -74.08}, Altitude: 800,
			Status: domain.UnitReady, MinRange: 500, MaxRange: 7000, CommanderID: "cdr-b", OperatorID: "op-b"},
	}
	for _, u := range units {
		if _, err := env.Repo.CreateUnit(env.Ctx, u, "admin"); err != nil {
			t.Fatalf("create unit %s: %v", u.ID, err)
		}
	}
	if _, err := env.Repo.CreateObserver(env.Ctx, domain.Observer{ID: "fo-1", Callsign: "Hawk", Location: geo.Point{Lat: 4.60, Lon: -74.10}}, "admin"); err != nil {
		t.Fatalf("create observer: %v", err)
	}
}

func (env testEnv) request(t *testing.T, preferred string) domain.FireMission {
	t.Helper()
	m, err := env.Engine.Request(env.Ctx, engine.RequestOptions{RequesterID: "fo-1", Target: target, PreferredUnitID: preferred})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	return m
}

func TestRequestAssignsFirstReadyUnitInDeclaredOrder(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	m := env.request(t, "")
	if m.Status != domain.StatusAssigned || m.UnitID == nil || *m.UnitID != "bty-a" {
		t.Fatalf("expected assignment to bty-a, got %s %v", m.Status, m.UnitID)
	}
	if m.RequestedAt != "2024-01-01T00:00:00Z" {
		t.Fatalf("unexpected requested_at %s", m.RequestedAt)
	}

	preferred := env.request(t, "mort-b")
	if preferred.UnitID == nil || *preferred.UnitID != "mort-b" {
		t.Fatalf("expected preferred unit first, got %v", preferred.UnitID)
	}
}

func TestRequestSkipsUnitsNotReady(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Repo.CreateUnit(env.Ctx, domain.FiringUnit{ID: "down", Name: "Down", Platform: string(ballistics.Howitzer155),
		Location: geo.Point{Lat: 4.60, Lon: -74.08}, Status: domain.UnitMaintenance, MinRange: 0, MaxRange: 30000}, "admin"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Repo.CreateUnit(env.Ctx, domain.FiringUnit{ID: "up", Name: "Up", Platform: string(ballistics.Howitzer155),
		Location: geo.Point{Lat: 4.60, Lon: -74.08}, MinRange: 0, MaxRange: 30000}, "admin"); err != nil {
		t.Fatal(err)
	}
	m, err := env.Engine.Request(env.Ctx, engine.RequestOptions{RequesterID: "down", Target: target})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if *m.UnitID != "up" {
		t.Fatalf("expected ready unit, got %s", *m.UnitID)
	}
}

func TestNoAssetsThenDispatchIsGuardViolation(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	far := geo.Point{Lat: 5.60, Lon: -74.08}
	m, err := env.Engine.Request(env.Ctx, engine.RequestOptions{RequesterID: "fo-1", Target: far})
	var na *engine.NoAssetsAvailableError
	if !errors.As(err, &na) {
		t.Fatalf("expected no assets error, got %v", err)
	}
	if na.Considered != 2 || na.Distance < 100000 {
		t.Fatalf("unexpected detail %+v", na)
	}
	if m.Status != domain.StatusNoAssetsAvailable {
		t.Fatalf("expected no_assets_available, got %s", m.Status)
	}

	_, _, err = env.Engine.Dispatch(env.Ctx, engine.DispatchOptions{MissionID: m.ID, UnitID: "bty-a", Projectile: "HE", Charge: 3})
	var gv *engine.GuardViolationError
	if !errors.As(err, &gv) || gv.From != domain.StatusNoAssetsAvailable {
		t.Fatalf("expected guard violation, got %v", err)
	}
	got, err := env.Repo.GetMission(env.Ctx, m.ID)
	if err != nil || got.Status != domain.StatusNoAssetsAvailable {
		t.Fatalf("status changed: %v %s", err, got.Status)
	}
}

func TestRetryAssignsOnceAUnitCovers(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	far := geo.Point{Lat: 5.60, Lon: -74.08}
	m, _ := env.Engine.Request(env.Ctx, engine.RequestOptions{RequesterID: "fo-1", Target: far})

	if _, err := env.Repo.CreateUnit(env.Ctx, domain.FiringUnit{ID: "long", Name: "Long", Platform: string(ballistics.Howitzer155),
		Location: geo.Point{Lat: 4.60, Lon: -74.08}, MinRange: 0, MaxRange: 200000}, "admin"); err != nil {
		t.Fatal(err)
	}
	m, err := env.Engine.Retry(env.Ctx, m.ID, "fo-1")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if m.Status != domain.StatusAssigned || *m.UnitID != "long" {
		t.Fatalf("expected assignment to long, got %s", m.Status)
	}
	if _, err := env.Engine.Retry(env.Ctx, m.ID, "fo-1"); err == nil {
		t.Fatalf("expected retry of assigned mission to fail")
	}
}

func TestDispatchAndComplete(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	m := env.request(t, "")

	m, sol, err := env.Engine.Dispatch(env.Ctx, engine.DispatchOptions{MissionID: m.ID, UnitID: "bty-a", Projectile: "HE", Charge: 3, ActorID: "op-a"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if m.Status != domain.StatusActive || m.FiredAt == nil {
		t.Fatalf("expected active with fired_at, got %s", m.Status)
	}
	if m.Projectile == nil || *m.Projectile != "HE" || m.Charge == nil || *m.Charge != 3 {
		t.Fatalf("ammunition not recorded: %+v", m)
	}
	if m.Fire == nil || m.Fire.Elevation != sol.Elevation || m.Fire.FlightTime != sol.FlightTime {
		t.Fatalf("fire record mismatch: %+v vs %+v", m.Fire, sol)
	}

	_, err = env.Engine.Complete(env.Ctx, m.ID, "op-a")
	var fb *engine.ForbiddenError
	if !errors.As(err, &fb) {
		t.Fatalf("expected operator to be refused, got %v", err)
	}
	m, err = env.Engine.Complete(env.Ctx, m.ID, "cdr-a")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if m.Status != domain.StatusCompleted || m.CompletedAt == nil {
		t.Fatalf("expected completed, got %s", m.Status)
	}
}

func TestRejectOnActiveIsGuardViolation(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	m := env.request(t, "")
	if _, _, err := env.Engine.Dispatch(env.Ctx, engine.DispatchOptions{MissionID: m.ID, UnitID: "bty-a", Projectile: "HE", Charge: 3}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	_, err := env.Engine.Reject(env.Ctx, m.ID, "op-a", "wrong grid")
	var gv *engine.GuardViolationError
	if !errors.As(err, &gv) || gv.Operation != "reject" || gv.From != domain.StatusActive {
		t.Fatalf("expected guard violation, got %v", err)
	}
	got, _ := env.Repo.GetMission(env.Ctx, m.ID)
	if got.Status != domain.StatusActive {
		t.Fatalf("expected status to stay active, got %s", got.Status)
	}

	_, _, err = env.Engine.Dispatch(env.Ctx, engine.DispatchOptions{MissionID: m.ID, UnitID: "bty-a", Projectile: "HE", Charge: 3})
	if !errors.As(err, &gv) {
		t.Fatalf("expected double dispatch to be a guard violation, got %v", err)
	}
}

func TestRejectAuthorityAndReason(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	m := env.request(t, "")

	if _, err := env.Engine.Reject(env.Ctx, m.ID, "op-a", "  "); !errors.Is(err, engine.ErrReasonRequired) {
		t.Fatalf("expected reason required, got %v", err)
	}
	var fb *engine.ForbiddenError
	if _, err := env.Engine.Reject(env.Ctx, m.ID, "op-b", "busy"); !errors.As(err, &fb) {
		t.Fatalf("expected other unit operator to be refused, got %v", err)
	}
	m, err := env.Engine.Reject(env.Ctx, m.ID, "cdr-a", "friendlies near target")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if m.Status != domain.StatusRejected || m.Reason == nil || *m.Reason != "friendlies near target" {
		t.Fatalf("unexpected rejection %+v", m)
	}

	m, err = env.Engine.Cancel(env.Ctx, m.ID, "fo-1", "")
	if err != nil || m.Status != domain.StatusCancelled {
		t.Fatalf("cancel: %v", err)
	}
}

func TestRejectWithoutUnitNeedsAnyOperator(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	m, err := env.Repo.CreateMission(env.Ctx, domain.FireMission{RequesterID: "fo-1", Target: target}, "fo-1")
	if err != nil {
		t.Fatal(err)
	}
	var fb *engine.ForbiddenError
	if _, err := env.Engine.Reject(env.Ctx, m.ID, "fo-1", "no"); !errors.As(err, &fb) {
		t.Fatalf("expected observer to be refused, got %v", err)
	}
	if _, err := env.Engine.Reject(env.Ctx, m.ID, "op-b", "no"); err != nil {
		t.Fatalf("expected any operator to reject: %v", err)
	}
}

func TestDispatchChecks(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	m := env.request(t, "mort-b")

	if _, _, err := env.Engine.Dispatch(env.Ctx, engine.DispatchOptions{MissionID: m.ID, UnitID: "bty-a", Projectile: "HE", Charge: 3}); !errors.Is(err, engine.ErrUnitMismatch) {
		t.Fatalf("expected unit mismatch, got %v", err)
	}

	var ce *ballistics.InvalidCalibrationError
	if _, _, err := env.Engine.Dispatch(env.Ctx, engine.DispatchOptions{MissionID: m.ID, UnitID: "mort-b", Projectile: "M931 HE", Charge: 7}); !errors.As(err, &ce) {
		t.Fatalf("expected invalid calibration, got %v", err)
	}

	// mort-b sits 800 m above the target, which drops the lay below the mortar floor.
	_, sol, err := env.Engine.Dispatch(env.Ctx, engine.DispatchOptions{MissionID: m.ID, UnitID: "mort-b", Projectile: "M931 HE", Charge: 1})
	var oe *ballistics.OutOfEnvelopeError
	if !errors.As(err, &oe) {
		t.Fatalf("expected out of envelope, got %v", err)
	}
	if sol.Status != ballistics.OutOfEnvelope {
		t.Fatalf("expected solution returned for display, got %+v", sol)
	}
	got, _ := env.Repo.GetMission(env.Ctx, m.ID)
	if got.Status != domain.StatusAssigned {
		t.Fatalf("expected mission to stay assigned, got %s", got.Status)
	}
}

func TestCancelGuards(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	m := env.request(t, "")
	m, _, err := env.Engine.Dispatch(env.Ctx, engine.DispatchOptions{MissionID: m.ID, UnitID: "bty-a", Projectile: "HE", Charge: 3})
	if err != nil {
		t.Fatal(err)
	}
	var gv *engine.GuardViolationError
	if _, err := env.Engine.Cancel(env.Ctx, m.ID, "fo-1", "changed mind"); !errors.As(err, &gv) {
		t.Fatalf("expected active mission cancel to be refused, got %v", err)
	}
}

func TestRefreshProjection(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	a := env.request(t, "")
	b := env.request(t, "")
	if _, err := env.Engine.Cancel(env.Ctx, b.ID, "fo-1", ""); err != nil {
		t.Fatal(err)
	}

	p, err := env.Engine.Refresh(env.Ctx)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(p.Missions) != 2 || len(p.Active) != 1 || p.Active[0].ID != a.ID {
		t.Fatalf("unexpected projection %+v", p)
	}
	if !p.RefreshedAt.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected refreshed_at %v", p.RefreshedAt)
	}
}

func TestMetricsCountOutcomes(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := engine.NewMetrics(provider.Meter("test"))
	if err != nil {
		t.Fatal(err)
	}
	env.Engine.Metrics = metrics

	m := env.request(t, "")
	_, _ = env.Engine.Complete(env.Ctx, m.ID, "cdr-a")

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(env.Ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != "fdc.mission.operations" {
				continue
			}
			sum, ok := md.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("unexpected data type %T", md.Data)
			}
			for _, dp := range sum.DataPoints {
				op, _ := dp.Attributes.Value("operation")
				outcome, _ := dp.Attributes.Value("outcome")
				counts[op.AsString()+"/"+outcome.AsString()] += dp.Value
			}
		}
	}
	if counts["request/ok"] != 1 || counts["complete/guard_violation"] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}
}
