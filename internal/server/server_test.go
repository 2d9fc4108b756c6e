package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"fdc/internal/config"
	"fdc/internal/db"
	"fdc/internal/domain"
	"fdc/internal/migrate"
	"fdc/internal/repo"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Repo   repo.Repo
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.New(conn)
	handler, err := New(Config{
		Repo:     r,
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: testSecret, AllowActorHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Repo:   r,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.Close)
	return ts
}

func as(actor string) map[string]string {
	return map[string]string{"X-Actor-Id": actor}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, data []byte) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v: %s", err, string(data))
	}
	return env
}

func seedDirectory(t *testing.T, srv *testServer) {
	t.Helper()
	client := srv.Client()
	units := []map[string]any{
		{
			"id":           "bty-a",
			"name":         "Alpha",
			"platform":     "howitzer_155",
			"location":     map[string]float64{"lat": 4.60, "lon": -74.08},
			"min_range":    2000,
			"max_range":    24000,
			"commander_id": "cdr-a",
			"operator_id":  "op-a",
			"ammunition":   []map[string]any{{"type": "HE", "quantity": 60}},
		},
		{
			"id":           "mort-b",
			"name":         "Bravo",
			"platform":     "mortar_120_m120",
			"location":     map[string]float64{"lat": 4.64, "lon": -74.08},
			"altitude":     800,
			"min_range":    500,
			"max_range":    7000,
			"commander_id": "cdr-b",
			"operator_id":  "op-b",
		},
	}
	for _, u := range units {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/units", u, as("admin"))
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("create unit status %d: %s", res.StatusCode, string(data))
		}
	}
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/observers", map[string]any{
		"id": "fo-1", "callsign": "Hawk", "location": map[string]float64{"lat": 4.60, "lon": -74.10},
	}, as("admin"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create observer status %d: %s", res.StatusCode, string(data))
	}
}

func callForFire(t *testing.T, srv *testServer) domain.FireMission {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/missions/request", map[string]any{
		"requester_id": "fo-1",
		"target":       map[string]float64{"lat": 4.65, "lon": -74.08},
	}, as("fo-1"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("request status %d: %s", res.StatusCode, string(data))
	}
	var m domain.FireMission
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal mission: %v", err)
	}
	return m
}

func TestMissionLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	seedDirectory(t, srv)
	client := srv.Client()

	m := callForFire(t, srv)
	if m.Status != domain.StatusAssigned || m.UnitID == nil || *m.UnitID != "bty-a" {
		t.Fatalf("expected assignment to bty-a, got %+v", m)
	}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/missions/"+m.ID+"/dispatch", map[string]any{
		"unit_id": "bty-a", "projectile": "HE", "charge": 3, "mrsi": true,
	}, as("op-a"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dispatch status %d: %s", res.StatusCode, string(data))
	}
	var dispatched DispatchResponse
	if err := json.Unmarshal(data, &dispatched); err != nil {
		t.Fatalf("unmarshal dispatch: %v", err)
	}
	if dispatched.Mission.Status != domain.StatusActive || dispatched.Mission.Fire == nil || !dispatched.Mission.Fire.MRSI {
		t.Fatalf("expected active mission with MRSI fire record, got %+v", dispatched.Mission)
	}
	if dispatched.Solution.MRSI == nil || len(dispatched.Solution.Trajectory.Points) != 101 {
		t.Fatalf("expected full solution in response")
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/missions/"+m.ID+"/complete", nil, as("op-a"))
	if res.StatusCode != http.StatusForbidden || decodeError(t, data).Error.Code != "forbidden" {
		t.Fatalf("expected operator completion to be forbidden, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/missions/"+m.ID+"/complete", nil, as("cdr-a"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/missions/"+m.ID+"/dispatch", map[string]any{
		"unit_id": "bty-a", "projectile": "HE", "charge": 3,
	}, as("op-a"))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected conflict on re-dispatch, got %d: %s", res.StatusCode, string(data))
	}
	env := decodeError(t, data)
	if env.Error.Code != "guard_violation" || env.Error.Details["from"] != domain.StatusCompleted {
		t.Fatalf("unexpected envelope %+v", env)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projection", nil, as("fo-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("projection status %d: %s", res.StatusCode, string(data))
	}
	var p struct {
		Missions []domain.FireMission `json:"missions"`
		Active   []domain.FireMission `json:"active"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal projection: %v", err)
	}
	if len(p.Missions) != 1 || len(p.Active) != 0 {
		t.Fatalf("expected one finished mission, got %d/%d", len(p.Missions), len(p.Active))
	}
}

func TestRejectRequiresReasonAndAuthority(t *testing.T) {
	srv := newTestServer(t)
	seedDirectory(t, srv)
	client := srv.Client()
	m := callForFire(t, srv)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/missions/"+m.ID+"/reject", map[string]any{"reason": "  "}, as("op-a"))
	if res.StatusCode != http.StatusBadRequest || decodeError(t, data).Error.Code != "reason_required" {
		t.Fatalf("expected reason_required, got %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/missions/"+m.ID+"/reject", map[string]any{"reason": "busy"}, as("op-b"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected forbidden for another unit's operator, got %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/missions/"+m.ID+"/reject", map[string]any{"reason": "busy"}, as("cdr-a"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("reject status %d: %s", res.StatusCode, string(data))
	}
	var rejected domain.FireMission
	if err := json.Unmarshal(data, &rejected); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rejected.Status != domain.StatusRejected || rejected.Reason == nil || *rejected.Reason != "busy" {
		t.Fatalf("unexpected rejected mission %+v", rejected)
	}
}

func TestRequestWithoutAssetsReturnsMission(t *testing.T) {
	srv := newTestServer(t)
	seedDirectory(t, srv)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/missions/request", map[string]any{
		"requester_id": "fo-1",
		"target":       map[string]float64{"lat": 5.60, "lon": -74.08},
	}, as("fo-1"))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected conflict, got %d: %s", res.StatusCode, string(data))
	}
	env := decodeError(t, data)
	if env.Error.Code != "no_assets_available" {
		t.Fatalf("unexpected code %s", env.Error.Code)
	}
	mission, ok := env.Error.Details["mission"].(map[string]any)
	if !ok || mission["status"] != domain.StatusNoAssetsAvailable {
		t.Fatalf("expected mission in details, got %+v", env.Error.Details)
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/missions/"+mission["id"].(string)+"/retry", nil, as("fo-1"))
	if res.StatusCode != http.StatusConflict || decodeError(t, data).Error.Code != "no_assets_available" {
		t.Fatalf("expected retry to stay without assets, got %d: %s", res.StatusCode, string(data))
	}
}

func TestStoreEndpointsEnforceExpectedStatus(t *testing.T) {
	srv := newTestServer(t)
	seedDirectory(t, srv)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/missions", map[string]any{
		"id": "m-1", "requester_id": "fo-1", "target": map[string]float64{"lat": 4.65, "lon": -74.08},
	}, as("fo-1"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/missions/m-1/assign", map[string]any{
		"unit_id": "mort-b", "expect_status": "requested",
	}, as("fo-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("assign status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/missions/m-1/status", map[string]any{
		"status": "cancelled", "expect_status": "requested",
	}, as("fo-1"))
	if res.StatusCode != http.StatusConflict || decodeError(t, data).Error.Code != "guard_violation" {
		t.Fatalf("expected stale expectation to conflict, got %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/missions/m-1/status", map[string]any{
		"status": "completed", "expect_status": "assigned",
	}, as("fo-1"))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected assigned->completed to conflict, got %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/missions/m-1/status", map[string]any{
		"status": "active", "expect_status": "assigned",
	}, as("op-b"))
	if res.StatusCode != http.StatusBadRequest || decodeError(t, data).Error.Code != "fire_record_required" {
		t.Fatalf("expected activation without a lay to be refused, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/missions?status=assigned", nil, as("fo-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var list MissionList
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(list.Items) != 1 || *list.Items[0].UnitID != "mort-b" {
		t.Fatalf("unexpected list %+v", list.Items)
	}

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/missions/missing", nil, as("fo-1"))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.StatusCode)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/requesters/mort-b", nil, as("fo-1"))
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), `"kind":"unit"`) {
		t.Fatalf("locate requester %d: %s", res.StatusCode, string(data))
	}
}

func TestSolutionEndpoint(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	body := map[string]any{
		"platform":   "HOWITZER_155",
		"gun":        map[string]float64{"lat": 4.60, "lon": -74.08},
		"target":     map[string]float64{"lat": 4.65, "lon": -74.08},
		"projectile": "HE",
		"charge":     3,
	}
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/solutions", body, as("fo-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("solution status %d: %s", res.StatusCode, string(data))
	}
	var sol SolutionResponse
	if err := json.Unmarshal(data, &sol); err != nil {
		t.Fatalf("unmarshal solution: %v", err)
	}
	if !sol.Dispatchable || !strings.HasPrefix(sol.TrajectoryWKT, "LINESTRING") || !strings.HasPrefix(sol.TargetWKT, "POINT") {
		t.Fatalf("unexpected solution response %+v", sol)
	}
	if sol.Solution.Elevation < 12 || sol.Apex.Altitude <= 0 {
		t.Fatalf("unexpected elevation %.2f or apex %+v", sol.Solution.Elevation, sol.Apex)
	}

	body["charge"] = 9
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/solutions", body, as("fo-1"))
	env := decodeError(t, data)
	if res.StatusCode != http.StatusUnprocessableEntity || env.Error.Code != "invalid_calibration" {
		t.Fatalf("expected invalid_calibration, got %d: %s", res.StatusCode, string(data))
	}
	if valid, ok := env.Error.Details["valid"].([]any); !ok || len(valid) == 0 {
		t.Fatalf("expected valid charges in details, got %+v", env.Error.Details)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/platforms", nil, as("fo-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("platforms status %d", res.StatusCode)
	}
	var platforms []map[string]any
	if err := json.Unmarshal(data, &platforms); err != nil {
		t.Fatalf("unmarshal platforms: %v", err)
	}
	if len(platforms) != 6 {
		t.Fatalf("expected 6 platforms, got %d", len(platforms))
	}
}

func TestAuthentication(t *testing.T) {
	srv := newTestServer(t)
	seedDirectory(t, srv)
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health should not need auth, got %d", res.StatusCode)
	}
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/missions", nil, nil)
	if res.StatusCode != http.StatusUnauthorized || decodeError(t, data).Error.Code != "unauthorized" {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"Authorization": "Bearer nope"})
	if res.StatusCode != http.StatusUnauthorized || decodeError(t, data).Error.Code != "invalid_credentials" {
		t.Fatalf("expected invalid_credentials, got %d: %s", res.StatusCode, string(data))
	}

	token, err := SignToken(testSecret, "cdr-a")
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"Authorization": "Bearer " + token})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(data))
	}
	var who WhoAmIResponse
	if err := json.Unmarshal(data, &who); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if who.ActorID != "cdr-a" || who.Source != "jwt" || len(who.Commands) != 1 || who.Commands[0] != "bty-a" {
		t.Fatalf("unexpected principal %+v", who)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/api-keys", map[string]any{"name": "fdc-tablet"}, map[string]string{"Authorization": "Bearer " + token})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create key status %d: %s", res.StatusCode, string(data))
	}
	var key APIKeyResponse
	if err := json.Unmarshal(data, &key); err != nil {
		t.Fatalf("unmarshal key: %v", err)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"X-Api-Key": key.Key})
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), `"source":"api_key"`) {
		t.Fatalf("api key auth %d: %s", res.StatusCode, string(data))
	}
}

func TestEventsPaginate(t *testing.T) {
	srv := newTestServer(t)
	seedDirectory(t, srv)
	callForFire(t, srv)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/events?limit=2", nil, as("fo-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	var page paginatedEvents
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(page.Items) != 2 || page.NextCursor == "" {
		t.Fatalf("expected a full first page with a cursor, got %+v", page)
	}

	var types []string
	cursor := page.NextCursor
	for cursor != "" {
		res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/events?limit=2&cursor="+cursor, nil, as("fo-1"))
		if res.StatusCode != http.StatusOK {
			t.Fatalf("events status %d: %s", res.StatusCode, string(data))
		}
		page = paginatedEvents{}
		if err := json.Unmarshal(data, &page); err != nil {
			t.Fatalf("unmarshal events: %v", err)
		}
		for _, e := range page.Items {
			types = append(types, e.Type)
		}
		cursor = page.NextCursor
	}
	// the first page held both unit.created events
	want := []string{"observer.created", "mission.created", "mission.assigned"}
	if strings.Join(types, ",") != strings.Join(want, ",") {
		t.Fatalf("expected %v after the first page, got %v", want, types)
	}

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/events?cursor=abc", nil, as("fo-1"))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad cursor, got %d", res.StatusCode)
	}
}

func TestRelayDeliversSignedEvents(t *testing.T) {
	srv := newTestServer(t)
	seedDirectory(t, srv)

	var (
		mu       sync.Mutex
		received []relayEvent
	)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if r.Header.Get("X-Fdc-Signature") != Sign("s3cret", body) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var evt relayEvent
		if err := json.Unmarshal(body, &evt); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		received = append(received, evt)
		mu.Unlock()
	}))
	defer hook.Close()

	cfg := config.Default()
	cfg.Relay.Webhooks = []config.Webhook{{ID: "c2", URL: hook.URL, Events: []string{"mission.assigned"}, Secret: "s3cret"}}
	relay := NewRelay(srv.Repo, cfg, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// directory events raised before the first pass are not replayed
	relay.DispatchAll(ctx)
	callForFire(t, srv)
	relay.DispatchAll(ctx)
	relay.DispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 || received[0].Type != "mission.assigned" || received[0].Payload == nil {
		t.Fatalf("expected one signed mission.assigned delivery, got %+v", received)
	}
}
