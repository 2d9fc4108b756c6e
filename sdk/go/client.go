// Package fdcsdk is the Go client for the fdc mission service. A *Client satisfies
// the engine's MissionStore and Directory, so a local engine can drive missions held
// by a remote service.
package fdcsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fdc/internal/ballistics"
	"fdc/internal/domain"
	"fdc/internal/engine"
)

// ErrNotFound is the cause of a 404 response.
var ErrNotFound = errors.New("not found")

var (
	_ engine.MissionStore = (*Client)(nil)
	_ engine.Directory    = (*Client)(nil)
)

// Client is a minimal fdc HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	// ActorID is sent as X-Actor-Id when no credential is set.
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

// ErrorBody is the service's error envelope.
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// APIError wraps non-2xx responses. Guard violations and 404s unwrap to the matching
// typed error.
type APIError struct {
	StatusCode int
	Body       string
	Envelope   ErrorBody
	cause      error
}

func (e *APIError) Error() string {
	if e.Envelope.Message != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Envelope.Code, e.Envelope.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error { return e.cause }

// AsGuardViolation recovers the typed guard error from a service response.
func AsGuardViolation(err error) (*engine.GuardViolationError, bool) {
	var ge *engine.GuardViolationError
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

func newAPIError(status int, body []byte) *APIError {
	e := &APIError{StatusCode: status, Body: string(body)}
	var env struct {
		Error ErrorBody `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil {
		e.Envelope = env.Error
	}
	d := e.Envelope.Details
	switch {
	case e.Envelope.Code == "guard_violation":
		e.cause = &engine.GuardViolationError{
			MissionID: detail(d, "mission_id"),
			Operation: detail(d, "operation"),
			From:      detail(d, "from"),
			To:        detail(d, "to"),
		}
	case e.Envelope.Code == "forbidden":
		e.cause = &engine.ForbiddenError{Operation: detail(d, "operation"), Reason: e.Envelope.Message}
	case e.Envelope.Code == "reason_required":
		e.cause = engine.ErrReasonRequired
	case status == http.StatusNotFound:
		e.cause = ErrNotFound
	}
	return e
}

func detail(d map[string]any, key string) string {
	if s, ok := d[key].(string); ok {
		return s
	}
	return ""
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// Event is a mission or directory event with its decoded payload.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// Solution is a computed solution with its geometry in WKT.
type Solution struct {
	Solution      ballistics.FiringSolution  `json:"solution"`
	Dispatchable  bool                       `json:"dispatchable"`
	TrajectoryWKT string                     `json:"trajectory_wkt"`
	GunWKT        string                     `json:"gun_wkt"`
	TargetWKT     string                     `json:"target_wkt"`
	Apex          ballistics.TrajectoryPoint `json:"apex"`
}

// Health reports whether the service answers.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "health", "", nil, nil)
}

func (c *Client) ListMissions(ctx context.Context) ([]domain.FireMission, error) {
	var resp struct {
		Items []domain.FireMission `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "missions", "", nil, &resp)
	return resp.Items, err
}

func (c *Client) GetMission(ctx context.Context, id string) (domain.FireMission, error) {
	var resp domain.FireMission
	err := c.do(ctx, http.MethodGet, "missions/"+url.PathEscape(id), "", nil, &resp)
	return resp, err
}

func (c *Client) CreateMission(ctx context.Context, m domain.FireMission, actorID string) (domain.FireMission, error) {
	body := map[string]any{
		"requester_id": m.RequesterID,
		"target":       m.Target,
	}
	if m.ID != "" {
		body["id"] = m.ID
	}
	if m.TargetAltitude != 0 {
		body["target_altitude"] = m.TargetAltitude
	}
	if m.PreferredUnitID != nil {
		body["preferred_unit_id"] = *m.PreferredUnitID
	}
	if m.RequestedAt != "" {
		body["requested_at"] = m.RequestedAt
	}
	var resp domain.FireMission
	err := c.do(ctx, http.MethodPost, "missions", actorID, body, &resp)
	return resp, err
}

func (c *Client) AssignUnit(ctx context.Context, id, unitID, expect, actorID string) (domain.FireMission, error) {
	body := map[string]any{"unit_id": unitID, "expect_status": expect}
	var resp domain.FireMission
	err := c.do(ctx, http.MethodPut, "missions/"+url.PathEscape(id)+"/assign", actorID, body, &resp)
	return resp, err
}

func (c *Client) UpdateStatus(ctx context.Context, id string, u domain.StatusUpdate) (domain.FireMission, error) {
	var resp domain.FireMission
	err := c.do(ctx, http.MethodPut, "missions/"+url.PathEscape(id)+"/status", u.ActorID, u, &resp)
	return resp, err
}

func (c *Client) ListUnits(ctx context.Context) ([]domain.FiringUnit, error) {
	var resp struct {
		Items []domain.FiringUnit `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "units", "", nil, &resp)
	return resp.Items, err
}

func (c *Client) GetUnit(ctx context.Context, id string) (domain.FiringUnit, error) {
	var resp domain.FiringUnit
	err := c.do(ctx, http.MethodGet, "units/"+url.PathEscape(id), "", nil, &resp)
	return resp, err
}

// CreateUnit registers a firing unit.
func (c *Client) CreateUnit(ctx context.Context, u domain.FiringUnit) (domain.FiringUnit, error) {
	body := map[string]any{
		"id":        u.ID,
		"platform":  u.Platform,
		"location":  u.Location,
		"min_range": u.MinRange,
		"max_range": u.MaxRange,
	}
	if len(u.Ammunition) > 0 {
		body["ammunition"] = u.Ammunition
	}
	optional(body, "name", u.Name)
	optional(body, "status", u.Status)
	optional(body, "commander_id", u.CommanderID)
	optional(body, "operator_id", u.OperatorID)
	if u.Altitude != 0 {
		body["altitude"] = u.Altitude
	}
	var resp domain.FiringUnit
	err := c.do(ctx, http.MethodPost, "units", "", body, &resp)
	return resp, err
}

func (c *Client) ListObservers(ctx context.Context) ([]domain.Observer, error) {
	var resp struct {
		Items []domain.Observer `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "observers", "", nil, &resp)
	return resp.Items, err
}

// CreateObserver registers a forward observer.
func (c *Client) CreateObserver(ctx context.Context, o domain.Observer) (domain.Observer, error) {
	body := map[string]any{
		"id":       o.ID,
		"location": o.Location,
	}
	optional(body, "callsign", o.Callsign)
	optional(body, "status", o.Status)
	if o.UnitID != nil {
		body["unit_id"] = *o.UnitID
	}
	if o.Altitude != 0 {
		body["altitude"] = o.Altitude
	}
	var resp domain.Observer
	err := c.do(ctx, http.MethodPost, "observers", "", body, &resp)
	return resp, err
}

func optional(body map[string]any, key, value string) {
	if value != "" {
		body[key] = value
	}
}

func (c *Client) LocateRequester(ctx context.Context, id string) (domain.Requester, error) {
	var resp domain.Requester
	err := c.do(ctx, http.MethodGet, "requesters/"+url.PathEscape(id), "", nil, &resp)
	return resp, err
}

// Solve asks the service for a firing solution.
func (c *Client) Solve(ctx context.Context, req ballistics.SolutionRequest) (Solution, error) {
	var resp Solution
	err := c.do(ctx, http.MethodPost, "solutions", "", req, &resp)
	return resp, err
}

// Platforms lists the service's platform catalog.
func (c *Client) Platforms(ctx context.Context) ([]ballistics.PlatformInfo, error) {
	var resp []ballistics.PlatformInfo
	err := c.do(ctx, http.MethodGet, "platforms", "", nil, &resp)
	return resp, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, "", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint, actorID string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(endpoint), &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	case actorID != "":
		req.Header.Set("X-Actor-Id", actorID)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return newAPIError(resp.StatusCode, b)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) url(endpoint string) string {
	base := strings.TrimRight(c.BaseURL, "/")
	prefix := strings.Trim(c.BasePath, "/")
	if prefix != "" {
		base += "/" + prefix
	}
	return base + "/" + strings.TrimLeft(endpoint, "/")
}
