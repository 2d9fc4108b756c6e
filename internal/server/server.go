package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"fdc/internal/ballistics"
	"fdc/internal/domain"
	"fdc/internal/engine"
	"fdc/internal/events"
	"fdc/internal/repo"
	"fdc/internal/solver"
)

// Config for the HTTP API handler.
type Config struct {
	Repo     repo.Repo
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Logger   *slog.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"guard_violation"`
	Message string         `json:"message" example:"guard violation: cannot dispatch mission m-1 in status requested"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"from\":\"requested\"}"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the mission service.
func New(cfg Config) (http.Handler, error) {
	if cfg.Repo.DB == nil {
		return nil, errors.New("server: repo is required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	e := cfg.Engine
	if e.Store == nil {
		e.Store = cfg.Repo
	}
	if e.Directory == nil {
		e.Directory = cfg.Repo
	}
	if e.Solver == nil {
		s, err := solver.New(0, nil, solver.WithLogger(cfg.logger()))
		if err != nil {
			return nil, err
		}
		e.Solver = s
	}
	if e.Logger == nil {
		e.Logger = cfg.logger()
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = cfg.logger()
	}

	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema validation is a malformed request, not a ballistic refusal.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Repo))
	hcfg := huma.DefaultConfig("FDC Mission API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerMissions(group, cfg.Repo)
	registerWorkflow(group, e)
	registerDirectory(group, cfg.Repo)
	registerSolutions(group, e.Solver)
	registerEvents(group, cfg.Repo)
	registerMe(group, cfg.Repo)
	registerAPIKeys(group, cfg.Repo)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var (
		ge *engine.GuardViolationError
		ne *engine.NoAssetsAvailableError
		fe *engine.ForbiddenError
		ce *ballistics.InvalidCalibrationError
		oe *ballistics.OutOfEnvelopeError
		re *ballistics.RangeUnachievableError
	)
	switch {
	case errors.As(err, &ge):
		return newAPIError(http.StatusConflict, "guard_violation", err.Error(), map[string]any{
			"mission_id": ge.MissionID, "operation": ge.Operation, "from": ge.From, "to": ge.To,
		})
	case errors.As(err, &ne):
		return newAPIError(http.StatusConflict, "no_assets_available", err.Error(), map[string]any{
			"mission_id": ne.MissionID, "distance": ne.Distance, "considered": ne.Considered,
		})
	case errors.As(err, &fe):
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"operation": fe.Operation})
	case errors.As(err, &ce):
		return newAPIError(http.StatusUnprocessableEntity, "invalid_calibration", err.Error(), map[string]any{
			"projectile": ce.Projectile, "charge": ce.Charge, "valid": ce.Valid,
		})
	case errors.As(err, &oe):
		return newAPIError(http.StatusUnprocessableEntity, "out_of_envelope", err.Error(), map[string]any{
			"elevation": oe.Elevation, "min": oe.Min, "max": oe.Max,
		})
	case errors.As(err, &re):
		return newAPIError(http.StatusUnprocessableEntity, "range_unachievable", err.Error(), map[string]any{
			"distance": re.Distance, "max_range": re.MaxRange,
		})
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, repo.ErrFireRecordRequired):
		return newAPIError(http.StatusBadRequest, "fire_record_required", err.Error(), nil)
	case errors.Is(err, engine.ErrReasonRequired):
		return newAPIError(http.StatusBadRequest, "reason_required", err.Error(), nil)
	case errors.Is(err, engine.ErrUnitMismatch):
		return newAPIError(http.StatusConflict, "unit_mismatch", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid"),
		strings.Contains(lowered, "required"),
		strings.Contains(lowered, "out of range"),
		strings.Contains(lowered, "unknown platform"),
		strings.Contains(lowered, "must"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	case strings.Contains(lowered, "unique constraint"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "unprocessable"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Patch,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join("/", basePath, "health")
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Patch,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>FDC Mission API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

type missionBody struct {
	Body domain.FireMission `json:"body"`
}

type missionPath struct {
	ID string `path:"id"`
}

// registerMissions exposes the mission store itself. Remote engines drive missions
// through these endpoints; every change is conditional on the expected status.
func registerMissions(api huma.API, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID: "list-missions",
		Method:      http.MethodGet,
		Path:        "/missions",
		Summary:     "List missions",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status      string `query:"status"`
		UnitID      string `query:"unit_id"`
		RequesterID string `query:"requester_id"`
		Active      bool   `query:"active"`
	}) (*struct {
		Body MissionList `json:"body"`
	}, error) {
		if input.Status != "" && !domain.ValidStatus(input.Status) {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid status", map[string]any{"status": input.Status})
		}
		items, err := r.ListMissionsFiltered(ctx, repo.MissionFilter{
			Status:      input.Status,
			UnitID:      input.UnitID,
			RequesterID: input.RequesterID,
			ActiveOnly:  input.Active,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MissionList `json:"body"`
		}{Body: MissionList{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-mission",
		Method:        http.MethodPost,
		Path:          "/missions",
		Summary:       "Record a mission in requested status",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateMissionRequest `json:"body"`
	}) (*missionBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := r.CreateMission(ctx, domain.FireMission{
			ID:              input.Body.ID,
			RequesterID:     input.Body.RequesterID,
			Target:          input.Body.Target,
			TargetAltitude:  input.Body.TargetAltitude,
			Status:          domain.StatusRequested,
			PreferredUnitID: input.Body.PreferredUnitID,
			RequestedAt:     input.Body.RequestedAt,
		}, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &missionBody{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-mission",
		Method:      http.MethodGet,
		Path:        "/missions/{id}",
		Summary:     "Get mission",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *missionPath) (*missionBody, error) {
		m, err := r.GetMission(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &missionBody{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-mission-status",
		Method:      http.MethodPut,
		Path:        "/missions/{id}/status",
		Summary:     "Conditionally change mission status",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body domain.StatusUpdate `json:"body"`
	}) (*missionBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u := input.Body
		u.ActorID = actorID
		m, err := r.UpdateStatus(ctx, input.ID, u)
		if err != nil {
			return nil, handleError(err)
		}
		return &missionBody{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-mission",
		Method:      http.MethodPut,
		Path:        "/missions/{id}/assign",
		Summary:     "Attach a unit to a mission",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body AssignUnitRequest `json:"body"`
	}) (*missionBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := r.AssignUnit(ctx, input.ID, input.Body.UnitID, input.Body.ExpectStatus, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &missionBody{Body: m}, nil
	})
}

// registerWorkflow runs the engine server-side, as the authenticated actor.
func registerWorkflow(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "request-fire",
		Method:        http.MethodPost,
		Path:          "/missions/request",
		Summary:       "Call for fire and assign the first eligible unit",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CallForFireRequest `json:"body"`
	}) (*missionBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.Request(ctx, engine.RequestOptions{
			ID:              input.Body.ID,
			RequesterID:     input.Body.RequesterID,
			Target:          input.Body.Target,
			TargetAltitude:  input.Body.TargetAltitude,
			PreferredUnitID: input.Body.PreferredUnitID,
			ActorID:         actorID,
		})
		if err != nil {
			return nil, noAssetsWithMission(err, m)
		}
		return &missionBody{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "retry-mission",
		Method:      http.MethodPost,
		Path:        "/missions/{id}/retry",
		Summary:     "Repeat the unit search",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *missionPath) (*missionBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.Retry(ctx, input.ID, actorID)
		if err != nil {
			return nil, noAssetsWithMission(err, m)
		}
		return &missionBody{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reject-mission",
		Method:      http.MethodPost,
		Path:        "/missions/{id}/reject",
		Summary:     "Reject a mission",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body ReasonRequest `json:"body"`
	}) (*missionBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.Reject(ctx, input.ID, actorID, input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return &missionBody{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "dispatch-mission",
		Method:      http.MethodPost,
		Path:        "/missions/{id}/dispatch",
		Summary:     "Lay the assigned unit and fire",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID   string          `path:"id"`
		Body DispatchRequest `json:"body"`
	}) (*struct {
		Body DispatchResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, sol, err := e.Dispatch(ctx, engine.DispatchOptions{
			MissionID:   input.ID,
			UnitID:      input.Body.UnitID,
			Projectile:  input.Body.Projectile,
			Charge:      input.Body.Charge,
			Environment: input.Body.Environment,
			MRSI:        input.Body.MRSI,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DispatchResponse `json:"body"`
		}{Body: DispatchResponse{Mission: m, Solution: sol}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-mission",
		Method:      http.MethodPost,
		Path:        "/missions/{id}/complete",
		Summary:     "Confirm rounds complete",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *missionPath) (*missionBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.Complete(ctx, input.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &missionBody{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-mission",
		Method:      http.MethodPost,
		Path:        "/missions/{id}/cancel",
		Summary:     "Cancel a mission that has not fired",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body ReasonRequest `json:"body" required:"false"`
	}) (*missionBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.Cancel(ctx, input.ID, actorID, input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return &missionBody{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "projection",
		Method:      http.MethodGet,
		Path:        "/projection",
		Summary:     "Mission list with the active subset",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body engine.Projection `json:"body"`
	}, error) {
		p, err := e.Refresh(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		p.Missions = nonNilSlice(p.Missions)
		p.Active = nonNilSlice(p.Active)
		return &struct {
			Body engine.Projection `json:"body"`
		}{Body: p}, nil
	})
}

// noAssetsWithMission carries the mission created before the unit search failed.
func noAssetsWithMission(err error, m domain.FireMission) huma.StatusError {
	se := handleError(err)
	var ne *engine.NoAssetsAvailableError
	if errors.As(err, &ne) {
		if ae, ok := se.(*apiError); ok {
			ae.Body.Details["mission"] = m
		}
	}
	return se
}

func registerDirectory(api huma.API, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID: "list-units",
		Method:      http.MethodGet,
		Path:        "/units",
		Summary:     "List firing units in declared order",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body UnitList `json:"body"`
	}, error) {
		items, err := r.ListUnits(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UnitList `json:"body"`
		}{Body: UnitList{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-unit",
		Method:      http.MethodGet,
		Path:        "/units/{id}",
		Summary:     "Get firing unit",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.FiringUnit `json:"body"`
	}, error) {
		u, err := r.GetUnit(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.FiringUnit `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-unit",
		Method:        http.MethodPost,
		Path:          "/units",
		Summary:       "Register a firing unit",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateUnitRequest `json:"body"`
	}) (*struct {
		Body domain.FiringUnit `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := r.CreateUnit(ctx, unitFromRequest(input.Body), actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.FiringUnit `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-observers",
		Method:      http.MethodGet,
		Path:        "/observers",
		Summary:     "List forward observers",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ObserverList `json:"body"`
	}, error) {
		items, err := r.ListObservers(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ObserverList `json:"body"`
		}{Body: ObserverList{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-observer",
		Method:        http.MethodPost,
		Path:          "/observers",
		Summary:       "Register a forward observer",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateObserverRequest `json:"body"`
	}) (*struct {
		Body domain.Observer `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := r.CreateObserver(ctx, observerFromRequest(input.Body), actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Observer `json:"body"`
		}{Body: o}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "locate-requester",
		Method:      http.MethodGet,
		Path:        "/requesters/{id}",
		Summary:     "Resolve an observer or unit position",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Requester `json:"body"`
	}, error) {
		req, err := r.LocateRequester(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Requester `json:"body"`
		}{Body: req}, nil
	})
}

func registerSolutions(api huma.API, s engine.Solver) {
	huma.Register(api, huma.Operation{
		OperationID: "list-platforms",
		Method:      http.MethodGet,
		Path:        "/platforms",
		Summary:     "Platforms with their projectiles and charges",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ballistics.PlatformInfo `json:"body"`
	}, error) {
		return &struct {
			Body []ballistics.PlatformInfo `json:"body"`
		}{Body: ballistics.Catalog()}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "compute-solution",
		Method:      http.MethodPost,
		Path:        "/solutions",
		Summary:     "Compute a firing solution",
		Errors:      []int{http.StatusBadRequest, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body ballistics.SolutionRequest `json:"body"`
	}) (*struct {
		Body SolutionResponse `json:"body"`
	}, error) {
		req := input.Body
		platform, err := ballistics.ParsePlatform(string(req.Platform))
		if err != nil {
			return nil, handleError(err)
		}
		req.Platform = platform
		sol, err := s.Solve(ctx, req)
		if err != nil {
			return nil, handleError(err)
		}
		_, apex := sol.Trajectory.Apex()
		arc, err := sol.Trajectory.LineString()
		if err != nil {
			return nil, handleError(err)
		}
		gun, err := req.Gun.Geom()
		if err != nil {
			return nil, handleError(err)
		}
		tgt, err := req.Target.Geom()
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SolutionResponse `json:"body"`
		}{Body: SolutionResponse{
			Solution:      sol,
			Dispatchable:  sol.Dispatchable() == nil,
			TrajectoryWKT: arc.AsText(),
			GunWKT:        gun.AsText(),
			TargetWKT:     tgt.AsText(),
			Apex:          apex,
		}}, nil
	})
}

func registerEvents(api huma.API, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List events after a cursor",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type     string `query:"type"`
		EntityID string `query:"entity_id"`
		Limit    int    `query:"limit" default:"50"`
		Cursor   string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil || parsed < 0 {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := r.ListEvents(ctx, events.Filter{
			Type:     input.Type,
			EntityID: input.EntityID,
			AfterID:  cursorID,
			Limit:    limit + 1,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			items = items[:limit]
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerMe(api huma.API, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current actor and the units it answers for",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		units, err := r.ListUnits(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		who := WhoAmIResponse{ActorID: principal.ActorID, Source: principal.Source, Commands: []string{}, Operates: []string{}}
		for _, u := range units {
			if u.CommanderID == principal.ActorID {
				who.Commands = append(who.Commands, u.ID)
			}
			if u.OperatorID == principal.ActorID {
				who.Operates = append(who.Operates, u.ID)
			}
		}
		if _, err := r.GetObserver(ctx, principal.ActorID); err == nil {
			who.Observer = true
		} else if !errors.Is(err, repo.ErrNotFound) {
			return nil, handleError(err)
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: who}, nil
	})
}

func registerAPIKeys(api huma.API, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/api-keys",
		Summary:       "Issue an API key for the current actor",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body" required:"false"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		key, plain, err := r.CreateAPIKey(ctx, actorID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: APIKeyResponse{APIKey: key, Key: plain}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/api-keys",
		Summary:     "List the current actor's API keys",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body APIKeyList `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		keys, err := r.ListAPIKeys(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body APIKeyList `json:"body"`
		}{Body: APIKeyList{Items: nonNilSlice(keys)}}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
