package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"vintner/internal/domain"
	"vintner/internal/engine"
	"vintner/internal/repo"
	"vintner/internal/work"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_cancellable"`
	Message string         `json:"message" example:"activity is not cancellable"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Vintner API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Vintner API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerGames(group, cfg.Engine)
	registerVineyards(group, cfg.Engine)
	registerCellar(group, cfg.Engine)
	registerStaff(group, cfg.Engine)
	registerFinance(group, cfg.Engine)
	registerActivities(group, cfg.Engine)
	registerEstimates(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
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
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, engine.ErrNotCancellable) {
		return newAPIError(http.StatusConflict, "not_cancellable", err.Error(), nil)
	}
	if errors.Is(err, engine.ErrInvalidActivity) {
		return newAPIError(http.StatusBadRequest, "invalid_activity", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "insufficient cash"):
		return newAPIError(http.StatusConflict, "insufficient_funds", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
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
		return "validation_failed"
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
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
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
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
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
    <title>Vintner API Docs</title>
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
      Authenticate with Authorization: Bearer &lt;token&gt;.
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

type gamePath struct {
	GameID string `path:"game_id"`
}

func registerGames(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-game",
		Method:        http.MethodPost,
		Path:          "/games",
		Summary:       "Create game",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateGameRequest `json:"body"`
	}) (*struct {
		Body domain.Game `json:"body"`
	}, error) {
		if authErr := requireAuth(ctx); authErr != nil {
			return nil, authErr
		}
		if input.Body.ID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "id is required", nil)
		}
		g, err := e.NewGame(ctx, input.Body.ID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Game `json:"body"`
		}{Body: g}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-games",
		Method:      http.MethodGet,
		Path:        "/games",
		Summary:     "List games",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Game `json:"body"`
	}, error) {
		items, err := e.Repo.ListGames(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Game `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-game",
		Method:      http.MethodGet,
		Path:        "/games/{game_id}",
		Summary:     "Get game",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *gamePath) (*struct {
		Body domain.Game `json:"body"`
	}, error) {
		g, err := e.Repo.GetGame(ctx, input.GameID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Game `json:"body"`
		}{Body: g}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "game-status",
		Method:      http.MethodGet,
		Path:        "/games/{game_id}/status",
		Summary:     "Game scoreboard",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *gamePath) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		g, err := e.Repo.GetGame(ctx, input.GameID)
		if err != nil {
			return nil, handleError(err)
		}
		staff, err := e.Repo.ListStaff(ctx, g.ID)
		if err != nil {
			return nil, handleError(err)
		}
		activities, err := e.Repo.ListActivities(ctx, g.ID)
		if err != nil {
			return nil, handleError(err)
		}
		vineyards, err := e.Repo.ListVineyards(ctx, g.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: map[string]any{
			"game_id":    g.ID,
			"week":       g.Week,
			"season":     g.Season,
			"year":       g.Year,
			"cash":       g.Cash,
			"prestige":   g.Prestige,
			"staff":      len(staff),
			"activities": len(activities),
			"vineyards":  len(vineyards),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "advance-game",
		Method:      http.MethodPost,
		Path:        "/games/{game_id}/advance",
		Summary:     "Advance the game clock by one or more weeks",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		GameID string         `path:"game_id"`
		Body   AdvanceRequest `json:"body"`
	}) (*struct {
		Body []engine.TickReport `json:"body"`
	}, error) {
		if authErr := requireAuth(ctx); authErr != nil {
			return nil, authErr
		}
		weeks := input.Body.Weeks
		if weeks == 0 {
			weeks = 1
		}
		var reports []engine.TickReport
		for i := 0; i < weeks; i++ {
			rep, err := e.AdvanceWeek(ctx, input.GameID)
			if err != nil {
				return nil, handleError(err)
			}
			reports = append(reports, rep)
		}
		return &struct {
			Body []engine.TickReport `json:"body"`
		}{Body: reports}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-game-config",
		Method:      http.MethodGet,
		Path:        "/games/{game_id}/config",
		Summary:     "Get game config",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *gamePath) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		cfg, err := e.Repo.GetGameConfig(ctx, input.GameID)
		if err != nil {
			return nil, handleError(err)
		}
		// round-trip through JSON for a stable wire shape
		raw, err := json.Marshal(cfg)
		if err != nil {
			return nil, handleError(err)
		}
		var out map[string]any
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: out}, nil
	})
}

func registerVineyards(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "buy-vineyard",
		Method:        http.MethodPost,
		Path:          "/games/{game_id}/vineyards",
		Summary:       "Buy a vineyard",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		GameID string             `path:"game_id"`
		Body   BuyVineyardRequest `json:"body"`
	}) (*struct {
		Body domain.Vineyard `json:"body"`
	}, error) {
		if authErr := requireAuth(ctx); authErr != nil {
			return nil, authErr
		}
		v, err := e.BuyVineyard(ctx, input.GameID, input.Body.Name, input.Body.Acres, input.Body.Altitude, input.Body.Price)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Vineyard `json:"body"`
		}{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-vineyards",
		Method:      http.MethodGet,
		Path:        "/games/{game_id}/vineyards",
		Summary:     "List vineyards",
	}, func(ctx context.Context, input *gamePath) (*struct {
		Body []domain.Vineyard `json:"body"`
	}, error) {
		items, err := e.Repo.ListVineyards(ctx, input.GameID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Vineyard `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-vineyard",
		Method:      http.MethodGet,
		Path:        "/games/{game_id}/vineyards/{vineyard_id}",
		Summary:     "Get vineyard",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		GameID     string `path:"game_id"`
		VineyardID string `path:"vineyard_id"`
	}) (*struct {
		Body domain.Vineyard `json:"body"`
	}, error) {
		v, err := e.Repo.GetVineyard(ctx, input.VineyardID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Vineyard `json:"body"`
		}{Body: v}, nil
	})

	type vineyardActivity struct {
		Body domain.Activity `json:"body"`
	}

	huma.Register(api, huma.Operation{
		OperationID:   "plant-vineyard",
		Method:        http.MethodPost,
		Path:          "/games/{game_id}/vineyards/{vineyard_id}/plant",
		Summary:       "Start planting",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		GameID     string       `path:"game_id"`
		VineyardID string       `path:"vineyard_id"`
		Body       PlantRequest `json:"body"`
	}) (*vineyardActivity, error) {
		if authErr := requireAuth(ctx); authErr != nil {
			return nil, authErr
		}
		a, err := e.StartPlanting(ctx, input.GameID, input.VineyardID, input.Body.Grape, input.Body.Density, input.Body.Fragility)
		if err != nil {
			return nil, handleError(err)
		}
		return &vineyardActivity{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "harvest-vineyard",
		Method:        http.MethodPost,
		Path:          "/games/{game_id}/vineyards/{vineyard_id}/harvest",
		Summary:       "Start harvesting",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		GameID     string         `path:"game_id"`
		VineyardID string         `path:"vineyard_id"`
		Body       HarvestRequest `json:"body"`
	}) (*vineyardActivity, error) {
		if authErr := requireAuth(ctx); authErr != nil {
			return nil, authErr
		}
		a, err := e.StartHarvest(ctx, input.GameID, input.VineyardID, input.Body.Fragility)
		if err != nil {
			return nil, handleError(err)
		}
		return &vineyardActivity{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "clear-vineyard",
		Method:        http.MethodPost,
		Path:          "/games/{game_id}/vineyards/{vineyard_id}/clear",
		Summary:       "Start clearing",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		GameID     string `path:"game_id"`
		VineyardID string `path:"vineyard_id"`
	}) (*vineyardActivity, error) {
		if authErr := requireAuth(ctx); authErr != nil {
			return nil, authErr
		}
		a, err := e.StartClearing(ctx, input.GameID, input.VineyardID)
		if err != nil {
			return nil, handleError(err)
		}
		return &vineyardActivity{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "uproot-vineyard",
		Method:        http.MethodPost,
		Path:          "/games/{game_id}/vineyards/{vineyard_id}/uproot",
		Summary:       "Start uprooting",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		GameID     string `path:"game_id"`
		VineyardID string `path:"vineyard_id"`
	}) (*vineyardActivity, error) {
		if authErr := requireAuth(ctx); authErr != nil {
			return nil, authErr
		}
		a, err := e.StartUprooting(ctx, input.GameID, input.VineyardID)
		if err != nil {
			return nil, handleError(err)
		}
		return &vineyardActivity{Body: a}, nil
	})
}

func registerCellar(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-batches",
		Method:      http.MethodGet,
		Path:        "/games/{game_id}/batches",
		Summary:     "List wine batches",
	}, func(ctx context.Context, input *gamePath) (*struct {
		Body []domain.WineBatch `json:"body"`
	}, error) {
		items, err := e.Repo.ListBatches(ctx, input.GameID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.WineBatch `json:"body"`
		}{Body: items}, nil
	})

	type batchActivity struct {
		Body domain.Activity `json:"body"`
	}

	huma.Register(api, huma.Operation{
		OperationID:   "crush-batch",
		Method:        http.MethodPost,
		Path:          "/games/{game_id}/batches/{batch_id}/crush",
		Summary:       "Start crushing",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		GameID  string `path:"game_id"`
		BatchID string `path:"batch_id"`
	}) (*batchActivity, error) {
		if authErr := requireAuth(ctx); authErr != nil {
			return nil, authErr
		}
		a, err := e.StartCrushing(ctx, input.GameID, input.BatchID)
		if err != nil {
			return nil, handleError(err)
		}
		return &batchActivity{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "ferment-batch",
		Method:        http.MethodPost,
		Path:          "/games/{game_id}/batches/{batch_id}/ferment",
		Summary:       "Start fermentation",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		GameID  string `path:"game_id"`
		BatchID string `path:"batch_id"`
	}) (*batchActivity, error) {
		if authErr := requireAuth(ctx); authErr != nil {
			return nil, authErr
		}
		a, err := e.StartFermentation(ctx, input.GameID, input.BatchID)
		if err != nil {
			return nil, handleError(err)
		}
		return &batchActivity{Body: a}, nil
	})
}

func registerStaff(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-staff",
		Method:      http.MethodGet,
		Path:        "/games/{game_id}/staff",
		Summary:     "List staff",
	}, func(ctx context.Context, input *gamePath) (*struct {
		Body []domain.Staff `json:"body"`
	}, error) {
		items, err := e.Repo.ListStaff(ctx, input.GameID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Staff `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-candidates",
		Method:      http.MethodGet,
		Path:        "/games/{game_id}/candidates",
		Summary:     "List candidates",
	}, func(ctx context.Context, input *gamePath) (*struct {
		Body []domain.Candidate `json:"body"`
	}, error) {
		items, err := e.Repo.ListCandidates(ctx, input.GameID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Candidate `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "start-staff-search",
		Method:        http.MethodPost,
		Path:          "/games/{game_id}/staff/search",
		Summary:       "Start a staff search",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		GameID string             `path:"game_id"`
		Body   StaffSearchRequest `json:"body"`
	}) (*struct {
		Body domain.Activity `json:"body"`
	}, error) {
		if authErr := requireAuth(ctx); authErr != nil {
			return nil, authErr
		}
		a, err := e.StartStaffSearch(ctx, input.GameID, input.Body.Candidates, input.Body.SkillLevel)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Activity `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "hire-candidate",
		Method:        http.MethodPost,
		Path:          "/games/{game_id}/candidates/{candidate_id}/hire",
		Summary:       "Start hiring paperwork",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		GameID      string `path:"game_id"`
		CandidateID string `path:"candidate_id"`
	}) (*struct {
		Body domain.Activity `json:"body"`
	}, error) {
		if authErr := requireAuth(ctx); authErr != nil {
			return nil, authErr
		}
		a, err := e.StartHiring(ctx, input.GameID, input.CandidateID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Activity `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "fire-staff",
		Method:      http.MethodDelete,
		Path:        "/games/{game_id}/staff/{staff_id}",
		Summary:     "Remove a staff member from the roster",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		GameID  string `path:"game_id"`
		StaffID string `path:"staff_id"`
	}) (*struct{}, error) {
		if authErr := requireAuth(ctx); authErr != nil {
			return nil, authErr
		}
		if _, err := e.Repo.GetStaff(ctx, input.StaffID); err != nil {
			return nil, handleError(err)
		}
		if err := e.Repo.DeleteStaff(ctx, input.StaffID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-staff",
		Method:      http.MethodPut,
		Path:        "/games/{game_id}/activities/{activity_id}/assignments/{staff_id}",
		Summary:     "Assign staff to an activity",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		GameID     string `path:"game_id"`
		ActivityID string `path:"activity_id"`
		StaffID    string `path:"staff_id"`
	}) (*struct{}, error) {
		if authErr := requireAuth(ctx); authErr != nil {
			return nil, authErr
		}
		if err := e.AssignStaff(ctx, input.ActivityID, input.StaffID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "unassign-staff",
		Method:      http.MethodDelete,
		Path:        "/games/{game_id}/activities/{activity_id}/assignments/{staff_id}",
		Summary:     "Remove staff from an activity",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		GameID     string `path:"game_id"`
		ActivityID string `path:"activity_id"`
		StaffID    string `path:"staff_id"`
	}) (*struct{}, error) {
		if authErr := requireAuth(ctx); authErr != nil {
			return nil, authErr
		}
		if err := e.UnassignStaff(ctx, input.ActivityID, input.StaffID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerFinance(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-transactions",
		Method:      http.MethodGet,
		Path:        "/games/{game_id}/transactions",
		Summary:     "List recent transactions",
	}, func(ctx context.Context, input *struct {
		GameID string `path:"game_id"`
		Limit  int    `query:"limit" default:"20"`
	}) (*struct {
		Body []domain.Transaction `json:"body"`
	}, error) {
		items, err := e.Repo.ListTransactions(ctx, input.GameID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Transaction `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "start-lender-search",
		Method:        http.MethodPost,
		Path:          "/games/{game_id}/loans/search",
		Summary:       "Start a lender search",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		GameID string              `path:"game_id"`
		Body   LenderSearchRequest `json:"body"`
	}) (*struct {
		Body domain.Activity `json:"body"`
	}, error) {
		if authErr := requireAuth(ctx); authErr != nil {
			return nil, authErr
		}
		a, err := e.StartLenderSearch(ctx, input.GameID, input.Body.Amount)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Activity `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-loan-offers",
		Method:      http.MethodGet,
		Path:        "/games/{game_id}/loans/offers",
		Summary:     "List loan offers",
	}, func(ctx context.Context, input *gamePath) (*struct {
		Body []domain.LoanOffer `json:"body"`
	}, error) {
		items, err := e.Repo.ListLoanOffers(ctx, input.GameID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.LoanOffer `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "take-loan",
		Method:        http.MethodPost,
		Path:          "/games/{game_id}/loans/offers/{offer_id}/take",
		Summary:       "Take a loan offer",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		GameID  string `path:"game_id"`
		OfferID string `path:"offer_id"`
	}) (*struct {
		Body domain.Loan `json:"body"`
	}, error) {
		if authErr := requireAuth(ctx); authErr != nil {
			return nil, authErr
		}
		l, err := e.TakeLoan(ctx, input.GameID, input.OfferID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Loan `json:"body"`
		}{Body: l}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-loans",
		Method:      http.MethodGet,
		Path:        "/games/{game_id}/loans",
		Summary:     "List active loans",
	}, func(ctx context.Context, input *gamePath) (*struct {
		Body []domain.Loan `json:"body"`
	}, error) {
		items, err := e.Repo.ListLoans(ctx, input.GameID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Loan `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "start-bookkeeping",
		Method:        http.MethodPost,
		Path:          "/games/{game_id}/bookkeeping",
		Summary:       "Start a bookkeeping run",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *gamePath) (*struct {
		Body domain.Activity `json:"body"`
	}, error) {
		if authErr := requireAuth(ctx); authErr != nil {
			return nil, authErr
		}
		a, err := e.StartBookkeeping(ctx, input.GameID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Activity `json:"body"`
		}{Body: a}, nil
	})
}

func registerActivities(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-activities",
		Method:      http.MethodGet,
		Path:        "/games/{game_id}/activities",
		Summary:     "List in-flight activities",
	}, func(ctx context.Context, input *struct {
		GameID   string `path:"game_id"`
		TargetID string `query:"target_id"`
	}) (*struct {
		Body []domain.Activity `json:"body"`
	}, error) {
		var items []domain.Activity
		var err error
		if input.TargetID != "" {
			items, err = e.Repo.ListActivitiesByTarget(ctx, input.GameID, input.TargetID)
		} else {
			items, err = e.Repo.ListActivities(ctx, input.GameID)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Activity `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-activity",
		Method:      http.MethodGet,
		Path:        "/games/{game_id}/activities/{activity_id}",
		Summary:     "Get activity",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		GameID     string `path:"game_id"`
		ActivityID string `path:"activity_id"`
	}) (*struct {
		Body domain.Activity `json:"body"`
	}, error) {
		a, err := e.Repo.GetActivity(ctx, input.ActivityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Activity `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-activity",
		Method:      http.MethodDelete,
		Path:        "/games/{game_id}/activities/{activity_id}",
		Summary:     "Cancel activity",
		Errors:      []int{http.StatusConflict, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		GameID     string `path:"game_id"`
		ActivityID string `path:"activity_id"`
	}) (*struct{}, error) {
		if authErr := requireAuth(ctx); authErr != nil {
			return nil, authErr
		}
		if err := e.CancelActivity(ctx, input.ActivityID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "retotal-activity",
		Method:      http.MethodPatch,
		Path:        "/games/{game_id}/activities/{activity_id}",
		Summary:     "Recompute total work before any is applied",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		GameID     string         `path:"game_id"`
		ActivityID string         `path:"activity_id"`
		Body       RetotalRequest `json:"body"`
	}) (*struct {
		Body domain.Activity `json:"body"`
	}, error) {
		if authErr := requireAuth(ctx); authErr != nil {
			return nil, authErr
		}
		a, err := e.RetotalActivity(ctx, input.ActivityID, input.Body.TotalWork)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Activity `json:"body"`
		}{Body: a}, nil
	})
}

func registerEstimates(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "estimate-work",
		Method:      http.MethodPost,
		Path:        "/games/{game_id}/estimates",
		Summary:     "Preview a work estimate without starting an activity",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		GameID string          `path:"game_id"`
		Body   EstimateRequest `json:"body"`
	}) (*struct {
		Body work.Estimate `json:"body"`
	}, error) {
		var est work.Estimate
		var err error
		switch domain.ActivityCategory(input.Body.Category) {
		case domain.CategoryPlanting:
			est, err = e.PreviewPlanting(ctx, input.Body.VineyardID, input.Body.Grape, input.Body.Density, input.Body.Fragility)
		case domain.CategoryHarvesting:
			est, err = e.PreviewHarvest(ctx, input.Body.VineyardID, input.Body.Fragility)
		case domain.CategoryClearing:
			est, err = e.PreviewClearing(ctx, input.Body.VineyardID)
		case domain.CategoryUprooting:
			est, err = e.PreviewUprooting(ctx, input.Body.VineyardID)
		case domain.CategoryCrushing:
			est, err = e.PreviewCrushing(ctx, input.Body.BatchID)
		case domain.CategoryFermentation:
			est, err = e.PreviewFermentation(ctx, input.Body.BatchID)
		case domain.CategoryStaffSearch:
			est = e.PreviewStaffSearch(input.Body.Candidates, input.Body.SkillLevel)
		case domain.CategoryAdministration:
			est, err = e.PreviewHiring(ctx, input.Body.CandidateID)
		case domain.CategoryLenderSearch:
			est = e.PreviewLenderSearch(input.Body.Amount)
		case domain.CategoryBookkeeping:
			est, err = e.PreviewBookkeeping(ctx, input.GameID)
		default:
			return nil, newAPIError(http.StatusBadRequest, "bad_request", fmt.Sprintf("unknown category %q", input.Body.Category), nil)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body work.Estimate `json:"body"`
		}{Body: est}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/games/{game_id}/events",
		Summary:     "Tail the event log",
	}, func(ctx context.Context, input *struct {
		GameID     string `path:"game_id"`
		Limit      int    `query:"limit" default:"20"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		items, err := e.Repo.LatestEvents(ctx, input.Limit, input.GameID, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: items}, nil
	})
}
