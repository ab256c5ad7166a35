package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"opsdeck/internal/aggregate"
	"opsdeck/internal/domain"
	"opsdeck/internal/engine"
)

func registerAuth(api huma.API, e engine.Engine, auth AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Log in and receive a session token",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*struct {
		Body LoginResponse `json:"body"`
	}, error) {
		u, err := e.Authenticate(ctx, input.Body.Username, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		token, err := issueToken(auth, u.ID, u.Username, u.Role)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LoginResponse `json:"body"`
		}{Body: LoginResponse{Token: token, Username: u.Username, Role: u.Role}}, nil
	})
}

func registerDashboard(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "dashboard",
		Method:      http.MethodGet,
		Path:        "/dashboard",
		Summary:     "Refresh the dashboard",
		Description: "Runs one aggregation, reconciliation and assembly cycle. Unreachable upstreams appear as empty widgets; the response is 200 whenever local storage is reachable.",
		Errors:      []int{http.StatusUnauthorized, http.StatusInternalServerError},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body aggregate.Payload `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		payload, err := e.Refresh(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body aggregate.Payload `json:"body"`
		}{Body: payload}, nil
	})
}

func registerChecklists(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-checklists",
		Method:      http.MethodGet,
		Path:        "/checklists",
		Summary:     "List onboarding checklists",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Checklist `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListChecklists(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Checklist{}
		}
		return &struct {
			Body []domain.Checklist `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-checklist",
		Method:      http.MethodGet,
		Path:        "/checklists/{checklist_id}",
		Summary:     "Get a checklist",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ChecklistID string `path:"checklist_id"`
	}) (*struct {
		Body domain.Checklist `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		c, err := e.Repo.GetChecklist(ctx, input.ChecklistID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Checklist `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-checklist",
		Method:        http.MethodPost,
		Path:          "/checklists",
		Summary:       "Create a checklist manually",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateChecklistRequest `json:"body"`
	}) (*struct {
		Body domain.Checklist `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		c, err := e.CreateChecklist(ctx, input.Body.EmployeeName, input.Body.TicketID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Checklist `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-checklist-item",
		Method:      http.MethodPatch,
		Path:        "/checklists/{checklist_id}/items/{item_id}",
		Summary:     "Update a checklist item's status",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ChecklistID string `path:"checklist_id"`
		ItemID      string `path:"item_id"`
		Body        UpdateItemRequest `json:"body"`
	}) (*struct {
		Body domain.Checklist `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		c, err := e.UpdateChecklistItem(ctx, input.ChecklistID, input.ItemID, input.Body.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Checklist `json:"body"`
		}{Body: c}, nil
	})
}

func registerServices(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-services",
		Method:      http.MethodGet,
		Path:        "/services",
		Summary:     "List configured integrations",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ServiceConfigResponse `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		configs, err := e.Repo.ActiveServiceConfigs(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]ServiceConfigResponse, 0, len(configs))
		for _, cfg := range configs {
			out = append(out, redactServiceConfig(cfg))
		}
		return &struct {
			Body []ServiceConfigResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-service",
		Method:      http.MethodGet,
		Path:        "/services/{service}",
		Summary:     "Get one integration config",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Service string `path:"service"`
	}) (*struct {
		Body ServiceConfigResponse `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		cfg, err := e.Repo.GetServiceConfig(ctx, input.Service)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ServiceConfigResponse `json:"body"`
		}{Body: redactServiceConfig(cfg)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "put-service",
		Method:      http.MethodPut,
		Path:        "/services/{service}",
		Summary:     "Create or update an integration config",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Service string `path:"service"`
		Body    PutServiceRequest `json:"body"`
	}) (*struct {
		Body ServiceConfigResponse `json:"body"`
	}, error) {
		if authErr := requireRole(ctx, "admin"); authErr != nil {
			return nil, authErr
		}
		if !isKnownService(input.Service) {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "unknown service identifier", map[string]any{"service": input.Service})
		}
		if input.Body.BaseURL == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "base_url is required", nil)
		}
		cfg := domain.ServiceConfig{
			Service:   input.Service,
			BaseURL:   input.Body.BaseURL,
			APIKey:    input.Body.APIKey,
			APISecret: input.Body.APISecret,
			Username:  input.Body.Username,
			Password:  input.Body.Password,
		}
		if err := e.Repo.UpsertServiceConfig(ctx, cfg); err != nil {
			return nil, handleError(err)
		}
		stored, err := e.Repo.GetServiceConfig(ctx, input.Service)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ServiceConfigResponse `json:"body"`
		}{Body: redactServiceConfig(stored)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-service",
		Method:      http.MethodDelete,
		Path:        "/services/{service}",
		Summary:     "Remove an integration config",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Service string `path:"service"`
	}) (*struct{}, error) {
		if authErr := requireRole(ctx, "admin"); authErr != nil {
			return nil, authErr
		}
		if err := e.Repo.DeleteServiceConfig(ctx, input.Service); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerTickets(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-ticket",
		Method:        http.MethodPost,
		Path:          "/tickets",
		Summary:       "Create a ticket in the PSA",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body CreateTicketRequest `json:"body"`
	}) (*struct {
		Body domain.Ticket `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		requester := input.Body.Requester
		if requester == "" {
			requester = p.Username
		}
		t, err := e.CreateTicket(ctx, input.Body.Title, input.Body.Description, requester)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Ticket `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-ticket",
		Method:      http.MethodPost,
		Path:        "/tickets/{display_id}/resolve",
		Summary:     "Resolve a ticket in the PSA",
		Errors:      []int{http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		DisplayID string `path:"display_id"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		if err := e.ResolveTicket(ctx, input.DisplayID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "resolved"}}, nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/apikeys",
		Summary:       "Mint an API key for the calling user",
		Description:   "The plaintext key appears only in this response; store it now. Requests may then authenticate with an X-Api-Key header instead of a Bearer token.",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if authErr := requireRole(ctx, "admin"); authErr != nil {
			return nil, authErr
		}
		key, plain, err := e.CreateAPIKey(ctx, p.UserID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: APIKeyResponse{ID: key.ID, Name: key.Name, Key: plain, CreatedAt: key.CreatedAt}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/apikeys",
		Summary:     "List API keys",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []APIKeyResponse `json:"body"`
	}, error) {
		if authErr := requireRole(ctx, "admin"); authErr != nil {
			return nil, authErr
		}
		keys, err := e.Repo.ListAPIKeys(ctx, "")
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]APIKeyResponse, 0, len(keys))
		for _, k := range keys {
			out = append(out, APIKeyResponse{ID: k.ID, Name: k.Name, CreatedAt: k.CreatedAt})
		}
		return &struct {
			Body []APIKeyResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-api-key",
		Method:      http.MethodDelete,
		Path:        "/apikeys/{key_id}",
		Summary:     "Revoke an API key",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct{}, error) {
		if authErr := requireRole(ctx, "admin"); authErr != nil {
			return nil, authErr
		}
		if err := e.Repo.DeleteAPIKey(ctx, input.KeyID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerPrefs(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-prefs",
		Method:      http.MethodGet,
		Path:        "/me/prefs",
		Summary:     "Get the caller's UI preferences",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body PrefsResponse `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		prefs, err := e.Repo.GetUserPrefs(ctx, p.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PrefsResponse `json:"body"`
		}{Body: PrefsResponse{Prefs: json.RawMessage(prefs.PrefsJSON), UpdatedAt: prefs.UpdatedAt}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "put-prefs",
		Method:      http.MethodPut,
		Path:        "/me/prefs",
		Summary:     "Replace the caller's UI preferences",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body PutPrefsRequest `json:"body"`
	}) (*struct {
		Body PrefsResponse `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if !json.Valid(input.Body.Prefs) {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "prefs must be a JSON object", nil)
		}
		if err := e.Repo.UpsertUserPrefs(ctx, p.UserID, string(input.Body.Prefs)); err != nil {
			return nil, handleError(err)
		}
		prefs, err := e.Repo.GetUserPrefs(ctx, p.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PrefsResponse `json:"body"`
		}{Body: PrefsResponse{Prefs: json.RawMessage(prefs.PrefsJSON), UpdatedAt: prefs.UpdatedAt}}, nil
	})
}

func isKnownService(service string) bool {
	for _, s := range domain.KnownServices {
		if s == service {
			return true
		}
	}
	return false
}
