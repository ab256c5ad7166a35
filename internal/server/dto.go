package server

import (
	"encoding/json"

	"opsdeck/internal/domain"
)

type LoginRequest struct {
	Username string `json:"username" minLength:"1"`
	Password string `json:"password" minLength:"1"`
}

type LoginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type CreateChecklistRequest struct {
	EmployeeName string `json:"employee_name" minLength:"1"`
	TicketID     string `json:"ticket_id,omitempty"`
}

type UpdateItemRequest struct {
	Status string `json:"status" enum:"pending,completed,na"`
}

type PutServiceRequest struct {
	BaseURL   string `json:"base_url" minLength:"1"`
	APIKey    string `json:"api_key,omitempty"`
	APISecret string `json:"api_secret,omitempty"`
	Username  string `json:"username,omitempty"`
	Password  string `json:"password,omitempty"`
}

// ServiceConfigResponse redacts credentials; it reports only whether each
// secret field is set.
type ServiceConfigResponse struct {
	Service      string `json:"service"`
	BaseURL      string `json:"base_url"`
	HasAPIKey    bool   `json:"has_api_key"`
	HasAPISecret bool   `json:"has_api_secret"`
	Username     string `json:"username,omitempty"`
	HasPassword  bool   `json:"has_password"`
	UpdatedAt    string `json:"updated_at" format:"date-time"`
}

func redactServiceConfig(cfg domain.ServiceConfig) ServiceConfigResponse {
	return ServiceConfigResponse{
		Service:      cfg.Service,
		BaseURL:      cfg.BaseURL,
		HasAPIKey:    cfg.APIKey != "",
		HasAPISecret: cfg.APISecret != "",
		Username:     cfg.Username,
		HasPassword:  cfg.Password != "",
		UpdatedAt:    cfg.UpdatedAt,
	}
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

// APIKeyResponse carries the plaintext key only in the create response.
type APIKeyResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type CreateTicketRequest struct {
	Title       string `json:"title" minLength:"1"`
	Description string `json:"description,omitempty"`
	Requester   string `json:"requester,omitempty"`
}

type PutPrefsRequest struct {
	Prefs json.RawMessage `json:"prefs"`
}

type PrefsResponse struct {
	Prefs     json.RawMessage `json:"prefs"`
	UpdatedAt string          `json:"updated_at,omitempty" format:"date-time"`
}
