// Package engine composes the credential store, adapter registry, fan-out
// orchestrator and reconciliation engine into the dashboard's operations.
package engine

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"opsdeck/internal/adapter"
	"opsdeck/internal/aggregate"
	"opsdeck/internal/config"
	"opsdeck/internal/domain"
	"opsdeck/internal/reconcile"
	"opsdeck/internal/repo"
	"opsdeck/internal/secrets"
)

type Engine struct {
	DB           *sql.DB
	Repo         repo.Repo
	Registry     *adapter.Registry
	Orchestrator *aggregate.Orchestrator
	Reconciler   *reconcile.Engine
	Config       *config.Config
	Log          *slog.Logger
	Now          func() time.Time
}

// New wires the engine from explicit dependencies; no module-level state.
func New(db *sql.DB, cfg *config.Config, box secrets.Box, log *slog.Logger) Engine {
	if log == nil {
		log = slog.Default()
	}
	r := repo.Repo{DB: db, Box: box}
	client := adapter.NewClient(cfg.AdapterTimeout(), cfg.MaxItems(), log)
	registry := adapter.NewRegistry(client)
	return Engine{
		DB:           db,
		Repo:         r,
		Registry:     registry,
		Orchestrator: aggregate.New(registry, cfg.OuterDeadline(), log),
		Reconciler:   reconcile.New(r, log),
		Config:       cfg,
		Log:          log,
		Now:          time.Now,
	}
}

func (e Engine) now() string {
	if e.Now != nil {
		return e.Now().UTC().Format(time.RFC3339)
	}
	return time.Now().UTC().Format(time.RFC3339)
}

// Refresh runs one aggregation + reconciliation + assembly cycle. Upstream
// failures degrade to empty widgets; only storage unavailability is fatal.
func (e Engine) Refresh(ctx context.Context) (aggregate.Payload, error) {
	configs, err := e.Repo.ActiveServiceConfigs(ctx)
	if err != nil {
		return aggregate.Payload{}, fmt.Errorf("read service configs: %w", err)
	}

	results := e.Orchestrator.Aggregate(ctx, configs)

	// Ticket data counts as available only when the ticketing fetch
	// actually produced a list this cycle.
	var openTickets []domain.Ticket
	ticketsAvailable := false
	if res, ok := results["ticketing"]; ok && res.OpenTickets != nil && res.Failure == "" {
		openTickets = res.OpenTickets.Items
		ticketsAvailable = true
	}
	if err := e.Reconciler.Reconcile(ctx, openTickets, ticketsAvailable); err != nil {
		return aggregate.Payload{}, fmt.Errorf("reconcile checklists: %w", err)
	}

	payload := aggregate.Assemble(results)
	checklists, err := e.Repo.ListChecklists(ctx)
	if err != nil {
		return aggregate.Payload{}, fmt.Errorf("list checklists: %w", err)
	}
	if checklists != nil {
		payload.Checklists = checklists
	}
	return payload, nil
}

// CreateChecklist starts a manual onboarding checklist with the default
// item template.
func (e Engine) CreateChecklist(ctx context.Context, employeeName string, ticketID string) (domain.Checklist, error) {
	if employeeName == "" {
		return domain.Checklist{}, errors.New("employee name is required")
	}
	exists, err := e.Repo.ChecklistExistsForEmployee(ctx, employeeName)
	if err != nil {
		return domain.Checklist{}, err
	}
	if exists {
		return domain.Checklist{}, fmt.Errorf("checklist already exists for %s", employeeName)
	}
	now := e.now()
	c := domain.Checklist{
		ID:           uuid.NewString(),
		EmployeeName: employeeName,
		Status:       domain.ChecklistPending,
		Items:        reconcile.DefaultItems(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if ticketID != "" {
		c.TicketID = &ticketID
	}
	if err := e.Repo.InsertChecklist(ctx, c); err != nil {
		return domain.Checklist{}, err
	}
	return c, nil
}

// UpdateChecklistItem sets one item's status and returns the checklist with
// its recomputed aggregate status.
func (e Engine) UpdateChecklistItem(ctx context.Context, checklistID, itemID, status string) (domain.Checklist, error) {
	switch status {
	case domain.ItemPending, domain.ItemCompleted, domain.ItemNA:
	default:
		return domain.Checklist{}, fmt.Errorf("invalid item status %q", status)
	}
	return e.Repo.UpdateChecklistItemStatus(ctx, checklistID, itemID, status)
}

// ticketingAdapter returns the concrete ticketing adapter and its decrypted
// config, or an error when the integration is not usable.
func (e Engine) ticketingAdapter(ctx context.Context) (*adapter.Ticketing, domain.ServiceConfig, error) {
	a, ok := e.Registry.Lookup("ticketing")
	if !ok {
		return nil, domain.ServiceConfig{}, errors.New("ticketing adapter not registered")
	}
	t, ok := a.(*adapter.Ticketing)
	if !ok {
		return nil, domain.ServiceConfig{}, errors.New("ticketing adapter has no mutation support")
	}
	cfg, err := e.Repo.GetServiceConfig(ctx, "ticketing")
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, domain.ServiceConfig{}, errors.New("ticketing service is not configured")
		}
		return nil, domain.ServiceConfig{}, err
	}
	if !t.ConfigComplete(cfg) {
		return nil, domain.ServiceConfig{}, errors.New("ticketing config is missing required fields")
	}
	return t, cfg, nil
}

// CreateTicket opens a ticket in the PSA. The new ticket becomes visible to
// the dashboard on the next refresh; no synchronous consistency is assumed.
func (e Engine) CreateTicket(ctx context.Context, title, description, requester string) (domain.Ticket, error) {
	if title == "" {
		return domain.Ticket{}, errors.New("title is required")
	}
	t, cfg, err := e.ticketingAdapter(ctx)
	if err != nil {
		return domain.Ticket{}, err
	}
	return t.CreateTicket(ctx, cfg, title, description, requester)
}

// ResolveTicket resolves a ticket in the PSA. Any linked checklist is
// auto-completed by reconciliation on a later refresh, which is the single
// close rule; no local state changes here.
func (e Engine) ResolveTicket(ctx context.Context, displayID string) error {
	t, cfg, err := e.ticketingAdapter(ctx)
	if err != nil {
		return err
	}
	return t.ResolveTicket(ctx, cfg, displayID)
}

// CreateUser registers a dashboard user with a bcrypt-hashed password.
func (e Engine) CreateUser(ctx context.Context, username, password, role string) (domain.User, error) {
	if username == "" || password == "" {
		return domain.User{}, errors.New("username and password are required")
	}
	if role == "" {
		role = "viewer"
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, err
	}
	u := domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    e.now(),
	}
	if err := e.Repo.InsertUser(ctx, u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// CreateAPIKey mints a machine credential tied to an existing user. The
// plaintext key is returned exactly once; only its digest is stored.
func (e Engine) CreateAPIKey(ctx context.Context, userID, name string) (domain.APIKey, string, error) {
	if _, err := e.Repo.GetUserByID(ctx, userID); err != nil {
		return domain.APIKey{}, "", err
	}
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return domain.APIKey{}, "", err
	}
	plain := "odk_" + hex.EncodeToString(raw)
	key := domain.APIKey{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(plain),
		CreatedAt: e.now(),
	}
	if err := e.Repo.InsertAPIKey(ctx, key); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, plain, nil
}

var ErrInvalidCredentials = errors.New("invalid credentials")

// Authenticate checks a username/password pair.
func (e Engine) Authenticate(ctx context.Context, username, password string) (domain.User, error) {
	u, err := e.Repo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return domain.User{}, ErrInvalidCredentials
	}
	return u, nil
}

// Bootstrap seeds the configured admin account when the user table is
// empty. Called explicitly at process start.
func (e Engine) Bootstrap(ctx context.Context) error {
	n, err := e.Repo.CountUsers(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if n > 0 {
		return nil
	}
	username := e.Config.Bootstrap.AdminUsername
	password := e.Config.Bootstrap.AdminPassword
	if username == "" || password == "" {
		return nil
	}
	if _, err := e.CreateUser(ctx, username, password, "admin"); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	e.Log.Info("bootstrap admin user created", "username", username)
	return nil
}
