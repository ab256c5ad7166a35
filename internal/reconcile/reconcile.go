// Package reconcile derives onboarding-checklist transitions from the
// freshly fetched open-ticket set on each dashboard refresh.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"opsdeck/internal/domain"
	"opsdeck/internal/repo"
)

// newHirePattern matches qualifying ticket titles and captures the
// employee name.
var newHirePattern = regexp.MustCompile(`(?i)^new employee:\s*(.+?)\s*$`)

// OnboardingRequester is the automated identity that files new-hire
// tickets. Tickets from anyone else never trigger checklist creation.
const OnboardingRequester = "Onboarding Bot"

// Engine applies the two reconciliation rules per refresh: auto-create a
// checklist per qualifying new-hire ticket, and auto-complete checklists
// whose linked ticket left the open set.
type Engine struct {
	Repo repo.Repo
	Log  *slog.Logger
	Now  func() time.Time
}

func New(r repo.Repo, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{Repo: r, Log: log, Now: time.Now}
}

func (e *Engine) now() string {
	if e.Now != nil {
		return e.Now().UTC().Format(time.RFC3339)
	}
	return time.Now().UTC().Format(time.RFC3339)
}

// Reconcile runs both rules against the current open-ticket list.
// ticketsAvailable must be false when the ticketing fetch failed or the
// service is unconfigured; an absent list is never conflated with "all
// tickets closed", so auto-close is suppressed entirely for that cycle.
func (e *Engine) Reconcile(ctx context.Context, openTickets []domain.Ticket, ticketsAvailable bool) error {
	if !ticketsAvailable {
		e.Log.Debug("ticket data unavailable; skipping reconciliation")
		return nil
	}
	if err := e.autoCreate(ctx, openTickets); err != nil {
		return err
	}
	return e.autoClose(ctx, openTickets)
}

// autoCreate makes at most one checklist per distinct employee name
// extracted from qualifying tickets. Re-running against the same list is
// idempotent.
func (e *Engine) autoCreate(ctx context.Context, openTickets []domain.Ticket) error {
	seen := make(map[string]struct{})
	for _, t := range openTickets {
		if !strings.EqualFold(t.Requester, OnboardingRequester) {
			continue
		}
		m := newHirePattern.FindStringSubmatch(t.Title)
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		exists, err := e.Repo.ChecklistExistsForEmployee(ctx, name)
		if err != nil {
			return fmt.Errorf("checklist lookup for %q: %w", name, err)
		}
		if exists {
			continue
		}
		ticketID := t.DisplayID
		now := e.now()
		c := domain.Checklist{
			ID:           uuid.NewString(),
			EmployeeName: name,
			TicketID:     &ticketID,
			Status:       domain.ChecklistPending,
			Items:        DefaultItems(),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := e.Repo.InsertChecklist(ctx, c); err != nil {
			// A concurrent refresh may have created the checklist between
			// the existence check and the insert; that is the outcome we
			// wanted, not a failure.
			if errors.Is(err, repo.ErrDuplicate) {
				continue
			}
			return fmt.Errorf("create checklist for %q: %w", name, err)
		}
		e.Log.Info("checklist auto-created", "employee", name, "ticket", ticketID)
	}
	return nil
}

// autoClose completes every checklist whose linked ticket is no longer in
// the open set. A ticket closed externally means the workflow is presumed
// done.
func (e *Engine) autoClose(ctx context.Context, openTickets []domain.Ticket) error {
	open := make(map[string]struct{}, len(openTickets))
	for _, t := range openTickets {
		open[t.DisplayID] = struct{}{}
	}
	linked, err := e.Repo.ChecklistsWithTicket(ctx)
	if err != nil {
		return fmt.Errorf("list linked checklists: %w", err)
	}
	for _, c := range linked {
		if c.Status == domain.ChecklistCompleted || c.TicketID == nil {
			continue
		}
		if _, stillOpen := open[*c.TicketID]; stillOpen {
			continue
		}
		changed, err := e.Repo.CompleteChecklist(ctx, c.ID)
		if err != nil {
			return fmt.Errorf("complete checklist %s: %w", c.ID, err)
		}
		if changed {
			e.Log.Info("checklist auto-completed", "employee", c.EmployeeName, "ticket", *c.TicketID)
		}
	}
	return nil
}
