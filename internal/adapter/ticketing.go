package adapter

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"opsdeck/internal/domain"
)

// terminalTicketStatuses are excluded from the open-ticket list. The open
// set is the sole input to checklist reconciliation.
var terminalTicketStatuses = map[string]struct{}{
	"closed":    {},
	"resolved":  {},
	"cancelled": {},
}

// Ticketing talks to the PSA service. Besides the read path it exposes
// create and resolve operations for the user-triggered ticket endpoints.
// Tickets and assets are independent sub-calls feeding separate widgets, so
// one failing degrades only its own widget.
type Ticketing struct {
	Client *Client
}

func (a *Ticketing) Service() string { return "ticketing" }

func (a *Ticketing) ConfigComplete(cfg domain.ServiceConfig) bool {
	return cfg.BaseURL != "" && cfg.APIKey != ""
}

func (a *Ticketing) headers(cfg domain.ServiceConfig) map[string]string {
	return map[string]string{"Authtoken": cfg.APIKey}
}

type psaTicketsBody struct {
	Tickets []struct {
		ID          string `json:"id"`
		DisplayID   string `json:"display_id"`
		Subject     string `json:"subject"`
		Status      struct{ Name string } `json:"status"`
		Requester   struct{ Name string } `json:"requester"`
		CreatedTime string `json:"created_time"`
	} `json:"tickets"`
	TotalCount int `json:"total_count"`
}

type psaAssetsBody struct {
	Assets []struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Type     struct{ Name string } `json:"product_type"`
		User     struct{ Name string } `json:"user"`
		State    string `json:"state"`
		LastSeen string `json:"last_updated_time"`
	} `json:"assets"`
	TotalCount int `json:"total_count"`
}

func (a *Ticketing) Fetch(ctx context.Context, cfg domain.ServiceConfig) Result {
	res := Result{}

	var tickets psaTicketsBody
	if err := a.Client.getJSON(ctx, cfg.BaseURL+"/api/v3/tickets", a.headers(cfg), &tickets); err != nil {
		a.Client.logger().Warn("ticketing tickets fetch failed", "error", err)
		res.OpenTickets = Skeleton[domain.Ticket](cfg.BaseURL)
		res.Failure = FailUpstream
	} else {
		w := &Widget[domain.Ticket]{SourceURL: cfg.BaseURL, Items: []domain.Ticket{}, TotalCount: tickets.TotalCount}
		for _, t := range tickets.Tickets {
			if _, terminal := terminalTicketStatuses[strings.ToLower(t.Status.Name)]; terminal {
				continue
			}
			if len(w.Items) >= a.Client.MaxItems {
				break
			}
			w.Items = append(w.Items, domain.Ticket{
				ID:          t.ID,
				DisplayID:   t.DisplayID,
				Title:       t.Subject,
				Status:      t.Status.Name,
				Requester:   t.Requester.Name,
				CreatedTime: t.CreatedTime,
				Link:        ticketLink(cfg.BaseURL, t.DisplayID),
			})
		}
		if w.TotalCount == 0 {
			w.TotalCount = len(w.Items)
		}
		res.OpenTickets = w
	}

	var assets psaAssetsBody
	if err := a.Client.getJSON(ctx, cfg.BaseURL+"/api/v3/assets", a.headers(cfg), &assets); err != nil {
		a.Client.logger().Warn("ticketing assets fetch failed", "error", err)
		res.Assets = Skeleton[domain.Asset](cfg.BaseURL)
	} else {
		w := &Widget[domain.Asset]{SourceURL: cfg.BaseURL, Items: []domain.Asset{}, TotalCount: assets.TotalCount}
		for _, as := range assets.Assets[:a.Client.cap(len(assets.Assets))] {
			w.Items = append(w.Items, domain.Asset{
				ID:       as.ID,
				Name:     as.Name,
				Type:     as.Type.Name,
				User:     as.User.Name,
				State:    as.State,
				LastSeen: as.LastSeen,
			})
		}
		if w.TotalCount == 0 {
			w.TotalCount = len(w.Items)
		}
		res.Assets = w
	}
	return res
}

// ticketLink re-derives the user-facing URL for a ticket.
func ticketLink(baseURL, displayID string) string {
	return fmt.Sprintf("%s/app/tickets/%s", strings.TrimRight(baseURL, "/"), url.PathEscape(displayID))
}

type createTicketBody struct {
	Ticket struct {
		ID        string `json:"id"`
		DisplayID string `json:"display_id"`
	} `json:"ticket"`
}

// CreateTicket opens a ticket in the PSA on behalf of a user. Unlike Fetch,
// mutations surface their errors to the caller.
func (a *Ticketing) CreateTicket(ctx context.Context, cfg domain.ServiceConfig, title, description, requester string) (domain.Ticket, error) {
	payload := map[string]any{
		"ticket": map[string]any{
			"subject":     title,
			"description": description,
			"requester":   map[string]string{"name": requester},
		},
	}
	var out createTicketBody
	if err := a.Client.postJSON(ctx, cfg.BaseURL+"/api/v3/tickets", a.headers(cfg), payload, &out); err != nil {
		return domain.Ticket{}, fmt.Errorf("create ticket: %w", err)
	}
	return domain.Ticket{
		ID:        out.Ticket.ID,
		DisplayID: out.Ticket.DisplayID,
		Title:     title,
		Status:    "Open",
		Requester: requester,
		Link:      ticketLink(cfg.BaseURL, out.Ticket.DisplayID),
	}, nil
}

// ResolveTicket marks a ticket resolved in the PSA.
func (a *Ticketing) ResolveTicket(ctx context.Context, cfg domain.ServiceConfig, displayID string) error {
	u := fmt.Sprintf("%s/api/v3/tickets/%s/resolve", strings.TrimRight(cfg.BaseURL, "/"), url.PathEscape(displayID))
	if err := a.Client.postJSON(ctx, u, a.headers(cfg), nil, nil); err != nil {
		return fmt.Errorf("resolve ticket %s: %w", displayID, err)
	}
	return nil
}
