package adapter

import (
	"context"
	"fmt"
	"strings"

	"opsdeck/internal/domain"
)

// BI talks to the business-intelligence service and lists embeddable
// dashboards for the reports widget.
type BI struct {
	Client *Client
}

func (a *BI) Service() string { return "bi" }

func (a *BI) ConfigComplete(cfg domain.ServiceConfig) bool {
	return cfg.BaseURL != "" && cfg.APIKey != ""
}

type biDashboardsBody struct {
	Data []struct {
		ID        int    `json:"id"`
		Name      string `json:"name"`
		UpdatedAt string `json:"updated_at"`
	} `json:"data"`
	Total int `json:"total"`
}

func (a *BI) Fetch(ctx context.Context, cfg domain.ServiceConfig) Result {
	headers := map[string]string{"X-API-KEY": cfg.APIKey}
	var body biDashboardsBody
	if err := a.Client.getJSON(ctx, cfg.BaseURL+"/api/dashboard", headers, &body); err != nil {
		a.Client.logger().Warn("bi dashboards fetch failed", "error", err)
		return Result{Reports: Skeleton[domain.Report](cfg.BaseURL), Failure: FailUpstream}
	}
	w := &Widget[domain.Report]{SourceURL: cfg.BaseURL, Items: []domain.Report{}, TotalCount: body.Total}
	for _, d := range body.Data[:a.Client.cap(len(body.Data))] {
		w.Items = append(w.Items, domain.Report{
			ID:       fmt.Sprintf("%d", d.ID),
			Name:     d.Name,
			EmbedURL: fmt.Sprintf("%s/embed/dashboard/%d", strings.TrimRight(cfg.BaseURL, "/"), d.ID),
			Updated:  d.UpdatedAt,
		})
	}
	if w.TotalCount == 0 {
		w.TotalCount = len(w.Items)
	}
	return Result{Reports: w}
}
