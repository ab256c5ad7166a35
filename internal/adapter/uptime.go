package adapter

import (
	"context"

	"opsdeck/internal/domain"
)

// Uptime talks to the uptime-monitoring service. The monitors widget needs
// two related calls, the monitor list and the uptime summary; both commit
// together so a partial fetch never mixes fresh checks with stale ratios.
type Uptime struct {
	Client *Client
}

func (a *Uptime) Service() string { return "uptime" }

func (a *Uptime) ConfigComplete(cfg domain.ServiceConfig) bool {
	return cfg.BaseURL != "" && cfg.APIKey != ""
}

type uptimeMonitorsBody struct {
	Monitors []struct {
		ID           string  `json:"id"`
		FriendlyName string  `json:"friendly_name"`
		URL          string  `json:"url"`
		Status       int     `json:"status"`
		AvgResponse  float64 `json:"average_response_time_ms"`
	} `json:"monitors"`
	Total int `json:"total"`
}

type uptimeSummaryBody struct {
	Ratios map[string]float64 `json:"uptime_ratios"`
}

func (a *Uptime) Fetch(ctx context.Context, cfg domain.ServiceConfig) Result {
	headers := map[string]string{"X-Api-Key": cfg.APIKey}

	var monitors uptimeMonitorsBody
	if err := a.Client.getJSON(ctx, cfg.BaseURL+"/api/monitors", headers, &monitors); err != nil {
		a.Client.logger().Warn("uptime monitors fetch failed", "error", err)
		return Result{Monitors: Skeleton[domain.Monitor](cfg.BaseURL), Failure: FailUpstream}
	}
	var summary uptimeSummaryBody
	if err := a.Client.getJSON(ctx, cfg.BaseURL+"/api/monitors/summary", headers, &summary); err != nil {
		a.Client.logger().Warn("uptime summary fetch failed", "error", err)
		return Result{Monitors: Skeleton[domain.Monitor](cfg.BaseURL), Failure: FailUpstream}
	}

	w := &Widget[domain.Monitor]{SourceURL: cfg.BaseURL, Items: []domain.Monitor{}, TotalCount: monitors.Total}
	for _, m := range monitors.Monitors[:a.Client.cap(len(monitors.Monitors))] {
		w.Items = append(w.Items, domain.Monitor{
			ID:           m.ID,
			Name:         m.FriendlyName,
			URL:          m.URL,
			Status:       uptimeStatus(m.Status),
			ResponseTime: m.AvgResponse,
			Uptime:       summary.Ratios[m.ID],
		})
	}
	if w.TotalCount == 0 {
		w.TotalCount = len(w.Items)
	}
	return Result{Monitors: w}
}

// uptimeStatus collapses the vendor's numeric monitor states.
func uptimeStatus(code int) string {
	switch code {
	case 2:
		return "up"
	case 8, 9:
		return "down"
	case 0:
		return "paused"
	default:
		return "unknown"
	}
}
