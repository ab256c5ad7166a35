package adapter

import (
	"context"
	"fmt"
	"strings"

	"opsdeck/internal/domain"
)

// Automation talks to the workflow-automation engine. It feeds two widgets,
// execution history and engine logs, via independent list calls; either can
// degrade without taking the other down.
type Automation struct {
	Client *Client
}

func (a *Automation) Service() string { return "automation" }

func (a *Automation) ConfigComplete(cfg domain.ServiceConfig) bool {
	return cfg.BaseURL != "" && cfg.APIKey != ""
}

func (a *Automation) headers(cfg domain.ServiceConfig) map[string]string {
	return map[string]string{"X-Api-Key": cfg.APIKey}
}

type automationExecutionsBody struct {
	Data []struct {
		ID           string `json:"id"`
		WorkflowName string `json:"workflowName"`
		Status       string `json:"status"`
		StartedAt    string `json:"startedAt"`
		StoppedAt    string `json:"stoppedAt"`
	} `json:"data"`
	Total int `json:"total"`
}

type automationLogsBody struct {
	Data []struct {
		ID           string `json:"id"`
		WorkflowName string `json:"workflowName"`
		Level        string `json:"level"`
		Message      string `json:"message"`
		Timestamp    string `json:"timestamp"`
	} `json:"data"`
	Total int `json:"total"`
}

func (a *Automation) Fetch(ctx context.Context, cfg domain.ServiceConfig) Result {
	res := Result{}

	var execs automationExecutionsBody
	if err := a.Client.getJSON(ctx, cfg.BaseURL+"/api/v1/executions", a.headers(cfg), &execs); err != nil {
		a.Client.logger().Warn("automation executions fetch failed", "error", err)
		res.WorkflowRuns = Skeleton[domain.WorkflowRun](cfg.BaseURL)
		res.Failure = FailUpstream
	} else {
		w := &Widget[domain.WorkflowRun]{SourceURL: cfg.BaseURL, Items: []domain.WorkflowRun{}, TotalCount: execs.Total}
		for _, e := range execs.Data[:a.Client.cap(len(execs.Data))] {
			w.Items = append(w.Items, domain.WorkflowRun{
				ID:         e.ID,
				Workflow:   e.WorkflowName,
				Status:     runStatus(e.Status),
				StartedAt:  e.StartedAt,
				FinishedAt: e.StoppedAt,
				Link:       fmt.Sprintf("%s/executions/%s", strings.TrimRight(cfg.BaseURL, "/"), e.ID),
			})
		}
		if w.TotalCount == 0 {
			w.TotalCount = len(w.Items)
		}
		res.WorkflowRuns = w
	}

	var logs automationLogsBody
	if err := a.Client.getJSON(ctx, cfg.BaseURL+"/api/v1/logs", a.headers(cfg), &logs); err != nil {
		a.Client.logger().Warn("automation logs fetch failed", "error", err)
		res.AutomationLogs = Skeleton[domain.AutomationLog](cfg.BaseURL)
	} else {
		w := &Widget[domain.AutomationLog]{SourceURL: cfg.BaseURL, Items: []domain.AutomationLog{}, TotalCount: logs.Total}
		for _, l := range logs.Data[:a.Client.cap(len(logs.Data))] {
			w.Items = append(w.Items, domain.AutomationLog{
				ID:       l.ID,
				Workflow: l.WorkflowName,
				Level:    logLevel(l.Level),
				Message:  l.Message,
				Time:     l.Timestamp,
			})
		}
		if w.TotalCount == 0 {
			w.TotalCount = len(w.Items)
		}
		res.AutomationLogs = w
	}
	return res
}

func runStatus(s string) string {
	switch strings.ToLower(s) {
	case "success", "succeeded":
		return "success"
	case "error", "failed", "crashed":
		return "error"
	case "running":
		return "running"
	case "waiting", "new":
		return "waiting"
	default:
		return "unknown"
	}
}

func logLevel(s string) string {
	switch strings.ToLower(s) {
	case "warn", "warning":
		return "warn"
	case "error", "fatal":
		return "error"
	default:
		return "info"
	}
}
