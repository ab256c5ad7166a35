package aggregate

import (
	"time"

	"opsdeck/internal/adapter"
	"opsdeck/internal/domain"
)

// Payload is the assembled dashboard response. Every widget key is always
// present and well-formed regardless of which upstreams were reachable.
type Payload struct {
	Monitors       adapter.Widget[domain.Monitor]       `json:"monitors"`
	OpenTickets    adapter.Widget[domain.Ticket]        `json:"openTickets"`
	AutomationLogs adapter.Widget[domain.AutomationLog] `json:"automationLogs"`
	WorkflowRuns   adapter.Widget[domain.WorkflowRun]   `json:"workflowRuns"`
	Cluster        adapter.Widget[domain.ClusterMember] `json:"cluster"`
	Reports        adapter.Widget[domain.Report]        `json:"reports"`
	Assets         adapter.Widget[domain.Asset]         `json:"assets"`
	Checklists     []domain.Checklist                   `json:"checklists"`
	Sources        map[string]string                    `json:"sources,omitempty"`
	GeneratedAt    string                               `json:"generated_at" format:"date-time"`
}

// Assemble merges per-service results into one payload, substituting empty
// skeletons for anything missing. It never fails.
func Assemble(results map[string]adapter.Result) Payload {
	p := Payload{
		Monitors:       adapter.Widget[domain.Monitor]{Items: []domain.Monitor{}},
		OpenTickets:    adapter.Widget[domain.Ticket]{Items: []domain.Ticket{}},
		AutomationLogs: adapter.Widget[domain.AutomationLog]{Items: []domain.AutomationLog{}},
		WorkflowRuns:   adapter.Widget[domain.WorkflowRun]{Items: []domain.WorkflowRun{}},
		Cluster:        adapter.Widget[domain.ClusterMember]{Items: []domain.ClusterMember{}},
		Reports:        adapter.Widget[domain.Report]{Items: []domain.Report{}},
		Assets:         adapter.Widget[domain.Asset]{Items: []domain.Asset{}},
		Checklists:     []domain.Checklist{},
		GeneratedAt:    time.Now().UTC().Format(time.RFC3339),
	}
	for service, res := range results {
		if res.Monitors != nil {
			p.Monitors = *res.Monitors
		}
		if res.OpenTickets != nil {
			p.OpenTickets = *res.OpenTickets
		}
		if res.AutomationLogs != nil {
			p.AutomationLogs = *res.AutomationLogs
		}
		if res.WorkflowRuns != nil {
			p.WorkflowRuns = *res.WorkflowRuns
		}
		if res.Cluster != nil {
			p.Cluster = *res.Cluster
		}
		if res.Reports != nil {
			p.Reports = *res.Reports
		}
		if res.Assets != nil {
			p.Assets = *res.Assets
		}
		if res.Failure != "" {
			if p.Sources == nil {
				p.Sources = make(map[string]string)
			}
			p.Sources[service] = res.Failure
		}
	}
	return p
}
