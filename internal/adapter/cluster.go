package adapter

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"opsdeck/internal/domain"
)

// Cluster talks to the hypervisor cluster. It discovers the member set
// first, falling back to the node listing when the cluster endpoint is
// unavailable, then fans out per-member status calls in parallel. One
// unreachable member becomes an error-flagged entry, not a failed fetch.
type Cluster struct {
	Client *Client
}

func (a *Cluster) Service() string { return "cluster" }

func (a *Cluster) ConfigComplete(cfg domain.ServiceConfig) bool {
	return cfg.BaseURL != "" && cfg.Username != "" && cfg.APISecret != ""
}

func (a *Cluster) headers(cfg domain.ServiceConfig) map[string]string {
	return map[string]string{
		"Authorization": fmt.Sprintf("PVEAPIToken=%s=%s", cfg.Username, cfg.APISecret),
	}
}

type clusterStatusBody struct {
	Data []struct {
		Type   string `json:"type"`
		Name   string `json:"name"`
		Online int    `json:"online"`
	} `json:"data"`
}

type nodeListBody struct {
	Data []struct {
		Node   string `json:"node"`
		Status string `json:"status"`
	} `json:"data"`
}

type nodeStatusBody struct {
	Data struct {
		CPU    float64 `json:"cpu"`
		Uptime int64   `json:"uptime"`
		Memory struct {
			Used  float64 `json:"used"`
			Total float64 `json:"total"`
		} `json:"memory"`
		VMCount int `json:"vmcount"`
	} `json:"data"`
}

func (a *Cluster) Fetch(ctx context.Context, cfg domain.ServiceConfig) Result {
	members, err := a.discoverMembers(ctx, cfg)
	if err != nil {
		a.Client.logger().Warn("cluster discovery failed", "error", err)
		return Result{Cluster: Skeleton[domain.ClusterMember](cfg.BaseURL), Failure: FailUpstream}
	}

	results := make([]domain.ClusterMember, len(members))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range members {
		g.Go(func() error {
			// Member failures are flagged on the entry, never returned,
			// so sibling fetches keep running.
			results[i] = a.fetchMember(gctx, cfg, name)
			return nil
		})
	}
	_ = g.Wait()

	return Result{Cluster: &Widget[domain.ClusterMember]{
		SourceURL:  cfg.BaseURL,
		Items:      results,
		TotalCount: len(results),
	}}
}

// discoverMembers lists cluster node names, preferring the cluster status
// endpoint and falling back to the plain node listing.
func (a *Cluster) discoverMembers(ctx context.Context, cfg domain.ServiceConfig) ([]string, error) {
	var status clusterStatusBody
	err := a.Client.getJSON(ctx, cfg.BaseURL+"/api2/json/cluster/status", a.headers(cfg), &status)
	if err == nil {
		var names []string
		for _, e := range status.Data {
			if e.Type == "node" {
				names = append(names, e.Name)
			}
		}
		if len(names) > 0 {
			sort.Strings(names)
			return names, nil
		}
	}

	var nodes nodeListBody
	if ferr := a.Client.getJSON(ctx, cfg.BaseURL+"/api2/json/nodes", a.headers(cfg), &nodes); ferr != nil {
		if err != nil {
			return nil, fmt.Errorf("cluster status: %v; node list: %w", err, ferr)
		}
		return nil, ferr
	}
	var names []string
	for _, n := range nodes.Data {
		names = append(names, n.Node)
	}
	sort.Strings(names)
	return names, nil
}

func (a *Cluster) fetchMember(ctx context.Context, cfg domain.ServiceConfig, name string) domain.ClusterMember {
	var status nodeStatusBody
	u := fmt.Sprintf("%s/api2/json/nodes/%s/status", strings.TrimRight(cfg.BaseURL, "/"), url.PathEscape(name))
	if err := a.Client.getJSON(ctx, u, a.headers(cfg), &status); err != nil {
		a.Client.logger().Warn("cluster member fetch failed", "member", name, "error", err)
		errType := "connection"
		if IsAuthStatus(err) {
			errType = "authentication"
		}
		return domain.ClusterMember{
			Name:  name,
			Error: &domain.ClusterError{Type: errType, Message: err.Error()},
		}
	}
	memPct := 0.0
	if status.Data.Memory.Total > 0 {
		memPct = status.Data.Memory.Used / status.Data.Memory.Total * 100
	}
	return domain.ClusterMember{
		Name:    name,
		Online:  status.Data.Uptime > 0,
		CPU:     status.Data.CPU * 100,
		MemUsed: memPct,
		VMCount: status.Data.VMCount,
		Uptime:  status.Data.Uptime,
	}
}
