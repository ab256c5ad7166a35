package adapter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"opsdeck/internal/domain"
)

func testClient() *Client {
	return NewClient(2*time.Second, 50, nil)
}

func TestUptimeFetchMergesSummary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "key-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/api/monitors":
			io.WriteString(w, `{"monitors":[
				{"id":"m1","friendly_name":"web","url":"https://web","status":2,"average_response_time_ms":120.5},
				{"id":"m2","friendly_name":"mail","status":9},
				{"id":"m3","friendly_name":"old","status":0}
			],"total":3}`)
		case "/api/monitors/summary":
			io.WriteString(w, `{"uptime_ratios":{"m1":99.95,"m2":42.0}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	a := &Uptime{Client: testClient()}
	res := a.Fetch(context.Background(), domain.ServiceConfig{BaseURL: srv.URL, APIKey: "key-1"})
	if res.Failure != "" {
		t.Fatalf("failure = %q", res.Failure)
	}
	w := res.Monitors
	if w == nil || len(w.Items) != 3 || w.TotalCount != 3 {
		t.Fatalf("monitors = %+v", w)
	}
	if w.Items[0].Status != "up" || w.Items[0].Uptime != 99.95 || w.Items[0].ResponseTime != 120.5 {
		t.Fatalf("item 0 = %+v", w.Items[0])
	}
	if w.Items[1].Status != "down" || w.Items[2].Status != "paused" {
		t.Fatalf("status mapping wrong: %+v", w.Items)
	}
}

func TestUptimePartialFetchDegradesWhole(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/monitors":
			io.WriteString(w, `{"monitors":[{"id":"m1","friendly_name":"web","status":2}],"total":1}`)
		default:
			// summary unavailable: fresh checks must not ship with stale ratios
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	a := &Uptime{Client: testClient()}
	res := a.Fetch(context.Background(), domain.ServiceConfig{BaseURL: srv.URL, APIKey: "k"})
	if res.Failure != FailUpstream {
		t.Fatalf("failure = %q, want upstream", res.Failure)
	}
	if res.Monitors == nil || len(res.Monitors.Items) != 0 {
		t.Fatalf("expected empty skeleton, got %+v", res.Monitors)
	}
}

func TestTicketingFetchFiltersTerminalStatuses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authtoken") != "tok" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		switch r.URL.Path {
		case "/api/v3/tickets":
			io.WriteString(w, `{"tickets":[
				{"id":"1","display_id":"TKT-1","subject":"Open one","status":{"name":"Open"},"requester":{"name":"Alice"}},
				{"id":"2","display_id":"TKT-2","subject":"Done","status":{"name":"Closed"}},
				{"id":"3","display_id":"TKT-3","subject":"Also done","status":{"name":"Resolved"}},
				{"id":"4","display_id":"TKT-4","subject":"Pending","status":{"name":"Pending"}}
			],"total_count":4}`)
		case "/api/v3/assets":
			io.WriteString(w, `{"assets":[{"id":"a1","name":"LAP-01","product_type":{"name":"Laptop"},"user":{"name":"Alice"},"state":"in_use"}],"total_count":1}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	a := &Ticketing{Client: testClient()}
	res := a.Fetch(context.Background(), domain.ServiceConfig{BaseURL: srv.URL, APIKey: "tok"})
	if res.Failure != "" {
		t.Fatalf("failure = %q", res.Failure)
	}
	if got := len(res.OpenTickets.Items); got != 2 {
		t.Fatalf("open tickets = %d, want 2 (terminal statuses excluded)", got)
	}
	if res.OpenTickets.Items[0].Link != srv.URL+"/app/tickets/TKT-1" {
		t.Fatalf("link = %q", res.OpenTickets.Items[0].Link)
	}
	if len(res.Assets.Items) != 1 || res.Assets.Items[0].Type != "Laptop" {
		t.Fatalf("assets = %+v", res.Assets)
	}
}

func TestTicketingSubCallsDegradeIndependently(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/tickets":
			io.WriteString(w, `{"tickets":[{"id":"1","display_id":"TKT-1","subject":"x","status":{"name":"Open"}}],"total_count":1}`)
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	a := &Ticketing{Client: testClient()}
	res := a.Fetch(context.Background(), domain.ServiceConfig{BaseURL: srv.URL, APIKey: "tok"})
	if len(res.OpenTickets.Items) != 1 {
		t.Fatalf("ticket widget lost to asset failure: %+v", res.OpenTickets)
	}
	if res.Assets == nil || len(res.Assets.Items) != 0 {
		t.Fatalf("assets should be an empty skeleton: %+v", res.Assets)
	}
	if res.Failure != "" {
		t.Fatalf("asset failure must not flag the service: %q", res.Failure)
	}
}

func TestTicketingRespectsMaxItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/tickets":
			io.WriteString(w, `{"tickets":[
				{"id":"1","display_id":"TKT-1","subject":"a","status":{"name":"Open"}},
				{"id":"2","display_id":"TKT-2","subject":"b","status":{"name":"Open"}},
				{"id":"3","display_id":"TKT-3","subject":"c","status":{"name":"Open"}}
			],"total_count":3}`)
		case "/api/v3/assets":
			io.WriteString(w, `{"assets":[],"total_count":0}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	a := &Ticketing{Client: NewClient(2*time.Second, 2, nil)}
	res := a.Fetch(context.Background(), domain.ServiceConfig{BaseURL: srv.URL, APIKey: "tok"})
	if len(res.OpenTickets.Items) != 2 {
		t.Fatalf("items = %d, want max 2", len(res.OpenTickets.Items))
	}
	if res.OpenTickets.TotalCount != 3 {
		t.Fatalf("total = %d, want untruncated 3", res.OpenTickets.TotalCount)
	}
}

func TestTicketingCreateAndResolve(t *testing.T) {
	var resolved string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		switch r.URL.Path {
		case "/api/v3/tickets":
			var body map[string]map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			if body["ticket"]["subject"] != "Broken laptop" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			io.WriteString(w, `{"ticket":{"id":"77","display_id":"TKT-77"}}`)
		case "/api/v3/tickets/TKT-77/resolve":
			resolved = "TKT-77"
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	a := &Ticketing{Client: testClient()}
	cfg := domain.ServiceConfig{BaseURL: srv.URL, APIKey: "tok"}
	ticket, err := a.CreateTicket(context.Background(), cfg, "Broken laptop", "screen cracked", "alice")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ticket.DisplayID != "TKT-77" || ticket.Link != srv.URL+"/app/tickets/TKT-77" {
		t.Fatalf("ticket = %+v", ticket)
	}
	if err := a.ResolveTicket(context.Background(), cfg, "TKT-77"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved != "TKT-77" {
		t.Fatalf("resolve never reached upstream")
	}
}

func TestClusterFallbackAndMemberErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api2/json/cluster/status":
			// standalone host without a cluster endpoint
			w.WriteHeader(http.StatusNotImplemented)
		case "/api2/json/nodes":
			io.WriteString(w, `{"data":[{"node":"pve2","status":"online"},{"node":"pve1","status":"online"}]}`)
		case "/api2/json/nodes/pve1/status":
			io.WriteString(w, `{"data":{"cpu":0.25,"uptime":3600,"memory":{"used":4,"total":16},"vmcount":7}}`)
		case "/api2/json/nodes/pve2/status":
			w.WriteHeader(http.StatusUnauthorized)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	a := &Cluster{Client: testClient()}
	res := a.Fetch(context.Background(), domain.ServiceConfig{BaseURL: srv.URL, Username: "root@pam!tok", APISecret: "s"})
	if res.Failure != "" {
		t.Fatalf("failure = %q", res.Failure)
	}
	items := res.Cluster.Items
	if len(items) != 2 {
		t.Fatalf("members = %+v", items)
	}
	// discovery output is sorted
	if items[0].Name != "pve1" || items[1].Name != "pve2" {
		t.Fatalf("order = %q, %q", items[0].Name, items[1].Name)
	}
	if !items[0].Online || items[0].CPU != 25 || items[0].MemUsed != 25 || items[0].VMCount != 7 {
		t.Fatalf("pve1 = %+v", items[0])
	}
	if items[1].Error == nil || items[1].Error.Type != "authentication" {
		t.Fatalf("pve2 must carry an auth error: %+v", items[1])
	}
}

func TestClusterDiscoveryFailureDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	a := &Cluster{Client: testClient()}
	res := a.Fetch(context.Background(), domain.ServiceConfig{BaseURL: srv.URL, Username: "u", APISecret: "s"})
	if res.Failure != FailUpstream {
		t.Fatalf("failure = %q", res.Failure)
	}
	if res.Cluster == nil || len(res.Cluster.Items) != 0 {
		t.Fatalf("expected empty skeleton, got %+v", res.Cluster)
	}
}

func TestConfigCompleteness(t *testing.T) {
	client := testClient()
	cases := []struct {
		a    Adapter
		cfg  domain.ServiceConfig
		want bool
	}{
		{&Uptime{client}, domain.ServiceConfig{BaseURL: "https://x", APIKey: "k"}, true},
		{&Uptime{client}, domain.ServiceConfig{BaseURL: "https://x"}, false},
		{&Ticketing{client}, domain.ServiceConfig{APIKey: "k"}, false},
		{&Cluster{client}, domain.ServiceConfig{BaseURL: "https://x", Username: "u", APISecret: "s"}, true},
		{&Cluster{client}, domain.ServiceConfig{BaseURL: "https://x", Username: "u"}, false},
		{&BI{client}, domain.ServiceConfig{BaseURL: "https://x", APIKey: "k"}, true},
		{&Automation{client}, domain.ServiceConfig{BaseURL: "https://x"}, false},
	}
	for i, tc := range cases {
		if got := tc.a.ConfigComplete(tc.cfg); got != tc.want {
			t.Errorf("case %d (%s): got %v, want %v", i, tc.a.Service(), got, tc.want)
		}
	}
}
