package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"

	"opsdeck/internal/config"
	"opsdeck/internal/db"
	"opsdeck/internal/engine"
	"opsdeck/internal/migrate"
	"opsdeck/internal/secrets"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	box, err := secrets.NewBox(cfg.Secrets.EncryptionKey)
	if err != nil {
		t.Fatalf("new box: %v", err)
	}
	e := engine.New(conn, cfg, box, nil)
	if err := e.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: cfg.Auth.JWTSecret, TokenTTL: cfg.TokenTTL()},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	t.Cleanup(func() {
		srv.Shutdown(context.Background())
		ln.Close()
		conn.Close()
	})
	return &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
	}
}

func (s *testServer) doJSON(t *testing.T, method, path string, body any, token string) (*http.Response, []byte) {
	t.Helper()
	headers := map[string]string{}
	if token != "" {
		headers["Authorization"] = "Bearer " + token
	}
	return s.doWithHeaders(t, method, path, body, headers)
}

func (s *testServer) doWithHeaders(t *testing.T, method, path string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := s.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func (s *testServer) login(t *testing.T, username, password string) string {
	t.Helper()
	res, body := s.doJSON(t, http.MethodPost, "/v0/auth/login", LoginRequest{Username: username, Password: password}, "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login %s: %d %s", username, res.StatusCode, body)
	}
	var out LoginResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return out.Token
}

func TestHealthIsOpen(t *testing.T) {
	s := newTestServer(t)
	res, _ := s.doJSON(t, http.MethodGet, "/v0/health", nil, "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health = %d", res.StatusCode)
	}
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	res, body := s.doJSON(t, http.MethodGet, "/v0/dashboard", nil, "")
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("dashboard without token = %d", res.StatusCode)
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("error envelope: %v (%s)", err, body)
	}
	if envelope.Error.Code != "unauthorized" {
		t.Fatalf("code = %q", envelope.Error.Code)
	}

	res, _ = s.doJSON(t, http.MethodGet, "/v0/dashboard", nil, "not-a-jwt")
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("dashboard with garbage token = %d", res.StatusCode)
	}
}

func TestLoginAndDashboard(t *testing.T) {
	s := newTestServer(t)

	res, _ := s.doJSON(t, http.MethodPost, "/v0/auth/login", LoginRequest{Username: "admin", Password: "wrong"}, "")
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad password = %d", res.StatusCode)
	}

	token := s.login(t, "admin", "admin")
	res, body := s.doJSON(t, http.MethodGet, "/v0/dashboard", nil, token)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dashboard = %d %s", res.StatusCode, body)
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	for _, key := range []string{"monitors", "openTickets", "automationLogs", "workflowRuns", "cluster", "reports", "assets", "checklists", "generated_at"} {
		if _, ok := payload[key]; !ok {
			t.Errorf("payload missing %q", key)
		}
	}
}

func TestServiceConfigLifecycle(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	admin := s.login(t, "admin", "admin")

	res, body := s.doJSON(t, http.MethodPut, "/v0/services/uptime",
		PutServiceRequest{BaseURL: "https://up.example.com", APIKey: "plain-secret"}, admin)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("put service = %d %s", res.StatusCode, body)
	}
	var cfg ServiceConfigResponse
	if err := json.Unmarshal(body, &cfg); err != nil {
		t.Fatal(err)
	}
	if !cfg.HasAPIKey || cfg.HasPassword {
		t.Fatalf("redacted config = %+v", cfg)
	}
	if strings.Contains(string(body), "plain-secret") {
		t.Fatalf("credential echoed in response: %s", body)
	}

	// at rest the key is sealed
	raw, err := s.Engine.Repo.RawServiceConfig(ctx, "uptime")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(raw.APIKey, "enc:") || strings.Contains(raw.APIKey, "plain-secret") {
		t.Fatalf("api key stored unsealed: %q", raw.APIKey)
	}

	res, _ = s.doJSON(t, http.MethodPut, "/v0/services/nonsense",
		PutServiceRequest{BaseURL: "https://x"}, admin)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown service = %d", res.StatusCode)
	}

	// viewers can read but not write
	if _, err := s.Engine.CreateUser(ctx, "viewer1", "viewpass", "viewer"); err != nil {
		t.Fatal(err)
	}
	viewer := s.login(t, "viewer1", "viewpass")
	res, _ = s.doJSON(t, http.MethodGet, "/v0/services", nil, viewer)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("viewer list = %d", res.StatusCode)
	}
	res, _ = s.doJSON(t, http.MethodPut, "/v0/services/uptime",
		PutServiceRequest{BaseURL: "https://evil"}, viewer)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("viewer put = %d", res.StatusCode)
	}
	res, _ = s.doJSON(t, http.MethodDelete, "/v0/services/uptime", nil, viewer)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("viewer delete = %d", res.StatusCode)
	}

	res, _ = s.doJSON(t, http.MethodDelete, "/v0/services/uptime", nil, admin)
	if res.StatusCode != http.StatusNoContent && res.StatusCode != http.StatusOK {
		t.Fatalf("admin delete = %d", res.StatusCode)
	}
	res, _ = s.doJSON(t, http.MethodGet, "/v0/services/uptime", nil, admin)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("deleted service = %d", res.StatusCode)
	}
}

func TestChecklistEndpoints(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "admin", "admin")

	res, body := s.doJSON(t, http.MethodPost, "/v0/checklists",
		CreateChecklistRequest{EmployeeName: "Jane Doe", TicketID: "TKT-1"}, token)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create = %d %s", res.StatusCode, body)
	}
	var c struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Items  []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &c); err != nil {
		t.Fatal(err)
	}
	if c.Status != "pending" || len(c.Items) == 0 {
		t.Fatalf("checklist = %+v", c)
	}

	res, _ = s.doJSON(t, http.MethodPost, "/v0/checklists",
		CreateChecklistRequest{EmployeeName: "Jane Doe"}, token)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate = %d", res.StatusCode)
	}

	res, body = s.doJSON(t, http.MethodPatch, "/v0/checklists/"+c.ID+"/items/"+c.Items[0].ID,
		UpdateItemRequest{Status: "completed"}, token)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("patch item = %d %s", res.StatusCode, body)
	}
	var updated struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &updated); err != nil {
		t.Fatal(err)
	}
	if updated.Status != "in_progress" {
		t.Fatalf("aggregate status = %q", updated.Status)
	}

	res, _ = s.doJSON(t, http.MethodGet, "/v0/checklists/no-such-id", nil, token)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("missing checklist = %d", res.StatusCode)
	}
}

func TestAPIKeyLifecycle(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	admin := s.login(t, "admin", "admin")

	res, body := s.doJSON(t, http.MethodPost, "/v0/apikeys",
		CreateAPIKeyRequest{Name: "ci"}, admin)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create key = %d %s", res.StatusCode, body)
	}
	var created APIKeyResponse
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(created.Key, "odk_") {
		t.Fatalf("plaintext key = %q", created.Key)
	}

	// the key authenticates without a bearer token
	res, body = s.doWithHeaders(t, http.MethodGet, "/v0/checklists", nil,
		map[string]string{"X-Api-Key": created.Key})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("key auth = %d %s", res.StatusCode, body)
	}
	res, _ = s.doWithHeaders(t, http.MethodGet, "/v0/checklists", nil,
		map[string]string{"X-Api-Key": "odk_0000000000000000000000000000000000000000000000"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bogus key = %d", res.StatusCode)
	}

	// listing never exposes the plaintext or the digest
	res, body = s.doJSON(t, http.MethodGet, "/v0/apikeys", nil, admin)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list keys = %d", res.StatusCode)
	}
	if strings.Contains(string(body), created.Key) || strings.Contains(string(body), "key_hash") {
		t.Fatalf("list leaks key material: %s", body)
	}

	// only admins manage keys
	if _, err := s.Engine.CreateUser(ctx, "viewer2", "viewpass", "viewer"); err != nil {
		t.Fatal(err)
	}
	viewer := s.login(t, "viewer2", "viewpass")
	res, _ = s.doJSON(t, http.MethodPost, "/v0/apikeys", CreateAPIKeyRequest{}, viewer)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("viewer create key = %d", res.StatusCode)
	}

	// revocation cuts off the key immediately
	res, _ = s.doJSON(t, http.MethodDelete, "/v0/apikeys/"+created.ID, nil, admin)
	if res.StatusCode != http.StatusNoContent && res.StatusCode != http.StatusOK {
		t.Fatalf("delete key = %d", res.StatusCode)
	}
	res, _ = s.doWithHeaders(t, http.MethodGet, "/v0/checklists", nil,
		map[string]string{"X-Api-Key": created.Key})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("revoked key = %d", res.StatusCode)
	}
}

func TestOpenAPIServedConcurrently(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "admin", "admin")

	const n = 8
	bodies := make([][]byte, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req, err := http.NewRequest(http.MethodGet, s.URL+"/v0/openapi.json", nil)
			if err != nil {
				t.Errorf("new request: %v", err)
				return
			}
			req.Header.Set("Authorization", "Bearer "+token)
			res, err := s.client.Do(req)
			if err != nil {
				t.Errorf("get openapi: %v", err)
				return
			}
			defer res.Body.Close()
			if res.StatusCode != http.StatusOK {
				t.Errorf("openapi = %d", res.StatusCode)
				return
			}
			data, err := io.ReadAll(res.Body)
			if err != nil {
				t.Errorf("read openapi: %v", err)
				return
			}
			bodies[i] = data
		}(i)
	}
	wg.Wait()
	for i := 1; i < n; i++ {
		if !bytes.Equal(bodies[0], bodies[i]) {
			t.Fatalf("response %d differs from first", i)
		}
	}
}

func TestPrefsRoundTrip(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "admin", "admin")

	res, body := s.doJSON(t, http.MethodGet, "/v0/me/prefs", nil, token)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get prefs = %d", res.StatusCode)
	}
	var prefs PrefsResponse
	if err := json.Unmarshal(body, &prefs); err != nil {
		t.Fatal(err)
	}
	if string(prefs.Prefs) != "{}" {
		t.Fatalf("default prefs = %s", prefs.Prefs)
	}

	res, _ = s.doJSON(t, http.MethodPut, "/v0/me/prefs",
		PutPrefsRequest{Prefs: json.RawMessage(`{"theme":"dark","order":["monitors","cluster"]}`)}, token)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("put prefs = %d", res.StatusCode)
	}

	res, body = s.doJSON(t, http.MethodGet, "/v0/me/prefs", nil, token)
	if res.StatusCode != http.StatusOK {
		t.Fatal(res.StatusCode)
	}
	if err := json.Unmarshal(body, &prefs); err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(prefs.Prefs, &decoded); err != nil {
		t.Fatalf("stored prefs not json: %v", err)
	}
	if decoded["theme"] != "dark" {
		t.Fatalf("prefs = %v", decoded)
	}
}
