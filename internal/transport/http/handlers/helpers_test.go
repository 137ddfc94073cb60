package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"leaveflow/internal/app/server"
	"leaveflow/internal/domain/auth"
	"leaveflow/internal/domain/leave"
	"leaveflow/internal/platform/config"
	"leaveflow/internal/platform/db"
)

const testSecret = "test-secret"

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
	Meta map[string]int `json:"meta"`
}

func (e envelope) code() string {
	if e.Error == nil {
		return ""
	}
	return e.Error.Code
}

func sqliteConfig() config.Config {
	return config.Config{
		Environment:          "test",
		DBDriver:             config.DriverSQLite,
		SQLitePath:           ":memory:",
		JWTSecret:            testSecret,
		RunSeed:              true,
		SeedAdminEmail:       "admin@test.local",
		EmailFrom:            "no-reply@test.local",
		MaxBodyBytes:         1048576,
		RateLimitPerMinute:   1000,
		FiscalYearStartMonth: time.January,
		NotifyQueueSize:      64,
		MetricsEnabled:       true,
	}
}

type testApp struct {
	app    *server.App
	ts     *httptest.Server
	client *http.Client
}

func startApp(t *testing.T, cfg config.Config) *testApp {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	app, err := server.New(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to start app: %v", err)
	}
	t.Cleanup(app.Close)

	ts := httptest.NewServer(app.Router)
	t.Cleanup(ts.Close)
	return &testApp{app: app, ts: ts, client: ts.Client()}
}

func token(t *testing.T, employeeID, role string) string {
	t.Helper()
	tok, err := auth.GenerateToken(testSecret, auth.Claims{UserID: employeeID, RoleName: role}, time.Hour)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return tok
}

// seedOrg adds an applicant with a manager and an in-department relief
// officer next to the seeded administrator.
func seedOrg(t *testing.T, app *server.App) {
	t.Helper()
	ctx := context.Background()
	joined := time.Now().UTC().AddDate(-1, 0, 0)
	for _, e := range []leave.Employee{
		{ID: "mgr-1", Name: "Manager", Role: auth.RoleManager},
		{ID: "emp-1", Name: "Applicant", Role: auth.RoleEmployee, ManagerID: "mgr-1"},
		{ID: "emp-2", Name: "Relief", Role: auth.RoleEmployee},
	} {
		e.Email = e.ID + "@example.com"
		e.EmploymentType = "full-time"
		e.DepartmentID = db.SeedDepartmentID
		e.BranchID = db.SeedBranchID
		e.DateOfJoining = joined
		e.Active = true
		if err := app.Store.SaveEmployee(ctx, e); err != nil {
			t.Fatalf("failed to save employee %s: %v", e.ID, err)
		}
	}

	policy := db.DefaultAnnualPolicy()
	policy.Accrual.OpeningBalance = decimal.NewFromInt(5)
	if err := app.Store.SavePolicy(ctx, policy); err != nil {
		t.Fatalf("failed to save policy: %v", err)
	}
}

func (a *testApp) do(t *testing.T, method, path, tok string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewBuffer(raw)
	}
	req, err := http.NewRequest(method, a.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	return resp, raw
}

func (a *testApp) call(t *testing.T, method, path, tok string, body any, want int) envelope {
	t.Helper()
	resp, raw := a.do(t, method, path, tok, body, nil)
	if resp.StatusCode != want {
		t.Fatalf("%s %s: expected status %d, got %d: %s", method, path, want, resp.StatusCode, string(raw))
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(env.Data, &out); err != nil {
		t.Fatalf("failed to decode data: %v", err)
	}
	return out
}
