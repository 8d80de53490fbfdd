package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ruteo-noc/ruteo/internal/service"
	"github.com/ruteo-noc/ruteo/internal/testutil"
	"github.com/ruteo-noc/ruteo/internal/topology"
)

const testToken = "test-admin-token"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	repo := testutil.NewTempRepo(t)
	ix := topology.NewCameraIndex(128)
	if err := ix.LoadFromRepo(repo); err != nil {
		t.Fatalf("load index: %v", err)
	}
	cp := service.New(repo, ix, service.SystemInfo{Version: "test"})
	return NewServer(0, testToken, cp, 1<<20)
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var er ErrorResponse
	decodeInto(t, rec, &er)
	return er.Error.Code
}

func submissionBody(sites ...string) map[string]any {
	entries := make([]map[string]any, 0, len(sites))
	for _, s := range sites {
		entries = append(entries, map[string]any{"site": s})
	}
	return map[string]any{"entries": entries}
}

func TestHealthzNoAuth(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t)
	cases := []struct {
		name  string
		setup func(r *http.Request)
	}{
		{"missing header", func(r *http.Request) {}},
		{"wrong scheme", func(r *http.Request) { r.Header.Set("Authorization", "Basic abc") }},
		{"wrong token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/services", nil)
			tc.setup(req)
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d", rec.Code)
			}
			if code := errorCode(t, rec); code != "UNAUTHORIZED" {
				t.Fatalf("code = %s", code)
			}
		})
	}
}

func TestAnalyzeResolveBanFlow(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, "POST", "/api/v1/services/SVC-1/analyze", submissionBody("Estación Central", "Nodo Sur"))
	if rec.Code != http.StatusOK {
		t.Fatalf("analyze status = %d: %s", rec.Code, rec.Body.String())
	}
	var analysis struct {
		Status      string `json:"status"`
		Fingerprint string `json:"fingerprint"`
	}
	decodeInto(t, rec, &analysis)
	if analysis.Status != "NEW" || analysis.Fingerprint == "" {
		t.Fatalf("analysis = %+v", analysis)
	}

	rec = doJSON(t, srv, "POST", "/api/v1/services/SVC-1/resolve", map[string]any{
		"action":     "CREATE_NEW",
		"submission": submissionBody("Estación Central", "Nodo Sur"),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve status = %d: %s", rec.Code, rec.Body.String())
	}
	var resolved struct {
		RouteID        string `json:"route_id"`
		CamerasCreated int    `json:"cameras_created"`
	}
	decodeInto(t, rec, &resolved)
	if resolved.CamerasCreated != 2 {
		t.Fatalf("resolved = %+v", resolved)
	}

	rec = doJSON(t, srv, "GET", "/api/v1/routes/"+resolved.RouteID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get route status = %d", rec.Code)
	}
	var route struct {
		Associations []struct {
			CameraID string `json:"camera_id"`
		} `json:"associations"`
	}
	decodeInto(t, rec, &route)
	if len(route.Associations) != 2 {
		t.Fatalf("associations = %d", len(route.Associations))
	}

	rec = doJSON(t, srv, "POST", "/api/v1/incidents", map[string]any{
		"protected_service_id": "SVC-1",
		"reason":               "corte en bandeja",
		"ticket_ref":           "TKT-77",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("ban status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("X-Ticket-Ref"); got != "TKT-77" {
		t.Fatalf("ticket header = %q", got)
	}
	var ban struct {
		IncidentID         string `json:"incident_id"`
		CamerasNewlyBanned int    `json:"cameras_newly_banned"`
	}
	decodeInto(t, rec, &ban)
	if ban.CamerasNewlyBanned != 2 {
		t.Fatalf("ban = %+v", ban)
	}

	rec = doJSON(t, srv, "GET", "/api/v1/incidents?active=true", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list incidents status = %d", rec.Code)
	}
	var incidents []struct {
		ID string `json:"id"`
	}
	decodeInto(t, rec, &incidents)
	if len(incidents) != 1 || incidents[0].ID != ban.IncidentID {
		t.Fatalf("incidents = %+v", incidents)
	}

	rec = doJSON(t, srv, "POST", "/api/v1/incidents/"+ban.IncidentID+"/actions/lift", map[string]any{
		"closure_reason": "reparado",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("lift status = %d: %s", rec.Code, rec.Body.String())
	}
	var lift struct {
		CamerasRestored int `json:"cameras_restored"`
	}
	decodeInto(t, rec, &lift)
	if lift.CamerasRestored != 2 {
		t.Fatalf("lift = %+v", lift)
	}

	rec = doJSON(t, srv, "POST", "/api/v1/incidents/"+ban.IncidentID+"/actions/lift", map[string]any{})
	if rec.Code != http.StatusConflict {
		t.Fatalf("second lift status = %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "ALREADY_CLOSED" {
		t.Fatalf("code = %s", code)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	srv := newTestServer(t)
	seed := doJSON(t, srv, "POST", "/api/v1/services/SVC-1/resolve", map[string]any{
		"action":     "CREATE_NEW",
		"submission": submissionBody("A", "B"),
	})
	if seed.Code != http.StatusOK {
		t.Fatalf("seed status = %d", seed.Code)
	}
	var seeded struct {
		RouteID string `json:"route_id"`
	}
	decodeInto(t, seed, &seeded)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown service", "GET", "/api/v1/services/NOPE", nil, http.StatusNotFound, "NOT_FOUND"},
		{"bad route id", "GET", "/api/v1/routes/not-a-uuid", nil, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"missing param", "POST", "/api/v1/services/SVC-1/resolve", map[string]any{
			"action": "REPLACE", "submission": submissionBody("A", "C"),
		}, http.StatusBadRequest, "MISSING_PARAMETER"},
		{"cross service", "POST", "/api/v1/services/SVC-2/resolve", map[string]any{
			"action": "REPLACE", "submission": submissionBody("A", "C"), "target_route_id": seeded.RouteID,
		}, http.StatusConflict, "CROSS_SERVICE"},
		{"stale fingerprint", "POST", "/api/v1/services/SVC-1/resolve", map[string]any{
			"action": "REPLACE", "submission": submissionBody("A", "C"),
			"target_route_id": seeded.RouteID, "expected_fingerprint": "stale",
		}, http.StatusConflict, "FINGERPRINT_CONFLICT"},
		{"unknown field", "POST", "/api/v1/services/SVC-1/analyze", map[string]any{
			"entries": []any{}, "bogus": true,
		}, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"bad ticket ref", "POST", "/api/v1/incidents", map[string]any{
			"protected_service_id": "SVC-1", "ticket_ref": "tkt\x00bad",
		}, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"inactive filter", "GET", "/api/v1/incidents?active=false", nil, http.StatusBadRequest, "INVALID_ARGUMENT"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, srv, tc.method, tc.path, tc.body)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tc.status, rec.Body.String())
			}
			if code := errorCode(t, rec); code != tc.code {
				t.Fatalf("code = %s, want %s", code, tc.code)
			}
		})
	}
}

func TestListCamerasPagination(t *testing.T) {
	srv := newTestServer(t)
	sites := make([]string, 5)
	for i := range sites {
		sites[i] = fmt.Sprintf("SITE-%02d", i)
	}
	rec := doJSON(t, srv, "POST", "/api/v1/services/SVC-1/resolve", map[string]any{
		"action":     "CREATE_NEW",
		"submission": submissionBody(sites...),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("seed status = %d", rec.Code)
	}

	rec = doJSON(t, srv, "GET", "/api/v1/cameras?limit=2&offset=2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var page struct {
		Items []struct {
			NormName string `json:"norm_name"`
		} `json:"items"`
		Total  int `json:"total"`
		Limit  int `json:"limit"`
		Offset int `json:"offset"`
	}
	decodeInto(t, rec, &page)
	if page.Total != 5 || page.Limit != 2 || page.Offset != 2 || len(page.Items) != 2 {
		t.Fatalf("page = %+v", page)
	}
	if page.Items[0].NormName != "SITE-02" {
		t.Fatalf("first item = %s (sorted by norm_name)", page.Items[0].NormName)
	}
}

func TestRequestBodyLimit(t *testing.T) {
	srv := newTestServer(t)
	big := strings.Repeat("x", 2<<20)
	req := httptest.NewRequest("POST", "/api/v1/services/SVC-1/analyze",
		strings.NewReader(`{"entries":[{"site":"`+big+`"}]}`))
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "PAYLOAD_TOO_LARGE" {
		t.Fatalf("code = %s", code)
	}
}
