package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/aggregator"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/metrics"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/model"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/store"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/store/memory"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/tracker"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	st := memory.New()
	if _, err := memory.LoadSeed(context.Background(), st, "../../data/seed.json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	agg := aggregator.New(aggregator.Options{Store: st})
	agg.Refresh(context.Background())

	h := NewRouter(tracker.New(agg, st), Options{Metrics: metrics.New(nil), CORSOrigins: []string{"http://localhost:5173"}})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

type response struct {
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data"`
	Count      int             `json:"count"`
	Error      string          `json:"error"`
	Pagination struct {
		Total, Page, Limit, Pages int
	} `json:"pagination"`
}

func do(t *testing.T, method, url string, body any) (int, response) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, _ := http.NewRequest(method, url, rd)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var out response
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestListShutdowns_FilterSortPaginate(t *testing.T) {
	srv := newTestServer(t)
	code, res := do(t, http.MethodGet, srv.URL+"/api/shutdowns?reason=EXAM&sortBy=startDate&sortOrder=asc&limit=2", nil)
	if code != http.StatusOK || !res.Success {
		t.Fatalf("unexpected response %d: %+v", code, res)
	}
	if res.Pagination.Total != 3 || res.Pagination.Pages != 2 || res.Pagination.Limit != 2 {
		t.Fatalf("unexpected pagination: %+v", res.Pagination)
	}
	var evs []model.ShutdownEvent
	if err := json.Unmarshal(res.Data, &evs); err != nil {
		t.Fatal(err)
	}
	if len(evs) != 2 || evs[0].Region != "Rajasthan" || evs[0].Coordinates == nil {
		t.Fatalf("unexpected events: %+v", evs)
	}

	code, res = do(t, http.MethodGet, srv.URL+"/api/shutdowns?page=9", nil)
	if code != http.StatusOK || string(res.Data) != "[]" {
		t.Fatalf("expected empty page, got %d %s", code, res.Data)
	}
}

func TestListShutdowns_BadParams(t *testing.T) {
	srv := newTestServer(t)
	for _, q := range []string{"verified=maybe", "startDate=yesterday", "page=0", "limit=x"} {
		code, res := do(t, http.MethodGet, srv.URL+"/api/shutdowns?"+q, nil)
		if code != http.StatusBadRequest || res.Success || res.Error == "" {
			t.Fatalf("%s: expected 400, got %d %+v", q, code, res)
		}
	}
}

func TestShutdownCRUD(t *testing.T) {
	srv := newTestServer(t)
	base := srv.URL + "/api/shutdowns"

	in := map[string]any{
		"region":    "Assam",
		"startTime": "2024-08-01T10:30:00Z",
		"endTime":   "2024-08-03T14:15:00Z",
		"reason":    "Board exam",
	}
	code, res := do(t, http.MethodPost, base, in)
	if code != http.StatusCreated {
		t.Fatalf("create: %d %+v", code, res)
	}
	var created model.ShutdownEvent
	_ = json.Unmarshal(res.Data, &created)
	if created.ID == "" || *created.DurationHours != 52 {
		t.Fatalf("unexpected created event: %+v", created)
	}

	in["id"] = created.ID
	if code, _ := do(t, http.MethodPost, base, in); code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", code)
	}
	if code, _ := do(t, http.MethodPost, base, map[string]any{"region": "Assam"}); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing start, got %d", code)
	}
	if code, _ := do(t, http.MethodPost, base, map[string]any{"bogus": 1}); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", code)
	}

	in["verified"] = true
	if code, res := do(t, http.MethodPut, base+"/"+created.ID, in); code != http.StatusOK {
		t.Fatalf("update: %d %+v", code, res)
	}
	if code, _ := do(t, http.MethodPut, base+"/missing", in); code != http.StatusNotFound {
		t.Fatalf("expected 404 on update, got %d", code)
	}

	// Writes reach the snapshot on the next store refresh; Get falls back to the store.
	code, res = do(t, http.MethodGet, base+"/"+created.ID, nil)
	var got model.ShutdownEvent
	_ = json.Unmarshal(res.Data, &got)
	if code != http.StatusOK || !got.Verified {
		t.Fatalf("get: %d %+v", code, got)
	}

	if code, _ := do(t, http.MethodDelete, base+"/"+created.ID, nil); code != http.StatusOK {
		t.Fatalf("delete: %d", code)
	}
	if code, _ := do(t, http.MethodDelete, base+"/"+created.ID, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", code)
	}
}

func TestStatisticsEndpoints(t *testing.T) {
	srv := newTestServer(t)

	code, res := do(t, http.MethodGet, srv.URL+"/api/statistics", nil)
	var rep struct {
		TotalCount int `json:"totalCount"`
	}
	_ = json.Unmarshal(res.Data, &rep)
	if code != http.StatusOK || rep.TotalCount != 10 {
		t.Fatalf("statistics: %d %s", code, res.Data)
	}

	for _, path := range []string{"reasons", "timeline", "operators"} {
		code, res := do(t, http.MethodGet, srv.URL+"/api/statistics/"+path+"?type=ALL", nil)
		var arr []json.RawMessage
		if code != http.StatusOK || json.Unmarshal(res.Data, &arr) != nil || len(arr) == 0 {
			t.Fatalf("%s: %d %s", path, code, res.Data)
		}
	}
}

func TestRegionEndpoints(t *testing.T) {
	srv := newTestServer(t)

	code, res := do(t, http.MethodGet, srv.URL+"/api/regions", nil)
	if code != http.StatusOK || res.Count != len(model.Regions()) {
		t.Fatalf("regions: %d count=%d", code, res.Count)
	}

	code, res = do(t, http.MethodGet, srv.URL+"/api/regions/counts?type=FULL", nil)
	var counts map[string]int
	_ = json.Unmarshal(res.Data, &counts)
	if code != http.StatusOK || len(counts) == 0 {
		t.Fatalf("counts: %d %s", code, res.Data)
	}

	code, res = do(t, http.MethodGet, srv.URL+"/api/regions/RJ", nil)
	var d struct {
		Name  string `json:"name"`
		Total int    `json:"totalShutdowns"`
	}
	_ = json.Unmarshal(res.Data, &d)
	if code != http.StatusOK || d.Name != "Rajasthan" || d.Total == 0 {
		t.Fatalf("details: %d %s", code, res.Data)
	}

	if code, _ := do(t, http.MethodGet, srv.URL+"/api/regions/Atlantis", nil); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
}

func TestExportXLSX(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/shutdowns/export.xlsx?reason=EXAM")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(resp.Header.Get("Content-Disposition"), ".xlsx") {
		t.Fatalf("unexpected response %d %v", resp.StatusCode, resp.Header)
	}
	f, err := excelize.OpenReader(resp.Body)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows("shutdowns")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 || rows[0][0] != "ID" {
		t.Fatalf("expected header plus 3 rows, got %d", len(rows))
	}
}

func TestHealthSourcesMetricsCORS(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: %v %v", resp, err)
	}
	resp.Body.Close()

	code, res := do(t, http.MethodGet, srv.URL+"/api/sources", nil)
	if code != http.StatusOK || !strings.Contains(string(res.Data), aggregator.StoreSourceName) {
		t.Fatalf("sources: %d %s", code, res.Data)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics: %v %v", resp, err)
	}
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/shutdowns", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent || resp.Header.Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Fatalf("unexpected preflight: %d %v", resp.StatusCode, resp.Header)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{store.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: x", store.ErrConflict), http.StatusConflict},
		{&store.QueryError{Op: "find", Err: errors.New("reset")}, http.StatusBadGateway},
		{model.ErrEndBeforeStart, http.StatusBadRequest},
		{tracker.ErrUnknownRegion, http.StatusNotFound},
		{errNoStore, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
