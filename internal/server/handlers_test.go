package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/drawalign/drawalign/internal/config"
	"github.com/drawalign/drawalign/internal/store"
)

func newTestServer(t *testing.T) (*ServerContext, *store.Store) {
	t.Helper()

	dir := t.TempDir()
	st, err := store.Open(dir)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}

	cfg := &config.Config{DataDir: dir}
	return NewServerContext(cfg, st, nil), st
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateAndGetProject(t *testing.T) {
	s, _ := newTestServer(t)
	mux := s.Routes()

	rec := doJSON(t, mux, http.MethodPost, "/api/projects", map[string]string{"name": "Depot North"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d; want 201: %s", rec.Code, rec.Body)
	}

	var created store.Project
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Calibration.PixelsPerMeter != 100.0 {
		t.Errorf("default ppm = %f; want 100", created.Calibration.PixelsPerMeter)
	}

	rec = doJSON(t, mux, http.MethodGet, "/api/projects/1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", rec.Code)
	}

	rec = doJSON(t, mux, http.MethodGet, "/api/projects/99", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing project status = %d; want 404", rec.Code)
	}
}

func TestCreateProjectRequiresName(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s.Routes(), http.MethodPost, "/api/projects", map[string]string{"description": "x"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d; want 400", rec.Code)
	}
}

func TestCalibratePartialUpdate(t *testing.T) {
	s, st := newTestServer(t)
	mux := s.Routes()
	p, _ := st.Create("P", "")

	rec := doJSON(t, mux, http.MethodPost, "/api/projects/1/calibrate", map[string]any{
		"pixel_distance": 200,
		"real_distance":  2,
		"coord_unit":     "degrees",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200: %s", rec.Code, rec.Body)
	}

	got, _ := st.Get(p.ID)
	if got.Calibration.PixelsPerMeter != 100.0 || !got.Calibration.Calibrated {
		t.Errorf("scale not applied: %+v", got.Calibration)
	}
	if got.Calibration.CoordUnit != "degrees" {
		t.Errorf("unit = %s; want degrees", got.Calibration.CoordUnit)
	}

	// A second partial update must leave earlier fields untouched.
	rec = doJSON(t, mux, http.MethodPost, "/api/projects/1/calibrate", map[string]any{
		"origin_x": 42.5,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200: %s", rec.Code, rec.Body)
	}

	got, _ = st.Get(p.ID)
	if got.Calibration.OriginX != 42.5 {
		t.Errorf("origin_x = %f; want 42.5", got.Calibration.OriginX)
	}
	if got.Calibration.CoordUnit != "degrees" || !got.Calibration.Calibrated {
		t.Errorf("earlier calibration lost: %+v", got.Calibration)
	}
}

func TestCalibrateInvalidFieldAborts(t *testing.T) {
	s, st := newTestServer(t)
	mux := s.Routes()
	p, _ := st.Create("P", "")

	rec := doJSON(t, mux, http.MethodPost, "/api/projects/1/calibrate", map[string]any{
		"pixel_distance": 200,
		"real_distance":  0,
		"origin_x":       99,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d; want 400: %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), "real_distance") {
		t.Errorf("error must name the failing field: %s", rec.Body)
	}

	// Nothing from the failed batch may be committed.
	got, _ := st.Get(p.ID)
	if got.Calibration.OriginX != 0 || got.Calibration.Calibrated {
		t.Errorf("failed batch leaked state: %+v", got.Calibration)
	}
}

func TestCalibrateRejectsUnknownUnit(t *testing.T) {
	s, st := newTestServer(t)
	_, _ = st.Create("P", "")

	rec := doJSON(t, s.Routes(), http.MethodPost, "/api/projects/1/calibrate", map[string]any{
		"coord_unit": "furlongs",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d; want 400", rec.Code)
	}
}

func TestAssetImportAndAdjust(t *testing.T) {
	s, st := newTestServer(t)
	mux := s.Routes()
	_, _ = st.Create("P", "")

	csvData := "asset_id,asset_type,x,y\nMH-104,manhole,10,20\n"
	req := httptest.NewRequest(http.MethodPost, "/api/projects/1/assets/import", strings.NewReader(csvData))
	req.Header.Set("Content-Type", "text/csv")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("import status = %d: %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, mux, http.MethodPost, "/api/projects/1/assets/MH-104/adjust", map[string]any{
		"x": 13, "y": 24, "notes": "GPS fix",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("adjust status = %d: %s", rec.Code, rec.Body)
	}

	got, _ := st.Get(1)
	if a := got.FindAsset("MH-104"); !a.Adjusted || a.CurrentX() != 13 {
		t.Errorf("adjustment not persisted: %+v", a)
	}
	if len(got.Adjustments) != 1 || got.Adjustments[0].Notes != "GPS fix" {
		t.Errorf("adjustment log missing: %+v", got.Adjustments)
	}

	rec = doJSON(t, mux, http.MethodGet, "/api/projects/1/adjustments", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("report status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "MH-104") {
		t.Errorf("report missing asset: %s", rec.Body)
	}

	rec = doJSON(t, mux, http.MethodGet, "/api/projects/1/adjustments?format=csv", nil)
	if got := rec.Header().Get("Content-Type"); got != "text/csv" {
		t.Errorf("csv content type = %q", got)
	}
}

func TestAdjustUnknownAsset(t *testing.T) {
	s, st := newTestServer(t)
	_, _ = st.Create("P", "")

	rec := doJSON(t, s.Routes(), http.MethodPost, "/api/projects/1/assets/nope/adjust", map[string]any{
		"x": 1, "y": 2,
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d; want 404", rec.Code)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	s, st := newTestServer(t)
	mux := s.Routes()

	p, _ := st.Create("Round Trip", "")
	p.Assets = []store.Asset{{AssetID: "A-1", Type: "valve", OriginalX: 1, OriginalY: 2}}
	_ = st.Save(p)

	rec := doJSON(t, mux, http.MethodGet, "/api/projects/1/export", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/zip" {
		t.Errorf("content type = %q; want application/zip", got)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/import", bytes.NewReader(rec.Body.Bytes()))
	req.Header.Set("Content-Type", "application/zip")
	rec2 := httptest.NewRecorder()
	mux.ServeHTTP(rec2, req)

	if rec2.Code != http.StatusCreated {
		t.Fatalf("import status = %d: %s", rec2.Code, rec2.Body)
	}

	var imported store.Project
	if err := json.Unmarshal(rec2.Body.Bytes(), &imported); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if imported.ID == p.ID {
		t.Error("import must assign a fresh ID")
	}
	if len(imported.Assets) != 1 {
		t.Errorf("assets = %d; want 1", len(imported.Assets))
	}
}

func TestCadastreUnconfigured(t *testing.T) {
	s, st := newTestServer(t)
	_, _ = st.Create("P", "")

	rec := doJSON(t, s.Routes(), http.MethodPost, "/api/projects/1/cadastre", map[string]any{})
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d; want 503", rec.Code)
	}
}

func TestIndexETag(t *testing.T) {
	s, _ := newTestServer(t)
	mux := s.Routes()

	rec := doJSON(t, mux, http.MethodGet, "/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	etag := rec.Header().Get("ETag")
	if etag == "" {
		t.Fatal("no ETag set")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("If-None-Match", etag)
	rec2 := httptest.NewRecorder()
	mux.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusNotModified {
		t.Errorf("status = %d; want 304", rec2.Code)
	}
}
