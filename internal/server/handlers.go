package server

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/drawalign/drawalign/internal/cadastre"
	"github.com/drawalign/drawalign/internal/calib"
	"github.com/drawalign/drawalign/internal/processor"
	"github.com/drawalign/drawalign/internal/store"
)

// maxUploadBytes caps CSV and package uploads.
const maxUploadBytes = 64 << 20

// HandleProjects serves the project collection: list and create.
func (s *ServerContext) HandleProjects(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		projects, err := s.Store.List()
		if err != nil {
			writeError(w, err)
			return
		}
		if projects == nil {
			projects = []*store.Project{}
		}
		writeJSON(w, http.StatusOK, projects)

	case http.MethodPost:
		var body struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		if strings.TrimSpace(body.Name) == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "'name' is required"})
			return
		}

		p, err := s.Store.Create(body.Name, body.Description)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, p)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleProjectSub dispatches /api/projects/{id} and its sub-resources.
func (s *ServerContext) HandleProjectSub(w http.ResponseWriter, r *http.Request) {
	// Path: /api/projects/{id}[/...]
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 3 {
		http.NotFound(w, r)
		return
	}

	id, err := strconv.Atoi(parts[2])
	if err != nil {
		http.NotFound(w, r)
		return
	}
	rest := parts[3:]

	switch {
	case len(rest) == 0:
		s.handleProjectDetail(w, r, id)
	case len(rest) == 1 && rest[0] == "calibrate" && r.Method == http.MethodPost:
		s.handleCalibrate(w, r, id)
	case len(rest) == 2 && rest[0] == "assets" && rest[1] == "import" && r.Method == http.MethodPost:
		s.handleAssetImport(w, r, id)
	case len(rest) == 2 && rest[0] == "links" && rest[1] == "import" && r.Method == http.MethodPost:
		s.handleLinkImport(w, r, id)
	case len(rest) == 3 && rest[0] == "assets" && rest[2] == "adjust" && r.Method == http.MethodPost:
		s.handleAssetAdjust(w, r, id, rest[1])
	case len(rest) == 1 && rest[0] == "adjustments" && r.Method == http.MethodGet:
		s.handleAdjustmentReport(w, r, id)
	case len(rest) == 1 && rest[0] == "cadastre" && r.Method == http.MethodPost:
		s.handleCadastre(w, r, id)
	case len(rest) == 1 && rest[0] == "export" && r.Method == http.MethodGet:
		s.handleExport(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (s *ServerContext) handleProjectDetail(w http.ResponseWriter, r *http.Request, id int) {
	switch r.Method {
	case http.MethodGet:
		p, err := s.Store.Get(id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)

	case http.MethodDelete:
		if err := s.Store.Delete(id); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleCalibrate applies a partial calibration update. Fields are validated
// individually; the first invalid one aborts the batch and nothing is
// committed.
func (s *ServerContext) handleCalibrate(w http.ResponseWriter, r *http.Request, id int) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()

	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	update, err := calib.ParseUpdate(body)
	if err != nil {
		writeError(w, err)
		return
	}

	p, err := s.Store.UpdateCalibration(id, func(st calib.State) (calib.State, error) {
		return st.Apply(update)
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, p.Calibration)
}

func (s *ServerContext) handleAssetImport(w http.ResponseWriter, r *http.Request, id int) {
	s.handleCSVImport(w, r, id, processor.ImportAssets)
}

func (s *ServerContext) handleLinkImport(w http.ResponseWriter, r *http.Request, id int) {
	s.handleCSVImport(w, r, id, processor.ImportLinks)
}

func (s *ServerContext) handleCSVImport(
	w http.ResponseWriter,
	r *http.Request,
	id int,
	importFn func(*store.Project, io.Reader) (*processor.ImportResult, error),
) {
	body, err := uploadReader(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	defer func() { _ = body.Close() }()

	var res *processor.ImportResult
	_, err = s.Store.Update(id, func(p *store.Project) error {
		var ierr error
		res, ierr = importFn(p, body)
		return ierr
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// uploadReader returns the CSV payload: the "file" part of a multipart form,
// or the raw body otherwise.
func uploadReader(r *http.Request) (io.ReadCloser, error) {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return nil, fmt.Errorf("invalid multipart form: %w", err)
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			return nil, fmt.Errorf("no file provided")
		}
		return f, nil
	}
	return http.MaxBytesReader(nil, r.Body, maxUploadBytes), nil
}

func (s *ServerContext) handleAssetAdjust(w http.ResponseWriter, r *http.Request, id int, assetID string) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()

	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	x, err := calib.ParseFinite("x", body["x"])
	if err != nil {
		writeError(w, err)
		return
	}
	y, err := calib.ParseFinite("y", body["y"])
	if err != nil {
		writeError(w, err)
		return
	}
	notes, _ := body["notes"].(string)

	p, err := s.Store.Update(id, func(p *store.Project) error {
		return p.AdjustAsset(assetID, x, y, notes)
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, p.FindAsset(assetID))
}

func (s *ServerContext) handleAdjustmentReport(w http.ResponseWriter, r *http.Request, id int) {
	p, err := s.Store.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		s.writeAdjustmentCSV(w, p)
		return
	}

	type summary struct {
		AssetID       string  `json:"asset_id"`
		Name          string  `json:"name,omitempty"`
		OriginalX     float64 `json:"original_x"`
		OriginalY     float64 `json:"original_y"`
		CurrentX      float64 `json:"current_x"`
		CurrentY      float64 `json:"current_y"`
		DeltaDistance float64 `json:"delta_distance"`
	}

	var adjusted []summary
	for i := range p.Assets {
		a := &p.Assets[i]
		if !a.Adjusted {
			continue
		}
		adjusted = append(adjusted, summary{
			AssetID:       a.AssetID,
			Name:          a.Name,
			OriginalX:     a.OriginalX,
			OriginalY:     a.OriginalY,
			CurrentX:      a.CurrentX(),
			CurrentY:      a.CurrentY(),
			DeltaDistance: a.DeltaDistance(),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"project":        p.Name,
		"total_assets":   len(p.Assets),
		"adjusted_count": len(adjusted),
		"summary":        adjusted,
		"adjustments":    p.Adjustments,
	})
}

func (s *ServerContext) writeAdjustmentCSV(w http.ResponseWriter, p *store.Project) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"project_%d_adjustments.csv\"", p.ID))

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{
		"asset_id", "name", "type",
		"original_x", "original_y", "current_x", "current_y", "delta_distance",
	})

	for i := range p.Assets {
		a := &p.Assets[i]
		if !a.Adjusted {
			continue
		}
		_ = cw.Write([]string{
			a.AssetID, a.Name, a.Type,
			strconv.FormatFloat(a.OriginalX, 'f', 3, 64),
			strconv.FormatFloat(a.OriginalY, 'f', 3, 64),
			strconv.FormatFloat(a.CurrentX(), 'f', 3, 64),
			strconv.FormatFloat(a.CurrentY(), 'f', 3, 64),
			strconv.FormatFloat(a.DeltaDistance(), 'f', 3, 64),
		})
	}
	cw.Flush()
}

// handleCadastre fetches boundary parcels around the project's reference
// asset and returns them projected into canvas pixels, along with how many
// non-polygon features were skipped.
func (s *ServerContext) handleCadastre(w http.ResponseWriter, r *http.Request, id int) {
	if s.Cadastre == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "cadastre service not configured"})
		return
	}

	dec := json.NewDecoder(r.Body)
	dec.UseNumber()

	body := map[string]any{}
	if err := dec.Decode(&body); err != nil && err != io.EOF {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	radius := 500
	if raw, ok := body["radius"]; ok && raw != nil {
		v, err := calib.ParseFinite("radius", raw)
		if err != nil {
			writeError(w, err)
			return
		}
		radius = int(v)
	}

	p, err := s.Store.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}

	ref := p.FindAsset(p.Calibration.RefAssetID)
	if ref == nil {
		writeError(w, fmt.Errorf("%w: project has no resolvable reference asset",
			calib.ErrInvalidCalibrationState))
		return
	}

	fc, err := s.Cadastre.FetchBoundaries(ref.CurrentY(), ref.CurrentX(), radius)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}

	projected, skipped, err := cadastre.TransformForProject(fc, p)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"features": projected,
		"skipped":  skipped,
	})
}

func (s *ServerContext) handleExport(w http.ResponseWriter, r *http.Request, id int) {
	p, err := s.Store.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"project_%d.drawalign\"", p.ID))

	if err := s.Store.WritePackage(p, w); err != nil {
		// Headers are already sent, all we can do is log.
		log.Error().Err(err).Int("id", id).Msg("Package export failed mid-stream")
	}
}

// HandleImport accepts a .drawalign package and stores it as a new project.
func (s *ServerContext) HandleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := uploadReader(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	defer func() { _ = body.Close() }()

	data, err := io.ReadAll(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	loaded, err := store.ReadPackage(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	p, err := s.Store.Import(loaded)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.Store.UnpackSheets(p.ID, bytes.NewReader(data), int64(len(data))); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, p)
}

// HandleFavicon serves the site favicon.
func (s *ServerContext) HandleFavicon(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/favicon.ico" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "image/x-icon")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	_, _ = w.Write(s.Favicon)
}

// HandleIndex serves the viewer application.
func (s *ServerContext) HandleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && strings.Contains(r.URL.Path, ".") {
		http.NotFound(w, r)
		return
	}

	etag := fmt.Sprintf(`"%x"`, len(s.IndexHTML))

	if match := r.Header.Get("If-None-Match"); match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, no-cache")
	_, _ = w.Write(s.IndexHTML)
}
