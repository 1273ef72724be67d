// Package server handles HTTP requests and middleware.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/drawalign/drawalign/assets"
	"github.com/drawalign/drawalign/internal/cadastre"
	"github.com/drawalign/drawalign/internal/calib"
	"github.com/drawalign/drawalign/internal/config"
	"github.com/drawalign/drawalign/internal/store"
)

// ServerContext holds dependencies for request handlers.
type ServerContext struct {
	Store     *store.Store
	Config    *config.Config
	Cadastre  *cadastre.Client
	IndexHTML []byte
	Favicon   []byte
}

// NewServerContext wires the handler dependencies together.
func NewServerContext(cfg *config.Config, st *store.Store, cad *cadastre.Client) *ServerContext {
	log.Info().
		Str("data_dir", cfg.DataDir).
		Bool("cadastre", cad != nil).
		Msg("Initializing server context")

	return &ServerContext{
		Store:     st,
		Config:    cfg,
		Cadastre:  cad,
		IndexHTML: assets.Index,
		Favicon:   assets.Favicon,
	}
}

// Routes registers all handlers on a fresh mux.
func (s *ServerContext) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/projects", s.HandleProjects)
	mux.HandleFunc("/api/projects/", s.HandleProjectSub)
	mux.HandleFunc("/api/import", s.HandleImport)
	mux.HandleFunc("/favicon.ico", s.HandleFavicon)
	mux.HandleFunc("/", s.HandleIndex)
	return mux
}

// writeJSON encodes v as the response body. Encode errors are ignored, the
// client may simply have disconnected.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps an error to a status code and a JSON error body.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, calib.ErrInvalidNumberInput),
		errors.Is(err, calib.ErrInvalidCalibrationInput),
		errors.Is(err, calib.ErrInvalidCalibrationState),
		errors.Is(err, calib.ErrInvalidCoordUnit):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("Request failed")
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}
