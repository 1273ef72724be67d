package cadastre

import (
	"fmt"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"

	"github.com/drawalign/drawalign/internal/calib"
	"github.com/drawalign/drawalign/internal/geo"
	"github.com/drawalign/drawalign/internal/store"
)

// TransformForProject projects fetched boundary features onto a project's
// canvas. The project's reference asset supplies the geographic anchor: its
// current coordinates are taken as (lon, lat) and mapped to the calibration's
// reference pixel. Returns the projected features and the count of features
// skipped for having a non-polygon geometry.
func TransformForProject(fc *geojson.FeatureCollection, p *store.Project) (*geojson.FeatureCollection, int, error) {
	state := p.Calibration

	if state.RefAssetID == "" {
		return nil, 0, fmt.Errorf("%w: project has no reference asset", calib.ErrInvalidCalibrationState)
	}
	ref := p.FindAsset(state.RefAssetID)
	if ref == nil {
		return nil, 0, fmt.Errorf("%w: reference asset %q not found",
			calib.ErrInvalidCalibrationState, state.RefAssetID)
	}
	if state.Reference == nil {
		return nil, 0, fmt.Errorf("%w: no reference pixel set", calib.ErrInvalidCalibrationState)
	}

	// Asset coordinates are stored X=lon, Y=lat for geographic projects.
	anchored := state.WithReference(ref.CurrentY(), ref.CurrentX(),
		state.Reference.PixelX, state.Reference.PixelY)

	t, err := calib.NewReferenceTransform(anchored)
	if err != nil {
		return nil, 0, err
	}

	projected, skipped := geo.ProjectCollection(fc, t)

	log.Debug().
		Int("project", p.ID).
		Int("features", len(projected.Features)).
		Int("skipped", skipped).
		Msg("Cadastre features projected")

	return projected, skipped, nil
}
