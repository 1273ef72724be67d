package calib

import "fmt"

// Update is a partial calibration update. Only non-nil fields are applied;
// absent fields leave the prior state untouched.
type Update struct {
	PixelDistance  *float64
	RealDistance   *float64
	OriginX        *float64
	OriginY        *float64
	CanvasRotation *float64
	AssetRotation  *float64
	RefAssetID     *string
	RefPixelX      *float64
	RefPixelY      *float64
	CoordUnit      *string
}

// ParseUpdate builds an Update from a decoded JSON object, validating each
// supplied field individually. Decode the body with json.Decoder.UseNumber so
// numeric precision is preserved. The first invalid field aborts the whole
// batch.
func ParseUpdate(body map[string]any) (Update, error) {
	var u Update

	numbers := []struct {
		name string
		dst  **float64
	}{
		{"pixel_distance", &u.PixelDistance},
		{"real_distance", &u.RealDistance},
		{"origin_x", &u.OriginX},
		{"origin_y", &u.OriginY},
		{"canvas_rotation", &u.CanvasRotation},
		{"asset_rotation", &u.AssetRotation},
		{"ref_pixel_x", &u.RefPixelX},
		{"ref_pixel_y", &u.RefPixelY},
	}

	for _, f := range numbers {
		raw, ok := body[f.name]
		if !ok || raw == nil {
			continue
		}
		v, err := ParseFinite(f.name, raw)
		if err != nil {
			return Update{}, err
		}
		*f.dst = &v
	}

	if raw, ok := body["ref_asset_id"]; ok && raw != nil {
		s, ok := raw.(string)
		if !ok {
			return Update{}, fmt.Errorf("%w: 'ref_asset_id' must be a string", ErrInvalidNumberInput)
		}
		u.RefAssetID = &s
	}

	if raw, ok := body["coord_unit"]; ok && raw != nil {
		s, ok := raw.(string)
		if !ok {
			return Update{}, fmt.Errorf("%w: 'coord_unit' must be a string", ErrInvalidCoordUnit)
		}
		if _, err := ParseCoordUnit(s); err != nil {
			return Update{}, err
		}
		u.CoordUnit = &s
	}

	return u, nil
}

// Apply validates the update against s and returns the resulting state.
// Validation happens before anything is applied: on error the returned state
// is s unchanged. A distance pair must be supplied together or not at all.
func (s State) Apply(u Update) (State, error) {
	if (u.PixelDistance == nil) != (u.RealDistance == nil) {
		return s, fmt.Errorf("%w: 'pixel_distance' and 'real_distance' must be supplied together",
			ErrInvalidCalibrationInput)
	}

	next := s

	if u.PixelDistance != nil {
		scaled, err := next.WithScale(*u.PixelDistance, *u.RealDistance)
		if err != nil {
			return s, err
		}
		next = scaled
	}

	if u.OriginX != nil {
		next.OriginX = *u.OriginX
	}
	if u.OriginY != nil {
		next.OriginY = *u.OriginY
	}
	if u.CanvasRotation != nil {
		next.CanvasRotation = *u.CanvasRotation
	}
	if u.AssetRotation != nil {
		next.AssetRotation = *u.AssetRotation
	}
	if u.RefAssetID != nil {
		next.RefAssetID = *u.RefAssetID
	}
	if u.CoordUnit != nil {
		unit, err := ParseCoordUnit(*u.CoordUnit)
		if err != nil {
			return s, err
		}
		next.CoordUnit = unit
	}

	if u.RefPixelX != nil || u.RefPixelY != nil {
		ref := ReferencePoint{}
		if next.Reference != nil {
			ref = *next.Reference
		}
		if u.RefPixelX != nil {
			ref.PixelX = *u.RefPixelX
		}
		if u.RefPixelY != nil {
			ref.PixelY = *u.RefPixelY
		}
		next.Reference = &ref
	}

	return next, nil
}
