package calib

import (
	"fmt"
	"math"
)

// metersPerDegree is the equirectangular meters-per-degree constant at the
// equator. The approximation is only valid for small offsets from the
// reference point (tens of kilometers); its error grows with radius and no
// correction is applied.
const metersPerDegree = 111320.0

// ReferenceTransform is the similarity transform (uniform scale + rotation +
// translation, no shear) projecting geographic points onto the canvas
// relative to the calibration's reference point. It is immutable and safe
// for concurrent use.
type ReferenceTransform struct {
	refLat, refLon   float64
	refPixX, refPixY float64
	ppm              float64
	cosR, sinR       float64
	cosLat           float64
}

// NewReferenceTransform builds the transform from a calibration snapshot.
// It fails with ErrInvalidCalibrationState when the scale is non-finite or
// not positive, or when no reference point has been set, so that projection
// can never emit NaN or Infinity.
func NewReferenceTransform(s State) (*ReferenceTransform, error) {
	if !isFinite(s.PixelsPerMeter) || s.PixelsPerMeter <= 0 {
		return nil, fmt.Errorf("%w: pixels_per_meter must be a finite value greater than 0, got %v",
			ErrInvalidCalibrationState, s.PixelsPerMeter)
	}
	if s.Reference == nil {
		return nil, fmt.Errorf("%w: no reference point set", ErrInvalidCalibrationState)
	}

	rad := s.AssetRotation * math.Pi / 180.0

	return &ReferenceTransform{
		refLat:  s.Reference.GeoLat,
		refLon:  s.Reference.GeoLon,
		refPixX: s.Reference.PixelX,
		refPixY: s.Reference.PixelY,
		ppm:     s.PixelsPerMeter,
		cosR:    math.Cos(rad),
		sinR:    math.Sin(rad),
		cosLat:  math.Cos(s.Reference.GeoLat * math.Pi / 180.0),
	}, nil
}

// ToPixel projects a geographic point (lon, lat in degrees) onto the canvas.
//
// The offset from the reference point is converted to local meters with the
// equirectangular approximation, rotated by the asset rotation, scaled to
// pixels and translated to the reference pixel. Latitude is negated because
// it increases northward while canvas Y increases downward.
func (t *ReferenceTransform) ToPixel(lon, lat float64) (x, y float64) {
	metersX := (lon - t.refLon) * metersPerDegree * t.cosLat
	metersY := -((lat - t.refLat) * metersPerDegree)

	rotX := metersX*t.cosR - metersY*t.sinR
	rotY := metersX*t.sinR + metersY*t.cosR

	return t.refPixX + rotX*t.ppm, t.refPixY + rotY*t.ppm
}

// ToGeo inverts ToPixel, mapping a canvas pixel back to (lon, lat).
func (t *ReferenceTransform) ToGeo(x, y float64) (lon, lat float64) {
	rotX := (x - t.refPixX) / t.ppm
	rotY := (y - t.refPixY) / t.ppm

	// Inverse rotation: transpose of the rotation matrix.
	metersX := rotX*t.cosR + rotY*t.sinR
	metersY := -rotX*t.sinR + rotY*t.cosR

	lon = t.refLon + metersX/(metersPerDegree*t.cosLat)
	lat = t.refLat - metersY/metersPerDegree
	return lon, lat
}
