// Package calib implements canvas calibration: anchoring canvas pixel space
// to real-world units and projecting geographic points onto the canvas.
package calib

import (
	"errors"
	"fmt"
	"math"
)

// Validation errors. Wrapped errors carry the name of the offending field,
// match with errors.Is.
var (
	ErrInvalidNumberInput      = errors.New("invalid number input")
	ErrInvalidCalibrationInput = errors.New("invalid calibration input")
	ErrInvalidCalibrationState = errors.New("invalid calibration state")
	ErrInvalidCoordUnit        = errors.New("invalid coordinate unit")
)

// CoordUnit labels the coordinate system of a project's source data.
type CoordUnit string

const (
	UnitMeters   CoordUnit = "meters"
	UnitDegrees  CoordUnit = "degrees"
	UnitGDA94Geo CoordUnit = "gda94_geo"
	UnitGDA94MGA CoordUnit = "gda94_mga"
)

// ParseCoordUnit validates a coordinate unit label.
// gda94_geo and gda94_mga are accepted as labels but share the transform
// behavior of degrees and meters respectively; no MGA projection is applied.
func ParseCoordUnit(s string) (CoordUnit, error) {
	switch CoordUnit(s) {
	case UnitMeters, UnitDegrees, UnitGDA94Geo, UnitGDA94MGA:
		return CoordUnit(s), nil
	}
	return "", fmt.Errorf("%w: %q is not one of meters, degrees, gda94_geo, gda94_mga",
		ErrInvalidCoordUnit, s)
}

// ReferencePoint anchors one known geographic location to one canvas pixel.
type ReferencePoint struct {
	GeoLat float64 `json:"geo_lat" yaml:"geo_lat"`
	GeoLon float64 `json:"geo_lon" yaml:"geo_lon"`
	PixelX float64 `json:"pixel_x" yaml:"pixel_x"`
	PixelY float64 `json:"pixel_y" yaml:"pixel_y"`
}

// State is a calibration snapshot. It is a value: mutators return a new
// State and never modify the receiver, so a snapshot can be read from
// concurrent handlers without locking. The owning store is responsible for
// swapping states atomically.
type State struct {
	PixelsPerMeter float64         `json:"pixels_per_meter" yaml:"pixels_per_meter"`
	OriginX        float64         `json:"origin_x" yaml:"origin_x"`
	OriginY        float64         `json:"origin_y" yaml:"origin_y"`
	CanvasRotation float64         `json:"canvas_rotation" yaml:"canvas_rotation"`
	AssetRotation  float64         `json:"asset_rotation" yaml:"asset_rotation"`
	CoordUnit      CoordUnit       `json:"coord_unit" yaml:"coord_unit"`
	RefAssetID     string          `json:"ref_asset_id,omitempty" yaml:"ref_asset_id,omitempty"`
	Reference      *ReferencePoint `json:"reference,omitempty" yaml:"reference,omitempty"`

	// Calibrated distinguishes an explicit user calibration from the
	// default scale, which is otherwise indistinguishable from a real
	// calibration of 100 px/m.
	Calibrated bool `json:"calibrated" yaml:"calibrated"`
}

// DefaultState returns the calibration a new project starts with.
func DefaultState() State {
	return State{
		PixelsPerMeter: 100.0,
		CoordUnit:      UnitMeters,
	}
}

// CalibrateScale derives the pixels-per-meter ratio from a measured pixel
// distance and the matching real-world distance in meters. Both inputs must
// be finite and strictly positive.
func CalibrateScale(pixelDistance, realDistance float64) (float64, error) {
	if !isFinite(pixelDistance) || pixelDistance <= 0 {
		return 0, fmt.Errorf("%w: 'pixel_distance' must be greater than 0", ErrInvalidCalibrationInput)
	}
	if !isFinite(realDistance) || realDistance <= 0 {
		return 0, fmt.Errorf("%w: 'real_distance' must be greater than 0", ErrInvalidCalibrationInput)
	}
	return pixelDistance / realDistance, nil
}

// WithScale returns a copy of s calibrated from the given distance pair.
func (s State) WithScale(pixelDistance, realDistance float64) (State, error) {
	ppm, err := CalibrateScale(pixelDistance, realDistance)
	if err != nil {
		return s, err
	}
	s.PixelsPerMeter = ppm
	s.Calibrated = true
	return s, nil
}

// WithReference returns a copy of s anchored at the given geographic point
// mapped to the given canvas pixel.
func (s State) WithReference(geoLat, geoLon, pixelX, pixelY float64) State {
	s.Reference = &ReferencePoint{GeoLat: geoLat, GeoLon: geoLon, PixelX: pixelX, PixelY: pixelY}
	return s
}

// MetersToPixel places a meter-space coordinate on the canvas: scale by
// pixels-per-meter, rotate by the canvas rotation, translate by the origin
// offset.
func (s State) MetersToPixel(mx, my float64) (x, y float64) {
	px := mx * s.PixelsPerMeter
	py := my * s.PixelsPerMeter

	if s.CanvasRotation != 0 {
		rad := s.CanvasRotation * math.Pi / 180.0
		cos, sin := math.Cos(rad), math.Sin(rad)
		px, py = px*cos-py*sin, px*sin+py*cos
	}

	return s.OriginX + px, s.OriginY + py
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
