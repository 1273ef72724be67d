package calib

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestCalibrateScale(t *testing.T) {
	tests := []struct {
		name          string
		pixelDistance float64
		realDistance  float64
		want          float64
		wantErr       error
	}{
		{
			name:          "200 pixels over 2 meters",
			pixelDistance: 200.0,
			realDistance:  2.0,
			want:          100.0,
		},
		{
			name:          "fractional result",
			pixelDistance: 1.0,
			realDistance:  3.0,
			want:          1.0 / 3.0,
		},
		{
			name:          "zero pixel distance",
			pixelDistance: 0,
			realDistance:  5.0,
			wantErr:       ErrInvalidCalibrationInput,
		},
		{
			name:          "negative real distance",
			pixelDistance: 100,
			realDistance:  -2.0,
			wantErr:       ErrInvalidCalibrationInput,
		},
		{
			name:          "NaN pixel distance",
			pixelDistance: math.NaN(),
			realDistance:  2.0,
			wantErr:       ErrInvalidCalibrationInput,
		},
		{
			name:          "infinite real distance",
			pixelDistance: 100,
			realDistance:  math.Inf(1),
			wantErr:       ErrInvalidCalibrationInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalibrateScale(tt.pixelDistance, tt.realDistance)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("got error %v; want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("got %f; want %f", got, tt.want)
			}
		})
	}
}

func TestWithScaleMarksCalibrated(t *testing.T) {
	s := DefaultState()
	if s.Calibrated {
		t.Fatal("default state must not be marked calibrated")
	}

	got, err := s.WithScale(200, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Calibrated {
		t.Error("explicit calibration must set Calibrated")
	}
	if s.Calibrated || s.PixelsPerMeter != 100.0 {
		t.Error("WithScale must not modify the receiver")
	}
}

func newTestTransform(t *testing.T, ppm, rotation float64) *ReferenceTransform {
	t.Helper()
	s := DefaultState()
	s.PixelsPerMeter = ppm
	s.AssetRotation = rotation
	s = s.WithReference(-16.95, 145.75, 500, 300)

	tr, err := NewReferenceTransform(s)
	if err != nil {
		t.Fatalf("NewReferenceTransform: %v", err)
	}
	return tr
}

func TestToPixelReferenceRoundTrip(t *testing.T) {
	tr := newTestTransform(t, 10, 0)

	// The reference point itself must land exactly on the reference pixel.
	x, y := tr.ToPixel(145.75, -16.95)
	if x != 500.0 || y != 300.0 {
		t.Errorf("got (%f, %f); want (500, 300)", x, y)
	}
}

func TestToPixelEastOffset(t *testing.T) {
	tr := newTestTransform(t, 10, 0)

	// 0.001 degrees east at lat -16.95 is about 106.5 meters.
	x, y := tr.ToPixel(145.751, -16.95)
	if math.Abs(x-1565.0) > 1.0 {
		t.Errorf("pixel x = %f; want 1565 +-1", x)
	}
	if math.Abs(y-300.0) > 1e-9 {
		t.Errorf("pixel y = %f; want 300", y)
	}
}

func TestToPixelZeroRotationNoAxisMixing(t *testing.T) {
	tr := newTestTransform(t, 10, 0)

	// A pure northward offset must not move pixel X.
	x, y := tr.ToPixel(145.75, -16.94)
	if math.Abs(x-500.0) > 1e-9 {
		t.Errorf("pixel x = %f; want 500", x)
	}
	// North of the reference means up on the canvas, so smaller Y.
	if y >= 300.0 {
		t.Errorf("pixel y = %f; want < 300", y)
	}
}

func TestToGeoInverse(t *testing.T) {
	tests := []struct {
		name     string
		rotation float64
		lon, lat float64
	}{
		{"no rotation", 0, 145.7523, -16.9481},
		{"rotated 30 degrees", 30, 145.7523, -16.9481},
		{"rotated -137.5 degrees", -137.5, 145.748, -16.953},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTestTransform(t, 12.5, tt.rotation)
			x, y := tr.ToPixel(tt.lon, tt.lat)
			lon, lat := tr.ToGeo(x, y)
			if math.Abs(lon-tt.lon) > 1e-9 || math.Abs(lat-tt.lat) > 1e-9 {
				t.Errorf("round trip got (%f, %f); want (%f, %f)", lon, lat, tt.lon, tt.lat)
			}
		})
	}
}

func TestNewReferenceTransformInvalidState(t *testing.T) {
	tests := []struct {
		name  string
		state State
	}{
		{"zero scale", State{PixelsPerMeter: 0, Reference: &ReferencePoint{}}},
		{"negative scale", State{PixelsPerMeter: -5, Reference: &ReferencePoint{}}},
		{"NaN scale", State{PixelsPerMeter: math.NaN(), Reference: &ReferencePoint{}}},
		{"no reference", State{PixelsPerMeter: 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewReferenceTransform(tt.state); !errors.Is(err, ErrInvalidCalibrationState) {
				t.Errorf("got %v; want ErrInvalidCalibrationState", err)
			}
		})
	}
}

func TestMetersToPixel(t *testing.T) {
	s := DefaultState()
	s.PixelsPerMeter = 10
	s.OriginX = 100
	s.OriginY = 50

	x, y := s.MetersToPixel(3, 4)
	if x != 130 || y != 90 {
		t.Errorf("got (%f, %f); want (130, 90)", x, y)
	}

	// 90 degree canvas rotation maps +X meters onto +Y pixels.
	s.CanvasRotation = 90
	x, y = s.MetersToPixel(1, 0)
	if math.Abs(x-100) > 1e-9 || math.Abs(y-60) > 1e-9 {
		t.Errorf("rotated got (%f, %f); want (100, 60)", x, y)
	}
}

func TestParseFinite(t *testing.T) {
	tests := []struct {
		name    string
		raw     any
		want    float64
		wantErr bool
	}{
		{"float", 12.5, 12.5, false},
		{"json number", json.Number("42.25"), 42.25, false},
		{"numeric string", "3.5", 3.5, false},
		{"padded string", "  7 ", 7, false},
		{"non-numeric string", "abc", 0, true},
		{"bad json number", json.Number("nope"), 0, true},
		{"NaN", math.NaN(), 0, true},
		{"infinity", math.Inf(-1), 0, true},
		{"bool", true, 0, true},
		{"nil", nil, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFinite("field", tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidNumberInput) {
					t.Fatalf("got %v; want ErrInvalidNumberInput", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %f; want %f", got, tt.want)
			}
		})
	}
}

func TestParseCoordUnit(t *testing.T) {
	for _, valid := range []string{"meters", "degrees", "gda94_geo", "gda94_mga"} {
		if _, err := ParseCoordUnit(valid); err != nil {
			t.Errorf("ParseCoordUnit(%q) = %v; want nil", valid, err)
		}
	}

	for _, invalid := range []string{"", "feet", "METERS", "wgs84"} {
		if _, err := ParseCoordUnit(invalid); !errors.Is(err, ErrInvalidCoordUnit) {
			t.Errorf("ParseCoordUnit(%q) = %v; want ErrInvalidCoordUnit", invalid, err)
		}
	}
}

func TestApplyPartialUpdate(t *testing.T) {
	s := DefaultState()

	ox, rot := 25.0, 15.0
	next, err := s.Apply(Update{OriginX: &ox, AssetRotation: &rot})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if next.OriginX != 25.0 || next.AssetRotation != 15.0 {
		t.Errorf("supplied fields not applied: %+v", next)
	}
	if next.OriginY != 0 || next.PixelsPerMeter != 100.0 || next.CoordUnit != UnitMeters {
		t.Errorf("absent fields must stay untouched: %+v", next)
	}
}

func TestApplyScalePairRequired(t *testing.T) {
	s := DefaultState()
	pd := 200.0

	if _, err := s.Apply(Update{PixelDistance: &pd}); !errors.Is(err, ErrInvalidCalibrationInput) {
		t.Errorf("lone pixel_distance: got %v; want ErrInvalidCalibrationInput", err)
	}
}

func TestApplyInvalidFieldAbortsBatch(t *testing.T) {
	s := DefaultState()

	pd, rd, ox := 200.0, 0.0, 42.0
	got, err := s.Apply(Update{PixelDistance: &pd, RealDistance: &rd, OriginX: &ox})
	if !errors.Is(err, ErrInvalidCalibrationInput) {
		t.Fatalf("got %v; want ErrInvalidCalibrationInput", err)
	}
	if got != s {
		t.Error("failed batch must leave the state unchanged")
	}
}

func TestParseUpdate(t *testing.T) {
	body := map[string]any{
		"pixel_distance": json.Number("200"),
		"real_distance":  json.Number("2"),
		"coord_unit":     "degrees",
		"ref_asset_id":   "MH-104",
		"ref_pixel_x":    json.Number("500"),
		"ref_pixel_y":    json.Number("300"),
	}

	u, err := ParseUpdate(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	next, err := DefaultState().Apply(u)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	if next.PixelsPerMeter != 100.0 || !next.Calibrated {
		t.Errorf("scale not applied: %+v", next)
	}
	if next.CoordUnit != UnitDegrees || next.RefAssetID != "MH-104" {
		t.Errorf("labels not applied: %+v", next)
	}
	if next.Reference == nil || next.Reference.PixelX != 500 || next.Reference.PixelY != 300 {
		t.Errorf("reference pixel not applied: %+v", next.Reference)
	}
}

func TestParseUpdateInvalidField(t *testing.T) {
	tests := []struct {
		name    string
		body    map[string]any
		wantErr error
	}{
		{"non-numeric origin", map[string]any{"origin_x": "abc"}, ErrInvalidNumberInput},
		{"unknown unit", map[string]any{"coord_unit": "furlongs"}, ErrInvalidCoordUnit},
		{"numeric unit", map[string]any{"coord_unit": json.Number("4")}, ErrInvalidCoordUnit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseUpdate(tt.body); !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v; want %v", err, tt.wantErr)
			}
		})
	}
}
