// Package store persists projects as JSON documents under a data directory.
package store

import (
	"fmt"
	"math"
	"time"

	"github.com/drawalign/drawalign/internal/calib"
)

// Project is the root document: calibration plus sheets, assets and links.
type Project struct {
	ID          int         `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Created     time.Time   `json:"created"`
	Updated     time.Time   `json:"updated"`
	Calibration calib.State `json:"calibration"`

	Sheets      []Sheet          `json:"sheets,omitempty"`
	Assets      []Asset          `json:"assets,omitempty"`
	Links       []Link           `json:"links,omitempty"`
	AssetTypes  []AssetTypeStyle `json:"asset_types,omitempty"`
	LayerGroups []LayerGroup     `json:"layer_groups,omitempty"`

	Adjustments []AdjustmentLog `json:"adjustments,omitempty"`
}

// AssetTypeStyle configures how assets of one type render on the overlay.
type AssetTypeStyle struct {
	Name       string `json:"name"`
	IconShape  string `json:"icon_shape"` // circle, square, triangle, star, diamond, custom
	CustomIcon string `json:"custom_icon,omitempty"`
	Color      string `json:"color"` // hex, e.g. #FF0000
	Size       int    `json:"size"`  // icon size in pixels
}

// DefaultAssetStyle is used for asset types with no configured styling.
var DefaultAssetStyle = AssetTypeStyle{IconShape: "circle", Color: "#FF0000", Size: 20}

// StyleFor resolves the styling for an asset type name, falling back to the
// default style when the type has no entry.
func (p *Project) StyleFor(typeName string) AssetTypeStyle {
	for _, s := range p.AssetTypes {
		if s.Name == typeName {
			return s
		}
	}
	s := DefaultAssetStyle
	s.Name = typeName
	return s
}

// LayerGroup bundles assets and links for joint visibility toggling.
type LayerGroup struct {
	Name    string `json:"name"`
	Visible bool   `json:"visible"`
}

// Sheet is a rendered drawing page placed on the canvas.
type Sheet struct {
	Name      string  `json:"name"`
	ImageFile string  `json:"image_file"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	OffsetX   float64 `json:"offset_x"`
	OffsetY   float64 `json:"offset_y"`
	Rotation  float64 `json:"rotation"`
	ZIndex    int     `json:"z_index"`

	JoinMarks []JoinMark `json:"join_marks,omitempty"`
}

// JoinMark is a printed cross-reference on a sheet pointing at another sheet,
// e.g. "JOIN TO SHEET B-3". LinkedSheet and LinkedLabel identify the matching
// mark on the other sheet when it has been paired.
type JoinMark struct {
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	ReferenceLabel string  `json:"reference_label"`
	LinkedSheet    string  `json:"linked_sheet,omitempty"`
	LinkedLabel    string  `json:"linked_label,omitempty"`
}

// Asset is an overlay point. Coordinates are in the unit declared by the
// project's calibration. AdjustedX/Y hold a manual correction when Adjusted
// is set; until then the original coordinates stand.
type Asset struct {
	AssetID   string            `json:"asset_id"`
	Name      string            `json:"name,omitempty"`
	Type      string            `json:"type"`
	OriginalX float64           `json:"original_x"`
	OriginalY float64           `json:"original_y"`
	AdjustedX *float64          `json:"adjusted_x,omitempty"`
	AdjustedY *float64          `json:"adjusted_y,omitempty"`
	Adjusted  bool              `json:"adjusted"`
	Metadata  map[string]string `json:"metadata,omitempty"`

	// LayerGroup names the project layer group this asset belongs to, empty
	// for ungrouped.
	LayerGroup string `json:"layer_group,omitempty"`
}

// CurrentX returns the adjusted X if set, otherwise the original.
func (a *Asset) CurrentX() float64 {
	if a.Adjusted && a.AdjustedX != nil {
		return *a.AdjustedX
	}
	return a.OriginalX
}

// CurrentY returns the adjusted Y if set, otherwise the original.
func (a *Asset) CurrentY() float64 {
	if a.Adjusted && a.AdjustedY != nil {
		return *a.AdjustedY
	}
	return a.OriginalY
}

// DeltaDistance is the distance between the original and adjusted positions.
func (a *Asset) DeltaDistance() float64 {
	if !a.Adjusted || a.AdjustedX == nil || a.AdjustedY == nil {
		return 0
	}
	dx := *a.AdjustedX - a.OriginalX
	dy := *a.AdjustedY - a.OriginalY
	return math.Sqrt(dx*dx + dy*dy)
}

// Link is a polyline overlay connecting an ordered run of points.
type Link struct {
	LinkID     string  `json:"link_id"`
	Name       string  `json:"name,omitempty"`
	Points     []Point `json:"points"`
	LayerGroup string  `json:"layer_group,omitempty"`
}

// Point is a bare coordinate pair; the unit comes from context.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// AdjustmentLog records one manual asset correction.
type AdjustmentLog struct {
	AssetID       string    `json:"asset_id"`
	FromX         float64   `json:"from_x"`
	FromY         float64   `json:"from_y"`
	ToX           float64   `json:"to_x"`
	ToY           float64   `json:"to_y"`
	DeltaX        float64   `json:"delta_x"`
	DeltaY        float64   `json:"delta_y"`
	DeltaDistance float64   `json:"delta_distance"`
	Timestamp     time.Time `json:"timestamp"`
	Notes         string    `json:"notes,omitempty"`
}

// FindAsset returns the asset with the given ID, or nil.
func (p *Project) FindAsset(assetID string) *Asset {
	for i := range p.Assets {
		if p.Assets[i].AssetID == assetID {
			return &p.Assets[i]
		}
	}
	return nil
}

// AdjustAsset moves an asset to a corrected position and records the change.
func (p *Project) AdjustAsset(assetID string, x, y float64, notes string) error {
	a := p.FindAsset(assetID)
	if a == nil {
		return fmt.Errorf("asset %q not found", assetID)
	}

	fromX, fromY := a.CurrentX(), a.CurrentY()
	dx, dy := x-fromX, y-fromY

	p.Adjustments = append(p.Adjustments, AdjustmentLog{
		AssetID:       assetID,
		FromX:         fromX,
		FromY:         fromY,
		ToX:           x,
		ToY:           y,
		DeltaX:        dx,
		DeltaY:        dy,
		DeltaDistance: math.Sqrt(dx*dx + dy*dy),
		Timestamp:     time.Now().UTC(),
		Notes:         notes,
	})

	a.AdjustedX = &x
	a.AdjustedY = &y
	a.Adjusted = true
	return nil
}
