// Package processor handles asset data import and sheet image processing.
package processor

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/drawalign/drawalign/internal/calib"
	"github.com/drawalign/drawalign/internal/store"
)

var assetColumns = []string{"asset_id", "asset_type", "x", "y"}
var linkColumns = []string{"link_id", "point_index", "x", "y"}

// ImportResult reports the outcome of a CSV import. Row errors are collected
// per row, the import keeps going past them.
type ImportResult struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Errors  []string `json:"errors,omitempty"`
}

// ImportAssets reads asset rows into the project. Required columns are
// asset_id, asset_type, x and y; a name column is optional and any further
// columns are kept as metadata. Existing assets with the same asset_id are
// updated in place.
func ImportAssets(p *store.Project, r io.Reader) (*ImportResult, error) {
	rows, header, rowErrs, err := readRows(r, assetColumns)
	if err != nil {
		return nil, err
	}

	res := &ImportResult{Errors: rowErrs}

	for _, rec := range rows {
		rowNum, row := rec.num, rec.fields

		assetID := strings.TrimSpace(row["asset_id"])
		assetType := strings.TrimSpace(row["asset_type"])
		if assetID == "" {
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: missing asset_id", rowNum))
			continue
		}
		if assetType == "" {
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: missing asset_type", rowNum))
			continue
		}

		x, err := calib.ParseFinite("x", row["x"])
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: %v", rowNum, err))
			continue
		}
		y, err := calib.ParseFinite("y", row["y"])
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: %v", rowNum, err))
			continue
		}

		applyAssetRow(p, res, assetID, assetType, strings.TrimSpace(row["name"]), x, y, metadataFrom(row, header))
	}

	log.Info().
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("errors", len(res.Errors)).
		Msg("Asset CSV imported")

	return res, nil
}

// ImportLinks reads polyline rows into the project. Rows sharing a link_id
// form one polyline, ordered by point_index.
func ImportLinks(p *store.Project, r io.Reader) (*ImportResult, error) {
	rows, _, rowErrs, err := readRows(r, linkColumns)
	if err != nil {
		return nil, err
	}

	res := &ImportResult{Errors: rowErrs}

	type indexedPoint struct {
		index float64
		pt    store.Point
	}
	groups := make(map[string][]indexedPoint)
	var order []string

	for _, rec := range rows {
		rowNum, row := rec.num, rec.fields

		linkID := strings.TrimSpace(row["link_id"])
		if linkID == "" {
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: missing link_id", rowNum))
			continue
		}

		idx, err := calib.ParseFinite("point_index", row["point_index"])
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: %v", rowNum, err))
			continue
		}
		x, err := calib.ParseFinite("x", row["x"])
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: %v", rowNum, err))
			continue
		}
		y, err := calib.ParseFinite("y", row["y"])
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: %v", rowNum, err))
			continue
		}

		if _, seen := groups[linkID]; !seen {
			order = append(order, linkID)
		}
		groups[linkID] = append(groups[linkID], indexedPoint{index: idx, pt: store.Point{X: x, Y: y}})
	}

	for _, linkID := range order {
		pts := groups[linkID]
		sort.SliceStable(pts, func(i, j int) bool { return pts[i].index < pts[j].index })

		points := make([]store.Point, len(pts))
		for i, ip := range pts {
			points[i] = ip.pt
		}

		replaced := false
		for i := range p.Links {
			if p.Links[i].LinkID == linkID {
				p.Links[i].Points = points
				replaced = true
				res.Updated++
				break
			}
		}
		if !replaced {
			p.Links = append(p.Links, store.Link{LinkID: linkID, Points: points})
			res.Created++
		}
	}

	log.Info().
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("errors", len(res.Errors)).
		Msg("Link CSV imported")

	return res, nil
}

func applyAssetRow(p *store.Project, res *ImportResult, assetID, assetType, name string, x, y float64, meta map[string]string) {
	if existing := p.FindAsset(assetID); existing != nil {
		existing.Type = assetType
		existing.Name = name
		existing.OriginalX = x
		existing.OriginalY = y
		existing.Metadata = meta
		res.Updated++
		return
	}

	p.Assets = append(p.Assets, store.Asset{
		AssetID:   assetID,
		Name:      name,
		Type:      assetType,
		OriginalX: x,
		OriginalY: y,
		Metadata:  meta,
	})
	res.Created++
}

func metadataFrom(row map[string]string, header []string) map[string]string {
	var meta map[string]string
	for _, col := range header {
		switch col {
		case "asset_id", "asset_type", "x", "y", "name":
			continue
		}
		if v := strings.TrimSpace(row[col]); v != "" {
			if meta == nil {
				meta = make(map[string]string)
			}
			meta[col] = v
		}
	}
	return meta
}

// csvRow is one data row with its 1-indexed position in the file, so row
// errors keep pointing at the right line even when ragged rows are skipped.
type csvRow struct {
	num    int
	fields map[string]string
}

// readRows parses the CSV into row maps keyed by header name, tolerating a
// UTF-8 BOM and checking the required columns up front. Rows whose field
// count does not match the header are reported per row, not fatally.
func readRows(r io.Reader, required []string) ([]csvRow, []string, []string, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("reading CSV header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}

	var missing []string
	for _, col := range required {
		found := false
		for _, h := range header {
			if h == col {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, nil, nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}

	var rows []csvRow
	var rowErrs []string
	for num := 2; ; num++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, nil, err
		}
		if len(record) != len(header) {
			rowErrs = append(rowErrs, fmt.Sprintf("row %d: %d fields, header has %d", num, len(record), len(header)))
			continue
		}

		fields := make(map[string]string, len(header))
		for i, col := range header {
			fields[col] = record[i]
		}
		rows = append(rows, csvRow{num: num, fields: fields})
	}

	return rows, header, rowErrs, nil
}
