package store

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"
)

// Package layout of a portable .drawalign archive.
const (
	packageProjectFile = "project.json"
	packageAssetsFile  = "assets.geojson"
	packageSheetPrefix = "sheets/"
)

// WritePackage streams a portable project archive: the full project document,
// the assets as a GeoJSON FeatureCollection for GIS tooling, and the
// processed sheet images.
func (s *Store) WritePackage(p *Project, w io.Writer) error {
	zw := zip.NewWriter(w)

	pf, err := zw.Create(packageProjectFile)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(pf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(p); err != nil {
		return err
	}

	af, err := zw.Create(packageAssetsFile)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(af).Encode(assetCollection(p)); err != nil {
		return err
	}

	if err := s.packSheets(p.ID, zw); err != nil {
		return err
	}

	log.Info().
		Int("id", p.ID).
		Int("assets", len(p.Assets)).
		Int("sheets", len(p.Sheets)).
		Msg("Project package written")

	return zw.Close()
}

// ReadPackage parses a portable archive back into a project. The caller
// stores it with Import to assign a fresh ID.
func ReadPackage(r io.ReaderAt, size int64) (*Project, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("not a valid project package: %w", err)
	}

	var p *Project
	for _, f := range zr.File {
		if f.Name != packageProjectFile {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		err = json.NewDecoder(rc).Decode(&p)
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("corrupt %s: %w", packageProjectFile, err)
		}
		break
	}

	if p == nil {
		return nil, fmt.Errorf("package has no %s", packageProjectFile)
	}
	return p, nil
}

// UnpackSheets extracts the sheet images of a package into the project's
// sheet directory. Entry names are flattened to their base name to keep the
// archive from writing outside the target directory.
func (s *Store) UnpackSheets(id int, r io.ReaderAt, size int64) error {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return err
	}

	dir := s.SheetDir(id)
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || filepath.Dir(f.Name)+"/" != packageSheetPrefix {
			continue
		}

		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}

		rc, err := f.Open()
		if err != nil {
			return err
		}

		dst, err := os.Create(filepath.Join(dir, filepath.Base(f.Name)))
		if err != nil {
			_ = rc.Close()
			return err
		}

		_, err = io.Copy(dst, rc)
		_ = rc.Close()
		if closeErr := dst.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) packSheets(id int, zw *zip.Writer) error {
	dir := s.SheetDir(id)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		src, err := os.Open(filepath.Join(dir, e.Name()))
		if err != nil {
			return err
		}

		dst, err := zw.Create(packageSheetPrefix + e.Name())
		if err != nil {
			_ = src.Close()
			return err
		}

		_, err = io.Copy(dst, src)
		_ = src.Close()
		if err != nil {
			return err
		}
	}

	return nil
}

// assetCollection renders the project's assets as GeoJSON points in their
// current (possibly adjusted) positions, with metadata as properties.
func assetCollection(p *Project) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for i := range p.Assets {
		a := &p.Assets[i]
		f := geojson.NewFeature(orb.Point{a.CurrentX(), a.CurrentY()})
		f.Properties = geojson.Properties{
			"asset_id": a.AssetID,
			"name":     a.Name,
			"type":     a.Type,
			"adjusted": a.Adjusted,
		}
		for k, v := range a.Metadata {
			f.Properties[k] = v
		}
		fc.Append(f)
	}

	return fc
}
