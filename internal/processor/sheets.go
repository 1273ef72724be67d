package processor

import (
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chai2010/webp"
	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// CutRegion is one rectangular cut of a sheet image, in source pixels.
// Zero width or height means "to the edge".
type CutRegion struct {
	Name   string  `json:"name,omitempty" yaml:"name,omitempty"`
	X      float64 `json:"x" yaml:"x"`
	Y      float64 `json:"y" yaml:"y"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// SheetOutput describes one processed sheet image on disk.
type SheetOutput struct {
	Name   string `json:"name"`
	File   string `json:"file"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// ProcessSheetImage loads a rendered sheet image, applies each cut region
// and writes the results as WebP into destDir. With no cuts the whole sheet
// is a single output. maxDim caps the longer output edge; 0 keeps full
// resolution. Encoding runs with bounded concurrency.
func ProcessSheetImage(srcPath, destDir string, cuts []CutRegion, maxDim int) ([]SheetOutput, error) {
	src, err := loadSheetImage(srcPath)
	if err != nil {
		return nil, err
	}

	bounds := src.Bounds()
	log.Info().
		Str("source", srcPath).
		Int("width", bounds.Dx()).
		Int("height", bounds.Dy()).
		Int("cuts", len(cuts)).
		Msg("Sheet image loaded")

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, err
	}

	if len(cuts) == 0 {
		base := strings.TrimSuffix(filepath.Base(srcPath), filepath.Ext(srcPath))
		cuts = []CutRegion{{Name: base}}
	}

	outputs := make([]SheetOutput, len(cuts))
	errs := make([]error, len(cuts))

	var wg sync.WaitGroup
	sem := make(chan struct{}, 4)

	for i, cut := range cuts {
		wg.Add(1)
		sem <- struct{}{}

		go func(i int, cut CutRegion) {
			defer wg.Done()
			defer func() { <-sem }()

			outputs[i], errs[i] = writeCut(src, destDir, i, cut, maxDim)
		}(i, cut)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return outputs, nil
}

func writeCut(src image.Image, destDir string, idx int, cut CutRegion, maxDim int) (SheetOutput, error) {
	bounds := src.Bounds()

	x0 := bounds.Min.X + int(cut.X)
	y0 := bounds.Min.Y + int(cut.Y)
	x1, y1 := bounds.Max.X, bounds.Max.Y
	if cut.Width > 0 {
		x1 = x0 + int(cut.Width)
	}
	if cut.Height > 0 {
		y1 = y0 + int(cut.Height)
	}

	rect := image.Rect(x0, y0, x1, y1).Intersect(bounds)
	if rect.Empty() {
		return SheetOutput{}, fmt.Errorf("cut %d is outside the sheet image", idx)
	}

	cropped := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(cropped, cropped.Bounds(), src, rect.Min, draw.Src)

	out := image.Image(cropped)
	w, h := rect.Dx(), rect.Dy()

	if maxDim > 0 && (w > maxDim || h > maxDim) {
		scale := float64(maxDim) / float64(max(w, h))
		w = int(float64(w) * scale)
		h = int(float64(h) * scale)

		scaled := image.NewRGBA(image.Rect(0, 0, w, h))
		xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), cropped, cropped.Bounds(), draw.Over, nil)
		out = scaled
	}

	name := cut.Name
	if name == "" {
		name = fmt.Sprintf("cut_%d", idx)
	}
	outPath := filepath.Join(destDir, name+".webp")

	f, err := os.Create(outPath)
	if err != nil {
		return SheetOutput{}, err
	}
	defer func() { _ = f.Close() }()

	if err := webp.Encode(f, out, &webp.Options{Lossless: false, Quality: 85}); err != nil {
		return SheetOutput{}, err
	}

	log.Debug().Str("file", outPath).Int("width", w).Int("height", h).Msg("Sheet cut written")

	return SheetOutput{Name: name, File: outPath, Width: w, Height: h}, nil
}

func loadSheetImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode failed: %w", err)
	}

	log.Debug().Str("format", format).Msg("Sheet image decoded")
	return img, nil
}
