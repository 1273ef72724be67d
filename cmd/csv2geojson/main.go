package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/drawalign/drawalign/internal/calib"
	"github.com/drawalign/drawalign/internal/processor"
	"github.com/drawalign/drawalign/internal/store"

	"github.com/jessevdk/go-flags"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"gopkg.in/yaml.v3"
)

type Options struct {
	Input  string `short:"i" long:"in" description:"Input asset CSV path. Reads from stdin if empty"`
	Output string `short:"o" long:"out" description:"Output file path. Writes to stdout if empty"`
	Format string `short:"f" long:"format" description:"Output format" choice:"json" choice:"yaml" default:"json"`

	PPM            float64 `long:"ppm" description:"Pixels per meter" default:"100"`
	OriginX        float64 `long:"origin-x" description:"Canvas origin X offset in pixels" default:"0"`
	OriginY        float64 `long:"origin-y" description:"Canvas origin Y offset in pixels" default:"0"`
	CanvasRotation float64 `long:"canvas-rotation" description:"Canvas rotation in degrees" default:"0"`
	AssetRotation  float64 `long:"asset-rotation" description:"Asset layer rotation in degrees" default:"0"`

	Geographic bool    `short:"g" long:"geographic" description:"Emit WGS84 coordinates via the reference anchor instead of canvas pixels"`
	RefLat     float64 `long:"ref-lat" description:"Reference latitude (with --geographic)"`
	RefLon     float64 `long:"ref-lon" description:"Reference longitude (with --geographic)"`
	RefPixelX  float64 `long:"ref-pixel-x" description:"Reference pixel X (with --geographic)"`
	RefPixelY  float64 `long:"ref-pixel-y" description:"Reference pixel Y (with --geographic)"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	state := calib.DefaultState()
	state.PixelsPerMeter = opts.PPM
	state.OriginX = opts.OriginX
	state.OriginY = opts.OriginY
	state.CanvasRotation = opts.CanvasRotation
	state.AssetRotation = opts.AssetRotation

	var transform *calib.ReferenceTransform
	if opts.Geographic {
		state = state.WithReference(opts.RefLat, opts.RefLon, opts.RefPixelX, opts.RefPixelY)
		t, err := calib.NewReferenceTransform(state)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		transform = t
	} else if opts.PPM <= 0 {
		fmt.Fprintln(os.Stderr, "Error: --ppm must be greater than 0")
		os.Exit(1)
	}

	// Read Input
	var input io.Reader = os.Stdin
	if opts.Input != "" {
		f, err := os.Open(opts.Input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading input file: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()
		input = f
	}

	project := &store.Project{}
	res, err := processor.ImportAssets(project, input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing CSV: %v\n", err)
		os.Exit(1)
	}
	for _, rowErr := range res.Errors {
		fmt.Fprintf(os.Stderr, "Skipping %s\n", rowErr)
	}

	fc := geojson.NewFeatureCollection()
	for i := range project.Assets {
		a := &project.Assets[i]

		// Asset coordinates are meters; place them on the canvas first.
		px, py := state.MetersToPixel(a.CurrentX(), a.CurrentY())

		var pt orb.Point
		if transform != nil {
			lon, lat := transform.ToGeo(px, py)
			pt = orb.Point{lon, lat}
		} else {
			pt = orb.Point{px, py}
		}

		feature := geojson.NewFeature(pt)
		feature.Properties = geojson.Properties{
			"asset_id": a.AssetID,
			"name":     a.Name,
			"type":     a.Type,
		}
		fc.Append(feature)
	}

	// marshal
	var outputData []byte
	if opts.Format == "yaml" {
		jsonData, err := json.Marshal(fc)
		if err == nil {
			var doc any
			if err = json.Unmarshal(jsonData, &doc); err == nil {
				outputData, err = yaml.Marshal(doc)
			}
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error marshaling data: %v\n", err)
			os.Exit(1)
		}
	} else {
		outputData, err = json.MarshalIndent(fc, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error marshaling data: %v\n", err)
			os.Exit(1)
		}
	}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, outputData, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing output file: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Successfully converted %d assets to %s (format: %s)\n",
			len(fc.Features), opts.Output, opts.Format)
	} else {
		fmt.Println(string(outputData))
	}
}
