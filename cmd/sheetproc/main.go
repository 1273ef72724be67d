package main

import (
	"encoding/json"
	"os"

	"github.com/drawalign/drawalign/internal/logger"
	"github.com/drawalign/drawalign/internal/processor"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	Input   string `short:"i" long:"in"       description:"Rendered sheet image (png, jpeg, bmp, tiff or webp)" required:"true"`
	OutDir  string `short:"o" long:"out-dir"  description:"Output directory for processed cuts" default:"."`
	Cuts    string `short:"C" long:"cuts"     description:"YAML file describing cut regions"`
	MaxDim  int    `short:"m" long:"max-dim"  description:"Cap the longer output edge in pixels (0 = full resolution)" default:"0"`
	Summary bool   `short:"s" long:"summary"  description:"Print a JSON summary of the outputs to stdout"`
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

	opts.Logger.Setup()

	var cuts []processor.CutRegion
	if opts.Cuts != "" {
		data, err := os.ReadFile(opts.Cuts)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read cuts file")
		}
		if err := yaml.Unmarshal(data, &cuts); err != nil {
			log.Fatal().Err(err).Msg("Failed to parse cuts file")
		}
	}

	outputs, err := processor.ProcessSheetImage(opts.Input, opts.OutDir, cuts, opts.MaxDim)
	if err != nil {
		log.Fatal().Err(err).Msg("Sheet processing failed")
	}

	log.Info().Int("outputs", len(outputs)).Str("dir", opts.OutDir).Msg("Sheet processing finished")

	if opts.Summary {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(outputs)
	}
}
