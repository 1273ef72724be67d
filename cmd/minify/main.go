// Command minify regenerates the embedded viewer page: it minifies the
// stylesheet and script, renders them into the page template and writes the
// result next to the sources for go:embed to pick up.
package main

import (
	"bytes"
	"os"
	"path/filepath"
	"text/template"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
)

type Options struct {
	AssetDir string `short:"a" long:"asset-dir" description:"Directory holding style.css, script.js and index.html.tpl" default:"assets"`
}

type viewerPage struct {
	CSS string
	JS  string
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

	m := minify.New()
	m.AddFunc("text/css", css.Minify)
	m.AddFunc("text/html", html.Minify)
	m.AddFunc("text/javascript", js.Minify)

	page := viewerPage{
		CSS: minifyFile(m, "text/css", filepath.Join(opts.AssetDir, "style.css")),
		JS:  minifyFile(m, "text/javascript", filepath.Join(opts.AssetDir, "script.js")),
	}

	tplPath := filepath.Join(opts.AssetDir, "index.html.tpl")
	tplRaw, err := os.ReadFile(tplPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", tplPath).Msg("Failed to read page template")
	}
	tpl, err := template.New("index").Parse(string(tplRaw))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to parse page template")
	}

	var buf bytes.Buffer
	if err := tpl.Execute(&buf, page); err != nil {
		log.Fatal().Err(err).Msg("Failed to render viewer page")
	}

	final, err := m.String("text/html", buf.String())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to minify viewer page")
	}

	outPath := filepath.Join(opts.AssetDir, "index.html")
	if err := os.WriteFile(outPath, []byte(final), 0644); err != nil {
		log.Fatal().Err(err).Str("path", outPath).Msg("Failed to write viewer page")
	}

	log.Info().Str("path", outPath).Int("bytes", len(final)).Msg("Viewer page regenerated")
}

func minifyFile(m *minify.M, mediatype, path string) string {
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Failed to read viewer asset")
	}
	out, err := m.String(mediatype, string(raw))
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Failed to minify viewer asset")
	}
	return out
}
