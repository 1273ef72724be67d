package main

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/drawalign/drawalign/internal/cadastre"
	"github.com/drawalign/drawalign/internal/config"
	"github.com/drawalign/drawalign/internal/logger"
	"github.com/drawalign/drawalign/internal/server"
	"github.com/drawalign/drawalign/internal/store"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile string `short:"c" long:"config"   env:"CONFIG_FILE"    description:"Path to configuration file" default:"config.yaml"`
	Addr       string `short:"a" long:"addr"     env:"LISTEN_ADDRESS" description:"Address to listen on"       default:"0.0.0.0"`
	Port       int    `short:"p" long:"port"     env:"LISTEN_PORT"    description:"Port to listen on"          default:"8080"`
	DataDir    string `short:"d" long:"data-dir" env:"DATA_DIR"       description:"Project data directory"     default:"data"`
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

	// Setup Logging
	opts.Logger.Setup()

	// Load Config; a missing file just means defaults
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Fatal().Err(err).Msg("Failed to load configuration")
		}
		log.Debug().Str("path", opts.ConfigFile).Msg("No configuration file, using defaults")
		cfg = &config.Config{}
	}

	if cfg.DataDir == "" {
		cfg.DataDir = opts.DataDir
	}

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open project store")
	}

	var cad *cadastre.Client
	if cfg.Cadastre.URL != "" {
		client := &http.Client{
			Transport: &http.Transport{
				TLSNextProto:        make(map[string]func(string, *tls.Conn) http.RoundTripper),
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
			},
			Timeout: 30 * time.Second,
		}
		cad = cadastre.NewClient(client, cfg.Cadastre.URL, time.Duration(cfg.Cadastre.CacheTTL)*time.Second)
	}

	srvCtx := server.NewServerContext(cfg, st, cad)
	handler := server.RequestLogger(srvCtx.Routes())

	listenAddr := fmt.Sprintf("%s:%d", opts.Addr, opts.Port)
	log.Info().
		Str("addr", listenAddr).
		Str("data_dir", cfg.DataDir).
		Bool("cadastre", cad != nil).
		Msg("Web server started")

	if err := http.ListenAndServe(listenAddr, handler); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}
