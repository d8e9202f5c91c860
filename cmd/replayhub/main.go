package main

import (
	"flag"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/ZehenForever/psreplay-stats/internal/config"
	"github.com/ZehenForever/psreplay-stats/internal/logging"
	"github.com/ZehenForever/psreplay-stats/internal/source"
	"github.com/ZehenForever/psreplay-stats/internal/store"
)

func main() {
	cfg, cfgPath, cfgErr := config.Load()
	logger := logging.New(cfg.Debug)
	if cfgErr != nil {
		logger.WithError(cfgErr).WithField("path", cfgPath).Warn("config not loaded, using defaults")
	}

	listen := flag.String("listen", cfg.Hub.Listen, "listen address")
	dbPath := flag.String("db", cfg.Store.Path, "match history database (empty disables history)")
	flag.Parse()

	var st *store.Store
	if *dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(*dbPath), 0o755); err != nil {
			logger.WithError(err).Fatal("create history dir")
		}
		var err error
		st, err = store.Open(*dbPath)
		if err != nil {
			logger.WithError(err).Fatal("open match history")
		}
		defer st.Close()
	}

	fetcher := source.NewClient(source.Options{
		UserAgent: cfg.Source.UserAgent,
		Timeout:   cfg.Source.Timeout,
		Logger:    logger,
	})
	srv := NewServer(fetcher, st, logger)

	httpServer := &http.Server{
		Addr:              *listen,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Infof("replayhub listening on http://%s", *listen)
	if err := httpServer.ListenAndServe(); err != nil {
		logger.WithError(err).Fatal("server stopped")
	}
}
