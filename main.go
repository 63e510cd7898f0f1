package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"camviewer/api"
	"camviewer/config"
	"camviewer/database"
	"camviewer/services"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg := config.Load()
	os.MkdirAll(cfg.ConfigPath, 0755)

	database.InitDB()
	defer database.CloseDB()

	// Index the footage tree and keep it fresh.
	indexer := services.NewIndexerService(cfg.FootagePath, database.DB)
	if watcher := indexer.Start(); watcher != nil {
		defer watcher.Close()
	}

	footage := services.NewFootageService(services.ProbeFile, cfg.ProbeConcurrency)
	defer footage.Release()

	saver := &services.DirSaver{Dir: cfg.ExportDir()}
	exporter := services.NewExporterService(saver, cfg.ExportFPS, cfg.ExportBitrate)

	r := gin.Default()

	// Trust no proxies by default so ClientIP stays accurate.
	if err := r.SetTrustedProxies(nil); err != nil {
		log.Warn().Err(err).Msg("failed to set trusted proxies")
	}

	r.Use(api.SecurityHeadersMiddleware())
	r.Use(api.MaxBodySizeMiddleware(1 << 20))

	api.SetupRoutes(r, &api.Server{
		Cfg:      cfg,
		Footage:  footage,
		Exporter: exporter,
	})

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Info().Str("addr", addr).Msg("camviewer listening")
	if err := r.Run(addr); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}
