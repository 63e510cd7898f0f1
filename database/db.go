package database

import (
	"camviewer/models"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
	"github.com/rs/zerolog/log"
)

var DB *gorm.DB

// InitDB opens the clip catalog. The catalog is rebuilt from disk on every
// scan, so it lives in memory and nothing survives a restart.
func InitDB() {
	var err error
	DB, err = gorm.Open("sqlite3", "file::memory:?cache=shared")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open catalog database")
	}

	// A single connection keeps the shared in-memory database alive.
	DB.DB().SetMaxOpenConns(1)

	DB.AutoMigrate(&models.Clip{}, &models.Segment{})
	log.Info().Msg("catalog database ready")
}

func CloseDB() {
	if DB != nil {
		DB.Close()
	}
}
