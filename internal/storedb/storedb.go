// Package storedb opens the pure-Go (no cgo) sqlite-backed *gorm.DB
// connections shared by the cache and promise stores. The
// modernc.org/sqlite + gorm.io/driver/sqlite wiring is grounded on
// arkeep-io-arkeep's server/internal/db/db.go, trimmed to AutoMigrate
// instead of golang-migrate since each store owns exactly one
// fixed-schema table rather than an evolving migration history.
package storedb

import (
	"database/sql"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	_ "modernc.org/sqlite"
)

// Open connects to the sqlite file at path using the modernc driver and
// hands the existing *sql.DB to gorm, then runs AutoMigrate for each
// model. SQLite allows a single writer; MaxOpenConns is pinned to 1 so
// concurrent store goroutines serialize on the connection instead of
// racing SQLITE_BUSY errors.
func Open(path string, models ...interface{}) (*gorm.DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storedb: open %s: %w", path, err)
	}
	sqlDB.SetMaxOpenConns(1)

	db, err := gorm.Open(sqlite.Dialector{Conn: sqlDB}, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("storedb: gorm open %s: %w", path, err)
	}

	if len(models) > 0 {
		if err := db.AutoMigrate(models...); err != nil {
			return nil, fmt.Errorf("storedb: automigrate %s: %w", path, err)
		}
	}

	return db, nil
}
