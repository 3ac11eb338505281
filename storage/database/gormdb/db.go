package gormrepos

import (
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open opens (creating it if needed) the SQLite database at path and migrates its schema.
// ":memory:" opens a private in-memory database.
func Open(path string) (*gorm.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, errors.Wrap(err, "creating database directory")
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}

	// sqlite allows a single writer; an in-memory database only lives on its connection
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "getting database handle")
	}
	sqlDB.SetMaxOpenConns(1)

	if err = db.AutoMigrate(&scanRecord{}); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrap(err, "migrating database")
	}
	return db, nil
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
