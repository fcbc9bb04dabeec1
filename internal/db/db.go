package db

import (
	"fmt"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Handle struct {
	DB   *gorm.DB
	Path string // dla sqlite: ścieżka pliku, inaczej opis DSN
}

// Open otwiera bazę wg drivera z configa. Domyślnie sqlite (pure-Go, bez CGO)
// w katalogu danych aplikacji; postgres/mysql wymagają DSN.
func Open(driver, dsn, dataDir string) (*Handle, error) {
	switch driver {
	case "", "sqlite":
		path := dsn
		if path == "" {
			path = filepath.Join(dataDir, "gekosync.db")
		}
		gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
			// Logger: logger.Default.LogMode(logger.Info), // włącz jeśli chcesz verbose SQL
		})
		if err != nil {
			return nil, err
		}
		return &Handle{DB: gdb, Path: path}, nil
	case "postgres":
		gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err != nil {
			return nil, err
		}
		return &Handle{DB: gdb, Path: "postgres"}, nil
	case "mysql":
		gdb, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
		if err != nil {
			return nil, err
		}
		return &Handle{DB: gdb, Path: "mysql"}, nil
	default:
		return nil, fmt.Errorf("nieznany driver bazy: %q", driver)
	}
}
