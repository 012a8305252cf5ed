package database

import (
	"github.com/amai2222/shipment-data-view-sub002/internal/config"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// NewDB connects to the store selected by cfg.DBDriver ("mysql" or
// "postgres").
func NewDB(cfg *config.Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect(cfg.DBDriver, cfg.GetDSN())
	if err != nil {
		return nil, err
	}

	// Connection pool settings
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
