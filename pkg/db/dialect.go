package db

import (
	"fmt"

	"github.com/smallbiznis/payway/internal/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Dialect builds the gorm dialector for the configured database. Postgres
// only: the idempotency and seed SQL use ON CONFLICT and migrations run
// through the postgres migrate driver.
func Dialect(cfg config.Config) (gorm.Dialector, error) {
	switch cfg.DBType {
	case "postgres":
		return postgres.Open(fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			cfg.DBHost,
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBName,
			cfg.DBPort,
			cfg.DBSSLMode,
		)), nil
	default:
		return nil, fmt.Errorf("unsupported %s type", cfg.DBType)
	}
}
