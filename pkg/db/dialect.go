package db

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/domainpay/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Dialect picks the gorm driver for DB_TYPE. Postgres and MySQL sessions
// run in UTC.
func Dialect(cfg config.Config) (gorm.Dialector, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.DBType)) {
	case "postgres":
		return postgres.New(postgres.Config{
			DSN: fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
				cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode),
		}), nil
	case "mysql":
		return mysql.Open(fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)), nil
	case "sqlite":
		return sqlite.Open(sqliteDSN(cfg.DBName)), nil
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.DBType)
	}
}

func sqliteDSN(name string) string {
	name = strings.TrimSpace(name)
	switch {
	case name == "" || name == ":memory:":
		return "file::memory:?cache=shared"
	case strings.HasSuffix(name, ".db"):
		return name
	default:
		return name + ".db"
	}
}

// ForUpdate returns the row-locking suffix for dialects that support it.
// SQLite serializes writers on its own and rejects the clause.
func ForUpdate(conn *gorm.DB) string {
	if conn == nil || conn.Dialector == nil {
		return ""
	}
	switch conn.Dialector.Name() {
	case "postgres", "mysql":
		return " FOR UPDATE"
	default:
		return ""
	}
}
