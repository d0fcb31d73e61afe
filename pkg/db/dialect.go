package db

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/smallbiznis/virtuepath/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Dialect picks the gorm driver for cfg.DBType. Row-level security and the
// embedded migrations assume postgres; mysql and sqlite serve local tooling.
func Dialect(cfg config.Config) (gorm.Dialector, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.DBType)) {
	case "postgres", "postgresql", "":
		return postgres.Open(PostgresDSN(cfg)), nil
	case "mysql":
		return mysql.Open(mysqlDSN(cfg)), nil
	case "sqlite":
		return sqlite.Open(sqliteDSN(cfg.DBName)), nil
	}
	return nil, fmt.Errorf("unsupported database type %q", cfg.DBType)
}

// PostgresDSN renders cfg as a postgres URL. Credentials are escaped so
// passwords may contain any character.
func PostgresDSN(cfg config.Config) string {
	sslMode := cfg.DBSSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.DBUser, cfg.DBPassword),
		Host:     cfg.DBHost + ":" + cfg.DBPort,
		Path:     "/" + cfg.DBName,
		RawQuery: url.Values{"sslmode": {sslMode}, "TimeZone": {"UTC"}}.Encode(),
	}
	return u.String()
}

func mysqlDSN(cfg config.Config) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
}

func sqliteDSN(name string) string {
	if name == "" || name == ":memory:" {
		return "file::memory:?cache=shared"
	}
	if strings.HasSuffix(name, ".db") {
		return name
	}
	return name + ".db"
}
