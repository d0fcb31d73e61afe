package db

import (
	"net/url"
	"testing"

	"github.com/smallbiznis/virtuepath/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresDSNEscapesCredentials(t *testing.T) {
	dsn := PostgresDSN(config.Config{
		DBUser:     "virtue",
		DBPassword: "p@ss:w/rd",
		DBHost:     "db.internal",
		DBPort:     "5432",
		DBName:     "virtuepath",
	})

	u, err := url.Parse(dsn)
	require.NoError(t, err)
	password, _ := u.User.Password()
	assert.Equal(t, "p@ss:w/rd", password)
	assert.Equal(t, "db.internal:5432", u.Host)
	assert.Equal(t, "/virtuepath", u.Path)
	assert.Equal(t, "disable", u.Query().Get("sslmode"))
}

func TestDialectRejectsUnknownType(t *testing.T) {
	_, err := Dialect(config.Config{DBType: "oracle"})
	require.Error(t, err)

	d, err := Dialect(config.Config{DBType: "SQLite", DBName: ":memory:"})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", d.Name())
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "file::memory:?cache=shared", sqliteDSN(""))
	assert.Equal(t, "local.db", sqliteDSN("local"))
	assert.Equal(t, "local.db", sqliteDSN("local.db"))
}
