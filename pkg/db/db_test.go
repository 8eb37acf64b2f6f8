package db

import (
	"testing"

	"moralduel-controlplane/pkg/config"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
)

func TestDialect(t *testing.T) {
	cfg := &config.Config{}
	cfg.Database.Type = "postgres"
	cfg.Database.Host = "localhost"
	cfg.Database.Port = "5432"
	cfg.Database.DBNAME = "moralduel"

	d, err := Dialect(cfg)
	require.NoError(t, err)
	require.Equal(t, "postgres", d.Name())
	require.Equal(t, "moralduel", getDBNameFromDialector(d))

	cfg.Database.Type = "MySQL"
	d, err = Dialect(cfg)
	require.NoError(t, err)
	require.Equal(t, "mysql", d.Name())

	cfg.Database.Type = "sqlite"
	d, err = Dialect(cfg)
	require.NoError(t, err)
	require.Equal(t, "sqlite", d.Name())

	cfg.Database.Type = "oracle"
	_, err = Dialect(cfg)
	require.ErrorContains(t, err, "unsupported database type")
}

func TestExtractDBNameFromDSN(t *testing.T) {
	require.Equal(t, "cases", extractDBNameFromDSN("host=db user=u dbname=cases sslmode=disable"))
	require.Equal(t, "cases", extractDBNameFromDSN("u:p@tcp(db:3306)/cases?parseTime=True"))
	require.Equal(t, "unknown", extractDBNameFromDSN(""))

	require.Equal(t, "app", getDBNameFromDialector(postgres.Open("dbname=app")))
	require.Equal(t, "app", getDBNameFromDialector(mysql.Open("u:p@tcp(h:1)/app")))
}
