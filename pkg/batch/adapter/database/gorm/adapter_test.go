package gorm_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/tripco2/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/tripco2/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/tripco2/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/tripco2/pkg/batch/adapter/database/gorm/postgres"
	_ "github.com/tigerroll/tripco2/pkg/batch/adapter/database/gorm/sqlite"
	"github.com/tigerroll/tripco2/pkg/batch/core/config"
	"github.com/tigerroll/tripco2/pkg/batch/support/util/logger"
)

type sampleRow struct {
	ID    int64   `gorm:"column:id"`
	Label string  `gorm:"column:label"`
	Value float64 `gorm:"column:value"`
}

func openMemory(t *testing.T) *gormadapter.GormDBAdapter {
	t.Helper()
	conn, err := gormadapter.Open("test", dbconfig.DatabaseConfig{Type: "sqlite", Database: ":memory:"}, "SILENT")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestGormDBAdapter_ExecuteFetchBulkInsert(t *testing.T) {
	ctx := context.Background()
	conn := openMemory(t)

	_, err := conn.Execute(ctx, database.NewStatement("CREATE TABLE samples (id INTEGER PRIMARY KEY, label TEXT, value REAL)"))
	require.NoError(t, err)

	rows := []sampleRow{{1, "a", 1.5}, {2, "b", 2.5}, {3, "c", 3.5}}
	n, err := conn.BulkInsert(ctx, "samples", rows, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	var count int64
	require.NoError(t, conn.Fetch(ctx, &count, database.NewStatement("SELECT COUNT(*) FROM samples WHERE value > ?", 2.0)))
	assert.EqualValues(t, 2, count)

	var got []sampleRow
	require.NoError(t, conn.Fetch(ctx, &got, database.NewStatement("SELECT id, label, value FROM samples ORDER BY id DESC")))
	require.Len(t, got, 3)
	assert.Equal(t, "c", got[0].Label)

	affected, err := conn.Execute(ctx, database.NewStatement("DELETE FROM samples WHERE label = ?", "a"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, affected)

	assert.Equal(t, "sqlite", conn.Type())
	assert.Equal(t, "sqlite3", conn.DriverName())
}

func TestGormDBAdapter_ExecuteUpsert(t *testing.T) {
	ctx := context.Background()
	conn := openMemory(t)
	_, err := conn.Execute(ctx, database.NewStatement("CREATE TABLE samples (id INTEGER PRIMARY KEY, label TEXT, value REAL)"))
	require.NoError(t, err)

	_, err = conn.ExecuteUpsert(ctx, &sampleRow{ID: 7, Label: "first", Value: 1}, "samples", []string{"id"}, []string{"label", "value"})
	require.NoError(t, err)
	_, err = conn.ExecuteUpsert(ctx, &sampleRow{ID: 7, Label: "second", Value: 2}, "samples", []string{"id"}, []string{"label", "value"})
	require.NoError(t, err)

	var got []sampleRow
	require.NoError(t, conn.Fetch(ctx, &got, database.NewStatement("SELECT id, label, value FROM samples")))
	require.Len(t, got, 1)
	assert.Equal(t, "second", got[0].Label)
}

func TestBaseProvider_GetConnection(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Tripco2.DatabaseConfigs["emissions"] = map[string]interface{}{"type": "sqlite", "database": ":memory:"}
	cfg.Tripco2.DatabaseConfigs["warehouse"] = map[string]interface{}{"type": "postgres", "host": "db", "port": 5432}

	provider := gormadapter.NewBaseProvider(cfg, "sqlite", nil)
	defer provider.CloseAll()

	first, err := provider.GetConnection("emissions")
	require.NoError(t, err)
	second, err := provider.GetConnection("emissions")
	require.NoError(t, err)
	assert.Same(t, first, second)

	_, err = provider.GetConnection("warehouse")
	assert.ErrorContains(t, err, "provider type mismatch")

	_, err = provider.GetConnection("missing")
	assert.ErrorContains(t, err, "not found")
}

func TestBaseProvider_LogsToItsLogger(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Tripco2.DatabaseConfigs["emissions"] = map[string]interface{}{"type": "sqlite", "database": ":memory:"}
	var out bytes.Buffer

	provider := gormadapter.NewBaseProvider(cfg, "sqlite", logger.New(&out, logger.LevelInfo))
	_, err := provider.GetConnection("emissions")
	require.NoError(t, err)
	require.NoError(t, provider.CloseAll())

	assert.Contains(t, out.String(), "Established new DB connection: emissions (sqlite)")
	assert.Contains(t, out.String(), "Closing database connection 'emissions'...")
}

func TestDecodeDatabaseConfig(t *testing.T) {
	cfg, err := gormadapter.DecodeDatabaseConfig(map[string]interface{}{
		"type": "postgres", "host": "pg", "port": "5432", "database": "taxi",
		"pool": map[string]interface{}{"max_open_conns": 4},
	})
	require.NoError(t, err)
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, 4, cfg.Pool.MaxOpenConns)
}

func TestPostgresConnectionString(t *testing.T) {
	dsn := postgres.ConnectionString(dbconfig.DatabaseConfig{
		Host: "pg_host", Port: 5432, User: "u", Password: "p", Database: "taxi", Schema: "co2",
	})
	assert.Equal(t, "host=pg_host port=5432 user=u password=p dbname=taxi sslmode=disable search_path=co2", dsn)
}
