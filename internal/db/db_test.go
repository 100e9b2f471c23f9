package db

import (
	"context"
	"net/url"
	"testing"

	"github.com/recipesnap/apiserver/config"
	"github.com/recipesnap/apiserver/internal/logging"
	"github.com/recipesnap/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveSettingsSchemes(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		dialect Dialect
		dsn     string
	}{
		{"postgres", "postgres://u:p@db:5432/app", DialectPostgres, "postgres://u:p@db:5432/app?sslmode=disable"},
		{"postgresql", "postgresql://u:p@db:5432/app", DialectPostgres, "postgres://u:p@db:5432/app?sslmode=disable"},
		{"driver suffix", "postgresql+psycopg://u:p@db/app", DialectPostgres, "postgres://u:p@db/app?sslmode=disable"},
		{"sqlite relative", "sqlite:///./recipes.db", DialectSQLite, "./recipes.db?_foreign_keys=1"},
		{"sqlite absolute", "sqlite:////tmp/recipes.db", DialectSQLite, "/tmp/recipes.db?_foreign_keys=1"},
		{"sqlite memory", "sqlite://file:x?mode=memory&cache=shared", DialectSQLite, "file:x?mode=memory&cache=shared&_foreign_keys=1"},
		{"file uri", "file:recipes.db", DialectSQLite, "file:recipes.db?_foreign_keys=1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings, err := ResolveSettings(config.DatabaseConfig{URL: tt.url}, "production")
			require.NoError(t, err)
			assert.Equal(t, tt.dialect, settings.Dialect)
			assert.Equal(t, tt.dsn, settings.DSN)
		})
	}
}

func TestResolveSettingsFallbacks(t *testing.T) {
	settings, err := ResolveSettings(config.DatabaseConfig{SQLitePath: "local.db"}, "production")
	require.NoError(t, err)
	assert.Equal(t, DialectSQLite, settings.Dialect)
	assert.Equal(t, "local.db?_foreign_keys=1", settings.DSN)

	settings, err = ResolveSettings(config.DatabaseConfig{
		Host:     "db",
		Port:     5433,
		User:     "chef",
		Password: "s3cret",
		DBName:   "recipes",
	}, "production")
	require.NoError(t, err)
	assert.Equal(t, DialectPostgres, settings.Dialect)
	assert.Equal(t, "postgres://chef:s3cret@db:5433/recipes?sslmode=disable", settings.DSN)
}

func TestResolveSettingsRejectsUnknownScheme(t *testing.T) {
	_, err := ResolveSettings(config.DatabaseConfig{URL: "mysql://u:p@db/app"}, "production")
	require.Error(t, err)

	_, err = ResolveSettings(config.DatabaseConfig{URL: "sqlite://"}, "production")
	require.Error(t, err)
}

func TestResolveSettingsSSLModes(t *testing.T) {
	base := "postgres://u:p@db:5432/app"

	t.Run("verify full with bundle", func(t *testing.T) {
		settings, err := ResolveSettings(config.DatabaseConfig{
			URL:          base,
			SSLMode:      "verify-full",
			CABundlePath: "/etc/ssl/rds.pem",
		}, "production")
		require.NoError(t, err)
		q := dsnQuery(t, settings.DSN)
		assert.Equal(t, "verify-full", q.Get("sslmode"))
		assert.Equal(t, "/etc/ssl/rds.pem", q.Get("sslrootcert"))
		assert.False(t, settings.InsecureTLS)
	})

	t.Run("require with bundle verifies ca", func(t *testing.T) {
		settings, err := ResolveSettings(config.DatabaseConfig{
			URL:          base,
			SSLMode:      "require",
			CABundlePath: "/etc/ssl/ca.pem",
		}, "production")
		require.NoError(t, err)
		assert.Equal(t, "verify-ca", dsnQuery(t, settings.DSN).Get("sslmode"))
		assert.Equal(t, SSLRequire, settings.SSLMode)
	})

	t.Run("require without bundle is rejected", func(t *testing.T) {
		_, err := ResolveSettings(config.DatabaseConfig{URL: base, SSLMode: "require"}, "dev")
		assert.ErrorIs(t, err, ErrInsecureTLS)
	})

	t.Run("insecure opt in outside dev is rejected", func(t *testing.T) {
		_, err := ResolveSettings(config.DatabaseConfig{
			URL:              base,
			SSLMode:          "require",
			AllowInsecureTLS: true,
		}, "production")
		assert.ErrorIs(t, err, ErrInsecureTLS)
	})

	t.Run("insecure opt in for dev", func(t *testing.T) {
		settings, err := ResolveSettings(config.DatabaseConfig{
			URL:              base,
			SSLMode:          "require",
			AllowInsecureTLS: true,
		}, "dev")
		require.NoError(t, err)
		assert.True(t, settings.InsecureTLS)
		assert.Equal(t, "require", dsnQuery(t, settings.DSN).Get("sslmode"))
	})

	t.Run("mode taken from url", func(t *testing.T) {
		settings, err := ResolveSettings(config.DatabaseConfig{URL: base + "?sslmode=verify-full"}, "production")
		require.NoError(t, err)
		assert.Equal(t, SSLVerifyFull, settings.SSLMode)
	})

	t.Run("unknown mode", func(t *testing.T) {
		_, err := ResolveSettings(config.DatabaseConfig{URL: base, SSLMode: "sometimes"}, "production")
		assert.Error(t, err)
	})
}

func TestOpenSQLiteMigratesSchema(t *testing.T) {
	settings, err := ResolveSettings(config.DatabaseConfig{
		URL: "sqlite://file:db_open_test?mode=memory&cache=shared",
	}, "test")
	require.NoError(t, err)

	gdb, err := Open(context.Background(), settings, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(gdb) })

	require.NoError(t, Ping(context.Background(), gdb))
	for _, table := range []string{"user", "recipe", "ingredient", "tag", "recipeingredientlink", "recipetag"} {
		assert.True(t, gdb.Migrator().HasTable(table), table)
	}

	var fk int
	require.NoError(t, gdb.Raw("PRAGMA foreign_keys").Scan(&fk).Error)
	assert.Equal(t, 1, fk)

	assert.True(t, gdb.Migrator().HasIndex(&types.Ingredient{}, "Name"))
}

func TestMigrateRejectsSQLite(t *testing.T) {
	err := MigrateUp(Settings{Dialect: DialectSQLite, DSN: "x.db"}, "")
	assert.Error(t, err)
}

func dsnQuery(t *testing.T, dsn string) url.Values {
	t.Helper()
	u, err := url.Parse(dsn)
	require.NoError(t, err)
	return u.Query()
}
