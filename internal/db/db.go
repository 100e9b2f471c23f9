package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/recipesnap/apiserver/types"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	defaultDBDriver     = "postgres"
	defaultPingTimeout  = 5 * time.Second
	defaultConnMaxIdle  = 2 * time.Minute
	defaultConnMaxLife  = 30 * time.Minute
	defaultMaxIdleConns = 5
	defaultMaxOpenConns = 25
	slowQueryThreshold  = 500 * time.Millisecond
)

// Open connects to the database described by settings. Postgres goes through
// lib/pq with the pool limits below; SQLite is opened with a single
// connection and its schema is migrated in place.
func Open(ctx context.Context, settings Settings, log logrus.FieldLogger) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		TranslateError: true,
		Logger: gormlogger.New(log, gormlogger.Config{
			SlowThreshold:             slowQueryThreshold,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	}

	var (
		gdb *gorm.DB
		err error
	)
	switch settings.Dialect {
	case DialectPostgres:
		if settings.InsecureTLS {
			log.Warn("database TLS is enabled without server certificate verification (dev only)")
		}
		gdb, err = openPostgres(ctx, settings.DSN, gormCfg)
	case DialectSQLite:
		gdb, err = openSQLite(ctx, settings.DSN, gormCfg)
	default:
		return nil, fmt.Errorf("unsupported dialect %q", settings.Dialect)
	}
	if err != nil {
		return nil, err
	}

	if err := setupJoinTables(gdb); err != nil {
		_ = Close(gdb)
		return nil, err
	}

	if settings.Dialect == DialectSQLite {
		if err := AutoMigrate(gdb); err != nil {
			_ = Close(gdb)
			return nil, err
		}
	}

	log.WithField("dialect", settings.Dialect).Info("database connected")
	return gdb, nil
}

func openPostgres(ctx context.Context, dsn string, gormCfg *gorm.Config) (*gorm.DB, error) {
	sqlDB, err := sql.Open(defaultDBDriver, dsn)
	if err != nil {
		return nil, err
	}

	sqlDB.SetConnMaxIdleTime(defaultConnMaxIdle)
	sqlDB.SetConnMaxLifetime(defaultConnMaxLife)
	sqlDB.SetMaxIdleConns(defaultMaxIdleConns)
	sqlDB.SetMaxOpenConns(defaultMaxOpenConns)

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), gormCfg)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return gdb, nil
}

func openSQLite(ctx context.Context, dsn string, gormCfg *gorm.Config) (*gorm.DB, error) {
	gdb, err := gorm.Open(sqlite.Open(dsn), gormCfg)
	if err != nil {
		return nil, err
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	// SQLite serializes writers; one connection also keeps in-memory
	// databases alive for the lifetime of the pool.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(0)
	sqlDB.SetConnMaxIdleTime(0)

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return gdb, nil
}

func setupJoinTables(gdb *gorm.DB) error {
	if err := gdb.SetupJoinTable(&types.Recipe{}, "Ingredients", &types.RecipeIngredientLink{}); err != nil {
		return fmt.Errorf("setup recipeingredientlink: %w", err)
	}
	if err := gdb.SetupJoinTable(&types.Recipe{}, "Tags", &types.RecipeTag{}); err != nil {
		return fmt.Errorf("setup recipetag: %w", err)
	}
	return nil
}

// AutoMigrate creates or updates the schema from the domain types. Postgres
// deployments use the SQL migrations instead.
func AutoMigrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(
		&types.User{},
		&types.Ingredient{},
		&types.Tag{},
		&types.Recipe{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Ping checks that the database answers.
func Ping(ctx context.Context, gdb *gorm.DB) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	return sqlDB.PingContext(pingCtx)
}

// Close releases the underlying connection pool.
func Close(gdb *gorm.DB) error {
	if gdb == nil {
		return nil
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
