package db

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"sync"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"liyu1981.xyz/polar-hr-pipeline/pkg/common"
	"liyu1981.xyz/polar-hr-pipeline/pkg/models"
)

type DB struct {
	Conn *gorm.DB
}

var (
	instance *DB
	once     sync.Once
)

// GetInstance opens and migrates the process-wide database once.
func GetInstance(dialector gorm.Dialector) *DB {
	once.Do(func() {
		var err error
		if instance, err = Open(dialector); err != nil {
			log.Fatal("Failed to open database: ", err)
		}
	})
	return instance
}

// Open connects and migrates a fresh handle, independent of the singleton.
func Open(dialector gorm.Dialector) (*DB, error) {
	logger := common.GetLogger()

	d, err := Connect(dialector)
	if err != nil {
		return nil, err
	}

	logger.Info("Connected to database with dialector:", zap.String("dialector", dialector.Name()))

	if err := d.Migrate(); err != nil {
		return nil, err
	}

	logger.Info("Database migration completed")

	if dialector.Name() == "sqlite" {
		if err := d.Conn.Exec("PRAGMA journal_mode = WAL").Error; err != nil {
			return nil, fmt.Errorf("failed to set sqlite journal mode: %w", err)
		}
	}

	return d, nil
}

// Connect opens the connection without touching the schema.
func Connect(dialector gorm.Dialector) (*DB, error) {
	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &DB{Conn: conn}, nil
}

func (d *DB) Migrate() error {
	if err := d.Conn.AutoMigrate(&models.HeartRateReading{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func (d *DB) Close() error {
	sqlDB, err := d.Conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func UseSqliteDialector() gorm.Dialector {
	var dbPath string
	var found bool
	if dbPath, found = os.LookupEnv(common.EnvKeyHRDbPath); !found {
		dbPath = "heartrate.db"
	}
	return sqlite.Open(dbPath)
}

func UseMemorySqliteDialector() gorm.Dialector {
	return sqlite.Open("file::memory:?cache=shared")
}

// UseNamedMemorySqliteDialector gives each name its own in-memory database.
func UseNamedMemorySqliteDialector(name string) gorm.Dialector {
	return sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
}

// UsePostgresDialector opens dsn with lib/pq and hands the pool to gorm.
func UsePostgresDialector(dsn string) (gorm.Dialector, error) {
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	return UsePostgresConnDialector(sqlDB), nil
}

func UsePostgresConnDialector(conn *sql.DB) gorm.Dialector {
	return postgres.New(postgres.Config{Conn: conn})
}

// DialectorFromEnv picks the dialector named by HR_DB_TYPE.
func DialectorFromEnv() (gorm.Dialector, error) {
	dbType := common.GetEnv(common.EnvKeyHRDBType, "file")
	switch dbType {
	case "file":
		return UseSqliteDialector(), nil
	case "memory":
		return UseMemorySqliteDialector(), nil
	case "postgres":
		dsn := common.GetEnv(common.EnvKeyHRDbDSN, "")
		if dsn == "" {
			return nil, fmt.Errorf("%s must be set when %s=postgres", common.EnvKeyHRDbDSN, common.EnvKeyHRDBType)
		}
		return UsePostgresDialector(dsn)
	default:
		return nil, fmt.Errorf("unknown %s: %s", common.EnvKeyHRDBType, dbType)
	}
}
