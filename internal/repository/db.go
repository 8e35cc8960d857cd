package repository

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tasksync/internal/model"
)

// NewDB opens a SQLite database and runs migrations. Foreign key enforcement
// is enabled so task deletion cascades to category links, repetitions and
// completions.
func NewDB(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		dsn = "tasksync.db"
	}

	if err := ensureDirForSQLite(dsn); err != nil {
		return nil, err
	}

	dbLogger := logger.New(
		log.New(os.Stdout, "", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(sqlite.Open(withForeignKeys(dsn)), &gorm.Config{
		Logger: dbLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := migrateAll(db); err != nil {
		return nil, err
	}

	return db, nil
}

func migrateAll(db *gorm.DB) error {
	err := db.AutoMigrate(
		&model.Category{},
		&model.Task{},
		&model.Repetition{},
		&model.Completion{},
		&model.SyncItem{},
	)
	if err != nil {
		return fmt.Errorf("migrate db: %w", err)
	}
	return nil
}

// resetSchema drops every task-related table plus the operation queue and
// re-creates them empty. Used by the full-resync path.
func resetSchema(db *gorm.DB) error {
	err := db.Migrator().DropTable(
		&model.Completion{},
		&model.Repetition{},
		"task_categories",
		&model.Task{},
		&model.Category{},
		&model.SyncItem{},
	)
	if err != nil {
		return fmt.Errorf("drop tables: %w", err)
	}
	return migrateAll(db)
}

// withForeignKeys appends the sqlite driver parameter that turns on foreign
// key enforcement for every pooled connection.
func withForeignKeys(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&_foreign_keys=1"
	}
	return dsn + "?_foreign_keys=1"
}

// ensureDirForSQLite creates parent dir for SQLite file if needed.
func ensureDirForSQLite(dsn string) error {
	// Ignore DSNs with explicit mode=memory or network.
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		return nil
	}
	// Strip file: prefix if present.
	clean := strings.TrimPrefix(dsn, "file:")
	clean = strings.Split(clean, "?")[0]
	dir := filepath.Dir(clean)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create db dir %q: %w", dir, err)
	}
	return nil
}
