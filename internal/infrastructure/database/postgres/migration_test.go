// internal/infrastructure/database/postgres/migration_test.go
package postgres

import (
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// The raw index statements must match the column names GORM derives
// from the entities, or the whole pass quietly degrades to sequential
// scans. Running them against a freshly migrated schema catches any
// statement naming a column that does not exist.
func TestCreateIndexes_MatchMigratedSchema(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	migration := NewMigration(db)
	if err := migration.RunAutoMigrations(); err != nil {
		t.Fatalf("auto-migrations: %v", err)
	}
	if err := migration.CreateIndexes(); err != nil {
		t.Fatalf("index pass: %v", err)
	}

	var count int64
	err = db.Raw("SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name LIKE 'idx_%'").Scan(&count).Error
	if err != nil {
		t.Fatalf("listing indexes: %v", err)
	}
	if count == 0 {
		t.Error("no indexes were created")
	}
}
