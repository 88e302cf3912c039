package db

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/teddyfriends/loyalty/internal/models"
)

var conn *gorm.DB

type Options struct {
	Path   string
	Now    func() time.Time // gorm timestamps; nil means time.Now
	Silent bool
}

// Open connects to the SQLite file at opts.Path, migrates the schema and
// creates the indexes the loyalty invariants rely on.
func Open(opts Options) (*gorm.DB, error) {
	level := logger.Warn
	if opts.Silent {
		level = logger.Silent
	}
	cfg := &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
	}
	if opts.Now != nil {
		cfg.NowFunc = opts.Now
	}

	gdb, err := gorm.Open(sqlite.Open(opts.Path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"), cfg)
	if err != nil {
		return nil, err
	}

	// One connection: write transactions for the same family serialize here.
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if err := gdb.AutoMigrate(
		&models.Family{},
		&models.LoyaltyCounter{},
		&models.VisitCode{},
		&models.Visit{},
		&models.Voucher{},
		&models.ScannedQR{},
		&models.Notification{},
		&models.Subscription{},
		&models.Broadcast{},
	); err != nil {
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}

	// Indexes GORM doesn't create from struct tags.
	for _, stmt := range []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_vouchers_family_active ON vouchers(family_id) WHERE status = 'ACTIVE'",
		"CREATE INDEX IF NOT EXISTS idx_visits_family_created ON visits(family_id, created_at)",
		"CREATE INDEX IF NOT EXISTS idx_codes_family_open ON visit_codes(family_id, is_used, expires_at)",
	} {
		if err := gdb.Exec(stmt).Error; err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
	}
	return gdb, nil
}

// Init opens the process-wide connection used by the server and CLI.
func Init(opts Options) error {
	gdb, err := Open(opts)
	if err != nil {
		return err
	}
	conn = gdb
	log.Printf("database ready (sqlite %s)", opts.Path)
	return nil
}

func Conn() *gorm.DB {
	return conn
}

// IsUniqueViolation reports whether err came from a UNIQUE constraint.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
