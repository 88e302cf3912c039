package db_test

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/teddyfriends/loyalty/internal/db"
	"github.com/teddyfriends/loyalty/internal/models"
)

func openTest(t *testing.T) *sql.DB {
	t.Helper()
	gdb, err := db.Open(db.Options{Path: filepath.Join(t.TempDir(), "test.db"), Silent: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("get sql.DB: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	return sqlDB
}

// TestWALMode verifies that the DSN parameters in Open enable WAL journal mode.
func TestWALMode(t *testing.T) {
	sqlDB := openTest(t)

	var mode string
	if err := sqlDB.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("pragma: %v", err)
	}
	if mode != "wal" {
		t.Errorf("expected journal_mode=wal, got %q", mode)
	}
}

// TestOpen_CreatesIndexes verifies the indexes that struct tags can't express.
func TestOpen_CreatesIndexes(t *testing.T) {
	sqlDB := openTest(t)

	checks := map[string][]string{
		"vouchers":    {"ux_vouchers_family_active"},
		"visits":      {"idx_visits_family_created"},
		"visit_codes": {"idx_codes_family_open"},
	}
	for table, want := range checks {
		found := indexNames(t, sqlDB, table)
		for _, name := range want {
			if !found[name] {
				t.Errorf("index %q missing from %s; found: %v", name, table, found)
			}
		}
	}
}

// TestOneActiveVoucherPerFamily exercises the partial unique index directly.
func TestOneActiveVoucherPerFamily(t *testing.T) {
	gdb, err := db.Open(db.Options{Path: filepath.Join(t.TempDir(), "v.db"), Silent: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	now := time.Now().UTC()
	fam := models.Family{ClientCode: "TF-000001"}
	if err := gdb.Create(&fam).Error; err != nil {
		t.Fatalf("create family: %v", err)
	}

	first := models.Voucher{Code: "TF-111111", FamilyID: fam.ID, Status: models.VoucherActive, IssuedAt: now, ValidUntil: now.Add(time.Hour)}
	if err := gdb.Create(&first).Error; err != nil {
		t.Fatalf("first voucher: %v", err)
	}
	second := models.Voucher{Code: "TF-222222", FamilyID: fam.ID, Status: models.VoucherActive, IssuedAt: now, ValidUntil: now.Add(time.Hour)}
	err = gdb.Create(&second).Error
	if !db.IsUniqueViolation(err) {
		t.Fatalf("expected unique violation for second ACTIVE voucher, got %v", err)
	}

	// A redeemed voucher does not occupy the slot.
	redeemed := models.Voucher{Code: "TF-333333", FamilyID: fam.ID, Status: models.VoucherRedeemed, IssuedAt: now, ValidUntil: now.Add(time.Hour)}
	if err := gdb.Create(&redeemed).Error; err != nil {
		t.Errorf("redeemed voucher should insert: %v", err)
	}
}

func indexNames(t *testing.T, sqlDB *sql.DB, table string) map[string]bool {
	t.Helper()
	rows, err := sqlDB.Query("PRAGMA index_list(" + table + ")")
	if err != nil {
		t.Fatalf("PRAGMA index_list: %v", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var seq int
		var name string
		var unique bool
		var origin, partial string
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			t.Fatalf("scan: %v", err)
		}
		out[name] = true
	}
	return out
}
